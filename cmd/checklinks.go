package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ocqa/journey-cli/api/schemas"
	"github.com/ocqa/journey-cli/internal/config"
	"github.com/ocqa/journey-cli/internal/observability"
	"github.com/ocqa/journey-cli/internal/urlcheck"
)

// newChecklinksCmd creates the `checklinks` command.
func newChecklinksCmd() *cobra.Command {
	checklinksCmd := &cobra.Command{
		Use:   "checklinks [urls...]",
		Short: "Probes URLs the way the configured browser flavor would",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return err
			}
			checker := urlcheck.New(schemas.ParseFlavor(cfg.Browser.Flavor), observability.GetLogger())
			failures := checker.CheckAll(ctx, args)
			for _, f := range failures {
				fmt.Println(f)
			}
			if len(failures) > 0 {
				return fmt.Errorf("%d of %d URLs failed", len(failures), len(args))
			}
			fmt.Printf("All %d URLs healthy\n", len(args))
			return nil
		},
	}
	return checklinksCmd
}
