package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ocqa/journey-cli/internal/config"
	"github.com/ocqa/journey-cli/internal/crm"
	"github.com/ocqa/journey-cli/internal/observability"
)

// newVerifyCmd creates the `verify` command, which checks what the CRM
// recorded for a signup after the review pipeline ran.
func newVerifyCmd() *cobra.Command {
	verifyCmd := &cobra.Command{
		Use:   "verify [email]",
		Short: "Looks up a signup's records in the CRM",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return err
			}
			if cfg.CRM.InstanceURL == "" {
				return fmt.Errorf("crm.instance_url is not configured (JOURNEY_CRM_INSTANCE_URL)")
			}

			client, err := crm.NewClient(cfg.CRM, logger)
			if err != nil {
				return err
			}

			email := args[0]
			contact, err := client.ContactByEmail(ctx, email)
			if err != nil {
				return fmt.Errorf("contact lookup failed: %w", err)
			}
			if contact == nil {
				fmt.Printf("No contact found for %s\n", email)
			} else {
				fmt.Printf("Contact %s: %s %s, school %q, faculty verified %q, adoption %q\n",
					contact.ID, contact.FirstName, contact.LastName,
					contact.SchoolName, contact.FacultyVerified, contact.AdoptionStatus)
			}

			school, _ := cmd.Flags().GetString("school")
			if school != "" {
				leads, err := client.LeadsBySchool(ctx, school)
				if err != nil {
					return fmt.Errorf("lead lookup failed: %w", err)
				}
				logger.Info("Fetched leads", zap.String("school", school), zap.Int("count", len(leads)))
				for _, lead := range leads {
					fmt.Printf("Lead %s: %s %s <%s> status %q, role %q, students %.0f\n",
						lead.ID, lead.FirstName, lead.LastName, lead.Email,
						lead.Status, lead.Role, lead.NumberOfStudents)
				}

				org, err := client.OrganizationByName(ctx, school)
				if err != nil {
					return fmt.Errorf("organization lookup failed: %w", err)
				}
				if org != nil {
					fmt.Printf("Organization %s: %s (%s) %s\n", org.ID, org.Name, org.Type, org.Website)
				}
			}
			return nil
		},
	}

	verifyCmd.Flags().String("school", "", "Also list pending leads and the organization record for this school")
	return verifyCmd
}
