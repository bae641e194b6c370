package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ocqa/journey-cli/api/schemas"
	"github.com/ocqa/journey-cli/internal/browser"
	"github.com/ocqa/journey-cli/internal/config"
	"github.com/ocqa/journey-cli/internal/mail"
	"github.com/ocqa/journey-cli/internal/observability"
	"github.com/ocqa/journey-cli/internal/pages"
	"github.com/ocqa/journey-cli/internal/stabilize"
	"github.com/ocqa/journey-cli/internal/store"
	"github.com/ocqa/journey-cli/internal/workflow"
)

// newSignupCmd creates and configures the `signup` command.
func newSignupCmd() *cobra.Command {
	signupCmd := &cobra.Command{
		Use:   "signup",
		Short: "Runs one or more account signup journeys",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags so CLI values override config and env with the
			// right precedence.
			if err := viper.BindPFlag("accounts.destination", cmd.Flags().Lookup("destination")); err != nil {
				return err
			}
			if err := viper.BindPFlag("browser.concurrency", cmd.Flags().Lookup("concurrency")); err != nil {
				return err
			}
			if err := viper.BindPFlag("journey.school", cmd.Flags().Lookup("school")); err != nil {
				return err
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return err
			}

			roleName, _ := cmd.Flags().GetString("role")
			role, err := workflow.ParseRole(roleName)
			if err != nil {
				return err
			}
			count, _ := cmd.Flags().GetInt("count")
			if count < 1 {
				count = 1
			}
			newsletter, _ := cmd.Flags().GetBool("newsletter")
			provider, _ := cmd.Flags().GetString("provider")
			emailFlag, _ := cmd.Flags().GetString("email")
			passwordFlag, _ := cmd.Flags().GetString("password")
			subjects, _ := cmd.Flags().GetStringSlice("subjects")
			randomSubjects, _ := cmd.Flags().GetInt("random-subjects")
			students, _ := cmd.Flags().GetInt("students")
			scenario, _ := cmd.Flags().GetString("scenario")
			visitPayments, _ := cmd.Flags().GetBool("visit-payments")
			if visitPayments && cfg.Accounts.PaymentsURL == "" {
				return fmt.Errorf("--visit-payments requires accounts.payments_url to be configured")
			}

			if emailFlag != "" && count > 1 {
				return fmt.Errorf("--email cannot be combined with --count > 1")
			}

			catalog := workflow.DefaultCatalog()
			if len(cfg.Journey.Subjects) > 0 {
				catalog = workflow.NewCatalog(cfg.Journey.Subjects)
			}
			if len(subjects) == 0 && randomSubjects > 0 {
				subjects = catalog.Random(randomSubjects)
			}

			manager, err := browser.NewManager(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize browser manager: %w", err)
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				if err := manager.Shutdown(shutdownCtx); err != nil {
					logger.Warn("Error during browser manager shutdown", zap.Error(err))
				}
			}()

			var (
				mu      sync.Mutex
				records []schemas.RunRecord
			)

			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(cfg.Browser.Concurrency)
			for i := 0; i < count; i++ {
				g.Go(func() error {
					account := buildAccount(role, cfg, workflow.NewTag())
					account.Newsletter = newsletter
					account.Provider = provider
					account.Subjects = subjects
					if students > 0 {
						account.Students = students
					}
					if emailFlag != "" {
						account.Email = emailFlag
					}
					if passwordFlag != "" {
						account.Password = passwordFlag
					}

					record := runOneJourney(gctx, manager, cfg, account, scenario, visitPayments, logger)
					mu.Lock()
					records = append(records, record)
					mu.Unlock()

					if record.Outcome != schemas.OutcomePassed {
						return fmt.Errorf("journey %s %s: %s", record.JourneyID, record.Outcome, record.Detail)
					}
					return nil
				})
			}
			runErr := g.Wait()

			if cfg.Store.URL != "" {
				if err := persistRuns(ctx, cfg, records, logger); err != nil {
					logger.Error("Failed to persist run records", zap.Error(err))
				}
			}

			for _, r := range records {
				fmt.Printf("%s  %-8s  %-10s  %s\n", r.JourneyID, r.Outcome, r.Role, r.Email)
			}
			return runErr
		},
	}

	signupCmd.Flags().StringP("role", "r", "Student", "Account role (Student, Instructor, Administrator, Librarian, Instructional Designer, Other)")
	signupCmd.Flags().String("email", "", "Explicit signup address. Default is a generated disposable-inbox address.")
	signupCmd.Flags().String("password", "", "Explicit password. Default is a generated one.")
	signupCmd.Flags().String("provider", "", "Social identity provider to sign up with (facebook, google)")
	signupCmd.Flags().String("destination", "", "URL fragment the finished journey must reach. (Overrides config/env)")
	signupCmd.Flags().Bool("newsletter", false, "Accept the newsletter instead of declining it")
	signupCmd.Flags().StringSlice("subjects", nil, "Subjects of interest for instructor signups")
	signupCmd.Flags().Int("random-subjects", 0, "Pick this many random subjects from the catalog")
	signupCmd.Flags().Int("students", 0, "Number of students taught, for instructor signups")
	signupCmd.Flags().IntP("count", "n", 1, "Number of journeys to run")
	signupCmd.Flags().IntP("concurrency", "j", 0, "Number of concurrent browser sessions. (Overrides config/env)")
	signupCmd.Flags().String("school", "", "Institution name for created accounts. (Overrides config/env)")
	signupCmd.Flags().String("scenario", "manual", "Scenario label stamped on persisted run records")
	signupCmd.Flags().Bool("visit-payments", false, "After a passed journey, confirm the session carries into the payments console")

	return signupCmd
}

// buildAccount fills an account draft with generated identity data.
func buildAccount(role workflow.Role, cfg *config.Config, tag string) *workflow.Account {
	first := "Auto"
	last := "Journey" + strings.ToUpper(tag[:1]) + tag[1:]
	return &workflow.Account{
		FirstName: first,
		LastName:  last,
		Email:     mail.Address(first, last, tag),
		Password:  "Staging-" + tag + "!",
		Role:      role,
		School:    cfg.Journey.School,
		Phone:     "7135550100",
		Students:  10,
		Webpage:   "https://openstax.org",
		Usage:     workflow.UsageInterested,
	}
}

// runOneJourney opens a session, runs the state machine, and folds the
// outcome into a run record. Errors are recorded, not returned; the
// caller decides what a failed journey means for the batch.
func runOneJourney(ctx context.Context, manager *browser.Manager, cfg *config.Config, account *workflow.Account, scenario string, visitPayments bool, logger *zap.Logger) schemas.RunRecord {
	started := time.Now()
	record := schemas.RunRecord{
		Scenario:  scenario,
		Role:      account.Role.String(),
		Email:     account.Email,
		StartedAt: started,
	}

	session, err := manager.NewSession(ctx)
	if err != nil {
		record.Outcome = schemas.OutcomeError
		record.Detail = err.Error()
		record.Duration = time.Since(started)
		return record
	}
	defer func() {
		if err := session.Close(context.Background()); err != nil {
			logger.Warn("Error closing session", zap.Error(err))
		}
	}()

	st := stabilize.New(session, logger, stabilize.Options{
		Settle: cfg.Network.SettleWait,
	})
	inbox := mail.NewInbox(cfg.Mail, account.Email, logger)
	defer func() {
		// Disposable inboxes are released, never reused.
		if err := inbox.Drain(context.Background()); err != nil {
			logger.Debug("Failed to drain inbox", zap.String("address", inbox.Address()), zap.Error(err))
		}
	}()

	journey := workflow.New(st, inbox, account, workflow.Config{
		BaseURL:         cfg.Accounts.BaseURL,
		Destination:     cfg.Accounts.Destination,
		EmbeddedProduct: cfg.Accounts.EmbeddedProduct,
		PinAttempts:     cfg.Journey.PinAttempts,
		StepTimeout:     cfg.Browser.StepTimeout,
		Catalog:         journeyCatalog(cfg),
	}, logger)

	record.JourneyID = journey.ID()
	err = journey.Run(ctx)
	record.Duration = time.Since(started)
	if loc, lerr := session.Location(ctx); lerr == nil {
		record.FinalURL = loc
	}

	var verr *workflow.ValidationError
	var terr *workflow.TimeoutError
	switch {
	case err == nil:
		record.Outcome = schemas.OutcomePassed
	case errors.As(err, &verr):
		record.Outcome = schemas.OutcomeRejected
		record.Detail = verr.Error()
	case errors.As(err, &terr):
		record.Outcome = schemas.OutcomeTimeout
		record.Detail = terr.Error()
	default:
		record.Outcome = schemas.OutcomeError
		record.Detail = err.Error()
	}

	if visitPayments && record.Outcome == schemas.OutcomePassed {
		if err := checkPaymentsConsole(ctx, st, cfg.Accounts.PaymentsURL); err != nil {
			record.Outcome = schemas.OutcomeError
			record.Detail = err.Error()
		}
	}
	return record
}

// checkPaymentsConsole confirms the fresh session carries into the
// payments console, then logs out of it.
func checkPaymentsConsole(ctx context.Context, st *stabilize.Stabilizer, paymentsURL string) error {
	console := pages.NewPayments(st, paymentsURL)
	if err := console.Open(ctx); err != nil {
		return fmt.Errorf("failed to open payments console: %w", err)
	}
	if err := console.WaitLoaded(ctx); err != nil {
		return fmt.Errorf("payments console did not load: %w", err)
	}
	loggedIn, err := console.LoggedIn(ctx)
	if err != nil {
		return err
	}
	if !loggedIn {
		return fmt.Errorf("payments console did not accept the session")
	}
	return console.Nav.LogOut(ctx)
}

func journeyCatalog(cfg *config.Config) workflow.Catalog {
	if len(cfg.Journey.Subjects) > 0 {
		return workflow.NewCatalog(cfg.Journey.Subjects)
	}
	return workflow.DefaultCatalog()
}

// persistRuns writes the batch outcome to PostgreSQL.
func persistRuns(ctx context.Context, cfg *config.Config, records []schemas.RunRecord, logger *zap.Logger) error {
	pool, err := pgxpool.New(ctx, cfg.Store.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	st, err := store.New(ctx, pool, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize run store: %w", err)
	}
	return st.SaveRuns(ctx, records)
}
