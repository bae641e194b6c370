// internal/workflow/journey.go

// Package workflow drives the account signup graph: a typed state
// machine over the page objects, from role selection through email
// verification to the finished profile. Each step returns a tagged
// result so callers always know whether the journey advanced, was
// rejected, or escalated into a review branch.
package workflow

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ocqa/journey-cli/api/schemas"
	"github.com/ocqa/journey-cli/internal/pages"
	"github.com/ocqa/journey-cli/internal/stabilize"
)

// PINSource hands out the current verification code for the journey's
// address. Each call must reflect the newest mail, not a cached one.
type PINSource interface {
	LatestPIN(ctx context.Context) (string, error)
}

// Config tunes one journey.
type Config struct {
	// BaseURL roots the accounts pages.
	BaseURL string
	// Destination is the URL fragment the finished journey must reach.
	// Empty means the profile page.
	Destination string
	// EmbeddedProduct skips the role selector and the terms step for
	// signups started inside a product context.
	EmbeddedProduct bool
	// PinAttempts bounds the verification loop. Zero means 5.
	PinAttempts int
	// StepTimeout bounds each post-condition wait. Zero means 10s.
	StepTimeout time.Duration
	// PollInterval paces the submit-outcome polling. Zero means 250ms.
	PollInterval time.Duration
	// Catalog lists the selectable subjects. Zero value means the
	// built-in catalog.
	Catalog Catalog
}

func (c Config) withDefaults() Config {
	if c.PinAttempts <= 0 {
		c.PinAttempts = 5
	}
	if c.StepTimeout <= 0 {
		c.StepTimeout = 10 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 250 * time.Millisecond
	}
	if c.Catalog.Size() == 0 {
		c.Catalog = DefaultCatalog()
	}
	return c
}

// Journey executes one signup for one account in one browser session.
// Not safe for concurrent use; run parallel journeys on separate
// sessions with separate inboxes.
type Journey struct {
	id      string
	drv     schemas.Driver
	st      *stabilize.Stabilizer
	pins    PINSource
	account *Account
	cfg     Config
	logger  *zap.Logger

	subjects []string
	trail    []State

	roleEmail  *pages.RoleEmail
	pin        *pages.PinVerification
	password   *pages.SetPassword
	profile    *pages.ProfileDetails
	completion *pages.Completion
	access     *pages.InstructorAccess
	landing    *pages.Profile
}

// New wires a journey over an open session.
func New(st *stabilize.Stabilizer, pins PINSource, account *Account, cfg Config, logger *zap.Logger) *Journey {
	cfg = cfg.withDefaults()
	id := uuid.New().String()
	return &Journey{
		id:      id,
		drv:     st.Driver(),
		st:      st,
		pins:    pins,
		account: account,
		cfg:     cfg,
		logger: logger.Named("journey").With(
			zap.String("journey_id", id),
			zap.String("email", account.Email),
			zap.String("role", account.Role.String()),
		),
		subjects:   cfg.Catalog.Filter(account.Subjects),
		roleEmail:  pages.NewRoleEmail(st, cfg.BaseURL),
		pin:        pages.NewPinVerification(st, cfg.BaseURL),
		password:   pages.NewSetPassword(st, cfg.BaseURL),
		profile:    pages.NewProfileDetails(st, cfg.BaseURL),
		completion: pages.NewCompletion(st, cfg.BaseURL),
		access:     pages.NewInstructorAccess(st, cfg.BaseURL),
		landing:    pages.NewProfile(st, cfg.BaseURL),
	}
}

// ID returns the journey identifier used in logs and run records.
func (j *Journey) ID() string { return j.id }

// Trail returns the states entered so far, in order.
func (j *Journey) Trail() []State {
	out := make([]State, len(j.trail))
	copy(out, j.trail)
	return out
}

func (j *Journey) validate() error {
	if j.account.Email == "" {
		return fmt.Errorf("account has no email address")
	}
	if j.account.Provider == "" && j.account.Password == "" {
		return fmt.Errorf("account has neither a password nor a social provider")
	}
	return nil
}

// Run executes the graph from the entry form to the destination page.
func (j *Journey) Run(ctx context.Context) error {
	if err := j.validate(); err != nil {
		return err
	}

	j.logger.Info("Starting signup journey")
	if err := j.roleEmail.Open(ctx); err != nil {
		return fmt.Errorf("could not open signup page: %w", err)
	}

	state := StateRoleAndEmail
	for state != StateDone {
		j.trail = append(j.trail, state)

		res, err := j.step(ctx, state)
		if err != nil {
			j.logger.Error("Step failed", zap.Stringer("state", state), zap.Error(err))
			return err
		}
		switch res.Kind {
		case KindValidationError:
			j.logger.Warn("Submission rejected",
				zap.Stringer("state", state),
				zap.String("message", res.Message))
			return &ValidationError{State: state, Message: res.Message}
		case KindEscalatedTo:
			j.logger.Info("Escalated",
				zap.Stringer("from", state),
				zap.Stringer("to", res.Next))
			state = res.Next
		default:
			j.logger.Debug("Advanced",
				zap.Stringer("from", state),
				zap.Stringer("to", res.Next))
			state = res.Next
		}
	}
	j.trail = append(j.trail, StateDone)

	if err := j.finish(ctx); err != nil {
		return err
	}
	j.logger.Info("Journey complete")
	return nil
}

func (j *Journey) step(ctx context.Context, state State) (Result, error) {
	switch state {
	case StateRoleAndEmail:
		return j.stepRoleAndEmail(ctx)
	case StatePinVerification:
		return j.stepPinVerification(ctx)
	case StatePasswordOrSocial:
		return j.stepPasswordOrSocial(ctx)
	case StateProfileDetails:
		return j.stepProfileDetails(ctx)
	case StateSubjectSelection:
		return j.stepSubjectSelection(ctx)
	case StateTermsAndNewsletter:
		return j.stepTermsAndNewsletter(ctx)
	case StateSubmissionConfirmation:
		return j.stepSubmissionConfirmation(ctx)
	case StateInstructorAccessReview:
		return j.stepInstructorAccessReview(ctx)
	default:
		return Result{}, fmt.Errorf("no handler for state %s", state)
	}
}

// -- Steps --

func (j *Journey) stepRoleAndEmail(ctx context.Context) (Result, error) {
	if err := j.roleEmail.WaitLoaded(ctx); err != nil {
		return Result{}, fmt.Errorf("signup form did not load: %w", err)
	}
	if !j.cfg.EmbeddedProduct {
		if err := j.roleEmail.SelectRole(ctx, j.account.Role.String()); err != nil {
			return Result{}, err
		}
	}
	if err := j.roleEmail.Email.Fill(ctx, j.account.Email); err != nil {
		return Result{}, err
	}

	before, err := j.drv.Location(ctx)
	if err != nil {
		return Result{}, err
	}
	if err := j.roleEmail.Next(ctx); err != nil {
		return Result{}, err
	}

	// Non-students using a non-school address get an extra "are you
	// sure" confirmation before the mail goes out. A rejected first
	// submit shows an error instead; never confirm past one.
	if j.account.Role.NeedsReview() && !SchoolEmail(j.account.Email) {
		banner, err := j.roleEmail.ErrorBanner(ctx)
		if err != nil {
			return Result{}, err
		}
		if banner != "" {
			return Rejected(j.rejectionMessage(ctx, j.roleEmail, j.roleEmail.Email)), nil
		}
		if err := j.st.WaitForOverlayClear(ctx, pages.Submit); err != nil {
			return Result{}, err
		}
		if err := j.roleEmail.Next(ctx); err != nil {
			return Result{}, err
		}
	}

	_, advanced, err := j.locationAdvanced(ctx, before)
	if err != nil {
		return Result{}, err
	}
	if !advanced {
		return Rejected(j.rejectionMessage(ctx, j.roleEmail, j.roleEmail.Email)), nil
	}
	return NextStep(StatePinVerification), nil
}

func (j *Journey) stepPinVerification(ctx context.Context) (Result, error) {
	if err := j.pin.WaitLoaded(ctx); err != nil {
		return Result{}, fmt.Errorf("verification form did not load: %w", err)
	}

	for attempt := 1; attempt <= j.cfg.PinAttempts; attempt++ {
		// Re-fetch every attempt: a re-sent PIN supersedes the old
		// one and only the newest mail is valid.
		code, err := j.pins.LatestPIN(ctx)
		if err != nil {
			return Result{}, fmt.Errorf("could not retrieve PIN: %w", err)
		}
		j.logger.Debug("Submitting PIN", zap.Int("attempt", attempt))

		if err := j.pin.Pin.Fill(ctx, code); err != nil {
			return Result{}, err
		}
		before, err := j.drv.Location(ctx)
		if err != nil {
			return Result{}, err
		}
		if err := j.pin.Next(ctx); err != nil {
			return Result{}, err
		}

		outcome, err := j.pinOutcome(ctx, before)
		if err != nil {
			return Result{}, err
		}
		if outcome == pinAccepted {
			return NextStep(StatePasswordOrSocial), nil
		}
		// Rejected: stay on the form and try the next fetch.
	}
	return Result{}, fmt.Errorf("%w: %d PIN attempts rejected", ErrVerificationExhausted, j.cfg.PinAttempts)
}

type pinResult int

const (
	pinAccepted pinResult = iota
	pinRejected
)

// pinOutcome polls until the submit either advanced the location or
// raised the wrong-PIN banner.
func (j *Journey) pinOutcome(ctx context.Context, before string) (pinResult, error) {
	deadline := time.Now().Add(j.cfg.StepTimeout)
	for {
		loc, err := j.drv.Location(ctx)
		if err != nil {
			return pinRejected, err
		}
		if loc != before {
			return pinAccepted, nil
		}
		shown, err := j.pin.RejectionShown(ctx)
		if err != nil {
			return pinRejected, err
		}
		if shown {
			return pinRejected, nil
		}
		if time.Now().After(deadline) {
			return pinRejected, &TimeoutError{Expected: "past " + before, Actual: loc}
		}
		select {
		case <-time.After(j.cfg.PollInterval):
		case <-ctx.Done():
			return pinRejected, ctx.Err()
		}
	}
}

func (j *Journey) stepPasswordOrSocial(ctx context.Context) (Result, error) {
	if j.account.Provider != "" {
		return j.socialBranch(ctx)
	}

	if err := j.password.WaitLoaded(ctx); err != nil {
		return Result{}, fmt.Errorf("password form did not load: %w", err)
	}
	if err := j.password.Password.Fill(ctx, j.account.Password); err != nil {
		return Result{}, err
	}
	if err := j.password.Confirmation.Fill(ctx, j.account.Password); err != nil {
		return Result{}, err
	}

	before, err := j.drv.Location(ctx)
	if err != nil {
		return Result{}, err
	}
	if err := j.password.Next(ctx); err != nil {
		return Result{}, err
	}

	_, advanced, err := j.locationAdvanced(ctx, before)
	if err != nil {
		return Result{}, err
	}
	if !advanced {
		return Rejected(j.rejectionMessage(ctx, j.password, j.password.Password, j.password.Confirmation)), nil
	}
	return NextStep(StateProfileDetails), nil
}

// socialBranch hands the credential step to an identity provider and
// waits for the return to the accounts domain.
func (j *Journey) socialBranch(ctx context.Context) (Result, error) {
	idp, err := pages.NewIdentityProvider(j.st, j.account.Provider)
	if err != nil {
		return Result{}, err
	}
	j.logger.Info("Using identity provider", zap.String("provider", idp.Name))

	if err := j.password.UseProvider(ctx, j.account.Provider); err != nil {
		return Result{}, err
	}
	if err := idp.SignIn(ctx, j.account.ProviderEmail, j.account.ProviderPassword); err != nil {
		return Result{}, err
	}

	host := j.accountsHost()
	waitCtx, cancel := context.WithTimeout(ctx, j.cfg.StepTimeout)
	defer cancel()
	if err := j.drv.WaitLocation(waitCtx, func(u string) bool {
		return strings.Contains(u, host)
	}); err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		loc, _ := j.drv.Location(ctx)
		return Result{}, &TimeoutError{Expected: host, Actual: loc}
	}
	return NextStep(StateProfileDetails), nil
}

func (j *Journey) stepProfileDetails(ctx context.Context) (Result, error) {
	if err := j.profile.WaitLoaded(ctx); err != nil {
		return Result{}, fmt.Errorf("profile form did not load: %w", err)
	}
	if err := j.profile.FirstName.Fill(ctx, j.account.FirstName); err != nil {
		return Result{}, err
	}
	if err := j.profile.LastName.Fill(ctx, j.account.LastName); err != nil {
		return Result{}, err
	}
	if j.account.School != "" {
		if err := j.profile.School.Fill(ctx, j.account.School); err != nil {
			return Result{}, err
		}
	}

	// Every reviewed role provides contact details; only instructors
	// get the teaching-verification inputs on top.
	if j.account.Role.NeedsReview() {
		if err := j.profile.Phone.Fill(ctx, j.account.Phone); err != nil {
			return Result{}, err
		}
		if err := j.profile.Webpage.Fill(ctx, j.account.Webpage); err != nil {
			return Result{}, err
		}
	}
	if j.account.Role.HasVerificationFields() {
		if err := j.profile.Students.Fill(ctx, strconv.Itoa(j.account.Students)); err != nil {
			return Result{}, err
		}
		if j.account.Usage != "" {
			if err := j.profile.SelectUsage(ctx, j.account.Usage); err != nil {
				return Result{}, err
			}
		}
	}

	if j.account.Role.HasVerificationFields() && len(j.subjects) > 0 {
		return NextStep(StateSubjectSelection), nil
	}
	return NextStep(StateTermsAndNewsletter), nil
}

func (j *Journey) stepSubjectSelection(ctx context.Context) (Result, error) {
	// j.subjects is already clamped to the catalog with duplicates
	// dropped; every remaining name must land.
	for _, name := range j.subjects {
		if err := j.profile.SelectSubject(ctx, name); err != nil {
			return Result{}, fmt.Errorf("could not select subject %q: %w", name, err)
		}
	}
	return NextStep(StateTermsAndNewsletter), nil
}

func (j *Journey) stepTermsAndNewsletter(ctx context.Context) (Result, error) {
	// The newsletter box ships pre-checked, so the policy is fixed:
	// declining means exactly one toggle, accepting means none.
	if !j.account.Newsletter {
		if err := j.profile.Newsletter.Toggle(ctx); err != nil {
			return Result{}, err
		}
	}
	if !j.cfg.EmbeddedProduct {
		if err := j.profile.Terms.Toggle(ctx); err != nil {
			return Result{}, err
		}
	}

	before, err := j.drv.Location(ctx)
	if err != nil {
		return Result{}, err
	}
	if err := j.profile.Next(ctx); err != nil {
		return Result{}, err
	}

	_, advanced, err := j.locationAdvanced(ctx, before)
	if err != nil {
		return Result{}, err
	}
	if !advanced {
		return Rejected(j.rejectionMessage(ctx, j.profile, j.profile.FirstName, j.profile.LastName, j.profile.School)), nil
	}
	return NextStep(StateSubmissionConfirmation), nil
}

func (j *Journey) stepSubmissionConfirmation(ctx context.Context) (Result, error) {
	if !j.account.Role.NeedsReview() {
		return NextStep(StateDone), nil
	}

	// Reviewed roles see the confirmation-email notice and continue
	// into the access request.
	if err := j.completion.AcknowledgeEmailNotice(ctx); err != nil {
		return Result{}, err
	}
	if err := j.completion.Next(ctx); err != nil {
		return Result{}, err
	}
	return EscalatedTo(StateInstructorAccessReview), nil
}

func (j *Journey) stepInstructorAccessReview(ctx context.Context) (Result, error) {
	if err := j.access.WaitLoaded(ctx); err != nil {
		return Result{}, fmt.Errorf("access request form did not load: %w", err)
	}
	if err := j.access.Phone.Fill(ctx, j.account.Phone); err != nil {
		return Result{}, err
	}
	if err := j.access.Students.Fill(ctx, strconv.Itoa(j.account.Students)); err != nil {
		return Result{}, err
	}
	if err := j.access.Webpage.Fill(ctx, j.account.Webpage); err != nil {
		return Result{}, err
	}
	if j.account.Usage != "" {
		if err := j.access.SelectUsage(ctx, j.account.Usage); err != nil {
			return Result{}, err
		}
	}
	if err := j.access.Next(ctx); err != nil {
		return Result{}, err
	}
	return NextStep(StateDone), nil
}

// finish verifies the journey landed where it was pointed.
func (j *Journey) finish(ctx context.Context) error {
	expected := j.cfg.Destination
	if expected == "" {
		expected = "profile"
	}

	waitCtx, cancel := context.WithTimeout(ctx, j.cfg.StepTimeout)
	defer cancel()
	err := j.drv.WaitLocation(waitCtx, func(u string) bool {
		return strings.Contains(u, expected)
	})
	if err == nil {
		if expected == "profile" {
			loggedIn, lerr := j.landing.LoggedIn(ctx)
			if lerr != nil {
				return lerr
			}
			if !loggedIn {
				return fmt.Errorf("journey reached the profile page without a session")
			}
		}
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	actual, lerr := j.drv.Location(ctx)
	if lerr != nil {
		actual = "unknown"
	}
	return &TimeoutError{Expected: expected, Actual: actual}
}

// -- Helpers --

func (j *Journey) accountsHost() string {
	u, err := url.Parse(j.cfg.BaseURL)
	if err != nil || u.Host == "" {
		return j.cfg.BaseURL
	}
	return u.Host
}

// locationAdvanced waits for the URL to move off `before`. A timeout
// is not an error here; it is how rejected submits look.
func (j *Journey) locationAdvanced(ctx context.Context, before string) (string, bool, error) {
	waitCtx, cancel := context.WithTimeout(ctx, j.cfg.StepTimeout)
	defer cancel()

	err := j.drv.WaitLocation(waitCtx, func(u string) bool { return u != before })
	if err != nil {
		if ctx.Err() != nil {
			return "", false, ctx.Err()
		}
		return before, false, nil
	}
	loc, lerr := j.drv.Location(ctx)
	if lerr != nil {
		return "", false, lerr
	}
	return loc, true, nil
}

// bannerPage is the slice of a page the rejection reader needs.
type bannerPage interface {
	ErrorBanner(ctx context.Context) (string, error)
}

// rejectionMessage collects what the submitted page says went wrong:
// its banner first, then the fields' inline messages.
func (j *Journey) rejectionMessage(ctx context.Context, pg bannerPage, fields ...pages.TextField) string {
	var parts []string
	if banner, err := pg.ErrorBanner(ctx); err == nil && banner != "" {
		parts = append(parts, banner)
	}
	for _, f := range fields {
		if msg, err := f.InlineError(ctx); err == nil && msg != "" {
			parts = append(parts, msg)
		}
	}
	if len(parts) == 0 {
		return "submission did not advance and no message was shown"
	}
	return strings.Join(parts, "; ")
}
