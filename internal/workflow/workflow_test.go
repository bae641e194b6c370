// internal/workflow/workflow_test.go
package workflow

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ocqa/journey-cli/api/schemas"
	"github.com/ocqa/journey-cli/internal/stabilize"
)

const accountsBase = "https://accounts.test"

// fakeDriver is an in-memory Driver backed by a scripted accounts
// service. Submitting the shared submit control hands control to the
// service, which validates the recorded field values and moves the
// location the way the real pages do.
type fakeDriver struct {
	loc     string
	visible map[string]bool
	values  map[string]string
	texts   map[string]string
	selects map[string]string
	clicks  map[string]int
	labeled []string

	service    *fakeService
	clickHooks map[string]func()
}

func newFakeDriver() *fakeDriver {
	d := &fakeDriver{
		visible:    map[string]bool{`[type=submit]`: true},
		values:     map[string]string{},
		texts:      map[string]string{},
		selects:    map[string]string{},
		clicks:     map[string]int{},
		clickHooks: map[string]func(){},
	}
	d.service = &fakeService{d: d, correctPIN: "123456", finalPath: "/profile"}
	return d
}

func (d *fakeDriver) Navigate(ctx context.Context, url string) error {
	d.loc = url
	if strings.HasSuffix(url, "/signup") {
		d.visible["#signup_email"] = true
	}
	return nil
}

func (d *fakeDriver) Location(ctx context.Context) (string, error) { return d.loc, nil }

func (d *fakeDriver) Click(ctx context.Context, sel string) error {
	d.clicks[sel]++
	if hook, ok := d.clickHooks[sel]; ok {
		hook()
		return nil
	}
	if sel == `[type=submit]` {
		d.service.submit()
	}
	return nil
}

func (d *fakeDriver) DispatchClick(ctx context.Context, sel string) error {
	return d.Click(ctx, sel)
}

func (d *fakeDriver) SendKeys(ctx context.Context, sel, text string) error {
	d.values[sel] += text
	return nil
}

func (d *fakeDriver) PressKey(ctx context.Context, sel, key string) error {
	if v := d.values[sel]; len(v) > 0 {
		d.values[sel] = v[:len(v)-1]
	}
	return nil
}

func (d *fakeDriver) SelectAll(ctx context.Context, sel string) error { return nil }

func (d *fakeDriver) ClearNative(ctx context.Context, sel string) error {
	d.values[sel] = ""
	return nil
}

func (d *fakeDriver) SelectOption(ctx context.Context, sel, option string) error {
	d.selects[sel] = option
	return nil
}

func (d *fakeDriver) ClickLabeled(ctx context.Context, sel, label string) error {
	d.labeled = append(d.labeled, label)
	return nil
}

func (d *fakeDriver) Value(ctx context.Context, sel string) (string, error) {
	return d.values[sel], nil
}

func (d *fakeDriver) Text(ctx context.Context, sel string) (string, error) {
	return d.texts[sel], nil
}

func (d *fakeDriver) Attribute(ctx context.Context, sel, name string) (string, bool, error) {
	return "", false, nil
}

func (d *fakeDriver) Visible(ctx context.Context, sel string) (bool, error) {
	return d.visible[sel], nil
}

func (d *fakeDriver) ScrollIntoView(ctx context.Context, sel string) error { return nil }
func (d *fakeDriver) ScrollBy(ctx context.Context, x, y int) error         { return nil }

func (d *fakeDriver) WaitVisible(ctx context.Context, sel string) error {
	if d.visible[sel] {
		return nil
	}
	return schemas.ErrElementNotFound
}

func (d *fakeDriver) WaitClickable(ctx context.Context, sel string) error {
	return d.WaitVisible(ctx, sel)
}

func (d *fakeDriver) WaitLocation(ctx context.Context, match func(string) bool) error {
	for {
		if match(d.loc) {
			return nil
		}
		select {
		case <-time.After(time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (d *fakeDriver) Evaluate(ctx context.Context, script string, out any) error { return nil }
func (d *fakeDriver) Flavor() schemas.Flavor                                     { return schemas.FlavorChrome }

var _ schemas.Driver = (*fakeDriver)(nil)

// fakeService is the accounts backend the fake driver submits to.
type fakeService struct {
	d *fakeDriver

	correctPIN  string
	reviewQueue bool
	finalPath   string

	confirmed     bool
	signupSubmits int
	pinSubmits    int
}

func (s *fakeService) at(path string) bool {
	return s.d.loc == accountsBase+path
}

func (s *fakeService) goTo(path string) {
	s.d.loc = accountsBase + path
}

func (s *fakeService) submit() {
	d := s.d
	switch {
	case s.at("/signup"):
		s.signupSubmits++
		if !strings.Contains(d.values["#signup_email"], "@") {
			d.visible[".alert"] = true
			d.texts[".alert"] = "Email address is invalid"
			return
		}
		if s.reviewQueue && !SchoolEmail(d.values["#signup_email"]) && !s.confirmed {
			// First submit raises the non-school-address confirmation.
			s.confirmed = true
			return
		}
		s.goTo("/verify_email")
		d.visible["#pin_pin"] = true

	case s.at("/verify_email"):
		s.pinSubmits++
		if d.values["#pin_pin"] == s.correctPIN {
			d.visible[".alert.alert-danger"] = false
			s.goTo("/password")
			d.visible["#signup_password"] = true
			return
		}
		d.visible[".alert.alert-danger"] = true

	case s.at("/password"):
		pw := d.values["#signup_password"]
		if len(pw) < 8 || pw != d.values["#signup_password_confirmation"] {
			sel := "#signup_password ~ .errors .invalid-message"
			d.visible[sel] = true
			d.texts[sel] = "Password is too short (minimum is 8 characters)"
			return
		}
		s.goTo("/profile_form")
		d.visible["#profile_first_name"] = true

	case s.at("/profile_form"):
		if d.values["#profile_first_name"] == "" {
			d.visible[".alert"] = true
			d.texts[".alert"] = "First name can't be blank"
			return
		}
		if s.reviewQueue {
			s.goTo("/done")
			d.visible[`[type=checkbox]`] = true
			return
		}
		s.goTo(s.finalPath)

	case s.at("/done"):
		s.goTo("/apply")
		d.visible["#apply_phone_number"] = true

	case s.at("/apply"):
		s.goTo(s.finalPath)
	}
}

// scriptedPins simulates a mailbox that grows over time: each fetch
// returns the newest code so far.
type scriptedPins struct {
	codes []string
	calls int
}

func (p *scriptedPins) LatestPIN(ctx context.Context) (string, error) {
	i := p.calls
	if i >= len(p.codes) {
		i = len(p.codes) - 1
	}
	p.calls++
	return p.codes[i], nil
}

func fastStabilizer(d schemas.Driver) *stabilize.Stabilizer {
	return stabilize.New(d, zap.NewNop(), stabilize.Options{
		Settle:         time.Millisecond,
		RetryPause:     time.Millisecond,
		ReadyInterval:  time.Millisecond,
		ReadyTimeout:   50 * time.Millisecond,
		OverlayTimeout: 50 * time.Millisecond,
	})
}

func fastConfig() Config {
	return Config{
		BaseURL:      accountsBase,
		StepTimeout:  50 * time.Millisecond,
		PollInterval: 2 * time.Millisecond,
	}
}

func studentAccount() *Account {
	return &Account{
		FirstName: "Ana",
		LastName:  "Lee",
		Email:     "ana.lee.af31@restmail.net",
		Password:  "Sn0wLeopard!",
		Role:      RoleStudent,
	}
}

func instructorAccount() *Account {
	return &Account{
		FirstName: "Raj",
		LastName:  "Mehta",
		Email:     "raj.mehta.b202@restmail.net",
		Password:  "Gr4niteRidge!",
		Role:      RoleInstructor,
		School:    "Rice University",
		Phone:     "7135551234",
		Students:  40,
		Webpage:   "https://www.example.edu/faculty/rmehta",
		Usage:     UsageInterested,
		Subjects:  []string{"Biology", "Calculus", "NotACatalogEntry"},
	}
}

func runJourney(t *testing.T, d *fakeDriver, acct *Account, cfg Config, pins PINSource) (*Journey, error) {
	t.Helper()
	if pins == nil {
		pins = &scriptedPins{codes: []string{d.service.correctPIN}}
	}
	j := New(fastStabilizer(d), pins, acct, cfg, zap.NewNop())
	return j, j.Run(context.Background())
}

func TestStudentHappyPath(t *testing.T) {
	d := newFakeDriver()
	acct := studentAccount()
	acct.Newsletter = false

	j, err := runJourney(t, d, acct, fastConfig(), nil)
	require.NoError(t, err)

	// States are visited in graph order, with the optional branches
	// skipped for students.
	wantTrail := []State{
		StateRoleAndEmail,
		StatePinVerification,
		StatePasswordOrSocial,
		StateProfileDetails,
		StateTermsAndNewsletter,
		StateSubmissionConfirmation,
		StateDone,
	}
	if diff := cmp.Diff(wantTrail, j.Trail()); diff != "" {
		t.Errorf("state trail mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, "Student", d.selects["#signup_role"])
	assert.Equal(t, "Sn0wLeopard!", d.values["#signup_password"])
	assert.Contains(t, d.loc, "/profile")
	// Declining news means exactly one toggle of the pre-checked box.
	assert.Equal(t, 1, d.clicks["#profile_newsletter"])
	assert.Equal(t, 1, d.clicks["#profile_i_agree"])
}

func TestInstructorJourney(t *testing.T) {
	d := newFakeDriver()
	d.service.reviewQueue = true
	acct := instructorAccount()

	j, err := runJourney(t, d, acct, fastConfig(), nil)
	require.NoError(t, err)

	trail := j.Trail()
	assert.Contains(t, trail, StateSubjectSelection)
	assert.Contains(t, trail, StateInstructorAccessReview)

	// Unknown catalog entries are dropped, known ones land once.
	assert.Equal(t, []string{"Biology", "Calculus"}, d.labeled)
	assert.Equal(t, "40", d.values["#profile_num_students"])
	assert.Equal(t, "Rice University", d.values["#profile_school"])
	assert.Equal(t, UsageInterested, d.selects["#profile_using_openstax"])

	// Non-school address: the entry form needed the extra confirm.
	assert.Equal(t, 2, d.service.signupSubmits)
	assert.Contains(t, d.loc, "/profile")
}

func TestAdministratorProfileFields(t *testing.T) {
	d := newFakeDriver()
	d.service.reviewQueue = true
	acct := &Account{
		FirstName: "Dana",
		LastName:  "Okafor",
		Email:     "dana.okafor.c915@restmail.net",
		Password:  "M4pleSummit!",
		Role:      RoleAdministrator,
		School:    "Rice University",
		Phone:     "7135551234",
		Webpage:   "https://www.example.edu/staff/dokafor",
		Subjects:  []string{"Biology"},
	}

	j, err := runJourney(t, d, acct, fastConfig(), nil)
	require.NoError(t, err)

	// Every reviewed role provides contact details on the profile form.
	assert.Equal(t, "7135551234", d.values["#profile_phone_number"])
	assert.Equal(t, "https://www.example.edu/staff/dokafor", d.values["#profile_url"])

	// The teaching-verification inputs stay instructor-only.
	assert.Empty(t, d.values["#profile_num_students"])
	assert.Empty(t, d.selects["#profile_using_openstax"])
	assert.Empty(t, d.labeled)
	assert.NotContains(t, j.Trail(), StateSubjectSelection)

	// Administrators still route through the review branch.
	assert.Contains(t, j.Trail(), StateInstructorAccessReview)
	assert.Contains(t, d.loc, "/profile")
}

func TestSchoolEmailSkipsConfirmation(t *testing.T) {
	d := newFakeDriver()
	d.service.reviewQueue = true
	acct := instructorAccount()
	acct.Email = "raj.mehta@rice.edu"

	_, err := runJourney(t, d, acct, fastConfig(), nil)
	require.NoError(t, err)

	// A school address goes straight to verification, no extra confirm.
	assert.Equal(t, 1, d.service.signupSubmits)
	assert.Contains(t, d.loc, "/profile")
}

func TestEmailEntryRejection(t *testing.T) {
	t.Run("student", func(t *testing.T) {
		d := newFakeDriver()
		acct := studentAccount()
		acct.Email = "not-an-address"

		_, err := runJourney(t, d, acct, fastConfig(), nil)
		require.Error(t, err)

		var verr *ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, StateRoleAndEmail, verr.State)
		assert.Contains(t, verr.Message, "invalid")
	})

	t.Run("rejected reviewed role never confirms past the error", func(t *testing.T) {
		d := newFakeDriver()
		d.service.reviewQueue = true
		acct := instructorAccount()
		acct.Email = "not-an-address"

		_, err := runJourney(t, d, acct, fastConfig(), nil)
		require.Error(t, err)

		var verr *ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, StateRoleAndEmail, verr.State)
		assert.Contains(t, verr.Message, "invalid")
		// The errored form was not submitted a second time.
		assert.Equal(t, 1, d.service.signupSubmits)
	})
}

func TestPinRetryUsesNewestCode(t *testing.T) {
	d := newFakeDriver()
	d.service.correctPIN = "333333"

	// The mailbox grows as PINs are re-sent; only the third fetch
	// carries the valid code.
	pins := &scriptedPins{codes: []string{"111111", "222222", "333333"}}
	_, err := runJourney(t, d, studentAccount(), fastConfig(), pins)
	require.NoError(t, err)

	assert.Equal(t, 3, d.service.pinSubmits)
	assert.Equal(t, 3, pins.calls)
}

func TestPinVerificationExhausted(t *testing.T) {
	d := newFakeDriver()
	d.service.correctPIN = "999999"

	pins := &scriptedPins{codes: []string{"111111"}}
	cfg := fastConfig()
	cfg.PinAttempts = 5

	_, err := runJourney(t, d, studentAccount(), cfg, pins)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrVerificationExhausted)
	// The bound is honored exactly.
	assert.Equal(t, 5, d.service.pinSubmits)
}

func TestNewsletterFixedPolicy(t *testing.T) {
	t.Run("accepting news never touches the box", func(t *testing.T) {
		d := newFakeDriver()
		acct := studentAccount()
		acct.Newsletter = true

		_, err := runJourney(t, d, acct, fastConfig(), nil)
		require.NoError(t, err)
		assert.Equal(t, 0, d.clicks["#profile_newsletter"])
	})

	t.Run("declining news toggles exactly once", func(t *testing.T) {
		d := newFakeDriver()
		acct := studentAccount()
		acct.Newsletter = false

		_, err := runJourney(t, d, acct, fastConfig(), nil)
		require.NoError(t, err)
		assert.Equal(t, 1, d.clicks["#profile_newsletter"])
	})
}

func TestValidationRejection(t *testing.T) {
	d := newFakeDriver()
	acct := studentAccount()
	acct.Password = "abc"

	_, err := runJourney(t, d, acct, fastConfig(), nil)
	require.Error(t, err)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, StatePasswordOrSocial, verr.State)
	assert.Contains(t, verr.Message, "too short")
}

func TestDestinationTimeout(t *testing.T) {
	d := newFakeDriver()
	cfg := fastConfig()
	cfg.Destination = "dashboard"

	_, err := runJourney(t, d, studentAccount(), cfg, nil)
	require.Error(t, err)

	var terr *TimeoutError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, "dashboard", terr.Expected)
	assert.Contains(t, terr.Actual, "/profile")
}

func TestSocialProviderBranch(t *testing.T) {
	d := newFakeDriver()
	acct := studentAccount()
	acct.Password = ""
	acct.Provider = "facebook"
	acct.ProviderEmail = "ana.lee.af31@restmail.net"
	acct.ProviderPassword = "Sn0wLeopard!"

	d.clickHooks[`[href*="facebook"]`] = func() {
		d.loc = "https://facebook.test/login"
		d.visible["#email"] = true
		d.visible["#pass"] = true
		d.visible[`[name=login]`] = true
	}
	d.clickHooks[`[name=login]`] = func() {
		d.loc = accountsBase + "/profile_form"
		d.visible["#profile_first_name"] = true
	}

	j, err := runJourney(t, d, acct, fastConfig(), nil)
	require.NoError(t, err)

	assert.Contains(t, j.Trail(), StatePasswordOrSocial)
	assert.Equal(t, "ana.lee.af31@restmail.net", d.values["#email"])
	// The password form was never filled.
	assert.Empty(t, d.values["#signup_password"])
	assert.Contains(t, d.loc, "/profile")
}

func TestEmbeddedProductContext(t *testing.T) {
	d := newFakeDriver()
	cfg := fastConfig()
	cfg.EmbeddedProduct = true

	_, err := runJourney(t, d, studentAccount(), cfg, nil)
	require.NoError(t, err)

	// No role selector and no terms box in the embedded flow.
	assert.Empty(t, d.selects["#signup_role"])
	assert.Equal(t, 0, d.clicks["#profile_i_agree"])
}

func TestAccountValidation(t *testing.T) {
	d := newFakeDriver()

	t.Run("missing email", func(t *testing.T) {
		acct := studentAccount()
		acct.Email = ""
		_, err := runJourney(t, d, acct, fastConfig(), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no email")
	})

	t.Run("no credential path", func(t *testing.T) {
		acct := studentAccount()
		acct.Password = ""
		_, err := runJourney(t, d, acct, fastConfig(), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "neither a password nor a social provider")
	})
}
