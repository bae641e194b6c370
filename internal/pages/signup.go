// internal/pages/signup.go
package pages

import (
	"context"
	"fmt"

	"github.com/ocqa/journey-cli/internal/stabilize"
)

// RoleEmail is the signup entry form: who you are and how to reach you.
type RoleEmail struct {
	Page
	Email TextField
}

// NewRoleEmail binds the entry form.
func NewRoleEmail(st *stabilize.Stabilizer, baseURL string) *RoleEmail {
	return &RoleEmail{
		Page:  NewPage(st, baseURL, "/signup"),
		Email: NewTextField(st, "#signup_email"),
	}
}

const roleSelect = "#signup_role"

// WaitLoaded blocks until the email field renders.
func (p *RoleEmail) WaitLoaded(ctx context.Context) error {
	return p.Page.WaitLoaded(ctx, p.Email.Selector)
}

// SelectRole picks the account role by its display name.
func (p *RoleEmail) SelectRole(ctx context.Context, role string) error {
	return p.st.Driver().SelectOption(ctx, roleSelect, role)
}

// PinVerification is the email confirmation form.
type PinVerification struct {
	Page
	Pin TextField
}

// NewPinVerification binds the confirmation form.
func NewPinVerification(st *stabilize.Stabilizer, baseURL string) *PinVerification {
	return &PinVerification{
		Page: NewPage(st, baseURL, "/verify_email"),
		Pin:  NewTextField(st, "#pin_pin"),
	}
}

const pinErrorBanner = ".alert.alert-danger"

// WaitLoaded blocks until the PIN field renders.
func (p *PinVerification) WaitLoaded(ctx context.Context) error {
	return p.Page.WaitLoaded(ctx, p.Pin.Selector)
}

// RejectionShown reports whether the wrong-PIN banner is up.
func (p *PinVerification) RejectionShown(ctx context.Context) (bool, error) {
	return p.st.Driver().Visible(ctx, pinErrorBanner)
}

// SetPassword is the credential form, shared with the social-login
// branch point.
type SetPassword struct {
	Page
	Password     TextField
	Confirmation TextField
}

// NewSetPassword binds the credential form.
func NewSetPassword(st *stabilize.Stabilizer, baseURL string) *SetPassword {
	return &SetPassword{
		Page:         NewPage(st, baseURL, "/password"),
		Password:     NewTextField(st, "#signup_password"),
		Confirmation: NewTextField(st, "#signup_password_confirmation"),
	}
}

// WaitLoaded blocks until the password field renders.
func (p *SetPassword) WaitLoaded(ctx context.Context) error {
	return p.Page.WaitLoaded(ctx, p.Password.Selector)
}

// UseProvider leaves for the named identity provider instead of
// setting a password.
func (p *SetPassword) UseProvider(ctx context.Context, provider string) error {
	return p.st.Click(ctx, fmt.Sprintf(`[href*=%q]`, provider))
}

// ProfileDetails is the personal-information form. Instructors get the
// extra verification fields; the page shows them only for roles that
// need review.
type ProfileDetails struct {
	Page
	FirstName TextField
	LastName  TextField
	School    TextField

	Phone    TextField
	Students TextField
	Webpage  TextField

	Newsletter Checkbox
	Terms      Checkbox
}

// NewProfileDetails binds the profile form.
func NewProfileDetails(st *stabilize.Stabilizer, baseURL string) *ProfileDetails {
	return &ProfileDetails{
		Page:       NewPage(st, baseURL, "/profile_form"),
		FirstName:  NewTextField(st, "#profile_first_name"),
		LastName:   NewTextField(st, "#profile_last_name"),
		School:     NewTextField(st, "#profile_school"),
		Phone:      NewTextField(st, "#profile_phone_number"),
		Students:   NewTextField(st, "#profile_num_students"),
		Webpage:    NewTextField(st, "#profile_url"),
		Newsletter: NewCheckbox(st, "#profile_newsletter"),
		Terms:      NewCheckbox(st, "#profile_i_agree"),
	}
}

const (
	usingSelect      = "#profile_using_openstax"
	subjectContainer = ".subject"
)

// WaitLoaded blocks until the first name field renders.
func (p *ProfileDetails) WaitLoaded(ctx context.Context) error {
	return p.Page.WaitLoaded(ctx, p.FirstName.Selector)
}

// SelectUsage picks the how-are-you-using answer by display text.
func (p *ProfileDetails) SelectUsage(ctx context.Context, usage string) error {
	return p.st.Driver().SelectOption(ctx, usingSelect, usage)
}

// SelectSubject checks the catalog subject with the given display
// name. The checkboxes carry no ids; they are addressed by label.
func (p *ProfileDetails) SelectSubject(ctx context.Context, name string) error {
	return p.st.Driver().ClickLabeled(ctx, subjectContainer, name)
}

// Completion is the signup-finished notice.
type Completion struct {
	Page
}

// NewCompletion binds the notice page.
func NewCompletion(st *stabilize.Stabilizer, baseURL string) *Completion {
	return &Completion{Page: NewPage(st, baseURL, "/done")}
}

const confirmationCheckbox = `[type=checkbox]`

// AcknowledgeEmailNotice checks the confirmation-email notice shown to
// roles that entered the review queue.
func (p *Completion) AcknowledgeEmailNotice(ctx context.Context) error {
	return p.st.Click(ctx, confirmationCheckbox)
}

// InstructorAccess is the post-signup review request form.
type InstructorAccess struct {
	Page
	Phone    TextField
	Students TextField
	Webpage  TextField
}

// NewInstructorAccess binds the review request form.
func NewInstructorAccess(st *stabilize.Stabilizer, baseURL string) *InstructorAccess {
	return &InstructorAccess{
		Page:     NewPage(st, baseURL, "/apply"),
		Phone:    NewTextField(st, "#apply_phone_number"),
		Students: NewTextField(st, "#apply_num_students"),
		Webpage:  NewTextField(st, "#apply_url"),
	}
}

const applyUsingSelect = "#apply_using_openstax"

// WaitLoaded blocks until the phone field renders.
func (p *InstructorAccess) WaitLoaded(ctx context.Context) error {
	return p.Page.WaitLoaded(ctx, p.Phone.Selector)
}

// SelectUsage picks the usage answer on the review form.
func (p *InstructorAccess) SelectUsage(ctx context.Context, usage string) error {
	return p.st.Driver().SelectOption(ctx, applyUsingSelect, usage)
}
