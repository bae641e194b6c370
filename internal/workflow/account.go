// internal/workflow/account.go
package workflow

import (
	"strings"

	"github.com/google/uuid"
)

// Usage-intent answers as the profile form renders them.
const (
	UsageAdopted    = "Confirmed Adoption Won"
	UsageInterested = "Interested in adopting OpenStax"
	UsageNotUsing   = "Not using OpenStax"
)

// Account is the draft identity a journey creates. Required fields
// depend on the role; Validate in the journey surfaces gaps before the
// browser does.
type Account struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
	Role      Role

	School   string
	Phone    string
	Students int
	Webpage  string
	Usage    string

	// Subjects are display names; unknown ones are dropped against
	// the catalog at selection time.
	Subjects []string

	// Newsletter is the user's wish. The form ships with the box
	// pre-checked, so declining means toggling it off.
	Newsletter bool

	// Provider switches the credential step to a social login.
	Provider         string
	ProviderEmail    string
	ProviderPassword string
}

// NewTag mints a short unique suffix for names and addresses so
// repeated runs never collide on an existing account.
func NewTag() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
}

// SchoolEmail reports whether the address belongs to an educational
// domain, which skips the extra non-school confirmation.
func SchoolEmail(email string) bool {
	at := strings.LastIndexByte(email, '@')
	if at < 0 {
		return false
	}
	return strings.HasSuffix(strings.ToLower(email[at+1:]), ".edu")
}
