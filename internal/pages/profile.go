// internal/pages/profile.go
package pages

import (
	"context"
	"strings"

	"github.com/ocqa/journey-cli/internal/stabilize"
)

// Profile is the signed-in account page journeys land on by default.
type Profile struct {
	Page
}

// NewProfile binds the profile page.
func NewProfile(st *stabilize.Stabilizer, baseURL string) *Profile {
	return &Profile{Page: NewPage(st, baseURL, "/profile")}
}

const profileName = ".name"

// WaitLoaded blocks until the name block renders.
func (p *Profile) WaitLoaded(ctx context.Context) error {
	return p.Page.WaitLoaded(ctx, profileName)
}

// LoggedIn reports whether the browser holds a session, judged the
// way the pages themselves do: by where the URL ended up.
func (p *Profile) LoggedIn(ctx context.Context) (bool, error) {
	loc, err := p.Location(ctx)
	if err != nil {
		return false, err
	}
	return !strings.Contains(loc, "login") && !strings.Contains(loc, "logout"), nil
}
