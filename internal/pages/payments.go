// internal/pages/payments.go
package pages

import (
	"context"
	"strings"

	"github.com/ocqa/journey-cli/internal/stabilize"
)

// Payments is the payment-management console reached from a verified
// account. Journeys only touch its shell: load it, confirm the session
// carried over, and leave through the nav.
type Payments struct {
	Page
	Nav PaymentsNav
}

// NewPayments binds the console shell.
func NewPayments(st *stabilize.Stabilizer, baseURL string) *Payments {
	return &Payments{
		Page: NewPage(st, baseURL, "/admin"),
		Nav:  PaymentsNav{st: st},
	}
}

const paymentsHeader = "#header"

// WaitLoaded blocks until the console header renders.
func (p *Payments) WaitLoaded(ctx context.Context) error {
	return p.Page.WaitLoaded(ctx, paymentsHeader)
}

// LoggedIn reports whether the console accepted the session rather
// than bouncing to the login form.
func (p *Payments) LoggedIn(ctx context.Context) (bool, error) {
	loc, err := p.Location(ctx)
	if err != nil {
		return false, err
	}
	return !strings.Contains(loc, "login") && !strings.Contains(loc, "logout"), nil
}

// PaymentsNav is the console's top navigation region.
type PaymentsNav struct {
	st *stabilize.Stabilizer
}

const (
	navLogo     = "#site-name a"
	navViewSite = ".view-site a"
	navLogOut   = `[href$=logout]`
)

// Home follows the console logo.
func (n PaymentsNav) Home(ctx context.Context) error {
	return n.st.Click(ctx, navLogo)
}

// ViewSite follows the link back to the public site.
func (n PaymentsNav) ViewSite(ctx context.Context) error {
	return n.st.Click(ctx, navViewSite)
}

// LogOut ends the console session.
func (n PaymentsNav) LogOut(ctx context.Context) error {
	return n.st.Click(ctx, navLogOut)
}
