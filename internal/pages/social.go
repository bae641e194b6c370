// internal/pages/social.go
package pages

import (
	"context"
	"fmt"

	"github.com/ocqa/journey-cli/internal/stabilize"
)

// IdentityProvider drives the external login form of a social
// provider. The provider pages differ only in selectors, so one region
// with a per-provider selector set covers both.
type IdentityProvider struct {
	st       *stabilize.Stabilizer
	Name     string
	Email    TextField
	Password TextField
	signIn   string
}

// Provider selector sets. The external pages change rarely but
// independently of the accounts service.
var providerSelectors = map[string]struct {
	email, password, signIn string
}{
	"facebook": {email: "#email", password: "#pass", signIn: `[name=login]`},
	"google":   {email: "#identifierId", password: `[name=Passwd]`, signIn: "#passwordNext"},
}

// NewIdentityProvider binds the login region for a known provider.
func NewIdentityProvider(st *stabilize.Stabilizer, name string) (*IdentityProvider, error) {
	sel, ok := providerSelectors[name]
	if !ok {
		return nil, fmt.Errorf("unknown identity provider %q", name)
	}
	return &IdentityProvider{
		st:       st,
		Name:     name,
		Email:    NewTextField(st, sel.email),
		Password: NewTextField(st, sel.password),
		signIn:   sel.signIn,
	}, nil
}

// SignIn fills the provider's credential form and submits it. The
// caller waits for the redirect back to the accounts domain.
func (p *IdentityProvider) SignIn(ctx context.Context, email, password string) error {
	if err := p.st.Driver().WaitVisible(ctx, p.Email.Selector); err != nil {
		return fmt.Errorf("%s login form did not appear: %w", p.Name, err)
	}
	if err := p.Email.Fill(ctx, email); err != nil {
		return err
	}
	if err := p.Password.Fill(ctx, password); err != nil {
		return err
	}
	return p.st.Click(ctx, p.signIn)
}
