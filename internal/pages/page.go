// internal/pages/page.go

// Package pages models the web pages and regions the journeys drive.
// Pages are flat compositions: a shared Page core plus named field
// regions, with behavior delegated to the interaction stabilizer.
// There is no inheritance chain; a page owns exactly the regions it
// shows.
package pages

import (
	"context"
	"fmt"
	"strings"

	"github.com/ocqa/journey-cli/internal/stabilize"
)

// Submit is the shared submit control on the accounts forms.
const Submit = `[type=submit]`

// errorBanner is the page-level error strip shown on rejected submits.
const errorBanner = `.alert`

// Page is the shared core every page object embeds.
type Page struct {
	st      *stabilize.Stabilizer
	baseURL string
	path    string
}

// NewPage builds a page rooted at baseURL+path.
func NewPage(st *stabilize.Stabilizer, baseURL, path string) Page {
	return Page{st: st, baseURL: strings.TrimRight(baseURL, "/"), path: path}
}

// URL returns the page's full address.
func (p Page) URL() string { return p.baseURL + p.path }

// Open navigates to the page.
func (p Page) Open(ctx context.Context) error {
	return p.st.Driver().Navigate(ctx, p.URL())
}

// Location returns the browser's current URL.
func (p Page) Location(ctx context.Context) (string, error) {
	return p.st.Driver().Location(ctx)
}

// WaitLoaded blocks until the page's marker element is displayed.
func (p Page) WaitLoaded(ctx context.Context, marker string) error {
	return p.st.Driver().WaitVisible(ctx, marker)
}

// Next submits the current form.
func (p Page) Next(ctx context.Context) error {
	return p.st.Click(ctx, Submit)
}

// ErrorBanner returns the visible page-level error text, empty when
// none is shown.
func (p Page) ErrorBanner(ctx context.Context) (string, error) {
	visible, err := p.st.Driver().Visible(ctx, errorBanner)
	if err != nil || !visible {
		return "", err
	}
	return p.st.Driver().Text(ctx, errorBanner)
}

// TextField is a labeled input plus its derived inline-error region.
type TextField struct {
	st       *stabilize.Stabilizer
	Selector string
}

// NewTextField binds a field region.
func NewTextField(st *stabilize.Stabilizer, selector string) TextField {
	return TextField{st: st, Selector: selector}
}

// Fill clears the field and types the value.
func (f TextField) Fill(ctx context.Context, value string) error {
	if err := f.st.ClearField(ctx, f.Selector); err != nil {
		return err
	}
	return f.st.Driver().SendKeys(ctx, f.Selector, value)
}

// Value returns the field's current content.
func (f TextField) Value(ctx context.Context) (string, error) {
	return f.st.Driver().Value(ctx, f.Selector)
}

// InlineError returns the field's validation message, empty when the
// field is accepted. The accounts forms render it as a sibling region.
func (f TextField) InlineError(ctx context.Context) (string, error) {
	sel := fmt.Sprintf("%s ~ .errors .invalid-message", f.Selector)
	visible, err := f.st.Driver().Visible(ctx, sel)
	if err != nil || !visible {
		return "", err
	}
	return f.st.Driver().Text(ctx, sel)
}

// Checkbox is a toggleable input region.
type Checkbox struct {
	st       *stabilize.Stabilizer
	Selector string
}

// NewCheckbox binds a checkbox region.
func NewCheckbox(st *stabilize.Stabilizer, selector string) Checkbox {
	return Checkbox{st: st, Selector: selector}
}

// Toggle flips the checkbox once.
func (c Checkbox) Toggle(ctx context.Context) error {
	return c.st.Click(ctx, c.Selector)
}
