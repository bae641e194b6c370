package schemas

import (
	"context"
)

// Flavor classifies the browser backend by its interaction semantics.
// Strategy selection (clearing fields, synthetic clicks) keys off this,
// not off the raw backend name.
type Flavor string

const (
	FlavorChrome  Flavor = "chrome"
	FlavorFirefox Flavor = "firefox"
	FlavorSafari  Flavor = "safari"
	FlavorOther   Flavor = "other"
)

// ParseFlavor maps a configured browser name to its semantics class.
// Unknown names fall back to FlavorOther, which uses the most
// conservative interaction strategies.
func ParseFlavor(name string) Flavor {
	switch name {
	case "chrome", "chromium", "edge", "chrome-headless":
		return FlavorChrome
	case "firefox", "gecko":
		return FlavorFirefox
	case "safari", "webkit":
		return FlavorSafari
	default:
		return FlavorOther
	}
}

// Synthetic returns true when native input events are known-unreliable
// for this flavor and script-dispatched clicks should be preferred.
func (f Flavor) Synthetic() bool {
	return f == FlavorSafari
}

// Driver is the abstract browser capability set the page objects, the
// interaction stabilizer, and the journey runner are written against.
// Any remote-automation backend that can satisfy it plugs in; the
// chromedp session in internal/browser is the production implementation.
//
// Every method takes a context and honors its cancellation; blocking
// waits return the context error when it expires first.
type Driver interface {
	// Navigate loads the URL and waits for the document to settle.
	Navigate(ctx context.Context, url string) error
	// Location returns the current page URL.
	Location(ctx context.Context) (string, error)

	// Click dispatches a native click on the first match.
	Click(ctx context.Context, selector string) error
	// DispatchClick clicks via a script-dispatched event, bypassing
	// hit-testing. Used as the fallback when native clicks are
	// intercepted by overlays.
	DispatchClick(ctx context.Context, selector string) error

	// SendKeys types text into the element.
	SendKeys(ctx context.Context, selector, text string) error
	// PressKey sends a single editing key (delete, backspace, enter).
	PressKey(ctx context.Context, selector, key string) error
	// SelectAll selects the element's current text content.
	SelectAll(ctx context.Context, selector string) error
	// ClearNative empties the field with the backend's native clear.
	ClearNative(ctx context.Context, selector string) error
	// SelectOption picks an option of a select element by visible text.
	SelectOption(ctx context.Context, selector, option string) error
	// ClickLabeled clicks the input inside the container matching
	// selector whose label text equals label. Used for checkbox
	// collections addressed by display name rather than by id.
	ClickLabeled(ctx context.Context, selector, label string) error

	// Value returns the element's current value property.
	Value(ctx context.Context, selector string) (string, error)
	// Text returns the element's trimmed text content.
	Text(ctx context.Context, selector string) (string, error)
	// Attribute returns the named attribute and whether it is present.
	Attribute(ctx context.Context, selector, name string) (string, bool, error)
	// Visible reports whether the element exists and is displayed.
	Visible(ctx context.Context, selector string) (bool, error)

	// ScrollIntoView brings the element into the viewport.
	ScrollIntoView(ctx context.Context, selector string) error
	// ScrollBy scrolls the window by the given pixel deltas.
	ScrollBy(ctx context.Context, x, y int) error

	// WaitVisible blocks until the element is displayed.
	WaitVisible(ctx context.Context, selector string) error
	// WaitClickable blocks until the element is displayed and enabled.
	WaitClickable(ctx context.Context, selector string) error
	// WaitLocation blocks until the current URL satisfies the predicate.
	WaitLocation(ctx context.Context, match func(url string) bool) error

	// Evaluate runs a script in the page and unmarshals the result
	// into out when out is non-nil.
	Evaluate(ctx context.Context, script string, out any) error

	// Flavor reports the backend's interaction semantics class.
	Flavor() Flavor
}

// SessionHandle is a Driver whose lifetime the caller controls.
type SessionHandle interface {
	Driver
	ID() string
	Close(ctx context.Context) error
}

// BrowserManager creates isolated sessions and owns the shared browser
// process.
type BrowserManager interface {
	NewSession(ctx context.Context) (SessionHandle, error)
	Shutdown(ctx context.Context) error
}
