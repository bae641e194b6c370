package schemas

import "errors"

// Transient interaction failure classes. Driver implementations map
// backend-specific errors onto these sentinels so the stabilizer can
// retry without knowing which backend produced them.
var (
	// ErrElementNotFound means no element matched the selector.
	ErrElementNotFound = errors.New("element not found")
	// ErrStaleReference means the matched element was detached from
	// the document between resolution and use.
	ErrStaleReference = errors.New("stale element reference")
	// ErrNotInteractable means the element exists but cannot receive
	// the event (hidden, disabled, zero-size).
	ErrNotInteractable = errors.New("element not interactable")
	// ErrObscured means another element would receive the click.
	ErrObscured = errors.New("element obscured at click point")
)

// Transient reports whether err belongs to a failure class the
// stabilizer is allowed to absorb and retry.
func Transient(err error) bool {
	return errors.Is(err, ErrElementNotFound) ||
		errors.Is(err, ErrStaleReference) ||
		errors.Is(err, ErrNotInteractable) ||
		errors.Is(err, ErrObscured)
}
