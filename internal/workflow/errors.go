// internal/workflow/errors.go
package workflow

import (
	"errors"
	"fmt"
)

// ErrVerificationExhausted means every allowed PIN attempt was spent
// without the service accepting one.
var ErrVerificationExhausted = errors.New("verification exhausted")

// ValidationError is a submit the service rejected: the location did
// not advance and the page showed a message.
type ValidationError struct {
	State   State
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation rejected at %s: %s", e.State, e.Message)
}

// TimeoutError is a missed post-condition: the journey expected to
// arrive somewhere and did not, within the allowed time.
type TimeoutError struct {
	Expected string
	Actual   string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out waiting to reach %q; still at %q", e.Expected, e.Actual)
}
