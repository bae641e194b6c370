// internal/workflow/result.go
package workflow

import "fmt"

// State is a step of the signup graph.
type State int

const (
	StateRoleAndEmail State = iota
	StatePinVerification
	StatePasswordOrSocial
	StateProfileDetails
	StateSubjectSelection
	StateTermsAndNewsletter
	StateSubmissionConfirmation
	StateInstructorAccessReview
	StateDone
)

var stateNames = map[State]string{
	StateRoleAndEmail:           "role-and-email",
	StatePinVerification:        "pin-verification",
	StatePasswordOrSocial:       "password-or-social",
	StateProfileDetails:         "profile-details",
	StateSubjectSelection:       "subject-selection",
	StateTermsAndNewsletter:     "terms-and-newsletter",
	StateSubmissionConfirmation: "submission-confirmation",
	StateInstructorAccessReview: "instructor-access-review",
	StateDone:                   "done",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ResultKind tags what a step produced.
type ResultKind int

const (
	// KindNextStep advances the graph.
	KindNextStep ResultKind = iota
	// KindValidationError means the service rejected the submitted
	// data and the journey stops with the message.
	KindValidationError
	// KindEscalatedTo routes into a side branch (manual review).
	KindEscalatedTo
)

// Result is the tagged outcome of one step. Steps never answer with a
// bare "whatever page loaded"; the tag says how to read it.
type Result struct {
	Kind    ResultKind
	Next    State
	Message string
}

// NextStep advances to the given state.
func NextStep(s State) Result {
	return Result{Kind: KindNextStep, Next: s}
}

// Rejected reports a validation failure with the page's message.
func Rejected(message string) Result {
	return Result{Kind: KindValidationError, Message: message}
}

// EscalatedTo routes into a review branch.
func EscalatedTo(s State) Result {
	return Result{Kind: KindEscalatedTo, Next: s}
}
