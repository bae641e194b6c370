package schemas

import "time"

// RunRecord is the persisted outcome of one journey execution.
type RunRecord struct {
	JourneyID string
	Scenario  string
	Role      string
	Email     string
	FinalURL  string
	Outcome   string
	Detail    string
	StartedAt time.Time
	Duration  time.Duration
}

// Run outcomes as stored.
const (
	OutcomePassed   = "passed"
	OutcomeRejected = "rejected"
	OutcomeTimeout  = "timeout"
	OutcomeError    = "error"
)
