package domain

import "time"

// OutcomeStatus is the caller-visible terminal state of one invocation.
type OutcomeStatus string

const (
	StatusCompleted       OutcomeStatus = "completed"
	StatusSkipped         OutcomeStatus = "skipped"
	StatusNoBranchMatched OutcomeStatus = "no_branch_matched"
	StatusFailed          OutcomeStatus = "failed"
	StatusTimeout         OutcomeStatus = "timeout"
	// StatusDeclined: the invocation policy decided no tool call was
	// warranted; the caller's own text stands as the final answer.
	StatusDeclined OutcomeStatus = "declined"
)

// Outcome is what the invoker returns to its caller for every invocation.
type Outcome struct {
	Status  OutcomeStatus `json:"status"`
	Target  string        `json:"target,omitempty"` // resolved tool/chain name
	Result  string        `json:"result,omitempty"`
	Failure *Failure      `json:"-"`
	Cached  bool          `json:"cached,omitempty"`
	Elapsed time.Duration `json:"-"`
}

// Failed reports whether the invocation ended in a failure state.
func (o Outcome) Failed() bool {
	return o.Status == StatusFailed || o.Status == StatusTimeout
}

// ErrorMessage returns the failure message, or "" for non-failure outcomes.
func (o Outcome) ErrorMessage() string {
	if o.Failure == nil {
		return ""
	}
	return o.Failure.Error()
}
