package domain

import "time"

// Outcome is the result of evaluating a condition for one tick.
type Outcome string

const (
	OutcomeMet    Outcome = "met"
	OutcomeNotMet Outcome = "not_met"
	OutcomeError  Outcome = "error"
)

// ActionResult records what happened to one dispatched action.
type ActionResult struct {
	Kind      ActionKind    `json:"kind"`
	Policy    string        `json:"policy"`
	OK        bool          `json:"ok"`
	ExitCode  int           `json:"exit_code"`
	Signal    string        `json:"signal,omitempty"`
	PID       int           `json:"pid,omitempty"`
	Output    []string      `json:"output,omitempty"`
	Truncated bool          `json:"truncated,omitempty"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// RunRecord summarizes one pass of the interval gate for a service.
type RunRecord struct {
	ID         string         `json:"id"`
	Service    string         `json:"service"`
	SourcePath string         `json:"source_path"`
	Condition  string         `json:"condition"`
	Outcome    Outcome        `json:"outcome"`
	Reason     string         `json:"reason,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Actions    []ActionResult `json:"actions,omitempty"`
}

// Failed counts the actions that did not succeed.
func (r RunRecord) Failed() int {
	n := 0
	for _, a := range r.Actions {
		if !a.OK {
			n++
		}
	}
	return n
}
