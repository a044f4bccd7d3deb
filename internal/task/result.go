package task

import "time"

// Status is the terminal state of a task.
type Status string

const (
	// StatusSuccess marks a task whose worker returned without error.
	StatusSuccess Status = "success"

	// StatusError marks a task whose worker failed after exhausting its
	// retry budget, timed out, or hit an unrecoverable engine error.
	StatusError Status = "error"

	// StatusSkipped marks a task that never ran because its dependencies
	// could not be resolved.
	StatusSkipped Status = "skipped"
)

// Result is the single terminal record produced for a submitted task.
type Result struct {
	Key      string    `json:"key"`
	Status   Status    `json:"status"`
	Value    any       `json:"value,omitempty"`
	Err      *Error    `json:"error,omitempty"`
	Started  time.Time `json:"started,omitzero"`
	Finished time.Time `json:"finished,omitzero"`

	// Attempts counts worker executions, so a task that succeeded on the
	// first try reports 1. Skipped tasks report 0.
	Attempts int `json:"attempts"`
}

// Duration returns the wall-clock time between start and finish, or zero
// for tasks that never started.
func (r Result) Duration() time.Duration {
	if r.Started.IsZero() {
		return 0
	}
	return r.Finished.Sub(r.Started)
}
