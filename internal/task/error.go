package task

import "fmt"

// Code classifies a task failure for programmatic handling.
type Code string

const (
	// CodeResourceNotFound reports a request for a resource pool that was
	// never configured.
	CodeResourceNotFound Code = "ResourceNotFound"

	// CodeDependencyUnresolved reports a dependency that is missing from
	// the submission or trapped in a cycle; the task was skipped.
	CodeDependencyUnresolved Code = "DependencyUnresolved"

	// CodeTaskTimeout reports a task that exceeded its time budget.
	CodeTaskTimeout Code = "TaskTimeout"

	// CodeTaskFailed reports a worker error not otherwise classified,
	// including recovered panics.
	CodeTaskFailed Code = "TaskFailed"

	// CodeRetryExhausted reports a worker that kept failing until no
	// retries remained.
	CodeRetryExhausted Code = "RetryExhausted"
)

// Error is the structured failure attached to a non-success Result.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`

	// Retries counts retry attempts consumed before giving up. A task
	// that failed on its only attempt reports 0.
	Retries int `json:"retries"`

	// Trace holds a stack trace for recovered panics, empty otherwise.
	Trace string `json:"trace,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
