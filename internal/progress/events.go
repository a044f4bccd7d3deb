package progress

import "time"

// Kind discriminates progress events.
type Kind string

const (
	KindRunStart    Kind = "run-start"
	KindRunFinish   Kind = "run-finish"
	KindTaskStart   Kind = "task-start"
	KindTaskFinish  Kind = "task-finish"
	KindTaskRetry   Kind = "task-retry"
	KindTaskSkipped Kind = "task-skipped"
	KindLog         Kind = "log"
	KindStats       Kind = "stats"
)

// Event is a single progress notification. Events are ephemeral: they are
// broadcast to currently connected subscribers and never persisted.
type Event struct {
	Kind      Kind           `json:"kind"`
	RunID     string         `json:"run_id,omitempty"`
	TaskKey   string         `json:"task_key,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}
