// Package task defines the vocabulary shared by every component of the
// engine: the unit of work users submit and the terminal result produced
// for it.
package task

import (
	"fmt"
	"time"
)

// Task is a single unit of work submitted to the engine.
type Task struct {
	// Key uniquely identifies the task within one submission.
	Key string

	// Worker names the registered worker that executes this task.
	Worker string

	// Payload carries worker-specific arguments, decoded from grid files
	// or an API submission.
	Payload map[string]any

	// Hints carries engine-facing annotations, such as the resource pool a
	// worker draws from. Hints never reach worker business logic.
	Hints map[string]string

	// Priority orders dispatch among ready tasks. Higher runs first; ties
	// resolve by submission order. Zero is the default.
	Priority int

	// Timeout bounds the task's total execution including retries.
	// Zero means no limit.
	Timeout time.Duration

	// DependsOn lists keys of tasks that must reach a terminal state
	// before this one may start.
	DependsOn []string

	// Retry overrides the engine's default retry policy when non-nil.
	Retry *RetrySpec
}

// RetrySpec configures the retry behavior of a single task.
type RetrySpec struct {
	MaxRetries  int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// Validate checks a submission set for structural problems that would make
// dispatch ambiguous: empty keys, unnamed workers, and duplicate keys.
// It reports the first problem found.
func Validate(tasks []Task) error {
	if len(tasks) == 0 {
		return fmt.Errorf("no tasks submitted")
	}
	seen := make(map[string]struct{}, len(tasks))
	for i, t := range tasks {
		if t.Key == "" {
			return fmt.Errorf("task at index %d has an empty key", i)
		}
		if t.Worker == "" {
			return fmt.Errorf("task %q has no worker", t.Key)
		}
		if _, dup := seen[t.Key]; dup {
			return fmt.Errorf("duplicate task key %q", t.Key)
		}
		seen[t.Key] = struct{}{}
	}
	return nil
}
