package executor

import (
	"time"

	"github.com/vk/taskgridgo/internal/pool"
	"github.com/vk/taskgridgo/internal/retry"
)

// DefaultPool is the reserved pool every task holds one unit of for the
// whole of its execution. Its capacity is the engine's concurrency limit,
// which is what turns the limit into back-pressure.
const DefaultPool = "default"

const (
	defaultBaseBackoff = 250 * time.Millisecond
	defaultMaxBackoff  = 10 * time.Second
)

// Config controls a single engine instance.
type Config struct {
	// Concurrency caps how many tasks run simultaneously. Must be at
	// least 1.
	Concurrency int

	// DefaultRetry applies to every task that carries no retry spec of
	// its own. The zero value disables retrying.
	DefaultRetry retry.Policy

	// Pools declares the named resource pools workers may draw from. The
	// name "default" is reserved for the engine.
	Pools []pool.Config

	// ProgressInterval enables periodic stats events on the progress bus
	// when positive.
	ProgressInterval time.Duration

	// RunID tags every progress event and log line emitted for this
	// engine's runs.
	RunID string
}
