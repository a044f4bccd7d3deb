package automation

import (
	"context"
	"fmt"
	"time"
)

// defaultCommandTimeout bounds a command whose spec names no timeout.
const defaultCommandTimeout = 10 * time.Second

// Command is one instruction for the automation endpoint.
type Command struct {
	// Name is the event the command is emitted as.
	Name string
	// Args is the payload sent with the event.
	Args map[string]any
	// Timeout bounds the wait for the result event. Zero selects the
	// default.
	Timeout time.Duration
}

// Runner executes automation commands.
type Runner interface {
	// Run emits the command and blocks until its result event, the
	// timeout, or ctx cancellation.
	Run(ctx context.Context, cmd Command) (map[string]any, error)
	// Close tears down the connection. Safe to call more than once.
	Close()
}

// NoopRunner stands in when no automation endpoint is configured, so grids
// that never touch automation still load and run.
type NoopRunner struct{}

func (NoopRunner) Run(_ context.Context, cmd Command) (map[string]any, error) {
	return nil, fmt.Errorf("automation endpoint not configured, cannot run command %q", cmd.Name)
}

func (NoopRunner) Close() {}
