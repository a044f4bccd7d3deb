package sleep

import (
	"context"
	"time"

	"github.com/vk/taskgridgo/internal/payload"
	"github.com/vk/taskgridgo/internal/registry"
	"github.com/vk/taskgridgo/internal/task"
	"github.com/vk/taskgridgo/internal/taskctx"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// OnRun waits for the configured duration. The wait honours cancellation,
// so a run timeout or shutdown interrupts it immediately.
func OnRun(ctx context.Context, tc *taskctx.Context, t task.Task) (any, error) {
	duration, err := payload.Duration(t.Payload, "duration")
	if err != nil {
		return nil, err
	}

	tc.Logger().Debug("Sleeping.", "duration", duration)

	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-timer.C:
		return map[string]any{"slept_ms": duration.Milliseconds()}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Register registers the worker with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterWorker("sleep", OnRun)
}
