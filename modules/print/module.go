package print

import (
	"context"

	"github.com/vk/taskgridgo/internal/payload"
	"github.com/vk/taskgridgo/internal/registry"
	"github.com/vk/taskgridgo/internal/task"
	"github.com/vk/taskgridgo/internal/taskctx"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// OnRun logs the configured message and forwards it to run observers, so a
// grid can mark its own milestones in the event stream.
func OnRun(_ context.Context, tc *taskctx.Context, t task.Task) (any, error) {
	message, err := payload.String(t.Payload, "message")
	if err != nil {
		return nil, err
	}

	tc.Logger().Info(message)
	tc.Progress(map[string]any{"message": message})

	return map[string]any{"message": message}, nil
}

// Register registers the worker with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterWorker("print", OnRun)
}
