package automation

import (
	"context"

	"github.com/vk/taskgridgo/internal/automation"
	"github.com/vk/taskgridgo/internal/payload"
	"github.com/vk/taskgridgo/internal/registry"
	"github.com/vk/taskgridgo/internal/task"
	"github.com/vk/taskgridgo/internal/taskctx"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// OnRun sends one command to the automation endpoint and returns whatever
// the endpoint answered as the task's result.
func OnRun(ctx context.Context, tc *taskctx.Context, t task.Task) (any, error) {
	command, err := payload.String(t.Payload, "command")
	if err != nil {
		return nil, err
	}
	args, err := payload.Map(t.Payload, "args")
	if err != nil {
		return nil, err
	}
	timeout, err := payload.DurationOr(t.Payload, "timeout", 0)
	if err != nil {
		return nil, err
	}

	tc.Logger().Info("Running automation command", "command", command)

	result, err := tc.Automate(ctx, automation.Command{
		Name:    command,
		Args:    args,
		Timeout: timeout,
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Register registers the worker with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterWorker("automation", OnRun)
}
