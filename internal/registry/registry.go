package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/vk/taskgridgo/internal/task"
	"github.com/vk/taskgridgo/internal/taskctx"
)

// Worker executes the body of one task. It receives the task's payload via
// t and reaches shared facilities (resource pools, the HTTP client, the
// automation endpoint) through tc. The returned value becomes the task's
// result payload.
type Worker func(ctx context.Context, tc *taskctx.Context, t task.Task) (any, error)

// Module is the interface that all built-in modules implement to be
// registered.
type Module interface {
	Register(r *Registry)
}

// Registry holds all registered workers for a single application instance.
// Registration happens during startup from compiled-in modules, so a
// duplicate name is a programmer error and panics.
type Registry struct {
	workers map[string]Worker
}

// New creates and initializes a new Registry instance.
func New() *Registry {
	return &Registry{
		workers: make(map[string]Worker),
	}
}

// RegisterWorker registers a worker function under its grid-facing name.
func (r *Registry) RegisterWorker(name string, w Worker) {
	if _, exists := r.workers[name]; exists {
		panic(fmt.Sprintf("worker with name '%s' already registered", name))
	}
	if w == nil {
		panic(fmt.Sprintf("worker '%s' registered with nil function", name))
	}
	slog.Debug("Registering worker.", "name", name)
	r.workers[name] = w
}

// Lookup returns the worker registered under name.
func (r *Registry) Lookup(name string) (Worker, bool) {
	w, ok := r.workers[name]
	return w, ok
}

// Names returns all registered worker names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.workers))
	for name := range r.workers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
