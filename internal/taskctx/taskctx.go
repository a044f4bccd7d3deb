package taskctx

import (
	"context"
	"log/slog"
	"sync"

	"github.com/vk/taskgridgo/internal/automation"
	"github.com/vk/taskgridgo/internal/httpclient"
	"github.com/vk/taskgridgo/internal/pool"
	"github.com/vk/taskgridgo/internal/progress"
)

// Options collects the run-shared facilities a Context exposes to one task.
type Options struct {
	RunID      string
	TaskKey    string
	Logger     *slog.Logger
	Pools      *pool.Set
	HTTP       *httpclient.Client
	Automation automation.Runner
	Bus        *progress.Bus
}

// Context is the per-task facade. It is intended for use by the single
// goroutine running the worker.
type Context struct {
	runID   string
	taskKey string
	logger  *slog.Logger
	pools   *pool.Set
	http    *httpclient.Client
	runner  automation.Runner
	bus     *progress.Bus

	// mutex guards the acquired guards; ReleaseAll may race a worker that
	// keeps acquiring past its deadline.
	mutex  sync.Mutex
	guards []*pool.Guard
}

// New builds a Context. Missing facilities fall back to inert defaults so
// unit tests can construct a Context from almost nothing.
func New(opts Options) *Context {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.TaskKey != "" {
		logger = logger.With("task", opts.TaskKey)
	}
	httpClient := opts.HTTP
	if httpClient == nil {
		httpClient = httpclient.New(logger)
	}
	runner := opts.Automation
	if runner == nil {
		runner = automation.NoopRunner{}
	}
	return &Context{
		runID:   opts.RunID,
		taskKey: opts.TaskKey,
		logger:  logger,
		pools:   opts.Pools,
		http:    httpClient,
		runner:  runner,
		bus:     opts.Bus,
	}
}

// RunID returns the identifier of the run this task belongs to.
func (c *Context) RunID() string {
	return c.runID
}

// TaskKey returns the key of the task this context serves.
func (c *Context) TaskKey() string {
	return c.taskKey
}

// Logger returns the task-scoped logger.
func (c *Context) Logger() *slog.Logger {
	return c.logger
}

// Acquire blocks until `amount` units of the named pool are held. The
// guard is tracked, so units a worker never releases come back when the
// engine calls ReleaseAll after the worker returns.
func (c *Context) Acquire(ctx context.Context, poolName string, amount int) (*pool.Guard, error) {
	if c.pools == nil {
		return nil, &pool.ResourceNotFoundError{Name: poolName}
	}
	g, err := c.pools.Acquire(ctx, poolName, amount)
	if err != nil {
		return nil, err
	}
	c.mutex.Lock()
	c.guards = append(c.guards, g)
	c.mutex.Unlock()
	return g, nil
}

// Request performs one HTTP call through the run's instrumented client.
func (c *Context) Request(ctx context.Context, req httpclient.Request) (*httpclient.Response, error) {
	return c.http.Do(ctx, req)
}

// Automate sends one command to the automation endpoint and returns its
// result payload.
func (c *Context) Automate(ctx context.Context, cmd automation.Command) (map[string]any, error) {
	return c.runner.Run(ctx, cmd)
}

// Progress publishes a task-scoped log event to connected observers. It is
// fire-and-forget and never blocks the worker.
func (c *Context) Progress(payload map[string]any) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(progress.Event{
		Kind:    progress.KindLog,
		RunID:   c.runID,
		TaskKey: c.taskKey,
		Payload: payload,
	})
}

// ReleaseAll releases every guard acquired through this context, most
// recent first. The engine calls it once the worker has returned; calling
// it again is harmless.
func (c *Context) ReleaseAll() {
	c.mutex.Lock()
	guards := c.guards
	c.guards = nil
	c.mutex.Unlock()

	for i := len(guards) - 1; i >= 0; i-- {
		guards[i].Release()
	}
}
