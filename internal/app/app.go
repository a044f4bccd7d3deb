package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vk/taskgridgo/internal/automation"
	"github.com/vk/taskgridgo/internal/executor"
	"github.com/vk/taskgridgo/internal/forward"
	"github.com/vk/taskgridgo/internal/httpclient"
	"github.com/vk/taskgridgo/internal/metrics"
	"github.com/vk/taskgridgo/internal/progress"
	"github.com/vk/taskgridgo/internal/registry"
	"github.com/vk/taskgridgo/internal/runstore"
	"github.com/vk/taskgridgo/internal/task"
)

// App encapsulates the application's dependencies, configuration, and
// lifecycle. Everything is wired in New; Run only loads grids and drives
// the servers and the engine.
type App struct {
	cfg    *Config
	outW   io.Writer
	logger *slog.Logger

	bus      *progress.Bus
	metrics  *metrics.Metrics
	registry *registry.Registry
	store    *runstore.Store
	http     *httpclient.Client
	runner   automation.Runner
	fwd      *forward.Forwarder

	// execCfg is the run-independent part of the engine configuration,
	// assembled in Run once the grids are loaded. execMu guards it against
	// API submissions racing startup.
	execMu   sync.Mutex
	execCfg  *executor.Config
	runCtx   context.Context
	runWG    sync.WaitGroup
	closeOne sync.Once
}

// New builds a fully wired App: logger, progress bus, metrics, worker
// registry, run store, and the optional automation and forwarding clients.
// A connection failure to the automation endpoint is fatal; one to the
// forwarding endpoint only disables forwarding.
func New(ctx context.Context, outW io.Writer, cfg *Config) (*App, error) {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	logger.Debug("Logger configured successfully.")

	bus := progress.NewBus(logger)

	m := metrics.New()
	m.WatchDropped(bus.TotalDropped)
	metricEvents, err := bus.Subscribe("metrics", 0)
	if err != nil {
		return nil, fmt.Errorf("failed to wire metrics: %w", err)
	}
	go m.Consume(metricEvents)

	reg := registry.New()
	for _, mod := range coreModules {
		mod.Register(reg)
	}
	logger.Debug("All worker modules registered.", "workers", reg.Names())

	var runner automation.Runner = automation.NoopRunner{}
	if cfg.AutomationURL != "" {
		socketRunner, err := automation.NewSocketRunner(ctx, cfg.AutomationURL, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to reach automation endpoint: %w", err)
		}
		runner = socketRunner
	}

	var fwd *forward.Forwarder
	if cfg.ForwardURL != "" {
		fwd, err = forward.New(ctx, cfg.ForwardURL, logger)
		if err != nil {
			// Forwarding is best-effort, the run must not depend on it.
			logger.Warn("Forwarding disabled.", "error", err)
			fwd = nil
		} else {
			forwardEvents, err := bus.Subscribe("forward", 0)
			if err != nil {
				return nil, fmt.Errorf("failed to wire forwarding: %w", err)
			}
			go fwd.Forward(forwardEvents)
		}
	}

	return &App{
		cfg:      cfg,
		outW:     outW,
		logger:   logger,
		bus:      bus,
		metrics:  m,
		registry: reg,
		store:    runstore.New(),
		http:     httpclient.New(logger),
		runner:   runner,
		fwd:      fwd,
	}, nil
}

// Logger returns the application's logger. This is primarily for testing.
func (a *App) Logger() *slog.Logger {
	return a.logger
}

// Registry returns the application's registry. This is primarily for
// testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Store returns the application's run store. This is primarily for testing.
func (a *App) Store() *runstore.Store {
	return a.store
}

// Close releases the app's long-lived resources: the bus (which ends the
// metrics and forwarding loops), the automation client, and the forwarder.
// It waits for in-flight API runs to record their results first.
func (a *App) Close() {
	a.closeOne.Do(func() {
		a.runWG.Wait()
		a.bus.Close()
		a.runner.Close()
		if a.fwd != nil {
			a.fwd.Close()
		}
		a.logger.Debug("App closed.")
	})
}

// submit hands a validated task list to the engine and returns the new
// run's ID. The run executes asynchronously on the app's run context, so
// it outlives the HTTP request that carried it.
func (a *App) submit(tasks []task.Task) (string, error) {
	a.execMu.Lock()
	cfg := a.execCfg
	ctx := a.runCtx
	a.execMu.Unlock()
	if cfg == nil {
		return "", fmt.Errorf("engine is not ready yet")
	}

	id := uuid.NewString()
	a.store.Put(runstore.Run{
		ID:        id,
		State:     runstore.StatePending,
		Submitted: time.Now().UTC(),
	})

	a.runWG.Add(1)
	go func() {
		defer a.runWG.Done()
		if err := a.execute(ctx, id, tasks); err != nil {
			a.logger.Error("Run failed.", "run_id", id, "error", err)
		}
	}()
	return id, nil
}

// execute drives one run end to end: mark it running, run the engine,
// record the results.
func (a *App) execute(ctx context.Context, id string, tasks []task.Task) error {
	a.execMu.Lock()
	cfg := *a.execCfg
	a.execMu.Unlock()
	cfg.RunID = id

	a.store.MarkRunning(id, time.Now().UTC())

	exec, err := executor.New(cfg, executor.Options{
		Registry:   a.registry,
		Bus:        a.bus,
		HTTP:       a.http,
		Automation: a.runner,
	})
	if err != nil {
		a.store.SetResults(id, nil, err)
		return err
	}

	results, runErr := exec.Run(ctx, tasks)
	a.store.SetResults(id, results, runErr)
	return runErr
}
