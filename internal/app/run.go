package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vk/taskgridgo/internal/ctxlog"
	"github.com/vk/taskgridgo/internal/executor"
	"github.com/vk/taskgridgo/internal/hcl"
	"github.com/vk/taskgridgo/internal/retry"
	"github.com/vk/taskgridgo/internal/runstore"
	"github.com/vk/taskgridgo/internal/task"
)

// defaultConcurrency applies when neither the flags nor the grid's
// settings block name a limit.
const defaultConcurrency = 10

// Run executes the main application logic: load grids, bring up the
// servers, execute the grid run, and return the first failure. With the
// API enabled the servers keep serving after the grid run until ctx ends;
// without it the app exits when the run does.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	grid, err := hcl.Load(ctx, a.cfg.GridPaths)
	if err != nil {
		return fmt.Errorf("failed to load grid: %w", err)
	}
	if len(grid.Tasks) == 0 && a.cfg.APIPort <= 0 {
		a.logger.Warn("No tasks found, nothing to run.")
		return nil
	}

	execCfg := a.buildExecConfig(grid)
	a.execMu.Lock()
	a.execCfg = &execCfg
	a.runCtx = ctx
	a.execMu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if a.cfg.HealthcheckPort > 0 {
		g.Go(func() error { return a.serveHealthcheck(gctx) })
	}
	if a.cfg.APIPort > 0 {
		g.Go(func() error { return a.serveAPI(gctx) })
	}

	if len(grid.Tasks) > 0 {
		tasks := grid.Tasks
		g.Go(func() error {
			err := a.runGrid(gctx, tasks)
			if a.cfg.APIPort > 0 {
				// In service mode a failed grid run must not take the
				// servers down with it.
				if err != nil {
					a.logger.Error("Grid run failed.", "error", err)
				}
				return nil
			}
			cancel()
			return err
		})
	}

	err = g.Wait()
	a.logger.Debug("App.Run method finished.")
	return err
}

// runGrid executes the tasks loaded from grid files as one run. Failed
// tasks fail the run so batch invocations exit non-zero.
func (a *App) runGrid(ctx context.Context, tasks []task.Task) error {
	id := uuid.NewString()
	a.store.Put(runstore.Run{
		ID:        id,
		State:     runstore.StatePending,
		Submitted: time.Now().UTC(),
	})
	a.logger.Info("Executing grid run.", "run_id", id, "tasks", len(tasks))

	if err := a.execute(ctx, id, tasks); err != nil {
		return err
	}

	run, _ := a.store.Get(id)
	if run.Counts.Error > 0 {
		return fmt.Errorf("run finished with %d failed tasks", run.Counts.Error)
	}
	return nil
}

// buildExecConfig layers the engine configuration: explicit app config
// wins, then the grid's settings block, then built-in defaults.
func (a *App) buildExecConfig(grid *hcl.Grid) executor.Config {
	concurrency := a.cfg.Concurrency
	if concurrency <= 0 {
		concurrency = grid.Settings.Concurrency
	}
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	interval := a.cfg.ProgressInterval
	if interval <= 0 {
		interval = grid.Settings.ProgressInterval
	}

	return executor.Config{
		Concurrency: concurrency,
		DefaultRetry: retry.Policy{
			MaxRetries:  grid.Settings.MaxRetries,
			BaseBackoff: grid.Settings.BaseBackoff,
			MaxBackoff:  grid.Settings.MaxBackoff,
		},
		Pools:            grid.Pools,
		ProgressInterval: interval,
	}
}
