package executor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/vk/taskgridgo/internal/ctxlog"
	"github.com/vk/taskgridgo/internal/pool"
	"github.com/vk/taskgridgo/internal/progress"
	"github.com/vk/taskgridgo/internal/registry"
	"github.com/vk/taskgridgo/internal/retry"
	"github.com/vk/taskgridgo/internal/task"
	"github.com/vk/taskgridgo/internal/taskctx"
)

// panicError carries a recovered worker panic through the retry loop.
type panicError struct {
	value any
	stack []byte
}

func (p *panicError) Error() string {
	return fmt.Sprintf("worker panicked: %v", p.value)
}

// runTask executes one task end to end and delivers exactly one terminal
// result on resultCh. It holds one unit of the default pool for the whole
// execution; the task only counts as started once that unit is granted.
func (e *Executor) runTask(ctx context.Context, t task.Task, pools *pool.Set, resultCh chan<- task.Result) {
	logger := ctxlog.FromContext(ctx).With("task", t.Key)

	slot, err := pools.Acquire(ctx, DefaultPool, 1)
	if err != nil {
		// Only a dying run context gets us here.
		resultCh <- task.Result{
			Key:    t.Key,
			Status: task.StatusError,
			Err: &task.Error{
				Code:    task.CodeTaskFailed,
				Message: "run cancelled before task started",
			},
		}
		return
	}
	defer slot.Release()

	res := task.Result{Key: t.Key, Started: time.Now().UTC()}
	logger.Info("▶️ Task starting.", "worker", t.Worker, "priority", t.Priority)
	e.publish(progress.KindTaskStart, t.Key, map[string]any{
		"worker":   t.Worker,
		"priority": t.Priority,
	})

	tc := taskctx.New(taskctx.Options{
		RunID:      e.cfg.RunID,
		TaskKey:    t.Key,
		Logger:     logger,
		Pools:      pools,
		HTTP:       e.http,
		Automation: e.runner,
		Bus:        e.bus,
	})
	defer tc.ReleaseAll()

	value, attempts, runErr := func() (any, int, *task.Error) {
		// A "pool" hint makes the engine hold one unit of that pool for
		// the task, so grid authors can throttle workers that know
		// nothing about pools. The default pool unit is already held
		// above, so hinting it is a no-op rather than a second hold
		// that could deadlock a fully occupied run.
		if name := t.Hints["pool"]; name != "" && name != DefaultPool {
			hinted, hintErr := pools.Acquire(ctx, name, 1)
			if hintErr != nil {
				return nil, 0, classify(ctx, t, hintErr, 0)
			}
			defer hinted.Release()
		}
		return e.runWithRetry(ctx, t, tc)
	}()

	res.Finished = time.Now().UTC()
	res.Attempts = attempts
	if runErr == nil {
		res.Status = task.StatusSuccess
		res.Value = value
		logger.Info("✅ Task finished.", "duration", res.Duration().Round(time.Millisecond), "attempts", attempts)
	} else {
		res.Status = task.StatusError
		res.Err = runErr
		logger.Error("❌ Task failed.", "code", runErr.Code, "error", runErr.Message, "attempts", attempts)
	}

	// Everything the task held goes back before the result is visible to
	// dependents.
	tc.ReleaseAll()
	slot.Release()

	payload := map[string]any{
		"status":      string(res.Status),
		"attempts":    attempts,
		"duration_ms": res.Duration().Milliseconds(),
	}
	if res.Err != nil {
		payload["code"] = string(res.Err.Code)
		payload["error"] = res.Err.Message
	}
	e.publish(progress.KindTaskFinish, t.Key, payload)

	resultCh <- res
}

// runWithRetry drives the worker through the task's retry policy under
// its time budget. A nil *task.Error means success and value holds what
// the worker returned; attempts counts worker executions either way.
func (e *Executor) runWithRetry(ctx context.Context, t task.Task, tc *taskctx.Context) (value any, attempts int, terr *task.Error) {
	logger := tc.Logger()

	worker, ok := e.registry.Lookup(t.Worker)
	if !ok {
		return nil, 0, &task.Error{
			Code:    task.CodeTaskFailed,
			Message: fmt.Sprintf("worker %q is not registered", t.Worker),
		}
	}

	// The budget covers all attempts and the backoff between them.
	runCtx := ctx
	if t.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}

	op := func(opCtx context.Context) error {
		attempts++
		v, opErr := invoke(opCtx, worker, tc, t)
		if opErr == nil {
			value = v
			return nil
		}
		var notFound *pool.ResourceNotFoundError
		if errors.As(opErr, &notFound) {
			// A pool that is not configured will not appear between
			// attempts.
			return retry.Stop(opErr)
		}
		return opErr
	}

	err := e.policyFor(t).Do(runCtx, op, func(attempt int, opErr error, delay time.Duration) {
		logger.Warn("🔄 Task attempt failed, retrying.",
			"attempt", attempt,
			"delay", delay.Round(time.Millisecond),
			"error", opErr,
		)
		e.publish(progress.KindTaskRetry, t.Key, map[string]any{
			"attempt":  attempt,
			"delay_ms": delay.Milliseconds(),
			"error":    opErr.Error(),
		})
	})
	if err == nil {
		return value, attempts, nil
	}
	return nil, attempts, classify(runCtx, t, err, attempts)
}

// invoke calls the worker, converting a panic into an error so one broken
// worker cannot take down the engine.
func invoke(ctx context.Context, w registry.Worker, tc *taskctx.Context, t task.Task) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r, stack: debug.Stack()}
		}
	}()
	return w(ctx, tc, t)
}

// policyFor resolves the retry policy for a task: the engine default,
// overridden by the task's own spec when present, with backoff floors
// filled in.
func (e *Executor) policyFor(t task.Task) retry.Policy {
	p := e.cfg.DefaultRetry
	if t.Retry != nil {
		p.MaxRetries = t.Retry.MaxRetries
		if t.Retry.BaseBackoff > 0 {
			p.BaseBackoff = t.Retry.BaseBackoff
		}
		if t.Retry.MaxBackoff > 0 {
			p.MaxBackoff = t.Retry.MaxBackoff
		}
	}
	if p.BaseBackoff <= 0 {
		p.BaseBackoff = defaultBaseBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = defaultMaxBackoff
	}
	return p
}

// classify maps a failure out of the retry loop onto the engine's error
// taxonomy.
//
// The run context is checked first because it is authoritative for time
// budget questions: a budget that expires mid-attempt can reach us either
// bare or wrapped in an exhaustion error, depending on which attempt it
// interrupted.
func classify(runCtx context.Context, t task.Task, err error, attempts int) *task.Error {
	retries := attempts - 1
	if retries < 0 {
		retries = 0
	}

	if ctxErr := runCtx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			msg := "task timed out"
			if t.Timeout > 0 {
				msg = fmt.Sprintf("task timed out after %s", t.Timeout)
			}
			return &task.Error{Code: task.CodeTaskTimeout, Message: msg, Retries: retries}
		}
		return &task.Error{Code: task.CodeTaskFailed, Message: "run cancelled", Retries: retries}
	}

	var exhausted *retry.ExhaustedError
	if errors.As(err, &exhausted) {
		classified := &task.Error{
			Code:    task.CodeRetryExhausted,
			Message: exhausted.Last.Error(),
			Retries: exhausted.Retries,
		}
		var pErr *panicError
		if errors.As(exhausted.Last, &pErr) {
			classified.Trace = string(pErr.stack)
		}
		return classified
	}

	var notFound *pool.ResourceNotFoundError
	if errors.As(err, &notFound) {
		return &task.Error{Code: task.CodeResourceNotFound, Message: err.Error(), Retries: retries}
	}

	var pErr *panicError
	if errors.As(err, &pErr) {
		return &task.Error{
			Code:    task.CodeTaskFailed,
			Message: pErr.Error(),
			Retries: retries,
			Trace:   string(pErr.stack),
		}
	}

	return &task.Error{Code: task.CodeTaskFailed, Message: err.Error(), Retries: retries}
}
