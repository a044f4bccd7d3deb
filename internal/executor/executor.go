package executor

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vk/taskgridgo/internal/automation"
	"github.com/vk/taskgridgo/internal/ctxlog"
	"github.com/vk/taskgridgo/internal/dag"
	"github.com/vk/taskgridgo/internal/httpclient"
	"github.com/vk/taskgridgo/internal/pool"
	"github.com/vk/taskgridgo/internal/progress"
	"github.com/vk/taskgridgo/internal/registry"
	"github.com/vk/taskgridgo/internal/task"
)

// Options carries the collaborators an Executor needs. Registry is
// required; everything else gets a working default.
type Options struct {
	Registry   *registry.Registry
	Bus        *progress.Bus
	HTTP       *httpclient.Client
	Automation automation.Runner
}

// Executor turns a set of interdependent tasks into terminal results.
// A single Executor may serve several Runs, sequentially or concurrently;
// each Run keeps its own graph, pools, and bookkeeping.
type Executor struct {
	cfg      Config
	registry *registry.Registry
	bus      *progress.Bus
	http     *httpclient.Client
	runner   automation.Runner
}

// New validates cfg and assembles an Executor.
func New(cfg Config, opts Options) (*Executor, error) {
	if cfg.Concurrency < 1 {
		return nil, fmt.Errorf("concurrency must be at least 1, got %d", cfg.Concurrency)
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("a worker registry is required")
	}

	e := &Executor{
		cfg:      cfg,
		registry: opts.Registry,
		bus:      opts.Bus,
		http:     opts.HTTP,
		runner:   opts.Automation,
	}
	if e.bus == nil {
		e.bus = progress.NewBus(nil)
	}
	if e.http == nil {
		e.http = httpclient.New(nil)
	}
	if e.runner == nil {
		e.runner = automation.NoopRunner{}
	}
	return e, nil
}

// Run executes the submitted tasks and returns one terminal result per
// task, keyed by task key.
//
// An error is returned only for input the engine cannot dispatch at all:
// a structurally invalid submission, a self-referential dependency, or a
// bad pool declaration. Individual task failures land in the results.
// When ctx ends mid-run, the accumulated results come back together with
// ctx's error; tasks that never started are recorded as failed.
func (e *Executor) Run(ctx context.Context, tasks []task.Task) (map[string]task.Result, error) {
	if err := task.Validate(tasks); err != nil {
		return nil, err
	}

	logger := ctxlog.FromContext(ctx)
	if e.cfg.RunID != "" {
		logger = logger.With("run_id", e.cfg.RunID)
		ctx = ctxlog.WithLogger(ctx, logger)
	}

	pools, err := e.buildPools(logger)
	if err != nil {
		return nil, err
	}
	defer pools.Close()

	graph, missing, err := buildGraph(tasks)
	if err != nil {
		return nil, err
	}
	if cycleErr := graph.DetectCycles(); cycleErr != nil {
		logger.Warn("Submission contains a dependency cycle, affected tasks will be skipped.", "error", cycleErr)
	}

	byKey := make(map[string]task.Task, len(tasks))
	seq := make(map[string]int, len(tasks))
	for i, t := range tasks {
		byKey[t.Key] = t
		seq[t.Key] = i
	}

	// Pending counts include references to tasks that were never
	// submitted. Those can never be decremented, so the referencing task
	// stalls and the sweep below skips it.
	pending := make(map[string]int, len(tasks))
	for _, t := range tasks {
		deg, _ := graph.InDegree(t.Key)
		pending[t.Key] = deg + len(missing[t.Key])
	}

	ready := &readyQueue{}
	heap.Init(ready)
	for _, t := range tasks {
		if pending[t.Key] == 0 {
			heap.Push(ready, queueItem{key: t.Key, priority: t.Priority, seq: seq[t.Key]})
		}
	}

	results := make(map[string]task.Result, len(tasks))
	resultCh := make(chan task.Result)
	freeSlots := e.cfg.Concurrency
	running := 0
	cancelled := false
	ctxDone := ctx.Done()
	started := time.Now().UTC()

	var tickCh <-chan time.Time
	if e.cfg.ProgressInterval > 0 {
		ticker := time.NewTicker(e.cfg.ProgressInterval)
		defer ticker.Stop()
		tickCh = ticker.C
	}

	logger.Info("🚀 Run starting.", "tasks", len(tasks), "concurrency", e.cfg.Concurrency)
	e.publish(progress.KindRunStart, "", map[string]any{"tasks": len(tasks)})

	launch := func() {
		for !cancelled && freeSlots > 0 && ready.Len() > 0 {
			item := heap.Pop(ready).(queueItem)
			freeSlots--
			running++
			logger.Debug("Dispatching task.", "task", item.key, "priority", item.priority)
			go e.runTask(ctx, byKey[item.key], pools, resultCh)
		}
	}

	launch()
	for len(results) < len(tasks) {
		if running == 0 && (ready.Len() == 0 || cancelled) {
			break
		}
		select {
		case res := <-resultCh:
			results[res.Key] = res
			running--
			freeSlots++
			dependents, _ := graph.Dependents(res.Key)
			for _, dep := range dependents {
				pending[dep]--
				if pending[dep] == 0 {
					heap.Push(ready, queueItem{key: dep, priority: byKey[dep].Priority, seq: seq[dep]})
				}
			}
			launch()
		case <-tickCh:
			e.publishStats(len(tasks), running, len(results))
		case <-ctxDone:
			// Stop launching; in-flight tasks unwind through their own
			// contexts and still deliver results. Fire once.
			cancelled = true
			ctxDone = nil
		}
	}

	if len(results) < len(tasks) {
		if cancelled {
			e.cancelResidual(graph, results)
		} else {
			e.skipResidual(ctx, graph, missing, results)
		}
	}

	counts := tally(results)
	elapsed := time.Since(started)
	logger.Info("🏁 Run finished.",
		"duration", elapsed.Round(time.Millisecond),
		"success", counts[task.StatusSuccess],
		"error", counts[task.StatusError],
		"skipped", counts[task.StatusSkipped],
	)
	e.publish(progress.KindRunFinish, "", map[string]any{
		"tasks":       len(tasks),
		"success":     counts[task.StatusSuccess],
		"error":       counts[task.StatusError],
		"skipped":     counts[task.StatusSkipped],
		"duration_ms": elapsed.Milliseconds(),
	})

	if cancelled {
		return results, ctx.Err()
	}
	return results, nil
}

// buildPools assembles the run's pool set: the reserved default pool whose
// capacity is the concurrency cap, plus every user-declared pool.
func (e *Executor) buildPools(logger *slog.Logger) (*pool.Set, error) {
	configs := make([]pool.Config, 0, len(e.cfg.Pools)+1)
	configs = append(configs, pool.Config{Name: DefaultPool, Capacity: e.cfg.Concurrency})
	for _, pc := range e.cfg.Pools {
		if pc.Name == DefaultPool {
			return nil, fmt.Errorf("pool name %q is reserved", DefaultPool)
		}
		configs = append(configs, pc)
	}
	return pool.NewSet(configs, logger)
}

// buildGraph wires the submission into a dependency graph. References to
// keys absent from the submission are not edges; they come back in the
// missing map and permanently block the referencing task.
func buildGraph(tasks []task.Task) (*dag.Graph, map[string][]string, error) {
	graph := dag.New()
	for _, t := range tasks {
		graph.AddNode(t.Key)
	}

	missing := make(map[string][]string)
	for _, t := range tasks {
		seen := make(map[string]struct{}, len(t.DependsOn))
		for _, dep := range t.DependsOn {
			if _, dup := seen[dep]; dup {
				continue
			}
			seen[dep] = struct{}{}
			if !graph.Has(dep) {
				missing[t.Key] = append(missing[t.Key], dep)
				continue
			}
			if err := graph.AddEdge(dep, t.Key); err != nil {
				return nil, nil, err
			}
		}
	}
	return graph, missing, nil
}

// skipResidual resolves every task left without a result after dispatch
// stalled: their dependencies are missing from the submission, trapped in
// a cycle, or stuck behind one. Each becomes a skipped result.
func (e *Executor) skipResidual(ctx context.Context, graph *dag.Graph, missing map[string][]string, results map[string]task.Result) {
	logger := ctxlog.FromContext(ctx)

	terminal := make(map[string]bool, len(results))
	for key := range results {
		terminal[key] = true
	}

	for _, key := range graph.Nodes() {
		if terminal[key] {
			continue
		}

		var reason string
		if unknown := missing[key]; len(unknown) > 0 {
			reason = fmt.Sprintf("depends on unknown tasks: %s", strings.Join(unknown, ", "))
		} else {
			deps, _ := graph.Dependencies(key)
			var blocked []string
			for _, dep := range deps {
				if !terminal[dep] {
					blocked = append(blocked, dep)
				}
			}
			reason = fmt.Sprintf("dependencies never completed: %s", strings.Join(blocked, ", "))
		}

		logger.Warn("⏭️ Skipping task with unresolvable dependencies.", "task", key, "reason", reason)
		results[key] = task.Result{
			Key:    key,
			Status: task.StatusSkipped,
			Err: &task.Error{
				Code:    task.CodeDependencyUnresolved,
				Message: reason,
			},
		}
		e.publish(progress.KindTaskSkipped, key, map[string]any{"reason": reason})
	}
}

// cancelResidual records a failed result for every task that never started
// because the run context ended first.
func (e *Executor) cancelResidual(graph *dag.Graph, results map[string]task.Result) {
	for _, key := range graph.Nodes() {
		if _, done := results[key]; done {
			continue
		}
		results[key] = task.Result{
			Key:    key,
			Status: task.StatusError,
			Err: &task.Error{
				Code:    task.CodeTaskFailed,
				Message: "run cancelled before task started",
			},
		}
		e.publish(progress.KindTaskFinish, key, map[string]any{
			"status": string(task.StatusError),
			"code":   string(task.CodeTaskFailed),
			"error":  "run cancelled before task started",
		})
	}
}

func (e *Executor) publish(kind progress.Kind, taskKey string, payload map[string]any) {
	e.bus.Publish(progress.Event{
		Kind:    kind,
		RunID:   e.cfg.RunID,
		TaskKey: taskKey,
		Payload: payload,
	})
}

func (e *Executor) publishStats(total, running, finished int) {
	e.publish(progress.KindStats, "", map[string]any{
		"total":    total,
		"running":  running,
		"finished": finished,
		"pending":  total - running - finished,
	})
}

func tally(results map[string]task.Result) map[task.Status]int {
	counts := make(map[task.Status]int, 3)
	for _, res := range results {
		counts[res.Status]++
	}
	return counts
}
