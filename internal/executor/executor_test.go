package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/taskgridgo/internal/pool"
	"github.com/vk/taskgridgo/internal/progress"
	"github.com/vk/taskgridgo/internal/registry"
	"github.com/vk/taskgridgo/internal/task"
	"github.com/vk/taskgridgo/internal/taskctx"
)

var errWorkerBoom = errors.New("boom")

// recorder observes worker executions across goroutines: start and end
// times per task, completion order, and the peak number of workers alive
// at once.
type recorder struct {
	mu     sync.Mutex
	order  []string
	starts map[string]time.Time
	ends   map[string]time.Time
	active int
	peak   int
}

func newRecorder() *recorder {
	return &recorder{
		starts: make(map[string]time.Time),
		ends:   make(map[string]time.Time),
	}
}

func (r *recorder) begin(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts[key] = time.Now()
	r.active++
	if r.active > r.peak {
		r.peak = r.active
	}
}

func (r *recorder) end(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ends[key] = time.Now()
	r.active--
	r.order = append(r.order, key)
}

// sleeper returns a worker that marks itself in the recorder, sleeps for
// d, and succeeds with its own key as the value.
func (r *recorder) sleeper(d time.Duration) registry.Worker {
	return func(ctx context.Context, _ *taskctx.Context, t task.Task) (any, error) {
		r.begin(t.Key)
		defer r.end(t.Key)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(d):
		}
		return t.Key, nil
	}
}

func (r *recorder) completionOrder() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

func (r *recorder) peakActive() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.peak
}

func (r *recorder) startedAfterEnded(started, ended string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, okS := r.starts[started]
	e, okE := r.ends[ended]
	return okS && okE && !s.Before(e)
}

func newTestExecutor(t *testing.T, cfg Config, reg *registry.Registry, bus *progress.Bus) *Executor {
	t.Helper()
	e, err := New(cfg, Options{Registry: reg, Bus: bus})
	require.NoError(t, err)
	return e
}

// assertOneResultEach checks the run produced exactly one terminal result
// per submitted task.
func assertOneResultEach(t *testing.T, tasks []task.Task, results map[string]task.Result) {
	t.Helper()
	require.Len(t, results, len(tasks))
	for _, tk := range tasks {
		res, ok := results[tk.Key]
		require.True(t, ok, "no result for task %q", tk.Key)
		assert.Equal(t, tk.Key, res.Key)
		assert.NotEmpty(t, res.Status)
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	reg := registry.New()

	_, err := New(Config{Concurrency: 0}, Options{Registry: reg})
	assert.ErrorContains(t, err, "concurrency must be at least 1")

	_, err = New(Config{Concurrency: 1}, Options{})
	assert.ErrorContains(t, err, "registry is required")
}

func TestRun_SetupErrors(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	reg.RegisterWorker("noop", func(context.Context, *taskctx.Context, task.Task) (any, error) {
		return nil, nil
	})

	testCases := []struct {
		name    string
		cfg     Config
		tasks   []task.Task
		wantErr string
	}{
		{
			name:    "empty submission",
			cfg:     Config{Concurrency: 1},
			tasks:   nil,
			wantErr: "no tasks submitted",
		},
		{
			name: "duplicate keys",
			cfg:  Config{Concurrency: 1},
			tasks: []task.Task{
				{Key: "a", Worker: "noop"},
				{Key: "a", Worker: "noop"},
			},
			wantErr: "duplicate task key",
		},
		{
			name: "self dependency",
			cfg:  Config{Concurrency: 1},
			tasks: []task.Task{
				{Key: "a", Worker: "noop", DependsOn: []string{"a"}},
			},
			wantErr: "self-referential",
		},
		{
			name: "reserved pool name",
			cfg: Config{
				Concurrency: 1,
				Pools:       []pool.Config{{Name: "default", Capacity: 2}},
			},
			tasks:   []task.Task{{Key: "a", Worker: "noop"}},
			wantErr: "reserved",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			e := newTestExecutor(t, tc.cfg, reg, nil)
			results, err := e.Run(context.Background(), tc.tasks)
			require.ErrorContains(t, err, tc.wantErr)
			assert.Nil(t, results)
		})
	}
}

func TestRun_DependencyOrder(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	rec := newRecorder()
	reg := registry.New()
	reg.RegisterWorker("sleep", rec.sleeper(10*time.Millisecond))

	tasks := []task.Task{
		{Key: "a", Worker: "sleep"},
		{Key: "b", Worker: "sleep", DependsOn: []string{"a"}},
		{Key: "c", Worker: "sleep", DependsOn: []string{"b"}},
	}
	e := newTestExecutor(t, Config{Concurrency: 4}, reg, nil)

	// --- Act ---
	results, err := e.Run(context.Background(), tasks)

	// --- Assert ---
	require.NoError(t, err)
	assertOneResultEach(t, tasks, results)
	for _, res := range results {
		assert.Equal(t, task.StatusSuccess, res.Status)
	}
	assert.True(t, rec.startedAfterEnded("b", "a"), "b must not start before a finished")
	assert.True(t, rec.startedAfterEnded("c", "b"), "c must not start before b finished")
}

func TestRun_DependentRunsAfterFailedDependency(t *testing.T) {
	t.Parallel()

	// A dependency reaching any terminal state unblocks its dependents;
	// failure is not contagious.
	rec := newRecorder()
	reg := registry.New()
	reg.RegisterWorker("fail", func(ctx context.Context, _ *taskctx.Context, tk task.Task) (any, error) {
		rec.begin(tk.Key)
		defer rec.end(tk.Key)
		return nil, errWorkerBoom
	})
	reg.RegisterWorker("sleep", rec.sleeper(time.Millisecond))

	tasks := []task.Task{
		{Key: "flaky", Worker: "fail"},
		{Key: "after", Worker: "sleep", DependsOn: []string{"flaky"}},
	}
	e := newTestExecutor(t, Config{Concurrency: 2}, reg, nil)

	results, err := e.Run(context.Background(), tasks)

	require.NoError(t, err)
	assert.Equal(t, task.StatusError, results["flaky"].Status)
	assert.Equal(t, task.StatusSuccess, results["after"].Status)
	assert.True(t, rec.startedAfterEnded("after", "flaky"))
}

func TestRun_ConcurrencyCapHolds(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	const limit = 3
	rec := newRecorder()
	reg := registry.New()
	reg.RegisterWorker("sleep", rec.sleeper(20*time.Millisecond))

	var tasks []task.Task
	for i := 0; i < 12; i++ {
		tasks = append(tasks, task.Task{Key: fmt.Sprintf("t%02d", i), Worker: "sleep"})
	}
	e := newTestExecutor(t, Config{Concurrency: limit}, reg, nil)

	// --- Act ---
	results, err := e.Run(context.Background(), tasks)

	// --- Assert ---
	require.NoError(t, err)
	assertOneResultEach(t, tasks, results)
	assert.LessOrEqual(t, rec.peakActive(), limit,
		"more workers ran at once than the concurrency cap allows")
}

func TestRun_PriorityOrder(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// x and z share the highest priority; y has the lowest and depends on
	// x. With one slot, z must jump ahead of y the moment x completes.
	rec := newRecorder()
	reg := registry.New()
	reg.RegisterWorker("sleep", rec.sleeper(15*time.Millisecond))

	tasks := []task.Task{
		{Key: "x", Worker: "sleep", Priority: 5},
		{Key: "y", Worker: "sleep", Priority: 1, DependsOn: []string{"x"}},
		{Key: "z", Worker: "sleep", Priority: 5},
	}
	e := newTestExecutor(t, Config{Concurrency: 1}, reg, nil)

	// --- Act ---
	results, err := e.Run(context.Background(), tasks)

	// --- Assert ---
	require.NoError(t, err)
	assertOneResultEach(t, tasks, results)
	assert.Equal(t, []string{"x", "z", "y"}, rec.completionOrder())
}

func TestRun_PriorityTieBreaksBySubmissionOrder(t *testing.T) {
	t.Parallel()

	rec := newRecorder()
	reg := registry.New()
	reg.RegisterWorker("sleep", rec.sleeper(5*time.Millisecond))

	tasks := []task.Task{
		{Key: "first", Worker: "sleep", Priority: 2},
		{Key: "second", Worker: "sleep", Priority: 2},
		{Key: "third", Worker: "sleep", Priority: 2},
	}
	e := newTestExecutor(t, Config{Concurrency: 1}, reg, nil)

	_, err := e.Run(context.Background(), tasks)

	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "third"}, rec.completionOrder())
}

func TestRun_RetryRecoversAndBacksOff(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	const base = 20 * time.Millisecond
	var calls int
	var mu sync.Mutex
	reg := registry.New()
	reg.RegisterWorker("flaky", func(context.Context, *taskctx.Context, task.Task) (any, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls < 3 {
			return nil, errWorkerBoom
		}
		return "ok", nil
	})

	bus := progress.NewBus(nil)
	events, err := bus.Subscribe("test", 64)
	require.NoError(t, err)

	tasks := []task.Task{{
		Key:    "a",
		Worker: "flaky",
		Retry:  &task.RetrySpec{MaxRetries: 3, BaseBackoff: base},
	}}
	e := newTestExecutor(t, Config{Concurrency: 1}, reg, bus)

	// --- Act ---
	start := time.Now()
	results, err := e.Run(context.Background(), tasks)
	elapsed := time.Since(start)
	bus.Close()

	// --- Assert ---
	require.NoError(t, err)
	res := results["a"]
	assert.Equal(t, task.StatusSuccess, res.Status)
	assert.Equal(t, "ok", res.Value)
	assert.Equal(t, 3, res.Attempts)

	// Two backoff sleeps of at least base and 2*base before jitter.
	assert.GreaterOrEqual(t, elapsed, 3*base)

	retries := 0
	for ev := range events {
		if ev.Kind == progress.KindTaskRetry {
			retries++
		}
	}
	assert.Equal(t, 2, retries)
}

func TestRun_RetryExhausted(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	reg.RegisterWorker("fail", func(context.Context, *taskctx.Context, task.Task) (any, error) {
		return nil, errWorkerBoom
	})

	tasks := []task.Task{{
		Key:    "a",
		Worker: "fail",
		Retry:  &task.RetrySpec{MaxRetries: 2, BaseBackoff: time.Millisecond},
	}}
	e := newTestExecutor(t, Config{Concurrency: 1}, reg, nil)

	results, err := e.Run(context.Background(), tasks)

	require.NoError(t, err)
	res := results["a"]
	assert.Equal(t, task.StatusError, res.Status)
	require.NotNil(t, res.Err)
	assert.Equal(t, task.CodeRetryExhausted, res.Err.Code)
	assert.Equal(t, 2, res.Err.Retries)
	assert.Equal(t, 3, res.Attempts)
	assert.Contains(t, res.Err.Message, "boom")
}

func TestRun_SingleFailureWithoutRetriesIsTaskFailed(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	reg.RegisterWorker("fail", func(context.Context, *taskctx.Context, task.Task) (any, error) {
		return nil, errWorkerBoom
	})

	tasks := []task.Task{{Key: "a", Worker: "fail"}}
	e := newTestExecutor(t, Config{Concurrency: 1}, reg, nil)

	results, err := e.Run(context.Background(), tasks)

	require.NoError(t, err)
	res := results["a"]
	require.NotNil(t, res.Err)
	assert.Equal(t, task.CodeTaskFailed, res.Err.Code, "a task that never had retries did not exhaust them")
	assert.Equal(t, 1, res.Attempts)
	assert.Zero(t, res.Err.Retries)
}

func TestRun_MissingDependencySkips(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	rec := newRecorder()
	reg := registry.New()
	reg.RegisterWorker("sleep", rec.sleeper(time.Millisecond))

	tasks := []task.Task{
		{Key: "orphan", Worker: "sleep", DependsOn: []string{"ghost"}},
		{Key: "fine", Worker: "sleep"},
	}
	e := newTestExecutor(t, Config{Concurrency: 2}, reg, nil)

	// --- Act ---
	done := make(chan struct{})
	var results map[string]task.Result
	var err error
	go func() {
		defer close(done)
		results, err = e.Run(context.Background(), tasks)
	}()

	// --- Assert ---
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("run hung on an unresolvable dependency")
	}
	require.NoError(t, err)
	assertOneResultEach(t, tasks, results)

	orphan := results["orphan"]
	assert.Equal(t, task.StatusSkipped, orphan.Status)
	require.NotNil(t, orphan.Err)
	assert.Equal(t, task.CodeDependencyUnresolved, orphan.Err.Code)
	assert.Contains(t, orphan.Err.Message, "ghost")
	assert.Zero(t, orphan.Attempts)

	assert.Equal(t, task.StatusSuccess, results["fine"].Status)
}

func TestRun_CycleSkipsItsMembers(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	reg.RegisterWorker("noop", func(context.Context, *taskctx.Context, task.Task) (any, error) {
		return nil, nil
	})

	tasks := []task.Task{
		{Key: "x", Worker: "noop", DependsOn: []string{"y"}},
		{Key: "y", Worker: "noop", DependsOn: []string{"x"}},
		{Key: "solo", Worker: "noop"},
	}
	e := newTestExecutor(t, Config{Concurrency: 2}, reg, nil)

	results, err := e.Run(context.Background(), tasks)

	require.NoError(t, err)
	assert.Equal(t, task.StatusSuccess, results["solo"].Status)
	for _, key := range []string{"x", "y"} {
		res := results[key]
		assert.Equal(t, task.StatusSkipped, res.Status, key)
		require.NotNil(t, res.Err)
		assert.Equal(t, task.CodeDependencyUnresolved, res.Err.Code)
		assert.Contains(t, res.Err.Message, "never completed")
	}
}

func TestRun_DependentOfSkippedTaskIsSkipped(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	reg.RegisterWorker("noop", func(context.Context, *taskctx.Context, task.Task) (any, error) {
		return nil, nil
	})

	tasks := []task.Task{
		{Key: "a", Worker: "noop", DependsOn: []string{"ghost"}},
		{Key: "b", Worker: "noop", DependsOn: []string{"a"}},
	}
	e := newTestExecutor(t, Config{Concurrency: 1}, reg, nil)

	results, err := e.Run(context.Background(), tasks)

	require.NoError(t, err)
	assert.Equal(t, task.StatusSkipped, results["a"].Status)
	assert.Equal(t, task.StatusSkipped, results["b"].Status)
	assert.Contains(t, results["b"].Err.Message, "a")
}

func TestRun_Rerun(t *testing.T) {
	t.Parallel()

	// The same executor serves consecutive runs without leftover state.
	reg := registry.New()
	reg.RegisterWorker("noop", func(_ context.Context, _ *taskctx.Context, tk task.Task) (any, error) {
		return tk.Key, nil
	})

	tasks := []task.Task{
		{Key: "a", Worker: "noop"},
		{Key: "b", Worker: "noop", DependsOn: []string{"a"}},
	}
	e := newTestExecutor(t, Config{Concurrency: 2}, reg, nil)

	first, err := e.Run(context.Background(), tasks)
	require.NoError(t, err)
	second, err := e.Run(context.Background(), tasks)
	require.NoError(t, err)

	require.Len(t, second, len(first))
	for key, res := range first {
		assert.Equal(t, res.Status, second[key].Status, key)
		assert.Equal(t, res.Value, second[key].Value, key)
	}
}

func TestRun_CapacityOnePoolSerializes(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// Four tasks race for a single-unit pool. None of them release it
	// explicitly; the engine's terminal sweep must hand the unit on, and
	// the pool's queue must serve the tasks one at a time.
	var mu sync.Mutex
	inPool := 0
	peak := 0

	reg := registry.New()
	reg.RegisterWorker("hog", func(ctx context.Context, tc *taskctx.Context, tk task.Task) (any, error) {
		if _, err := tc.Acquire(ctx, "db", 1); err != nil {
			return nil, err
		}
		mu.Lock()
		inPool++
		if inPool > peak {
			peak = inPool
		}
		mu.Unlock()

		time.Sleep(10 * time.Millisecond)

		mu.Lock()
		inPool--
		mu.Unlock()
		return nil, nil
	})

	var tasks []task.Task
	for i := 0; i < 4; i++ {
		tasks = append(tasks, task.Task{Key: fmt.Sprintf("h%d", i), Worker: "hog"})
	}
	cfg := Config{
		Concurrency: 4,
		Pools:       []pool.Config{{Name: "db", Capacity: 1}},
	}
	e := newTestExecutor(t, cfg, reg, nil)

	// --- Act ---
	results, err := e.Run(context.Background(), tasks)

	// --- Assert ---
	require.NoError(t, err)
	assertOneResultEach(t, tasks, results)
	for _, res := range results {
		assert.Equal(t, task.StatusSuccess, res.Status)
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, peak, "a capacity-1 pool must serialize its holders")
}

func TestRun_PoolHintThrottlesWorkers(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// The workers know nothing about pools; the grid-level hint alone
	// must serialize them.
	rec := newRecorder()
	reg := registry.New()
	reg.RegisterWorker("sleep", rec.sleeper(10*time.Millisecond))

	var tasks []task.Task
	for i := 0; i < 3; i++ {
		tasks = append(tasks, task.Task{
			Key:    fmt.Sprintf("h%d", i),
			Worker: "sleep",
			Hints:  map[string]string{"pool": "db"},
		})
	}
	cfg := Config{
		Concurrency: 3,
		Pools:       []pool.Config{{Name: "db", Capacity: 1}},
	}
	e := newTestExecutor(t, cfg, reg, nil)

	// --- Act ---
	results, err := e.Run(context.Background(), tasks)

	// --- Assert ---
	require.NoError(t, err)
	for _, res := range results {
		assert.Equal(t, task.StatusSuccess, res.Status)
	}
	assert.Equal(t, 1, rec.peakActive(), "a capacity-1 pool hint must serialize its tasks")
}

func TestRun_PoolHintUnknownPoolFailsTheTask(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	reg.RegisterWorker("noop", func(context.Context, *taskctx.Context, task.Task) (any, error) {
		return nil, nil
	})

	tasks := []task.Task{{
		Key:    "a",
		Worker: "noop",
		Hints:  map[string]string{"pool": "missing"},
	}}
	e := newTestExecutor(t, Config{Concurrency: 1}, reg, nil)

	results, err := e.Run(context.Background(), tasks)

	require.NoError(t, err)
	res := results["a"]
	assert.Equal(t, task.StatusError, res.Status)
	require.NotNil(t, res.Err)
	assert.Equal(t, task.CodeResourceNotFound, res.Err.Code)
	assert.Contains(t, res.Err.Message, "missing")
	assert.Zero(t, res.Attempts, "the worker never ran")
}

func TestRun_PoolHintOnDefaultPoolIsANoOp(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// Every running task already holds one default-pool unit, so a
	// "default" hint must not try to hold a second one. At concurrency 1
	// a second hold can never be granted and the run would hang.
	reg := registry.New()
	reg.RegisterWorker("noop", func(context.Context, *taskctx.Context, task.Task) (any, error) {
		return "ok", nil
	})

	tasks := []task.Task{{
		Key:    "a",
		Worker: "noop",
		Hints:  map[string]string{"pool": DefaultPool},
	}}
	e := newTestExecutor(t, Config{Concurrency: 1}, reg, nil)

	// --- Act ---
	type outcome struct {
		results map[string]task.Result
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		results, err := e.Run(context.Background(), tasks)
		done <- outcome{results: results, err: err}
	}()

	// --- Assert ---
	select {
	case out := <-done:
		require.NoError(t, out.err)
		res := out.results["a"]
		assert.Equal(t, task.StatusSuccess, res.Status)
		assert.Equal(t, "ok", res.Value)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not terminate with a default-pool hint")
	}
}

func TestRun_TimeoutBoundsTheTask(t *testing.T) {
	t.Parallel()

	rec := newRecorder()
	reg := registry.New()
	reg.RegisterWorker("sleep", rec.sleeper(5*time.Second))

	tasks := []task.Task{{Key: "slow", Worker: "sleep", Timeout: 50 * time.Millisecond}}
	e := newTestExecutor(t, Config{Concurrency: 1}, reg, nil)

	start := time.Now()
	results, err := e.Run(context.Background(), tasks)

	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	res := results["slow"]
	assert.Equal(t, task.StatusError, res.Status)
	require.NotNil(t, res.Err)
	assert.Equal(t, task.CodeTaskTimeout, res.Err.Code)
	assert.Contains(t, res.Err.Message, "timed out after")
}

func TestRun_TimeoutCoversRetriesAndBackoff(t *testing.T) {
	t.Parallel()

	// The budget is for the whole task, not per attempt: a generous retry
	// policy cannot stretch past it.
	reg := registry.New()
	reg.RegisterWorker("fail", func(context.Context, *taskctx.Context, task.Task) (any, error) {
		return nil, errWorkerBoom
	})

	tasks := []task.Task{{
		Key:     "a",
		Worker:  "fail",
		Timeout: 100 * time.Millisecond,
		Retry:   &task.RetrySpec{MaxRetries: 50, BaseBackoff: 30 * time.Millisecond},
	}}
	e := newTestExecutor(t, Config{Concurrency: 1}, reg, nil)

	start := time.Now()
	results, err := e.Run(context.Background(), tasks)

	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	res := results["a"]
	require.NotNil(t, res.Err)
	assert.Equal(t, task.CodeTaskTimeout, res.Err.Code)
	assert.Less(t, res.Attempts, 10, "the budget must cut retrying short")
}

func TestRun_WorkerPanicIsContained(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	reg.RegisterWorker("bomb", func(context.Context, *taskctx.Context, task.Task) (any, error) {
		panic("kaboom")
	})
	reg.RegisterWorker("noop", func(context.Context, *taskctx.Context, task.Task) (any, error) {
		return nil, nil
	})

	tasks := []task.Task{
		{Key: "bad", Worker: "bomb"},
		{Key: "good", Worker: "noop"},
	}
	e := newTestExecutor(t, Config{Concurrency: 2}, reg, nil)

	results, err := e.Run(context.Background(), tasks)

	require.NoError(t, err)
	res := results["bad"]
	assert.Equal(t, task.StatusError, res.Status)
	require.NotNil(t, res.Err)
	assert.Equal(t, task.CodeTaskFailed, res.Err.Code)
	assert.Contains(t, res.Err.Message, "worker panicked: kaboom")
	assert.NotEmpty(t, res.Err.Trace)

	assert.Equal(t, task.StatusSuccess, results["good"].Status)
}

func TestRun_UnknownWorkerFailsTheTask(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	reg.RegisterWorker("noop", func(context.Context, *taskctx.Context, task.Task) (any, error) {
		return nil, nil
	})

	tasks := []task.Task{
		{Key: "typo", Worker: "does-not-exist"},
		{Key: "fine", Worker: "noop"},
	}
	e := newTestExecutor(t, Config{Concurrency: 2}, reg, nil)

	results, err := e.Run(context.Background(), tasks)

	require.NoError(t, err)
	res := results["typo"]
	assert.Equal(t, task.StatusError, res.Status)
	require.NotNil(t, res.Err)
	assert.Equal(t, task.CodeTaskFailed, res.Err.Code)
	assert.Contains(t, res.Err.Message, "not registered")
	assert.Equal(t, task.StatusSuccess, results["fine"].Status)
}

func TestRun_UnknownPoolIsResourceNotFoundWithoutRetries(t *testing.T) {
	t.Parallel()

	var calls int
	var mu sync.Mutex
	reg := registry.New()
	reg.RegisterWorker("greedy", func(ctx context.Context, tc *taskctx.Context, _ task.Task) (any, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		if _, err := tc.Acquire(ctx, "no-such-pool", 1); err != nil {
			return nil, err
		}
		return nil, nil
	})

	tasks := []task.Task{{
		Key:    "a",
		Worker: "greedy",
		Retry:  &task.RetrySpec{MaxRetries: 3, BaseBackoff: time.Millisecond},
	}}
	e := newTestExecutor(t, Config{Concurrency: 1}, reg, nil)

	results, err := e.Run(context.Background(), tasks)

	require.NoError(t, err)
	res := results["a"]
	assert.Equal(t, task.StatusError, res.Status)
	require.NotNil(t, res.Err)
	assert.Equal(t, task.CodeResourceNotFound, res.Err.Code)
	assert.Contains(t, res.Err.Message, "no-such-pool")
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls, "a missing pool is permanent, retrying it is pointless")
}

func TestRun_CancellationDrainsInFlightAndFailsQueued(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	rec := newRecorder()
	reg := registry.New()
	reg.RegisterWorker("sleep", rec.sleeper(5*time.Second))

	tasks := []task.Task{
		{Key: "running", Worker: "sleep"},
		{Key: "queued", Worker: "sleep"},
		{Key: "blocked", Worker: "sleep", DependsOn: []string{"running"}},
	}
	e := newTestExecutor(t, Config{Concurrency: 1}, reg, nil)
	ctx, cancel := context.WithCancel(context.Background())

	// --- Act ---
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	start := time.Now()
	results, err := e.Run(ctx, tasks)

	// --- Assert ---
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 2*time.Second, "cancellation must not wait out worker sleeps")
	assertOneResultEach(t, tasks, results)

	assert.Equal(t, task.StatusError, results["running"].Status)
	assert.Equal(t, "run cancelled", results["running"].Err.Message)

	for _, key := range []string{"queued", "blocked"} {
		res := results[key]
		assert.Equal(t, task.StatusError, res.Status, key)
		require.NotNil(t, res.Err, key)
		assert.Equal(t, task.CodeTaskFailed, res.Err.Code, key)
		assert.Contains(t, res.Err.Message, "before task started", key)
	}
}

func TestRun_ProgressEvents(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	reg := registry.New()
	reg.RegisterWorker("noop", func(context.Context, *taskctx.Context, task.Task) (any, error) {
		return nil, nil
	})

	bus := progress.NewBus(nil)
	events, err := bus.Subscribe("test", 128)
	require.NoError(t, err)

	tasks := []task.Task{
		{Key: "a", Worker: "noop"},
		{Key: "b", Worker: "noop", DependsOn: []string{"a"}},
	}
	cfg := Config{Concurrency: 2, RunID: "run-1"}
	e := newTestExecutor(t, cfg, reg, bus)

	// --- Act ---
	_, err = e.Run(context.Background(), tasks)
	require.NoError(t, err)
	bus.Close()

	var seen []progress.Event
	for ev := range events {
		seen = append(seen, ev)
	}

	// --- Assert ---
	require.NotEmpty(t, seen)
	assert.Equal(t, progress.KindRunStart, seen[0].Kind)
	assert.Equal(t, progress.KindRunFinish, seen[len(seen)-1].Kind)

	kinds := make(map[progress.Kind]int)
	for _, ev := range seen {
		kinds[ev.Kind]++
		assert.Equal(t, "run-1", ev.RunID)
		assert.False(t, ev.Timestamp.IsZero())
	}
	assert.Equal(t, 2, kinds[progress.KindTaskStart])
	assert.Equal(t, 2, kinds[progress.KindTaskFinish])
}

func TestRun_StatsTicker(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	reg.RegisterWorker("sleep", newRecorder().sleeper(80*time.Millisecond))

	bus := progress.NewBus(nil)
	events, err := bus.Subscribe("test", 64)
	require.NoError(t, err)

	cfg := Config{Concurrency: 1, ProgressInterval: 20 * time.Millisecond}
	e := newTestExecutor(t, cfg, reg, bus)

	_, err = e.Run(context.Background(), []task.Task{{Key: "a", Worker: "sleep"}})
	require.NoError(t, err)
	bus.Close()

	stats := 0
	for ev := range events {
		if ev.Kind == progress.KindStats {
			stats++
			assert.EqualValues(t, 1, ev.Payload["total"])
		}
	}
	assert.GreaterOrEqual(t, stats, 1)
}
