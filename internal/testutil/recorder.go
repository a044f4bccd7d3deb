package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/vk/taskgridgo/internal/registry"
	"github.com/vk/taskgridgo/internal/task"
	"github.com/vk/taskgridgo/internal/taskctx"
)

// ExecutionRecord holds the start and end times for a single task's
// execution.
type ExecutionRecord struct {
	Start time.Time
	End   time.Time
}

// Recorder observes worker executions across goroutines: start and end
// times per task, completion order, and the peak number of workers alive at
// once. Register its Worker under a test-only name and declare tasks
// against it.
type Recorder struct {
	mu      sync.Mutex
	records map[string]ExecutionRecord
	order   []string
	active  int
	peak    int
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{records: make(map[string]ExecutionRecord)}
}

// Worker returns a registry.Worker that sleeps for d (context-aware),
// recording its execution window under the task's key.
func (rec *Recorder) Worker(d time.Duration) registry.Worker {
	return func(ctx context.Context, _ *taskctx.Context, t task.Task) (any, error) {
		rec.begin(t.Key)
		defer rec.end(t.Key)

		if d > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(d):
			}
		}
		return t.Key, nil
	}
}

func (rec *Recorder) begin(key string) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.records[key] = ExecutionRecord{Start: time.Now()}
	rec.active++
	if rec.active > rec.peak {
		rec.peak = rec.active
	}
}

func (rec *Recorder) end(key string) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	r := rec.records[key]
	r.End = time.Now()
	rec.records[key] = r
	rec.order = append(rec.order, key)
	rec.active--
}

// Record returns the execution window observed for the given task key.
func (rec *Recorder) Record(key string) (ExecutionRecord, bool) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	r, ok := rec.records[key]
	return r, ok
}

// Order returns task keys in the order their workers finished.
func (rec *Recorder) Order() []string {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	out := make([]string, len(rec.order))
	copy(out, rec.order)
	return out
}

// Peak returns the highest number of workers that were running at the same
// time.
func (rec *Recorder) Peak() int {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.peak
}
