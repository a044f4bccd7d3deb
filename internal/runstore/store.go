package runstore

import (
	"sort"
	"sync"
	"time"

	"github.com/vk/taskgridgo/internal/task"
)

// RunState describes where a run is in its lifecycle.
type RunState string

const (
	// StatePending marks a run that is stored but not yet executing.
	StatePending RunState = "pending"

	// StateRunning marks a run whose tasks are executing.
	StateRunning RunState = "running"

	// StateFinished marks a run whose results are recorded.
	StateFinished RunState = "finished"
)

// Counts summarizes the terminal statuses of a finished run.
type Counts struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Error   int `json:"error"`
	Skipped int `json:"skipped"`
}

// Run is the stored record of one submission.
type Run struct {
	ID        string                 `json:"id"`
	State     RunState               `json:"state"`
	Submitted time.Time              `json:"submitted"`
	Started   time.Time              `json:"started,omitzero"`
	Finished  time.Time              `json:"finished,omitzero"`
	Results   map[string]task.Result `json:"results,omitempty"`
	Counts    Counts                 `json:"counts"`

	// Error records a run-level failure, such as a rejected submission or
	// a cancelled run. Task-level failures live in Results instead.
	Error string `json:"error,omitempty"`
}

// Store holds run records for the lifetime of the process.
type Store struct {
	runs sync.Map // run ID -> Run
}

// New creates an empty store.
func New() *Store {
	return &Store{}
}

// Put stores the run, replacing any previous record under the same ID.
func (s *Store) Put(run Run) {
	s.runs.Store(run.ID, run)
}

// Get returns the run stored under id.
func (s *Store) Get(id string) (Run, bool) {
	v, ok := s.runs.Load(id)
	if !ok {
		return Run{}, false
	}
	return v.(Run), true
}

// MarkRunning transitions the run to the running state and stamps its start
// time. Unknown IDs are ignored.
func (s *Store) MarkRunning(id string, started time.Time) {
	run, ok := s.Get(id)
	if !ok {
		return
	}
	run.State = StateRunning
	run.Started = started
	s.Put(run)
}

// SetResults records the terminal results of the run, tallies its counts,
// and transitions it to the finished state. A non-nil runErr marks a
// run-level failure on the record. It returns the updated record.
func (s *Store) SetResults(id string, results map[string]task.Result, runErr error) (Run, bool) {
	run, ok := s.Get(id)
	if !ok {
		return Run{}, false
	}

	run.State = StateFinished
	run.Finished = time.Now().UTC()
	run.Results = results
	run.Counts = tally(results)
	if runErr != nil {
		run.Error = runErr.Error()
	}
	s.Put(run)
	return run, true
}

// List returns every stored run, most recently submitted first.
func (s *Store) List() []Run {
	var runs []Run
	s.runs.Range(func(_, v any) bool {
		runs = append(runs, v.(Run))
		return true
	})
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].Submitted.Equal(runs[j].Submitted) {
			return runs[i].Submitted.After(runs[j].Submitted)
		}
		return runs[i].ID < runs[j].ID
	})
	return runs
}

func tally(results map[string]task.Result) Counts {
	c := Counts{Total: len(results)}
	for _, r := range results {
		switch r.Status {
		case task.StatusSuccess:
			c.Success++
		case task.StatusError:
			c.Error++
		case task.StatusSkipped:
			c.Skipped++
		}
	}
	return c
}
