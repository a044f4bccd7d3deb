package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vk/taskgridgo/internal/runstore"
	"github.com/vk/taskgridgo/internal/task"
)

// taskSpec is the wire shape of one task in a submission. Durations travel
// as strings so payloads read the same in JSON and grid files.
type taskSpec struct {
	Key       string            `json:"key"`
	Worker    string            `json:"worker"`
	Payload   map[string]any    `json:"payload,omitempty"`
	Hints     map[string]string `json:"hints,omitempty"`
	Priority  int               `json:"priority,omitempty"`
	Timeout   string            `json:"timeout,omitempty"`
	DependsOn []string          `json:"depends_on,omitempty"`
	Retries   *int              `json:"retries,omitempty"`
}

// submission is the body of POST /v1/runs.
type submission struct {
	Tasks []taskSpec `json:"tasks"`
}

// runSummary is a Run without its result payloads, for list responses.
type runSummary struct {
	ID        string            `json:"id"`
	State     runstore.RunState `json:"state"`
	Submitted time.Time         `json:"submitted"`
	Started   time.Time         `json:"started,omitzero"`
	Finished  time.Time         `json:"finished,omitzero"`
	Counts    runstore.Counts   `json:"counts"`
}

func (ts taskSpec) toTask() (task.Task, error) {
	t := task.Task{
		Key:       ts.Key,
		Worker:    ts.Worker,
		Payload:   ts.Payload,
		Hints:     ts.Hints,
		Priority:  ts.Priority,
		DependsOn: ts.DependsOn,
	}
	if ts.Timeout != "" {
		d, err := time.ParseDuration(ts.Timeout)
		if err != nil {
			return task.Task{}, fmt.Errorf("task %q: invalid timeout %q", ts.Key, ts.Timeout)
		}
		if d < 0 {
			return task.Task{}, fmt.Errorf("task %q: timeout cannot be negative", ts.Key)
		}
		t.Timeout = d
	}
	if ts.Retries != nil {
		if *ts.Retries < 0 {
			return task.Task{}, fmt.Errorf("task %q: retries cannot be negative", ts.Key)
		}
		t.Retry = &task.RetrySpec{MaxRetries: *ts.Retries}
	}
	return t, nil
}

// createRun validates a submission and hands it to the engine. The
// response carries only the run ID; results are fetched once the run has
// finished.
func (s *Server) createRun(w http.ResponseWriter, r *http.Request) {
	var sub submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Sprintf("invalid body: %v", err))
		return
	}

	tasks := make([]task.Task, 0, len(sub.Tasks))
	for _, ts := range sub.Tasks {
		t, err := ts.toTask()
		if err != nil {
			writeErr(w, http.StatusBadRequest, err.Error())
			return
		}
		tasks = append(tasks, t)
	}
	if err := task.Validate(tasks); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}

	runID, err := s.submit(tasks)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.logger.Info("Run submitted over HTTP.", "run_id", runID, "tasks", len(tasks))
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, ok := s.store.Get(id)
	if !ok {
		writeErr(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) listRuns(w http.ResponseWriter, _ *http.Request) {
	runs := s.store.List()
	summaries := make([]runSummary, 0, len(runs))
	for _, run := range runs {
		summaries = append(summaries, runSummary{
			ID:        run.ID,
			State:     run.State,
			Submitted: run.Submitted,
			Started:   run.Started,
			Finished:  run.Finished,
			Counts:    run.Counts,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": summaries})
}
