package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/vk/taskgridgo/internal/progress"
	"github.com/vk/taskgridgo/internal/runstore"
	"github.com/vk/taskgridgo/internal/task"
)

// SubmitFunc hands a validated submission to the engine and returns the ID
// of the run it started. The run executes asynchronously on the app's own
// context, so it survives the HTTP request that created it.
type SubmitFunc func(tasks []task.Task) (string, error)

// Server exposes run records and live progress over HTTP.
type Server struct {
	logger *slog.Logger
	store  *runstore.Store
	bus    *progress.Bus
	submit SubmitFunc
}

// New builds a Server. A nil logger falls back to the default.
func New(logger *slog.Logger, store *runstore.Store, bus *progress.Bus, submit SubmitFunc) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{logger: logger, store: store, bus: bus, submit: submit}
}

// Router assembles the route tree.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(s.requestLogger)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/runs", s.createRun)
		r.Get("/runs", s.listRuns)
		r.Get("/runs/{id}", s.getRun)
		r.Get("/events", s.streamEvents)
	})
	return r
}

// requestLogger logs one line per request with method, path, status, and
// latency.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("Request handled.",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"latency", time.Since(start).Round(time.Microsecond),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
