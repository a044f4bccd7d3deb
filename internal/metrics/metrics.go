package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vk/taskgridgo/internal/progress"
)

// durationBuckets spans quick API probes up to multi-minute batch tasks.
var durationBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300}

// Metrics holds every collector the process exports.
type Metrics struct {
	registry *prometheus.Registry

	tasksFinished *prometheus.CounterVec
	taskRetries   prometheus.Counter
	tasksRunning  prometheus.Gauge
	taskDuration  prometheus.Histogram
}

// New builds the collector set on a private registry, alongside the
// standard Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		tasksFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskgrid_tasks_finished_total",
			Help: "Tasks that reached a terminal state, by status.",
		}, []string{"status"}),
		taskRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskgrid_task_retries_total",
			Help: "Retry attempts across all tasks.",
		}),
		tasksRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "taskgrid_tasks_running",
			Help: "Tasks currently executing.",
		}),
		taskDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "taskgrid_task_duration_seconds",
			Help:    "Wall-clock task duration including retries.",
			Buckets: durationBuckets,
		}),
	}

	m.registry.MustRegister(
		m.tasksFinished,
		m.taskRetries,
		m.tasksRunning,
		m.taskDuration,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

// WatchDropped exports the bus's cumulative dropped-event count. The
// callback is read at scrape time.
func (m *Metrics) WatchDropped(total func() int64) {
	m.registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "taskgrid_progress_events_dropped_total",
		Help: "Progress events lost to subscriber backpressure.",
	}, func() float64 {
		return float64(total())
	}))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Consume updates collectors from the event stream until the channel
// closes. The app runs it on its own goroutine.
func (m *Metrics) Consume(events <-chan progress.Event) {
	for e := range events {
		m.Observe(e)
	}
}

// Observe folds one progress event into the collectors. Events it does not
// recognize are ignored.
func (m *Metrics) Observe(e progress.Event) {
	switch e.Kind {
	case progress.KindTaskStart:
		m.tasksRunning.Inc()
	case progress.KindTaskFinish:
		if status, ok := e.Payload["status"].(string); ok {
			m.tasksFinished.WithLabelValues(status).Inc()
		}
		// A finish without a duration is a task that was cancelled before
		// it started. It never produced a start event, so it must not
		// drive the gauge negative.
		if ms, ok := asFloat(e.Payload["duration_ms"]); ok {
			m.tasksRunning.Dec()
			m.taskDuration.Observe(ms / 1000)
		}
	case progress.KindTaskRetry:
		m.taskRetries.Inc()
	case progress.KindTaskSkipped:
		m.tasksFinished.WithLabelValues("skipped").Inc()
	}
}

// asFloat reads the number shapes payload values arrive in.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
