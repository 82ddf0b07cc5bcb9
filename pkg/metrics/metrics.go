package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TasksTotal counts tasks observed in each terminal or transient
	// status, labeled by status string (PENDING, RUNNING, COMPLETED,
	// ERROR, SPAWN_ERROR, ...).
	TasksTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "deferrun_tasks_total",
			Help: "Total number of tasks currently in each status",
		},
		[]string{"status"},
	)

	TaskDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "deferrun_task_duration_seconds",
			Help:    "Wall-clock duration of a background task from spawn to terminal status",
			Buckets: prometheus.DefBuckets,
		},
	)

	SpawnErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "deferrun_spawn_errors_total",
			Help: "Total number of failed process spawn attempts",
		},
	)

	SerializationErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "deferrun_serialization_errors_total",
			Help: "Total number of callable serialization failures",
		},
	)

	PoolActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "deferrun_pool_active",
			Help: "Number of tasks currently running inside a bounded pool",
		},
	)

	PoolQueued = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "deferrun_pool_queued",
			Help: "Number of tasks waiting for a free pool slot",
		},
	)

	CleanupRunsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "deferrun_cleanup_runs_total",
			Help: "Total number of status-file cleanup sweeps performed",
		},
	)

	CleanupRemovedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "deferrun_cleanup_removed_total",
			Help: "Total number of status files and worker scripts removed by cleanup sweeps",
		},
	)
)

func init() {
	prometheus.MustRegister(TasksTotal)
	prometheus.MustRegister(TaskDuration)
	prometheus.MustRegister(SpawnErrorsTotal)
	prometheus.MustRegister(SerializationErrorsTotal)
	prometheus.MustRegister(PoolActive)
	prometheus.MustRegister(PoolQueued)
	prometheus.MustRegister(CleanupRunsTotal)
	prometheus.MustRegister(CleanupRemovedTotal)
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
