package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mediakeep/sweeper/internal/models"
)

// Metrics exposes execution counters to Prometheus. It implements the
// executor's Observer interface.
type Metrics struct {
	executions   *prometheus.CounterVec
	itemsCleaned *prometheus.CounterVec
	bytesFreed   *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	running      prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sweeper_task_executions_total",
			Help: "Cleanup task executions by type and status.",
		}, []string{"task_type", "status"}),
		itemsCleaned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sweeper_items_cleaned_total",
			Help: "Items removed by cleanup tasks.",
		}, []string{"task_type"}),
		bytesFreed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sweeper_bytes_freed_total",
			Help: "Bytes reclaimed by cleanup tasks.",
		}, []string{"task_type"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sweeper_task_duration_seconds",
			Help:    "Cleanup task duration.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"task_type"}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sweeper_tasks_running",
			Help: "Number of cleanup tasks currently in flight.",
		}),
	}

	reg.MustRegister(m.executions, m.itemsCleaned, m.bytesFreed, m.duration, m.running)
	return m
}

func (m *Metrics) TaskStarted(taskType models.TaskType) {
	m.running.Inc()
}

func (m *Metrics) TaskFinished(result *models.CleanupResult) {
	m.running.Dec()
	m.executions.WithLabelValues(string(result.TaskType), string(result.Status)).Inc()
	m.itemsCleaned.WithLabelValues(string(result.TaskType)).Add(float64(result.Stats.CleanedCount))
	m.bytesFreed.WithLabelValues(string(result.TaskType)).Add(float64(result.Stats.BytesFreed))
	m.duration.WithLabelValues(string(result.TaskType)).Observe(result.Duration.Seconds())
}
