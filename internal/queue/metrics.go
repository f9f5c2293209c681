package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "contentq_jobs_enqueued_total",
		Help: "Total number of jobs enqueued by type",
	}, []string{"type"})

	jobsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "contentq_jobs_completed_total",
		Help: "Total number of jobs completed by type",
	}, []string{"type"})

	jobsRetried = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "contentq_jobs_retried_total",
		Help: "Total number of job retries scheduled by type",
	}, []string{"type"})

	jobsDead = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "contentq_jobs_dead_total",
		Help: "Total number of jobs moved to the dead-letter store by type",
	}, []string{"type"})

	jobsReclaimed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "contentq_jobs_reclaimed_total",
		Help: "Total number of stale processing jobs reclaimed",
	})
)

// MetricsRecorder records queue events to Prometheus.
type MetricsRecorder struct{}

// NewMetricsRecorder creates a new metrics recorder.
func NewMetricsRecorder() *MetricsRecorder {
	return &MetricsRecorder{}
}

// RecordEnqueued records one enqueued job.
func (m *MetricsRecorder) RecordEnqueued(t JobType) {
	jobsEnqueued.WithLabelValues(string(t)).Inc()
}

// RecordCompleted records one completed job.
func (m *MetricsRecorder) RecordCompleted(t JobType) {
	jobsCompleted.WithLabelValues(string(t)).Inc()
}

// RecordRetried records one scheduled retry.
func (m *MetricsRecorder) RecordRetried(t JobType) {
	jobsRetried.WithLabelValues(string(t)).Inc()
}

// RecordDead records one dead-lettered job.
func (m *MetricsRecorder) RecordDead(t JobType) {
	jobsDead.WithLabelValues(string(t)).Inc()
}

// RecordReclaimed records stale jobs recovered by the sweep.
func (m *MetricsRecorder) RecordReclaimed(n int) {
	jobsReclaimed.Add(float64(n))
}
