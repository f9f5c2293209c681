package worker

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/medvoyage/content-service/internal/queue"
)

var (
	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "contentq_worker_job_duration_seconds",
		Help:    "Wall time spent processing one job, by type and outcome",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"type", "outcome"})

	jobsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "contentq_worker_jobs_in_flight",
		Help: "Jobs currently being processed by this instance",
	})
)

// MetricsRecorder records worker timings to Prometheus.
type MetricsRecorder struct{}

// NewMetricsRecorder creates a new metrics recorder.
func NewMetricsRecorder() *MetricsRecorder {
	return &MetricsRecorder{}
}

// ObserveJob records one finished job.
func (m *MetricsRecorder) ObserveJob(t queue.JobType, ok bool, elapsed time.Duration) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	jobDuration.WithLabelValues(string(t), outcome).Observe(elapsed.Seconds())
}

// JobStarted marks a job in flight; pair with JobFinished.
func (m *MetricsRecorder) JobStarted() { jobsInFlight.Inc() }

// JobFinished releases the in-flight mark.
func (m *MetricsRecorder) JobFinished() { jobsInFlight.Dec() }
