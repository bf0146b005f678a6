package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce           sync.Once
	httpRequestsTotal      *prometheus.CounterVec
	httpLatencySeconds     *prometheus.HistogramVec
	studentsGradedTotal    *prometheus.CounterVec
	gradingDurationSeconds prometheus.Histogram
	gradingRetriesTotal    prometheus.Counter
)

// RegisterMetrics initialises the Prometheus collectors used by the grading service.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "geomark_http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "geomark_http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		studentsGradedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "geomark_students_graded_total",
			Help: "Number of students that reached a terminal grading state.",
		}, []string{"outcome"})

		gradingDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "geomark_student_grading_duration_seconds",
			Help:    "Wall-clock duration of grading a single student.",
			Buckets: []float64{1, 2.5, 5, 10, 20, 30, 60, 120},
		})

		gradingRetriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "geomark_grading_retries_total",
			Help: "Number of grading attempts that were retried.",
		})

		prometheus.MustRegister(httpRequestsTotal, httpLatencySeconds, studentsGradedTotal, gradingDurationSeconds, gradingRetriesTotal)
	})
}

// HTTPRequests exposes the request counter.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// StudentGraded records one student reaching a terminal state.
func StudentGraded(success bool, duration time.Duration) {
	RegisterMetrics()
	outcome := "completed"
	if !success {
		outcome = "failed"
	}
	studentsGradedTotal.WithLabelValues(outcome).Inc()
	gradingDurationSeconds.Observe(duration.Seconds())
}

// RetryRecorded counts one retried grading attempt.
func RetryRecorded() {
	RegisterMetrics()
	gradingRetriesTotal.Inc()
}
