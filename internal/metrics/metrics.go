// Package metrics defines the core's Prometheus instrumentation:
// package-level promauto-registered collectors plus small Record*/Set*
// helpers, rather than a metrics struct threaded through every call site.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics for the cmd/api Gin adapter.
	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status_code"},
	)
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)
	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Current number of HTTP requests being served",
		},
	)

	// QueueDepth tracks command_queue_items by status via SetQueueDepth;
	// nothing in this repository calls SetQueueDepth.
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "command_queue_depth",
			Help: "Current number of command queue items by status",
		},
		[]string{"status"},
	)

	// OCCRetries observes, once per OCC conflict that internal/occ.Retry
	// records, the number of the attempt that conflicted.
	OCCRetries = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "occ_retry_attempts",
			Help:    "Number of OCC retry attempts per posting operation",
			Buckets: []float64{1, 2, 3, 4, 5, 6},
		},
	)

	// OCCTimeouts counts posting operations that exhausted all OCC
	// retries and transitioned to occ_timeout.
	OCCTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "occ_timeouts_total",
			Help: "Total number of commands that exhausted OCC retries",
		},
	)

	// PostingDuration is registered for the wall time of a posting
	// operation including OCC retries; nothing in this repository observes
	// it.
	PostingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "posting_duration_seconds",
			Help:    "Duration of a posting operation including OCC retries",
			Buckets: prometheus.DefBuckets,
		},
	)

	// ActiveProcessors is the number of per-instance Processor goroutines
	// currently registered in internal/registry.
	ActiveProcessors = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dispatcher_active_processors",
			Help: "Current number of per-instance processor goroutines",
		},
	)

	// DeadLettersTotal counts every command that reached dead_letter,
	// labeled by the action that produced it.
	DeadLettersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "command_dead_letters_total",
			Help: "Total number of commands that reached dead_letter",
		},
		[]string{"action"},
	)

	// CommandsProcessedTotal counts terminal command outcomes by action
	// and final status.
	CommandsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commands_processed_total",
			Help: "Total number of commands reaching a terminal queue status",
		},
		[]string{"action", "status"},
	)
)

// RecordCommandOutcome records a terminal (processed or dead_letter)
// transition for a command.
func RecordCommandOutcome(action, status string) {
	CommandsProcessedTotal.WithLabelValues(action, status).Inc()
	if status == "dead_letter" {
		DeadLettersTotal.WithLabelValues(action).Inc()
	}
}

// SetQueueDepth updates the gauge for one status value.
func SetQueueDepth(status string, count int) {
	QueueDepth.WithLabelValues(status).Set(float64(count))
}
