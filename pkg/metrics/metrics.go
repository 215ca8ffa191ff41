package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	apperrors "github.com/medimeet/appointment-api/pkg/errors"
)

// Metrics holds all application metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Domain metrics
	Transitions     *prometheus.CounterVec
	DirectoryLookup *prometheus.CounterVec

	// Outbox related metrics
	OutboxEventsProcessed   prometheus.Counter
	OutboxEventsFailed      prometheus.Counter
	OutboxProcessingLatency prometheus.Histogram
	OutboxQueueSize         prometheus.Gauge
	OutboxRetries           *prometheus.CounterVec

	// Database metrics
	DatabaseOperations *prometheus.CounterVec

	// Notification metrics
	NotificationsSent *prometheus.CounterVec
}

// New creates the collectors without registering them so tests can build as
// many instances as they like.
func New(namespace string) *Metrics {
	return &Metrics{
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),

		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Appointment and verification operations by outcome",
		}, []string{"operation", "outcome"}),
		DirectoryLookup: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "directory_cache_lookups_total",
			Help:      "Verified doctor directory lookups by cache result",
		}, []string{"result"}),

		OutboxEventsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_events_processed_total",
			Help:      "Total number of successfully processed outbox events",
		}),
		OutboxEventsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_events_failed_total",
			Help:      "Total number of failed outbox events",
		}),
		OutboxProcessingLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "outbox_processing_duration_seconds",
			Help:      "Time spent processing outbox events",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		OutboxQueueSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "outbox_queue_size",
			Help:      "Number of pending events fetched in the last poll",
		}),
		OutboxRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_retry_attempts_total",
			Help:      "Total number of retry attempts for outbox events",
		}, []string{"event_type"}),

		DatabaseOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "database_operations_total",
			Help:      "Total number of database operations",
		}, []string{"operation", "status"}),

		NotificationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_sent_total",
			Help:      "Notification emails by event type and status",
		}, []string{"event_type", "status"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.HTTPRequests,
		m.HTTPDuration,
		m.Transitions,
		m.DirectoryLookup,
		m.OutboxEventsProcessed,
		m.OutboxEventsFailed,
		m.OutboxProcessingLatency,
		m.OutboxQueueSize,
		m.OutboxRetries,
		m.DatabaseOperations,
		m.NotificationsSent,
	}
}

// MustRegister registers every collector with reg and panics on conflicts.
func (m *Metrics) MustRegister(reg prometheus.Registerer) *Metrics {
	reg.MustRegister(m.collectors()...)
	return m
}

// ObserveTransition records the outcome of a state-changing operation. err may
// be nil.
func (m *Metrics) ObserveTransition(operation string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
		if appErr, ok := apperrors.As(err); ok {
			outcome = appErr.Kind()
		}
	}
	m.Transitions.WithLabelValues(operation, outcome).Inc()
}
