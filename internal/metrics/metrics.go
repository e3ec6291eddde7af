package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	EventsDispatchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hookrelay_events_dispatched_total",
			Help: "Total number of events handed to the dispatch coordinator.",
		},
		[]string{"event"},
	)

	DeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hookrelay_deliveries_total",
			Help: "Total number of deliveries reaching a terminal state, by state.",
		},
		[]string{"state"}, // delivered, exhausted, cancelled
	)

	AttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hookrelay_attempts_total",
			Help: "Total number of HTTP delivery attempts by outcome and status code.",
		},
		[]string{"outcome", "code"}, // outcome: success|failure; code: 200, 503, 0...
	)

	RetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hookrelay_retries_total",
			Help: "Total number of scheduled retries by failure reason.",
		},
		[]string{"reason"}, // e.g. http_5xx, timeout, network, other
	)

	AttemptLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hookrelay_attempt_latency_seconds",
			Help:    "Latency of completed HTTP delivery attempts.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	RetryQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hookrelay_retry_queue_depth",
			Help: "Number of deliveries currently waiting on the retry heap.",
		},
	)
)

func MustRegister(reg *prometheus.Registry) {
	reg.MustRegister(
		EventsDispatchedTotal,
		DeliveriesTotal,
		AttemptsTotal,
		RetriesTotal,
		AttemptLatency,
		RetryQueueDepth,
	)
}

// RecordDispatch counts one event entering the dispatch coordinator.
func RecordDispatch(event string) {
	EventsDispatchedTotal.WithLabelValues(event).Inc()
}

// RecordDelivery counts a delivery reaching a terminal state.
func RecordDelivery(state string) {
	DeliveriesTotal.WithLabelValues(state).Inc()
}

// RecordAttempt counts a single executed HTTP attempt. A status code of 0
// means no response was received.
func RecordAttempt(success bool, statusCode int, latency time.Duration) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	AttemptsTotal.WithLabelValues(outcome, strconv.Itoa(statusCode)).Inc()
	if latency > 0 {
		AttemptLatency.WithLabelValues(outcome).Observe(latency.Seconds())
	}
}

// RecordRetry counts a retry being scheduled, keyed by failure reason.
func RecordRetry(reason string) {
	RetriesTotal.WithLabelValues(reason).Inc()
}

// UpdateRetryQueueDepth sets the current retry heap depth.
func UpdateRetryQueueDepth(n float64) {
	RetryQueueDepth.Set(n)
}
