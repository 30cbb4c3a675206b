// Package metrics provides Prometheus metrics for the analysis pipeline.
// Labels never carry session ids.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Stage outcome label values.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeTimeout   = "timeout"
)

var (
	// SessionsStartedTotal counts sessions accepted by the orchestrator.
	SessionsStartedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "medcopilot_sessions_started_total",
		Help: "Total number of analysis sessions started.",
	})

	// SessionsFinishedTotal counts terminal transitions by final status.
	SessionsFinishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "medcopilot_sessions_finished_total",
		Help: "Total number of analysis sessions that reached a terminal status, by status.",
	}, []string{"status"})

	// ActiveSessions tracks sessions that have not reached a terminal status.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "medcopilot_active_sessions",
		Help: "Current number of running analysis sessions.",
	})

	// StageDuration observes stage call latency by stage and outcome.
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "medcopilot_stage_duration_seconds",
		Help:    "Stage execution latency in seconds, by stage and outcome.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"stage", "outcome"})

	// DeliveryFailuresTotal counts events that could not reach a subscriber.
	DeliveryFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "medcopilot_subscriber_delivery_failures_total",
		Help: "Total number of events that failed to reach a session subscriber.",
	})

	// SessionsEvictedTotal counts sessions removed by the retention sweeper.
	SessionsEvictedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "medcopilot_sessions_evicted_total",
		Help: "Total number of terminal sessions evicted after their retention period.",
	})
)

// RecordSessionStarted marks a new session as started and active.
func RecordSessionStarted() {
	SessionsStartedTotal.Inc()
	ActiveSessions.Inc()
}

// RecordSessionFinished marks a session as no longer active.
func RecordSessionFinished(status string) {
	SessionsFinishedTotal.WithLabelValues(status).Inc()
	ActiveSessions.Dec()
}

// ObserveStage records the latency of one stage call.
func ObserveStage(stage, outcome string, d time.Duration) {
	StageDuration.WithLabelValues(stage, outcome).Observe(d.Seconds())
}

// RecordDeliveryFailure counts one failed subscriber delivery.
func RecordDeliveryFailure() {
	DeliveryFailuresTotal.Inc()
}

// RecordEvicted counts sessions removed by the sweeper.
func RecordEvicted(n int) {
	SessionsEvictedTotal.Add(float64(n))
}
