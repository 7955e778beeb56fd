// Package monitoring exposes Prometheus collectors for generation runs and
// the providers they call.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Candidate outcomes recorded by RecordOutcome.
const (
	OutcomePersisted     = "persisted"
	OutcomeDuplicate     = "duplicate"
	OutcomeNoPhone       = "no_phone"
	OutcomePersistFailed = "persist_failed"
)

var (
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadgen_runs_total",
			Help: "Generation runs finished, labeled by terminal status.",
		},
		[]string{"status"},
	)

	RunDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "leadgen_run_duration_seconds",
			Help:    "Wall-clock duration of generation runs.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~8.5m
		},
	)

	CandidateOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadgen_candidate_outcomes_total",
			Help: "Per-candidate terminal outcomes.",
		},
		[]string{"outcome"},
	)

	ProviderCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadgen_provider_calls_total",
			Help: "Calls to external providers, labeled by provider, operation and result.",
		},
		[]string{"provider", "operation", "result"},
	)

	ServiceFallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadgen_service_fallbacks_total",
			Help: "Enrichment or scoring results replaced by the default payload.",
		},
		[]string{"service"},
	)

	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "leadgen_circuit_breaker_state",
			Help: "Circuit breaker state per service (0 closed, 1 open, 2 half-open).",
		},
		[]string{"service"},
	)

	HTTPRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "leadgen_http_request_duration_seconds",
			Help:    "API request latency.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// RecordRun counts a finished run and observes its duration.
func RecordRun(status string, d time.Duration) {
	RunsTotal.WithLabelValues(status).Inc()
	RunDurationSeconds.Observe(d.Seconds())
}

// RecordOutcome counts one candidate outcome.
func RecordOutcome(outcome string) {
	CandidateOutcomesTotal.WithLabelValues(outcome).Inc()
}

// RecordProviderCall counts one provider call.
func RecordProviderCall(provider, operation string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	ProviderCallsTotal.WithLabelValues(provider, operation, result).Inc()
}

// RecordFallback counts a default substitution for service.
func RecordFallback(service string) {
	ServiceFallbacksTotal.WithLabelValues(service).Inc()
}

// SetBreakerState publishes a breaker transition.
func SetBreakerState(service string, state int) {
	BreakerState.WithLabelValues(service).Set(float64(state))
}
