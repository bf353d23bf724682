// Package metrics exposes Prometheus collectors for the breaker, the
// embedder's rate limiter, and the vector-store adapters. Registration is
// optional: a nil *Registry or an unregistered collector never blocks a
// caller, matching the "metrics must not fail the run" posture spec.md's
// concurrency model implies for every ambient collaborator (SPEC_FULL.md §5).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jamaly87/codebase-semantic-search/internal/breaker"
)

// Registry owns this module's Prometheus collectors and registers them on
// an injected *prometheus.Registry (the default global one, or a private
// one for tests).
type Registry struct {
	breakerTransitions *prometheus.CounterVec
	breakerQueueDepth  prometheus.Gauge
	breakerState       *prometheus.GaugeVec

	rateLimiterWaitSeconds prometheus.Histogram
	rateLimiterTokensUsed  prometheus.Counter

	storeUpsertTotal   *prometheus.CounterVec
	storeUpsertSeconds prometheus.Histogram
	storeSearchSeconds prometheus.Histogram
}

// New builds a Registry and registers every collector on reg.
func New(reg prometheus.Registerer) *Registry {
	m := &Registry{
		breakerTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "codesearch",
			Subsystem: "breaker",
			Name:      "transitions_total",
			Help:      "Circuit breaker state transitions.",
		}, []string{"from", "to"}),
		breakerQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "codesearch",
			Subsystem: "breaker",
			Name:      "queue_depth",
			Help:      "Callers currently queued behind an open breaker.",
		}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "codesearch",
			Subsystem: "breaker",
			Name:      "state",
			Help:      "1 if the breaker is currently in this state, else 0.",
		}, []string{"state"}),
		rateLimiterWaitSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "codesearch",
			Subsystem: "embedder",
			Name:      "rate_limit_wait_seconds",
			Help:      "Time spent blocked on the embedder's token-per-minute quota gate.",
			Buckets:   prometheus.DefBuckets,
		}),
		rateLimiterTokensUsed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "codesearch",
			Subsystem: "embedder",
			Name:      "tokens_used_total",
			Help:      "Tokens accounted against the embedder's per-minute quota.",
		}),
		storeUpsertTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "codesearch",
			Subsystem: "vectorstore",
			Name:      "upsert_total",
			Help:      "Vector-store upsert calls by outcome.",
		}, []string{"outcome"}),
		storeUpsertSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "codesearch",
			Subsystem: "vectorstore",
			Name:      "upsert_seconds",
			Help:      "Latency of a batched vector-store upsert call.",
			Buckets:   prometheus.DefBuckets,
		}),
		storeSearchSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "codesearch",
			Subsystem: "vectorstore",
			Name:      "search_seconds",
			Help:      "Latency of a vector-store search call.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.breakerTransitions, m.breakerQueueDepth, m.breakerState,
			m.rateLimiterWaitSeconds, m.rateLimiterTokensUsed,
			m.storeUpsertTotal, m.storeUpsertSeconds, m.storeSearchSeconds,
		)
	}
	return m
}

// BreakerRecorder returns a breaker.Recorder view over this registry's
// breaker collectors, satisfying internal/breaker.Recorder.
func (m *Registry) BreakerRecorder() breaker.Recorder { return breakerRecorder{m} }

type breakerRecorder struct{ m *Registry }

func (r breakerRecorder) RecordTransition(from, to breaker.State) {
	r.m.breakerTransitions.WithLabelValues(from.String(), to.String()).Inc()
	for _, s := range []breaker.State{breaker.Closed, breaker.Open, breaker.HalfOpen} {
		v := 0.0
		if s == to {
			v = 1.0
		}
		r.m.breakerState.WithLabelValues(s.String()).Set(v)
	}
}

func (r breakerRecorder) RecordQueueDepth(depth int) {
	r.m.breakerQueueDepth.Set(float64(depth))
}

// ObserveRateLimitWait records time spent blocked on the embedder's quota
// gate and the tokens subsequently admitted.
func (m *Registry) ObserveRateLimitWait(waitSeconds float64, tokensAdmitted int) {
	m.rateLimiterWaitSeconds.Observe(waitSeconds)
	m.rateLimiterTokensUsed.Add(float64(tokensAdmitted))
}

// ObserveUpsert records one vector-store upsert call's outcome and latency.
func (m *Registry) ObserveUpsert(outcome string, seconds float64) {
	m.storeUpsertTotal.WithLabelValues(outcome).Inc()
	m.storeUpsertSeconds.Observe(seconds)
}

// ObserveSearch records one vector-store search call's latency.
func (m *Registry) ObserveSearch(seconds float64) {
	m.storeSearchSeconds.Observe(seconds)
}
