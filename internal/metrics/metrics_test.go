package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/jamaly87/codebase-semantic-search/internal/breaker"
)

func newTestRegistry(t *testing.T) (*Registry, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return New(reg), reg
}

func TestBreakerRecorderTracksTransitionsAndState(t *testing.T) {
	m, reg := newTestRegistry(t)
	rec := m.BreakerRecorder()

	rec.RecordTransition(breaker.Closed, breaker.Open)

	count := testutil.ToFloat64(m.breakerTransitions.WithLabelValues("closed", "open"))
	if count != 1 {
		t.Errorf("expected 1 transition recorded, got %v", count)
	}
	if v := testutil.ToFloat64(m.breakerState.WithLabelValues("open")); v != 1 {
		t.Errorf("expected open state gauge to be 1, got %v", v)
	}
	if v := testutil.ToFloat64(m.breakerState.WithLabelValues("closed")); v != 0 {
		t.Errorf("expected closed state gauge to be 0 after transition, got %v", v)
	}

	if _, err := reg.Gather(); err != nil {
		t.Fatalf("metrics failed to gather: %v", err)
	}
}

func TestBreakerRecorderTracksQueueDepth(t *testing.T) {
	m, _ := newTestRegistry(t)
	rec := m.BreakerRecorder()

	rec.RecordQueueDepth(3)
	if v := testutil.ToFloat64(m.breakerQueueDepth); v != 3 {
		t.Errorf("expected queue depth 3, got %v", v)
	}
}

func TestObserveUpsertIncrementsByOutcome(t *testing.T) {
	m, _ := newTestRegistry(t)

	m.ObserveUpsert("success", 0.05)
	m.ObserveUpsert("success", 0.1)
	m.ObserveUpsert("failure", 0.2)

	if v := testutil.ToFloat64(m.storeUpsertTotal.WithLabelValues("success")); v != 2 {
		t.Errorf("expected 2 successful upserts, got %v", v)
	}
	if v := testutil.ToFloat64(m.storeUpsertTotal.WithLabelValues("failure")); v != 1 {
		t.Errorf("expected 1 failed upsert, got %v", v)
	}
}

func TestObserveRateLimitWaitAccumulatesTokens(t *testing.T) {
	m, _ := newTestRegistry(t)

	m.ObserveRateLimitWait(0.5, 100)
	m.ObserveRateLimitWait(0.1, 50)

	if v := testutil.ToFloat64(m.rateLimiterTokensUsed); v != 150 {
		t.Errorf("expected 150 tokens accounted, got %v", v)
	}
}
