package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNotificationMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewNotificationMetrics(reg)
	m.IncAttempt()
	m.IncAttempt()
	m.IncOutcome(OutcomeDelivered)

	if got := testutil.ToFloat64(m.attempts); got != 2 {
		t.Fatalf("expected 2 attempts, got %f", got)
	}
	if got := testutil.ToFloat64(m.outcomes.WithLabelValues(OutcomeDelivered)); got != 1 {
		t.Fatalf("expected 1 delivered, got %f", got)
	}
}

func TestReconcilerMetricsNilSafe(t *testing.T) {
	var m *ReconcilerMetrics
	m.IncOutcome(OutcomeApplied)

	unregistered := NewReconcilerMetrics(nil)
	unregistered.IncOutcome(OutcomeApplied)
}

func TestTransitionMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewTransitionMetrics(reg)
	m.Inc("order", "DELIVERED")
	m.Inc("order", "DELIVERED")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	got, err := fetchCounterValue(mfs, "dormship_status_transitions_total", "status", "DELIVERED")
	if err != nil {
		t.Fatalf("fetch transitions: %v", err)
	}
	if got != 2 {
		t.Fatalf("expected 2 transitions, got %f", got)
	}
}
