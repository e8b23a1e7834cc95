package metrics

import "github.com/prometheus/client_golang/prometheus"

// Outcome labels shared by the lifecycle counters.
const (
	OutcomeDelivered        = "delivered"
	OutcomeFailed           = "failed"
	OutcomeDropped          = "dropped"
	OutcomeApplied          = "applied"
	OutcomeDuplicate        = "duplicate"
	OutcomeSentinel         = "sentinel"
	OutcomeInvalidSignature = "invalid_signature"
	OutcomeUnknownPayment   = "unknown_payment"
	OutcomeError            = "error"
)

// NotificationMetrics counts dispatcher outcomes.
type NotificationMetrics struct {
	outcomes *prometheus.CounterVec
	attempts prometheus.Counter
}

// NewNotificationMetrics registers dispatcher metrics on reg.
func NewNotificationMetrics(reg prometheus.Registerer) *NotificationMetrics {
	if reg == nil {
		return &NotificationMetrics{}
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dormship_notifications_total",
		Help: "Notification dispatch outcomes.",
	}, []string{"outcome"})
	attempts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dormship_notification_attempts_total",
		Help: "Individual notification send attempts, including retries.",
	})
	reg.MustRegister(outcomes, attempts)
	return &NotificationMetrics{outcomes: outcomes, attempts: attempts}
}

func (m *NotificationMetrics) IncOutcome(outcome string) {
	if m == nil || m.outcomes == nil {
		return
	}
	m.outcomes.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *NotificationMetrics) IncAttempt() {
	if m == nil || m.attempts == nil {
		return
	}
	m.attempts.Inc()
}

// ReconcilerMetrics counts payment webhook outcomes. Reconciliation failures
// never reach the gateway, so this counter is what operators alert on.
type ReconcilerMetrics struct {
	outcomes *prometheus.CounterVec
}

func NewReconcilerMetrics(reg prometheus.Registerer) *ReconcilerMetrics {
	if reg == nil {
		return &ReconcilerMetrics{}
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dormship_payment_webhooks_total",
		Help: "Payment webhook reconciliation outcomes.",
	}, []string{"outcome"})
	reg.MustRegister(outcomes)
	return &ReconcilerMetrics{outcomes: outcomes}
}

func (m *ReconcilerMetrics) IncOutcome(outcome string) {
	if m == nil || m.outcomes == nil {
		return
	}
	m.outcomes.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// TransitionMetrics counts status ledger writes per entity and status.
type TransitionMetrics struct {
	transitions *prometheus.CounterVec
}

func NewTransitionMetrics(reg prometheus.Registerer) *TransitionMetrics {
	if reg == nil {
		return &TransitionMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dormship_status_transitions_total",
		Help: "Committed status transitions.",
	}, []string{"entity", "status"})
	reg.MustRegister(transitions)
	return &TransitionMetrics{transitions: transitions}
}

func (m *TransitionMetrics) Inc(entity, status string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(entity), normalizeLabel(status)).Inc()
}
