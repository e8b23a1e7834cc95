package metrics

import "github.com/prometheus/client_golang/prometheus"

// OutboxMetrics tracks the outbox publisher.
type OutboxMetrics struct {
	results *prometheus.CounterVec
	backlog prometheus.Gauge
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	m := &OutboxMetrics{
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dormship_outbox_publish_total",
			Help: "Outbox publish attempts by event type and outcome.",
		}, []string{"event_type", "result"}),
		backlog: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dormship_outbox_backlog",
			Help: "Outbox rows waiting to be published, sampled when the publisher goes idle.",
		}),
	}
	reg.MustRegister(m.results, m.backlog)
	return m
}

// Record counts one publish attempt.
func (m *OutboxMetrics) Record(eventType, result string) {
	if m == nil || m.results == nil {
		return
	}
	m.results.WithLabelValues(normalizeLabel(eventType), normalizeLabel(result)).Inc()
}

func (m *OutboxMetrics) SetBacklog(n int64) {
	if m == nil || m.backlog == nil {
		return
	}
	m.backlog.Set(float64(n))
}
