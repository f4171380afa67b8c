// Package metrics defines the Prometheus collectors for message routing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "chatdesk"

// Metrics groups every collector. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	inbound          *prometheus.CounterVec
	intents          *prometheus.CounterVec
	handoffs         *prometheus.CounterVec
	payments         *prometheus.CounterVec
	aiLatency        *prometheus.HistogramVec
	outboundFailures *prometheus.CounterVec
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		inbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messages",
			Name:      "inbound_total",
			Help:      "Inbound WhatsApp messages by routing outcome",
		}, []string{"outcome"}),
		intents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messages",
			Name:      "intent_total",
			Help:      "Classified inbound messages by intent",
		}, []string{"intent"}),
		handoffs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "handoffs_total",
			Help:      "Handoff requests opened by priority",
		}, []string{"priority"}),
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "payments_total",
			Help:      "Payment records by resulting status",
		}, []string{"status"}),
		aiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ai",
			Name:      "generate_seconds",
			Help:      "Latency of generated replies",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30},
		}, []string{"status"}),
		outboundFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbound",
			Name:      "failures_total",
			Help:      "Failed calls to external collaborators",
		}, []string{"target"}),
	}

	if reg != nil {
		reg.MustRegister(m.inbound, m.intents, m.handoffs, m.payments, m.aiLatency, m.outboundFailures)
	}
	return m
}

// Inbound routing outcomes
const (
	OutcomeProcessed   = "processed"
	OutcomeIgnored     = "ignored"
	OutcomeDuplicate   = "duplicate"
	OutcomeRateLimited = "rate_limited"
	OutcomeForwarded   = "forwarded"
	OutcomeAdmin       = "admin"
	OutcomeFailed      = "failed"
)

// Outbound targets
const (
	TargetTransport = "transport"
	TargetSheets    = "sheets"
	TargetAI        = "ai"
)

func (m *Metrics) InboundMessage(outcome string) {
	if m == nil {
		return
	}
	m.inbound.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Intent(intent string) {
	if m == nil {
		return
	}
	m.intents.WithLabelValues(intent).Inc()
}

func (m *Metrics) HandoffOpened(priority string) {
	if m == nil {
		return
	}
	m.handoffs.WithLabelValues(priority).Inc()
}

func (m *Metrics) Payment(status string) {
	if m == nil {
		return
	}
	m.payments.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveAI(start time.Time, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.aiLatency.WithLabelValues(status).Observe(time.Since(start).Seconds())
}

func (m *Metrics) OutboundFailure(target string) {
	if m == nil {
		return
	}
	m.outboundFailures.WithLabelValues(target).Inc()
}
