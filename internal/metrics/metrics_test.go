package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.InboundMessage(OutcomeProcessed)
	m.InboundMessage(OutcomeProcessed)
	m.InboundMessage(OutcomeRateLimited)
	m.Intent("GREETING")
	m.HandoffOpened("high")
	m.Payment("pending")
	m.OutboundFailure(TargetSheets)
	m.ObserveAI(time.Now(), errors.New("timeout"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.inbound.WithLabelValues(OutcomeProcessed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.inbound.WithLabelValues(OutcomeRateLimited)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.intents.WithLabelValues("GREETING")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.handoffs.WithLabelValues("high")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.outboundFailures.WithLabelValues(TargetSheets)))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "chatdesk_ai_generate_seconds")
	assert.Contains(t, names, "chatdesk_messages_inbound_total")
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.InboundMessage(OutcomeProcessed)
		m.Intent("GREETING")
		m.HandoffOpened("normal")
		m.Payment("approved")
		m.ObserveAI(time.Now(), nil)
		m.OutboundFailure(TargetTransport)
	})
}
