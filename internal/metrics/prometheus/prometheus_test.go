// internal/metrics/prometheus/prometheus_test.go
package prometheus

import (
	"testing"
	"time"

	"wallet-engine/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusCollector(t *testing.T) {
	registry := prometheus.NewRegistry()
	pc := NewPrometheusCollector("wallet")
	require.NoError(t, pc.Register(registry))

	pc.RecordTransaction("TRANSFER", "COMPLETED", 20*time.Millisecond)
	pc.RecordTransaction("TRANSFER", "COMPLETED", 30*time.Millisecond)
	pc.RecordTransaction("TRANSFER", "INSUFFICIENT_FUNDS", time.Millisecond)
	pc.RecordFee("TRANSFER", 5)
	pc.RecordNotification("SMS", false)
	pc.RecordCircuitState("SMS", metrics.CircuitOpen)
	pc.RecordQueueDepth(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(pc.transactions.WithLabelValues("TRANSFER", "COMPLETED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pc.transactions.WithLabelValues("TRANSFER", "INSUFFICIENT_FUNDS")))
	assert.Equal(t, 5.0, testutil.ToFloat64(pc.fees.WithLabelValues("TRANSFER")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pc.notifications.WithLabelValues("SMS", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pc.circuitState.WithLabelValues("SMS")))
	assert.Equal(t, 3.0, testutil.ToFloat64(pc.queueDepth))

	t.Run("double registration fails", func(t *testing.T) {
		assert.Error(t, pc.Register(registry))
	})
}
