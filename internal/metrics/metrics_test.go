package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.WalletWrite("purchase", true, 900)
	m.WalletWrite("poll", false, 100)
	m.StreamEvent("market_update", "duplicate")
	m.Trade("buy", "succeeded")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.walletWrites.WithLabelValues("purchase", "applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.walletWrites.WithLabelValues("poll", "stale")))
	assert.Equal(t, 900.0, testutil.ToFloat64(m.cashBalance))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.streamEvents.WithLabelValues("market_update", "duplicate")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.WalletWrite("poll", true, 1)
	m.WalletSyncFailed("poll")
	m.StreamEvent("x", "y")
	m.StreamReconnect()
	m.Trade("buy", "failed")
}
