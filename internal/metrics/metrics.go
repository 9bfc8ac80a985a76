// Package metrics exposes Prometheus instruments for the wallet, stream and trade paths.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "boomkit"

// Metrics groups all instruments.
type Metrics struct {
	walletWrites      *prometheus.CounterVec
	walletSyncFailure *prometheus.CounterVec
	cashBalance       prometheus.Gauge
	streamEvents      *prometheus.CounterVec
	streamReconnects  prometheus.Counter
	trades            *prometheus.CounterVec
}

// New creates the instruments and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		walletWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wallet",
			Name:      "writes_total",
			Help:      "Wallet writes by reason and outcome (applied or stale).",
		}, []string{"reason", "outcome"}),
		walletSyncFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wallet",
			Name:      "sync_failures_total",
			Help:      "Failed backend wallet syncs by reason.",
		}, []string{"reason"}),
		cashBalance: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "wallet",
			Name:      "cash_balance",
			Help:      "Last applied cash balance.",
		}),
		streamEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "events_total",
			Help:      "Push events by type and outcome (dispatched, duplicate, invalid).",
		}, []string{"type", "outcome"}),
		streamReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "reconnects_total",
			Help:      "Push stream reconnect attempts.",
		}),
		trades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trade",
			Name:      "executions_total",
			Help:      "Trade executions by side and outcome.",
		}, []string{"side", "outcome"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.walletWrites,
			m.walletSyncFailure,
			m.cashBalance,
			m.streamEvents,
			m.streamReconnects,
			m.trades,
		)
	}

	return m
}

// WalletWrite records an applied or discarded wallet write.
func (m *Metrics) WalletWrite(reason string, applied bool, cash float64) {
	if m == nil {
		return
	}
	outcome := "stale"
	if applied {
		outcome = "applied"
		m.cashBalance.Set(cash)
	}
	m.walletWrites.WithLabelValues(reason, outcome).Inc()
}

// WalletSyncFailed records a swallowed sync failure.
func (m *Metrics) WalletSyncFailed(reason string) {
	if m == nil {
		return
	}
	m.walletSyncFailure.WithLabelValues(reason).Inc()
}

// StreamEvent records a push event outcome.
func (m *Metrics) StreamEvent(eventType, outcome string) {
	if m == nil {
		return
	}
	m.streamEvents.WithLabelValues(eventType, outcome).Inc()
}

// StreamReconnect records a reconnect attempt.
func (m *Metrics) StreamReconnect() {
	if m == nil {
		return
	}
	m.streamReconnects.Inc()
}

// Trade records a trade execution outcome.
func (m *Metrics) Trade(side, outcome string) {
	if m == nil {
		return
	}
	m.trades.WithLabelValues(side, outcome).Inc()
}
