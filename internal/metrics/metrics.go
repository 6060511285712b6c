// Package metrics exposes the agent's Prometheus counters.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "agent"

// Cycle kinds.
const (
	KindStep      = "step"
	KindRebalance = "rebalance"
	KindAlert     = "alert"
)

type Metrics struct {
	registry      *prometheus.Registry
	Decisions     *prometheus.CounterVec
	Trades        *prometheus.CounterVec
	CycleErrors   *prometheus.CounterVec
	CycleDuration *prometheus.HistogramVec
}

// New builds the collectors on their own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Strategy decisions by asset, action and strategy.",
		}, []string{"asset", "action", "strategy"}),
		Trades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_total",
			Help:      "Submitted trades by pair and result status.",
		}, []string{"from", "to", "status"}),
		CycleErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycle_errors_total",
			Help:      "Cycles that ended with an error.",
		}, []string{"kind"}),
		CycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of one cycle.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
	}
	m.registry.MustRegister(m.Decisions, m.Trades, m.CycleErrors, m.CycleDuration)
	return m
}

func (m *Metrics) Decision(asset, action, strategy string) {
	m.Decisions.WithLabelValues(asset, action, strategy).Inc()
}

func (m *Metrics) Trade(from, to, status string) {
	m.Trades.WithLabelValues(from, to, status).Inc()
}

// Cycle records one cycle of kind that started at start.
func (m *Metrics) Cycle(kind string, start time.Time, err error) {
	m.CycleDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	if err != nil {
		m.CycleErrors.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
