package economy

import (
	"github.com/prometheus/client_golang/prometheus"

	"economy/internal/bank"
)

// Metrics counts action outcomes.
type Metrics struct {
	actions *prometheus.CounterVec
}

// NewMetrics registers the economy collectors on reg. When ledger is non-nil
// a gauge reporting its total wealth is registered too.
func NewMetrics(reg prometheus.Registerer, ledger *bank.Ledger) *Metrics {
	m := &Metrics{
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "economy",
			Name:      "actions_total",
			Help:      "Player actions by action name and result (ok, failure kind or error).",
		}, []string{"action", "result"}),
	}
	reg.MustRegister(m.actions)
	if ledger != nil {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "economy",
			Name:      "total_wealth",
			Help:      "Running sum of all transaction amounts.",
		}, func() float64 { return float64(ledger.TotalWealth()) }))
	}
	return m
}

func (m *Metrics) observe(action, result string) {
	if m == nil {
		return
	}
	m.actions.WithLabelValues(action, result).Inc()
}
