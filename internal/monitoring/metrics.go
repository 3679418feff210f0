package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the agent. A nil *Metrics is
// valid and records nothing, which keeps test wiring small.
type Metrics struct {
	CountdownsStarted prometheus.Counter
	CountdownsUndone  prometheus.Counter
	DeletesTotal      *prometheus.CounterVec
	PendingActive     prometheus.Gauge
}

func NewMetrics() *Metrics {
	return &Metrics{
		CountdownsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "classdesk_countdowns_started_total",
			Help: "The total number of delete countdowns started",
		}),
		CountdownsUndone: promauto.NewCounter(prometheus.CounterOpts{
			Name: "classdesk_countdowns_undone_total",
			Help: "The total number of countdowns cancelled by the user",
		}),
		DeletesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "classdesk_deletes_total",
			Help: "The total number of delete executions by outcome",
		}, []string{"outcome"}), // 'deleted', 'already_gone', 'failed'
		PendingActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "classdesk_pending_delete_active",
			Help: "Whether a delete countdown is currently active",
		}),
	}
}

func (m *Metrics) IncStarted() {
	if m == nil {
		return
	}
	m.CountdownsStarted.Inc()
}

func (m *Metrics) IncUndone() {
	if m == nil {
		return
	}
	m.CountdownsUndone.Inc()
}

func (m *Metrics) IncDelete(outcome string) {
	if m == nil {
		return
	}
	m.DeletesTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SetPending(active bool) {
	if m == nil {
		return
	}
	if active {
		m.PendingActive.Set(1)
	} else {
		m.PendingActive.Set(0)
	}
}
