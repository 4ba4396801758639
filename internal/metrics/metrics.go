// Package metrics exposes Prometheus instrumentation for the scheduler and
// the matching engine. A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for a simulation process.
type Metrics struct {
	Ticks          prometheus.Counter
	TickDuration   prometheus.Histogram
	EventsFired    prometheus.Counter
	EventsSkipped  prometheus.Counter
	DispatchErrors *prometheus.CounterVec
	ExternalEvents *prometheus.CounterVec
	Subscriptions  prometheus.Gauge

	OrdersPlaced       prometheus.Counter
	OrdersRejected     prometheus.Counter
	Fills              *prometheus.CounterVec
	FillVolume         *prometheus.CounterVec
	SettlementFailures *prometheus.CounterVec
}

// New creates the metrics and registers them with reg. Passing
// prometheus.DefaultRegisterer exposes them on promhttp.Handler().
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Ticks: f.NewCounter(prometheus.CounterOpts{
			Name: "econ_ticks_total",
			Help: "Simulated hours advanced",
		}),
		TickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "econ_tick_duration_ms",
			Help:    "Wall time spent dispatching one simulated hour in milliseconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 50, 100, 500},
		}),
		EventsFired: f.NewCounter(prometheus.CounterOpts{
			Name: "econ_events_fired_total",
			Help: "Calendar subscriptions invoked",
		}),
		EventsSkipped: f.NewCounter(prometheus.CounterOpts{
			Name: "econ_events_skipped_total",
			Help: "Due subscriptions skipped because they were cancelled or their owner is gone",
		}),
		DispatchErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "econ_dispatch_errors_total",
			Help: "Handler failures by kind (error, panic)",
		}, []string{"kind"}),
		ExternalEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "econ_external_events_total",
			Help: "External events by outcome",
		}, []string{"outcome"}),
		Subscriptions: f.NewGauge(prometheus.GaugeOpts{
			Name: "econ_subscriptions",
			Help: "Live calendar subscriptions",
		}),

		OrdersPlaced: f.NewCounter(prometheus.CounterOpts{
			Name: "econ_orders_placed_total",
			Help: "Orders accepted into a book",
		}),
		OrdersRejected: f.NewCounter(prometheus.CounterOpts{
			Name: "econ_orders_rejected_total",
			Help: "Orders rejected as invalid",
		}),
		Fills: f.NewCounterVec(prometheus.CounterOpts{
			Name: "econ_fills_total",
			Help: "Committed fills by commodity kind",
		}, []string{"kind"}),
		FillVolume: f.NewCounterVec(prometheus.CounterOpts{
			Name: "econ_fill_volume_total",
			Help: "Money volume of committed fills by currency",
		}, []string{"currency"}),
		SettlementFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "econ_settlement_failures_total",
			Help: "Settlement failures by reason",
		}, []string{"reason"}),
	}
}

// RecordTick records one completed tick.
func (m *Metrics) RecordTick(durationMs float64, subscriptions int) {
	if m == nil {
		return
	}
	m.Ticks.Inc()
	m.TickDuration.Observe(durationMs)
	m.Subscriptions.Set(float64(subscriptions))
}

// RecordDispatch records the outcome counts of one dispatch pass.
func (m *Metrics) RecordDispatch(fired, skipped int) {
	if m == nil {
		return
	}
	m.EventsFired.Add(float64(fired))
	m.EventsSkipped.Add(float64(skipped))
}

// RecordDispatchError increments the handler failure counter.
func (m *Metrics) RecordDispatchError(kind string) {
	if m == nil {
		return
	}
	m.DispatchErrors.WithLabelValues(kind).Inc()
}

// RecordExternal records an external event outcome ("ok", "error", "queued").
func (m *Metrics) RecordExternal(outcome string) {
	if m == nil {
		return
	}
	m.ExternalEvents.WithLabelValues(outcome).Inc()
}

// RecordOrder records an accepted or rejected order.
func (m *Metrics) RecordOrder(accepted bool) {
	if m == nil {
		return
	}
	if accepted {
		m.OrdersPlaced.Inc()
		return
	}
	m.OrdersRejected.Inc()
}

// RecordFill records a committed fill.
func (m *Metrics) RecordFill(kind, currency string, volume float64) {
	if m == nil {
		return
	}
	m.Fills.WithLabelValues(kind).Inc()
	m.FillVolume.WithLabelValues(currency).Add(volume)
}

// RecordSettlementFailure records a failed settlement.
func (m *Metrics) RecordSettlementFailure(reason string) {
	if m == nil {
		return
	}
	m.SettlementFailures.WithLabelValues(reason).Inc()
}
