package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	CyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "trad_cycles_total",
			Help: "Total number of completed polling cycles.",
		},
	)

	OrdersSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trad_orders_submitted_total",
			Help: "Total number of orders submitted (by context).",
		},
		[]string{"context"},
	)

	ExitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trad_exits_total",
			Help: "Position exits by exit type.",
		},
		[]string{"exit_type"},
	)

	GateDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trad_gate_decisions_total",
			Help: "Entry-gate decisions by gate and outcome.",
		},
		[]string{"gate", "outcome"},
	)

	GateConfidence = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "trad_gate_confidence",
			Help:    "Confidence reported by the approval gate per decision.",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		},
	)

	PositionsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trad_positions_open",
			Help: "Number of currently open positions (0 or 1).",
		},
	)

	DailyPnLPct = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trad_daily_pnl_pct",
			Help: "Accumulated daily P&L in percent.",
		},
	)

	EquityGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trad_equity",
			Help: "Current equity of the executor (paper or live).",
		},
	)

	CycleErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trad_cycle_errors_total",
			Help: "Recoverable per-cycle errors by component.",
		},
		[]string{"component"},
	)
)

func init() {
	prometheus.MustRegister(
		CyclesTotal,
		OrdersSubmitted,
		ExitsTotal,
		GateDecisions,
		GateConfidence,
		PositionsOpen,
		DailyPnLPct,
		EquityGauge,
		CycleErrors,
	)
}
