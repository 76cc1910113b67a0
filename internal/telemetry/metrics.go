package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Engine metrics
	OrdersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lob_orders_total",
			Help: "Total number of add requests",
		},
		[]string{"side", "type", "result"}, // admitted, rejected
	)

	CancelsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lob_cancels_total",
			Help: "Total number of cancel requests",
		},
		[]string{"result"}, // cancelled, unknown
	)

	ModifiesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lob_modifies_total",
			Help: "Total number of modify requests",
		},
		[]string{"result"}, // replaced, unknown
	)

	TradesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lob_trades_total",
			Help: "Total number of trades",
		},
	)

	TradedQuantity = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lob_traded_quantity_total",
			Help: "Total quantity traded",
		},
	)

	BookLevels = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lob_book_levels",
			Help: "Registered price levels per side, including unpurged empty levels",
		},
		[]string{"side"},
	)

	RestingOrders = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lob_resting_orders",
			Help: "Live orders in the book",
		},
	)

	PoolRecords = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lob_pool_records",
			Help: "Order record pool usage",
		},
		[]string{"state"}, // fresh, reused, free
	)

	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lob_operation_duration_seconds",
			Help:    "Time spent inside the matching engine per command",
			Buckets: []float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005},
		},
		[]string{"action"},
	)

	// Sequencer metrics
	SequencerSequence = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lob_sequencer_sequence",
			Help: "Last sequence number stamped by the sequencer",
		},
	)

	SequencerDroppedResults = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lob_sequencer_dropped_results_total",
			Help: "Results not delivered because the results channel was full",
		},
	)

	// Market data metrics
	CandlesClosed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lob_candles_closed_total",
			Help: "Completed candlesticks",
		},
	)

	// Simulation metrics
	AgentActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lob_simulation_agent_actions_total",
			Help: "Actions taken by simulated agents",
		},
		[]string{"action"}, // add, cancel, modify, idle, skipped
	)

	SimulationTicks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lob_simulation_ticks_total",
			Help: "Simulated ticks processed",
		},
	)
)
