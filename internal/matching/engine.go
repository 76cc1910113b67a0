package matching

import (
	"log/slog"
	"time"

	"github.com/ismaeelbashir03/OrderBookSimulation/internal/domain"
	"github.com/ismaeelbashir03/OrderBookSimulation/internal/orderbook"
	"github.com/ismaeelbashir03/OrderBookSimulation/internal/telemetry"
)

// Engine is the instrumented front of a single order book. It dispatches
// commands, records metrics and logs at debug level. Like the book it wraps,
// it is not safe for concurrent use.
type Engine struct {
	book   *orderbook.OrderBook
	logger *slog.Logger
}

// NewEngine creates a new matching engine around an empty book.
func NewEngine(logger *slog.Logger, opts ...orderbook.Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		book:   orderbook.NewOrderBook(opts...),
		logger: logger.With(slog.String("component", "matching")),
	}
}

// Handle executes one command. The sequence number is left for the caller
// to stamp.
func (e *Engine) Handle(cmd domain.OrderCommand) domain.CommandResult {
	result := domain.CommandResult{Command: cmd}
	switch cmd.Action {
	case domain.OrderActionAdd:
		result.Confirmation = e.AddOrder(cmd.Price, cmd.Quantity, cmd.Side, cmd.Type)
	case domain.OrderActionCancel:
		e.CancelOrder(cmd.OrderID)
	case domain.OrderActionModify:
		result.Confirmation = e.ModifyOrder(cmd.OrderID, cmd.Price, cmd.Quantity, cmd.Side)
	case domain.OrderActionSnapshot:
		infos := e.GetOrderInfos()
		result.Depth = &infos
	default:
		e.logger.Warn("unknown command", slog.String("action", string(cmd.Action)))
	}
	return result
}

// AddOrder admits an order and returns its confirmation.
func (e *Engine) AddOrder(price domain.Price, qty domain.Quantity, side domain.Side, orderType domain.OrderType) domain.OrderConfirmation {
	start := time.Now()
	conf := e.book.AddOrder(price, qty, side, orderType)
	telemetry.OperationDuration.WithLabelValues(string(domain.OrderActionAdd)).Observe(time.Since(start).Seconds())

	result := "admitted"
	if _, resting := e.book.Order(conf.OrderID); !resting && len(conf.Trades) == 0 {
		result = "rejected"
		e.logger.Debug("order not admitted",
			slog.Uint64("order_id", uint64(conf.OrderID)),
			slog.String("type", orderType.String()),
			slog.String("reason", rejectReason(qty)),
		)
	}
	telemetry.OrdersTotal.WithLabelValues(side.String(), orderType.String(), result).Inc()

	e.observeTrades(conf.Trades)
	e.observeBook()
	e.logger.Debug("add",
		slog.Uint64("order_id", uint64(conf.OrderID)),
		slog.Int64("price", int64(price)),
		slog.Uint64("quantity", uint64(qty)),
		slog.String("side", side.String()),
		slog.Int("trades", len(conf.Trades)),
	)
	return conf
}

// CancelOrder cancels a live order. Unknown ids are counted and ignored.
func (e *Engine) CancelOrder(id domain.OrderID) {
	_, live := e.book.Order(id)

	start := time.Now()
	e.book.CancelOrder(id)
	telemetry.OperationDuration.WithLabelValues(string(domain.OrderActionCancel)).Observe(time.Since(start).Seconds())

	if !live {
		telemetry.CancelsTotal.WithLabelValues("unknown").Inc()
		e.logger.Debug("cancel ignored", slog.Uint64("order_id", uint64(id)), slog.String("reason", "unknown order"))
		return
	}
	telemetry.CancelsTotal.WithLabelValues("cancelled").Inc()
	e.observeBook()
	e.logger.Debug("cancel", slog.Uint64("order_id", uint64(id)))
}

// ModifyOrder replaces a live order; the replacement gets a new id.
func (e *Engine) ModifyOrder(id domain.OrderID, price domain.Price, qty domain.Quantity, side domain.Side) domain.OrderConfirmation {
	start := time.Now()
	conf := e.book.ModifyOrder(id, price, qty, side)
	telemetry.OperationDuration.WithLabelValues(string(domain.OrderActionModify)).Observe(time.Since(start).Seconds())

	if conf.OrderID == 0 {
		telemetry.ModifiesTotal.WithLabelValues("unknown").Inc()
		e.logger.Debug("modify ignored", slog.Uint64("order_id", uint64(id)), slog.String("reason", "unknown order"))
		return conf
	}
	telemetry.ModifiesTotal.WithLabelValues("replaced").Inc()
	e.observeTrades(conf.Trades)
	e.observeBook()
	e.logger.Debug("modify",
		slog.Uint64("order_id", uint64(id)),
		slog.Uint64("new_order_id", uint64(conf.OrderID)),
		slog.Int("trades", len(conf.Trades)),
	)
	return conf
}

// GetOrderInfos returns the depth snapshot of the book.
func (e *Engine) GetOrderInfos() domain.OrderBookLevelInfos {
	start := time.Now()
	infos := e.book.GetOrderInfos()
	telemetry.OperationDuration.WithLabelValues(string(domain.OrderActionSnapshot)).Observe(time.Since(start).Seconds())
	return infos
}

// NumBids counts registered bid prices, empty levels included.
func (e *Engine) NumBids() int { return e.book.NumBids() }

// NumAsks counts registered ask prices, empty levels included.
func (e *Engine) NumAsks() int { return e.book.NumAsks() }

// NumOrders counts live orders.
func (e *Engine) NumOrders() int { return e.book.NumOrders() }

// Order returns a copy of a live order.
func (e *Engine) Order(id domain.OrderID) (domain.OrderView, bool) {
	return e.book.Order(id)
}

// BestBid purges stale top levels before reading the best bid.
func (e *Engine) BestBid() (domain.Price, bool) { return e.book.BestBid() }

// BestAsk purges stale top levels before reading the best ask.
func (e *Engine) BestAsk() (domain.Price, bool) { return e.book.BestAsk() }

func (e *Engine) observeTrades(trades domain.Trades) {
	for _, tr := range trades {
		telemetry.TradesTotal.Inc()
		telemetry.TradedQuantity.Add(float64(tr.Quantity()))
	}
}

func (e *Engine) observeBook() {
	telemetry.BookLevels.WithLabelValues(domain.SideBuy.String()).Set(float64(e.book.NumBids()))
	telemetry.BookLevels.WithLabelValues(domain.SideSell.String()).Set(float64(e.book.NumAsks()))
	telemetry.RestingOrders.Set(float64(e.book.NumOrders()))

	st := e.book.PoolStats()
	telemetry.PoolRecords.WithLabelValues("fresh").Set(float64(st.Fresh))
	telemetry.PoolRecords.WithLabelValues("reused").Set(float64(st.Reused))
	telemetry.PoolRecords.WithLabelValues("free").Set(float64(st.Free))
}

func rejectReason(qty domain.Quantity) string {
	if qty == 0 {
		return "zero quantity"
	}
	return "nothing to match on arrival"
}
