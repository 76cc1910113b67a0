package orderbook

import (
	"fmt"

	"github.com/ismaeelbashir03/OrderBookSimulation/internal/domain"
	"github.com/ismaeelbashir03/OrderBookSimulation/internal/pool"
)

// DefaultPrealloc is the number of order records created up front.
const DefaultPrealloc = 1000

// orderEntry maps an order id to its record for O(1) cancel and modify.
type orderEntry struct {
	order      *Order
	side       domain.Side
	price      domain.Price
	generation uint32
}

type options struct {
	prealloc int
}

// Option configures an OrderBook.
type Option func(*options)

// WithPrealloc sets how many order records the pool creates up front.
func WithPrealloc(n int) Option {
	return func(o *options) { o.prealloc = n }
}

// OrderBook is the matching engine for a single instrument.
//
// It is not safe for concurrent use. Callers that share a book across
// goroutines must serialize every call, see the sequencer package.
type OrderBook struct {
	bids   *bookSide
	asks   *bookSide
	orders map[domain.OrderID]orderEntry
	pool   *pool.Pool[Order]
	nextID domain.OrderID
}

// NewOrderBook creates an empty book.
func NewOrderBook(opts ...Option) *OrderBook {
	cfg := options{prealloc: DefaultPrealloc}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &OrderBook{
		bids:   newBookSide(domain.SideBuy),
		asks:   newBookSide(domain.SideSell),
		orders: make(map[domain.OrderID]orderEntry),
		pool:   pool.New(newOrderRecord, (*Order).reset, cfg.prealloc),
		nextID: 1,
	}
}

func (b *OrderBook) bookSide(side domain.Side) *bookSide {
	if side == domain.SideBuy {
		return b.bids
	}
	return b.asks
}

// AddOrder admits a new order and runs the matching loop.
//
// The returned confirmation always carries the id that was consumed, even
// when the order was not admitted (zero quantity or an immediate-or-cancel
// order with nothing to match against).
func (b *OrderBook) AddOrder(price domain.Price, qty domain.Quantity, side domain.Side, orderType domain.OrderType) domain.OrderConfirmation {
	o := b.pool.Get()
	id := b.nextID
	b.nextID++
	o.init(id, price, qty, side, orderType)

	conf := domain.OrderConfirmation{OrderID: id}

	if qty == 0 || (orderType == domain.OrderTypeImmediateOrCancel && !b.canMatch(side, price)) {
		b.pool.Put(o)
		return conf
	}

	if orderType == domain.OrderTypeMarket {
		conf.Trades = b.sweep(o)
		if o.remaining == 0 {
			b.pool.Put(o)
			return conf
		}
	}

	b.bookSide(side).insert(o)
	b.orders[id] = orderEntry{order: o, side: side, price: price, generation: o.generation}

	conf.Trades = append(conf.Trades, b.matchOrders()...)
	return conf
}

// CancelOrder removes a live order. Unknown ids are ignored. The price level
// stays registered even if it is now empty.
func (b *OrderBook) CancelOrder(id domain.OrderID) {
	entry, ok := b.orders[id]
	if !ok {
		return
	}
	o := b.checkedRecord(id, entry)
	o.level.remove(o)
	b.release(o)
}

// ModifyOrder replaces a live order with a new one carrying the original
// order type. The replacement gets a new id and goes through full admission
// and matching. Unknown ids return the zero confirmation.
func (b *OrderBook) ModifyOrder(id domain.OrderID, price domain.Price, qty domain.Quantity, side domain.Side) domain.OrderConfirmation {
	entry, ok := b.orders[id]
	if !ok {
		return domain.OrderConfirmation{}
	}
	orderType := b.checkedRecord(id, entry).orderType
	b.CancelOrder(id)
	return b.AddOrder(price, qty, side, orderType)
}

// NumBids counts registered bid prices, including empty levels that have
// not been purged yet.
func (b *OrderBook) NumBids() int { return b.bids.size() }

// NumAsks counts registered ask prices, including empty levels that have
// not been purged yet.
func (b *OrderBook) NumAsks() int { return b.asks.size() }

// NumOrders counts live orders.
func (b *OrderBook) NumOrders() int { return len(b.orders) }

// Order returns a copy of a live order.
func (b *OrderBook) Order(id domain.OrderID) (domain.OrderView, bool) {
	entry, ok := b.orders[id]
	if !ok {
		return domain.OrderView{}, false
	}
	return b.checkedRecord(id, entry).View(), true
}

// BestBid returns the highest bid price with resting quantity.
func (b *OrderBook) BestBid() (domain.Price, bool) {
	return bestPrice(b.bids)
}

// BestAsk returns the lowest ask price with resting quantity.
func (b *OrderBook) BestAsk() (domain.Price, bool) {
	return bestPrice(b.asks)
}

// PoolStats reports order record reuse.
func (b *OrderBook) PoolStats() pool.Stats {
	return b.pool.Stats()
}

func bestPrice(s *bookSide) (domain.Price, bool) {
	lvl := s.best()
	if lvl == nil {
		return 0, false
	}
	return lvl.price, true
}

// canMatch reports whether an order at price on side would trade against
// the current opposite best.
func (b *OrderBook) canMatch(side domain.Side, price domain.Price) bool {
	return b.bookSide(side.Opposite()).crosses(price)
}

// sweep fills a market order against the opposite side from its best price
// down, ignoring limit prices, until the order is done or the side is empty.
func (b *OrderBook) sweep(o *Order) domain.Trades {
	opposite := b.bookSide(o.side.Opposite())
	var trades domain.Trades
	for o.remaining > 0 {
		lvl := opposite.best()
		if lvl == nil {
			break
		}
		resting := lvl.front()
		qty := min(o.remaining, resting.remaining)
		mustFill(o, qty)
		mustFill(resting, qty)
		trades = append(trades, newTrade(o, resting, qty))
		if resting.remaining == 0 {
			lvl.popFront()
			b.release(resting)
		}
	}
	return trades
}

// matchOrders trades the best bid against the best ask while they cross.
// Both sides are purged before every step, and filled orders leave their
// level in place for a later purge.
func (b *OrderBook) matchOrders() domain.Trades {
	var trades domain.Trades
	for {
		bidLevel := b.bids.best()
		askLevel := b.asks.best()
		if bidLevel == nil || askLevel == nil || bidLevel.price < askLevel.price {
			return trades
		}

		bid := bidLevel.front()
		ask := askLevel.front()
		qty := min(bid.remaining, ask.remaining)
		mustFill(bid, qty)
		mustFill(ask, qty)
		trades = append(trades, newTrade(bid, ask, qty))

		if bid.remaining == 0 {
			bidLevel.popFront()
			b.release(bid)
		}
		if ask.remaining == 0 {
			askLevel.popFront()
			b.release(ask)
		}
	}
}

// release drops an order that already left its level from the index and
// returns its record to the pool.
func (b *OrderBook) release(o *Order) {
	delete(b.orders, o.id)
	b.pool.Put(o)
}

// checkedRecord guards against an index entry outliving its record.
func (b *OrderBook) checkedRecord(id domain.OrderID, entry orderEntry) *Order {
	o := entry.order
	if o.generation != entry.generation || o.id != id {
		panic(fmt.Errorf("%w: order %d entry generation %d record generation %d",
			ErrStaleRecord, id, entry.generation, o.generation))
	}
	return o
}

// newTrade builds a trade from two matched orders in either order. Each leg
// carries its own order's price.
func newTrade(a, b *Order, qty domain.Quantity) domain.Trade {
	bid, ask := a, b
	if a.side == domain.SideSell {
		bid, ask = b, a
	}
	return domain.Trade{
		Bid: domain.TradeInfo{OrderID: bid.id, Price: bid.price, Quantity: qty},
		Ask: domain.TradeInfo{OrderID: ask.id, Price: ask.price, Quantity: qty},
	}
}
