package orderbook

import (
	"errors"
	"fmt"

	"github.com/ismaeelbashir03/OrderBookSimulation/internal/domain"
)

var (
	// ErrOverfill means a fill asked for more than the remaining quantity.
	// The matching loop never requests more than the smaller remaining
	// quantity, so seeing it means an engine invariant was broken.
	ErrOverfill = errors.New("orderbook: fill exceeds remaining quantity")

	// ErrStaleRecord means an index entry points at a record that was
	// released and handed out again.
	ErrStaleRecord = errors.New("orderbook: stale order record")
)

// Order is the mutable record of one admitted order. Records are owned by a
// single price level while resting and by the pool while free.
type Order struct {
	id        domain.OrderID
	price     domain.Price
	side      domain.Side
	orderType domain.OrderType
	initial   domain.Quantity
	remaining domain.Quantity

	// generation is bumped every time the record goes back to the pool.
	generation uint32

	// FIFO links inside the owning price level.
	level *priceLevel
	prev  *Order
	next  *Order
}

func newOrderRecord() *Order { return &Order{} }

// reset clears the record for reuse, keeping only the bumped generation.
func (o *Order) reset() {
	gen := o.generation + 1
	*o = Order{generation: gen}
}

func (o *Order) init(id domain.OrderID, price domain.Price, qty domain.Quantity, side domain.Side, t domain.OrderType) {
	o.id = id
	o.price = price
	o.side = side
	o.orderType = t
	o.initial = qty
	o.remaining = qty
}

// ID is the engine-assigned identifier.
func (o *Order) ID() domain.OrderID { return o.id }

// Price is the limit price, or the reference price of a market order.
func (o *Order) Price() domain.Price { return o.price }

// Side is the side of the book the order rests on.
func (o *Order) Side() domain.Side { return o.side }

// Type is the order's kind, kept across modifies.
func (o *Order) Type() domain.OrderType { return o.orderType }

// InitialQuantity is the quantity the order was admitted with.
func (o *Order) InitialQuantity() domain.Quantity { return o.initial }

// RemainingQuantity is what is still open.
func (o *Order) RemainingQuantity() domain.Quantity { return o.remaining }

// FilledQuantity is derived from initial and remaining.
func (o *Order) FilledQuantity() domain.Quantity {
	return o.initial - o.remaining
}

// Fill reduces the remaining quantity. It returns a wrapped ErrOverfill and
// leaves the record untouched when qty exceeds what remains.
func (o *Order) Fill(qty domain.Quantity) error {
	if qty > o.remaining {
		return fmt.Errorf("%w: order %d fill %d remaining %d", ErrOverfill, o.id, qty, o.remaining)
	}
	o.remaining -= qty
	return nil
}

// View copies the record into a value the caller can keep.
func (o *Order) View() domain.OrderView {
	return domain.OrderView{
		OrderID:           o.id,
		Price:             o.price,
		Side:              o.side,
		Type:              o.orderType,
		InitialQuantity:   o.initial,
		RemainingQuantity: o.remaining,
	}
}

// mustFill panics on overfill; it is only called from the matching paths.
func mustFill(o *Order, qty domain.Quantity) {
	if err := o.Fill(qty); err != nil {
		panic(err)
	}
}
