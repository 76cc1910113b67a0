package orderbook

import "github.com/ismaeelbashir03/OrderBookSimulation/internal/domain"

// priceLevel is a FIFO queue of orders at one price. Orders are linked
// intrusively so a cancel can unlink any of them in O(1).
type priceLevel struct {
	price domain.Price
	head  *Order
	tail  *Order
	count int // orders linked in
}

func newPriceLevel(price domain.Price) *priceLevel {
	return &priceLevel{price: price}
}

// pushBack appends a new arrival at the tail (lowest time priority).
func (l *priceLevel) pushBack(o *Order) {
	o.level = l
	o.next = nil
	o.prev = l.tail
	if l.tail == nil {
		l.head = o
	} else {
		l.tail.next = o
	}
	l.tail = o
	l.count++
}

// front returns the oldest order, or nil.
func (l *priceLevel) front() *Order {
	return l.head
}

// popFront removes and returns the oldest order.
func (l *priceLevel) popFront() *Order {
	o := l.head
	if o != nil {
		l.remove(o)
	}
	return o
}

// remove unlinks o wherever it sits in the queue.
func (l *priceLevel) remove(o *Order) {
	if o.prev != nil {
		o.prev.next = o.next
	} else {
		l.head = o.next
	}
	if o.next != nil {
		o.next.prev = o.prev
	} else {
		l.tail = o.prev
	}
	o.prev, o.next, o.level = nil, nil, nil
	l.count--
}

func (l *priceLevel) empty() bool {
	return l.count == 0
}

// totalQuantity sums the remaining quantity; an empty level reports zero.
func (l *priceLevel) totalQuantity() domain.Quantity {
	var total domain.Quantity
	for o := l.head; o != nil; o = o.next {
		total += o.remaining
	}
	return total
}
