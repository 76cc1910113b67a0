package simulation

import (
	"github.com/shopspring/decimal"

	"github.com/ismaeelbashir03/OrderBookSimulation/internal/domain"
)

// Wallet tracks an agent's cash balance and position.
type Wallet struct {
	Cash     decimal.Decimal
	Holdings int64
}

type ownedOrder struct {
	agent     int
	remaining domain.Quantity
}

// Filled names an order that a settlement completed, and its owner.
type Filled struct {
	OrderID domain.OrderID
	Agent   int
}

// Ledger settles trades against agent wallets. It also keeps the registry
// of which agent owns which live order, since trades only carry order ids.
type Ledger struct {
	wallets []Wallet
	orders  map[domain.OrderID]*ownedOrder
}

// NewLedger opens n wallets with the same starting balance.
func NewLedger(n int, cash decimal.Decimal, holdings int64) *Ledger {
	l := &Ledger{
		wallets: make([]Wallet, n),
		orders:  make(map[domain.OrderID]*ownedOrder),
	}
	for i := range l.wallets {
		l.wallets[i] = Wallet{Cash: cash, Holdings: holdings}
	}
	return l
}

// Register records that agent owns a new order of qty lots.
func (l *Ledger) Register(id domain.OrderID, agent int, qty domain.Quantity) {
	l.orders[id] = &ownedOrder{agent: agent, remaining: qty}
}

// Release forgets an order that was cancelled or replaced.
func (l *Ledger) Release(id domain.OrderID) {
	delete(l.orders, id)
}

// Owner returns the agent that owns a live order.
func (l *Ledger) Owner(id domain.OrderID) (int, bool) {
	o, ok := l.orders[id]
	if !ok {
		return 0, false
	}
	return o.agent, true
}

// Wallet returns a copy of an agent's wallet.
func (l *Ledger) Wallet(agent int) Wallet {
	return l.wallets[agent]
}

// Settle applies one trade. The buyer pays the bid leg's price and the
// seller receives the ask leg's price, each on the traded quantity. Legs
// for orders the ledger does not own are ignored. Orders the trade filled
// completely are returned and dropped from the registry.
func (l *Ledger) Settle(tr domain.Trade) []Filled {
	var filled []Filled
	qty := tr.Quantity()

	if o, ok := l.orders[tr.Bid.OrderID]; ok {
		w := &l.wallets[o.agent]
		w.Cash = w.Cash.Sub(legValue(tr.Bid))
		w.Holdings += int64(qty)
		if f, done := l.fill(tr.Bid.OrderID, o, qty); done {
			filled = append(filled, f)
		}
	}
	if o, ok := l.orders[tr.Ask.OrderID]; ok {
		w := &l.wallets[o.agent]
		w.Cash = w.Cash.Add(legValue(tr.Ask))
		w.Holdings -= int64(qty)
		if f, done := l.fill(tr.Ask.OrderID, o, qty); done {
			filled = append(filled, f)
		}
	}
	return filled
}

func (l *Ledger) fill(id domain.OrderID, o *ownedOrder, qty domain.Quantity) (Filled, bool) {
	if qty >= o.remaining {
		delete(l.orders, id)
		return Filled{OrderID: id, Agent: o.agent}, true
	}
	o.remaining -= qty
	return Filled{}, false
}

func legValue(leg domain.TradeInfo) decimal.Decimal {
	return decimal.NewFromInt(int64(leg.Price)).Mul(decimal.NewFromInt(int64(leg.Quantity)))
}

// TotalHoldings sums every agent's position. Trades between agents leave
// it unchanged.
func (l *Ledger) TotalHoldings() int64 {
	var total int64
	for _, w := range l.wallets {
		total += w.Holdings
	}
	return total
}
