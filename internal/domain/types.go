package domain

import "fmt"

// Price is a signed fixed-point tick count.
type Price int64

// Quantity is an unsigned lot count.
type Quantity uint64

// OrderID is assigned by the engine, starts at 1 and is never reused.
type OrderID uint64

// Side represents the order side (buy or sell). It is a small integer so
// the zero value is usable, and it marshals as its String form.
type Side uint8

const (
	SideBuy Side = iota
	SideSell
)

// String returns "buy" or "sell".
func (s Side) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	default:
		return fmt.Sprintf("side(%d)", uint8(s))
	}
}

// Opposite returns the other side of the book.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// MarshalText encodes the side as "buy" or "sell".
func (s Side) MarshalText() ([]byte, error) {
	if s != SideBuy && s != SideSell {
		return nil, fmt.Errorf("unknown side %d", uint8(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText accepts anything ParseSide does.
func (s *Side) UnmarshalText(b []byte) error {
	v, err := ParseSide(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseSide accepts "buy"/"bid" and "sell"/"ask".
func ParseSide(v string) (Side, error) {
	switch v {
	case "buy", "bid", "b":
		return SideBuy, nil
	case "sell", "ask", "s":
		return SideSell, nil
	default:
		return 0, fmt.Errorf("unknown side %q", v)
	}
}

// OrderType is the admission semantics of an order. The set is closed and
// the zero value is a plain limit order; it marshals as its String form.
type OrderType uint8

const (
	// OrderTypeLimit rests at its price until filled or cancelled. It is the default.
	OrderTypeLimit OrderType = iota
	// OrderTypeMarket sweeps the opposite side on admission without a price test.
	// Its price is kept as a reference price for trade legs and for any remainder.
	OrderTypeMarket
	// OrderTypeImmediateOrCancel is admitted only if it can match on arrival.
	OrderTypeImmediateOrCancel
	// OrderTypeGoodTillCancel rests indefinitely.
	OrderTypeGoodTillCancel
)

// String returns limit, market, ioc or gtc.
func (t OrderType) String() string {
	switch t {
	case OrderTypeLimit:
		return "limit"
	case OrderTypeMarket:
		return "market"
	case OrderTypeImmediateOrCancel:
		return "ioc"
	case OrderTypeGoodTillCancel:
		return "gtc"
	default:
		return fmt.Sprintf("order_type(%d)", uint8(t))
	}
}

// MarshalText encodes the kind as limit, market, ioc or gtc.
func (t OrderType) MarshalText() ([]byte, error) {
	if t > OrderTypeGoodTillCancel {
		return nil, fmt.Errorf("unknown order type %d", uint8(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText accepts anything ParseOrderType does.
func (t *OrderType) UnmarshalText(b []byte) error {
	v, err := ParseOrderType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// ParseOrderType accepts the String forms plus a few common aliases.
func ParseOrderType(v string) (OrderType, error) {
	switch v {
	case "", "limit":
		return OrderTypeLimit, nil
	case "market":
		return OrderTypeMarket, nil
	case "ioc", "fok", "fak", "immediate_or_cancel":
		return OrderTypeImmediateOrCancel, nil
	case "gtc", "good_till_cancel":
		return OrderTypeGoodTillCancel, nil
	default:
		return 0, fmt.Errorf("unknown order type %q", v)
	}
}

// OrderView is a read-only copy of a live order.
type OrderView struct {
	OrderID           OrderID   `json:"order_id"`
	Price             Price     `json:"price"`
	Side              Side      `json:"side"`
	Type              OrderType `json:"type"`
	InitialQuantity   Quantity  `json:"initial_quantity"`
	RemainingQuantity Quantity  `json:"remaining_quantity"`
}

// FilledQuantity is derived, never stored.
func (v OrderView) FilledQuantity() Quantity {
	return v.InitialQuantity - v.RemainingQuantity
}

// TradeInfo is one leg of a trade. Price is the matched order's own price.
type TradeInfo struct {
	OrderID  OrderID  `json:"order_id"`
	Price    Price    `json:"price"`
	Quantity Quantity `json:"quantity"`
}

// Trade pairs the bid and ask legs of one match step.
type Trade struct {
	Bid TradeInfo `json:"bid"`
	Ask TradeInfo `json:"ask"`
}

// Quantity is the traded quantity; both legs carry the same value.
func (t Trade) Quantity() Quantity {
	return t.Bid.Quantity
}

// Trades is the ordered list of trades produced by one call.
type Trades []Trade

// OrderConfirmation pairs the identifier assigned by an admission call with the
// trades that call produced. An unknown modify returns the zero value.
type OrderConfirmation struct {
	OrderID OrderID `json:"order_id"`
	Trades  Trades  `json:"trades"`
}

// LevelInfo is the aggregated remaining quantity at one price.
type LevelInfo struct {
	Price    Price    `json:"price"`
	Quantity Quantity `json:"quantity"`
}

// LevelInfos is ordered by the side's priority: bids descending, asks ascending.
type LevelInfos []LevelInfo

// OrderBookLevelInfos is a depth snapshot of both sides. Levels that emptied
// but were not purged yet are listed with zero quantity.
type OrderBookLevelInfos struct {
	Bids LevelInfos `json:"bids"`
	Asks LevelInfos `json:"asks"`
}

// Candlestick represents OHLCV data for one interval of trades.
type Candlestick struct {
	Open     Price    `json:"open"`
	High     Price    `json:"high"`
	Low      Price    `json:"low"`
	Close    Price    `json:"close"`
	Volume   Quantity `json:"volume"`
	Trades   int      `json:"trades"`
	Interval uint64   `json:"interval"` // interval index, e.g. simulated day
}

// OrderAction is the action type sent through the sequencer.
type OrderAction string

const (
	OrderActionAdd      OrderAction = "add"
	OrderActionCancel   OrderAction = "cancel"
	OrderActionModify   OrderAction = "modify"
	OrderActionSnapshot OrderAction = "snapshot"
)

// OrderCommand is one request to the matching engine.
type OrderCommand struct {
	Action   OrderAction `json:"action"`
	OrderID  OrderID     `json:"order_id,omitempty"` // cancel, modify
	Price    Price       `json:"price,omitempty"`
	Quantity Quantity    `json:"quantity,omitempty"`
	Side     Side        `json:"side"`
	Type     OrderType   `json:"type"` // add only; modify keeps the original type
}

// CommandResult is the outcome of one OrderCommand.
type CommandResult struct {
	Sequence     uint64
	Command      OrderCommand
	Confirmation OrderConfirmation
	// Depth is set for snapshot commands only.
	Depth *OrderBookLevelInfos
}
