package simulation

import (
	"math/rand/v2"
	"slices"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ismaeelbashir03/OrderBookSimulation/internal/domain"
)

// ActionKind is what an agent decided to do on one tick.
type ActionKind uint8

const (
	ActionIdle ActionKind = iota
	ActionAdd
	ActionCancel
	ActionModify
	// ActionSkip means the agent wanted to trade but its wallet allows less
	// than one lot.
	ActionSkip
)

// String is the label used for the agent actions metric.
func (k ActionKind) String() string {
	switch k {
	case ActionIdle:
		return "idle"
	case ActionAdd:
		return "add"
	case ActionCancel:
		return "cancel"
	case ActionModify:
		return "modify"
	case ActionSkip:
		return "skipped"
	default:
		return "unknown"
	}
}

// Action is one decision. OrderID is set for cancel and modify.
type Action struct {
	Kind     ActionKind
	OrderID  domain.OrderID
	Price    domain.Price
	Quantity domain.Quantity
	Side     domain.Side
	Type     domain.OrderType
}

// Quote is the top of book an agent prices against.
type Quote struct {
	Bid, Ask       domain.Price
	HasBid, HasAsk bool
}

// QuoteFromDepth takes the first level with quantity on each side, skipping
// emptied levels that were not purged yet.
func QuoteFromDepth(infos domain.OrderBookLevelInfos) Quote {
	var q Quote
	for _, lvl := range infos.Bids {
		if lvl.Quantity > 0 {
			q.Bid, q.HasBid = lvl.Price, true
			break
		}
	}
	for _, lvl := range infos.Asks {
		if lvl.Quantity > 0 {
			q.Ask, q.HasAsk = lvl.Price, true
			break
		}
	}
	return q
}

var agentOrderTypes = [...]domain.OrderType{domain.OrderTypeLimit, domain.OrderTypeMarket}

// Agent is a synthetic trader. All of its randomness comes from its seed
// and the tick number, so a run is reproducible from the master seed.
type Agent struct {
	ID      uuid.UUID
	seed    uint64
	pending []domain.OrderID // oldest first
}

// NewAgent creates an agent with no pending orders.
func NewAgent(id uuid.UUID, seed uint64) *Agent {
	return &Agent{ID: id, seed: seed}
}

// Pending returns the agent's live orders, oldest first.
func (a *Agent) Pending() []domain.OrderID {
	return slices.Clone(a.pending)
}

func (a *Agent) track(id domain.OrderID) {
	a.pending = append(a.pending, id)
}

func (a *Agent) forget(id domain.OrderID) {
	if i := slices.Index(a.pending, id); i >= 0 {
		a.pending = slices.Delete(a.pending, i, i+1)
	}
}

// Decide picks the agent's action for tick.
func (a *Agent) Decide(tick uint64, quote Quote, wallet Wallet, s Settings) Action {
	r := rand.New(rand.NewPCG(a.seed, tick))
	roll := r.IntN(101)

	if len(a.pending) == 0 {
		if roll < s.MakeOrderWhenIdle {
			return a.details(r, ActionAdd, quote, wallet, s)
		}
		return Action{Kind: ActionIdle}
	}

	oldest := a.pending[0]
	switch {
	case roll < s.CancelChance:
		return Action{Kind: ActionCancel, OrderID: oldest}
	case roll < s.CancelChance+s.ModifyChance:
		act := a.details(r, ActionModify, quote, wallet, s)
		act.OrderID = oldest
		return act
	default:
		return a.details(r, ActionAdd, quote, wallet, s)
	}
}

func (a *Agent) details(r *rand.Rand, kind ActionKind, quote Quote, wallet Wallet, s Settings) Action {
	side := domain.Side(r.IntN(2))
	price := biasedPrice(r, side, quote, s)

	var bound int64
	if side == domain.SideBuy {
		bound = int64(float64(affordable(wallet.Cash, referencePrice(domain.SideBuy, quote, s))) * s.OrderSize)
	} else {
		bound = int64(float64(wallet.Holdings) * s.OrderSize)
	}
	if bound < 1 {
		return Action{Kind: ActionSkip}
	}

	act := Action{
		Kind:     kind,
		Price:    price,
		Quantity: domain.Quantity(1 + r.Int64N(bound)),
		Side:     side,
	}
	if kind == ActionAdd {
		act.Type = agentOrderTypes[r.IntN(len(agentOrderTypes))]
	}
	return act
}

// referencePrice is the fair price, or the same side's best price when the
// book is used.
func referencePrice(side domain.Side, quote Quote, s Settings) domain.Price {
	if s.UseFairPrice {
		return s.FairPrice
	}
	if side == domain.SideBuy && quote.HasBid {
		return quote.Bid
	}
	if side == domain.SideSell && quote.HasAsk {
		return quote.Ask
	}
	return s.NoPriceOffer
}

// biasedPrice shades buys below and sells above the reference price, with a
// small chance of leaning the other way.
func biasedPrice(r *rand.Rand, side domain.Side, quote Quote, s Settings) domain.Price {
	ref := referencePrice(side, quote, s)
	bias := r.Float64() * s.BiasFactor
	if side == domain.SideBuy {
		bias = -bias
	}
	if 1+r.IntN(100) < s.OppositeBiasChance {
		bias = -bias
	}
	return domain.Price(float64(ref) + bias*float64(ref))
}

// affordable is how many whole lots cash buys at price.
func affordable(cash decimal.Decimal, price domain.Price) int64 {
	if price <= 0 || !cash.IsPositive() {
		return 0
	}
	return cash.Div(decimal.NewFromInt(int64(price))).IntPart()
}
