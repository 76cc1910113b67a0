package orderbook

import (
	"github.com/google/btree"

	"github.com/ismaeelbashir03/OrderBookSimulation/internal/domain"
)

const priceBTreeDegree = 32

// bookSide holds one direction of the book: a btree of distinct prices
// ordered best first, and a price -> level table.
//
// Cancels and fills empty levels in place without touching the tree. An
// empty level stays registered in both structures until it reaches the top
// of the tree, where purge drops it. Counts and depth snapshots therefore
// include empty levels that were not purged yet.
type bookSide struct {
	side   domain.Side
	prices *btree.BTreeG[domain.Price]
	levels map[domain.Price]*priceLevel
}

func newBookSide(side domain.Side) *bookSide {
	less := func(a, b domain.Price) bool { return a < b }
	if side == domain.SideBuy {
		less = func(a, b domain.Price) bool { return a > b }
	}
	return &bookSide{
		side:   side,
		prices: btree.NewG[domain.Price](priceBTreeDegree, less),
		levels: make(map[domain.Price]*priceLevel),
	}
}

// insert appends o to the level at its price, registering the price first
// if it is new.
func (s *bookSide) insert(o *Order) {
	lvl, ok := s.levels[o.price]
	if !ok {
		lvl = newPriceLevel(o.price)
		s.levels[o.price] = lvl
		s.prices.ReplaceOrInsert(o.price)
	}
	lvl.pushBack(o)
}

// purge drops empty levels from the top until the best level has orders or
// the side is exhausted.
func (s *bookSide) purge() {
	for {
		price, ok := s.prices.Min()
		if !ok {
			return
		}
		if lvl := s.levels[price]; lvl != nil && !lvl.empty() {
			return
		}
		s.prices.DeleteMin()
		delete(s.levels, price)
	}
}

// best purges and returns the best non-empty level, or nil.
func (s *bookSide) best() *priceLevel {
	s.purge()
	price, ok := s.prices.Min()
	if !ok {
		return nil
	}
	return s.levels[price]
}

// size counts registered prices, including unpurged empty levels.
func (s *bookSide) size() int {
	return len(s.levels)
}

// crosses reports whether an order at price on the other side could trade
// against this side's best level.
func (s *bookSide) crosses(price domain.Price) bool {
	lvl := s.best()
	if lvl == nil {
		return false
	}
	if s.side == domain.SideSell {
		return lvl.price <= price
	}
	return lvl.price >= price
}

// depth aggregates every registered level in priority order.
func (s *bookSide) depth() domain.LevelInfos {
	infos := make(domain.LevelInfos, 0, s.prices.Len())
	s.prices.Ascend(func(price domain.Price) bool {
		infos = append(infos, domain.LevelInfo{
			Price:    price,
			Quantity: s.levels[price].totalQuantity(),
		})
		return true
	})
	return infos
}
