package orderbook

import "github.com/ismaeelbashir03/OrderBookSimulation/internal/domain"

// GetOrderInfos returns the aggregated depth of both sides, bids highest
// first and asks lowest first. Every registered price is listed, so levels
// emptied by cancels or fills show up with zero quantity until purged.
//
// It does not purge and never mutates the book.
func (b *OrderBook) GetOrderInfos() domain.OrderBookLevelInfos {
	return domain.OrderBookLevelInfos{
		Bids: b.bids.depth(),
		Asks: b.asks.depth(),
	}
}
