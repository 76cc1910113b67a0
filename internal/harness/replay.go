package harness

import (
	"time"

	"github.com/ismaeelbashir03/OrderBookSimulation/internal/domain"
	"github.com/ismaeelbashir03/OrderBookSimulation/internal/matching"
)

// ReplayStats summarizes a replay.
type ReplayStats struct {
	Orders    int
	Trades    int
	Volume    domain.Quantity
	Elapsed   time.Duration
	Depth     domain.OrderBookLevelInfos
	Resting   int
	BidLevels int
	AskLevels int
}

// OrdersPerSecond is the replay throughput.
func (s ReplayStats) OrdersPerSecond() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.Orders) / s.Elapsed.Seconds()
}

// Replay adds every line as a resting limit order, in file order.
func Replay(engine *matching.Engine, lines []OrderLine) ReplayStats {
	var stats ReplayStats
	start := time.Now()
	for _, l := range lines {
		conf := engine.AddOrder(l.Price, l.Quantity, l.Side, domain.OrderTypeLimit)
		stats.Orders++
		stats.Trades += len(conf.Trades)
		for _, tr := range conf.Trades {
			stats.Volume += tr.Quantity()
		}
	}
	stats.Elapsed = time.Since(start)
	stats.Depth = engine.GetOrderInfos()
	stats.Resting = engine.NumOrders()
	stats.BidLevels = engine.NumBids()
	stats.AskLevels = engine.NumAsks()
	return stats
}
