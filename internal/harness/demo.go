package harness

import (
	"io"

	"github.com/ismaeelbashir03/OrderBookSimulation/internal/domain"
	"github.com/ismaeelbashir03/OrderBookSimulation/internal/marketdata"
	"github.com/ismaeelbashir03/OrderBookSimulation/internal/matching"
)

// DemoChurnRounds is how many add/cancel-or-cross rounds open the demo.
const DemoChurnRounds = 50

// RunDemo walks the engine through a fixed script and prints the book after
// every step: a round of churn that alternates between cancelling a new bid
// and crossing it, then partial fills, an immediate-or-cancel order, resting
// orders at several prices, cancels (one of an unknown id) and a modify that
// flips an order's side.
func RunDemo(engine *matching.Engine, w io.Writer) (domain.OrderBookLevelInfos, error) {
	show := func() error {
		return marketdata.RenderDepth(w, engine.GetOrderInfos())
	}

	for i := range DemoChurnRounds {
		conf := engine.AddOrder(100, 10, domain.SideBuy, domain.OrderTypeLimit)
		if i%2 == 0 {
			engine.CancelOrder(conf.OrderID)
		} else {
			engine.AddOrder(100, 10, domain.SideSell, domain.OrderTypeLimit)
		}
		if err := show(); err != nil {
			return domain.OrderBookLevelInfos{}, err
		}
	}

	steps := []func() domain.OrderConfirmation{
		func() domain.OrderConfirmation { return engine.AddOrder(100, 10, domain.SideBuy, domain.OrderTypeLimit) },
		func() domain.OrderConfirmation { return engine.AddOrder(100, 5, domain.SideSell, domain.OrderTypeLimit) },
		func() domain.OrderConfirmation {
			return engine.AddOrder(100, 2, domain.SideSell, domain.OrderTypeImmediateOrCancel)
		},
		func() domain.OrderConfirmation { return engine.AddOrder(110, 5, domain.SideSell, domain.OrderTypeLimit) },
		func() domain.OrderConfirmation { return engine.AddOrder(99, 5, domain.SideBuy, domain.OrderTypeLimit) },
		func() domain.OrderConfirmation { return engine.AddOrder(101, 5, domain.SideSell, domain.OrderTypeLimit) },
		func() domain.OrderConfirmation { return engine.AddOrder(101, 5, domain.SideSell, domain.OrderTypeLimit) },
	}
	confs := make([]domain.OrderConfirmation, len(steps))
	for i, step := range steps {
		confs[i] = step()
		if err := show(); err != nil {
			return domain.OrderBookLevelInfos{}, err
		}
	}

	// cancel the resting bid at 99
	engine.CancelOrder(confs[4].OrderID)
	if err := show(); err != nil {
		return domain.OrderBookLevelInfos{}, err
	}

	engine.CancelOrder(123_456)
	if err := show(); err != nil {
		return domain.OrderBookLevelInfos{}, err
	}

	// turn the first ask at 101 into a bid; it crosses the second one
	engine.ModifyOrder(confs[5].OrderID, 101, 5, domain.SideBuy)
	if err := show(); err != nil {
		return domain.OrderBookLevelInfos{}, err
	}

	return engine.GetOrderInfos(), nil
}
