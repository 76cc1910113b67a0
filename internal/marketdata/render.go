package marketdata

import (
	"bufio"
	"fmt"
	"io"

	"github.com/ismaeelbashir03/OrderBookSimulation/internal/domain"
)

// RenderDepth prints a depth snapshot for a console, bids first.
func RenderDepth(w io.Writer, infos domain.OrderBookLevelInfos) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "Orderbook State:")
	fmt.Fprintln(bw)
	writeLevels(bw, "Bid Levels:", infos.Bids)
	writeLevels(bw, "Ask Levels:", infos.Asks)
	fmt.Fprintln(bw)
	return bw.Flush()
}

func writeLevels(w io.Writer, title string, levels domain.LevelInfos) {
	fmt.Fprintln(w, title)
	for _, lvl := range levels {
		fmt.Fprintf(w, "Price: %d, Quantity: %d\n", lvl.Price, lvl.Quantity)
	}
}
