// Package harness replays order files and the scripted demo against an
// engine.
package harness

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/ismaeelbashir03/OrderBookSimulation/internal/domain"
)

// ErrMalformedLine is wrapped by every parse failure in an order file.
var ErrMalformedLine = errors.New("malformed order line")

// OrderLine is one parsed `flag price quantity` line. Flag 1 means buy and
// anything else sell.
type OrderLine struct {
	Line     int
	Side     domain.Side
	Price    domain.Price
	Quantity domain.Quantity
}

// LoadOrders parses every line it can. Bad lines are reported with their
// line number and skipped; blank lines are ignored.
func LoadOrders(r io.Reader) ([]OrderLine, []error) {
	var (
		orders []OrderLine
		errs   []error
	)
	sc := bufio.NewScanner(r)
	n := 0
	for sc.Scan() {
		n++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		line, err := parseLine(text)
		if err != nil {
			errs = append(errs, fmt.Errorf("line %d: %w: %q: %v", n, ErrMalformedLine, text, err))
			continue
		}
		line.Line = n
		orders = append(orders, line)
	}
	if err := sc.Err(); err != nil {
		errs = append(errs, fmt.Errorf("read orders: %w", err))
	}
	return orders, errs
}

func parseLine(text string) (OrderLine, error) {
	fields := strings.Fields(text)
	if len(fields) < 3 {
		return OrderLine{}, fmt.Errorf("want 3 fields, got %d", len(fields))
	}

	flag, err := strconv.Atoi(fields[0])
	if err != nil {
		return OrderLine{}, fmt.Errorf("flag: %w", err)
	}
	price, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return OrderLine{}, fmt.Errorf("price: %w", err)
	}
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return OrderLine{}, fmt.Errorf("price %s is not finite", fields[1])
	}
	qty, err := strconv.ParseUint(fields[2], 10, 64)
	if err != nil {
		return OrderLine{}, fmt.Errorf("quantity: %w", err)
	}

	side := domain.SideSell
	if flag == 1 {
		side = domain.SideBuy
	}
	return OrderLine{
		Side: side,
		// fractional prices are truncated to whole ticks
		Price:    domain.Price(price),
		Quantity: domain.Quantity(qty),
	}, nil
}
