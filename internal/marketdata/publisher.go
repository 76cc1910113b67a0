package marketdata

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ismaeelbashir03/OrderBookSimulation/internal/domain"
	"github.com/ismaeelbashir03/OrderBookSimulation/internal/telemetry"
)

// CandleHistory is how many closed candles a publisher keeps.
const CandleHistory = 100

// Ring keeps the last cap(buf) values pushed, overwriting the oldest.
type Ring[T any] struct {
	buf  []T
	next int
	full bool
}

// NewRing holds at most capacity values, and at least one.
func NewRing[T any](capacity int) *Ring[T] {
	return &Ring[T]{buf: make([]T, 0, max(capacity, 1))}
}

// Push appends v, dropping the oldest value once full.
func (r *Ring[T]) Push(v T) {
	if !r.full {
		r.buf = append(r.buf, v)
		r.full = len(r.buf) == cap(r.buf)
		return
	}
	r.buf[r.next] = v
	r.next = (r.next + 1) % len(r.buf)
}

// Len is the number of values held, at most the capacity.
func (r *Ring[T]) Len() int { return len(r.buf) }

// Last returns up to n of the newest values, oldest first.
func (r *Ring[T]) Last(n int) []T {
	n = min(n, len(r.buf))
	if n <= 0 {
		return nil
	}
	out := make([]T, 0, n)
	// once full, next points at the oldest value
	skip := len(r.buf) - n
	for i := range len(r.buf) {
		if i < skip {
			continue
		}
		out = append(out, r.buf[(r.next+i)%len(r.buf)])
	}
	return out
}

// TapeHistory is how many prints the tape keeps.
const TapeHistory = 10_000

// Print is one trade on the tape with the sequence of the command that
// produced it.
type Print struct {
	Sequence uint64
	Trade    domain.Trade
}

// Publisher turns command results into a trade tape and OHLCV candles. A
// candle covers every trade between two calls to Rotate; the print price is
// the bid leg's price.
type Publisher struct {
	mu sync.RWMutex

	candles  *Ring[*domain.Candlestick]
	current  *domain.Candlestick
	interval uint64
	tape     *Ring[Print]
	trades   int

	// seen is the highest sequence published so far; advanced is closed
	// and replaced whenever it moves.
	seen     uint64
	advanced chan struct{}

	// ExecutionIn feeds the goroutine started by Start.
	ExecutionIn chan domain.CommandResult

	logger    *slog.Logger
	done      chan struct{}
	stopped   chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewPublisher creates a new market data publisher.
func NewPublisher(bufferSize int, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		candles:     NewRing[*domain.Candlestick](CandleHistory),
		tape:        NewRing[Print](TapeHistory),
		advanced:    make(chan struct{}),
		ExecutionIn: make(chan domain.CommandResult, max(bufferSize, 0)),
		logger:      logger.With(slog.String("component", "marketdata")),
		done:        make(chan struct{}),
		stopped:     make(chan struct{}),
	}
}

// Start begins the publisher's application loop.
func (p *Publisher) Start() {
	p.startOnce.Do(func() { go p.run() })
}

// Stop shuts the loop down after it has drained what is already queued.
func (p *Publisher) Stop() {
	p.stopOnce.Do(func() { close(p.done) })
	started := true
	p.startOnce.Do(func() { started = false })
	if started {
		<-p.stopped
	}
}

func (p *Publisher) run() {
	defer close(p.stopped)
	p.logger.Info("publisher started")
	for {
		select {
		case res := <-p.ExecutionIn:
			p.Publish(res)
		case <-p.done:
			for {
				select {
				case res := <-p.ExecutionIn:
					p.Publish(res)
				default:
					p.logger.Info("publisher stopped", slog.Int("trades", p.TradeCount()))
					return
				}
			}
		}
	}
}

// Publish records the trades of one command result and marks its sequence
// as seen.
func (p *Publisher) Publish(res domain.CommandResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, tr := range res.Confirmation.Trades {
		p.tape.Push(Print{Sequence: res.Sequence, Trade: tr})
		p.trades++
		p.updateCandle(tr)
	}
	if res.Sequence > p.seen {
		p.seen = res.Sequence
		close(p.advanced)
		p.advanced = make(chan struct{})
	}
}

// WaitFor blocks until a result with sequence seq or later has been
// published, or ctx is done.
func (p *Publisher) WaitFor(ctx context.Context, seq uint64) error {
	for {
		p.mu.RLock()
		seen, advanced := p.seen, p.advanced
		p.mu.RUnlock()
		if seen >= seq {
			return nil
		}
		select {
		case <-advanced:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Seen is the highest sequence published so far.
func (p *Publisher) Seen() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.seen
}

func (p *Publisher) updateCandle(tr domain.Trade) {
	price := tr.Bid.Price
	if p.current == nil {
		p.current = &domain.Candlestick{
			Open:     price,
			High:     price,
			Low:      price,
			Close:    price,
			Volume:   tr.Quantity(),
			Trades:   1,
			Interval: p.interval,
		}
		return
	}

	c := p.current
	c.High = max(c.High, price)
	c.Low = min(c.Low, price)
	c.Close = price
	c.Volume += tr.Quantity()
	c.Trades++
}

// Rotate closes the current candle, if any trade happened, and starts the
// next interval.
func (p *Publisher) Rotate() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current != nil {
		p.candles.Push(p.current)
		p.current = nil
		telemetry.CandlesClosed.Inc()
	}
	p.interval++
}

// GetCandles returns copies of up to count completed candles followed by the
// one being built, if it has data.
func (p *Publisher) GetCandles(count int) []*domain.Candlestick {
	p.mu.RLock()
	defer p.mu.RUnlock()

	closed := p.candles.Last(count)
	result := make([]*domain.Candlestick, 0, len(closed)+1)
	for _, c := range closed {
		cp := *c
		result = append(result, &cp)
	}
	if p.current != nil {
		cp := *p.current
		result = append(result, &cp)
	}
	return result
}

// GetTrades returns the prints still on the tape, oldest first, or only
// those with a leg for orderID when it is non-zero.
func (p *Publisher) GetTrades(orderID domain.OrderID) []Print {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var result []Print
	for _, pr := range p.tape.Last(p.tape.Len()) {
		if orderID != 0 && pr.Trade.Bid.OrderID != orderID && pr.Trade.Ask.OrderID != orderID {
			continue
		}
		result = append(result, pr)
	}
	return result
}

// TradeCount is the number of trades ever published, including those that
// have aged off the tape.
func (p *Publisher) TradeCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.trades
}
