package simulation

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ismaeelbashir03/OrderBookSimulation/internal/domain"
	"github.com/ismaeelbashir03/OrderBookSimulation/internal/marketdata"
	"github.com/ismaeelbashir03/OrderBookSimulation/internal/matching"
	"github.com/ismaeelbashir03/OrderBookSimulation/internal/telemetry"
)

// Exchange is where agents send commands. The sequencer satisfies it, and
// DirectExchange drives an engine on the caller's goroutine.
type Exchange interface {
	Submit(ctx context.Context, cmd domain.OrderCommand) (domain.CommandResult, error)
}

// DirectExchange runs commands synchronously against one engine.
type DirectExchange struct {
	engine *matching.Engine
	seq    uint64
}

// NewDirectExchange wraps an engine that nothing else touches.
func NewDirectExchange(engine *matching.Engine) *DirectExchange {
	return &DirectExchange{engine: engine}
}

// Submit implements Exchange.
func (d *DirectExchange) Submit(ctx context.Context, cmd domain.OrderCommand) (domain.CommandResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.CommandResult{}, err
	}
	res := d.engine.Handle(cmd)
	d.seq++
	res.Sequence = d.seq
	return res, nil
}

// DayReport summarizes the book at the end of one simulated day.
type DayReport struct {
	Day    int
	Digest uint64
	Bids   int
	Asks   int
	Trades int
}

// Report is the outcome of a run.
type Report struct {
	RunID      uuid.UUID
	Seed       uint64
	Days       []DayReport
	Trades     int
	FinalDepth domain.OrderBookLevelInfos
	Candles    []*domain.Candlestick
}

// Digests lists the per-day depth digests; equal seeds give equal lists.
func (r Report) Digests() []uint64 {
	out := make([]uint64, len(r.Days))
	for i, d := range r.Days {
		out[i] = d.Digest
	}
	return out
}

// DefaultFeedPoll is how long a fed runner waits on the publisher before it
// submits another snapshot to move the feed along.
const DefaultFeedPoll = 250 * time.Millisecond

// Runner steps every agent once per tick against an exchange.
type Runner struct {
	cfg       RunConfig
	exchange  Exchange
	publisher *marketdata.Publisher
	agents    []*Agent
	ledger    *Ledger
	logger    *slog.Logger

	// fed means results reach the publisher through its feed, not Publish.
	fed      bool
	feedPoll time.Duration

	trades int
}

// Option configures a Runner.
type Option func(*Runner)

// WithPublisherFeed is for exchanges whose results already flow into the
// publisher, such as a sequencer forwarding Results to ExecutionIn. The
// runner then leaves publishing to the feed and, before closing a candle,
// waits until the feed has caught up with the day's closing snapshot.
func WithPublisherFeed() Option {
	return func(r *Runner) { r.fed = true }
}

// NewRunner derives every agent's seed and id from cfg.Seed.
func NewRunner(cfg RunConfig, exchange Exchange, publisher *marketdata.Publisher, logger *slog.Logger, opts ...Option) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if publisher == nil {
		publisher = marketdata.NewPublisher(0, logger)
	}

	seeds := rand.New(rand.NewPCG(cfg.Seed, 0))
	var key [32]byte
	binary.LittleEndian.PutUint64(key[:], cfg.Seed)
	idSource := rand.NewChaCha8(key)

	agents := make([]*Agent, cfg.Agents)
	for i := range agents {
		id, err := uuid.NewRandomFromReader(idSource)
		if err != nil {
			return nil, fmt.Errorf("agent id: %w", err)
		}
		agents[i] = NewAgent(id, seeds.Uint64())
	}

	r := &Runner{
		cfg:       cfg,
		exchange:  exchange,
		publisher: publisher,
		agents:    agents,
		ledger:    NewLedger(cfg.Agents, cfg.Settings.StartingCash, cfg.Settings.StartingHoldings),
		logger:    logger.With(slog.String("component", "simulation")),
		feedPoll:  DefaultFeedPoll,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Agents exposes the agents for inspection.
func (r *Runner) Agents() []*Agent { return r.agents }

// Ledger exposes the wallets for inspection.
func (r *Runner) Ledger() *Ledger { return r.ledger }

// Run simulates cfg.Days days. The book is snapshotted and digested at the
// end of each day, and one candle is closed per day.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	report := Report{RunID: uuid.New(), Seed: r.cfg.Seed}

	ctx, span := telemetry.Tracer.Start(ctx, "simulation.run", trace.WithAttributes(
		attribute.String("run_id", report.RunID.String()),
		attribute.Int64("seed", int64(r.cfg.Seed)),
		attribute.Int("agents", r.cfg.Agents),
		attribute.Int("days", r.cfg.Days),
	))
	defer span.End()

	r.logger.InfoContext(ctx, "simulation started",
		slog.String("run_id", report.RunID.String()),
		slog.Uint64("seed", r.cfg.Seed),
		slog.Int("agents", r.cfg.Agents),
		slog.Int("days", r.cfg.Days),
	)

	for day := range r.cfg.Days {
		dr, err := r.runDay(ctx, day)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return report, err
		}
		report.Days = append(report.Days, dr)
	}

	depth, seq, err := r.snapshot(ctx)
	if err != nil {
		return report, err
	}
	if err := r.syncFeed(ctx, seq); err != nil {
		return report, err
	}
	report.FinalDepth = depth
	report.Trades = r.trades
	report.Candles = r.publisher.GetCandles(r.cfg.Days)

	span.SetAttributes(attribute.Int("trades", r.trades))
	r.logger.InfoContext(ctx, "simulation finished",
		slog.String("run_id", report.RunID.String()),
		slog.Int("trades", r.trades),
	)
	return report, nil
}

func (r *Runner) runDay(ctx context.Context, day int) (DayReport, error) {
	ctx, span := telemetry.Tracer.Start(ctx, "simulation.day", trace.WithAttributes(attribute.Int("day", day)))
	defer span.End()

	before := r.trades
	for t := range r.cfg.TicksPerDay {
		tick := uint64(day*r.cfg.TicksPerDay + t)
		for i := range r.agents {
			if err := r.step(ctx, i, tick); err != nil {
				return DayReport{}, fmt.Errorf("day %d tick %d agent %d: %w", day, tick, i, err)
			}
		}
		telemetry.SimulationTicks.Inc()
	}

	depth, seq, err := r.snapshot(ctx)
	if err != nil {
		return DayReport{}, err
	}
	if err := r.syncFeed(ctx, seq); err != nil {
		return DayReport{}, err
	}
	r.publisher.Rotate()

	dr := DayReport{
		Day:    day,
		Digest: depth.Digest(),
		Bids:   len(depth.Bids),
		Asks:   len(depth.Asks),
		Trades: r.trades - before,
	}
	span.SetAttributes(attribute.Int("trades", dr.Trades))
	r.logger.InfoContext(ctx, "day closed",
		slog.Int("day", day),
		slog.String("digest", fmt.Sprintf("%016x", dr.Digest)),
		slog.Int("bid_levels", dr.Bids),
		slog.Int("ask_levels", dr.Asks),
		slog.Int("trades", dr.Trades),
	)
	return dr, nil
}

func (r *Runner) step(ctx context.Context, i int, tick uint64) error {
	agent := r.agents[i]

	var quote Quote
	if !r.cfg.Settings.UseFairPrice {
		depth, _, err := r.snapshot(ctx)
		if err != nil {
			return err
		}
		quote = QuoteFromDepth(depth)
	}

	act := agent.Decide(tick, quote, r.ledger.Wallet(i), r.cfg.Settings)
	telemetry.AgentActions.WithLabelValues(act.Kind.String()).Inc()

	switch act.Kind {
	case ActionAdd:
		res, err := r.exchange.Submit(ctx, domain.OrderCommand{
			Action:   domain.OrderActionAdd,
			Price:    act.Price,
			Quantity: act.Quantity,
			Side:     act.Side,
			Type:     act.Type,
		})
		if err != nil {
			return err
		}
		r.apply(i, act.Quantity, res)
	case ActionCancel:
		if _, err := r.exchange.Submit(ctx, domain.OrderCommand{
			Action:  domain.OrderActionCancel,
			OrderID: act.OrderID,
		}); err != nil {
			return err
		}
		agent.forget(act.OrderID)
		r.ledger.Release(act.OrderID)
	case ActionModify:
		res, err := r.exchange.Submit(ctx, domain.OrderCommand{
			Action:   domain.OrderActionModify,
			OrderID:  act.OrderID,
			Price:    act.Price,
			Quantity: act.Quantity,
			Side:     act.Side,
		})
		if err != nil {
			return err
		}
		agent.forget(act.OrderID)
		r.ledger.Release(act.OrderID)
		r.apply(i, act.Quantity, res)
	}
	return nil
}

// apply registers the order a command created, settles its trades and
// drops filled orders from their owners' pending lists.
func (r *Runner) apply(i int, qty domain.Quantity, res domain.CommandResult) {
	if id := res.Confirmation.OrderID; id != 0 {
		r.ledger.Register(id, i, qty)
		r.agents[i].track(id)
	}
	if !r.fed {
		r.publisher.Publish(res)
	}

	for _, tr := range res.Confirmation.Trades {
		r.trades++
		for _, f := range r.ledger.Settle(tr) {
			r.agents[f.Agent].forget(f.OrderID)
		}
	}
}

// snapshot returns the depth and the sequence the exchange stamped on it.
func (r *Runner) snapshot(ctx context.Context) (domain.OrderBookLevelInfos, uint64, error) {
	res, err := r.exchange.Submit(ctx, domain.OrderCommand{Action: domain.OrderActionSnapshot})
	if err != nil {
		return domain.OrderBookLevelInfos{}, 0, err
	}
	if res.Depth == nil {
		return domain.OrderBookLevelInfos{}, 0, fmt.Errorf("snapshot returned no depth")
	}
	return *res.Depth, res.Sequence, nil
}

// syncFeed waits until the publisher has seen seq. A result the exchange
// dropped never arrives, so every feedPoll the runner submits a fresh
// snapshot; its later sequence satisfies the wait once it is delivered.
func (r *Runner) syncFeed(ctx context.Context, seq uint64) error {
	if !r.fed {
		return nil
	}
	for {
		wctx, cancel := context.WithTimeout(ctx, r.feedPoll)
		err := r.publisher.WaitFor(wctx, seq)
		cancel()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.logger.WarnContext(ctx, "market data feed behind",
			slog.Uint64("want", seq),
			slog.Uint64("seen", r.publisher.Seen()),
		)
		if _, _, err := r.snapshot(ctx); err != nil {
			return err
		}
	}
}
