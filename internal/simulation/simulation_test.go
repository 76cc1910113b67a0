package simulation

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/ismaeelbashir03/OrderBookSimulation/internal/domain"
	"github.com/ismaeelbashir03/OrderBookSimulation/internal/marketdata"
	"github.com/ismaeelbashir03/OrderBookSimulation/internal/matching"
	"github.com/ismaeelbashir03/OrderBookSimulation/internal/sequencer"
	"github.com/ismaeelbashir03/OrderBookSimulation/internal/telemetry"
)

func smallRun(seed uint64) RunConfig {
	cfg := DefaultRunConfig()
	cfg.Seed = seed
	cfg.Agents = 50
	cfg.Days = 2
	return cfg
}

func richWallet() Wallet {
	return Wallet{Cash: decimal.NewFromInt(10000), Holdings: 100}
}

func TestSettings_DefaultsAreValid(t *testing.T) {
	require.NoError(t, DefaultSettings().Validate())
	require.NoError(t, DefaultRunConfig().Validate())
}

func TestSettings_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RunConfig)
	}{
		{"actions do not sum to 100", func(c *RunConfig) { c.Settings.AddChance = 50 }},
		{"order size zero", func(c *RunConfig) { c.Settings.OrderSize = 0 }},
		{"order size above one", func(c *RunConfig) { c.Settings.OrderSize = 1.5 }},
		{"negative cash", func(c *RunConfig) { c.Settings.StartingCash = decimal.NewFromInt(-1) }},
		{"bad idle chance", func(c *RunConfig) { c.Settings.MakeOrderWhenIdle = 101 }},
		{"no agents", func(c *RunConfig) { c.Agents = 0 }},
		{"no ticks", func(c *RunConfig) { c.TicksPerDay = 0 }},
		{"negative days", func(c *RunConfig) { c.Days = -1 }},
		{"fair price zero", func(c *RunConfig) { c.Settings.FairPrice = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultRunConfig()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidSettings)
		})
	}
}

func TestAgent_DecideIsDeterministic(t *testing.T) {
	a := NewAgent(uuid.New(), 42)
	b := NewAgent(uuid.New(), 42)
	s := DefaultSettings()

	for tick := range uint64(50) {
		assert.Equal(t, a.Decide(tick, Quote{}, richWallet(), s), b.Decide(tick, Quote{}, richWallet(), s))
	}
}

func TestAgent_IdleWithoutPending(t *testing.T) {
	s := DefaultSettings()
	s.MakeOrderWhenIdle = 0
	a := NewAgent(uuid.New(), 7)

	for tick := range uint64(20) {
		assert.Equal(t, ActionIdle, a.Decide(tick, Quote{}, richWallet(), s).Kind)
	}
}

func TestAgent_AddsWithoutPending(t *testing.T) {
	s := DefaultSettings()
	s.MakeOrderWhenIdle = 100
	s.OppositeBiasChance = 0
	a := NewAgent(uuid.New(), 7)

	for tick := range uint64(50) {
		act := a.Decide(tick, Quote{}, richWallet(), s)
		if act.Kind == ActionIdle {
			// a roll of exactly 100 never passes the idle threshold
			continue
		}
		require.Equal(t, ActionAdd, act.Kind)
		assert.GreaterOrEqual(t, act.Quantity, domain.Quantity(1))
		assert.Contains(t, []domain.OrderType{domain.OrderTypeLimit, domain.OrderTypeMarket}, act.Type)
		if act.Side == domain.SideBuy {
			assert.LessOrEqual(t, act.Price, s.FairPrice)
			// 10000 cash at 100 buys 100 lots, 80 at the default order size
			assert.LessOrEqual(t, act.Quantity, domain.Quantity(80))
		} else {
			assert.GreaterOrEqual(t, act.Price, s.FairPrice)
			assert.LessOrEqual(t, act.Quantity, domain.Quantity(80))
		}
	}
}

func TestAgent_SkipsWhenWalletIsEmpty(t *testing.T) {
	s := DefaultSettings()
	s.MakeOrderWhenIdle = 100
	a := NewAgent(uuid.New(), 3)

	for tick := range uint64(20) {
		assert.Contains(t, []ActionKind{ActionSkip, ActionIdle}, a.Decide(tick, Quote{}, Wallet{}, s).Kind)
	}
}

func TestAgent_PendingActions(t *testing.T) {
	a := NewAgent(uuid.New(), 11)
	a.track(5)
	a.track(9)

	cancel := DefaultSettings()
	cancel.CancelChance, cancel.ModifyChance, cancel.AddChance = 100, 0, 0
	for tick := range uint64(10) {
		// roll is drawn from [0,100], so 100 itself falls through to add
		act := a.Decide(tick, Quote{}, richWallet(), cancel)
		if act.Kind == ActionCancel {
			assert.Equal(t, domain.OrderID(5), act.OrderID)
		} else {
			assert.Contains(t, []ActionKind{ActionAdd, ActionSkip}, act.Kind)
		}
	}

	modify := DefaultSettings()
	modify.CancelChance, modify.ModifyChance, modify.AddChance = 0, 100, 0
	for tick := range uint64(10) {
		act := a.Decide(tick, Quote{}, richWallet(), modify)
		if act.Kind == ActionModify {
			assert.Equal(t, domain.OrderID(5), act.OrderID)
		}
	}

	a.forget(5)
	assert.Equal(t, []domain.OrderID{9}, a.Pending())
	a.forget(5)
	assert.Equal(t, []domain.OrderID{9}, a.Pending())
}

func TestQuoteFromDepth_SkipsEmptyLevels(t *testing.T) {
	q := QuoteFromDepth(domain.OrderBookLevelInfos{
		Bids: domain.LevelInfos{{Price: 101, Quantity: 0}, {Price: 99, Quantity: 4}},
		Asks: domain.LevelInfos{{Price: 103, Quantity: 0}},
	})

	assert.True(t, q.HasBid)
	assert.Equal(t, domain.Price(99), q.Bid)
	assert.False(t, q.HasAsk)
}

func TestReferencePrice_FromBook(t *testing.T) {
	s := DefaultSettings()
	s.UseFairPrice = false
	quote := Quote{Bid: 95, HasBid: true}

	assert.Equal(t, domain.Price(95), referencePrice(domain.SideBuy, quote, s))
	assert.Equal(t, s.NoPriceOffer, referencePrice(domain.SideSell, quote, s))
}

func TestAffordable(t *testing.T) {
	assert.Equal(t, int64(33), affordable(decimal.NewFromInt(100), 3))
	assert.Equal(t, int64(0), affordable(decimal.NewFromInt(-5), 3))
	assert.Equal(t, int64(0), affordable(decimal.NewFromInt(100), 0))
}

func TestLedger_Settle(t *testing.T) {
	l := NewLedger(2, decimal.NewFromInt(1000), 10)
	l.Register(1, 0, 5) // buyer
	l.Register(2, 1, 3) // seller

	filled := l.Settle(domain.Trade{
		Bid: domain.TradeInfo{OrderID: 1, Price: 101, Quantity: 3},
		Ask: domain.TradeInfo{OrderID: 2, Price: 100, Quantity: 3},
	})

	require.Len(t, filled, 1)
	assert.Equal(t, Filled{OrderID: 2, Agent: 1}, filled[0])

	buyer, seller := l.Wallet(0), l.Wallet(1)
	assert.True(t, buyer.Cash.Equal(decimal.NewFromInt(697)), buyer.Cash.String())
	assert.Equal(t, int64(13), buyer.Holdings)
	assert.True(t, seller.Cash.Equal(decimal.NewFromInt(1300)), seller.Cash.String())
	assert.Equal(t, int64(7), seller.Holdings)
	assert.Equal(t, int64(20), l.TotalHoldings())

	_, ok := l.Owner(2)
	assert.False(t, ok)
	owner, ok := l.Owner(1)
	require.True(t, ok)
	assert.Equal(t, 0, owner)
}

func TestLedger_IgnoresUnknownLegs(t *testing.T) {
	l := NewLedger(1, decimal.NewFromInt(1000), 0)

	filled := l.Settle(domain.Trade{
		Bid: domain.TradeInfo{OrderID: 7, Price: 100, Quantity: 1},
		Ask: domain.TradeInfo{OrderID: 8, Price: 100, Quantity: 1},
	})

	assert.Empty(t, filled)
	assert.True(t, l.Wallet(0).Cash.Equal(decimal.NewFromInt(1000)))
}

func TestRunner_SameSeedSameDigests(t *testing.T) {
	run := func(seed uint64) Report {
		runner, err := NewRunner(smallRun(seed), NewDirectExchange(matching.NewEngine(nil)), nil, nil)
		require.NoError(t, err)
		report, err := runner.Run(context.Background())
		require.NoError(t, err)
		return report
	}

	first := run(1234)
	second := run(1234)
	other := run(99)

	require.Len(t, first.Days, 2)
	assert.Equal(t, first.Digests(), second.Digests())
	assert.Equal(t, first.Trades, second.Trades)
	assert.Equal(t, first.FinalDepth, second.FinalDepth)
	assert.NotEqual(t, first.RunID, second.RunID)
	assert.NotEqual(t, first.Digests(), other.Digests())
}

func TestRunner_AgentIDsFollowSeed(t *testing.T) {
	ids := func() []uuid.UUID {
		runner, err := NewRunner(smallRun(5), NewDirectExchange(matching.NewEngine(nil)), nil, nil)
		require.NoError(t, err)
		var out []uuid.UUID
		for _, a := range runner.Agents() {
			out = append(out, a.ID)
		}
		return out
	}
	assert.Equal(t, ids(), ids())
}

func TestRunner_LedgerMatchesBook(t *testing.T) {
	engine := matching.NewEngine(nil)
	cfg := smallRun(1234)
	runner, err := NewRunner(cfg, NewDirectExchange(engine), nil, nil)
	require.NoError(t, err)

	report, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Positive(t, report.Trades)

	pending := 0
	for _, a := range runner.Agents() {
		for _, id := range a.Pending() {
			_, live := engine.Order(id)
			assert.True(t, live, "pending order %d is not in the book", id)
			pending++
		}
	}
	assert.Equal(t, engine.NumOrders(), pending)
	assert.Equal(t, int64(cfg.Agents)*cfg.Settings.StartingHoldings, runner.Ledger().TotalHoldings())
}

func TestRunner_CandlesPerDay(t *testing.T) {
	pub := marketdata.NewPublisher(0, nil)
	runner, err := NewRunner(smallRun(1234), NewDirectExchange(matching.NewEngine(nil)), pub, nil)
	require.NoError(t, err)

	report, err := runner.Run(context.Background())
	require.NoError(t, err)

	var volume domain.Quantity
	trades := 0
	for _, c := range report.Candles {
		volume += c.Volume
		trades += c.Trades
	}
	assert.Equal(t, report.Trades, trades)
	assert.Equal(t, report.Trades, pub.TradeCount())
	assert.LessOrEqual(t, len(report.Candles), 2)
	assert.Positive(t, volume)
}

func TestRunner_ThroughSequencerMatchesDirect(t *testing.T) {
	direct, err := NewRunner(smallRun(77), NewDirectExchange(matching.NewEngine(nil)), nil, nil)
	require.NoError(t, err)
	want, err := direct.Run(context.Background())
	require.NoError(t, err)

	seq := sequencer.NewSequencer(matching.NewEngine(nil), 8192, nil)
	seq.Start()
	defer seq.Stop()
	viaSeq, err := NewRunner(smallRun(77), seq, nil, nil)
	require.NoError(t, err)
	got, err := viaSeq.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, want.Digests(), got.Digests())
}

func TestRunner_PublisherFedBySequencer(t *testing.T) {
	directPub := marketdata.NewPublisher(0, nil)
	direct, err := NewRunner(smallRun(91), NewDirectExchange(matching.NewEngine(nil)), directPub, nil)
	require.NoError(t, err)
	want, err := direct.Run(context.Background())
	require.NoError(t, err)

	seq := sequencer.NewSequencer(matching.NewEngine(nil), 8192, nil)
	seq.Start()
	defer seq.Stop()
	pub := marketdata.NewPublisher(8192, nil)
	pub.Start()
	defer pub.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		for {
			select {
			case res := <-seq.Results:
				pub.ExecutionIn <- res
			case <-ctx.Done():
				return
			}
		}
	}()
	defer func() {
		cancel()
		<-forwarded
	}()

	runner, err := NewRunner(smallRun(91), seq, pub, nil, WithPublisherFeed())
	require.NoError(t, err)
	got, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, want.Digests(), got.Digests())
	assert.Equal(t, want.Candles, got.Candles)
	assert.Equal(t, want.Trades, pub.TradeCount())
}

// lossyFeed drives an engine directly and feeds every result to a publisher
// except the first few snapshots.
type lossyFeed struct {
	*DirectExchange
	pub   *marketdata.Publisher
	skips int
}

func (l *lossyFeed) Submit(ctx context.Context, cmd domain.OrderCommand) (domain.CommandResult, error) {
	res, err := l.DirectExchange.Submit(ctx, cmd)
	if err != nil {
		return res, err
	}
	if cmd.Action == domain.OrderActionSnapshot && l.skips > 0 {
		l.skips--
		return res, nil
	}
	l.pub.Publish(res)
	return res, nil
}

func TestRunner_FeedRecoversFromDroppedResults(t *testing.T) {
	direct, err := NewRunner(smallRun(5), NewDirectExchange(matching.NewEngine(nil)), nil, nil)
	require.NoError(t, err)
	want, err := direct.Run(context.Background())
	require.NoError(t, err)

	pub := marketdata.NewPublisher(0, nil)
	feed := &lossyFeed{DirectExchange: NewDirectExchange(matching.NewEngine(nil)), pub: pub, skips: 2}
	runner, err := NewRunner(smallRun(5), feed, pub, nil, WithPublisherFeed())
	require.NoError(t, err)
	runner.feedPoll = 10 * time.Millisecond

	got, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, feed.skips)
	assert.Equal(t, want.Digests(), got.Digests())
	assert.Equal(t, want.Candles, got.Candles)
}

func TestRunner_BookPricedAgents(t *testing.T) {
	cfg := smallRun(8)
	cfg.Agents = 10
	cfg.Settings.UseFairPrice = false
	runner, err := NewRunner(cfg, NewDirectExchange(matching.NewEngine(nil)), nil, nil)
	require.NoError(t, err)

	report, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, report.Days, 2)
}

func TestRunner_StopsOnCancelledContext(t *testing.T) {
	runner, err := NewRunner(smallRun(1), NewDirectExchange(matching.NewEngine(nil)), nil, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = runner.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunner_RejectsInvalidConfig(t *testing.T) {
	cfg := smallRun(1)
	cfg.Agents = 0
	_, err := NewRunner(cfg, NewDirectExchange(matching.NewEngine(nil)), nil, nil)
	assert.ErrorIs(t, err, ErrInvalidSettings)
}

func TestRunner_Spans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	shutdown, err := telemetry.InitTracer("simulation-test", "test", sdktrace.WithSpanProcessor(rec))
	require.NoError(t, err)
	t.Cleanup(func() { _ = shutdown(context.Background()) })

	cfg := smallRun(3)
	cfg.Agents = 5
	runner, err := NewRunner(cfg, NewDirectExchange(matching.NewEngine(nil)), nil, nil)
	require.NoError(t, err)
	_, err = runner.Run(context.Background())
	require.NoError(t, err)

	names := map[string]int{}
	for _, s := range rec.Ended() {
		names[s.Name()]++
	}
	assert.Equal(t, 1, names["simulation.run"])
	assert.Equal(t, 2, names["simulation.day"])
}
