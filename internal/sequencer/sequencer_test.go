package sequencer

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/ismaeelbashir03/OrderBookSimulation/internal/domain"
	"github.com/ismaeelbashir03/OrderBookSimulation/internal/matching"
	"github.com/ismaeelbashir03/OrderBookSimulation/internal/telemetry"
)

func newStartedSequencer(t *testing.T, buffer int) *Sequencer {
	t.Helper()
	seq := NewSequencer(matching.NewEngine(nil), buffer, nil)
	seq.Start()
	t.Cleanup(seq.Stop)
	return seq
}

func addCmd(price domain.Price, qty domain.Quantity, side domain.Side) domain.OrderCommand {
	return domain.OrderCommand{Action: domain.OrderActionAdd, Price: price, Quantity: qty, Side: side}
}

func TestSequencer_StampsSequenceIDs(t *testing.T) {
	seq := newStartedSequencer(t, 100)
	ctx := context.Background()

	for i := range 3 {
		res, err := seq.Submit(ctx, addCmd(100+domain.Price(i), 10, domain.SideSell))
		require.NoError(t, err)
		assert.Equal(t, uint64(i+1), res.Sequence)
	}
	assert.Equal(t, uint64(3), seq.CurrentSequence())
}

func TestSequencer_ReturnsTrades(t *testing.T) {
	seq := newStartedSequencer(t, 100)
	ctx := context.Background()

	_, err := seq.Submit(ctx, addCmd(100, 10, domain.SideSell))
	require.NoError(t, err)
	res, err := seq.Submit(ctx, addCmd(100, 10, domain.SideBuy))
	require.NoError(t, err)

	require.Len(t, res.Confirmation.Trades, 1)
	assert.Equal(t, domain.Quantity(10), res.Confirmation.Trades[0].Quantity())
}

func TestSequencer_ConcurrentSubmitters(t *testing.T) {
	seq := newStartedSequencer(t, 1000)
	ctx := context.Background()

	const workers, perWorker = 8, 50
	var (
		mu   sync.Mutex
		seqs []uint64
		wg   sync.WaitGroup
	)
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			side := domain.SideBuy
			if w%2 == 1 {
				side = domain.SideSell
			}
			for i := range perWorker {
				res, err := seq.Submit(ctx, addCmd(100+domain.Price(i%3), 1, side))
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				seqs = append(seqs, res.Sequence)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, seqs, workers*perWorker)
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	for i, s := range seqs {
		assert.Equal(t, uint64(i+1), s)
	}

	snap, err := seq.Submit(ctx, domain.OrderCommand{Action: domain.OrderActionSnapshot})
	require.NoError(t, err)
	require.NotNil(t, snap.Depth)

	// the book must never be left crossed
	var bestBid, bestAsk domain.Price
	var hasBid, hasAsk bool
	for _, lvl := range snap.Depth.Bids {
		if lvl.Quantity > 0 {
			bestBid, hasBid = lvl.Price, true
			break
		}
	}
	for _, lvl := range snap.Depth.Asks {
		if lvl.Quantity > 0 {
			bestAsk, hasAsk = lvl.Price, true
			break
		}
	}
	if hasBid && hasAsk {
		assert.Less(t, bestBid, bestAsk)
	}
}

func TestSequencer_PublishesResults(t *testing.T) {
	seq := newStartedSequencer(t, 10)

	_, err := seq.Submit(context.Background(), addCmd(100, 1, domain.SideBuy))
	require.NoError(t, err)

	select {
	case res := <-seq.Results:
		assert.Equal(t, uint64(1), res.Sequence)
		assert.Equal(t, domain.OrderActionAdd, res.Command.Action)
	case <-time.After(time.Second):
		t.Fatal("no result published")
	}
}

func TestSequencer_DropsResultsWhenFull(t *testing.T) {
	seq := newStartedSequencer(t, 0)
	dropped := testutil.ToFloat64(telemetry.SequencerDroppedResults)

	_, err := seq.Submit(context.Background(), addCmd(100, 1, domain.SideBuy))
	require.NoError(t, err)
	// the writer finishes the first command before it takes the second
	_, err = seq.Submit(context.Background(), addCmd(100, 1, domain.SideBuy))
	require.NoError(t, err)

	assert.GreaterOrEqual(t, testutil.ToFloat64(telemetry.SequencerDroppedResults), dropped+1)
}

func TestSequencer_SubmitAfterStop(t *testing.T) {
	seq := NewSequencer(matching.NewEngine(nil), 10, nil)
	seq.Start()
	seq.Stop()
	seq.Stop()

	_, err := seq.Submit(context.Background(), addCmd(100, 1, domain.SideBuy))
	assert.ErrorIs(t, err, ErrStopped)
}

func TestSequencer_StopWithoutStart(t *testing.T) {
	seq := NewSequencer(matching.NewEngine(nil), 10, nil)
	seq.Stop()

	_, err := seq.Submit(context.Background(), addCmd(100, 1, domain.SideBuy))
	assert.ErrorIs(t, err, ErrStopped)
}

func TestSequencer_SubmitHonoursContext(t *testing.T) {
	// never started, so nothing drains the unbuffered inbound channel
	seq := NewSequencer(matching.NewEngine(nil), 0, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := seq.Submit(ctx, addCmd(100, 1, domain.SideBuy))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSequencer_SubmitOpensSpan(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	shutdown, err := telemetry.InitTracer("sequencer-test", "test", sdktrace.WithSpanProcessor(rec))
	require.NoError(t, err)
	t.Cleanup(func() { _ = shutdown(context.Background()) })

	seq := newStartedSequencer(t, 10)
	_, err = seq.Submit(context.Background(), addCmd(100, 1, domain.SideBuy))
	require.NoError(t, err)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "sequencer.Submit", spans[0].Name())
}

func TestSequencer_AbandonedCommandNeverRuns(t *testing.T) {
	engine := matching.NewEngine(nil)
	seq := NewSequencer(engine, 1, nil)
	t.Cleanup(seq.Stop)

	// the command is queued but nothing reads it before the deadline
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := seq.Submit(ctx, addCmd(100, 1, domain.SideBuy))
	require.ErrorIs(t, err, context.DeadlineExceeded)

	seq.Start()
	res, err := seq.Submit(context.Background(), addCmd(101, 1, domain.SideBuy))
	require.NoError(t, err)

	assert.Equal(t, uint64(1), res.Sequence)
	assert.Equal(t, 1, engine.NumOrders())
	_, live := engine.Order(res.Confirmation.OrderID)
	assert.True(t, live)
}

func TestSequencer_ContextErrorMeansNotApplied(t *testing.T) {
	engine := matching.NewEngine(nil)
	seq := NewSequencer(engine, 64, nil)
	seq.Start()
	t.Cleanup(seq.Stop)

	const workers, perWorker = 8, 200
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perWorker {
				ctx, cancel := context.WithTimeout(context.Background(), time.Duration((w+i)%4)*time.Microsecond)
				_, err := seq.Submit(ctx, addCmd(100, 1, domain.SideBuy))
				cancel()
				if err == nil {
					mu.Lock()
					applied++
					mu.Unlock()
					continue
				}
				assert.ErrorIs(t, err, context.DeadlineExceeded)
			}
		}()
	}
	wg.Wait()

	// every command that ran was reported to its caller, and no other
	assert.Equal(t, uint64(applied), seq.CurrentSequence())
	assert.Equal(t, applied, engine.NumOrders())
}
