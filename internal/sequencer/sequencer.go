package sequencer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ismaeelbashir03/OrderBookSimulation/internal/domain"
	"github.com/ismaeelbashir03/OrderBookSimulation/internal/matching"
	"github.com/ismaeelbashir03/OrderBookSimulation/internal/telemetry"
)

// ErrStopped is returned by Submit once the sequencer has been stopped.
var ErrStopped = errors.New("sequencer: stopped")

// Request states. The writer and a caller whose context ends race to move a
// pending request; whoever wins decides whether the command runs.
const (
	reqPending int32 = iota
	reqTaken
	reqAbandoned
)

// request carries one command and the channel its result goes back on.
type request struct {
	cmd   domain.OrderCommand
	reply chan domain.CommandResult
	state atomic.Int32
}

// Sequencer serializes commands from any number of goroutines onto one
// writer goroutine that owns the matching engine. Every command is stamped
// with a monotonically increasing sequence number, and every result is also
// offered on Results for downstream consumers such as market data.
type Sequencer struct {
	inboundSeq atomic.Uint64
	engine     *matching.Engine
	logger     *slog.Logger

	in chan *request

	// Results receives every processed command. Sends never block the
	// writer; a full channel drops the result with a warning.
	Results chan domain.CommandResult

	done      chan struct{}
	stopped   chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewSequencer creates a new sequencer wired to the given matching engine.
func NewSequencer(engine *matching.Engine, bufferSize int, logger *slog.Logger) *Sequencer {
	if logger == nil {
		logger = slog.Default()
	}
	if bufferSize < 0 {
		bufferSize = 0
	}
	return &Sequencer{
		engine:  engine,
		logger:  logger.With(slog.String("component", "sequencer")),
		in:      make(chan *request, bufferSize),
		Results: make(chan domain.CommandResult, bufferSize),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Start begins the sequencer's application loop in a goroutine. Calling it
// more than once has no effect.
func (s *Sequencer) Start() {
	s.startOnce.Do(func() { go s.run() })
}

// Stop signals the writer to exit and waits for it if it was started. It is
// safe to call more than once.
func (s *Sequencer) Stop() {
	s.stopOnce.Do(func() { close(s.done) })
	started := true
	s.startOnce.Do(func() { started = false })
	if started {
		<-s.stopped
	}
}

// Submit hands cmd to the writer and waits for its result. A context error
// means the command never ran: if the writer has already taken it, Submit
// waits for the result instead, which is bounded because the engine never
// blocks.
func (s *Sequencer) Submit(ctx context.Context, cmd domain.OrderCommand) (domain.CommandResult, error) {
	ctx, span := telemetry.Tracer.Start(ctx, "sequencer.Submit",
		trace.WithAttributes(attribute.String("action", string(cmd.Action))))
	defer span.End()

	req := &request{cmd: cmd, reply: make(chan domain.CommandResult, 1)}
	select {
	case <-s.done:
		return domain.CommandResult{}, ErrStopped
	default:
	}
	select {
	case s.in <- req:
	case <-s.done:
		return domain.CommandResult{}, ErrStopped
	case <-ctx.Done():
		return domain.CommandResult{}, ctx.Err()
	}

	select {
	case res := <-req.reply:
		span.SetAttributes(
			attribute.Int64("sequence", int64(res.Sequence)),
			attribute.Int("trades", len(res.Confirmation.Trades)),
		)
		return res, nil
	case <-s.stopped:
		// the writer may have taken it just before exiting
		if req.state.CompareAndSwap(reqPending, reqAbandoned) {
			return domain.CommandResult{}, ErrStopped
		}
		return <-req.reply, nil
	case <-ctx.Done():
		if req.state.CompareAndSwap(reqPending, reqAbandoned) {
			return domain.CommandResult{}, ctx.Err()
		}
		res := <-req.reply
		span.SetAttributes(attribute.Int64("sequence", int64(res.Sequence)))
		return res, nil
	}
}

// run is the main application loop. Single writer consuming from in.
func (s *Sequencer) run() {
	defer close(s.stopped)
	s.logger.Info("sequencer started")
	for {
		select {
		case req := <-s.in:
			s.process(req)
		case <-s.done:
			s.logger.Info("sequencer stopped", slog.Uint64("sequence", s.inboundSeq.Load()))
			return
		}
	}
}

// process stamps the sequence number and dispatches to the engine. A
// request its caller abandoned is skipped without a sequence number.
func (s *Sequencer) process(req *request) {
	if !req.state.CompareAndSwap(reqPending, reqTaken) {
		return
	}
	res := s.engine.Handle(req.cmd)
	res.Sequence = s.inboundSeq.Add(1)
	telemetry.SequencerSequence.Set(float64(res.Sequence))

	req.reply <- res

	select {
	case s.Results <- res:
	default:
		telemetry.SequencerDroppedResults.Inc()
		s.logger.Warn("results channel full, dropping result", slog.Uint64("sequence", res.Sequence))
	}
}

// CurrentSequence returns the last stamped sequence number.
func (s *Sequencer) CurrentSequence() uint64 {
	return s.inboundSeq.Load()
}
