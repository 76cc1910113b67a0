// Command lob drives the limit order book: a scripted demo, a replay of an
// order file and a seeded agent simulation.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/ismaeelbashir03/OrderBookSimulation/internal/config"
	"github.com/ismaeelbashir03/OrderBookSimulation/internal/harness"
	"github.com/ismaeelbashir03/OrderBookSimulation/internal/marketdata"
	"github.com/ismaeelbashir03/OrderBookSimulation/internal/matching"
	"github.com/ismaeelbashir03/OrderBookSimulation/internal/orderbook"
	"github.com/ismaeelbashir03/OrderBookSimulation/internal/sequencer"
	"github.com/ismaeelbashir03/OrderBookSimulation/internal/simulation"
	"github.com/ismaeelbashir03/OrderBookSimulation/internal/telemetry"
)

const serviceName = "lob"

// recentPrints is how much of the tape simulate prints.
const recentPrints = 5

const usage = `usage: lob <command> [flags]

commands:
  demo       run the scripted walkthrough and print the book after each step
  stress     replay an order file and report throughput
  simulate   run the seeded agent simulation
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	cmd, rest := args[0], args[1:]
	flags := pflag.NewFlagSet(cmd, pflag.ContinueOnError)
	flags.SetOutput(stderr)
	configPath := flags.String("config", "", "config file (yaml, json or toml)")
	flags.String("log-level", "info", "debug, info, warn or error")
	flags.String("log-format", "json", "json or text")
	flags.String("metrics-addr", "", "serve /metrics on this address")
	flags.Int("prealloc", orderbook.DefaultPrealloc, "order records to preallocate")

	var action func(context.Context, *config.Config, *slog.Logger, io.Writer) error
	switch cmd {
	case "demo":
		action = runDemo
	case "stress":
		flags.String("file", "output/orders.txt", "order file to replay")
		action = runStress
	case "simulate":
		flags.Uint64("seed", 1234, "random seed")
		flags.Int("agents", 1000, "number of agents")
		flags.Int("days", 1, "trading days")
		flags.Int("ticks", 10, "ticks per day")
		flags.Int("buffer", 4096, "sequencer channel buffer")
		action = runSimulate
	case "-h", "--help", "help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", cmd, usage)
		return 2
	}

	if err := flags.Parse(rest); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}

	cfg, err := config.Load(*configPath, flags)
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}

	logger, err := telemetry.InitLogger(serviceName, cfg.Log.Level, cfg.Log.Format, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "logger: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.InitTracer(serviceName, cmd)
	if err != nil {
		logger.Error("init tracer", slog.Any("error", err))
		return 1
	}

	metricsSrv := startMetrics(cfg.Metrics.Addr, logger)

	runErr := action(ctx, cfg, logger, stdout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown", slog.Any("error", err))
		}
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		logger.Error("tracer shutdown", slog.Any("error", err))
	}

	if runErr != nil {
		logger.Error("command failed", slog.String("command", cmd), slog.Any("error", runErr))
		return 1
	}
	return 0
}

func startMetrics(addr string, logger *slog.Logger) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("metrics server listening", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", slog.Any("error", err))
		}
	}()
	return srv
}

func newEngine(cfg *config.Config, logger *slog.Logger) *matching.Engine {
	return matching.NewEngine(logger, orderbook.WithPrealloc(cfg.Pool.Prealloc))
}

func runDemo(_ context.Context, cfg *config.Config, logger *slog.Logger, stdout io.Writer) error {
	engine := newEngine(cfg, logger)
	final, err := harness.RunDemo(engine, stdout)
	if err != nil {
		return fmt.Errorf("demo: %w", err)
	}
	logger.Info("demo finished",
		slog.Int("bid_levels", len(final.Bids)),
		slog.Int("ask_levels", len(final.Asks)),
		slog.Int("resting", engine.NumOrders()),
	)
	return nil
}

func runStress(_ context.Context, cfg *config.Config, logger *slog.Logger, stdout io.Writer) error {
	f, err := os.Open(cfg.Stress.File)
	if err != nil {
		return fmt.Errorf("open order file: %w", err)
	}
	defer f.Close()

	lines, errs := harness.LoadOrders(f)
	for _, e := range errs {
		logger.Warn("skipping order line", slog.Any("error", e))
	}

	engine := newEngine(cfg, logger)
	stats := harness.Replay(engine, lines)

	fmt.Fprintf(stdout, "Processed %d orders in %s (%.0f orders/s)\n",
		stats.Orders, stats.Elapsed, stats.OrdersPerSecond())
	fmt.Fprintf(stdout, "Trades: %d, volume: %d, resting: %d, levels: %d bid / %d ask\n",
		stats.Trades, stats.Volume, stats.Resting, stats.BidLevels, stats.AskLevels)
	logger.Info("stress finished",
		slog.String("file", cfg.Stress.File),
		slog.Int("orders", stats.Orders),
		slog.Int("skipped", len(errs)),
		slog.Duration("elapsed", stats.Elapsed),
	)
	return nil
}

func runSimulate(ctx context.Context, cfg *config.Config, logger *slog.Logger, stdout io.Writer) error {
	runCfg, err := cfg.RunConfig()
	if err != nil {
		return err
	}

	engine := newEngine(cfg, logger)
	seq := sequencer.NewSequencer(engine, cfg.Sequencer.Buffer, logger)
	seq.Start()
	defer seq.Stop()

	publisher := marketdata.NewPublisher(cfg.Sequencer.Buffer, logger)
	publisher.Start()
	defer publisher.Stop()

	// fan the sequencer's results out to the market data publisher
	forwarded := make(chan struct{})
	feedCtx, stopFeed := context.WithCancel(ctx)
	go func() {
		defer close(forwarded)
		for {
			select {
			case res := <-seq.Results:
				for _, tr := range res.Confirmation.Trades {
					logger.Debug("trade",
						slog.Uint64("sequence", res.Sequence),
						slog.Uint64("bid_order", uint64(tr.Bid.OrderID)),
						slog.Uint64("ask_order", uint64(tr.Ask.OrderID)),
						slog.Int64("price", int64(tr.Bid.Price)),
						slog.Uint64("quantity", uint64(tr.Quantity())),
					)
				}
				select {
				case publisher.ExecutionIn <- res:
				case <-feedCtx.Done():
					return
				}
			case <-feedCtx.Done():
				return
			}
		}
	}()
	defer func() {
		stopFeed()
		<-forwarded
	}()

	runner, err := simulation.NewRunner(runCfg, seq, publisher, logger, simulation.WithPublisherFeed())
	if err != nil {
		return err
	}

	report, err := runner.Run(ctx)
	if err != nil {
		return fmt.Errorf("simulate: %w", err)
	}

	fmt.Fprintf(stdout, "Run %s seed %d: %d trades over %d day(s)\n",
		report.RunID, report.Seed, report.Trades, len(report.Days))
	for _, d := range report.Days {
		fmt.Fprintf(stdout, "  day %d: %d trades, %d bid / %d ask levels, digest %016x\n",
			d.Day, d.Trades, d.Bids, d.Asks, d.Digest)
	}
	for i, c := range report.Candles {
		fmt.Fprintf(stdout, "  candle %d: O %d H %d L %d C %d V %d (%d trades)\n",
			i, c.Open, c.High, c.Low, c.Close, c.Volume, c.Trades)
	}
	prints := publisher.GetTrades(0)
	if n := len(prints); n > recentPrints {
		prints = prints[n-recentPrints:]
	}
	for _, pr := range prints {
		fmt.Fprintf(stdout, "  print #%d: %d @ %d (bid %d, ask %d)\n",
			pr.Sequence, pr.Trade.Quantity(), pr.Trade.Bid.Price, pr.Trade.Bid.OrderID, pr.Trade.Ask.OrderID)
	}
	return marketdata.RenderDepth(stdout, report.FinalDepth)
}
