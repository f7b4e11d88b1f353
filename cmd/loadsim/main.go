package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/torosent/streamload/internal/config"
	"github.com/torosent/streamload/internal/grpcclient"
	"github.com/torosent/streamload/internal/logging"
	"github.com/torosent/streamload/internal/metrics"
	"github.com/torosent/streamload/internal/output"
	"github.com/torosent/streamload/internal/pacer"
	"github.com/torosent/streamload/internal/runner"
	"github.com/torosent/streamload/internal/threshold"
	"github.com/torosent/streamload/internal/tracing"
)

const (
	progressInterval = time.Second
	shutdownTimeout  = 5 * time.Second
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return simulate(ctx, args, os.Stdout, os.Stderr)
}

// simulate runs one load test and writes the report to stdout. Failed
// streams are part of the measurement; only a failed threshold makes the
// run itself fail.
func simulate(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cfg, err := config.NewLoader().LoadClient(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	thresholds, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.Development)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	tp, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown", zap.Error(err))
		}
	}()

	reg := prometheus.NewRegistry()
	recorder := metrics.NewClientRecorder(reg)
	collector := metrics.NewCollector()

	var endpoint *metrics.Endpoint
	defer func() {
		if endpoint == nil {
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = endpoint.Shutdown(shutdownCtx)
	}()

	streamer := grpcclient.NewStreamer(grpcclient.Config{
		Tracer:    tp.Tracer(),
		Propagate: tp.ShouldPropagate(),
	})

	r := runner.New(runner.Options{
		Clients:          cfg.Clients,
		StreamsPerClient: cfg.StreamsPerClient,
		Targets:          cfg.Targets,
		Stagger:          cfg.Stagger,
		ArrivalModel:     runner.ParseArrivalModel(cfg.ArrivalModel),
		ThinkMin:         cfg.ThinkMin,
		ThinkMax:         cfg.ThinkMax,
		ProcessMin:       cfg.ProcessMin,
		ProcessMax:       cfg.ProcessMax,
		Streamer:         streamer,
		Recorder:         recorder,
		Collector:        collector,
		Source:           newSource(cfg.Seed),
		Logger:           logger,
		BeforeStart: func() error {
			addr := cfg.MetricsAddr()
			if addr == "" {
				return nil
			}
			ep, err := metrics.StartEndpoint(addr, reg, logger)
			if err != nil {
				return err
			}
			endpoint = ep
			return nil
		},
	})

	if cfg.Progress {
		progress := output.NewProgressReporter(collector, progressInterval, stderr)
		progress.Start()
		defer func() {
			progress.Stop()
			fmt.Fprintln(stderr)
		}()
	}

	result, err := r.Run(ctx)
	if err != nil {
		return err
	}
	stats := collector.Stats(result.Duration)

	traffic := streamer.Metrics()
	logger.Info("client traffic",
		zap.Int64("streams_opened", traffic.StreamsOpened),
		zap.Int64("messages_received", traffic.MessagesReceived),
		zap.Int64("bytes_received", traffic.BytesReceived),
		zap.Int64("errors", traffic.Errors),
	)

	switch {
	case cfg.JSONOutput:
		if err := output.PrintJSONReport(stdout, stats, result.PerClient); err != nil {
			return err
		}
	case cfg.YAMLOutput:
		if err := output.PrintYAMLReport(stdout, stats, result.PerClient); err != nil {
			return err
		}
	default:
		output.PrintReport(stdout, stats, result.PerClient)
	}

	if cfg.HTMLOutput != "" {
		if err := writeHTMLReport(cfg, stats, result); err != nil {
			return err
		}
		logger.Info("html report written", zap.String("path", cfg.HTMLOutput))
	}

	results := threshold.NewEvaluator(thresholds).Evaluate(stats)
	if len(results) > 0 {
		fmt.Fprintln(stderr, "\nThresholds:")
		for _, r := range results {
			fmt.Fprintf(stderr, "  %s\n", r.Message)
		}
	}
	if failed := threshold.Failed(results); failed > 0 {
		return fmt.Errorf("%d of %d thresholds failed", failed, len(results))
	}
	return nil
}

// newSource seeds target and quality selection; zero seeds from the clock.
func newSource(seed int64) pacer.Source {
	if seed == 0 {
		return pacer.NewClockSource()
	}
	return pacer.NewSource(seed)
}

func writeHTMLReport(cfg *config.ClientConfig, stats metrics.Stats, result runner.Result) error {
	f, err := os.Create(cfg.HTMLOutput)
	if err != nil {
		return fmt.Errorf("create html report: %w", err)
	}
	meta := output.ReportMetadata{
		Targets:          cfg.Targets,
		Clients:          cfg.Clients,
		StreamsPerClient: cfg.StreamsPerClient,
	}
	if err := output.GenerateHTMLReport(f, stats, result.PerClient, meta); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
