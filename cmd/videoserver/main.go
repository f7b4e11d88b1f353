package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/torosent/streamload/internal/config"
	"github.com/torosent/streamload/internal/logging"
	"github.com/torosent/streamload/internal/metrics"
	"github.com/torosent/streamload/internal/pacer"
	"github.com/torosent/streamload/internal/server"
	"github.com/torosent/streamload/internal/session"
	"github.com/torosent/streamload/internal/tracing"
)

const shutdownTimeout = 5 * time.Second

// listenFunc opens the gRPC listener; tests swap in a loopback one.
type listenFunc func(network, addr string) (net.Listener, error)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return serve(ctx, args, net.Listen, nil)
}

// serve runs one replica until ctx ends. ready, when set, receives the bound
// gRPC address once the listener is open.
func serve(ctx context.Context, args []string, listen listenFunc, ready func(addr string)) error {
	cfg, err := config.NewLoader().LoadServer(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.Development)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	logger = logger.With(zap.String("node_id", cfg.NodeID))

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
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	acct := metrics.NewServerAccounting(cfg.NodeID, reg)
	if addr := cfg.MetricsAddr(); addr != "" {
		ep, err := metrics.StartEndpoint(addr, reg, logger)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = ep.Shutdown(shutdownCtx)
		}()
	}

	svc := server.NewVideoService(server.Options{
		NodeID: cfg.NodeID,
		Pacer: pacer.New(pacer.Options{
			MinDelay:    cfg.MinDelay,
			MaxDelay:    cfg.MaxDelay,
			FailureRate: pacerFailureRate(cfg.FailureRate),
			Source:      pacer.NewClockSource(),
		}),
		Accounting:  acct,
		Payload:     session.RandomPayload,
		MaxSessions: cfg.MaxSessions,
		Logger:      logger,
		Tracer:      tp.Tracer(),
	})

	lis, err := listen("tcp", cfg.GRPCAddr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.GRPCAddr(), err)
	}
	if ready != nil {
		ready(lis.Addr().String())
	}

	logger.Info("video server starting",
		zap.Int("max_sessions", cfg.MaxSessions),
		zap.Float64("failure_rate", cfg.FailureRate),
	)
	return server.New(svc, logger).Serve(ctx, lis)
}

// pacerFailureRate maps a configured rate of zero to the pacer's "disabled"
// marker; the pacer treats zero as "use the default".
func pacerFailureRate(rate float64) float64 {
	if rate == 0 {
		return -1
	}
	return rate
}
