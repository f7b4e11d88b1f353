package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/status"

	"github.com/torosent/streamload/internal/metrics"
	"github.com/torosent/streamload/internal/pacer"
	"github.com/torosent/streamload/internal/session"
)

// ClientSummary is one simulated viewer's totals.
type ClientSummary struct {
	ClientID string        `json:"client_id" yaml:"client_id"`
	Streams  int64         `json:"streams" yaml:"streams"`
	Failures int64         `json:"failures" yaml:"failures"`
	Chunks   int64         `json:"chunks" yaml:"chunks"`
	Bytes    int64         `json:"bytes" yaml:"bytes"`
	Duration time.Duration `json:"-" yaml:"-"`

	DurationMs float64 `json:"duration_ms" yaml:"duration_ms"`
}

// Result captures execution summary.
type Result struct {
	Clients   int
	Streams   int64
	Failures  int64
	Chunks    int64
	PerClient []ClientSummary
	Duration  time.Duration
}

// Runner launches simulated viewers and waits for all of them.
type Runner struct {
	opt Options
	log *zap.Logger
}

func New(opt Options) *Runner {
	opt.normalize()
	return &Runner{opt: opt, log: opt.Logger}
}

// Collector is where per-stream outcomes are recorded.
func (r *Runner) Collector() *metrics.Collector { return r.opt.Collector }

// Run launches Clients workers, spaced by the arrival model, and returns
// once every launched worker has finished. Cancelling ctx stops further
// launches and iterations; in-flight streams see the cancellation through
// their context.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	if r.opt.Streamer == nil {
		return Result{}, errors.New("runner: no streamer configured")
	}
	if r.opt.BeforeStart != nil {
		if err := r.opt.BeforeStart(); err != nil {
			return Result{}, fmt.Errorf("before start: %w", err)
		}
	}

	r.log.Info("starting load test",
		zap.Int("clients", r.opt.Clients),
		zap.Int("streams_per_client", r.opt.StreamsPerClient),
		zap.Strings("targets", r.opt.Targets),
	)

	start := time.Now()
	r.opt.Collector.Start()
	arrival := newArrivalController(r.opt)

	summaries := make([]ClientSummary, r.opt.Clients)
	launched := 0
	var wg sync.WaitGroup
	for i := 0; i < r.opt.Clients; i++ {
		if err := arrival.Wait(ctx); err != nil {
			r.log.Info("launch interrupted", zap.Int("launched", launched), zap.Error(err))
			break
		}
		wg.Add(1)
		launched++
		go func(id int) {
			defer wg.Done()
			summaries[id] = r.runClient(ctx, id)
		}(i)
	}
	wg.Wait()

	res := Result{
		Clients:   launched,
		PerClient: summaries[:launched],
		Duration:  time.Since(start),
	}
	for _, s := range res.PerClient {
		res.Streams += s.Streams
		res.Failures += s.Failures
		res.Chunks += s.Chunks
	}
	r.log.Info("load test completed",
		zap.Int("clients", res.Clients),
		zap.Int64("streams", res.Streams),
		zap.Int64("failures", res.Failures),
		zap.Int64("chunks", res.Chunks),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}

func (r *Runner) runClient(ctx context.Context, id int) ClientSummary {
	src := r.opt.Source
	qualities := pacer.Qualities()
	sum := ClientSummary{ClientID: fmt.Sprintf("client_%d", id)}
	log := r.log.With(zap.String("client_id", sum.ClientID))
	start := time.Now()

	for iter := 0; iter < r.opt.StreamsPerClient; iter++ {
		if ctx.Err() != nil {
			break
		}
		target := r.opt.Targets[pacer.Intn(src, len(r.opt.Targets))]
		req := session.Request{
			VideoID:  fmt.Sprintf("video_%d", pacer.Intn(src, 100)+1),
			Quality:  qualities[pacer.Intn(src, len(qualities))],
			ClientID: sum.ClientID,
		}

		out := r.stream(ctx, log, target, req)
		sum.Streams++
		sum.Chunks += out.Chunks
		sum.Bytes += out.Bytes
		if out.ErrorKind != "" {
			sum.Failures++
		}

		if iter < r.opt.StreamsPerClient-1 {
			if err := sleep(ctx, pacer.Uniform(src, r.opt.ThinkMin, r.opt.ThinkMax)); err != nil {
				break
			}
		}
	}

	sum.Duration = time.Since(start)
	sum.DurationMs = float64(sum.Duration) / float64(time.Millisecond)
	log.Info("client finished",
		zap.Int64("streams", sum.Streams),
		zap.Int64("failures", sum.Failures),
		zap.Int64("chunks", sum.Chunks),
		zap.Duration("duration", sum.Duration),
	)
	return sum
}

// stream runs one request and records its outcome everywhere it is counted.
func (r *Runner) stream(ctx context.Context, log *zap.Logger, target string, req session.Request) metrics.StreamOutcome {
	rec := r.opt.Recorder
	rec.StreamStarted(string(req.Quality))
	defer rec.StreamEnded()

	var out metrics.StreamOutcome
	begin := time.Now()
	err := r.opt.Streamer.Stream(ctx, target, req, func(c session.Chunk) error {
		out.Chunks++
		out.Bytes += int64(len(c.Data))
		rec.ChunkReceived(len(c.Data))
		return sleep(ctx, pacer.Uniform(r.opt.Source, r.opt.ProcessMin, r.opt.ProcessMax))
	})
	out.Latency = time.Since(begin)

	fields := []zap.Field{
		zap.String("target", target),
		zap.String("video_id", req.VideoID),
		zap.String("quality", string(req.Quality)),
		zap.Int64("chunks", out.Chunks),
		zap.Duration("duration", out.Latency),
	}
	if err != nil {
		out.ErrorKind = ClassifyError(err)
		rec.StreamError(out.ErrorKind)
		log.Warn("stream error", append(fields, zap.String("error_type", out.ErrorKind), zap.Error(err))...)
	} else {
		rec.ObserveStreamLatency(out.Latency)
		log.Info("stream received", fields...)
	}
	r.opt.Collector.RecordStream(out)
	return out
}

// ClassifyError names the kind of a failed stream: the gRPC status code in
// upper snake case when the error carries one, CONNECTION otherwise.
func ClassifyError(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, context.Canceled):
		return metrics.KindFromCode("Canceled")
	case errors.Is(err, context.DeadlineExceeded):
		return metrics.KindFromCode("DeadlineExceeded")
	}
	if st, ok := status.FromError(err); ok {
		return metrics.KindFromCode(st.Code().String())
	}
	return metrics.KindConnection
}

// sleep parks the caller for d or until ctx ends.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
