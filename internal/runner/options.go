package runner

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/torosent/streamload/internal/metrics"
	"github.com/torosent/streamload/internal/pacer"
	"github.com/torosent/streamload/internal/session"
)

const defaultTarget = "localhost:50051"

// Streamer runs one stream against target, calling onChunk for every chunk
// in order. It returns nil when the video ends normally.
type Streamer interface {
	Stream(ctx context.Context, target string, req session.Request, onChunk func(session.Chunk) error) error
}

// Options configure the Runner. Durations are taken literally: a zero
// ThinkMax means clients start their next stream immediately.
type Options struct {
	Clients          int           // concurrent simulated viewers
	StreamsPerClient int           // sequential streams per viewer
	Targets          []string      // replica addresses, chosen uniformly per stream
	Stagger          time.Duration // mean gap between client launches
	ArrivalModel     ArrivalModel
	ThinkMin         time.Duration // pause between a client's streams
	ThinkMax         time.Duration
	ProcessMin       time.Duration // simulated work per received chunk
	ProcessMax       time.Duration

	Streamer  Streamer // required
	Recorder  metrics.ClientRecorder
	Collector *metrics.Collector
	Source    pacer.Source
	Logger    *zap.Logger
	// BeforeStart runs once before any client launches, e.g. to expose the
	// metrics endpoint. An error aborts the run.
	BeforeStart func() error
	// LimiterFactory builds the launch limiter; injectable for tests.
	LimiterFactory func(every time.Duration) *rate.Limiter
}

func (o *Options) normalize() {
	if o.Clients <= 0 {
		o.Clients = 1
	}
	if o.StreamsPerClient <= 0 {
		o.StreamsPerClient = 1
	}
	if len(o.Targets) == 0 {
		o.Targets = []string{defaultTarget}
	}
	if o.Stagger < 0 {
		o.Stagger = 0
	}
	if o.ArrivalModel == "" {
		o.ArrivalModel = ArrivalModelUniform
	}
	if o.ThinkMin < 0 {
		o.ThinkMin = 0
	}
	if o.ThinkMax < o.ThinkMin {
		o.ThinkMax = o.ThinkMin
	}
	if o.ProcessMin < 0 {
		o.ProcessMin = 0
	}
	if o.ProcessMax < o.ProcessMin {
		o.ProcessMax = o.ProcessMin
	}
	if o.Recorder == nil {
		o.Recorder = metrics.NopClientRecorder{}
	}
	if o.Collector == nil {
		o.Collector = metrics.NewCollector()
	}
	if o.Source == nil {
		o.Source = pacer.NewClockSource()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.LimiterFactory == nil {
		o.LimiterFactory = func(every time.Duration) *rate.Limiter {
			if every <= 0 {
				return rate.NewLimiter(rate.Inf, 0)
			}
			// Burst 1: the first client starts at once, each later one
			// waits a full gap.
			return rate.NewLimiter(rate.Every(every), 1)
		}
	}
}
