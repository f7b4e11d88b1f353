package metrics

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// StreamOutcome is the result of one client stream.
type StreamOutcome struct {
	Latency   time.Duration
	Chunks    int64
	Bytes     int64
	ErrorKind string // empty on success
}

// Collector aggregates stream outcomes in a thread-safe manner.
type Collector struct {
	mu           sync.Mutex
	hist         *hdrhistogram.Histogram
	successes    int64
	failures     int64
	chunks       int64
	bytes        int64
	minLatency   time.Duration
	maxLatency   time.Duration
	sumLatency   time.Duration
	errorsByKind map[string]int64
	start        time.Time
}

// Stats represents aggregated stream metrics.
type Stats struct {
	Total         int64         `json:"total" yaml:"total"`
	Successes     int64         `json:"successes" yaml:"successes"`
	Failures      int64         `json:"failures" yaml:"failures"`
	Chunks        int64         `json:"chunks" yaml:"chunks"`
	Bytes         int64         `json:"bytes" yaml:"bytes"`
	MinLatency    time.Duration `json:"-" yaml:"-"`
	MaxLatency    time.Duration `json:"-" yaml:"-"`
	MeanLatency   time.Duration `json:"-" yaml:"-"`
	P50Latency    time.Duration `json:"-" yaml:"-"`
	P90Latency    time.Duration `json:"-" yaml:"-"`
	P95Latency    time.Duration `json:"-" yaml:"-"`
	P99Latency    time.Duration `json:"-" yaml:"-"`
	Duration      time.Duration `json:"-" yaml:"-"`
	StreamsPerSec float64       `json:"streams_per_sec" yaml:"streams_per_sec"`
	ChunksPerSec  float64       `json:"chunks_per_sec" yaml:"chunks_per_sec"`

	// Millisecond fields for machine-readable reports.
	MinLatencyMs  float64          `json:"min_latency_ms" yaml:"min_latency_ms"`
	MaxLatencyMs  float64          `json:"max_latency_ms" yaml:"max_latency_ms"`
	MeanLatencyMs float64          `json:"mean_latency_ms" yaml:"mean_latency_ms"`
	P50LatencyMs  float64          `json:"p50_latency_ms" yaml:"p50_latency_ms"`
	P90LatencyMs  float64          `json:"p90_latency_ms" yaml:"p90_latency_ms"`
	P95LatencyMs  float64          `json:"p95_latency_ms" yaml:"p95_latency_ms"`
	P99LatencyMs  float64          `json:"p99_latency_ms" yaml:"p99_latency_ms"`
	DurationMs    float64          `json:"duration_ms" yaml:"duration_ms"`
	Errors        map[string]int64 `json:"errors,omitempty" yaml:"errors,omitempty"`
	ErrorBuckets  []ErrorBucket    `json:"-" yaml:"-"`
}

func NewCollector() *Collector {
	// Whole streams run up to a few minutes: track 1ms..1h with 3 significant figures.
	h := hdrhistogram.New(1, int64(time.Hour/time.Millisecond), 3)
	return &Collector{
		hist:         h,
		errorsByKind: make(map[string]int64),
		start:        time.Now(),
	}
}

// Start resets the reference time used for throughput.
func (c *Collector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.start = time.Now()
}

// Elapsed is the time since Start (or construction).
func (c *Collector) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Since(c.start)
}

// RecordStream records one stream's outcome.
func (c *Collector) RecordStream(o StreamOutcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	latency := o.Latency
	if latency > 0 {
		ms := latency.Milliseconds()
		if ms < c.hist.LowestTrackableValue() {
			ms = c.hist.LowestTrackableValue()
		}
		if ms > c.hist.HighestTrackableValue() {
			ms = c.hist.HighestTrackableValue()
		}
		_ = c.hist.RecordValue(ms)
	}
	c.sumLatency += latency
	if c.minLatency == 0 || latency < c.minLatency {
		c.minLatency = latency
	}
	if latency > c.maxLatency {
		c.maxLatency = latency
	}

	c.chunks += o.Chunks
	c.bytes += o.Bytes

	if o.ErrorKind == "" {
		c.successes++
	} else {
		c.failures++
		c.errorsByKind[o.ErrorKind]++
	}
}

// Stats computes aggregated statistics over everything recorded so far.
func (c *Collector) Stats(elapsed time.Duration) Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.successes + c.failures
	stats := Stats{
		Total:      total,
		Successes:  c.successes,
		Failures:   c.failures,
		Chunks:     c.chunks,
		Bytes:      c.bytes,
		MinLatency: c.minLatency,
		MaxLatency: c.maxLatency,
	}

	if total > 0 {
		stats.MeanLatency = time.Duration(int64(c.sumLatency) / total)
	}
	if c.hist.TotalCount() > 0 {
		stats.P50Latency = time.Duration(c.hist.ValueAtQuantile(50)) * time.Millisecond
		stats.P90Latency = time.Duration(c.hist.ValueAtQuantile(90)) * time.Millisecond
		stats.P95Latency = time.Duration(c.hist.ValueAtQuantile(95)) * time.Millisecond
		stats.P99Latency = time.Duration(c.hist.ValueAtQuantile(99)) * time.Millisecond
	}

	stats.MinLatencyMs = toMillis(stats.MinLatency)
	stats.MaxLatencyMs = toMillis(stats.MaxLatency)
	stats.MeanLatencyMs = toMillis(stats.MeanLatency)
	stats.P50LatencyMs = toMillis(stats.P50Latency)
	stats.P90LatencyMs = toMillis(stats.P90Latency)
	stats.P95LatencyMs = toMillis(stats.P95Latency)
	stats.P99LatencyMs = toMillis(stats.P99Latency)

	stats.Duration = elapsed
	stats.DurationMs = toMillis(elapsed)
	if elapsed > 0 {
		stats.StreamsPerSec = float64(total) / elapsed.Seconds()
		stats.ChunksPerSec = float64(c.chunks) / elapsed.Seconds()
	}

	if len(c.errorsByKind) > 0 {
		stats.Errors = make(map[string]int64, len(c.errorsByKind))
		for k, v := range c.errorsByKind {
			stats.Errors[k] = v
		}
		stats.ErrorBuckets = FlattenErrorBuckets(stats.Errors)
	}
	return stats
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
