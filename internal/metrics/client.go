package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ClientRecorder is the driver-wide bookkeeping updated by every simulated
// viewer.
type ClientRecorder interface {
	StreamStarted(quality string)
	StreamEnded()
	ChunkReceived(bytes int)
	StreamError(kind string)
	ObserveStreamLatency(d time.Duration)
	Snapshot() ClientSnapshot
}

// ClientSnapshot is a point-in-time copy of the driver's counters.
type ClientSnapshot struct {
	ActiveStreams   int64
	StreamsStarted  map[string]int64
	ChunksReceived  int64
	BytesReceived   int64
	Errors          map[ErrorKey]int64
	LatencySamples  int64
	GaugeUnderflows int64
}

// TotalStreams sums StreamsStarted over all qualities.
func (s ClientSnapshot) TotalStreams() int64 {
	var sum int64
	for _, v := range s.StreamsStarted {
		sum += v
	}
	return sum
}

// TotalErrors sums Errors over all kinds.
func (s ClientSnapshot) TotalErrors() int64 {
	var sum int64
	for _, v := range s.Errors {
		sum += v
	}
	return sum
}

type clientRecorder struct {
	active  Gauge
	streams *counterMap[QualityKey]
	chunks  Counter
	bytes   Counter
	errors  *counterMap[ErrorKey]
	samples Counter

	promStreams *prometheus.CounterVec
	promChunks  prometheus.Counter
	promLatency prometheus.Histogram
	promErrors  *prometheus.CounterVec
	promActive  prometheus.Gauge
}

// NewClientRecorder registers the driver metrics on reg. A nil reg keeps
// the counters local.
func NewClientRecorder(reg prometheus.Registerer) ClientRecorder {
	streams := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "client_streams_total",
		Help: "Total streams initiated",
	}, []string{"quality"})
	chunks := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "client_chunks_received_total",
		Help: "Total chunks received",
	})
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "client_stream_latency_seconds",
		Help:    "Client-side latency",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})
	errs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "client_errors_total",
		Help: "Total client errors",
	}, []string{"error_type"})
	active := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "active_clients",
		Help: "Number of active client connections",
	})

	if reg != nil {
		reg.MustRegister(streams, chunks, latency, errs, active)
	}

	return &clientRecorder{
		active:      NewGauge(),
		streams:     newCounterMap[QualityKey](),
		chunks:      NewCounter(),
		bytes:       NewCounter(),
		errors:      newCounterMap[ErrorKey](),
		samples:     NewCounter(),
		promStreams: streams,
		promChunks:  chunks,
		promLatency: latency,
		promErrors:  errs,
		promActive:  active,
	}
}

func (r *clientRecorder) StreamStarted(quality string) {
	r.active.Inc()
	r.promActive.Inc()
	r.streams.get(QualityKey{Quality: quality}).Inc()
	r.promStreams.WithLabelValues(quality).Inc()
}

func (r *clientRecorder) StreamEnded() {
	if r.active.Dec() {
		r.promActive.Dec()
	}
}

func (r *clientRecorder) ChunkReceived(bytes int) {
	r.chunks.Inc()
	r.bytes.Add(int64(bytes))
	r.promChunks.Inc()
}

func (r *clientRecorder) StreamError(kind string) {
	r.errors.get(ErrorKey{Kind: kind}).Inc()
	r.promErrors.WithLabelValues(kind).Inc()
}

func (r *clientRecorder) ObserveStreamLatency(d time.Duration) {
	r.samples.Inc()
	r.promLatency.Observe(d.Seconds())
}

func (r *clientRecorder) Snapshot() ClientSnapshot {
	streams := make(map[string]int64)
	for k, v := range r.streams.snapshot() {
		streams[k.Quality] += v
	}
	return ClientSnapshot{
		ActiveStreams:   r.active.Value(),
		StreamsStarted:  streams,
		ChunksReceived:  r.chunks.Value(),
		BytesReceived:   r.bytes.Value(),
		Errors:          r.errors.snapshot(),
		LatencySamples:  r.samples.Value(),
		GaugeUnderflows: r.active.Underflows(),
	}
}

// NopClientRecorder discards all updates.
type NopClientRecorder struct{}

func (NopClientRecorder) StreamStarted(string)               {}
func (NopClientRecorder) StreamEnded()                       {}
func (NopClientRecorder) ChunkReceived(int)                  {}
func (NopClientRecorder) StreamError(string)                 {}
func (NopClientRecorder) ObserveStreamLatency(time.Duration) {}
func (NopClientRecorder) Snapshot() ClientSnapshot           { return ClientSnapshot{} }
