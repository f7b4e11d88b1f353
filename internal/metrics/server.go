package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ServerAccounting is the replica-wide bookkeeping updated by every stream
// session.
type ServerAccounting interface {
	SessionStarted(quality string)
	SessionEnded()
	ChunkSent()
	ChunkError()
	ObserveChunkLatency(d time.Duration)
	Snapshot() ServerSnapshot
}

// ServerSnapshot is a point-in-time copy of a replica's counters.
type ServerSnapshot struct {
	NodeID            string
	ActiveSessions    int64
	StreamsStarted    map[StreamKey]int64
	ChunksSent        int64
	ChunkErrors       int64
	GaugeUnderflows   int64
	ChunkLatencyCount int64
}

// TotalStreams sums StreamsStarted over all qualities.
func (s ServerSnapshot) TotalStreams() int64 {
	var sum int64
	for _, v := range s.StreamsStarted {
		sum += v
	}
	return sum
}

type serverAccounting struct {
	nodeID       string
	active       Gauge
	streams      *counterMap[StreamKey]
	chunksSent   Counter
	chunkErrors  Counter
	latencyCount Counter

	promStreams      *prometheus.CounterVec
	promChunks       prometheus.Counter
	promErrors       prometheus.Counter
	promActive       prometheus.Gauge
	promChunkLatency prometheus.Observer
}

// NewServerAccounting registers the replica metrics on reg, labelled with
// nodeID. A nil reg keeps the counters local.
func NewServerAccounting(nodeID string, reg prometheus.Registerer) ServerAccounting {
	streams := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "video_streams_total",
		Help: "Total number of video streams",
	}, []string{"quality", "node_id"})
	chunks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "video_chunks_sent_total",
		Help: "Total chunks sent",
	}, []string{"node_id"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stream_chunk_latency_seconds",
		Help:    "Latency per chunk",
		Buckets: prometheus.DefBuckets,
	}, []string{"node_id"})
	active := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "active_connections",
		Help: "Number of active streaming connections",
	}, []string{"node_id"})
	errs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chunk_errors_total",
		Help: "Total chunk delivery errors",
	}, []string{"node_id"})

	if reg != nil {
		reg.MustRegister(streams, chunks, latency, active, errs)
	}

	return &serverAccounting{
		nodeID:           nodeID,
		active:           NewGauge(),
		streams:          newCounterMap[StreamKey](),
		chunksSent:       NewCounter(),
		chunkErrors:      NewCounter(),
		latencyCount:     NewCounter(),
		promStreams:      streams,
		promChunks:       chunks.WithLabelValues(nodeID),
		promErrors:       errs.WithLabelValues(nodeID),
		promActive:       active.WithLabelValues(nodeID),
		promChunkLatency: latency.WithLabelValues(nodeID),
	}
}

func (a *serverAccounting) SessionStarted(quality string) {
	a.active.Inc()
	a.promActive.Inc()
	a.streams.get(StreamKey{Quality: quality, NodeID: a.nodeID}).Inc()
	a.promStreams.WithLabelValues(quality, a.nodeID).Inc()
}

func (a *serverAccounting) SessionEnded() {
	if a.active.Dec() {
		a.promActive.Dec()
	}
}

func (a *serverAccounting) ChunkSent() {
	a.chunksSent.Inc()
	a.promChunks.Inc()
}

func (a *serverAccounting) ChunkError() {
	a.chunkErrors.Inc()
	a.promErrors.Inc()
}

func (a *serverAccounting) ObserveChunkLatency(d time.Duration) {
	a.latencyCount.Inc()
	a.promChunkLatency.Observe(d.Seconds())
}

func (a *serverAccounting) Snapshot() ServerSnapshot {
	return ServerSnapshot{
		NodeID:            a.nodeID,
		ActiveSessions:    a.active.Value(),
		StreamsStarted:    a.streams.snapshot(),
		ChunksSent:        a.chunksSent.Value(),
		ChunkErrors:       a.chunkErrors.Value(),
		GaugeUnderflows:   a.active.Underflows(),
		ChunkLatencyCount: a.latencyCount.Value(),
	}
}

// NopServerAccounting discards all updates.
type NopServerAccounting struct{}

func (NopServerAccounting) SessionStarted(string)             {}
func (NopServerAccounting) SessionEnded()                     {}
func (NopServerAccounting) ChunkSent()                        {}
func (NopServerAccounting) ChunkError()                       {}
func (NopServerAccounting) ObserveChunkLatency(time.Duration) {}
func (NopServerAccounting) Snapshot() ServerSnapshot          { return ServerSnapshot{} }
