package metrics_test

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/torosent/streamload/internal/metrics"
)

func TestServerAccountingCountsPerQuality(t *testing.T) {
	reg := prometheus.NewRegistry()
	acct := metrics.NewServerAccounting("node-7", reg)

	acct.SessionStarted("low")
	acct.SessionStarted("low")
	acct.SessionStarted("high")
	acct.ChunkSent()
	acct.ChunkSent()
	acct.ChunkError()
	acct.ObserveChunkLatency(time.Millisecond)

	snap := acct.Snapshot()
	assert.Equal(t, int64(3), snap.ActiveSessions)
	assert.Equal(t, int64(2), snap.StreamsStarted[metrics.StreamKey{Quality: "low", NodeID: "node-7"}])
	assert.Equal(t, int64(1), snap.StreamsStarted[metrics.StreamKey{Quality: "high", NodeID: "node-7"}])
	assert.Equal(t, int64(3), snap.TotalStreams())
	assert.Equal(t, int64(2), snap.ChunksSent)
	assert.Equal(t, int64(1), snap.ChunkErrors)

	count, err := testutil.GatherAndCount(reg, "video_streams_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	expected := `
# HELP active_connections Number of active streaming connections
# TYPE active_connections gauge
active_connections{node_id="node-7"} 3
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "active_connections"))
}

func TestServerGaugeReturnsToBaseline(t *testing.T) {
	reg := prometheus.NewRegistry()
	acct := metrics.NewServerAccounting("node-1", reg)

	for round := 0; round < 20; round++ {
		var wg sync.WaitGroup
		for i := 0; i < 200; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				acct.SessionStarted("medium")
				acct.ChunkSent()
				acct.SessionEnded()
			}()
		}
		wg.Wait()
		require.Equal(t, float64(0), gatheredValue(t, reg, "active_connections"), "round %d", round)
	}

	snap := acct.Snapshot()
	assert.Equal(t, int64(0), snap.ActiveSessions)
	assert.Equal(t, int64(4000), snap.ChunksSent)
	assert.Equal(t, int64(0), snap.GaugeUnderflows)
}

func TestClientGaugeReturnsToBaseline(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := metrics.NewClientRecorder(reg)

	for round := 0; round < 20; round++ {
		var wg sync.WaitGroup
		for i := 0; i < 200; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				rec.StreamStarted("high")
				rec.StreamEnded()
			}()
		}
		wg.Wait()
		require.Equal(t, float64(0), gatheredValue(t, reg, "active_clients"), "round %d", round)
	}
	assert.Equal(t, int64(0), rec.Snapshot().ActiveStreams)
}

func TestGaugeNeverGoesNegative(t *testing.T) {
	reg := prometheus.NewRegistry()
	acct := metrics.NewServerAccounting("node-1", reg)
	acct.SessionEnded()

	snap := acct.Snapshot()
	assert.Equal(t, int64(0), snap.ActiveSessions)
	assert.Equal(t, int64(1), snap.GaugeUnderflows)
	assert.Equal(t, float64(0), gatheredValue(t, reg, "active_connections"))

	acct.SessionStarted("low")
	assert.Equal(t, float64(1), gatheredValue(t, reg, "active_connections"))
}

func TestGaugeDecReportsUnderflow(t *testing.T) {
	g := metrics.NewGauge()
	g.Inc()
	assert.True(t, g.Dec())
	assert.False(t, g.Dec())
	assert.Equal(t, int64(0), g.Value())
	assert.Equal(t, int64(1), g.Underflows())
}

// gatheredValue returns the value of the single gauge series named name.
func gatheredValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			require.Len(t, mf.GetMetric(), 1)
			return mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %s not gathered", name)
	return 0
}

func TestClientRecorderSnapshot(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := metrics.NewClientRecorder(reg)

	rec.StreamStarted("low")
	rec.StreamStarted("medium")
	rec.ChunkReceived(100)
	rec.ChunkReceived(50)
	rec.StreamError(metrics.KindUnavailable)
	rec.ObserveStreamLatency(2 * time.Second)
	rec.StreamEnded()

	snap := rec.Snapshot()
	assert.Equal(t, int64(1), snap.ActiveStreams)
	assert.Equal(t, map[string]int64{"low": 1, "medium": 1}, snap.StreamsStarted)
	assert.Equal(t, int64(2), snap.TotalStreams())
	assert.Equal(t, int64(2), snap.ChunksReceived)
	assert.Equal(t, int64(150), snap.BytesReceived)
	assert.Equal(t, int64(1), snap.Errors[metrics.ErrorKey{Kind: metrics.KindUnavailable}])
	assert.Equal(t, int64(1), snap.TotalErrors())

	got, err := testutil.GatherAndCount(reg, "client_errors_total")
	require.NoError(t, err)
	assert.Equal(t, 1, got)
}

func TestNopRecordersAreInert(t *testing.T) {
	var s metrics.ServerAccounting = metrics.NopServerAccounting{}
	s.SessionStarted("low")
	s.SessionEnded()
	assert.Equal(t, metrics.ServerSnapshot{}, s.Snapshot())

	var c metrics.ClientRecorder = metrics.NopClientRecorder{}
	c.StreamStarted("low")
	c.StreamError("X")
	assert.Equal(t, int64(0), c.Snapshot().TotalErrors())
}

func TestStartEndpointIsIdempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	acct := metrics.NewServerAccounting("node-9", reg)
	acct.SessionStarted("high")

	first, err := metrics.StartEndpoint("127.0.0.1:0", reg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = first.Shutdown(context.Background()) })

	second, err := metrics.StartEndpoint("127.0.0.1:0", reg, nil)
	require.NoError(t, err)
	assert.Same(t, first, second)

	resp, err := http.Get("http://" + first.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `video_streams_total{node_id="node-9",quality="high"} 1`)
}
