package metrics_test

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/torosent/streamload/internal/metrics"
)

func TestCollectorLatencyStats(t *testing.T) {
	c := metrics.NewCollector()

	for _, ms := range []int{10, 20, 30, 40, 50} {
		c.RecordStream(metrics.StreamOutcome{Latency: time.Duration(ms) * time.Millisecond, Chunks: 10})
	}

	stats := c.Stats(0)

	if stats.Total != 5 {
		t.Errorf("expected total 5, got %d", stats.Total)
	}
	if stats.Successes != 5 {
		t.Errorf("expected successes 5, got %d", stats.Successes)
	}
	if stats.Chunks != 50 {
		t.Errorf("expected chunks 50, got %d", stats.Chunks)
	}
	if stats.MinLatency != 10*time.Millisecond {
		t.Errorf("expected min 10ms, got %s", stats.MinLatency)
	}
	if stats.MaxLatency != 50*time.Millisecond {
		t.Errorf("expected max 50ms, got %s", stats.MaxLatency)
	}
	if stats.MeanLatency != 30*time.Millisecond {
		t.Errorf("expected mean 30ms, got %s", stats.MeanLatency)
	}
}

func TestPercentilesCalculations(t *testing.T) {
	c := metrics.NewCollector()

	for i := 1; i <= 100; i++ {
		c.RecordStream(metrics.StreamOutcome{Latency: time.Duration(i) * time.Second})
	}

	stats := c.Stats(0)

	if stats.P50Latency < 49*time.Second || stats.P50Latency > 51*time.Second {
		t.Errorf("expected P50 ~50s, got %s", stats.P50Latency)
	}
	if stats.P90Latency < 89*time.Second || stats.P90Latency > 91*time.Second {
		t.Errorf("expected P90 ~90s, got %s", stats.P90Latency)
	}
	if stats.P95Latency < 94*time.Second || stats.P95Latency > 96*time.Second {
		t.Errorf("expected P95 ~95s, got %s", stats.P95Latency)
	}
	if stats.P95LatencyMs != float64(stats.P95Latency)/float64(time.Millisecond) {
		t.Errorf("expected P95LatencyMs to mirror P95Latency, got %v", stats.P95LatencyMs)
	}
	if stats.P99Latency < 98*time.Second || stats.P99Latency > 101*time.Second {
		t.Errorf("expected P99 ~99s, got %s", stats.P99Latency)
	}
}

func TestErrorKindsAreBucketed(t *testing.T) {
	c := metrics.NewCollector()
	c.RecordStream(metrics.StreamOutcome{Latency: time.Second, Chunks: 1200})
	c.RecordStream(metrics.StreamOutcome{Latency: time.Second, Chunks: 12, ErrorKind: metrics.KindUnavailable})
	c.RecordStream(metrics.StreamOutcome{Latency: time.Second, Chunks: 40, ErrorKind: metrics.KindUnavailable})
	c.RecordStream(metrics.StreamOutcome{Latency: time.Second, ErrorKind: metrics.KindConnection})

	stats := c.Stats(time.Second)
	if stats.Failures != 3 {
		t.Fatalf("expected 3 failures, got %d", stats.Failures)
	}
	if stats.Errors[metrics.KindUnavailable] != 2 {
		t.Fatalf("expected 2 unavailable errors, got %d", stats.Errors[metrics.KindUnavailable])
	}
	if len(stats.ErrorBuckets) != 2 || stats.ErrorBuckets[0].Kind != metrics.KindUnavailable {
		t.Fatalf("unexpected buckets: %+v", stats.ErrorBuckets)
	}
	if stats.ChunksPerSec != 1252 {
		t.Fatalf("expected 1252 chunks/sec, got %v", stats.ChunksPerSec)
	}
}

func TestJSONReportSchema(t *testing.T) {
	c := metrics.NewCollector()
	c.RecordStream(metrics.StreamOutcome{Latency: 15 * time.Millisecond})
	c.RecordStream(metrics.StreamOutcome{Latency: 25 * time.Millisecond})

	data, err := json.Marshal(c.Stats(100 * time.Millisecond))
	if err != nil {
		t.Fatalf("failed to marshal stats: %v", err)
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}

	requiredFields := []string{"total", "successes", "failures", "chunks", "min_latency_ms", "max_latency_ms", "mean_latency_ms", "p50_latency_ms", "p90_latency_ms", "p99_latency_ms", "duration_ms", "streams_per_sec"}
	for _, field := range requiredFields {
		if _, ok := parsed[field]; !ok {
			t.Errorf("missing field %q in JSON output", field)
		}
	}
}

func TestConcurrentRecording(t *testing.T) {
	c := metrics.NewCollector()

	var wg sync.WaitGroup
	workers := 10
	recordsPerWorker := 100

	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < recordsPerWorker; j++ {
				c.RecordStream(metrics.StreamOutcome{Latency: time.Millisecond, Chunks: 1})
			}
		}()
	}
	wg.Wait()

	stats := c.Stats(0)
	expected := int64(workers * recordsPerWorker)
	if stats.Total != expected || stats.Chunks != expected {
		t.Errorf("expected total and chunks %d, got %d/%d", expected, stats.Total, stats.Chunks)
	}
}
