package output

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/torosent/streamload/internal/metrics"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func TestProgressLineShowsTopError(t *testing.T) {
	collector := metrics.NewCollector()
	collector.Start()
	collector.RecordStream(metrics.StreamOutcome{Latency: 50 * time.Millisecond, Chunks: 10})
	collector.RecordStream(metrics.StreamOutcome{Latency: 20 * time.Millisecond, Chunks: 3, ErrorKind: "UNAVAILABLE"})

	line := progressLine(collector.Stats(time.Second))
	if !strings.Contains(line, "Streams: 2") || !strings.Contains(line, "Chunks: 13") {
		t.Errorf("unexpected line %q", line)
	}
	if !strings.Contains(line, "Top Error: UNAVAILABLE (1)") {
		t.Errorf("expected top error in %q", line)
	}
}

func TestProgressReporterStopWithoutStart(t *testing.T) {
	reporter := NewProgressReporter(metrics.NewCollector(), 100*time.Millisecond, nil)
	if reporter == nil {
		t.Fatal("Expected non-nil reporter")
	}
	reporter.Stop()
}

func TestProgressReporterFormatting(t *testing.T) {
	collector := metrics.NewCollector()
	collector.Start()
	collector.RecordStream(metrics.StreamOutcome{Latency: 50 * time.Millisecond, Chunks: 4})

	var buf syncBuffer
	reporter := NewProgressReporter(collector, 20*time.Millisecond, &buf)
	reporter.Start()
	reporter.Start()

	time.Sleep(100 * time.Millisecond)
	reporter.Stop()

	if !strings.Contains(buf.String(), "Streams:") {
		t.Error("Expected 'Streams:' in progress output")
	}
}
