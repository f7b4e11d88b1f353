package output_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/torosent/streamload/internal/metrics"
	"github.com/torosent/streamload/internal/output"
	"github.com/torosent/streamload/internal/runner"
)

func TestGenerateHTMLReport(t *testing.T) {
	errs := map[string]int64{"UNAVAILABLE": 4}
	stats := metrics.Stats{
		Total:        20,
		Successes:    16,
		Failures:     4,
		Chunks:       1000,
		Duration:     3 * time.Second,
		P50Latency:   45 * time.Millisecond,
		ChunksPerSec: 333.33,
		Errors:       errs,
		ErrorBuckets: metrics.FlattenErrorBuckets(errs),
	}
	clients := []runner.ClientSummary{{ClientID: "client_7", Streams: 3, Chunks: 250}}
	meta := output.ReportMetadata{Targets: []string{"video-1:50051"}, Clients: 10, StreamsPerClient: 2}

	var buf bytes.Buffer
	if err := output.GenerateHTMLReport(&buf, stats, clients, meta); err != nil {
		t.Fatalf("GenerateHTMLReport() error = %v", err)
	}

	html := buf.String()
	for _, want := range []string{
		"<!DOCTYPE html>",
		"Target: video-1:50051",
		"10 x 2 streams",
		"80.0%",
		"333.33",
		"UNAVAILABLE",
		"client_7",
		"45ms",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("HTML report missing %q", want)
		}
	}
}

func TestGenerateHTMLReportEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := output.GenerateHTMLReport(&buf, metrics.Stats{}, nil, output.ReportMetadata{}); err != nil {
		t.Fatalf("GenerateHTMLReport() error = %v", err)
	}
	html := buf.String()
	if strings.Contains(html, "<h2>Errors</h2>") || strings.Contains(html, "<h2>Clients</h2>") {
		t.Error("empty report should omit error and client sections")
	}
	if !strings.Contains(html, "0.0%") {
		t.Error("expected zero percentages for an empty run")
	}
}
