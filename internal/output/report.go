// Package output renders the load driver's end-of-run report.
package output

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/torosent/streamload/internal/metrics"
	"github.com/torosent/streamload/internal/runner"
)

// Report is the machine-readable end-of-run summary.
type Report struct {
	Stats   metrics.Stats          `json:"stats" yaml:"stats"`
	Clients []runner.ClientSummary `json:"clients" yaml:"clients"`
}

// PrintReport outputs a human-readable summary report.
func PrintReport(w io.Writer, stats metrics.Stats, clients []runner.ClientSummary) {
	fmt.Fprintln(w, "\n--- Load Test Results ---")
	fmt.Fprintf(w, "Total Streams:     %d\n", stats.Total)
	fmt.Fprintf(w, "Successful:        %d\n", stats.Successes)
	fmt.Fprintf(w, "Failed:            %d\n", stats.Failures)
	fmt.Fprintf(w, "Chunks Received:   %d\n", stats.Chunks)
	fmt.Fprintf(w, "Bytes Received:    %d\n", stats.Bytes)
	fmt.Fprintf(w, "Duration:          %s\n", stats.Duration)
	fmt.Fprintf(w, "Streams/sec:       %.2f\n", stats.StreamsPerSec)
	fmt.Fprintf(w, "Chunks/sec:        %.2f\n", stats.ChunksPerSec)
	fmt.Fprintln(w, "\nStream Latency:")
	fmt.Fprintf(w, "  Min:             %s\n", stats.MinLatency)
	fmt.Fprintf(w, "  Max:             %s\n", stats.MaxLatency)
	fmt.Fprintf(w, "  Mean:            %s\n", stats.MeanLatency)
	fmt.Fprintf(w, "  P50:             %s\n", stats.P50Latency)
	fmt.Fprintf(w, "  P90:             %s\n", stats.P90Latency)
	fmt.Fprintf(w, "  P95:             %s\n", stats.P95Latency)
	fmt.Fprintf(w, "  P99:             %s\n", stats.P99Latency)
	if len(stats.ErrorBuckets) > 0 {
		fmt.Fprintln(w, "\nErrors:")
		for _, row := range stats.ErrorBuckets {
			fmt.Fprintf(w, "  %s (%s): %d\n", row.Label, row.Kind, row.Count)
		}
	}
	if len(clients) > 0 {
		fmt.Fprintln(w, "\nClients:")
		for _, c := range clients {
			fmt.Fprintf(w, "  Client %s: Received %d chunks in %.2fs", c.ClientID, c.Chunks, c.Duration.Seconds())
			if c.Failures > 0 {
				fmt.Fprintf(w, " (%d of %d streams failed)", c.Failures, c.Streams)
			}
			fmt.Fprintln(w)
		}
	}
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, stats metrics.Stats, clients []runner.ClientSummary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(Report{Stats: stats, Clients: clients})
}

// PrintYAMLReport outputs the same document as PrintJSONReport in YAML.
func PrintYAMLReport(w io.Writer, stats metrics.Stats, clients []runner.ClientSummary) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(Report{Stats: stats, Clients: clients}); err != nil {
		return err
	}
	return enc.Close()
}
