package output

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/torosent/streamload/internal/metrics"
	"github.com/torosent/streamload/internal/runner"
)

// HTMLReportData contains all data needed for the HTML report template.
type HTMLReportData struct {
	GeneratedAt string
	Stats       metrics.Stats
	Clients     []runner.ClientSummary
	Metadata    ReportMetadata
}

// ReportMetadata contains configuration information about the test run.
type ReportMetadata struct {
	Targets          []string
	Clients          int
	StreamsPerClient int
}

// GenerateHTMLReport generates a standalone HTML report.
func GenerateHTMLReport(w io.Writer, stats metrics.Stats, clients []runner.ClientSummary, metadata ReportMetadata) error {
	data := HTMLReportData{
		GeneratedAt: time.Now().Format(time.RFC3339),
		Stats:       stats,
		Clients:     clients,
		Metadata:    metadata,
	}

	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"formatDuration": func(d time.Duration) string {
			return d.Round(time.Millisecond).String()
		},
		"formatFloat": func(f float64) string {
			return fmt.Sprintf("%.2f", f)
		},
		"formatPercent": func(part, total int64) string {
			if total == 0 {
				return "0.0"
			}
			return fmt.Sprintf("%.1f", (float64(part)/float64(total))*100)
		},
	}).Parse(htmlTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	if err := tmpl.Execute(w, data); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}

	return nil
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Streaming Load Test Report</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif;
            background: #f5f7fa;
            color: #2c3e50;
            line-height: 1.6;
            padding: 20px;
        }
        .container {
            max-width: 1400px;
            margin: 0 auto;
            background: white;
            border-radius: 8px;
            box-shadow: 0 2px 8px rgba(0,0,0,0.1);
            overflow: hidden;
        }
        header {
            background: linear-gradient(135deg, #667eea 0%, #764ba2 100%);
            color: white;
            padding: 30px 40px;
        }
        header h1 { font-size: 2rem; margin-bottom: 10px; }
        header .meta { opacity: 0.9; font-size: 0.9rem; }
        .content { padding: 40px; }
        .grid {
            display: grid;
            grid-template-columns: repeat(auto-fit, minmax(250px, 1fr));
            gap: 20px;
            margin-bottom: 40px;
        }
        .card {
            background: #f8f9fa;
            border-radius: 8px;
            padding: 20px;
            border-left: 4px solid #667eea;
        }
        .card h3 {
            font-size: 0.9rem;
            color: #6c757d;
            text-transform: uppercase;
            letter-spacing: 0.5px;
            margin-bottom: 10px;
        }
        .card .value { font-size: 2rem; font-weight: bold; }
        .card .subvalue { font-size: 0.85rem; color: #6c757d; margin-top: 5px; }
        .card.success { border-left-color: #10b981; }
        .card.error { border-left-color: #ef4444; }
        .section { margin-bottom: 40px; }
        .section h2 {
            font-size: 1.5rem;
            margin-bottom: 20px;
            padding-bottom: 10px;
            border-bottom: 2px solid #e5e7eb;
        }
        table { width: 100%; border-collapse: collapse; }
        th, td { text-align: left; padding: 12px; border-bottom: 1px solid #e5e7eb; }
        th {
            background: #f8f9fa;
            font-weight: 600;
            color: #4b5563;
            font-size: 0.9rem;
            text-transform: uppercase;
        }
        .latency-grid {
            display: grid;
            grid-template-columns: repeat(auto-fit, minmax(150px, 1fr));
            gap: 15px;
        }
        .latency-item { background: #f8f9fa; padding: 15px; border-radius: 6px; text-align: center; }
        .latency-item .label { font-size: 0.85rem; color: #6c757d; }
        .latency-item .value { font-size: 1.3rem; font-weight: bold; }
    </style>
</head>
<body>
    <div class="container">
        <header>
            <h1>Streaming Load Test Report</h1>
            {{range .Metadata.Targets}}<div class="meta">Target: {{.}}</div>{{end}}
            <div class="meta">Generated: {{.GeneratedAt}} | Duration: {{formatDuration .Stats.Duration}} | Clients: {{.Metadata.Clients}} x {{.Metadata.StreamsPerClient}} streams</div>
        </header>

        <div class="content">
            <div class="grid">
                <div class="card">
                    <h3>Total Streams</h3>
                    <div class="value">{{.Stats.Total}}</div>
                </div>
                <div class="card success">
                    <h3>Successful</h3>
                    <div class="value">{{.Stats.Successes}}</div>
                    <div class="subvalue">{{formatPercent .Stats.Successes .Stats.Total}}%</div>
                </div>
                <div class="card error">
                    <h3>Failed</h3>
                    <div class="value">{{.Stats.Failures}}</div>
                    <div class="subvalue">{{formatPercent .Stats.Failures .Stats.Total}}%</div>
                </div>
                <div class="card">
                    <h3>Chunks/sec</h3>
                    <div class="value">{{formatFloat .Stats.ChunksPerSec}}</div>
                    <div class="subvalue">{{.Stats.Chunks}} chunks, {{.Stats.Bytes}} bytes</div>
                </div>
            </div>

            <div class="section">
                <h2>Stream Latency</h2>
                <div class="latency-grid">
                    <div class="latency-item"><div class="label">Min</div><div class="value">{{formatDuration .Stats.MinLatency}}</div></div>
                    <div class="latency-item"><div class="label">Max</div><div class="value">{{formatDuration .Stats.MaxLatency}}</div></div>
                    <div class="latency-item"><div class="label">Mean</div><div class="value">{{formatDuration .Stats.MeanLatency}}</div></div>
                    <div class="latency-item"><div class="label">P50</div><div class="value">{{formatDuration .Stats.P50Latency}}</div></div>
                    <div class="latency-item"><div class="label">P90</div><div class="value">{{formatDuration .Stats.P90Latency}}</div></div>
                    <div class="latency-item"><div class="label">P95</div><div class="value">{{formatDuration .Stats.P95Latency}}</div></div>
                    <div class="latency-item"><div class="label">P99</div><div class="value">{{formatDuration .Stats.P99Latency}}</div></div>
                </div>
            </div>

            {{if .Stats.ErrorBuckets}}
            <div class="section">
                <h2>Errors</h2>
                <table>
                    <thead><tr><th>Kind</th><th>Description</th><th>Count</th></tr></thead>
                    <tbody>
                        {{range .Stats.ErrorBuckets}}
                        <tr><td>{{.Kind}}</td><td>{{.Label}}</td><td>{{.Count}}</td></tr>
                        {{end}}
                    </tbody>
                </table>
            </div>
            {{end}}

            {{if .Clients}}
            <div class="section">
                <h2>Clients</h2>
                <table>
                    <thead><tr><th>Client</th><th>Streams</th><th>Failures</th><th>Chunks</th><th>Bytes</th><th>Duration</th></tr></thead>
                    <tbody>
                        {{range .Clients}}
                        <tr><td>{{.ClientID}}</td><td>{{.Streams}}</td><td>{{.Failures}}</td><td>{{.Chunks}}</td><td>{{.Bytes}}</td><td>{{formatDuration .Duration}}</td></tr>
                        {{end}}
                    </tbody>
                </table>
            </div>
            {{end}}
        </div>
    </div>
</body>
</html>
`
