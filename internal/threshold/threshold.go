// Package threshold evaluates pass/fail assertions against a finished load
// test.
package threshold

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/torosent/streamload/internal/metrics"
)

const (
	MetricStreamDuration = "stream_duration"
	MetricStreamFailed   = "stream_failed"
	MetricStreams        = "streams"
	MetricChunks         = "chunks"
)

var thresholdPattern = regexp.MustCompile(`^([a-z_]+):([a-z0-9]+)\s*([<>=!]+)\s*([0-9.][0-9a-zµ.]*)$`)

// Threshold represents a performance assertion that can pass or fail.
type Threshold struct {
	Metric    string  // e.g. "stream_duration", "stream_failed"
	Aggregate string  // e.g. "p99", "avg", "max", "rate", "count"
	Operator  string  // "<", "<=", ">", ">=" or "=="
	Value     float64 // The threshold value to compare against; milliseconds for stream_duration
	Raw       string  // Original threshold string for display
}

// Result represents the outcome of evaluating a threshold.
type Result struct {
	Threshold Threshold `json:"-" yaml:"-"`
	Raw       string    `json:"threshold" yaml:"threshold"`
	Actual    float64   `json:"actual" yaml:"actual"`
	Pass      bool      `json:"pass" yaml:"pass"`
	Message   string    `json:"message" yaml:"message"`
}

// Evaluator evaluates thresholds against collected metrics.
type Evaluator struct {
	thresholds []Threshold
}

// NewEvaluator creates a new threshold evaluator.
func NewEvaluator(thresholds []Threshold) *Evaluator {
	return &Evaluator{
		thresholds: thresholds,
	}
}

// Evaluate checks all thresholds against the provided stats.
func (e *Evaluator) Evaluate(stats metrics.Stats) []Result {
	if len(e.thresholds) == 0 {
		return nil
	}

	results := make([]Result, 0, len(e.thresholds))
	for _, t := range e.thresholds {
		results = append(results, e.evaluateOne(t, stats))
	}
	return results
}

// Failed counts the results that did not pass.
func Failed(results []Result) int {
	n := 0
	for _, r := range results {
		if !r.Pass {
			n++
		}
	}
	return n
}

func (e *Evaluator) evaluateOne(t Threshold, stats metrics.Stats) Result {
	actual, err := extractMetricValue(t, stats)
	if err != nil {
		return Result{
			Threshold: t,
			Raw:       t.Raw,
			Message:   fmt.Sprintf("error: %v", err),
		}
	}

	pass := compareValues(actual, t.Operator, t.Value)
	status := "PASS"
	if !pass {
		status = "FAIL"
	}

	return Result{
		Threshold: t,
		Raw:       t.Raw,
		Actual:    actual,
		Pass:      pass,
		Message:   fmt.Sprintf("%s %s: %.2f %s %.2f", status, t.Raw, actual, t.Operator, t.Value),
	}
}

// Parse parses a threshold string into a Threshold struct.
// Supported formats:
//   - "stream_duration:p99 < 90000"  (stream latency percentile in ms)
//   - "stream_duration:p95 < 70s"    (duration values are converted to ms)
//   - "stream_duration:avg < 60000"  (mean stream latency in ms)
//   - "stream_failed:rate < 0.5"     (failed streams as a fraction)
//   - "stream_failed:count < 10"     (failed stream count)
//   - "streams:count >= 300"         (streams attempted)
//   - "chunks:rate > 1000"           (chunks received per second)
func Parse(s string) (Threshold, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Threshold{}, fmt.Errorf("empty threshold string")
	}

	matches := thresholdPattern.FindStringSubmatch(s)
	if matches == nil {
		return Threshold{}, fmt.Errorf("invalid threshold format: %q (expected format: metric:aggregate operator value, e.g., 'stream_failed:rate < 0.5')", s)
	}

	metric, aggregate, operator, valueStr := matches[1], matches[2], matches[3], matches[4]

	aggregates, ok := supported[metric]
	if !ok {
		return Threshold{}, fmt.Errorf("unsupported metric: %q (supported: %s, %s, %s, %s)",
			metric, MetricStreamDuration, MetricStreamFailed, MetricStreams, MetricChunks)
	}
	if !contains(aggregates, aggregate) {
		return Threshold{}, fmt.Errorf("unsupported aggregate %q for %s (supported: %s)", aggregate, metric, strings.Join(aggregates, ", "))
	}
	if !contains(operators, operator) {
		return Threshold{}, fmt.Errorf("unsupported operator: %q (supported: %s)", operator, strings.Join(operators, ", "))
	}

	value, err := parseValue(metric, valueStr)
	if err != nil {
		return Threshold{}, err
	}

	return Threshold{
		Metric:    metric,
		Aggregate: aggregate,
		Operator:  operator,
		Value:     value,
		Raw:       s,
	}, nil
}

// ParseMultiple parses multiple threshold strings.
func ParseMultiple(thresholds []string) ([]Threshold, error) {
	if len(thresholds) == 0 {
		return nil, nil
	}

	result := make([]Threshold, 0, len(thresholds))
	var errs []string

	for i, s := range thresholds {
		t, err := Parse(s)
		if err != nil {
			errs = append(errs, fmt.Sprintf("threshold[%d]: %v", i, err))
			continue
		}
		result = append(result, t)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("threshold parsing errors: %s", strings.Join(errs, "; "))
	}

	return result, nil
}

var (
	supported = map[string][]string{
		MetricStreamDuration: {"p50", "p90", "p95", "p99", "avg", "min", "max"},
		MetricStreamFailed:   {"rate", "count"},
		MetricStreams:        {"rate", "count"},
		MetricChunks:         {"rate", "count"},
	}
	operators = []string{"<", "<=", ">", ">=", "=="}
)

// parseValue reads a plain number, or a Go duration such as "70s" for
// stream_duration, returned in milliseconds.
func parseValue(metric, raw string) (float64, error) {
	if v, err := strconv.ParseFloat(raw, 64); err == nil {
		return v, nil
	}
	if metric != MetricStreamDuration {
		return 0, fmt.Errorf("invalid threshold value %q: %s takes a plain number", raw, metric)
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid threshold value %q: %v", raw, err)
	}
	return float64(d) / float64(time.Millisecond), nil
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

func extractMetricValue(t Threshold, stats metrics.Stats) (float64, error) {
	switch t.Metric {
	case MetricStreamDuration:
		return extractLatencyMetric(t.Aggregate, stats)
	case MetricStreamFailed:
		return extractFailureMetric(t.Aggregate, stats)
	case MetricStreams:
		return extractCountMetric(t.Aggregate, float64(stats.Total), stats.StreamsPerSec)
	case MetricChunks:
		return extractCountMetric(t.Aggregate, float64(stats.Chunks), stats.ChunksPerSec)
	default:
		return 0, fmt.Errorf("unknown metric: %s", t.Metric)
	}
}

func extractLatencyMetric(aggregate string, stats metrics.Stats) (float64, error) {
	switch aggregate {
	case "p50":
		return stats.P50LatencyMs, nil
	case "p90":
		return stats.P90LatencyMs, nil
	case "p95":
		return stats.P95LatencyMs, nil
	case "p99":
		return stats.P99LatencyMs, nil
	case "avg":
		return stats.MeanLatencyMs, nil
	case "min":
		return stats.MinLatencyMs, nil
	case "max":
		return stats.MaxLatencyMs, nil
	default:
		return 0, fmt.Errorf("unsupported aggregate %q for %s", aggregate, MetricStreamDuration)
	}
}

func extractFailureMetric(aggregate string, stats metrics.Stats) (float64, error) {
	switch aggregate {
	case "count":
		return float64(stats.Failures), nil
	case "rate":
		if stats.Total == 0 {
			return 0, nil
		}
		return float64(stats.Failures) / float64(stats.Total), nil
	default:
		return 0, fmt.Errorf("unsupported aggregate %q for %s (use 'count' or 'rate')", aggregate, MetricStreamFailed)
	}
}

func extractCountMetric(aggregate string, count, perSec float64) (float64, error) {
	switch aggregate {
	case "count":
		return count, nil
	case "rate":
		return perSec, nil
	default:
		return 0, fmt.Errorf("unsupported aggregate %q (use 'count' or 'rate')", aggregate)
	}
}

func compareValues(actual float64, operator string, expected float64) bool {
	const epsilon = 1e-9

	switch operator {
	case "<":
		return actual < expected
	case "<=":
		return actual <= expected || math.Abs(actual-expected) < epsilon
	case ">":
		return actual > expected
	case ">=":
		return actual >= expected || math.Abs(actual-expected) < epsilon
	case "==":
		return math.Abs(actual-expected) < epsilon
	default:
		return false
	}
}
