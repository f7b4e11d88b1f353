package config

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/torosent/streamload/internal/threshold"
)

const (
	DefaultNodeID           = "node-1"
	DefaultGRPCPort         = 50051
	DefaultServerMetrics    = 8000
	DefaultClientMetrics    = 8001
	DefaultTarget           = "localhost:50051"
	DefaultClients          = 100
	DefaultStreamsPerClient = 3
	DefaultMaxSessions      = 100
	DefaultFailureRate      = 0.01
	DefaultLogLevel         = "info"
)

// TracingConfig configures the OpenTelemetry exporter. An empty Endpoint
// leaves tracing disabled unless OTEL_EXPORTER_OTLP_ENDPOINT is set.
type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"` // "grpc" or "http"
	ServiceName string  `mapstructure:"service_name"`
	InstanceID  string  `mapstructure:"-"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Insecure    bool    `mapstructure:"insecure"`
	Propagate   *bool   `mapstructure:"propagate"`
}

// Enabled reports whether an exporter endpoint is configured.
func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != "" || os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != ""
}

// ShouldPropagate defaults to true when tracing is enabled.
func (t TracingConfig) ShouldPropagate() bool {
	if t.Propagate != nil {
		return *t.Propagate
	}
	return t.Enabled()
}

// ServerConfig holds the settings of one server replica.
type ServerConfig struct {
	NodeID      string        `mapstructure:"node_id"`
	GRPCPort    int           `mapstructure:"grpc_port"`
	MetricsPort int           `mapstructure:"metrics_port"`
	MaxSessions int           `mapstructure:"max_sessions"`
	FailureRate float64       `mapstructure:"failure_rate"`
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
	LogLevel    string        `mapstructure:"log_level"`
	Development bool          `mapstructure:"development"`
	ConfigFile  string        `mapstructure:"-"`
	Tracing     TracingConfig `mapstructure:"tracing"`
}

// GRPCAddr is the listen address for the streaming service.
func (c ServerConfig) GRPCAddr() string {
	return fmt.Sprintf(":%d", c.GRPCPort)
}

// MetricsAddr is the listen address for /metrics, or "" when disabled.
func (c ServerConfig) MetricsAddr() string {
	if c.MetricsPort == 0 {
		return ""
	}
	return fmt.Sprintf(":%d", c.MetricsPort)
}

// ClientConfig holds the settings of the load driver.
type ClientConfig struct {
	Targets          []string      `mapstructure:"server_addresses"`
	Clients          int           `mapstructure:"num_clients"`
	StreamsPerClient int           `mapstructure:"streams_per_client"`
	MetricsPort      int           `mapstructure:"metrics_port"`
	Stagger          time.Duration `mapstructure:"stagger"`
	ArrivalModel     string        `mapstructure:"arrival_model"`
	ThinkMin         time.Duration `mapstructure:"think_min"`
	ThinkMax         time.Duration `mapstructure:"think_max"`
	ProcessMin       time.Duration `mapstructure:"process_min"`
	ProcessMax       time.Duration `mapstructure:"process_max"`
	Seed             int64         `mapstructure:"seed"`
	JSONOutput       bool          `mapstructure:"json_output"`
	YAMLOutput       bool          `mapstructure:"yaml_output"`
	HTMLOutput       string        `mapstructure:"html_output"`
	Progress         bool          `mapstructure:"progress"`
	Thresholds       []string      `mapstructure:"thresholds"`
	LogLevel         string        `mapstructure:"log_level"`
	Development      bool          `mapstructure:"development"`
	ConfigFile       string        `mapstructure:"-"`
	Tracing          TracingConfig `mapstructure:"tracing"`
}

// MetricsAddr is the listen address for /metrics, or "" when disabled.
func (c ClientConfig) MetricsAddr() string {
	if c.MetricsPort == 0 {
		return ""
	}
	return fmt.Sprintf(":%d", c.MetricsPort)
}

func defaultServerConfig() *ServerConfig {
	return &ServerConfig{
		NodeID:      DefaultNodeID,
		GRPCPort:    DefaultGRPCPort,
		MetricsPort: DefaultServerMetrics,
		MaxSessions: DefaultMaxSessions,
		FailureRate: DefaultFailureRate,
		MinDelay:    50 * time.Millisecond,
		MaxDelay:    100 * time.Millisecond,
		LogLevel:    DefaultLogLevel,
		Tracing:     TracingConfig{SampleRate: 1.0},
	}
}

func defaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Targets:          []string{DefaultTarget},
		Clients:          DefaultClients,
		StreamsPerClient: DefaultStreamsPerClient,
		MetricsPort:      DefaultClientMetrics,
		Stagger:          100 * time.Millisecond,
		ArrivalModel:     "uniform",
		ThinkMin:         time.Second,
		ThinkMax:         5 * time.Second,
		ProcessMin:       time.Millisecond,
		ProcessMax:       5 * time.Millisecond,
		LogLevel:         DefaultLogLevel,
		Tracing:          TracingConfig{SampleRate: 1.0},
	}
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c ServerConfig) Validate() error {
	var issues []string

	if strings.TrimSpace(c.NodeID) == "" {
		issues = append(issues, "node_id is required")
	}
	issues = append(issues, validatePort("grpc_port", c.GRPCPort, false)...)
	issues = append(issues, validatePort("metrics_port", c.MetricsPort, true)...)
	if c.GRPCPort != 0 && c.GRPCPort == c.MetricsPort {
		issues = append(issues, "grpc_port and metrics_port must differ")
	}
	if c.MaxSessions < 1 {
		issues = append(issues, "max_sessions must be >= 1")
	}
	if c.FailureRate < 0 || c.FailureRate > 1 {
		issues = append(issues, "failure_rate must be between 0 and 1")
	}
	issues = append(issues, validateRange("delay", c.MinDelay, c.MaxDelay)...)
	issues = append(issues, validateLogLevel(c.LogLevel)...)
	issues = append(issues, validateTracing(c.Tracing)...)

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

func (c ClientConfig) Validate() error {
	var issues []string

	if len(c.Targets) == 0 {
		issues = append(issues, "at least one server address is required")
	}
	for idx, target := range c.Targets {
		if _, _, err := net.SplitHostPort(target); err != nil {
			issues = append(issues, fmt.Sprintf("server_addresses[%d]: %q is not host:port", idx, target))
		}
	}

	if c.Clients > 500 {
		fmt.Fprintf(os.Stderr, "WARNING: High client count configured (%d). Ensure you have authorization to load the target servers.\n", c.Clients)
	}
	if c.Clients < 1 {
		issues = append(issues, "num_clients must be >= 1")
	}
	if c.StreamsPerClient < 1 {
		issues = append(issues, "streams_per_client must be >= 1")
	}
	issues = append(issues, validatePort("metrics_port", c.MetricsPort, true)...)
	if c.Stagger < 0 {
		issues = append(issues, "stagger must be >= 0")
	}
	switch c.ArrivalModel {
	case "", "uniform", "poisson":
	default:
		issues = append(issues, "arrival_model must be 'uniform' or 'poisson'")
	}
	issues = append(issues, validateRange("think", c.ThinkMin, c.ThinkMax)...)
	issues = append(issues, validateRange("process", c.ProcessMin, c.ProcessMax)...)
	if _, err := threshold.ParseMultiple(c.Thresholds); err != nil {
		issues = append(issues, err.Error())
	}
	if c.JSONOutput && c.YAMLOutput {
		issues = append(issues, "json-output and yaml-output are mutually exclusive")
	}
	issues = append(issues, validateLogLevel(c.LogLevel)...)
	issues = append(issues, validateTracing(c.Tracing)...)

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

func validatePort(name string, port int, allowZero bool) []string {
	if allowZero && port == 0 {
		return nil
	}
	if port < 1 || port > 65535 {
		return []string{fmt.Sprintf("%s must be between 1 and 65535, got %d", name, port)}
	}
	return nil
}

func validateRange(name string, min, max time.Duration) []string {
	var issues []string
	if min < 0 || max < 0 {
		issues = append(issues, fmt.Sprintf("%s_min and %s_max must be >= 0", name, name))
	}
	if min > max {
		issues = append(issues, fmt.Sprintf("%s_min (%s) must not exceed %s_max (%s)", name, min, name, max))
	}
	return issues
}

func validateLogLevel(level string) []string {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "debug", "info", "warn", "error":
		return nil
	default:
		return []string{fmt.Sprintf("log_level %q is not supported", level)}
	}
}

func validateTracing(t TracingConfig) []string {
	var issues []string
	switch strings.ToLower(t.Protocol) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing: protocol must be 'grpc' or 'http', got %q", t.Protocol))
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		issues = append(issues, "tracing: sample_rate must be between 0.0 and 1.0")
	}
	return issues
}
