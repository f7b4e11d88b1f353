package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RegisterServerFlags registers the server replica flags on a cobra command.
func RegisterServerFlags(cmd *cobra.Command) {
	configureServerFlags(cmd.Flags())
}

// RegisterClientFlags registers the load driver flags on a cobra command.
func RegisterClientFlags(cmd *cobra.Command) {
	configureClientFlags(cmd.Flags())
}

func newFlagCommand(use string, configure func(*pflag.FlagSet)) *cobra.Command {
	cmd := &cobra.Command{
		Use:           use,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configure(cmd.Flags())
	return cmd
}

func configureServerFlags(flags *pflag.FlagSet) {
	flags.String("node-id", DefaultNodeID, "Replica identifier used as the node_id label")
	flags.Int("grpc-port", DefaultGRPCPort, "Port for the VideoStreamingService listener")
	flags.Int("metrics-port", DefaultServerMetrics, "Port for the Prometheus /metrics endpoint (0 disables)")
	flags.Int("max-sessions", DefaultMaxSessions, "Maximum number of concurrently running sessions")
	flags.Float64("failure-rate", DefaultFailureRate, "Per-chunk probability of an injected delivery failure")
	flags.Duration("min-delay", 50*time.Millisecond, "Minimum pacing delay between chunks")
	flags.Duration("max-delay", 100*time.Millisecond, "Maximum pacing delay between chunks")
	configureCommonFlags(flags)
}

func configureClientFlags(flags *pflag.FlagSet) {
	flags.StringSlice("server-addresses", []string{DefaultTarget}, "Comma-separated server replica addresses (host:port)")
	flags.IntP("clients", "c", DefaultClients, "Number of concurrent simulated clients")
	flags.IntP("streams-per-client", "n", DefaultStreamsPerClient, "Streams each client opens in sequence")
	flags.Int("metrics-port", DefaultClientMetrics, "Port for the Prometheus /metrics endpoint (0 disables)")
	flags.Duration("stagger", 100*time.Millisecond, "Delay between successive client launches")
	flags.String("arrival-model", "uniform", "Client launch spacing: 'uniform' or 'poisson'")
	flags.Duration("think-min", time.Second, "Minimum think time between a client's streams")
	flags.Duration("think-max", 5*time.Second, "Maximum think time between a client's streams")
	flags.Duration("process-min", time.Millisecond, "Minimum simulated processing time per chunk")
	flags.Duration("process-max", 5*time.Millisecond, "Maximum simulated processing time per chunk")
	flags.Int64("seed", 0, "Random seed for target/quality selection (0 seeds from the clock)")
	flags.Bool("json-output", false, "Emit the final report as JSON")
	flags.Bool("yaml-output", false, "Emit the final report as YAML")
	flags.String("html-output", "", "Also write an HTML report to this path")
	flags.Bool("progress", false, "Show live progress on stderr while the test runs")
	flags.StringArray("threshold", nil, "Pass/fail assertion, e.g. 'stream_failed:rate < 0.5' (repeatable)")
	configureCommonFlags(flags)
}

func configureCommonFlags(flags *pflag.FlagSet) {
	flags.String("log-level", DefaultLogLevel, "Log level: debug, info, warn or error")
	flags.Bool("development", false, "Use the human-readable development logger")
	flags.String("config", "", "Path to configuration file (JSON or YAML)")

	flags.String("tracing-endpoint", "", "OTLP collector endpoint (enables tracing)")
	flags.String("tracing-protocol", "grpc", "OTLP protocol: 'grpc' or 'http'")
	flags.String("tracing-service-name", "", "Service name reported to the collector")
	flags.Float64("tracing-sample-rate", 1.0, "Trace sampling ratio between 0.0 and 1.0")
	flags.Bool("tracing-insecure", false, "Disable TLS for the OTLP exporter")
	flags.Bool("tracing-propagate", true, "Propagate W3C trace context to the servers")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\nFlags:\n", cmd.UseLine())
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

func applyServerFlagOverrides(cfg *ServerConfig, fs *pflag.FlagSet) error {
	if fs.Changed("node-id") {
		val, err := fs.GetString("node-id")
		if err != nil {
			return err
		}
		cfg.NodeID = strings.TrimSpace(val)
	}
	if fs.Changed("grpc-port") {
		val, err := fs.GetInt("grpc-port")
		if err != nil {
			return err
		}
		cfg.GRPCPort = val
	}
	if fs.Changed("metrics-port") {
		val, err := fs.GetInt("metrics-port")
		if err != nil {
			return err
		}
		cfg.MetricsPort = val
	}
	if fs.Changed("max-sessions") {
		val, err := fs.GetInt("max-sessions")
		if err != nil {
			return err
		}
		cfg.MaxSessions = val
	}
	if fs.Changed("failure-rate") {
		val, err := fs.GetFloat64("failure-rate")
		if err != nil {
			return err
		}
		cfg.FailureRate = val
	}
	if fs.Changed("min-delay") {
		val, err := fs.GetDuration("min-delay")
		if err != nil {
			return err
		}
		cfg.MinDelay = val
	}
	if fs.Changed("max-delay") {
		val, err := fs.GetDuration("max-delay")
		if err != nil {
			return err
		}
		cfg.MaxDelay = val
	}
	return applyCommonFlagOverrides(&cfg.LogLevel, &cfg.Development, &cfg.Tracing, fs)
}

func applyClientFlagOverrides(cfg *ClientConfig, fs *pflag.FlagSet) error {
	if fs.Changed("server-addresses") {
		val, err := fs.GetStringSlice("server-addresses")
		if err != nil {
			return err
		}
		cfg.Targets = trimEntries(val)
	}
	if fs.Changed("clients") {
		val, err := fs.GetInt("clients")
		if err != nil {
			return err
		}
		cfg.Clients = val
	}
	if fs.Changed("streams-per-client") {
		val, err := fs.GetInt("streams-per-client")
		if err != nil {
			return err
		}
		cfg.StreamsPerClient = val
	}
	if fs.Changed("metrics-port") {
		val, err := fs.GetInt("metrics-port")
		if err != nil {
			return err
		}
		cfg.MetricsPort = val
	}
	durations := []struct {
		flag string
		dst  *time.Duration
	}{
		{"stagger", &cfg.Stagger},
		{"think-min", &cfg.ThinkMin},
		{"think-max", &cfg.ThinkMax},
		{"process-min", &cfg.ProcessMin},
		{"process-max", &cfg.ProcessMax},
	}
	for _, d := range durations {
		if !fs.Changed(d.flag) {
			continue
		}
		val, err := fs.GetDuration(d.flag)
		if err != nil {
			return err
		}
		*d.dst = val
	}
	if fs.Changed("arrival-model") {
		val, err := fs.GetString("arrival-model")
		if err != nil {
			return err
		}
		cfg.ArrivalModel = strings.ToLower(strings.TrimSpace(val))
	}
	if fs.Changed("seed") {
		val, err := fs.GetInt64("seed")
		if err != nil {
			return err
		}
		cfg.Seed = val
	}
	if fs.Changed("json-output") {
		val, err := fs.GetBool("json-output")
		if err != nil {
			return err
		}
		cfg.JSONOutput = val
	}
	if fs.Changed("yaml-output") {
		val, err := fs.GetBool("yaml-output")
		if err != nil {
			return err
		}
		cfg.YAMLOutput = val
	}
	if fs.Changed("html-output") {
		val, err := fs.GetString("html-output")
		if err != nil {
			return err
		}
		cfg.HTMLOutput = strings.TrimSpace(val)
	}
	if fs.Changed("threshold") {
		val, err := fs.GetStringArray("threshold")
		if err != nil {
			return err
		}
		cfg.Thresholds = trimEntries(val)
	}
	if fs.Changed("progress") {
		val, err := fs.GetBool("progress")
		if err != nil {
			return err
		}
		cfg.Progress = val
	}
	return applyCommonFlagOverrides(&cfg.LogLevel, &cfg.Development, &cfg.Tracing, fs)
}

func applyCommonFlagOverrides(level *string, dev *bool, tracing *TracingConfig, fs *pflag.FlagSet) error {
	if fs.Changed("log-level") {
		val, err := fs.GetString("log-level")
		if err != nil {
			return err
		}
		*level = strings.ToLower(strings.TrimSpace(val))
	}
	if fs.Changed("development") {
		val, err := fs.GetBool("development")
		if err != nil {
			return err
		}
		*dev = val
	}
	if fs.Changed("tracing-endpoint") {
		val, err := fs.GetString("tracing-endpoint")
		if err != nil {
			return err
		}
		tracing.Endpoint = strings.TrimSpace(val)
	}
	if fs.Changed("tracing-protocol") {
		val, err := fs.GetString("tracing-protocol")
		if err != nil {
			return err
		}
		tracing.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if fs.Changed("tracing-service-name") {
		val, err := fs.GetString("tracing-service-name")
		if err != nil {
			return err
		}
		tracing.ServiceName = val
	}
	if fs.Changed("tracing-sample-rate") {
		val, err := fs.GetFloat64("tracing-sample-rate")
		if err != nil {
			return err
		}
		tracing.SampleRate = val
	}
	if fs.Changed("tracing-insecure") {
		val, err := fs.GetBool("tracing-insecure")
		if err != nil {
			return err
		}
		tracing.Insecure = val
	}
	if fs.Changed("tracing-propagate") {
		val, err := fs.GetBool("tracing-propagate")
		if err != nil {
			return err
		}
		tracing.Propagate = &val
	}
	return nil
}
