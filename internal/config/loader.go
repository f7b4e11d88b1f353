package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Loader handles loading configuration from files, environment variables
// and command-line arguments. Flags override the environment, which
// overrides the config file.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

var serverEnv = map[string]string{
	"node_id":              "NODE_ID",
	"grpc_port":            "GRPC_PORT",
	"metrics_port":         "METRICS_PORT",
	"max_sessions":         "MAX_SESSIONS",
	"failure_rate":         "FAILURE_RATE",
	"log_level":            "LOG_LEVEL",
	"tracing.endpoint":     "OTEL_EXPORTER_OTLP_ENDPOINT",
	"tracing.service_name": "OTEL_SERVICE_NAME",
}

var clientEnv = map[string]string{
	"server_addresses":     "SERVER_ADDRESSES",
	"num_clients":          "NUM_CLIENTS",
	"streams_per_client":   "STREAMS_PER_CLIENT",
	"metrics_port":         "METRICS_PORT",
	"log_level":            "LOG_LEVEL",
	"tracing.endpoint":     "OTEL_EXPORTER_OTLP_ENDPOINT",
	"tracing.service_name": "OTEL_SERVICE_NAME",
}

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// LoadServer produces the configuration of one server replica.
func (Loader) LoadServer(args []string) (*ServerConfig, error) {
	cmd := newFlagCommand("videoserver", configureServerFlags)
	configPath, err := parseArgs(cmd, args)
	if err != nil {
		return nil, err
	}
	settings, err := readSettings(configPath, serverEnv)
	if err != nil {
		return nil, err
	}

	cfg := defaultServerConfig()
	cfg.ConfigFile = configPath
	if err := applyServerSettings(cfg, settings); err != nil {
		return nil, err
	}
	if err := applyServerFlagOverrides(cfg, cmd.Flags()); err != nil {
		return nil, err
	}
	cfg.NodeID = strings.TrimSpace(cfg.NodeID)
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.Tracing.InstanceID = cfg.NodeID
	return cfg, nil
}

// LoadClient produces the configuration of the load driver.
func (Loader) LoadClient(args []string) (*ClientConfig, error) {
	cmd := newFlagCommand("loadsim", configureClientFlags)
	configPath, err := parseArgs(cmd, args)
	if err != nil {
		return nil, err
	}
	settings, err := readSettings(configPath, clientEnv)
	if err != nil {
		return nil, err
	}

	cfg := defaultClientConfig()
	cfg.ConfigFile = configPath
	if err := applyClientSettings(cfg, settings); err != nil {
		return nil, err
	}
	if err := applyClientFlagOverrides(cfg, cmd.Flags()); err != nil {
		return nil, err
	}
	cfg.Targets = trimEntries(cfg.Targets)
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	return cfg, nil
}

func parseArgs(cmd *cobra.Command, args []string) (string, error) {
	flagSet := cmd.Flags()
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return "", ErrHelpRequested
		}
		return "", err
	}
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return "", ErrHelpRequested
		}
	}
	return strings.TrimSpace(flagSet.Lookup("config").Value.String()), nil
}

// readSettings merges the config file with the bound environment variables.
func readSettings(configPath string, env map[string]string) (map[string]interface{}, error) {
	v := viper.New()
	for key, name := range env {
		if err := v.BindEnv(key, name); err != nil {
			return nil, fmt.Errorf("bind %s: %w", name, err)
		}
	}
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}
	return v.AllSettings(), nil
}

func applyServerSettings(cfg *ServerConfig, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	if raw, ok := lookupSetting(settings, "node_id", "nodeid", "node-id"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("node_id: %w", err)
		}
		cfg.NodeID = val
	}

	if raw, ok := lookupSetting(settings, "grpc_port", "grpcport", "grpc-port"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("grpc_port: %w", err)
		}
		cfg.GRPCPort = val
	}

	if raw, ok := lookupSetting(settings, "metrics_port", "metricsport", "metrics-port"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("metrics_port: %w", err)
		}
		cfg.MetricsPort = val
	}

	if raw, ok := lookupSetting(settings, "max_sessions", "maxsessions", "max-sessions"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("max_sessions: %w", err)
		}
		cfg.MaxSessions = val
	}

	if raw, ok := lookupSetting(settings, "failure_rate", "failurerate", "failure-rate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return fmt.Errorf("failure_rate: %w", err)
		}
		cfg.FailureRate = val
	}

	if raw, ok := lookupSetting(settings, "min_delay", "mindelay", "min-delay"); ok {
		val, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("min_delay: %w", err)
		}
		cfg.MinDelay = val
	}

	if raw, ok := lookupSetting(settings, "max_delay", "maxdelay", "max-delay"); ok {
		val, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("max_delay: %w", err)
		}
		cfg.MaxDelay = val
	}

	return applyCommonSettings(&cfg.LogLevel, &cfg.Development, &cfg.Tracing, settings)
}

func applyClientSettings(cfg *ClientConfig, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	if raw, ok := lookupSetting(settings, "server_addresses", "serveraddresses", "server-addresses", "targets"); ok {
		val, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("server_addresses: %w", err)
		}
		cfg.Targets = trimEntries(val)
	}

	if raw, ok := lookupSetting(settings, "num_clients", "numclients", "clients"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("num_clients: %w", err)
		}
		cfg.Clients = val
	}

	if raw, ok := lookupSetting(settings, "streams_per_client", "streamsperclient", "streams-per-client"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("streams_per_client: %w", err)
		}
		cfg.StreamsPerClient = val
	}

	if raw, ok := lookupSetting(settings, "metrics_port", "metricsport", "metrics-port"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("metrics_port: %w", err)
		}
		cfg.MetricsPort = val
	}

	if raw, ok := lookupSetting(settings, "stagger"); ok {
		val, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("stagger: %w", err)
		}
		cfg.Stagger = val
	}

	if raw, ok := lookupSetting(settings, "arrival_model", "arrivalmodel", "arrival-model"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("arrival_model: %w", err)
		}
		cfg.ArrivalModel = strings.ToLower(strings.TrimSpace(val))
	}

	if raw, ok := lookupSetting(settings, "think_min", "thinkmin", "think-min"); ok {
		val, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("think_min: %w", err)
		}
		cfg.ThinkMin = val
	}

	if raw, ok := lookupSetting(settings, "think_max", "thinkmax", "think-max"); ok {
		val, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("think_max: %w", err)
		}
		cfg.ThinkMax = val
	}

	if raw, ok := lookupSetting(settings, "process_min", "processmin", "process-min"); ok {
		val, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("process_min: %w", err)
		}
		cfg.ProcessMin = val
	}

	if raw, ok := lookupSetting(settings, "process_max", "processmax", "process-max"); ok {
		val, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("process_max: %w", err)
		}
		cfg.ProcessMax = val
	}

	if raw, ok := lookupSetting(settings, "seed"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		cfg.Seed = int64(val)
	}

	if raw, ok := lookupSetting(settings, "json_output", "jsonoutput", "json-output"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("json_output: %w", err)
		}
		cfg.JSONOutput = val
	}

	if raw, ok := lookupSetting(settings, "yaml_output", "yamloutput", "yaml-output"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("yaml_output: %w", err)
		}
		cfg.YAMLOutput = val
	}

	if raw, ok := lookupSetting(settings, "html_output", "htmloutput", "html-output"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("html_output: %w", err)
		}
		cfg.HTMLOutput = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "thresholds"); ok {
		val, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("thresholds: %w", err)
		}
		cfg.Thresholds = trimEntries(val)
	}

	if raw, ok := lookupSetting(settings, "progress"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("progress: %w", err)
		}
		cfg.Progress = val
	}

	return applyCommonSettings(&cfg.LogLevel, &cfg.Development, &cfg.Tracing, settings)
}

func applyCommonSettings(level *string, dev *bool, tracing *TracingConfig, settings map[string]interface{}) error {
	if raw, ok := lookupSetting(settings, "log_level", "loglevel", "log-level"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("log_level: %w", err)
		}
		*level = val
	}

	if raw, ok := lookupSetting(settings, "development"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("development: %w", err)
		}
		*dev = val
	}

	if raw, ok := lookupSetting(settings, "tracing"); ok {
		tc, err := parseTracingConfig(raw, *tracing)
		if err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
		*tracing = tc
	}
	return nil
}

func parseTracingConfig(value interface{}, base TracingConfig) (TracingConfig, error) {
	settings, err := toStringKeyMap(value)
	if err != nil {
		return TracingConfig{}, err
	}
	tc := base

	if raw, ok := lookupSetting(settings, "endpoint"); ok {
		val, err := asString(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("endpoint: %w", err)
		}
		tc.Endpoint = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "protocol"); ok {
		val, err := asString(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("protocol: %w", err)
		}
		tc.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if raw, ok := lookupSetting(settings, "service_name", "servicename", "service-name"); ok {
		val, err := asString(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("service_name: %w", err)
		}
		tc.ServiceName = val
	}
	if raw, ok := lookupSetting(settings, "sample_rate", "samplerate", "sample-rate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("sample_rate: %w", err)
		}
		tc.SampleRate = val
	}
	if raw, ok := lookupSetting(settings, "insecure"); ok {
		val, err := asBool(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("insecure: %w", err)
		}
		tc.Insecure = val
	}
	if raw, ok := lookupSetting(settings, "propagate"); ok {
		val, err := asBool(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("propagate: %w", err)
		}
		tc.Propagate = &val
	}
	return tc, nil
}
