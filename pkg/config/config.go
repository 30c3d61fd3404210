package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/marmos91/opcuad/internal/bytesize"
	"github.com/marmos91/opcuad/pkg/api"
	"github.com/marmos91/opcuad/pkg/identity"
)

// Config is the opcuad server configuration.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (OPCUAD_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Metrics contains Prometheus metrics server configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Server configures the endpoint and the periodic driver
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Session bounds the session table
	Session SessionConfig `mapstructure:"session" yaml:"session"`

	// Subscription bounds each session's subscription engine
	Subscription SubscriptionConfig `mapstructure:"subscription" yaml:"subscription"`

	// Identity configures which user identity tokens ActivateSession accepts
	Identity identity.Config `mapstructure:"identity" yaml:"identity"`

	// API configures the diagnostics HTTP API
	API api.APIConfig `mapstructure:"api" yaml:"api"`

	// Audit configures the audit event log
	Audit AuditConfig `mapstructure:"audit" yaml:"audit"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled
	// Default: false
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port)
	// Default: "localhost:4317"
	Endpoint string `mapstructure:"endpoint" validate:"required_if=Enabled true" yaml:"endpoint"`

	// Insecure disables TLS towards the collector
	// Default: true
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0)
	// Default: 1.0
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	// Enabled controls whether continuous profiling is enabled
	// Default: false
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server URL
	// Default: "http://localhost:4040"
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ProfileTypes specifies which profile types to collect
	// Valid values: cpu, alloc_objects, alloc_space, inuse_objects, inuse_space,
	//               goroutines, mutex_count, mutex_duration, block_count, block_duration
	ProfileTypes []string `mapstructure:"profile_types" validate:"dive,oneof=cpu alloc_objects alloc_space inuse_objects inuse_space goroutines mutex_count mutex_duration block_count block_duration" yaml:"profile_types"`
}

// MetricsConfig configures the Prometheus metrics HTTP server.
// When Enabled is false, no metrics are collected.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for /metrics
	// Default: 9090
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// ServerConfig configures the OPC UA endpoint and the periodic driver.
type ServerConfig struct {
	// EndpointURL is advertised in CreateSession responses
	// Default: "opc.tcp://localhost:4840"
	EndpointURL string `mapstructure:"endpoint_url" validate:"required" yaml:"endpoint_url"`

	// ApplicationURI identifies this server instance
	// Default: "urn:opcuad:server"
	ApplicationURI string `mapstructure:"application_uri" yaml:"application_uri"`

	// Certificate and PrivateKey are PEM files of the application
	// instance certificate. Both empty exposes SecurityPolicy None only.
	Certificate string `mapstructure:"certificate" validate:"required_with=PrivateKey" yaml:"certificate,omitempty"`
	PrivateKey  string `mapstructure:"private_key" validate:"required_with=Certificate" yaml:"private_key,omitempty"`

	// TickInterval is the driver period
	// Default: 50ms
	TickInterval time.Duration `mapstructure:"tick_interval" validate:"gt=0" yaml:"tick_interval"`

	// SweepInterval is how often idle sessions are expired
	// Default: 1s
	SweepInterval time.Duration `mapstructure:"sweep_interval" validate:"gt=0" yaml:"sweep_interval"`
}

// SessionConfig bounds the session table.
type SessionConfig struct {
	// MaxSessions caps live sessions; CreateSession beyond it fails
	// with BadTooManySessions. Default: 100
	MaxSessions int `mapstructure:"max_sessions" validate:"gt=0" yaml:"max_sessions"`

	// MinTimeout and MaxTimeout clamp the requested session timeout.
	// Defaults: 10s and 1h
	MinTimeout time.Duration `mapstructure:"min_timeout" validate:"gt=0" yaml:"min_timeout"`
	MaxTimeout time.Duration `mapstructure:"max_timeout" validate:"gtefield=MinTimeout" yaml:"max_timeout"`

	// DefaultTimeout applies when the client requests none. Default: 5m
	DefaultTimeout time.Duration `mapstructure:"default_timeout" validate:"gt=0" yaml:"default_timeout"`

	// TerminatedRetention keeps terminated sessions visible to
	// diagnostics before they are purged. Default: 30s
	TerminatedRetention time.Duration `mapstructure:"terminated_retention" validate:"gt=0" yaml:"terminated_retention"`

	// MaxContinuationPoints bounds each session's browse continuation
	// points. Default: 5000
	MaxContinuationPoints int `mapstructure:"max_continuation_points" validate:"gt=0" yaml:"max_continuation_points"`

	// MaxRequestMessageSize and MaxResponseMessageSize are negotiated
	// with clients. Supports "16MiB", "1MB" or plain byte counts.
	// Default: 16MiB
	MaxRequestMessageSize  bytesize.ByteSize `mapstructure:"max_request_message_size" yaml:"max_request_message_size"`
	MaxResponseMessageSize bytesize.ByteSize `mapstructure:"max_response_message_size" yaml:"max_response_message_size"`
}

// SubscriptionConfig bounds one session's subscription engine.
type SubscriptionConfig struct {
	// MaxPublishRequests caps queued publish requests per session.
	// Default: 100
	MaxPublishRequests int `mapstructure:"max_publish_requests" validate:"gt=0" yaml:"max_publish_requests"`

	// PublishRequestTimeout applies when a publish request carries no
	// timeout hint. Default: 30s
	PublishRequestTimeout time.Duration `mapstructure:"publish_request_timeout" validate:"gt=0" yaml:"publish_request_timeout"`

	// Priority selects which ready subscription is served first.
	// Valid values: late-first, in-order. Default: late-first
	Priority string `mapstructure:"priority" validate:"oneof=late-first in-order" yaml:"priority"`

	MaxSubscriptions           int           `mapstructure:"max_subscriptions" validate:"gt=0" yaml:"max_subscriptions"`
	MaxMonitoredItems          int           `mapstructure:"max_monitored_items" validate:"gt=0" yaml:"max_monitored_items"`
	MinPublishingInterval      time.Duration `mapstructure:"min_publishing_interval" validate:"gt=0" yaml:"min_publishing_interval"`
	MaxPublishingInterval      time.Duration `mapstructure:"max_publishing_interval" validate:"gtefield=MinPublishingInterval" yaml:"max_publishing_interval"`
	MinSamplingInterval        time.Duration `mapstructure:"min_sampling_interval" validate:"gt=0" yaml:"min_sampling_interval"`
	MaxKeepAliveCount          uint32        `mapstructure:"max_keep_alive_count" validate:"gt=0" yaml:"max_keep_alive_count"`
	MaxLifetimeCount           uint32        `mapstructure:"max_lifetime_count" validate:"gt=0" yaml:"max_lifetime_count"`
	MaxNotificationsPerPublish uint32        `mapstructure:"max_notifications_per_publish" yaml:"max_notifications_per_publish"`
	MaxRetransmissionQueue     int           `mapstructure:"max_retransmission_queue" validate:"gt=0" yaml:"max_retransmission_queue"`
	MaxItemQueueSize           uint32        `mapstructure:"max_item_queue_size" validate:"gt=0" yaml:"max_item_queue_size"`
}

// AuditConfig configures the audit event log.
type AuditConfig struct {
	// Enabled records CreateSession, ActivateSession, CloseSession and
	// Write calls. Default: false
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Path is the audit log file. Default: <config dir>/audit.log
	Path string `mapstructure:"path" validate:"required_if=Enabled true" yaml:"path"`
}

// Load loads configuration from file, environment, and defaults.
//
// A missing config file is not an error: defaults are returned with
// environment overrides applied.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)
	bindDefaults(v)

	if _, err := readConfigFile(v); err != nil {
		return nil, err
	}

	return decode(v)
}

// decode unmarshals v, applies defaults and validates the result.
func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// bindDefaults registers every key of the default configuration so that
// OPCUAD_* environment variables are honored even without a config file.
func bindDefaults(v *viper.Viper) {
	var raw map[string]any
	data, err := yaml.Marshal(GetDefaultConfig())
	if err != nil {
		return
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return
	}
	for key, value := range flatten("", raw) {
		v.SetDefault(key, value)
	}
}

func flatten(prefix string, m map[string]any) map[string]any {
	out := make(map[string]any)
	for k, val := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := val.(map[string]any); ok {
			for nk, nv := range flatten(key, nested) {
				out[nk] = nv
			}
			continue
		}
		out[key] = val
	}
	return out
}

// MustLoad loads configuration and fails with instructions when the
// config file does not exist.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  opcuad config init\n\n"+
				"Or specify a custom config file:\n"+
				"  opcuad <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s\n\n"+
			"Please create the configuration file:\n"+
			"  opcuad config init --config %s",
			configPath, configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes cfg as YAML to path with owner-only permissions, since
// it may hold password hashes and the issued token secret.
func SaveConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// setupViper configures environment overrides and the config file search.
// Environment variables use the OPCUAD_ prefix, e.g. OPCUAD_LOGGING_LEVEL.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("OPCUAD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(getConfigDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// configDecodeHooks combines the decode hooks for custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook converts strings like "16MiB" and plain numbers to
// bytesize.ByteSize.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook converts strings like "30s" to time.Duration. Raw
// integers are nanoseconds.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns $XDG_CONFIG_HOME/opcuad, ~/.config/opcuad, or "."
// when no home directory is known.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "opcuad")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "opcuad")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}
