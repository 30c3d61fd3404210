package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/opcuad/internal/bytesize"
	"github.com/marmos91/opcuad/pkg/api"
	"github.com/marmos91/opcuad/pkg/identity"
	"github.com/marmos91/opcuad/pkg/server"
	"github.com/marmos91/opcuad/pkg/session"
	"github.com/marmos91/opcuad/pkg/subscription"
)

// ApplyDefaults sets default values for unspecified fields. Zero values
// are replaced; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyShutdownTimeoutDefaults(cfg)
	applyMetricsDefaults(&cfg.Metrics)
	applyServerDefaults(&cfg.Server)
	applySessionDefaults(&cfg.Session)
	applySubscriptionDefaults(&cfg.Subscription)
	applyIdentityDefaults(&cfg.Identity)
	applyAPIDefaults(&cfg.API)
	applyAuditDefaults(&cfg.Audit)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
	applyProfilingDefaults(&cfg.Profiling)
}

func applyProfilingDefaults(cfg *ProfilingConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}
	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{
			"cpu",
			"alloc_objects",
			"alloc_space",
			"inuse_objects",
			"inuse_space",
			"goroutines",
		}
	}
}

func applyShutdownTimeoutDefaults(cfg *Config) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = 9090
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.EndpointURL == "" {
		cfg.EndpointURL = "opc.tcp://localhost:4840"
	}
	if cfg.ApplicationURI == "" {
		cfg.ApplicationURI = "urn:opcuad:server"
	}
	if cfg.TickInterval == 0 {
		cfg.TickInterval = server.DefaultTickInterval
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = server.DefaultSweepInterval
	}
}

func applySessionDefaults(cfg *SessionConfig) {
	if cfg.MaxSessions == 0 {
		cfg.MaxSessions = session.DefaultMaxSessions
	}
	if cfg.MinTimeout == 0 {
		cfg.MinTimeout = session.DefaultMinTimeout
	}
	if cfg.MaxTimeout == 0 {
		cfg.MaxTimeout = session.DefaultMaxTimeout
	}
	if cfg.DefaultTimeout == 0 {
		cfg.DefaultTimeout = session.DefaultTimeout
	}
	if cfg.TerminatedRetention == 0 {
		cfg.TerminatedRetention = session.DefaultTerminatedRetention
	}
	if cfg.MaxContinuationPoints == 0 {
		cfg.MaxContinuationPoints = session.DefaultMaxContinuationPoints
	}
	if cfg.MaxRequestMessageSize == 0 {
		cfg.MaxRequestMessageSize = 16 * bytesize.MiB
	}
	if cfg.MaxResponseMessageSize == 0 {
		cfg.MaxResponseMessageSize = 16 * bytesize.MiB
	}
}

func applySubscriptionDefaults(cfg *SubscriptionConfig) {
	d := subscription.DefaultConfig()

	if cfg.MaxPublishRequests == 0 {
		cfg.MaxPublishRequests = d.MaxPublishRequests
	}
	if cfg.PublishRequestTimeout == 0 {
		cfg.PublishRequestTimeout = d.PublishRequestTimeout
	}
	if cfg.Priority == "" {
		cfg.Priority = d.Priority.String()
	}
	cfg.Priority = strings.ToLower(cfg.Priority)
	if cfg.MaxSubscriptions == 0 {
		cfg.MaxSubscriptions = d.MaxSubscriptions
	}
	if cfg.MaxMonitoredItems == 0 {
		cfg.MaxMonitoredItems = d.MaxMonitoredItems
	}
	if cfg.MinPublishingInterval == 0 {
		cfg.MinPublishingInterval = d.MinPublishingInterval
	}
	if cfg.MaxPublishingInterval == 0 {
		cfg.MaxPublishingInterval = d.MaxPublishingInterval
	}
	if cfg.MinSamplingInterval == 0 {
		cfg.MinSamplingInterval = d.MinSamplingInterval
	}
	if cfg.MaxKeepAliveCount == 0 {
		cfg.MaxKeepAliveCount = d.MaxKeepAliveCount
	}
	if cfg.MaxLifetimeCount == 0 {
		cfg.MaxLifetimeCount = d.MaxLifetimeCount
	}
	if cfg.MaxNotificationsPerPublish == 0 {
		cfg.MaxNotificationsPerPublish = d.MaxNotificationsPerMsg
	}
	if cfg.MaxRetransmissionQueue == 0 {
		cfg.MaxRetransmissionQueue = d.MaxRetransmissionQueue
	}
	if cfg.MaxItemQueueSize == 0 {
		cfg.MaxItemQueueSize = d.MaxItemQueueSize
	}
}

func applyIdentityDefaults(cfg *identity.Config) {
	if cfg.Issued.Enabled && cfg.Issued.Issuer == "" {
		cfg.Issued.Issuer = identity.DefaultIssuer
	}
}

func applyAPIDefaults(cfg *api.APIConfig) {
	cfg.ApplyDefaults()
}

func applyAuditDefaults(cfg *AuditConfig) {
	if cfg.Path == "" {
		cfg.Path = filepath.Join(getConfigDir(), "audit.log")
	}
}

// GetDefaultConfig returns a Config with all default values applied.
// Anonymous logins are allowed so a fresh install is usable.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Identity: identity.Config{AllowAnonymous: true},
	}
	ApplyDefaults(cfg)
	return cfg
}
