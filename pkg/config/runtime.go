package config

import (
	"fmt"

	"github.com/gopcua/opcua/ua"

	"github.com/marmos91/opcuad/internal/logger"
	"github.com/marmos91/opcuad/internal/telemetry"
	"github.com/marmos91/opcuad/pkg/server"
	"github.com/marmos91/opcuad/pkg/session"
	"github.com/marmos91/opcuad/pkg/subscription"
)

// LoggerConfig returns the logger settings.
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:  c.Logging.Level,
		Format: c.Logging.Format,
		Output: c.Logging.Output,
	}
}

// TracingConfig returns the OpenTelemetry settings for version.
func (c *Config) TracingConfig(version string) telemetry.Config {
	return telemetry.Config{
		Enabled:        c.Telemetry.Enabled,
		ServiceName:    "opcuad",
		ServiceVersion: version,
		Endpoint:       c.Telemetry.Endpoint,
		Insecure:       c.Telemetry.Insecure,
		SampleRate:     c.Telemetry.SampleRate,
	}
}

// ProfilingConfig returns the Pyroscope settings for version.
func (c *Config) ProfilingConfig(version string) telemetry.ProfilingConfig {
	return telemetry.ProfilingConfig{
		Enabled:        c.Telemetry.Profiling.Enabled,
		ServiceName:    "opcuad",
		ServiceVersion: version,
		Endpoint:       c.Telemetry.Profiling.Endpoint,
		ProfileTypes:   c.Telemetry.Profiling.ProfileTypes,
	}
}

// SubscriptionEngineConfig converts the subscription section.
func (c *Config) SubscriptionEngineConfig() (subscription.Config, error) {
	priority, err := subscription.ParsePriority(c.Subscription.Priority)
	if err != nil {
		return subscription.Config{}, fmt.Errorf("subscription.priority: %w", err)
	}

	s := c.Subscription
	return subscription.Config{
		MaxPublishRequests:     s.MaxPublishRequests,
		PublishRequestTimeout:  s.PublishRequestTimeout,
		Priority:               priority,
		MaxSubscriptions:       s.MaxSubscriptions,
		MaxMonitoredItems:      s.MaxMonitoredItems,
		MinPublishingInterval:  s.MinPublishingInterval,
		MaxPublishingInterval:  s.MaxPublishingInterval,
		MinSamplingInterval:    s.MinSamplingInterval,
		MaxKeepAliveCount:      s.MaxKeepAliveCount,
		MaxLifetimeCount:       s.MaxLifetimeCount,
		MaxNotificationsPerMsg: s.MaxNotificationsPerPublish,
		MaxRetransmissionQueue: s.MaxRetransmissionQueue,
		MaxItemQueueSize:       s.MaxItemQueueSize,
	}, nil
}

// SessionManagerConfig converts the session and subscription sections.
func (c *Config) SessionManagerConfig() (session.Config, error) {
	sub, err := c.SubscriptionEngineConfig()
	if err != nil {
		return session.Config{}, err
	}

	s := c.Session
	return session.Config{
		MaxSessions:            s.MaxSessions,
		MinTimeout:             s.MinTimeout,
		MaxTimeout:             s.MaxTimeout,
		DefaultTimeout:         s.DefaultTimeout,
		TerminatedRetention:    s.TerminatedRetention,
		MaxContinuationPoints:  s.MaxContinuationPoints,
		MaxRequestMessageSize:  s.MaxRequestMessageSize.Uint32(),
		MaxResponseMessageSize: s.MaxResponseMessageSize.Uint32(),
		Subscription:           sub,
	}, nil
}

// DriverConfig returns the server driver settings.
func (c *Config) DriverConfig() server.Config {
	return server.Config{
		TickInterval:  c.Server.TickInterval,
		SweepInterval: c.Server.SweepInterval,
	}
}

// EndpointDescriptions returns the endpoints advertised by CreateSession.
// certificate is the DER application instance certificate, or nil when
// only SecurityPolicy None is exposed.
func (c *Config) EndpointDescriptions(certificate []byte) []*ua.EndpointDescription {
	var tokens []*ua.UserTokenPolicy
	if c.Identity.AllowAnonymous {
		tokens = append(tokens, &ua.UserTokenPolicy{PolicyID: "anonymous", TokenType: ua.UserTokenTypeAnonymous})
	}
	if len(c.Identity.Users) > 0 {
		tokens = append(tokens, &ua.UserTokenPolicy{PolicyID: "username", TokenType: ua.UserTokenTypeUserName})
	}
	if c.Identity.Issued.Enabled {
		tokens = append(tokens, &ua.UserTokenPolicy{PolicyID: "jwt", TokenType: ua.UserTokenTypeIssuedToken})
	}

	return []*ua.EndpointDescription{{
		EndpointURL: c.Server.EndpointURL,
		Server: &ua.ApplicationDescription{
			ApplicationURI:  c.Server.ApplicationURI,
			ApplicationName: ua.NewLocalizedText("opcuad"),
			ApplicationType: ua.ApplicationTypeServer,
		},
		ServerCertificate:   certificate,
		SecurityMode:        ua.MessageSecurityModeNone,
		SecurityPolicyURI:   ua.SecurityPolicyURINone,
		UserIdentityTokens:  tokens,
		TransportProfileURI: "http://opcfoundation.org/UA-Profile/Transport/uatcp-uasc-uabinary",
	}}
}
