package api

import "time"

// Defaults applied by APIConfig.ApplyDefaults.
const (
	DefaultPort         = 8081
	DefaultAdminRole    = "admin"
	DefaultReadTimeout  = 10 * time.Second
	DefaultWriteTimeout = 10 * time.Second
	DefaultIdleTimeout  = time.Minute
)

// APIConfig configures the diagnostics HTTP server.
type APIConfig struct {
	// Enabled is a pointer so an absent key means on. Default: true
	Enabled *bool `mapstructure:"enabled" yaml:"enabled"`

	// Port of the HTTP listener. Default: 8081
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`

	// AdminRole is the issued-token role allowed to terminate sessions.
	// Default: "admin"
	AdminRole string `mapstructure:"admin_role" yaml:"admin_role"`

	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
}

// IsEnabled reports whether "opcuad start" runs the API.
func (c *APIConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// ApplyDefaults fills zero fields.
func (c *APIConfig) ApplyDefaults() {
	if c.Port <= 0 {
		c.Port = DefaultPort
	}
	if c.AdminRole == "" {
		c.AdminRole = DefaultAdminRole
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
}
