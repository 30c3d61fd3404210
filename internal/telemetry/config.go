package telemetry

// Config configures span export.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string

	// Endpoint is the OTLP gRPC collector, host:port.
	Endpoint string

	// Insecure dials the collector without TLS.
	Insecure bool

	// SampleRate is the fraction of root traces kept, 0 to 1. Driver ticks
	// run every few milliseconds, so production setups usually lower it.
	SampleRate float64
}

// DefaultConfig returns tracing off, pointed at a local collector.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "opcuad",
		ServiceVersion: "dev",
		Endpoint:       "localhost:4317",
		Insecure:       true,
		SampleRate:     1.0,
	}
}
