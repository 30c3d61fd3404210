package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/marmos91/opcuad/cmd/opcuad/cmdutil"
	"github.com/marmos91/opcuad/internal/logger"
	"github.com/marmos91/opcuad/internal/telemetry"
	"github.com/marmos91/opcuad/pkg/addressspace"
	"github.com/marmos91/opcuad/pkg/api"
	"github.com/marmos91/opcuad/pkg/audit"
	"github.com/marmos91/opcuad/pkg/config"
	"github.com/marmos91/opcuad/pkg/identity"
	"github.com/marmos91/opcuad/pkg/metrics"
	"github.com/marmos91/opcuad/pkg/securechannel"
	"github.com/marmos91/opcuad/pkg/server"
	"github.com/marmos91/opcuad/pkg/session"

	// Import prometheus metrics to register init() functions
	_ "github.com/marmos91/opcuad/pkg/metrics/prometheus"
)

var pidFile string

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the OPC UA server",
	Long: `Start the opcuad server in the foreground.

The configuration is read from --config or $XDG_CONFIG_HOME/opcuad/config.yaml.
Every key can be overridden with an OPCUAD_* environment variable. Edits
to logging.level and identity.users are applied without a restart.

Examples:
  # Start with the default configuration file
  opcuad start

  # Start with a custom configuration file
  opcuad start --config /etc/opcuad/config.yaml

  # Start with environment variable overrides
  OPCUAD_LOGGING_LEVEL=DEBUG opcuad start`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().StringVar(&pidFile, "pid-file", "", "Write the process id to this file")
}

func runStart(cmd *cobra.Command, args []string) error {
	configFile := cmdutil.Flags.ConfigFile
	cfg, err := config.MustLoad(configFile)
	if err != nil {
		return err
	}

	if err := logger.Init(cfg.LoggerConfig()); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryShutdown, err := telemetry.Init(ctx, cfg.TracingConfig(Version))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(context.Background()); err != nil {
			logger.Error("telemetry shutdown error", logger.KeyError, err)
		}
	}()

	profilingShutdown, err := telemetry.InitProfiling(cfg.ProfilingConfig(Version))
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", logger.KeyError, err)
		}
	}()

	logger.Info("opcuad starting", "version", Version, "commit", Commit)
	logger.Info("Configuration loaded", "source", configSource(configFile))
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	}
	if telemetry.IsProfilingEnabled() {
		logger.Info("Profiling enabled", "endpoint", cfg.Telemetry.Profiling.Endpoint)
	}

	rt, err := buildComponents(cfg)
	if err != nil {
		return err
	}
	defer rt.close()

	if pidFile != "" {
		if err := os.WriteFile(pidFile, []byte(fmt.Sprintf("%d", os.Getpid())), 0644); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = os.Remove(pidFile) }()
	}

	if path := configPathToWatch(configFile); path != "" {
		if _, err := config.Watch(path, rt.reload); err != nil {
			logger.Warn("Configuration hot reload disabled", "file", path, logger.KeyError, err)
		}
	}

	errs := make(chan error, 3)
	go func() { errs <- rt.server.Serve(ctx) }()
	if rt.api != nil {
		go func() { errs <- rt.api.Start(ctx) }()
	}
	if rt.metrics != nil {
		go func() { errs <- rt.metrics.Start(ctx) }()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	logger.Info("Server is running. Press Ctrl+C to stop.", logger.KeyEndpoint, cfg.Server.EndpointURL)

	var runErr error
	select {
	case <-sigChan:
		logger.Info("Shutdown signal received, initiating graceful shutdown")
	case err := <-errs:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Server error", logger.KeyError, err)
			runErr = err
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()

	if err := rt.server.Stop(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", logger.KeyError, err)
		if runErr == nil {
			runErr = err
		}
	}
	cancel()

	logger.Info("Server stopped")
	return runErr
}

// components is the set of long-lived components behind "opcuad start".
type components struct {
	auth    *identity.Authenticator
	server  *server.Server
	api     *api.Server
	metrics *metrics.Server
	audit   *audit.Log
}

func buildComponents(cfg *config.Config) (*components, error) {
	rt := &components{}

	reg := metricsRegistry(cfg)
	if reg != nil {
		rt.metrics = metrics.NewServer(cfg.Metrics.Port, reg)
		logger.Info("Metrics enabled", "port", cfg.Metrics.Port)
	}

	certs := securechannel.NewEmptyCertificateStore()
	if cfg.Server.Certificate != "" {
		var err error
		if certs, err = securechannel.LoadCertificateStore(cfg.Server.Certificate, cfg.Server.PrivateKey); err != nil {
			return nil, err
		}
		logger.Info("Application certificate loaded", "subject", certs.Subject())
	}

	auth, err := identity.NewAuthenticator(cfg.Identity)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize identity: %w", err)
	}
	rt.auth = auth

	sc, err := cfg.SessionManagerConfig()
	if err != nil {
		return nil, err
	}
	sessions := session.NewManager(sc, auth, certs)
	if reg != nil {
		sessions.SetMetrics(session.NewMetrics(reg))
		sessions.SetSubscriptionMetrics(metrics.NewSubscriptionMetrics())
	}

	if cfg.Audit.Enabled {
		if rt.audit, err = audit.Open(cfg.Audit.Path); err != nil {
			return nil, fmt.Errorf("failed to open audit log: %w", err)
		}
		logger.Info("Audit log enabled", "path", cfg.Audit.Path)
	}

	dc := cfg.DriverConfig()
	dc.Endpoints = cfg.EndpointDescriptions(certs.Certificate())
	rt.server = server.New(dc, sessions, addressspace.NewStandard(time.Now()), rt.audit, metrics.NewServiceMetrics())

	if cfg.API.IsEnabled() {
		var tokens *identity.TokenValidator
		if cfg.Identity.Issued.Enabled {
			if tokens, err = identity.NewTokenValidator(cfg.Identity.Issued); err != nil {
				return nil, err
			}
		}
		rt.api = api.NewServer(cfg.API, sessions, tokens)
		logger.Info("API server configured", "port", cfg.API.Port)
	}

	return rt, nil
}

// reload applies the hot-reloadable settings of a changed config file.
func (rt *components) reload(cfg *config.Config) {
	config.ApplyRuntime(cfg)
	if err := rt.auth.Users().Replace(cfg.Identity.Users); err != nil {
		logger.Warn("Keeping previous users", logger.KeyError, err)
		return
	}
	logger.Info("Users reloaded", logger.KeyCount, len(cfg.Identity.Users))
}

func (rt *components) close() {
	if rt.audit != nil {
		if err := rt.audit.Close(); err != nil {
			logger.Error("audit log close error", logger.KeyError, err)
		}
	}
}

// metricsRegistry initializes the Prometheus registry when metrics are
// enabled.
func metricsRegistry(cfg *config.Config) *prometheus.Registry {
	if !cfg.Metrics.Enabled {
		return nil
	}
	return metrics.InitRegistry()
}
