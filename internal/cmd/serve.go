package cmd

import (
	"context"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/forgeiq/forgeiq/internal/config"
	apperrors "github.com/forgeiq/forgeiq/internal/errors"
	"github.com/forgeiq/forgeiq/internal/metrics"
	"github.com/forgeiq/forgeiq/internal/observability"
	"github.com/forgeiq/forgeiq/internal/server"
	"github.com/forgeiq/forgeiq/internal/server/handlers"
)

var (
	serverPort int
	serverHost string
)

// telemetryHealthChecker ensures telemetry system and exporter are available
type telemetryHealthChecker struct{}

func (telemetryHealthChecker) CheckHealth(ctx context.Context) error {
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return apperrors.NewInternalError("telemetry system not initialized")
	}
	return nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the HTTP server with graceful shutdown support.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Re-read and validate the config file

Every /v1 request shares one admission controller with the rest of the process.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	observability.InitServerLogger(observability.ServerLoggerOptions{
		Service:   config.AppName,
		Level:     viper.GetString("logging.level"),
		Namespace: config.AppName,
	})
	logger := observability.ServerLogger

	app, err := bootstrap(logger)
	if err != nil {
		logger.Error("Failed to initialize", zap.Error(err))
		return apperrors.Wrap(cmd.Context(), apperrors.CodeConfigInvalid, err, "initialization failed")
	}
	cfg := app.cfg

	metricsPort := cfg.Metrics.Port
	if metricsPort == 0 {
		metricsPort = 9090
	}
	if cfg.Metrics.Enabled {
		if err := observability.InitMetrics(config.AppName, metricsPort); err != nil {
			logger.Error("Failed to initialize metrics", zap.Error(err))
			return apperrors.WrapInternal(cmd.Context(), err, "metrics initialization failed")
		}
		metricsPort = observability.GetMetricsPort()
		metrics.SetServerStartTime(time.Now())
	}

	hm := handlers.InitHealthManager(versionInfo.Version)
	hm.RegisterChecker("admission", handlers.AdmissionChecker{Controller: app.admission})
	hm.RegisterChecker("providers", handlers.ProviderChecker{Providers: app.providers})
	if cfg.Metrics.Enabled {
		hm.RegisterChecker("telemetry", telemetryHealthChecker{})
	}

	quota := app.admission.Quota()
	logger.Info("Initializing server",
		zap.String("version", versionInfo.Version),
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.Int("metrics_port", metricsPort),
		zap.Int("admission_max_requests", quota.MaxRequests),
		zap.Duration("admission_window", quota.Window),
		zap.Bool("provider_configured", app.providers.Configured("")))

	srv := server.New(server.Options{
		Server:      cfg.Server,
		MetricsPort: metricsPort,
		Service:     app.service,
		Admission:   app.admission,
		Providers:   app.providers,
	})

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 10 * time.Second
	}

	// Shutdown handlers run LIFO: the HTTP server stops before the logger flushes.
	signals.OnShutdown(func(ctx context.Context) error {
		if err := logger.Sync(); err != nil {
			// stdout/stderr may already be closed
			logger.Debug("Logger sync returned error", zap.Error(err))
		}
		return nil
	})

	signals.OnShutdown(func(ctx context.Context) error {
		logger.Info("Shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return apperrors.WrapInternal(ctx, err, "server shutdown failed")
		}
		logger.Info("HTTP server stopped gracefully")
		return nil
	})

	signals.OnReload(func(ctx context.Context) error {
		return reloadConfig(ctx, app)
	})

	if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
		Window:  2 * time.Second,
		Message: "Press Ctrl+C again within 2 seconds to force quit",
	}); err != nil {
		logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
	}

	errChan := make(chan error, 2)
	go func() {
		logger.Info("Starting HTTP server...", zap.String("addr", srv.Addr()))
		errChan <- srv.Start()
	}()

	go func() {
		if err := signals.Listen(cmd.Context()); err != nil {
			logger.Error("Signal handler error", zap.Error(err))
			errChan <- err
		}
	}()

	if err := <-errChan; err != nil {
		return apperrors.WrapInternal(cmd.Context(), err, "server error")
	}
	return nil
}

// reloadConfig re-reads the config file and validates it. The admission
// quota and provider set are bound at startup; changes to them are reported
// and take effect on restart.
func reloadConfig(ctx context.Context, app *components) error {
	logger := observability.ServerLogger
	logger.Info("Received SIGHUP: reloading config")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			logger.Error("Failed to reload config file",
				zap.String("file", viper.ConfigFileUsed()),
				zap.Error(err))
			return apperrors.Wrap(ctx, apperrors.CodeConfigInvalid, err, "config reload failed")
		}
	}

	next, err := config.Load(viper.GetViper())
	if err != nil {
		logger.Error("Reloaded config is invalid", zap.Error(err))
		return apperrors.Wrap(ctx, apperrors.CodeConfigInvalid, err, "config reload failed")
	}

	if next.Admission.Quota() != app.admission.Quota() {
		logger.Warn("Admission quota changed; restart to apply",
			zap.Int("max_requests", next.Admission.MaxRequests),
			zap.Duration("window", next.Admission.Window))
	}
	if next.Server != app.cfg.Server {
		logger.Warn("Server settings changed; restart to apply")
	}

	logger.Info("Configuration reloaded", zap.String("file", viper.ConfigFileUsed()))
	return nil
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "localhost", "server host")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "server port")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}
