package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yourusername/traceboard/pkg/analytics"
	"github.com/yourusername/traceboard/pkg/api"
	"github.com/yourusername/traceboard/pkg/auth"
	"github.com/yourusername/traceboard/pkg/logging"
	"github.com/yourusername/traceboard/pkg/middleware"
	"github.com/yourusername/traceboard/pkg/registry"
	"github.com/yourusername/traceboard/pkg/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the analytics HTTP server",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	logger.Info().Str("version", version).Str("commit", commit).Str("built", buildTime).Msg("starting traceboard")

	reg := registry.Default()
	b, err := openBackends(cfg, reg)
	if err != nil {
		return err
	}
	defer b.Close()

	metrics := telemetry.NewMetrics()
	facade := analytics.NewFacade(b.search, b.columnar, b.tenants,
		analytics.WithComparison(cfg.Analytics.ComparisonMode),
		analytics.WithMetrics(metrics),
	)

	handler := api.NewHandler(facade, reg, cfg, version)

	router := http.NewServeMux()

	// Public endpoints
	router.HandleFunc("/api/v1/health", handler.Health)
	if cfg.Metrics.Enabled {
		router.Handle(cfg.Metrics.Path, metrics.Handler())
	}

	// Tenant-scoped endpoints
	analyticsMux := http.NewServeMux()
	analyticsMux.HandleFunc("/api/v1/analytics/timeseries", handler.Timeseries)
	analyticsMux.HandleFunc("/api/v1/analytics/filter-options", handler.FilterOptions)
	analyticsMux.HandleFunc("/api/v1/analytics/top-documents", handler.TopDocuments)
	analyticsMux.HandleFunc("/api/v1/analytics/feedbacks", handler.Feedbacks)

	tenantMiddleware := middleware.TenantHeaderMiddleware
	if cfg.Auth.Enabled {
		authenticator, err := auth.NewJWTAuthenticator(cfg.Auth)
		if err != nil {
			return fmt.Errorf("failed to initialize authenticator: %w", err)
		}
		tenantMiddleware = middleware.AuthMiddleware(authenticator)
	}
	router.Handle("/api/v1/analytics/", middleware.Chain(analyticsMux,
		tenantMiddleware,
		middleware.RateLimitMiddleware(middleware.NewRateLimiter(cfg.RateLimits)),
	))

	root := middleware.Chain(router,
		middleware.RequestIDMiddleware(logger),
		middleware.RecoveryMiddleware,
		middleware.LoggingMiddleware(metrics),
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      root,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		BaseContext:  func(_ net.Listener) context.Context { return logger.WithContext(context.Background()) },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).
			Bool("search", b.search != nil).
			Bool("columnar", b.columnar != nil).
			Bool("comparison", cfg.Analytics.ComparisonMode).
			Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-quit:
	}

	logger.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server exited")
	return nil
}
