package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/patrickwarner/adprovision/internal/api"
	"github.com/patrickwarner/adprovision/internal/app"
	"github.com/patrickwarner/adprovision/internal/config"
	"github.com/patrickwarner/adprovision/internal/observability"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:           "serve",
		Short:         "Serve the provisioning HTTP API",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := rootOpts.config()
			if port != "" {
				cfg.Port = port
			}
			logger, err := rootOpts.logger(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer func() {
				if err := logger.Sync(); err != nil {
					fmt.Fprintf(os.Stderr, "failed to sync logger: %v\n", err)
				}
			}()
			if err := runServe(cmd.Context(), logger, cfg); err != nil {
				logger.Error("server error", zap.Error(err))
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "listen port (default $PORT or 8787)")
	return cmd
}

func runServe(ctx context.Context, logger *zap.Logger, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := initTracing(ctx, logger, cfg)
	if err != nil {
		return err
	}
	defer shutdownTracing()

	metricsRegistry := observability.NewPrometheusRegistry()

	a, err := app.New(ctx, cfg, logger, metricsRegistry)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      api.NewServer(logger, a, a.Resolver, metricsRegistry).Router(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	logger.Info("Provisioning API running", zap.String("addr", srv.Addr))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("listen: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

// initTracing starts the OTLP exporter when tracing is enabled. The returned
// function is always safe to call.
func initTracing(ctx context.Context, logger *zap.Logger, cfg config.Config) (func(), error) {
	if !cfg.TracingEnabled {
		return func() {}, nil
	}
	shutdown, err := observability.InitTracing(ctx, logger, cfg.ServiceName, cfg.TempoEndpoint, cfg.TracingSampleRate)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	return shutdown, nil
}
