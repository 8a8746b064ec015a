package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fluxbase-eu/tabulate/internal/api"
	"github.com/fluxbase-eu/tabulate/internal/config"
	"github.com/fluxbase-eu/tabulate/internal/database"
	"github.com/fluxbase-eu/tabulate/internal/observability"
	"github.com/fluxbase-eu/tabulate/internal/ratelimit"
	"github.com/fluxbase-eu/tabulate/internal/resource"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the resource catalogue over HTTP",
		Long: `Load tabulate.yaml (or TABULATE_* environment variables), connect to
PostgreSQL and serve every catalogue resource at /api/v1/tables/:resource.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func runServe(ctx context.Context, opts *globalOptions) error {
	log.Info().
		Str("version", observability.Version).
		Str("commit", Commit).
		Str("build_date", BuildDate).
		Msg("Starting tabulate")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.Debug || opts.debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	defaults := resource.Defaults{
		Limits:      cfg.Pagination,
		SearchParam: cfg.Search.Param,
	}
	catalog, err := resource.Load(cfg.Resources.Path, defaults)
	if err != nil {
		return err
	}
	log.Info().Strs("resources", catalog.Names()).Msg("Resource catalogue loaded")

	tracer, err := observability.NewTracer(ctx, cfg.Tracing)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize OpenTelemetry tracer, tracing will be disabled")
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := tracer.Shutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("Failed to flush traces")
			}
		}()
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics()
		db.SetMetrics(metrics)
	}

	var serverOpts []api.ServerOption
	if cfg.Server.RateLimitMax > 0 {
		storage, err := ratelimit.NewStorage(cfg.Server.RateLimitStore, cfg.Server.RateLimitRedisURL)
		if err != nil {
			return err
		}
		defer storage.Close()
		serverOpts = append(serverOpts, api.WithRateLimitStorage(storage))
	}

	server := api.NewServer(cfg, catalog, db, metrics, serverOpts...)

	if cfg.Resources.ReloadSchedule != "" {
		reloader, err := resource.NewReloader(cfg.Resources.Path, cfg.Resources.ReloadSchedule, defaults, catalog, server.Reload)
		if err != nil {
			return err
		}
		reloader.Start()
		defer reloader.Stop()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server stopped: %w", err)
		}
		return nil
	case <-sigCtx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info().Msg("Server exited")
	return nil
}
