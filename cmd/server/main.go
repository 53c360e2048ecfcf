// @title           Story Archive API
// @version         1.0.0
// @description     Browses the on-disk story archive and renders video exports with ffmpeg.
// @description     Every operation is selected with the action query parameter of /api.php.

// @BasePath  /

// @securityDefinitions.apikey Bearer
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token. Only required when JWT_SECRET is set.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"story-archive-backend/internal/archive"
	"story-archive-backend/internal/config"
	"story-archive-backend/internal/database"
	"story-archive-backend/internal/export"
	"story-archive-backend/internal/ffmpeg"
	"story-archive-backend/internal/handlers"
	"story-archive-backend/internal/logging"
	"story-archive-backend/internal/services"
	"story-archive-backend/internal/supabase"
)

const shutdownTimeout = 30 * time.Second

func main() {
	var configFlag string

	cmd := &cobra.Command{
		Use:           "story-archive-server",
		Short:         "Serve the story archive API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, configFlag)
		},
	}
	cmd.Flags().StringVarP(&configFlag, "config", "c", "", "Configuration file (YAML or TOML); defaults to CONFIG_FILE or the environment")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, flush, err := logging.New(logging.Options{
		Level:       cfg.LogLevel,
		Environment: cfg.Environment,
		SentryDSN:   cfg.SentryDSN,
	})
	if err != nil {
		return err
	}
	defer flush()
	slog.SetDefault(logger)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	scanner := archive.NewScanner(cfg.ArchivePath, cfg.AutoExportPath, archive.Options{
		ReshareAccount:     cfg.ReshareAccount,
		ExcludedUsers:      cfg.SnapshotExcludedUsers,
		ExcludedSubstrings: cfg.SnapshotExcludedSubstrings,
	}, logger)

	runner := ffmpeg.NewExecRunner(cfg.FFmpegBinary, cfg.FFmpegTimeout, logger)
	if version, err := runner.Version(ctx); err != nil {
		logger.Warn("ffmpeg not available, exports will fail", "binary", runner.Binary(), "error", err)
	} else {
		logger.Info("ffmpeg found", "version", version)
	}

	opts := ffmpeg.DefaultOptions()
	opts.Preset = cfg.FFmpegPreset
	opts.CRF = cfg.FFmpegCRF
	opts.ImageSeconds = cfg.ImageSeconds
	pipeline := export.NewPipeline(runner, scanner, opts, logger)

	serviceOpts := []services.Option{services.WithWorkers(cfg.ExportWorkers, cfg.ExportQueue)}

	if cfg.DatabaseURL != "" || cfg.JobsDBPath != "" {
		db, dialect, err := database.Open(ctx, cfg.DatabaseURL, cfg.JobsDBPath)
		if err != nil {
			logger.Warn("export job log disabled", "error", err)
		} else {
			defer db.Close()
			if err := database.NewMigrator(db, dialect, logger).Run(ctx); err != nil {
				logger.Warn("export job log disabled, migration failed", "error", err)
			} else {
				serviceOpts = append(serviceOpts, services.WithJobStore(database.NewSQLStore(db, dialect)))
				logger.Info("export job log enabled", "dialect", dialect)
			}
		}
	}

	if cfg.StorageEnabled() {
		storageClient := supabase.NewStorageClient(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.SupabaseStorageBucket, logger)
		serviceOpts = append(serviceOpts, services.WithPublisher(storageClient))
		logger.Info("publishing exports to Supabase Storage", "bucket", storageClient.Bucket())
	}

	service, err := services.NewExportService(logger, serviceOpts...)
	if err != nil {
		return err
	}

	sweeper := export.NewSweeper(cfg.TempDir, cfg.SweepMaxAge, logger)
	if cfg.SweepInterval > 0 {
		if _, err := sweeper.Sweep(time.Now()); err != nil {
			logger.Warn("initial sweep failed", "error", err)
		}
		if err := sweeper.Start(cfg.SweepInterval); err != nil {
			return err
		}
		defer func() {
			if err := sweeper.Stop(); err != nil {
				logger.Warn("sweeper stop failed", "error", err)
			}
		}()
	}

	dispatcher := handlers.NewDispatcher(
		handlers.NewArchiveHandler(scanner),
		handlers.NewExportHandler(pipeline, service, cfg.TempDir, cfg.MaxUploadMB, logger),
		handlers.NewJobsHandler(service),
		cfg.JWTSecret,
	)
	router := handlers.NewRouter(dispatcher, handlers.NewHealthHandler(runner), logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Port, "archive", cfg.ArchivePath, "auth", cfg.JWTSecret != "")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	if err := service.Close(shutdownTimeout); err != nil {
		logger.Warn("exports still running at exit", "error", err)
	}
	return nil
}
