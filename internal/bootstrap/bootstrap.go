// Package bootstrap provides dependency initialization for mediaforge.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/maauso/mediaforge/internal/config"
	"github.com/maauso/mediaforge/internal/diag"
	"github.com/maauso/mediaforge/internal/engine"
	"github.com/maauso/mediaforge/internal/job"
	"github.com/maauso/mediaforge/internal/media"
	"github.com/maauso/mediaforge/internal/metrics"
	"github.com/maauso/mediaforge/internal/preset"
	"github.com/maauso/mediaforge/internal/storage"
)

// Dependencies holds all initialized dependencies for the server and CLI.
type Dependencies struct {
	Engine *engine.Engine
	Sink   *diag.Sink

	closeRepo func() error
}

// NewDependencies creates and initializes all dependencies for the application.
// sink may be nil when diagnostics reconfiguration is not exposed.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger, sink *diag.Sink) (*Dependencies, error) {
	// Initialize storage
	store, err := initStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	// Load presets
	catalog, err := initCatalog(cfg, logger)
	if err != nil {
		return nil, err
	}

	// Initialize media backend
	backend := media.NewFFmpegBackend(cfg.FFmpegPath,
		media.WithFFprobePath(cfg.FFprobePath),
		media.WithImageDecoder(media.DefaultImageDecoder()),
		media.WithLogger(logger),
	)

	// Initialize job repository
	repo, closeRepo, err := initRepository(cfg, logger)
	if err != nil {
		return nil, err
	}

	runner := job.NewRunner(repo,
		job.Config{Workers: cfg.Workers, QueueSize: cfg.QueueSize, Retention: cfg.JobRetention},
		job.WithLogger(logger),
		job.WithObserver(metrics.NewJobObserver()),
	)

	return &Dependencies{
		Engine:    engine.New(runner, backend, catalog, store, engine.WithLogger(logger)),
		Sink:      sink,
		closeRepo: closeRepo,
	}, nil
}

// Close drains the job runner, then releases the repository. Jobs still
// running when ctx expires are cancelled.
func (d *Dependencies) Close(ctx context.Context) error {
	var errs []error
	if err := d.Engine.Runner().Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown runner: %w", err))
	}
	if d.closeRepo != nil {
		if err := d.closeRepo(); err != nil {
			errs = append(errs, fmt.Errorf("close repository: %w", err))
		}
	}
	return errors.Join(errs...)
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(ctx, cfg.TempDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("temp_dir", localStore.TempDir()),
	)
	return localStore, nil
}

func initCatalog(cfg *config.Config, logger *slog.Logger) (*preset.Catalog, error) {
	if cfg.PresetsFile == "" {
		return preset.Default(), nil
	}
	catalog, err := preset.Load(cfg.PresetsFile)
	if err != nil {
		return nil, fmt.Errorf("load presets: %w", err)
	}
	logger.Info("presets loaded",
		slog.String("file", cfg.PresetsFile),
		slog.Int("resolutions", len(catalog.Resolutions())),
	)
	return catalog, nil
}

func initRepository(cfg *config.Config, logger *slog.Logger) (job.Repository, func() error, error) {
	if cfg.DatabasePath == "" {
		return job.NewMemoryRepository(), nil, nil
	}
	repo, err := job.OpenSQLite(cfg.DatabasePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open job database: %w", err)
	}
	logger.Info("job database opened", slog.String("path", cfg.DatabasePath))
	return repo, repo.Close, nil
}
