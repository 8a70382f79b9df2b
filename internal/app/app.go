// Package app assembles the forecasting service from configuration. Both the
// HTTP server and the CLI build on it.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/stockcast/internal/cache"
	"github.com/andresuchdata/stockcast/internal/config"
	"github.com/andresuchdata/stockcast/internal/forecast"
	"github.com/andresuchdata/stockcast/internal/ledger"
	"github.com/andresuchdata/stockcast/internal/pipeline"
	"github.com/andresuchdata/stockcast/internal/pipeline/sales"
	"github.com/andresuchdata/stockcast/internal/repository"
	"github.com/andresuchdata/stockcast/internal/repository/postgres"
	"github.com/andresuchdata/stockcast/internal/service"
	"github.com/andresuchdata/stockcast/internal/storage"
)

type App struct {
	Config   *config.Config
	Model    *forecast.DemandModel
	Forecast *service.ForecastService
	// DB is nil unless the ledger lives in postgres.
	DB *postgres.DB
	// Objects holds model snapshots; it is the file store or the s3 bucket.
	Objects storage.ObjectStorage
}

// New wires storage, the model, the cache and the ledger source. The returned
// App must be closed.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	reg, err := forecast.NewRegressor(cfg.Model.Regressor, regressorOptions(cfg.Model))
	if err != nil {
		return nil, err
	}

	objects, snapshotKey, err := snapshotObjects(cfg.Storage)
	if err != nil {
		return nil, err
	}
	model := forecast.NewDemandModel(reg, storage.NewSnapshotStore(objects, snapshotKey), cfg.Model.CVFolds)

	forecastCache := cache.NewNoopForecastCache()
	if cfg.Cache.Enabled {
		forecastCache, err = cache.NewForecastCache(cfg.Cache)
		if err != nil {
			log.Warn().Err(err).Msg("forecast cache unavailable, continuing without it")
			forecastCache = cache.NewNoopForecastCache()
		}
	}

	a := &App{Config: cfg, Model: model, Objects: objects}

	var (
		source service.LedgerSource
		runs   repository.TrainingRunRepository
	)
	switch strings.ToLower(cfg.App.LedgerSource) {
	case "postgres":
		db, err := postgres.NewDB(ctx, &cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		if err := db.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		a.DB = db
		source = postgres.NewSalesRepository(db)
		runs = postgres.NewTrainingRunRepository(db)
	case "file", "":
		source = ledger.NewFileSource(cfg.App.LedgerPath)
	default:
		return nil, fmt.Errorf("unsupported ledger source %q", cfg.App.LedgerSource)
	}

	a.Forecast = service.NewForecastService(model, source, forecastCache, runs, cfg.Model.AlertHorizon)
	return a, nil
}

func (a *App) Close() {
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close database")
		}
	}
}

// ErrIngestNeedsDatabase is returned when ingest runs without a postgres ledger.
var ErrIngestNeedsDatabase = errors.New("ingest requires LEDGER_SOURCE=postgres")

// Ingest loads every daily sales export under prefix into the sales table.
func (a *App) Ingest(ctx context.Context, prefix string) (*pipeline.Summary, error) {
	if a.DB == nil {
		return nil, ErrIngestNeedsDatabase
	}
	objects, err := a.IngestObjects()
	if err != nil {
		return nil, err
	}

	p := sales.NewSalesPipeline(objects)
	keys, err := p.ListInputs(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list ingest inputs: %w", err)
	}
	log.Info().Int("files", len(keys)).Str("prefix", prefix).Msg("starting sales ingest")

	cfg := pipeline.DefaultConfig(p.Name())
	if a.Config.Pipeline.WorkerCount > 0 {
		cfg.WorkerCount = a.Config.Pipeline.WorkerCount
	}
	if a.Config.Pipeline.BatchSize > 0 {
		cfg.BatchSize = a.Config.Pipeline.BatchSize
	}

	orchestrator := pipeline.NewOrchestrator(
		pipeline.NewRepository(a.DB.DB.DB),
		postgres.NewSalesRepository(a.DB),
		cfg,
	)
	return orchestrator.Run(ctx, p, keys)
}

// IngestObjects returns the store sales exports are read from.
func (a *App) IngestObjects() (storage.ObjectStorage, error) {
	if strings.ToLower(a.Config.Storage.Backend) == "s3" {
		return a.Objects, nil
	}
	return storage.NewFileStore(a.Config.Pipeline.IngestDir)
}

func regressorOptions(cfg config.ModelConfig) forecast.RegressorOptions {
	opts := forecast.DefaultRegressorOptions()
	if cfg.Trees > 0 {
		opts.Trees = cfg.Trees
	}
	if cfg.MaxDepth > 0 {
		opts.MaxDepth = cfg.MaxDepth
	}
	if cfg.MinSamplesSplit > 0 {
		opts.MinSamplesSplit = cfg.MinSamplesSplit
	}
	if cfg.MinSamplesLeaf > 0 {
		opts.MinSamplesLeaf = cfg.MinSamplesLeaf
	}
	if cfg.RidgeLambda > 0 {
		opts.RidgeLambda = cfg.RidgeLambda
	}
	opts.Seed = cfg.Seed
	return opts
}

func snapshotObjects(cfg config.StorageConfig) (storage.ObjectStorage, string, error) {
	switch strings.ToLower(cfg.Backend) {
	case "s3":
		store, err := storage.NewMinioStore(storage.MinioConfig{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			UseSSL:    cfg.UseSSL,
		})
		if err != nil {
			return nil, "", err
		}
		return store, cfg.ObjectKey, nil
	case "file", "":
		store, err := storage.NewFileStore(filepath.Dir(cfg.SnapshotPath))
		if err != nil {
			return nil, "", err
		}
		return store, filepath.Base(cfg.SnapshotPath), nil
	default:
		return nil, "", fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}
}
