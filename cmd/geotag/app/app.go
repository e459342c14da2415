package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/flight-geotag/internal/align"
	"github.com/roman-kulish/flight-geotag/internal/capture"
	"github.com/roman-kulish/flight-geotag/internal/pipeline"
	"github.com/roman-kulish/flight-geotag/internal/storage"
	"github.com/roman-kulish/flight-geotag/internal/telemetry"
)

const (
	storageDir = "data"
)

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	store, err := createStorage(&config.Storage)
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}
	defer store.Close()

	images, err := loadImages(ctx, &config.Images, store)
	if err != nil {
		return fmt.Errorf("failed to load images: %w", err)
	}
	logger.Info("images loaded",
		slog.String("images", humanize.Comma(int64(images.Len()))),
		slog.String("unit", images.Unit.String()))

	sources, err := createSources(config.Logs)
	if err != nil {
		return fmt.Errorf("failed to create log sources: %w", err)
	}

	orchestrator, err := createOrchestrator(config, logger)
	if err != nil {
		return err
	}

	out, err := orchestrator.Run(ctx, images, sources)
	if err != nil {
		return fmt.Errorf("geotagging failed: %w", err)
	}

	runID, err := store.StoreRun(ctx, config, out.Alignment, out.Records)
	if err != nil {
		return fmt.Errorf("failed to store run: %w", err)
	}

	logger.Info("run stored",
		slog.Int64("run", runID),
		slog.String("records", humanize.Comma(int64(len(out.Records)))),
		slog.Int64("delta", out.Delta),
		slog.Any("alignment", out.Alignment))

	return nil
}

func createOrchestrator(config *Config, logger *slog.Logger) (*pipeline.Orchestrator, error) {
	unit, err := telemetry.ParseUnit(config.Settings.Unit)
	if err != nil {
		return nil, err
	}

	aligner := align.New(
		align.WithMaxBiasDays(config.Alignment.MaxBiasDays),
		align.WithMinInvalidDays(config.Alignment.MinInvalidDays),
		align.WithMaxDurationDays(config.Alignment.MaxDurationDays),
		align.WithLogger(logger),
	)

	options := []func(*pipeline.Orchestrator){
		pipeline.WithLogger(logger),
		pipeline.WithUnit(unit),
		pipeline.WithTriggerChannel(config.Trigger.Channel),
		pipeline.WithGPS(config.Fusion.GPS),
		pipeline.WithParallelism(config.Settings.Parallelism),
		pipeline.WithAligner(aligner),
	}
	if config.Alignment.ManualOffset != nil {
		options = append(options, pipeline.WithManualOffset(*config.Alignment.ManualOffset))
	}

	return pipeline.New(options...), nil
}

// createSources expands every configured path, which may be a glob pattern, into decoded
// log files. Paths are deduplicated and sorted so the ingestion order is stable.
func createSources(patterns []string) ([]pipeline.LogSource, error) {
	var paths []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("log pattern '%s': %w", pattern, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("log pattern '%s' matched no files", pattern)
		}
		paths = append(paths, matches...)
	}

	slices.Sort(paths)
	paths = slices.Compact(paths)

	sources := make([]pipeline.LogSource, len(paths))
	for i, path := range paths {
		sources[i] = storage.NewLogFile(path)
	}
	return sources, nil
}

func loadImages(ctx context.Context, config *ImagesConfig, store storage.Store) (*capture.Timeline, error) {
	if config.Manifest == "" {
		images, err := store.Images(ctx)
		if err != nil {
			return nil, err
		}
		if images.Len() == 0 {
			return nil, capture.ErrEmptyTimeline
		}
		return images, nil
	}

	unit, err := telemetry.ParseUnit(config.Unit)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(config.Manifest)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	var records []capture.ImageRecord
	if err = json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parsing manifest '%s': %w", config.Manifest, err)
	}

	images := capture.NewTimeline(unit, records)
	if err = store.StoreImages(ctx, images); err != nil {
		return nil, fmt.Errorf("storing images: %w", err)
	}
	return images, nil
}

func createStorage(config *StorageConfig) (*storage.SqliteStore, error) {
	dbPath := config.DataDirectory
	if dbPath == "" {
		dbPath = storageDir
	}
	if !filepath.IsAbs(dbPath) {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current working directory: %w", err)
		}
		dbPath = filepath.Join(wd, dbPath)
	}

	stat, err := os.Stat(dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("storage directory '%s' does not exist: %w", dbPath, err)
		}
		return nil, fmt.Errorf("storage directory '%s': %w", dbPath, err)
	}
	if !stat.IsDir() {
		return nil, fmt.Errorf("invalid storage directory '%s'", dbPath)
	}

	return storage.NewSqliteStore(filepath.Join(dbPath, config.Database)), nil
}
