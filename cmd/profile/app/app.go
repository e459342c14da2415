package app

import (
	"context"
	"fmt"
	"image/jpeg"
	"image/png"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/flight-geotag/internal/storage"
)

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	if _, err := os.Stat(config.DBPath); err != nil && os.IsNotExist(err) {
		return fmt.Errorf("database file '%s' does not exist: %w", config.DBPath, err)
	}

	store := storage.NewSqliteStore(config.DBPath)
	defer store.Close()

	return renderProfile(ctx, store, config, logger)
}

func readerOptions(config *Config) ([]storage.ReaderOption, []any) {
	var opts []storage.ReaderOption
	var filters []any
	switch {
	case config.StartTime != nil && config.EndTime != nil:
		opts = append(opts, storage.WithTimeRange(*config.StartTime, *config.EndTime))
		filters = append(filters, slog.Int64("startTime", *config.StartTime), slog.Int64("endTime", *config.EndTime))

	case config.StartTime != nil:
		opts = append(opts, storage.WithStartTime(*config.StartTime))
		filters = append(filters, slog.Int64("startTime", *config.StartTime))

	case config.EndTime != nil:
		opts = append(opts, storage.WithEndTime(*config.EndTime))
		filters = append(filters, slog.Int64("endTime", *config.EndTime))
	}
	return opts, filters
}

func renderProfile(ctx context.Context, store storage.Store, config *Config, logger *slog.Logger) error {
	run, err := store.Run(ctx, config.RunID)
	if err != nil {
		return fmt.Errorf("reading run %d: %w", config.RunID, err)
	}

	opts, filters := readerOptions(config)
	logger.Debug("reader configuration", filters...)

	records, err := store.FusedRecords(ctx, run.ID, opts...)
	if err != nil {
		return err
	}

	profile := NewProfileData(run.Alignment.Unit)
	for _, r := range records {
		profile.Update(r)
	}

	logger.Info("finished reading records",
		slog.Group("stats",
			slog.String("records", humanize.Comma(int64(len(records)))),
			slog.Int("skipped", profile.Skipped),
			slog.String("duration", profile.Duration().String()),
			slog.String("minAltitude", formatAltitude(profile.Altitude.Min)),
			slog.String("maxAltitude", formatAltitude(profile.Altitude.Max)),
		))

	renderer, err := NewProfileRenderer(RenderConfig{
		Width:         config.Width,
		Height:        config.Height,
		ColorTheme:    config.Theme,
		NoAnnotations: config.NoAnnotations,
	})
	if err != nil {
		return fmt.Errorf("creating profile renderer: %w", err)
	}

	logger.Info("rendering profile",
		slog.Group("image",
			slog.String("destination", config.OutputFile),
			slog.String("format", string(config.Format)),
			slog.String("theme", string(config.Theme)),
			slog.Int("width", config.Width),
			slog.Int("height", config.Height),
		))

	img, err := renderer.Render(profile, caption(run, len(profile.Points)))
	if err != nil {
		return fmt.Errorf("rendering profile: %w", err)
	}

	out, err := os.Create(config.OutputFile)
	if err != nil {
		return err
	}
	defer out.Close()

	switch config.Format {
	case ImagePNG:
		err = png.Encode(out, img)

	case ImageJPEG:
		err = jpeg.Encode(out, img, &jpeg.Options{
			Quality: 98,
		})
	}
	if err != nil {
		return fmt.Errorf("encoding %s: %w", config.Format, err)
	}
	return out.Close()
}

func caption(run *storage.RunInfo, points int) string {
	return fmt.Sprintf("Run %d; %s images; alignment %s/%s; delta %s%s",
		run.ID,
		humanize.Comma(int64(points)),
		run.Alignment.Direction,
		run.Alignment.Class,
		humanize.Comma(run.Delta),
		run.Alignment.Unit)
}
