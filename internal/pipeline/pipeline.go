// Package pipeline sequences decoding, clock alignment and fusion of a single run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/roman-kulish/flight-geotag/internal/align"
	"github.com/roman-kulish/flight-geotag/internal/capture"
	"github.com/roman-kulish/flight-geotag/internal/fusion"
	"github.com/roman-kulish/flight-geotag/internal/telemetry"
	"github.com/roman-kulish/flight-geotag/internal/trigger"
)

const defaultParallelism = 4

// ErrNoSources is returned when a run has no log to decode
var ErrNoSources = errors.New("no log sources")

// Output is the result of a successful run
type Output struct {
	Records   []fusion.Record  // One record per image, in input order
	Alignment align.Result     // How the two clocks were reconciled
	Trigger   *trigger.Trigger // Detected trigger; nil when a manual offset was used
	Samples   map[string]int   // Sample count per channel after ingestion
	Delta     int64            // Absolute applied offset, a data quality indicator
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithUnit sets the timestamp unit every channel is normalized to before alignment.
// Image timestamps must already be in this unit.
func WithUnit(unit telemetry.Unit) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.unit = unit
	}
}

// WithTriggerChannel sets the RC input channel the shutter trigger is wired to
func WithTriggerChannel(channel int) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.triggerField = telemetry.RCChannelField(channel)
	}
}

// WithGPS enables position fusion from the auxiliary GPS receiver
func WithGPS(enabled bool) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.gps = enabled
	}
}

// WithParallelism sets how many log sources are decoded concurrently
func WithParallelism(n int) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.parallelism = n
	}
}

// WithManualOffset skips trigger detection and shifts the images by offset
func WithManualOffset(offset int64) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.manualOffset = &offset
	}
}

// WithAligner sets the clock aligner
func WithAligner(aligner *align.Aligner) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.aligner = aligner
	}
}

// Orchestrator runs the reconciliation pipeline. It holds configuration only; every run
// creates its own sample store and working copy of the image timeline.
type Orchestrator struct {
	logger       *slog.Logger
	aligner      *align.Aligner
	unit         telemetry.Unit
	triggerField string
	gps          bool
	parallelism  int
	manualOffset *int64
}

// New creates a new Orchestrator
func New(options ...func(*Orchestrator)) *Orchestrator {
	o := Orchestrator{
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		unit:         telemetry.Seconds,
		triggerField: telemetry.RCChannelField(trigger.DefaultChannel),
		parallelism:  defaultParallelism,
	}

	for _, option := range options {
		option(&o)
	}

	if o.aligner == nil {
		o.aligner = align.New(align.WithLogger(o.logger))
	}

	return &o
}

// Run decodes the sources, aligns the images with the logs and fuses altitude, roll and,
// when enabled, position onto every image. The caller's timeline is not modified. Any
// failure aborts the run without output.
func (o *Orchestrator) Run(ctx context.Context, images *capture.Timeline, sources []LogSource) (*Output, error) {
	if len(sources) == 0 {
		return nil, ErrNoSources
	}

	logs, err := o.decode(ctx, sources)
	if err != nil {
		return nil, err
	}

	store := telemetry.NewStore()
	for _, l := range logs {
		if err = store.IngestLog(l); err != nil {
			return nil, fmt.Errorf("ingesting: %w", err)
		}
	}

	if err = store.Normalize(o.unit); err != nil {
		return nil, fmt.Errorf("normalizing timestamps: %w", err)
	}

	counts := make(map[string]int)
	for _, kind := range store.Kinds() {
		counts[string(kind)] = store.Len(kind)
		o.logger.Info("channel ingested",
			slog.String("channel", string(kind)),
			slog.String("samples", humanize.Comma(int64(store.Len(kind)))))
	}

	working := capture.NewTimeline(images.Unit, slices.Clone(images.Records))

	out := Output{Samples: counts}
	if out.Alignment, out.Trigger, err = o.align(working, store); err != nil {
		return nil, err
	}
	out.Delta = out.Alignment.Delta()

	o.logger.Info("clocks aligned", slog.Any("alignment", out.Alignment))

	if out.Records, err = o.fuse(working, store); err != nil {
		return nil, err
	}

	return &out, nil
}

// decode decodes every source concurrently. Results are returned in source order so that
// ingestion, and therefore the order of samples sharing a timestamp, does not depend on
// scheduling.
func (o *Orchestrator) decode(ctx context.Context, sources []LogSource) ([]*telemetry.Log, error) {
	logs := make([]*telemetry.Log, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(o.parallelism, 1))

	for i, src := range sources {
		g.Go(func() error {
			o.logger.Debug("decoding log", slog.String("log", src.Name()))

			l, err := src.Decode(gctx)
			if err != nil {
				return fmt.Errorf("decoding log %s: %w", src.Name(), err)
			}
			logs[i] = l

			o.logger.Info("log decoded", slog.String("log", src.Name()), slog.Int("channels", len(l.Channels)))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (o *Orchestrator) align(images *capture.Timeline, store *telemetry.Store) (align.Result, *trigger.Trigger, error) {
	if o.manualOffset != nil {
		res, err := o.aligner.Apply(*o.manualOffset, images, store)
		if err != nil {
			return res, nil, fmt.Errorf("applying manual offset: %w", err)
		}
		return res, nil, nil
	}

	rc, _ := store.Series(telemetry.ChannelRCIn)
	trg, err := trigger.Detect(rc, o.triggerField)
	if err != nil {
		return align.Result{Direction: align.Failed}, nil, fmt.Errorf("detecting trigger: %w", err)
	}

	o.logger.Info("trigger detected",
		slog.Int64("timestamp", trg.Timestamp),
		slog.Int("index", trg.Index),
		slog.Int("drops", trg.Drops),
		slog.Int("climbs", trg.Climbs))

	res, err := o.aligner.Align(trg.Timestamp, images, store)
	if err != nil {
		return res, &trg, fmt.Errorf("aligning clocks: %w", err)
	}
	return res, &trg, nil
}

func (o *Orchestrator) fuse(images *capture.Timeline, store *telemetry.Store) ([]fusion.Record, error) {
	bindings := []fusion.Binding{fusion.AltitudeBinding, fusion.RollBinding}
	if o.gps {
		bindings = append(bindings, fusion.GPSBinding)
	}

	engine := fusion.NewEngine(images)
	for _, b := range bindings {
		series, _ := store.Series(b.Kind)
		if err := engine.Fuse(series, b); err != nil {
			return nil, fmt.Errorf("fusing %s: %w", b.Kind, err)
		}
		o.logger.Debug("channel fused", slog.String("channel", string(b.Kind)))
	}

	return engine.Records(), nil
}
