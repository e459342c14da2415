// Package align reconciles the image capture clock with the flight log clock.
package align

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/flight-geotag/internal/capture"
	"github.com/roman-kulish/flight-geotag/internal/telemetry"
)

const (
	ShiftImages Direction = iota + 1 // image timestamps moved onto the log clock
	ShiftLogs                        // log timestamps re-anchored to the image clock
	Failed                           // no correction applied
)

const (
	Negligible  MagnitudeClass = iota + 1 // within MaxBias, treated as a fixed camera clock bias
	Implausible                           // between MaxBias and MinInvalid, cannot be diagnosed
	Invalid                               // MinInvalid or more, the log clock is assumed unset
)

const (
	defaultMaxBiasDays     = 1
	defaultMinInvalidDays  = 10
	defaultMaxDurationDays = 1
)

var (
	// ErrAmbiguousTimeDelta is returned when the offset is too large to be a simple bias but
	// too small to be diagnosed as an unset log clock.
	ErrAmbiguousTimeDelta = errors.New("ambiguous time delta between images and logs")

	// ErrUnrecoverableTimeDelta is returned when the offset is invalid but the log spans more
	// than a day, so no single correction can be applied safely.
	ErrUnrecoverableTimeDelta = errors.New("unrecoverable time delta between images and logs")
)

// Direction tells which timeline was shifted
type Direction int

func (d Direction) String() string {
	switch d {
	case ShiftImages:
		return "shift-images"
	case ShiftLogs:
		return "shift-logs"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// MagnitudeClass classifies the raw offset between trigger and first image
type MagnitudeClass int

func (c MagnitudeClass) String() string {
	switch c {
	case Negligible:
		return "negligible"
	case Implausible:
		return "implausible"
	case Invalid:
		return "invalid"
	}
	return "unknown"
}

// Result is the outcome of a single alignment. It is produced once per run and threaded
// through the pipeline explicitly.
type Result struct {
	Offset     int64          // Offset applied to the images; 0 when the logs were re-anchored
	Direction  Direction      // Which timeline was shifted
	Class      MagnitudeClass // Classification of the raw trigger offset
	RawOffset  int64          // Trigger timestamp minus first image timestamp, before any correction
	LogBias    int64          // Bias added to every log sample, ShiftLogs only
	Trigger    int64          // Trigger timestamp on the log clock
	ImageStart int64          // First image timestamp before alignment
	Unit       telemetry.Unit // Unit of every value above
	Manual     bool           // Offset was supplied by the caller instead of detected
}

// Delta returns the absolute applied offset, a data quality indicator for the run
func (r Result) Delta() int64 {
	if r.Offset < 0 {
		return -r.Offset
	}
	return r.Offset
}

// LogValue implements slog.LogValuer
func (r Result) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("direction", r.Direction.String()),
		slog.String("class", r.Class.String()),
		slog.Int64("offset", r.Offset),
		slog.Int64("rawOffset", r.RawOffset),
		slog.Int64("logBias", r.LogBias),
		slog.String("unit", r.Unit.String()),
		slog.Bool("manual", r.Manual),
	)
}

// WithMaxBiasDays sets the largest offset, in days, accepted as a camera clock bias
func WithMaxBiasDays(days int64) func(*Aligner) {
	return func(a *Aligner) {
		a.maxBiasDays = days
	}
}

// WithMinInvalidDays sets the offset, in days, from which the log clock is considered unset
func WithMinInvalidDays(days int64) func(*Aligner) {
	return func(a *Aligner) {
		a.minInvalidDays = days
	}
}

// WithMaxDurationDays sets the longest log, in days, that may be re-anchored to the image clock
func WithMaxDurationDays(days int64) func(*Aligner) {
	return func(a *Aligner) {
		a.maxDurationDays = days
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) func(*Aligner) {
	return func(a *Aligner) {
		a.logger = logger
	}
}

// Aligner computes and applies the clock offset between images and logs
type Aligner struct {
	maxBiasDays     int64
	minInvalidDays  int64
	maxDurationDays int64

	logger *slog.Logger
}

// New creates an Aligner
func New(options ...func(*Aligner)) *Aligner {
	a := Aligner{
		maxBiasDays:     defaultMaxBiasDays,
		minInvalidDays:  defaultMinInvalidDays,
		maxDurationDays: defaultMaxDurationDays,
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&a)
	}

	return &a
}

// Classify returns the magnitude class of offset expressed in unit. Both day thresholds are
// inclusive on the lower class: exactly MaxBias days is negligible, exactly MinInvalid days is
// invalid.
func (a *Aligner) Classify(offset int64, unit telemetry.Unit) MagnitudeClass {
	abs := offset
	if abs < 0 {
		abs = -abs
	}

	switch {
	case abs <= unit.Days(a.maxBiasDays):
		return Negligible
	case abs < unit.Days(a.minInvalidDays):
		return Implausible
	default:
		return Invalid
	}
}

// Align compares the trigger timestamp to the first image and shifts either the images or
// every log channel. On error neither timeline is modified.
func (a *Aligner) Align(trigger int64, images *capture.Timeline, store *telemetry.Store) (Result, error) {
	unit, err := a.checkUnits(images, store)
	if err != nil {
		return Result{Direction: Failed}, err
	}

	imgMin, err := images.MinTimestamp()
	if err != nil {
		return Result{Direction: Failed}, fmt.Errorf("aligning: %w", err)
	}

	offset := trigger - imgMin
	res := Result{
		Direction:  Failed,
		Class:      a.Classify(offset, unit),
		RawOffset:  offset,
		Trigger:    trigger,
		ImageStart: imgMin,
		Unit:       unit,
	}

	switch res.Class {
	case Negligible:
		if err = images.Shift(offset); err != nil {
			return res, fmt.Errorf("shifting images by %d%s: %w", offset, unit, err)
		}
		res.Offset = offset
		res.Direction = ShiftImages

	case Implausible:
		return res, fmt.Errorf("offset %d%s (%s) between trigger %d and first image %d: %w",
			offset, unit, humanDays(offset, unit), trigger, imgMin, ErrAmbiguousTimeDelta)

	case Invalid:
		a.logger.Warn("time delta is too big, log clock is probably unset",
			slog.Int64("offset", offset), slog.String("unit", unit.String()))

		_, last, _ := store.TimeRange()
		if last > unit.Days(a.maxDurationDays) {
			return res, fmt.Errorf("offset %d%s with log duration %s: %w",
				offset, unit, humanDays(last, unit), ErrUnrecoverableTimeDelta)
		}

		bias := imgMin - trigger
		a.logger.Info("aligning log time backwards based on images",
			slog.String("logDuration", humanDays(last, unit)), slog.Int64("bias", bias))

		if err = store.Shift(bias); err != nil {
			return res, fmt.Errorf("shifting logs by %d%s: %w", bias, unit, err)
		}
		res.LogBias = bias
		res.Direction = ShiftLogs
	}

	return res, nil
}

// Apply shifts the images by a caller supplied offset, skipping trigger detection.
func (a *Aligner) Apply(offset int64, images *capture.Timeline, store *telemetry.Store) (Result, error) {
	unit, err := a.checkUnits(images, store)
	if err != nil {
		return Result{Direction: Failed}, err
	}

	imgMin, err := images.MinTimestamp()
	if err != nil {
		return Result{Direction: Failed}, fmt.Errorf("aligning: %w", err)
	}

	res := Result{
		Direction:  Failed,
		Class:      a.Classify(offset, unit),
		RawOffset:  offset,
		Trigger:    imgMin + offset,
		ImageStart: imgMin,
		Unit:       unit,
		Manual:     true,
	}
	if err = images.Shift(offset); err != nil {
		return res, fmt.Errorf("shifting images by %d%s: %w", offset, unit, err)
	}
	res.Offset = offset
	res.Direction = ShiftImages
	return res, nil
}

func (a *Aligner) checkUnits(images *capture.Timeline, store *telemetry.Store) (telemetry.Unit, error) {
	unit, err := store.Unit()
	if err != nil {
		return 0, fmt.Errorf("log channels: %w", err)
	}
	if err = telemetry.CheckUnits(images.Unit, unit, "image timestamps vs log timestamps"); err != nil {
		return 0, err
	}
	return unit, nil
}

// humanDays renders a tick count as days, hours, minutes and seconds
func humanDays(ticks int64, unit telemetry.Unit) string {
	secs, _ := unit.Convert(ticks, telemetry.Seconds)
	sign := ""
	if secs < 0 {
		sign, secs = "-", -secs
	}
	days, rem := secs/86400, secs%86400
	return fmt.Sprintf("%s%s days %02d:%02d:%02d", sign, humanize.Comma(days), rem/3600, rem%3600/60, rem%60)
}
