// Package fusion joins the aligned image timeline with the sensor channels.
package fusion

import (
	"cmp"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/roman-kulish/flight-geotag/internal/capture"
	"github.com/roman-kulish/flight-geotag/internal/telemetry"
)

// Output field names. Downstream consumers depend on them.
const (
	FieldGroundAltitude = "ground_altitude"
	FieldRoll           = "roll"
	FieldLat            = "lat"
	FieldLon            = "lon"
)

// AuxiliaryGPSSource is the receiver instance designated as the position source of record
const AuxiliaryGPSSource = 1

var (
	// ErrMissingGPSSource is returned when no GPS sample comes from the auxiliary receiver.
	// Fixes from another receiver are never used instead.
	ErrMissingGPSSource = errors.New("auxiliary GPS receiver not found in log")

	ErrEmptyChannel = errors.New("channel has no samples")
	ErrMissingField = errors.New("sample is missing a bound field")
)

// Binding describes how a channel is fused: which source fields are copied under which output
// names, and which samples are eligible.
type Binding struct {
	Kind   telemetry.ChannelKind
	Fields map[string]string // Source field name to output field name
	Filter func(telemetry.Sample) bool
	// EmptyErr is returned when no sample is eligible; defaults to ErrEmptyChannel
	EmptyErr error
}

var (
	AltitudeBinding = Binding{
		Kind:   telemetry.ChannelBaro,
		Fields: map[string]string{telemetry.FieldAltitude: FieldGroundAltitude},
	}

	RollBinding = Binding{
		Kind:   telemetry.ChannelAttitude,
		Fields: map[string]string{telemetry.FieldRoll: FieldRoll},
	}

	GPSBinding = Binding{
		Kind: telemetry.ChannelGPS,
		Fields: map[string]string{
			telemetry.FieldLatitude:  FieldLat,
			telemetry.FieldLongitude: FieldLon,
		},
		Filter:   IsGPSSource(AuxiliaryGPSSource),
		EmptyErr: ErrMissingGPSSource,
	}
)

// IsGPSSource returns a filter keeping GPS samples of the given receiver instance
func IsGPSSource(source int) func(telemetry.Sample) bool {
	return func(s telemetry.Sample) bool {
		v, ok := s.Field(telemetry.FieldGPSSource)
		return ok && v == float64(source)
	}
}

// Record is an image enriched with the fused sensor fields
type Record struct {
	capture.ImageRecord
	Fields map[string]float64 `json:"fields"`
}

// Value returns the named fused field and whether it was set
func (r Record) Value(name string) (float64, bool) {
	v, ok := r.Fields[name]
	return v, ok
}

// GroundAltitude returns the fused barometric altitude
func (r Record) GroundAltitude() (float64, bool) {
	return r.Value(FieldGroundAltitude)
}

// Roll returns the fused roll angle
func (r Record) Roll() (float64, bool) {
	return r.Value(FieldRoll)
}

// Position returns the fused auxiliary receiver position
func (r Record) Position() (lat, lon float64, ok bool) {
	lat, okLat := r.Value(FieldLat)
	lon, okLon := r.Value(FieldLon)
	return lat, lon, okLat && okLon
}

// Engine fuses channels onto one record per image. Channels are fused independently and
// merged by image index, so the order in which they are fused does not matter.
type Engine struct {
	unit    telemetry.Unit
	records []Record
	order   []int   // image indices sorted by timestamp
	queries []int64 // image timestamps in that order
}

// NewEngine creates an Engine producing one record per image of the timeline, in timeline order.
func NewEngine(images *capture.Timeline) *Engine {
	e := Engine{
		unit:    images.Unit,
		records: make([]Record, images.Len()),
		order:   make([]int, images.Len()),
		queries: make([]int64, images.Len()),
	}

	for i, img := range images.Records {
		e.records[i] = Record{ImageRecord: img, Fields: make(map[string]float64)}
		e.order[i] = i
	}
	slices.SortStableFunc(e.order, func(a, b int) int {
		return cmp.Compare(images.Records[a].Timestamp, images.Records[b].Timestamp)
	})
	for i, idx := range e.order {
		e.queries[i] = images.Records[idx].Timestamp
	}

	return &e
}

// Fuse copies the bound fields of the nearest eligible sample onto every record.
func (e *Engine) Fuse(series telemetry.Series, b Binding) error {
	eligible := series
	if b.Filter != nil {
		eligible = series.Filter(b.Filter)
	}
	if eligible.Len() == 0 {
		emptyErr := b.EmptyErr
		if emptyErr == nil {
			emptyErr = ErrEmptyChannel
		}
		return fmt.Errorf("channel %s: %d samples, %d eligible: %w", series.Kind, series.Len(), eligible.Len(), emptyErr)
	}

	if err := telemetry.CheckUnits(e.unit, series.Unit, fmt.Sprintf("image timestamps vs channel %s", series.Kind)); err != nil {
		return err
	}

	matches := Nearest(e.queries, eligible.Timestamps())

	// resolve every match before touching the records
	values := make([]map[string]float64, len(matches))
	for qi, si := range matches {
		sample := eligible.Samples[si]
		values[qi] = make(map[string]float64, len(b.Fields))
		for src, dst := range b.Fields {
			v, ok := sample.Field(src)
			if !ok {
				return fmt.Errorf("channel %s sample at %d has no field %s: %w", series.Kind, sample.Timestamp, src, ErrMissingField)
			}
			values[qi][dst] = v
		}
	}

	for qi, idx := range e.order {
		maps.Copy(e.records[idx].Fields, values[qi])
	}
	return nil
}

// Records returns the fused records in timeline order
func (e *Engine) Records() []Record {
	return e.records
}
