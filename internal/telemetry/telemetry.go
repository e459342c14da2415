package telemetry

import (
	"errors"
	"fmt"
)

const (
	ChannelBaro     ChannelKind = "BARO" // Barometer
	ChannelAttitude ChannelKind = "ATT"  // Attitude
	ChannelGPS      ChannelKind = "GPS"  // GPS fixes, possibly from more than one receiver
	ChannelRCIn     ChannelKind = "RCIN" // RC input channel levels
)

// Field names as they appear on decoded flight controller messages.
const (
	FieldAltitude  = "Alt"  // BARO altitude in meters
	FieldRoll      = "Roll" // ATT roll angle in degrees
	FieldLatitude  = "Lat"  // GPS latitude in degrees
	FieldLongitude = "Lng"  // GPS longitude in degrees
	FieldGPSSource = "U"    // GPS receiver instance
)

var (
	// ErrTimestampUnitMismatch is returned when two timestamp columns with different
	// representations are compared or joined. Units are never coerced silently.
	ErrTimestampUnitMismatch = errors.New("timestamp unit mismatch")

	// ErrTimestampOverflow is returned when shifting or converting a timestamp
	// would overflow int64.
	ErrTimestampOverflow = errors.New("timestamp overflow")

	ErrUnknownUnit = errors.New("unknown timestamp unit")
)

// ChannelKind names a sensor channel of the flight log
type ChannelKind string

// RCChannelField returns the field name holding the level of the RC input channel n, e.g. C10.
func RCChannelField(n int) string {
	return fmt.Sprintf("C%d", n)
}

// Sample is a single decoded message of a channel
type Sample struct {
	Timestamp int64              // Timestamp in the unit of the owning series
	Fields    map[string]float64 // Message fields by name
}

// Field returns the value of the named field and whether it is present.
func (s Sample) Field(name string) (float64, bool) {
	v, ok := s.Fields[name]
	return v, ok
}

// Log is the output of decoding a single flight log: one batch of samples per channel,
// all sharing the same timestamp unit.
type Log struct {
	Name     string
	Unit     Unit
	Channels map[ChannelKind][]Sample
}

// CheckUnits returns ErrTimestampUnitMismatch when a and b differ. what describes the two
// columns being compared and ends up in the error message.
func CheckUnits(a, b Unit, what string) error {
	if a != b {
		return fmt.Errorf("%s: %s vs %s: %w", what, a, b, ErrTimestampUnitMismatch)
	}
	return nil
}
