// Package capture models the image capture timeline supplied by the camera side.
package capture

import (
	"errors"
	"fmt"

	"github.com/roman-kulish/flight-geotag/internal/telemetry"
)

// ErrEmptyTimeline is returned when an operation needs at least one image
var ErrEmptyTimeline = errors.New("image timeline is empty")

// ImageRecord is a single captured image
type ImageRecord struct {
	Name      string            `json:"name"`               // Image file name
	Timestamp int64             `json:"timestamp"`          // Capture time in the unit of the owning timeline
	Metadata  map[string]string `json:"metadata,omitempty"` // Opaque metadata carried through to the output
}

// Timeline is the ordered collection of image records. Only the timestamp column is ever
// rewritten; records are never reordered or dropped.
type Timeline struct {
	Unit    telemetry.Unit
	Records []ImageRecord
}

// NewTimeline creates a timeline of records in the given unit
func NewTimeline(unit telemetry.Unit, records []ImageRecord) *Timeline {
	return &Timeline{Unit: unit, Records: records}
}

// Len returns the number of images
func (t *Timeline) Len() int {
	return len(t.Records)
}

// Timestamps returns a copy of the timestamp column in record order
func (t *Timeline) Timestamps() []int64 {
	ts := make([]int64, len(t.Records))
	for i, r := range t.Records {
		ts[i] = r.Timestamp
	}
	return ts
}

// MinTimestamp returns the earliest capture time
func (t *Timeline) MinTimestamp() (int64, error) {
	if len(t.Records) == 0 {
		return 0, ErrEmptyTimeline
	}
	m := t.Records[0].Timestamp
	for _, r := range t.Records[1:] {
		m = min(m, r.Timestamp)
	}
	return m, nil
}

// Shift adds offset to every capture time. The new column is built first and only swapped in
// once every value was computed, so a failed shift leaves the timeline untouched.
func (t *Timeline) Shift(offset int64) error {
	if offset == 0 {
		return nil
	}

	shifted := make([]int64, len(t.Records))
	for i, r := range t.Records {
		ts, err := telemetry.ShiftTimestamp(r.Timestamp, offset)
		if err != nil {
			return fmt.Errorf("image %d (%s): %w", i, r.Name, err)
		}
		shifted[i] = ts
	}

	for i := range t.Records {
		t.Records[i].Timestamp = shifted[i]
	}
	return nil
}
