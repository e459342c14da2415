// Package trigger locates the shutter trigger event in an RC input channel.
//
// The camera trigger is wired to an RC channel, so the moment image capture began shows up in
// the flight log as a level drop on that channel. Noise on the channel produces short drop/climb
// pairs, while the genuine transition is an isolated, long-lived level change.
package trigger

import (
	"errors"
	"fmt"

	"github.com/roman-kulish/flight-geotag/internal/telemetry"
)

// DefaultChannel is the RC input channel the shutter trigger is wired to
const DefaultChannel = 10

// ErrNoTriggerFound is returned when the channel holds no detectable transition
var ErrNoTriggerFound = errors.New("no trigger found")

// Trigger is the detected shutter trigger event
type Trigger struct {
	Timestamp int64 // Timestamp of the selected drop sample
	Index     int   // Index of the selected drop sample within the series
	Drops     int   // Number of level drops on the channel
	Climbs    int   // Number of level climbs on the channel
}

// Detect scans field of the RC input series and returns the most significant drop.
//
// With fewer than two drops the only drop, or the first sample with the smallest difference
// when nothing drops, is returned. Otherwise drops and climbs are paired positionally in
// chronological order, the longer list truncated to the length of the shorter one, and the drop
// whose paired climb is farthest away in index terms wins. Ties go to the earliest drop.
func Detect(series telemetry.Series, field string) (Trigger, error) {
	if series.Len() < 2 {
		return Trigger{}, fmt.Errorf("channel %s field %s: %d samples: %w", series.Kind, field, series.Len(), ErrNoTriggerFound)
	}

	levels := make([]float64, series.Len())
	for i, sample := range series.Samples {
		v, ok := sample.Field(field)
		if !ok {
			return Trigger{}, fmt.Errorf("channel %s sample %d has no field %s: %w", series.Kind, i, field, ErrNoTriggerFound)
		}
		levels[i] = v
	}

	// diff[i] is the change from sample i-1 to sample i; index 0 has no difference
	var drops, climbs []int
	minIdx := 1
	for i := 1; i < len(levels); i++ {
		d := levels[i] - levels[i-1]
		switch {
		case d < 0:
			drops = append(drops, i)
		case d > 0:
			climbs = append(climbs, i)
		}
		if d < levels[minIdx]-levels[minIdx-1] {
			minIdx = i
		}
	}

	idx := minIdx
	if len(drops) > 1 {
		idx = mostIsolatedDrop(drops, climbs)
	}

	return Trigger{
		Timestamp: series.Samples[idx].Timestamp,
		Index:     idx,
		Drops:     len(drops),
		Climbs:    len(climbs),
	}, nil
}

// mostIsolatedDrop pairs drops and climbs by position and returns the drop with the largest
// index distance to its climb. Without any climb the first drop is returned.
func mostIsolatedDrop(drops, climbs []int) int {
	n := min(len(drops), len(climbs))
	if n == 0 {
		return drops[0]
	}

	best, bestDist := drops[0], -1
	for i := 0; i < n; i++ {
		dist := drops[i] - climbs[i]
		if dist < 0 {
			dist = -dist
		}
		if dist > bestDist {
			best, bestDist = drops[i], dist
		}
	}
	return best
}
