package trigger

import (
	"errors"
	"testing"

	"github.com/roman-kulish/flight-geotag/internal/telemetry"
)

var field = telemetry.RCChannelField(DefaultChannel)

func rcSeries(start int64, levels ...float64) telemetry.Series {
	s := telemetry.Series{Kind: telemetry.ChannelRCIn, Unit: telemetry.Seconds}
	for i, level := range levels {
		s.Samples = append(s.Samples, telemetry.Sample{
			Timestamp: start + int64(i),
			Fields:    map[string]float64{field: level},
		})
	}
	return s
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name   string
		levels []float64
		index  int
		drops  int
	}{
		{
			// a single drop needs no disambiguation
			name:   "single drop",
			levels: []float64{100, 100, 180, 180, 100, 100, 100, 180},
			index:  4,
			drops:  1,
		},
		{
			// drops at 1 (deepest, paired with climb at 2) and 5 (paired with climb at 9)
			name:   "most isolated drop wins over first and deepest",
			levels: []float64{200, 100, 180, 180, 180, 100, 100, 100, 100, 180},
			index:  5,
			drops:  2,
		},
		{
			name:   "equal isolation keeps earliest",
			levels: []float64{180, 100, 180, 100, 180},
			index:  1,
			drops:  2,
		},
		{
			name:   "no drops falls back to smallest difference",
			levels: []float64{100, 120, 125, 125},
			index:  3,
			drops:  0,
		},
		{
			name:   "flat channel",
			levels: []float64{100, 100, 100},
			index:  1,
			drops:  0,
		},
		{
			name:   "drops without climbs",
			levels: []float64{180, 150, 100},
			index:  1,
			drops:  2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Detect(rcSeries(1000, tt.levels...), field)
			if err != nil {
				t.Fatalf("detect: %v", err)
			}
			if got.Index != tt.index {
				t.Errorf("expected index %d, got %d", tt.index, got.Index)
			}
			if got.Timestamp != 1000+int64(tt.index) {
				t.Errorf("expected timestamp %d, got %d", 1000+tt.index, got.Timestamp)
			}
			if got.Drops != tt.drops {
				t.Errorf("expected %d drops, got %d", tt.drops, got.Drops)
			}
		})
	}
}

func TestDetect_NoTrigger(t *testing.T) {
	tests := []struct {
		name   string
		series telemetry.Series
	}{
		{"empty", rcSeries(0)},
		{"single sample", rcSeries(0, 100)},
		{"missing field", telemetry.Series{
			Kind: telemetry.ChannelRCIn,
			Samples: []telemetry.Sample{
				{Timestamp: 1, Fields: map[string]float64{"C1": 100}},
				{Timestamp: 2, Fields: map[string]float64{"C1": 120}},
			},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Detect(tt.series, field); !errors.Is(err, ErrNoTriggerFound) {
				t.Errorf("expected ErrNoTriggerFound, got %v", err)
			}
		})
	}
}
