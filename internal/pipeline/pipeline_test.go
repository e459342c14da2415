package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/roman-kulish/flight-geotag/internal/align"
	"github.com/roman-kulish/flight-geotag/internal/capture"
	"github.com/roman-kulish/flight-geotag/internal/fusion"
	"github.com/roman-kulish/flight-geotag/internal/telemetry"
)

var rcField = telemetry.RCChannelField(10)

type failingSource struct{}

func (failingSource) Name() string { return "broken.BIN" }

func (failingSource) Decode(context.Context) (*telemetry.Log, error) {
	return nil, errors.New("corrupt header")
}

func field(name string, v float64) map[string]float64 {
	return map[string]float64{name: v}
}

func rcin(ts ...int64) []telemetry.Sample {
	var out []telemetry.Sample
	for i, t := range ts {
		level := 1900.0
		if i == len(ts)/2 {
			level = 1100 // single drop, the trigger
		}
		if i > len(ts)/2 {
			level = 1100
		}
		out = append(out, telemetry.Sample{Timestamp: t, Fields: field(rcField, level)})
	}
	return out
}

func newImages(ts ...int64) *capture.Timeline {
	records := make([]capture.ImageRecord, len(ts))
	for i, t := range ts {
		records[i] = capture.ImageRecord{Name: string(rune('a'+i)) + ".jpg", Timestamp: t}
	}
	return capture.NewTimeline(telemetry.Seconds, records)
}

func altitudes(records []fusion.Record) []float64 {
	out := make([]float64, len(records))
	for i, r := range records {
		out[i], _ = r.GroundAltitude()
	}
	return out
}

// flightLogs splits a flight into two decoded logs: the first holds the trigger, the second
// the rest of the sensor data.
func flightLogs() []LogSource {
	first := &telemetry.Log{
		Name: "00000001.BIN",
		Unit: telemetry.Seconds,
		Channels: map[telemetry.ChannelKind][]telemetry.Sample{
			telemetry.ChannelRCIn: rcin(998, 999, 1000, 1001, 1002),
			telemetry.ChannelBaro: {{Timestamp: 999, Fields: field(telemetry.FieldAltitude, 50)}},
			telemetry.ChannelAttitude: {
				{Timestamp: 999, Fields: field(telemetry.FieldRoll, 1.5)},
			},
		},
	}
	second := &telemetry.Log{
		Name: "00000002.BIN",
		Unit: telemetry.Seconds,
		Channels: map[telemetry.ChannelKind][]telemetry.Sample{
			telemetry.ChannelBaro: {{Timestamp: 1002, Fields: field(telemetry.FieldAltitude, 55)}},
			telemetry.ChannelAttitude: {
				{Timestamp: 1003, Fields: field(telemetry.FieldRoll, -3)},
			},
			telemetry.ChannelGPS: {
				{Timestamp: 1000, Fields: map[string]float64{telemetry.FieldGPSSource: 2, telemetry.FieldLatitude: 1, telemetry.FieldLongitude: 1}},
				{Timestamp: 1001, Fields: map[string]float64{telemetry.FieldGPSSource: 1, telemetry.FieldLatitude: 32.5, telemetry.FieldLongitude: 35.1}},
			},
		},
	}
	// the second log is listed first: ingestion order must not matter
	return []LogSource{DecodedLog{second}, DecodedLog{first}}
}

func TestOrchestrator_Run(t *testing.T) {
	images := newImages(1000, 1001, 1003)

	out, err := New(WithGPS(true), WithParallelism(2)).Run(context.Background(), images, flightLogs())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if out.Trigger == nil || out.Trigger.Timestamp != 1000 {
		t.Fatalf("expected trigger at 1000, got %+v", out.Trigger)
	}
	if out.Delta != 0 || out.Alignment.Direction != align.ShiftImages {
		t.Errorf("expected zero offset shift-images, got %d %s", out.Delta, out.Alignment.Direction)
	}
	if len(out.Records) != images.Len() {
		t.Fatalf("expected %d records, got %d", images.Len(), len(out.Records))
	}
	if diff := cmp.Diff([]float64{50, 55, 55}, altitudes(out.Records)); diff != "" {
		t.Errorf("altitudes mismatch (-want +got):\n%s", diff)
	}

	for i, r := range out.Records {
		lat, lon, ok := r.Position()
		if !ok || lat != 32.5 || lon != 35.1 {
			t.Errorf("record %d: expected auxiliary receiver position, got %v %v %v", i, lat, lon, ok)
		}
		if _, ok = r.Roll(); !ok {
			t.Errorf("record %d has no roll", i)
		}
	}

	if out.Samples[string(telemetry.ChannelBaro)] != 2 {
		t.Errorf("expected 2 BARO samples, got %d", out.Samples[string(telemetry.ChannelBaro)])
	}
}

func TestOrchestrator_RunShiftsWorkingCopyOnly(t *testing.T) {
	images := newImages(900, 901, 903)

	out, err := New().Run(context.Background(), images, flightLogs())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Delta != 100 {
		t.Errorf("expected delta 100, got %d", out.Delta)
	}
	if diff := cmp.Diff([]int64{1000, 1001, 1003}, []int64{out.Records[0].Timestamp, out.Records[1].Timestamp, out.Records[2].Timestamp}); diff != "" {
		t.Errorf("aligned timestamps mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int64{900, 901, 903}, images.Timestamps()); diff != "" {
		t.Errorf("caller timeline modified (-want +got):\n%s", diff)
	}
}

func TestOrchestrator_NormalizesLogUnits(t *testing.T) {
	micro := &telemetry.Log{
		Name: "micro.BIN",
		Unit: telemetry.Microseconds,
		Channels: map[telemetry.ChannelKind][]telemetry.Sample{
			telemetry.ChannelRCIn:     rcin(998_000_000, 999_000_000, 1000_400_000, 1001_000_000, 1002_000_000),
			telemetry.ChannelBaro:     {{Timestamp: 1_002_900_000, Fields: field(telemetry.FieldAltitude, 70)}},
			telemetry.ChannelAttitude: {{Timestamp: 999_000_000, Fields: field(telemetry.FieldRoll, 0)}},
		},
	}

	out, err := New().Run(context.Background(), newImages(1000, 1002), []LogSource{DecodedLog{micro}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Trigger.Timestamp != 1000 {
		t.Errorf("expected trigger floored to 1000s, got %d", out.Trigger.Timestamp)
	}
	if diff := cmp.Diff([]float64{70, 70}, altitudes(out.Records)); diff != "" {
		t.Errorf("altitudes mismatch (-want +got):\n%s", diff)
	}
}

func TestOrchestrator_ImageUnitMismatch(t *testing.T) {
	images := capture.NewTimeline(telemetry.Milliseconds, []capture.ImageRecord{{Name: "a.jpg", Timestamp: 1_000_000}})

	_, err := New().Run(context.Background(), images, flightLogs())
	if !errors.Is(err, telemetry.ErrTimestampUnitMismatch) {
		t.Fatalf("expected ErrTimestampUnitMismatch, got %v", err)
	}
}

func TestOrchestrator_ManualOffset(t *testing.T) {
	out, err := New(WithManualOffset(-2)).Run(context.Background(), newImages(1003), flightLogs())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Trigger != nil || !out.Alignment.Manual || out.Delta != 2 {
		t.Errorf("unexpected manual alignment: trigger=%v alignment=%+v", out.Trigger, out.Alignment)
	}
	if got := out.Records[0].Timestamp; got != 1001 {
		t.Errorf("expected image at 1001, got %d", got)
	}
}

func TestOrchestrator_Failures(t *testing.T) {
	tests := []struct {
		name    string
		images  *capture.Timeline
		sources []LogSource
		opts    []func(*Orchestrator)
		err     error
	}{
		{
			name:   "no sources",
			images: newImages(1000),
			err:    ErrNoSources,
		},
		{
			name:    "ambiguous offset",
			images:  newImages(1000 - 3*24*3600),
			sources: flightLogs(),
			err:     align.ErrAmbiguousTimeDelta,
		},
		{
			name:    "missing auxiliary gps",
			images:  newImages(1000),
			sources: flightLogs()[1:],
			opts:    []func(*Orchestrator){WithGPS(true)},
			err:     fusion.ErrMissingGPSSource,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := New(tt.opts...).Run(context.Background(), tt.images, tt.sources)
			if !errors.Is(err, tt.err) {
				t.Fatalf("expected %v, got %v", tt.err, err)
			}
			if out != nil {
				t.Errorf("expected no output on failure, got %+v", out)
			}
		})
	}

	t.Run("decode error", func(t *testing.T) {
		_, err := New().Run(context.Background(), newImages(1000), append(flightLogs(), failingSource{}))
		if err == nil {
			t.Fatal("expected decode error")
		}
	})
}
