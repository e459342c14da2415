package align

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/roman-kulish/flight-geotag/internal/capture"
	"github.com/roman-kulish/flight-geotag/internal/telemetry"
)

const day = 24 * 3600

func newImages(ts ...int64) *capture.Timeline {
	records := make([]capture.ImageRecord, len(ts))
	for i, t := range ts {
		records[i] = capture.ImageRecord{Name: "img", Timestamp: t}
	}
	return capture.NewTimeline(telemetry.Seconds, records)
}

func newStore(t *testing.T, ts ...int64) *telemetry.Store {
	t.Helper()

	samples := make([]telemetry.Sample, len(ts))
	for i, v := range ts {
		samples[i] = telemetry.Sample{Timestamp: v, Fields: map[string]float64{telemetry.FieldAltitude: 1}}
	}

	s := telemetry.NewStore()
	if err := s.Ingest(telemetry.ChannelBaro, telemetry.Seconds, samples); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if err := s.Ingest(telemetry.ChannelRCIn, telemetry.Seconds, samples); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	return s
}

func storeTimestamps(s *telemetry.Store, kind telemetry.ChannelKind) []int64 {
	series, _ := s.Series(kind)
	return series.Timestamps()
}

func TestAlign_SmallBiasShiftsImages(t *testing.T) {
	images := newImages(1_700_000_010, 1_700_000_000, 1_700_000_020)
	store := newStore(t, 1_700_000_100, 1_700_000_200)

	res, err := New().Align(1_700_000_105, images, store)
	if err != nil {
		t.Fatalf("align: %v", err)
	}

	if res.Direction != ShiftImages || res.Class != Negligible {
		t.Errorf("expected shift-images/negligible, got %s/%s", res.Direction, res.Class)
	}
	if res.Offset != 105 || res.Delta() != 105 {
		t.Errorf("expected offset 105, got %d (delta %d)", res.Offset, res.Delta())
	}
	if diff := cmp.Diff([]int64{1_700_000_115, 1_700_000_105, 1_700_000_125}, images.Timestamps()); diff != "" {
		t.Errorf("images mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int64{1_700_000_100, 1_700_000_200}, storeTimestamps(store, telemetry.ChannelBaro)); diff != "" {
		t.Errorf("logs must not move (-want +got):\n%s", diff)
	}
}

func TestAlign_Idempotent(t *testing.T) {
	images := newImages(1_000, 1_001, 1_003)
	store := newStore(t, 900, 1_500)
	aligner := New()

	first, err := aligner.Align(1_060, images, store)
	if err != nil {
		t.Fatalf("first pass: %v", err)
	}
	if first.Offset != 60 {
		t.Fatalf("expected first offset 60, got %d", first.Offset)
	}
	shifted := images.Timestamps()

	second, err := aligner.Align(1_060, images, store)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if second.Offset != 0 || second.Class != Negligible {
		t.Errorf("expected negligible zero offset on second pass, got %d (%s)", second.Offset, second.Class)
	}
	if diff := cmp.Diff(shifted, images.Timestamps()); diff != "" {
		t.Errorf("second pass moved images (-want +got):\n%s", diff)
	}
}

func TestAlign_Boundaries(t *testing.T) {
	const imgMin = 2_000_000_000

	tests := []struct {
		name      string
		offset    int64
		class     MagnitudeClass
		direction Direction
		err       error
	}{
		{"zero", 0, Negligible, ShiftImages, nil},
		{"exactly one day", day, Negligible, ShiftImages, nil},
		{"exactly minus one day", -day, Negligible, ShiftImages, nil},
		{"one day and a second", day + 1, Implausible, Failed, ErrAmbiguousTimeDelta},
		{"just under ten days", 10*day - 1, Implausible, Failed, ErrAmbiguousTimeDelta},
		{"minus just under ten days", -(10*day - 1), Implausible, Failed, ErrAmbiguousTimeDelta},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			images := newImages(imgMin, imgMin+5)
			store := newStore(t, imgMin, imgMin+10)

			res, err := New().Align(imgMin+tt.offset, images, store)
			if !errors.Is(err, tt.err) {
				t.Fatalf("expected error %v, got %v", tt.err, err)
			}
			if res.Class != tt.class || res.Direction != tt.direction {
				t.Errorf("expected %s/%s, got %s/%s", tt.class, tt.direction, res.Class, res.Direction)
			}
			if res.RawOffset != tt.offset {
				t.Errorf("expected raw offset %d, got %d", tt.offset, res.RawOffset)
			}
			if tt.err != nil && images.Records[0].Timestamp != imgMin {
				t.Errorf("failed alignment moved images to %d", images.Records[0].Timestamp)
			}
		})
	}
}

func TestAlign_UnsetLogClockShiftsLogs(t *testing.T) {
	const trigger = 120

	// exactly ten days is already invalid
	for _, imgMin := range []int64{1_700_000_000, trigger + 10*day} {
		images := newImages(imgMin, imgMin+3)
		store := newStore(t, trigger-20, trigger, trigger+600)

		res, err := New().Align(trigger, images, store)
		if err != nil {
			t.Fatalf("images at %d: align: %v", imgMin, err)
		}
		if res.Direction != ShiftLogs || res.Class != Invalid {
			t.Errorf("images at %d: expected shift-logs/invalid, got %s/%s", imgMin, res.Direction, res.Class)
		}
		if res.Offset != 0 || res.Delta() != 0 {
			t.Errorf("images at %d: expected zero applied offset, got %d", imgMin, res.Offset)
		}
		if res.LogBias != imgMin-trigger {
			t.Errorf("images at %d: expected bias %d, got %d", imgMin, imgMin-trigger, res.LogBias)
		}

		want := []int64{imgMin - 20, imgMin, imgMin + 600}
		for _, kind := range []telemetry.ChannelKind{telemetry.ChannelBaro, telemetry.ChannelRCIn} {
			if diff := cmp.Diff(want, storeTimestamps(store, kind)); diff != "" {
				t.Errorf("images at %d: channel %s mismatch (-want +got):\n%s", imgMin, kind, diff)
			}
		}
		if diff := cmp.Diff([]int64{imgMin, imgMin + 3}, images.Timestamps()); diff != "" {
			t.Errorf("images at %d: images must not move (-want +got):\n%s", imgMin, diff)
		}
	}
}

func TestAlign_UnrecoverableWhenLogIsLong(t *testing.T) {
	images := newImages(1_700_000_000)
	store := newStore(t, 10, 100, 2*day)

	res, err := New().Align(100, images, store)
	if !errors.Is(err, ErrUnrecoverableTimeDelta) {
		t.Fatalf("expected ErrUnrecoverableTimeDelta, got %v", err)
	}
	if res.Direction != Failed || res.Class != Invalid {
		t.Errorf("expected failed/invalid, got %s/%s", res.Direction, res.Class)
	}
	if diff := cmp.Diff([]int64{10, 100, 2 * day}, storeTimestamps(store, telemetry.ChannelBaro)); diff != "" {
		t.Errorf("logs must not move (-want +got):\n%s", diff)
	}
}

func TestAlign_UnitMismatch(t *testing.T) {
	images := capture.NewTimeline(telemetry.Milliseconds, []capture.ImageRecord{{Timestamp: 1_000_000}})
	store := newStore(t, 1_000)

	if _, err := New().Align(1_000, images, store); !errors.Is(err, telemetry.ErrTimestampUnitMismatch) {
		t.Fatalf("expected ErrTimestampUnitMismatch, got %v", err)
	}
	if images.Records[0].Timestamp != 1_000_000 {
		t.Errorf("images moved on unit mismatch")
	}
}

func TestAlign_CustomThresholds(t *testing.T) {
	images := newImages(1_000_000)
	store := newStore(t, 1_000_000)

	_, err := New(WithMaxBiasDays(2), WithMinInvalidDays(5)).Align(1_000_000+2*day, images, store)
	if err != nil {
		t.Fatalf("expected two days to be accepted, got %v", err)
	}

	a := New(WithMaxBiasDays(2), WithMinInvalidDays(5))
	if c := a.Classify(5*day, telemetry.Seconds); c != Invalid {
		t.Errorf("expected invalid, got %s", c)
	}
	if c := a.Classify(5*day*1000-1, telemetry.Milliseconds); c != Implausible {
		t.Errorf("expected implausible, got %s", c)
	}
}

func TestApply_ManualOffset(t *testing.T) {
	images := newImages(500, 510)
	store := newStore(t, 400, 600)

	res, err := New().Apply(-30, images, store)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !res.Manual || res.Direction != ShiftImages || res.Delta() != 30 {
		t.Errorf("unexpected result %+v", res)
	}
	if diff := cmp.Diff([]int64{470, 480}, images.Timestamps()); diff != "" {
		t.Errorf("images mismatch (-want +got):\n%s", diff)
	}
}
