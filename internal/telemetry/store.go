package telemetry

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
)

// Series is the time ordered sample sequence of a single channel
type Series struct {
	Kind    ChannelKind
	Unit    Unit
	Samples []Sample
}

// Len returns the number of samples in the series
func (s Series) Len() int {
	return len(s.Samples)
}

// Timestamps returns a copy of the timestamp column
func (s Series) Timestamps() []int64 {
	ts := make([]int64, len(s.Samples))
	for i, sample := range s.Samples {
		ts[i] = sample.Timestamp
	}
	return ts
}

// Filter returns a new series holding only the samples for which keep returns true.
func (s Series) Filter(keep func(Sample) bool) Series {
	out := Series{Kind: s.Kind, Unit: s.Unit}
	for _, sample := range s.Samples {
		if keep(sample) {
			out.Samples = append(out.Samples, sample)
		}
	}
	return out
}

// mapTimestamps materialises a new series with fn applied to every timestamp. The receiver is
// left untouched, so a failure half way leaves no partially rewritten column behind.
func (s Series) mapTimestamps(unit Unit, fn func(int64) (int64, error)) (*Series, error) {
	samples := make([]Sample, len(s.Samples))
	for i, sample := range s.Samples {
		ts, err := fn(sample.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("channel %s sample %d: %w", s.Kind, i, err)
		}
		samples[i] = Sample{Timestamp: ts, Fields: sample.Fields}
	}
	return &Series{Kind: s.Kind, Unit: unit, Samples: samples}, nil
}

// Store holds the series of every channel for the duration of a single pipeline run.
// It is not safe for concurrent use.
type Store struct {
	series map[ChannelKind]*Series
}

// NewStore creates an empty Store
func NewStore() *Store {
	return &Store{series: make(map[ChannelKind]*Series)}
}

// Ingest appends a batch of samples to the channel and re-sorts it by timestamp. The sort is
// stable: samples sharing a timestamp keep their ingestion order.
func (s *Store) Ingest(kind ChannelKind, unit Unit, samples []Sample) error {
	if !unit.Valid() {
		return fmt.Errorf("ingesting channel %s: %s: %w", kind, unit, ErrUnknownUnit)
	}

	series, ok := s.series[kind]
	if !ok {
		series = &Series{Kind: kind, Unit: unit}
		s.series[kind] = series
	}
	if err := CheckUnits(series.Unit, unit, fmt.Sprintf("ingesting channel %s", kind)); err != nil {
		return err
	}

	series.Samples = append(series.Samples, samples...)
	slices.SortStableFunc(series.Samples, func(a, b Sample) int {
		return cmp.Compare(a.Timestamp, b.Timestamp)
	})
	return nil
}

// IngestLog ingests every channel of a decoded log
func (s *Store) IngestLog(l *Log) error {
	for _, kind := range slices.Sorted(maps.Keys(l.Channels)) {
		if err := s.Ingest(kind, l.Unit, l.Channels[kind]); err != nil {
			return fmt.Errorf("log %s: %w", l.Name, err)
		}
	}
	return nil
}

// Series returns the series of the channel. The returned value shares its samples with the
// store and must be treated as read-only.
func (s *Store) Series(kind ChannelKind) (Series, bool) {
	series, ok := s.series[kind]
	if !ok {
		return Series{Kind: kind}, false
	}
	return *series, true
}

// Kinds returns the channels held by the store in a stable order
func (s *Store) Kinds() []ChannelKind {
	return slices.Sorted(maps.Keys(s.series))
}

// Len returns the number of samples of the channel
func (s *Store) Len(kind ChannelKind) int {
	if series, ok := s.series[kind]; ok {
		return series.Len()
	}
	return 0
}

// Unit returns the unit shared by every channel. It fails with ErrTimestampUnitMismatch when
// the channels have not been normalized to a single representation.
func (s *Store) Unit() (Unit, error) {
	var unit Unit
	for _, kind := range s.Kinds() {
		series := s.series[kind]
		if unit == 0 {
			unit = series.Unit
			continue
		}
		if err := CheckUnits(unit, series.Unit, fmt.Sprintf("channel %s", kind)); err != nil {
			return 0, err
		}
	}
	return unit, nil
}

// TimestampsAs returns the timestamp column of the channel converted to unit
func (s *Store) TimestampsAs(kind ChannelKind, unit Unit) ([]int64, error) {
	series, ok := s.series[kind]
	if !ok {
		return nil, nil
	}

	converted, err := series.mapTimestamps(unit, func(ts int64) (int64, error) {
		return series.Unit.Convert(ts, unit)
	})
	if err != nil {
		return nil, err
	}
	return converted.Timestamps(), nil
}

// Normalize converts every channel to unit. Either every channel is converted or, on error,
// none is.
func (s *Store) Normalize(unit Unit) error {
	if !unit.Valid() {
		return fmt.Errorf("normalizing: %s: %w", unit, ErrUnknownUnit)
	}
	return s.rewrite(unit, func(series *Series) func(int64) (int64, error) {
		return func(ts int64) (int64, error) {
			return series.Unit.Convert(ts, unit)
		}
	})
}

// Shift adds bias to the timestamp of every sample of every channel. New columns are built for
// all channels before any of them is swapped in, so the shift is all-or-nothing.
func (s *Store) Shift(bias int64) error {
	if bias == 0 {
		return nil
	}
	return s.rewrite(0, func(*Series) func(int64) (int64, error) {
		return func(ts int64) (int64, error) {
			return ShiftTimestamp(ts, bias)
		}
	})
}

// rewrite replaces every series with the result of applying the timestamp function returned
// by fn. A zero unit keeps the series unit.
func (s *Store) rewrite(unit Unit, fn func(*Series) func(int64) (int64, error)) error {
	next := make(map[ChannelKind]*Series, len(s.series))
	for kind, series := range s.series {
		u := unit
		if u == 0 {
			u = series.Unit
		}
		rewritten, err := series.mapTimestamps(u, fn(series))
		if err != nil {
			return err
		}
		next[kind] = rewritten
	}

	s.series = next
	return nil
}

// TimeRange returns the first and last timestamp over all channels. ok is false when the
// store holds no samples.
func (s *Store) TimeRange() (first, last int64, ok bool) {
	for _, series := range s.series {
		if series.Len() == 0 {
			continue
		}
		lo, hi := series.Samples[0].Timestamp, series.Samples[series.Len()-1].Timestamp
		if !ok || lo < first {
			first = lo
		}
		if !ok || hi > last {
			last = hi
		}
		ok = true
	}
	return
}
