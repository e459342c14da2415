package telemetry

import (
	"fmt"
	"math"
	"strings"
)

const (
	Seconds      Unit = 1
	Milliseconds Unit = 1_000
	Microseconds Unit = 1_000_000
)

// Unit is an integer timestamp representation, expressed as ticks per second
type Unit int64

var unitNames = map[Unit]string{
	Seconds:      "s",
	Milliseconds: "ms",
	Microseconds: "us",
}

// ParseUnit parses s, ms and us (case-insensitive). An empty string is seconds.
func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "s", "sec", "seconds":
		return Seconds, nil
	case "ms", "milliseconds":
		return Milliseconds, nil
	case "us", "µs", "microseconds":
		return Microseconds, nil
	}
	return 0, fmt.Errorf("%q: %w", s, ErrUnknownUnit)
}

func (u Unit) String() string {
	if name, ok := unitNames[u]; ok {
		return name
	}
	return fmt.Sprintf("unit(%d)", int64(u))
}

// Valid reports whether u is one of the known units.
func (u Unit) Valid() bool {
	_, ok := unitNames[u]
	return ok
}

// Days returns the number of ticks in n days.
func (u Unit) Days(n int64) int64 {
	return n * 24 * 3600 * int64(u)
}

// Convert converts ts from unit u to unit to. Conversion to a coarser unit floors the value.
func (u Unit) Convert(ts int64, to Unit) (int64, error) {
	if !u.Valid() {
		return 0, fmt.Errorf("%s: %w", u, ErrUnknownUnit)
	}
	if !to.Valid() {
		return 0, fmt.Errorf("%s: %w", to, ErrUnknownUnit)
	}

	switch {
	case u == to:
		return ts, nil

	case to > u:
		factor := int64(to / u)
		if ts > math.MaxInt64/factor || ts < math.MinInt64/factor {
			return 0, fmt.Errorf("converting %d%s to %s: %w", ts, u, to, ErrTimestampOverflow)
		}
		return ts * factor, nil

	default:
		factor := int64(u / to)
		q := ts / factor
		if ts%factor != 0 && ts < 0 {
			q--
		}
		return q, nil
	}
}

// ShiftTimestamp adds bias to ts, reporting overflow as ErrTimestampOverflow.
func ShiftTimestamp(ts, bias int64) (int64, error) {
	if (bias > 0 && ts > math.MaxInt64-bias) || (bias < 0 && ts < math.MinInt64-bias) {
		return 0, fmt.Errorf("shifting %d by %d: %w", ts, bias, ErrTimestampOverflow)
	}
	return ts + bias, nil
}

