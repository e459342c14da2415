package app

import (
	"math"
	"time"

	"github.com/roman-kulish/flight-geotag/internal/fusion"
	"github.com/roman-kulish/flight-geotag/internal/telemetry"
)

const (
	minAltitudeSpan = 10.0 // meters
	minRollSpan     = 5.0  // degrees
	boundsMargin    = 0.1
)

// Bounds is a closed value interval
type Bounds struct {
	Min float64
	Max float64
}

func emptyBounds() Bounds {
	return Bounds{Min: math.Inf(1), Max: math.Inf(-1)}
}

// Span returns the width of the interval, zero for empty bounds
func (b Bounds) Span() float64 {
	if b.Max < b.Min {
		return 0
	}
	return b.Max - b.Min
}

func (b *Bounds) include(v float64) {
	b.Min = min(b.Min, v)
	b.Max = max(b.Max, v)
}

// Padded widens b to at least minSpan around its center and adds a margin on both sides
func (b Bounds) Padded(minSpan float64) Bounds {
	if b.Max < b.Min {
		return Bounds{Min: 0, Max: minSpan}
	}
	if b.Span() < minSpan {
		center := (b.Min + b.Max) / 2
		b.Min, b.Max = center-minSpan/2, center+minSpan/2
	}
	margin := b.Span() * boundsMargin
	return Bounds{Min: b.Min - margin, Max: b.Max + margin}
}

// Point is a single plotted image
type Point struct {
	Name      string
	Timestamp int64
	Altitude  float64
	Roll      *float64
}

// ProfileData accumulates the fused records of a run into plottable points
type ProfileData struct {
	Unit       telemetry.Unit
	Start, End int64
	Altitude   Bounds // altitude range of the plotted points
	Roll       Bounds // absolute roll range of the plotted points
	Points     []Point
	Skipped    int // records without altitude
}

func NewProfileData(unit telemetry.Unit) *ProfileData {
	return &ProfileData{
		Unit:     unit,
		Start:    math.MaxInt64,
		End:      math.MinInt64,
		Altitude: emptyBounds(),
		Roll:     emptyBounds(),
	}
}

func (p *ProfileData) Update(r fusion.Record) {
	alt, ok := r.GroundAltitude()
	if !ok {
		p.Skipped++
		return
	}

	p.Start = min(p.Start, r.Timestamp)
	p.End = max(p.End, r.Timestamp)
	p.Altitude.include(alt)

	point := Point{Name: r.Name, Timestamp: r.Timestamp, Altitude: alt}
	if roll, ok := r.Roll(); ok {
		point.Roll = &roll
		p.Roll.include(math.Abs(roll))
	}
	p.Points = append(p.Points, point)
}

// Duration returns the time covered by the points
func (p *ProfileData) Duration() time.Duration {
	if len(p.Points) == 0 {
		return 0
	}
	return p.Elapsed(p.End)
}

// Elapsed converts the distance between the first point and ts into a time.Duration
func (p *ProfileData) Elapsed(ts int64) time.Duration {
	return time.Duration(ts-p.Start) * p.tick()
}

// Ticks converts d into a tick count in the unit of the profile
func (p *ProfileData) Ticks(d time.Duration) int64 {
	return int64(d / p.tick())
}

func (p *ProfileData) tick() time.Duration {
	unit := p.Unit
	if !unit.Valid() {
		unit = telemetry.Seconds
	}
	return time.Second / time.Duration(unit)
}
