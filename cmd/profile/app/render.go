package app

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	dpi            = 120.0
	fontSize       = 9.0
	tickMarkLength = 5
	pixelsPerLabel = 150.0
	pointRadius    = 2

	// Default border sizes in pixels
	defaultTopBorder    = 40
	defaultLeftBorder   = 90
	defaultBottomBorder = 40
	defaultRightBorder  = 40
)

var (
	trackColor  = color.RGBA{R: 190, G: 190, B: 190, A: 255}
	noRollColor = color.Black
)

// BorderConfig defines the sizes of white space around the plot
type BorderConfig struct {
	Top    int // Space for time scale
	Left   int // Space for altitude scale
	Bottom int // Space for information bar
	Right  int // Right padding
}

// RenderConfig holds all configuration options for profile visualization
type RenderConfig struct {
	Width, Height int        // Plot area size in pixels
	FontSize      float64    // Font size in points
	ColorTheme    ColorTheme // Color scheme for roll values
	NoAnnotations bool

	BorderConfig BorderConfig
}

// ProfileRenderer draws the altitude profile of a run. Points are colored by absolute roll.
type ProfileRenderer struct {
	config RenderConfig
}

// NewProfileRenderer creates a new profile renderer with the given configuration
func NewProfileRenderer(config RenderConfig) (*ProfileRenderer, error) {
	if config.Width <= 0 || config.Height <= 0 {
		return nil, fmt.Errorf("invalid plot area %dx%d", config.Width, config.Height)
	}
	if config.FontSize == 0 {
		config.FontSize = fontSize
	}
	if config.BorderConfig.Top == 0 {
		config.BorderConfig.Top = defaultTopBorder
	}
	if config.BorderConfig.Left == 0 {
		config.BorderConfig.Left = defaultLeftBorder
	}
	if config.BorderConfig.Bottom == 0 {
		config.BorderConfig.Bottom = defaultBottomBorder
	}
	if config.BorderConfig.Right == 0 {
		config.BorderConfig.Right = defaultRightBorder
	}

	return &ProfileRenderer{config: config}, nil
}

// Render creates an image of the profile with annotations. caption is written to the
// information bar.
func (r *ProfileRenderer) Render(p *ProfileData, caption string) (*image.RGBA, error) {
	if len(p.Points) == 0 {
		return nil, fmt.Errorf("no points to render")
	}

	b := r.config.BorderConfig
	img := image.NewRGBA(image.Rect(0, 0, r.config.Width+b.Left+b.Right, r.config.Height+b.Top+b.Bottom))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	plot := newPlotArea(r.plotRect(), p)

	if !r.config.NoAnnotations {
		ann, err := newAnnotator(r.config.FontSize, b)
		if err != nil {
			return nil, fmt.Errorf("creating annotator: %w", err)
		}
		defer ann.Close()

		if err = ann.annotate(img, plot, caption); err != nil {
			return nil, fmt.Errorf("drawing annotations: %w", err)
		}
	}

	r.renderProfile(img, plot)
	return img, nil
}

// plotRect returns the plot area inside the borders
func (r *ProfileRenderer) plotRect() image.Rectangle {
	b := r.config.BorderConfig
	return image.Rect(b.Left, b.Top, b.Left+r.config.Width, b.Top+r.config.Height)
}

func (r *ProfileRenderer) renderProfile(img *image.RGBA, plot *plotArea) {
	colors := NewColorMapper(r.config.ColorTheme, plot.data.Roll.Padded(minRollSpan))

	points := plot.data.Points
	for i := 1; i < len(points); i++ {
		drawLine(img, plot.pixel(points[i-1]), plot.pixel(points[i]), trackColor)
	}

	for _, pt := range points {
		var c color.Color = noRollColor
		if pt.Roll != nil {
			c = colors.GetColor(math.Abs(*pt.Roll))
		}
		center := plot.pixel(pt)
		rect := image.Rect(center.X-pointRadius, center.Y-pointRadius, center.X+pointRadius+1, center.Y+pointRadius+1)
		draw.Draw(img, rect.Intersect(img.Bounds()), image.NewUniform(c), image.Point{}, draw.Src)
	}
}

// plotArea maps points onto the pixels of area
type plotArea struct {
	area     image.Rectangle
	data     *ProfileData
	altitude Bounds
	span     int64
}

func newPlotArea(area image.Rectangle, data *ProfileData) *plotArea {
	return &plotArea{
		area:     area,
		data:     data,
		altitude: data.Altitude.Padded(minAltitudeSpan),
		span:     max(data.End-data.Start, 1),
	}
}

func (a *plotArea) x(ts int64) int {
	ratio := float64(ts-a.data.Start) / float64(a.span)
	return a.area.Min.X + int(math.Round(ratio*float64(a.area.Dx()-1)))
}

func (a *plotArea) y(alt float64) int {
	ratio := (alt - a.altitude.Min) / a.altitude.Span()
	return a.area.Max.Y - 1 - int(math.Round(ratio*float64(a.area.Dy()-1)))
}

func (a *plotArea) pixel(p Point) image.Point {
	return image.Pt(a.x(p.Timestamp), a.y(p.Altitude))
}

// drawLine draws a line between p0 and p1 with Bresenham's algorithm
func drawLine(img *image.RGBA, p0, p1 image.Point, c color.Color) {
	dx, dy := abs(p1.X-p0.X), -abs(p1.Y-p0.Y)
	sx, sy := 1, 1
	if p0.X > p1.X {
		sx = -1
	}
	if p0.Y > p1.Y {
		sy = -1
	}

	e := dx + dy
	x, y := p0.X, p0.Y
	for {
		img.Set(x, y, c)
		if x == p1.X && y == p1.Y {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x += sx
		}
		if e2 <= dx {
			e += dx
			y += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

type annotator struct {
	context  *freetype.Context
	borders  BorderConfig
	fontFace font.Face
}

func newAnnotator(size float64, borders BorderConfig) (*annotator, error) {
	parsedFont, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(parsedFont)
	ctx.SetFontSize(size)
	ctx.SetHinting(font.HintingNone)
	ctx.SetSrc(image.Black)

	return &annotator{
		context: ctx,
		borders: borders,
		fontFace: truetype.NewFace(parsedFont, &truetype.Options{
			Size:    size,
			DPI:     dpi,
			Hinting: font.HintingNone,
		}),
	}, nil
}

func (a *annotator) Close() error {
	if a.fontFace != nil {
		return a.fontFace.Close()
	}
	return nil
}

func (a *annotator) annotate(img *image.RGBA, plot *plotArea, caption string) error {
	a.context.SetClip(img.Bounds())
	a.context.SetDst(img)

	if err := a.drawTimeScale(img, plot); err != nil {
		return fmt.Errorf("drawing time scale: %w", err)
	}
	if err := a.drawAltitudeScale(img, plot); err != nil {
		return fmt.Errorf("drawing altitude scale: %w", err)
	}
	if err := a.drawInfoBar(img, plot, caption); err != nil {
		return fmt.Errorf("drawing info bar: %w", err)
	}

	return nil
}

func (a *annotator) fontHeight() int {
	metrics := a.fontFace.Metrics()
	return (metrics.Ascent + metrics.Descent).Round()
}

func (a *annotator) drawTimeScale(img *image.RGBA, plot *plotArea) error {
	duration := plot.data.Duration()
	step := calculateNiceTimeStep(duration, plot.area.Dx())
	textY := a.borders.Top - tickMarkLength - a.fontHeight()/2

	for elapsed := time.Duration(0); elapsed <= duration; elapsed += step {
		x := plot.x(plot.data.Start + plot.data.Ticks(elapsed))

		for y := a.borders.Top - tickMarkLength; y < a.borders.Top; y++ {
			img.Set(x, y, color.Black)
		}

		label := formatElapsed(elapsed)
		width := font.MeasureString(a.fontFace, label)
		if _, err := a.context.DrawString(label, freetype.Pt(x-width.Round()/2, textY)); err != nil {
			return fmt.Errorf("drawing time label: %w", err)
		}

		if duration == 0 {
			break
		}
	}
	return nil
}

func (a *annotator) drawAltitudeScale(img *image.RGBA, plot *plotArea) error {
	step := calculateNiceStep(plot.altitude.Span(), plot.area.Dy())
	metrics := a.fontFace.Metrics()

	for alt := math.Ceil(plot.altitude.Min/step) * step; alt <= plot.altitude.Max; alt += step {
		y := plot.y(alt)

		for x := a.borders.Left - tickMarkLength; x < a.borders.Left; x++ {
			img.Set(x, y, color.Black)
		}

		label := formatAltitude(alt)
		width := font.MeasureString(a.fontFace, label)
		textY := y + a.fontHeight()/2 - metrics.Descent.Round()
		pt := freetype.Pt(a.borders.Left-tickMarkLength-3-width.Round(), textY)
		if _, err := a.context.DrawString(label, pt); err != nil {
			return fmt.Errorf("drawing altitude label: %w", err)
		}
	}
	return nil
}

func (a *annotator) drawInfoBar(img *image.RGBA, plot *plotArea, caption string) error {
	metrics := a.fontFace.Metrics()
	textY := img.Bounds().Max.Y - (a.borders.Bottom-a.fontHeight())/2 - metrics.Descent.Round()

	if _, err := a.context.DrawString(caption, freetype.Pt(a.borders.Left, textY)); err != nil {
		return fmt.Errorf("drawing info text: %w", err)
	}
	return nil
}

// calculateNiceStep returns a 1-2-5 step giving roughly one label per pixelsPerLabel pixels
func calculateNiceStep(span float64, pixels int) float64 {
	if span <= 0 {
		return 1
	}
	target := span / max(float64(pixels)/pixelsPerLabel, 1)
	magnitude := math.Pow(10, math.Floor(math.Log10(target)))
	for _, m := range []float64{1, 2, 5, 10} {
		if step := m * magnitude; step >= target {
			return step
		}
	}
	return 10 * magnitude
}

func calculateNiceTimeStep(duration time.Duration, pixels int) time.Duration {
	target := duration.Seconds() / max(float64(pixels)/pixelsPerLabel, 1)

	niceIntervals := []float64{1, 2, 5, 10, 15, 30, 60, 120, 300, 600, 900, 1800, 3600}
	for _, interval := range niceIntervals {
		if target <= interval {
			return time.Duration(interval) * time.Second
		}
	}
	return time.Hour * 2
}

func formatElapsed(d time.Duration) string {
	d = d.Round(time.Second)
	return fmt.Sprintf("+%02d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

func formatAltitude(alt float64) string {
	if math.Abs(alt) < 1000 {
		return humanize.FtoaWithDigits(alt, 1) + " m"
	}
	return humanize.SIWithDigits(alt, 1, "m")
}
