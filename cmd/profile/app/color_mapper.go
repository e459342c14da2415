package app

import (
	"image/color"
	"math"
)

// ColorTheme represents a predefined color scheme for roll visualization.
type ColorTheme string

const (
	ClassicTheme   ColorTheme = "classic"   // Blue to red transition
	GrayscaleTheme ColorTheme = "grayscale" // Black to white transition
	JungleTheme    ColorTheme = "jungle"    // Dark green to yellow transition
	ThermalTheme   ColorTheme = "thermal"   // Black to red to yellow to white
	MarineTheme    ColorTheme = "marine"    // Deep blue to cyan to white

	DefaultColorMapSize = 256 // Default number of colors in the map
)

var validThemes = map[ColorTheme]struct{}{
	ClassicTheme:   {},
	GrayscaleTheme: {},
	JungleTheme:    {},
	ThermalTheme:   {},
	MarineTheme:    {},
}

// ColorMapper maps a value within bounds onto a pre-computed color gradient
type ColorMapper struct {
	colorMap      []color.Color // Pre-computed colors
	theme         func(float64) color.Color
	themeName     ColorTheme
	size          int
	valuePerIndex float64
	boundsMin     float64
}

// NewColorMapper creates a new color mapper with the specified theme and bounds
func NewColorMapper(theme ColorTheme, bounds Bounds) *ColorMapper {
	cm := &ColorMapper{
		colorMap:  make([]color.Color, DefaultColorMapSize),
		theme:     getColorTheme(theme),
		themeName: theme,
		size:      DefaultColorMapSize,
	}
	for i := 0; i < cm.size; i++ {
		cm.colorMap[i] = cm.theme(float64(i) / float64(cm.size-1))
	}
	cm.boundsMin = bounds.Min
	cm.valuePerIndex = bounds.Span() / float64(cm.size-1)
	return cm
}

// GetColor returns a color for the given value. Values outside the bounds are clamped.
func (cm *ColorMapper) GetColor(v float64) color.Color {
	if cm.valuePerIndex == 0 {
		return cm.colorMap[0]
	}
	index := int((v - cm.boundsMin) / cm.valuePerIndex)
	if index < 0 {
		return cm.colorMap[0]
	}
	if index >= cm.size {
		return cm.colorMap[cm.size-1]
	}
	return cm.colorMap[index]
}

// ThemeName returns the current color theme name
func (cm *ColorMapper) ThemeName() ColorTheme {
	return cm.themeName
}

// HSV represents a color in HSV (Hue, Saturation, Value) color space
type HSV struct {
	H float64 // Hue angle in degrees [0-360]
	S float64 // Saturation [0-1]
	V float64 // Value/Brightness [0-1]
}

// RGB converts HSV to RGB color space
func (hsv HSV) RGB() color.Color {
	if hsv.S <= 0.0 {
		v := uint8(hsv.V * 255)
		return color.RGBA{R: v, G: v, B: v, A: 255}
	}

	h := math.Mod(hsv.H, 360) / 60
	i := int(h)
	f := h - float64(i)

	v := uint8(hsv.V * 255)
	p := uint8((hsv.V * (1 - hsv.S)) * 255)
	q := uint8((hsv.V * (1 - (hsv.S * f))) * 255)
	t := uint8((hsv.V * (1 - (hsv.S * (1 - f)))) * 255)

	switch i {
	case 0:
		return color.RGBA{R: v, G: t, B: p, A: 255}
	case 1:
		return color.RGBA{R: q, G: v, B: p, A: 255}
	case 2:
		return color.RGBA{R: p, G: v, B: t, A: 255}
	case 3:
		return color.RGBA{R: p, G: q, B: v, A: 255}
	case 4:
		return color.RGBA{R: t, G: p, B: v, A: 255}
	default:
		return color.RGBA{R: v, G: p, B: q, A: 255}
	}
}

// getColorTheme returns the gradient of theme over [0, 1]. Every theme keeps some brightness at
// 0 so that points stay visible on the white background.
func getColorTheme(theme ColorTheme) func(float64) color.Color {
	switch theme {
	case GrayscaleTheme:
		return func(x float64) color.Color {
			v := uint8((0.8 - math.Pow(x, 0.7)*0.8) * 255)
			return color.RGBA{R: v, G: v, B: v, A: 255}
		}

	case JungleTheme:
		return func(x float64) color.Color {
			return HSV{H: 120 - (x * 60), S: 1.0, V: 0.3 + (math.Pow(x, 0.6) * 0.7)}.RGB()
		}

	case ThermalTheme:
		return func(x float64) color.Color {
			switch {
			case x < 0.33:
				return color.RGBA{R: uint8(64 + x*3*191), A: 255}
			case x < 0.66:
				return color.RGBA{R: 255, G: uint8((x - 0.33) * 3 * 255), A: 255}
			default:
				return color.RGBA{R: 255, G: 200, B: uint8((x - 0.66) * 3 * 200), A: 255}
			}
		}

	case MarineTheme:
		return func(x float64) color.Color {
			return HSV{H: 240 - (x * 60), S: 1.0 - (x * 0.6), V: 0.4 + (math.Pow(x, 0.6) * 0.5)}.RGB()
		}

	default:
		return func(x float64) color.Color {
			return HSV{H: 240 - (x * 240), S: 0.9 + (x * 0.1), V: 0.5 + math.Pow(x, 0.7)*0.4}.RGB()
		}
	}
}
