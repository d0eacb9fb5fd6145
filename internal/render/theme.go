package render

import (
	"fmt"
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/roman-kulish/rf-sentinel/internal/spectrum"
)

// Theme is a named power-to-colour scheme
type Theme string

const (
	ClassicTheme   Theme = "classic"   // Blue to red
	GrayscaleTheme Theme = "grayscale" // Black to white
	JungleTheme    Theme = "jungle"    // Dark green to yellow
	ThermalTheme   Theme = "thermal"   // Black to red to yellow to white
	MarineTheme    Theme = "marine"    // Deep blue to cyan to white

	DefaultTheme   = ClassicTheme
	DefaultMapSize = 256
)

var themes = map[Theme]func(float64) color.Color{
	ClassicTheme: func(p float64) color.Color {
		return colorful.Hsv(240-p*240, 0.9+p*0.1, math.Pow(p, 0.7)).Clamped()
	},
	GrayscaleTheme: func(p float64) color.Color {
		v := uint8(math.Pow(p, 0.7) * 255)
		return color.RGBA{R: v, G: v, B: v, A: 255}
	},
	JungleTheme: func(p float64) color.Color {
		return colorful.Hsv(120-p*60, 1, 0.3+math.Pow(p, 0.6)*0.7).Clamped()
	},
	ThermalTheme: func(p float64) color.Color {
		switch {
		case p < 1.0/3:
			return color.RGBA{R: uint8(p * 3 * 255), A: 255}
		case p < 2.0/3:
			return color.RGBA{R: 255, G: uint8((p - 1.0/3) * 3 * 255), A: 255}
		default:
			return color.RGBA{R: 255, G: 255, B: uint8(min(1, (p-2.0/3)*3) * 255), A: 255}
		}
	},
	MarineTheme: func(p float64) color.Color {
		return colorful.Hsv(240-p*60, 1-p*0.8, 0.3+math.Pow(p, 0.6)*0.7).Clamped()
	},
}

// ParseTheme returns the theme with the given name, "" selects the default
func ParseTheme(name string) (Theme, error) {
	if name == "" {
		return DefaultTheme, nil
	}
	if _, ok := themes[Theme(name)]; !ok {
		return "", fmt.Errorf("unknown colour theme: %s", name)
	}
	return Theme(name), nil
}

// ColorMap maps dB power values to colours of a theme through a
// pre-computed gradient scaled to Bounds.
type ColorMap struct {
	colors []color.Color
	bounds Bounds
	step   float64 // dB per gradient entry
}

// NewColorMap creates a ColorMap of size colours. Unknown themes fall back to
// the default theme.
func NewColorMap(theme Theme, bounds Bounds, size int) *ColorMap {
	if size < 2 {
		size = DefaultMapSize
	}

	fn, ok := themes[theme]
	if !ok {
		fn = themes[DefaultTheme]
	}

	m := ColorMap{colors: make([]color.Color, size)}
	for i := range m.colors {
		m.colors[i] = fn(float64(i) / float64(size-1))
	}
	m.SetBounds(bounds)

	return &m
}

// SetBounds rescales the gradient to a new power range
func (m *ColorMap) SetBounds(bounds Bounds) {
	if bounds.Max <= bounds.Min {
		bounds.Max = bounds.Min + 1
	}
	m.bounds = bounds
	m.step = (bounds.Max - bounds.Min) / float64(len(m.colors)-1)
}

// Bounds returns the power range of the gradient
func (m *ColorMap) Bounds() Bounds {
	return m.bounds
}

// Color returns the colour of a power value, clamped to the gradient ends.
func (m *ColorMap) Color(power float64) color.Color {
	if math.IsNaN(power) {
		return m.colors[0]
	}

	i := int(math.Round((power - m.bounds.Min) / m.step))
	switch {
	case i < 0:
		return m.colors[0]
	case i >= len(m.colors):
		return m.colors[len(m.colors)-1]
	}
	return m.colors[i]
}

// RowColors colours a spectrum row into dst, which is grown as needed
func (m *ColorMap) RowColors(dst []color.Color, row spectrum.Row) []color.Color {
	dst = dst[:0]
	for _, p := range row {
		dst = append(dst, m.Color(p))
	}
	return dst
}
