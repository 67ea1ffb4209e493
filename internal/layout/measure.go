package layout

import (
	"unicode"

	"golang.org/x/text/width"
)

// FontStyle selects a face variant for a run of text.
type FontStyle uint8

const (
	StyleRegular FontStyle = 0
	StyleBold    FontStyle = 1
	StyleItalic  FontStyle = 2
	StyleCode    FontStyle = 4
)

// Has reports whether s includes f.
func (s FontStyle) Has(f FontStyle) bool { return s&f != 0 }

// Measurer returns the advance width of a rune in points.
type Measurer interface {
	Advance(r rune, size float64, style FontStyle) float64
}

// Wide reports whether r occupies a full em in East Asian typesetting.
// Lines may break before and after wide runes.
func Wide(r rune) bool {
	switch width.LookupRune(r).Kind() {
	case width.EastAsianWide, width.EastAsianFullwidth:
		return true
	}
	return false
}

// EstimateMeasurer approximates advances without font data: wide runes are
// one em, everything else 0.55 em. It matches the capacity model.
type EstimateMeasurer struct{}

func (EstimateMeasurer) Advance(r rune, size float64, style FontStyle) float64 {
	switch {
	case r == '\t':
		return 2 * size
	case unicode.Is(unicode.Mn, r):
		return 0
	case Wide(r):
		return size
	case style.Has(StyleCode):
		return 0.6 * size
	}
	return 0.55 * size
}

// TextWidth sums the advances of s.
func TextWidth(m Measurer, s string, size float64, style FontStyle) float64 {
	w := 0.0
	for _, r := range s {
		w += m.Advance(r, size, style)
	}
	return w
}
