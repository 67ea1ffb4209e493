// Package layout decides how explanation text is arranged beside a source
// page: the output geometry, the number of columns, how text is split
// across them and how much of it fits.
//
// All coordinates use a top-left origin in PDF points.
package layout

import (
	"fmt"
	"math"
	"strings"
)

// Output geometry in points.
const (
	// WidthFactor is the output page width as a multiple of the source width.
	WidthFactor = 3

	SideMargin    = 25.0
	ColumnSpacing = 20.0
	TopMargin     = 40.0
	BottomMargin  = 40.0

	// HeaderBand is the vertical offset of continuation-page columns.
	HeaderBand = 24.0

	MaxColumns = 3
)

// Defaults for Options.
const (
	DefaultFontSize      = 20.0
	DefaultLineSpacing   = 1.2
	DefaultColumnPadding = 8.0
)

// RenderMode selects how column text is placed.
type RenderMode string

const (
	ModePlain      RenderMode = "plain"
	ModeMarkdown   RenderMode = "markdown"
	ModeEmptyRight RenderMode = "empty_right"
)

// ParseRenderMode parses a mode name. "text" is accepted as plain and
// "rich" as markdown.
func ParseRenderMode(s string) (RenderMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "markdown", "md", "rich":
		return ModeMarkdown, nil
	case "plain", "text":
		return ModePlain, nil
	case "empty_right", "empty":
		return ModeEmptyRight, nil
	}
	return "", fmt.Errorf("unknown render mode %q", s)
}

// Rich reports whether text is interpreted as markup.
func (m RenderMode) Rich() bool { return m == ModeMarkdown }

// Options controls layout of one page.
type Options struct {
	FontSize      float64
	LineSpacing   float64
	ColumnPadding float64
	Mode          RenderMode
}

// WithDefaults fills zero fields.
func (o Options) WithDefaults() Options {
	if o.FontSize <= 0 {
		o.FontSize = DefaultFontSize
	}
	if o.LineSpacing <= 0 {
		o.LineSpacing = DefaultLineSpacing
	}
	if o.ColumnPadding < 0 {
		o.ColumnPadding = 0
	} else if o.ColumnPadding == 0 {
		o.ColumnPadding = DefaultColumnPadding
	}
	if o.Mode == "" {
		o.Mode = ModeMarkdown
	}
	return o
}

// LineHeight is the baseline-to-baseline distance.
func (o Options) LineHeight() float64 { return o.FontSize * o.LineSpacing }

// bottomMargin grows in rich mode to absorb box-rendering imprecision.
func (o Options) bottomMargin() float64 {
	if !o.Mode.Rich() {
		return BottomMargin
	}
	extra := math.Min(36, math.Max(16, 1.25*o.LineHeight()))
	return BottomMargin + extra
}

// ColumnRect is one text column.
type ColumnRect struct {
	X0, Y0, X1, Y1 float64
	Capacity       int
}

func (r ColumnRect) Width() float64  { return r.X1 - r.X0 }
func (r ColumnRect) Height() float64 { return r.Y1 - r.Y0 }

// OutputSize returns the output page size for a source page.
func OutputSize(srcWidth, srcHeight float64) (float64, float64) {
	return WidthFactor * srcWidth, srcHeight
}

// Columns returns the first n column slots of the right region of a page
// built from a srcWidth×srcHeight source, each with its capacity.
// topOffset shifts the columns down (continuation pages use HeaderBand).
func Columns(srcWidth, srcHeight float64, n int, opts Options, topOffset float64) []ColumnRect {
	opts = opts.WithDefaults()
	n = max(1, min(n, MaxColumns))

	outWidth, _ := OutputSize(srcWidth, srcHeight)
	left := srcWidth + SideMargin
	right := outWidth - SideMargin
	slot := (right - left - ColumnSpacing*(MaxColumns-1)) / MaxColumns

	top := TopMargin + topOffset
	bottom := srcHeight - opts.bottomMargin()

	rects := make([]ColumnRect, n)
	for i := range rects {
		x0 := left + float64(i)*(slot+ColumnSpacing)
		r := ColumnRect{
			X0: x0 + opts.ColumnPadding,
			Y0: top,
			X1: x0 + slot - opts.ColumnPadding,
			Y1: bottom,
		}
		r.Capacity = Capacity(r.Width(), r.Height(), opts)
		rects[i] = r
	}
	return rects
}

// Capacity estimates how many characters fit in a width×height box.
func Capacity(width, height float64, opts Options) int {
	opts = opts.WithDefaults()
	if width <= 0 || height <= 0 {
		return 0
	}
	perLine := math.Floor(width / (0.55 * opts.FontSize))
	lines := math.Floor(height / opts.LineHeight())
	c := perLine * lines * 0.9
	if opts.Mode.Rich() {
		c *= 0.85
	}
	return int(c)
}
