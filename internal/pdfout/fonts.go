package pdfout

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"golang.org/x/text/encoding/charmap"

	"github.com/smartlecturer/lecturer/internal/layout"
)

// fontFace draws and measures text in one font family.
type fontFace interface {
	layout.Measurer

	// resource returns how the style is drawn.
	resource(style layout.FontStyle) selection

	// encode returns s as a PDF string operand and records used glyphs.
	encode(s string, style layout.FontStyle) string

	// objects creates the font dictionaries for the used resource names.
	objects(w *Writer, used map[string]bool) (map[string]types.IndirectRef, error)

	Name() string
}

// selection is a font resource plus the synthetic styling applied to it.
type selection struct {
	name string

	// stroke draws glyph outlines as well as fills to thicken them.
	stroke bool

	// skew is the horizontal shear of the text matrix.
	skew float64
}

// coreFace uses the standard 14 Helvetica and Courier fonts with WinAnsi
// encoding. Runes outside WinAnsi draw as '?'.
type coreFace struct {
	replaced atomic.Int64
}

var coreFonts = map[string]string{
	"F1": "Helvetica",
	"F2": "Helvetica-Bold",
	"F3": "Helvetica-Oblique",
	"F4": "Helvetica-BoldOblique",
	"F5": "Courier",
}

func (f *coreFace) Name() string { return "Helvetica" }

func (f *coreFace) resource(style layout.FontStyle) selection {
	switch {
	case style.Has(layout.StyleCode):
		return selection{name: "F5"}
	case style.Has(layout.StyleBold) && style.Has(layout.StyleItalic):
		return selection{name: "F4"}
	case style.Has(layout.StyleBold):
		return selection{name: "F2"}
	case style.Has(layout.StyleItalic):
		return selection{name: "F3"}
	}
	return selection{name: "F1"}
}

func winAnsi(r rune) byte {
	if r == '\t' {
		return ' '
	}
	b, ok := charmap.Windows1252.EncodeRune(r)
	if !ok {
		return '?'
	}
	return b
}

func (f *coreFace) Advance(r rune, size float64, style layout.FontStyle) float64 {
	n := 1.0
	if r == '\t' {
		n = tabSpaces
	}
	if style.Has(layout.StyleCode) {
		return n * courierWidth * size / 1000
	}
	return n * float64(coreWidth(winAnsi(r), style.Has(layout.StyleBold))) * size / 1000
}

const tabSpaces = 4

func (f *coreFace) encode(s string, _ layout.FontStyle) string {
	var b strings.Builder
	b.WriteByte('(')
	for _, r := range s {
		if r == '\t' {
			b.WriteString(strings.Repeat(" ", tabSpaces))
			continue
		}
		c := winAnsi(r)
		if c == '?' && r != '?' {
			f.replaced.Add(1)
		}
		switch {
		case c == '(' || c == ')' || c == '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		case c < 0x20:
			fmt.Fprintf(&b, "\\%03o", c)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte(')')
	return b.String()
}

func (f *coreFace) objects(w *Writer, used map[string]bool) (map[string]types.IndirectRef, error) {
	refs := make(map[string]types.IndirectRef, len(used))
	for name := range used {
		base, ok := coreFonts[name]
		if !ok {
			return nil, fmt.Errorf("unknown font resource %s", name)
		}
		d := types.NewDict()
		d.InsertName("Type", "Font")
		d.InsertName("Subtype", "Type1")
		d.InsertName("BaseFont", base)
		d.InsertName("Encoding", "WinAnsiEncoding")
		ref, err := w.add(d)
		if err != nil {
			return nil, fmt.Errorf("failed to add font %s: %w", base, err)
		}
		refs[name] = ref
	}
	return refs, nil
}
