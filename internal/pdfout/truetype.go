package pdfout

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"
	"unicode/utf16"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"golang.org/x/image/font"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"

	"github.com/smartlecturer/lecturer/internal/layout"
)

// ErrUnsupportedFont is returned for font files that cannot be embedded as
// TrueType outlines.
var ErrUnsupportedFont = errors.New("unsupported font")

const (
	trueTypeResource = "T1"
	italicSkew       = 0.21
	fallbackFontName = "LecturerText"
)

// trueTypeFace embeds a TrueType font as a Type0 font with Identity-H
// encoding. Bold is drawn by stroking outlines; italic by shearing.
type trueTypeFace struct {
	data []byte
	name string

	mu   sync.Mutex
	font *sfnt.Font
	buf  sfnt.Buffer
	upem float64

	gids   map[rune]sfnt.GlyphIndex
	widths map[sfnt.GlyphIndex]float64 // per em
	used   map[sfnt.GlyphIndex]rune

	ascent, descent, capHeight float64 // per 1000 em
	bbox                       [4]float64
}

func parseTrueType(data []byte) (*trueTypeFace, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("%w: file too short", ErrUnsupportedFont)
	}
	switch tag := string(data[:4]); tag {
	case "\x00\x01\x00\x00", "true":
	case "OTTO":
		return nil, fmt.Errorf("%w: CFF outlines", ErrUnsupportedFont)
	case "ttcf":
		return nil, fmt.Errorf("%w: font collections", ErrUnsupportedFont)
	default:
		return nil, fmt.Errorf("%w: unknown tag %q", ErrUnsupportedFont, tag)
	}

	f, err := sfnt.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %w", err)
	}

	t := &trueTypeFace{
		data:   data,
		font:   f,
		upem:   float64(f.UnitsPerEm()),
		gids:   make(map[rune]sfnt.GlyphIndex),
		widths: make(map[sfnt.GlyphIndex]float64),
		used:   make(map[sfnt.GlyphIndex]rune),
	}
	if t.upem <= 0 {
		return nil, fmt.Errorf("%w: units per em is %v", ErrUnsupportedFont, t.upem)
	}

	t.name = fallbackFontName
	if name, err := f.Name(&t.buf, sfnt.NameIDPostScript); err == nil {
		if clean := postScriptName(name); clean != "" {
			t.name = clean
		}
	}

	ppem := fixed.I(int(t.upem))
	scale := 1000 / t.upem / 64
	if m, err := f.Metrics(&t.buf, ppem, font.HintingNone); err == nil {
		t.ascent = float64(m.Ascent) * scale
		t.descent = -float64(m.Descent) * scale
		t.capHeight = float64(m.CapHeight) * scale
	}
	if b, err := f.Bounds(&t.buf, ppem, font.HintingNone); err == nil {
		// sfnt bounds grow downwards.
		t.bbox = [4]float64{
			float64(b.Min.X) * scale,
			-float64(b.Max.Y) * scale,
			float64(b.Max.X) * scale,
			-float64(b.Min.Y) * scale,
		}
	}
	if t.capHeight == 0 {
		t.capHeight = t.ascent
	}
	return t, nil
}

func postScriptName(s string) string {
	return strings.Map(func(r rune) rune {
		if r <= ' ' || r > '~' || strings.ContainsRune("()<>[]{}/%#", r) {
			return -1
		}
		return r
	}, s)
}

func (t *trueTypeFace) Name() string { return t.name }

// glyph returns the glyph for r and its advance per em. Callers hold mu.
func (t *trueTypeFace) glyph(r rune) (sfnt.GlyphIndex, float64) {
	if gi, ok := t.gids[r]; ok {
		return gi, t.widths[gi]
	}
	gi, err := t.font.GlyphIndex(&t.buf, r)
	if err != nil {
		gi = 0
	}
	adv, err := t.font.GlyphAdvance(&t.buf, gi, fixed.I(int(t.upem)), font.HintingNone)
	if err != nil {
		adv = 0
	}
	w := float64(adv) / 64 / t.upem
	t.gids[r] = gi
	t.widths[gi] = w
	return gi, w
}

// covers reports whether the font maps r to a real glyph.
func (t *trueTypeFace) covers(r rune) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	gi, _ := t.glyph(r)
	return gi != 0
}

func (t *trueTypeFace) Advance(r rune, size float64, _ layout.FontStyle) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	if r == '\t' {
		_, w := t.glyph(' ')
		return tabSpaces * w * size
	}
	_, w := t.glyph(r)
	return w * size
}

func (t *trueTypeFace) resource(style layout.FontStyle) selection {
	sel := selection{name: trueTypeResource}
	if style.Has(layout.StyleBold) {
		sel.stroke = true
	}
	if style.Has(layout.StyleItalic) {
		sel.skew = italicSkew
	}
	return sel
}

func (t *trueTypeFace) encode(s string, _ layout.FontStyle) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var b strings.Builder
	b.WriteByte('<')
	put := func(r rune) {
		gi, _ := t.glyph(r)
		if _, ok := t.used[gi]; !ok {
			t.used[gi] = r
		}
		fmt.Fprintf(&b, "%04X", uint16(gi))
	}
	for _, r := range s {
		if r == '\t' {
			for range tabSpaces {
				put(' ')
			}
			continue
		}
		put(r)
	}
	b.WriteByte('>')
	return b.String()
}

func (t *trueTypeFace) objects(w *Writer, used map[string]bool) (map[string]types.IndirectRef, error) {
	refs := map[string]types.IndirectRef{}
	if !used[trueTypeResource] {
		return refs, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	file, err := newStream(t.data)
	if err != nil {
		return nil, err
	}
	file.Insert("Length1", types.Integer(len(t.data)))
	fileRef, err := w.add(*file)
	if err != nil {
		return nil, fmt.Errorf("failed to add font file: %w", err)
	}

	desc := types.NewDict()
	desc.InsertName("Type", "FontDescriptor")
	desc.InsertName("FontName", t.name)
	desc.Insert("Flags", types.Integer(32))
	desc.Insert("FontBBox", types.NewNumberArray(t.bbox[:]...))
	desc.Insert("ItalicAngle", types.Integer(0))
	desc.Insert("Ascent", types.Integer(int(math.Round(t.ascent))))
	desc.Insert("Descent", types.Integer(int(math.Round(t.descent))))
	desc.Insert("CapHeight", types.Integer(int(math.Round(t.capHeight))))
	desc.Insert("StemV", types.Integer(80))
	desc.Insert("FontFile2", fileRef)
	descRef, err := w.add(desc)
	if err != nil {
		return nil, fmt.Errorf("failed to add font descriptor: %w", err)
	}

	gids := make([]sfnt.GlyphIndex, 0, len(t.used))
	for gi := range t.used {
		gids = append(gids, gi)
	}
	slices.Sort(gids)

	widths := types.Array{}
	for _, gi := range gids {
		widths = append(widths, types.Integer(int(gi)), types.Array{types.Integer(int(math.Round(t.widths[gi] * 1000)))})
	}

	info := types.NewDict()
	info.Insert("Registry", types.StringLiteral("Adobe"))
	info.Insert("Ordering", types.StringLiteral("Identity"))
	info.Insert("Supplement", types.Integer(0))

	cid := types.NewDict()
	cid.InsertName("Type", "Font")
	cid.InsertName("Subtype", "CIDFontType2")
	cid.InsertName("BaseFont", t.name)
	cid.Insert("CIDSystemInfo", info)
	cid.Insert("FontDescriptor", descRef)
	cid.Insert("DW", types.Integer(1000))
	cid.Insert("W", widths)
	cid.InsertName("CIDToGIDMap", "Identity")
	cidRef, err := w.add(cid)
	if err != nil {
		return nil, fmt.Errorf("failed to add CID font: %w", err)
	}

	cmap, err := newStream(toUnicode(gids, t.used))
	if err != nil {
		return nil, err
	}
	cmapRef, err := w.add(*cmap)
	if err != nil {
		return nil, fmt.Errorf("failed to add ToUnicode: %w", err)
	}

	f := types.NewDict()
	f.InsertName("Type", "Font")
	f.InsertName("Subtype", "Type0")
	f.InsertName("BaseFont", t.name)
	f.InsertName("Encoding", "Identity-H")
	f.Insert("DescendantFonts", types.Array{cidRef})
	f.Insert("ToUnicode", cmapRef)
	ref, err := w.add(f)
	if err != nil {
		return nil, fmt.Errorf("failed to add font: %w", err)
	}
	refs[trueTypeResource] = ref
	return refs, nil
}

// toUnicode builds a ToUnicode CMap for the used glyphs.
func toUnicode(gids []sfnt.GlyphIndex, used map[sfnt.GlyphIndex]rune) []byte {
	var b bytes.Buffer
	b.WriteString("/CIDInit /ProcSet findresource begin\n12 dict begin\nbegincmap\n")
	b.WriteString("/CIDSystemInfo << /Registry (Adobe) /Ordering (UCS) /Supplement 0 >> def\n")
	b.WriteString("/CMapName /Adobe-Identity-UCS def\n/CMapType 2 def\n")
	b.WriteString("1 begincodespacerange\n<0000> <FFFF>\nendcodespacerange\n")

	for chunk := range slices.Chunk(gids, 100) {
		fmt.Fprintf(&b, "%d beginbfchar\n", len(chunk))
		for _, gi := range chunk {
			fmt.Fprintf(&b, "<%04X> <", uint16(gi))
			for _, u := range utf16.Encode([]rune{used[gi]}) {
				fmt.Fprintf(&b, "%04X", u)
			}
			b.WriteString(">\n")
		}
		b.WriteString("endbfchar\n")
	}

	b.WriteString("endcmap\nCMapName currentdict /CMap defineresource pop\nend\nend\n")
	return b.Bytes()
}
