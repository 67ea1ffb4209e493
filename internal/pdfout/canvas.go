package pdfout

import (
	"bytes"
	"fmt"
	"maps"
	"slices"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/smartlecturer/lecturer/internal/layout"
)

const ruleWidth = 0.5

// Canvas is one output page. It records drawing operators; the page object
// is created when the document is finished.
type Canvas struct {
	w             *Writer
	width, height float64

	ops      bytes.Buffer
	xobjects map[string]types.IndirectRef
	fonts    map[string]bool
}

func newCanvas(w *Writer, width, height float64) *Canvas {
	return &Canvas{
		w:        w,
		width:    width,
		height:   height,
		xobjects: make(map[string]types.IndirectRef),
		fonts:    make(map[string]bool),
	}
}

// Size returns the page size in points.
func (c *Canvas) Size() (float64, float64) { return c.width, c.height }

// flip converts a top-left y to PDF user space.
func (c *Canvas) flip(y float64) float64 { return c.height - y }

// EmbedSource draws source page i with its top-left corner at the page
// origin.
func (c *Canvas) EmbedSource(i int) error {
	if c.w.finished {
		return ErrFinished
	}
	ref, err := c.w.form(i)
	if err != nil {
		return err
	}
	name := fmt.Sprintf("Src%d", i)
	c.xobjects[name] = ref

	p := c.w.doc.Pages[i]
	fmt.Fprintf(&c.ops, "q 1 0 0 1 0 %.2f cm /%s Do Q\n", c.flip(p.Height()), name)
	return nil
}

// Text draws s with its baseline at (x, y).
func (c *Canvas) Text(x, y, size float64, style layout.FontStyle, s string) {
	if s == "" || c.w.finished {
		return
	}
	sel := c.w.face.resource(style)
	c.fonts[sel.name] = true

	c.ops.WriteString("q BT ")
	if sel.stroke {
		fmt.Fprintf(&c.ops, "2 Tr %.2f w ", size*0.03)
	}
	fmt.Fprintf(&c.ops, "/%s %.2f Tf 1 0 %.2f 1 %.2f %.2f Tm %s Tj ET Q\n",
		sel.name, size, sel.skew, x, c.flip(y), c.w.face.encode(s, style))
}

// Rule draws a horizontal line.
func (c *Canvas) Rule(x0, x1, y float64) {
	if c.w.finished {
		return
	}
	fy := c.flip(y)
	fmt.Fprintf(&c.ops, "q %.2f w %.2f %.2f m %.2f %.2f l S Q\n", ruleWidth, x0, fy, x1, fy)
}

// emit creates the page object.
func (c *Canvas) emit(parent types.IndirectRef, fonts map[string]types.IndirectRef) (types.IndirectRef, error) {
	res := types.NewDict()

	if len(c.fonts) > 0 {
		fd := types.NewDict()
		for _, name := range slices.Sorted(maps.Keys(c.fonts)) {
			ref, ok := fonts[name]
			if !ok {
				return types.IndirectRef{}, fmt.Errorf("font %s was not created", name)
			}
			fd.Insert(name, ref)
		}
		res.Insert("Font", fd)
	}
	if len(c.xobjects) > 0 {
		xd := types.NewDict()
		for _, name := range slices.Sorted(maps.Keys(c.xobjects)) {
			xd.Insert(name, c.xobjects[name])
		}
		res.Insert("XObject", xd)
	}

	content, err := newStream(c.ops.Bytes())
	if err != nil {
		return types.IndirectRef{}, err
	}
	contentRef, err := c.w.add(*content)
	if err != nil {
		return types.IndirectRef{}, fmt.Errorf("failed to add content: %w", err)
	}

	page := types.NewDict()
	page.InsertName("Type", "Page")
	page.Insert("Parent", parent)
	page.Insert("MediaBox", types.NewNumberArray(0, 0, c.width, c.height))
	page.Insert("Rotate", types.Integer(0))
	page.Insert("Resources", res)
	page.Insert("Contents", contentRef)

	return c.w.add(page)
}
