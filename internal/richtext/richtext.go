// Package richtext typesets markdown explanations into a fixed box.
//
// The output is a list of positioned runs and rules; drawing them is left
// to the PDF backend. Text that does not fit is clipped and reported, not
// returned: callers treat rich placement as fully consumed.
package richtext

import (
	"errors"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/smartlecturer/lecturer/internal/layout"
)

// ErrBoxTooSmall is returned when the box cannot hold a single line.
var ErrBoxTooSmall = errors.New("richtext: box too small")

// Box is the target rectangle, top-left origin.
type Box struct {
	X0, Y0, X1, Y1 float64
}

// Options controls typesetting.
type Options struct {
	FontSize    float64
	LineSpacing float64
}

// Run is a piece of text drawn at a baseline position.
type Run struct {
	X, Y  float64
	Text  string
	Size  float64
	Style layout.FontStyle
}

// Rule is a horizontal line.
type Rule struct {
	X0, X1, Y float64
}

// Result is the typeset content of a box.
type Result struct {
	Runs  []Run
	Rules []Rule

	// Clipped is set when content ran past the bottom of the box.
	Clipped bool
}

var headingScale = map[int]float64{1: 1.4, 2: 1.25, 3: 1.1}

// Layout renders markup into box.
func Layout(markup string, box Box, opts Options, m layout.Measurer) (*Result, error) {
	if opts.FontSize <= 0 {
		opts.FontSize = layout.DefaultFontSize
	}
	if opts.LineSpacing <= 0 {
		opts.LineSpacing = layout.DefaultLineSpacing
	}
	if box.X1-box.X0 < 2*opts.FontSize || box.Y1-box.Y0 < opts.FontSize {
		return nil, fmt.Errorf("%w: %.0fx%.0f at size %.0f", ErrBoxTooSmall, box.X1-box.X0, box.Y1-box.Y0, opts.FontSize)
	}

	src := []byte(ProtectMath(markup))
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	ts := &typesetter{
		box:  box,
		opts: opts,
		m:    m,
		src:  src,
		y:    box.Y0,
		res:  &Result{},
	}
	ts.blocks(doc, 0, layout.StyleRegular)
	return ts.res, nil
}

type typesetter struct {
	box  Box
	opts Options
	m    layout.Measurer
	src  []byte

	y       float64
	started bool
	res     *Result
}

func (t *typesetter) full() bool { return t.res.Clipped }

// blocks typesets the block children of n.
func (t *typesetter) blocks(n ast.Node, indent float64, base layout.FontStyle) {
	for c := n.FirstChild(); c != nil && !t.full(); c = c.NextSibling() {
		t.block(c, indent, base, "")
	}
}

func (t *typesetter) block(n ast.Node, indent float64, base layout.FontStyle, marker string) {
	fs := t.opts.FontSize

	switch v := n.(type) {
	case *ast.Heading:
		scale, ok := headingScale[v.Level]
		if !ok {
			scale = 1
		}
		t.space(0.6 * fs)
		t.paragraph(t.inlines(v, base|layout.StyleBold), fs*scale, indent, marker)

	case *ast.Paragraph, *ast.TextBlock:
		t.space(0.4 * fs)
		t.paragraph(t.inlines(v, base), fs, indent, marker)

	case *ast.FencedCodeBlock, *ast.CodeBlock:
		t.space(0.4 * fs)
		size := max(8, fs-1)
		lines := v.Lines()
		for i := 0; i < lines.Len() && !t.full(); i++ {
			seg := lines.At(i)
			line := strings.TrimRight(string(seg.Value(t.src)), "\r\n")
			t.paragraph([]span{{text: line, style: base | layout.StyleCode}}, size, indent+fs/2, marker)
			marker = ""
		}

	case *ast.List:
		num := v.Start
		for item := v.FirstChild(); item != nil && !t.full(); item = item.NextSibling() {
			mark := "•"
			if v.IsOrdered() {
				mark = fmt.Sprintf("%d.", num)
				num++
			}
			t.listItem(item, indent+1.5*fs, base, mark)
		}

	case *ast.Blockquote:
		t.blocks(v, indent+fs, base|layout.StyleItalic)

	case *ast.ThematicBreak:
		t.space(0.4 * fs)
		y := t.y + fs/2
		if y > t.box.Y1 {
			t.res.Clipped = true
			return
		}
		t.res.Rules = append(t.res.Rules, Rule{X0: t.box.X0 + indent, X1: t.box.X1, Y: y})
		t.y += fs

	case *ast.HTMLBlock:
		// raw HTML is not rendered

	default:
		t.blocks(v, indent, base)
	}
}

func (t *typesetter) listItem(item ast.Node, indent float64, base layout.FontStyle, marker string) {
	for c := item.FirstChild(); c != nil && !t.full(); c = c.NextSibling() {
		t.block(c, indent, base, marker)
		marker = ""
	}
}

// space adds vertical space before a block, except at the top of the box.
func (t *typesetter) space(d float64) {
	if !t.started {
		t.started = true
		return
	}
	t.y += d
}

type span struct {
	text  string
	style layout.FontStyle
}

// inlines flattens the inline children of n into styled spans.
func (t *typesetter) inlines(n ast.Node, base layout.FontStyle) []span {
	var spans []span
	stack := []layout.FontStyle{base}
	cur := func() layout.FontStyle { return stack[len(stack)-1] }

	ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		switch v := node.(type) {
		case *ast.Emphasis:
			if entering {
				flag := layout.StyleItalic
				if v.Level >= 2 {
					flag = layout.StyleBold
				}
				stack = append(stack, cur()|flag)
			} else {
				stack = stack[:len(stack)-1]
			}
		case *ast.CodeSpan:
			if entering {
				stack = append(stack, cur()|layout.StyleCode)
			} else {
				stack = stack[:len(stack)-1]
			}
		case *ast.Text:
			if !entering {
				break
			}
			spans = append(spans, span{text: string(v.Value(t.src)), style: cur()})
			switch {
			case v.HardLineBreak():
				spans = append(spans, span{text: "\n", style: cur()})
			case v.SoftLineBreak():
				spans = append(spans, span{text: " ", style: cur()})
			}
		case *ast.String:
			if entering {
				spans = append(spans, span{text: string(v.Value), style: cur()})
			}
		case *ast.AutoLink:
			if entering {
				spans = append(spans, span{text: string(v.Label(t.src)), style: cur()})
			}
			return ast.WalkSkipChildren, nil
		case *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return spans
}
