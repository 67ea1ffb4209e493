package compose

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartlecturer/lecturer/internal/layout"
	"github.com/smartlecturer/lecturer/internal/source"
)

type textCall struct {
	x, y, size float64
	style      layout.FontStyle
	s          string
}

type fakeCanvas struct {
	w, h   float64
	embeds []int
	texts  []textCall
	rules  int
}

func (c *fakeCanvas) EmbedSource(i int) error {
	c.embeds = append(c.embeds, i)
	return nil
}

func (c *fakeCanvas) Text(x, y, size float64, style layout.FontStyle, s string) {
	c.texts = append(c.texts, textCall{x, y, size, style, s})
}

func (c *fakeCanvas) Rule(x0, x1, y float64) { c.rules++ }

type fakeTarget struct {
	pages   []*fakeCanvas
	failNew bool
}

func (t *fakeTarget) NewPage(w, h float64) (Canvas, error) {
	if t.failNew {
		return nil, errors.New("no pages today")
	}
	c := &fakeCanvas{w: w, h: h}
	t.pages = append(t.pages, c)
	return c, nil
}

func (t *fakeTarget) Measurer() layout.Measurer { return layout.EstimateMeasurer{} }

// columnText joins the lines drawn at x in drawing order.
func columnText(c *fakeCanvas, x float64) string {
	var b strings.Builder
	for _, tc := range c.texts {
		if tc.x == x {
			b.WriteString(tc.s)
		}
	}
	return b.String()
}

func cjk(n int) string {
	src := []rune("梯度下降算法通过迭代更新参数使损失函数逐步减小")
	out := make([]rune, n)
	for i := range out {
		out[i] = src[i%len(src)]
	}
	return string(out)
}

var plain = Options{Layout: layout.Options{FontSize: 12, LineSpacing: 1.2, Mode: layout.ModePlain}}

func TestComposePageContinuation(t *testing.T) {
	src := source.Page{Index: 2, URX: 400, URY: 600}
	text := cjk(3000)
	plan := layout.PlanPage(400, 600, text, plain.Layout)
	require.Equal(t, 3, plan.Columns)
	require.False(t, plan.Overflow())

	ft := &fakeTarget{}
	out, err := ComposePage(ft, src, plan, plain)
	require.NoError(t, err)

	require.Len(t, ft.pages, 2)
	assert.True(t, out.Continuation)
	assert.Empty(t, out.Truncated)

	primary, cont := ft.pages[0], ft.pages[1]
	assert.Equal(t, []int{2}, primary.embeds)
	assert.Empty(t, cont.embeds)
	assert.Equal(t, 1200.0, primary.w)
	assert.Equal(t, 600.0, primary.h)
	assert.Equal(t, primary.w, cont.w)

	require.NotEmpty(t, cont.texts)
	header := cont.texts[0]
	assert.Equal(t, "page 3 — continued", header.s)
	assert.Equal(t, layout.TopMargin, header.y)
	assert.True(t, header.style.Has(layout.StyleBold))

	contRects := layout.Columns(400, 600, 3, plain.Layout, layout.HeaderBand)
	var rebuilt strings.Builder
	for i, r := range plan.Rects {
		first := columnText(primary, r.X0)
		assert.Equal(t, 648, utf8.RuneCountInString(first), "column %d", i)
		rebuilt.WriteString(first)

		rest := columnText(cont, contRects[i].X0)
		assert.Equal(t, 352, utf8.RuneCountInString(rest), "column %d", i)
		rebuilt.WriteString(rest)
	}
	assert.Equal(t, text, rebuilt.String())

	for _, tc := range cont.texts[1:] {
		assert.GreaterOrEqual(t, tc.y, layout.TopMargin+layout.HeaderBand)
	}
}

func TestComposePageFitsOnePage(t *testing.T) {
	src := source.Page{Index: 0, URX: 612, URY: 792}
	plan := layout.PlanPage(612, 792, "Short explanation of the slide.", plain.Layout)

	ft := &fakeTarget{}
	out, err := ComposePage(ft, src, plan, plain)
	require.NoError(t, err)

	require.Len(t, ft.pages, 1)
	assert.False(t, out.Continuation)
	assert.Equal(t, 1, out.Plan.Columns)
	assert.Equal(t, "Short explanation of the slide.", columnText(ft.pages[0], plan.Rects[0].X0))
}

func TestComposePageTruncates(t *testing.T) {
	src := source.Page{Index: 0, URX: 100, URY: 200}
	text := cjk(5000)
	plan := layout.PlanPage(100, 200, text, plain.Layout)
	require.True(t, plan.Overflow())

	ft := &fakeTarget{}
	out, err := ComposePage(ft, src, plan, plain)
	require.NoError(t, err)

	require.Len(t, ft.pages, 2)
	assert.True(t, out.Continuation)
	require.NotEmpty(t, out.Truncated)
	runes := []rune(text)
	assert.True(t, strings.HasSuffix(out.Truncated, string(runes[len(runes)-10:])))
}

func TestComposePageEmptyRight(t *testing.T) {
	opts := Options{Layout: layout.Options{Mode: layout.ModeEmptyRight}}
	src := source.Page{Index: 1, URX: 400, URY: 600}
	plan := layout.PlanPage(400, 600, cjk(3000), opts.Layout)

	ft := &fakeTarget{}
	out, err := ComposePage(ft, src, plan, opts)
	require.NoError(t, err)

	require.Len(t, ft.pages, 1)
	assert.Equal(t, []int{1}, ft.pages[0].embeds)
	assert.Empty(t, ft.pages[0].texts)
	assert.False(t, out.Continuation)
}

func TestComposePageRich(t *testing.T) {
	opts := Options{Layout: layout.Options{FontSize: 12, Mode: layout.ModeMarkdown}}
	src := source.Page{Index: 0, URX: 400, URY: 600}
	md := "## Gradient\n\nThe **slope** of the loss.\n\n---\n\n- step one\n- step two"
	plan := layout.PlanPage(400, 600, md, opts.Layout)

	ft := &fakeTarget{}
	out, err := ComposePage(ft, src, plan, opts)
	require.NoError(t, err)

	require.Len(t, ft.pages, 1)
	assert.Zero(t, out.RichFallbacks)
	c := ft.pages[0]
	assert.Equal(t, 1, c.rules)

	var bold []string
	for _, tc := range c.texts {
		if tc.style.Has(layout.StyleBold) {
			bold = append(bold, tc.s)
		}
	}
	assert.Contains(t, bold, "slope")
	assert.Contains(t, bold, "Gradient")
}

func TestComposePageRichFallback(t *testing.T) {
	// A font this large leaves no room for rich typesetting in a narrow column.
	opts := Options{Layout: layout.Options{FontSize: 60, Mode: layout.ModeMarkdown}}
	src := source.Page{Index: 0, URX: 100, URY: 600}
	plan := layout.PlanPage(100, 600, "**x**", opts.Layout)

	ft := &fakeTarget{}
	out, err := ComposePage(ft, src, plan, opts)
	require.NoError(t, err)
	assert.Equal(t, 1, out.RichFallbacks)
}

func TestComposePageRotatedSource(t *testing.T) {
	// Geometry follows the unrotated media box.
	src := source.Page{Index: 0, URX: 400, URY: 600, Rotate: 90}
	plan := layout.PlanPage(src.Width(), src.Height(), "rotated", plain.Layout)

	ft := &fakeTarget{}
	_, err := ComposePage(ft, src, plan, plain)
	require.NoError(t, err)

	require.Len(t, ft.pages, 1)
	assert.Equal(t, 1200.0, ft.pages[0].w)
	assert.Equal(t, 600.0, ft.pages[0].h)
	assert.Equal(t, 90, src.Rotate)
}

func TestComposePageTargetError(t *testing.T) {
	_, err := ComposePage(&fakeTarget{failNew: true}, source.Page{URX: 10, URY: 10}, layout.Plan{}, plain)
	assert.Error(t, err)
}

func TestComposeDocument(t *testing.T) {
	doc := &source.Document{
		Name: "lecture",
		Pages: []source.Page{
			{Index: 0, URX: 400, URY: 600},
			{Index: 1, URX: 400, URY: 600},
			{Index: 2, URX: 400, URY: 600},
		},
	}
	explanations := map[int]string{0: "first", 1: cjk(3000)}

	ft := &fakeTarget{}
	rep, err := ComposeDocument(ft, doc, explanations, plain)
	require.NoError(t, err)

	assert.Equal(t, 4, rep.OutputPages)
	assert.Len(t, ft.pages, 4)
	assert.Equal(t, []int{1}, rep.Continued)
	assert.Empty(t, rep.Truncated)
	require.Len(t, rep.Pages, 3)
	assert.Empty(t, ft.pages[3].texts, "page without explanation")

	_, err = ComposeDocument(ft, &source.Document{}, nil, plain)
	assert.ErrorIs(t, err, source.ErrInvalidDocument)
}

func TestComposeDocumentReportsClippedRichText(t *testing.T) {
	doc := &source.Document{
		Name: "lecture",
		Pages: []source.Page{
			{Index: 0, URX: 400, URY: 600},
			{Index: 1, URX: 400, URY: 600},
		},
	}
	explanations := map[int]string{0: "short", 1: cjk(3000)}
	opts := Options{Layout: layout.Options{FontSize: 12, LineSpacing: 1.2, Mode: layout.ModeMarkdown}}

	ft := &fakeTarget{}
	rep, err := ComposeDocument(ft, doc, explanations, opts)
	require.NoError(t, err)

	require.Len(t, rep.Pages, 2)
	assert.False(t, rep.Pages[0].Clipped)
	assert.True(t, rep.Pages[1].Clipped)
	assert.Equal(t, []int{1}, rep.Clipped)
	assert.Equal(t, []int{1}, rep.Continued)
	assert.Empty(t, rep.Truncated, "rich placement reports clipping, not truncation")
}
