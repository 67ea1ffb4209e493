// Package compose turns layout plans into output pages: the source page
// embedded in the left third, explanation columns on the right and at most
// one continuation page for text that did not fit.
package compose

import (
	"fmt"
	"log/slog"

	"github.com/smartlecturer/lecturer/internal/layout"
	"github.com/smartlecturer/lecturer/internal/metrics"
	"github.com/smartlecturer/lecturer/internal/richtext"
	"github.com/smartlecturer/lecturer/internal/source"
)

// Canvas is one output page. Coordinates are top-left origin; y is the
// text baseline.
type Canvas interface {
	// EmbedSource draws a source page unchanged at the page origin at its
	// original scale, ignoring the source rotation.
	EmbedSource(pageIndex int) error

	Text(x, y, size float64, style layout.FontStyle, s string)
	Rule(x0, x1, y float64)
}

// Target creates output pages.
type Target interface {
	NewPage(width, height float64) (Canvas, error)
	Measurer() layout.Measurer
}

// Options controls composition.
type Options struct {
	Layout layout.Options
	Logger *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

// PageOutcome describes the output for one source page.
type PageOutcome struct {
	Page int
	Plan layout.Plan

	// Continuation is set when a continuation page follows the primary page.
	Continuation bool

	// Truncated is text that fit neither page.
	Truncated string

	// RichFallbacks counts columns placed as plain text after rich
	// typesetting failed.
	RichFallbacks int

	// Clipped is set when rich text ran past a column of the last page it
	// was placed on. The lost text is not measured.
	Clipped bool
}

// ContinuationHeader is the heading of a continuation page.
func ContinuationHeader(page int) string {
	return fmt.Sprintf("page %d — continued", page+1)
}

// ComposePage emits the primary page for src and, when any column
// overflows, one continuation page.
func ComposePage(t Target, src source.Page, plan layout.Plan, opts Options) (PageOutcome, error) {
	lo := opts.Layout.WithDefaults()
	logger := opts.logger().With("page", src.Index)
	out := PageOutcome{Page: src.Index, Plan: plan}

	w, h := src.Width(), src.Height()
	ow, oh := layout.OutputSize(w, h)

	primary, err := t.NewPage(ow, oh)
	if err != nil {
		return out, fmt.Errorf("new page: %w", err)
	}
	if err := primary.EmbedSource(src.Index); err != nil {
		return out, fmt.Errorf("embed page %d: %w", src.Index+1, err)
	}
	if lo.Mode == layout.ModeEmptyRight {
		return out, nil
	}

	p := &placer{m: t.Measurer(), opts: lo, logger: logger, out: &out}

	cont := make([]string, len(plan.Rects))
	overflow := false
	for i, rect := range plan.Rects {
		var seg, planned string
		if i < len(plan.Segments) {
			seg = plan.Segments[i]
		}
		if i < len(plan.Leftovers) {
			planned = plan.Leftovers[i]
		}
		cont[i] = p.place(primary, rect, seg) + planned
		if cont[i] != "" {
			overflow = true
		}
	}

	if overflow {
		page, err := t.NewPage(ow, oh)
		if err != nil {
			return out, fmt.Errorf("new continuation page: %w", err)
		}
		out.Continuation = true

		page.Text(w+layout.SideMargin, layout.TopMargin, lo.FontSize, layout.StyleBold, ContinuationHeader(src.Index))

		rects := layout.Columns(w, h, len(plan.Rects), lo, layout.HeaderBand)
		for i, rect := range rects {
			out.Truncated += p.place(page, rect, cont[i])
		}
	}

	if out.Truncated != "" {
		logger.Warn("explanation truncated", "runes", len([]rune(out.Truncated)))
	}
	if out.Clipped {
		logger.Warn("rich text clipped at column bottom", "continued", out.Continuation)
	}
	metrics.ObserveLayout(plan.Columns, out.Continuation, out.Truncated != "", out.Clipped)
	return out, nil
}

type placer struct {
	m      layout.Measurer
	opts   layout.Options
	logger *slog.Logger
	out    *PageOutcome
}

// place draws text into rect and returns what did not fit. Rich text is
// always reported as fully placed.
func (p *placer) place(c Canvas, rect layout.ColumnRect, text string) string {
	if text == "" {
		return ""
	}

	if p.opts.Mode.Rich() {
		res, err := richtext.Layout(text, richtext.Box{X0: rect.X0, Y0: rect.Y0, X1: rect.X1, Y1: rect.Y1},
			richtext.Options{FontSize: p.opts.FontSize, LineSpacing: p.opts.LineSpacing}, p.m)
		if err == nil {
			for _, r := range res.Runs {
				c.Text(r.X, r.Y, r.Size, r.Style, r.Text)
			}
			for _, r := range res.Rules {
				c.Rule(r.X0, r.X1, r.Y)
			}
			if res.Clipped {
				p.out.Clipped = true
				p.logger.Debug("column clipped", "x", rect.X0)
			}
			return ""
		}
		p.logger.Warn("rich text placement failed, using plain text", "error", err)
		p.out.RichFallbacks++
	}

	fit := layout.Fit(text, rect.Width(), rect.Height(), p.opts, p.m)
	for i, line := range fit.Lines {
		if line.Text == "" {
			continue
		}
		y := rect.Y0 + p.opts.FontSize + float64(i)*p.opts.LineHeight()
		c.Text(rect.X0, y, p.opts.FontSize, layout.StyleRegular, line.Text)
	}
	return fit.Leftover
}
