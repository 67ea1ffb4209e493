package compose

import (
	"fmt"

	"github.com/smartlecturer/lecturer/internal/layout"
	"github.com/smartlecturer/lecturer/internal/source"
)

// Report summarises a composed document.
type Report struct {
	Pages       []PageOutcome
	OutputPages int

	// Continued, Truncated and Clipped list source page indices.
	Continued []int
	Truncated []int
	Clipped   []int
}

// ComposeDocument composes every page of doc. Pages without an
// explanation get an empty text region.
func ComposeDocument(t Target, doc *source.Document, explanations map[int]string, opts Options) (*Report, error) {
	if doc == nil || doc.PageCount() == 0 {
		return nil, source.ErrInvalidDocument
	}
	logger := opts.logger()

	rep := &Report{Pages: make([]PageOutcome, 0, doc.PageCount())}
	for _, pg := range doc.Pages {
		plan := layout.PlanPage(pg.Width(), pg.Height(), explanations[pg.Index], opts.Layout)

		out, err := ComposePage(t, pg, plan, opts)
		if err != nil {
			return nil, fmt.Errorf("compose page %d: %w", pg.Index+1, err)
		}

		rep.Pages = append(rep.Pages, out)
		rep.OutputPages++
		if out.Continuation {
			rep.OutputPages++
			rep.Continued = append(rep.Continued, pg.Index)
		}
		if out.Truncated != "" {
			rep.Truncated = append(rep.Truncated, pg.Index)
		}
		if out.Clipped {
			rep.Clipped = append(rep.Clipped, pg.Index)
		}
	}

	logger.Info("document composed",
		"source_pages", doc.PageCount(),
		"output_pages", rep.OutputPages,
		"continued", len(rep.Continued),
		"truncated", len(rep.Truncated),
		"clipped", len(rep.Clipped))
	return rep, nil
}
