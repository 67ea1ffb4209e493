package annotate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/smartlecturer/lecturer/internal/metrics"
)

// ErrNoPages is returned when there is nothing to annotate.
var ErrNoPages = errors.New("no pages to annotate")

// Outcome is the result of a full annotation run.
type Outcome struct {
	Explanations ExplanationMap

	// Previews is indexed by page; pages outside the run stay nil.
	Previews [][]byte

	// Unresolved lists pages that never produced usable text.
	Unresolved []int

	// Results holds the first pass, sorted by page.
	Results []Result
	Retry   Report
}

// PipelineConfig configures a Pipeline.
type PipelineConfig struct {
	Pool   Passer
	Blank  BlankRetryConfig
	Logger *slog.Logger
}

// Pipeline runs the initial pass followed by blank remediation.
type Pipeline struct {
	pool   Passer
	coord  *Coordinator
	logger *slog.Logger
}

// NewPipeline creates a Pipeline.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		pool:   cfg.Pool,
		coord:  NewCoordinator(cfg.Pool, cfg.Blank, logger),
		logger: logger,
	}
}

// Run annotates pages of a document with pageCount pages. A nil pages
// slice means every page; repeated indices are annotated once. Run blocks until all passes complete.
func (p *Pipeline) Run(ctx context.Context, pageCount int, pages []int) (*Outcome, error) {
	if pageCount <= 0 {
		return nil, ErrNoPages
	}
	if pages == nil {
		pages = make([]int, pageCount)
		for i := range pages {
			pages[i] = i
		}
	}
	seen := make(map[int]bool, len(pages))
	unique := make([]int, 0, len(pages))
	for _, idx := range pages {
		if idx < 0 || idx >= pageCount {
			return nil, fmt.Errorf("page %d out of range [0,%d)", idx, pageCount)
		}
		if !seen[idx] {
			seen[idx] = true
			unique = append(unique, idx)
		}
	}
	pages = unique
	if len(pages) == 0 {
		return nil, ErrNoPages
	}

	start := time.Now()
	p.logger.Info("annotation started", "pages", len(pages))

	out := &Outcome{
		Explanations: make(ExplanationMap, len(pages)),
		Previews:     make([][]byte, pageCount),
	}

	out.Results = p.pool.RunPass(ctx, pages)
	for _, r := range out.Results {
		out.Previews[r.Page] = r.Preview
		if r.OK() {
			out.Explanations[r.Page] = r.Text
		}
	}

	report, retried := p.coord.Remediate(ctx, out.Explanations, pages)
	for _, r := range retried {
		if out.Previews[r.Page] == nil {
			out.Previews[r.Page] = r.Preview
		}
	}
	out.Retry = report
	out.Unresolved = report.Unresolved

	unresolved := make(map[int]bool, len(out.Unresolved))
	for _, idx := range out.Unresolved {
		unresolved[idx] = true
	}
	for _, idx := range pages {
		switch {
		case !unresolved[idx]:
			metrics.PageProcessed(metrics.StatusExplained)
		case hasText(out.Explanations, idx):
			metrics.PageProcessed(metrics.StatusBlank)
		default:
			metrics.PageProcessed(metrics.StatusFailed)
		}
	}

	p.logger.Info("annotation finished",
		"pages", len(pages),
		"explained", len(pages)-len(out.Unresolved),
		"unresolved", displayPages(out.Unresolved),
		"retry_passes", report.Passes,
		"elapsed", time.Since(start))

	return out, nil
}

func hasText(m ExplanationMap, idx int) bool {
	_, ok := m[idx]
	return ok
}
