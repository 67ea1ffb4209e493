package annotate

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"github.com/smartlecturer/lecturer/internal/render"
)

// Explainer is the single-page call the pool dispatches. *Client implements it.
type Explainer interface {
	Explain(ctx context.Context, job *Job) (string, error)
}

// Result is the outcome for one page: exactly one of Text or Err is
// meaningful. Preview is set whenever the page rendered.
type Result struct {
	Page    int
	Text    string
	Err     error
	Kind    ErrorKind
	Preview []byte
}

// OK reports whether the call succeeded.
func (r Result) OK() bool { return r.Err == nil }

// PoolConfig configures a Pool.
type PoolConfig struct {
	Explainer Explainer
	Renderer  render.Renderer

	Instruction string
	Document    string
	DPI         int
	PreviewSize int

	// Concurrency bounds in-flight pages (default 1).
	Concurrency int

	// OnProgress receives (completed, total) after each page of a pass.
	OnProgress func(completed, total int)

	Logger *slog.Logger
}

// Pool runs annotation passes with bounded concurrency.
// Workers pull pages from a shared queue and push results to a single
// aggregator, which owns progress counting.
type Pool struct {
	explainer   Explainer
	renderer    render.Renderer
	instruction string
	document    string
	dpi         int
	previewSize int
	concurrency int
	onProgress  func(int, int)
	logger      *slog.Logger
}

// NewPool creates a Pool.
func NewPool(cfg PoolConfig) (*Pool, error) {
	if cfg.Explainer == nil {
		return nil, errors.New("annotate: explainer is required")
	}
	if cfg.Renderer == nil {
		return nil, errors.New("annotate: renderer is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dpi := cfg.DPI
	if dpi <= 0 {
		dpi = render.DefaultDPI
	}
	previewSize := cfg.PreviewSize
	if previewSize <= 0 {
		previewSize = render.DefaultPreviewSize
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	return &Pool{
		explainer:   cfg.Explainer,
		renderer:    cfg.Renderer,
		instruction: cfg.Instruction,
		document:    cfg.Document,
		dpi:         dpi,
		previewSize: previewSize,
		concurrency: concurrency,
		onProgress:  cfg.OnProgress,
		logger:      logger,
	}, nil
}

// RunPass processes pages and returns one result per page, sorted by page
// index. Page failures are isolated; the pass always completes.
func (p *Pool) RunPass(ctx context.Context, pages []int) []Result {
	total := len(pages)
	if total == 0 {
		return nil
	}

	queue := make(chan int, total)
	for _, idx := range pages {
		queue <- idx
	}
	close(queue)

	workers := min(p.concurrency, total)
	results := make(chan Result)
	for i := 0; i < workers; i++ {
		go func() {
			for idx := range queue {
				results <- p.process(ctx, idx)
			}
		}()
	}

	out := make([]Result, 0, total)
	for completed := 1; completed <= total; completed++ {
		r := <-results
		out = append(out, r)
		if r.OK() {
			p.logger.Debug("page completed", "page", r.Page, "completed", completed, "total", total)
		} else {
			p.logger.Warn("page failed", "page", r.Page, "kind", r.Kind, "error", r.Err)
		}
		if p.onProgress != nil {
			p.onProgress(completed, total)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Page < out[j].Page })
	return out
}

func (p *Pool) process(ctx context.Context, page int) Result {
	res := Result{Page: page}

	image, err := p.renderer.Render(ctx, page, p.dpi)
	if err != nil {
		res.Err = &RenderError{Page: page, Err: err}
		res.Kind = KindRender
		return res
	}

	preview, err := render.Preview(image, p.previewSize)
	if err != nil {
		p.logger.Warn("preview failed", "page", page, "error", err)
	} else {
		res.Preview = preview
	}

	text, err := p.explainer.Explain(ctx, &Job{
		Page:        page,
		Image:       image,
		Instruction: p.instruction,
		Document:    p.document,
	})
	if err != nil {
		res.Err = err
		res.Kind = KindOf(err)
		return res
	}
	res.Text = text
	return res
}
