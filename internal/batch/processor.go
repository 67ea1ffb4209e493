// Package batch runs the annotate-and-compose flow over one or more
// documents and packages the results.
package batch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/smartlecturer/lecturer/internal/annotate"
	"github.com/smartlecturer/lecturer/internal/compose"
	"github.com/smartlecturer/lecturer/internal/pdfout"
	"github.com/smartlecturer/lecturer/internal/render"
	"github.com/smartlecturer/lecturer/internal/source"
)

// RendererFactory creates the page renderer for a document. Renderers that
// implement io.Closer are closed when the document is done.
type RendererFactory func(doc *source.Document) (render.Renderer, error)

// Pdftoppm is the default RendererFactory.
func Pdftoppm(doc *source.Document) (render.Renderer, error) {
	return render.NewPdftoppm(doc.Bytes())
}

// Processor annotates and composes documents. The Explainer, and with it
// the rate limiter, is shared by every document.
type Processor struct {
	Explainer   annotate.Explainer
	NewRenderer RendererFactory

	Instruction string
	DPI         int
	PreviewSize int
	Concurrency int
	Blank       annotate.BlankRetryConfig

	Compose  compose.Options
	FontPath string

	// OnProgress receives per-document pass progress.
	OnProgress func(document string, completed, total int)

	Logger *slog.Logger
}

func (p *Processor) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}

// Output is the result for one document.
type Output struct {
	Name   string // file stem
	Source string // input path, if any

	PDF          []byte
	Explanations map[int]string
	Previews     [][]byte

	// Unresolved lists pages that never produced usable text.
	Unresolved []int
	Report     *compose.Report

	Err     error
	Elapsed time.Duration
}

// OK reports whether the document was produced.
func (o *Output) OK() bool { return o.Err == nil }

// Process annotates every page of doc and composes the output.
func (p *Processor) Process(ctx context.Context, doc *source.Document) (*Output, error) {
	start := time.Now()
	logger := p.logger().With("document", doc.Name)

	factory := p.NewRenderer
	if factory == nil {
		factory = Pdftoppm
	}
	renderer, err := factory(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare renderer: %w", err)
	}
	if c, ok := renderer.(io.Closer); ok {
		defer c.Close()
	}

	var progress func(int, int)
	if p.OnProgress != nil {
		progress = func(completed, total int) { p.OnProgress(doc.Name, completed, total) }
	}

	pool, err := annotate.NewPool(annotate.PoolConfig{
		Explainer:   p.Explainer,
		Renderer:    renderer,
		Instruction: p.Instruction,
		Document:    doc.Name,
		DPI:         p.DPI,
		PreviewSize: p.PreviewSize,
		Concurrency: p.Concurrency,
		OnProgress:  progress,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}

	pipeline := annotate.NewPipeline(annotate.PipelineConfig{
		Pool:   pool,
		Blank:  p.Blank,
		Logger: logger,
	})
	outcome, err := pipeline.Run(ctx, doc.PageCount(), nil)
	if err != nil {
		return nil, fmt.Errorf("annotate %s: %w", doc.Name, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("annotate %s: %w", doc.Name, err)
	}

	pdf, report, err := p.ComposeDocument(doc, outcome.Explanations)
	if err != nil {
		return nil, err
	}

	return &Output{
		Name:         doc.Name,
		PDF:          pdf,
		Explanations: outcome.Explanations,
		Previews:     outcome.Previews,
		Unresolved:   outcome.Unresolved,
		Report:       report,
		Elapsed:      time.Since(start),
	}, nil
}

// ComposeDocument lays out explanations next to the pages of doc.
func (p *Processor) ComposeDocument(doc *source.Document, explanations map[int]string) ([]byte, *compose.Report, error) {
	opts := p.Compose
	if opts.Logger == nil {
		opts.Logger = p.logger().With("document", doc.Name)
	}

	w, err := pdfout.New(doc, pdfout.Options{FontPath: p.FontPath, Logger: opts.Logger})
	if err != nil {
		return nil, nil, fmt.Errorf("compose %s: %w", doc.Name, err)
	}
	report, err := compose.ComposeDocument(w, doc, explanations, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("compose %s: %w", doc.Name, err)
	}
	pdf, err := w.Bytes()
	if err != nil {
		return nil, nil, fmt.Errorf("compose %s: %w", doc.Name, err)
	}
	return pdf, report, nil
}
