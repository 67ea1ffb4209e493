package batch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/smartlecturer/lecturer/internal/explain"
	"github.com/smartlecturer/lecturer/internal/source"
)

// MaxDocuments bounds a batch.
const MaxDocuments = 20

var (
	// ErrNoDocuments is returned for an empty batch.
	ErrNoDocuments = errors.New("no documents")

	// ErrTooManyDocuments is returned for batches above MaxDocuments.
	ErrTooManyDocuments = errors.New("too many documents")
)

// Summary is the result of a batch. Outputs follow processing order.
type Summary struct {
	Outputs []*Output
	Elapsed time.Duration
}

// Succeeded returns the outputs that were produced.
func (s *Summary) Succeeded() []*Output {
	var out []*Output
	for _, o := range s.Outputs {
		if o.OK() {
			out = append(out, o)
		}
	}
	return out
}

// Failed counts documents that could not be produced.
func (s *Summary) Failed() int {
	return len(s.Outputs) - len(s.Succeeded())
}

func checkSize(n int) error {
	switch {
	case n == 0:
		return ErrNoDocuments
	case n > MaxDocuments:
		return fmt.Errorf("%w: %d given, at most %d", ErrTooManyDocuments, n, MaxDocuments)
	}
	return nil
}

// Run processes PDFs one after another. A failed document is recorded in
// its Output and the batch moves on; cancellation marks the remaining
// documents as failed.
func (p *Processor) Run(ctx context.Context, paths []string) (*Summary, error) {
	if err := checkSize(len(paths)); err != nil {
		return nil, err
	}
	logger := p.logger()
	start := time.Now()

	sorted := sortPDFsByNumber(paths)
	logger.Info("batch started", "documents", len(sorted))

	sum := &Summary{}
	for i, path := range sorted {
		out := &Output{Name: source.Stem(path), Source: path}
		sum.Outputs = append(sum.Outputs, out)

		if err := ctx.Err(); err != nil {
			out.Err = err
			continue
		}

		logger.Info("processing document", "file", filepath.Base(path), "part", i+1, "of", len(sorted))
		doc, err := source.OpenFile(path)
		if err != nil {
			out.Err = err
			logger.Error("document failed", "file", filepath.Base(path), "error", err)
			continue
		}

		res, err := p.Process(ctx, doc)
		if err != nil {
			out.Err = err
			logger.Error("document failed", "file", filepath.Base(path), "error", err)
			continue
		}
		res.Source = path
		*out = *res
	}

	sum.Elapsed = time.Since(start)
	logger.Info("batch finished",
		"documents", len(sum.Outputs),
		"failed", sum.Failed(),
		"elapsed", sum.Elapsed)
	return sum, nil
}

// Recompose composes paired PDFs from their exported explanations without
// calling the generation service.
func (p *Processor) Recompose(matches []explain.Match) (*Summary, error) {
	if err := checkSize(len(matches)); err != nil {
		return nil, err
	}
	logger := p.logger()
	start := time.Now()

	sum := &Summary{}
	for _, m := range matches {
		out := &Output{Name: source.Stem(m.PDF), Source: m.PDF}
		sum.Outputs = append(sum.Outputs, out)

		if err := p.recomposeOne(out, m); err != nil {
			out.Err = err
			logger.Error("recompose failed", "file", filepath.Base(m.PDF), "error", err)
		}
	}

	sum.Elapsed = time.Since(start)
	logger.Info("recompose finished", "documents", len(sum.Outputs), "failed", sum.Failed())
	return sum, nil
}

func (p *Processor) recomposeOne(out *Output, m explain.Match) error {
	start := time.Now()
	doc, err := source.OpenFile(m.PDF)
	if err != nil {
		return err
	}
	explanations, err := explain.ReadFile(m.JSON)
	if err != nil {
		return err
	}

	pdf, report, err := p.ComposeDocument(doc, explanations)
	if err != nil {
		return err
	}
	out.PDF = pdf
	out.Report = report
	out.Explanations = explanations
	for i := range doc.PageCount() {
		if _, ok := explanations[i]; !ok {
			out.Unresolved = append(out.Unresolved, i)
		}
	}
	out.Elapsed = time.Since(start)
	return nil
}

var numberSuffix = regexp.MustCompile(`-(\d+)\.pdf$`)

// sortPDFsByNumber sorts PDF paths by their numeric suffix.
// e.g., ["deck-2.pdf", "deck-1.pdf", "deck-10.pdf"] -> ["deck-1.pdf", "deck-2.pdf", "deck-10.pdf"]
func sortPDFsByNumber(paths []string) []string {
	sorted := make([]string, len(paths))
	copy(sorted, paths)

	sort.SliceStable(sorted, func(i, j int) bool {
		mi := numberSuffix.FindStringSubmatch(sorted[i])
		mj := numberSuffix.FindStringSubmatch(sorted[j])

		if len(mi) > 1 && len(mj) > 1 {
			ni, _ := strconv.Atoi(mi[1])
			nj, _ := strconv.Atoi(mj[1])
			return ni < nj
		}

		// Files without numbers come first
		if len(mi) > 1 {
			return false
		}
		if len(mj) > 1 {
			return true
		}

		return sorted[i] < sorted[j]
	})

	return sorted
}

var trailingNumber = regexp.MustCompile(`-\d+$`)

// deriveTitle extracts a title from a PDF filename.
// e.g., "week-3.pdf" -> "week"
func deriveTitle(pdfPath string) string {
	base := filepath.Base(pdfPath)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return trailingNumber.ReplaceAllString(name, "")
}
