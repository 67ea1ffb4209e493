// Package source opens and validates input PDF documents.
package source

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// ErrInvalidDocument is returned for documents that cannot be annotated:
// no pages, or a page with non-positive extents.
var ErrInvalidDocument = errors.New("invalid source document")

// Page describes one source page.
type Page struct {
	Index int // 0-based

	// MediaBox corners in PDF user space.
	LLX, LLY, URX, URY float64

	// Rotate is the declared /Rotate, normalised to 0, 90, 180 or 270.
	Rotate int
}

// Width returns the unrotated page width.
func (p Page) Width() float64 { return p.URX - p.LLX }

// Height returns the unrotated page height.
func (p Page) Height() float64 { return p.URY - p.LLY }

// Document is an immutable, validated source PDF.
type Document struct {
	Name  string
	Pages []Page

	data []byte
}

// Open parses and validates a PDF held in memory. The bytes are retained and
// must not be modified by the caller afterwards.
func Open(name string, data []byte) (*Document, error) {
	ctx, err := ReadContext(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidDocument, name, err)
	}
	if ctx.PageCount == 0 {
		return nil, fmt.Errorf("%w: %s has no pages", ErrInvalidDocument, name)
	}

	doc := &Document{Name: name, data: data, Pages: make([]Page, 0, ctx.PageCount)}
	for i := 1; i <= ctx.PageCount; i++ {
		_, _, inh, err := ctx.PageDict(i, false)
		if err != nil {
			return nil, fmt.Errorf("%w: %s page %d: %v", ErrInvalidDocument, name, i, err)
		}
		if inh == nil || inh.MediaBox == nil {
			return nil, fmt.Errorf("%w: %s page %d has no media box", ErrInvalidDocument, name, i)
		}
		mb := inh.MediaBox
		p := Page{
			Index:  i - 1,
			LLX:    mb.LL.X,
			LLY:    mb.LL.Y,
			URX:    mb.UR.X,
			URY:    mb.UR.Y,
			Rotate: NormalizeRotation(inh.Rotate),
		}
		if p.Width() <= 0 || p.Height() <= 0 {
			return nil, fmt.Errorf("%w: %s page %d has extents %.1fx%.1f", ErrInvalidDocument, name, i, p.Width(), p.Height())
		}
		doc.Pages = append(doc.Pages, p)
	}
	return doc, nil
}

// OpenFile reads and opens a PDF from disk.
func OpenFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF: %w", err)
	}
	return Open(Stem(path), data)
}

// Bytes returns the raw document. Callers must treat it as read-only.
func (d *Document) Bytes() []byte { return d.data }

// PageCount returns the number of pages.
func (d *Document) PageCount() int { return len(d.Pages) }

// ReadContext parses PDF bytes into a fresh pdfcpu context. Each call yields an
// independent object graph, so callers may mutate it freely.
func ReadContext(data []byte) (*model.Context, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadContext(bytes.NewReader(data), conf)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF: %w", err)
	}
	if err := api.ValidateContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to validate PDF: %w", err)
	}
	return ctx, nil
}

// PageCount reports the page count of a PDF file without a full open.
func PageCount(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	n, err := api.PageCount(f, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to get page count: %w", err)
	}
	return n, nil
}

// NormalizeRotation maps any multiple of 90 into [0, 360).
func NormalizeRotation(r int) int {
	r %= 360
	if r < 0 {
		r += 360
	}
	return r
}

// Stem returns the file name without directory or extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
