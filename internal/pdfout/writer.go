// Package pdfout writes annotated output documents with pdfcpu.
//
// The output is built on a fresh parse of the source document: every
// source page is wrapped into a form XObject, new pages are appended to the
// object graph and the page tree is replaced by them before writing. Objects
// only reachable from the old pages are dropped by the writer.
package pdfout

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/filter"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/smartlecturer/lecturer/internal/compose"
	"github.com/smartlecturer/lecturer/internal/layout"
	"github.com/smartlecturer/lecturer/internal/source"
)

var (
	// ErrNoSuchPage is returned when embedding a page the source lacks.
	ErrNoSuchPage = errors.New("no such source page")

	// ErrFinished is returned when drawing after the document was written.
	ErrFinished = errors.New("output already written")
)

// Options configures a Writer.
type Options struct {
	// FontPath is a TrueType font for explanation text. When empty, or when
	// the file cannot be used, the core Helvetica fonts are used.
	FontPath string

	// FontData takes precedence over FontPath.
	FontData []byte

	Logger *slog.Logger
}

type sourcePage struct {
	dict      types.Dict
	resources types.Object
}

// Writer is a compose.Target producing a PDF document.
type Writer struct {
	ctx    *model.Context
	doc    *source.Document
	src    []sourcePage
	face   fontFace
	logger *slog.Logger

	forms    map[int]types.IndirectRef
	pages    []*Canvas
	finished bool
	out      []byte
}

// New prepares an output document for doc.
func New(doc *source.Document, opts Options) (*Writer, error) {
	if doc == nil || doc.PageCount() == 0 {
		return nil, source.ErrInvalidDocument
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, err := source.ReadContext(doc.Bytes())
	if err != nil {
		return nil, err
	}

	w := &Writer{
		ctx:    ctx,
		doc:    doc,
		logger: logger,
		forms:  make(map[int]types.IndirectRef),
		face:   loadFace(opts, logger),
	}

	w.src = make([]sourcePage, ctx.PageCount)
	for i := range w.src {
		d, _, inh, err := ctx.PageDict(i+1, false)
		if err != nil {
			return nil, fmt.Errorf("failed to read page %d: %w", i+1, err)
		}
		sp := sourcePage{dict: d}
		if res, ok := d.Find("Resources"); ok {
			sp.resources = res
		} else if inh != nil && inh.Resources != nil {
			sp.resources = inh.Resources
		}
		w.src[i] = sp
	}
	return w, nil
}

// loadFace picks the explanation font, falling back to the core fonts.
func loadFace(opts Options, logger *slog.Logger) fontFace {
	data := opts.FontData
	if data == nil && opts.FontPath != "" {
		b, err := os.ReadFile(opts.FontPath)
		if err != nil {
			logger.Warn("font file unavailable, using Helvetica", "path", opts.FontPath, "error", err)
			return &coreFace{}
		}
		data = b
	}
	if data == nil {
		return &coreFace{}
	}

	face, err := parseTrueType(data)
	if err != nil {
		logger.Warn("font file unusable, using Helvetica", "path", opts.FontPath, "error", err)
		return &coreFace{}
	}
	logger.Debug("using TrueType font", "name", face.Name())
	return face
}

// FontName returns the name of the explanation font.
func (w *Writer) FontName() string { return w.face.Name() }

// Measurer returns text metrics matching the drawn font.
func (w *Writer) Measurer() layout.Measurer { return w.face }

// NewPage appends an empty page.
func (w *Writer) NewPage(width, height float64) (compose.Canvas, error) {
	if w.finished {
		return nil, ErrFinished
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid page size %.1fx%.1f", width, height)
	}
	c := newCanvas(w, width, height)
	w.pages = append(w.pages, c)
	return c, nil
}

// PageCount returns the number of output pages so far.
func (w *Writer) PageCount() int { return len(w.pages) }

// Bytes finalises the document and returns it. Later calls return the same
// bytes.
func (w *Writer) Bytes() ([]byte, error) {
	if w.finished {
		return w.out, nil
	}
	if len(w.pages) == 0 {
		return nil, errors.New("no output pages")
	}
	if err := w.finish(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := api.WriteContext(w.ctx, &buf); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	w.finished = true
	w.out = buf.Bytes()
	return w.out, nil
}

// WriteTo writes the finalised document to out.
func (w *Writer) WriteTo(out io.Writer) (int64, error) {
	b, err := w.Bytes()
	if err != nil {
		return 0, err
	}
	n, err := out.Write(b)
	return int64(n), err
}

// WriteFile writes the finalised document to path.
func (w *Writer) WriteFile(path string) error {
	b, err := w.Bytes()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func (w *Writer) add(obj types.Object) (types.IndirectRef, error) {
	ref, err := w.ctx.IndRefForNewObject(obj)
	if err != nil {
		return types.IndirectRef{}, err
	}
	return *ref, nil
}

// newStream returns a Flate-encoded stream holding content.
func newStream(content []byte) (*types.StreamDict, error) {
	sd := &types.StreamDict{
		Dict:           types.NewDict(),
		Content:        content,
		FilterPipeline: []types.PDFFilter{{Name: filter.Flate}},
	}
	sd.InsertName("Filter", filter.Flate)
	if err := sd.Encode(); err != nil {
		return nil, fmt.Errorf("failed to encode stream: %w", err)
	}
	return sd, nil
}

// form returns the form XObject wrapping source page i.
func (w *Writer) form(i int) (types.IndirectRef, error) {
	if ref, ok := w.forms[i]; ok {
		return ref, nil
	}
	if i < 0 || i >= len(w.src) || i >= w.doc.PageCount() {
		return types.IndirectRef{}, fmt.Errorf("%w: %d", ErrNoSuchPage, i+1)
	}

	content, err := w.pageContent(w.src[i].dict)
	if err != nil {
		return types.IndirectRef{}, fmt.Errorf("page %d content: %w", i+1, err)
	}

	p := w.doc.Pages[i]
	sd, err := newStream(content)
	if err != nil {
		return types.IndirectRef{}, err
	}
	sd.InsertName("Type", "XObject")
	sd.InsertName("Subtype", "Form")
	sd.Insert("BBox", types.NewNumberArray(p.LLX, p.LLY, p.URX, p.URY))
	sd.Insert("Matrix", types.NewNumberArray(1, 0, 0, 1, -p.LLX, -p.LLY))
	if res := w.src[i].resources; res != nil {
		sd.Insert("Resources", res)
	}

	ref, err := w.add(*sd)
	if err != nil {
		return types.IndirectRef{}, fmt.Errorf("failed to add page form: %w", err)
	}
	w.forms[i] = ref
	return ref, nil
}

// pageContent returns the decoded content of a page, joining arrays.
func (w *Writer) pageContent(d types.Dict) ([]byte, error) {
	obj, ok := d.Find("Contents")
	if !ok || obj == nil {
		return nil, nil
	}

	resolved, err := w.ctx.Dereference(obj)
	if err != nil {
		return nil, err
	}

	parts := []types.Object{obj}
	if arr, ok := resolved.(types.Array); ok {
		parts = arr
	}

	var buf bytes.Buffer
	for _, part := range parts {
		sd, _, err := w.ctx.DereferenceStreamDict(part)
		if err != nil {
			return nil, err
		}
		if sd == nil {
			continue
		}
		if err := sd.Decode(); err != nil {
			return nil, fmt.Errorf("failed to decode content stream: %w", err)
		}
		buf.Write(sd.Content)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// finish writes fonts, page contents and the new page tree.
func (w *Writer) finish() error {
	used := map[string]bool{}
	for _, c := range w.pages {
		for name := range c.fonts {
			used[name] = true
		}
	}
	fonts, err := w.face.objects(w, used)
	if err != nil {
		return err
	}

	root, err := w.ctx.Catalog()
	if err != nil {
		return fmt.Errorf("failed to read catalog: %w", err)
	}
	pagesObj, ok := root.Find("Pages")
	if !ok {
		return errors.New("catalog has no page tree")
	}
	pagesRef, ok := pagesObj.(types.IndirectRef)
	if !ok {
		return errors.New("page tree is not an indirect object")
	}
	pages, err := w.ctx.DereferenceDict(pagesRef)
	if err != nil || pages == nil {
		return fmt.Errorf("failed to read page tree: %v", err)
	}

	kids := make(types.Array, 0, len(w.pages))
	for i, c := range w.pages {
		ref, err := c.emit(pagesRef, fonts)
		if err != nil {
			return fmt.Errorf("output page %d: %w", i+1, err)
		}
		kids = append(kids, ref)
	}

	// Inherited attributes of the source tree must not leak into new pages.
	for _, key := range []string{"MediaBox", "CropBox", "Resources", "Rotate"} {
		pages.Delete(key)
	}
	pages.Update("Kids", kids)
	pages.Update("Count", types.Integer(len(kids)))

	// These reference source pages that no longer exist.
	for _, key := range []string{"Outlines", "PageLabels", "StructTreeRoot", "Dests", "OpenAction", "AcroForm", "Threads"} {
		root.Delete(key)
	}

	w.ctx.PageCount = len(kids)

	if core, ok := w.face.(*coreFace); ok {
		if n := core.replaced.Load(); n > 0 {
			w.logger.Warn("characters outside WinAnsi drawn as '?'", "count", n)
		}
	}
	return nil
}
