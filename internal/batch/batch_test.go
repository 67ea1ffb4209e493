package batch

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartlecturer/lecturer/internal/annotate"
	"github.com/smartlecturer/lecturer/internal/compose"
	"github.com/smartlecturer/lecturer/internal/explain"
	"github.com/smartlecturer/lecturer/internal/layout"
	"github.com/smartlecturer/lecturer/internal/render"
	"github.com/smartlecturer/lecturer/internal/source"
	"github.com/smartlecturer/lecturer/internal/testutil"
)

type fakeExplainer struct {
	mu   sync.Mutex
	docs map[string]int
}

func (e *fakeExplainer) Explain(_ context.Context, job *annotate.Job) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.docs == nil {
		e.docs = map[string]int{}
	}
	e.docs[job.Document]++
	return fmt.Sprintf("Explanation of %s page %d.", job.Document, job.Page+1), nil
}

type pngRenderer struct{ png []byte }

func (r *pngRenderer) Render(context.Context, int, int) ([]byte, error) { return r.png, nil }

func newProcessor(t *testing.T) (*Processor, *fakeExplainer) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, imaging.New(40, 50, color.NRGBA{A: 255}), imaging.PNG))
	r := &pngRenderer{png: buf.Bytes()}

	e := &fakeExplainer{}
	return &Processor{
		Explainer:   e,
		NewRenderer: func(*source.Document) (render.Renderer, error) { return r, nil },
		Concurrency: 2,
		Compose:     compose.Options{Layout: layout.Options{FontSize: 12, Mode: layout.ModePlain}},
	}, e
}

func writePDF(t *testing.T, dir, name string, pages int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, testutil.Letter(pages), 0o644))
	return path
}

func TestSortPDFsByNumber(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{"already sorted", []string{"deck-1.pdf", "deck-2.pdf", "deck-3.pdf"}, []string{"deck-1.pdf", "deck-2.pdf", "deck-3.pdf"}},
		{"reverse order", []string{"deck-3.pdf", "deck-2.pdf", "deck-1.pdf"}, []string{"deck-1.pdf", "deck-2.pdf", "deck-3.pdf"}},
		{"double digits", []string{"deck-10.pdf", "deck-2.pdf", "deck-1.pdf"}, []string{"deck-1.pdf", "deck-2.pdf", "deck-10.pdf"}},
		{"numbered and unnumbered", []string{"deck-2.pdf", "deck.pdf", "deck-1.pdf"}, []string{"deck.pdf", "deck-1.pdf", "deck-2.pdf"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, sortPDFsByNumber(tt.input))
		})
	}
}

func TestDeriveTitle(t *testing.T) {
	assert.Equal(t, "week", deriveTitle("/slides/week-3.pdf"))
	assert.Equal(t, "intro", deriveTitle("intro.pdf"))
	assert.Equal(t, "week_explained.zip", ZipName([]string{"week-2.pdf", "week-1.pdf"}))
	assert.Equal(t, "lecturer_explained.zip", ZipName(nil))
}

func TestRunContinuesPastFailures(t *testing.T) {
	dir := t.TempDir()
	p, e := newProcessor(t)

	first := writePDF(t, dir, "deck-1.pdf", 2)
	second := writePDF(t, dir, "deck-2.pdf", 1)
	broken := filepath.Join(dir, "broken.pdf")
	require.NoError(t, os.WriteFile(broken, []byte("not a pdf"), 0o644))

	sum, err := p.Run(context.Background(), []string{second, broken, first})
	require.NoError(t, err)
	require.Len(t, sum.Outputs, 3)
	assert.Equal(t, 1, sum.Failed())

	bad := sum.Outputs[0]
	assert.Equal(t, broken, bad.Source)
	assert.ErrorIs(t, bad.Err, source.ErrInvalidDocument)

	ok := sum.Succeeded()
	require.Len(t, ok, 2)
	assert.Equal(t, "deck-1", ok[0].Name)
	assert.Equal(t, first, ok[0].Source)
	assert.Len(t, ok[0].Explanations, 2)
	assert.Empty(t, ok[0].Unresolved)
	assert.Len(t, ok[1].Explanations, 1)

	out, err := source.Open("out", ok[0].PDF)
	require.NoError(t, err)
	assert.Equal(t, 2, out.PageCount())
	assert.InDelta(t, 3*612, out.Pages[0].Width(), 0.01)

	assert.Equal(t, map[string]int{"deck-1": 2, "deck-2": 1}, e.docs)
}

func TestRunLimits(t *testing.T) {
	p, _ := newProcessor(t)

	_, err := p.Run(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoDocuments)

	paths := make([]string, MaxDocuments+1)
	for i := range paths {
		paths[i] = fmt.Sprintf("deck-%d.pdf", i)
	}
	_, err = p.Run(context.Background(), paths)
	assert.ErrorIs(t, err, ErrTooManyDocuments)
}

func TestRunCancelled(t *testing.T) {
	dir := t.TempDir()
	p, e := newProcessor(t)
	path := writePDF(t, dir, "deck.pdf", 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sum, err := p.Run(ctx, []string{path})
	require.NoError(t, err)
	require.Len(t, sum.Outputs, 1)
	assert.ErrorIs(t, sum.Outputs[0].Err, context.Canceled)
	assert.Empty(t, e.docs)
}

func TestWriteZip(t *testing.T) {
	outputs := []*Output{
		{Name: "deck", PDF: []byte("%PDF-a"), Explanations: map[int]string{0: "a"}},
		{Name: "deck", PDF: []byte("%PDF-b"), Explanations: map[int]string{0: "b"}},
		{Name: "failed", Err: source.ErrInvalidDocument},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteZip(&buf, outputs))

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	assert.Equal(t, []string{"deck-2.json", "deck-2_explained.pdf", "deck.json", "deck_explained.pdf"}, names)
}

func TestRecompose(t *testing.T) {
	dir := t.TempDir()
	p, e := newProcessor(t)

	pdf := writePDF(t, dir, "week.pdf", 3)
	js := filepath.Join(dir, "week (1).json")
	require.NoError(t, explain.WriteFile(js, map[int]string{0: "first", 2: "third"}))
	orphan := writePDF(t, dir, "orphan.pdf", 1)
	badJSON := filepath.Join(dir, "orphan.json")
	require.NoError(t, os.WriteFile(badJSON, []byte(`[1]`), 0o644))

	pairing, err := explain.PairDir(dir)
	require.NoError(t, err)
	require.Len(t, pairing.Matches, 2)

	sum, err := p.Recompose(pairing.Matches)
	require.NoError(t, err)
	assert.Empty(t, e.docs, "recompose never calls the service")
	assert.Equal(t, 1, sum.Failed())

	for _, o := range sum.Outputs {
		switch o.Source {
		case pdf:
			require.True(t, o.OK())
			assert.Equal(t, []int{1}, o.Unresolved)
			out, err := source.Open("out", o.PDF)
			require.NoError(t, err)
			assert.Equal(t, 3, out.PageCount())
		case orphan:
			assert.ErrorIs(t, o.Err, explain.ErrInvalidFile)
		}
	}
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	p, _ := newProcessor(t)
	doc, err := source.OpenFile(writePDF(t, dir, "deck.pdf", 2))
	require.NoError(t, err)

	out, err := p.Process(context.Background(), doc)
	require.NoError(t, err)

	outDir := filepath.Join(dir, "out")
	previews := filepath.Join(dir, "previews")
	path, err := out.Save(outDir, SaveOptions{JSON: true, PreviewDir: previews})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(outDir, "deck_explained.pdf"), path)

	for _, f := range []string{
		path,
		filepath.Join(outDir, "deck.json"),
		filepath.Join(previews, "deck", "page_0001.png"),
		filepath.Join(previews, "deck", "page_0002.png"),
	} {
		assert.FileExists(t, f)
	}

	failed := &Output{Name: "x", Err: source.ErrInvalidDocument}
	_, err = failed.Save(outDir, SaveOptions{})
	assert.ErrorIs(t, err, source.ErrInvalidDocument)
}
