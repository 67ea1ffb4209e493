package batch

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/smartlecturer/lecturer/internal/explain"
	"github.com/smartlecturer/lecturer/internal/render"
)

// PDFName returns the output file name for a document stem.
func PDFName(stem string) string { return stem + "_explained.pdf" }

// ZipName returns the archive name for a batch.
func ZipName(paths []string) string {
	if len(paths) == 0 {
		return "lecturer_explained.zip"
	}
	return deriveTitle(sortPDFsByNumber(paths)[0]) + "_explained.zip"
}

// uniqueStems assigns each output a stem that is unique in the batch.
func uniqueStems(outputs []*Output) []string {
	seen := map[string]int{}
	stems := make([]string, len(outputs))
	for i, o := range outputs {
		stem := o.Name
		if n := seen[stem]; n > 0 {
			stem = stem + "-" + strconv.Itoa(n+1)
		}
		seen[o.Name]++
		stems[i] = stem
	}
	return stems
}

// WriteZip packages the successful outputs: the composed PDF and the
// exported explanations for each document.
func WriteZip(w io.Writer, outputs []*Output) error {
	zw := zip.NewWriter(w)

	ok := make([]*Output, 0, len(outputs))
	for _, o := range outputs {
		if o.OK() {
			ok = append(ok, o)
		}
	}

	for i, stem := range uniqueStems(ok) {
		o := ok[i]
		if err := addFile(zw, PDFName(stem), o.PDF); err != nil {
			return err
		}
		data, err := explain.Export(o.Explanations)
		if err != nil {
			return fmt.Errorf("export %s: %w", o.Name, err)
		}
		if err := addFile(zw, stem+explain.Ext, data); err != nil {
			return err
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finish zip: %w", err)
	}
	return nil
}

func addFile(zw *zip.Writer, name string, data []byte) error {
	f, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("failed to add %s: %w", name, err)
	}
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// SaveOptions selects what Save writes besides the PDF.
type SaveOptions struct {
	JSON bool

	// PreviewDir, when set, receives page previews in a per-document
	// subdirectory.
	PreviewDir string
}

// Save writes an output into dir and returns the PDF path.
func (o *Output) Save(dir string, opts SaveOptions) (string, error) {
	if !o.OK() {
		return "", fmt.Errorf("%s: %w", o.Name, o.Err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	path := filepath.Join(dir, PDFName(o.Name))
	if err := os.WriteFile(path, o.PDF, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}

	if opts.JSON {
		if err := explain.WriteFile(filepath.Join(dir, o.Name+explain.Ext), o.Explanations); err != nil {
			return "", err
		}
	}
	if opts.PreviewDir != "" && len(o.Previews) > 0 {
		if err := render.WritePreviews(filepath.Join(opts.PreviewDir, o.Name), o.Previews); err != nil {
			return "", err
		}
	}
	return path, nil
}
