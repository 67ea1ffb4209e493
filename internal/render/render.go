// Package render rasterises PDF pages and builds preview thumbnails.
package render

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/disintegration/imaging"
)

const (
	// DefaultDPI is the render resolution sent to the generation service.
	DefaultDPI = 180

	// DefaultPreviewSize bounds preview thumbnails in both dimensions.
	DefaultPreviewSize = 1024
)

// Renderer turns one page into PNG bytes.
type Renderer interface {
	Render(ctx context.Context, pageIndex, dpi int) ([]byte, error)
}

// Pdftoppm renders pages with pdftoppm (poppler-utils). The document is
// written once to a private temp file; each Render call is independent and
// safe for concurrent use.
type Pdftoppm struct {
	Binary string

	dir  string
	path string
}

// NewPdftoppm stages data for rendering. Call Close to remove the temp files.
func NewPdftoppm(data []byte) (*Pdftoppm, error) {
	dir, err := os.MkdirTemp("", "lecturer-src-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	path := filepath.Join(dir, "source.pdf")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to stage PDF: %w", err)
	}
	return &Pdftoppm{Binary: "pdftoppm", dir: dir, path: path}, nil
}

// Available reports whether the pdftoppm binary is on PATH.
func Available() bool {
	_, err := exec.LookPath("pdftoppm")
	return err == nil
}

// Render renders a single 0-based page at the given DPI.
func (r *Pdftoppm) Render(ctx context.Context, pageIndex, dpi int) ([]byte, error) {
	if dpi <= 0 {
		dpi = DefaultDPI
	}

	tmpDir, err := os.MkdirTemp(r.dir, "page-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	outputPrefix := filepath.Join(tmpDir, "page")

	// -singlefile: don't add page number suffix
	pageStr := strconv.Itoa(pageIndex + 1)
	cmd := exec.CommandContext(ctx, r.Binary,
		"-png",
		"-f", pageStr,
		"-l", pageStr,
		"-r", strconv.Itoa(dpi),
		"-singlefile",
		r.path,
		outputPrefix,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("pdftoppm failed: %w (output: %s)", err, string(output))
	}

	data, err := os.ReadFile(outputPrefix + ".png")
	if err != nil {
		return nil, fmt.Errorf("pdftoppm did not create expected output: %w", err)
	}
	return data, nil
}

// Close removes the staged document.
func (r *Pdftoppm) Close() error {
	return os.RemoveAll(r.dir)
}

// Preview downsizes a rendered page to fit within maxSize x maxSize.
func Preview(pageImage []byte, maxSize int) ([]byte, error) {
	if maxSize <= 0 {
		maxSize = DefaultPreviewSize
	}

	img, err := imaging.Decode(bytes.NewReader(pageImage))
	if err != nil {
		return nil, fmt.Errorf("failed to decode page image: %w", err)
	}

	thumb := imaging.Fit(img, maxSize, maxSize, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode preview: %w", err)
	}
	return buf.Bytes(), nil
}

// WritePreviews writes previews as page_0001.png, ... into dir. Empty
// previews are skipped.
func WritePreviews(dir string, previews [][]byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create preview dir: %w", err)
	}
	for i, p := range previews {
		if len(p) == 0 {
			continue
		}
		path := filepath.Join(dir, fmt.Sprintf("page_%04d.png", i+1))
		if err := os.WriteFile(path, p, 0o644); err != nil {
			return fmt.Errorf("failed to write preview: %w", err)
		}
	}
	return nil
}
