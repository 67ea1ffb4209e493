package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/smartlecturer/lecturer/internal/batch"
)

// documentResult is the printed outcome for one document.
type documentResult struct {
	Name        string `json:"name" yaml:"name"`
	Source      string `json:"source,omitempty" yaml:"source,omitempty"`
	Output      string `json:"output,omitempty" yaml:"output,omitempty"`
	Pages       int    `json:"pages,omitempty" yaml:"pages,omitempty"`
	OutputPages int    `json:"output_pages,omitempty" yaml:"output_pages,omitempty"`
	Continued   []int  `json:"continued,omitempty" yaml:"continued,omitempty"`
	Truncated   []int  `json:"truncated,omitempty" yaml:"truncated,omitempty"`
	Clipped     []int  `json:"clipped,omitempty" yaml:"clipped,omitempty"`
	Unresolved  []int  `json:"unresolved,omitempty" yaml:"unresolved,omitempty"`
	Elapsed     string `json:"elapsed,omitempty" yaml:"elapsed,omitempty"`
	Error       string `json:"error,omitempty" yaml:"error,omitempty"`
}

type batchResult struct {
	Documents []documentResult `json:"documents" yaml:"documents"`
	Zip       string           `json:"zip,omitempty" yaml:"zip,omitempty"`
	Failed    int              `json:"failed" yaml:"failed"`
	Elapsed   string           `json:"elapsed" yaml:"elapsed"`
}

// oneBased converts page indices for display.
func oneBased(pages []int) []int {
	if len(pages) == 0 {
		return nil
	}
	out := make([]int, len(pages))
	for i, p := range pages {
		out[i] = p + 1
	}
	return out
}

// saveAll writes every successful output to dir and builds the printed result.
func saveAll(sum *batch.Summary, dir string, opts batch.SaveOptions) *batchResult {
	res := &batchResult{Elapsed: sum.Elapsed.Round(time.Millisecond).String()}
	for _, o := range sum.Outputs {
		d := documentResult{Name: o.Name, Source: o.Source}
		if !o.OK() {
			d.Error = o.Err.Error()
			res.Failed++
			res.Documents = append(res.Documents, d)
			continue
		}

		path, err := o.Save(dir, opts)
		if err != nil {
			d.Error = err.Error()
			res.Failed++
			res.Documents = append(res.Documents, d)
			continue
		}
		d.Output = path
		d.Unresolved = oneBased(o.Unresolved)
		d.Elapsed = o.Elapsed.Round(time.Millisecond).String()
		if r := o.Report; r != nil {
			d.Pages = len(r.Pages)
			d.OutputPages = r.OutputPages
			d.Continued = oneBased(r.Continued)
			d.Truncated = oneBased(r.Truncated)
			d.Clipped = oneBased(r.Clipped)
		}
		res.Documents = append(res.Documents, d)
	}
	return res
}

func writeZip(sum *batch.Summary, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Base(path), err)
	}
	if err := batch.WriteZip(f, sum.Outputs); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func failure(res *batchResult) error {
	if res.Failed == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d documents failed", res.Failed, len(res.Documents))
}
