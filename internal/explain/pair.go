package explain

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Match is a PDF and the explanation file that belongs to it.
type Match struct {
	PDF  string `json:"pdf" yaml:"pdf"`
	JSON string `json:"json" yaml:"json"`
}

// Pairing is the result of matching PDFs to explanation files.
type Pairing struct {
	Matches        []Match
	UnmatchedPDFs  []string
	UnmatchedJSONs []string
}

// copyCounter matches the " (2)" that browsers append to repeated downloads.
var copyCounter = regexp.MustCompile(`\s*\(\d+\)$`)

var folder = cases.Fold()

// NormalizeName reduces a file name to the key used for pairing.
func NormalizeName(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = copyCounter.ReplaceAllString(base, "")
	base = strings.TrimSpace(base)
	return folder.String(norm.NFC.String(base))
}

// Pair matches PDFs to JSON files by normalised name. When several files
// share a name, the first in sorted order wins and the rest are unmatched.
func Pair(pdfs, jsons []string) Pairing {
	pdfs = slices.Sorted(slices.Values(pdfs))
	jsons = slices.Sorted(slices.Values(jsons))

	byName := make(map[string]string, len(jsons))
	var p Pairing
	for _, j := range jsons {
		key := NormalizeName(j)
		if _, ok := byName[key]; ok {
			p.UnmatchedJSONs = append(p.UnmatchedJSONs, j)
			continue
		}
		byName[key] = j
	}

	for _, pdf := range pdfs {
		key := NormalizeName(pdf)
		j, ok := byName[key]
		if !ok {
			p.UnmatchedPDFs = append(p.UnmatchedPDFs, pdf)
			continue
		}
		p.Matches = append(p.Matches, Match{PDF: pdf, JSON: j})
		delete(byName, key)
	}

	for _, j := range byName {
		p.UnmatchedJSONs = append(p.UnmatchedJSONs, j)
	}
	slices.Sort(p.UnmatchedJSONs)
	return p
}

// PairDir pairs the .pdf and .json files directly inside dir.
func PairDir(dir string) (Pairing, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Pairing{}, fmt.Errorf("failed to read directory: %w", err)
	}

	var pdfs, jsons []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".pdf":
			pdfs = append(pdfs, path)
		case Ext:
			jsons = append(jsons, path)
		}
	}
	return Pair(pdfs, jsons), nil
}
