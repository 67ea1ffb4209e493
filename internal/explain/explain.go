// Package explain reads and writes explanation maps as JSON files.
//
// Files use 1-based page numbers as keys, matching what users see. Files
// containing a "0" key come from older exports and are read as 0-based.
package explain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/smartlecturer/lecturer/internal/source"
)

// ErrInvalidFile is returned for JSON that is not a page-number to text
// object.
var ErrInvalidFile = errors.New("invalid explanation file")

// Ext is the file extension of exported explanations.
const Ext = ".json"

const schemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "propertyNames": {"pattern": "^[0-9]+$"},
  "additionalProperties": {"type": "string"}
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("explanations.json", strings.NewReader(schemaJSON)); err != nil {
			schemaErr = fmt.Errorf("failed to load explanation schema: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile("explanations.json")
	})
	return schema, schemaErr
}

// Export encodes explanations keyed by 0-based page index as an indented
// JSON object with 1-based keys in page order.
func Export(m map[int]string) ([]byte, error) {
	pages := make([]int, 0, len(m))
	for p := range m {
		if p < 0 {
			return nil, fmt.Errorf("negative page index %d", p)
		}
		pages = append(pages, p)
	}
	slices.Sort(pages)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	var out bytes.Buffer
	out.WriteString("{")
	for i, p := range pages {
		buf.Reset()
		if err := enc.Encode(m[p]); err != nil {
			return nil, fmt.Errorf("failed to encode page %d: %w", p+1, err)
		}
		if i > 0 {
			out.WriteString(",")
		}
		fmt.Fprintf(&out, "\n  %q: %s", strconv.Itoa(p+1), bytes.TrimRight(buf.Bytes(), "\n"))
	}
	if len(pages) > 0 {
		out.WriteString("\n")
	}
	out.WriteString("}\n")
	return out.Bytes(), nil
}

// Import decodes an explanation file into a map keyed by 0-based page index.
func Import(data []byte) (map[int]string, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}

	s, err := compiledSchema()
	if err != nil {
		return nil, err
	}
	if err := s.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}

	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}

	offset := 1
	if _, ok := raw["0"]; ok {
		offset = 0
	}

	m := make(map[int]string, len(raw))
	for k, v := range raw {
		n, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("%w: key %q", ErrInvalidFile, k)
		}
		idx := n - offset
		if _, dup := m[idx]; dup {
			return nil, fmt.Errorf("%w: page %d appears twice", ErrInvalidFile, n)
		}
		m[idx] = v
	}
	return m, nil
}

// WriteFile exports m to path.
func WriteFile(path string, m map[int]string) error {
	data, err := Export(m)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write explanations: %w", err)
	}
	return nil
}

// ReadFile imports explanations from path.
func ReadFile(path string) (map[int]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read explanations: %w", err)
	}
	m, err := Import(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// FileName returns the explanation file name for a PDF path.
func FileName(pdfPath string) string {
	return source.Stem(pdfPath) + Ext
}
