package llmcall

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Summary aggregates a call log.
type Summary struct {
	Calls        int            `json:"calls" yaml:"calls"`
	Succeeded    int            `json:"succeeded" yaml:"succeeded"`
	Failed       int            `json:"failed" yaml:"failed"`
	InputTokens  int            `json:"input_tokens" yaml:"input_tokens"`
	OutputTokens int            `json:"output_tokens" yaml:"output_tokens"`
	AvgLatencyMs int            `json:"avg_latency_ms" yaml:"avg_latency_ms"`
	ByModel      map[string]int `json:"by_model" yaml:"by_model"`
	Documents    []string       `json:"documents" yaml:"documents"`
}

// ReadCalls loads every call from a JSON-lines log.
func ReadCalls(path string) ([]Call, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open call log: %w", err)
	}
	defer f.Close()

	var calls []Call
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var c Call
		if err := json.Unmarshal(scanner.Bytes(), &c); err != nil {
			return nil, fmt.Errorf("call log line %d: %w", line, err)
		}
		calls = append(calls, c)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read call log: %w", err)
	}
	return calls, nil
}

// Summarize aggregates calls, optionally restricted to one document.
func Summarize(calls []Call, document string) Summary {
	s := Summary{ByModel: make(map[string]int)}
	docs := make(map[string]bool)
	latency := 0

	for _, c := range calls {
		if document != "" && c.Document != document {
			continue
		}
		s.Calls++
		if c.Success {
			s.Succeeded++
		} else {
			s.Failed++
		}
		s.InputTokens += c.InputTokens
		s.OutputTokens += c.OutputTokens
		s.ByModel[c.Model]++
		latency += c.LatencyMs
		if c.Document != "" {
			docs[c.Document] = true
		}
	}

	if s.Calls > 0 {
		s.AvgLatencyMs = latency / s.Calls
	}
	for d := range docs {
		s.Documents = append(s.Documents, d)
	}
	sort.Strings(s.Documents)
	return s
}
