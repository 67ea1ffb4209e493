// Package llmcall records every generation attempt for traceability.
// Calls are appended to a JSON-lines log under the lecturer home directory.
package llmcall

import (
	"time"

	"github.com/google/uuid"

	"github.com/smartlecturer/lecturer/internal/providers"
)

// Call represents one recorded generation attempt.
type Call struct {
	// Unique identifier
	ID string `json:"id"`

	// Timing
	Timestamp time.Time `json:"timestamp"`
	LatencyMs int       `json:"latency_ms"`

	// Context references
	Document string `json:"document,omitempty"`
	Page     int    `json:"page"` // 0-based
	Attempt  int    `json:"attempt"`

	// Model info
	Provider    string   `json:"provider"`
	Model       string   `json:"model"`
	Temperature *float64 `json:"temperature,omitempty"`

	// Token usage
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`

	// Response size only; explanations are exported separately.
	ResponseChars int `json:"response_chars"`

	// Status
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// RecordOptions provides context for recording a call.
type RecordOptions struct {
	Document string
	Page     int
	Attempt  int
	Provider string
	Model    string

	// Request parameters (pointer to distinguish "not set" from "set to 0")
	Temperature *float64
}

// FromResult creates a Call from a generation outcome. Either result or err
// may be nil.
func FromResult(result *providers.Result, err error, latency time.Duration, opts RecordOptions) *Call {
	call := &Call{
		ID:          uuid.New().String(),
		Timestamp:   time.Now(),
		LatencyMs:   int(latency.Milliseconds()),
		Document:    opts.Document,
		Page:        opts.Page,
		Attempt:     opts.Attempt,
		Provider:    opts.Provider,
		Model:       opts.Model,
		Temperature: opts.Temperature,
		Success:     err == nil,
	}

	if result != nil {
		if result.Provider != "" {
			call.Provider = result.Provider
		}
		if result.ModelUsed != "" {
			call.Model = result.ModelUsed
		}
		call.InputTokens = result.PromptTokens
		call.OutputTokens = result.CompletionTokens
		call.ResponseChars = len([]rune(result.Content))
	}

	if err != nil {
		call.Error = err.Error()
	}
	return call
}
