package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Generator is the interface every page-explanation backend implements.
// A single call sends one rendered page image plus the instruction text and
// returns the generated explanation.
type Generator interface {
	// Name returns the provider identifier (e.g., "gemini").
	Name() string

	// Generate sends one vision request.
	Generate(ctx context.Context, req *Request) (*Result, error)
}

// Request is a single page-explanation request.
type Request struct {
	// Required
	Instruction string `json:"instruction"`
	Image       []byte `json:"-"`

	// ImageMIME defaults to image/png.
	ImageMIME string `json:"image_mime,omitempty"`

	// Model selection (uses client default if empty)
	Model string `json:"model,omitempty"`

	// Generation parameters
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`

	// Request tracking
	RequestID string `json:"-"`
	Page      int    `json:"-"`
}

// Result is the complete response from a generation call.
type Result struct {
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason,omitempty"`

	// Token counts
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`

	ExecutionTime time.Duration `json:"execution_time"`

	// Provider info
	Provider  string `json:"provider"`
	ModelUsed string `json:"model_used"`

	RequestID string `json:"request_id"`
}

// StatusError is returned when a provider answers with a non-success status.
type StatusError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// Temporary reports whether the status is worth retrying.
func (e *StatusError) Temporary() bool {
	switch e.StatusCode {
	case http.StatusRequestTimeout, http.StatusRequestEntityTooLarge,
		http.StatusUnprocessableEntity, http.StatusTooManyRequests:
		return true
	default:
		return e.StatusCode >= 500
	}
}

// ErrEmptyResponse is returned when a provider answers without any content.
var ErrEmptyResponse = errors.New("empty response")

// IsTransient classifies a provider error. Unknown errors count as transient:
// throttling and overload often surface as plain transport errors.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return !errors.Is(err, context.Canceled)
}
