package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	GeminiName         = "gemini"
	GeminiDefaultModel = "gemini-2.5-pro"
)

// GeminiConfig holds configuration for the Gemini client.
type GeminiConfig struct {
	APIKey       string
	DefaultModel string
}

// GeminiClient implements Generator using the Google Gemini API.
type GeminiClient struct {
	client       *genai.Client
	defaultModel string
}

// NewGeminiClient creates a new Gemini client.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: API key not set")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = GeminiDefaultModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create new gemini client: %w", err)
	}

	return &GeminiClient{
		client:       client,
		defaultModel: cfg.DefaultModel,
	}, nil
}

// Name returns the client identifier.
func (c *GeminiClient) Name() string {
	return GeminiName
}

// Close releases the underlying connection.
func (c *GeminiClient) Close() error {
	return c.client.Close()
}

// Generate sends the page image and instruction to Gemini.
func (c *GeminiClient) Generate(ctx context.Context, req *Request) (*Result, error) {
	start := time.Now()

	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}

	name := req.Model
	if name == "" {
		name = c.defaultModel
	}

	model := c.client.GenerativeModel(name)
	model.SetTemperature(float32(req.Temperature))
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}

	resp, err := model.GenerateContent(ctx,
		genai.Text(req.Instruction),
		genai.ImageData(imageFormat(req.ImageMIME), req.Image),
	)
	if err != nil {
		return nil, geminiError(err)
	}

	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("gemini: no candidates returned: %w", ErrEmptyResponse)
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return nil, fmt.Errorf("gemini: empty content (finish=%s): %w", candidate.FinishReason, ErrEmptyResponse)
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}

	result := &Result{
		Content:       sb.String(),
		FinishReason:  candidate.FinishReason.String(),
		ExecutionTime: time.Since(start),
		Provider:      GeminiName,
		ModelUsed:     name,
		RequestID:     requestID,
	}
	if u := resp.UsageMetadata; u != nil {
		result.PromptTokens = int(u.PromptTokenCount)
		result.CompletionTokens = int(u.CandidatesTokenCount)
		result.TotalTokens = int(u.TotalTokenCount)
	}
	return result, nil
}

// geminiError surfaces HTTP failures from the REST transport as StatusError
// so callers can tell a bad key from an overloaded backend.
func geminiError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = apiErr.Body
		}
		return &StatusError{Provider: GeminiName, StatusCode: apiErr.Code, Message: msg}
	}
	return fmt.Errorf("failed to generate content: %w", err)
}

// imageFormat maps a MIME type to the short format genai.ImageData expects.
func imageFormat(mime string) string {
	if mime == "" {
		return "png"
	}
	return strings.TrimPrefix(mime, "image/")
}

var _ Generator = (*GeminiClient)(nil)
