// Package annotate runs the rate-limited page explanation pipeline: a
// retrying client around a generation backend, a bounded worker pool and
// the blank-output remediation loop.
package annotate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/smartlecturer/lecturer/internal/llmcall"
	"github.com/smartlecturer/lecturer/internal/metrics"
	"github.com/smartlecturer/lecturer/internal/providers"
)

const (
	// DefaultAttempts is the total number of calls per page, first included.
	DefaultAttempts = 5

	// DefaultExpectedChars is the target explanation length used for
	// token estimation.
	DefaultExpectedChars = 1200
)

// Job is one page request.
type Job struct {
	Page        int
	Image       []byte
	Instruction string

	// Document overrides the client's document label.
	Document string
}

// ClientConfig configures a Client.
type ClientConfig struct {
	Generator providers.Generator

	// Limiter gates every attempt. Optional.
	Limiter *providers.RateLimiter

	Attempts      int
	Backoff       Backoff
	ExpectedChars int

	// Passed through to the generator.
	Model       string
	Temperature float64
	MaxTokens   int

	// Document labels call log entries.
	Document string
	Recorder *llmcall.Recorder

	// OnRetry is invoked before each retry with the 1-based number of the
	// failed attempt.
	OnRetry func(attempt int, err error)

	// Timer replaces the backoff sleep. Tests use it to avoid waiting.
	Timer retry.Timer

	Logger *slog.Logger
}

// Client explains single pages with retry and rate limiting.
type Client struct {
	gen       providers.Generator
	limiter   *providers.RateLimiter
	attempts  int
	backoff   Backoff
	tokens    int
	model     string
	temp      float64
	maxTokens int
	document  string
	recorder  *llmcall.Recorder
	onRetry   func(int, error)
	timer     retry.Timer
	logger    *slog.Logger
}

// NewClient creates a Client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Generator == nil {
		return nil, errors.New("annotate: generator is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	attempts := cfg.Attempts
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	backoff := cfg.Backoff
	if backoff.Base == 0 && backoff.Multiplier == 0 && backoff.Jitter == 0 {
		backoff = DefaultBackoff()
	}
	chars := cfg.ExpectedChars
	if chars <= 0 {
		chars = DefaultExpectedChars
	}

	return &Client{
		gen:       cfg.Generator,
		limiter:   cfg.Limiter,
		attempts:  attempts,
		backoff:   backoff,
		tokens:    providers.EstimateTokens(chars),
		model:     cfg.Model,
		temp:      cfg.Temperature,
		maxTokens: cfg.MaxTokens,
		document:  cfg.Document,
		recorder:  cfg.Recorder,
		onRetry:   cfg.OnRetry,
		timer:     cfg.Timer,
		logger:    logger.With("provider", cfg.Generator.Name()),
	}, nil
}

// ExplainPage explains a page image that is not tied to a page index.
func (c *Client) ExplainPage(ctx context.Context, image []byte, instruction string) (string, error) {
	return c.Explain(ctx, &Job{Page: -1, Image: image, Instruction: instruction})
}

// Explain runs a job to completion: each attempt acquires the rate limiter
// and calls the generator. After the last failed attempt the error is
// returned as a *ServiceError.
func (c *Client) Explain(ctx context.Context, job *Job) (string, error) {
	logger := c.logger.With("page", job.Page)
	attempt := 0

	opts := []retry.Option{
		retry.Context(ctx),
		retry.Attempts(uint(c.attempts)),
		retry.LastErrorOnly(true),
		retry.DelayType(func(n uint, _ error, _ *retry.Config) time.Duration {
			return c.backoff.Delay(int(n) - 1)
		}),
		retry.OnRetry(func(n uint, err error) {
			if int(n)+1 >= c.attempts {
				return
			}
			logger.Warn("generation failed, retrying",
				"attempt", n+1,
				"max_attempts", c.attempts,
				"error", err)
			if c.onRetry != nil {
				c.onRetry(int(n)+1, err)
			}
		}),
	}
	if c.timer != nil {
		opts = append(opts, retry.WithTimer(c.timer))
	}

	text, err := retry.DoWithData(func() (string, error) {
		attempt++
		if c.limiter != nil {
			start := time.Now()
			if err := c.limiter.Acquire(ctx, c.tokens); err != nil {
				return "", retry.Unrecoverable(fmt.Errorf("rate limiter: %w", err))
			}
			metrics.ObserveRateLimitWait(time.Since(start))
		}
		return c.once(ctx, job, attempt)
	}, opts...)
	if err != nil {
		se := &ServiceError{Kind: KindOf(err), Attempts: attempt, Err: err}
		logger.Error("generation exhausted", "attempts", attempt, "error", err)
		return "", se
	}
	return text, nil
}

func (c *Client) once(ctx context.Context, job *Job, attempt int) (string, error) {
	start := time.Now()
	result, err := c.gen.Generate(ctx, &providers.Request{
		Instruction: job.Instruction,
		Image:       job.Image,
		ImageMIME:   "image/png",
		Model:       c.model,
		Temperature: c.temp,
		MaxTokens:   c.maxTokens,
		Page:        job.Page,
	})
	elapsed := time.Since(start)

	if err == nil && (result == nil || result.Content == "") {
		err = providers.ErrEmptyResponse
	}

	metrics.ObserveGeneration(c.gen.Name(), elapsed, err)
	temp := c.temp
	doc := job.Document
	if doc == "" {
		doc = c.document
	}
	c.recorder.Record(llmcall.FromResult(result, err, elapsed, llmcall.RecordOptions{
		Document:    doc,
		Page:        job.Page,
		Attempt:     attempt,
		Provider:    c.gen.Name(),
		Model:       c.model,
		Temperature: &temp,
	}))

	if err != nil {
		return "", err
	}
	return result.Content, nil
}
