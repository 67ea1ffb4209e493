package providers

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const MockName = "mock"

// MockGenerator is a Generator for testing.
type MockGenerator struct {
	// Configurable behavior
	Latency      time.Duration
	ShouldFail   bool
	FailTimes    int // Fail the first N requests (0 = never)
	ResponseText string

	// Respond, when set, overrides ResponseText per request.
	Respond func(req *Request, n int64) (string, error)

	// State
	requestCount atomic.Int64
	inFlight     atomic.Int64
	maxInFlight  atomic.Int64

	mu    sync.Mutex
	pages []int
}

// NewMockGenerator creates a new mock generator with sensible defaults.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{
		Latency:      10 * time.Millisecond,
		ResponseText: "mock explanation of the page content",
	}
}

// Name returns the provider identifier.
func (m *MockGenerator) Name() string {
	return MockName
}

// Generate sends a mock request.
func (m *MockGenerator) Generate(ctx context.Context, req *Request) (*Result, error) {
	start := time.Now()
	count := m.requestCount.Add(1)

	cur := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		prev := m.maxInFlight.Load()
		if cur <= prev || m.maxInFlight.CompareAndSwap(prev, cur) {
			break
		}
	}

	m.mu.Lock()
	m.pages = append(m.pages, req.Page)
	m.mu.Unlock()

	// Simulate latency
	if m.Latency > 0 {
		select {
		case <-time.After(m.Latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if m.ShouldFail {
		return nil, &StatusError{Provider: MockName, StatusCode: 500, Message: "mock generator configured to fail"}
	}
	if m.FailTimes > 0 && int(count) <= m.FailTimes {
		return nil, &StatusError{Provider: MockName, StatusCode: 503, Message: fmt.Sprintf("mock failure %d of %d", count, m.FailTimes)}
	}

	text := m.ResponseText
	if m.Respond != nil {
		var err error
		if text, err = m.Respond(req, count); err != nil {
			return nil, err
		}
	}

	return &Result{
		Content:          text,
		FinishReason:     "stop",
		PromptTokens:     len(req.Instruction) / 4,
		CompletionTokens: len(text) / 4,
		TotalTokens:      len(req.Instruction)/4 + len(text)/4,
		ExecutionTime:    time.Since(start),
		Provider:         MockName,
		ModelUsed:        req.Model,
		RequestID:        fmt.Sprintf("mock-%d", count),
	}, nil
}

// RequestCount returns the number of requests made.
func (m *MockGenerator) RequestCount() int64 {
	return m.requestCount.Load()
}

// MaxInFlight returns the highest number of concurrent Generate calls observed.
func (m *MockGenerator) MaxInFlight() int64 {
	return m.maxInFlight.Load()
}

// Pages returns the page indices requested, in call order.
func (m *MockGenerator) Pages() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.pages...)
}

// Reset resets the request counters.
func (m *MockGenerator) Reset() {
	m.requestCount.Store(0)
	m.maxInFlight.Store(0)
	m.mu.Lock()
	m.pages = nil
	m.mu.Unlock()
}

var _ Generator = (*MockGenerator)(nil)
