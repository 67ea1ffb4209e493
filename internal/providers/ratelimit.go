package providers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// DayWindow is the trailing window for the requests-per-day budget.
const DayWindow = 24 * time.Hour

// ErrExceedsBudget is returned when a single request asks for more tokens
// than the whole TPM budget; it could never be admitted.
var ErrExceedsBudget = errors.New("request exceeds token budget")

// Clock abstracts time for the limiter so tests can drive it.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RateLimitConfig holds the three budgets. A limit <= 0 disables that budget.
type RateLimitConfig struct {
	RPM    int           // requests per window
	TPM    int           // estimated tokens per window
	RPD    int           // requests per day
	Window time.Duration // default: 1 minute
	Clock  Clock
}

type tokenEntry struct {
	at     time.Time
	tokens int
}

// RateLimiter admits requests against three sliding windows: requests and
// tokens over Window, and requests over a trailing day. Every admission is a
// single check-and-record under mu.
type RateLimiter struct {
	mu    sync.Mutex
	clock Clock

	// Configuration
	rpm, tpm, rpd int
	window        time.Duration

	// Window state, oldest first
	requests []time.Time
	tokens   []tokenEntry
	daily    []time.Time

	// notify is closed and replaced whenever limits change or state is reset,
	// waking every blocked Acquire.
	notify chan struct{}

	// Statistics
	totalAcquired int64
	totalTokens   int64
	totalWaited   time.Duration
	waiting       int
}

// RateLimiterStatus reports current limiter state.
type RateLimiterStatus struct {
	RequestsInWindow int           `json:"requests_in_window"`
	RequestsLimit    int           `json:"requests_limit"`
	TokensInWindow   int           `json:"tokens_in_window"`
	TokensLimit      int           `json:"tokens_limit"`
	RequestsToday    int           `json:"requests_today"`
	DailyLimit       int           `json:"daily_limit"`
	Waiting          int           `json:"waiting"`
	TotalAcquired    int64         `json:"total_acquired"`
	TotalTokens      int64         `json:"total_tokens"`
	TotalWaited      time.Duration `json:"total_waited"`
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.Clock == nil {
		cfg.Clock = realClock{}
	}
	return &RateLimiter{
		clock:  cfg.Clock,
		rpm:    cfg.RPM,
		tpm:    cfg.TPM,
		rpd:    cfg.RPD,
		window: cfg.Window,
		notify: make(chan struct{}),
	}
}

// EstimateTokens is the coarse token model used for TPM accounting: roughly
// two output characters per token plus a fixed instruction overhead.
func EstimateTokens(expectedChars int) int {
	return max(256, expectedChars/2+200)
}

// Acquire blocks until one request costing tokens fits all three budgets, or
// the context is cancelled.
func (r *RateLimiter) Acquire(ctx context.Context, tokens int) error {
	start := r.clock.Now()
	for {
		r.mu.Lock()
		if r.tpm > 0 && tokens > r.tpm {
			limit := r.tpm
			r.mu.Unlock()
			return fmt.Errorf("%w: %d tokens > %d", ErrExceedsBudget, tokens, limit)
		}

		now := r.clock.Now()
		r.prune(now)
		wait := r.blockedFor(now, tokens)
		if wait <= 0 {
			r.record(now, tokens)
			r.totalWaited += now.Sub(start)
			r.mu.Unlock()
			return nil
		}

		notify := r.notify
		r.waiting++
		r.mu.Unlock()

		// Wait outside lock
		select {
		case <-ctx.Done():
			r.mu.Lock()
			r.waiting--
			r.mu.Unlock()
			return ctx.Err()
		case <-r.clock.After(wait):
		case <-notify:
		}

		r.mu.Lock()
		r.waiting--
		r.mu.Unlock()
	}
}

// TryAcquire admits the request only if it fits right now.
func (r *RateLimiter) TryAcquire(tokens int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	r.prune(now)
	if r.blockedFor(now, tokens) > 0 || (r.tpm > 0 && tokens > r.tpm) {
		return false
	}
	r.record(now, tokens)
	return true
}

// SetLimits replaces the budgets and wakes all waiters to re-check. A window
// <= 0 keeps the current one.
func (r *RateLimiter) SetLimits(rpm, tpm, rpd int, window time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rpm, r.tpm, r.rpd = rpm, tpm, rpd
	if window > 0 {
		r.window = window
	}
	r.broadcast()
}

// Reset clears all window state and wakes all waiters.
func (r *RateLimiter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.requests = nil
	r.tokens = nil
	r.daily = nil
	r.broadcast()
}

// Status returns current limiter status.
func (r *RateLimiter) Status() RateLimiterStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.prune(r.clock.Now())
	return RateLimiterStatus{
		RequestsInWindow: len(r.requests),
		RequestsLimit:    r.rpm,
		TokensInWindow:   r.tokenSum(),
		TokensLimit:      r.tpm,
		RequestsToday:    len(r.daily),
		DailyLimit:       r.rpd,
		Waiting:          r.waiting,
		TotalAcquired:    r.totalAcquired,
		TotalTokens:      r.totalTokens,
		TotalWaited:      r.totalWaited,
	}
}

// prune drops entries that have left their window. Must be called with lock held.
func (r *RateLimiter) prune(now time.Time) {
	i := 0
	for i < len(r.requests) && now.Sub(r.requests[i]) >= r.window {
		i++
	}
	r.requests = append(r.requests[:0], r.requests[i:]...)

	i = 0
	for i < len(r.tokens) && now.Sub(r.tokens[i].at) >= r.window {
		i++
	}
	r.tokens = append(r.tokens[:0], r.tokens[i:]...)

	i = 0
	for i < len(r.daily) && now.Sub(r.daily[i]) >= DayWindow {
		i++
	}
	r.daily = append(r.daily[:0], r.daily[i:]...)
}

// blockedFor returns how long until all three predicates can hold, or zero
// if they hold now. Must be called with lock held, after prune.
func (r *RateLimiter) blockedFor(now time.Time, tokens int) time.Duration {
	var wait time.Duration

	if r.rpm > 0 && len(r.requests) >= r.rpm {
		// The entry whose expiry brings the count back under the limit.
		oldest := r.requests[len(r.requests)-r.rpm]
		wait = max(wait, oldest.Add(r.window).Sub(now))
	}

	if r.tpm > 0 {
		excess := r.tokenSum() + tokens - r.tpm
		for i := 0; excess > 0 && i < len(r.tokens); i++ {
			excess -= r.tokens[i].tokens
			if excess <= 0 {
				wait = max(wait, r.tokens[i].at.Add(r.window).Sub(now))
			}
		}
	}

	if r.rpd > 0 && len(r.daily) >= r.rpd {
		oldest := r.daily[len(r.daily)-r.rpd]
		wait = max(wait, oldest.Add(DayWindow).Sub(now))
	}

	return wait
}

// record books one admission in all three windows. Must be called with lock held.
func (r *RateLimiter) record(now time.Time, tokens int) {
	r.requests = append(r.requests, now)
	r.tokens = append(r.tokens, tokenEntry{at: now, tokens: tokens})
	r.daily = append(r.daily, now)
	r.totalAcquired++
	r.totalTokens += int64(tokens)
}

func (r *RateLimiter) tokenSum() int {
	sum := 0
	for _, e := range r.tokens {
		sum += e.tokens
	}
	return sum
}

// broadcast wakes every waiter. Must be called with lock held.
func (r *RateLimiter) broadcast() {
	close(r.notify)
	r.notify = make(chan struct{})
}
