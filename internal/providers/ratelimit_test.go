package providers

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeClock is a manually advanced clock. After registers a waiter that fires
// once the clock passes its deadline.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []fakeWaiter
}

type fakeWaiter struct {
	deadline time.Time
	ch       chan time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- c.now
		return ch
	}
	c.waiters = append(c.waiters, fakeWaiter{deadline: c.now.Add(d), ch: ch})
	return ch
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	kept := c.waiters[:0]
	for _, w := range c.waiters {
		if !w.deadline.After(c.now) {
			w.ch <- c.now
			continue
		}
		kept = append(kept, w)
	}
	c.waiters = kept
}

func (c *fakeClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// waitForWaiters blocks until n timers are registered on the clock.
func waitForWaiters(t *testing.T, c *fakeClock, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for c.pending() < n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d clock waiters (have %d)", n, c.pending())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		chars int
		want  int
	}{
		{0, 256},
		{100, 256},
		{112, 256},
		{1200, 800},
		{4000, 2200},
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.chars); got != tt.want {
			t.Errorf("EstimateTokens(%d) = %d, want %d", tt.chars, got, tt.want)
		}
	}
}

func TestRateLimiter_ThirdRequestWaitsFullWindow(t *testing.T) {
	clock := newFakeClock()
	rl := NewRateLimiter(RateLimitConfig{RPM: 2, TPM: 1_000_000, RPD: 100, Window: time.Minute, Clock: clock})
	ctx := context.Background()

	start := clock.Now()
	for i := 0; i < 2; i++ {
		if err := rl.Acquire(ctx, 256); err != nil {
			t.Fatalf("Acquire(%d) error = %v", i, err)
		}
	}

	done := make(chan time.Time, 1)
	go func() {
		if err := rl.Acquire(ctx, 256); err != nil {
			t.Errorf("third Acquire error = %v", err)
		}
		done <- clock.Now()
	}()

	waitForWaiters(t, clock, 1)
	clock.Advance(59 * time.Second)

	select {
	case <-done:
		t.Fatal("third Acquire returned before the window elapsed")
	case <-time.After(20 * time.Millisecond):
	}

	clock.Advance(time.Second)
	select {
	case at := <-done:
		if at.Sub(start) < time.Minute {
			t.Errorf("granted after %v, want >= 1m", at.Sub(start))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("third Acquire never returned")
	}
}

func TestRateLimiter_TokenBudget(t *testing.T) {
	clock := newFakeClock()
	rl := NewRateLimiter(RateLimitConfig{RPM: 100, TPM: 1000, RPD: 100, Clock: clock})

	if !rl.TryAcquire(600) {
		t.Fatal("first TryAcquire(600) = false, want true")
	}
	if rl.TryAcquire(500) {
		t.Fatal("TryAcquire(500) = true with 600/1000 used, want false")
	}
	if !rl.TryAcquire(400) {
		t.Fatal("TryAcquire(400) = false with 600/1000 used, want true")
	}

	clock.Advance(time.Minute)
	if !rl.TryAcquire(1000) {
		t.Fatal("TryAcquire(1000) after window = false, want true")
	}
}

func TestRateLimiter_ExceedsBudget(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RPM: 10, TPM: 500, RPD: 10})
	err := rl.Acquire(context.Background(), 501)
	if !errors.Is(err, ErrExceedsBudget) {
		t.Fatalf("Acquire error = %v, want ErrExceedsBudget", err)
	}
}

func TestRateLimiter_DailyBudget(t *testing.T) {
	clock := newFakeClock()
	rl := NewRateLimiter(RateLimitConfig{RPM: 100, TPM: 1_000_000, RPD: 3, Clock: clock})

	for i := 0; i < 3; i++ {
		if !rl.TryAcquire(256) {
			t.Fatalf("TryAcquire(%d) = false", i)
		}
		clock.Advance(2 * time.Minute)
	}
	if rl.TryAcquire(256) {
		t.Fatal("fourth request in one day admitted")
	}

	clock.Advance(DayWindow)
	if !rl.TryAcquire(256) {
		t.Fatal("request after a day rejected")
	}
}

func TestRateLimiter_ContextCancel(t *testing.T) {
	clock := newFakeClock()
	rl := NewRateLimiter(RateLimitConfig{RPM: 1, TPM: 10_000, RPD: 10, Clock: clock})
	if err := rl.Acquire(context.Background(), 256); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- rl.Acquire(ctx, 256) }()

	waitForWaiters(t, clock, 1)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Acquire did not observe cancellation")
	}
	if got := rl.Status().Waiting; got != 0 {
		t.Errorf("Waiting = %d after cancel, want 0", got)
	}
}

func TestRateLimiter_SetLimitsWakesWaiters(t *testing.T) {
	clock := newFakeClock()
	rl := NewRateLimiter(RateLimitConfig{RPM: 1, TPM: 10_000, RPD: 10, Clock: clock})
	if err := rl.Acquire(context.Background(), 256); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		_ = rl.Acquire(context.Background(), 256)
		close(done)
	}()

	waitForWaiters(t, clock, 1)
	rl.SetLimits(5, 10_000, 10, 0)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("raising the limit did not wake the waiter")
	}
}

func TestRateLimiter_SetLimitsWindow(t *testing.T) {
	clock := newFakeClock()
	rl := NewRateLimiter(RateLimitConfig{RPM: 1, TPM: 10_000, RPD: 10, Clock: clock})
	if !rl.TryAcquire(256) {
		t.Fatal("first request should be admitted")
	}

	clock.Advance(30 * time.Second)
	if rl.TryAcquire(256) {
		t.Fatal("request inside the one minute window should be rejected")
	}

	rl.SetLimits(1, 10_000, 10, 0)
	if rl.TryAcquire(256) {
		t.Fatal("a zero window must keep the current one")
	}

	rl.SetLimits(1, 10_000, 10, 10*time.Second)
	if !rl.TryAcquire(256) {
		t.Fatal("request older than the shortened window should no longer count")
	}
}

// Concurrent acquirers against a fixed budget: at no instant may the trailing
// window hold more grants than the budgets allow.
func TestRateLimiter_ConcurrentNeverOvershoots(t *testing.T) {
	clock := newFakeClock()
	const rpm, tpm = 5, 2000
	rl := NewRateLimiter(RateLimitConfig{RPM: rpm, TPM: tpm, RPD: 1000, Clock: clock})

	var granted atomic.Int32
	var wg sync.WaitGroup
	const workers = 12
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := rl.Acquire(context.Background(), 300); err != nil {
				t.Errorf("Acquire error = %v", err)
				return
			}
			granted.Add(1)
		}()
	}

	deadline := time.Now().Add(5 * time.Second)
	for granted.Load() < workers {
		if time.Now().After(deadline) {
			t.Fatalf("only %d of %d acquired", granted.Load(), workers)
		}
		time.Sleep(2 * time.Millisecond)
		if clock.pending() > 0 {
			clock.Advance(10 * time.Second)
		}
	}
	wg.Wait()

	rl.mu.Lock()
	grants := append([]time.Time(nil), rl.daily...)
	rl.mu.Unlock()
	if len(grants) != workers {
		t.Fatalf("recorded %d grants, want %d", len(grants), workers)
	}

	for _, g := range grants {
		inWindow := 0
		for _, o := range grants {
			if !o.After(g) && g.Sub(o) < time.Minute {
				inWindow++
			}
		}
		if inWindow > rpm {
			t.Errorf("%d grants in window ending %v, rpm = %d", inWindow, g, rpm)
		}
		if inWindow*300 > tpm {
			t.Errorf("%d tokens in window ending %v, tpm = %d", inWindow*300, g, tpm)
		}
	}
}
