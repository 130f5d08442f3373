package retry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

var errTransient = errors.New("transient error")

func alwaysRetry(error) Kind { return Network }

func fastPolicy(maxAttempts int) Policy {
	return Policy{
		Base:         time.Millisecond,
		MaxDelay:     4 * time.Millisecond,
		JitterFactor: 0.2,
		MaxAttempts:  maxAttempts,
	}
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	var calls int
	err := fastPolicy(3).Do(context.Background(), alwaysRetry, func(context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDoSucceedsOnNthAttempt(t *testing.T) {
	var calls int
	err := fastPolicy(3).Do(context.Background(), alwaysRetry, func(context.Context) error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	var calls int
	err := fastPolicy(3).Do(context.Background(), alwaysRetry, func(context.Context) error {
		calls++
		return errTransient
	})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !errors.Is(err, ErrExhausted) {
		t.Errorf("expected ErrExhausted, got %v", err)
	}
	if !errors.Is(err, errTransient) {
		t.Errorf("expected wrapped transient error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDoUnknownFailsFast(t *testing.T) {
	permanent := errors.New("bad input")
	var calls int
	err := fastPolicy(5).Do(context.Background(), func(error) Kind { return Unknown }, func(context.Context) error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if errors.Is(err, ErrExhausted) {
		t.Error("unknown errors should not be reported as exhausted")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDoNilClassifierFailsFast(t *testing.T) {
	var calls int
	_ = fastPolicy(5).Do(context.Background(), nil, func(context.Context) error {
		calls++
		return errTransient
	})
	if calls != 1 {
		t.Errorf("expected 1 call with nil classifier, got %d", calls)
	}
}

func TestDoRateLimitedDoublesDelay(t *testing.T) {
	var delays []time.Duration
	p := fastPolicy(2)
	p.JitterFactor = 0
	p.OnRetry = func(_ int, kind Kind, delay time.Duration, _ error) {
		if kind != RateLimited {
			t.Errorf("kind = %v, want rate_limited", kind)
		}
		delays = append(delays, delay)
	}

	_ = p.Do(context.Background(), func(error) Kind { return RateLimited }, func(context.Context) error {
		return errTransient
	})

	if len(delays) != 1 {
		t.Fatalf("expected 1 retry, got %d", len(delays))
	}
	if delays[0] != 2*time.Millisecond {
		t.Errorf("delay = %v, want %v", delays[0], 2*time.Millisecond)
	}
}

func TestDoRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32

	p := Policy{Base: 50 * time.Millisecond, MaxDelay: time.Second, MaxAttempts: 5}

	go func() {
		for calls.Load() == 0 {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()

	err := p.Do(ctx, alwaysRetry, func(context.Context) error {
		calls.Add(1)
		return errTransient
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if calls.Load() > 2 {
		t.Errorf("expected at most 2 calls, got %d", calls.Load())
	}
}

func TestDoContextAlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls int
	err := fastPolicy(3).Do(ctx, alwaysRetry, func(context.Context) error {
		calls++
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if calls != 0 {
		t.Errorf("expected 0 calls with cancelled context, got %d", calls)
	}
}

func TestDoDefaultMaxAttempts(t *testing.T) {
	var calls int
	p := Policy{Base: time.Microsecond, MaxDelay: time.Microsecond}
	_ = p.Do(context.Background(), alwaysRetry, func(context.Context) error {
		calls++
		return errTransient
	})
	if calls != DefaultMaxAttempts {
		t.Errorf("expected %d calls (default), got %d", DefaultMaxAttempts, calls)
	}
}

func TestDelayBounds(t *testing.T) {
	p := DefaultPolicy()
	upper := time.Duration(float64(p.MaxDelay) * (1 + p.JitterFactor))

	for attempt := 0; attempt < 20; attempt++ {
		lower := p.Base << attempt
		if lower > p.MaxDelay || lower <= 0 {
			lower = p.MaxDelay
		}
		for i := 0; i < 50; i++ {
			d := p.Delay(attempt)
			if d < lower {
				t.Fatalf("attempt %d: delay %v below %v", attempt, d, lower)
			}
			if d > upper {
				t.Fatalf("attempt %d: delay %v above %v", attempt, d, upper)
			}
		}
	}
}

func TestDelayCapped(t *testing.T) {
	p := DefaultPolicy()
	d := p.Delay(100)
	maxWithJitter := p.MaxDelay + time.Duration(float64(p.MaxDelay)*p.JitterFactor)
	if d > maxWithJitter {
		t.Errorf("delay %v exceeds max with jitter %v", d, maxWithJitter)
	}
}

func TestDelayIncludesJitter(t *testing.T) {
	p := DefaultPolicy()
	seen := make(map[time.Duration]bool)
	for i := 0; i < 100; i++ {
		seen[p.Delay(1)] = true
	}
	if len(seen) < 2 {
		t.Error("expected jitter to produce varying delays")
	}
}

func TestDelayWithoutJitter(t *testing.T) {
	p := Policy{Base: time.Second, MaxDelay: 10 * time.Second, JitterFactor: 0}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 10 * time.Second},
		{-1, time.Second},
	}
	for _, tt := range tests {
		if got := p.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestKindRetryable(t *testing.T) {
	tests := []struct {
		kind Kind
		want bool
	}{
		{RateLimited, true},
		{Timeout, true},
		{Network, true},
		{Unknown, false},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			if got := tt.kind.Retryable(); got != tt.want {
				t.Errorf("Retryable() = %v, want %v", got, tt.want)
			}
		})
	}
}
