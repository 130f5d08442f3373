package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

const (
	// DefaultMaxAttempts is the default number of attempts before giving up.
	DefaultMaxAttempts = 10

	// DefaultBase is the initial backoff delay.
	DefaultBase = 1 * time.Second

	// DefaultMaxDelay caps the exponential part of the backoff delay.
	DefaultMaxDelay = 60 * time.Second

	// DefaultJitterFactor is the maximum fraction of the delay added as jitter.
	DefaultJitterFactor = 0.2

	// rateLimitMultiplier stretches the delay after a rate-limit failure so
	// provider cooldowns are respected.
	rateLimitMultiplier = 2
)

// ErrExhausted wraps the last error once every attempt has failed.
var ErrExhausted = errors.New("retries exhausted")

// Kind classifies a failure for retry purposes.
type Kind int

const (
	Unknown Kind = iota
	RateLimited
	Timeout
	Network
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case RateLimited:
		return "rate_limited"
	case Timeout:
		return "timeout"
	case Network:
		return "network"
	default:
		return "unknown"
	}
}

// Retryable reports whether failures of this kind should be retried.
func (k Kind) Retryable() bool {
	return k == RateLimited || k == Timeout || k == Network
}

// Classifier maps an error to a Kind.
type Classifier func(err error) Kind

// Policy describes exponential backoff with jitter and an attempt ceiling.
type Policy struct {
	Base         time.Duration
	MaxDelay     time.Duration
	JitterFactor float64
	MaxAttempts  int

	// OnRetry, if set, is called before each backoff sleep.
	OnRetry func(attempt int, kind Kind, delay time.Duration, err error)
}

// DefaultPolicy returns 1s base, 60s cap, 20% jitter and 10 attempts.
func DefaultPolicy() Policy {
	return Policy{
		Base:         DefaultBase,
		MaxDelay:     DefaultMaxDelay,
		JitterFactor: DefaultJitterFactor,
		MaxAttempts:  DefaultMaxAttempts,
	}
}

func (p Policy) withDefaults() Policy {
	if p.Base <= 0 {
		p.Base = DefaultBase
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	if p.JitterFactor < 0 {
		p.JitterFactor = 0
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	return p
}

// Delay returns the backoff for the given attempt (0-indexed):
// min(Base*2^attempt, MaxDelay) plus up to JitterFactor of that value.
func (p Policy) Delay(attempt int) time.Duration {
	p = p.withDefaults()
	if attempt < 0 {
		attempt = 0
	}

	exp := float64(p.Base) * math.Pow(2, float64(attempt))
	if exp > float64(p.MaxDelay) {
		exp = float64(p.MaxDelay)
	}

	jitter := exp * p.JitterFactor * rand.Float64()
	return time.Duration(exp + jitter)
}

// Do calls fn until it succeeds, returns an error that classify marks as not
// retryable, the attempt ceiling is reached, or ctx is done. Rate-limited
// failures wait twice the computed backoff.
func (p Policy) Do(ctx context.Context, classify Classifier, fn func(ctx context.Context) error) error {
	p = p.withDefaults()

	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		kind := Unknown
		if classify != nil {
			kind = classify(lastErr)
		}
		if !kind.Retryable() {
			return lastErr
		}

		// Don't sleep after the last attempt.
		if attempt == p.MaxAttempts-1 {
			break
		}

		delay := p.Delay(attempt)
		if kind == RateLimited {
			delay *= rateLimitMultiplier
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt+1, kind, delay, lastErr)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, p.MaxAttempts, lastErr)
}
