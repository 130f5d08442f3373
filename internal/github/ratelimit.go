package github

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	gogithub "github.com/google/go-github/v60/github"
)

const (
	// throttleThreshold is the remaining request count below which we throttle.
	throttleThreshold = 100

	// maxBackoff is the maximum backoff duration.
	maxBackoff = 60 * time.Second

	// maxRetries is the maximum number of retries for server errors.
	maxRetries = 3

	// defaultRateLimitWait is used when a rate limited response carries no timing hints.
	defaultRateLimitWait = 60 * time.Second
)

// RateLimitInfo holds parsed rate limit information from GitHub API response headers.
type RateLimitInfo struct {
	Remaining int
	Reset     time.Time
	Observed  time.Time
}

// ParseRateLimit extracts rate limit information from a GitHub API HTTP response.
// Returns nil if the relevant headers are not present.
func ParseRateLimit(resp *http.Response) *RateLimitInfo {
	if resp == nil {
		return nil
	}

	remainingStr := resp.Header.Get("X-RateLimit-Remaining")
	resetStr := resp.Header.Get("X-RateLimit-Reset")

	if remainingStr == "" && resetStr == "" {
		return nil
	}

	info := &RateLimitInfo{
		Observed: time.Now(),
	}

	if remainingStr != "" {
		if remaining, err := strconv.Atoi(remainingStr); err == nil {
			info.Remaining = remaining
		}
	}

	if resetStr != "" {
		if resetUnix, err := strconv.ParseInt(resetStr, 10, 64); err == nil {
			info.Reset = time.Unix(resetUnix, 0)
		}
	}

	return info
}

// ShouldThrottle returns true when the remaining rate limit is below the
// safety threshold, indicating we should slow down requests.
func (r *RateLimitInfo) ShouldThrottle() bool {
	if r == nil {
		return false
	}
	return r.Remaining < throttleThreshold
}

// WaitDuration returns how long to wait before the rate limit resets.
// Returns zero if the reset time is in the past.
func (r *RateLimitInfo) WaitDuration() time.Duration {
	if r == nil {
		return 0
	}
	d := time.Until(r.Reset)
	if d < 0 {
		return 0
	}
	return d
}

// RateLimitWait reports whether a call was rejected by GitHub's rate limiter
// and, if so, how long to wait before trying again. It understands both the
// go-github error types and raw 403/429 responses.
func RateLimitWait(resp *http.Response, err error) (time.Duration, bool) {
	var rlErr *gogithub.RateLimitError
	if errors.As(err, &rlErr) {
		return nonNegative(time.Until(rlErr.Rate.Reset.Time)), true
	}

	var abuseErr *gogithub.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		if abuseErr.RetryAfter != nil {
			return nonNegative(*abuseErr.RetryAfter), true
		}
		return defaultRateLimitWait, true
	}

	if !IsRateLimitError(resp) {
		return 0, false
	}

	if info := ParseRateLimit(resp); info != nil && !info.Reset.IsZero() {
		if wait := info.WaitDuration(); wait > 0 {
			return wait, true
		}
	}

	if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
		if seconds, err := strconv.Atoi(retryAfter); err == nil {
			return time.Duration(seconds) * time.Second, true
		}
	}

	return defaultRateLimitWait, true
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}

// BackoffDuration calculates exponential backoff duration for the given
// attempt number (0-indexed). The progression is 1s, 2s, 4s, 8s, ... capped
// at maxBackoff (60s).
func BackoffDuration(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := time.Duration(math.Pow(2, float64(attempt))) * time.Second
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

// IsServerError returns true if the response has a 5xx status code.
func IsServerError(resp *http.Response) bool {
	return resp != nil && resp.StatusCode >= 500 && resp.StatusCode < 600
}

// IsRateLimitError returns true for 429 responses, and for 403 responses
// that carry an exhausted quota or a Retry-After header. Other 403s are
// permission errors and are not retried.
func IsRateLimitError(resp *http.Response) bool {
	if resp == nil {
		return false
	}
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return true
	case http.StatusForbidden:
		return resp.Header.Get("X-RateLimit-Remaining") == "0" || resp.Header.Get("Retry-After") != ""
	default:
		return false
	}
}
