package github

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/bradleyfalzon/ghinstallation/v2"
	gogithub "github.com/google/go-github/v60/github"
	"golang.org/x/time/rate"
)

// ErrNotFound is returned when GitHub answers 404 for a repository, commit or blob.
var ErrNotFound = errors.New("github resource not found")

// Client wraps a go-github client with request pacing, rate limit waits and
// retries on server errors. The zero value is not usable; use NewClient.
type Client struct {
	gh      *gogithub.Client
	limiter *rate.Limiter
	logger  *slog.Logger

	// backoff is swapped out in tests to avoid real sleeps.
	backoff func(attempt int) time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithLogger sets the logger used for retry and throttle messages.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// WithRateLimit paces outgoing requests to rps requests per second with the
// given burst. A non-positive rps disables pacing.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// NewClient wraps gh. Requests are paced at 10/s with a burst of 5 unless
// WithRateLimit says otherwise.
func NewClient(gh *gogithub.Client, opts ...ClientOption) *Client {
	c := &Client{
		gh:      gh,
		limiter: rate.NewLimiter(rate.Limit(10), 5),
		logger:  slog.Default(),
		backoff: BackoffDuration,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewTokenClient creates a go-github client authenticated with a personal
// access token. An empty token yields an anonymous client.
func NewTokenClient(token string) *gogithub.Client {
	client := gogithub.NewClient(nil)
	if token != "" {
		client = client.WithAuthToken(token)
	}
	return client
}

// WithToken returns a copy of c that authenticates with token while sharing
// its limiter. An empty token returns c unchanged.
func (c *Client) WithToken(token string) *Client {
	if token == "" {
		return c
	}
	cp := *c
	cp.gh = c.gh.WithAuthToken(token)
	return &cp
}

// call runs one API request, waiting out rate limits and retrying server
// errors up to maxRetries times with exponential backoff.
func (c *Client) call(ctx context.Context, op string, fn func(ctx context.Context) (*gogithub.Response, error)) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			wait := c.backoff(attempt - 1)
			c.logger.Warn("retrying github request", "op", op, "attempt", attempt, "max_retries", maxRetries, "wait", wait)
			if err := sleep(ctx, wait); err != nil {
				return err
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		resp, err := fn(ctx)
		var httpResp *http.Response
		if resp != nil {
			httpResp = resp.Response
		}

		if wait, limited := RateLimitWait(httpResp, err); limited {
			c.logger.Warn("github rate limited", "op", op, "wait", wait)
			if err := sleep(ctx, wait); err != nil {
				return err
			}
			lastErr = fmt.Errorf("%s: rate limited: %w", op, err)
			continue
		}

		if IsServerError(httpResp) {
			lastErr = fmt.Errorf("%s: server error %d: %w", op, httpResp.StatusCode, err)
			continue
		}

		if httpResp != nil && httpResp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%s: %w", op, ErrNotFound)
		}

		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		if rl := ParseRateLimit(httpResp); rl.ShouldThrottle() {
			c.logger.Debug("github rate limit low", "op", op, "remaining", rl.Remaining, "reset", rl.Reset)
			// Only an exhausted quota is worth blocking on; anonymous clients
			// start below the threshold.
			if rl.Remaining == 0 {
				if err := sleep(ctx, rl.WaitDuration()); err != nil {
					return err
				}
			}
		}
		return nil
	}

	return fmt.Errorf("%s: exhausted %d retries: %w", op, maxRetries, lastErr)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// NewGitHubClient creates a GitHub API client authenticated as a GitHub App
// installation. It uses ghinstallation for automatic JWT and installation
// token management.
//
// privateKey can be either:
//   - Raw PEM bytes (begins with "-----BEGIN")
//   - Base64-encoded PEM bytes
//
// If privateKey is nil or empty and privateKeyPath is provided, the key is
// read from that file path.
func NewGitHubClient(appID, installationID int64, privateKey []byte, privateKeyPath string) (*gogithub.Client, error) {
	key, err := resolvePrivateKey(privateKey, privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("resolving private key: %w", err)
	}

	transport, err := ghinstallation.New(http.DefaultTransport, appID, installationID, key)
	if err != nil {
		return nil, fmt.Errorf("creating installation transport: %w", err)
	}

	client := gogithub.NewClient(&http.Client{Transport: transport})
	return client, nil
}

// resolvePrivateKey returns PEM-encoded private key bytes from either the
// provided raw/base64-encoded key or by reading from a file path.
func resolvePrivateKey(key []byte, keyPath string) ([]byte, error) {
	if len(key) > 0 {
		s := strings.TrimSpace(string(key))
		if strings.HasPrefix(s, "-----BEGIN") {
			return []byte(s), nil
		}
		// Try base64 decode
		decoded, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			// Try URL-safe base64
			decoded, err = base64.URLEncoding.DecodeString(s)
			if err != nil {
				return nil, fmt.Errorf("private key is neither PEM nor valid base64: %w", err)
			}
		}
		return decoded, nil
	}

	if keyPath != "" {
		data, err := os.ReadFile(keyPath)
		if err != nil {
			return nil, fmt.Errorf("reading private key file %s: %w", keyPath, err)
		}
		return data, nil
	}

	return nil, fmt.Errorf("no private key provided: set private_key or private_key_path")
}
