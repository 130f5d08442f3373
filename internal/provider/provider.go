package provider

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/jacklau/codebrief/internal/retry"
)

// Sentinel errors for provider operations.
var (
	ErrRateLimit       = errors.New("rate limit exceeded")
	ErrTimeout         = errors.New("request timed out")
	ErrNetwork         = errors.New("network error")
	ErrInvalidResponse = errors.New("invalid response from provider")
	ErrEmptyResponse   = errors.New("empty response from provider")
)

// maxCompletionTokens bounds every generated completion.
const maxCompletionTokens = 2048

// Embedder generates vector embeddings from text.
type Embedder interface {
	// Embed returns a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)
}

// BatchEmbedder extends Embedder with batch embedding support.
// Providers that support native batch embedding (e.g., OpenAI) should implement this
// for better performance. Other providers can use EmbedBatchSequential as a fallback.
type BatchEmbedder interface {
	Embedder
	// EmbedBatch returns vector embeddings for multiple texts in a single call.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbedBatchSequential implements batch embedding by calling Embed sequentially.
func EmbedBatchSequential(ctx context.Context, embedder Embedder, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	for i, text := range texts {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		emb, err := embedder.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embedding text %d: %w", i, err)
		}
		results[i] = emb
	}
	return results, nil
}

// Completer generates text completions from a prompt.
type Completer interface {
	// Complete returns a text completion for the given prompt.
	Complete(ctx context.Context, prompt string) (string, error)
}

// StreamCompleter is a Completer that can also deliver output incrementally.
type StreamCompleter interface {
	Completer
	// Stream calls onDelta with each chunk of generated text as it arrives
	// and returns the full text. An error from onDelta stops the stream.
	Stream(ctx context.Context, prompt string, onDelta func(string) error) (string, error)
}

// EmbedderConfig holds configuration for creating an Embedder.
type EmbedderConfig struct {
	Type   string
	Model  string
	APIKey string
	URL    string
}

// CompleterConfig holds configuration for creating a Completer.
type CompleterConfig struct {
	Type   string
	Model  string
	APIKey string
	URL    string
}

// Classify maps provider errors onto retry kinds. Rate limits, timeouts and
// transport failures are retryable; anything else is not.
func Classify(err error) retry.Kind {
	var netErr net.Error
	switch {
	case err == nil:
		return retry.Unknown
	case errors.Is(err, context.Canceled):
		return retry.Unknown
	case errors.Is(err, ErrRateLimit):
		return retry.RateLimited
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return retry.Timeout
	case errors.Is(err, ErrNetwork), errors.Is(err, ErrEmptyResponse):
		// An empty body is treated as a transport glitch worth another try.
		return retry.Network
	case errors.As(err, &netErr):
		if netErr.Timeout() {
			return retry.Timeout
		}
		return retry.Network
	default:
		return retry.Unknown
	}
}

// statusError wraps err with the sentinel matching an HTTP status code, or
// returns nil when the status carries no retry meaning.
func statusError(status int, err error) error {
	switch status {
	case 429:
		return fmt.Errorf("%w: %s", ErrRateLimit, err)
	case 408, 504:
		return fmt.Errorf("%w: %s", ErrTimeout, err)
	case 500, 502, 503:
		return fmt.Errorf("%w: %s", ErrNetwork, err)
	}
	return nil
}

// transportError wraps a failure that carried no usable status code.
func transportError(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %s", ErrTimeout, ctx.Err())
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %s: %v", ErrNetwork, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
