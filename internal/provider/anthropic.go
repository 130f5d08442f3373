package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicModel = "claude-sonnet-4-20250514"

// AnthropicCompleter implements StreamCompleter using the Anthropic API.
type AnthropicCompleter struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicCompleter creates a new AnthropicCompleter.
// If model is empty, it defaults to claude-sonnet-4-20250514.
func NewAnthropicCompleter(apiKey, model string, opts ...option.RequestOption) *AnthropicCompleter {
	if model == "" {
		model = defaultAnthropicModel
	}
	client := anthropic.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	return &AnthropicCompleter{
		client: &client,
		model:  model,
	}
}

func (a *AnthropicCompleter) params(prompt string) anthropic.MessageNewParams {
	return anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: maxCompletionTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
}

// Complete sends a prompt to Anthropic and returns the text completion.
func (a *AnthropicCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	msg, err := a.client.Messages.New(ctx, a.params(prompt))
	if err != nil {
		return "", anthropicError(ctx, "anthropic completion", err)
	}

	for _, block := range msg.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}

	return "", fmt.Errorf("%w: no text content in response", ErrInvalidResponse)
}

// Stream sends a prompt to Anthropic and forwards text deltas to onDelta.
func (a *AnthropicCompleter) Stream(ctx context.Context, prompt string, onDelta func(string) error) (string, error) {
	stream := a.client.Messages.NewStreaming(ctx, a.params(prompt))
	defer stream.Close()

	var full strings.Builder
	for stream.Next() {
		event := stream.Current()
		ev, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
		if !ok {
			continue
		}
		delta, ok := ev.Delta.AsAny().(anthropic.TextDelta)
		if !ok || delta.Text == "" {
			continue
		}
		full.WriteString(delta.Text)
		if err := onDelta(delta.Text); err != nil {
			return full.String(), err
		}
	}
	if err := stream.Err(); err != nil {
		return full.String(), anthropicError(ctx, "anthropic stream", err)
	}

	return full.String(), nil
}

var _ StreamCompleter = (*AnthropicCompleter)(nil)

func anthropicError(ctx context.Context, op string, err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		if wrapped := statusError(apiErr.StatusCode, err); wrapped != nil {
			return wrapped
		}
	}
	return transportError(ctx, op, err)
}
