package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const (
	defaultGeminiModel      = "gemini-2.5-flash"
	defaultGeminiEmbedModel = "text-embedding-004"
)

// GeminiCompleter implements StreamCompleter using the Gemini API.
type GeminiCompleter struct {
	client *genai.Client
	model  string
}

// GeminiEmbedder implements Embedder using the Gemini embeddings API.
type GeminiEmbedder struct {
	client *genai.Client
	model  string
}

func newGeminiClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Backend: genai.BackendGeminiAPI,
		APIKey:  apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return client, nil
}

// NewGeminiCompleter creates a GeminiCompleter. If model is empty it defaults
// to gemini-2.5-flash.
func NewGeminiCompleter(ctx context.Context, apiKey, model string) (*GeminiCompleter, error) {
	client, err := newGeminiClient(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	return newGeminiCompleterWithClient(client, model), nil
}

func newGeminiCompleterWithClient(client *genai.Client, model string) *GeminiCompleter {
	if model == "" {
		model = defaultGeminiModel
	}
	return &GeminiCompleter{client: client, model: model}
}

// NewGeminiEmbedder creates a GeminiEmbedder. If model is empty it defaults
// to text-embedding-004 (768 dims).
func NewGeminiEmbedder(ctx context.Context, apiKey, model string) (*GeminiEmbedder, error) {
	client, err := newGeminiClient(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	return newGeminiEmbedderWithClient(client, model), nil
}

func newGeminiEmbedderWithClient(client *genai.Client, model string) *GeminiEmbedder {
	if model == "" {
		model = defaultGeminiEmbedModel
	}
	return &GeminiEmbedder{client: client, model: model}
}

func geminiContents(text string) []*genai.Content {
	return []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{genai.NewPartFromText(text)},
		},
	}
}

func geminiConfig() *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{MaxOutputTokens: maxCompletionTokens}
}

// Complete sends a prompt to Gemini and returns the text completion.
func (g *GeminiCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	result, err := g.client.Models.GenerateContent(ctx, g.model, geminiContents(prompt), geminiConfig())
	if err != nil {
		return "", geminiError(ctx, "gemini completion", err)
	}
	if result == nil {
		return "", fmt.Errorf("%w: nil result", ErrInvalidResponse)
	}
	return result.Text(), nil
}

// Stream sends a prompt to Gemini and forwards each streamed fragment to onDelta.
func (g *GeminiCompleter) Stream(ctx context.Context, prompt string, onDelta func(string) error) (string, error) {
	var full strings.Builder
	for result, err := range g.client.Models.GenerateContentStream(ctx, g.model, geminiContents(prompt), geminiConfig()) {
		if err != nil {
			return full.String(), geminiError(ctx, "gemini stream", err)
		}
		if result == nil {
			continue
		}
		delta := result.Text()
		if delta == "" {
			continue
		}
		full.WriteString(delta)
		if err := onDelta(delta); err != nil {
			return full.String(), err
		}
	}
	return full.String(), nil
}

// Embed returns a vector embedding for the given text.
func (g *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("cannot embed empty text")
	}

	resp, err := g.client.Models.EmbedContent(ctx, g.model, geminiContents(text), nil)
	if err != nil {
		return nil, geminiError(ctx, "gemini embedding", err)
	}
	if resp == nil || len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("%w: no embedding returned from gemini", ErrInvalidResponse)
	}
	return resp.Embeddings[0].Values, nil
}

var (
	_ StreamCompleter = (*GeminiCompleter)(nil)
	_ Embedder        = (*GeminiEmbedder)(nil)
)

func geminiError(ctx context.Context, op string, err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if wrapped := statusError(apiErr.Code, err); wrapped != nil {
			return wrapped
		}
	}
	return transportError(ctx, op, err)
}
