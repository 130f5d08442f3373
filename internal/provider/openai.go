package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAICompleter implements StreamCompleter using the OpenAI API.
type OpenAICompleter struct {
	client *openai.Client
	model  string
}

// NewOpenAICompleter creates a new OpenAICompleter.
// If model is empty, it defaults to gpt-4o-mini.
func NewOpenAICompleter(apiKey, model string) *OpenAICompleter {
	return newOpenAICompleterWithClient(openai.NewClient(apiKey), model)
}

// NewOpenAICompatibleCompleter targets any server speaking the OpenAI API at baseURL.
func NewOpenAICompatibleCompleter(apiKey, baseURL, model string) *OpenAICompleter {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return newOpenAICompleterWithClient(openai.NewClientWithConfig(cfg), model)
}

func newOpenAICompleterWithClient(client *openai.Client, model string) *OpenAICompleter {
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAICompleter{
		client: client,
		model:  model,
	}
}

func (o *OpenAICompleter) request(prompt string) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		MaxTokens: maxCompletionTokens,
	}
}

// Complete sends a prompt to OpenAI and returns the text completion.
func (o *OpenAICompleter) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, o.request(prompt))
	if err != nil {
		return "", openAIError(ctx, "openai completion", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in response", ErrInvalidResponse)
	}

	return resp.Choices[0].Message.Content, nil
}

// Stream sends a prompt to OpenAI and forwards content deltas to onDelta.
func (o *OpenAICompleter) Stream(ctx context.Context, prompt string, onDelta func(string) error) (string, error) {
	req := o.request(prompt)
	req.Stream = true

	stream, err := o.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return "", openAIError(ctx, "openai stream", err)
	}
	defer stream.Close()

	var full strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return full.String(), openAIError(ctx, "openai stream", err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
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

// OpenAIEmbedder implements BatchEmbedder using the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

// NewOpenAIEmbedder creates a new OpenAIEmbedder. Unknown model names fall
// back to text-embedding-3-small.
func NewOpenAIEmbedder(apiKey, model string) *OpenAIEmbedder {
	return newOpenAIEmbedderWithClient(openai.NewClient(apiKey), model)
}

func newOpenAIEmbedderWithClient(client *openai.Client, model string) *OpenAIEmbedder {
	return &OpenAIEmbedder{
		client: client,
		model:  openAIEmbeddingModel(model),
	}
}

func openAIEmbeddingModel(name string) openai.EmbeddingModel {
	switch name {
	case string(openai.LargeEmbedding3):
		return openai.LargeEmbedding3
	case string(openai.AdaEmbeddingV2):
		return openai.AdaEmbeddingV2
	default:
		return openai.SmallEmbedding3
	}
}

// Embed returns a vector embedding for the given text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("cannot embed empty text")
	}
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds all texts in a single request.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: e.model,
	})
	if err != nil {
		return nil, openAIError(ctx, "openai embedding", err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", ErrInvalidResponse, len(texts), len(resp.Data))
	}

	out := make([][]float32, len(texts))
	for i, d := range resp.Data {
		idx := d.Index
		if idx < 0 || idx >= len(out) {
			idx = i
		}
		out[idx] = d.Embedding
	}
	return out, nil
}

var (
	_ StreamCompleter = (*OpenAICompleter)(nil)
	_ BatchEmbedder   = (*OpenAIEmbedder)(nil)
)

func openAIError(ctx context.Context, op string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if wrapped := statusError(apiErr.HTTPStatusCode, err); wrapped != nil {
			return wrapped
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if wrapped := statusError(reqErr.HTTPStatusCode, err); wrapped != nil {
			return wrapped
		}
	}
	return transportError(ctx, op, err)
}
