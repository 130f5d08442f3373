package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultOllamaModel      = "llama3.1:8b"
	defaultOllamaEmbedModel = "nomic-embed-text"
	defaultOllamaURL        = "http://localhost:11434"
)

// ollamaClient holds the pieces shared by the Ollama embedder and completer.
type ollamaClient struct {
	url    string
	model  string
	client *http.Client
}

func newOllamaClient(url, model, defaultModel string, timeout time.Duration) ollamaClient {
	if url == "" {
		url = defaultOllamaURL
	}
	if model == "" {
		model = defaultModel
	}
	return ollamaClient{
		url:    strings.TrimRight(url, "/"),
		model:  model,
		client: &http.Client{Timeout: timeout},
	}
}

// post sends a JSON body and returns the response once the status is OK.
// The caller must close the body.
func (c ollamaClient) post(ctx context.Context, path string, payload any) (*http.Response, error) {
	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("creating ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, transportError(ctx, "ollama request", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer func() {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}()
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(respBody))
		if wrapped := statusError(resp.StatusCode, err); wrapped != nil {
			return nil, wrapped
		}
		return nil, err
	}
	return resp, nil
}

// OllamaEmbedder implements the Embedder interface using Ollama's local API.
type OllamaEmbedder struct {
	ollamaClient
}

// NewOllamaEmbedder creates a new Ollama embedding provider.
// Supported models: "nomic-embed-text" (768 dims), "mxbai-embed-large" (1024 dims).
func NewOllamaEmbedder(url, model string) *OllamaEmbedder {
	return &OllamaEmbedder{newOllamaClient(url, model, defaultOllamaEmbedModel, 30*time.Second)}
}

type ollamaEmbeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Embed returns a vector embedding for the given text using Ollama's local API.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("cannot embed empty text")
	}

	resp, err := e.post(ctx, "/api/embeddings", ollamaEmbeddingRequest{Model: e.model, Prompt: text})
	if err != nil {
		return nil, err
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	var result ollamaEmbeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decoding ollama response: %v", ErrInvalidResponse, err)
	}
	if len(result.Embedding) == 0 {
		return nil, fmt.Errorf("%w: no embedding returned from ollama", ErrInvalidResponse)
	}

	embedding := make([]float32, len(result.Embedding))
	for i, v := range result.Embedding {
		embedding[i] = float32(v)
	}
	return embedding, nil
}

// EmbedBatch falls back to sequential calls; Ollama has no batch endpoint here.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return EmbedBatchSequential(ctx, e, texts)
}

// OllamaCompleter implements StreamCompleter using a local Ollama server.
type OllamaCompleter struct {
	ollamaClient
}

// NewOllamaCompleter creates a new OllamaCompleter.
// If url is empty, it defaults to http://localhost:11434.
// If model is empty, it defaults to llama3.1:8b.
func NewOllamaCompleter(url, model string) *OllamaCompleter {
	// Streams can outlive a fixed client timeout; callers bound them with ctx.
	return &OllamaCompleter{newOllamaClient(url, model, defaultOllamaModel, 0)}
}

type ollamaCompletionRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaCompletionResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// Complete sends a prompt to the Ollama server and returns the text completion.
func (o *OllamaCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := o.post(ctx, "/api/generate", ollamaCompletionRequest{Model: o.model, Prompt: prompt})
	if err != nil {
		return "", err
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	var ollamaResp ollamaCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&ollamaResp); err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidResponse, err)
	}
	if ollamaResp.Error != "" {
		return "", fmt.Errorf("ollama error: %s", ollamaResp.Error)
	}
	return ollamaResp.Response, nil
}

// Stream reads Ollama's newline-delimited JSON stream and forwards each
// response fragment to onDelta.
func (o *OllamaCompleter) Stream(ctx context.Context, prompt string, onDelta func(string) error) (string, error) {
	resp, err := o.post(ctx, "/api/generate", ollamaCompletionRequest{Model: o.model, Prompt: prompt, Stream: true})
	if err != nil {
		return "", err
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	var full strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk ollamaCompletionResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			return full.String(), fmt.Errorf("%w: %s", ErrInvalidResponse, err)
		}
		if chunk.Error != "" {
			return full.String(), fmt.Errorf("ollama error: %s", chunk.Error)
		}
		if chunk.Response != "" {
			full.WriteString(chunk.Response)
			if err := onDelta(chunk.Response); err != nil {
				return full.String(), err
			}
		}
		if chunk.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return full.String(), transportError(ctx, "reading ollama stream", err)
	}
	return full.String(), nil
}

var (
	_ BatchEmbedder   = (*OllamaEmbedder)(nil)
	_ StreamCompleter = (*OllamaCompleter)(nil)
)
