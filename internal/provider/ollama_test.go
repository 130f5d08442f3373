package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewOllamaEmbedder(t *testing.T) {
	embedder := NewOllamaEmbedder("http://localhost:11434/", "")
	if embedder.url != "http://localhost:11434" {
		t.Errorf("expected trailing slash stripped, got %s", embedder.url)
	}
	if embedder.model != defaultOllamaEmbedModel {
		t.Errorf("expected model %s, got %s", defaultOllamaEmbedModel, embedder.model)
	}
	if embedder.client == nil {
		t.Fatal("expected non-nil http client")
	}
}

func TestNewOllamaCompleter_Defaults(t *testing.T) {
	c := NewOllamaCompleter("", "")
	if c.url != defaultOllamaURL {
		t.Errorf("expected default URL %q, got %q", defaultOllamaURL, c.url)
	}
	if c.model != defaultOllamaModel {
		t.Errorf("expected default model %q, got %q", defaultOllamaModel, c.model)
	}
}

func TestOllamaEmbedder_Success(t *testing.T) {
	want := []float64{0.1, 0.2, 0.3, 0.4, 0.5}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			t.Errorf("expected path /api/embeddings, got %s", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected Content-Type application/json, got %s", ct)
		}

		var req ollamaEmbeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if req.Model != "nomic-embed-text" || req.Prompt != "hello world" {
			t.Errorf("unexpected request %+v", req)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ollamaEmbeddingResponse{Embedding: want})
	}))
	defer srv.Close()

	got, err := NewOllamaEmbedder(srv.URL, "nomic-embed-text").Embed(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("Embed returned error: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d dimensions, got %d", len(want), len(got))
	}
	for i, v := range want {
		if got[i] != float32(v) {
			t.Errorf("dimension %d: expected %f, got %f", i, v, got[i])
		}
	}
}

func TestOllamaEmbedder_EmptyText(t *testing.T) {
	if _, err := NewOllamaEmbedder("http://unused", "m").Embed(context.Background(), "   "); err == nil {
		t.Fatal("expected error for empty text")
	}
}

func TestOllamaEmbedder_BadBodies(t *testing.T) {
	bodies := map[string]string{
		"malformed": `{"embedding": [0.1,`,
		"empty":     `{"embedding": []}`,
		"missing":   `{}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(body))
			}))
			defer srv.Close()

			_, err := NewOllamaEmbedder(srv.URL, "m").Embed(context.Background(), "text")
			if !errors.Is(err, ErrInvalidResponse) {
				t.Errorf("expected ErrInvalidResponse, got %v", err)
			}
		})
	}
}

func TestOllamaCompleter_StatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusTooManyRequests, ErrRateLimit},
		{http.StatusRequestTimeout, ErrTimeout},
		{http.StatusGatewayTimeout, ErrTimeout},
		{http.StatusServiceUnavailable, ErrNetwork},
		{http.StatusBadRequest, nil},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte("nope"))
			}))
			defer srv.Close()

			_, err := NewOllamaCompleter(srv.URL, "m").Complete(context.Background(), "prompt")
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			if tt.want == nil && (errors.Is(err, ErrRateLimit) || errors.Is(err, ErrTimeout) || errors.Is(err, ErrNetwork)) {
				t.Errorf("400 should not map to a retryable sentinel, got %v", err)
			}
		})
	}
}

func TestOllamaCompleter_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("expected /api/generate, got %s", r.URL.Path)
		}
		var req ollamaCompletionRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Stream {
			t.Error("Complete should not request a stream")
		}
		json.NewEncoder(w).Encode(ollamaCompletionResponse{Response: "summary", Done: true})
	}))
	defer srv.Close()

	got, err := NewOllamaCompleter(srv.URL, "m").Complete(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "summary" {
		t.Errorf("got %q, want %q", got, "summary")
	}
}

func TestOllamaCompleter_OllamaError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ollamaCompletionResponse{Error: "model not found: llama99"})
	}))
	defer srv.Close()

	if _, err := NewOllamaCompleter(srv.URL, "llama99").Complete(context.Background(), "p"); err == nil {
		t.Fatal("expected error when ollama returns error field")
	}
}

func TestOllamaCompleter_ContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewOllamaCompleter(srv.URL, "m").Complete(ctx, "p")
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("expected ErrTimeout for cancelled context, got %v", err)
	}
}

func TestOllamaCompleter_Stream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaCompletionRequest
		json.NewDecoder(r.Body).Decode(&req)
		if !req.Stream {
			t.Error("Stream should request a stream")
		}
		enc := json.NewEncoder(w)
		enc.Encode(ollamaCompletionResponse{Response: "The "})
		enc.Encode(ollamaCompletionResponse{Response: "answer"})
		enc.Encode(ollamaCompletionResponse{Done: true})
		enc.Encode(ollamaCompletionResponse{Response: "ignored"})
	}))
	defer srv.Close()

	var deltas []string
	full, err := NewOllamaCompleter(srv.URL, "m").Stream(context.Background(), "p", func(d string) error {
		deltas = append(deltas, d)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if full != "The answer" {
		t.Errorf("full = %q", full)
	}
	if len(deltas) != 2 {
		t.Errorf("deltas = %v", deltas)
	}
}
