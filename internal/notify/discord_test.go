package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestBuildDiscordPayload_Structure(t *testing.T) {
	payload := BuildDiscordPayload(testReport())

	if len(payload.Embeds) != 1 {
		t.Fatalf("expected 1 embed, got %d", len(payload.Embeds))
	}
	embed := payload.Embeds[0]
	if embed.Title != "Indexed hello" {
		t.Errorf("unexpected title %q", embed.Title)
	}
	if embed.URL != "https://github.com/octocat/hello" {
		t.Errorf("unexpected url %q", embed.URL)
	}
	if embed.Color != discordColorPartial {
		t.Errorf("expected partial color with failures, got %d", embed.Color)
	}
	if len(embed.Fields) != 3 {
		t.Fatalf("expected 3 fields, got %d", len(embed.Fields))
	}
	if embed.Fields[0].Value != "6/7 files (86%)" {
		t.Errorf("unexpected processed field %q", embed.Fields[0].Value)
	}
	if embed.Timestamp != "2024-06-01T12:00:00Z" {
		t.Errorf("unexpected timestamp %q", embed.Timestamp)
	}
}

func TestBuildDiscordPayload_AllSucceeded(t *testing.T) {
	r := testReport()
	r.Failed = nil
	r.ProjectName = ""
	embed := BuildDiscordPayload(r).Embeds[0]

	if embed.Color != discordColorSuccess {
		t.Errorf("expected success color, got %d", embed.Color)
	}
	if len(embed.Fields) != 2 {
		t.Errorf("expected 2 fields, got %d", len(embed.Fields))
	}
	if embed.Title != "Indexed p1" {
		t.Errorf("expected project ID fallback in title, got %q", embed.Title)
	}
}

func TestDiscordNotifier_Notify_Success(t *testing.T) {
	var body []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	if err := NewDiscordNotifier(server.URL).Notify(context.Background(), testReport()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var payload discordPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("invalid discord payload: %v", err)
	}
	if len(payload.Embeds) != 1 {
		t.Errorf("expected 1 embed, got %d", len(payload.Embeds))
	}
}

func TestDiscordNotifier_Notify_NoRetry(t *testing.T) {
	var callCount atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	if err := NewDiscordNotifier(server.URL).Notify(context.Background(), testReport()); err == nil {
		t.Fatal("expected error on non-2xx response")
	}
	if got := callCount.Load(); got != 1 {
		t.Errorf("expected a single call, got %d", got)
	}
}
