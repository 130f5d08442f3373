package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestBuildSlackPayload_Structure(t *testing.T) {
	payload := BuildSlackPayload(testReport())

	if len(payload.Blocks) != 4 {
		t.Fatalf("expected 4 blocks (header, project, processed, skipped), got %d", len(payload.Blocks))
	}
	if payload.Blocks[0].Type != "header" || payload.Blocks[0].Text.Text != "Repository Indexed" {
		t.Errorf("unexpected header block: %+v", payload.Blocks[0])
	}
	if !strings.Contains(payload.Blocks[1].Text.Text, "<https://github.com/octocat/hello|hello>") {
		t.Errorf("expected project link, got %q", payload.Blocks[1].Text.Text)
	}
	if !strings.Contains(payload.Blocks[2].Text.Text, "6/7 files (86%)") {
		t.Errorf("expected progress, got %q", payload.Blocks[2].Text.Text)
	}
	if !strings.Contains(payload.Blocks[3].Text.Text, "broken.go") {
		t.Errorf("expected skipped file, got %q", payload.Blocks[3].Text.Text)
	}
}

func TestBuildSlackPayload_NoFailures(t *testing.T) {
	r := testReport()
	r.Failed = nil
	r.Processed = 7
	payload := BuildSlackPayload(r)
	if len(payload.Blocks) != 3 {
		t.Errorf("expected 3 blocks without failures, got %d", len(payload.Blocks))
	}
}

func TestSlackNotifier_Notify_VerifiesRequest(t *testing.T) {
	var gotBody []byte
	var gotContentType, gotMethod string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotMethod = r.Method
		var err error
		gotBody, err = io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("reading request body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	if err := NewSlackNotifier(server.URL).Notify(context.Background(), testReport()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotMethod != http.MethodPost {
		t.Errorf("expected POST, got %q", gotMethod)
	}
	if gotContentType != "application/json" {
		t.Errorf("expected application/json, got %q", gotContentType)
	}
	var payload slackPayload
	if err := json.Unmarshal(gotBody, &payload); err != nil {
		t.Fatalf("request body is not valid slack payload JSON: %v", err)
	}
	if len(payload.Blocks) != 4 {
		t.Errorf("expected 4 blocks, got %d", len(payload.Blocks))
	}
}

func TestSlackNotifier_Notify_RetriesOnce(t *testing.T) {
	var callCount atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount.Add(1)
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("bad gateway"))
	}))
	defer server.Close()

	err := NewSlackNotifier(server.URL).Notify(context.Background(), testReport())
	if err == nil {
		t.Fatal("expected error on non-2xx response")
	}
	if got := callCount.Load(); got != 2 {
		t.Errorf("expected 2 calls (one retry), got %d", got)
	}
}

func TestSlackNotifier_Notify_RecoversOnRetry(t *testing.T) {
	var callCount atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if callCount.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	if err := NewSlackNotifier(server.URL).Notify(context.Background(), testReport()); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
}

func TestSlackNotifier_Notify_TimesOut(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := &SlackNotifier{
		webhookURL: server.URL,
		client:     &http.Client{Timeout: 50 * time.Millisecond},
	}

	if err := notifier.Notify(context.Background(), testReport()); err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestSlackNotifier_Notify_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := NewSlackNotifier(server.URL).Notify(ctx, testReport()); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}
