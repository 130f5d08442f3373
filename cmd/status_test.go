package cmd

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jacklau/codebrief/internal/store"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		name     string
		bytes    int64
		expected string
	}{
		{"zero", 0, "0 B"},
		{"small", 512, "512 B"},
		{"1KiB", 1024, "1.0 KiB"},
		{"1.5KiB", 1536, "1.5 KiB"},
		{"1MiB", 1024 * 1024, "1.0 MiB"},
		{"1GiB", 1024 * 1024 * 1024, "1.0 GiB"},
		{"negative", -5, "0 B"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := formatBytes(tt.bytes)
			if result != tt.expected {
				t.Errorf("formatBytes(%d) = %q, want %q", tt.bytes, result, tt.expected)
			}
		})
	}
}

func TestDbFileSize_NonExistent(t *testing.T) {
	_, err := dbFileSize("/nonexistent/path/to/db.sqlite")
	if err == nil {
		t.Error("expected error for non-existent file")
	}
}

func TestCollectStats(t *testing.T) {
	ctx := context.Background()
	db, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer db.Close()

	busy := &store.Project{Name: "busy", GitHubURL: "https://github.com/acme/busy"}
	done := &store.Project{Name: "done", GitHubURL: "https://github.com/acme/done"}
	for _, p := range []*store.Project{busy, done} {
		if err := db.CreateProject(ctx, p); err != nil {
			t.Fatalf("create project: %v", err)
		}
	}

	if err := db.CreateProcessStatus(ctx, busy.ID, store.StatusProcessing, "Processing: 50% complete. Processed: 1/2"); err != nil {
		t.Fatalf("create status: %v", err)
	}
	if _, err := db.InsertEmbeddings(ctx, done.ID, []store.SourceEmbedding{
		{FileName: "a.go", SourceCode: "package a", Summary: "a"},
		{FileName: "b.go", SourceCode: "package b", Summary: "b"},
	}); err != nil {
		t.Fatalf("insert embeddings: %v", err)
	}
	if err := db.InsertCommits(ctx, done.ID, []store.Commit{
		{Hash: "abc123", Message: "init", AuthorName: "dev", Date: time.Now()},
	}); err != nil {
		t.Fatalf("insert commits: %v", err)
	}

	stats, err := collectStats(ctx, db, []store.Project{*busy, *done})
	if err != nil {
		t.Fatalf("collectStats: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(stats))
	}
	if stats[0].Progress != "Processing: 50% complete. Processed: 1/2" {
		t.Errorf("busy progress = %q", stats[0].Progress)
	}
	if stats[1].Progress != "" {
		t.Errorf("done project should have no progress, got %q", stats[1].Progress)
	}
	if stats[1].Embeddings != 2 || stats[1].Commits != 1 {
		t.Errorf("done counts = %d files, %d commits; want 2, 1", stats[1].Embeddings, stats[1].Commits)
	}

	var buf bytes.Buffer
	printStats(&buf, stats)
	out := buf.String()
	for _, want := range []string{"PROJECT", "busy", "done", "TOTAL"} {
		if !strings.Contains(out, want) {
			t.Errorf("status output missing %q:\n%s", want, out)
		}
	}
}
