package cmd

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jacklau/codebrief/internal/ingest"
	"github.com/jacklau/codebrief/internal/pubsub"
)

func TestProgressBar(t *testing.T) {
	var buf bytes.Buffer
	bar := newProgressBar(10, "Testing", &buf)

	bar.Add(5)
	output := buf.String()

	if !strings.Contains(output, "Testing") {
		t.Errorf("progress bar output should contain description, got %q", output)
	}
	if !strings.Contains(output, "5/10") {
		t.Errorf("progress bar output should contain count, got %q", output)
	}
	if !strings.Contains(output, "[") || !strings.Contains(output, "]") {
		t.Errorf("progress bar output should contain brackets, got %q", output)
	}
}

func TestProgressBarFinish(t *testing.T) {
	var buf bytes.Buffer
	bar := newProgressBar(5, "Done", &buf)

	bar.Add(3)
	bar.Finish()
	output := buf.String()

	if !strings.Contains(output, "5/5") {
		t.Errorf("finished progress bar should show total/total, got %q", output)
	}
	if !strings.HasSuffix(output, "\n") {
		t.Errorf("finished progress bar should end with newline, got %q", output)
	}
}

func TestProgressBarZeroTotal(t *testing.T) {
	var buf bytes.Buffer
	bar := newProgressBar(0, "Empty", &buf)

	bar.Add(1)
	bar.Finish()

	// Should not panic and should produce no output (render skips when total <= 0)
	// The Finish() call writes a newline
}

func TestProgressBarOverflow(t *testing.T) {
	var buf bytes.Buffer
	bar := newProgressBar(5, "Overflow", &buf)

	bar.Add(10) // More than total
	output := buf.String()

	// Current should be capped at total
	if !strings.Contains(output, "5/5") {
		t.Errorf("overflowed progress bar should cap at total, got %q", output)
	}
}

func TestProgressBarRender(t *testing.T) {
	var buf bytes.Buffer
	bar := newProgressBar(4, "Render", &buf)

	bar.Add(2) // 50%
	output := buf.String()

	// 50% of 30 width = 15 '=' characters
	equalCount := strings.Count(output, "=")
	if equalCount != 15 {
		t.Errorf("at 50%% should have 15 '=' chars, got %d in %q", equalCount, output)
	}
}

func TestProgressBarSet(t *testing.T) {
	var buf bytes.Buffer
	bar := newProgressBar(0, "Ingesting", &buf)

	bar.Set(3, 7)
	if !strings.Contains(buf.String(), "3/7") {
		t.Errorf("expected 3/7 after Set, got %q", buf.String())
	}

	bar.Set(9, 7)
	if !strings.HasSuffix(buf.String(), "7/7") {
		t.Errorf("Set past total should cap, got %q", buf.String())
	}
}

func TestFollowProgress(t *testing.T) {
	broker := pubsub.NewBroker[ingest.Progress]()
	var buf bytes.Buffer
	bar := newProgressBar(0, "Ingesting", &buf)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := followProgress(ctx, broker, "p1", bar)

	broker.Publish(pubsub.Progress, ingest.Progress{ProjectID: "other", Processed: 9, Total: 9})
	broker.Publish(pubsub.Progress, ingest.Progress{ProjectID: "p1", Processed: 2, Total: 4})
	broker.Publish(pubsub.Completed, ingest.Progress{ProjectID: "p1", Processed: 4, Total: 4})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("followProgress did not stop on the terminal event")
	}

	out := buf.String()
	if strings.Contains(out, "9/9") {
		t.Errorf("events of other projects should be ignored, got %q", out)
	}
	if !strings.Contains(out, "2/4") || !strings.Contains(out, "4/4") {
		t.Errorf("expected 2/4 then 4/4, got %q", out)
	}
	if !strings.HasSuffix(out, "\n") {
		t.Errorf("expected a newline after the terminal event, got %q", out)
	}
}

func TestFollowProgressStopsOnCancel(t *testing.T) {
	broker := pubsub.NewBroker[ingest.Progress]()
	var buf bytes.Buffer

	ctx, cancel := context.WithCancel(context.Background())
	done := followProgress(ctx, broker, "p1", newProgressBar(0, "Ingesting", &buf))
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("followProgress did not stop after cancel")
	}
}
