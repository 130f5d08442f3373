package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/jacklau/codebrief/internal/ingest"
	"github.com/jacklau/codebrief/internal/pubsub"
)

// progressBar is a simple terminal progress bar that writes to stderr.
type progressBar struct {
	total       int
	current     int
	width       int
	description string
	writer      io.Writer
}

// newProgressBar creates a new progress bar.
func newProgressBar(total int, description string, writer io.Writer) *progressBar {
	return &progressBar{
		total:       total,
		width:       30,
		description: description,
		writer:      writer,
	}
}

// Add increments the progress bar by n.
func (p *progressBar) Add(n int) {
	p.Set(p.current+n, p.total)
}

// Set moves the bar to current out of total.
func (p *progressBar) Set(current, total int) {
	p.total = total
	p.current = min(current, total)
	p.render()
}

// Finish completes the progress bar and prints a newline.
func (p *progressBar) Finish() {
	p.current = p.total
	p.render()
	fmt.Fprintln(p.writer)
}

// render draws the progress bar to the writer using carriage return.
func (p *progressBar) render() {
	if p.total <= 0 {
		return
	}

	pct := float64(p.current) / float64(p.total)
	filled := min(int(pct*float64(p.width)), p.width)

	bar := strings.Repeat("=", filled) + strings.Repeat(" ", p.width-filled)
	fmt.Fprintf(p.writer, "\r%s [%s] %d/%d", p.description, bar, p.current, p.total)
}

// followProgress draws projectID's progress events on bar until a terminal
// event arrives or ctx is done. It subscribes before returning, so events
// published after the call are not missed.
func followProgress(ctx context.Context, broker *pubsub.Broker[ingest.Progress], projectID string, bar *progressBar) <-chan struct{} {
	events := broker.SubscribeFunc(ctx, func(p ingest.Progress) bool {
		return p.ProjectID == projectID
	})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			if ev.Payload.Total > 0 {
				bar.Set(ev.Payload.Processed, ev.Payload.Total)
			}
			if ev.Type.Terminal() {
				fmt.Fprintln(bar.writer)
				return
			}
		}
	}()
	return done
}
