package notify

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// maxListedFailures caps how many failed files a message lists.
const maxListedFailures = 10

// FormatProgress formats a processed/total pair.
// Example: "6/7 files (86%)"
func FormatProgress(processed, total int) string {
	pct := 0
	if total > 0 {
		pct = int(math.Round(float64(processed) / float64(total) * 100))
	}
	return fmt.Sprintf("%s/%s files (%d%%)", humanize.Comma(int64(processed)), humanize.Comma(int64(total)), pct)
}

// FormatFailed lists failed files as markdown bullets.
// Example: "- `a.go`\n- `b.go`\n…and 3 more"
func FormatFailed(files []string) string {
	if len(files) == 0 {
		return "None"
	}
	shown := files
	if len(shown) > maxListedFailures {
		shown = shown[:maxListedFailures]
	}
	parts := make([]string, len(shown))
	for i, f := range shown {
		parts[i] = fmt.Sprintf("- `%s`", f)
	}
	out := strings.Join(parts, "\n")
	if extra := len(files) - len(shown); extra > 0 {
		out += fmt.Sprintf("\n…and %d more", extra)
	}
	return out
}

// FormatDuration rounds d to the second for display.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	return d.Round(time.Second).String()
}

// TimeAgo returns a human-readable relative time string.
func TimeAgo(t time.Time) string {
	if time.Since(t) < 2*time.Second {
		return "just now"
	}
	return humanize.Time(t)
}
