// Package summarize turns source files and commit diffs into short LLM
// summaries.
package summarize

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jacklau/codebrief/internal/provider"
)

const (
	// DefaultMaxSourceChars bounds the source text sent for a file summary.
	DefaultMaxSourceChars = 8000

	// DefaultMaxDiffChars bounds the diff text sent for a commit summary.
	DefaultMaxDiffChars = 60000
)

// ErrEmptySummary is returned when the model answers with nothing. It wraps
// provider.ErrEmptyResponse so retry classification treats it as transient.
var ErrEmptySummary = fmt.Errorf("empty summary: %w", provider.ErrEmptyResponse)

// Summarizer produces summaries through a provider.Completer.
type Summarizer struct {
	completer      provider.Completer
	maxSourceChars int
	maxDiffChars   int
}

// New creates a Summarizer. Non-positive limits take their defaults.
func New(completer provider.Completer, maxSourceChars, maxDiffChars int) *Summarizer {
	if maxSourceChars <= 0 {
		maxSourceChars = DefaultMaxSourceChars
	}
	if maxDiffChars <= 0 {
		maxDiffChars = DefaultMaxDiffChars
	}
	return &Summarizer{
		completer:      completer,
		maxSourceChars: maxSourceChars,
		maxDiffChars:   maxDiffChars,
	}
}

// Code summarizes one source file. The source is truncated to the
// configured character limit before prompting.
func (s *Summarizer) Code(ctx context.Context, path, source string) (string, error) {
	prompt, err := BuildCodePrompt(path, Truncate(source, s.maxSourceChars))
	if err != nil {
		return "", err
	}
	return s.complete(ctx, prompt)
}

// Commit summarizes a unified diff as a bullet list.
func (s *Summarizer) Commit(ctx context.Context, diff string) (string, error) {
	prompt, err := BuildCommitPrompt(Truncate(diff, s.maxDiffChars))
	if err != nil {
		return "", err
	}
	return s.complete(ctx, prompt)
}

func (s *Summarizer) complete(ctx context.Context, prompt string) (string, error) {
	out, err := s.completer.Complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", ErrEmptySummary
	}
	return out, nil
}

// Truncate returns at most n characters of s, never splitting a rune.
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
