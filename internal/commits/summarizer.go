// Package commits keeps a project's recent commit history summarized.
package commits

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jacklau/codebrief/internal/cache"
	"github.com/jacklau/codebrief/internal/github"
	"github.com/jacklau/codebrief/internal/provider"
	"github.com/jacklau/codebrief/internal/retry"
)

// DefaultSummaryTTL is how long a commit summary stays cached.
const DefaultSummaryTTL = time.Hour

const cacheKeyPrefix = "commit-summary:"

// DiffFetcher fetches a commit's unified diff.
type DiffFetcher interface {
	FetchDiff(ctx context.Context, repo github.RepoRef, sha string) (string, error)
}

// DiffSummarizer turns a diff into a summary.
type DiffSummarizer interface {
	Commit(ctx context.Context, diff string) (string, error)
}

// SummarizerDeps holds the collaborators of a Summarizer.
type SummarizerDeps struct {
	GitHub DiffFetcher
	LLM    DiffSummarizer
	Cache  cache.Cache // nil disables caching
	Policy retry.Policy
	TTL    time.Duration
	Logger *slog.Logger
}

// Summarizer produces cached commit summaries.
type Summarizer struct {
	deps SummarizerDeps
}

// NewSummarizer creates a Summarizer, filling unset dependencies with defaults.
func NewSummarizer(deps SummarizerDeps) *Summarizer {
	if deps.Cache == nil {
		deps.Cache = cache.Noop{}
	}
	if deps.TTL <= 0 {
		deps.TTL = DefaultSummaryTTL
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Policy.OnRetry == nil {
		logger := deps.Logger
		deps.Policy.OnRetry = func(attempt int, kind retry.Kind, delay time.Duration, err error) {
			logger.Warn("commit summary attempt failed, retrying", "attempt", attempt, "kind", kind.String(), "delay", delay, "error", err)
		}
	}
	return &Summarizer{deps: deps}
}

// CacheKey returns the cache key under which a commit's summary is stored.
func CacheKey(hash string) string {
	return cacheKeyPrefix + hash
}

// SummarizeCommit returns the summary of commit hash in repoURL. A cached
// summary is returned without touching GitHub or the model. Otherwise the
// diff fetch and summary run together under the retry policy and the result
// is written back to the cache.
func (s *Summarizer) SummarizeCommit(ctx context.Context, repoURL, hash string) (string, error) {
	key := CacheKey(hash)
	logger := s.deps.Logger.With("commit", hash)

	cached, err := s.deps.Cache.Get(ctx, key)
	if err == nil {
		logger.Debug("commit summary cache hit")
		return cached, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		logger.Warn("commit summary cache read failed", "error", err)
	}

	repo, err := github.ParseRepoURL(repoURL)
	if err != nil {
		return "", err
	}

	var summary string
	err = s.deps.Policy.Do(ctx, provider.Classify, func(ctx context.Context) error {
		diff, err := s.deps.GitHub.FetchDiff(ctx, repo, hash)
		if err != nil {
			return err
		}
		summary, err = s.deps.LLM.Commit(ctx, diff)
		return err
	})
	if err != nil {
		return "", err
	}

	if err := s.deps.Cache.Set(ctx, key, summary, s.deps.TTL); err != nil {
		logger.Warn("commit summary cache write failed", "error", err)
	}
	return summary, nil
}
