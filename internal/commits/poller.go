package commits

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jacklau/codebrief/internal/github"
	"github.com/jacklau/codebrief/internal/store"
)

// DefaultSummaryConcurrency bounds concurrent commit summaries per poll.
const DefaultSummaryConcurrency = 4

// CommitLister lists a repository's most recent commits, newest first.
type CommitLister interface {
	ListRecentCommits(ctx context.Context, repo github.RepoRef, limit int) ([]github.Commit, error)
}

// CommitSummarizer summarizes a single commit.
type CommitSummarizer interface {
	SummarizeCommit(ctx context.Context, repoURL, hash string) (string, error)
}

// PollerDeps holds the collaborators of a Poller.
type PollerDeps struct {
	Store       store.Store
	GitHub      CommitLister
	Summarizer  CommitSummarizer
	Limit       int
	Concurrency int
	Logger      *slog.Logger
}

// Poller records newly seen commits of a project with their summaries.
type Poller struct {
	deps PollerDeps

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewPoller creates a Poller, filling unset dependencies with defaults.
func NewPoller(deps PollerDeps) *Poller {
	if deps.Limit <= 0 {
		deps.Limit = github.DefaultCommitLimit
	}
	if deps.Concurrency <= 0 {
		deps.Concurrency = DefaultSummaryConcurrency
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Poller{deps: deps, locks: make(map[string]*sync.Mutex)}
}

func (p *Poller) lockFor(projectID string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.locks[projectID]
	if !ok {
		l = &sync.Mutex{}
		p.locks[projectID] = l
	}
	return l
}

// PollCommits lists the project's most recent commits, summarizes the ones
// not yet stored and inserts them in list order. A failed summary is stored
// as an empty string rather than failing the poll. Polls of the same
// project are serialized.
func (p *Poller) PollCommits(ctx context.Context, projectID string) ([]store.Commit, error) {
	lock := p.lockFor(projectID)
	lock.Lock()
	defer lock.Unlock()

	logger := p.deps.Logger.With("project", projectID)

	project, err := p.deps.Store.GetProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("loading project: %w", err)
	}
	if project.GitHubURL == "" {
		return nil, fmt.Errorf("project %s has no github url", projectID)
	}
	repo, err := github.ParseRepoURL(project.GitHubURL)
	if err != nil {
		return nil, err
	}

	listed, err := p.deps.GitHub.ListRecentCommits(ctx, repo, p.deps.Limit)
	if err != nil {
		return nil, fmt.Errorf("listing commits: %w", err)
	}

	stored, err := p.deps.Store.CommitHashes(ctx, projectID)
	if err != nil {
		return nil, err
	}

	var fresh []github.Commit
	for _, c := range listed {
		if _, ok := stored[c.SHA]; !ok {
			fresh = append(fresh, c)
		}
	}
	if len(fresh) == 0 {
		logger.Debug("no new commits")
		return nil, nil
	}

	summaries := make([]string, len(fresh))
	var g errgroup.Group
	g.SetLimit(p.deps.Concurrency)
	for i, c := range fresh {
		g.Go(func() error {
			summary, err := p.deps.Summarizer.SummarizeCommit(ctx, project.GitHubURL, c.SHA)
			if err != nil {
				logger.Warn("commit summary failed", "commit", c.SHA, "error", err)
				return nil
			}
			summaries[i] = summary
			return nil
		})
	}
	g.Wait()

	rows := make([]store.Commit, len(fresh))
	for i, c := range fresh {
		rows[i] = store.Commit{
			Hash:         c.SHA,
			Message:      c.Message,
			AuthorName:   c.AuthorName,
			AuthorAvatar: c.AuthorAvatar,
			Date:         c.Date,
			Summary:      summaries[i],
		}
	}

	if err := p.deps.Store.InsertCommits(ctx, projectID, rows); err != nil {
		return nil, fmt.Errorf("storing commits: %w", err)
	}

	logger.Info("stored new commits", "count", len(rows))
	return rows, nil
}

// Run polls immediately and then on every interval tick until ctx is done.
// Poll failures are logged and the loop continues.
func (p *Poller) Run(ctx context.Context, projectID string, interval time.Duration) error {
	logger := p.deps.Logger.With("project", projectID)
	logger.Info("starting commit poll loop", "interval", interval)

	if _, err := p.PollCommits(ctx, projectID); err != nil {
		logger.Error("initial poll failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("commit poll loop stopped", "reason", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
			if _, err := p.PollCommits(ctx, projectID); err != nil {
				logger.Error("poll failed", "error", err)
			}
		}
	}
}
