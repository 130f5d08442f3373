package github

import (
	"context"
	"sort"
	"strings"

	gogithub "github.com/google/go-github/v60/github"
)

// DefaultCommitLimit is how many recent commits the poller considers per run.
const DefaultCommitLimit = 10

// ListRecentCommits returns up to limit commits from the default branch,
// newest first by author date.
func (c *Client) ListRecentCommits(ctx context.Context, repo RepoRef, limit int) ([]Commit, error) {
	if limit <= 0 {
		limit = DefaultCommitLimit
	}

	opts := &gogithub.CommitsListOptions{
		ListOptions: gogithub.ListOptions{PerPage: limit},
	}

	var raw []*gogithub.RepositoryCommit
	err := c.call(ctx, "listing commits for "+repo.String(), func(ctx context.Context) (*gogithub.Response, error) {
		var resp *gogithub.Response
		var err error
		raw, resp, err = c.gh.Repositories.ListCommits(ctx, repo.Owner, repo.Name, opts)
		return resp, err
	})
	if err != nil {
		return nil, err
	}

	commits := make([]Commit, 0, len(raw))
	for _, rc := range raw {
		commits = append(commits, convertCommit(rc))
	}

	sort.SliceStable(commits, func(i, j int) bool {
		return commits[i].Date.After(commits[j].Date)
	})
	if len(commits) > limit {
		commits = commits[:limit]
	}
	return commits, nil
}

// FetchDiff returns the unified diff of a single commit.
func (c *Client) FetchDiff(ctx context.Context, repo RepoRef, sha string) (string, error) {
	var diff string
	err := c.call(ctx, "fetching diff for "+sha, func(ctx context.Context) (*gogithub.Response, error) {
		var resp *gogithub.Response
		var err error
		diff, resp, err = c.gh.Repositories.GetCommitRaw(ctx, repo.Owner, repo.Name, sha, gogithub.RawOptions{Type: gogithub.Diff})
		return resp, err
	})
	if err != nil {
		return "", err
	}
	return diff, nil
}

func convertCommit(rc *gogithub.RepositoryCommit) Commit {
	c := Commit{SHA: rc.GetSHA()}
	if rc.Commit != nil {
		c.Message = strings.TrimSpace(rc.Commit.GetMessage())
		if a := rc.Commit.GetAuthor(); a != nil {
			c.AuthorName = a.GetName()
			c.Date = a.GetDate().Time
		}
	}
	if rc.Author != nil {
		c.AuthorAvatar = rc.Author.GetAvatarURL()
		if c.AuthorName == "" {
			c.AuthorName = rc.Author.GetLogin()
		}
	}
	return c
}
