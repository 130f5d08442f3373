package github

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	gogithub "github.com/google/go-github/v60/github"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultLoadConcurrency bounds concurrent blob fetches.
	DefaultLoadConcurrency = 5

	// DefaultMaxFileBytes skips blobs larger than this.
	DefaultMaxFileBytes = 1 << 20

	// binarySniffLen is how much of a file is scanned for NUL bytes.
	binarySniffLen = 8000
)

// DefaultIgnorePaths are lock files and vendored trees that add noise without meaning.
var DefaultIgnorePaths = []string{
	"package-lock.json",
	"yarn.lock",
	"pnpm-lock.yaml",
	"bun.lockb",
	"node_modules/",
}

var binaryExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true, ".ico": true,
	".webp": true, ".tiff": true, ".psd": true,
	".pdf": true, ".doc": true, ".docx": true, ".xls": true, ".xlsx": true, ".ppt": true, ".pptx": true,
	".zip": true, ".gz": true, ".tgz": true, ".tar": true, ".bz2": true, ".xz": true, ".7z": true, ".rar": true, ".jar": true,
	".exe": true, ".dll": true, ".so": true, ".dylib": true, ".a": true, ".o": true, ".class": true, ".pyc": true, ".wasm": true,
	".mp3": true, ".mp4": true, ".wav": true, ".ogg": true, ".mov": true, ".avi": true, ".webm": true, ".flac": true,
	".ttf": true, ".otf": true, ".woff": true, ".woff2": true, ".eot": true,
	".sqlite": true, ".db": true, ".bin": true, ".lockb": true,
}

// LoaderOptions configures a Loader.
type LoaderOptions struct {
	Concurrency  int
	MaxFileBytes int
	IgnorePaths  []string
}

// Loader reads every text file of a repository's default branch.
type Loader struct {
	client *Client
	opts   LoaderOptions
	logger *slog.Logger
}

// NewLoader creates a Loader. Zero option fields take their defaults.
func NewLoader(client *Client, opts LoaderOptions, logger *slog.Logger) *Loader {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultLoadConcurrency
	}
	if opts.MaxFileBytes <= 0 {
		opts.MaxFileBytes = DefaultMaxFileBytes
	}
	if opts.IgnorePaths == nil {
		opts.IgnorePaths = DefaultIgnorePaths
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{client: client, opts: opts, logger: logger}
}

// Load fetches the recursive tree of repoURL's default branch and returns
// its text files in tree order. token, when set, overrides the client's
// credentials for this load. Binary and oversized files are skipped with a
// warning; any fetch failure aborts the load.
func (l *Loader) Load(ctx context.Context, repoURL, token string) ([]Document, error) {
	repo, err := ParseRepoURL(repoURL)
	if err != nil {
		return nil, err
	}
	client := l.client.WithToken(token)

	var ghRepo *gogithub.Repository
	err = client.call(ctx, "getting repository "+repo.String(), func(ctx context.Context) (*gogithub.Response, error) {
		var resp *gogithub.Response
		var err error
		ghRepo, resp, err = client.gh.Repositories.Get(ctx, repo.Owner, repo.Name)
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	branch := ghRepo.GetDefaultBranch()
	if branch == "" {
		branch = "main"
	}

	var tree *gogithub.Tree
	err = client.call(ctx, "fetching tree for "+repo.String(), func(ctx context.Context) (*gogithub.Response, error) {
		var resp *gogithub.Response
		var err error
		tree, resp, err = client.gh.Git.GetTree(ctx, repo.Owner, repo.Name, branch, true)
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	if tree.GetTruncated() {
		l.logger.Warn("repository tree truncated by github; some files will be missing", "repo", repo.String())
	}

	var entries []*gogithub.TreeEntry
	for _, e := range tree.Entries {
		if e.GetType() != "blob" {
			continue
		}
		p := e.GetPath()
		if l.ignored(p) {
			continue
		}
		if binaryExtensions[strings.ToLower(path.Ext(p))] {
			l.logger.Warn("skipping binary file", "repo", repo.String(), "path", p)
			continue
		}
		if e.GetSize() > l.opts.MaxFileBytes {
			l.logger.Warn("skipping oversized file", "repo", repo.String(), "path", p, "size", e.GetSize())
			continue
		}
		entries = append(entries, e)
	}

	docs := make([]*Document, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.opts.Concurrency)

	for i, e := range entries {
		g.Go(func() error {
			var blob []byte
			err := client.call(gctx, "fetching blob "+e.GetPath(), func(ctx context.Context) (*gogithub.Response, error) {
				var resp *gogithub.Response
				var err error
				blob, resp, err = client.gh.Git.GetBlobRaw(ctx, repo.Owner, repo.Name, e.GetSHA())
				return resp, err
			})
			if err != nil {
				return err
			}
			if IsBinary(blob) {
				l.logger.Warn("skipping binary file", "repo", repo.String(), "path", e.GetPath())
				return nil
			}
			docs[i] = &Document{
				Path:    e.GetPath(),
				Content: string(blob),
				SHA:     e.GetSHA(),
				Size:    len(blob),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("loading %s: %w", repo.String(), err)
	}

	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		if d != nil {
			out = append(out, *d)
		}
	}
	l.logger.Info("loaded repository documents", "repo", repo.String(), "branch", branch, "documents", len(out))
	return out, nil
}

func (l *Loader) ignored(p string) bool {
	for _, pattern := range l.opts.IgnorePaths {
		if strings.HasSuffix(pattern, "/") {
			dir := strings.TrimSuffix(pattern, "/")
			if p == dir || strings.HasPrefix(p, pattern) || strings.Contains(p, "/"+pattern) {
				return true
			}
			continue
		}
		if path.Base(p) == pattern {
			return true
		}
	}
	return false
}

// IsBinary reports whether content looks like a binary file: a NUL byte in
// its first 8000 bytes.
func IsBinary(content []byte) bool {
	n := len(content)
	if n > binarySniffLen {
		n = binarySniffLen
	}
	return bytes.IndexByte(content[:n], 0) >= 0
}
