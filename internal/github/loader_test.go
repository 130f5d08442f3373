package github

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeRepo struct {
	branch string
	files  map[string]string // path -> content; sha is "sha-" + path
	sizes  map[string]int
}

func (f *fakeRepo) handler(t *testing.T, blobFetches *sync.Map) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octocat/hello", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"name": "hello", "default_branch": f.branch})
	})
	mux.HandleFunc("/repos/octocat/hello/git/trees/"+f.branch, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("recursive") == "" {
			t.Error("expected recursive tree request")
		}
		var entries []map[string]any
		entries = append(entries, map[string]any{"path": "src", "type": "tree", "sha": "tree-src"})
		for p, content := range f.files {
			size := len(content)
			if s, ok := f.sizes[p]; ok {
				size = s
			}
			entries = append(entries, map[string]any{"path": p, "type": "blob", "sha": "sha-" + p, "size": size})
		}
		writeJSON(t, w, map[string]any{"sha": "root", "tree": entries, "truncated": false})
	})
	mux.HandleFunc("/repos/octocat/hello/git/blobs/", func(w http.ResponseWriter, r *http.Request) {
		sha := strings.TrimPrefix(r.URL.Path, "/repos/octocat/hello/git/blobs/")
		p := strings.TrimPrefix(sha, "sha-")
		if blobFetches != nil {
			blobFetches.Store(p, true)
		}
		content, ok := f.files[p]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(content))
	})
	return mux
}

func TestLoaderLoadsTextFiles(t *testing.T) {
	repo := &fakeRepo{
		branch: "trunk",
		files: map[string]string{
			"README.md":                       "# hello",
			"src/main.go":                     "package main",
			"package-lock.json":               "{}",
			"web/yarn.lock":                   "lock",
			"pnpm-lock.yaml":                  "lock",
			"bun.lockb":                       "lock",
			"node_modules/left-pad/index.js":  "module.exports = 1",
			"web/node_modules/react/index.js": "x",
			"assets/logo.png":                 "\x89PNG",
			"data/blob.dat":                   "abc\x00def",
		},
	}
	var fetched sync.Map
	c := newTestClient(t, repo.handler(t, &fetched))
	l := NewLoader(c, LoaderOptions{}, nil)

	docs, err := l.Load(context.Background(), "https://github.com/octocat/hello", "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	got := make(map[string]string)
	for _, d := range docs {
		got[d.Path] = d.Content
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 documents, got %d: %v", len(got), got)
	}
	if got["README.md"] != "# hello" || got["src/main.go"] != "package main" {
		t.Errorf("unexpected documents: %v", got)
	}

	for _, p := range []string{"package-lock.json", "node_modules/left-pad/index.js", "assets/logo.png"} {
		if _, ok := fetched.Load(p); ok {
			t.Errorf("expected %s not to be fetched", p)
		}
	}
	if _, ok := fetched.Load("data/blob.dat"); !ok {
		t.Error("expected data/blob.dat to be fetched and sniffed")
	}
}

func TestLoaderSkipsOversizedFiles(t *testing.T) {
	repo := &fakeRepo{
		branch: "main",
		files:  map[string]string{"big.txt": "x", "small.txt": "y"},
		sizes:  map[string]int{"big.txt": 10_000},
	}
	c := newTestClient(t, repo.handler(t, nil))
	l := NewLoader(c, LoaderOptions{MaxFileBytes: 1000}, nil)

	docs, err := l.Load(context.Background(), "octocat/hello", "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(docs) != 1 || docs[0].Path != "small.txt" {
		t.Errorf("expected only small.txt, got %+v", docs)
	}
}

func TestLoaderRespectsConcurrencyLimit(t *testing.T) {
	files := make(map[string]string)
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l"} {
		files[name+".txt"] = name
	}
	repo := &fakeRepo{branch: "main", files: files}
	inner := repo.handler(t, nil)

	var inFlight, peak atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/git/blobs/") {
			n := inFlight.Add(1)
			defer inFlight.Add(-1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
		}
		inner.ServeHTTP(w, r)
	})

	c := newTestClient(t, handler)
	l := NewLoader(c, LoaderOptions{Concurrency: 3}, nil)

	docs, err := l.Load(context.Background(), "octocat/hello", "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(docs) != len(files) {
		t.Errorf("expected %d documents, got %d", len(files), len(docs))
	}
	if got := peak.Load(); got > 3 {
		t.Errorf("expected at most 3 concurrent blob fetches, saw %d", got)
	}
}

func TestLoaderFailsOnMissingRepo(t *testing.T) {
	c := newTestClient(t, http.NotFoundHandler())
	l := NewLoader(c, LoaderOptions{}, nil)

	if _, err := l.Load(context.Background(), "octocat/hello", ""); err == nil {
		t.Fatal("expected error for missing repository")
	}
}

func TestLoaderRejectsInvalidURL(t *testing.T) {
	l := NewLoader(NewClient(NewTokenClient("")), LoaderOptions{}, nil)
	if _, err := l.Load(context.Background(), "not-a-repo", ""); err == nil {
		t.Fatal("expected error for invalid repository URL")
	}
}

func TestIsBinary(t *testing.T) {
	tests := []struct {
		name    string
		content []byte
		want    bool
	}{
		{"text", []byte("package main\n"), false},
		{"empty", nil, false},
		{"nul early", []byte("ab\x00cd"), true},
		{"nul past sniff window", append([]byte(strings.Repeat("a", binarySniffLen)), 0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsBinary(tt.content); got != tt.want {
				t.Errorf("IsBinary() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLoaderIgnored(t *testing.T) {
	l := NewLoader(nil, LoaderOptions{}, nil)
	tests := []struct {
		path string
		want bool
	}{
		{"package-lock.json", true},
		{"frontend/package-lock.json", true},
		{"node_modules/x/index.js", true},
		{"apps/web/node_modules/x/index.js", true},
		{"src/node_modules_helper.go", false},
		{"yarn.lock.md", false},
		{"main.go", false},
	}
	for _, tt := range tests {
		if got := l.ignored(tt.path); got != tt.want {
			t.Errorf("ignored(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
