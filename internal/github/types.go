package github

import "time"

// RepoRef identifies a repository on GitHub.
type RepoRef struct {
	Owner string
	Name  string
}

// String returns "owner/name".
func (r RepoRef) String() string {
	return r.Owner + "/" + r.Name
}

// Commit is the subset of a GitHub commit the poller stores.
type Commit struct {
	SHA          string
	Message      string
	AuthorName   string
	AuthorAvatar string
	Date         time.Time
}

// Document is one text file loaded from a repository tree.
type Document struct {
	Path    string
	Content string
	SHA     string
	Size    int
}
