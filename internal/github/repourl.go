package github

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidRepoURL is returned when a string does not name a GitHub repository.
var ErrInvalidRepoURL = errors.New("invalid github repository url")

// ParseRepoURL accepts "https://github.com/owner/repo", the same with a
// trailing slash or ".git" suffix, "github.com/owner/repo" and "owner/repo".
func ParseRepoURL(raw string) (RepoRef, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return RepoRef{}, fmt.Errorf("%w: empty", ErrInvalidRepoURL)
	}

	path := s
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return RepoRef{}, fmt.Errorf("%w: %v", ErrInvalidRepoURL, err)
		}
		if !strings.EqualFold(u.Host, "github.com") && !strings.EqualFold(u.Host, "www.github.com") {
			return RepoRef{}, fmt.Errorf("%w: host %q is not github.com", ErrInvalidRepoURL, u.Host)
		}
		path = u.Path
	} else {
		path = strings.TrimPrefix(path, "www.")
		path = strings.TrimPrefix(path, "github.com/")
	}

	path = strings.Trim(path, "/")
	path = strings.TrimSuffix(path, ".git")

	parts := strings.Split(path, "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return RepoRef{}, fmt.Errorf("%w: %q", ErrInvalidRepoURL, raw)
	}
	// Extra segments such as /tree/main are ignored.
	return RepoRef{Owner: parts[0], Name: parts[1]}, nil
}
