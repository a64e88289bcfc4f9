// Package git holds the source-control value types the trigger works with:
// repositories and branches parsed out of webhook payloads or a checked-out
// workspace, the push cause that ties them together, and the naming rule that
// turns a repository + branch pair into a remote image tag.
// nothing in here talks to the network. the only I/O is ReadBuildData, which
// reads the .git directory of a workspace that is already on disk.
package git

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidRepositoryURL is returned by ParseRepository when the URL does not
// have the exact shape http(s)://<host>/<organization>/<project>.
var ErrInvalidRepositoryURL = errors.New("not a valid repository url")

// repositoryURLPattern captures exactly two path segments after the host.
// a trailing slash, a ".git" sub path or a third segment all fail the match.
var repositoryURLPattern = regexp.MustCompile(`^https?://([^/]+)/([^/]+)/([^/]+)$`)

// Repository is a parsed repository URL.
// it is a value type, constructed once through ParseRepository and never mutated.
type Repository struct {
	URL          string `json:"url"`
	Organization string `json:"organization"`
	Project      string `json:"project"`
}

// ParseRepository validates the raw URL and splits it into organization and project.
// surrounding whitespace is trimmed before matching, an empty URL is rejected.
func ParseRepository(rawURL string) (Repository, error) {
	url := strings.TrimSpace(rawURL)
	if url == "" {
		return Repository{}, fmt.Errorf("%w: url is empty", ErrInvalidRepositoryURL)
	}

	matches := repositoryURLPattern.FindStringSubmatch(url)
	if matches == nil {
		return Repository{}, fmt.Errorf("%w: %q", ErrInvalidRepositoryURL, url)
	}

	return Repository{
		URL:          url,
		Organization: matches[2],
		Project:      matches[3],
	}, nil
}

// IsRepositoryURL reports whether the URL would be accepted by ParseRepository.
func IsRepositoryURL(rawURL string) bool {
	_, err := ParseRepository(rawURL)
	return err == nil
}
