package git

import (
	"errors"
	"fmt"
	"strings"
)

// commitHashLength is the length of a full SHA-1 commit hash in hex.
const commitHashLength = 40

// headChunkLength is how many characters of the head end up in a remote image tag.
const headChunkLength = 6

var (
	// ErrEmptyBranchName is returned when a branch is built without a name.
	ErrEmptyBranchName = errors.New("branch name is empty")

	// ErrInvalidHead is returned when the head is not a full 40 character commit hash.
	ErrInvalidHead = errors.New("branch head must be a full commit hash")
)

// Branch is a named ref pointing at a commit.
// Name is usually the full ref ("refs/heads/main") as sent by the webhook provider.
type Branch struct {
	Name string `json:"name"`
	Head string `json:"head"`
}

// ParseBranch validates the name and head and returns the Branch.
// only the length of the head is checked, the content is not required to be hex.
func ParseBranch(name, head string) (Branch, error) {
	trimmedName := strings.TrimSpace(name)
	if trimmedName == "" {
		return Branch{}, ErrEmptyBranchName
	}

	trimmedHead := strings.TrimSpace(head)
	if len(trimmedHead) != commitHashLength {
		return Branch{}, fmt.Errorf("%w: got %d characters in %q", ErrInvalidHead, len(trimmedHead), trimmedHead)
	}

	return Branch{Name: trimmedName, Head: trimmedHead}, nil
}

// ShortName returns the part of the name after the last slash.
// "refs/heads/main" gives "main". a name without a slash, or one that ends in a
// slash, is returned whole.
func (branch Branch) ShortName() string {
	lastSlash := strings.LastIndex(branch.Name, "/")
	if lastSlash < 0 || lastSlash == len(branch.Name)-1 {
		return branch.Name
	}
	return branch.Name[lastSlash+1:]
}

// HeadChunk returns the first six characters of the head commit.
func (branch Branch) HeadChunk() string {
	return branch.Head[:headChunkLength]
}
