package git

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyPusher is returned by NewPushCause when the pusher name is missing.
var ErrEmptyPusher = errors.New("pusher is empty")

// PushCause records why a build was started by a webhook push:
// which repository and branch moved, and who pushed.
type PushCause struct {
	Repository Repository `json:"repository"`
	Branch     Branch     `json:"branch"`
	Pusher     string     `json:"pusher"`
}

// NewPushCause builds a PushCause from the raw fields of a push event.
// ref is the pushed branch ("refs/heads/main") and head is the new commit ("after").
func NewPushCause(repositoryURL, pusher, ref, head string) (PushCause, error) {
	trimmedPusher := strings.TrimSpace(pusher)
	if trimmedPusher == "" {
		return PushCause{}, ErrEmptyPusher
	}

	repository, err := ParseRepository(repositoryURL)
	if err != nil {
		return PushCause{}, err
	}

	branch, err := ParseBranch(ref, head)
	if err != nil {
		return PushCause{}, err
	}

	return PushCause{
		Repository: repository,
		Branch:     branch,
		Pusher:     trimmedPusher,
	}, nil
}

// Description is the human readable line written to build logs and stored with the build.
func (cause PushCause) Description() string {
	return fmt.Sprintf("New HEAD (%s) in repository (%s) pushed by (%s) to (%s) branch",
		cause.Branch.Head, cause.Repository.URL, cause.Pusher, cause.Branch.Name)
}
