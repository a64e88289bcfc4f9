package git

import (
	"errors"
	"fmt"
)

var (
	// ErrNoRemoteURLs is returned by RemoteImageFromPull when the workspace has no remotes.
	ErrNoRemoteURLs = errors.New("build data does not contain any remote URLs")

	// ErrNoBranches is returned by RemoteImageFromPull when no branch was recorded.
	ErrNoBranches = errors.New("build data does not contain any branches")
)

// RemoteImageName derives the remote tag for a repository + branch pair:
//
//	<namespace>/<project>:<short branch>.<head chunk>
//
// namespace is the organization override when it is non-empty, otherwise the
// repository's own organization.
func RemoteImageName(repository Repository, branch Branch, organization string) string {
	namespace := repository.Organization
	if organization != "" {
		namespace = organization
	}
	return fmt.Sprintf("%s/%s:%s.%s", namespace, repository.Project, branch.ShortName(), branch.HeadChunk())
}

// RemoteImageFromPush names the image from the cause of a webhook triggered build.
func RemoteImageFromPush(cause PushCause, organization string) string {
	return RemoteImageName(cause.Repository, cause.Branch, organization)
}

// RemoteImageFromPull names the image from the SCM metadata of a pulled workspace.
// when several remotes or branches are recorded the first of each is used.
// that order comes from ReadBuildData, which sorts remotes by name.
func RemoteImageFromPull(buildData BuildData, organization string) (string, error) {
	if len(buildData.RemoteURLs) == 0 {
		return "", ErrNoRemoteURLs
	}
	if len(buildData.Branches) == 0 {
		return "", ErrNoBranches
	}

	repository, err := ParseRepository(buildData.RemoteURLs[0])
	if err != nil {
		return "", fmt.Errorf("failed to parse first remote url: %w", err)
	}

	return RemoteImageName(repository, buildData.Branches[0], organization), nil
}
