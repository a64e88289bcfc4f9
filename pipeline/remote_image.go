package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/sasta-kro/spoon-trigger/git"
	"github.com/sasta-kro/spoon-trigger/models"
)

// remoteImage names the pushed image according to the project's strategy.
// an empty name means "push under the local name".
func (buildPipeline *BuildPipeline) remoteImage(project *models.Project, build *models.Build) (string, error) {
	push := project.Push

	switch push.Strategy {
	case models.RemoteImageNone, "":
		return "", nil

	case models.RemoteImageGenerate:
		if build.Cause != nil {
			cause, err := git.NewPushCause(build.Cause.RepositoryURL, build.Cause.Pusher, build.Cause.Ref, build.Cause.Head)
			if err != nil {
				return "", fmt.Errorf("failed to read push cause of build %q: %w", build.ID, err)
			}
			return git.RemoteImageFromPush(cause, push.Organization), nil
		}

		buildData, err := buildPipeline.readBuildData(project.Workspace)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrNoSourceMetadata, err)
		}
		return git.RemoteImageFromPull(buildData, push.Organization)

	case models.RemoteImageFixed:
		if push.RemoteImageName == "" {
			return "", errors.New("fixed remote image strategy needs a remote image name")
		}
		if push.DateFormat == "" {
			return push.RemoteImageName, nil
		}
		return push.RemoteImageName + buildStartTime(build).Format(push.DateFormat), nil

	default:
		return "", fmt.Errorf("unknown remote image strategy %q", push.Strategy)
	}
}

func buildStartTime(build *models.Build) time.Time {
	if build.StartedAt != nil {
		return *build.StartedAt
	}
	return time.Now().UTC()
}
