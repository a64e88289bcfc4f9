package main

import (
	"fmt"
	"log/slog"

	"github.com/sasta-kro/spoon-trigger/config"
	"github.com/sasta-kro/spoon-trigger/docker"
	"github.com/sasta-kro/spoon-trigger/models"
	"github.com/sasta-kro/spoon-trigger/pipeline"
	"github.com/sasta-kro/spoon-trigger/spoon"
)

// newLauncherFactory builds the launcher factory of the configured executor.
// the returned cleanup releases the docker client and is a no-op for the process executor.
func newLauncherFactory(appConfig *config.Config, logger *slog.Logger) (pipeline.LauncherFactory, func(), error) {
	switch appConfig.SpoonExecutor {
	case config.ExecutorDocker:
		dockerClient, err := docker.NewClient(logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to docker for the container executor: %w", err)
		}

		executor, err := dockerClient.NewContainerExecutor(docker.ContainerExecutorConfig{
			Image:            appConfig.SpoonExecutorImage,
			Platform:         appConfig.SpoonExecutorPlatform,
			Binary:           appConfig.SpoonBinary,
			RunAsCurrentUser: true,
		})
		if err != nil {
			dockerClient.Close()
			return nil, nil, err
		}

		logger.Info("running spoon in containers",
			"image", appConfig.SpoonExecutorImage,
			"platform", appConfig.SpoonExecutorPlatform,
		)

		// the workspace and the export directory are host paths handed to the tool,
		// so both are mounted for every command of the project
		factory := func(project *models.Project, workingDirectory string) spoon.Launcher {
			return executor.
				WithSharedDirectories(project.Workspace, project.ExportDirectory).
				WithWorkingDirectory(workingDirectory)
		}
		cleanup := func() {
			if err := dockerClient.Close(); err != nil {
				logger.Warn("failed to close docker client", "error", err)
			}
		}
		return factory, cleanup, nil

	default:
		executor := spoon.NewProcessExecutor(spoon.ProcessExecutorConfig{Binary: appConfig.SpoonBinary}, logger)
		logger.Info("running spoon as a local process", "binary", appConfig.SpoonBinary)

		factory := func(project *models.Project, workingDirectory string) spoon.Launcher {
			return executor.WithWorkingDirectory(workingDirectory)
		}
		return factory, func() {}, nil
	}
}
