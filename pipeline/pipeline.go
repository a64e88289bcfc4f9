// Package pipeline runs queued builds: it resolves the build script, probes the tool
// version, logs in, builds, and runs the publishers (push, export, remove image).
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/sasta-kro/spoon-trigger/git"
	"github.com/sasta-kro/spoon-trigger/models"
	"github.com/sasta-kro/spoon-trigger/spoon"
)

var (
	// ErrScriptNotFound means the resolved build script is missing or is not a file.
	ErrScriptNotFound = errors.New("build script not found")

	// ErrMissingPassword means the project names a login user but its password variable is unset.
	ErrMissingPassword = errors.New("login password is not set")

	// ErrNoBuiltImage means a publisher ran without an image from the build step.
	ErrNoBuiltImage = errors.New("built image name must be provided")

	// ErrNoSourceMetadata means the generate strategy had neither a push cause nor git metadata.
	ErrNoSourceMetadata = errors.New("build has not been caused by a web hook event or pulling SCM")

	// ErrExportDirectory means the export directory does not exist or is not a directory.
	ErrExportDirectory = errors.New("export directory must be an existing directory")
)

// BuildStore is the persistence the pipeline and the worker need.
// *db.Database satisfies it.
type BuildStore interface {
	GetProject(ctx context.Context, id string) (*models.Project, error)
	ClaimNextQueuedBuild(ctx context.Context) (*models.Build, error)
	RecordToolVersion(ctx context.Context, id string, version string) error
	RecordBuiltImage(ctx context.Context, id string, image string) error
	RecordRemoteImage(ctx context.Context, id string, remoteImage string) error
	FinishBuild(ctx context.Context, id string, status models.BuildStatus, failure string) error
}

// LauncherFactory returns a launcher that runs the tool for project in workingDirectory.
// a container launcher uses the project to know which host directories the tool must see.
type LauncherFactory func(project *models.Project, workingDirectory string) spoon.Launcher

// BuildPipelineConfig groups the configuration values BuildPipeline needs,
// so the pipeline does not import the config package.
type BuildPipelineConfig struct {
	LogRoot string
}

// BuildPipeline holds the dependencies needed to run a build.
// constructed once in main and shared by the worker. it holds no per-build state.
type BuildPipeline struct {
	store     BuildStore
	launchers LauncherFactory
	logger    *slog.Logger
	logRoot   string

	// readBuildData reads the git metadata of a workspace for the generate strategy
	readBuildData func(workspaceDir string) (git.BuildData, error)
}

func NewBuildPipeline(store BuildStore, launchers LauncherFactory, logger *slog.Logger, config BuildPipelineConfig) *BuildPipeline {
	return &BuildPipeline{
		store:         store,
		launchers:     launchers,
		logger:        logger,
		logRoot:       config.LogRoot,
		readBuildData: git.ReadBuildData,
	}
}

// Run executes a build that is already marked running, records each result on
// the build and finishes it as succeeded or failed. the returned error is the
// failure that was recorded.
func (buildPipeline *BuildPipeline) Run(ctx context.Context, build *models.Build) error {
	logFile, errOpenLogFile := buildPipeline.openBuildLogFile(build.ID)
	if errOpenLogFile != nil {
		// the build goes on without a log file rather than failing over a logging issue
		buildPipeline.logger.Error("failed to open build log file",
			"build_id", build.ID,
			"error", errOpenLogFile,
		)
	}
	if logFile != nil {
		defer logFile.Close()
	}

	pipelineLogger := &buildLogger{
		pipeline: buildPipeline,
		build:    build,
		logFile:  logFile,
	}

	pipelineLogger.logInfo("starting build: %s", build.Description)

	// ===== project and script
	project, err := buildPipeline.store.GetProject(ctx, build.ProjectID)
	if err != nil {
		return pipelineLogger.logFailureAndUpdateStatus(ctx, "failed to load project", err)
	}

	scriptPath, err := ResolveScriptPath(*project)
	if err != nil {
		return pipelineLogger.logFailureAndUpdateStatus(ctx, "failed to resolve build script", err)
	}
	pipelineLogger.logInfo("project %s, script %s", project.Name, scriptPath)

	// resolved once so the stat, the export argument and the container mount all name the same directory
	if project.ExportDirectory != "" {
		exportDirectory, err := filepath.Abs(project.ResolveInWorkspace(project.ExportDirectory))
		if err != nil {
			return pipelineLogger.logFailureAndUpdateStatus(ctx, "failed to resolve export directory", err)
		}
		resolved := *project
		resolved.ExportDirectory = exportDirectory
		project = &resolved
	}

	// the tool runs next to the script, so relative paths inside the script resolve
	launcher := buildPipeline.launchers(project, filepath.Dir(scriptPath))
	client := spoon.NewClient(launcher, pipelineLogger.output(), buildPipeline.logger.With("build_id", build.ID))

	// ===== version probe
	version, err := client.RunAndExtract(ctx, spoon.NewVersionCommand())
	if err != nil {
		return pipelineLogger.logFailureAndUpdateStatus(ctx, "spoon version probe failed", err)
	}
	pipelineLogger.logInfo("spoon version %s", version)
	if err := buildPipeline.store.RecordToolVersion(ctx, build.ID, version); err != nil {
		return pipelineLogger.logFailureAndUpdateStatus(ctx, "failed to record tool version", err)
	}

	// ===== login
	if project.LoginUser != "" {
		if err := buildPipeline.login(ctx, client, project); err != nil {
			return pipelineLogger.logFailureAndUpdateStatus(ctx, "spoon login failed", err)
		}
		pipelineLogger.logInfo("logged in as %s", project.LoginUser)
	}

	// ===== build
	buildCommand, err := spoon.NewBuildCommand(buildOptions(project, scriptPath))
	if err != nil {
		return pipelineLogger.logFailureAndUpdateStatus(ctx, "invalid build settings", err)
	}
	builtImage, err := client.RunAndExtract(ctx, buildCommand)
	if err != nil {
		return pipelineLogger.logFailureAndUpdateStatus(ctx, "spoon build failed", err)
	}
	pipelineLogger.logInfo("built image %s", builtImage)
	if err := buildPipeline.store.RecordBuiltImage(ctx, build.ID, builtImage); err != nil {
		return pipelineLogger.logFailureAndUpdateStatus(ctx, "failed to record built image", err)
	}

	// ===== publishers, in order: push, export, remove image
	if err := buildPipeline.publish(ctx, client, pipelineLogger, project, build, builtImage); err != nil {
		return err
	}

	if err := buildPipeline.store.FinishBuild(ctx, build.ID, models.StatusSucceeded, ""); err != nil {
		buildPipeline.logger.Error("failed to update build status to succeeded",
			"build_id", build.ID,
			"error", err,
		)
		return err
	}
	pipelineLogger.logInfo("build succeeded")
	return nil
}

func (buildPipeline *BuildPipeline) publish(
	ctx context.Context,
	client *spoon.Client,
	pipelineLogger *buildLogger,
	project *models.Project,
	build *models.Build,
	builtImage string,
) error {
	if strings.TrimSpace(builtImage) == "" {
		return pipelineLogger.logFailureAndUpdateStatus(ctx, "cannot publish", ErrNoBuiltImage)
	}

	if project.Push != nil {
		remoteImage, err := buildPipeline.remoteImage(project, build)
		if err != nil {
			return pipelineLogger.logFailureAndUpdateStatus(ctx, "failed to name the remote image", err)
		}

		pushCommand, err := spoon.NewPushCommand(builtImage, remoteImage)
		if err != nil {
			return pipelineLogger.logFailureAndUpdateStatus(ctx, "invalid push settings", err)
		}
		if err := client.Run(ctx, pushCommand); err != nil {
			return pipelineLogger.logFailureAndUpdateStatus(ctx, "spoon push failed", err)
		}

		pushedAs := remoteImage
		if pushedAs == "" {
			pushedAs = builtImage
		}
		pipelineLogger.logInfo("pushed image as %s", pushedAs)
		if err := buildPipeline.store.RecordRemoteImage(ctx, build.ID, pushedAs); err != nil {
			return pipelineLogger.logFailureAndUpdateStatus(ctx, "failed to record remote image", err)
		}
	}

	if project.ExportDirectory != "" {
		info, err := os.Stat(project.ExportDirectory)
		if err != nil || !info.IsDir() {
			return pipelineLogger.logFailureAndUpdateStatus(ctx, "cannot export",
				fmt.Errorf("%w: %s", ErrExportDirectory, project.ExportDirectory))
		}

		exportCommand, err := spoon.NewExportCommand(builtImage, project.ExportDirectory)
		if err != nil {
			return pipelineLogger.logFailureAndUpdateStatus(ctx, "invalid export settings", err)
		}
		if err := client.Run(ctx, exportCommand); err != nil {
			return pipelineLogger.logFailureAndUpdateStatus(ctx, "spoon export failed", err)
		}
		pipelineLogger.logInfo("exported image to %s", project.ExportDirectory)
	}

	if project.RemoveImage {
		removeCommand, err := spoon.NewRemoveImageCommand(builtImage)
		if err != nil {
			return pipelineLogger.logFailureAndUpdateStatus(ctx, "invalid image name", err)
		}
		if err := client.Run(ctx, removeCommand); err != nil {
			return pipelineLogger.logFailureAndUpdateStatus(ctx, "spoon rmi failed", err)
		}
		pipelineLogger.logInfo("removed image %s", builtImage)
	}

	return nil
}

// login reads the password from the project's environment variable at build time.
func (buildPipeline *BuildPipeline) login(ctx context.Context, client *spoon.Client, project *models.Project) error {
	password := os.Getenv(project.LoginPasswordEnv)
	if project.LoginPasswordEnv == "" || password == "" {
		return fmt.Errorf("%w: environment variable %q", ErrMissingPassword, project.LoginPasswordEnv)
	}

	loginCommand, err := spoon.NewLoginCommand(project.LoginUser, password)
	if err != nil {
		return err
	}
	return client.Run(ctx, loginCommand)
}

// ResolveScriptPath returns the absolute build script of a project: ScriptPath
// itself when absolute, otherwise joined onto the workspace. the script must be a file.
func ResolveScriptPath(project models.Project) (string, error) {
	scriptPath := strings.TrimSpace(project.ScriptPath)
	if scriptPath == "" {
		return "", fmt.Errorf("%w: no script path configured", ErrScriptNotFound)
	}
	absolutePath, err := filepath.Abs(project.ResolveInWorkspace(scriptPath))
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrScriptNotFound, scriptPath, err)
	}

	info, err := os.Stat(absolutePath)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrScriptNotFound, absolutePath)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s is not a file", ErrScriptNotFound, absolutePath)
	}
	return absolutePath, nil
}

func buildOptions(project *models.Project, scriptPath string) spoon.BuildOptions {
	options := spoon.BuildOptions{
		Script:     scriptPath,
		Image:      project.ImageName,
		VMVersion:  project.VMVersion,
		WorkingDir: project.ContainerWorkingDir,
		Overwrite:  project.Overwrite,
		NoBase:     project.NoBase,
		Diagnostic: project.Diagnostic,
	}
	if project.Mount != nil {
		options.Mount = &spoon.Mount{
			Container: project.Mount.SourceContainer,
			Source:    project.Mount.SourceFolder,
			Target:    project.Mount.TargetFolder,
		}
	}
	return options
}
