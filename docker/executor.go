package docker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/sasta-kro/spoon-trigger/spoon"
)

// ContainerExecutorConfig holds the settings shared by every container the executor runs.
// grouped in a struct so the constructor signature stays stable as options are added.
type ContainerExecutorConfig struct {
	// Image must contain the spoon tool on its PATH (or at Binary).
	Image string

	// Platform is "os/arch" (eg "windows/amd64"). empty means the daemon's native platform.
	Platform string

	// Binary is the tool inside the container, "spoon" when empty.
	Binary string

	// Environment is a list of KEY=VALUE strings passed to the container.
	Environment []string

	// SharedDirectories are host directories bind-mounted at the same path inside
	// the container, eg the export directories of the projects.
	SharedDirectories []string

	// WorkingDirectory is bind-mounted read-write at the same path and used as
	// the container working directory. host paths handed to the tool (the script,
	// the working directory) therefore resolve unchanged inside the container.
	WorkingDirectory string

	// RunAsCurrentUser runs the tool as the uid:gid of this process so files
	// written to bind mounts stay removable by it. only honoured on unix hosts.
	RunAsCurrentUser bool
}

// ContainerExecutor implements spoon.Launcher by running each command in a
// fresh container that is removed afterwards.
type ContainerExecutor struct {
	dockerClient *Client
	config       ContainerExecutorConfig
	platform     *ocispec.Platform

	// the image is pulled once per process, guarded by pullMutex
	pullMutex *sync.Mutex
	pulled    *bool
}

// NewContainerExecutor validates the config and returns an executor bound to this client.
func (dockerClient *Client) NewContainerExecutor(config ContainerExecutorConfig) (*ContainerExecutor, error) {
	if config.Image == "" {
		return nil, errors.New("container executor needs an image")
	}
	if config.Binary == "" {
		config.Binary = spoon.Executable
	}

	platform, err := parsePlatform(config.Platform)
	if err != nil {
		return nil, err
	}

	pulled := false
	return &ContainerExecutor{
		dockerClient: dockerClient,
		config:       config,
		platform:     platform,
		pullMutex:    &sync.Mutex{},
		pulled:       &pulled,
	}, nil
}

// WithWorkingDirectory returns a copy that mounts and runs in dir.
// the copy shares the pulled state of the original.
func (executor *ContainerExecutor) WithWorkingDirectory(dir string) *ContainerExecutor {
	copied := *executor
	copied.config.WorkingDirectory = dir
	return &copied
}

// WithSharedDirectories returns a copy that also mounts directories.
// the original's shared directories are kept and not modified.
func (executor *ContainerExecutor) WithSharedDirectories(directories ...string) *ContainerExecutor {
	copied := *executor
	copied.config.SharedDirectories = append(
		append([]string(nil), executor.config.SharedDirectories...),
		directories...,
	)
	return &copied
}

// Launch runs the command in an ephemeral container.
//
// Lifecycle:
//
//	Pull the image on first use
//	Create the container with the working and shared directories bind-mounted
//	Start it and follow its logs, demultiplexed with stdcopy into stdout and stderr
//	Wait for it to exit and map a non-zero exit code to *spoon.ExecutionError
//	Remove the container (deferred, runs on both success and failure)
func (executor *ContainerExecutor) Launch(ctx context.Context, command *spoon.Command, stdout io.Writer, stderr io.Writer) error {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = stdout
	}

	failed := func(err error) error {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return &spoon.ExecutionError{Command: command.String(), ExitCode: -1, Err: err}
	}

	if err := executor.ensureImage(ctx); err != nil {
		return failed(err)
	}

	containerName := "spoon-" + command.Name() + "-" + uuid.New().String()[:8]

	containerInternalConfig := &container.Config{
		Image:      executor.config.Image,
		Cmd:        append([]string{executor.config.Binary}, command.Args()...),
		WorkingDir: executor.config.WorkingDirectory,
		Env:        executor.config.Environment,
	}
	if executor.config.RunAsCurrentUser && runtime.GOOS != "windows" {
		containerInternalConfig.User = fmt.Sprintf("%d:%d", os.Getuid(), os.Getgid())
	}

	containerHostConfig := &container.HostConfig{
		Mounts: executor.mounts(),
	}

	createResponse, createError := executor.dockerClient.sdk.ContainerCreate(
		ctx,
		containerInternalConfig,
		containerHostConfig,
		nil, // no networking config, the default bridge is enough
		executor.platform,
		containerName,
	)
	if createError != nil {
		return failed(fmt.Errorf("failed to create container %q: %w", containerName, createError))
	}

	logger := executor.dockerClient.logger.With("container_name", containerName)
	logger.Debug("spoon container created", "command", command.String())

	// removal uses its own context: ctx may already be cancelled at this point
	defer func() {
		removeContext, cancelRemove := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancelRemove()

		removeError := executor.dockerClient.sdk.ContainerRemove(
			removeContext,
			createResponse.ID,
			container.RemoveOptions{Force: true},
		)
		if removeError != nil {
			logger.Warn("failed to remove spoon container (non-fatal)", "error", removeError)
		}
	}()

	if startError := executor.dockerClient.sdk.ContainerStart(ctx, createResponse.ID, container.StartOptions{}); startError != nil {
		return failed(fmt.Errorf("failed to start container %q: %w", containerName, startError))
	}

	// following the logs while the container runs streams the output to the
	// extractor live. the stream ends on its own once the container exits.
	logReadCloser, logError := executor.dockerClient.sdk.ContainerLogs(ctx, createResponse.ID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if logError != nil {
		return failed(fmt.Errorf("failed to follow logs of container %q: %w", containerName, logError))
	}
	defer logReadCloser.Close()

	copyDone := make(chan error, 1)
	go func() {
		// no TTY, so docker multiplexes stdout and stderr with 8-byte frame headers
		_, copyError := stdcopy.StdCopy(stdout, stderr, logReadCloser)
		copyDone <- copyError
	}()

	statusChannel, errorChannel := executor.dockerClient.sdk.ContainerWait(
		ctx,
		createResponse.ID,
		container.WaitConditionNotRunning,
	)

	var exitCode int64
	select {
	case waitError := <-errorChannel:
		return failed(fmt.Errorf("error waiting for container %q: %w", containerName, waitError))
	case waitStatus := <-statusChannel:
		exitCode = waitStatus.StatusCode
		if waitStatus.Error != nil && waitStatus.Error.Message != "" {
			return failed(fmt.Errorf("container %q: %s", containerName, waitStatus.Error.Message))
		}
	}

	// drain what is left of the log stream before judging the result,
	// so the last lines of output reach the extractor
	if copyError := <-copyDone; copyError != nil && !errors.Is(copyError, io.EOF) {
		logger.Warn("failed to copy container output (non-fatal)", "error", copyError)
	}

	logger.Debug("spoon container exited", "exit_code", exitCode)

	if exitCode != 0 {
		return &spoon.ExecutionError{Command: command.String(), ExitCode: int(exitCode)}
	}
	return nil
}

func (executor *ContainerExecutor) ensureImage(ctx context.Context) error {
	executor.pullMutex.Lock()
	defer executor.pullMutex.Unlock()

	if *executor.pulled {
		return nil
	}
	if err := executor.dockerClient.pullImage(ctx, executor.config.Image, executor.config.Platform); err != nil {
		return err
	}
	*executor.pulled = true
	return nil
}

// mounts bind-mounts the working directory and the shared directories at their host paths.
// duplicates are skipped, docker refuses two mounts with the same target.
func (executor *ContainerExecutor) mounts() []mount.Mount {
	var mounts []mount.Mount
	seen := map[string]bool{}

	for _, directory := range append([]string{executor.config.WorkingDirectory}, executor.config.SharedDirectories...) {
		if directory == "" || seen[directory] {
			continue
		}
		seen[directory] = true
		mounts = append(mounts, mount.Mount{
			Type:   mount.TypeBind,
			Source: directory,
			Target: directory,
		})
	}
	return mounts
}

// parsePlatform turns "os/arch" or "os/arch/variant" into an OCI platform.
func parsePlatform(value string) (*ocispec.Platform, error) {
	if value == "" {
		return nil, nil
	}

	parts := strings.Split(value, "/")
	if len(parts) < 2 || len(parts) > 3 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("invalid platform %q, expected os/arch[/variant]", value)
	}

	platform := &ocispec.Platform{OS: parts[0], Architecture: parts[1]}
	if len(parts) == 3 {
		platform.Variant = parts[2]
	}
	return platform, nil
}
