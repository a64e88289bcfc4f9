// Package docker runs the spoon tool inside ephemeral containers as an alternative
// to a local child process. all Docker SDK calls are isolated here, so no other
// package imports the Docker SDK directly.
package docker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	// aliased so it does not read as the generic "client" next to spoon.Client
	dockerSDKclient "github.com/docker/docker/client"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// containerAPI is the part of the Docker SDK client the executor uses.
// *dockerSDKclient.Client satisfies it, tests substitute a fake daemon.
type containerAPI interface {
	ContainerCreate(
		ctx context.Context,
		config *container.Config,
		hostConfig *container.HostConfig,
		networkingConfig *network.NetworkingConfig,
		platform *ocispec.Platform,
		containerName string,
	) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error)
	Close() error
}

// Client wraps the Docker SDK client with a logger.
// it is safe to share across goroutines, the SDK handles concurrency internally.
type Client struct {
	sdk    containerAPI
	logger *slog.Logger
}

// NewClient connects to the Docker daemon (DOCKER_HOST or the default socket)
// and pings it before returning, so an unreachable daemon fails at startup
// instead of at the first build.
func NewClient(logger *slog.Logger) (*Client, error) {
	// FromEnv reads DOCKER_HOST, DOCKER_TLS_VERIFY and DOCKER_CERT_PATH.
	// WithAPIVersionNegotiation picks the highest API version both sides support.
	sdkClient, err := dockerSDKclient.NewClientWithOpts(
		dockerSDKclient.FromEnv,
		dockerSDKclient.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker sdk client: %w", err)
	}

	// 5 seconds is plenty for a local socket to answer
	pingContext, cancelPingContextTimer := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPingContextTimer()

	_, err = sdkClient.Ping(pingContext)
	if err != nil {
		sdkClient.Close()
		return nil, fmt.Errorf("docker daemon unreachable: %w", err)
	}

	logger.Info("docker client connected", "host", sdkClient.DaemonHost())
	return &Client{sdk: sdkClient, logger: logger}, nil
}

// Close releases the underlying Docker SDK client connection.
func (dockerClient *Client) Close() error {
	return dockerClient.sdk.Close()
}

// pullImage pulls imageName and drains the progress stream.
// the pull is not complete until the stream is fully read, so it is copied to io.Discard.
func (dockerClient *Client) pullImage(ctx context.Context, imageName string, platform string) error {
	dockerClient.logger.Info("pulling docker image", "image", imageName, "platform", platform)

	imagePullResponseStream, pullError := dockerClient.sdk.ImagePull(ctx, imageName, image.PullOptions{Platform: platform})
	if pullError != nil {
		return fmt.Errorf("failed to initiate image pull for %q: %w", imageName, pullError)
	}
	defer imagePullResponseStream.Close()

	_, err := io.Copy(io.Discard, imagePullResponseStream)
	if err != nil {
		return fmt.Errorf("failed to stream image pull response for %q: %w", imageName, err)
	}

	dockerClient.logger.Info("docker image pulled and ready", "image", imageName)
	return nil
}
