package spoon

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Client runs commands through a Launcher and writes their output to one log.
type Client struct {
	launcher Launcher
	output   io.Writer
	logger   *slog.Logger
}

// NewClient constructs a Client. output receives the tool's stdout and stderr
// plus one "$ <command>" line per invocation. nil output discards it.
func NewClient(launcher Launcher, output io.Writer, logger *slog.Logger) *Client {
	if output == nil {
		output = io.Discard
	}
	return &Client{launcher: launcher, output: &lockedWriter{writer: output}, logger: logger}
}

// Run executes a command that produces no result.
func (client *Client) Run(ctx context.Context, command *Command) error {
	client.announce(command)
	return client.launcher.Launch(ctx, command, client.output, client.output)
}

// RunAndExtract executes a command and returns the capture group of the first
// stdout line matching its result pattern. the process exiting 0 is not enough:
// if no line matched the result is an *ExtractionError.
func (client *Client) RunAndExtract(ctx context.Context, command *Command) (string, error) {
	pattern := command.ResultPattern()
	if pattern == nil {
		return "", fmt.Errorf("%w: %s", ErrNoResultPattern, command.Name())
	}

	extractor, err := NewLineExtractor(pattern, client.output)
	if err != nil {
		return "", err
	}

	client.announce(command)
	launchError := client.launcher.Launch(ctx, command, extractor, client.output)
	closeError := extractor.Close()

	if launchError != nil {
		return "", launchError
	}
	if closeError != nil {
		return "", closeError
	}

	value, found := extractor.Value()
	if !found {
		return "", &ExtractionError{Command: command.String(), Pattern: pattern.String()}
	}

	client.logger.Debug("extracted command result", "command", command.Name(), "result", value)
	return value, nil
}

func (client *Client) announce(command *Command) {
	client.logger.Info("running spoon command", "command", command.String())
	fmt.Fprintf(client.output, "$ %s\n", command.String())
}

// lockedWriter serializes writes. stdout goes through a LineExtractor and stderr
// goes straight to the log, and os/exec copies the two on separate goroutines.
type lockedWriter struct {
	mutex  sync.Mutex
	writer io.Writer
}

func (locked *lockedWriter) Write(chunk []byte) (int, error) {
	locked.mutex.Lock()
	defer locked.mutex.Unlock()
	return locked.writer.Write(chunk)
}
