package spoon

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"time"
)

// defaultWaitDelay bounds how long Launch waits for the output pipes after the child was killed.
// a grandchild that inherited stdout would otherwise keep Launch blocked.
const defaultWaitDelay = 10 * time.Second

// Launcher starts a command, streams its output while it runs and blocks until it exits.
// a non-zero exit, or a failure to start or wait, is returned as *ExecutionError.
type Launcher interface {
	Launch(ctx context.Context, command *Command, stdout io.Writer, stderr io.Writer) error
}

// ProcessExecutorConfig groups the settings every launch of a ProcessExecutor shares.
type ProcessExecutorConfig struct {
	// Binary is the executable that is run, "spoon" when empty.
	Binary string

	// Environment is appended to the environment of the current process.
	// entries are KEY=VALUE.
	Environment []string

	// WorkingDirectory of the child. empty means the current directory.
	WorkingDirectory string

	// WaitDelay is how long the output pipes stay open once the child was killed on cancel.
	// zero means 10s.
	WaitDelay time.Duration
}

// ProcessExecutor runs the tool as a local child process.
type ProcessExecutor struct {
	binary           string
	environment      []string
	workingDirectory string
	waitDelay        time.Duration
	logger           *slog.Logger
}

// NewProcessExecutor constructs a ProcessExecutor.
func NewProcessExecutor(config ProcessExecutorConfig, logger *slog.Logger) *ProcessExecutor {
	binary := config.Binary
	if binary == "" {
		binary = Executable
	}
	waitDelay := config.WaitDelay
	if waitDelay <= 0 {
		waitDelay = defaultWaitDelay
	}

	return &ProcessExecutor{
		binary:           binary,
		environment:      config.Environment,
		workingDirectory: config.WorkingDirectory,
		waitDelay:        waitDelay,
		logger:           logger,
	}
}

// WithWorkingDirectory returns a copy that runs in dir.
func (processExecutor *ProcessExecutor) WithWorkingDirectory(dir string) *ProcessExecutor {
	copied := *processExecutor
	copied.workingDirectory = dir
	return &copied
}

// Launch runs the command and waits for it.
//
// stdout and stderr are handed to os/exec, which drains both pipes in their own
// goroutines while the process runs, so a chatty child never blocks on a full pipe.
// no timeout is applied here. a hung tool blocks the caller until ctx is cancelled,
// and cancellation kills the child and is reported as an ExecutionError.
func (processExecutor *ProcessExecutor) Launch(ctx context.Context, command *Command, stdout io.Writer, stderr io.Writer) error {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = stdout
	}

	childProcess := exec.CommandContext(ctx, processExecutor.binary, command.Args()...)
	childProcess.Dir = processExecutor.workingDirectory
	childProcess.Env = append(os.Environ(), processExecutor.environment...)
	childProcess.Stdout = stdout
	childProcess.Stderr = stderr
	childProcess.WaitDelay = processExecutor.waitDelay

	processExecutor.logger.Debug("launching process",
		"binary", processExecutor.binary,
		"command", command.String(),
		"working_dir", processExecutor.workingDirectory,
	)

	runError := childProcess.Run()
	if runError == nil {
		return nil
	}

	if ctx.Err() != nil {
		return &ExecutionError{Command: command.String(), ExitCode: -1, Err: ctx.Err()}
	}

	var exitError *exec.ExitError
	if errors.As(runError, &exitError) && exitError.ExitCode() > 0 {
		return &ExecutionError{Command: command.String(), ExitCode: exitError.ExitCode()}
	}

	return &ExecutionError{Command: command.String(), ExitCode: -1, Err: runError}
}
