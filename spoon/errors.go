package spoon

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument marks an option value that can never be valid,
	// eg a multi-word image name or a malformed VM version.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrMissingArgument marks a required option that was not set.
	// it is the precondition failure of this package: nothing was executed.
	ErrMissingArgument = errors.New("missing required argument")

	// ErrNoResultPattern is returned by Client.RunAndExtract for a command that
	// does not produce a result.
	ErrNoResultPattern = errors.New("command does not declare a result pattern")
)

// ExecutionError is returned when the tool ran and exited non-zero, or when it
// could not be started or waited for at all. In the second case Err holds the
// cause and ExitCode is -1.
type ExecutionError struct {
	Command  string
	ExitCode int
	Err      error
}

func (executionError *ExecutionError) Error() string {
	if executionError.Err != nil {
		return fmt.Sprintf("execution of command: '%s' failed: %v", executionError.Command, executionError.Err)
	}
	return fmt.Sprintf("command '%s' returned error code %d", executionError.Command, executionError.ExitCode)
}

func (executionError *ExecutionError) Unwrap() error {
	return executionError.Err
}

// ExtractionError is returned when the tool exited cleanly but never printed
// the line the command's result pattern looks for.
type ExtractionError struct {
	Command string
	Pattern string
}

func (extractionError *ExtractionError) Error() string {
	return fmt.Sprintf("result (%s) was not found in output from the execution of '%s' command",
		extractionError.Pattern, extractionError.Command)
}

func invalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

func missingArgument(field string) error {
	return fmt.Errorf("%w: %s must be set", ErrMissingArgument, field)
}
