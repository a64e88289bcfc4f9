// Package spoon builds and runs invocations of the spoon command line tool.
//
// Every sub-command the trigger needs (build, push, export, login, rmi, version)
// has a constructor here that takes a plain options value, validates all of it
// at once, and returns an immutable *Command. Commands are run through a
// Launcher (a local subprocess or an ephemeral container) by a Client, which
// also extracts the single result token some commands print on stdout
// ("Output image: ..." for build, "Version: ..." for version).
package spoon

import (
	"regexp"
	"strings"
)

// Executable is the name the tool is invoked by. the launcher decides which
// binary actually runs, this name only shows up in rendered command lines.
const Executable = "spoon"

// maskedValue replaces secret arguments in every rendered form of a command.
const maskedValue = "******"

// argument is a single argv entry.
// value is what the child process receives, display is what logs show.
// the two differ for quoted paths and for the masked password.
type argument struct {
	value   string
	display string
}

func plainArgument(value string) argument {
	return argument{value: value, display: value}
}

// quotedArgument is rendered inside double quotes. the child still receives the
// raw value because os/exec does its own per-platform quoting.
func quotedArgument(value string) argument {
	return argument{value: value, display: `"` + value + `"`}
}

func maskedArgument(value string) argument {
	return argument{value: value, display: maskedValue}
}

// Command is one fully validated invocation of the tool.
// it is never modified after construction, so it is safe to share.
type Command struct {
	name          string
	arguments     []argument
	resultPattern *regexp.Regexp
}

func newCommand(name string, resultPattern *regexp.Regexp, arguments ...argument) *Command {
	allArguments := make([]argument, 0, len(arguments)+1)
	allArguments = append(allArguments, plainArgument(name))
	allArguments = append(allArguments, arguments...)

	return &Command{
		name:          name,
		arguments:     allArguments,
		resultPattern: resultPattern,
	}
}

// Name is the sub-command, eg "build" or "push".
func (command *Command) Name() string {
	return command.name
}

// Args returns the arguments passed after the executable, unmasked and unquoted.
// the returned slice is a copy.
func (command *Command) Args() []string {
	args := make([]string, len(command.arguments))
	for i, arg := range command.arguments {
		args[i] = arg.value
	}
	return args
}

// Argv returns the full argument vector with Executable first.
func (command *Command) Argv() []string {
	return append([]string{Executable}, command.Args()...)
}

// Rendered returns the argument vector the way it is shown in logs:
// quoted paths keep their quotes and the password is masked.
func (command *Command) Rendered() []string {
	rendered := make([]string, 0, len(command.arguments)+1)
	rendered = append(rendered, Executable)
	for _, arg := range command.arguments {
		rendered = append(rendered, arg.display)
	}
	return rendered
}

// String is the rendered command line. safe to log.
func (command *Command) String() string {
	return strings.Join(command.Rendered(), " ")
}

// ResultPattern is the pattern whose single capture group holds the command's
// result. nil for commands that return nothing.
func (command *Command) ResultPattern() *regexp.Regexp {
	return command.resultPattern
}
