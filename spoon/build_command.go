package spoon

import (
	"strings"
)

// Mount shares a folder from a container (or the host when Container is empty)
// into the build as `--mount [container:]source=target`.
type Mount struct {
	Container string `json:"container,omitempty" toml:"container" yaml:"container"`
	Source    string `json:"source" toml:"source" yaml:"source"`
	Target    string `json:"target" toml:"target" yaml:"target"`
}

// BuildOptions is everything `spoon build` accepts.
// empty strings mean "not set". Script is the only required field.
type BuildOptions struct {
	// Script is the path of the build script on the machine running the tool.
	Script string

	// Image names the output image (--name). must be a single word.
	Image string

	// VMVersion pins the VM (--vm), four dot separated numbers.
	VMVersion string

	// WorkingDir is the working directory inside the container (--working-dir).
	WorkingDir string

	// Mount is optional. when set both Source and Target are required.
	Mount *Mount

	Overwrite  bool
	NoBase     bool
	Diagnostic bool
}

// NewBuildCommand validates every option and assembles
//
//	spoon build [--name N] [--vm V] [--working-dir "D"] [--mount [C:]"S=T"] [--overwrite] [--no-base] [--diagnostic] "script"
//
// the command extracts the built image name with OutputImagePattern.
func NewBuildCommand(options BuildOptions) (*Command, error) {
	image := strings.TrimSpace(options.Image)
	if !IsSingleWord(image) {
		return nil, invalidArgument("image '%s' must be a single word", options.Image)
	}

	vmVersion := strings.TrimSpace(options.VMVersion)
	if vmVersion != "" && !IsVersionNumber(vmVersion) {
		return nil, invalidArgument("vmVersion '%s' must consist of 4 numbers separated by dot", options.VMVersion)
	}

	var mountArgument *argument
	if options.Mount != nil {
		built, err := buildMountArgument(*options.Mount)
		if err != nil {
			return nil, err
		}
		mountArgument = &built
	}

	script := strings.TrimSpace(options.Script)
	if script == "" {
		return nil, missingArgument("script")
	}

	var arguments []argument
	if image != "" {
		arguments = append(arguments, plainArgument("--name"), plainArgument(image))
	}

	if vmVersion != "" {
		arguments = append(arguments, plainArgument("--vm"), plainArgument(vmVersion))
	}

	if workingDir := strings.TrimSpace(options.WorkingDir); workingDir != "" {
		arguments = append(arguments, plainArgument("--working-dir"), quotedArgument(workingDir))
	}

	if mountArgument != nil {
		arguments = append(arguments, plainArgument("--mount"), *mountArgument)
	}

	if options.Overwrite {
		arguments = append(arguments, plainArgument("--overwrite"))
	}

	if options.NoBase {
		arguments = append(arguments, plainArgument("--no-base"))
	}

	if options.Diagnostic {
		arguments = append(arguments, plainArgument("--diagnostic"))
	}

	arguments = append(arguments, quotedArgument(script))

	return newCommand("build", OutputImagePattern, arguments...), nil
}

// buildMountArgument renders the mount spec. only the source=target part is quoted,
// the container prefix stays outside the quotes.
func buildMountArgument(mount Mount) (argument, error) {
	source := strings.TrimSpace(mount.Source)
	if source == "" {
		return argument{}, invalidArgument("mount source folder must be not empty")
	}

	target := strings.TrimSpace(mount.Target)
	if target == "" {
		return argument{}, invalidArgument("mount target folder must be not empty")
	}

	container := strings.TrimSpace(mount.Container)
	if !IsSingleWord(container) {
		return argument{}, invalidArgument("mount container '%s' must be a single word", mount.Container)
	}

	location := source + "=" + target
	if container == "" {
		return argument{value: location, display: `"` + location + `"`}, nil
	}

	return argument{
		value:   container + ":" + location,
		display: container + `:"` + location + `"`,
	}, nil
}
