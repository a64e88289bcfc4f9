package spoon

import (
	"strings"
)

// NewPushCommand assembles `spoon push image [remoteImage]`.
// remoteImage is optional, an empty value pushes under the local name.
func NewPushCommand(image, remoteImage string) (*Command, error) {
	localImage, err := requiredSingleWord("image", image)
	if err != nil {
		return nil, err
	}

	remote := strings.TrimSpace(remoteImage)
	if !IsSingleWord(remote) {
		return nil, invalidArgument("remote image '%s' must be a single word", remoteImage)
	}

	arguments := []argument{plainArgument(localImage)}
	if remote != "" {
		arguments = append(arguments, plainArgument(remote))
	}

	return newCommand("push", nil, arguments...), nil
}

// NewExportCommand assembles `spoon export image "outputPath"`.
// outputPath may be a file or a directory, the tool decides what to do with it.
func NewExportCommand(image, outputPath string) (*Command, error) {
	localImage, err := requiredSingleWord("image", image)
	if err != nil {
		return nil, err
	}

	path := strings.TrimSpace(outputPath)
	if path == "" {
		return nil, missingArgument("output path")
	}

	return newCommand("export", nil, plainArgument(localImage), quotedArgument(path)), nil
}

// NewLoginCommand assembles `spoon login username password`.
// the password is masked in every rendered form of the command.
func NewLoginCommand(username, password string) (*Command, error) {
	login := strings.TrimSpace(username)
	if login == "" {
		return nil, missingArgument("login")
	}
	if password == "" {
		return nil, missingArgument("password")
	}

	return newCommand("login", nil, plainArgument(login), maskedArgument(password)), nil
}

// NewRemoveImageCommand assembles `spoon rmi image`.
func NewRemoveImageCommand(image string) (*Command, error) {
	localImage, err := requiredSingleWord("image", image)
	if err != nil {
		return nil, err
	}

	return newCommand("rmi", nil, plainArgument(localImage)), nil
}

// NewVersionCommand assembles `spoon version`, used as a liveness probe.
// it extracts the reported version with VersionPattern.
func NewVersionCommand() *Command {
	return newCommand("version", VersionPattern)
}

func requiredSingleWord(field, value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if !IsSingleWord(trimmed) {
		return "", invalidArgument("%s '%s' must be a single word", field, value)
	}
	if trimmed == "" {
		return "", missingArgument(field)
	}
	return trimmed, nil
}
