package validation

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sasta-kro/spoon-trigger/git"
	"github.com/sasta-kro/spoon-trigger/spoon"
)

const (
	requiredParameter    = "Parameter is required"
	ignoredParameter     = "Parameter is ignored"
	pathShouldBeAbsolute = "Path should be absolute if the build will be executed on a remote machine"
	invalidDateFormat    = "Invalid date format. Use the components of Go's reference time, eg 20060102-1504"
)

// Required fails with level when the value is empty.
func Required(message string, level Level) Validator {
	return Predicate(func(value string) bool { return value != "" }, message, level)
}

// Optional stops the chain with OK when the value is empty.
func Optional() Validator {
	return Required(ignoredParameter, LevelOK)
}

// SingleWord fails with ERROR when the value has inner whitespace.
func SingleWord(subject string) Validator {
	return Predicate(spoon.IsSingleWord, fmt.Sprintf("%s must be a single word", subject), LevelError)
}

// VersionNumber fails with ERROR unless the value is four dot separated numbers.
func VersionNumber() Validator {
	return Predicate(spoon.IsVersionNumber,
		"Spoon VM version number should consist of 4 numbers separated by dot", LevelError)
}

// RepositoryURL fails with ERROR unless the value is http(s)://host/org/project.
func RepositoryURL() Validator {
	return Predicate(git.IsRepositoryURL, "Parameter is not correct URL to GitHub repository", LevelError)
}

// DateLayout fails with ERROR when the value is not a usable Go time layout,
// that is when formatting a time with it does not change a single character.
func DateLayout() Validator {
	return Predicate(isDateLayout, invalidDateFormat, LevelError)
}

func isDateLayout(layout string) bool {
	if layout == "" {
		return false
	}
	reference := time.Date(2001, time.February, 3, 4, 5, 6, 0, time.UTC)
	return reference.Format(layout) != layout
}

// Exists fails with ERROR when nothing is at the path.
func Exists(subject string) Validator {
	return Predicate(func(path string) bool {
		_, err := os.Stat(path)
		return err == nil
	}, fmt.Sprintf("%s does not exist", subject), LevelError)
}

// IsFile fails with ERROR unless the path is a regular file.
func IsFile() Validator {
	return Predicate(func(path string) bool {
		info, err := os.Stat(path)
		return err == nil && info.Mode().IsRegular()
	}, "Path does not point to a file", LevelError)
}

// IsDirectory fails with ERROR unless the path is a directory.
func IsDirectory() Validator {
	return Predicate(func(path string) bool {
		info, err := os.Stat(path)
		return err == nil && info.IsDir()
	}, "Path does not point to a directory", LevelError)
}

// IsAbsolute only warns: a relative path still works when the build runs locally.
func IsAbsolute() Validator {
	return Predicate(filepath.IsAbs, pathShouldBeAbsolute, LevelWarning)
}
