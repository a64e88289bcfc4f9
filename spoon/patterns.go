package spoon

import (
	"regexp"
	"strings"
)

var (
	// OutputImagePattern finds the image name a build prints when it finishes.
	OutputImagePattern = regexp.MustCompile(`(?i)Output\s+image:\s+(\S+)`)

	// VersionPattern finds the tool version printed by `spoon version`.
	VersionPattern = regexp.MustCompile(`(?i)\s*Version:\s+(\S+)`)

	versionNumberPattern        = regexp.MustCompile(`^\d+\.\d+\.\d+\.\d+$`)
	whitespaceBetweenWordsRegex = regexp.MustCompile(`\S+\s+\S+`)
)

// IsSingleWord reports whether value, once trimmed, has no inner whitespace.
// an empty value counts as a single word, callers that need a value check for it separately.
func IsSingleWord(value string) bool {
	return !whitespaceBetweenWordsRegex.MatchString(value)
}

// IsVersionNumber reports whether value is four dot separated numbers, eg "11.6.381.0".
func IsVersionNumber(value string) bool {
	return versionNumberPattern.MatchString(strings.TrimSpace(value))
}
