package spoon

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// LineExtractor sits between a child process's stdout and the real log sink.
// bytes arrive in arbitrary chunks; every complete line is forwarded to the sink
// verbatim and immediately, and, until the first match, tested against pattern.
// after the first match lines are still forwarded but never scanned again.
//
// a LineExtractor is written to by a single goroutine (os/exec and the container
// log follower both copy from one reader), so it takes no locks.
type LineExtractor struct {
	pattern *regexp.Regexp
	sink    io.Writer
	pending []byte
	value   string
	found   bool
}

// NewLineExtractor fails when the pattern does not have exactly one capture group.
func NewLineExtractor(pattern *regexp.Regexp, sink io.Writer) (*LineExtractor, error) {
	if pattern == nil {
		return nil, fmt.Errorf("%w: pattern must be set", ErrInvalidArgument)
	}
	if pattern.NumSubexp() != 1 {
		return nil, invalidArgument("pattern '%s' must have exactly one capture group, has %d",
			pattern.String(), pattern.NumSubexp())
	}
	if sink == nil {
		sink = io.Discard
	}

	return &LineExtractor{pattern: pattern, sink: sink}, nil
}

// Write buffers a partial trailing line until its newline arrives.
func (extractor *LineExtractor) Write(chunk []byte) (int, error) {
	extractor.pending = append(extractor.pending, chunk...)

	consumed := 0
	for {
		newline := bytes.IndexByte(extractor.pending[consumed:], '\n')
		if newline < 0 {
			break
		}
		lineEnd := consumed + newline + 1
		if err := extractor.emit(extractor.pending[consumed:lineEnd]); err != nil {
			return 0, err
		}
		consumed = lineEnd
	}

	remaining := copy(extractor.pending, extractor.pending[consumed:])
	extractor.pending = extractor.pending[:remaining]

	return len(chunk), nil
}

// Close pushes an unterminated final line through the same forward-and-scan path.
// it does not close the sink.
func (extractor *LineExtractor) Close() error {
	if len(extractor.pending) == 0 {
		return nil
	}
	line := extractor.pending
	extractor.pending = nil
	return extractor.emit(line)
}

// Value returns the captured group and whether a match was ever seen.
func (extractor *LineExtractor) Value() (string, bool) {
	return extractor.value, extractor.found
}

func (extractor *LineExtractor) emit(line []byte) error {
	if _, err := extractor.sink.Write(line); err != nil {
		return fmt.Errorf("failed to forward output line: %w", err)
	}

	if extractor.found {
		return nil
	}

	text := strings.TrimRight(string(line), "\r\n")
	if text == "" {
		return nil
	}

	matches := extractor.pattern.FindStringSubmatch(text)
	if matches != nil {
		extractor.value = matches[1]
		extractor.found = true
	}
	return nil
}
