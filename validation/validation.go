// Package validation grades project settings while they are being edited.
// an outcome is OK, WARNING or ERROR with a message. only ERROR blocks saving a project,
// and none of this runs during a build.
package validation

import (
	"fmt"
	"strings"
)

// Level is the severity of an Outcome.
type Level int

const (
	LevelOK Level = iota
	LevelWarning
	LevelError
)

func (level Level) String() string {
	switch level {
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	default:
		return "ok"
	}
}

// MarshalText renders the level as "ok", "warning" or "error" in JSON.
func (level Level) MarshalText() ([]byte, error) {
	return []byte(level.String()), nil
}

// Outcome is the result of validating one value.
type Outcome struct {
	Level   Level  `json:"level"`
	Message string `json:"message,omitempty"`
}

// OK is the outcome of a value that passed every check.
func OK() Outcome {
	return Outcome{Level: LevelOK}
}

// Validator checks a value. a nil result means "passed, keep going".
// a non-nil result stops a Chain, even when its level is OK: that is how an
// optional field that was left empty skips the remaining checks.
type Validator func(value string) *Outcome

// Chain runs the validators in order and returns the first non-nil outcome.
func Chain(validators ...Validator) Validator {
	return func(value string) *Outcome {
		for _, validator := range validators {
			if outcome := validator(value); outcome != nil {
				return outcome
			}
		}
		return nil
	}
}

// Validate runs the validator on the trimmed value and turns "passed" into OK.
func Validate(validator Validator, value string) Outcome {
	if outcome := validator(strings.TrimSpace(value)); outcome != nil {
		return *outcome
	}
	return OK()
}

// Predicate builds a Validator that fails with level and message when test is false.
func Predicate(test func(string) bool, message string, level Level) Validator {
	return func(value string) *Outcome {
		if test(value) {
			return nil
		}
		return &Outcome{Level: level, Message: message}
	}
}

// FieldOutcome is an Outcome attached to the field it was produced for.
type FieldOutcome struct {
	Field string `json:"field"`
	Outcome
}

// Report is the list of non-OK outcomes for a whole project.
type Report []FieldOutcome

// HasErrors reports whether any outcome is an ERROR.
func (report Report) HasErrors() bool {
	for _, fieldOutcome := range report {
		if fieldOutcome.Level == LevelError {
			return true
		}
	}
	return false
}

// Error joins the ERROR outcomes into one message.
func (report Report) Error() string {
	var messages []string
	for _, fieldOutcome := range report {
		if fieldOutcome.Level == LevelError {
			messages = append(messages, fmt.Sprintf("%s: %s", fieldOutcome.Field, fieldOutcome.Message))
		}
	}
	return strings.Join(messages, "; ")
}

func (report *Report) add(field string, outcome Outcome) {
	if outcome.Level == LevelOK {
		return
	}
	*report = append(*report, FieldOutcome{Field: field, Outcome: outcome})
}
