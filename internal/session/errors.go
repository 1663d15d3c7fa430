package session

import (
	"errors"
	"fmt"
	"strings"
)

// ErrStaleQuestion is returned when a command names a question that is no longer current,
// typically a timer firing after the candidate already answered.
var ErrStaleQuestion = errors.New("question is no longer current")

type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError lists every profile field that was missing or malformed
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Reason
	}
	return "invalid profile: " + strings.Join(parts, ", ")
}

func (e *ValidationError) add(field, reason string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Reason: reason})
}

// StageError is returned for a command that the current stage does not accept
type StageError struct {
	Command string `json:"command"`
	Stage   Stage  `json:"stage"`
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s is not allowed in stage %s", e.Command, e.Stage)
}
