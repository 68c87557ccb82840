package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSessionNotFound is returned when no quiz session exists for a key.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrCorruptSession is returned when a persisted session cannot be decoded.
	ErrCorruptSession = errors.New("quiz session state is corrupted")
	// ErrStaleSession marks an answer that belongs to a replaced quiz attempt.
	ErrStaleSession = errors.New("answer belongs to a replaced quiz attempt")
	// ErrSessionComplete is returned when an answer arrives for a finished session.
	ErrSessionComplete = errors.New("quiz session already complete")
	// ErrUnknownPoll indicates a poll id that was never registered or was already released.
	ErrUnknownPoll = errors.New("unknown poll")
	// ErrQuestionNotFound indicates a question index outside the quiz.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrOptionNotFound indicates a selected option that the question does not have.
	ErrOptionNotFound = errors.New("option not found")
	// ErrConflict is returned when an atomic update keeps losing to concurrent writers.
	ErrConflict = errors.New("concurrent session update conflict")
)

// FieldError is one offending field of a quiz definition.
type FieldError struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

func (e FieldError) String() string {
	if e.Path == "" {
		return e.Reason
	}
	return e.Path + ": " + e.Reason
}

// ValidationError lists every problem found in a quiz definition.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	lines := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		lines = append(lines, f.String())
	}
	return "invalid quiz definition: " + strings.Join(lines, "; ")
}

// SyntaxError reports where a quiz document stopped being valid JSON.
type SyntaxError struct {
	Line   int
	Column int
	Err    error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("invalid JSON at line %d, column %d: %v", e.Line, e.Column, e.Err)
}

func (e *SyntaxError) Unwrap() error { return e.Err }
