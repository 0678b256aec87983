package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrInvalidInput       = errors.New("invalid input")
	ErrSynthesisFailed    = errors.New("could not form a query")
	ErrBackendUnavailable = errors.New("no generation backend available")
	ErrSnapshotNotLoaded  = errors.New("no schema snapshot loaded")
)

// InvalidInputError reports a question or option the pipeline cannot accept.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid input: %s", e.Reason)
	}
	return fmt.Sprintf("invalid input: %s: %s", e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrInvalidInput) work for any InvalidInputError.
func (e *InvalidInputError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NewInvalidInput builds an InvalidInputError.
func NewInvalidInput(field, reason string) *InvalidInputError {
	return &InvalidInputError{Field: field, Reason: reason}
}

// SynthesisError reports that no statement could be extracted from model output.
type SynthesisError struct {
	Attempts  int
	RawOutput string
	Cause     error
}

func (e *SynthesisError) Error() string {
	msg := fmt.Sprintf("could not form a query after %d attempt(s)", e.Attempts)
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *SynthesisError) Unwrap() error { return e.Cause }

func (e *SynthesisError) Is(target error) bool {
	return target == ErrSynthesisFailed
}

// BackendUnavailableError reports that every eligible backend failed.
// Causes holds one error per backend that was tried, keyed by backend name.
type BackendUnavailableError struct {
	Causes map[string]error
}

func (e *BackendUnavailableError) Error() string {
	if len(e.Causes) == 0 {
		return ErrBackendUnavailable.Error()
	}
	names := make([]string, 0, len(e.Causes))
	for _, n := range []string{"local", "remote"} {
		if err, ok := e.Causes[n]; ok {
			names = append(names, fmt.Sprintf("%s: %v", n, err))
		}
	}
	for n, err := range e.Causes {
		if n != "local" && n != "remote" {
			names = append(names, fmt.Sprintf("%s: %v", n, err))
		}
	}
	return ErrBackendUnavailable.Error() + " (" + strings.Join(names, "; ") + ")"
}

func (e *BackendUnavailableError) Is(target error) bool {
	return target == ErrBackendUnavailable
}

// Unwrap exposes the individual backend failures to errors.Is/As.
func (e *BackendUnavailableError) Unwrap() []error {
	out := make([]error, 0, len(e.Causes))
	for _, err := range e.Causes {
		out = append(out, err)
	}
	return out
}
