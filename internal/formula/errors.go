package formula

import (
	"errors"
	"fmt"
)

// CompileError reports a malformed formula or a violated rewrite
// precondition. It is user-correctable.
type CompileError struct {
	// Code identifies the error category.
	Code CompileErrorCode

	// Message is a human-readable description.
	Message string

	// Alias names the formula being compiled, when known.
	Alias string

	// Path locates the offending node, e.g. "args[1].left".
	Path string
}

// CompileErrorCode categorizes compile errors.
type CompileErrorCode string

const (
	// ErrCodeMalformed indicates a structurally invalid node.
	ErrCodeMalformed CompileErrorCode = "MALFORMED_FORMULA"

	// ErrCodeArgumentCount indicates a call with the wrong number of arguments.
	ErrCodeArgumentCount CompileErrorCode = "ARGUMENT_COUNT"

	// ErrCodeDecode indicates a structural encoding that is not a formula.
	ErrCodeDecode CompileErrorCode = "DECODE"

	// ErrCodeUnknownField indicates a reference to a field that is not in the legend.
	ErrCodeUnknownField CompileErrorCode = "UNKNOWN_FIELD"
)

// Error implements the error interface.
func (e *CompileError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Alias != "" {
		msg += fmt.Sprintf(" (formula=%s", e.Alias)
		if e.Path != "" {
			msg += fmt.Sprintf(", at=%s", e.Path)
		}
		return msg + ")"
	}
	if e.Path != "" {
		msg += fmt.Sprintf(" (at=%s)", e.Path)
	}
	return msg
}

// NewCompileError creates a CompileError.
func NewCompileError(code CompileErrorCode, format string, args ...any) *CompileError {
	return &CompileError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// IsCompileError returns true if err is or wraps a CompileError.
func IsCompileError(err error) bool {
	var ce *CompileError
	return errors.As(err, &ce)
}

// WithAlias returns a copy of err with the formula alias set when err is a
// CompileError without one; other errors are returned unchanged.
func WithAlias(err error, alias string) error {
	var ce *CompileError
	if !errors.As(err, &ce) || ce.Alias != "" {
		return err
	}
	out := *ce
	out.Alias = alias
	return &out
}
