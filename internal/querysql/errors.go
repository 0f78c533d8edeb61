package querysql

import (
	"errors"
	"fmt"
)

// GenerateError reports a compiled query that cannot be rendered as SQL.
type GenerateError struct {
	// Code identifies the error category.
	Code GenerateErrorCode

	// Message is a human-readable description.
	Message string

	// QueryID and Alias locate the offending formula, when known.
	QueryID string
	Alias   string
}

// GenerateErrorCode categorizes generate errors.
type GenerateErrorCode string

const (
	// ErrCodeUnsupported indicates a function or operator the dialect
	// cannot express.
	ErrCodeUnsupported GenerateErrorCode = "UNSUPPORTED"

	// ErrCodeUnboundField indicates a field without an avatar, which means
	// separation did not bind a slice placeholder.
	ErrCodeUnboundField GenerateErrorCode = "UNBOUND_FIELD"

	// ErrCodeMisplaced indicates a node in a clause it cannot appear in,
	// such as a query fork or a window call in a filter.
	ErrCodeMisplaced GenerateErrorCode = "MISPLACED"

	// ErrCodeEmptySelect indicates a query without select formulas.
	ErrCodeEmptySelect GenerateErrorCode = "EMPTY_SELECT"
)

// Error implements the error interface.
func (e *GenerateError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	switch {
	case e.QueryID != "" && e.Alias != "":
		msg += fmt.Sprintf(" (query=%s, formula=%s)", e.QueryID, e.Alias)
	case e.QueryID != "":
		msg += fmt.Sprintf(" (query=%s)", e.QueryID)
	}
	return msg
}

// IsGenerateError returns true if err is or wraps a GenerateError.
func IsGenerateError(err error) bool {
	var ge *GenerateError
	return errors.As(err, &ge)
}

func newGenerateError(code GenerateErrorCode, format string, args ...any) *GenerateError {
	return &GenerateError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// locate fills in the query and formula of a GenerateError.
func locate(err error, queryID, alias string) error {
	var ge *GenerateError
	if !errors.As(err, &ge) {
		return err
	}
	out := *ge
	if out.QueryID == "" {
		out.QueryID = queryID
	}
	if out.Alias == "" {
		out.Alias = alias
	}
	return &out
}
