package engine

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/roach88/lens/internal/query"
)

// ExecutionError reports a query the executor failed to run. The rest of
// the plan was abandoned and nothing was cached.
type ExecutionError struct {
	// QueryID identifies the failed query.
	QueryID string

	// Level is the index of the query's level, leaf first.
	Level int

	// LevelType is the backend the query ran on.
	LevelType query.LevelType

	// Err is the executor's error.
	Err error
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execute query %s (level %d, %s): %v", e.QueryID, e.Level, e.LevelType, e.Err)
}

// Unwrap returns the executor's error.
func (e *ExecutionError) Unwrap() error { return e.Err }

// IsExecutionError returns true if err is or wraps an ExecutionError.
// Uses errors.As to handle wrapped errors.
func IsExecutionError(err error) bool {
	var ee *ExecutionError
	return errors.As(err, &ee)
}

// RowLimitError is returned when a query result exceeds the configured
// row limit.
type RowLimitError struct {
	QueryID string
	Rows    int
	Limit   int
}

// Error implements the error interface.
func (e *RowLimitError) Error() string {
	return fmt.Sprintf("query %s returned more than %d rows (%d read)", e.QueryID, e.Limit, e.Rows)
}

// IsRowLimitError returns true if err is or wraps a RowLimitError.
func IsRowLimitError(err error) bool {
	var re *RowLimitError
	return errors.As(err, &re)
}

// InternalError is what clients see in place of a planning invariant
// violation. Incident links it to the logged details.
type InternalError struct {
	Incident string
}

// Error implements the error interface.
func (e *InternalError) Error() string {
	return fmt.Sprintf("internal error (incident %s)", e.Incident)
}

// IsInternalError returns true if err is or wraps an InternalError.
func IsInternalError(err error) bool {
	var ie *InternalError
	return errors.As(err, &ie)
}

// Boundary converts a planning invariant violation into an InternalError,
// logging the violation together with the full plan. Other errors are
// returned unchanged.
func Boundary(err error, plan *query.MultiLevelQuery) error {
	if err == nil || !query.IsPlanningInvariantError(err) {
		return err
	}
	incident := uuid.Must(uuid.NewV7()).String()
	attrs := []any{"incident", incident, "error", err}
	if plan != nil {
		attrs = append(attrs, "plan", query.Explain(plan))
	}
	slog.Error("planning invariant violated", attrs...)
	return &InternalError{Incident: incident}
}
