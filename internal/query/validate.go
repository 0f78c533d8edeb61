package query

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// PlanningInvariantError reports a plan that slicing or separation left in
// an inconsistent state. It is an internal error: it is logged with the plan
// and never shown to the client verbatim.
type PlanningInvariantError struct {
	// Code identifies the violated invariant.
	Code PlanningInvariantCode

	// Message is a human-readable description.
	Message string

	// Details contains additional context.
	Details map[string]string
}

// PlanningInvariantCode categorizes planning invariant violations.
type PlanningInvariantCode string

const (
	// ErrCodeEmptyPlan indicates a plan or level without queries.
	ErrCodeEmptyPlan PlanningInvariantCode = "EMPTY_PLAN"

	// ErrCodeLevelTypeMismatch indicates a query whose level type differs
	// from its level's.
	ErrCodeLevelTypeMismatch PlanningInvariantCode = "LEVEL_TYPE_MISMATCH"

	// ErrCodeDuplicateQueryID indicates two queries with one id.
	ErrCodeDuplicateQueryID PlanningInvariantCode = "DUPLICATE_QUERY_ID"

	// ErrCodeDanglingSubquery indicates a subquery reference to a query that
	// is not on a lower level.
	ErrCodeDanglingSubquery PlanningInvariantCode = "DANGLING_SUBQUERY"

	// ErrCodeAliasConflict indicates two different expressions selected
	// under one alias in one query.
	ErrCodeAliasConflict PlanningInvariantCode = "ALIAS_CONFLICT"

	// ErrCodeTopQueriesChanged indicates the top level query ids differ from
	// the request's.
	ErrCodeTopQueriesChanged PlanningInvariantCode = "TOP_QUERIES_CHANGED"

	// ErrCodeLeafAvatarsChanged indicates the leaf level avatar ids differ
	// from the request's.
	ErrCodeLeafAvatarsChanged PlanningInvariantCode = "LEAF_AVATARS_CHANGED"
)

// Error implements the error interface.
func (e *PlanningInvariantError) Error() string {
	if len(e.Details) == 0 {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	keys := make([]string, 0, len(e.Details))
	for k := range e.Details {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + e.Details[k]
	}
	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, strings.Join(parts, ", "))
}

// IsPlanningInvariantError returns true if err is or wraps a
// PlanningInvariantError.
func IsPlanningInvariantError(err error) bool {
	var pe *PlanningInvariantError
	return errors.As(err, &pe)
}

func newInvariantError(code PlanningInvariantCode, details map[string]string, format string, args ...any) *PlanningInvariantError {
	return &PlanningInvariantError{Code: code, Message: fmt.Sprintf(format, args...), Details: details}
}

// Validate checks the structural invariants of m: no empty levels, one
// level type per level, unique query ids, and subquery references that point
// at lower levels only.
func (m *MultiLevelQuery) Validate() error {
	return m.ValidateOver(nil)
}

// ValidateOver is Validate for a plan that is embedded in a larger one:
// inputs are ids of queries outside m, below its leaf level, that its
// queries may read.
func (m *MultiLevelQuery) ValidateOver(inputs []string) error {
	if len(m.Levels) == 0 {
		return newInvariantError(ErrCodeEmptyPlan, nil, "plan has no levels")
	}

	seen := make(map[string]int, len(inputs))
	for _, id := range inputs {
		seen[id] = -1
	}
	for idx, level := range m.Levels {
		if len(level.Queries) == 0 {
			return newInvariantError(ErrCodeEmptyPlan,
				map[string]string{"level": fmt.Sprint(idx)}, "level has no queries")
		}
		for _, q := range level.Queries {
			if q.LevelType != level.LevelType {
				return newInvariantError(ErrCodeLevelTypeMismatch,
					map[string]string{"level": fmt.Sprint(idx), "query": q.ID},
					"query level type %s in %s level", q.LevelType, level.LevelType)
			}
			for _, sub := range q.From.SubqueryIDs() {
				subLevel, ok := seen[sub]
				if !ok || subLevel >= idx {
					return newInvariantError(ErrCodeDanglingSubquery,
						map[string]string{"level": fmt.Sprint(idx), "query": q.ID, "subquery": sub},
						"subquery is not on a lower level")
				}
			}
		}
		for _, q := range level.Queries {
			if _, dup := seen[q.ID]; dup {
				return newInvariantError(ErrCodeDuplicateQueryID,
					map[string]string{"query": q.ID}, "query id used twice")
			}
			seen[q.ID] = idx
		}
	}
	return nil
}

// CheckPreserved verifies that m still answers the request it was built
// from: the top level holds exactly topIDs and the leaf level reads exactly
// leafAvatarIDs. Both slices must be sorted. inputs are passed to
// ValidateOver.
func (m *MultiLevelQuery) CheckPreserved(topIDs, leafAvatarIDs []string, inputs ...string) error {
	if err := m.ValidateOver(inputs); err != nil {
		return err
	}
	if got := m.TopQueryIDs(); !slices.Equal(got, topIDs) {
		return newInvariantError(ErrCodeTopQueriesChanged,
			map[string]string{"want": strings.Join(topIDs, ","), "got": strings.Join(got, ",")},
			"top level query ids changed")
	}
	if got := m.LeafAvatarIDs(); !slices.Equal(got, leafAvatarIDs) {
		return newInvariantError(ErrCodeLeafAvatarsChanged,
			map[string]string{"want": strings.Join(leafAvatarIDs, ","), "got": strings.Join(got, ",")},
			"leaf level avatar ids changed")
	}
	return nil
}
