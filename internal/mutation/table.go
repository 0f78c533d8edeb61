package mutation

import (
	"sort"

	"github.com/roach88/lens/internal/dialect"
	"github.com/roach88/lens/internal/formula"
)

// UnaryFoldFunc evaluates a single-argument predicate on a literal. The
// second result is false when the function declines to fold.
type UnaryFoldFunc func(v formula.Value) (formula.Value, bool)

// FoldTable maps operation name -> dialect set -> fold function.
// The dialect.Default key holds the dialect-agnostic entry.
//
// A table is built per compiler and never shared through package state.
type FoldTable map[string]map[dialect.Set]UnaryFoldFunc

// DefaultFoldTable returns a fresh table with the null checks every compiler
// needs. Oracle treats the empty string as NULL.
func DefaultFoldTable() FoldTable {
	isNull := func(v formula.Value) (formula.Value, bool) {
		_, null := v.(formula.Null)
		return formula.Boolean(null), true
	}
	isNullOrEmpty := func(v formula.Value) (formula.Value, bool) {
		if s, ok := v.(formula.String); ok && s == "" {
			return formula.Boolean(true), true
		}
		return isNull(v)
	}
	negate := func(fn UnaryFoldFunc) UnaryFoldFunc {
		return func(v formula.Value) (formula.Value, bool) {
			out, ok := fn(v)
			if !ok {
				return nil, false
			}
			return !out.(formula.Boolean), true
		}
	}

	t := FoldTable{}
	t.Register("isnull", dialect.Default, isNull)
	t.Register("isnull", dialect.NewSet(dialect.Oracle), isNullOrEmpty)
	t.Register("isnotnull", dialect.Default, negate(isNull))
	t.Register("isnotnull", dialect.NewSet(dialect.Oracle), negate(isNullOrEmpty))
	return t
}

// Register adds or replaces the entry for (op, set).
func (t FoldTable) Register(op string, set dialect.Set, fn UnaryFoldFunc) {
	byDialect, ok := t[op]
	if !ok {
		byDialect = make(map[dialect.Set]UnaryFoldFunc)
		t[op] = byDialect
	}
	byDialect[set] = fn
}

// Lookup returns the fold function for op under d. Specific dialect sets win
// over the default entry; among several matching sets the smallest set value
// wins so the result does not depend on map order.
func (t FoldTable) Lookup(op string, d dialect.Dialect) (UnaryFoldFunc, bool) {
	byDialect, ok := t[op]
	if !ok {
		return nil, false
	}

	sets := make([]dialect.Set, 0, len(byDialect))
	for s := range byDialect {
		if s != dialect.Default && s.Contains(d) {
			sets = append(sets, s)
		}
	}
	if len(sets) > 0 {
		sort.Slice(sets, func(i, j int) bool { return sets[i] < sets[j] })
		return byDialect[sets[0]], true
	}

	fn, ok := byDialect[dialect.Default]
	return fn, ok
}
