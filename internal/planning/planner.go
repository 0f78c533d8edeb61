// Package planning decides, per formula, which execution levels it spans and
// how it is sliced across them.
//
// A Planner looks at a whole compiled query and returns a Plan: the level
// types of the query and, for every formula, the prefix of those levels the
// formula occupies together with the slicing schema that cuts it. Planners
// are pure and keep no state between calls.
package planning

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/lens/internal/formula"
	"github.com/roach88/lens/internal/query"
	"github.com/roach88/lens/internal/slicing"
)

// Formula is a compiled formula with its level plan and slicing schema.
// Levels is a prefix of the query's levels and len(Schema) == len(Levels).
type Formula struct {
	query.CompiledFormula

	Levels []query.LevelType
	Schema slicing.Schema
}

// TopLevel returns the index of the highest level the formula reaches.
func (f Formula) TopLevel() int {
	return len(f.Levels) - 1
}

// Plan is a query with every formula planned.
type Plan struct {
	Query  *query.CompiledQuery
	Levels []query.LevelType

	Select  []Formula
	GroupBy []Formula
	OrderBy []Formula
	Filters []Formula
	JoinOn  []Formula
}

// All returns every planned formula.
func (p *Plan) All() []Formula {
	out := make([]Formula, 0, len(p.Select)+len(p.GroupBy)+len(p.OrderBy)+len(p.Filters)+len(p.JoinOn))
	out = append(out, p.Select...)
	out = append(out, p.GroupBy...)
	out = append(out, p.OrderBy...)
	out = append(out, p.Filters...)
	out = append(out, p.JoinOn...)
	return out
}

// Validate checks that every formula's levels are a prefix of the plan's
// and that its schema matches its level count.
func (p *Plan) Validate() error {
	if len(p.Levels) == 0 {
		return &query.PlanningInvariantError{Code: query.ErrCodeEmptyPlan, Message: "plan has no levels"}
	}
	for _, f := range p.All() {
		if len(f.Levels) == 0 || len(f.Levels) > len(p.Levels) || !slices.Equal(f.Levels, p.Levels[:len(f.Levels)]) {
			return &query.PlanningInvariantError{
				Code:    query.ErrCodeLevelTypeMismatch,
				Message: "formula levels are not a prefix of the query levels",
				Details: map[string]string{"alias": f.Alias},
			}
		}
		if len(f.Schema) != len(f.Levels) {
			return &query.PlanningInvariantError{
				Code:    query.ErrCodeLevelTypeMismatch,
				Message: fmt.Sprintf("schema has %d boundaries for %d levels", len(f.Schema), len(f.Levels)),
				Details: map[string]string{"alias": f.Alias},
			}
		}
	}
	return nil
}

// Planner plans a compiled query.
type Planner interface {
	// Name identifies the planner in logs and query ids.
	Name() string

	// Plan assigns levels and slicing schemas to every formula of q.
	Plan(q *query.CompiledQuery) (*Plan, error)
}

// UnresolvableTagOrderError reports level tags that cannot be put in one
// chain, such as ({a},0) and ({b},0).
type UnresolvableTagOrderError struct {
	Tags []*formula.LevelTag
}

// Error implements the error interface.
func (e *UnresolvableTagOrderError) Error() string {
	parts := make([]string, len(e.Tags))
	for i, t := range e.Tags {
		parts[i] = t.String()
	}
	return fmt.Sprintf("UNRESOLVABLE_TAG_ORDER: level tags cannot be ordered: %s", strings.Join(parts, ", "))
}

// IsUnresolvableTagOrder returns true if err is or wraps an
// UnresolvableTagOrderError.
func IsUnresolvableTagOrder(err error) bool {
	var te *UnresolvableTagOrderError
	return errors.As(err, &te)
}

func plan(f query.CompiledFormula, levels []query.LevelType, schema slicing.Schema) Formula {
	return Formula{CompiledFormula: f, Levels: levels, Schema: schema}
}

func planAll(formulas []query.CompiledFormula, fn func(query.CompiledFormula) (Formula, error)) ([]Formula, error) {
	out := make([]Formula, 0, len(formulas))
	for _, f := range formulas {
		p, err := fn(f)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// noWindows wraps fn to reject formulas with window calls in clause.
func noWindows(env *slicing.InspectionEnv, clause string, fn func(query.CompiledFormula) (Formula, error)) func(query.CompiledFormula) (Formula, error) {
	return func(f query.CompiledFormula) (Formula, error) {
		if env.ContainsWindow(f.Expr) {
			return Formula{}, formula.WithAlias(
				formula.NewCompileError(formula.ErrCodeMalformed, "window functions are not allowed in %s", clause), f.Alias)
		}
		return fn(f)
	}
}

func newPlan(q *query.CompiledQuery, levels []query.LevelType) *Plan {
	return &Plan{Query: q, Levels: levels}
}

// collectTags returns the deduplicated level tags of every formula of q.
func collectTags(q *query.CompiledQuery, env *slicing.InspectionEnv) []*formula.LevelTag {
	var out []*formula.LevelTag
	for _, f := range q.AllFormulas() {
	next:
		for _, tag := range slicing.CollectTags(f.Expr, env) {
			for _, seen := range out {
				if seen.Equal(tag) {
					continue next
				}
			}
			out = append(out, tag)
		}
	}
	return out
}
