package separation

import (
	"fmt"
	"log/slog"

	"github.com/roach88/lens/internal/planning"
	"github.com/roach88/lens/internal/query"
	"github.com/roach88/lens/internal/slicing"
)

// Chain is a sequence of planners that re-slice every level of one type.
type Chain struct {
	LevelType query.LevelType
	Planners  []planning.Planner
}

// RecursiveSlicer plans, slices and separates a query, then re-slices the
// resulting levels with per-level-type planner chains.
type RecursiveSlicer struct {
	initial   planning.Planner
	chains    []Chain
	slicer    *slicing.Slicer
	separator *Separator
}

// NewRecursiveSlicer creates a slicer that runs initial first and then each
// chain in order. A nil env uses the default registry.
func NewRecursiveSlicer(initial planning.Planner, chains []Chain, env *slicing.InspectionEnv) *RecursiveSlicer {
	return &RecursiveSlicer{
		initial:   initial,
		chains:    chains,
		slicer:    slicing.NewSlicer(env),
		separator: &Separator{},
	}
}

// SliceRecursively turns q into a multi-level plan.
//
// Every step is checked: levels stay homogeneous, the top level holds
// exactly q's id and the leaf level reads exactly q's avatars. A violation
// is returned as a *query.PlanningInvariantError.
func (r *RecursiveSlicer) SliceRecursively(q *query.CompiledQuery) (*query.MultiLevelQuery, error) {
	topIDs := []string{q.ID}
	leafAvatars := q.UsedAvatarIDs()

	plan, err := r.sliceOnce(r.initial, q, "0")
	if err != nil {
		return nil, err
	}
	if err := plan.CheckPreserved(topIDs, leafAvatars); err != nil {
		return nil, fmt.Errorf("%s: %w", r.initial.Name(), err)
	}

	step := 1
	for _, chain := range r.chains {
		for _, planner := range chain.Planners {
			next, err := r.resliceLevels(plan, chain.LevelType, planner, fmt.Sprint(step))
			if err != nil {
				return nil, err
			}
			if err := next.CheckPreserved(topIDs, leafAvatars); err != nil {
				return nil, fmt.Errorf("%s on %s levels: %w", planner.Name(), chain.LevelType, err)
			}
			slog.Debug("levels resliced",
				"query", q.ID, "planner", planner.Name(), "level_type", chain.LevelType,
				"levels_before", len(plan.Levels), "levels_after", len(next.Levels))
			plan = next
			step++
		}
	}
	return plan, nil
}

// sliceOnce runs one plan, slice, separate iteration on q.
func (r *RecursiveSlicer) sliceOnce(planner planning.Planner, q *query.CompiledQuery, iteration string) (*query.MultiLevelQuery, error) {
	p, err := planner.Plan(q)
	if err != nil {
		return nil, fmt.Errorf("plan %s with %s: %w", q.ID, planner.Name(), err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("plan %s with %s: %w", q.ID, planner.Name(), err)
	}
	sq, err := SliceQuery(p, r.slicer)
	if err != nil {
		return nil, fmt.Errorf("slice %s: %w", q.ID, err)
	}
	return r.separator.Separate(sq, iteration)
}

// resliceLevels replaces every level of type levelType with the levels its
// queries are re-sliced into. Sub-levels of several queries are aligned at
// the top so that every query's top stays on the last sub-level.
func (r *RecursiveSlicer) resliceLevels(
	plan *query.MultiLevelQuery,
	levelType query.LevelType,
	planner planning.Planner,
	iteration string,
) (*query.MultiLevelQuery, error) {
	out := &query.MultiLevelQuery{}
	for _, level := range plan.Levels {
		if level.LevelType != levelType {
			out.Levels = append(out.Levels, level)
			continue
		}

		subs := make([]*query.MultiLevelQuery, 0, len(level.Queries))
		depth := 0
		for _, q := range level.Queries {
			sub, err := r.sliceOnce(planner, q, iteration)
			if err != nil {
				return nil, err
			}
			for _, subLevel := range sub.Levels {
				if subLevel.LevelType != levelType {
					return nil, &query.PlanningInvariantError{
						Code:    query.ErrCodeLevelTypeMismatch,
						Message: fmt.Sprintf("re-slicing a %s level produced a %s level", levelType, subLevel.LevelType),
						Details: map[string]string{"query": q.ID, "planner": planner.Name()},
					}
				}
			}
			// The sub-plan reads what q read from the lower levels of plan.
			if err := sub.CheckPreserved([]string{q.ID}, q.UsedAvatarIDs(), q.From.SubqueryIDs()...); err != nil {
				return nil, fmt.Errorf("%s on %s: %w", planner.Name(), q.ID, err)
			}
			subs = append(subs, sub)
			depth = max(depth, len(sub.Levels))
		}

		merged := make([]query.CompiledLevel, depth)
		for i := range merged {
			merged[i].LevelType = levelType
		}
		for _, sub := range subs {
			offset := depth - len(sub.Levels)
			for i, subLevel := range sub.Levels {
				merged[offset+i].Queries = append(merged[offset+i].Queries, subLevel.Queries...)
			}
		}
		out.Levels = append(out.Levels, merged...)
	}
	return out, nil
}
