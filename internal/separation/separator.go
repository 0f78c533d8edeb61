// Package separation turns planned, sliced queries into multi-level plans.
package separation

import (
	"fmt"
	"log/slog"
	"slices"
	"sort"

	"github.com/roach88/lens/internal/formula"
	"github.com/roach88/lens/internal/mutation"
	"github.com/roach88/lens/internal/planning"
	"github.com/roach88/lens/internal/query"
	"github.com/roach88/lens/internal/slicing"
)

// SlicedFormula is a planned formula together with its slices.
type SlicedFormula struct {
	planning.Formula
	Sliced slicing.SlicedFormula
}

// SlicedQuery is a plan whose formulas have all been sliced.
type SlicedQuery struct {
	Plan *planning.Plan

	Select  []SlicedFormula
	GroupBy []SlicedFormula
	OrderBy []SlicedFormula
	Filters []SlicedFormula
	JoinOn  []SlicedFormula
}

// SliceQuery slices every formula of p with its own schema.
func SliceQuery(p *planning.Plan, slicer *slicing.Slicer) (*SlicedQuery, error) {
	sliceAll := func(formulas []planning.Formula) ([]SlicedFormula, error) {
		out := make([]SlicedFormula, 0, len(formulas))
		for _, f := range formulas {
			sliced, err := slicer.Slice(f.Alias, f.Expr, f.Schema)
			if err != nil {
				return nil, err
			}
			out = append(out, SlicedFormula{Formula: f, Sliced: sliced})
		}
		return out, nil
	}

	out := &SlicedQuery{Plan: p}
	var err error
	if out.Select, err = sliceAll(p.Select); err != nil {
		return nil, err
	}
	if out.GroupBy, err = sliceAll(p.GroupBy); err != nil {
		return nil, err
	}
	if out.OrderBy, err = sliceAll(p.OrderBy); err != nil {
		return nil, err
	}
	if out.Filters, err = sliceAll(p.Filters); err != nil {
		return nil, err
	}
	if out.JoinOn, err = sliceAll(p.JoinOn); err != nil {
		return nil, err
	}
	return out, nil
}

// role is the part of a query a formula goes to.
type role int

const (
	roleSelect role = iota
	roleGroupBy
	roleOrderBy
	roleFilter
	roleJoinOn
)

// Separator assembles the levels of one sliced query.
type Separator struct{}

// QueryID returns the id of the query at (level, index) of a separation of
// topID. The top level keeps topID so the request's query ids survive; the
// other ids are derived deterministically so they can be cached.
func QueryID(topID, iteration string, level, index int, isTop bool) string {
	if isTop {
		return topID
	}
	return fmt.Sprintf("%s_%s_%d_%d", topID, iteration, level, index)
}

// Separate builds one query per level of sq's plan.
//
// A formula contributes to every level up to its own top level. Below that
// level its pieces are selected so the level above can read them; at its
// top level it takes its own role. Pieces above level 0 read the previous
// level's query, which becomes their avatar. The top level keeps the
// request's select and order by order and its limit and offset; lower
// levels are sorted by alias.
func (s *Separator) Separate(sq *SlicedQuery, iteration string) (*query.MultiLevelQuery, error) {
	src := sq.Plan.Query
	topLevel := len(sq.Plan.Levels) - 1

	parts := []struct {
		role     role
		formulas []SlicedFormula
	}{
		{roleSelect, sq.Select},
		{roleGroupBy, sq.GroupBy},
		{roleOrderBy, sq.OrderBy},
		{roleFilter, sq.Filters},
		{roleJoinOn, sq.JoinOn},
	}

	out := &query.MultiLevelQuery{}
	var prev *query.CompiledQuery
	for level, levelType := range sq.Plan.Levels {
		isTop := level == topLevel
		q := &query.CompiledQuery{
			ID:        QueryID(src.ID, iteration, level, 0, isTop),
			LevelType: levelType,
		}
		b := newLevelBuilder(isTop)

		for _, part := range parts {
			for _, sf := range part.formulas {
				formulaTop := sf.TopLevel()
				if level > formulaTop {
					continue
				}
				dest := part.role
				if level < formulaTop {
					dest = roleSelect
				}
				for _, piece := range sf.Sliced.Slices[level].Pieces {
					expr := piece.Expr
					if prev != nil {
						bound, err := bindPlaceholders(expr, prev.ID)
						if err != nil {
							return nil, err
						}
						expr = bound
					}
					cf := sf.CompiledFormula.WithExpr(piece.Alias, expr)
					if level < formulaTop || piece.Alias != sf.Alias {
						cf = intermediate(cf)
					}
					if err := b.add(dest, cf); err != nil {
						return nil, err
					}
				}
			}
		}

		b.finish(q)
		if isTop {
			q.Limit, q.Offset = src.Limit, src.Offset
		}
		if prev == nil {
			q.From = src.From
		} else {
			q.From = subqueryFrom(prev)
		}

		slog.Debug("level separated",
			"query", q.ID, "level", level, "level_type", levelType,
			"select", len(q.Select), "avatars", q.UsedAvatarIDs())

		out.Levels = append(out.Levels, query.CompiledLevel{LevelType: levelType, Queries: []*query.CompiledQuery{q}})
		prev = q
	}
	return out, nil
}

// intermediate strips the request-facing attributes of a piece that only
// feeds a higher level.
func intermediate(f query.CompiledFormula) query.CompiledFormula {
	f.FieldID = ""
	f.LegendItemID = query.NoLegendItem
	f.Direction = ""
	f.Join = nil
	return f
}

func subqueryFrom(prev *query.CompiledQuery) query.JoinedFrom {
	columns := make([]query.Column, len(prev.Select))
	for i, f := range prev.Select {
		columns[i] = query.Column{ID: f.Alias, Name: f.Alias}
	}
	return query.JoinedFrom{
		RootID: prev.ID,
		Froms:  []query.FromObject{query.SubqueryFrom{ID: prev.ID, QueryID: prev.ID, Columns: columns}},
	}
}

// bindPlaceholders points every placeholder field of expr at the query that
// produces it.
func bindPlaceholders(expr formula.Node, queryID string) (formula.Node, error) {
	bind := mutation.NewPass("bind_placeholders",
		func(n formula.Node, _ []formula.Node) bool {
			return slicing.IsPlaceholder(n)
		},
		func(n formula.Node, _ []formula.Node) (formula.Node, error) {
			return &formula.Field{Name: n.(*formula.Field).Name, Avatar: queryID}, nil
		},
	)
	return mutation.Apply(expr, bind)
}

// levelBuilder collects the formulas of one query.
type levelBuilder struct {
	isTop bool

	// ordered holds top level select and order by formulas in request order.
	ordered map[role][]query.CompiledFormula

	// byAlias holds everything else, deduplicated by alias.
	byAlias map[role]map[string]query.CompiledFormula
}

func newLevelBuilder(isTop bool) *levelBuilder {
	return &levelBuilder{
		isTop:   isTop,
		ordered: make(map[role][]query.CompiledFormula),
		byAlias: make(map[role]map[string]query.CompiledFormula),
	}
}

func (b *levelBuilder) add(r role, f query.CompiledFormula) error {
	if b.isTop && (r == roleSelect || r == roleOrderBy) {
		b.ordered[r] = append(b.ordered[r], f)
		return nil
	}
	dict, ok := b.byAlias[r]
	if !ok {
		dict = make(map[string]query.CompiledFormula)
		b.byAlias[r] = dict
	}
	if existing, dup := dict[f.Alias]; dup {
		if !formula.Equal(existing.Expr, f.Expr) {
			return &query.PlanningInvariantError{
				Code:    query.ErrCodeAliasConflict,
				Message: "two different expressions share an alias",
				Details: map[string]string{"alias": f.Alias},
			}
		}
		return nil
	}
	dict[f.Alias] = f
	return nil
}

func (b *levelBuilder) finish(q *query.CompiledQuery) {
	sorted := func(r role) []query.CompiledFormula {
		dict := b.byAlias[r]
		aliases := make([]string, 0, len(dict))
		for alias := range dict {
			aliases = append(aliases, alias)
		}
		sort.Strings(aliases)
		out := make([]query.CompiledFormula, 0, len(aliases))
		for _, alias := range aliases {
			out = append(out, dict[alias])
		}
		return out
	}

	if b.isTop {
		q.Select = patchDuplicateAliases(b.ordered[roleSelect])
		q.OrderBy = patchDuplicateAliases(b.ordered[roleOrderBy])
	} else {
		q.Select = sorted(roleSelect)
		q.OrderBy = sorted(roleOrderBy)
	}
	q.GroupBy = sorted(roleGroupBy)
	q.Filters = sorted(roleFilter)
	q.JoinOn = sorted(roleJoinOn)
}

// patchDuplicateAliases renames repeated aliases to alias_cp0, alias_cp1 and
// so on, keeping the order.
func patchDuplicateAliases(formulas []query.CompiledFormula) []query.CompiledFormula {
	used := make(map[string]bool, len(formulas))
	out := slices.Clone(formulas)
	for i := range out {
		base := out[i].Alias
		alias := base
		for n := 0; used[alias]; n++ {
			alias = fmt.Sprintf("%s_cp%d", base, n)
		}
		out[i].Alias = alias
		used[alias] = true
	}
	return out
}
