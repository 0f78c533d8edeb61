// Package query defines compiled query plans.
//
// A CompiledQuery is one SELECT against one backend. A MultiLevelQuery is an
// ordered list of levels, leaf first; every query of a level may read the
// results of queries on lower levels through SubqueryFrom entries.
//
// Plan values are built once per request and never modified afterwards.
// Transformations (slicing, separation) build new plans.
package query

import (
	"slices"

	"github.com/roach88/lens/internal/formula"
)

// LevelType names the backend a level executes on.
type LevelType string

const (
	// SourceDB executes on the data source itself.
	SourceDB LevelType = "source_db"

	// Compeng executes on the secondary compute engine over lower-level
	// results.
	Compeng LevelType = "compeng"
)

// Direction is an ORDER BY direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// JoinType is the kind of join between two avatars.
type JoinType string

const (
	JoinInner JoinType = "inner"
	JoinLeft  JoinType = "left"
	JoinRight JoinType = "right"
	JoinFull  JoinType = "full"
)

// NoLegendItem marks formulas that do not produce a legend item, such as
// intermediate pieces on lower levels.
const NoLegendItem = -1

// JoinCondition describes which avatars a JOIN ON formula connects.
type JoinCondition struct {
	LeftID   string
	RightID  string
	JoinType JoinType
}

// CompiledFormula is an expression with the alias it is selected under and
// the avatars it reads.
type CompiledFormula struct {
	Expr  formula.Node
	Alias string

	// AvatarIDs is the sorted set of avatar (or lower-level query) ids that
	// Expr reads from.
	AvatarIDs []string

	// FieldID is the id of the field this formula was compiled from. Empty
	// for pieces created by slicing.
	FieldID string

	// LegendItemID links the formula to its legend item, or NoLegendItem.
	LegendItemID int

	// Direction is set for ORDER BY formulas.
	Direction Direction

	// Join is set for JOIN ON formulas.
	Join *JoinCondition
}

// NewFormula builds a formula whose AvatarIDs are derived from expr.
func NewFormula(alias string, expr formula.Node) CompiledFormula {
	return CompiledFormula{
		Expr:         expr,
		Alias:        alias,
		AvatarIDs:    formula.AvatarIDs(expr),
		LegendItemID: NoLegendItem,
	}
}

// WithExpr returns a copy of f with a new expression and recomputed
// AvatarIDs.
func (f CompiledFormula) WithExpr(alias string, expr formula.Node) CompiledFormula {
	f.Expr = expr
	f.Alias = alias
	f.AvatarIDs = formula.AvatarIDs(expr)
	return f
}

// FromObject is a sealed interface over the entries of a join spec.
//
// From types:
//   - AvatarFrom: a table instance of the data source
//   - SubqueryFrom: the result of a lower-level query
type FromObject interface {
	fromObject()

	// FromID is the id formulas use as field avatar.
	FromID() string
}

// Column is one column a from object exposes.
type Column struct {
	ID   string
	Name string
}

// AvatarFrom is a joinable instance of a physical table.
type AvatarFrom struct {
	ID      string
	Table   string
	Columns []Column
}

func (AvatarFrom) fromObject()      {}
func (a AvatarFrom) FromID() string { return a.ID }

// SubqueryFrom reads the result of the lower-level query QueryID.
type SubqueryFrom struct {
	ID      string
	QueryID string
	Columns []Column
}

func (SubqueryFrom) fromObject()      {}
func (s SubqueryFrom) FromID() string { return s.ID }

// JoinedFrom is the join spec of a query: the root from object and every
// from object taking part in the join, in order.
type JoinedFrom struct {
	RootID string
	Froms  []FromObject
}

// Find returns the from object with the given id.
func (j JoinedFrom) Find(id string) (FromObject, bool) {
	for _, f := range j.Froms {
		if f.FromID() == id {
			return f, true
		}
	}
	return nil, false
}

// SubqueryIDs returns the ids of the queries this join spec reads from, in
// order.
func (j JoinedFrom) SubqueryIDs() []string {
	var out []string
	for _, f := range j.Froms {
		if sub, ok := f.(SubqueryFrom); ok {
			out = append(out, sub.QueryID)
		}
	}
	return out
}

// CompiledQuery is one SELECT of a plan.
type CompiledQuery struct {
	ID        string
	LevelType LevelType

	Select  []CompiledFormula
	GroupBy []CompiledFormula
	OrderBy []CompiledFormula
	Filters []CompiledFormula
	JoinOn  []CompiledFormula

	From JoinedFrom

	// Limit and Offset are nil when not set.
	Limit  *int
	Offset *int
}

// AllFormulas returns every formula of q: select, group by, order by,
// filters, join on.
func (q *CompiledQuery) AllFormulas() []CompiledFormula {
	out := make([]CompiledFormula, 0, len(q.Select)+len(q.GroupBy)+len(q.OrderBy)+len(q.Filters)+len(q.JoinOn))
	out = append(out, q.Select...)
	out = append(out, q.GroupBy...)
	out = append(out, q.OrderBy...)
	out = append(out, q.Filters...)
	out = append(out, q.JoinOn...)
	return out
}

// UsedAvatarIDs returns the sorted set of avatar ids read by any formula
// of q.
func (q *CompiledQuery) UsedAvatarIDs() []string {
	var out []string
	for _, f := range q.AllFormulas() {
		out = append(out, formula.AvatarIDs(f.Expr)...)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// SelectAliases returns the aliases of the select list, in order.
func (q *CompiledQuery) SelectAliases() []string {
	out := make([]string, len(q.Select))
	for i, f := range q.Select {
		out[i] = f.Alias
	}
	return out
}

// CompiledLevel is a set of queries that share a backend and do not depend
// on each other.
type CompiledLevel struct {
	LevelType LevelType
	Queries   []*CompiledQuery
}

// MultiLevelQuery is an ordered list of levels, leaf first.
type MultiLevelQuery struct {
	Levels []CompiledLevel
}

// Single wraps one query into a one-level plan.
func Single(q *CompiledQuery) *MultiLevelQuery {
	return &MultiLevelQuery{Levels: []CompiledLevel{{LevelType: q.LevelType, Queries: []*CompiledQuery{q}}}}
}

// TopQueryIDs returns the sorted ids of the top level queries.
func (m *MultiLevelQuery) TopQueryIDs() []string {
	if len(m.Levels) == 0 {
		return nil
	}
	return queryIDs(m.Levels[len(m.Levels)-1].Queries)
}

// LeafAvatarIDs returns the sorted set of avatar ids used by the leaf level.
func (m *MultiLevelQuery) LeafAvatarIDs() []string {
	if len(m.Levels) == 0 {
		return nil
	}
	var out []string
	for _, q := range m.Levels[0].Queries {
		out = append(out, q.UsedAvatarIDs()...)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Query returns the query with the given id.
func (m *MultiLevelQuery) Query(id string) (*CompiledQuery, bool) {
	for _, level := range m.Levels {
		for _, q := range level.Queries {
			if q.ID == id {
				return q, true
			}
		}
	}
	return nil, false
}

// Queries returns every query of the plan, leaf level first.
func (m *MultiLevelQuery) Queries() []*CompiledQuery {
	var out []*CompiledQuery
	for _, level := range m.Levels {
		out = append(out, level.Queries...)
	}
	return out
}

func queryIDs(queries []*CompiledQuery) []string {
	out := make([]string, len(queries))
	for i, q := range queries {
		out[i] = q.ID
	}
	slices.Sort(out)
	return out
}
