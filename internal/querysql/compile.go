package querysql

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/roach88/lens/internal/formula"
	"github.com/roach88/lens/internal/query"
)

// Generator renders compiled queries as parameterized SQLite SELECT
// statements.
//
// Literals are always bound as ? parameters, except in GROUP BY where
// they are written as SQL literals so the grouping expression matches the
// select list. Filters with aggregates go to HAVING, the others to WHERE.
//
// Thread-safety: a Generator is immutable and safe for concurrent use.
type Generator struct {
	registry   *formula.Registry
	inputTable func(queryID string) string
}

// Option configures a Generator.
type Option func(*Generator)

// WithRegistry sets the registry that tells aggregates apart.
func WithRegistry(r *formula.Registry) Option {
	return func(g *Generator) { g.registry = r }
}

// WithInputTable sets the name of the table holding the result of a
// lower-level query. By default it is the query id.
func WithInputTable(fn func(queryID string) string) Option {
	return func(g *Generator) { g.inputTable = fn }
}

// New creates a Generator.
func New(opts ...Option) *Generator {
	g := &Generator{
		registry:   formula.DefaultRegistry(),
		inputTable: func(id string) string { return id },
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// InputTable returns the table name the generator reads the result of the
// given query from.
func (g *Generator) InputTable(queryID string) string {
	return g.inputTable(queryID)
}

// Generate converts q to SQL and its parameters.
func (g *Generator) Generate(q *query.CompiledQuery) (string, []any, error) {
	if q == nil {
		return "", nil, fmt.Errorf("cannot generate nil query")
	}
	if len(q.Select) == 0 {
		return "", nil, &GenerateError{Code: ErrCodeEmptySelect, Message: "query selects nothing", QueryID: q.ID}
	}

	sb := sq.Select().PlaceholderFormat(sq.Question)
	for _, f := range q.Select {
		sql, args, err := render(f.Expr, false)
		if err != nil {
			return "", nil, locate(err, q.ID, f.Alias)
		}
		sb = sb.Column(sq.Alias(sq.Expr(sql, args...), quoteIdent(f.Alias)))
	}

	sb, err := g.from(sb, q)
	if err != nil {
		return "", nil, locate(err, q.ID, "")
	}

	for _, f := range q.Filters {
		if formula.ContainsWindow(f.Expr) {
			return "", nil, &GenerateError{Code: ErrCodeMisplaced, Message: "window call in filter", QueryID: q.ID, Alias: f.Alias}
		}
		sql, args, err := render(f.Expr, false)
		if err != nil {
			return "", nil, locate(err, q.ID, f.Alias)
		}
		if g.registry.ContainsAggregate(f.Expr) {
			sb = sb.Having(sq.Expr(sql, args...))
		} else {
			sb = sb.Where(sq.Expr(sql, args...))
		}
	}

	for _, f := range q.GroupBy {
		sql, err := g.groupBy(q, f)
		if err != nil {
			return "", nil, locate(err, q.ID, f.Alias)
		}
		sb = sb.GroupBy(sql)
	}

	for _, f := range q.OrderBy {
		sql, args, err := render(f.Expr, false)
		if err != nil {
			return "", nil, locate(err, q.ID, f.Alias)
		}
		if f.Direction == query.Desc {
			sql += " DESC"
		}
		sb = sb.OrderByClause(sql, args...)
	}

	switch {
	case q.Limit != nil:
		sb = sb.Limit(uint64(*q.Limit))
		if q.Offset != nil {
			sb = sb.Offset(uint64(*q.Offset))
		}
	case q.Offset != nil:
		// SQLite needs a LIMIT before OFFSET.
		sb = sb.Suffix("LIMIT -1 OFFSET ?", *q.Offset)
	}

	return sb.ToSql()
}

// groupBy renders a GROUP BY item as the ordinal of the select formula
// with the same expression, or as the expression itself.
func (g *Generator) groupBy(q *query.CompiledQuery, f query.CompiledFormula) (string, error) {
	for i, s := range q.Select {
		if formula.Equal(s.Expr, f.Expr) {
			return fmt.Sprint(i + 1), nil
		}
	}
	sql, _, err := render(f.Expr, true)
	return sql, err
}

func (g *Generator) from(sb sq.SelectBuilder, q *query.CompiledQuery) (sq.SelectBuilder, error) {
	if len(q.From.Froms) == 0 {
		return sb, nil
	}
	root, ok := q.From.Find(q.From.RootID)
	if !ok {
		return sb, newGenerateError(ErrCodeMisplaced, "root %q is not among the from objects", q.From.RootID)
	}
	sb = sb.From(g.source(root))

	for _, f := range q.From.Froms {
		if f.FromID() == q.From.RootID {
			continue
		}
		var conds []string
		var args []any
		joinType := query.JoinInner
		for _, on := range q.JoinOn {
			if on.Join == nil || on.Join.RightID != f.FromID() {
				continue
			}
			sql, onArgs, err := render(on.Expr, false)
			if err != nil {
				return sb, locate(err, q.ID, on.Alias)
			}
			if len(conds) == 0 {
				joinType = on.Join.JoinType
			}
			conds = append(conds, sql)
			args = append(args, onArgs...)
		}
		if len(conds) == 0 {
			sb = sb.JoinClause("CROSS JOIN " + g.source(f))
			continue
		}
		sb = sb.JoinClause(joinKeyword(joinType)+" "+g.source(f)+" ON "+strings.Join(conds, " AND "), args...)
	}
	return sb, nil
}

func (g *Generator) source(f query.FromObject) string {
	switch from := f.(type) {
	case query.AvatarFrom:
		return quoteIdent(from.Table) + " AS " + quoteIdent(from.ID)
	case query.SubqueryFrom:
		return quoteIdent(g.inputTable(from.QueryID)) + " AS " + quoteIdent(from.ID)
	default:
		panic(fmt.Sprintf("querysql: unknown from object %T", f))
	}
}

func joinKeyword(t query.JoinType) string {
	switch t {
	case query.JoinLeft:
		return "LEFT JOIN"
	case query.JoinRight:
		return "RIGHT JOIN"
	case query.JoinFull:
		return "FULL JOIN"
	default:
		return "JOIN"
	}
}
