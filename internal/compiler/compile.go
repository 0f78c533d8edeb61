// Package compiler turns a request legend into a multi-level query plan.
//
// Compile builds one flat CompiledQuery from the legend: dataset field
// references are expanded, every legend item becomes a select, order by or
// filter formula, and the result is normalised by the mutation passes. Plan
// then runs the recursive slicer with the planners the dialect calls for.
// Both steps are pure; the same inputs and id generator give the same plan.
package compiler

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/lens/internal/dialect"
	"github.com/roach88/lens/internal/formula"
	"github.com/roach88/lens/internal/legend"
	"github.com/roach88/lens/internal/mutation"
	"github.com/roach88/lens/internal/planning"
	"github.com/roach88/lens/internal/query"
	"github.com/roach88/lens/internal/separation"
	"github.com/roach88/lens/internal/slicing"
)

// Compiler compiles requests for one source dialect.
type Compiler struct {
	dialect   dialect.Dialect
	ids       IDGenerator
	foldTable mutation.FoldTable
	env       *slicing.InspectionEnv
	compeng   bool
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithIDGenerator sets the generator of top query ids.
func WithIDGenerator(g IDGenerator) Option {
	return func(c *Compiler) { c.ids = g }
}

// WithFoldTable replaces the default unary fold table.
func WithFoldTable(t mutation.FoldTable) Option {
	return func(c *Compiler) { c.foldTable = t }
}

// WithRegistry sets the function registry used to find aggregates.
func WithRegistry(r *formula.Registry) Option {
	return func(c *Compiler) { c.env = &slicing.InspectionEnv{Registry: r} }
}

// WithCompengMode makes the source database only read and prefilter
// columns; everything else is computed in the compute engine.
func WithCompengMode() Option {
	return func(c *Compiler) { c.compeng = true }
}

// New creates a compiler for dialect d.
func New(d dialect.Dialect, opts ...Option) *Compiler {
	c := &Compiler{
		dialect:   d,
		ids:       UUIDv7Generator{},
		foldTable: mutation.DefaultFoldTable(),
		env:       slicing.NewInspectionEnv(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dialect returns the source dialect.
func (c *Compiler) Dialect() dialect.Dialect { return c.dialect }

// CompileAndPlan compiles l against ds and plans the result.
func (c *Compiler) CompileAndPlan(ds *Dataset, l *legend.Legend) (*query.MultiLevelQuery, error) {
	q, err := c.Compile(ds, l)
	if err != nil {
		return nil, err
	}
	return c.Plan(q)
}

// Compile builds the single-level query of l.
//
// The dataset and the legend are validated first; every problem found is
// returned, joined. Parameter items replace the fields they name with their
// value.
func (c *Compiler) Compile(ds *Dataset, l *legend.Legend) (*query.CompiledQuery, error) {
	return c.compile(ds, l, nil, nil)
}

func (c *Compiler) compile(ds *Dataset, l *legend.Legend, limit, offset *int) (*query.CompiledQuery, error) {
	if errs := append(ValidateDataset(ds), ValidateRequest(ds, l)...); len(errs) > 0 {
		return nil, fmt.Errorf("invalid request: %w", joinValidation(errs))
	}

	params := make(map[string]formula.Value)
	for _, it := range l.ForRole(legend.RoleParameter) {
		params[it.FieldID] = it.Value
	}
	b := &queryBuilder{
		compiler: c,
		resolver: newResolver(ds, params),
		q: &query.CompiledQuery{
			ID:        c.ids.Generate(),
			LevelType: query.SourceDB,
			Limit:     limit,
			Offset:    offset,
		},
	}

	for _, it := range l.Items {
		if err := b.addItem(it); err != nil {
			return nil, fmt.Errorf("legend item %d: %w", it.ID, err)
		}
	}
	b.addGroupBy(len(l.ForRole(legend.RoleDistinct)) > 0)
	if err := b.addJoins(ds); err != nil {
		return nil, err
	}
	if err := b.normalize(); err != nil {
		return nil, err
	}

	slog.Debug("query compiled",
		"query", b.q.ID, "select", len(b.q.Select), "filters", len(b.q.Filters),
		"group_by", len(b.q.GroupBy), "avatars", len(b.q.From.Froms))
	return b.q, nil
}

// Plan slices q into the levels its dialect can execute.
func (c *Compiler) Plan(q *query.CompiledQuery) (*query.MultiLevelQuery, error) {
	plan, err := c.slicer().SliceRecursively(q)
	if err != nil {
		return nil, err
	}
	slog.Info("query planned", "query", q.ID, "dialect", c.dialect, "levels", len(plan.Levels), "queries", len(plan.Queries()))
	return plan, nil
}

func (c *Compiler) slicer() *separation.RecursiveSlicer {
	var initial planning.Planner
	switch {
	case c.compeng:
		initial = planning.PrefilterAndCompeng{Env: c.env}
	case !c.dialect.Capabilities().WindowFunctions:
		initial = planning.WindowToCompeng{Env: c.env}
	default:
		initial = planning.SingleLevel{LevelType: query.SourceDB, Env: c.env}
	}
	chains := []separation.Chain{
		{LevelType: query.SourceDB, Planners: []planning.Planner{planning.NestedLevelTag{LevelType: query.SourceDB, Env: c.env}}},
		{LevelType: query.Compeng, Planners: []planning.Planner{planning.NestedLevelTag{LevelType: query.Compeng, Env: c.env}}},
	}
	return separation.NewRecursiveSlicer(initial, chains, c.env)
}

// BlockPlan is the compiled plan of one block. Plan is nil for blocks that
// always produce one constant row.
type BlockPlan struct {
	Block legend.Block
	Plan  *query.MultiLevelQuery
}

// CompileBlocks compiles and plans every block of b, root first.
func (c *Compiler) CompileBlocks(ds *Dataset, b *legend.BlockLegend) ([]BlockPlan, error) {
	out := make([]BlockPlan, 0, len(b.Blocks))
	for _, block := range b.Blocks {
		if block.EmptyRow {
			out = append(out, BlockPlan{Block: block})
			continue
		}
		limit, offset := block.Limit, block.Offset
		if block.ParentID == nil {
			limit, offset = firstSet(limit, b.Limit), firstSet(offset, b.Offset)
		}
		q, err := c.compile(ds, block.Legend, limit, offset)
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", block.ID, err)
		}
		plan, err := c.Plan(q)
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", block.ID, err)
		}
		out = append(out, BlockPlan{Block: block, Plan: plan})
	}
	return out, nil
}

func firstSet(values ...*int) *int {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

func joinValidation(errs []ValidationError) error {
	out := make([]error, len(errs))
	for i, e := range errs {
		out[i] = e
	}
	return errors.Join(out...)
}

// queryBuilder accumulates the formulas of one compiled query.
type queryBuilder struct {
	compiler *Compiler
	resolver *resolver
	q        *query.CompiledQuery
}

func (b *queryBuilder) addItem(it legend.Item) error {
	if it.Kind == legend.KindMeasureName || it.Kind == legend.KindDimensionName {
		return nil
	}

	switch it.Role {
	case legend.RoleParameter:
		return nil
	case legend.RoleTotal:
		b.addSelect(it, formula.Lit(""))
		return nil
	case legend.RoleTemplate:
		b.addSelect(it, formula.Lit(it.Template))
		return nil
	}

	expr, err := b.resolver.field(it.FieldID)
	if err != nil {
		return err
	}

	switch it.Role {
	case legend.RoleRange:
		b.addSelect(it, formula.Call("min", expr))
		b.addSelect(it, formula.Call("max", expr))
	case legend.RoleOrderBy:
		f := b.formula(fmt.Sprintf("ord_%d", len(b.q.OrderBy)), it, expr)
		f.Direction = it.Direction
		b.q.OrderBy = append(b.q.OrderBy, f)
	case legend.RoleFilter:
		cond, err := filterExpr(expr, it.Filter)
		if err != nil {
			return err
		}
		b.q.Filters = append(b.q.Filters, b.formula(fmt.Sprintf("flt_%d", len(b.q.Filters)), it, cond))
	default:
		b.addSelect(it, expr)
	}
	return nil
}

func (b *queryBuilder) addSelect(it legend.Item, expr formula.Node) {
	b.q.Select = append(b.q.Select, b.formula(fmt.Sprintf("res_%d", len(b.q.Select)), it, expr))
}

func (b *queryBuilder) formula(alias string, it legend.Item, expr formula.Node) query.CompiledFormula {
	f := query.NewFormula(alias, expr)
	f.FieldID = it.FieldID
	f.LegendItemID = it.ID
	return f
}

// addGroupBy groups by every select that is neither an aggregate nor a
// constant, when the query aggregates or asks for distinct values.
func (b *queryBuilder) addGroupBy(distinct bool) {
	env := b.compiler.env
	aggregated := slices.ContainsFunc(b.q.Select, func(f query.CompiledFormula) bool {
		return env.ContainsAggregate(f.Expr)
	}) || slices.ContainsFunc(b.q.OrderBy, func(f query.CompiledFormula) bool {
		return env.ContainsAggregate(f.Expr)
	})
	if !aggregated && !distinct {
		return
	}

	seen := make(map[string]bool)
	for _, f := range b.q.Select {
		if env.ContainsAggregate(f.Expr) || formula.IsConstant(f.Expr) || env.ContainsWindow(f.Expr) {
			continue
		}
		key := formula.Hash(f.Expr)
		if seen[key] {
			continue
		}
		seen[key] = true
		grp := query.NewFormula(fmt.Sprintf("grp_%d", len(b.q.GroupBy)), f.Expr)
		grp.FieldID = f.FieldID
		b.q.GroupBy = append(b.q.GroupBy, grp)
	}
}

// addJoins sets the from objects and join conditions the query needs: the
// root avatar, every avatar a formula reads, and the avatars on the join
// path from the root to them. Unused joins are left out.
func (b *queryBuilder) addJoins(ds *Dataset) error {
	needed := map[string]bool{}
	if ds.From.RootID != "" {
		needed[ds.From.RootID] = true
	}
	for _, id := range b.q.UsedAvatarIDs() {
		needed[id] = true
	}

	for changed := true; changed; {
		changed = false
		for _, j := range ds.Joins {
			if needed[j.RightID] && !needed[j.LeftID] {
				needed[j.LeftID] = true
				changed = true
			}
		}
	}

	b.q.From = query.JoinedFrom{RootID: ds.From.RootID}
	for _, from := range ds.From.Froms {
		if needed[from.FromID()] {
			b.q.From.Froms = append(b.q.From.Froms, from)
		}
	}

	for _, j := range ds.Joins {
		if !needed[j.RightID] {
			continue
		}
		cond, err := b.resolver.expand(j.Condition)
		if err != nil {
			return fmt.Errorf("join %s → %s: %w", j.LeftID, j.RightID, err)
		}
		f := query.NewFormula(fmt.Sprintf("join_%d", len(b.q.JoinOn)), cond)
		f.Join = &query.JoinCondition{LeftID: j.LeftID, RightID: j.RightID, JoinType: j.Type}
		b.q.JoinOn = append(b.q.JoinOn, f)
	}
	return nil
}

// normalize runs the mutation passes over every formula.
func (b *queryBuilder) normalize() error {
	passes := mutation.DefaultPasses(b.compiler.foldTable, b.compiler.dialect)
	for _, part := range [][]query.CompiledFormula{b.q.Select, b.q.GroupBy, b.q.OrderBy, b.q.Filters, b.q.JoinOn} {
		for i, f := range part {
			expr, err := mutation.ApplyUntilStable(f.Expr, mutation.DefaultMaxRounds, passes...)
			if err != nil {
				return formula.WithAlias(err, f.Alias)
			}
			part[i] = f.WithExpr(f.Alias, expr)
		}
	}
	return nil
}

var comparisonOps = map[legend.FilterOp]string{
	legend.FilterEq:  "==",
	legend.FilterNe:  "!=",
	legend.FilterGt:  ">",
	legend.FilterGte: ">=",
	legend.FilterLt:  "<",
	legend.FilterLte: "<=",
}

// filterExpr builds the condition of a filter item over expr.
func filterExpr(expr formula.Node, flt *legend.Filter) (formula.Node, error) {
	values := make([]formula.Node, len(flt.Values))
	for i, v := range flt.Values {
		values[i] = &formula.Literal{Value: v}
	}
	arity := func(n int) error {
		if len(values) != n {
			return formula.NewCompileError(formula.ErrCodeArgumentCount,
				"filter %s takes %d values, got %d", flt.Op, n, len(values))
		}
		return nil
	}

	if op, ok := comparisonOps[flt.Op]; ok {
		if err := arity(1); err != nil {
			return nil, err
		}
		return formula.Op(op, expr, values[0]), nil
	}

	switch flt.Op {
	case legend.FilterIn, legend.FilterNotIn:
		if len(values) == 0 {
			return nil, formula.NewCompileError(formula.ErrCodeArgumentCount, "filter %s needs at least one value", flt.Op)
		}
		return formula.Op(string(flt.Op), expr, formula.Call("tuple", values...)), nil
	case legend.FilterIsNull, legend.FilterIsNotNull:
		if err := arity(0); err != nil {
			return nil, err
		}
		return formula.Call(string(flt.Op), expr), nil
	case legend.FilterContains, legend.FilterStartsWith:
		if err := arity(1); err != nil {
			return nil, err
		}
		return formula.Call(string(flt.Op), expr, values[0]), nil
	case legend.FilterBetween:
		if err := arity(2); err != nil {
			return nil, err
		}
		return formula.Call("between", expr, values[0], values[1]), nil
	default:
		return nil, formula.NewCompileError(formula.ErrCodeMalformed, "unknown filter operation %q", flt.Op)
	}
}
