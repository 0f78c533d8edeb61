package planning

import (
	"log/slog"
	"slices"

	"github.com/roach88/lens/internal/formula"
	"github.com/roach88/lens/internal/query"
	"github.com/roach88/lens/internal/slicing"
)

var (
	sourceOnly      = []query.LevelType{query.SourceDB}
	sourceAndEngine = []query.LevelType{query.SourceDB, query.Compeng}

	topSchema = slicing.Schema{slicing.TopBoundary{}}
)

// SingleLevel keeps the whole query on one level of LevelType. It is the
// initial planner for backends that evaluate every function natively.
type SingleLevel struct {
	LevelType query.LevelType
	Env       *slicing.InspectionEnv
}

func (SingleLevel) Name() string { return "single_level" }

func (p SingleLevel) Plan(q *query.CompiledQuery) (*Plan, error) {
	env := envOrDefault(p.Env)
	levels := []query.LevelType{p.LevelType}
	at := func(f query.CompiledFormula) (Formula, error) {
		return plan(f, levels, topSchema), nil
	}
	out := newPlan(q, levels)

	var err error
	if out.Select, err = planAll(q.Select, at); err != nil {
		return nil, err
	}
	if out.GroupBy, err = planAll(q.GroupBy, noWindows(env, "group by", at)); err != nil {
		return nil, err
	}
	if out.OrderBy, err = planAll(q.OrderBy, at); err != nil {
		return nil, err
	}
	if out.Filters, err = planAll(q.Filters, at); err != nil {
		return nil, err
	}
	if out.JoinOn, err = planAll(q.JoinOn, noWindows(env, "join conditions", at)); err != nil {
		return nil, err
	}
	return out, nil
}

// WindowToCompeng sends window functions to the compute engine and
// everything else to the source database.
//
// When any formula has a window call the query gets two levels and every
// select and order by formula reaches the compeng level. Filters with window
// calls, or on fields that a nested level tag refers to, run in compeng.
// Group by and join on stay in the source database.
type WindowToCompeng struct {
	Env *slicing.InspectionEnv
}

func (WindowToCompeng) Name() string { return "window_to_compeng" }

func (p WindowToCompeng) Plan(q *query.CompiledQuery) (*Plan, error) {
	env := envOrDefault(p.Env)
	windowSchema := slicing.Schema{slicing.WindowBoundary{}, slicing.TopBoundary{}}

	needsCompeng := slices.ContainsFunc(q.AllFormulas(), func(f query.CompiledFormula) bool {
		return env.ContainsWindow(f.Expr)
	})
	referencedFilterFields := make(map[string]bool)
	for _, tag := range collectTags(q, env) {
		if tag.Nesting == 0 {
			continue
		}
		for _, name := range tag.Names {
			referencedFilterFields[name] = true
		}
	}

	planFormula := func(f query.CompiledFormula, forceCompeng bool) Formula {
		if forceCompeng || env.ContainsWindow(f.Expr) {
			return plan(f, sourceAndEngine, windowSchema)
		}
		return plan(f, sourceOnly, topSchema)
	}
	topFormula := func(f query.CompiledFormula) (Formula, error) {
		return planFormula(f, needsCompeng), nil
	}

	out := newPlan(q, sourceOnly)
	if needsCompeng {
		out.Levels = sourceAndEngine
	}

	var err error
	if out.Select, err = planAll(q.Select, topFormula); err != nil {
		return nil, err
	}
	if out.OrderBy, err = planAll(q.OrderBy, topFormula); err != nil {
		return nil, err
	}
	sourceFormula := func(f query.CompiledFormula) (Formula, error) {
		return planFormula(f, false), nil
	}
	if out.GroupBy, err = planAll(q.GroupBy, noWindows(env, "group by", sourceFormula)); err != nil {
		return nil, err
	}
	out.Filters, err = planAll(q.Filters, func(f query.CompiledFormula) (Formula, error) {
		return planFormula(f, f.FieldID != "" && referencedFilterFields[f.FieldID]), nil
	})
	if err != nil {
		return nil, err
	}
	if out.JoinOn, err = planAll(q.JoinOn, noWindows(env, "join conditions", sourceFormula)); err != nil {
		return nil, err
	}

	slog.Debug("query planned", "planner", p.Name(), "query", q.ID, "levels", len(out.Levels))
	return out, nil
}

// NestedLevelTag slices queries of one level type by level tags.
//
// The query gets one level per distinct tag plus one extra level for
// filters, all of LevelType. Tags are ordered from the greatest down; the
// formula schema cuts at each tag in turn, so the innermost window calls are
// computed first. Select and order by reach the top level, group by and
// join on stay at level 0, and a filter goes to the level right above the
// outermost tag it depends on.
type NestedLevelTag struct {
	LevelType query.LevelType
	Env       *slicing.InspectionEnv
}

func (NestedLevelTag) Name() string { return "nested_level_tag" }

func (p NestedLevelTag) Plan(q *query.CompiledQuery) (*Plan, error) {
	env := envOrDefault(p.Env)

	tags, err := OrderTags(collectTags(q, env))
	if err != nil {
		return nil, err
	}

	levels := make([]query.LevelType, len(tags)+1)
	for i := range levels {
		levels[i] = p.LevelType
	}
	out := newPlan(q, levels)

	planUpTo := func(f query.CompiledFormula, level int) Formula {
		schema := make(slicing.Schema, 0, level+1)
		for _, tag := range tags[:level] {
			schema = append(schema, slicing.LevelTagBoundary{Cut: tag})
		}
		schema = append(schema, slicing.TopBoundary{})
		return plan(f, levels[:level+1], schema)
	}
	at := func(level int) func(query.CompiledFormula) (Formula, error) {
		return func(f query.CompiledFormula) (Formula, error) {
			return planUpTo(f, level), nil
		}
	}

	top := len(levels) - 1
	if out.Select, err = planAll(q.Select, at(top)); err != nil {
		return nil, err
	}
	if out.OrderBy, err = planAll(q.OrderBy, at(top)); err != nil {
		return nil, err
	}
	if out.GroupBy, err = planAll(q.GroupBy, noWindows(env, "group by", at(0))); err != nil {
		return nil, err
	}
	if out.JoinOn, err = planAll(q.JoinOn, noWindows(env, "join conditions", at(0))); err != nil {
		return nil, err
	}
	out.Filters, err = planAll(q.Filters, func(f query.CompiledFormula) (Formula, error) {
		return planUpTo(f, filterLevel(f, tags, env)), nil
	})
	if err != nil {
		return nil, err
	}

	slog.Debug("query planned", "planner", p.Name(), "query", q.ID, "tags", len(tags), "levels", len(levels))
	return out, nil
}

// filterLevel places a filter above the outermost tag it contains and no
// lower than the innermost tag referring to its field.
func filterLevel(f query.CompiledFormula, tags []*formula.LevelTag, env *slicing.InspectionEnv) int {
	level := 0
	if f.FieldID != "" {
		for i := len(tags) - 1; i >= 0; i-- {
			if slices.Contains(tags[i].Names, f.FieldID) {
				level = i + 1
				break
			}
		}
	}
	for _, tag := range slicing.CollectTags(f.Expr, env) {
		idx := slices.IndexFunc(tags, tag.Equal)
		if idx+1 > level {
			level = idx + 1
		}
	}
	return level
}

// OrderTags sorts tags from the greatest down and rejects sets that are not
// a chain.
func OrderTags(tags []*formula.LevelTag) ([]*formula.LevelTag, error) {
	for i := range tags {
		for j := i + 1; j < len(tags); j++ {
			if _, ok := tags[i].Compare(tags[j]); !ok {
				return nil, &UnresolvableTagOrderError{Tags: []*formula.LevelTag{tags[i], tags[j]}}
			}
		}
	}
	out := slices.Clone(tags)
	slices.SortStableFunc(out, func(a, b *formula.LevelTag) int {
		c, _ := b.Compare(a)
		return c
	})
	return out, nil
}

// PrefilterAndCompeng reads plain columns from the source database and
// computes everything else in the compute engine.
//
// Filters accepted by IsPrefilter run in the source database. When the
// query is more than a plain column read, it gets a compeng level: select,
// order by and group by formulas are sliced so that only field reads stay in
// the source database, and prefilters are repeated in compeng.
type PrefilterAndCompeng struct {
	Env *slicing.InspectionEnv

	// IsPrefilter reports whether a filter can run in the source database.
	// Nil accepts filters without aggregate and window calls.
	IsPrefilter func(f query.CompiledFormula) bool
}

func (PrefilterAndCompeng) Name() string { return "prefilter_and_compeng" }

func (p PrefilterAndCompeng) Plan(q *query.CompiledQuery) (*Plan, error) {
	env := envOrDefault(p.Env)
	isPrefilter := p.IsPrefilter
	if isPrefilter == nil {
		isPrefilter = func(f query.CompiledFormula) bool {
			return !env.ContainsAggregate(f.Expr) && !env.ContainsWindow(f.Expr)
		}
	}

	referenced := make(map[string]bool)
	for _, tag := range collectTags(q, env) {
		for _, name := range tag.Names {
			referenced[name] = true
		}
	}

	var prefilters, compengFilters []query.CompiledFormula
	for _, f := range q.Filters {
		if !referenced[f.FieldID] && isPrefilter(f) {
			prefilters = append(prefilters, f)
		} else {
			compengFilters = append(compengFilters, f)
		}
	}

	needsCompeng := len(q.OrderBy) > 0 || len(q.GroupBy) > 0 || len(compengFilters) > 0 ||
		slices.ContainsFunc(q.Select, func(f query.CompiledFormula) bool {
			_, isField := f.Expr.(*formula.Field)
			return !isField
		})

	fieldsSchema := slicing.Schema{slicing.NonFieldsBoundary{}, slicing.TopBoundary{}}
	planFormula := func(f query.CompiledFormula, compeng bool) Formula {
		if compeng {
			return plan(f, sourceAndEngine, fieldsSchema)
		}
		return plan(f, sourceOnly, topSchema)
	}
	planned := func(compeng bool) func(query.CompiledFormula) (Formula, error) {
		return func(f query.CompiledFormula) (Formula, error) {
			return planFormula(f, compeng), nil
		}
	}

	out := newPlan(q, sourceOnly)
	if needsCompeng {
		out.Levels = sourceAndEngine
	} else {
		prefilters = append(prefilters, compengFilters...)
		compengFilters = nil
	}

	var err error
	if out.Select, err = planAll(q.Select, planned(needsCompeng)); err != nil {
		return nil, err
	}
	if out.OrderBy, err = planAll(q.OrderBy, planned(needsCompeng)); err != nil {
		return nil, err
	}
	if out.GroupBy, err = planAll(q.GroupBy, noWindows(env, "group by", planned(true))); err != nil {
		return nil, err
	}
	if out.JoinOn, err = planAll(q.JoinOn, noWindows(env, "join conditions", planned(false))); err != nil {
		return nil, err
	}

	if out.Filters, err = planAll(prefilters, planned(false)); err != nil {
		return nil, err
	}
	if needsCompeng {
		all := append(slices.Clone(prefilters), compengFilters...)
		post, err := planAll(all, planned(true))
		if err != nil {
			return nil, err
		}
		for i := range post {
			if i < len(prefilters) {
				post[i].Alias += "_ce"
			}
		}
		out.Filters = append(out.Filters, post...)
	}

	slog.Debug("query planned", "planner", p.Name(), "query", q.ID,
		"prefilters", len(prefilters), "compeng_filters", len(compengFilters), "levels", len(out.Levels))
	return out, nil
}

func envOrDefault(env *slicing.InspectionEnv) *slicing.InspectionEnv {
	if env == nil {
		return slicing.NewInspectionEnv()
	}
	return env
}
