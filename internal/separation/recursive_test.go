package separation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lens/internal/formula"
	"github.com/roach88/lens/internal/planning"
	"github.com/roach88/lens/internal/query"
	"github.com/roach88/lens/internal/slicing"
)

func levelIDs(plan *query.MultiLevelQuery) [][]string {
	out := make([][]string, len(plan.Levels))
	for i, level := range plan.Levels {
		for _, q := range level.Queries {
			out[i] = append(out[i], q.ID)
		}
	}
	return out
}

func compengChain(levelType query.LevelType) []Chain {
	return []Chain{{
		LevelType: query.Compeng,
		Planners:  []planning.Planner{planning.NestedLevelTag{LevelType: levelType}},
	}}
}

// nestedWindowQuery selects MAVG over RSUM with two nested level tags.
func nestedWindowQuery() *query.CompiledQuery {
	inner := &formula.Paren{
		Tag:  formula.NewLevelTag(0, "a", "b"),
		Expr: formula.Window("rsum", []formula.Node{ref("sales")}),
	}
	outer := &formula.Paren{
		Tag:  formula.NewLevelTag(0, "a"),
		Expr: formula.Window("mavg", []formula.Node{inner, formula.Lit(50)}),
	}
	return &query.CompiledQuery{
		ID:     "q",
		Select: []query.CompiledFormula{query.NewFormula("res_0", outer), query.NewFormula("res_1", ref("a"))},
		From:   sourceFrom(),
	}
}

func TestSliceRecursively_NestedLevelTags(t *testing.T) {
	r := NewRecursiveSlicer(planning.WindowToCompeng{}, compengChain(query.Compeng), nil)

	plan, err := r.SliceRecursively(nestedWindowQuery())
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"q_0_0_0"}, {"q_1_0_0"}, {"q_1_1_0"}, {"q"}}, levelIDs(plan))
	assert.Equal(t, []string{"q"}, plan.TopQueryIDs())
	assert.Equal(t, []string{"t"}, plan.LeafAvatarIDs())

	sales := slicing.PieceAlias(ref("sales"))
	leaf := plan.Levels[0].Queries[0]
	assert.Equal(t, query.SourceDB, leaf.LevelType)
	assert.Equal(t, []string{"res_1=[t].[a]", sales + "=[t].[sales]"}, formats(leaf.Select))

	rsum := plan.Levels[1].Queries[0]
	require.Len(t, rsum.Select, 2)
	rsumAlias := rsum.Select[1].Alias
	assert.Equal(t, "RSUM([q_0_0_0].["+sales+"]) OVER ()", formula.Format(rsum.Select[1].Expr))
	assert.Equal(t, []string{"q_0_0_0"}, rsum.From.SubqueryIDs())

	mavg := plan.Levels[2].Queries[0]
	require.Len(t, mavg.Select, 2)
	mavgAlias := mavg.Select[1].Alias
	assert.Equal(t, "MAVG(([q_1_0_0].["+rsumAlias+"])({a,b},0), 50) OVER ()", formula.Format(mavg.Select[1].Expr))

	top := plan.Levels[3].Queries[0]
	assert.Equal(t, []string{
		"res_0=([q_1_1_0].[" + mavgAlias + "])({a},0)",
		"res_1=[q_1_1_0].[res_1]",
	}, formats(top.Select))
	for _, level := range plan.Levels[1:] {
		assert.Equal(t, query.Compeng, level.LevelType)
	}
}

func TestSliceRecursively_NoTagsKeepsLevels(t *testing.T) {
	q := &query.CompiledQuery{
		ID:     "q",
		Select: []query.CompiledFormula{query.NewFormula("res_0", formula.Window("rank", []formula.Node{ref("x")}))},
		From:   sourceFrom(),
	}
	r := NewRecursiveSlicer(planning.WindowToCompeng{}, compengChain(query.Compeng), nil)

	plan, err := r.SliceRecursively(q)
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"q_0_0_0"}, {"q"}}, levelIDs(plan))
}

func TestSliceRecursively_LevelTypeMismatch(t *testing.T) {
	r := NewRecursiveSlicer(planning.WindowToCompeng{}, compengChain(query.SourceDB), nil)

	_, err := r.SliceRecursively(nestedWindowQuery())
	var pe *query.PlanningInvariantError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, query.ErrCodeLevelTypeMismatch, pe.Code)
}

func TestSliceRecursively_PlannerError(t *testing.T) {
	left := &formula.Paren{Tag: formula.NewLevelTag(0, "a"), Expr: formula.Window("rank", []formula.Node{ref("x")})}
	right := &formula.Paren{Tag: formula.NewLevelTag(0, "b"), Expr: formula.Window("rank", []formula.Node{ref("y")})}
	q := &query.CompiledQuery{
		ID:     "q",
		Select: []query.CompiledFormula{query.NewFormula("res_0", formula.Op("+", left, right))},
		From:   sourceFrom(),
	}
	r := NewRecursiveSlicer(planning.WindowToCompeng{}, compengChain(query.Compeng), nil)

	_, err := r.SliceRecursively(q)
	assert.True(t, planning.IsUnresolvableTagOrder(err))
}

func TestResliceLevels_AlignsSubLevelsToTop(t *testing.T) {
	tagged := &formula.Paren{
		Tag:  formula.NewLevelTag(0, "a"),
		Expr: formula.Window("rsum", []formula.Node{ref("x")}),
	}
	deep := &query.CompiledQuery{
		ID:        "deep",
		LevelType: query.SourceDB,
		Select:    []query.CompiledFormula{query.NewFormula("res_0", tagged)},
		From:      sourceFrom(),
	}
	flat := &query.CompiledQuery{
		ID:        "flat",
		LevelType: query.SourceDB,
		Select:    []query.CompiledFormula{query.NewFormula("res_0", ref("y"))},
		From:      sourceFrom(),
	}
	plan := &query.MultiLevelQuery{Levels: []query.CompiledLevel{
		{LevelType: query.SourceDB, Queries: []*query.CompiledQuery{deep, flat}},
	}}

	r := NewRecursiveSlicer(nil, nil, nil)
	out, err := r.resliceLevels(plan, query.SourceDB, planning.NestedLevelTag{LevelType: query.SourceDB}, "1")
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"deep_1_0_0"}, {"deep", "flat"}}, levelIDs(out))
	require.NoError(t, out.CheckPreserved([]string{"deep", "flat"}, []string{"t"}))
}
