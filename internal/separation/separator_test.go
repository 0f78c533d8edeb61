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

func ref(name string) formula.Node { return formula.Ref("t", name) }

func sourceFrom() query.JoinedFrom {
	return query.JoinedFrom{RootID: "t", Froms: []query.FromObject{query.AvatarFrom{ID: "t", Table: "orders"}}}
}

func formats(formulas []query.CompiledFormula) []string {
	out := make([]string, len(formulas))
	for i, f := range formulas {
		out[i] = f.Alias + "=" + formula.Format(f.Expr)
	}
	return out
}

func separate(t *testing.T, planner planning.Planner, q *query.CompiledQuery) *query.MultiLevelQuery {
	t.Helper()
	p, err := planner.Plan(q)
	require.NoError(t, err)
	sq, err := SliceQuery(p, slicing.NewSlicer(nil))
	require.NoError(t, err)
	plan, err := (&Separator{}).Separate(sq, "0")
	require.NoError(t, err)
	return plan
}

func TestQueryID(t *testing.T) {
	assert.Equal(t, "q", QueryID("q", "0", 1, 0, true))
	assert.Equal(t, "q_2_0_1", QueryID("q", "2", 0, 1, false))
}

func TestSeparate_WindowQuery(t *testing.T) {
	limit, offset := 10, 5
	ordered := query.NewFormula("ord_0", ref("city"))
	ordered.Direction = query.Desc
	selected := query.NewFormula("res_1", ref("city"))
	selected.LegendItemID = 1
	selected.FieldID = "city"

	sumX := formula.Call("sum", ref("x"))
	q := &query.CompiledQuery{
		ID:      "q",
		Select:  []query.CompiledFormula{query.NewFormula("res_0", formula.Window("rank", []formula.Node{sumX})), selected},
		GroupBy: []query.CompiledFormula{query.NewFormula("grp_0", ref("city"))},
		OrderBy: []query.CompiledFormula{ordered},
		From:    sourceFrom(),
		Limit:   &limit,
		Offset:  &offset,
	}

	plan := separate(t, planning.WindowToCompeng{}, q)
	require.NoError(t, plan.CheckPreserved([]string{"q"}, []string{"t"}))
	require.Len(t, plan.Levels, 2)

	sx := slicing.PieceAlias(sumX)

	leaf := plan.Levels[0].Queries[0]
	assert.Equal(t, "q_0_0_0", leaf.ID)
	assert.Equal(t, query.SourceDB, leaf.LevelType)
	assert.Equal(t, []string{"ord_0=[t].[city]", "res_1=[t].[city]", sx + "=SUM([t].[x])"}, formats(leaf.Select))
	assert.Equal(t, []string{"grp_0=[t].[city]"}, formats(leaf.GroupBy))
	assert.Empty(t, leaf.OrderBy)
	assert.Nil(t, leaf.Limit)
	assert.Nil(t, leaf.Offset)
	assert.Equal(t, sourceFrom(), leaf.From)
	for _, f := range leaf.Select {
		assert.Equal(t, query.NoLegendItem, f.LegendItemID, f.Alias)
		assert.Empty(t, f.Direction, f.Alias)
		assert.Empty(t, f.FieldID, f.Alias)
	}

	top := plan.Levels[1].Queries[0]
	assert.Equal(t, "q", top.ID)
	assert.Equal(t, query.Compeng, top.LevelType)
	assert.Equal(t, []string{
		"res_0=RANK([q_0_0_0].[" + sx + "]) OVER ()",
		"res_1=[q_0_0_0].[res_1]",
	}, formats(top.Select))
	assert.Equal(t, []string{"ord_0=[q_0_0_0].[ord_0]"}, formats(top.OrderBy))
	assert.Equal(t, query.Desc, top.OrderBy[0].Direction)
	assert.Equal(t, 1, top.Select[1].LegendItemID)
	assert.Equal(t, "city", top.Select[1].FieldID)
	assert.Equal(t, []string{"q_0_0_0"}, top.Select[0].AvatarIDs)
	assert.Equal(t, &limit, top.Limit)
	assert.Equal(t, &offset, top.Offset)

	require.Len(t, top.From.Froms, 1)
	sub, ok := top.From.Froms[0].(query.SubqueryFrom)
	require.True(t, ok)
	assert.Equal(t, "q_0_0_0", sub.QueryID)
	assert.Equal(t, []query.Column{
		{ID: "ord_0", Name: "ord_0"},
		{ID: "res_1", Name: "res_1"},
		{ID: sx, Name: sx},
	}, sub.Columns)
}

func TestSeparate_SingleLevelKeepsQueryShape(t *testing.T) {
	q := &query.CompiledQuery{
		ID:      "q",
		Select:  []query.CompiledFormula{query.NewFormula("res_0", formula.Call("sum", ref("x")))},
		Filters: []query.CompiledFormula{query.NewFormula("flt_0", formula.Op(">", ref("x"), formula.Lit(0)))},
		From:    sourceFrom(),
	}

	plan := separate(t, planning.WindowToCompeng{}, q)

	require.Len(t, plan.Levels, 1)
	only := plan.Levels[0].Queries[0]
	assert.Equal(t, "q", only.ID)
	assert.Equal(t, []string{"res_0=SUM([t].[x])"}, formats(only.Select))
	assert.Equal(t, []string{"flt_0=([t].[x] > 0)"}, formats(only.Filters))
}

func TestSeparate_PatchesDuplicateTopAliases(t *testing.T) {
	q := &query.CompiledQuery{
		ID: "q",
		Select: []query.CompiledFormula{
			query.NewFormula("res", ref("x")),
			query.NewFormula("res", ref("y")),
			query.NewFormula("res", ref("z")),
		},
		From: sourceFrom(),
	}

	plan := separate(t, planning.WindowToCompeng{}, q)

	assert.Equal(t, []string{"res", "res_cp0", "res_cp1"}, plan.Levels[0].Queries[0].SelectAliases())
}

func TestSeparate_AliasConflict(t *testing.T) {
	q := &query.CompiledQuery{
		ID: "q",
		GroupBy: []query.CompiledFormula{
			query.NewFormula("grp", ref("x")),
			query.NewFormula("grp", ref("y")),
		},
		From: sourceFrom(),
	}

	p, err := planning.WindowToCompeng{}.Plan(q)
	require.NoError(t, err)
	sq, err := SliceQuery(p, slicing.NewSlicer(nil))
	require.NoError(t, err)

	_, err = (&Separator{}).Separate(sq, "0")
	var pe *query.PlanningInvariantError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, query.ErrCodeAliasConflict, pe.Code)
	assert.Equal(t, "grp", pe.Details["alias"])
}

func TestSeparate_SharedPiecesAreSelectedOnce(t *testing.T) {
	sumX := formula.Call("sum", ref("x"))
	q := &query.CompiledQuery{
		ID: "q",
		Select: []query.CompiledFormula{
			query.NewFormula("res_0", formula.Window("rank", []formula.Node{sumX})),
			query.NewFormula("res_1", formula.Window("rsum", []formula.Node{sumX})),
		},
		From: sourceFrom(),
	}

	plan := separate(t, planning.WindowToCompeng{}, q)

	assert.Equal(t, []string{slicing.PieceAlias(sumX)}, plan.Levels[0].Queries[0].SelectAliases())
	assert.Equal(t, []string{"res_0", "res_1"}, plan.Levels[1].Queries[0].SelectAliases())
}
