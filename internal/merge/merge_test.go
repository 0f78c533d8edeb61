package merge

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lens/internal/formula"
	"github.com/roach88/lens/internal/legend"
)

func row(ids []int, values ...any) Row {
	r := Row{LegendItemIDs: ids}
	for _, v := range values {
		val, err := formula.FromNative(v)
		if err != nil {
			panic(err)
		}
		r.Values = append(r.Values, val)
	}
	return r
}

func collect(t *testing.T, s Stream) []Row {
	t.Helper()
	rows, err := Collect(s)
	require.NoError(t, err)
	return rows
}

var (
	parentIDs = []int{1, 2, 3}
	childIDs  = []int{5, 6, 7}
)

func salesParent() []Row {
	return []Row{
		row(parentIDs, "Furniture", "Chairs", 10),
		row(parentIDs, "Furniture", "Tables", 20),
		row(parentIDs, "Furniture", "Tables", 30),
		row(parentIDs, "Office", "Paper", 40),
		row(parentIDs, "Office", "Pens", 50),
	}
}

func TestMergeTwo_AfterWithoutDimensions(t *testing.T) {
	parent := []Row{row([]int{1, 2}, 12, 34), row([]int{1, 2}, 56, 78)}
	child := []Row{row([]int{5, 6}, "as", "df")}

	got := collect(t, MergeTwo(SliceStream(parent...), SliceStream(child...), legend.Placement{Kind: legend.PlaceAfter}))

	assert.Equal(t, append(parent, child...), got)
}

func TestMergeTwo_EmptyChildKeepsParent(t *testing.T) {
	placements := []legend.Placement{
		{Kind: legend.PlaceAfter},
		{Kind: legend.PlaceAfter, DimensionValues: []legend.DimensionValue{{LegendItemID: 1, Value: formula.String("Office")}}},
		{Kind: legend.PlaceDispersedAfter, ParentDimensions: []int{1, 2}, ChildDimensions: []int{5, 6}},
	}
	for _, p := range placements {
		t.Run(string(p.Kind), func(t *testing.T) {
			got := collect(t, MergeTwo(SliceStream(salesParent()...), SliceStream(), p))
			assert.Equal(t, salesParent(), got)
		})
	}
}

func TestMergeTwo_AfterMatchingRow(t *testing.T) {
	child := []Row{row(childIDs, "", "", 90)}
	p := legend.Placement{Kind: legend.PlaceAfter, DimensionValues: []legend.DimensionValue{
		{LegendItemID: 1, Value: formula.String("Furniture")},
		{LegendItemID: 2, Value: formula.String("Tables")},
	}}

	got := collect(t, MergeTwo(SliceStream(salesParent()...), SliceStream(child...), p))

	parent := salesParent()
	want := []Row{parent[0], parent[1], child[0], parent[2], parent[3], parent[4]}
	assert.Equal(t, want, got, "child goes after the first matching row only")
}

func TestMergeTwo_AfterWithoutMatchAppends(t *testing.T) {
	child := []Row{row(childIDs, "", "", 90)}
	p := legend.Placement{Kind: legend.PlaceAfter, DimensionValues: []legend.DimensionValue{
		{LegendItemID: 1, Value: formula.String("Garden")},
	}}

	got := collect(t, MergeTwo(SliceStream(salesParent()...), SliceStream(child...), p))

	assert.Equal(t, append(salesParent(), child...), got)
}

func TestMergeTwo_DispersedAfter(t *testing.T) {
	child := []Row{
		row(childIDs, "Office", "Pens", 50),
		row(childIDs, "Furniture", "Tables", 50),
		row(childIDs, "Garden", "Hoses", 1),
		row(childIDs, "Furniture", "Chairs", 10),
	}
	p := legend.Placement{Kind: legend.PlaceDispersedAfter, ParentDimensions: []int{1, 2}, ChildDimensions: []int{5, 6}}

	var unmatched []*MergeAmbiguityError
	got := collect(t, MergeTwo(SliceStream(salesParent()...), SliceStream(child...), p,
		WithOnUnmatched(func(err *MergeAmbiguityError) { unmatched = append(unmatched, err) })))

	parent := salesParent()
	want := []Row{
		parent[0], child[3],
		parent[1], parent[2], child[1],
		parent[3],
		parent[4], child[0],
	}
	assert.Equal(t, want, got)

	require.Len(t, unmatched, 1)
	assert.Equal(t, []formula.Value{formula.String("Garden"), formula.String("Hoses")}, unmatched[0].Values)
	assert.Equal(t, 1, unmatched[0].Rows)
	assert.True(t, IsMergeAmbiguity(unmatched[0]))
}

func TestMergeTwo_DispersedAfterChained(t *testing.T) {
	subTotals := []Row{
		row(childIDs, "Furniture", "Tables", 50),
		row(childIDs, "Office", "Paper", 40),
	}
	categoryTotals := []Row{
		row([]int{8, 9}, "Office", 90),
		row([]int{8, 9}, "Furniture", 60),
	}

	fine := MergeTwo(SliceStream(salesParent()...), SliceStream(subTotals...),
		legend.Placement{Kind: legend.PlaceDispersedAfter, ParentDimensions: []int{1, 2}, ChildDimensions: []int{5, 6}})
	coarse := MergeTwo(fine, SliceStream(categoryTotals...),
		legend.Placement{Kind: legend.PlaceDispersedAfter, ParentDimensions: []int{1}, ChildDimensions: []int{8}})

	got := collect(t, coarse)

	parent := salesParent()
	want := []Row{
		parent[0],
		parent[1], parent[2], subTotals[0],
		categoryTotals[1],
		parent[3], subTotals[1],
		parent[4],
		categoryTotals[0],
	}
	assert.Equal(t, want, got)
}

func TestMergeTwo_NumericValuesMatchAcrossTypes(t *testing.T) {
	parent := []Row{row([]int{1}, int64(2024)), row([]int{1}, int64(2025))}
	child := []Row{row([]int{5}, 2024.0)}
	p := legend.Placement{Kind: legend.PlaceDispersedAfter, ParentDimensions: []int{1}, ChildDimensions: []int{5}}

	got := collect(t, MergeTwo(SliceStream(parent...), SliceStream(child...), p))

	assert.Equal(t, []Row{parent[0], child[0], parent[1]}, got)
}

func TestMergeTwo_LargeIntegersMatchExactly(t *testing.T) {
	parent := []Row{row([]int{1}, int64(9007199254740992)), row([]int{1}, int64(9007199254740993))}
	child := []Row{row([]int{5}, int64(9007199254740992))}
	p := legend.Placement{Kind: legend.PlaceDispersedAfter, ParentDimensions: []int{1}, ChildDimensions: []int{5}}

	got := collect(t, MergeTwo(SliceStream(parent...), SliceStream(child...), p))

	assert.Equal(t, []Row{parent[0], child[0], parent[1]}, got)
}

func TestValueKey(t *testing.T) {
	tests := []struct {
		name  string
		a, b  formula.Value
		match bool
	}{
		{"integers above 2^53", formula.Integer(9007199254740992), formula.Integer(9007199254740993), false},
		{"integral float", formula.Integer(2024), formula.Float(2024), true},
		{"fractional float", formula.Integer(2), formula.Float(2.5), false},
		{"float beyond int64", formula.Float(1e19), formula.Integer(-9223372036854775808), false},
		{"string and integer", formula.String("1"), formula.Integer(1), false},
		{"nulls", nil, formula.Null{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.match, valueKey(tt.a) == valueKey(tt.b))
		})
	}
}

func TestMergeTwo_Errors(t *testing.T) {
	boom := errors.New("boom")

	_, err := Collect(MergeTwo(SliceStream(salesParent()...), ErrorStream(boom), legend.Placement{Kind: legend.PlaceAfter}))
	assert.ErrorIs(t, err, boom)

	_, err = Collect(MergeTwo(ErrorStream(boom), SliceStream(),
		legend.Placement{Kind: legend.PlaceDispersedAfter, ParentDimensions: []int{1}, ChildDimensions: []int{5}}))
	assert.ErrorIs(t, err, boom)

	_, err = Collect(MergeTwo(SliceStream(), SliceStream(), legend.Placement{Kind: legend.PlaceRoot}))
	assert.ErrorContains(t, err, "placement \"root\"")

	_, err = Collect(MergeTwo(SliceStream(), SliceStream(row([]int{9}, 1)),
		legend.Placement{Kind: legend.PlaceDispersedAfter, ParentDimensions: []int{1}, ChildDimensions: []int{5}}))
	assert.ErrorContains(t, err, "missing dispersed dimensions")
}

func TestBlocks(t *testing.T) {
	root := 0
	blocks := []BlockStream{
		{Block: legend.Block{ID: 0, Placement: legend.Placement{Kind: legend.PlaceRoot}}, Stream: SliceStream(salesParent()...)},
		{
			Block: legend.Block{ID: 1, ParentID: &root, Placement: legend.Placement{
				Kind: legend.PlaceDispersedAfter, ParentDimensions: []int{1}, ChildDimensions: []int{8},
			}},
			Stream: SliceStream(row([]int{8, 9}, "Furniture", 60)),
		},
		{
			Block:  legend.Block{ID: 2, ParentID: &root, Placement: legend.Placement{Kind: legend.PlaceAfter}},
			Stream: EmptyRowStream(&legend.Legend{Items: []legend.Item{{ID: 10, Role: legend.RoleTemplate, Template: "Total"}}}),
		},
	}

	merged, err := Blocks(blocks)
	require.NoError(t, err)
	got := collect(t, merged)

	require.Len(t, got, 7)
	assert.Equal(t, row([]int{8, 9}, "Furniture", 60), got[3])
	assert.Equal(t, row([]int{10}, "Total"), got[6])

	_, err = Blocks(blocks[1:])
	assert.ErrorContains(t, err, "not the root block")
}

func TestRemapLegendItems(t *testing.T) {
	s := RemapLegendItems(SliceStream(row([]int{4, 2}, "x", 1)), map[int]int{4: 0})

	got := collect(t, s)
	assert.Equal(t, []int{0, 2}, got[0].LegendItemIDs)
}

func TestEmptyRowStream(t *testing.T) {
	l := &legend.Legend{Items: []legend.Item{
		{ID: 0, Role: legend.RoleTemplate, Template: "Grand total"},
		{ID: 1, Role: legend.RoleMeasure},
		{ID: 2, Role: legend.RoleFilter},
	}}

	got := collect(t, EmptyRowStream(l))
	assert.Equal(t, []Row{row([]int{0, 1}, "Grand total", "")}, got)
}
