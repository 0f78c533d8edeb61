package pivot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable(t *testing.T) {
	pl := &Legend{Items: []Item{
		dim(piidCtgry, RoleColumn, "", "Category", liidCtgry),
		dim(piidCity, RoleRow, "", "City", liidCity),
		measure(piidSales, "Sales", nil, liidSales),
	}}
	s := stream(singleMeasureIDs,
		[]any{"Detroit", "Furniture", 100},
		[]any{"Moscow", "Office Supplies", 300},
		[]any{"Detroit", "Office Supplies", 400},
	)

	f, err := Build(s, requestLegend(), pl)
	require.NoError(t, err)
	require.NoError(t, f.Sort())

	assert.Equal(t, [][]string{
		{"", "Furniture", "Office Supplies"},
		{"Detroit", "100", "400"},
		{"Moscow", "", "300"},
	}, f.Table())
}

func TestTable_MeasureNames(t *testing.T) {
	pl := &Legend{Items: []Item{
		dim(piidCity, RoleRow, "", "City", liidCity),
		measureNames(RoleColumn),
		measure(piidSales, "Sales", nil, liidSales),
		measure(piidProfit, "Profit", nil, liidProfit),
	}}
	s := stream(twoMeasureIDs,
		[]any{"Detroit", "Furniture", 100, 10},
		[]any{"Moscow", "Technology", 200, 20},
	)

	f, err := Build(s, requestLegend(), pl)
	require.NoError(t, err)

	assert.Equal(t, [][]string{
		{"", "Sales", "Profit"},
		{"Detroit", "100", "10"},
		{"Moscow", "200", "20"},
	}, f.Table())
}
