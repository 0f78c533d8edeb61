package pivot

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lens/internal/formula"
	"github.com/roach88/lens/internal/legend"
	"github.com/roach88/lens/internal/merge"
	"github.com/roach88/lens/internal/query"
)

const (
	liidCtgry  = 0
	liidCity   = 1
	liidMnames = 2
	liidSales  = 3
	liidProfit = 4

	piidMnames = 10
	piidCity   = 20
	piidCtgry  = 30
	piidSales  = 40
	piidProfit = 50
)

func requestLegend() *legend.Legend {
	field := func(id int, fieldID, title string, ft legend.FieldType, dt legend.DataType) legend.Item {
		role := legend.RoleRow
		if ft == legend.Measure {
			role = legend.RoleMeasure
		}
		return legend.Item{ID: id, Kind: legend.KindField, FieldID: fieldID, Title: title, Role: role, FieldType: ft, DataType: dt}
	}
	return &legend.Legend{Items: []legend.Item{
		field(liidCtgry, "ctgry", "Category", legend.Dimension, legend.TypeString),
		field(liidCity, "city", "City", legend.Dimension, legend.TypeString),
		{ID: liidMnames, Kind: legend.KindMeasureName, Role: legend.RoleRow, FieldType: legend.Dimension, DataType: legend.TypeString},
		field(liidSales, "sales", "Sales", legend.Measure, legend.TypeInteger),
		field(liidProfit, "profit", "Profit", legend.Measure, legend.TypeInteger),
	}}
}

func dim(id int, role Role, dir query.Direction, title string, liids ...int) Item {
	return Item{ID: id, Kind: KindField, Role: role, Direction: dir, Title: title, LegendItemIDs: liids}
}

func measure(id int, title string, sorting *MeasureSorting, liids ...int) Item {
	return Item{ID: id, Kind: KindField, Role: RoleMeasure, Title: title, Sorting: sorting, LegendItemIDs: liids}
}

func measureNames(role Role) Item {
	return Item{ID: piidMnames, Kind: KindMeasureName, Role: role, Title: "Measure Name", LegendItemIDs: []int{liidMnames}}
}

func stream(ids []int, rows ...[]any) merge.Stream {
	out := make([]merge.Row, len(rows))
	for i, values := range rows {
		out[i].LegendItemIDs = ids
		for _, v := range values {
			val, err := formula.FromNative(v)
			if err != nil {
				panic(err)
			}
			out[i].Values = append(out[i].Values, val)
		}
	}
	return merge.SliceStream(out...)
}

func dc(v any, liid, piid int) Cell {
	val, err := formula.FromNative(v)
	if err != nil {
		panic(err)
	}
	return Cell{Value: val, LegendItemID: liid, PivotItemID: piid}
}

func mn(title string, measurePIID int) Cell {
	return Cell{
		Value:        formula.String(title),
		LegendItemID: liidMnames,
		PivotItemID:  piidMnames,
		MeasureName:  &MeasureName{Title: title, PivotItemID: measurePIID},
	}
}

func header(cells ...Cell) Header {
	values := make([]Vector, 0, len(cells))
	for _, c := range cells {
		values = append(values, Vector{Cells: []Cell{c}})
	}
	return Header{Values: values, Info: HeaderInfo{Role: HeaderData}}
}

func sorted(h Header, dir query.Direction) Header {
	h.Info.Direction = dir
	return h
}

func vec(cells ...Cell) *Vector { return &Vector{Cells: cells} }

func sales(v any) *Vector  { return vec(dc(v, liidSales, piidSales)) }
func profit(v any) *Vector { return vec(dc(v, liidProfit, piidProfit)) }

func ctgry(v string) Header { return header(dc(v, liidCtgry, piidCtgry)) }

var (
	singleMeasureIDs = []int{liidCity, liidCtgry, liidSales}
	twoMeasureIDs    = []int{liidCity, liidCtgry, liidSales, liidProfit}
)

func orders() merge.Stream {
	return stream(singleMeasureIDs,
		[]any{"Detroit", "Furniture", 100},
		[]any{"Moscow", "Technology", 200},
		[]any{"San Francisco", "Furniture", 300},
		[]any{"San Francisco", "Office Supplies", 400},
		[]any{"Moscow", "Office Supplies", 500},
		[]any{"Detroit", "Office Supplies", 600},
	)
}

func ordersWithProfit() merge.Stream {
	return stream(twoMeasureIDs,
		[]any{"Detroit", "Furniture", 100, 10},
		[]any{"Moscow", "Technology", 200, 20},
		[]any{"San Francisco", "Furniture", 300, 30},
		[]any{"San Francisco", "Office Supplies", 400, 40},
		[]any{"Moscow", "Office Supplies", 500, 50},
		[]any{"Detroit", "Office Supplies", 600, 60},
	)
}

func TestBuild_SingleMeasure(t *testing.T) {
	pl := &Legend{Items: []Item{
		dim(piidCtgry, RoleColumn, "", "Category", liidCtgry),
		dim(piidCity, RoleRow, "", "City", liidCity),
		measure(piidSales, "Sales", nil, liidSales),
	}}
	s := stream(singleMeasureIDs,
		[]any{"Detroit", "Furniture", 100},
		[]any{"San Francisco", "Furniture", 200},
		[]any{"Moscow", "Office Supplies", 300},
		[]any{"Detroit", "Office Supplies", 400},
	)

	f, err := Build(s, requestLegend(), pl)
	require.NoError(t, err)

	assert.Equal(t, []Header{ctgry("Furniture"), ctgry("Office Supplies")}, f.Columns())
	assert.Equal(t, []DataRow{
		{Header: header(dc("Detroit", liidCity, piidCity)), Values: []*Vector{sales(100), sales(400)}},
		{Header: header(dc("San Francisco", liidCity, piidCity)), Values: []*Vector{sales(200), nil}},
		{Header: header(dc("Moscow", liidCity, piidCity)), Values: []*Vector{nil, sales(300)}},
	}, f.Rows(), "rows keep stream order before sorting")
}

func TestBuild_NoMeasures(t *testing.T) {
	pl := &Legend{Items: []Item{
		dim(piidCtgry, RoleColumn, "", "Category", liidCtgry),
		dim(piidCity, RoleRow, "", "City", liidCity),
	}}
	s := stream([]int{liidCity, liidCtgry},
		[]any{"Detroit", "Furniture"},
		[]any{"Moscow", "Office Supplies"},
		[]any{"Detroit", "Office Supplies"},
	)

	f, err := Build(s, requestLegend(), pl)
	require.NoError(t, err)
	require.NoError(t, f.Sort())

	assert.Equal(t, []Header{ctgry("Furniture"), ctgry("Office Supplies")}, f.Columns())
	assert.Equal(t, []DataRow{
		{Header: header(dc("Detroit", liidCity, piidCity)), Values: []*Vector{nil, nil}},
		{Header: header(dc("Moscow", liidCity, piidCity)), Values: []*Vector{nil, nil}},
	}, f.Rows())
}

func TestBuild_AnnotationsFollowTheirMeasures(t *testing.T) {
	l := requestLegend()
	l.Items = append(l.Items,
		legend.Item{ID: 5, Kind: legend.KindField, FieldID: "customers", Role: legend.RoleMeasure, FieldType: legend.Measure, DataType: legend.TypeInteger},
		legend.Item{ID: 6, Kind: legend.KindField, FieldID: "orders", Role: legend.RoleMeasure, FieldType: legend.Measure, DataType: legend.TypeInteger},
	)
	pl := &Legend{Items: []Item{
		dim(piidCtgry, RoleColumn, "", "Category", liidCtgry),
		dim(piidCity, RoleRow, "", "City", liidCity),
		measureNames(RoleRow),
		measure(piidSales, "Sales", nil, liidSales),
		measure(piidProfit, "Profit", nil, liidProfit),
		{ID: 60, Role: RoleAnnotation, Title: "Customers", AnnotationType: "color", LegendItemIDs: []int{5}},
		{ID: 70, Role: RoleAnnotation, Title: "Orders", AnnotationType: "color", LegendItemIDs: []int{6}, Targets: []int{liidProfit}},
	}}
	s := stream([]int{liidCity, liidCtgry, liidSales, liidProfit, 5, 6},
		[]any{"Detroit", "Furniture", 100, 10, 3, 4},
	)

	f, err := Build(s, l, pl)
	require.NoError(t, err)

	rows := f.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, header(dc("Detroit", liidCity, piidCity), mn("Sales", piidSales)), rows[0].Header)
	assert.Equal(t, vec(dc(100, liidSales, piidSales), dc(3, 5, 60)), rows[0].Values[0])
	assert.Equal(t, header(dc("Detroit", liidCity, piidCity), mn("Profit", piidProfit)), rows[1].Header)
	assert.Equal(t, vec(dc(10, liidProfit, piidProfit), dc(3, 5, 60), dc(4, 6, 70)), rows[1].Values[0])
}

func totalsFixture() (*legend.Legend, *Legend, merge.Stream) {
	l := requestLegend()
	l.Items = append(l.Items,
		// city again from a second block, and the grand total standing in for it
		legend.Item{ID: 5, Kind: legend.KindField, FieldID: "city", Role: legend.RoleRow, FieldType: legend.Dimension, DataType: legend.TypeString, BlockID: 1},
		legend.Item{ID: 6, Kind: legend.KindField, FieldID: "city", Role: legend.RoleTotal, FieldType: legend.Dimension, DataType: legend.TypeString, BlockID: 2},
		legend.Item{ID: 7, Kind: legend.KindField, FieldID: "sales", Role: legend.RoleMeasure, FieldType: legend.Measure, DataType: legend.TypeInteger, BlockID: 2},
	)
	pl := &Legend{Items: []Item{
		dim(piidCity, RoleRow, query.Desc, "City", liidCity, 5, 6),
		measure(piidSales, "Sales", nil, liidSales, 7),
	}}
	rows := []merge.Row{
		{LegendItemIDs: []int{liidCity, liidSales}, Values: []formula.Value{formula.String("Moscow"), formula.Integer(10)}},
		{LegendItemIDs: []int{6, 7}, Values: []formula.Value{formula.String(""), formula.Integer(60)}},
		{LegendItemIDs: []int{liidCity, liidSales}, Values: []formula.Value{formula.String("Paris"), formula.Integer(20)}},
		{LegendItemIDs: []int{5, liidSales}, Values: []formula.Value{formula.String("Berlin"), formula.Integer(30)}},
	}
	return l, pl, merge.SliceStream(rows...)
}

func TestBuild_TotalsAndRemappedDimensions(t *testing.T) {
	l, pl, s := totalsFixture()

	f, err := Build(s, l, pl)
	require.NoError(t, err)
	require.NoError(t, f.Sort())

	rows := f.Rows()
	require.Len(t, rows, 4)
	assert.Equal(t, header(dc("Paris", liidCity, piidCity)), rows[0].Header)
	assert.Equal(t, header(dc("Moscow", liidCity, piidCity)), rows[1].Header)
	assert.Equal(t, header(dc("Berlin", liidCity, piidCity)), rows[2].Header, "block 1 city is remapped to the main city item")
	assert.True(t, rows[3].Header.IsTotal(), "totals stay last")
	assert.Equal(t, vec(dc(60, 7, piidSales)), rows[3].Values[0])
}

func TestSort_MeasureSortPinsTotals(t *testing.T) {
	l, pl, s := totalsFixture()
	pl.Items[1].Sorting = &MeasureSorting{Column: &SortSettings{Direction: query.Desc}}

	f, err := Build(s, l, pl)
	require.NoError(t, err)
	require.NoError(t, f.Sort())

	var got []formula.Value
	for _, r := range f.Rows() {
		got = append(got, r.Values[0].Cells[0].Value)
	}
	assert.Equal(t, []formula.Value{formula.Integer(30), formula.Integer(20), formula.Integer(10), formula.Integer(60)}, got)
	assert.Equal(t, query.Desc, f.Columns()[0].Info.Direction)
}

func TestBuild_Errors(t *testing.T) {
	pl := &Legend{Items: []Item{dim(piidCity, RoleRow, "", "City", 99)}}
	_, err := Build(merge.SliceStream(), requestLegend(), pl)
	assert.ErrorContains(t, err, "unknown legend item 99")

	pl = &Legend{Items: []Item{
		dim(piidCity, RoleRow, "", "City", liidCity),
		measure(piidSales, "Sales", nil, liidSales),
	}}
	_, err = Build(stream([]int{liidCity}, []any{"Moscow"}), requestLegend(), pl)
	assert.ErrorContains(t, err, `no value for measure "Sales"`)

	boom := errors.New("boom")
	_, err = Build(merge.ErrorStream(boom), requestLegend(), pl)
	assert.ErrorIs(t, err, boom)

	pl = &Legend{Items: []Item{measureNames(RoleRow)}}
	_, err = Build(merge.SliceStream(), requestLegend(), pl)
	assert.ErrorContains(t, err, "measure names without measures")
}
