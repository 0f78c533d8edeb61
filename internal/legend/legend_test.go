package legend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lens/internal/formula"
	"github.com/roach88/lens/internal/query"
)

func dim(id int, fieldID string) Item {
	return Item{ID: id, Kind: KindField, FieldID: fieldID, Title: fieldID, Role: RoleRow, FieldType: Dimension, DataType: TypeString}
}

func measure(id int, fieldID string) Item {
	return Item{ID: id, Kind: KindField, FieldID: fieldID, Title: fieldID, Role: RoleMeasure, FieldType: Measure, DataType: TypeInteger}
}

func TestLegend_Accessors(t *testing.T) {
	l := &Legend{Items: []Item{
		dim(0, "city"),
		measure(1, "sales"),
		{ID: 2, Kind: KindField, FieldID: "city", Role: RoleOrderBy, Direction: query.Desc},
		{ID: 3, Kind: KindField, FieldID: "sales", Role: RoleFilter, FieldType: Measure,
			Filter: &Filter{Op: FilterGt, Values: []formula.Value{formula.Integer(10)}}, BlockID: 1},
	}}

	it, ok := l.Item(1)
	require.True(t, ok)
	assert.Equal(t, "sales", it.FieldID)
	_, ok = l.Item(9)
	assert.False(t, ok)

	assert.Equal(t, []int{0, 1}, l.StreamableIDs())
	assert.Len(t, l.ForRole(RoleOrderBy, RoleFilter), 2)
	assert.Equal(t, []int{0, 1}, l.BlockIDs())
	assert.Len(t, l.LimitToBlock(1).Items, 1)
}

func TestLegend_ValidateReportsEveryProblem(t *testing.T) {
	l := &Legend{Items: []Item{
		dim(0, "city"),
		dim(0, "region"),
		{ID: 1, Kind: KindField, Role: RoleRow},
		{ID: 2, Kind: KindField, FieldID: "sales", Role: RoleFilter},
		{ID: 3, Kind: KindField, FieldID: "sales", Role: RoleOrderBy, Direction: "sideways"},
		{ID: 4, Kind: KindField, FieldID: "p", Role: RoleParameter},
		{ID: 5, Kind: KindMeasureName, Role: RoleRow},
	}}

	errs := l.Validate()
	codes := make([]ErrorCode, len(errs))
	for i, err := range errs {
		var le *Error
		require.ErrorAs(t, err, &le)
		codes[i] = le.Code
	}
	assert.Equal(t, []ErrorCode{
		ErrCodeDuplicateItem,
		ErrCodeMissingField,
		ErrCodeMissingFilter,
		ErrCodeBadDirection,
		ErrCodeMissingValue,
	}, codes)
	assert.Contains(t, errs[0].Error(), "legend_item=0")
}
