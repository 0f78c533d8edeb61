package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/lens/internal/formula"
	"github.com/roach88/lens/internal/legend"
	"github.com/roach88/lens/internal/query"
)

func codesOf(errs []ValidationError) map[string]bool {
	codes := make(map[string]bool)
	for _, e := range errs {
		codes[e.Code] = true
	}
	return codes
}

func TestValidateDataset_Valid(t *testing.T) {
	assert.Empty(t, ValidateDataset(ordersDataset()))
}

func TestValidateDataset_CollectsAllErrors(t *testing.T) {
	ds := &Dataset{
		Fields: []Field{
			{ID: "", Type: legend.Dimension, DataType: legend.TypeString, Expr: formula.Ref("t", "a")},
			{ID: "1bad", Type: legend.Dimension, DataType: legend.TypeString, Expr: formula.Ref("t", "a")},
			{ID: "dup", Type: legend.Dimension, DataType: legend.TypeString, Expr: formula.Ref("t", "a")},
			{ID: "dup", Type: legend.Dimension, DataType: legend.TypeString, Expr: formula.Ref("t", "b")},
			{ID: "noexpr", Type: legend.Measure, DataType: legend.TypeInteger},
			{ID: "dangling", Type: legend.Measure, DataType: legend.TypeInteger, Expr: formula.Ref("", "gone")},
			{ID: "ghost", Type: legend.Dimension, DataType: legend.TypeString, Expr: formula.Ref("z", "a")},
			{ID: "typeless", Type: "metric", DataType: "decimal", Expr: formula.Ref("t", "a")},
		},
		From: query.JoinedFrom{RootID: "missing", Froms: []query.FromObject{
			query.AvatarFrom{ID: "t", Table: "orders"},
			query.AvatarFrom{ID: "t", Table: "orders"},
		}},
		Joins: []Join{
			{LeftID: "t", RightID: "q", Type: query.JoinInner, Condition: formula.Lit(true)},
			{LeftID: "t", RightID: "t", Type: "cross"},
		},
	}

	codes := codesOf(ValidateDataset(ds))
	for _, code := range []string{
		ErrFieldIDEmpty, ErrFieldIDInvalid, ErrDuplicateField, ErrFieldNoExpr, ErrUnknownFieldRef,
		ErrUnknownAvatar, ErrInvalidFieldTypes, ErrNoRootAvatar, ErrDuplicateAvatar, ErrInvalidJoin, ErrJoinNoCondition,
	} {
		assert.True(t, codes[code], "missing %s", code)
	}
}

func TestValidateDataset_Cycle(t *testing.T) {
	ds := ordersDataset()
	ds.Fields = append(ds.Fields,
		Field{ID: "a", Type: legend.Measure, DataType: legend.TypeInteger, Expr: formula.Ref("", "a")},
	)

	errs := ValidateDataset(ds)
	assert.True(t, codesOf(errs)[ErrFieldCycle])
	assert.Contains(t, errs[len(errs)-1].Error(), "[E206] fields.a")
}

func TestValidateRequest(t *testing.T) {
	l := &legend.Legend{Items: []legend.Item{
		item(0, "city", legend.RoleRow),
		item(1, "unknown", legend.RoleMeasure),
		item(1, "sales", legend.RoleMeasure),
		{ID: 2, Kind: legend.KindMeasureName, Role: legend.RoleRow},
	}}

	codes := codesOf(ValidateRequest(ordersDataset(), l))
	assert.Equal(t, map[string]bool{ErrUnknownLegendField: true, ErrLegend: true}, codes)
}

func TestValidationErrorFormat(t *testing.T) {
	err := ValidationError{Field: "fields[0].id", Message: "field id is required", Code: ErrFieldIDEmpty}
	assert.Equal(t, "[E201] fields[0].id: field id is required", err.Error())
}
