// Package legend describes what a data request asks for.
//
// A Legend is the ordered list of items a client requested: dimensions and
// measures to select, filters, orderings, parameters, totals and templates.
// Items are grouped into blocks; every block becomes one compiled query and
// the blocks' result streams are merged back together by placement.
package legend

import (
	"fmt"
	"slices"

	"github.com/roach88/lens/internal/formula"
	"github.com/roach88/lens/internal/query"
)

// Role is what a legend item does in the request.
type Role string

const (
	RoleRow       Role = "row"
	RoleMeasure   Role = "measure"
	RoleInfo      Role = "info"
	RoleOrderBy   Role = "order_by"
	RoleFilter    Role = "filter"
	RoleParameter Role = "parameter"
	RoleDistinct  Role = "distinct"
	RoleRange     Role = "range"
	RoleTotal     Role = "total"
	RoleTemplate  Role = "template"
	RoleTree      Role = "tree"
)

// FieldType tells dimensions from measures.
type FieldType string

const (
	Dimension FieldType = "dimension"
	Measure   FieldType = "measure"
)

// DataType is the user-facing type of an item's values.
type DataType string

const (
	TypeString   DataType = "string"
	TypeInteger  DataType = "integer"
	TypeFloat    DataType = "float"
	TypeBoolean  DataType = "boolean"
	TypeDate     DataType = "date"
	TypeDateTime DataType = "datetime"
)

// Kind is the kind of object an item refers to.
type Kind string

const (
	// KindField refers to a dataset field.
	KindField Kind = "field"

	// KindMeasureName is the pseudo-dimension listing measure titles in a
	// pivot table.
	KindMeasureName Kind = "measure_name"

	// KindDimensionName is the pseudo-dimension listing dimension titles.
	KindDimensionName Kind = "dimension_name"
)

// FilterOp is a filter operation.
type FilterOp string

const (
	FilterEq         FilterOp = "eq"
	FilterNe         FilterOp = "ne"
	FilterGt         FilterOp = "gt"
	FilterGte        FilterOp = "gte"
	FilterLt         FilterOp = "lt"
	FilterLte        FilterOp = "lte"
	FilterIn         FilterOp = "in"
	FilterNotIn      FilterOp = "notin"
	FilterIsNull     FilterOp = "isnull"
	FilterIsNotNull  FilterOp = "isnotnull"
	FilterContains   FilterOp = "contains"
	FilterStartsWith FilterOp = "startswith"
	FilterBetween    FilterOp = "between"
)

// Filter is the condition of a filter item.
type Filter struct {
	Op     FilterOp
	Values []formula.Value
}

// DimensionValue pins one dimension to a value, for tree and after
// placements.
type DimensionValue struct {
	LegendItemID int
	Value        formula.Value
}

// Item is one entry of a legend.
type Item struct {
	ID        int
	Kind      Kind
	FieldID   string
	Title     string
	Role      Role
	FieldType FieldType
	DataType  DataType
	BlockID   int

	// Direction is set for order_by items.
	Direction query.Direction

	// Filter is set for filter items.
	Filter *Filter

	// Value is set for parameter items.
	Value formula.Value

	// Template is the text of template items.
	Template string

	// DimensionValues is the branch a tree item expands.
	DimensionValues []DimensionValue
}

// Streamable reports whether the item produces a column of the result
// stream. Pseudo-dimensions exist only in pivot tables.
func (i Item) Streamable() bool {
	if i.Kind == KindMeasureName || i.Kind == KindDimensionName {
		return false
	}
	switch i.Role {
	case RoleFilter, RoleOrderBy, RoleParameter:
		return false
	default:
		return true
	}
}

// Legend is the ordered list of requested items.
type Legend struct {
	Items []Item
}

// Item returns the item with the given id.
func (l *Legend) Item(id int) (Item, bool) {
	for _, it := range l.Items {
		if it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}

// ForRole returns the items with any of the given roles, in legend order.
func (l *Legend) ForRole(roles ...Role) []Item {
	var out []Item
	for _, it := range l.Items {
		if slices.Contains(roles, it.Role) {
			out = append(out, it)
		}
	}
	return out
}

// Streamable returns the items that produce result columns, in legend
// order.
func (l *Legend) Streamable() []Item {
	var out []Item
	for _, it := range l.Items {
		if it.Streamable() {
			out = append(out, it)
		}
	}
	return out
}

// StreamableIDs returns the ids of Streamable.
func (l *Legend) StreamableIDs() []int {
	items := l.Streamable()
	out := make([]int, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

// BlockIDs returns the distinct block ids used by items, sorted.
func (l *Legend) BlockIDs() []int {
	var out []int
	for _, it := range l.Items {
		out = append(out, it.BlockID)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// LimitToBlock returns the legend of one block.
func (l *Legend) LimitToBlock(blockID int) *Legend {
	out := &Legend{}
	for _, it := range l.Items {
		if it.BlockID == blockID {
			out.Items = append(out.Items, it)
		}
	}
	return out
}

// Validate checks item ids are unique and every item has the attributes
// its role needs. All problems are returned, not only the first one.
func (l *Legend) Validate() []error {
	var errs []error
	seen := make(map[int]bool, len(l.Items))
	for _, it := range l.Items {
		if seen[it.ID] {
			errs = append(errs, newItemError(ErrCodeDuplicateItem, it.ID, "legend item id used twice"))
		}
		seen[it.ID] = true

		switch {
		case it.Kind == KindField && it.FieldID == "" && it.Role != RoleTemplate:
			errs = append(errs, newItemError(ErrCodeMissingField, it.ID, "field item without field id"))
		case it.Role == RoleFilter && it.Filter == nil:
			errs = append(errs, newItemError(ErrCodeMissingFilter, it.ID, "filter item without condition"))
		case it.Role == RoleOrderBy && it.Direction != query.Asc && it.Direction != query.Desc:
			errs = append(errs, newItemError(ErrCodeBadDirection, it.ID, fmt.Sprintf("order direction %q", it.Direction)))
		case it.Role == RoleParameter && it.Value == nil:
			errs = append(errs, newItemError(ErrCodeMissingValue, it.ID, "parameter item without value"))
		}
	}
	return errs
}
