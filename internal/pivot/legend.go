package pivot

import (
	"fmt"
	"slices"

	"github.com/roach88/lens/internal/formula"
	"github.com/roach88/lens/internal/legend"
	"github.com/roach88/lens/internal/query"
)

// Role is the place of a pivot item in the table.
type Role string

const (
	RoleRow        Role = "row"
	RoleColumn     Role = "column"
	RoleMeasure    Role = "measure"
	RoleAnnotation Role = "annotation"
)

// ItemKind tells pseudo-dimensions from items backed by stream columns.
type ItemKind string

const (
	KindField       ItemKind = "field"
	KindMeasureName ItemKind = "measure_name"
)

// HeaderRole tells data headers from totals.
type HeaderRole string

const (
	HeaderData  HeaderRole = "data"
	HeaderTotal HeaderRole = "total"
)

// SortSettings orders one axis by the values a measure takes along a
// single header of the other axis.
type SortSettings struct {
	// HeaderValues identify the header, one value per dimension of its
	// axis. Measure-name values may be left out.
	HeaderValues []formula.Value

	Direction query.Direction

	// Role is the role of the header to match. Empty means data.
	Role HeaderRole
}

// MeasureSorting holds the per-axis sort settings of a measure. Column
// settings name a column and reorder the rows; row settings name a row
// and reorder the columns.
type MeasureSorting struct {
	Column *SortSettings
	Row    *SortSettings
}

// Item is one entry of the pivot legend.
type Item struct {
	ID            int
	Kind          ItemKind
	Role          Role
	Title         string
	LegendItemIDs []int

	// Direction orders dimension items. Empty means ascending.
	Direction query.Direction

	// Sorting is the optional measure sort of measure items.
	Sorting *MeasureSorting

	// AnnotationType and Targets describe annotation items. Nil Targets
	// annotate every measure.
	AnnotationType string
	Targets        []int
}

// Legend is the ordered list of pivot items. Dimension items appear in
// headers in legend order; measures transpose in legend order.
type Legend struct {
	Items []Item
}

// Item returns the pivot item with the given id.
func (l *Legend) Item(id int) (Item, bool) {
	for _, it := range l.Items {
		if it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}

// ForRole returns the items with the role, in legend order.
func (l *Legend) ForRole(role Role) []Item {
	var out []Item
	for _, it := range l.Items {
		if it.Role == role {
			out = append(out, it)
		}
	}
	return out
}

// ItemsFor returns the ids of the pivot items that consume a legend item.
func (l *Legend) ItemsFor(legendItemID int) []int {
	var out []int
	for _, it := range l.Items {
		if slices.Contains(it.LegendItemIDs, legendItemID) {
			out = append(out, it.ID)
		}
	}
	return out
}

// MeasureNameIDs returns the ids of measure-name items.
func (l *Legend) MeasureNameIDs() []int {
	var out []int
	for _, it := range l.Items {
		if it.Kind == KindMeasureName {
			out = append(out, it.ID)
		}
	}
	return out
}

// Validate checks the pivot legend against the request legend.
func (l *Legend) Validate(ll *legend.Legend) error {
	seen := make(map[int]bool, len(l.Items))
	for _, it := range l.Items {
		if seen[it.ID] {
			return fmt.Errorf("pivot item %d used twice", it.ID)
		}
		seen[it.ID] = true

		switch it.Role {
		case RoleRow, RoleColumn:
		case RoleMeasure, RoleAnnotation:
			if it.Kind == KindMeasureName {
				return fmt.Errorf("pivot item %d: measure names must be a row or column", it.ID)
			}
		default:
			return fmt.Errorf("pivot item %d: unknown role %q", it.ID, it.Role)
		}
		if len(it.LegendItemIDs) == 0 {
			return fmt.Errorf("pivot item %d consumes no legend items", it.ID)
		}
		for _, id := range it.LegendItemIDs {
			if _, ok := ll.Item(id); !ok {
				return fmt.Errorf("pivot item %d: unknown legend item %d", it.ID, id)
			}
		}
		if it.Direction != "" && it.Direction != query.Asc && it.Direction != query.Desc {
			return fmt.Errorf("pivot item %d: direction %q", it.ID, it.Direction)
		}
		if it.Sorting != nil && it.Role != RoleMeasure {
			return fmt.Errorf("pivot item %d: only measures have sort settings", it.ID)
		}
	}
	if len(l.MeasureNameIDs()) > 0 && len(l.ForRole(RoleMeasure)) == 0 {
		return fmt.Errorf("measure names without measures")
	}
	return nil
}

// legendItemMap merges legend items of the same field or template
// consumed by the same pivot item into the first of them, so the values
// of one dimension coming from different blocks group together.
func legendItemMap(ll *legend.Legend, pl *Legend) map[int]int {
	type key struct {
		name    string
		pivotID int
	}
	fields := make(map[key]int)
	templates := make(map[key]int)
	out := make(map[int]int)

	for _, it := range ll.Items {
		if it.FieldType == legend.Measure {
			continue
		}
		for _, piid := range pl.ItemsFor(it.ID) {
			var first map[key]int
			var name string
			switch {
			case it.Role == legend.RoleTotal:
				continue
			case it.Role == legend.RoleTemplate:
				first, name = templates, it.Template
			case it.Kind == legend.KindField:
				first, name = fields, it.FieldID
			default:
				continue
			}
			k := key{name: name, pivotID: piid}
			if to, ok := first[k]; ok {
				out[it.ID] = to
			} else {
				first[k] = it.ID
			}
		}
	}
	return out
}
