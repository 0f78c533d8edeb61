// Package pivot reshapes a merged result stream into a two-axis table.
//
// Build reads the stream once, transposes measures into rows of
// (dimensions, value vector), and places every value vector at the
// intersection of its row and column headers. Sort then orders both axes
// by their dimensions and applies measure sort settings.
package pivot

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/roach88/lens/internal/formula"
	"github.com/roach88/lens/internal/legend"
	"github.com/roach88/lens/internal/merge"
	"github.com/roach88/lens/internal/query"
)

// MeasureName marks a measure-name cell: the measure it names.
type MeasureName struct {
	Title       string
	PivotItemID int
}

// Cell is one value of the table, tagged with the items it came from.
type Cell struct {
	Value        formula.Value
	LegendItemID int
	PivotItemID  int

	// MeasureName is set on measure-name cells. Value then holds the
	// measure title.
	MeasureName *MeasureName
}

// Vector is an ordered group of cells: one dimension value in a header,
// or a measure value followed by its annotations.
type Vector struct {
	Cells []Cell
}

func (v Vector) first() Cell {
	if len(v.Cells) == 0 {
		return Cell{Value: formula.Null{}}
	}
	return v.Cells[0]
}

// HeaderInfo holds per-header attributes.
type HeaderInfo struct {
	// Direction is set on the header a measure sort was keyed on.
	Direction query.Direction

	Role HeaderRole
}

// Header is a row or column header: one vector per axis dimension.
type Header struct {
	Values []Vector
	Info   HeaderInfo
}

// IsTotal reports whether the header belongs to a total.
func (h Header) IsTotal() bool { return h.Info.Role == HeaderTotal }

// DataRow is one table row. Values has one entry per column; nil marks a
// missing intersection.
type DataRow struct {
	Header Header
	Values []*Vector
}

// Frame is the pivot table. It is built once per response and is not
// safe for concurrent use.
type Frame struct {
	legend *legend.Legend
	pivot  *Legend

	rows, cols []Header
	cells      map[[2]int]*Vector

	// rowOrder and colOrder are the current axis orders as indexes into
	// rows and cols.
	rowOrder, colOrder []int
}

// Columns returns the column headers in order.
func (f *Frame) Columns() []Header {
	out := make([]Header, len(f.colOrder))
	for i, c := range f.colOrder {
		out[i] = f.cols[c]
	}
	return out
}

// Rows returns the table rows in order.
func (f *Frame) Rows() []DataRow {
	out := make([]DataRow, len(f.rowOrder))
	for i, r := range f.rowOrder {
		values := make([]*Vector, len(f.colOrder))
		for j, c := range f.colOrder {
			values[j] = f.cells[[2]int{r, c}]
		}
		out[i] = DataRow{Header: f.rows[r], Values: values}
	}
	return out
}

// Build pivots s. Headers keep the order of their first appearance in the
// stream until Sort is called.
func Build(s merge.Stream, l *legend.Legend, pl *Legend) (*Frame, error) {
	if err := pl.Validate(l); err != nil {
		return nil, fmt.Errorf("invalid pivot legend: %w", err)
	}

	t := newTransposer(pl)
	f := &Frame{legend: l, pivot: pl, cells: make(map[[2]int]*Vector)}
	rowIdx := make(map[string]int)
	colIdx := make(map[string]int)

	s = merge.RemapLegendItems(s, legendItemMap(l, pl))
	for s.Next() {
		records, err := t.transpose(s.Row())
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			r := f.header(&f.rows, &f.rowOrder, rowIdx, rec.rows)
			c := f.header(&f.cols, &f.colOrder, colIdx, rec.cols)
			if rec.value == nil {
				continue
			}
			at := [2]int{r, c}
			if _, dup := f.cells[at]; dup {
				slog.Debug("duplicate pivot intersection, keeping first", "row", r, "column", c)
				continue
			}
			f.cells[at] = rec.value
		}
	}
	if err := s.Err(); err != nil {
		return nil, err
	}

	slog.Debug("pivot built", "rows", len(f.rows), "columns", len(f.cols))
	return f, nil
}

// header returns the index of the header with the given dimension
// vectors, adding it on first sight.
func (f *Frame) header(headers *[]Header, order *[]int, index map[string]int, values []Vector) int {
	key := headerKey(values)
	if i, ok := index[key]; ok {
		return i
	}
	h := Header{Values: values, Info: HeaderInfo{Role: HeaderData}}
	if f.isTotal(values) {
		h.Info.Role = HeaderTotal
	}
	i := len(*headers)
	*headers = append(*headers, h)
	*order = append(*order, i)
	index[key] = i
	return i
}

func (f *Frame) isTotal(values []Vector) bool {
	for _, v := range values {
		for _, c := range v.Cells {
			if it, ok := f.legend.Item(c.LegendItemID); ok && it.Role == legend.RoleTotal {
				return true
			}
		}
	}
	return false
}

func headerKey(values []Vector) string {
	var b strings.Builder
	for _, v := range values {
		for _, c := range v.Cells {
			fmt.Fprintf(&b, "%d/%d/", c.LegendItemID, c.PivotItemID)
			if c.MeasureName != nil {
				fmt.Fprintf(&b, "m%d", c.MeasureName.PivotItemID)
			} else {
				b.WriteString(valueKey(c.Value))
			}
			b.WriteByte(0)
		}
		b.WriteByte(1)
	}
	return b.String()
}

// record is one transposed stream row: a value vector and the dimension
// vectors of both axes. value is nil when the legend has no measures.
type record struct {
	rows, cols []Vector
	value      *Vector
}

type transposer struct {
	pivot *Legend

	rowDims, colDims []Item
	measures         []Item

	measureNameLegendID int
	annotations         map[int][]int
}

func newTransposer(pl *Legend) *transposer {
	t := &transposer{
		pivot:       pl,
		rowDims:     pl.ForRole(RoleRow),
		colDims:     pl.ForRole(RoleColumn),
		measures:    pl.ForRole(RoleMeasure),
		annotations: make(map[int][]int),
	}
	if ids := pl.MeasureNameIDs(); len(ids) > 0 {
		it, _ := pl.Item(ids[0])
		t.measureNameLegendID = it.LegendItemIDs[0]
	}

	annos := pl.ForRole(RoleAnnotation)
	for _, m := range t.measures {
		for _, liid := range m.LegendItemIDs {
			for _, a := range annos {
				if a.Targets == nil || slices.Contains(a.Targets, liid) {
					t.annotations[liid] = append(t.annotations[liid], a.ID)
				}
			}
		}
	}
	if len(t.measures) == 0 {
		slog.Debug("no measures in pivot legend, using a fake one")
	}
	return t
}

func (t *transposer) transpose(row merge.Row) ([]record, error) {
	byPivotID := make(map[int]Cell)
	for i, liid := range row.LegendItemIDs {
		for _, piid := range t.pivot.ItemsFor(liid) {
			if _, ok := byPivotID[piid]; ok {
				continue
			}
			v := row.Values[i]
			if v == nil {
				v = formula.Null{}
			}
			byPivotID[piid] = Cell{Value: v, LegendItemID: liid, PivotItemID: piid}
		}
	}

	if len(t.measures) == 0 {
		rows, err := t.dimensions(t.rowDims, byPivotID, nil)
		if err != nil {
			return nil, err
		}
		cols, err := t.dimensions(t.colDims, byPivotID, nil)
		if err != nil {
			return nil, err
		}
		return []record{{rows: rows, cols: cols}}, nil
	}

	out := make([]record, 0, len(t.measures))
	for _, m := range t.measures {
		value, ok := byPivotID[m.ID]
		if !ok {
			return nil, fmt.Errorf("row has no value for measure %q (pivot item %d)", m.Title, m.ID)
		}
		vec := &Vector{Cells: []Cell{value}}
		for _, aid := range t.annotations[value.LegendItemID] {
			anno, ok := byPivotID[aid]
			if !ok {
				return nil, fmt.Errorf("row has no value for annotation pivot item %d", aid)
			}
			vec.Cells = append(vec.Cells, anno)
		}

		rows, err := t.dimensions(t.rowDims, byPivotID, &m)
		if err != nil {
			return nil, err
		}
		cols, err := t.dimensions(t.colDims, byPivotID, &m)
		if err != nil {
			return nil, err
		}
		out = append(out, record{rows: rows, cols: cols, value: vec})
	}
	return out, nil
}

// dimensions builds the header vectors of one axis. Measure-name items
// take the title of measure.
func (t *transposer) dimensions(dims []Item, cells map[int]Cell, measure *Item) ([]Vector, error) {
	out := make([]Vector, 0, len(dims))
	for _, d := range dims {
		if d.Kind == KindMeasureName {
			if measure == nil {
				continue
			}
			out = append(out, Vector{Cells: []Cell{{
				Value:        formula.String(measure.Title),
				LegendItemID: t.measureNameLegendID,
				PivotItemID:  d.ID,
				MeasureName:  &MeasureName{Title: measure.Title, PivotItemID: measure.ID},
			}}})
			continue
		}
		c, ok := cells[d.ID]
		if !ok {
			return nil, fmt.Errorf("row has no value for dimension %q (pivot item %d)", d.Title, d.ID)
		}
		out = append(out, Vector{Cells: []Cell{c}})
	}
	return out, nil
}
