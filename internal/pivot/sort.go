package pivot

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/roach88/lens/internal/formula"
	"github.com/roach88/lens/internal/query"
)

// SortingError reports a measure sort whose target header cannot be
// determined. It is user-correctable.
type SortingError struct {
	Code    SortingErrorCode
	Message string
}

// SortingErrorCode categorizes sorting errors.
type SortingErrorCode string

const (
	ErrCodeSortTargetNotFound  SortingErrorCode = "SORT_TARGET_NOT_FOUND"
	ErrCodeSortTargetAmbiguous SortingErrorCode = "SORT_TARGET_AMBIGUOUS"
)

// Error implements the error interface.
func (e *SortingError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsSortingError returns true if err is or wraps a SortingError.
func IsSortingError(err error) bool {
	var se *SortingError
	return errors.As(err, &se)
}

// keyPart is one dimension of a header sort key. Inverted parts compare
// in reverse, which lets one ascending sort order mixed directions.
type keyPart struct {
	cell     Cell
	inverted bool
}

// Sort orders both axes by their dimensions, then applies the sort
// settings of every measure in legend order. Totals stay last on both
// axes.
func (f *Frame) Sort() error {
	o := newCellOrder(f.legend, f.pivot)
	f.rowOrder = f.sortAxis(o, f.rows, f.rowOrder, f.pivot.ForRole(RoleRow))
	f.colOrder = f.sortAxis(o, f.cols, f.colOrder, f.pivot.ForRole(RoleColumn))

	for _, m := range f.pivot.ForRole(RoleMeasure) {
		if m.Sorting == nil {
			continue
		}
		if s := m.Sorting.Column; s != nil {
			c, err := findHeader(f.cols, f.colOrder, s, "column")
			if err != nil {
				return err
			}
			f.rowOrder = f.orderByMeasure(o, f.rows, f.rowOrder, m.ID, s.Direction, func(r int) *Vector {
				return f.cells[[2]int{r, c}]
			})
			f.cols[c].Info.Direction = s.Direction
		}
		if s := m.Sorting.Row; s != nil {
			r, err := findHeader(f.rows, f.rowOrder, s, "row")
			if err != nil {
				return err
			}
			f.colOrder = f.orderByMeasure(o, f.cols, f.colOrder, m.ID, s.Direction, func(c int) *Vector {
				return f.cells[[2]int{r, c}]
			})
			f.rows[r].Info.Direction = s.Direction
		}
	}

	slog.Debug("pivot sorted", "rows", len(f.rowOrder), "columns", len(f.colOrder))
	return nil
}

// sortAxis orders one axis by its dimensions. When every dimension is
// descending the axis is sorted ascending and reversed; otherwise the
// descending dimensions are inverted within the key.
func (f *Frame) sortAxis(o *cellOrder, headers []Header, order []int, dims []Item) []int {
	if len(dims) == 0 {
		return order
	}
	allDesc := true
	for _, d := range dims {
		if d.Direction != query.Desc {
			allDesc = false
			break
		}
	}

	keys := sortKeys(headers, order, dims, allDesc)
	compare := func(a, b int) int {
		ka, kb := keys[a], keys[b]
		for j := 0; j < len(ka) && j < len(kb); j++ {
			c := o.compare(ka[j].cell, kb[j].cell)
			if ka[j].inverted {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return len(ka) - len(kb)
	}

	data, totals := splitTotals(headers, order)
	slices.SortStableFunc(data, compare)
	if allDesc {
		slices.Reverse(data)
	}
	slices.SortStableFunc(totals, compare)
	return append(data, totals...)
}

// sortKeys builds the sort key of every header in order, indexed like
// headers.
func sortKeys(headers []Header, order []int, dims []Item, allDesc bool) [][]keyPart {
	keys := make([][]keyPart, len(headers))
	for _, i := range order {
		h := headers[i]
		parts := make([]keyPart, len(h.Values))
		for j, v := range h.Values {
			parts[j] = keyPart{cell: v.first(), inverted: !allDesc && j < len(dims) && dims[j].Direction == query.Desc}
		}
		keys[i] = parts
	}
	return keys
}

// orderByMeasure reorders an axis by the values of one measure along a
// single header of the other axis. Missing values count as null.
func (f *Frame) orderByMeasure(o *cellOrder, headers []Header, order []int, measureID int, dir query.Direction, at func(int) *Vector) []int {
	value := func(i int) Cell {
		if vec := at(i); vec != nil {
			for _, c := range vec.Cells {
				if c.PivotItemID == measureID {
					return c
				}
			}
		}
		return Cell{Value: formula.Null{}}
	}

	data, totals := splitTotals(headers, order)
	slices.SortStableFunc(data, func(a, b int) int {
		c := o.compare(value(a), value(b))
		if dir == query.Desc {
			c = -c
		}
		return c
	})
	return append(data, totals...)
}

func splitTotals(headers []Header, order []int) (data, totals []int) {
	data = make([]int, 0, len(order))
	for _, i := range order {
		if headers[i].IsTotal() {
			totals = append(totals, i)
		} else {
			data = append(data, i)
		}
	}
	return data, totals
}

// findHeader returns the only header matching s.
func findHeader(headers []Header, order []int, s *SortSettings, axis string) (int, error) {
	found := -1
	for _, i := range order {
		if !matchHeader(headers[i], s) {
			continue
		}
		if found >= 0 {
			return 0, &SortingError{
				Code:    ErrCodeSortTargetAmbiguous,
				Message: fmt.Sprintf("several %ss match header values (%s)", axis, describe(s.HeaderValues)),
			}
		}
		found = i
	}
	if found < 0 {
		return 0, &SortingError{
			Code:    ErrCodeSortTargetNotFound,
			Message: fmt.Sprintf("no %s matches header values (%s)", axis, describe(s.HeaderValues)),
		}
	}
	return found, nil
}

// matchHeader compares h with the declared values, either against all of
// its dimensions or against the ones left after dropping measure names.
func matchHeader(h Header, s *SortSettings) bool {
	role := s.Role
	if role == "" {
		role = HeaderData
	}
	if h.Info.Role != role {
		return false
	}

	all := make([]Cell, 0, len(h.Values))
	var dims []Cell
	for _, v := range h.Values {
		c := v.first()
		all = append(all, c)
		if c.MeasureName == nil {
			dims = append(dims, c)
		}
	}
	return sameCells(all, s.HeaderValues) || sameCells(dims, s.HeaderValues)
}

func sameCells(cells []Cell, values []formula.Value) bool {
	if len(cells) != len(values) {
		return false
	}
	for i, c := range cells {
		if text(c.Value) != text(values[i]) {
			return false
		}
	}
	return true
}

func describe(values []formula.Value) string {
	parts := make([]string, len(values))
	for i, v := range values {
		if v == nil {
			v = formula.Null{}
		}
		parts[i] = formula.FormatValue(v)
	}
	return strings.Join(parts, ", ")
}
