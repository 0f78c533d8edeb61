package pivot

import (
	"strings"

	"github.com/roach88/lens/internal/formula"
)

// Table renders the frame as a grid of display strings: one line per
// column dimension, then one line per row. The first cells of every line
// hold the row headers; header lines leave them empty. Missing
// intersections render as empty strings.
func (f *Frame) Table() [][]string {
	rowDims := len(f.pivot.ForRole(RoleRow))
	colDims := len(f.pivot.ForRole(RoleColumn))
	cols := f.Columns()

	var out [][]string
	for d := range colDims {
		line := make([]string, rowDims, rowDims+len(cols))
		for _, h := range cols {
			line = append(line, vectorText(h, d))
		}
		out = append(out, line)
	}

	for _, row := range f.Rows() {
		line := make([]string, 0, rowDims+len(cols))
		for d := range rowDims {
			line = append(line, vectorText(row.Header, d))
		}
		for _, v := range row.Values {
			if v == nil {
				line = append(line, "")
				continue
			}
			line = append(line, display(v.first().Value))
		}
		out = append(out, line)
	}
	return out
}

func vectorText(h Header, d int) string {
	if d >= len(h.Values) {
		return ""
	}
	parts := make([]string, len(h.Values[d].Cells))
	for i, c := range h.Values[d].Cells {
		parts[i] = display(c.Value)
	}
	return strings.Join(parts, " ")
}

func display(v formula.Value) string {
	switch val := v.(type) {
	case formula.Null:
		return ""
	case formula.String:
		return string(val)
	default:
		return formula.FormatValue(v)
	}
}
