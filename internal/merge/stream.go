// Package merge streams result rows and splices block streams together.
//
// A Stream is a pull iterator: call Next until it returns false, read the
// current row with Row, then check Err. Streams are single-pass and cannot
// be restarted; a stream and its row slices must not be shared between
// goroutines.
package merge

import (
	"github.com/roach88/lens/internal/formula"
	"github.com/roach88/lens/internal/legend"
)

// Row is one result row. Values[i] belongs to legend item LegendItemIDs[i].
type Row struct {
	Values        []formula.Value
	LegendItemIDs []int
}

// Value returns the first value of the given legend item.
func (r Row) Value(legendItemID int) (formula.Value, bool) {
	for i, id := range r.LegendItemIDs {
		if id == legendItemID {
			return r.Values[i], true
		}
	}
	return nil, false
}

// Stream is a single-pass row iterator.
type Stream interface {
	// Next advances to the next row. It returns false at the end of the
	// stream or on error.
	Next() bool

	// Row returns the current row. It is valid until the next call to Next.
	Row() Row

	// Err returns the error that stopped the stream, if any.
	Err() error
}

// SliceStream streams rows from memory.
func SliceStream(rows ...Row) Stream {
	return &sliceStream{rows: rows, pos: -1}
}

type sliceStream struct {
	rows []Row
	pos  int
}

func (s *sliceStream) Next() bool {
	if s.pos+1 >= len(s.rows) {
		s.pos = len(s.rows)
		return false
	}
	s.pos++
	return true
}

func (s *sliceStream) Row() Row   { return s.rows[s.pos] }
func (s *sliceStream) Err() error { return nil }

// ErrorStream is an empty stream that fails with err.
func ErrorStream(err error) Stream {
	return &errorStream{err: err}
}

type errorStream struct{ err error }

func (*errorStream) Next() bool   { return false }
func (*errorStream) Row() Row     { return Row{} }
func (s *errorStream) Err() error { return s.err }

// Collect drains s into a slice.
func Collect(s Stream) ([]Row, error) {
	var out []Row
	for s.Next() {
		out = append(out, s.Row())
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// EmptyRowStream yields the single constant row of a template-only block:
// template items carry their text, every other streamable item an empty
// string.
func EmptyRowStream(l *legend.Legend) Stream {
	var row Row
	for _, it := range l.Streamable() {
		value := formula.String("")
		if it.Role == legend.RoleTemplate {
			value = formula.String(it.Template)
		}
		row.Values = append(row.Values, value)
		row.LegendItemIDs = append(row.LegendItemIDs, it.ID)
	}
	return SliceStream(row)
}

// RemapLegendItems rewrites the legend item ids of every row through
// mapping. Ids without an entry are kept.
func RemapLegendItems(s Stream, mapping map[int]int) Stream {
	if len(mapping) == 0 {
		return s
	}
	return &remapStream{Stream: s, mapping: mapping}
}

type remapStream struct {
	Stream
	mapping map[int]int
}

func (s *remapStream) Row() Row {
	row := s.Stream.Row()
	ids := make([]int, len(row.LegendItemIDs))
	for i, id := range row.LegendItemIDs {
		if to, ok := s.mapping[id]; ok {
			id = to
		}
		ids[i] = id
	}
	return Row{Values: row.Values, LegendItemIDs: ids}
}
