package engine

import (
	"fmt"

	"github.com/roach88/lens/internal/formula"
	"github.com/roach88/lens/internal/legend"
	"github.com/roach88/lens/internal/merge"
	"github.com/roach88/lens/internal/query"
)

// Result is the materialized output of one query. Columns are the select
// aliases of the query, in select order.
type Result struct {
	Columns []string
	Rows    [][]formula.Value
}

// Column returns the index of the column with the given alias.
func (r *Result) Column(alias string) (int, bool) {
	for i, c := range r.Columns {
		if c == alias {
			return i, true
		}
	}
	return 0, false
}

// checkShape verifies r has one column per select formula of q.
func (r *Result) checkShape(q *query.CompiledQuery) error {
	if r == nil {
		return fmt.Errorf("executor returned no result")
	}
	if len(r.Columns) != len(q.Select) {
		return fmt.Errorf("result has %d columns, query selects %d", len(r.Columns), len(q.Select))
	}
	for i, row := range r.Rows {
		if len(row) != len(r.Columns) {
			return fmt.Errorf("result row %d has %d values, want %d", i, len(row), len(r.Columns))
		}
	}
	return nil
}

// resultStream streams the rows of a top-level result tagged with legend
// item ids. Select formulas without a legend item, or whose item l does not
// stream, are left out.
func resultStream(r *Result, q *query.CompiledQuery, l *legend.Legend) merge.Stream {
	var cols, ids []int
	for i, f := range q.Select {
		if f.LegendItemID == query.NoLegendItem {
			continue
		}
		if l != nil {
			it, ok := l.Item(f.LegendItemID)
			if !ok || !it.Streamable() {
				continue
			}
		}
		cols = append(cols, i)
		ids = append(ids, f.LegendItemID)
	}

	rows := make([]merge.Row, len(r.Rows))
	for i, values := range r.Rows {
		row := merge.Row{Values: make([]formula.Value, len(cols)), LegendItemIDs: ids}
		for j, c := range cols {
			row.Values[j] = values[c]
		}
		rows[i] = row
	}
	return merge.SliceStream(rows...)
}
