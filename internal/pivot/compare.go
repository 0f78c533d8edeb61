package pivot

import (
	"cmp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"

	"github.com/roach88/lens/internal/formula"
	"github.com/roach88/lens/internal/legend"
)

// cellOrder compares header cells. Null sorts first, measure names follow
// the legend order of their measures, strings compare case-insensitively
// and string values of numeric items compare as numbers.
type cellOrder struct {
	legend   *legend.Legend
	measures map[int]int
	fold     cases.Caser
}

func newCellOrder(l *legend.Legend, pl *Legend) *cellOrder {
	o := &cellOrder{legend: l, measures: make(map[int]int), fold: cases.Fold()}
	for i, m := range pl.ForRole(RoleMeasure) {
		o.measures[m.ID] = i
	}
	return o
}

func (o *cellOrder) compare(a, b Cell) int {
	if a.MeasureName != nil && b.MeasureName != nil {
		return cmp.Compare(o.measures[a.MeasureName.PivotItemID], o.measures[b.MeasureName.PivotItemID])
	}

	an, bn := isNull(a.Value), isNull(b.Value)
	switch {
	case an && bn:
		return 0
	case an:
		return -1
	case bn:
		return 1
	}

	if x, ok := o.number(a); ok {
		if y, ok := o.number(b); ok {
			return cmp.Compare(x, y)
		}
	}

	switch x := a.Value.(type) {
	case formula.String:
		if y, ok := b.Value.(formula.String); ok {
			if c := strings.Compare(o.fold.String(string(x)), o.fold.String(string(y))); c != 0 {
				return c
			}
			return strings.Compare(string(x), string(y))
		}
	case formula.Boolean:
		if y, ok := b.Value.(formula.Boolean); ok {
			return cmp.Compare(boolRank(bool(x)), boolRank(bool(y)))
		}
	}
	return strings.Compare(formula.TypeName(a.Value), formula.TypeName(b.Value))
}

// number returns the numeric value of c. Strings count when the legend
// item they come from is numeric.
func (o *cellOrder) number(c Cell) (float64, bool) {
	switch v := c.Value.(type) {
	case formula.Integer:
		return float64(v), true
	case formula.Float:
		return float64(v), true
	case formula.String:
		it, ok := o.legend.Item(c.LegendItemID)
		if !ok || (it.DataType != legend.TypeInteger && it.DataType != legend.TypeFloat) {
			return 0, false
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(string(v)), 64)
		return f, err == nil
	}
	return 0, false
}

func isNull(v formula.Value) bool {
	switch v.(type) {
	case nil, formula.Null:
		return true
	}
	return false
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}

// text renders v for matching against header values given by clients.
func text(v formula.Value) string {
	switch val := v.(type) {
	case nil, formula.Null:
		return "\x00null"
	case formula.String:
		return string(val)
	case formula.Integer:
		return strconv.FormatInt(int64(val), 10)
	case formula.Float:
		return strconv.FormatFloat(float64(val), 'g', -1, 64)
	case formula.Boolean:
		return strconv.FormatBool(bool(val))
	}
	return formula.FormatValue(v)
}

// valueKey identifies v for grouping headers.
func valueKey(v formula.Value) string {
	if isNull(v) {
		return "null"
	}
	return formula.TypeName(v) + ":" + text(v)
}
