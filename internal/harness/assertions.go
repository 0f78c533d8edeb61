package harness

import (
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/roach88/lens/internal/formula"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
	Plans    []PlanSnapshot
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Plans) > 0 {
		fmt.Fprintf(&buf, "\nPlans:\n")
		for _, p := range e.Plans {
			if p.EmptyRow {
				fmt.Fprintf(&buf, "  block %d: empty row\n", p.Block)
				continue
			}
			fmt.Fprintf(&buf, "  block %d:\n", p.Block)
			for _, line := range strings.Split(strings.TrimRight(p.Explain, "\n"), "\n") {
				fmt.Fprintf(&buf, "    %s\n", line)
			}
		}
	}
	return buf.String()
}

// assertRows checks the merged rows. With ordered unset, rows match as a
// multiset.
func assertRows(result *Result, assertion Assertion, ordered bool) error {
	expected, err := expectedRows(assertion.Rows)
	if err != nil {
		return err
	}
	fail := &AssertionError{
		Type:     assertion.Type,
		Expected: formatRows(expected),
		Actual:   formatRows(result.Rows),
		Plans:    result.Plans,
	}
	if len(expected) != len(result.Rows) {
		return fail
	}

	if ordered {
		for i := range expected {
			if !rowEqual(result.Rows[i], expected[i]) {
				return fail
			}
		}
		return nil
	}

	used := make([]bool, len(result.Rows))
	for _, want := range expected {
		found := false
		for i, got := range result.Rows {
			if !used[i] && rowEqual(got, want) {
				used[i] = true
				found = true
				break
			}
		}
		if !found {
			return fail
		}
	}
	return nil
}

func expectedRows(rows [][]any) ([][]formula.Value, error) {
	out := make([][]formula.Value, len(rows))
	for i, row := range rows {
		out[i] = make([]formula.Value, len(row))
		for j, cell := range row {
			v, err := formula.FromNative(cell)
			if err != nil {
				return nil, fmt.Errorf("rows[%d][%d]: %w", i, j, err)
			}
			out[i][j] = v
		}
	}
	return out, nil
}

func rowEqual(actual, expected []formula.Value) bool {
	if len(actual) != len(expected) {
		return false
	}
	for i := range actual {
		if !valuesEqual(actual[i], expected[i]) {
			return false
		}
	}
	return true
}

// valuesEqual compares two values. Numbers compare by magnitude, so an
// expected 30 matches both an integer and a float result.
func valuesEqual(actual, expected formula.Value) bool {
	a, aNum := number(actual)
	e, eNum := number(expected)
	if aNum && eNum {
		return a == e
	}
	return reflect.DeepEqual(actual, expected)
}

func number(v formula.Value) (float64, bool) {
	switch n := v.(type) {
	case formula.Integer:
		return float64(n), true
	case formula.Float:
		return float64(n), true
	default:
		return 0, false
	}
}

func formatRows(rows [][]formula.Value) string {
	parts := make([]string, len(rows))
	for i, row := range rows {
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = formula.FormatValue(v)
		}
		parts[i] = "[" + strings.Join(cells, ", ") + "]"
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func assertRowCount(result *Result, assertion Assertion) error {
	if len(result.Rows) == assertion.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertRowCount,
		Expected: fmt.Sprintf("%d rows", assertion.Count),
		Actual:   fmt.Sprintf("%d rows", len(result.Rows)),
		Plans:    result.Plans,
	}
}

func assertPivotTable(result *Result, assertion Assertion) error {
	if slices.EqualFunc(result.Table, assertion.Table, func(a, b []string) bool { return slices.Equal(a, b) }) {
		return nil
	}
	return &AssertionError{
		Type:     AssertPivotTable,
		Expected: fmt.Sprintf("%q", assertion.Table),
		Actual:   fmt.Sprintf("%q", result.Table),
		Plans:    result.Plans,
	}
}

func assertQueryCount(result *Result, assertion Assertion) error {
	if result.Queries == assertion.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertQueryCount,
		Expected: fmt.Sprintf("%d executed queries", assertion.Count),
		Actual:   fmt.Sprintf("%d executed queries", result.Queries),
		Plans:    result.Plans,
	}
}

// assertLevels checks the level types of the root block plan.
func assertLevels(result *Result, assertion Assertion) error {
	var actual []string
	if len(result.Plans) > 0 {
		for _, lt := range result.Plans[0].Levels {
			actual = append(actual, string(lt))
		}
	}
	if slices.Equal(actual, assertion.Levels) {
		return nil
	}
	return &AssertionError{
		Type:     AssertLevels,
		Expected: fmt.Sprintf("%v", assertion.Levels),
		Actual:   fmt.Sprintf("%v", actual),
		Plans:    result.Plans,
	}
}

func assertError(result *Result, assertion Assertion) error {
	if result.Err != nil && strings.Contains(result.Err.Error(), assertion.Contains) {
		return nil
	}
	actual := "no error"
	if result.Err != nil {
		actual = result.Err.Error()
	}
	return &AssertionError{
		Type:     AssertError,
		Expected: fmt.Sprintf("error containing %q", assertion.Contains),
		Actual:   actual,
		Plans:    result.Plans,
	}
}

func assertSQLContains(result *Result, assertion Assertion) error {
	for _, p := range result.Plans {
		for _, q := range p.Queries {
			if strings.Contains(q.SQL, assertion.Contains) {
				return nil
			}
		}
	}
	return &AssertionError{
		Type:     AssertSQLContains,
		Expected: fmt.Sprintf("a query containing %q", assertion.Contains),
		Actual:   "not found in compiled SQL",
		Plans:    result.Plans,
	}
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions. An execution
// error the scenario does not expect fails the scenario too.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	expectsError := false
	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertRows:
			err = assertRows(result, assertion, true)
		case AssertRowsUnordered:
			err = assertRows(result, assertion, false)
		case AssertRowCount:
			err = assertRowCount(result, assertion)
		case AssertPivotTable:
			err = assertPivotTable(result, assertion)
		case AssertQueryCount:
			err = assertQueryCount(result, assertion)
		case AssertLevels:
			err = assertLevels(result, assertion)
		case AssertError:
			expectsError = true
			err = assertError(result, assertion)
		case AssertSQLContains:
			err = assertSQLContains(result, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	if result.Err != nil && !expectsError {
		errors = append(errors, fmt.Sprintf("unexpected execution error: %v", result.Err))
	}
	return errors
}
