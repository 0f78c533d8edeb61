package harness

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/lens/internal/query"
	"github.com/roach88/lens/internal/testutil"
)

// Scenario defines an end-to-end request scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Requests is the CUE file or directory holding the request.
	// Relative paths are resolved against the scenario file location.
	Requests string `yaml:"requests"`

	// Request selects a request by name. It may be empty when Requests
	// holds exactly one.
	Request string `yaml:"request,omitempty"`

	CompengMode bool `yaml:"compeng_mode,omitempty"`
	MaxRows     int  `yaml:"max_rows,omitempty"`

	// Fixtures seed the source database, in order.
	Fixtures []string `yaml:"fixtures"`

	Assertions []Assertion `yaml:"assertions"`
}

// Assertion checks one aspect of a scenario result.
type Assertion struct {
	Type string `yaml:"type"`

	// Rows are the expected merged rows (rows, rows_unordered).
	Rows [][]any `yaml:"rows,omitempty"`

	// Table is the expected rendered pivot table (pivot_table).
	Table [][]string `yaml:"table,omitempty"`

	// Count is the expected number of rows or queries (row_count,
	// query_count).
	Count int `yaml:"count,omitempty"`

	// Levels are the expected level types, leaf first (levels).
	Levels []string `yaml:"levels,omitempty"`

	// Contains is the expected substring (error, sql_contains).
	Contains string `yaml:"contains,omitempty"`
}

// Assertion type constants.
const (
	AssertRows          = "rows"
	AssertRowsUnordered = "rows_unordered"
	AssertRowCount      = "row_count"
	AssertPivotTable    = "pivot_table"
	AssertQueryCount    = "query_count"
	AssertLevels        = "levels"
	AssertError         = "error"
	AssertSQLContains   = "sql_contains"
)

// builtinFixtures are the named fixture sets a scenario can reference.
// Any other fixture entry is run as a SQL statement.
var builtinFixtures = map[string][]string{
	"orders": testutil.OrdersFixture,
}

// LoadScenario reads a scenario file. Unknown keys are rejected so that a
// typo such as "assertion:" fails instead of silently dropping checks.
// The requests path is resolved against the directory of the file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if s.Requests != "" && !filepath.IsAbs(s.Requests) {
		s.Requests = filepath.Join(filepath.Dir(path), s.Requests)
	}

	if problems := s.problems(); len(problems) > 0 {
		return nil, fmt.Errorf("invalid scenario: %w", errors.Join(problems...))
	}
	return &s, nil
}

// problems lists everything wrong with the scenario.
func (s *Scenario) problems() []error {
	var errs []error
	required := []struct {
		missing bool
		field   string
	}{
		{s.Name == "", "name"},
		{s.Description == "", "description"},
		{s.Requests == "", "requests"},
	}
	for _, r := range required {
		if r.missing {
			errs = append(errs, fmt.Errorf("%s is required", r.field))
		}
	}
	if s.Requests != "" {
		if _, err := os.Stat(s.Requests); errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("requests not found: %s", s.Requests))
		}
	}
	if s.MaxRows < 0 {
		errs = append(errs, errors.New("max_rows must be non-negative"))
	}
	for i, fixture := range s.Fixtures {
		if fixture == "" {
			errs = append(errs, fmt.Errorf("fixtures[%d]: empty fixture", i))
		}
	}
	if len(s.Assertions) == 0 {
		errs = append(errs, errors.New("assertions list is required and must be non-empty"))
	}
	for i := range s.Assertions {
		if err := s.Assertions[i].check(); err != nil {
			errs = append(errs, fmt.Errorf("assertions[%d]: %w", i, err))
		}
	}
	return errs
}

// check verifies that the assertion carries the expectation its type
// needs.
func (a *Assertion) check() error {
	switch a.Type {
	case "":
		return errors.New("type is required")
	case AssertRows, AssertRowsUnordered:
		if a.Rows == nil {
			return fmt.Errorf("rows is required for %s", a.Type)
		}
	case AssertPivotTable:
		if len(a.Table) == 0 {
			return errors.New("table is required for pivot_table")
		}
	case AssertRowCount, AssertQueryCount:
		if a.Count < 0 {
			return fmt.Errorf("count must be non-negative for %s", a.Type)
		}
	case AssertLevels:
		if len(a.Levels) == 0 {
			return errors.New("levels list is required for levels")
		}
		for _, l := range a.Levels {
			if lt := query.LevelType(l); lt != query.SourceDB && lt != query.Compeng {
				return fmt.Errorf("unknown level type %q", l)
			}
		}
	case AssertError, AssertSQLContains:
		if a.Contains == "" {
			return fmt.Errorf("contains is required for %s", a.Type)
		}
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
