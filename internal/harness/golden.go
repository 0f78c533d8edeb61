package harness

import (
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/lens/internal/formula"
)

// Snapshot captures the plans and results of a scenario execution.
type Snapshot struct {
	ScenarioName string
	Result       *Result
}

// toCanonicalMap converts a Snapshot to a map[string]any for canonical JSON
// serialization. formula.MarshalCanonical only handles JSON primitives,
// []any and map[string]any.
func (s *Snapshot) toCanonicalMap() map[string]any {
	plans := make([]any, len(s.Result.Plans))
	for i, p := range s.Result.Plans {
		plan := map[string]any{"block": p.Block}
		if p.EmptyRow {
			plan["empty_row"] = true
			plans[i] = plan
			continue
		}
		levels := make([]any, len(p.Levels))
		for j, lt := range p.Levels {
			levels[j] = string(lt)
		}
		queries := make([]any, len(p.Queries))
		for j, q := range p.Queries {
			args := make([]any, len(q.Args))
			for k, arg := range q.Args {
				args[k] = canonicalArg(arg)
			}
			queries[j] = map[string]any{"id": q.ID, "sql": q.SQL, "args": args}
		}
		plan["explain"] = p.Explain
		plan["levels"] = levels
		plan["queries"] = queries
		plans[i] = plan
	}

	result := map[string]any{
		"scenario_name": s.ScenarioName,
		"plans":         plans,
	}
	if len(s.Result.Rows) > 0 {
		rows := make([]any, len(s.Result.Rows))
		for i, row := range s.Result.Rows {
			cells := make([]any, len(row))
			for j, v := range row {
				cells[j] = formula.Native(v)
			}
			rows[i] = cells
		}
		result["rows"] = rows
	}
	if len(s.Result.Table) > 0 {
		table := make([]any, len(s.Result.Table))
		for i, line := range s.Result.Table {
			cells := make([]any, len(line))
			for j, cell := range line {
				cells[j] = cell
			}
			table[i] = cells
		}
		result["table"] = table
	}
	if s.Result.Err != nil {
		result["error"] = s.Result.Err.Error()
	}
	return result
}

// canonicalArg maps a SQL parameter onto the canonical JSON value space.
func canonicalArg(arg any) any {
	v, err := formula.FromNative(arg)
	if err != nil {
		return fmt.Sprint(arg)
	}
	return formula.Native(v)
}

// MarshalSnapshot returns the canonical JSON snapshot of a result, the
// content of its golden file.
func MarshalSnapshot(scenarioName string, result *Result) ([]byte, error) {
	snapshot := Snapshot{ScenarioName: scenarioName, Result: result}
	return formula.MarshalCanonical(snapshot.toCanonicalMap())
}

// AssertGolden compares a result against testdata/golden/{scenarioName}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := MarshalSnapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
