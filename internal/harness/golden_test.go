package harness

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lens/internal/formula"
	"github.com/roach88/lens/internal/query"
)

func TestAssertGolden_SnapshotShape(t *testing.T) {
	r := NewResult()
	r.Plans = []PlanSnapshot{
		{Block: 0, EmptyRow: true},
		{
			Block:   1,
			Explain: "level 0 source_db\n",
			Levels:  []query.LevelType{query.SourceDB},
			Queries: []QuerySQL{{ID: "q1", SQL: "SELECT 1", Args: []any{"Rome", int64(2)}}},
		},
	}
	r.Rows = [][]formula.Value{
		{formula.String("Paris"), formula.Integer(30)},
		{formula.String(""), formula.Null{}},
	}

	require.NoError(t, AssertGolden(t, "snapshot_shape", r))
}

func TestSnapshot_CanonicalMap(t *testing.T) {
	r := NewResult()
	r.Table = [][]string{{"", "Sales"}}
	r.Err = errors.New("boom")

	m := (&Snapshot{ScenarioName: "s", Result: r}).toCanonicalMap()
	assert.Equal(t, []any{[]any{"", "Sales"}}, m["table"])
	assert.Equal(t, "boom", m["error"])
	assert.NotContains(t, m, "rows")

	data, err := formula.MarshalCanonical(m)
	require.NoError(t, err)
	assert.Equal(t, `{"error":"boom","plans":[],"scenario_name":"s","table":[["","Sales"]]}`, string(data))
}
