package harness

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lens/internal/formula"
)

func loadTestScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)
	return scenario
}

func TestRun_Scenarios(t *testing.T) {
	for _, name := range []string{"top_cities", "region_pivot", "compeng_top_cities", "extra_orders", "row_limit"} {
		t.Run(name, func(t *testing.T) {
			result, err := Run(context.Background(), loadTestScenario(t, name))
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_Snapshot(t *testing.T) {
	result, err := Run(context.Background(), loadTestScenario(t, "top_cities"))
	require.NoError(t, err)

	require.Len(t, result.Plans, 2)
	assert.Equal(t, 0, result.Plans[0].Block)
	assert.Equal(t, 1, result.Plans[1].Block)
	assert.Equal(t, "q0", result.Plans[0].Queries[0].ID)
	assert.NotEmpty(t, result.Plans[0].Explain)
	assert.Contains(t, result.Plans[0].Queries[0].Args, "Rome")
	assert.Equal(t, []formula.Value{formula.String("Paris"), formula.Integer(30)}, result.Rows[0])
}

func TestRun_Deterministic(t *testing.T) {
	scenario := loadTestScenario(t, "compeng_top_cities")

	first, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	second, err := Run(context.Background(), scenario)
	require.NoError(t, err)

	assert.Equal(t, first.Plans, second.Plans)
	assert.Equal(t, first.Rows, second.Rows)
}

func TestRun_ErrorIsRecorded(t *testing.T) {
	result, err := Run(context.Background(), loadTestScenario(t, "row_limit"))
	require.NoError(t, err)
	require.Error(t, result.Err)
	assert.Empty(t, result.Rows)
	assert.NotEmpty(t, result.Plans, "plans are snapshot even when execution fails")
}

func TestRun_BrokenFixture(t *testing.T) {
	scenario := loadTestScenario(t, "top_cities")
	scenario.Fixtures = []string{"orders", "INSERT INTO nowhere VALUES (1)"}

	_, err := Run(context.Background(), scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fixture 1")
}

func TestRun_UnknownRequest(t *testing.T) {
	scenario := loadTestScenario(t, "top_cities")
	scenario.Request = "missing"

	_, err := Run(context.Background(), scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `request "missing" not found`)
}

func TestRun_SingleRequestFile(t *testing.T) {
	dir := t.TempDir()
	src := `package single

request: only: {
	dataset: {
		root: "t"
		avatars: t: "orders"
		fields: {
			city: {type: "dimension", data_type: "string", expr: {field: "city", avatar: "t"}}
			sales: {type: "measure", data_type: "integer", expr: {call: "sum", args: [{field: "sales", avatar: "t"}]}}
		}
	}
	legend: [
		{id: 0, field: "city", role: "row"},
		{id: 1, field: "sales", role: "measure"},
		{id: 2, field: "city", role: "order_by"},
	]
}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "only.cue"), []byte(src), 0o644))
	scenario := &Scenario{
		Name:        "single",
		Description: "one request in one file",
		Requests:    filepath.Join(dir, "only.cue"),
		Fixtures:    []string{"orders"},
		Assertions: []Assertion{{
			Type: AssertRows,
			Rows: [][]any{{"Berlin", 5}, {"Moscow", 7}, {"Paris", 30}},
		}},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}
