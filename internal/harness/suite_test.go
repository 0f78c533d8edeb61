package harness

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoverScenarios(t *testing.T) {
	paths, err := DiscoverScenarios(filepath.Join("testdata", "scenarios"))
	require.NoError(t, err)

	var names []string
	for _, p := range paths {
		names = append(names, filepath.Base(p))
	}
	assert.Equal(t, []string{
		"compeng_top_cities.yaml",
		"extra_orders.yaml",
		"region_pivot.yaml",
		"row_limit.yaml",
		"top_cities.yaml",
	}, names)
}

func TestDiscoverScenarios_SkipsGolden(t *testing.T) {
	paths, err := DiscoverScenarios("testdata")
	require.NoError(t, err)
	for _, p := range paths {
		assert.NotContains(t, p, "golden")
	}
}

func TestDiscoverScenarios_SingleFile(t *testing.T) {
	path := filepath.Join("testdata", "scenarios", "top_cities.yaml")
	paths, err := DiscoverScenarios(path)
	require.NoError(t, err)
	assert.Equal(t, []string{path}, paths)
}

func TestDiscoverScenarios_Missing(t *testing.T) {
	_, err := DiscoverScenarios(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
}

func TestRunSuite(t *testing.T) {
	suite, err := RunSuite(context.Background(), filepath.Join("testdata", "scenarios"))
	require.NoError(t, err)

	assert.Equal(t, 5, suite.TotalScenarios)
	assert.Equal(t, 5, suite.Passed)
	assert.Zero(t, suite.Failed)
	assert.Empty(t, suite.Failures)
}

func TestRunSuite_CountsFailures(t *testing.T) {
	dir := t.TempDir()
	requests, err := filepath.Abs(filepath.Join("..", "request", "testdata", "requests"))
	require.NoError(t, err)

	failing := `name: wrong_count
description: "Expects the wrong number of rows"
requests: ` + requests + `
request: top_cities
fixtures: [orders]
assertions:
  - type: row_count
    count: 99
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a_failing.yaml"), []byte(failing), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b_broken.yaml"), []byte("name: [\n"), 0o644))

	suite, err := RunSuite(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 2, suite.TotalScenarios)
	assert.Equal(t, 2, suite.Failed)
	require.Len(t, suite.Failures, 2)
	assert.Equal(t, "wrong_count", suite.Failures[0].Name)
	assert.Contains(t, suite.Failures[0].Errors[0], "Actual: 4 rows")
	assert.Contains(t, suite.Failures[1].Errors[0], "failed to parse YAML")
}

func TestRunSuite_Empty(t *testing.T) {
	_, err := RunSuite(context.Background(), t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no scenario files")
}
