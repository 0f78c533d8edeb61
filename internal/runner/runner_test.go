package runner

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lens/internal/compiler"
	"github.com/roach88/lens/internal/config"
	"github.com/roach88/lens/internal/engine"
	"github.com/roach88/lens/internal/formula"
	"github.com/roach88/lens/internal/merge"
	"github.com/roach88/lens/internal/query"
	"github.com/roach88/lens/internal/request"
	"github.com/roach88/lens/internal/testutil"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "source.db")
	db, err := sql.Open("sqlite3", dsn)
	require.NoError(t, err)
	require.NoError(t, testutil.Seed(context.Background(), db, testutil.OrdersFixture))
	require.NoError(t, db.Close())

	return &config.Config{
		Dialect:   "sqlite",
		Source:    config.SourceConfig{DSN: dsn},
		Execution: config.ExecutionConfig{MaxParallel: 2, CompengDSN: ":memory:"},
		Log:       config.LogConfig{Format: "text", Level: "warn"},
	}
}

func loadRequest(t *testing.T, name string) *request.Request {
	t.Helper()
	result, errs := request.NewLoader().LoadDir(filepath.Join("..", "request", "testdata", "requests"), request.LoadModeFailFast)
	require.Empty(t, errs)
	req, err := result.Find(name)
	require.NoError(t, err)
	return req
}

func newRunner(t *testing.T, cfg *config.Config, opts ...Option) *Runner {
	t.Helper()
	r, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func values(rows []merge.Row) [][]any {
	out := make([][]any, len(rows))
	for i, row := range rows {
		for _, v := range row.Values {
			out[i] = append(out[i], formula.Native(v))
		}
	}
	return out
}

func TestExecute_RowsWithTotals(t *testing.T) {
	r := newRunner(t, testConfig(t))

	out, err := r.Execute(context.Background(), loadRequest(t, "top_cities"))
	require.NoError(t, err)
	assert.Nil(t, out.Frame)
	require.Len(t, out.Plans, 2)

	assert.Equal(t, [][]any{
		{"Paris", int64(30)},
		{"Moscow", int64(7)},
		{"Berlin", int64(5)},
		{"", int64(42)},
	}, values(out.Rows))
	assert.Equal(t, []int{0, 1}, out.Rows[0].LegendItemIDs)
	assert.Equal(t, []int{4, 5}, out.Rows[3].LegendItemIDs)
}

func TestExecute_Pivot(t *testing.T) {
	r := newRunner(t, testConfig(t))

	out, err := r.Execute(context.Background(), loadRequest(t, "region_pivot"))
	require.NoError(t, err)
	require.NotNil(t, out.Frame)
	assert.Empty(t, out.Rows)

	assert.Equal(t, [][]string{
		{"", "Sales", "Profit"},
		{"West", "30", "21"},
		{"East", "12", "4"},
	}, out.Frame.Table())
}

func TestExecute_CompengModeGivesSameRows(t *testing.T) {
	cfg := testConfig(t)
	plain, err := newRunner(t, cfg).Execute(context.Background(), loadRequest(t, "top_cities"))
	require.NoError(t, err)

	cfg.Execution.CompengMode = true
	r := newRunner(t, cfg)
	compeng, err := r.Execute(context.Background(), loadRequest(t, "top_cities"))
	require.NoError(t, err)

	assert.Equal(t, values(plain.Rows), values(compeng.Rows))
	top := compeng.Plans[0].Plan.Levels
	assert.Equal(t, query.Compeng, top[len(top)-1].LevelType)
}

func TestExecute_CacheServesSecondRun(t *testing.T) {
	cfg := testConfig(t)
	cfg.Cache = config.CacheConfig{Path: filepath.Join(t.TempDir(), "cache.db"), MaxEntries: 10}

	var mu sync.Mutex
	var events []engine.Event
	r := newRunner(t, cfg, WithObserver(func(e engine.Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	}))

	req := loadRequest(t, "top_cities")
	_, err := r.Execute(context.Background(), req)
	require.NoError(t, err)
	first := len(events)
	require.NotZero(t, first)

	_, err = r.Execute(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, events, 2*first)
	for _, e := range events[first:] {
		assert.True(t, e.Cached, "query %s", e.QueryID)
	}
}

func TestExecute_CacheIsPerSource(t *testing.T) {
	cachePath := filepath.Join(t.TempDir(), "cache.db")
	req := loadRequest(t, "top_cities")

	cachedRun := func(cfg *config.Config) []bool {
		var mu sync.Mutex
		var cached []bool
		r, err := New(cfg, WithObserver(func(e engine.Event) {
			mu.Lock()
			defer mu.Unlock()
			cached = append(cached, e.Cached)
		}))
		require.NoError(t, err)
		defer r.Close()

		_, err = r.Execute(context.Background(), req)
		require.NoError(t, err)
		require.NotEmpty(t, cached)
		return cached
	}

	first := testConfig(t)
	first.Cache = config.CacheConfig{Path: cachePath}
	second := testConfig(t)
	second.Cache = first.Cache
	require.NotEqual(t, first.Source.DSN, second.Source.DSN)

	assert.NotContains(t, cachedRun(first), true)
	assert.NotContains(t, cachedRun(second), true, "another source misses the cache")
	assert.NotContains(t, cachedRun(first), false, "the first source still hits")
	assert.NotEqual(t, cacheNamespace(first), cacheNamespace(second))
}

func TestExecute_FixedIDs(t *testing.T) {
	var mu sync.Mutex
	var runIDs []string
	r := newRunner(t, testConfig(t),
		WithQueryIDs(compiler.NewSequenceGenerator("q")),
		WithRunIDs(testutil.NewFixedIDGenerator("run")),
		WithObserver(func(e engine.Event) {
			mu.Lock()
			defer mu.Unlock()
			runIDs = append(runIDs, e.RunID)
		}),
	)

	out, err := r.Execute(context.Background(), loadRequest(t, "top_cities"))
	require.NoError(t, err)
	assert.Regexp(t, `^q\d+$`, out.Plans[0].Plan.Levels[0].Queries[0].ID)
	for _, id := range runIDs {
		assert.Equal(t, "run", id)
	}
}

func TestPlan_WithoutSource(t *testing.T) {
	cfg := testConfig(t)
	cfg.Source.DSN = ""
	r := newRunner(t, cfg)

	plans, err := r.Plan(loadRequest(t, "top_cities"))
	require.NoError(t, err)
	require.Len(t, plans, 2)

	sqlText, _, err := r.SQL(plans[0].Plan.Levels[0].Queries[0])
	require.NoError(t, err)
	assert.Contains(t, sqlText, `FROM "orders" AS "t"`)

	_, err = r.Execute(context.Background(), loadRequest(t, "top_cities"))
	assert.ErrorIs(t, err, ErrNoSource)
}
