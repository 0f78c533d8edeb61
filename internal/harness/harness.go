package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/roach88/lens/internal/compiler"
	"github.com/roach88/lens/internal/config"
	"github.com/roach88/lens/internal/engine"
	"github.com/roach88/lens/internal/formula"
	"github.com/roach88/lens/internal/query"
	"github.com/roach88/lens/internal/request"
	"github.com/roach88/lens/internal/runner"
	"github.com/roach88/lens/internal/sqlexec"
	"github.com/roach88/lens/internal/testutil"
)

// RunID is the fixed run id of scenario executions.
const RunID = "scenario-run"

// Run executes a scenario and returns the result.
//
// Execution flow:
// 1. Seed a fresh source database with the scenario fixtures
// 2. Load the request
// 3. Plan and execute it with deterministic ids
// 4. Evaluate assertions against the plans, rows and execution error
//
// The returned error reports a broken scenario (missing requests, failing
// fixtures). Execution errors are recorded in Result.Err for the error
// assertion.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "lens-scenario-")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario directory: %w", err)
	}
	defer os.RemoveAll(dir)

	dsn := filepath.Join(dir, "source.db")
	if err := seed(ctx, dsn, scenario.Fixtures); err != nil {
		return nil, err
	}

	req, err := loadRequest(scenario)
	if err != nil {
		return nil, err
	}

	cfg := &config.Config{
		Dialect: "sqlite",
		Source:  config.SourceConfig{DSN: dsn},
		Execution: config.ExecutionConfig{
			MaxParallel: 1,
			MaxRows:     scenario.MaxRows,
			CompengMode: scenario.CompengMode,
			CompengDSN:  ":memory:",
		},
	}

	var executed atomic.Int64
	r, err := runner.New(cfg,
		runner.WithQueryIDs(compiler.NewSequenceGenerator("q")),
		runner.WithRunIDs(testutil.NewFixedIDGenerator(RunID)),
		runner.WithObserver(func(engine.Event) { executed.Add(1) }),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create runner: %w", err)
	}
	defer r.Close()

	result := NewResult()
	out, execErr := r.Execute(ctx, req)
	result.Queries = int(executed.Load())

	plans := []compiler.BlockPlan(nil)
	if execErr == nil {
		plans = out.Plans
		result.Rows = rowValues(out)
		if out.Frame != nil {
			result.Table = out.Frame.Table()
		}
	} else {
		result.Err = execErr
		// Planning may still succeed when execution failed.
		plans, _ = r.Plan(req)
	}

	if result.Plans, err = snapshotPlans(r, plans); err != nil {
		return nil, err
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func seed(ctx context.Context, dsn string, fixtures []string) error {
	db, err := sqlexec.Open(dsn)
	if err != nil {
		return fmt.Errorf("failed to open source database: %w", err)
	}
	defer db.Close()

	for i, fixture := range fixtures {
		statements, ok := builtinFixtures[fixture]
		if !ok {
			statements = []string{fixture}
		}
		if err := testutil.Seed(ctx, db, statements); err != nil {
			return fmt.Errorf("fixture %d: %w", i, err)
		}
	}
	return nil
}

func loadRequest(scenario *Scenario) (*request.Request, error) {
	info, err := os.Stat(scenario.Requests)
	if err != nil {
		return nil, fmt.Errorf("failed to access requests: %w", err)
	}

	loader := request.NewLoader()
	var (
		loaded *request.LoadResult
		errs   []error
	)
	if info.IsDir() {
		loaded, errs = loader.LoadDir(scenario.Requests, request.LoadModeFailFast)
	} else {
		loaded, errs = loader.LoadFile(scenario.Requests, request.LoadModeFailFast)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("failed to load requests: %w", errs[0])
	}
	return loaded.Find(scenario.Request)
}

func snapshotPlans(r *runner.Runner, plans []compiler.BlockPlan) ([]PlanSnapshot, error) {
	out := make([]PlanSnapshot, 0, len(plans))
	for _, bp := range plans {
		snap := PlanSnapshot{Block: bp.Block.ID}
		if bp.Plan == nil {
			snap.EmptyRow = true
			out = append(out, snap)
			continue
		}
		snap.Explain = query.Explain(bp.Plan)
		for _, level := range bp.Plan.Levels {
			snap.Levels = append(snap.Levels, level.LevelType)
		}
		for _, q := range bp.Plan.Queries() {
			text, args, err := r.SQL(q)
			if err != nil {
				return nil, fmt.Errorf("failed to render query %s: %w", q.ID, err)
			}
			snap.Queries = append(snap.Queries, QuerySQL{ID: q.ID, SQL: text, Args: args})
		}
		out = append(out, snap)
	}
	return out, nil
}

func rowValues(out *runner.Output) [][]formula.Value {
	rows := make([][]formula.Value, len(out.Rows))
	for i, row := range out.Rows {
		rows[i] = row.Values
	}
	return rows
}
