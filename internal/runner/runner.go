// Package runner wires settings into a compiler, an engine with SQLite
// executors and an optional result cache, and runs loaded requests end to
// end: blocks, plans, execution, merge and, for pivot requests, the pivot
// table.
package runner

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/lens/internal/compiler"
	"github.com/roach88/lens/internal/config"
	"github.com/roach88/lens/internal/engine"
	"github.com/roach88/lens/internal/legend"
	"github.com/roach88/lens/internal/merge"
	"github.com/roach88/lens/internal/pivot"
	"github.com/roach88/lens/internal/query"
	"github.com/roach88/lens/internal/querysql"
	"github.com/roach88/lens/internal/request"
	"github.com/roach88/lens/internal/sqlexec"
	"github.com/roach88/lens/internal/store"
)

// ErrNoSource is returned when a request is executed without a source
// database.
var ErrNoSource = errors.New("no source database configured")

// Runner compiles and executes requests.
//
// Thread-safety: a Runner is safe for concurrent use; Close must not race
// with other calls.
type Runner struct {
	compiler *compiler.Compiler
	engine   *engine.Engine
	sql      *querysql.Generator

	source  *sql.DB
	compeng *sql.DB
	cache   *store.Store
}

type settings struct {
	queryIDs compiler.IDGenerator
	runIDs   compiler.IDGenerator
	observer func(engine.Event)
}

// Option configures a Runner.
type Option func(*settings)

// WithQueryIDs sets the generator of compiled query ids.
func WithQueryIDs(g compiler.IDGenerator) Option {
	return func(s *settings) { s.queryIDs = g }
}

// WithRunIDs sets the generator of engine run ids.
func WithRunIDs(g compiler.IDGenerator) Option {
	return func(s *settings) { s.runIDs = g }
}

// WithObserver receives every query execution event.
func WithObserver(fn func(engine.Event)) Option {
	return func(s *settings) { s.observer = fn }
}

// New opens the databases named by cfg. The source database is optional;
// without it requests can be planned but not executed.
func New(cfg *config.Config, opts ...Option) (*Runner, error) {
	var s settings
	for _, opt := range opts {
		opt(&s)
	}

	r := &Runner{
		sql: querysql.New(querysql.WithInputTable(func(id string) string { return sqlexec.InputPrefix + id })),
	}

	compilerOpts := []compiler.Option{}
	if s.queryIDs != nil {
		compilerOpts = append(compilerOpts, compiler.WithIDGenerator(s.queryIDs))
	}
	if cfg.Execution.CompengMode {
		compilerOpts = append(compilerOpts, compiler.WithCompengMode())
	}
	r.compiler = compiler.New(cfg.SourceDialect(), compilerOpts...)

	engineOpts := []engine.Option{
		engine.WithMaxParallel(cfg.Execution.MaxParallel),
		engine.WithMaxRows(cfg.Execution.MaxRows),
		engine.WithCacheNamespace(cacheNamespace(cfg)),
	}
	if s.runIDs != nil {
		engineOpts = append(engineOpts, engine.WithRunIDs(s.runIDs))
	}
	if s.observer != nil {
		engineOpts = append(engineOpts, engine.WithObserver(s.observer))
	}

	var err error
	if cfg.Source.DSN != "" {
		if r.source, err = sqlexec.Open(cfg.Source.DSN); err != nil {
			return nil, fmt.Errorf("source database: %w", err)
		}
		engineOpts = append(engineOpts, engine.WithExecutor(query.SourceDB, sqlexec.New(r.source, sqlexec.WithGenerator(r.sql))))
	}
	if r.compeng, err = sqlexec.Open(cfg.Execution.CompengDSN); err != nil {
		r.Close()
		return nil, fmt.Errorf("compeng database: %w", err)
	}
	engineOpts = append(engineOpts, engine.WithExecutor(query.Compeng, sqlexec.New(r.compeng, sqlexec.WithGenerator(r.sql))))

	if cfg.Cache.Path != "" {
		if r.cache, err = store.Open(cfg.Cache.Path, store.WithMaxEntries(cfg.Cache.MaxEntries)); err != nil {
			r.Close()
			return nil, fmt.Errorf("result cache: %w", err)
		}
		engineOpts = append(engineOpts, engine.WithCache(r.cache))
	}

	r.engine = engine.New(engineOpts...)
	return r, nil
}

// cacheNamespace identifies the data a runner reads, so that runners over
// different sources never share cached results.
func cacheNamespace(cfg *config.Config) string {
	return cfg.SourceDialect().String() + ":" + cfg.Source.DSN
}

// Close closes the databases the runner opened.
func (r *Runner) Close() error {
	var errs []error
	if r.cache != nil {
		errs = append(errs, r.cache.Close())
	}
	if r.compeng != nil {
		errs = append(errs, r.compeng.Close())
	}
	if r.source != nil {
		errs = append(errs, r.source.Close())
	}
	return errors.Join(errs...)
}

// Plan splits req into blocks and compiles every block into a multi-level
// plan.
func (r *Runner) Plan(req *request.Request) ([]compiler.BlockPlan, error) {
	blocks, err := req.BlockLegend()
	if err != nil {
		return nil, err
	}
	return r.compiler.CompileBlocks(req.Dataset, blocks)
}

// SQL renders a compiled query the way the executors run it.
func (r *Runner) SQL(q *query.CompiledQuery) (string, []any, error) {
	return r.sql.Generate(q)
}

// Output is the result of an executed request.
type Output struct {
	Plans []compiler.BlockPlan

	// Rows is the merged result stream. It is empty when Frame is set.
	Rows []merge.Row

	// Frame is the sorted pivot table of pivot requests.
	Frame *pivot.Frame
}

// Execute plans and runs req.
func (r *Runner) Execute(ctx context.Context, req *request.Request) (*Output, error) {
	if r.source == nil {
		return nil, ErrNoSource
	}
	plans, err := r.Plan(req)
	if err != nil {
		return nil, engine.Boundary(err, nil)
	}

	s, err := r.engine.Run(ctx, plans, merge.WithOnUnmatched(func(e *merge.MergeAmbiguityError) {
		slog.Warn("merge dropped rows", "request", req.Name, "error", e)
	}))
	if err != nil {
		return nil, engine.Boundary(err, planOf(plans))
	}

	out := &Output{Plans: plans}
	if req.Pivot != nil && req.Options.QueryType == legend.QueryPivot {
		if out.Frame, err = pivot.Build(s, req.Legend, req.Pivot); err != nil {
			return nil, err
		}
		if err := out.Frame.Sort(); err != nil {
			return nil, err
		}
		return out, nil
	}

	if out.Rows, err = merge.Collect(s); err != nil {
		return nil, err
	}
	slog.Debug("request executed", "request", req.Name, "blocks", len(plans), "rows", len(out.Rows))
	return out, nil
}

// planOf returns the plan of the root block, for error reports.
func planOf(plans []compiler.BlockPlan) *query.MultiLevelQuery {
	for _, p := range plans {
		if p.Plan != nil {
			return p.Plan
		}
	}
	return nil
}
