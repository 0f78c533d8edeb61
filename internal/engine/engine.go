package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/lens/internal/compiler"
	"github.com/roach88/lens/internal/legend"
	"github.com/roach88/lens/internal/merge"
	"github.com/roach88/lens/internal/query"
)

// Executor runs one compiled query. inputs holds the results of the
// lower-level queries q reads through SubqueryFrom entries, by query id.
// Timeouts and retries are the executor's business.
type Executor interface {
	Execute(ctx context.Context, q *query.CompiledQuery, inputs map[string]*Result) (*Result, error)
}

// Cache stores query results by content key.
type Cache interface {
	Get(ctx context.Context, key string) (*Result, bool, error)
	Put(ctx context.Context, key string, r *Result) error
}

// Event describes one finished query execution.
type Event struct {
	// Seq orders events across workers.
	Seq int64

	RunID     string
	QueryID   string
	Level     int
	LevelType query.LevelType
	Rows      int
	Cached    bool
	Duration  time.Duration
	Err       error
}

// DefaultMaxParallel is the default number of queries of one level that
// run at the same time.
const DefaultMaxParallel = 4

// Engine executes multi-level plans level by level.
//
// Queries of one level run concurrently, at most MaxParallel at a time;
// a level starts only after every query of the level below succeeded. The
// first failure cancels the queries still running and no higher level is
// started. Results are cached only once the whole plan succeeded.
//
// Thread-safety: an Engine is safe for concurrent use once configured.
type Engine struct {
	executors   map[query.LevelType]Executor
	cache       Cache
	namespace   string
	maxParallel int
	maxRows     int
	runIDs      compiler.IDGenerator
	observer    func(Event)
	seq         atomic.Int64
}

// Option configures an Engine.
type Option func(*Engine)

// WithExecutor registers the executor of a level type.
func WithExecutor(lt query.LevelType, ex Executor) Option {
	return func(e *Engine) { e.executors[lt] = ex }
}

// WithCache enables result caching.
func WithCache(c Cache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithCacheNamespace separates the cache entries of this engine from those
// of engines reading other data, typically the source DSN and dialect.
// Engines sharing a cache must only share a namespace when their
// executors return the same rows for the same query.
func WithCacheNamespace(ns string) Option {
	return func(e *Engine) { e.namespace = ns }
}

// WithMaxParallel bounds the number of concurrently running queries of
// one level. Values below 1 mean 1.
func WithMaxParallel(n int) Option {
	return func(e *Engine) { e.maxParallel = max(n, 1) }
}

// WithMaxRows limits the rows of every query result. 0 means no limit.
func WithMaxRows(n int) Option {
	return func(e *Engine) { e.maxRows = n }
}

// WithRunIDs sets the generator of run ids used to correlate logs.
func WithRunIDs(g compiler.IDGenerator) Option {
	return func(e *Engine) { e.runIDs = g }
}

// WithObserver sets a function called after every query execution. It is
// called from worker goroutines and must be safe for concurrent use.
func WithObserver(fn func(Event)) Option {
	return func(e *Engine) { e.observer = fn }
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		executors:   make(map[query.LevelType]Executor),
		maxParallel: DefaultMaxParallel,
		runIDs:      compiler.UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExecutePlan runs plan and streams the results of its top level queries,
// in order, tagged with the legend items of l.
func (e *Engine) ExecutePlan(ctx context.Context, plan *query.MultiLevelQuery, l *legend.Legend) (merge.Stream, error) {
	runID := e.runIDs.Generate()
	results, err := e.execute(ctx, runID, plan)
	if err != nil {
		return nil, err
	}

	top := plan.Levels[len(plan.Levels)-1].Queries
	streams := make([]merge.Stream, len(top))
	for i, q := range top {
		streams[i] = resultStream(results[q.ID], q, l)
	}
	if len(streams) == 1 {
		return streams[0], nil
	}
	return concat(streams), nil
}

// Run executes every block and merges the block streams by placement.
// Blocks run concurrently; blocks without a plan yield their constant row.
func (e *Engine) Run(ctx context.Context, blocks []compiler.BlockPlan, opts ...merge.Option) (merge.Stream, error) {
	streams := make([]merge.BlockStream, len(blocks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxParallel)
	for i, b := range blocks {
		streams[i].Block = b.Block
		if b.Plan == nil {
			streams[i].Stream = merge.EmptyRowStream(b.Block.Legend)
			continue
		}
		g.Go(func() error {
			s, err := e.ExecutePlan(gctx, b.Plan, b.Block.Legend)
			if err != nil {
				return fmt.Errorf("block %d: %w", b.Block.ID, err)
			}
			streams[i].Stream = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return merge.Blocks(streams, opts...)
}

// execute runs every level of plan and returns the results by query id.
func (e *Engine) execute(ctx context.Context, runID string, plan *query.MultiLevelQuery) (map[string]*Result, error) {
	if err := plan.Validate(); err != nil {
		return nil, Boundary(err, plan)
	}

	results := make(map[string]*Result)
	keys := make(map[string]string)
	staged := make(map[string]*Result)

	slog.Debug("executing plan", "run", runID, "levels", len(plan.Levels))
	for idx, level := range plan.Levels {
		ex, ok := e.executors[level.LevelType]
		if !ok {
			return nil, fmt.Errorf("no executor for level type %q", level.LevelType)
		}

		// Keys and inputs only read lower levels, which are complete.
		type job struct {
			q      *query.CompiledQuery
			key    string
			inputs map[string]*Result
		}
		jobs := make([]job, len(level.Queries))
		for i, q := range level.Queries {
			key, err := cacheKey(e.namespace, q, keys)
			if err != nil {
				return nil, fmt.Errorf("cache key of query %s: %w", q.ID, err)
			}
			jobs[i] = job{q: q, key: key, inputs: inputsOf(q, results)}
		}

		var mu sync.Mutex
		levelResults := make(map[string]*Result, len(jobs))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.maxParallel)
		for _, j := range jobs {
			g.Go(func() error {
				r, cached, err := e.executeQuery(gctx, runID, idx, level.LevelType, ex, j.q, j.inputs, j.key)
				if err != nil {
					return err
				}
				mu.Lock()
				defer mu.Unlock()
				levelResults[j.q.ID] = r
				if !cached {
					staged[j.key] = r
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			slog.Info("plan failed", "run", runID, "level", idx, "error", err)
			return nil, err
		}

		for _, j := range jobs {
			results[j.q.ID] = levelResults[j.q.ID]
			keys[j.q.ID] = j.key
		}
	}

	e.flush(ctx, runID, staged)
	slog.Debug("plan executed", "run", runID, "queries", len(results))
	return results, nil
}

func (e *Engine) executeQuery(
	ctx context.Context,
	runID string,
	level int,
	lt query.LevelType,
	ex Executor,
	q *query.CompiledQuery,
	inputs map[string]*Result,
	key string,
) (*Result, bool, error) {
	start := time.Now()
	r, cached, err := e.lookup(ctx, runID, key)
	if err == nil && !cached {
		r, err = ex.Execute(ctx, q, inputs)
	}
	if err == nil {
		err = r.checkShape(q)
	}
	if err == nil {
		err = newRowQuota(q.ID, e.maxRows).Check(len(r.Rows))
	}

	ev := Event{
		Seq:       e.seq.Add(1),
		RunID:     runID,
		QueryID:   q.ID,
		Level:     level,
		LevelType: lt,
		Cached:    cached,
		Duration:  time.Since(start),
	}
	if err != nil {
		err = &ExecutionError{QueryID: q.ID, Level: level, LevelType: lt, Err: err}
		ev.Err = err
	} else {
		ev.Rows = len(r.Rows)
	}
	if e.observer != nil {
		e.observer(ev)
	}
	if err != nil {
		return nil, false, err
	}

	slog.Debug("query executed", "run", runID, "query", q.ID, "level", level, "rows", ev.Rows, "cached", cached)
	return r, cached, nil
}

func (e *Engine) lookup(ctx context.Context, runID, key string) (*Result, bool, error) {
	if e.cache == nil {
		return nil, false, nil
	}
	r, ok, err := e.cache.Get(ctx, key)
	if err != nil {
		// Read failures count as misses.
		slog.Warn("cache read failed", "run", runID, "key", key, "error", err)
		return nil, false, nil
	}
	return r, ok, nil
}

// flush writes the results staged by a successful run to the cache.
func (e *Engine) flush(ctx context.Context, runID string, staged map[string]*Result) {
	if e.cache == nil {
		return
	}
	for key, r := range staged {
		if err := e.cache.Put(ctx, key, r); err != nil {
			slog.Warn("cache write failed", "run", runID, "key", key, "error", err)
		}
	}
}

func inputsOf(q *query.CompiledQuery, results map[string]*Result) map[string]*Result {
	ids := q.From.SubqueryIDs()
	if len(ids) == 0 {
		return nil
	}
	out := make(map[string]*Result, len(ids))
	for _, id := range ids {
		out[id] = results[id]
	}
	return out
}

func concat(streams []merge.Stream) merge.Stream {
	out := streams[0]
	for _, s := range streams[1:] {
		out = merge.MergeTwo(out, s, legend.Placement{Kind: legend.PlaceAfter})
	}
	return out
}
