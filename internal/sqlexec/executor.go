// Package sqlexec runs compiled queries on SQLite.
//
// The same executor serves both level types: source_db queries read the
// tables of the data source, compeng queries read the results of lower
// levels, which are loaded into temporary tables of the connection that
// runs the query.
package sqlexec

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/lens/internal/engine"
	"github.com/roach88/lens/internal/formula"
	"github.com/roach88/lens/internal/query"
	"github.com/roach88/lens/internal/querysql"
)

// InputPrefix prefixes the temporary tables holding query inputs.
const InputPrefix = "input_"

// Executor implements engine.Executor on a SQLite database.
//
// Thread-safety: an Executor is safe for concurrent use. Each query with
// inputs runs on its own connection, so temporary tables never clash.
type Executor struct {
	db  *sql.DB
	gen *querysql.Generator
}

var _ engine.Executor = (*Executor)(nil)

// Option configures an Executor.
type Option func(*Executor)

// WithGenerator sets the SQL generator. Its input table names must be
// valid for temporary tables.
func WithGenerator(g *querysql.Generator) Option {
	return func(e *Executor) { e.gen = g }
}

// New creates an Executor over db.
func New(db *sql.DB, opts ...Option) *Executor {
	e := &Executor{
		db:  db,
		gen: querysql.New(querysql.WithInputTable(func(id string) string { return InputPrefix + id })),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Open opens a SQLite database for querying.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// Execute generates SQL for q and runs it.
func (e *Executor) Execute(ctx context.Context, q *query.CompiledQuery, inputs map[string]*engine.Result) (*engine.Result, error) {
	sqlText, args, err := e.gen.Generate(q)
	if err != nil {
		return nil, err
	}
	slog.Debug("executing sql", "query", q.ID, "sql", sqlText)

	conn, err := e.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	if len(inputs) > 0 {
		tables, err := e.loadInputs(ctx, conn, inputs)
		defer dropTables(conn, tables)
		if err != nil {
			return nil, err
		}
	}

	rows, err := conn.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("run query %s: %w", q.ID, err)
	}
	defer rows.Close()
	return scanResult(rows, q.SelectAliases())
}

// loadInputs creates one temporary table per input and returns the
// names of the tables it created.
func (e *Executor) loadInputs(ctx context.Context, conn *sql.Conn, inputs map[string]*engine.Result) ([]string, error) {
	var created []string
	for _, id := range slices.Sorted(maps.Keys(inputs)) {
		r := inputs[id]
		if r == nil {
			return created, fmt.Errorf("input %s has no result", id)
		}
		table := quoteIdent(e.gen.InputTable(id))

		cols := make([]string, len(r.Columns))
		marks := make([]string, len(r.Columns))
		for i, c := range r.Columns {
			cols[i] = quoteIdent(c)
			marks[i] = "?"
		}
		create := fmt.Sprintf("CREATE TEMP TABLE %s (%s)", table, strings.Join(cols, ", "))
		if _, err := conn.ExecContext(ctx, create); err != nil {
			return created, fmt.Errorf("create input table for %s: %w", id, err)
		}
		created = append(created, table)

		if err := insertRows(ctx, conn, table, marks, r.Rows); err != nil {
			return created, fmt.Errorf("load input %s: %w", id, err)
		}
	}
	return created, nil
}

func insertRows(ctx context.Context, conn *sql.Conn, table string, marks []string, rows [][]formula.Value) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s VALUES (%s)", table, strings.Join(marks, ", ")))
	if err != nil {
		return err
	}
	defer stmt.Close()

	args := make([]any, len(marks))
	for _, row := range rows {
		for i, v := range row {
			args[i] = formula.Native(v)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// dropTables removes input tables so the pooled connection can be reused.
func dropTables(conn *sql.Conn, tables []string) {
	for _, t := range tables {
		if _, err := conn.ExecContext(context.Background(), "DROP TABLE IF EXISTS temp."+t); err != nil {
			slog.Warn("drop input table failed", "table", t, "error", err)
		}
	}
}

func scanResult(rows *sql.Rows, columns []string) (*engine.Result, error) {
	got, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}
	if len(got) != len(columns) {
		return nil, fmt.Errorf("query returned %d columns, want %d", len(got), len(columns))
	}

	r := &engine.Result{Columns: columns, Rows: [][]formula.Value{}}
	raw := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make([]formula.Value, len(raw))
		for i, v := range raw {
			value, err := toValue(v)
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", columns[i], err)
			}
			row[i] = value
		}
		r.Rows = append(r.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return r, nil
}

// toValue converts a value scanned from go-sqlite3 into a formula value.
func toValue(v any) (formula.Value, error) {
	switch val := v.(type) {
	case []byte:
		return formula.String(string(val)), nil
	case time.Time:
		return formula.String(val.Format(time.DateTime)), nil
	default:
		return formula.FromNative(val)
	}
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
