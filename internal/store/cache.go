package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/lens/internal/engine"
)

var _ engine.Cache = (*Store)(nil)

// Get returns the result cached under key.
func (s *Store) Get(ctx context.Context, key string) (*engine.Result, bool, error) {
	var columnsJSON, rowsJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT columns, rows FROM results WHERE key = ?`, key,
	).Scan(&columnsJSON, &rowsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read result %s: %w", key, err)
	}

	columns, err := unmarshalColumns(columnsJSON)
	if err != nil {
		return nil, false, fmt.Errorf("read result %s: %w", key, err)
	}
	rows, err := unmarshalRows(rowsJSON)
	if err != nil {
		return nil, false, fmt.Errorf("read result %s: %w", key, err)
	}
	return &engine.Result{Columns: columns, Rows: rows}, true, nil
}

// Put caches r under key. Uses ON CONFLICT(key) DO NOTHING: entries are
// content-addressed, so an existing entry already holds the same result.
func (s *Store) Put(ctx context.Context, key string, r *engine.Result) error {
	columnsJSON, err := marshalColumns(r.Columns)
	if err != nil {
		return fmt.Errorf("write result %s: %w", key, err)
	}
	rowsJSON, err := marshalRows(r.Rows)
	if err != nil {
		return fmt.Errorf("write result %s: %w", key, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write result %s: %w", key, err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO results (key, seq, columns, rows, row_count)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM results), ?, ?, ?)
		ON CONFLICT(key) DO NOTHING
	`, key, columnsJSON, rowsJSON, len(r.Rows))
	if err != nil {
		return fmt.Errorf("write result %s: %w", key, err)
	}

	if s.maxEntries > 0 {
		_, err = tx.ExecContext(ctx, `
			DELETE FROM results
			WHERE seq <= (SELECT MAX(seq) FROM results) - ?
		`, s.maxEntries)
		if err != nil {
			return fmt.Errorf("evict results: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write result %s: %w", key, err)
	}
	return nil
}

// Len returns the number of cached results.
func (s *Store) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM results`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count results: %w", err)
	}
	return n, nil
}

// Clear deletes every cached result.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM results`); err != nil {
		return fmt.Errorf("clear results: %w", err)
	}
	return nil
}
