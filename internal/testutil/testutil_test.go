package testutil

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedIDGenerator(t *testing.T) {
	gen := NewFixedIDGenerator("run-1")
	assert.Equal(t, "run-1", gen.Generate())
	assert.Equal(t, "run-1", gen.Generate())

	assert.Equal(t, "test-run", NewFixedIDGenerator("").Generate())
}

func TestFixedIDGenerator_ThreadSafe(t *testing.T) {
	gen := NewFixedIDGenerator("shared")

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				assert.Equal(t, "shared", gen.Generate())
			}
		}()
	}
	wg.Wait()
}

func TestSeed_OrdersFixture(t *testing.T) {
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "orders.db"))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, Seed(context.Background(), db, OrdersFixture))

	var total int
	require.NoError(t, db.QueryRow(`SELECT SUM(sales) FROM orders`).Scan(&total))
	assert.Equal(t, 42, total)
}

func TestSeed_ReportsFailingStatement(t *testing.T) {
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "bad.db"))
	require.NoError(t, err)
	defer db.Close()

	err = Seed(context.Background(), db, []string{`CREATE TABLE a (x)`, `INSERT INTO missing VALUES (1)`})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fixture statement 1")
}
