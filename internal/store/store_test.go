package store

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lens/internal/engine"
	"github.com/roach88/lens/internal/formula"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.db")
	s, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	for name, want := range map[string]string{
		"journal_mode": "wal",
		"busy_timeout": "5000",
		"user_version": "1",
	} {
		got, err := s.pragma(name)
		require.NoError(t, err)
		assert.Equal(t, want, got, name)
	}
}

func TestOpen_RejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.db.Exec("PRAGMA user_version = 99")
	require.NoError(t, err)
	s.Close()

	_, err = Open(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "newer than supported")
}

func TestCache_RoundTripKeepsTypes(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	r := &engine.Result{
		Columns: []string{"res_0", "res_1", "res_2", "res_3", "res_4"},
		Rows: [][]formula.Value{
			{formula.String("Paris"), formula.Integer(math.MaxInt64), formula.Float(2), formula.Boolean(true), formula.Null{}},
			{formula.String("Zürich"), formula.Integer(-3), formula.Float(0.5), formula.Boolean(false), formula.Float(math.Inf(1))},
		},
	}
	require.NoError(t, s.Put(ctx, "k1", r))

	got, ok, err := s.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, r, got)
}

func TestCache_Miss(t *testing.T) {
	s := createTestStore(t)

	got, ok, err := s.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestCache_PutIsIdempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	first := &engine.Result{Columns: []string{"a"}, Rows: [][]formula.Value{{formula.Integer(1)}}}
	second := &engine.Result{Columns: []string{"a"}, Rows: [][]formula.Value{{formula.Integer(2)}}}
	require.NoError(t, s.Put(ctx, "k", first))
	require.NoError(t, s.Put(ctx, "k", second))

	got, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, first, got)

	n, err := s.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCache_EvictsOldestEntries(t *testing.T) {
	s := createTestStore(t, WithMaxEntries(2))
	ctx := context.Background()

	r := &engine.Result{Columns: []string{"a"}, Rows: [][]formula.Value{}}
	for _, key := range []string{"k1", "k2", "k3"} {
		require.NoError(t, s.Put(ctx, key, r))
	}

	n, err := s.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, ok, err := s.Get(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok, "oldest entry is evicted")

	_, ok, err = s.Get(ctx, "k3")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCache_Clear(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "k", &engine.Result{Columns: []string{"a"}}))
	require.NoError(t, s.Clear(ctx))

	n, err := s.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
