package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lens/internal/dialect"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lens.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func testFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("db", "", "")
	fs.Int("max-parallel", 0, "")
	fs.Bool("compeng", false, "")
	fs.String("log-level", "", "")
	fs.String("format", "text", "")
	return fs
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Dialect)
	assert.Equal(t, dialect.SQLite, cfg.SourceDialect())
	assert.Equal(t, 4, cfg.Execution.MaxParallel)
	assert.Zero(t, cfg.Execution.MaxRows)
	assert.Equal(t, ":memory:", cfg.Execution.CompengDSN)
	assert.Empty(t, cfg.Cache.Path)
	assert.Equal(t, 1000, cfg.Cache.MaxEntries)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
dialect: postgresql
source:
  dsn: shop.db
execution:
  max_parallel: 2
  max_rows: 500
cache:
  path: cache.db
log:
  format: json
`)

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, dialect.PostgreSQL, cfg.SourceDialect())
	assert.Equal(t, "shop.db", cfg.Source.DSN)
	assert.Equal(t, 2, cfg.Execution.MaxParallel)
	assert.Equal(t, 500, cfg.Execution.MaxRows)
	assert.Equal(t, "cache.db", cfg.Cache.Path)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "warn", cfg.Log.Level, "unset keys keep their defaults")
}

func TestLoad_DefaultFileInWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultFile), []byte("execution:\n  max_rows: 7\n"), 0o644))
	t.Chdir(dir)

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Execution.MaxRows)
}

func TestLoad_Precedence(t *testing.T) {
	path := writeConfig(t, "source:\n  dsn: file.db\nexecution:\n  max_parallel: 2\n")
	t.Setenv("LENS_EXECUTION__MAX_PARALLEL", "6")
	t.Setenv("LENS_SOURCE__DSN", "env.db")
	t.Setenv("LENS_LOG__LEVEL", "debug")

	fs := testFlags()
	require.NoError(t, fs.Parse([]string{"--db", "flag.db", "--format", "json"}))

	cfg, err := Load(path, fs)
	require.NoError(t, err)
	assert.Equal(t, "flag.db", cfg.Source.DSN, "flags beat env")
	assert.Equal(t, 6, cfg.Execution.MaxParallel, "env beats file")
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format, "flags without a config key are ignored")
}

func TestLoad_UnsetFlagsDoNotOverride(t *testing.T) {
	path := writeConfig(t, "execution:\n  max_parallel: 3\n  compeng_mode: true\n")
	fs := testFlags()
	require.NoError(t, fs.Parse(nil))

	cfg, err := Load(path, fs)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Execution.MaxParallel)
	assert.True(t, cfg.Execution.CompengMode)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		msg     string
	}{
		{name: "unknown dialect", content: "dialect: dbase\n", msg: `unknown dialect "dbase"`},
		{name: "no parallelism", content: "execution:\n  max_parallel: 0\n", msg: "max_parallel must be at least 1"},
		{name: "negative row cap", content: "execution:\n  max_rows: -1\n", msg: "max_rows must not be negative"},
		{name: "negative cache size", content: "cache:\n  max_entries: -5\n", msg: "max_entries must not be negative"},
		{name: "log format", content: "log:\n  format: xml\n", msg: "log.format must be text or json"},
		{name: "log level", content: "log:\n  level: chatty\n", msg: "log.level"},
		{name: "bad yaml", content: "execution: [\n", msg: "error reading config file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content), nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	require.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := LogConfig{Format: "json", Level: "info"}.NewLogger(&buf)
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("shown", "query", "q0")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "shown", entry["msg"])
	assert.Equal(t, "q0", entry["query"])
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "execution.max_parallel", envKey("LENS_EXECUTION__MAX_PARALLEL"))
	assert.Equal(t, "dialect", envKey("LENS_DIALECT"))
}
