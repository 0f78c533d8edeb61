// Package config loads lens settings.
//
// Settings come from, lowest precedence first: built-in defaults, a YAML
// file (lens.yaml in the working directory unless a path is given),
// LENS_ environment variables and explicitly set command-line flags.
// Nested keys are separated by a double underscore in environment
// variables: LENS_EXECUTION__MAX_PARALLEL sets execution.max_parallel.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/roach88/lens/internal/dialect"
)

// DefaultFile is the config file looked up when no path is given.
const DefaultFile = "lens.yaml"

// EnvPrefix prefixes environment variables read as settings.
const EnvPrefix = "LENS_"

// Config holds all settings.
type Config struct {
	// Dialect is the dialect of the source database.
	Dialect   string          `koanf:"dialect"`
	Source    SourceConfig    `koanf:"source"`
	Execution ExecutionConfig `koanf:"execution"`
	Cache     CacheConfig     `koanf:"cache"`
	Log       LogConfig       `koanf:"log"`
}

// SourceConfig locates the source database.
type SourceConfig struct {
	DSN string `koanf:"dsn"`
}

// ExecutionConfig bounds plan execution.
type ExecutionConfig struct {
	// MaxParallel is the number of queries of one level run at once.
	MaxParallel int `koanf:"max_parallel"`

	// MaxRows caps the rows one query may return. Zero disables the cap.
	MaxRows int `koanf:"max_rows"`

	// CompengMode plans every request with a compeng top level.
	CompengMode bool `koanf:"compeng_mode"`

	// CompengDSN is the database compeng queries run on.
	CompengDSN string `koanf:"compeng_dsn"`
}

// CacheConfig configures the result cache. An empty path disables it.
type CacheConfig struct {
	Path       string `koanf:"path"`
	MaxEntries int    `koanf:"max_entries"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Format string `koanf:"format"` // text or json
	Level  string `koanf:"level"`
}

// defaults are the built-in settings.
func defaults() map[string]any {
	return map[string]any{
		"dialect":                "sqlite",
		"source.dsn":             "",
		"execution.max_parallel": 4,
		"execution.max_rows":     0,
		"execution.compeng_mode": false,
		"execution.compeng_dsn":  ":memory:",
		"cache.path":             "",
		"cache.max_entries":      1000,
		"log.format":             "text",
		"log.level":              "warn",
	}
}

// flagKeys maps flag names to config keys where they differ from the
// kebab-to-snake rule.
var flagKeys = map[string]string{
	"db":           "source.dsn",
	"dialect":      "dialect",
	"max-parallel": "execution.max_parallel",
	"max-rows":     "execution.max_rows",
	"compeng":      "execution.compeng_mode",
	"cache":        "cache.path",
	"log-format":   "log.format",
	"log-level":    "log.level",
}

// Load reads the settings. cfgFile may be empty, in which case DefaultFile
// is read when it exists. Only flags that were explicitly set override
// other sources; flags without a config key are ignored.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if cfgFile == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			cfgFile = DefaultFile
		}
	}
	if cfgFile != "" {
		if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", cfgFile, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey turns LENS_EXECUTION__MAX_PARALLEL into execution.max_parallel.
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// Validate checks settings that decoding cannot.
func (c *Config) Validate() error {
	if _, err := dialect.Parse(c.Dialect); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Execution.MaxParallel < 1 {
		return fmt.Errorf("invalid config: execution.max_parallel must be at least 1, got %d", c.Execution.MaxParallel)
	}
	if c.Execution.MaxRows < 0 {
		return fmt.Errorf("invalid config: execution.max_rows must not be negative, got %d", c.Execution.MaxRows)
	}
	if c.Cache.MaxEntries < 0 {
		return fmt.Errorf("invalid config: cache.max_entries must not be negative, got %d", c.Cache.MaxEntries)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("invalid config: log.format must be text or json, got %q", c.Log.Format)
	}
	if _, err := c.Log.level(); err != nil {
		return err
	}
	return nil
}

// SourceDialect returns the parsed dialect.
func (c *Config) SourceDialect() dialect.Dialect {
	d, _ := dialect.Parse(c.Dialect)
	return d
}

func (l LogConfig) level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("invalid config: log.level: %w", err)
	}
	return level, nil
}

// NewLogger builds the process logger writing to w.
func (l LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := l.level()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
