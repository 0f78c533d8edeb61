package cli

import (
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/lens/internal/config"
	"github.com/roach88/lens/internal/request"
)

// newPrinter builds the printer of a command from the global flags.
func newPrinter(opts *RootOptions, cmd *cobra.Command) *Printer {
	return &Printer{
		Format:  opts.Format,
		Out:     cmd.OutOrStdout(),
		Verbose: opts.Verbose,
	}
}

// loadSettings reads the configuration with the command's flags on top
// and installs the configured logger as the default one. --verbose lowers
// the log level to debug.
func loadSettings(opts *RootOptions, cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigFile, cmd.Flags())
	if err != nil {
		return nil, err
	}
	if opts.Verbose {
		cfg.Log.Level = "debug"
	}
	logger, err := cfg.Log.NewLogger(cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return cfg, nil
}

// loadRequests loads the requests of a CUE file or package directory.
func loadRequests(path string, mode request.LoadMode) (*request.LoadResult, []error) {
	loader := request.NewLoader()
	info, err := os.Stat(path)
	if err == nil && info.IsDir() {
		return loader.LoadDir(path, mode)
	}
	return loader.LoadFile(path, mode)
}

// loadRequest loads a single request by name. An empty name selects the
// only request of path.
func loadRequest(path, name string) (*request.Request, error) {
	result, errs := loadRequests(path, request.LoadModeFailFast)
	if len(errs) > 0 {
		return nil, errs[0]
	}
	return result.Find(name)
}

// requestFailure reports a request loading error. Load errors are command
// errors: nothing was planned or run.
func requestFailure(f *Printer, err error) error {
	var le *request.LoadError
	if errors.As(err, &le) {
		var details any
		if le.Pos.IsValid() {
			details = map[string]any{"file": le.Pos.Filename(), "line": le.Pos.Line()}
		}
		_ = f.Report(le.Code, le.Message, details)
		return commandError(ExitCommandError, "", err)
	}
	return f.Fail(ExitCommandError, request.ErrCodeGeneric, err)
}
