package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/lens/internal/compiler"
	"github.com/roach88/lens/internal/engine"
	"github.com/roach88/lens/internal/formula"
	"github.com/roach88/lens/internal/legend"
	"github.com/roach88/lens/internal/merge"
	"github.com/roach88/lens/internal/request"
	"github.com/roach88/lens/internal/runner"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Request string
	Pivot   bool

	// QueryIDs and RunIDs allow overriding id generators (for testing).
	// If nil, UUIDv7 ids are generated.
	QueryIDs compiler.IDGenerator
	RunIDs   compiler.IDGenerator
}

// RunOutput is the JSON payload of the run command.
type RunOutput struct {
	Rows    []RowOutput `json:"rows,omitempty"`
	Table   [][]string  `json:"table,omitempty"`
	Queries int         `json:"queries"`
	Cached  int         `json:"cached"`
}

// RowOutput is one merged row.
type RowOutput struct {
	Values        []any `json:"values"`
	LegendItemIDs []int `json:"legend_item_ids"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <request-file>",
		Short: "Execute a request against a SQLite source",
		Long: `Execute every block of a request against the source database and print
the merged rows, or the sorted pivot table with --pivot.

The source database comes from --db, source.dsn in the config file or
LENS_SOURCE__DSN.

Examples:
  lens run ./requests/orders.cue --request top_cities --db ./orders.db
  lens run ./requests --request region_pivot --db ./orders.db --pivot
  lens run ./requests/orders.cue -r top_cities --db ./orders.db --cache ./lens-cache.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRequest(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Request, "request", "r", "", "request name (required when the file defines several)")
	cmd.Flags().BoolVar(&opts.Pivot, "pivot", false, "print the pivot table of the request")
	cmd.Flags().String("db", "", "path to the SQLite source database")
	cmd.Flags().String("dialect", "", "source database dialect used for planning")
	cmd.Flags().Bool("compeng", false, "compute everything above the source reads in the compute engine")
	cmd.Flags().Int("max-parallel", 0, "queries of one level run at once")
	cmd.Flags().Int("max-rows", 0, "rows one query may return (0 for no limit)")
	cmd.Flags().String("cache", "", "path to the result cache database")

	return cmd
}

func runRequest(opts *RunOptions, path string, cmd *cobra.Command) error {
	printer := newPrinter(opts.RootOptions, cmd)

	cfg, err := loadSettings(opts.RootOptions, cmd)
	if err != nil {
		return printer.Fail(ExitCommandError, ErrCodeConfig, err)
	}
	if cfg.Source.DSN == "" {
		return printer.Fail(ExitCommandError, ErrCodeNoSource,
			errors.New("no source database: pass --db or set source.dsn"))
	}

	req, err := loadRequest(path, opts.Request)
	if err != nil {
		return requestFailure(printer, err)
	}
	if opts.Pivot {
		if req.Pivot == nil {
			return printer.Fail(ExitCommandError, ErrCodeNoPivot,
				fmt.Errorf("request %q has no pivot legend", req.Name))
		}
		req.Options.QueryType = legend.QueryPivot
	}

	var queries, cached atomic.Int64
	runnerOpts := []runner.Option{runner.WithObserver(func(e engine.Event) {
		queries.Add(1)
		if e.Cached {
			cached.Add(1)
		}
	})}
	if opts.QueryIDs != nil {
		runnerOpts = append(runnerOpts, runner.WithQueryIDs(opts.QueryIDs))
	}
	if opts.RunIDs != nil {
		runnerOpts = append(runnerOpts, runner.WithRunIDs(opts.RunIDs))
	}

	r, err := runner.New(cfg, runnerOpts...)
	if err != nil {
		return printer.Fail(ExitCommandError, ErrCodeConfig, err)
	}
	defer r.Close()

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Debug("running request", "request", req.Name, "source", cfg.Source.DSN)
	out, err := r.Execute(ctx, req)
	if err != nil {
		return executionFailure(printer, err)
	}

	result := RunOutput{Queries: int(queries.Load()), Cached: int(cached.Load())}
	if out.Frame != nil {
		result.Table = out.Frame.Table()
	} else {
		result.Rows = rowOutputs(out.Rows)
	}

	if printer.JSON() {
		return printer.OK(req.Name, result)
	}

	if result.Table != nil {
		if err := printer.Table(result.Table); err != nil {
			return err
		}
	} else if err := printer.Table(rowTable(req, out.Rows)); err != nil {
		return err
	}
	slog.Debug("request done", "request", req.Name, "queries", result.Queries, "cached", result.Cached)
	return nil
}

// executionFailure maps execution errors to exit codes. Everything that
// fails after loading is an execution failure.
func executionFailure(f *Printer, err error) error {
	switch {
	case engine.IsInternalError(err):
		return f.Fail(ExitFailure, ErrCodeInternal, err)
	case request.IsLoadError(err):
		return requestFailure(f, err)
	default:
		return f.Fail(ExitFailure, ErrCodeExecution, err)
	}
}

func rowOutputs(rows []merge.Row) []RowOutput {
	out := make([]RowOutput, len(rows))
	for i, row := range rows {
		values := make([]any, len(row.Values))
		for j, v := range row.Values {
			values[j] = formula.Native(v)
		}
		out[i] = RowOutput{Values: values, LegendItemIDs: row.LegendItemIDs}
	}
	return out
}

// rowTable renders merged rows as text lines. A header of legend item
// titles precedes every run of rows with the same legend items.
func rowTable(req *request.Request, rows []merge.Row) [][]string {
	var out [][]string
	var prev []int
	for i, row := range rows {
		if i == 0 || !slices.Equal(prev, row.LegendItemIDs) {
			header := make([]string, len(row.LegendItemIDs))
			for j, id := range row.LegendItemIDs {
				header[j] = fmt.Sprintf("#%d", id)
				if it, ok := req.Legend.Item(id); ok && it.Title != "" {
					header[j] = it.Title
				}
			}
			if i > 0 {
				out = append(out, nil)
			}
			out = append(out, header)
			prev = row.LegendItemIDs
		}
		cells := make([]string, len(row.Values))
		for j, v := range row.Values {
			cells[j] = cell(v)
		}
		out = append(out, cells)
	}
	return out
}

// cell renders a value for text output. Strings print unquoted and nulls
// as empty cells.
func cell(v formula.Value) string {
	switch val := v.(type) {
	case formula.Null:
		return ""
	case formula.String:
		return string(val)
	default:
		return formula.FormatValue(v)
	}
}
