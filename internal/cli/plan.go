package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/lens/internal/compiler"
	"github.com/roach88/lens/internal/formula"
	"github.com/roach88/lens/internal/query"
	"github.com/roach88/lens/internal/runner"
)

// PlanOptions holds flags for the plan command.
type PlanOptions struct {
	*RootOptions
	Request string
	SQL     bool

	// QueryIDs allows overriding the query id generator (for testing).
	// If nil, the compiler generates UUIDv7 ids.
	QueryIDs compiler.IDGenerator
}

// PlanOutput is the JSON payload of the plan command.
type PlanOutput struct {
	Blocks []BlockOutput `json:"blocks"`
}

// BlockOutput is the plan of one block.
type BlockOutput struct {
	ID        int           `json:"id"`
	ParentID  *int          `json:"parent_id,omitempty"`
	QueryType string        `json:"query_type"`
	EmptyRow  bool          `json:"empty_row,omitempty"`
	Explain   string        `json:"explain,omitempty"`
	Levels    []LevelOutput `json:"levels,omitempty"`
}

// LevelOutput is one level of a block plan.
type LevelOutput struct {
	Type    string        `json:"type"`
	Queries []QueryOutput `json:"queries"`
}

// QueryOutput is one compiled query. SQL is set with --sql.
type QueryOutput struct {
	ID   string `json:"id"`
	SQL  string `json:"sql,omitempty"`
	Args []any  `json:"args,omitempty"`
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "plan <request-file>",
		Short: "Compile a request into multi-level query plans",
		Long: `Compile a request into one multi-level query plan per block and print
them without touching any database.

The argument is a CUE file or a directory holding a CUE package. When it
defines several requests, pick one with --request.

Examples:
  lens plan ./requests/orders.cue --request top_cities
  lens plan ./requests --request top_cities --sql
  lens plan ./requests/orders.cue -r top_cities --compeng --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Request, "request", "r", "", "request name (required when the file defines several)")
	cmd.Flags().BoolVar(&opts.SQL, "sql", false, "render the SQL of every query")
	cmd.Flags().String("dialect", "", "source database dialect")
	cmd.Flags().Bool("compeng", false, "plan with a compeng top level")

	return cmd
}

func runPlan(opts *PlanOptions, path string, cmd *cobra.Command) error {
	printer := newPrinter(opts.RootOptions, cmd)

	cfg, err := loadSettings(opts.RootOptions, cmd)
	if err != nil {
		return printer.Fail(ExitCommandError, ErrCodeConfig, err)
	}
	// Planning never reads the source.
	cfg.Source.DSN = ""
	cfg.Cache.Path = ""

	req, err := loadRequest(path, opts.Request)
	if err != nil {
		return requestFailure(printer, err)
	}
	slog.Debug("planning request", "request", req.Name, "dialect", cfg.Dialect)

	var runnerOpts []runner.Option
	if opts.QueryIDs != nil {
		runnerOpts = append(runnerOpts, runner.WithQueryIDs(opts.QueryIDs))
	}
	r, err := runner.New(cfg, runnerOpts...)
	if err != nil {
		return printer.Fail(ExitCommandError, ErrCodeConfig, err)
	}
	defer r.Close()

	plans, err := r.Plan(req)
	if err != nil {
		return printer.Fail(ExitFailure, ErrCodePlan, err)
	}

	out, err := planOutput(r, plans, opts.SQL)
	if err != nil {
		return printer.Fail(ExitFailure, ErrCodePlan, err)
	}

	if printer.JSON() {
		return printer.OK(req.Name, out)
	}
	writePlanText(printer.Out, req.Name, out)
	return nil
}

func planOutput(r *runner.Runner, plans []compiler.BlockPlan, withSQL bool) (PlanOutput, error) {
	out := PlanOutput{Blocks: make([]BlockOutput, 0, len(plans))}
	for _, bp := range plans {
		block := BlockOutput{
			ID:        bp.Block.ID,
			ParentID:  bp.Block.ParentID,
			QueryType: string(bp.Block.QueryType),
		}
		if bp.Plan == nil {
			block.EmptyRow = true
			out.Blocks = append(out.Blocks, block)
			continue
		}
		block.Explain = query.Explain(bp.Plan)
		for _, level := range bp.Plan.Levels {
			lo := LevelOutput{Type: string(level.LevelType)}
			for _, q := range level.Queries {
				qo := QueryOutput{ID: q.ID}
				if withSQL {
					text, args, err := r.SQL(q)
					if err != nil {
						return PlanOutput{}, fmt.Errorf("render query %s: %w", q.ID, err)
					}
					qo.SQL = text
					qo.Args = args
				}
				lo.Queries = append(lo.Queries, qo)
			}
			block.Levels = append(block.Levels, lo)
		}
		out.Blocks = append(out.Blocks, block)
	}
	return out, nil
}

func writePlanText(w io.Writer, name string, out PlanOutput) {
	fmt.Fprintf(w, "request %s\n", name)
	for _, block := range out.Blocks {
		fmt.Fprintln(w)
		header := fmt.Sprintf("block %d (%s)", block.ID, block.QueryType)
		if block.ParentID != nil {
			header += fmt.Sprintf(" after block %d", *block.ParentID)
		}
		fmt.Fprintln(w, header)
		if block.EmptyRow {
			fmt.Fprintln(w, "  empty row")
			continue
		}
		for _, line := range strings.Split(strings.TrimRight(block.Explain, "\n"), "\n") {
			fmt.Fprintf(w, "  %s\n", line)
		}
		for _, level := range block.Levels {
			for _, q := range level.Queries {
				if q.SQL == "" {
					continue
				}
				fmt.Fprintf(w, "  %s: %s\n", q.ID, q.SQL)
				if len(q.Args) > 0 {
					fmt.Fprintf(w, "    args: %s\n", formatArgs(q.Args))
				}
			}
		}
	}
}

func formatArgs(args []any) string {
	parts := make([]string, len(args))
	for i, arg := range args {
		v, err := formula.FromNative(arg)
		if err != nil {
			parts[i] = fmt.Sprint(arg)
			continue
		}
		parts[i] = formula.FormatValue(v)
	}
	return strings.Join(parts, ", ")
}
