package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/lens/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // rewrite golden files from the current output
	Filter string // glob on the scenario file name, without extension
}

// ScenarioResult is the outcome of one scenario file.
type ScenarioResult struct {
	Name    string   `json:"name"`
	Pass    bool     `json:"pass"`
	Updated bool     `json:"updated,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}

// TestResult is the outcome of a test run.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run request scenarios",
		Long: `Run YAML request scenarios end to end against seeded SQLite databases.

Each scenario loads a request, seeds a fresh source database with its
fixtures, executes the request and checks the assertions. When
golden/<scenario>.golden exists next to a scenario file, the plans and
results must also match it byte for byte.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  lens test ./scenarios
  lens test ./scenarios --filter "top_*"
  lens test ./scenarios --update
  lens test ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(cmd, opts, args[0])
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

func runTests(cmd *cobra.Command, opts *TestOptions, dir string) error {
	if opts.Filter != "" {
		if _, err := filepath.Match(opts.Filter, ""); err != nil {
			return commandErrorf(ExitCommandError, "", "invalid filter pattern %q: %w", opts.Filter, err)
		}
	}
	files, err := harness.DiscoverScenarios(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return commandErrorf(ExitCommandError, "", "scenarios directory not found: %s", dir)
	}
	if err != nil {
		return commandErrorf(ExitCommandError, "", "find scenarios: %w", err)
	}
	files = filterScenarios(files, opts.Filter)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	run := &suiteRun{printer: newPrinter(opts.RootOptions, cmd), update: opts.Update}
	result := TestResult{Scenarios: []ScenarioResult{}, Total: len(files)}
	for _, file := range files {
		sr := run.scenario(ctx, file)
		result.Scenarios = append(result.Scenarios, sr)
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}
	return run.summary(result)
}

// filterScenarios keeps the files whose name without extension matches
// pattern. An empty pattern keeps every file.
func filterScenarios(files []string, pattern string) []string {
	if pattern == "" {
		return files
	}
	var kept []string
	for _, file := range files {
		if ok, _ := filepath.Match(pattern, scenarioName(file)); ok {
			kept = append(kept, file)
		}
	}
	return kept
}

func scenarioName(file string) string {
	base := filepath.Base(file)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// goldenPath is golden/<name>.golden next to the scenario file.
func goldenPath(file string) string {
	return filepath.Join(filepath.Dir(file), "golden", scenarioName(file)+".golden")
}

type suiteRun struct {
	printer *Printer
	update  bool
}

// scenario runs one scenario file and prints its line of the report.
func (r *suiteRun) scenario(ctx context.Context, file string) ScenarioResult {
	sr := r.check(ctx, file)
	if !r.printer.JSON() {
		out := r.printer.Out
		switch {
		case !sr.Pass:
			fmt.Fprintf(out, "✗ %s\n", sr.Name)
			for _, e := range sr.Errors {
				fmt.Fprintf(out, "  %s\n", e)
			}
		case sr.Updated:
			fmt.Fprintf(out, "✓ %s (golden updated)\n", sr.Name)
		default:
			fmt.Fprintf(out, "✓ %s\n", sr.Name)
		}
	}
	return sr
}

func (r *suiteRun) check(ctx context.Context, file string) ScenarioResult {
	sr := ScenarioResult{Name: scenarioName(file)}
	scenario, err := harness.LoadScenario(file)
	if err != nil {
		sr.Errors = []string{fmt.Sprintf("failed to load scenario: %v", err)}
		return sr
	}
	sr.Name = scenario.Name
	slog.Debug("running scenario", "name", scenario.Name, "file", file)

	result, err := harness.Run(ctx, scenario)
	if err != nil {
		sr.Errors = []string{fmt.Sprintf("execution failed: %v", err)}
		return sr
	}
	snapshot, err := harness.MarshalSnapshot(scenario.Name, result)
	if err != nil {
		sr.Errors = []string{fmt.Sprintf("failed to build snapshot: %v", err)}
		return sr
	}

	golden := goldenPath(file)
	if r.update {
		if err := writeGolden(golden, snapshot); err != nil {
			sr.Errors = []string{err.Error()}
			return sr
		}
		sr.Updated = true
	} else if msg := compareGolden(golden, snapshot); msg != "" {
		sr.Errors = append(sr.Errors, msg)
	}

	sr.Errors = append(sr.Errors, result.Errors...)
	sr.Pass = len(sr.Errors) == 0
	return sr
}

// compareGolden returns a failure message when the golden file exists and
// differs from snapshot. A scenario without a golden file is checked by
// its assertions only.
func compareGolden(path string, snapshot []byte) string {
	want, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return ""
	case err != nil:
		return fmt.Sprintf("failed to read golden file: %v", err)
	case !bytes.Equal(want, snapshot):
		return "golden file mismatch (run with --update to regenerate)"
	}
	return ""
}

func writeGolden(path string, snapshot []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}
	if err := os.WriteFile(path, snapshot, 0o644); err != nil {
		return fmt.Errorf("failed to write golden file: %w", err)
	}
	return nil
}

func (r *suiteRun) summary(result TestResult) error {
	var failure error
	if result.Failed > 0 {
		failure = commandErrorf(ExitFailure, ErrCodeTestFailed, "%d scenario(s) failed", result.Failed)
	}

	if r.printer.JSON() {
		resp := response{Status: "ok", Data: result}
		if failure != nil {
			resp.Status = "error"
			resp.Error = &responseError{Code: ErrCodeTestFailed, Message: fmt.Sprintf("%d scenario(s) failed", result.Failed)}
		}
		if err := r.printer.encode(resp); err != nil {
			return err
		}
		return failure
	}

	out := r.printer.Out
	if result.Total == 0 {
		fmt.Fprintln(out, "No scenarios found.")
		return nil
	}
	fmt.Fprintf(out, "\nTest Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
	if failure != nil {
		return failure
	}
	fmt.Fprintln(out, "✓ All scenarios passed")
	return nil
}
