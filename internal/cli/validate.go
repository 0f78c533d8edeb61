package cli

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/lens/internal/compiler"
	"github.com/roach88/lens/internal/config"
	"github.com/roach88/lens/internal/legend"
	"github.com/roach88/lens/internal/request"
	"github.com/roach88/lens/internal/runner"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool             `json:"valid"`
	Files    int              `json:"files"`
	Requests int              `json:"requests"`
	Errors   []ValidationItem `json:"errors,omitempty"`
}

// ValidationItem is one problem found in a request.
type ValidationItem struct {
	Request string `json:"request,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <requests>",
		Short: "Check request files and compile every request",
		Long: `Load every request of a CUE file or package directory, check it against
the request schema and its dataset, and compile it into plans.

All problems are reported, not only the first one. Nothing is executed.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
	cmd.Flags().String("dialect", "", "source database dialect used for planning")
	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	printer := newPrinter(opts, cmd)

	cfg, err := loadSettings(opts, cmd)
	if err != nil {
		return printer.Fail(ExitCommandError, ErrCodeConfig, err)
	}

	loadResult, loadErrors := loadRequests(path, request.LoadModeCollectAll)

	// Handle load errors that leave nothing to validate (path not found,
	// no files, etc.)
	if loadResult == nil && len(loadErrors) > 0 {
		return requestFailure(printer, loadErrors[0])
	}

	slog.Debug("loaded requests", "path", path, "files", loadResult.FileCount, "requests", len(loadResult.Requests))

	var items []ValidationItem
	for _, err := range loadErrors {
		items = append(items, loadItem(err))
	}
	items = append(items, validateAll(cfg, loadResult.Requests)...)

	result := ValidationResult{
		Valid:    len(items) == 0,
		Files:    loadResult.FileCount,
		Requests: len(loadResult.Requests),
		Errors:   items,
	}
	if !result.Valid {
		return outputValidationErrors(printer, result)
	}
	return outputValidateSuccess(printer, result)
}

// validateAll checks the dataset and legend of every request and compiles
// it. Compilation only runs for requests without validation errors.
func validateAll(cfg *config.Config, requests []*request.Request) []ValidationItem {
	planCfg := *cfg
	planCfg.Source.DSN = ""
	planCfg.Cache.Path = ""
	r, err := runner.New(&planCfg)
	if err != nil {
		return []ValidationItem{{Code: ErrCodeConfig, Message: err.Error()}}
	}
	defer r.Close()

	var items []ValidationItem
	for _, req := range requests {
		slog.Debug("validating request", "request", req.Name)

		errs := append(compiler.ValidateDataset(req.Dataset), compiler.ValidateRequest(req.Dataset, req.Legend)...)
		for _, e := range errs {
			items = append(items, ValidationItem{Request: req.Name, Code: e.Code, Message: fmt.Sprintf("%s: %s", e.Field, e.Message)})
		}
		if len(errs) > 0 {
			continue
		}

		if _, err := r.Plan(req); err != nil {
			items = append(items, ValidationItem{Request: req.Name, Code: planErrorCode(err), Message: err.Error()})
		}
	}
	return items
}

// planErrorCode returns the code of a planning error.
func planErrorCode(err error) string {
	var le *legend.Error
	if errors.As(err, &le) {
		return string(le.Code)
	}
	var ve compiler.ValidationError
	if errors.As(err, &ve) {
		return ve.Code
	}
	return ErrCodePlan
}

func loadItem(err error) ValidationItem {
	item := ValidationItem{Code: request.ErrorCode(err), Message: err.Error()}
	var le *request.LoadError
	if errors.As(err, &le) {
		item.Message = le.Message
		if le.Pos.IsValid() {
			item.File = le.Pos.Filename()
			item.Line = le.Pos.Line()
		}
	}
	return item
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(printer *Printer, result ValidationResult) error {
	if printer.JSON() {
		return printer.OK("", result)
	}

	fmt.Fprintf(printer.Out, "✓ All requests valid (%d request(s) in %d file(s))\n", result.Requests, result.Files)
	return nil
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(printer *Printer, result ValidationResult) error {
	failure := commandErrorf(ExitFailure, "", "validation failed with %d error(s)", len(result.Errors))

	if printer.JSON() {
		if err := printer.encode(response{
			Status: "error",
			Data:   result,
			Error: &responseError{
				Code:    result.Errors[0].Code,
				Message: result.Errors[0].Message,
			},
		}); err != nil {
			return err
		}
		return failure
	}

	fmt.Fprintln(printer.Out, "✗ Validation failed")
	fmt.Fprintln(printer.Out)

	for _, item := range result.Errors {
		switch {
		case item.Line > 0:
			fmt.Fprintf(printer.Out, "%s:%d\n", item.File, item.Line)
		case item.Request != "":
			fmt.Fprintf(printer.Out, "request %s\n", item.Request)
		}
		fmt.Fprintf(printer.Out, "  %s: %s\n\n", item.Code, item.Message)
	}
	return failure
}
