package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// Process exit codes.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // the request, scenario or validation failed
	ExitCommandError = 2 // the command could not run: bad flags, paths or config
)

// Error codes of command failures that have no loader or compiler code.
const (
	ErrCodeConfig     = "E_CONFIG"
	ErrCodeNoSource   = "E_NO_SOURCE"
	ErrCodeNoPivot    = "E_NO_PIVOT"
	ErrCodePlan       = "E_PLAN"
	ErrCodeExecution  = "E_EXECUTION"
	ErrCodeInternal   = "E_INTERNAL"
	ErrCodeTestFailed = "E_TEST_FAILED"
)

// CommandError is returned by a failed command. Exit is the process exit
// code; Code is the lens error code shown to the user, if any.
type CommandError struct {
	Exit int
	Code string
	Err  error
}

func (e *CommandError) Error() string {
	if e.Code == "" {
		return e.Err.Error()
	}
	return e.Code + ": " + e.Err.Error()
}

func (e *CommandError) Unwrap() error { return e.Err }

func commandError(exit int, code string, err error) *CommandError {
	return &CommandError{Exit: exit, Code: code, Err: err}
}

func commandErrorf(exit int, code, format string, args ...any) *CommandError {
	return commandError(exit, code, fmt.Errorf(format, args...))
}

// ExitCode returns the exit code err asks for. Errors that are not a
// CommandError exit with ExitFailure.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var ce *CommandError
	if errors.As(err, &ce) {
		return ce.Exit
	}
	return ExitFailure
}

// Printer writes command results as text or as a JSON envelope.
type Printer struct {
	Format  string
	Out     io.Writer
	Verbose bool
}

// JSON reports whether output is the JSON envelope.
func (p *Printer) JSON() bool { return p.Format == "json" }

type response struct {
	Status  string         `json:"status"` // "ok" or "error"
	Request string         `json:"request,omitempty"`
	Data    any            `json:"data,omitempty"`
	Error   *responseError `json:"error,omitempty"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// OK prints the result of request. Text output uses the default
// formatting of data.
func (p *Printer) OK(request string, data any) error {
	if p.JSON() {
		return p.encode(response{Status: "ok", Request: request, Data: data})
	}
	_, err := fmt.Fprintln(p.Out, data)
	return err
}

// Report prints an error. Details are shown in text mode only with
// --verbose.
func (p *Printer) Report(code, message string, details any) error {
	if p.JSON() {
		return p.encode(response{
			Status: "error",
			Error:  &responseError{Code: code, Message: message, Details: details},
		})
	}
	fmt.Fprintf(p.Out, "Error [%s]: %s\n", code, message)
	if p.Verbose && details != nil {
		fmt.Fprintf(p.Out, "Details: %v\n", details)
	}
	return nil
}

// Fail reports err under code and returns the error the command exits
// with.
func (p *Printer) Fail(exit int, code string, err error) error {
	_ = p.Report(code, err.Error(), nil)
	return commandError(exit, code, err)
}

func (p *Printer) encode(resp response) error {
	enc := json.NewEncoder(p.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

// Table writes rows as aligned text columns.
func (p *Printer) Table(rows [][]string) error {
	tw := tabwriter.NewWriter(p.Out, 0, 0, 2, ' ', 0)
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}
