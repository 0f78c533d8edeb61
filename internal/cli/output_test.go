package cli

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandError(t *testing.T) {
	inner := errors.New("disk full")
	err := commandError(ExitCommandError, ErrCodeConfig, inner)

	assert.Equal(t, "E_CONFIG: disk full", err.Error())
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, ExitCommandError, ExitCode(fmt.Errorf("wrapped: %w", err)))
	assert.Equal(t, "no code", commandErrorf(ExitFailure, "", "no %s", "code").Error())
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, ExitCode(nil))
	assert.Equal(t, ExitFailure, ExitCode(errors.New("other")))
}

func TestPrinter_JSON(t *testing.T) {
	var buf bytes.Buffer
	p := &Printer{Format: "json", Out: &buf}

	require.NoError(t, p.OK("top_cities", map[string]int{"rows": 3}))
	resp := decodeResponse(t, buf.String())
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "top_cities", resp.Request)
	assert.Nil(t, resp.Error)

	buf.Reset()
	require.NoError(t, p.Report("E301", "bad role", nil))
	resp = decodeResponse(t, buf.String())
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E301", resp.Error.Code)
	assert.Equal(t, "bad role", resp.Error.Message)
}

func TestPrinter_ReportDetails(t *testing.T) {
	var buf bytes.Buffer
	p := &Printer{Format: "text", Out: &buf}

	require.NoError(t, p.Report("E305", "bad block", "block 2"))
	assert.Equal(t, "Error [E305]: bad block\n", buf.String())

	buf.Reset()
	p.Verbose = true
	require.NoError(t, p.Report("E305", "bad block", "block 2"))
	assert.Equal(t, "Error [E305]: bad block\nDetails: block 2\n", buf.String())
}

func TestPrinter_Fail(t *testing.T) {
	var buf bytes.Buffer
	p := &Printer{Format: "text", Out: &buf}

	err := p.Fail(ExitFailure, ErrCodeExecution, errors.New("boom"))
	assert.Equal(t, ExitFailure, ExitCode(err))
	assert.Equal(t, "Error [E_EXECUTION]: boom\n", buf.String())
}

func TestPrinter_Table(t *testing.T) {
	var buf bytes.Buffer
	p := &Printer{Format: "text", Out: &buf}

	require.NoError(t, p.Table([][]string{{"City", "Sales"}, {"Paris", "30"}, {"Moscow", "7"}}))
	assert.Equal(t, "City    Sales\nParis   30\nMoscow  7\n", buf.String())
}
