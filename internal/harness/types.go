package harness

import (
	"github.com/roach88/lens/internal/formula"
	"github.com/roach88/lens/internal/query"
)

// PlanSnapshot is the compiled plan of one block.
type PlanSnapshot struct {
	Block    int
	EmptyRow bool
	Explain  string
	Levels   []query.LevelType
	Queries  []QuerySQL
}

// QuerySQL is the SQL a compiled query runs as.
type QuerySQL struct {
	ID   string
	SQL  string
	Args []any
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall scenario success.
	Pass bool

	Plans []PlanSnapshot

	// Rows are the merged rows. Empty for pivot requests.
	Rows [][]formula.Value

	// Table is the rendered pivot table of pivot requests.
	Table [][]string

	// Queries counts the executed queries.
	Queries int

	// Err is the execution error, if any. Scenarios may expect one.
	Err error

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{Pass: true, Errors: []string{}}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
