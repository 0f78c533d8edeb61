package merge

import (
	"errors"
	"fmt"

	"github.com/roach88/lens/internal/formula"
)

// MergeAmbiguityError reports a child group of a dispersed merge that
// matched no parent group. Its rows are dropped.
type MergeAmbiguityError struct {
	// Values are the child dimension values of the group.
	Values []formula.Value

	// Rows is the number of dropped rows.
	Rows int
}

// Error implements the error interface.
func (e *MergeAmbiguityError) Error() string {
	return fmt.Sprintf("no parent group for child group (%s): %d rows dropped", formatValues(e.Values), e.Rows)
}

// IsMergeAmbiguity returns true if err is or wraps a MergeAmbiguityError.
func IsMergeAmbiguity(err error) bool {
	var me *MergeAmbiguityError
	return errors.As(err, &me)
}
