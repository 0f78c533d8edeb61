package compiler

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/lens/internal/formula"
	"github.com/roach88/lens/internal/legend"
	"github.com/roach88/lens/internal/query"
)

// Validation error codes (E200-E299)
const (
	// Dataset field errors (E201-E209)
	ErrFieldIDEmpty      = "E201" // field id is required
	ErrFieldIDInvalid    = "E202" // field id is not an identifier
	ErrDuplicateField    = "E203" // duplicate field id
	ErrFieldNoExpr       = "E204" // field has no expression
	ErrUnknownFieldRef   = "E205" // expression references a missing field
	ErrFieldCycle        = "E206" // fields reference each other
	ErrUnknownAvatar     = "E207" // expression reads an avatar not in the join spec
	ErrInvalidFieldTypes = "E208" // unknown field type or data type

	// Join spec errors (E210-E219)
	ErrNoRootAvatar    = "E210" // root avatar missing from the join spec
	ErrInvalidJoin     = "E211" // join references a missing avatar or has an unknown type
	ErrDuplicateAvatar = "E212" // avatar id used twice
	ErrJoinNoCondition = "E213" // join has no condition

	// Request errors (E220-E229)
	ErrUnknownLegendField = "E220" // legend item references a missing field
	ErrLegend             = "E221" // legend item is malformed
)

// ValidationError represents a dataset or request validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

var fieldIDPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.\-]*$`)

// ValidateDataset checks the fields and join spec of d.
// Returns all errors found (does not fail-fast).
func ValidateDataset(d *Dataset) []ValidationError {
	var errs []ValidationError

	avatars := make(map[string]bool)
	for i, from := range d.From.Froms {
		id := from.FromID()
		if avatars[id] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("from[%d]", i),
				Message: fmt.Sprintf("duplicate avatar id %q", id),
				Code:    ErrDuplicateAvatar,
			})
		}
		avatars[id] = true
	}
	if len(d.From.Froms) > 0 && !avatars[d.From.RootID] {
		errs = append(errs, ValidationError{
			Field:   "from.root",
			Message: fmt.Sprintf("root avatar %q is not in the join spec", d.From.RootID),
			Code:    ErrNoRootAvatar,
		})
	}

	for i, j := range d.Joins {
		path := fmt.Sprintf("joins[%d]", i)
		for _, id := range []string{j.LeftID, j.RightID} {
			if !avatars[id] {
				errs = append(errs, ValidationError{
					Field:   path,
					Message: fmt.Sprintf("join references unknown avatar %q", id),
					Code:    ErrInvalidJoin,
				})
			}
		}
		if !joinTypes[j.Type] {
			errs = append(errs, ValidationError{
				Field:   path + ".type",
				Message: fmt.Sprintf("unknown join type %q", j.Type),
				Code:    ErrInvalidJoin,
			})
		}
		if j.Condition == nil {
			errs = append(errs, ValidationError{
				Field:   path + ".condition",
				Message: fmt.Sprintf("join %s → %s has no condition", j.LeftID, j.RightID),
				Code:    ErrJoinNoCondition,
			})
			continue
		}
		errs = append(errs, checkAvatars(j.Condition, avatars, path+".condition")...)
	}

	ids := make(map[string]bool, len(d.Fields))
	for _, f := range d.Fields {
		ids[f.ID] = true
	}

	seen := make(map[string]bool, len(d.Fields))
	for i, f := range d.Fields {
		path := fmt.Sprintf("fields[%d]", i)

		// E201/E202: field id
		switch {
		case strings.TrimSpace(f.ID) == "":
			errs = append(errs, ValidationError{Field: path + ".id", Message: "field id is required", Code: ErrFieldIDEmpty})
		case !fieldIDPattern.MatchString(f.ID):
			errs = append(errs, ValidationError{
				Field:   path + ".id",
				Message: fmt.Sprintf("invalid field id %q", f.ID),
				Code:    ErrFieldIDInvalid,
			})
		}

		// E203: duplicate id
		if seen[f.ID] {
			errs = append(errs, ValidationError{
				Field:   path + ".id",
				Message: fmt.Sprintf("duplicate field id %q", f.ID),
				Code:    ErrDuplicateField,
			})
		}
		seen[f.ID] = true

		if !validFieldType(f.Type) || !validDataType(f.DataType) {
			errs = append(errs, ValidationError{
				Field:   path,
				Message: fmt.Sprintf("field %q has type %q and data type %q", f.ID, f.Type, f.DataType),
				Code:    ErrInvalidFieldTypes,
			})
		}

		// E204: expression
		if f.Expr == nil {
			errs = append(errs, ValidationError{
				Field:   path + ".expr",
				Message: fmt.Sprintf("field %q has no expression", f.ID),
				Code:    ErrFieldNoExpr,
			})
			continue
		}

		// E205: references
		for _, ref := range fieldRefs(f.Expr) {
			if !ids[ref] {
				errs = append(errs, ValidationError{
					Field:   path + ".expr",
					Message: fmt.Sprintf("field %q references unknown field %q", f.ID, ref),
					Code:    ErrUnknownFieldRef,
				})
			}
		}

		// E207: avatars
		errs = append(errs, checkAvatars(f.Expr, avatars, path+".expr")...)
	}

	// E206: cycles
	for _, c := range AnalyzeCycles(d.Fields) {
		errs = append(errs, ValidationError{
			Field:   "fields." + c.Path[0],
			Message: c.Message,
			Code:    ErrFieldCycle,
		})
	}

	return errs
}

// ValidateRequest checks a legend against the dataset it is compiled
// against. Returns all errors found.
func ValidateRequest(d *Dataset, l *legend.Legend) []ValidationError {
	var errs []ValidationError
	for _, err := range l.Validate() {
		errs = append(errs, ValidationError{Field: "legend", Message: err.Error(), Code: ErrLegend})
	}
	for i, it := range l.Items {
		if it.Kind != legend.KindField || it.Role == legend.RoleTemplate || it.FieldID == "" {
			continue
		}
		if _, ok := d.Field(it.FieldID); !ok {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("legend[%d].field_id", i),
				Message: fmt.Sprintf("legend item %d references unknown field %q", it.ID, it.FieldID),
				Code:    ErrUnknownLegendField,
			})
		}
	}
	return errs
}

func checkAvatars(expr formula.Node, avatars map[string]bool, path string) []ValidationError {
	var errs []ValidationError
	for _, id := range formula.AvatarIDs(expr) {
		if !avatars[id] {
			errs = append(errs, ValidationError{
				Field:   path,
				Message: fmt.Sprintf("unknown avatar %q", id),
				Code:    ErrUnknownAvatar,
			})
		}
	}
	return errs
}

func validFieldType(t legend.FieldType) bool {
	return t == legend.Dimension || t == legend.Measure
}

func validDataType(t legend.DataType) bool {
	switch t {
	case legend.TypeString, legend.TypeInteger, legend.TypeFloat,
		legend.TypeBoolean, legend.TypeDate, legend.TypeDateTime:
		return true
	default:
		return false
	}
}

// joinTypes lists the join kinds a dataset may use.
var joinTypes = map[query.JoinType]bool{
	query.JoinInner: true,
	query.JoinLeft:  true,
	query.JoinRight: true,
	query.JoinFull:  true,
}
