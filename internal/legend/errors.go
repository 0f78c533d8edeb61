package legend

import (
	"errors"
	"fmt"
)

// Error reports a legend or block legend the request cannot be built from.
// It is user-correctable.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// ItemID is the offending legend item, or -1.
	ItemID int

	// BlockID is the offending block, or -1.
	BlockID int
}

// ErrorCode categorizes legend errors.
type ErrorCode string

const (
	ErrCodeDuplicateItem   ErrorCode = "DUPLICATE_LEGEND_ITEM"
	ErrCodeMissingField    ErrorCode = "MISSING_FIELD_ID"
	ErrCodeMissingFilter   ErrorCode = "MISSING_FILTER"
	ErrCodeBadDirection    ErrorCode = "BAD_DIRECTION"
	ErrCodeMissingValue    ErrorCode = "MISSING_PARAMETER_VALUE"
	ErrCodeNoRootBlock     ErrorCode = "NO_ROOT_BLOCK"
	ErrCodeMultipleRoots   ErrorCode = "MULTIPLE_ROOT_BLOCKS"
	ErrCodeTreeAndTotals   ErrorCode = "TREE_AND_TOTALS"
	ErrCodeMultipleTrees   ErrorCode = "MULTIPLE_TREES"
	ErrCodeUnevenColumns   ErrorCode = "UNEVEN_BLOCK_COLUMNS"
	ErrCodeUnknownParent   ErrorCode = "UNKNOWN_PARENT_BLOCK"
	ErrCodeDuplicateBlock  ErrorCode = "DUPLICATE_BLOCK"
	ErrCodeUnknownLegendID ErrorCode = "UNKNOWN_LEGEND_ITEM"
)

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.ItemID >= 0:
		return fmt.Sprintf("%s: %s (legend_item=%d)", e.Code, e.Message, e.ItemID)
	case e.BlockID >= 0:
		return fmt.Sprintf("%s: %s (block=%d)", e.Code, e.Message, e.BlockID)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

// IsError returns true if err is or wraps a legend Error.
func IsError(err error) bool {
	var le *Error
	return errors.As(err, &le)
}

// HasCode returns true if err is or wraps a legend Error with the code.
func HasCode(err error, code ErrorCode) bool {
	var le *Error
	return errors.As(err, &le) && le.Code == code
}

func newItemError(code ErrorCode, itemID int, msg string) *Error {
	return &Error{Code: code, Message: msg, ItemID: itemID, BlockID: -1}
}

func newBlockError(code ErrorCode, blockID int, msg string) *Error {
	return &Error{Code: code, Message: msg, ItemID: -1, BlockID: blockID}
}
