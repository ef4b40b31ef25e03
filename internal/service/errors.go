package service

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced to the API layer.
var (
	// ErrEmptyFile means the CSV holds no data rows beyond the header.
	ErrEmptyFile = errors.New("csv contains no data rows")

	// ErrInvalidHeader means the header row is missing or unreadable.
	ErrInvalidHeader = errors.New("invalid csv header")

	// ErrJobNotFound means no import job exists for the given id.
	ErrJobNotFound = errors.New("import job not found")
)

// MissingColumnError reports a required column absent from the CSV header.
type MissingColumnError struct {
	Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("missing required column: %s", e.Column)
}

// IsStructural reports whether err is an input defect that makes the whole
// file unprocessable. Structural errors are never retried: retrying an
// unchanged bad input cannot succeed.
func IsStructural(err error) bool {
	var mc *MissingColumnError
	return errors.Is(err, ErrEmptyFile) ||
		errors.Is(err, ErrInvalidHeader) ||
		errors.As(err, &mc)
}

// ValidationCode identifies why a row failed validation.
type ValidationCode string

const (
	CodeMissingField    ValidationCode = "missing_field"
	CodeNonNumericPrice ValidationCode = "non_numeric_price"
	CodeNegativePrice   ValidationCode = "negative_price"
	CodeNonNumericStock ValidationCode = "non_numeric_stock"
)

// ValidationError is a per-row defect. It is recovered locally: the row is
// counted as failed and never aborts the enclosing chunk or job.
type ValidationError struct {
	Code  ValidationCode
	Field string
	Value string
}

func (e *ValidationError) Error() string {
	switch e.Code {
	case CodeMissingField:
		return fmt.Sprintf("missing required field: %s", e.Field)
	case CodeNonNumericPrice:
		return fmt.Sprintf("price must be numeric: %s", e.Value)
	case CodeNegativePrice:
		return fmt.Sprintf("price must not be negative: %s", e.Value)
	case CodeNonNumericStock:
		return fmt.Sprintf("stock must be numeric: %s", e.Value)
	default:
		return fmt.Sprintf("invalid row field %s", e.Field)
	}
}
