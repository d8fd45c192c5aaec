package errors

import (
	"fmt"
	"strings"
)

// Domain error types for the outlier engine. Handlers translate these to
// HTTP responses via ErrorHandler; CLI callers match them with errors.As.

// RowIssue identifies one unusable source row.
type RowIssue struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

// MalformedInputError reports every unusable row of a source in one
// aggregate, so a caller can fix the whole batch in a single pass.
type MalformedInputError struct {
	Source string
	Rows   []RowIssue
}

// Error implements the error interface
func (e *MalformedInputError) Error() string {
	issues := make([]string, 0, len(e.Rows))
	for _, r := range e.Rows {
		issues = append(issues, fmt.Sprintf("line %d: %s", r.Line, r.Reason))
	}
	return fmt.Sprintf("malformed input in %s: %s", e.Source, strings.Join(issues, "; "))
}

// InvalidParameterError reports a parameter outside its valid domain.
// Raised before any row processing.
type InvalidParameterError struct {
	Param  string
	Value  interface{}
	Reason string
}

// Error implements the error interface
func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid parameter %s=%v: %s", e.Param, e.Value, e.Reason)
}

// NotFoundError reports an explain target that matched zero rows, or
// more than one. Ambiguous accounts are a data-quality error and are
// never silently resolved by picking one.
type NotFoundError struct {
	Center  string
	Header  string
	Matches int
}

// Error implements the error interface
func (e *NotFoundError) Error() string {
	if e.Matches > 1 {
		return fmt.Sprintf("account %s in center %s is ambiguous: %d matching rows", e.Header, e.Center, e.Matches)
	}
	return fmt.Sprintf("account %s not found in center %s", e.Header, e.Center)
}

// PersistenceError reports a failed artifact write.
type PersistenceError struct {
	Path string
	Err  error
}

// Error implements the error interface
func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to write artifact %s: %v", e.Path, e.Err)
}

// Unwrap allows errors.Is and errors.As to reach the underlying cause
func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// NewInvalidParameter creates an InvalidParameterError
func NewInvalidParameter(param string, value interface{}, reason string) *InvalidParameterError {
	return &InvalidParameterError{Param: param, Value: value, Reason: reason}
}
