// Package apperror provides a structured way to handle application errors
// with specific codes, severity levels, and additional details. It also
// maps error codes onto process exit codes for the command line driver.
package apperror

import (
	"errors"
	"fmt"
)

// ErrorCode represents a specific application error code.
type ErrorCode string

const (
	// Network construction
	CodeNonPositiveCapacity ErrorCode = "NON_POSITIVE_CAPACITY"
	CodeInvalidLink         ErrorCode = "INVALID_LINK"
	CodeDuplicateLink       ErrorCode = "DUPLICATE_LINK"
	CodeUnknownLink         ErrorCode = "UNKNOWN_LINK"
	CodeUnknownNode         ErrorCode = "UNKNOWN_NODE"
	CodeEmptyNetwork        ErrorCode = "EMPTY_NETWORK"

	// Input files
	CodeMalformedNetworkFile ErrorCode = "MALFORMED_NETWORK_FILE"
	CodeMalformedDemandFile  ErrorCode = "MALFORMED_DEMAND_FILE"
	CodeMalformedCentroids   ErrorCode = "MALFORMED_CENTROID_FILE"
	CodeInvalidDemand        ErrorCode = "INVALID_DEMAND"
	CodeUnknownZone          ErrorCode = "UNKNOWN_ZONE"

	// Assignment
	CodeUnreachableDestination ErrorCode = "UNREACHABLE_DESTINATION"
	CodeCostBelowFreeFlow      ErrorCode = "COST_BELOW_FREE_FLOW"
	CodeNegativeFlow           ErrorCode = "NEGATIVE_FLOW"
	CodeInvalidOptions         ErrorCode = "INVALID_OPTIONS"
	CodeCanceled               ErrorCode = "CANCELED"

	// Infrastructure
	CodeDatabase ErrorCode = "DATABASE_ERROR"
	CodeCache    ErrorCode = "CACHE_ERROR"
	CodeReport   ErrorCode = "REPORT_ERROR"

	// General
	CodeInternal        ErrorCode = "INTERNAL_ERROR"
	CodeNotFound        ErrorCode = "NOT_FOUND"
	CodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
	CodeNilInput        ErrorCode = "NIL_INPUT"
)

// Severity defines the criticality level of an error.
type Severity int

const (
	// SeverityWarning indicates a non-critical issue that can be ignored or automatically resolved.
	SeverityWarning Severity = iota
	// SeverityError indicates a standard error that requires attention.
	SeverityError
	// SeverityCritical indicates a severe error that might require immediate human intervention.
	SeverityCritical
)

// String returns the string representation of the Severity.
func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Error is a custom error type that includes an ErrorCode, message,
// an optional field, additional details, an underlying cause, and a severity level.
type Error struct {
	Code     ErrorCode      // Code is a unique identifier for the type of error.
	Message  string         // Message is a human-readable description of the error.
	Field    string         // Field indicates which input field caused the error, if applicable.
	Details  map[string]any // Details provides additional structured information about the error.
	Cause    error          // Cause is the underlying error that triggered this application error.
	Severity Severity       // Severity indicates the criticality level of the error.
}

// Error implements the error interface, returning a string representation of the error.
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Field != "" {
		msg = fmt.Sprintf("%s (field: %s)", msg, e.Field)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the wrapped error, allowing for error chain introspection.
func (e *Error) Unwrap() error {
	return e.Cause
}

// ExitCode maps the error code onto a process exit status.
//
//	2 - invalid input files or network data
//	3 - unreachable destination during assignment
//	4 - invalid options or configuration
//	5 - infrastructure (database, cache, report output)
//	1 - everything else
func (e *Error) ExitCode() int {
	switch e.Code {
	case CodeNonPositiveCapacity, CodeInvalidLink, CodeDuplicateLink, CodeUnknownLink,
		CodeUnknownNode, CodeEmptyNetwork, CodeMalformedNetworkFile, CodeMalformedDemandFile,
		CodeMalformedCentroids, CodeInvalidDemand, CodeUnknownZone:
		return 2

	case CodeUnreachableDestination:
		return 3

	case CodeInvalidOptions, CodeInvalidArgument, CodeNilInput:
		return 4

	case CodeDatabase, CodeCache, CodeReport:
		return 5

	default:
		return 1
	}
}

// New creates a new application error with the given code and message.
// The default severity is SeverityError.
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:     code,
		Message:  message,
		Details:  make(map[string]any),
		Severity: SeverityError,
	}
}

// Newf creates a new application error with a formatted message.
func Newf(code ErrorCode, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// NewWithField creates a new application error with the given code, message, and field.
// The default severity is SeverityError.
func NewWithField(code ErrorCode, message, field string) *Error {
	return &Error{
		Code:     code,
		Message:  message,
		Field:    field,
		Details:  make(map[string]any),
		Severity: SeverityError,
	}
}

// NewWarning creates a new application error with SeverityWarning.
func NewWarning(code ErrorCode, message string) *Error {
	return &Error{
		Code:     code,
		Message:  message,
		Details:  make(map[string]any),
		Severity: SeverityWarning,
	}
}

// Wrap creates a new application error that wraps an existing error,
// providing additional context with a code and message.
// The default severity is SeverityError.
func Wrap(cause error, code ErrorCode, message string) *Error {
	return &Error{
		Code:     code,
		Message:  message,
		Cause:    cause,
		Details:  make(map[string]any),
		Severity: SeverityError,
	}
}

// WithDetails adds a key-value pair to the error's details map and returns the modified error.
func (e *Error) WithDetails(key string, value any) *Error {
	e.Details[key] = value
	return e
}

// WithField sets the field associated with the error and returns the modified error.
func (e *Error) WithField(field string) *Error {
	e.Field = field
	return e
}

// WithSeverity sets the severity level of the error and returns the modified error.
func (e *Error) WithSeverity(s Severity) *Error {
	e.Severity = s
	return e
}

// Is checks if the given error is an application error with a matching ErrorCode.
// It uses errors.As to unwrap the error chain.
func Is(err error, code ErrorCode) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// Code extracts the ErrorCode from an error. If the error is not an *Error,
// it returns CodeInternal.
func Code(err error) ErrorCode {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// ExitCode returns the process exit status for err. A nil error maps to 0.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.ExitCode()
	}
	return 1
}

// IsWarning checks if the given error is an application error with SeverityWarning.
func IsWarning(err error) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Severity == SeverityWarning
	}
	return false
}

// UnreachableDestination reports a demanded OD pair with no connecting path.
func UnreachableDestination(origin, destination int64) *Error {
	return Newf(CodeUnreachableDestination,
		"no path from zone %d to zone %d", origin, destination).
		WithDetails("origin", origin).
		WithDetails("destination", destination)
}

// NonPositiveCapacity reports a link whose capacity is zero or negative.
func NonPositiveCapacity(from, to int64, capacity float64) *Error {
	return Newf(CodeNonPositiveCapacity,
		"link %d->%d has non-positive capacity %g", from, to, capacity).
		WithField("capacity").
		WithDetails("from", from).
		WithDetails("to", to)
}

// ValidationErrors is a collection of application errors and warnings,
// typically used for aggregating results of multiple validation checks.
type ValidationErrors struct {
	Errors   []*Error // Errors contains all collected errors (SeverityError and SeverityCritical).
	Warnings []*Error // Warnings contains all collected warnings (SeverityWarning).
}

// NewValidationErrors creates and returns a new empty ValidationErrors collection.
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{
		Errors:   make([]*Error, 0),
		Warnings: make([]*Error, 0),
	}
}

// Add appends an *Error to the appropriate slice (Errors or Warnings)
// based on its Severity.
func (v *ValidationErrors) Add(err *Error) {
	if err.Severity == SeverityWarning {
		v.Warnings = append(v.Warnings, err)
	} else {
		v.Errors = append(v.Errors, err)
	}
}

// AddError creates and adds a new application error with SeverityError.
func (v *ValidationErrors) AddError(code ErrorCode, message string) {
	v.Errors = append(v.Errors, New(code, message))
}

// AddWarning creates and adds a new application error with SeverityWarning.
func (v *ValidationErrors) AddWarning(code ErrorCode, message string) {
	v.Warnings = append(v.Warnings, NewWarning(code, message))
}

// AddErrorWithField creates and adds a new application error with a specific field.
func (v *ValidationErrors) AddErrorWithField(code ErrorCode, message, field string) {
	v.Errors = append(v.Errors, NewWithField(code, message, field))
}

// HasErrors returns true if the collection contains any errors (non-warning severity).
func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

// HasWarnings returns true if the collection contains any warnings.
func (v *ValidationErrors) HasWarnings() bool {
	return len(v.Warnings) > 0
}

// Err folds the collected errors into a single *Error with the given code,
// or returns nil when there are none.
func (v *ValidationErrors) Err(code ErrorCode, message string) error {
	if !v.HasErrors() {
		return nil
	}
	err := New(code, message).WithDetails("errors", v.ErrorMessages())
	err.Cause = v.Errors[0]
	return err
}

// Merge combines the current ValidationErrors collection with another one.
func (v *ValidationErrors) Merge(other *ValidationErrors) {
	if other == nil {
		return
	}
	v.Errors = append(v.Errors, other.Errors...)
	v.Warnings = append(v.Warnings, other.Warnings...)
}

// ErrorMessages returns a slice of string messages for all collected errors.
func (v *ValidationErrors) ErrorMessages() []string {
	messages := make([]string, len(v.Errors))
	for i, err := range v.Errors {
		messages[i] = err.Error()
	}
	return messages
}

// WarningMessages returns a slice of string messages for all collected warnings.
func (v *ValidationErrors) WarningMessages() []string {
	messages := make([]string, len(v.Warnings))
	for i, warn := range v.Warnings {
		messages[i] = warn.Message
	}
	return messages
}
