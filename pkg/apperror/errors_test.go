// Package apperror provides tests for the custom error types and utility functions.
package apperror

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

// TestError_Error verifies that the Error() method returns the correct string format.
func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name:     "without field",
			err:      New(CodeEmptyNetwork, "network has no links"),
			expected: "[EMPTY_NETWORK] network has no links",
		},
		{
			name:     "with field",
			err:      NewWithField(CodeInvalidOptions, "must be positive", "tolerance"),
			expected: "[INVALID_OPTIONS] must be positive (field: tolerance)",
		},
		{
			name:     "with cause",
			err:      Wrap(errors.New("eof"), CodeMalformedDemandFile, "read trips"),
			expected: "[MALFORMED_DEMAND_FILE] read trips: eof",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %v, want %v", got, tt.expected)
			}
		})
	}
}

// TestError_Unwrap verifies that the Unwrap() method correctly returns the underlying cause.
func TestError_Unwrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := Wrap(cause, CodeInternal, "wrapped error")

	if unwrapped := err.Unwrap(); unwrapped != cause {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, cause)
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}
}

func TestError_ExitCode(t *testing.T) {
	tests := []struct {
		code     ErrorCode
		expected int
	}{
		{CodeNonPositiveCapacity, 2},
		{CodeMalformedNetworkFile, 2},
		{CodeMalformedDemandFile, 2},
		{CodeUnknownZone, 2},
		{CodeUnreachableDestination, 3},
		{CodeInvalidOptions, 4},
		{CodeDatabase, 5},
		{CodeReport, 5},
		{CodeInternal, 1},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := New(tt.code, "x").ExitCode(); got != tt.expected {
				t.Errorf("ExitCode() = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestExitCode(t *testing.T) {
	if got := ExitCode(nil); got != 0 {
		t.Errorf("ExitCode(nil) = %d, want 0", got)
	}
	if got := ExitCode(errors.New("plain")); got != 1 {
		t.Errorf("ExitCode(plain) = %d, want 1", got)
	}
	wrapped := fmt.Errorf("solve: %w", UnreachableDestination(1, 2))
	if got := ExitCode(wrapped); got != 3 {
		t.Errorf("ExitCode(wrapped) = %d, want 3", got)
	}
}

// TestNew verifies the New function correctly initializes an Error.
func TestNew(t *testing.T) {
	err := New(CodeEmptyNetwork, "network is empty")

	if err.Code != CodeEmptyNetwork {
		t.Errorf("Code = %v, want %v", err.Code, CodeEmptyNetwork)
	}
	if err.Message != "network is empty" {
		t.Errorf("Message = %v, want %v", err.Message, "network is empty")
	}
	if err.Severity != SeverityError {
		t.Errorf("Severity = %v, want %v", err.Severity, SeverityError)
	}
}

func TestNewf(t *testing.T) {
	err := Newf(CodeUnknownZone, "zone %d has no centroid", 7)
	if err.Message != "zone 7 has no centroid" {
		t.Errorf("Message = %q", err.Message)
	}
}

// TestNewWarning verifies the NewWarning function correctly initializes an Error with SeverityWarning.
func TestNewWarning(t *testing.T) {
	err := NewWarning(CodeUnreachableDestination, "pair dropped")

	if err.Severity != SeverityWarning {
		t.Errorf("Severity = %v, want %v", err.Severity, SeverityWarning)
	}
	if !IsWarning(err) {
		t.Error("IsWarning() should return true for warning")
	}
	if IsWarning(New(CodeInternal, "x")) {
		t.Error("IsWarning() should return false for error")
	}
}

func TestUnreachableDestination(t *testing.T) {
	err := UnreachableDestination(3, 9)

	if !Is(err, CodeUnreachableDestination) {
		t.Fatalf("code = %v", err.Code)
	}
	if err.Details["origin"] != int64(3) || err.Details["destination"] != int64(9) {
		t.Errorf("Details = %v", err.Details)
	}
	if !strings.Contains(err.Error(), "zone 3 to zone 9") {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestNonPositiveCapacity(t *testing.T) {
	err := NonPositiveCapacity(1, 2, 0)

	if err.Code != CodeNonPositiveCapacity {
		t.Errorf("Code = %v", err.Code)
	}
	if err.Field != "capacity" {
		t.Errorf("Field = %v, want capacity", err.Field)
	}
}

// TestWithDetails verifies that WithDetails adds key-value pairs to the error's details map.
func TestWithDetails(t *testing.T) {
	err := New(CodeMalformedNetworkFile, "bad line").
		WithDetails("line", 12).
		WithDetails("fields", 4)

	if err.Details["line"] != 12 {
		t.Errorf("Details[line] = %v, want 12", err.Details["line"])
	}
	if err.Details["fields"] != 4 {
		t.Errorf("Details[fields] = %v, want 4", err.Details["fields"])
	}
}

// TestWithSeverity verifies that WithSeverity sets the severity level of the error.
func TestWithSeverity(t *testing.T) {
	err := New(CodeInternal, "invalid").WithSeverity(SeverityCritical)

	if err.Severity != SeverityCritical {
		t.Errorf("Severity = %v, want %v", err.Severity, SeverityCritical)
	}
}

// TestIs verifies the Is function correctly identifies errors by their ErrorCode.
func TestIs(t *testing.T) {
	err := fmt.Errorf("load: %w", New(CodeMalformedDemandFile, "bad token"))

	if !Is(err, CodeMalformedDemandFile) {
		t.Error("Is() should return true for matching code")
	}
	if Is(err, CodeMalformedNetworkFile) {
		t.Error("Is() should return false for non-matching code")
	}
	if Is(errors.New("regular error"), CodeMalformedDemandFile) {
		t.Error("Is() should return false for non-Error")
	}
}

// TestCode verifies the Code function correctly extracts the ErrorCode.
func TestCode(t *testing.T) {
	if got := Code(New(CodeDuplicateLink, "dup")); got != CodeDuplicateLink {
		t.Errorf("Code() = %v, want %v", got, CodeDuplicateLink)
	}
	if got := Code(errors.New("regular error")); got != CodeInternal {
		t.Errorf("Code() for regular error = %v, want %v", got, CodeInternal)
	}
}

// TestSeverity_String verifies the String method of Severity returns the correct string representation.
func TestSeverity_String(t *testing.T) {
	tests := []struct {
		severity Severity
		expected string
	}{
		{SeverityWarning, "warning"},
		{SeverityError, "error"},
		{SeverityCritical, "critical"},
		{Severity(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.severity.String(); got != tt.expected {
			t.Errorf("Severity.String() = %v, want %v", got, tt.expected)
		}
	}
}

// TestValidationErrors verifies the functionality of the ValidationErrors collection.
func TestValidationErrors(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		ve := NewValidationErrors()
		if ve.HasErrors() || ve.HasWarnings() {
			t.Error("new ValidationErrors should be empty")
		}
		if err := ve.Err(CodeInvalidOptions, "invalid"); err != nil {
			t.Errorf("Err() = %v, want nil", err)
		}
	})

	t.Run("add and fold", func(t *testing.T) {
		ve := NewValidationErrors()
		ve.AddErrorWithField(CodeInvalidOptions, "must be positive", "max_iterations")
		ve.AddWarning(CodeInvalidOptions, "workers capped")
		ve.Add(New(CodeInvalidOptions, "tolerance must be positive"))

		if len(ve.Errors) != 2 {
			t.Errorf("errors count = %d, want 2", len(ve.Errors))
		}
		if len(ve.Warnings) != 1 {
			t.Errorf("warnings count = %d, want 1", len(ve.Warnings))
		}

		err := ve.Err(CodeInvalidOptions, "invalid solver options")
		if !Is(err, CodeInvalidOptions) {
			t.Fatalf("Err() = %v", err)
		}
		if !strings.Contains(err.Error(), "max_iterations") {
			t.Errorf("Err() should mention the first cause: %v", err)
		}
	})

	t.Run("merge", func(t *testing.T) {
		ve1 := NewValidationErrors()
		ve1.AddError(CodeInvalidOptions, "error1")

		ve2 := NewValidationErrors()
		ve2.AddError(CodeInvalidArgument, "error2")
		ve2.AddWarning(CodeInvalidArgument, "warning")

		ve1.Merge(ve2)
		ve1.Merge(nil)

		if len(ve1.Errors) != 2 {
			t.Errorf("errors count = %d, want 2", len(ve1.Errors))
		}
		if got := ve1.WarningMessages(); len(got) != 1 || got[0] != "warning" {
			t.Errorf("WarningMessages() = %v", got)
		}
		if got := ve1.ErrorMessages(); len(got) != 2 {
			t.Errorf("ErrorMessages() = %v", got)
		}
	})
}
