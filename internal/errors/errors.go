// Package errors provides a lightweight structured error type (BookError)
// for category-based classification of build pipeline failures.
package errors

import (
	goerrors "errors"
	"fmt"
)

// ErrorCategory represents the category of a build error for classification.
type ErrorCategory string

const (
	// User-facing configuration and input errors
	CategoryConfig     ErrorCategory = "config"
	CategoryValidation ErrorCategory = "validation"

	// Content errors surfaced by the render and verification passes
	CategoryLink   ErrorCategory = "link"
	CategorySample ErrorCategory = "sample"
	CategoryRender ErrorCategory = "render"

	// Infrastructure errors
	CategoryFileSystem ErrorCategory = "filesystem"
	CategoryPublish    ErrorCategory = "publish"
	CategoryInternal   ErrorCategory = "internal"
)

// ErrorSeverity indicates how critical an error is.
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"   // Stops execution
	SeverityError   ErrorSeverity = "error"   // Error, but not fatal
	SeverityWarning ErrorSeverity = "warning" // Continues with degraded functionality
)

// ContextFields carries structured context for BookError.
type ContextFields map[string]any

// BookError is a structured error with category, severity, and context.
type BookError struct {
	Category ErrorCategory `json:"category"`
	Severity ErrorSeverity `json:"severity"`
	Message  string        `json:"message"`
	Cause    error         `json:"cause,omitempty"`
	Context  ContextFields `json:"context,omitempty"`
}

// Error implements the error interface.
func (e *BookError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Category, e.Severity, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Category, e.Severity, e.Message)
}

// Unwrap implements error unwrapping for Go 1.13+ error handling.
func (e *BookError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error.
func (e *BookError) WithContext(key string, value any) *BookError {
	if e.Context == nil {
		e.Context = make(ContextFields)
	}
	e.Context[key] = value
	return e
}

// New creates a new BookError.
func New(category ErrorCategory, severity ErrorSeverity, message string) *BookError {
	return &BookError{Category: category, Severity: severity, Message: message}
}

// Wrap creates a new BookError that wraps an existing error.
func Wrap(err error, category ErrorCategory, severity ErrorSeverity, message string) *BookError {
	return &BookError{Category: category, Severity: severity, Message: message, Cause: err}
}

// IsCategory checks if an error belongs to a specific category (unwrapping as needed).
func IsCategory(err error, category ErrorCategory) bool {
	var be *BookError
	if goerrors.As(err, &be) {
		return be.Category == category
	}
	return false
}

// GetCategory extracts the category from an error, or CategoryInternal if not a BookError.
func GetCategory(err error) ErrorCategory {
	var be *BookError
	if goerrors.As(err, &be) {
		return be.Category
	}
	return CategoryInternal
}

// ValidationError creates an error for a malformed or dangling manifest reference.
func ValidationError(message string) *BookError {
	return New(CategoryValidation, SeverityFatal, message)
}

// LinkError creates an error for an unresolvable cross-document link.
func LinkError(message string) *BookError {
	return New(CategoryLink, SeverityFatal, message)
}

// SampleFailure creates an error for a runnable sample whose outcome
// mismatches its declared expectation.
func SampleFailure(message string) *BookError {
	return New(CategorySample, SeverityFatal, message)
}

// PublishError creates an error for a failure to write the publish target.
func PublishError(message string) *BookError {
	return New(CategoryPublish, SeverityFatal, message)
}
