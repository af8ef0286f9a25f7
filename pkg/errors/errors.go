// Package errors provides structured error handling for EventFlow.
// It implements errors with codes, context, and stack traces, and maps
// every error into one of the pipeline's handling classes: validation,
// external I/O, conflict, cache corruption, or fatal.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Code identifies an error class for programmatic handling.
type Code string

const (
	// Validation errors (1xx): record dropped, counted, never a failure
	CodeMissingTitle Code = "E101"
	CodeMissingVenue Code = "E102"
	CodeBadStartTime Code = "E103"
	CodeInvalidInput Code = "E104"

	// External I/O errors (2xx): retried with backoff, then isolated
	CodeStoreUnavailable Code = "E201"
	CodeStoreTimeout     Code = "E202"
	CodeExternalCall     Code = "E203"

	// Conflict (3xx): benign, counted as success-via-upsert
	CodeDuplicateKey Code = "E301"

	// Cache corruption (4xx): entry deleted, treated as a miss
	CodeCacheCorrupt Code = "E401"

	// Fatal (5xx): pipeline returns success=false with partial counters
	CodePersistenceDown Code = "E501"

	// Unknown
	CodeUnknown Code = "E999"
)

// EventFlowError is the base error type for all EventFlow errors.
type EventFlowError struct {
	Code       Code
	Message    string
	Cause      error
	Context    map[string]interface{}
	StackTrace []Frame
}

// Frame represents a stack frame.
type Frame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface.
func (e *EventFlowError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if len(e.Context) > 0 {
		sb.WriteString(" (")
		first := true
		for k, v := range e.Context {
			if !first {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("%s=%v", k, v))
			first = false
		}
		sb.WriteString(")")
	}

	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}

	return sb.String()
}

// Unwrap returns the underlying cause.
func (e *EventFlowError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches a target error.
func (e *EventFlowError) Is(target error) bool {
	if t, ok := target.(*EventFlowError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithContext adds context to the error.
func (e *EventFlowError) WithContext(key string, value interface{}) *EventFlowError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new EventFlowError.
func New(code Code, message string) *EventFlowError {
	return &EventFlowError{
		Code:       code,
		Message:    message,
		StackTrace: captureStack(2),
	}
}

// Wrap wraps an existing error with additional context.
func Wrap(err error, code Code, message string) *EventFlowError {
	if err == nil {
		return nil
	}

	return &EventFlowError{
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: captureStack(2),
	}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, code Code, format string, args ...interface{}) *EventFlowError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// captureStack captures the current stack trace.
func captureStack(skip int) []Frame {
	var frames []Frame
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)
	pcs = pcs[:n]

	cf := runtime.CallersFrames(pcs)
	for {
		frame, more := cf.Next()
		frames = append(frames, Frame{
			Function: frame.Function,
			File:     frame.File,
			Line:     frame.Line,
		})
		if !more || len(frames) >= 10 {
			break
		}
	}
	return frames
}

// FormatStack returns a formatted stack trace.
func (e *EventFlowError) FormatStack() string {
	var sb strings.Builder
	for _, f := range e.StackTrace {
		sb.WriteString(fmt.Sprintf("  at %s\n    %s:%d\n", f.Function, f.File, f.Line))
	}
	return sb.String()
}

// --- Convenience constructors ---

// MissingTitle creates a validation error for a record without a title.
func MissingTitle(source string) *EventFlowError {
	return New(CodeMissingTitle, "record has no title").WithContext("source", source)
}

// MissingVenue creates a validation error for a record without a venue name.
func MissingVenue(title string) *EventFlowError {
	return New(CodeMissingVenue, "record has no venue name").WithContext("title", title)
}

// BadStartTime creates a validation error for an unparseable start time.
func BadStartTime(value, title string) *EventFlowError {
	return New(CodeBadStartTime, "failed to parse start time").
		WithContext("value", value).
		WithContext("title", title)
}

// DuplicateKey marks a unique-constraint hit on (title, start, city).
func DuplicateKey(eventID string) *EventFlowError {
	return New(CodeDuplicateKey, "event already persisted").WithContext("event_id", eventID)
}

// CacheCorrupt marks an unreadable cache payload.
func CacheCorrupt(key string, cause error) *EventFlowError {
	return Wrap(cause, CodeCacheCorrupt, "unexpected cache payload shape").WithContext("key", key)
}

// PersistenceDown marks a persistence layer that cannot be reached at all.
func PersistenceDown(cause error) *EventFlowError {
	return Wrap(cause, CodePersistenceDown, "persistence layer unreachable")
}

// --- Error checking utilities ---

// IsCode checks if an error has a specific code.
func IsCode(err error, code Code) bool {
	var efErr *EventFlowError
	if errors.As(err, &efErr) {
		return efErr.Code == code
	}
	return false
}

// GetCode extracts the error code from an error.
func GetCode(err error) Code {
	var efErr *EventFlowError
	if errors.As(err, &efErr) {
		return efErr.Code
	}
	return CodeUnknown
}

// IsValidation returns true for errors that drop a record silently.
func IsValidation(err error) bool {
	switch GetCode(err) {
	case CodeMissingTitle, CodeMissingVenue, CodeBadStartTime, CodeInvalidInput:
		return true
	default:
		return false
	}
}

// IsRetryable returns true if the operation should be retried with backoff.
func IsRetryable(err error) bool {
	switch GetCode(err) {
	case CodeStoreUnavailable, CodeStoreTimeout, CodeExternalCall:
		return true
	default:
		return false
	}
}

// IsConflict returns true for the benign duplicate-key condition.
func IsConflict(err error) bool {
	return IsCode(err, CodeDuplicateKey)
}

// IsFatal returns true if the pipeline cannot continue.
func IsFatal(err error) bool {
	return IsCode(err, CodePersistenceDown)
}

// MultiError collects multiple errors.
type MultiError struct {
	Errors []error
}

// Error implements the error interface.
func (m *MultiError) Error() string {
	if len(m.Errors) == 0 {
		return "no errors"
	}
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d errors occurred:\n", len(m.Errors)))
	for i, err := range m.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// HasErrors returns true if any errors were collected.
func (m *MultiError) HasErrors() bool {
	return len(m.Errors) > 0
}

// Combined returns nil if no errors, the single error if one, or the MultiError.
func (m *MultiError) Combined() error {
	switch len(m.Errors) {
	case 0:
		return nil
	case 1:
		return m.Errors[0]
	default:
		return m
	}
}
