package manager

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Code is the machine-readable failure taxonomy.
type Code string

const (
	CodeModelNotFound      Code = "model_not_found"
	CodeLoadingFailed      Code = "loading_failed"
	CodeInsufficientMemory Code = "insufficient_memory"
	CodeTimeout            Code = "timeout"
	CodeInferenceFailed    Code = "inference_failed"
	CodeUnsupportedFormat  Code = "unsupported_format"
	CodeCancelled          Code = "cancelled"
	CodeUnknown            Code = "unknown"
)

// Error is the typed failure surfaced by the manager. Every error carries a
// recoverable flag and zero or more actionable suggestions.
type Error struct {
	Code        Code
	ModelID     string
	Message     string
	Recoverable bool
	Suggestions []string
	Cause       error
}

func (e *Error) Error() string {
	if e.ModelID != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.ModelID, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// StatusCode maps the error onto an HTTP status for the API layer.
func (e *Error) StatusCode() int {
	switch e.Code {
	case CodeModelNotFound:
		return http.StatusNotFound
	case CodeUnsupportedFormat:
		return http.StatusUnsupportedMediaType
	case CodeInsufficientMemory:
		return http.StatusInsufficientStorage
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeCancelled:
		return 499 // client closed request
	default:
		return http.StatusInternalServerError
	}
}

// AsError extracts a typed manager error.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf returns the taxonomy code for err, CodeUnknown when untyped.
func CodeOf(err error) Code {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	if errors.Is(err, context.Canceled) {
		return CodeCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout
	}
	return CodeUnknown
}

func IsModelNotFound(err error) bool      { return CodeOf(err) == CodeModelNotFound }
func IsLoadingFailed(err error) bool      { return CodeOf(err) == CodeLoadingFailed }
func IsInsufficientMemory(err error) bool { return CodeOf(err) == CodeInsufficientMemory }
func IsInferenceFailed(err error) bool    { return CodeOf(err) == CodeInferenceFailed }
func IsUnsupportedFormat(err error) bool  { return CodeOf(err) == CodeUnsupportedFormat }
func IsCancelled(err error) bool          { return CodeOf(err) == CodeCancelled }

// IsRecoverable reports whether a retry may succeed without operator action.
func IsRecoverable(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Recoverable
	}
	return false
}

func errModelNotFound(id string) *Error {
	return &Error{
		Code:        CodeModelNotFound,
		ModelID:     id,
		Message:     "model not found in registry",
		Suggestions: []string{"run discovery to refresh the registry", "check the model id spelling"},
	}
}

func errUnsupportedFormat(id string, format string) *Error {
	return &Error{
		Code:        CodeUnsupportedFormat,
		ModelID:     id,
		Message:     fmt.Sprintf("unsupported model format %q", format),
		Suggestions: []string{"convert the model to gguf"},
	}
}

func errInsufficientMemory(id, reason string) *Error {
	return &Error{
		Code:        CodeInsufficientMemory,
		ModelID:     id,
		Message:     reason,
		Suggestions: []string{"unload an idle model", "retry with force_load", "use a smaller quantization"},
	}
}

func errLoadingFailed(id string, cause error, recoverable bool) *Error {
	e := &Error{
		Code:        CodeLoadingFailed,
		ModelID:     id,
		Message:     cause.Error(),
		Recoverable: recoverable,
		Cause:       cause,
	}
	if recoverable {
		e.Suggestions = []string{"a retry has been scheduled", "check the model file is readable"}
	} else {
		e.Suggestions = []string{"check the runtime installation"}
	}
	return e
}

func errInferenceFailed(id string, cause error) *Error {
	return &Error{
		Code:        CodeInferenceFailed,
		ModelID:     id,
		Message:     cause.Error(),
		Recoverable: true,
		Cause:       cause,
		Suggestions: []string{"retry the request", "reload the model if errors persist"},
	}
}

func errCancelled(id string, cause error) *Error {
	return &Error{
		Code:    CodeCancelled,
		ModelID: id,
		Message: "operation cancelled",
		Cause:   cause,
	}
}
