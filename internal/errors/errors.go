package errors

import (
	"errors"
	"fmt"
)

// AppError represents a structured application error
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return &AppError{
			Code:    appErr.Code,
			Message: message,
			Cause:   appErr,
		}
	}
	return &AppError{
		Code:    CodeInternalError,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with formatted additional context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WithCode adds an error code to an existing error, preserving the cause chain
func WithCode(code string, err error) error {
	if err == nil {
		return nil
	}
	return &AppError{
		Code:    code,
		Message: err.Error(),
		Cause:   err,
	}
}

// GetCode returns the error code if the chain carries an AppError,
// otherwise "UNKNOWN"
func GetCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN"
}

// HasCode checks whether the error chain carries the given code
func HasCode(err error, code string) bool {
	return GetCode(err) == code
}

// Pipeline error taxonomy. Every analysis-run failure maps to one of these;
// view publishers additionally use CodeNoData for degraded renders.
const (
	CodeUnsupportedFormat = "UNSUPPORTED_FORMAT"
	CodeIOError           = "IO_ERROR"
	CodeSampleMismatch    = "SAMPLE_MISMATCH"
	CodeEngineError       = "ENGINE_ERROR"
	CodeNoData            = "NO_DATA_AVAILABLE"
	CodeConfigInvalid     = "CONFIG_INVALID"
	CodeInvalidInput      = "INVALID_INPUT"
	CodeRunInProgress     = "RUN_IN_PROGRESS"
	CodeRunCancelled      = "RUN_CANCELLED"
	CodeInternalError     = "INTERNAL_ERROR"
)

// Common error constructors

func UnsupportedFormat(ext string) *AppError {
	return New(CodeUnsupportedFormat, fmt.Sprintf("unsupported file format %q: expected csv, tsv or txt", ext))
}

func IOError(path string, cause error) *AppError {
	return &AppError{
		Code:    CodeIOError,
		Message: fmt.Sprintf("failed to read %s", path),
		Cause:   cause,
	}
}

func EngineError(cause error) *AppError {
	// Engine failures pass the engine's own message through verbatim.
	return &AppError{
		Code:    CodeEngineError,
		Message: cause.Error(),
		Cause:   cause,
	}
}

func NoData(view string) *AppError {
	return New(CodeNoData, fmt.Sprintf("no data available for %s view: run an analysis first", view))
}

func ConfigInvalid(message string) *AppError {
	return New(CodeConfigInvalid, message)
}

func InvalidInput(message string) *AppError {
	return New(CodeInvalidInput, message)
}

func RunInProgress() *AppError {
	return New(CodeRunInProgress, "an analysis run is already in progress")
}

func InternalError(message string) *AppError {
	return New(CodeInternalError, message)
}
