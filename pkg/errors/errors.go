// Package errors defines the coded errors recorded as a task's status info.
package errors

import (
	"errors"
	"fmt"
)

// Error codes. They prefix the status info of failed tasks.
const (
	CodeUnknown       = "UNKNOWN_ERROR"
	CodeDatabaseError = "DATABASE_ERROR"
	CodeDownloadError = "DOWNLOAD_ERROR"
	CodeStorageError  = "STORAGE_ERROR"
	CodeAnalysisError = "ANALYSIS_ERROR"
	CodeParseError    = "PARSE_ERROR"
	CodeEmptyFile     = "EMPTY_FILE"
	CodeNoDumps       = "NO_MEMORY_DUMPS"
	CodeInvalidInput  = "INVALID_INPUT"
	CodeTimeout       = "TIMEOUT_ERROR"
)

// AppError is an error carrying one of the codes above.
type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches any *AppError with the same code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && e.Code == t.Code
}

// New creates an AppError.
func New(code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap creates an AppError around err.
func Wrap(code, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// Sentinels for errors.Is.
var (
	ErrEmptyFile = New(CodeEmptyFile, "empty file")
	ErrNoDumps   = New(CodeNoDumps, "trace contains no memory dumps")
)

// GetErrorCode returns the code of the outermost AppError in err's chain,
// CodeUnknown if there is none.
func GetErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// HasCode reports whether any AppError in err's chain carries code.
func HasCode(err error, code string) bool {
	return errors.Is(err, &AppError{Code: code})
}

// StatusInfo renders err for a task's status info column as
// "<CODE>: <message>[: <cause>]". It returns "" for a nil error.
func StatusInfo(err error) string {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return fmt.Sprintf("%s: %v", CodeUnknown, err)
	}
	if appErr.Err != nil {
		return fmt.Sprintf("%s: %s: %v", appErr.Code, appErr.Message, appErr.Err)
	}
	return fmt.Sprintf("%s: %s", appErr.Code, appErr.Message)
}
