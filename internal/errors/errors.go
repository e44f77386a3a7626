// Package errors provides structured error types for vitalog.
// All errors include a category, code, message, and retryable flag so
// transports can map them consistently.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by the stage that produced them.
type ErrorCategory string

const (
	ErrCategoryValidation ErrorCategory = "VALIDATION"
	ErrCategoryStorage    ErrorCategory = "STORAGE"
	ErrCategoryIngest     ErrorCategory = "INGEST"
	ErrCategoryRepair     ErrorCategory = "REPAIR"
	ErrCategoryInternal   ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Validation codes
	CodeInvalidKind  = "INVALID_KIND"
	CodeInvalidValue = "INVALID_VALUE"
	CodeInvalidDate  = "INVALID_DATE"
	CodeInvalidUser  = "INVALID_USER"

	// Storage codes
	CodeAppendFailed   = "APPEND_FAILED"
	CodeReadFailed     = "READ_FAILED"
	CodeWriteFailed    = "WRITE_FAILED"
	CodeUploadFailed   = "UPLOAD_FAILED"
	CodeObjectNotFound = "OBJECT_NOT_FOUND"

	// Ingest codes
	CodePartialWrite = "PARTIAL_WRITE"

	// Repair codes
	CodeRepairFailed = "REPAIR_FAILED"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// Sentinels for errors.Is checks. Matching is by category and code, so any
// VitalogError with the same pair satisfies errors.Is against these.
var (
	ErrInvalidKind  = New(ErrCategoryValidation, CodeInvalidKind, "invalid kind")
	ErrInvalidValue = New(ErrCategoryValidation, CodeInvalidValue, "invalid value")
	ErrPartialWrite = New(ErrCategoryIngest, CodePartialWrite, "partial write")
	ErrRepairFailed = New(ErrCategoryRepair, CodeRepairFailed, "repair failed")
	ErrNotFound     = New(ErrCategoryStorage, CodeObjectNotFound, "not found")
)

// VitalogError is the structured error type used throughout the system.
type VitalogError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *VitalogError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *VitalogError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *VitalogError) Is(target error) bool {
	var t *VitalogError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new VitalogError.
func New(category ErrorCategory, code, message string) *VitalogError {
	return &VitalogError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new VitalogError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *VitalogError {
	return &VitalogError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details merged in.
func (e *VitalogError) WithDetails(details map[string]interface{}) *VitalogError {
	cp := *e
	cp.Details = make(map[string]interface{}, len(e.Details)+len(details))
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	for k, v := range details {
		cp.Details[k] = v
	}
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var ve *VitalogError
	if errors.As(err, &ve) {
		return ve.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a VitalogError.
func GetCategory(err error) ErrorCategory {
	var ve *VitalogError
	if errors.As(err, &ve) {
		return ve.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a VitalogError.
func GetCode(err error) string {
	var ve *VitalogError
	if errors.As(err, &ve) {
		return ve.Code
	}
	return ""
}

// GetDetails extracts the details map of the outermost VitalogError, if any.
func GetDetails(err error) map[string]interface{} {
	var ve *VitalogError
	if errors.As(err, &ve) {
		return ve.Details
	}
	return nil
}

// isRetryable decides retryability per code. A partial write is not
// retryable: the event is already persisted and a retry would duplicate it.
func isRetryable(category ErrorCategory, code string) bool {
	switch {
	case category == ErrCategoryStorage && code == CodeAppendFailed:
		return true
	case category == ErrCategoryStorage && code == CodeReadFailed:
		return true
	case category == ErrCategoryStorage && code == CodeWriteFailed:
		return true
	case category == ErrCategoryStorage && code == CodeUploadFailed:
		return true
	case category == ErrCategoryRepair && code == CodeRepairFailed:
		return true
	default:
		return false
	}
}

// Convenience constructors for common errors.

func NewValidationError(code, message string) *VitalogError {
	return New(ErrCategoryValidation, code, message)
}

func NewStorageError(code, message string, cause error) *VitalogError {
	return Wrap(ErrCategoryStorage, code, message, cause)
}

// NewPartialWriteError reports that eventID was persisted but the aggregate
// for its day was not updated.
func NewPartialWriteError(eventID, date string, cause error) *VitalogError {
	return Wrap(ErrCategoryIngest, CodePartialWrite, "event stored but aggregate not updated", cause).
		WithDetails(map[string]interface{}{"event_id": eventID, "date": date})
}

func NewRepairError(date string, cause error) *VitalogError {
	return Wrap(ErrCategoryRepair, CodeRepairFailed, "repair of "+date+" failed", cause).
		WithDetails(map[string]interface{}{"date": date})
}

func NewInternalError(message string, cause error) *VitalogError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
