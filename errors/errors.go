package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrSourceExhausted marks a failure after which a stage can make no further
// progress for this run. A stage that sees it stops as if its backing source
// were empty, and still releases its downstream stages.
var ErrSourceExhausted = stderrors.New("source exhausted")

// AppError is the unified application error type.
type AppError struct {
	// Code is a machine-readable error code.
	Code ErrorCode `json:"code"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Retryable indicates if the operation can be retried.
	Retryable bool `json:"retryable"`
	// Details contains additional context for the error.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`
}

// Error returns the string representation of the error.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error { return e.Cause }

// Is reports quota exhaustion as ErrSourceExhausted so callers can match on
// the sentinel without knowing the code.
func (e *AppError) Is(target error) bool {
	return target == ErrSourceExhausted && e.Code == ErrCodeQuotaExhausted
}

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetails merges the provided details into the error and returns the receiver.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError with automatic retryable detection.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Retryable: IsRetryableCode(code),
	}
}

// As extracts an *AppError from err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether err's chain contains an AppError with code.
func HasCode(err error, code ErrorCode) bool {
	appErr, ok := As(err)
	return ok && appErr.Code == code
}

// IsRetryable reports whether err's chain contains a retryable AppError.
func IsRetryable(err error) bool {
	appErr, ok := As(err)
	return ok && appErr.Retryable
}

// --- Common Error Constructors ---

// GraphInvalid reports a pipeline definition that cannot be run.
func GraphInvalid(pipeline, reason string) *AppError {
	return &AppError{
		Code: ErrCodeGraphInvalid, Message: fmt.Sprintf("pipeline %q is invalid: %s", pipeline, reason),
		Details: map[string]any{"pipeline": pipeline},
	}
}

// QuotaExhausted reports that a provider quota is spent. It matches
// ErrSourceExhausted under errors.Is.
func QuotaExhausted(provider string, used, limit int) *AppError {
	return &AppError{
		Code:    ErrCodeQuotaExhausted,
		Message: fmt.Sprintf("%s daily call limit reached (%d of %d)", provider, used, limit),
		Details: map[string]any{"provider": provider, "used": used, "limit": limit},
	}
}

// SourceUnavailable reports a failed backing source read.
func SourceUnavailable(stage string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeSourceUnavailable, Message: fmt.Sprintf("backing source for %s is unavailable", stage),
		Retryable: true, Details: map[string]any{"stage": stage}, Cause: cause,
	}
}

// Locked reports that a routine is already running elsewhere.
func Locked(routine, holder string) *AppError {
	return &AppError{
		Code: ErrCodeLocked, Message: fmt.Sprintf("routine %s is already running", routine),
		Details: map[string]any{"routine": routine, "holder": holder},
	}
}

// NotFound creates a new AppError for a resource that was not found.
func NotFound(resource, id string) *AppError {
	details := map[string]any{"resource": resource}
	if id != "" {
		details["id"] = id
	}
	return &AppError{
		Code: ErrCodeNotFound, Message: fmt.Sprintf("%s %q was not found", resource, id),
		Details: details,
	}
}

// InvalidInput creates a new AppError for invalid input.
func InvalidInput(field, reason string) *AppError {
	details := make(map[string]any)
	if field != "" {
		details["field"] = field
	}
	return &AppError{
		Code: ErrCodeInvalidInput, Message: fmt.Sprintf("invalid input: %s", reason),
		Details: details,
	}
}

// Timeout creates a new AppError for a call that timed out.
func Timeout(operation string) *AppError {
	return &AppError{
		Code: ErrCodeTimeout, Message: fmt.Sprintf("%s timed out", operation),
		Retryable: true, Details: map[string]any{"operation": operation},
	}
}

// RateLimited reports a vendor-side rate rejection.
func RateLimited(service string) *AppError {
	return &AppError{
		Code: ErrCodeRateLimited, Message: fmt.Sprintf("%s rejected the call for rate", service),
		Retryable: true, Details: map[string]any{"service": service},
	}
}

// Internal creates a new AppError for an unexpected internal error.
func Internal(cause error) *AppError {
	return &AppError{
		Code: ErrCodeInternal, Message: "an unexpected error occurred",
		Cause: cause,
	}
}

// DatabaseError creates a new AppError for a database error.
func DatabaseError(cause error) *AppError {
	return &AppError{
		Code: ErrCodeDatabaseError, Message: "a database error occurred",
		Retryable: true, Cause: cause,
	}
}

// ExternalServiceError creates a new AppError for an error from a vendor API.
func ExternalServiceError(service string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeExternalService, Message: fmt.Sprintf("the %s service returned an error", service),
		Retryable: true, Details: map[string]any{"service": service}, Cause: cause,
	}
}
