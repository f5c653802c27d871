package types

import (
	"fmt"
	"time"
)

// ErrorCode represents a unified error code across the engine.
type ErrorCode string

// Admission error codes
const (
	ErrValidation       ErrorCode = "VALIDATION"
	ErrApprovalTimeout  ErrorCode = "APPROVAL_TIMEOUT"
	ErrApprovalRejected ErrorCode = "APPROVAL_REJECTED"
	ErrCeilingExceeded  ErrorCode = "CEILING_EXCEEDED"
)

// Ledger error codes
const (
	ErrBudgetExceeded   ErrorCode = "BUDGET_EXCEEDED"
	ErrLedgerInvariant  ErrorCode = "LEDGER_INVARIANT"
	ErrUnknownAssetType ErrorCode = "UNKNOWN_ASSET_TYPE"
)

// Generation error codes
const (
	ErrGeneration    ErrorCode = "GENERATION"
	ErrRenderTimeout ErrorCode = "RENDER_TIMEOUT"
	ErrRunCancelled  ErrorCode = "RUN_CANCELLED"
)

// Infrastructure error codes
const (
	ErrInvalidConfig ErrorCode = "INVALID_CONFIG"
	ErrStoreFailure  ErrorCode = "STORE_FAILURE"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the provider HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithProvider sets the provider name.
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// NewValidationError builds a Safety Gate validation error. Never retryable;
// surfaced before any cost is reserved.
func NewValidationError(reason string) *Error {
	return &Error{Code: ErrValidation, Message: reason}
}

// NewBudgetExceededError builds a reservation-denied error carrying the
// requested and available amounts.
func NewBudgetExceededError(need, available Amount) *Error {
	return &Error{
		Code:    ErrBudgetExceeded,
		Message: fmt.Sprintf("reservation of %s denied, %s available", need, available),
	}
}

// NewGenerationError wraps a render failure after reservation. Retryability is
// set by the caller's classification of the cause.
func NewGenerationError(message string, cause error) *Error {
	return &Error{Code: ErrGeneration, Message: message, Cause: cause}
}

// NewApprovalTimeoutError builds the admission error for an approval wait that
// exceeded its deadline.
func NewApprovalTimeoutError(timeout time.Duration) *Error {
	return &Error{
		Code:    ErrApprovalTimeout,
		Message: fmt.Sprintf("approval not received within %s", timeout),
	}
}

// NewApprovalRejectedError builds the admission error for an explicit denial.
func NewApprovalRejectedError(reason string) *Error {
	if reason == "" {
		reason = "approval rejected"
	}
	return &Error{Code: ErrApprovalRejected, Message: reason}
}

// NewLedgerInvariantError builds the fatal ledger-corruption error. A run must
// abort when it sees this code; the ledger can no longer be trusted.
func NewLedgerInvariantError(detail string) *Error {
	return &Error{Code: ErrLedgerInvariant, Message: detail}
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}

// IsBudgetExceeded reports whether err is a reservation denial.
func IsBudgetExceeded(err error) bool {
	return GetErrorCode(err) == ErrBudgetExceeded
}

// IsValidation reports whether err is a Safety Gate validation failure.
func IsValidation(err error) bool {
	return GetErrorCode(err) == ErrValidation
}

// IsFatal reports whether err must abort the run rather than be recorded and
// recovered from. Only ledger invariant violations qualify.
func IsFatal(err error) bool {
	return GetErrorCode(err) == ErrLedgerInvariant
}
