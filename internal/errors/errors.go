package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

const (
	// Authentication & Authorization
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden    ErrorCode = "FORBIDDEN"

	// Validation
	ErrCodeValidation      ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrCodeMissingRequired ErrorCode = "MISSING_REQUIRED"

	// Resource
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// Provider configuration
	ErrCodeProviderNotFound ErrorCode = "PROVIDER_NOT_FOUND"
	ErrCodeProviderDisabled ErrorCode = "PROVIDER_DISABLED"

	// OAuth state
	ErrCodeStateNotFound         ErrorCode = "STATE_NOT_FOUND"
	ErrCodeStateExpired          ErrorCode = "STATE_EXPIRED"
	ErrCodeStateAlreadyUsed      ErrorCode = "STATE_ALREADY_USED"
	ErrCodeStateProviderMismatch ErrorCode = "STATE_PROVIDER_MISMATCH"
	ErrCodeInvalidFlowState      ErrorCode = "INVALID_FLOW_STATE"

	// Provider communication
	ErrCodeProviderDenied          ErrorCode = "PROVIDER_DENIED"
	ErrCodeTokenExchange           ErrorCode = "TOKEN_EXCHANGE_FAILED"
	ErrCodeProfileFetch            ErrorCode = "PROFILE_FETCH_FAILED"
	ErrCodeTokenRefresh            ErrorCode = "TOKEN_REFRESH_FAILED"
	ErrCodeUnsupportedOperation    ErrorCode = "UNSUPPORTED_OPERATION"
	ErrCodeTokenRefreshUnavailable ErrorCode = "TOKEN_REFRESH_UNAVAILABLE"

	// Bindings
	ErrCodeAccountAlreadyBound  ErrorCode = "ACCOUNT_ALREADY_BOUND"
	ErrCodeLastAuthMethod       ErrorCode = "LAST_AUTH_METHOD"
	ErrCodeBindingNotFound      ErrorCode = "BINDING_NOT_FOUND"
	ErrCodeConfirmationRequired ErrorCode = "CONFIRMATION_REQUIRED"

	// Rate Limiting
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	// Internal
	ErrCodeInternal            ErrorCode = "INTERNAL_ERROR"
	ErrCodeInternalPersistence ErrorCode = "INTERNAL_PERSISTENCE_ERROR"
)

// Category groups error codes by who can act on them.
type Category string

const (
	CategoryConfiguration         Category = "configuration"
	CategoryState                 Category = "state"
	CategoryProviderCommunication Category = "provider_communication"
	CategoryConflict              Category = "conflict"
	CategoryInternal              Category = "internal"
	CategoryRequest               Category = "request"
)

// CategoryOf returns the category for a code.
func CategoryOf(code ErrorCode) Category {
	switch code {
	case ErrCodeProviderNotFound, ErrCodeProviderDisabled:
		return CategoryConfiguration
	case ErrCodeStateNotFound, ErrCodeStateExpired, ErrCodeStateAlreadyUsed,
		ErrCodeStateProviderMismatch, ErrCodeInvalidFlowState:
		return CategoryState
	case ErrCodeProviderDenied, ErrCodeTokenExchange, ErrCodeProfileFetch,
		ErrCodeTokenRefresh, ErrCodeUnsupportedOperation, ErrCodeTokenRefreshUnavailable:
		return CategoryProviderCommunication
	case ErrCodeAccountAlreadyBound, ErrCodeLastAuthMethod, ErrCodeBindingNotFound,
		ErrCodeConfirmationRequired:
		return CategoryConflict
	case ErrCodeInternal, ErrCodeInternalPersistence:
		return CategoryInternal
	default:
		return CategoryRequest
	}
}

// AppError is a structured error that can be returned to clients
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.cause
}

// Is reports whether target is an AppError with the same code, so
// errors.Is(err, StateAlreadyUsed()) works across distinct instances.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// WithCause adds a cause to the error
func (e *AppError) WithCause(err error) *AppError {
	e.cause = err
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError
func Wrap(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Common error constructors

func Unauthorized(message string) *AppError {
	return New(ErrCodeUnauthorized, message)
}

func Forbidden(message string) *AppError {
	return New(ErrCodeForbidden, message)
}

func NotFound(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource))
}

func ValidationError(message string) *AppError {
	return New(ErrCodeValidation, message)
}

func InvalidInput(field string, reason string) *AppError {
	return New(ErrCodeInvalidInput, fmt.Sprintf("Invalid %s: %s", field, reason))
}

func MissingRequired(field string) *AppError {
	return New(ErrCodeMissingRequired, fmt.Sprintf("%s is required", field))
}

func ProviderNotFound(name string) *AppError {
	return New(ErrCodeProviderNotFound, fmt.Sprintf("OAuth provider %q is not configured", name))
}

func ProviderDisabled(name string) *AppError {
	return New(ErrCodeProviderDisabled, fmt.Sprintf("OAuth provider %q is disabled", name))
}

func StateNotFound() *AppError {
	return New(ErrCodeStateNotFound, "Authorization request not found, please start again")
}

func StateExpired() *AppError {
	return New(ErrCodeStateExpired, "Authorization request expired, please start again")
}

func StateAlreadyUsed() *AppError {
	return New(ErrCodeStateAlreadyUsed, "Authorization request was already used, please start again")
}

func StateProviderMismatch() *AppError {
	return New(ErrCodeStateProviderMismatch, "Authorization request does not belong to this provider")
}

func InvalidFlowState(reason string) *AppError {
	return New(ErrCodeInvalidFlowState, fmt.Sprintf("Invalid authorization flow: %s", reason))
}

func ProviderDenied(provider string) *AppError {
	return New(ErrCodeProviderDenied, fmt.Sprintf("Authorization was denied at %s", provider))
}

func TokenExchange(provider string, cause error) *AppError {
	return Wrap(ErrCodeTokenExchange, fmt.Sprintf("Failed to obtain tokens from %s", provider), cause)
}

func ProfileFetch(provider string, cause error) *AppError {
	return Wrap(ErrCodeProfileFetch, fmt.Sprintf("Failed to load profile from %s", provider), cause)
}

func TokenRefresh(provider string, cause error) *AppError {
	return Wrap(ErrCodeTokenRefresh, fmt.Sprintf("Failed to refresh tokens at %s", provider), cause)
}

func UnsupportedOperation(provider, operation string) *AppError {
	return New(ErrCodeUnsupportedOperation, fmt.Sprintf("%s does not support %s", provider, operation))
}

func TokenRefreshUnavailable(provider string) *AppError {
	return New(ErrCodeTokenRefreshUnavailable, fmt.Sprintf("Tokens from %s cannot be refreshed, re-authorization required", provider))
}

func AccountAlreadyBound(provider string) *AppError {
	return New(ErrCodeAccountAlreadyBound, fmt.Sprintf("This %s account is already linked to another user", provider))
}

func LastAuthMethod() *AppError {
	return New(ErrCodeLastAuthMethod, "Cannot unlink the last authentication method")
}

func BindingNotFound(provider string) *AppError {
	return New(ErrCodeBindingNotFound, fmt.Sprintf("No %s account is linked", provider))
}

func ConfirmationRequired() *AppError {
	return New(ErrCodeConfirmationRequired, "Unlinking requires explicit confirmation")
}

func RateLimitExceeded() *AppError {
	return New(ErrCodeRateLimitExceeded, "Rate limit exceeded")
}

func Internal(message string) *AppError {
	return New(ErrCodeInternal, message)
}

func Persistence(cause error) *AppError {
	return Wrap(ErrCodeInternalPersistence, "Internal error", cause)
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetCode returns the error code if the error is an AppError, otherwise returns ErrCodeInternal
func GetCode(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code ErrorCode) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}
