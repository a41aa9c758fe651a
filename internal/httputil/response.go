package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	apperrors "github.com/openclaw/oauth-bridge-go/internal/errors"
)

func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Debug().Err(err).Msg("failed to write response")
	}
}

// ErrorResponse is the standard error response format
type ErrorResponse struct {
	Error    string              `json:"error"`
	Code     apperrors.ErrorCode `json:"code"`
	Category apperrors.Category  `json:"category"`
	Details  any                 `json:"details,omitempty"`
}

// WriteError writes an AppError as an HTTP response with appropriate status code
func WriteError(w http.ResponseWriter, err error) {
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		// Wrap unknown errors as internal errors
		appErr = apperrors.Internal("An unexpected error occurred")
	}

	WriteErrorWithStatus(w, StatusFromCode(appErr.Code), appErr)
}

// WriteErrorWithStatus writes an error with a specific HTTP status code
func WriteErrorWithStatus(w http.ResponseWriter, status int, err *apperrors.AppError) {
	response := ErrorResponse{
		Error:    err.Message,
		Code:     err.Code,
		Category: apperrors.CategoryOf(err.Code),
		Details:  err.Details,
	}
	WriteJSON(w, status, response)
}

// StatusFromCode maps ErrorCode to HTTP status code
func StatusFromCode(code apperrors.ErrorCode) int {
	switch code {
	// 400 Bad Request
	case apperrors.ErrCodeValidation,
		apperrors.ErrCodeInvalidInput,
		apperrors.ErrCodeMissingRequired,
		apperrors.ErrCodeStateNotFound,
		apperrors.ErrCodeStateExpired,
		apperrors.ErrCodeStateAlreadyUsed,
		apperrors.ErrCodeStateProviderMismatch,
		apperrors.ErrCodeInvalidFlowState,
		apperrors.ErrCodeConfirmationRequired:
		return http.StatusBadRequest

	// 401 Unauthorized
	case apperrors.ErrCodeUnauthorized:
		return http.StatusUnauthorized

	// 403 Forbidden
	case apperrors.ErrCodeForbidden,
		apperrors.ErrCodeProviderDisabled,
		apperrors.ErrCodeProviderDenied:
		return http.StatusForbidden

	// 404 Not Found
	case apperrors.ErrCodeNotFound,
		apperrors.ErrCodeProviderNotFound,
		apperrors.ErrCodeBindingNotFound:
		return http.StatusNotFound

	// 409 Conflict
	case apperrors.ErrCodeAccountAlreadyBound,
		apperrors.ErrCodeLastAuthMethod,
		apperrors.ErrCodeTokenRefreshUnavailable:
		return http.StatusConflict

	// 422 Unprocessable Entity
	case apperrors.ErrCodeUnsupportedOperation:
		return http.StatusUnprocessableEntity

	// 429 Too Many Requests
	case apperrors.ErrCodeRateLimitExceeded:
		return http.StatusTooManyRequests

	// 502 Bad Gateway
	case apperrors.ErrCodeTokenExchange,
		apperrors.ErrCodeProfileFetch,
		apperrors.ErrCodeTokenRefresh:
		return http.StatusBadGateway

	default:
		return http.StatusInternalServerError
	}
}
