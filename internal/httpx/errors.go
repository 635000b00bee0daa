package httpx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Business error codes
const (
	// Success
	CodeSuccess = 0

	// Authentication/Authorization errors (1000-1099)
	CodeUnauthorized = 1001 // Not logged in / Token missing
	CodeInvalidToken = 1002 // Token invalid
	CodeTokenExpired = 1003 // Token expired
	CodeForbidden    = 1004 // No permission

	// Parameter errors (2000-2099)
	CodeParamMissing = 2001 // Parameter missing
	CodeParamInvalid = 2002 // Parameter format error
	CodeValidation   = 2003 // Precondition not met

	// Resource/Business errors (3000-3999)
	CodeNotFound = 3001 // Resource not found or not owned
	CodeConflict = 3002 // Concurrent operation already in flight

	// System errors (5000-5999)
	CodeInternalError = 5001 // Internal service error
	CodeDeployment    = 5003 // Hosting provider rejected the request
	CodeTimeout       = 5004 // Bounded wait exceeded
)

// Reasons are the stable, machine-readable names of the error taxonomy.
const (
	ReasonValidation = "VALIDATION_ERROR"
	ReasonConflict   = "CONFLICT"
	ReasonNotFound   = "NOT_FOUND"
	ReasonDeployment = "DEPLOYMENT_ERROR"
	ReasonTimeout    = "TIMEOUT"
	ReasonInternal   = "INTERNAL_ERROR"
	ReasonAuth       = "UNAUTHORIZED"
	ReasonForbidden  = "FORBIDDEN"
)

// AppError represents an application error with HTTP status and business code
type AppError struct {
	HTTPStatus int    // HTTP status code
	Code       int    // Business error code
	Reason     string // Taxonomy name, e.g. VALIDATION_ERROR
	Message    string // User-facing error message
	Err        error  // Internal error (for logging only, not returned to client)
	Data       any    // Additional data (for detailed error information)
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("code=%d, message=%s, err=%v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("code=%d, message=%s", e.Code, e.Message)
}

// Unwrap exposes the internal error to errors.Is / errors.As
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithData adds additional data to the error
func (e *AppError) WithData(data any) *AppError {
	e.Data = data
	return e
}

// NewAppError creates a new AppError
func NewAppError(httpStatus, code int, reason, message string, err error) *AppError {
	return &AppError{
		HTTPStatus: httpStatus,
		Code:       code,
		Reason:     reason,
		Message:    message,
		Err:        err,
	}
}

// Authentication/Authorization error constructors

// ErrUnauthorized creates a 401 unauthorized error
func ErrUnauthorized(message string) *AppError {
	if message == "" {
		message = "unauthorized"
	}
	return NewAppError(http.StatusUnauthorized, CodeUnauthorized, ReasonAuth, message, nil)
}

// ErrInvalidToken creates a 401 invalid token error
func ErrInvalidToken(message string) *AppError {
	if message == "" {
		message = "invalid token"
	}
	return NewAppError(http.StatusUnauthorized, CodeInvalidToken, ReasonAuth, message, nil)
}

// ErrTokenExpired creates a 401 token expired error
func ErrTokenExpired(message string) *AppError {
	if message == "" {
		message = "token expired"
	}
	return NewAppError(http.StatusUnauthorized, CodeTokenExpired, ReasonAuth, message, nil)
}

// ErrForbidden creates a 403 forbidden error
func ErrForbidden(message string) *AppError {
	if message == "" {
		message = "forbidden"
	}
	return NewAppError(http.StatusForbidden, CodeForbidden, ReasonForbidden, message, nil)
}

// Parameter error constructors

// ErrParamMissing creates a 400 parameter missing error
func ErrParamMissing(message string) *AppError {
	if message == "" {
		message = "parameter missing"
	}
	return NewAppError(http.StatusBadRequest, CodeParamMissing, ReasonValidation, message, nil)
}

// ErrParamInvalid creates a 400 parameter invalid error
func ErrParamInvalid(message string) *AppError {
	if message == "" {
		message = "parameter format error"
	}
	return NewAppError(http.StatusBadRequest, CodeParamInvalid, ReasonValidation, message, nil)
}

// ErrValidation creates a 400 error for an unmet precondition
func ErrValidation(message string) *AppError {
	if message == "" {
		message = "precondition not met"
	}
	return NewAppError(http.StatusBadRequest, CodeValidation, ReasonValidation, message, nil)
}

// Resource/Business error constructors

// ErrNotFound creates a 404 not found error
func ErrNotFound(message string) *AppError {
	if message == "" {
		message = "resource not found"
	}
	return NewAppError(http.StatusNotFound, CodeNotFound, ReasonNotFound, message, nil)
}

// ErrConflict creates a 409 conflict error
func ErrConflict(message string) *AppError {
	if message == "" {
		message = "operation already in progress"
	}
	return NewAppError(http.StatusConflict, CodeConflict, ReasonConflict, message, nil)
}

// System error constructors

// ErrDeployment creates a 502 error carrying the hosting provider's message
func ErrDeployment(message string, err error) *AppError {
	if message == "" {
		message = "deployment failed"
	}
	return NewAppError(http.StatusBadGateway, CodeDeployment, ReasonDeployment, message, err)
}

// ErrTimeout creates a 504 timeout error
func ErrTimeout(message string, err error) *AppError {
	if message == "" {
		message = "operation timed out"
	}
	return NewAppError(http.StatusGatewayTimeout, CodeTimeout, ReasonTimeout, message, err)
}

// ErrInternalError creates a 500 internal error
func ErrInternalError(message string, err error) *AppError {
	if message == "" {
		message = "internal error"
	}
	return NewAppError(http.StatusInternalServerError, CodeInternalError, ReasonInternal, message, err)
}

// ErrUnexpected wraps an uncategorized error. The message never reaches the client.
func ErrUnexpected(err error) *AppError {
	return NewAppError(http.StatusInternalServerError, CodeInternalError, ReasonInternal, "internal error", err)
}

// Is reports whether err is an AppError of the given reason
func Is(err error, reason string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Reason == reason
	}
	return false
}

// From converts any error into an AppError.
// Deadline errors become timeouts; untyped errors become INTERNAL_ERROR.
func From(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout("", err)
	}
	return ErrUnexpected(err)
}
