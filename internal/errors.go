package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "VALIDATION_ERROR"
	ErrorTypeNotFound     ErrorType = "NOT_FOUND"
	ErrorTypeUnauthorized ErrorType = "UNAUTHORIZED"
	ErrorTypeForbidden    ErrorType = "FORBIDDEN"
	ErrorTypeConflict     ErrorType = "CONFLICT"
	ErrorTypeInternal     ErrorType = "INTERNAL_ERROR"
	ErrorTypeExternal     ErrorType = "EXTERNAL_ERROR"
)

type ErrorCode string

const (
	ErrCodeValidationFailed    ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidAmount       ErrorCode = "INVALID_AMOUNT"
	ErrCodeUnsupportedCurrency ErrorCode = "UNSUPPORTED_CURRENCY"
	ErrCodeInvalidPayload      ErrorCode = "INVALID_PAYLOAD"
	ErrCodeInvalidSignature    ErrorCode = "INVALID_SIGNATURE"

	ErrCodeOrderNotFound   ErrorCode = "ORDER_NOT_FOUND"
	ErrCodeOrderMismatch   ErrorCode = "ORDER_MISMATCH"
	ErrCodeAlreadyAttached ErrorCode = "ALREADY_ATTACHED"

	ErrCodePaymentNotFound       ErrorCode = "PAYMENT_NOT_FOUND"
	ErrCodeNotCaptured           ErrorCode = "NOT_CAPTURED"
	ErrCodeRefundExceedsCaptured ErrorCode = "REFUND_EXCEEDS_CAPTURED"
	ErrCodeStateConflict         ErrorCode = "STATE_CONFLICT"
	ErrCodeConcurrentUpdate      ErrorCode = "CONCURRENT_UPDATE"

	ErrCodeConflictNotFound ErrorCode = "CONFLICT_NOT_FOUND"
	ErrCodeConflictResolved ErrorCode = "CONFLICT_ALREADY_RESOLVED"

	ErrCodeProviderUnavailable ErrorCode = "PROVIDER_UNAVAILABLE"
	ErrCodeProviderRejected    ErrorCode = "PROVIDER_REJECTED"
	ErrCodePlatformUnavailable ErrorCode = "PLATFORM_UNAVAILABLE"

	ErrCodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	ErrCodeUserNotFound       ErrorCode = "USER_NOT_FOUND"
	ErrCodeUserInactive       ErrorCode = "USER_INACTIVE"
	ErrCodeInvalidToken       ErrorCode = "INVALID_TOKEN"
	ErrCodeTokenExpired       ErrorCode = "TOKEN_EXPIRED"
	ErrCodePermissionDenied   ErrorCode = "PERMISSION_DENIED"
)

type AppError struct {
	Type       ErrorType   `json:"type"`
	Code       ErrorCode   `json:"code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
	StatusCode int         `json:"-"`
	Cause      error       `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok && len(validationErrors.Errors) > 0 {

			return validationErrors.Errors[0].Message
		}
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) GetDetailedMessage() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok {
			if len(validationErrors.Errors) == 1 {
				return validationErrors.Errors[0].Message
			} else if len(validationErrors.Errors) > 1 {
				messages := make([]string, len(validationErrors.Errors))
				for i, err := range validationErrors.Errors {
					messages[i] = err.Message
				}
				return strings.Join(messages, "; ")
			}
		}
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches on Code so that copies made by With* still satisfy errors.Is
// against the package-level sentinels.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func (e *AppError) clone() *AppError {
	c := *e
	return &c
}

// WithCause returns a copy of e carrying cause. Sentinels are never mutated.
func (e *AppError) WithCause(cause error) *AppError {
	c := e.clone()
	c.Cause = cause
	return c
}

func (e *AppError) WithDetails(details interface{}) *AppError {
	c := e.clone()
	c.Details = details
	return c
}

func (e *AppError) WithMessage(format string, args ...interface{}) *AppError {
	c := e.clone()
	c.Message = fmt.Sprintf(format, args...)
	return c
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func NewValidationError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func NewValidationFieldError(field, message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       ErrCodeValidationFailed,
		Message:    "Validation failed",
		StatusCode: http.StatusBadRequest,
		Details: ValidationErrors{
			Errors: []ValidationError{
				{Field: field, Message: message, Code: string(code)},
			},
		},
	}
}

func NewNotFoundError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

func NewUnauthorizedError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeUnauthorized,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

func NewForbiddenError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeForbidden,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

func NewConflictError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func NewExternalError(message string, code ErrorCode, status int) *AppError {
	return &AppError{
		Type:       ErrorTypeExternal,
		Code:       code,
		Message:    message,
		StatusCode: status,
	}
}

var (
	ErrInvalidAmount       = NewValidationError("amount must be a positive integer in the smallest currency unit", ErrCodeInvalidAmount)
	ErrUnsupportedCurrency = NewValidationError("currency is not accepted", ErrCodeUnsupportedCurrency)
	ErrInvalidPayload      = NewValidationError("request payload could not be parsed", ErrCodeInvalidPayload)
	ErrInvalidSignature    = NewValidationError("signature verification failed", ErrCodeInvalidSignature)

	ErrOrderNotFound   = NewNotFoundError("gateway order not found", ErrCodeOrderNotFound)
	ErrOrderMismatch   = NewValidationError("payment does not belong to the referenced order", ErrCodeOrderMismatch)
	ErrAlreadyAttached = NewConflictError("gateway order is already attached to a different local order", ErrCodeAlreadyAttached)

	ErrPaymentNotFound       = NewNotFoundError("gateway payment not found", ErrCodePaymentNotFound)
	ErrNotCaptured           = NewConflictError("payment is not captured", ErrCodeNotCaptured)
	ErrRefundExceedsCaptured = NewValidationError("refund exceeds the captured amount", ErrCodeRefundExceedsCaptured)
	ErrStateConflict         = NewConflictError("reported payment state conflicts with the recorded state", ErrCodeStateConflict)
	ErrConcurrentUpdate      = NewConflictError("record was modified concurrently, retry the operation", ErrCodeConcurrentUpdate)

	ErrConflictNotFound = NewNotFoundError("state conflict not found", ErrCodeConflictNotFound)
	ErrConflictResolved = NewConflictError("state conflict is already resolved", ErrCodeConflictResolved)

	ErrProviderUnavailable = NewExternalError("payment provider is unavailable", ErrCodeProviderUnavailable, http.StatusBadGateway)
	ErrProviderRejected    = NewExternalError("payment provider rejected the request", ErrCodeProviderRejected, http.StatusBadGateway)
	ErrPlatformUnavailable = NewExternalError("commerce platform is unavailable", ErrCodePlatformUnavailable, http.StatusBadGateway)

	ErrInvalidCredentials = NewUnauthorizedError("Invalid email or password", ErrCodeInvalidCredentials)
	ErrUserNotFound       = NewNotFoundError("Admin user not found", ErrCodeUserNotFound)
	ErrUserInactive       = NewForbiddenError("User account is inactive", ErrCodeUserInactive)
	ErrInvalidToken       = NewUnauthorizedError("Invalid token", ErrCodeInvalidToken)
	ErrTokenExpired       = NewUnauthorizedError("Token has expired", ErrCodeTokenExpired)
	ErrPermissionDenied   = NewForbiddenError("Insufficient permissions", ErrCodePermissionDenied)
)

func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

type Response struct {
	Error *AppError `json:"error"`
}

func (e *AppError) ToHTTPResponse() (int, interface{}) {
	return e.StatusCode, Response{Error: e}
}

func (e *AppError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    ErrorType   `json:"type"`
		Code    ErrorCode   `json:"code"`
		Message string      `json:"message"`
		Details interface{} `json:"details,omitempty"`
	}{
		Type:    e.Type,
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	})
}
