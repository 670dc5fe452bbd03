package models

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// ErrorKind classifies application errors. The HTTP mapping is a pure
// function of the kind; socket handlers reuse the same kinds as typed
// event payloads.
type ErrorKind string

const (
	KindBadRequest         ErrorKind = "BadRequest"
	KindUnauthorized       ErrorKind = "Unauthorized"
	KindForbidden          ErrorKind = "Forbidden"
	KindNotFound           ErrorKind = "NotFound"
	KindConflict           ErrorKind = "Conflict"
	KindValidation         ErrorKind = "Validation"
	KindRateLimited        ErrorKind = "RateLimited"
	KindInternal           ErrorKind = "Internal"
	KindServiceUnavailable ErrorKind = "ServiceUnavailable"
)

// HTTPStatus maps an error kind to its HTTP status code.
func HTTPStatus(kind ErrorKind) int {
	switch kind {
	case KindBadRequest:
		return fiber.StatusBadRequest
	case KindUnauthorized:
		return fiber.StatusUnauthorized
	case KindForbidden:
		return fiber.StatusForbidden
	case KindNotFound:
		return fiber.StatusNotFound
	case KindConflict:
		return fiber.StatusConflict
	case KindValidation:
		return fiber.StatusUnprocessableEntity
	case KindRateLimited:
		return fiber.StatusTooManyRequests
	case KindServiceUnavailable:
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusInternalServerError
}

// FieldError describes a single schema violation.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// AppError is the application error type. Code carries the machine-readable
// name delivered to clients (e.g. "NotAParticipant"); Details is optional
// structured payload (field errors, retryAfter).
type AppError struct {
	Kind    ErrorKind
	Code    string
	Message string
	Details any
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// AsAppError extracts an *AppError from err, or wraps err as Internal.
func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewInternalError(err)
}

// NewBadRequestError reports malformed caller input.
func NewBadRequestError(message string) *AppError {
	return &AppError{Kind: KindBadRequest, Code: "BadRequest", Message: message}
}

// NewUnauthorizedError reports a missing or invalid credential.
func NewUnauthorizedError(message string) *AppError {
	return &AppError{Kind: KindUnauthorized, Code: "Unauthorized", Message: message}
}

// NewExpiredCredentialError reports a credential past its expiry, so the
// client can refresh instead of re-login.
func NewExpiredCredentialError() *AppError {
	return &AppError{Kind: KindUnauthorized, Code: "ExpiredCredential", Message: "Credential has expired"}
}

// NewInvalidSessionError reports an unknown, inactive or expired session.
func NewInvalidSessionError() *AppError {
	return &AppError{Kind: KindUnauthorized, Code: "InvalidSession", Message: "Session is invalid or expired"}
}

// NewForbiddenError reports an authenticated but unauthorized operation.
func NewForbiddenError(message string) *AppError {
	return &AppError{Kind: KindForbidden, Code: "Forbidden", Message: message}
}

// NewNotAParticipantError reports an operation on a chat the caller is not an
// active participant of.
func NewNotAParticipantError(chatID uint) *AppError {
	return &AppError{
		Kind:    KindForbidden,
		Code:    "NotAParticipant",
		Message: fmt.Sprintf("You are not a participant of chat %d", chatID),
	}
}

// NewNotFoundError reports a missing resource.
func NewNotFoundError(resource string, id any) *AppError {
	return &AppError{
		Kind:    KindNotFound,
		Code:    "NotFound",
		Message: fmt.Sprintf("%s with ID %v not found", resource, id),
	}
}

// NewConflictError reports a uniqueness violation (duplicate username/slug).
func NewConflictError(message string) *AppError {
	return &AppError{Kind: KindConflict, Code: "Conflict", Message: message}
}

// NewValidationError reports a schema violation.
func NewValidationError(message string, fields ...FieldError) *AppError {
	e := &AppError{Kind: KindValidation, Code: "Validation", Message: message}
	if len(fields) > 0 {
		e.Details = fields
	}
	return e
}

// NewContentTooLargeError reports message content past the size limit.
func NewContentTooLargeError() *AppError {
	return &AppError{
		Kind:    KindValidation,
		Code:    "ContentTooLarge",
		Message: fmt.Sprintf("Message content exceeds %d characters", MaxMessageContentLen),
	}
}

// NewRateLimitedError reports a rate-limit rejection with a retry hint.
func NewRateLimitedError(retryAfterMs int64) *AppError {
	return &AppError{
		Kind:    KindRateLimited,
		Code:    "RateLimited",
		Message: "Rate limit exceeded",
		Details: map[string]int64{"retryAfter": retryAfterMs},
	}
}

// NewInternalError wraps an unexpected error. The cause is logged, never
// surfaced to clients in production.
func NewInternalError(err error) *AppError {
	return &AppError{Kind: KindInternal, Code: "Internal", Message: "Internal server error", Err: err}
}

// NewServiceUnavailableError wraps an infrastructure failure.
func NewServiceUnavailableError(err error) *AppError {
	return &AppError{Kind: KindServiceUnavailable, Code: "ServiceUnavailable", Message: "Service temporarily unavailable", Err: err}
}

// ErrorResponse is the wire shape of every error body.
type ErrorResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode"`
	Details    any    `json:"details,omitempty"`
}

// RespondWithError renders err as a standardized JSON error response.
// Caller-input kinds are reported verbatim; infrastructure and unknown
// errors are scrubbed.
func RespondWithError(c *fiber.Ctx, err error) error {
	appErr := AsAppError(err)
	status := HTTPStatus(appErr.Kind)
	return c.Status(status).JSON(ErrorResponse{
		Error:      appErr.Code,
		Message:    appErr.Message,
		StatusCode: status,
		Details:    appErr.Details,
	})
}
