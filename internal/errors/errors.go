package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds. Every domain error wraps exactly one of these.
var (
	// ErrValidation is returned for missing or malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrConflict is returned when a write would break a uniqueness rule.
	ErrConflict = errors.New("conflict")
	// ErrUnauthorized is returned for bad credentials or an unusable token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden is returned when acting on another user's resource.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")
)

var (
	// ErrUserNotFound is returned when a user is not found.
	ErrUserNotFound = wrap("user not found", ErrNotFound)
	// ErrTaskNotFound is returned when a task is not found.
	ErrTaskNotFound = wrap("task not found", ErrNotFound)
	// ErrAssigneeNotFound is returned when a task references an unknown user.
	ErrAssigneeNotFound = wrap("assignee not found", ErrValidation)
	// ErrMissingCredentials is returned when email or password is empty.
	ErrMissingCredentials = wrap("email and password are required", ErrValidation)
	// ErrMissingTitle is returned when a task has no title.
	ErrMissingTitle = wrap("title is required", ErrValidation)
	// ErrPasswordTooLong is returned when a password exceeds bcrypt's 72 byte limit.
	ErrPasswordTooLong = wrap("password must be at most 72 bytes", ErrValidation)
	// ErrMissingUsername is returned when a user has no username.
	ErrMissingUsername = wrap("username is required", ErrValidation)
	// ErrEmailTaken is returned when the email belongs to another account.
	ErrEmailTaken = wrap("user already exists", ErrConflict)
	// ErrInvalidCredentials is returned when email or password is incorrect.
	ErrInvalidCredentials = wrap("invalid email or password", ErrUnauthorized)
	// ErrInvalidToken is returned when a bearer token fails verification.
	ErrInvalidToken = wrap("invalid or expired token", ErrUnauthorized)
	// ErrNotOwner is returned when the caller is not the account owner.
	ErrNotOwner = wrap("you can only act on your own account", ErrForbidden)
)

type kindError struct {
	msg  string
	kind error
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

func wrap(msg string, kind error) error {
	return &kindError{msg: msg, kind: kind}
}

// Validationf builds an ad-hoc validation error.
func Validationf(format string, args ...any) error {
	return wrap(fmt.Sprintf(format, args...), ErrValidation)
}

// ErrorResponse represents a standardized error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HTTPError represents an HTTP error with status code.
type HTTPError struct {
	StatusCode int
	Message    string
	Code       string
}

func (e *HTTPError) Error() string {
	return e.Message
}

// NewHTTPError creates a new HTTP error.
func NewHTTPError(statusCode int, message, code string) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode,
		Message:    message,
		Code:       code,
	}
}

// ToErrorResponse converts an HTTPError to ErrorResponse.
func (e *HTTPError) ToErrorResponse() ErrorResponse {
	return ErrorResponse{
		Error: e.Message,
		Code:  e.Code,
	}
}

var codes = map[error]string{
	ErrUserNotFound:       "USER_NOT_FOUND",
	ErrTaskNotFound:       "TASK_NOT_FOUND",
	ErrAssigneeNotFound:   "ASSIGNEE_NOT_FOUND",
	ErrMissingCredentials: "MISSING_CREDENTIALS",
	ErrMissingTitle:       "MISSING_TITLE",
	ErrMissingUsername:    "MISSING_USERNAME",
	ErrPasswordTooLong:    "PASSWORD_TOO_LONG",
	ErrEmailTaken:         "USER_ALREADY_EXISTS",
	ErrInvalidCredentials: "INVALID_CREDENTIALS",
	ErrInvalidToken:       "INVALID_TOKEN",
	ErrNotOwner:           "FORBIDDEN",
}

// MapErrorToHTTP maps domain errors to HTTP errors.
func MapErrorToHTTP(err error) *HTTPError {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		return NewHTTPError(status, "internal server error", code)
	}
	for known, knownCode := range codes {
		if errors.Is(err, known) {
			return NewHTTPError(status, known.Error(), knownCode)
		}
	}
	return NewHTTPError(status, err.Error(), code)
}

// Duplicate emails are reported as 400, not 409.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest, "VALIDATION_ERROR"
	case errors.Is(err, ErrConflict):
		return http.StatusBadRequest, "CONFLICT"
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, "UNAUTHORIZED"
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, "FORBIDDEN"
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}
