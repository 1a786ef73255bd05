package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Error codes shared by the remote service and its clients.
const (
	CodeUniqueViolation = "unique_violation"
	CodeNotFound        = "not_found"
	CodeUnauthorized    = "unauthorized"
	CodeInvalid         = "invalid"
	CodeUnavailable     = "unavailable"
	CodeInternal        = "internal"
)

// Error is the structured failure returned by every remote operation.
type Error struct {
	Code    string
	Message string
	Status  int
	Err     error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("remote %s (%d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("remote %s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CodeForStatus maps an HTTP status to an error code for responses that did
// not carry one.
func CodeForStatus(status int) string {
	switch status {
	case http.StatusConflict:
		return CodeUniqueViolation
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return CodeUnauthorized
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return CodeInvalid
	case http.StatusTooManyRequests, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return CodeUnavailable
	default:
		return CodeInternal
	}
}

func code(err error) string {
	var re *Error
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

// IsDuplicate reports whether err is a uniqueness violation.
func IsDuplicate(err error) bool {
	return code(err) == CodeUniqueViolation
}

// IsNotFound reports whether err says the target row does not exist.
func IsNotFound(err error) bool {
	return code(err) == CodeNotFound
}

// IsRetryable reports whether the same request may succeed later without
// the caller changing anything.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	switch code(err) {
	case CodeUniqueViolation, CodeNotFound, CodeUnauthorized, CodeInvalid:
		return false
	default:
		return true
	}
}
