package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/samcharles93/sparsevit/internal/attention"
)

var ErrInvalidRequest = errors.New("invalid_request")

type invalidRequestError struct {
	msg string
}

func (e invalidRequestError) Error() string {
	return e.msg
}

func (e invalidRequestError) Unwrap() error {
	return ErrInvalidRequest
}

func newInvalidRequest(msg string) error {
	return invalidRequestError{msg: msg}
}

// statusFor maps pipeline errors to an HTTP status and error type.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, attention.ErrShapeMismatch),
		errors.Is(err, attention.ErrConfiguration),
		errors.Is(err, attention.ErrSelectionRange):
		return http.StatusBadRequest, "invalid_request_error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "timeout_error"
	default:
		return http.StatusInternalServerError, "server_error"
	}
}
