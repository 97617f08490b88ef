package channel

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	// KindUnauthorized means the credential is invalid or expired; no call
	// will succeed until the user logs in again.
	KindUnauthorized ErrorKind = "unauthorized"
	// KindNotFound doubles as "result not ready yet" on the results
	// endpoint, so the poller treats it as expected rather than fatal.
	KindNotFound    ErrorKind = "not_found"
	KindClientError ErrorKind = "client_error"
	KindServerError ErrorKind = "server_error"
	KindUnreachable ErrorKind = "unreachable"
)

// APIError is the classified failure of one request.
type APIError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.StatusCode, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

func KindOf(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ""
}

func IsUnauthorized(err error) bool {
	return KindOf(err) == KindUnauthorized
}

func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}
