package backend

import (
	"errors"
	"fmt"
	"net/http"
)

// TransportError means the request never produced an HTTP response:
// the network was unreachable, the connection dropped or the caller aborted.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ServerError is a non-2xx response from the ScribeIt API.
type ServerError struct {
	Op         string
	StatusCode int
	Detail     string
}

func (e *ServerError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("%s: status %d", e.Op, e.StatusCode)
}

// Unauthorized reports whether the backend rejected the credential.
func (e *ServerError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// NotFound reports a 404 from the backend.
func (e *ServerError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// ErrNoCredential is returned when a call that needs a bearer token has none.
var ErrNoCredential = errors.New("credential required")

// IsUnauthorized reports whether err is a backend 401/403.
func IsUnauthorized(err error) bool {
	var se *ServerError
	return errors.As(err, &se) && se.Unauthorized()
}
