// Package errs defines the closed error taxonomy shared by the
// FunctionCoordinator, ContainerDriver, SessionStore and the HTTP surfaces
// that translate it into status codes.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is one of the taxonomy's closed set of error categories.
type Kind string

const (
	NotFound            Kind = "NotFound"
	InvalidInput        Kind = "InvalidInput"
	Unrecoverable       Kind = "Unrecoverable"
	StartupTimeout      Kind = "StartupTimeout"
	HealthcheckTimeout  Kind = "HealthcheckTimeout"
	DaemonError         Kind = "DaemonError"
	StoreError          Kind = "StoreError"
	ProxyError          Kind = "ProxyError"
	ConfigError         Kind = "ConfigError"
)

// Error is a taxonomized error: a Kind plus a human message and optional
// wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an *Error of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the Kind from err, defaulting to DaemonError-adjacent
// "unknown" handling by callers; ok is false if err is not a tagged *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// httpStatus maps each Kind to the status code used on the function-routed
// path. Control-path callers that need the NotFound→404 variant (rather
// than the route-to-unknown-upstream 502) use HTTPStatusControlPath
// below, as pkg/api does.
var httpStatus = map[Kind]int{
	NotFound:           http.StatusBadGateway,
	InvalidInput:       http.StatusBadRequest,
	Unrecoverable:      http.StatusGone,
	StartupTimeout:     http.StatusGatewayTimeout,
	HealthcheckTimeout: http.StatusServiceUnavailable,
	DaemonError:        http.StatusInternalServerError,
	StoreError:         http.StatusInternalServerError,
	ProxyError:         http.StatusBadGateway,
	ConfigError:        http.StatusInternalServerError,
}

// HTTPStatus returns the mapped status code for err, defaulting to 500 for
// errors outside the taxonomy.
func HTTPStatus(err error) int {
	kind, ok := KindOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	if status, ok := httpStatus[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// HTTPStatusControlPath is like HTTPStatus but maps NotFound to 404, as
// used by the Control API's "unknown function" responses rather than the
// RequestGateway's "route to unknown upstream" 502.
func HTTPStatusControlPath(err error) int {
	kind, ok := KindOf(err)
	if ok && kind == NotFound {
		return http.StatusNotFound
	}
	return HTTPStatus(err)
}
