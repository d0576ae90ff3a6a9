package weather

import (
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
)

// ErrorKind is the coarse failure taxonomy exposed to consumers.
type ErrorKind string

const (
	NetworkError ErrorKind = "network_error"
	ServerError  ErrorKind = "server_error"
	UnknownError ErrorKind = "unknown_error"
)

// FetchError is returned by QueryService implementations that already know how a
// failure classifies. Status is the HTTP status when one was received, else 0.
type FetchError struct {
	Kind   ErrorKind
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// StatusKind classifies a non-2xx HTTP status.
func StatusKind(code int) ErrorKind {
	switch code {
	case 500, 502, 503:
		return ServerError
	case 400, 401, 403, 404:
		return NetworkError
	default:
		return UnknownError
	}
}

// KindOf classifies any fetch error. Classified FetchErrors win; otherwise
// transport-level failures are network errors and everything else is unknown.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return NetworkError
	}
	if errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return NetworkError
	}

	return UnknownError
}
