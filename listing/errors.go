package listing

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrFirstPage marks a failure of the first listing page. The whole cycle is
// skipped when it occurs.
var ErrFirstPage = errors.New("listing: first page failed")

// ErrRejected is returned when the endpoint answers without a success flag.
var ErrRejected = errors.New("listing: response missing success flag")

// StatusError is a non-2xx answer from the listing endpoint.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("listing: unexpected status %d: %s", e.Code, e.Body)
}

// DecodeError wraps a malformed response body.
type DecodeError struct{ Err error }

func (e *DecodeError) Error() string { return "listing: decode response: " + e.Err.Error() }

func (e *DecodeError) Unwrap() error { return e.Err }

// ErrorKind groups fetch failures for metrics and logs.
type ErrorKind int

const (
	// ErrorKindNetwork covers transport failures (refused, reset, DNS).
	ErrorKindNetwork ErrorKind = iota
	// ErrorKindTimeout is a request that exceeded the fixed timeout.
	ErrorKindTimeout
	// ErrorKindStatus is a non-2xx HTTP status.
	ErrorKindStatus
	// ErrorKindDecode is a body that is not valid listing JSON.
	ErrorKindDecode
	// ErrorKindRejected is a well-formed body without the success flag.
	ErrorKindRejected
)

// String returns the metric label for the kind.
func (k ErrorKind) String() string {
	switch k {
	case ErrorKindTimeout:
		return "timeout"
	case ErrorKindStatus:
		return "status"
	case ErrorKindDecode:
		return "decode"
	case ErrorKindRejected:
		return "rejected"
	default:
		return "network"
	}
}

// ClassifyError maps a FetchPage error onto an ErrorKind. Order matters: a
// timeout surfaces as a net.Error, so it is checked before the generic case.
func ClassifyError(err error) ErrorKind {
	if err == nil {
		return ErrorKindNetwork
	}
	if errors.Is(err, ErrRejected) {
		return ErrorKindRejected
	}
	var se *StatusError
	if errors.As(err, &se) {
		return ErrorKindStatus
	}
	var de *DecodeError
	if errors.As(err, &de) {
		return ErrorKindDecode
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorKindTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ErrorKindTimeout
	}
	return ErrorKindNetwork
}
