package device

import (
	"errors"
	"fmt"
)

// Kind classifies a device operation failure.
type Kind int

const (
	// KindNone is returned by KindOf for a nil or foreign error.
	KindNone Kind = iota
	// KindUnreachable: the device refused the connection or did not answer in time.
	KindUnreachable
	// KindProtocol: the response body was malformed or had an unexpected shape.
	KindProtocol
	// KindDeviceRejected: a well-formed response carried a non-success status.
	KindDeviceRejected
	// KindTimeout: a readiness poll or a long transfer ran out of time.
	KindTimeout
	// KindLocal: hashing, file reads or local writes failed.
	KindLocal
)

func (k Kind) String() string {
	switch k {
	case KindUnreachable:
		return "unreachable"
	case KindProtocol:
		return "protocol_error"
	case KindDeviceRejected:
		return "device_rejected"
	case KindTimeout:
		return "timeout"
	case KindLocal:
		return "local"
	default:
		return "none"
	}
}

// Error is the tagged failure returned by device operations.
type Error struct {
	Kind Kind
	Op   string // "capacity", "list", "upload_chunk", "package", "check_ready", "fetch", "write", ...
	Msg  string // device "msg" or a short description
	Err  error
}

func (e *Error) Error() string {
	s := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of err, or KindNone if err is not a device Error.
func KindOf(err error) Kind {
	var devErr *Error
	if errors.As(err, &devErr) {
		return devErr.Kind
	}
	return KindNone
}

// IsKind reports whether err is a device Error of the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

func newError(kind Kind, op, msg string, err error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: err}
}
