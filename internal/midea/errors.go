package midea

import (
	"errors"
	"fmt"
)

// Sentinel errors, one per error kind. Match with errors.Is.
var (
	// ErrDeviceOffline indicates the cloud reported the appliance unreachable.
	ErrDeviceOffline = errors.New("midea: device offline")

	// ErrProtocol indicates an unrecognised error code or a reply that could
	// not be signed, decoded or decrypted.
	ErrProtocol = errors.New("midea: protocol error")

	// ErrRetryExhausted indicates a call kept failing after recovery.
	ErrRetryExhausted = errors.New("midea: retries exhausted")

	// ErrNotLoggedIn indicates an operation needs a session that does not exist.
	ErrNotLoggedIn = errors.New("midea: not logged in")

	// ErrNoDefaultHomeGroup indicates the account lists no default home group.
	ErrNoDefaultHomeGroup = errors.New("midea: no default home group")
)

// Kind classifies a failed cloud call.
type Kind int

const (
	KindProtocol Kind = iota + 1
	KindDeviceOffline
	KindRetryExhausted
)

// String returns the kind name used in logs.
func (k Kind) String() string {
	switch k {
	case KindProtocol:
		return "protocol"
	case KindDeviceOffline:
		return "device_offline"
	case KindRetryExhausted:
		return "retry_exhausted"
	default:
		return "unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindDeviceOffline:
		return ErrDeviceOffline
	case KindRetryExhausted:
		return ErrRetryExhausted
	default:
		return ErrProtocol
	}
}

// Error is the result of a failed cloud call.
type Error struct {
	Kind     Kind
	Endpoint string
	// Code is the cloud error code, 0 when the failure happened locally.
	Code int
	Msg  string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	s := fmt.Sprintf("midea %s: %s", e.Kind, e.Endpoint)
	if e.Code != 0 {
		s += fmt.Sprintf(": code %d", e.Code)
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// KindOf returns the kind carried by err, or 0 if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func protocolError(endpoint string, err error) *Error {
	return &Error{Kind: KindProtocol, Endpoint: endpoint, Err: err}
}
