package model

import (
	"errors"
	"net/http"
)

// ErrorKind classifies failures of the capture pipeline.
type ErrorKind string

const (
	KindPermissionDenied ErrorKind = "permission_denied"
	KindNoDevice         ErrorKind = "no_device"
	KindDeviceBusy       ErrorKind = "device_busy"
	KindDecodeTimeout    ErrorKind = "decode_timeout"
	KindWriteConflict    ErrorKind = "write_conflict"
	KindNetworkFailure   ErrorKind = "network_failure"
	KindNotFound         ErrorKind = "not_found"
	KindInvalid          ErrorKind = "invalid"
)

// Sentinels for errors.Is. Any *Error of the same kind matches.
var (
	ErrPermissionDenied = &Error{Kind: KindPermissionDenied}
	ErrNoDevice         = &Error{Kind: KindNoDevice}
	ErrDeviceBusy       = &Error{Kind: KindDeviceBusy}
	ErrDecodeTimeout    = &Error{Kind: KindDecodeTimeout}
	ErrWriteConflict    = &Error{Kind: KindWriteConflict}
	ErrNetworkFailure   = &Error{Kind: KindNetworkFailure}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrInvalid          = &Error{Kind: KindInvalid}
)

// Error is a classified failure. Op names the operation that failed.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

// NewError returns an *Error of the given kind wrapping err.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same Kind, so the package sentinels work
// with errors.Is regardless of Op and wrapped cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// SessionFatal reports whether the kind ends the current capture session.
// These are surfaced with a retry control and never retried automatically.
func (k ErrorKind) SessionFatal() bool {
	switch k {
	case KindPermissionDenied, KindNoDevice, KindDeviceBusy:
		return true
	}
	return false
}

// Retryable reports whether a user-triggered retry (re-scan, re-click) may
// succeed without changing configuration.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindNetworkFailure, KindWriteConflict, KindNotFound:
		return true
	}
	return false
}

// HTTPStatus returns the HTTP status code the server uses for the kind.
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindWriteConflict, KindPermissionDenied:
		return http.StatusForbidden
	case KindInvalid:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// KindForStatus maps an HTTP response status back to a kind.
func KindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusForbidden, status == http.StatusConflict:
		return KindWriteConflict
	case status == http.StatusUnauthorized:
		return KindPermissionDenied
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return KindInvalid
	default:
		return KindNetworkFailure
	}
}
