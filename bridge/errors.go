package bridge

import (
	"context"
	"errors"
	"strconv"

	errorslib "github.com/goliatone/go-errors"
)

// ErrorKind defines bridge error kinds.
type ErrorKind string

const (
	KindSerialization ErrorKind = "serialization"
	KindInvocation    ErrorKind = "invocation"
	KindTimeout       ErrorKind = "timeout"
	KindCanceled      ErrorKind = "canceled"
	KindIO            ErrorKind = "io"
	KindNotFound      ErrorKind = "not_found"
	KindValidation    ErrorKind = "validation"
	KindInternal      ErrorKind = "internal"
)

// NoExitCode marks errors raised before the renderer reported an exit status.
const NoExitCode = -1

// Error wraps bridge failures with a kind and, for renderer failures, the
// exit code and captured standard error text.
type Error struct {
	Kind     ErrorKind
	Msg      string
	Err      error
	ExitCode int
	Stderr   string
}

func (e *Error) Error() string {
	msg := e.Msg
	if e.ExitCode != NoExitCode {
		msg += " (exit status " + strconv.Itoa(e.ExitCode) + ")"
	}
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new bridge error.
func NewError(kind ErrorKind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err, ExitCode: NoExitCode}
}

// NewInvocationError creates a renderer invocation error carrying the exit
// code (NoExitCode when the process never reported one) and stderr text.
func NewInvocationError(msg string, exitCode int, stderr string, err error) *Error {
	return &Error{
		Kind:     KindInvocation,
		Msg:      msg,
		Err:      err,
		ExitCode: exitCode,
		Stderr:   stderr,
	}
}

// KindFromError maps an error to its bridge error kind.
func KindFromError(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var bridgeErr *Error
	if errors.As(err, &bridgeErr) {
		return bridgeErr.Kind
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}

	return KindInternal
}

// IsCallerFault reports whether the failure originates in the submitted
// template or inputs rather than in the renderer or its environment.
// Renderer exits with a status are reported by the renderer itself and are
// attributed to the request.
func IsCallerFault(err error) bool {
	var bridgeErr *Error
	if !errors.As(err, &bridgeErr) {
		return false
	}
	switch bridgeErr.Kind {
	case KindSerialization:
		return true
	case KindInvocation:
		return bridgeErr.ExitCode > 0
	default:
		return false
	}
}

// AsGoError maps an error into a go-errors error.
func AsGoError(err error) *errorslib.Error {
	if err == nil {
		return nil
	}

	var ge *errorslib.Error
	if errors.As(err, &ge) {
		return ge
	}

	kind := KindFromError(err)
	msg := err.Error()

	switch kind {
	case KindSerialization:
		return errorslib.New(msg, errorslib.CategoryValidation).WithTextCode("serialization")
	case KindValidation:
		return errorslib.New(msg, errorslib.CategoryValidation).WithTextCode("validation")
	case KindInvocation:
		return errorslib.New(msg, errorslib.CategoryExternal).WithTextCode("renderer_invocation")
	case KindTimeout:
		return errorslib.New(msg, errorslib.CategoryOperation).WithTextCode("renderer_timeout")
	case KindCanceled:
		return errorslib.New(msg, errorslib.CategoryOperation).WithTextCode("canceled")
	case KindIO:
		return errorslib.New(msg, errorslib.CategoryOperation).WithTextCode("io")
	case KindNotFound:
		return errorslib.New(msg, errorslib.CategoryNotFound).WithTextCode("not_found")
	default:
		return errorslib.New(msg, errorslib.CategoryInternal).WithTextCode("internal")
	}
}

func exitCode(err error) int {
	var bridgeErr *Error
	if errors.As(err, &bridgeErr) {
		return bridgeErr.ExitCode
	}
	return NoExitCode
}

// normalizeError makes sure engine failures surface as *Error.
func normalizeError(err error) error {
	if err == nil {
		return nil
	}
	var bridgeErr *Error
	if errors.As(err, &bridgeErr) {
		return err
	}
	switch KindFromError(err) {
	case KindTimeout:
		return NewError(KindTimeout, "renderer timed out", err)
	case KindCanceled:
		return NewError(KindCanceled, "renderer canceled", err)
	default:
		return NewError(KindInternal, "renderer failed", err)
	}
}
