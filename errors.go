package tenantauthz

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why an evaluation did not produce an AuthContext.
type ErrorKind string

const (
	KindUnauthenticated    ErrorKind = "unauthenticated"
	KindPermissionDenied   ErrorKind = "permission_denied"
	KindNotFound           ErrorKind = "not_found"
	KindFailedPrecondition ErrorKind = "failed_precondition"
	KindInvalidArgument    ErrorKind = "invalid_argument"
	KindInternal           ErrorKind = "internal"
)

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrUnauthenticated    = &Error{Kind: KindUnauthenticated, Message: "unauthenticated"}
	ErrPermissionDenied   = &Error{Kind: KindPermissionDenied, Message: "permission denied"}
	ErrNotFound           = &Error{Kind: KindNotFound, Message: "not found"}
	ErrFailedPrecondition = &Error{Kind: KindFailedPrecondition, Message: "failed precondition"}
	ErrInvalidArgument    = &Error{Kind: KindInvalidArgument, Message: "invalid argument"}
	ErrInternal           = &Error{Kind: KindInternal, Message: "internal error"}
)

// Error is the only error type returned by Engine entry points.
//
// Message is safe to hand back to the caller. Detail is operator-only context
// (missing capability, storage failure text) and is written to logs and the
// audit trail, never to the caller.
type Error struct {
	Kind    ErrorKind
	Message string
	Detail  string
	Err     error
}

// Error omits Detail so the string is safe to propagate.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports kind equality so errors.Is(err, ErrPermissionDenied) works for
// every permission denial regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func newError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func (e *Error) withDetail(format string, args ...any) *Error {
	e.Detail = fmt.Sprintf(format, args...)
	return e
}

func (e *Error) wrap(err error) *Error {
	e.Err = err
	return e
}

// DetailOf returns the operator-only detail of err, if any.
func DetailOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Detail
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

// KindOf returns the kind of err, or "" when err is nil. Foreign errors are
// reported as KindInternal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// PublicMessage returns the text a caller may show to an end user.
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	var ae *Error
	if !errors.As(err, &ae) || ae.Kind == KindInternal {
		return ErrInternal.Message
	}
	return ae.Message
}

// Retryable reports whether the caller may retry after an external action
// (refreshing its token). It never implies an automatic retry.
func Retryable(err error) bool {
	return KindOf(err) == KindFailedPrecondition
}
