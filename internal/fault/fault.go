// Package fault carries the error taxonomy shared by every component:
// each error is tagged with a Kind so the HTTP boundary can map it to a
// status code without string matching.
package fault

import (
	"errors"
	"fmt"
)

type Kind int

const (
	// KindUnknown is the zero value; errors without a fault tag map here.
	KindUnknown Kind = iota
	// KindValidation: malformed input, rejected before any side effect.
	KindValidation
	KindNotFound
	KindForbidden
	// KindInsufficientStock: business-rule conflict, no side effect.
	KindInsufficientStock
	KindInvalidTransition
	// KindConflict: business-state conflict (inactive product, negative
	// adjustment, retry exhaustion on a contended reservation).
	KindConflict
	// KindUnavailable: opaque persistence/infrastructure fault.
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindInsufficientStock:
		return "insufficient_stock"
	case KindInvalidTransition:
		return "invalid_transition"
	case KindConflict:
		return "conflict"
	case KindUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Msg + ": " + e.Cause.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is match two fault errors by kind.
func (e *Error) Is(target error) bool {
	var fe *Error
	if !errors.As(target, &fe) {
		return false
	}
	return e.Kind == fe.Kind
}

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) *Error {
	return New(KindValidation, format, args...)
}

func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, format, args...)
}

func Forbidden(format string, args ...any) *Error {
	return New(KindForbidden, format, args...)
}

func InsufficientStock(format string, args ...any) *Error {
	return New(KindInsufficientStock, format, args...)
}

func InvalidTransition(format string, args ...any) *Error {
	return New(KindInvalidTransition, format, args...)
}

func Conflict(format string, args ...any) *Error {
	return New(KindConflict, format, args...)
}

// Unavailable wraps an infrastructure failure; the cause is kept for
// logs but never leaks business meaning to the caller.
func Unavailable(cause error, format string, args ...any) *Error {
	return &Error{Kind: KindUnavailable, Msg: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf extracts the taxonomy kind from any error in the chain.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}
