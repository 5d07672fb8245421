// Package apperrors classifies engine failures so callers can tell expected
// business outcomes apart from transient and internal faults.
package apperrors

import (
	"context"
	"errors"
	"fmt"
)

// Kind is the category of an engine error.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalidArgument
	KindSlotUnavailable
	KindInsufficientPoints
	KindNotFound
	KindUnavailable
	KindPermissionDenied
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid_argument"
	case KindSlotUnavailable:
		return "slot_unavailable"
	case KindInsufficientPoints:
		return "insufficient_points"
	case KindNotFound:
		return "not_found"
	case KindUnavailable:
		return "unavailable"
	case KindPermissionDenied:
		return "permission_denied"
	default:
		return "internal"
	}
}

// Sentinels for errors.Is checks; every *Error matches the sentinel of its kind.
var (
	ErrInvalidArgument    = &Error{Kind: KindInvalidArgument, Msg: "invalid argument"}
	ErrSlotUnavailable    = &Error{Kind: KindSlotUnavailable, Msg: "slot unavailable"}
	ErrInsufficientPoints = &Error{Kind: KindInsufficientPoints, Msg: "insufficient points"}
	ErrNotFound           = &Error{Kind: KindNotFound, Msg: "not found"}
	ErrUnavailable        = &Error{Kind: KindUnavailable, Msg: "temporarily unavailable"}
	ErrInternal           = &Error{Kind: KindInternal, Msg: "internal error"}
	ErrPermissionDenied   = &Error{Kind: KindPermissionDenied, Msg: "permission denied"}
)

// Error is a classified engine error.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.String()
	}
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, msg, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", msg, e.Err)
	default:
		return msg
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound) works
// for every not-found error regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// E builds a classified error.
func E(kind Kind, op, msg string, err error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: err}
}

func InvalidArgument(op, msg string) *Error {
	return E(KindInvalidArgument, op, msg, nil)
}

func NotFound(op, msg string) *Error {
	return E(KindNotFound, op, msg, nil)
}

func SlotUnavailable(op, msg string) *Error {
	return E(KindSlotUnavailable, op, msg, nil)
}

func InsufficientPoints(op string, required, balance int64) *Error {
	return E(KindInsufficientPoints, op, fmt.Sprintf("insufficient points: need %d, have %d", required, balance), nil)
}

func PermissionDenied(op, msg string) *Error {
	return E(KindPermissionDenied, op, msg, nil)
}

// KindOf returns the kind of err. Unclassified errors are internal, except
// context deadline/cancellation which are treated as transient.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindUnavailable
	}
	return KindInternal
}

// Classify wraps a store/driver error as Unavailable when it is a timeout or
// cancellation and Internal otherwise. Already-classified errors pass through.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return E(KindUnavailable, op, "store timed out", err)
	}
	return E(KindInternal, op, "", err)
}

// Unavailable marks err as a transient store or backend failure.
func Unavailable(op string, err error) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return E(KindUnavailable, op, "store unavailable", err)
}
