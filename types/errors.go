package types

import (
	"errors"
	"fmt"
)

// Kind classifies failures so the HTTP boundary can pick a status.
type Kind int

const (
	KindUnexpected Kind = iota
	KindNotFound
	KindValidation
	KindLoad
	KindStorage
	KindConnectivity
	KindAuth
	KindRateLimited
	KindProvider
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindValidation:
		return "validation failure"
	case KindLoad:
		return "load failure"
	case KindStorage:
		return "storage failure"
	case KindConnectivity:
		return "connectivity failure"
	case KindAuth:
		return "auth failure"
	case KindRateLimited:
		return "rate limited"
	case KindProvider:
		return "provider failure"
	default:
		return "unexpected error"
	}
}

// Error is a classified failure. Op names the operation that failed; Err keeps
// the original cause so provider messages survive up to the caller.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind, so errors.Is(err, &Error{Kind: KindStorage}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Err == nil
}

// E builds a classified error.
func E(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Wrap classifies err as kind unless something deeper in the chain already
// carries a kind, in which case only op is prepended.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf is E with a formatted cause.
func Errorf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf reports the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnexpected
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
