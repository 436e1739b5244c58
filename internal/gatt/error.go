package gatt

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures surfaced by services built on this package.
type ErrorKind string

const (
	NullArgument       ErrorKind = "null_argument"
	RegistrationFailed ErrorKind = "registration_failed"
	StoreFailed        ErrorKind = "store_failed"
	InvalidState       ErrorKind = "invalid_state"
	TransportFailed    ErrorKind = "transport_failed"
)

// Error carries an ErrorKind, the failing operation and the underlying cause.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is allows errors.Is to compare Error values by Kind
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Predefined sentinel errors, one per kind
var (
	ErrNullArgument       = &Error{Kind: NullArgument}
	ErrRegistrationFailed = &Error{Kind: RegistrationFailed}
	ErrStoreFailed        = &Error{Kind: StoreFailed}
	ErrInvalidState       = &Error{Kind: InvalidState}
	ErrTransportFailed    = &Error{Kind: TransportFailed}
)

// Wrap attaches kind and op to err. It returns nil when err is nil and leaves
// err untouched when it already carries the same kind.
func Wrap(kind ErrorKind, op string, err error) error {
	if err == nil {
		return nil
	}
	var gerr *Error
	if errors.As(err, &gerr) && gerr.Kind == kind {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first Error in err's chain, or "" when there is none.
func KindOf(err error) ErrorKind {
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr.Kind
	}
	return ""
}
