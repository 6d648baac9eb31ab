// Package fault classifies the errors actors report when they stop.
package fault

import (
	"errors"
	"fmt"
)

// ErrUnsupported is returned by extension logic for a capability it does not
// implement, such as binary frames in a text-only protocol.
var ErrUnsupported = errors.New("unsupported")

// Kind separates failures of application logic from failures of the transport.
type Kind uint8

const (
	KindExtension Kind = iota + 1
	KindTransport
)

func (k Kind) String() string {
	switch k {
	case KindExtension:
		return "extension"
	case KindTransport:
		return "transport"
	default:
		return "unknown"
	}
}

// Error wraps a failure with the operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s fault in %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Extension marks err as raised by extension logic. A nil err stays nil.
func Extension(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindExtension, Op: op, Err: err}
}

// Transport marks err as a transport failure. A nil err stays nil.
func Transport(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindTransport, Op: op, Err: err}
}

// IsExtension reports whether err carries an extension fault.
func IsExtension(err error) bool {
	return is(err, KindExtension)
}

// IsTransport reports whether err carries a transport fault.
func IsTransport(err error) bool {
	return is(err, KindTransport)
}

func is(err error, kind Kind) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Kind == kind
}
