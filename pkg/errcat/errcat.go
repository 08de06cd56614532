// Package errcat assigns a category to errors so that callers can act on the
// kind of failure without matching on error strings. The categories correspond
// to the failure kinds of the protocol surface:
//
//	BadArgument:  nil record, illegal shutdown role, illegal control-bit combination
//	BadState:     operation attempted in a state that doesn't allow it
//	Aborted:      handshake or teardown saw unexpected control bits
//	Transport:    the underlying datagram operation failed
//
// CRC mismatches are recovered internally and never carry a category.
package errcat

import (
	"errors"
	"fmt"
)

type Category int

const (
	OK = Category(iota)
	BadArgument
	BadState
	Aborted
	Transport
)

func (c Category) String() string {
	switch c {
	case OK:
		return "ok"
	case BadArgument:
		return "invalid argument"
	case BadState:
		return "invalid state"
	case Aborted:
		return "connection aborted"
	case Transport:
		return "transport error"
	default:
		return "unknown"
	}
}

type categorized struct {
	error
	category Category
}

func (e *categorized) Unwrap() error {
	return e.error
}

// New returns an error with this category. The argument can be an error, in
// which case it is wrapped and remains reachable through errors.Unwrap, or
// anything else that can be formatted with %v.
func (c Category) New(untypedErr interface{}) error {
	var err error
	switch untypedErr := untypedErr.(type) {
	case nil:
		return nil
	case error:
		err = untypedErr
	default:
		err = fmt.Errorf("%v", untypedErr)
	}
	return &categorized{error: err, category: c}
}

// Newf is like New but with a format string.
func (c Category) Newf(format string, args ...interface{}) error {
	return c.New(fmt.Errorf(format, args...))
}

// GetCategory returns the first category found while unwrapping err, or OK
// when err is nil or carries no category.
func GetCategory(err error) Category {
	for err != nil {
		if ce, ok := err.(*categorized); ok {
			return ce.category
		}
		err = errors.Unwrap(err)
	}
	return OK
}
