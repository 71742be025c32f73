// Package nmerror defines the error taxonomy raised while constructing
// or loading a classifier: LoadError, ConfigError and SubsetError are
// all fatal at construction time, per the classifier's error handling
// design. On the hot path there is nothing left to report here — every
// branch inside the pipeline is arithmetic against invariants already
// established at load.
package nmerror

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// Code identifies the class of a classifier-construction error.
type Code int

const (
	_ Code = iota
	// Load covers a malformed blob, a truncated sub-object, an
	// inconsistent count, a missing required remainder, or a remainder
	// that fails to load twice in a row.
	Load
	// Config covers a non-power-of-two queue size, an unknown
	// remainder type requested for a rebuild, or two remainders
	// attached to one worker.
	Config
	// Subset covers an empty live-subset set after filtering.
	Subset
)

func (c Code) String() string {
	switch c {
	case Load:
		return "LoadError"
	case Config:
		return "ConfigError"
	case Subset:
		return "SubsetError"
	default:
		return "UnknownError"
	}
}

// Error is the error type returned by classifier construction and
// loading. It carries a Code for programmatic dispatch and wraps an
// optional cause.
type Error struct {
	Code     Code
	Message  string
	CauseErr error
}

type causer interface {
	Cause() error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Cause returns the underlying cause. When the cause is itself a
// causer, it is unwrapped by one level only, not down to the root.
func (e *Error) Cause() error {
	if e == nil || e.CauseErr == nil {
		return nil
	}
	if cause, ok := e.CauseErr.(causer); ok {
		return cause.Cause()
	}
	return e.CauseErr
}

// Format supports %s/%v and the extended %+v form, printing the cause
// chain the same way github.com/pkg/errors-wrapped errors do.
func (e *Error) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			if cause := e.Cause(); cause != nil {
				fmt.Fprintf(s, "%+v\n", cause)
				io.WriteString(s, e.Message)
				return
			}
		}
		fallthrough
	case 's', 'q':
		io.WriteString(s, e.Error())
	}
}

// GetCode returns the Code of err if it is, or wraps, an *Error, and
// false otherwise.
func GetCode(err error) (Code, bool) {
	if nmErr := asError(err); nmErr != nil {
		return nmErr.Code, true
	}
	return 0, false
}

func asError(err error) *Error {
	if err == nil {
		return nil
	}
	if nmErr, ok := err.(*Error); ok {
		return nmErr
	}
	if cause, ok := err.(causer); ok {
		if nmErr, ok := cause.Cause().(*Error); ok {
			return nmErr
		}
	}
	return nil
}

// Wrap annotates err (which may be nil) with a stack trace and a
// classifier error Code.
func Wrap(err error, code Code, message string) error {
	return errors.WithStack(&Error{Code: code, Message: message, CauseErr: err})
}

// New constructs a fresh classifier error with no wrapped cause.
func New(code Code, message string) error {
	return errors.WithStack(&Error{Code: code, Message: message})
}

// Newf is New with fmt.Sprintf-style formatting.
func Newf(code Code, format string, args ...interface{}) error {
	return New(code, fmt.Sprintf(format, args...))
}
