// Package errs defines the error kinds shared across the pipeline.
package errs

import (
	"errors"
	"fmt"
)

// Kind sentinels. Test with errors.Is.
var (
	ErrConfig           = errors.New("config error")
	ErrProvider         = errors.New("provider error")
	ErrDataInsufficient = errors.New("data insufficient")
	ErrBadData          = errors.New("bad data")
	ErrConcurrencyBusy  = errors.New("concurrency busy")
)

// Error carries the kind, the failing operation and the underlying cause.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// New wraps err as kind for op.
func New(kind error, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func BadData(op, format string, args ...any) error {
	return &Error{Kind: ErrBadData, Op: op, Err: fmt.Errorf(format, args...)}
}

func Config(op, format string, args ...any) error {
	return &Error{Kind: ErrConfig, Op: op, Err: fmt.Errorf(format, args...)}
}

func Provider(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) && e.Kind == ErrProvider {
		return err
	}
	return &Error{Kind: ErrProvider, Op: op, Err: err}
}

func Busy(op string, err error) error {
	return &Error{Kind: ErrConcurrencyBusy, Op: op, Err: err}
}

func Insufficient(op, format string, args ...any) error {
	return &Error{Kind: ErrDataInsufficient, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind sentinel of err, or nil.
func KindOf(err error) error {
	for _, k := range []error{ErrConfig, ErrProvider, ErrDataInsufficient, ErrBadData, ErrConcurrencyBusy} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
