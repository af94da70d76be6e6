package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

// StageFailure records why a state failed. Stack holds the goroutine stack
// for a recovered panic and the error chain (see ErrorTrace) otherwise.
type StageFailure struct {
	State     State
	Err       error
	ErrorType string
	Stack     string
}

func (f *StageFailure) Error() string {
	return fmt.Sprintf("[%s] %s: %v", f.State, f.ErrorType, f.Err)
}

func (f *StageFailure) Unwrap() error { return f.Err }

// PanicError is a recovered panic from a stage handler.
type PanicError struct {
	Value any
	Stack string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap exposes the panic value when it is itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// anonymous wrappers from the standard library carry no useful type name.
var anonymousErrorTypes = map[string]bool{
	"*fmt.wrapError":      true,
	"*fmt.wrapErrors":     true,
	"*errors.errorString": true,
	"*errors.joinError":   true,
}

// ErrorTypeName returns the first named error type in err's unwrap chain,
// without the pointer marker, e.g. "gmail.AuthError". Plain errors yield
// "error".
func ErrorTypeName(err error) string {
	if err == nil {
		return ""
	}
	queue := []error{err}
	for len(queue) > 0 {
		e := queue[0]
		queue = queue[1:]
		if e == nil {
			continue
		}
		name := fmt.Sprintf("%T", e)
		if !anonymousErrorTypes[name] {
			return strings.TrimPrefix(name, "*")
		}
		switch u := e.(type) {
		case interface{ Unwrap() []error }:
			queue = append(queue, u.Unwrap()...)
		default:
			if next := errors.Unwrap(e); next != nil {
				queue = append(queue, next)
			}
		}
	}
	return "error"
}

// ErrorTrace renders err's unwrap chain, outermost first, one
// "type: message" line per error. Joined errors contribute every branch.
func ErrorTrace(err error) string {
	var b strings.Builder
	queue := []error{err}
	for len(queue) > 0 {
		e := queue[0]
		queue = queue[1:]
		if e == nil {
			continue
		}
		fmt.Fprintf(&b, "%T: %v\n", e, e)
		switch u := e.(type) {
		case interface{ Unwrap() []error }:
			queue = append(queue, u.Unwrap()...)
		default:
			if next := errors.Unwrap(e); next != nil {
				queue = append(queue, next)
			}
		}
	}
	return strings.TrimSuffix(b.String(), "\n")
}
