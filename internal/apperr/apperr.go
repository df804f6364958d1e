// Package apperr defines the failure taxonomy shared by the dispatcher, the
// stage executor, the batch processor and the highlight sink.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

const (
	KindNone              Kind = ""
	KindInputNotFound     Kind = "input_not_found"
	KindWorkerFailed      Kind = "worker_failed"
	KindWorkerUnreachable Kind = "worker_unreachable"
	KindContractViolation Kind = "contract_violation"
	KindNoItemsFound      Kind = "no_items_found"
)

// Sentinels for errors.Is matching against an *Error of the same kind.
var (
	ErrInputNotFound     = &Error{Kind: KindInputNotFound}
	ErrWorkerFailed      = &Error{Kind: KindWorkerFailed}
	ErrWorkerUnreachable = &Error{Kind: KindWorkerUnreachable}
	ErrContractViolation = &Error{Kind: KindContractViolation}
	ErrNoItemsFound      = &Error{Kind: KindNoItemsFound}
)

// Error is a classified failure. Stage and Path are optional context;
// Diagnostics carries worker log text verbatim.
type Error struct {
	Kind        Kind
	Stage       string
	Path        string
	Diagnostics string
	Err         error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Stage != "" {
		msg = fmt.Sprintf("%s: stage %q", msg, e.Stage)
	}
	if e.Path != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Path)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Diagnostics != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Diagnostics)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New builds a classified error wrapping err.
func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Newf builds a classified error with a formatted cause.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the Kind of the first *Error in err's chain, or KindNone.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindNone
}
