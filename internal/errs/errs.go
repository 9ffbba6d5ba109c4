// Package errs defines the stable error kinds of spec.md §7 and the
// plumbing to map an arbitrary panic/error into one of them.
package errs

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// Kind is one of the stable error IDs from spec.md §7.
type Kind int

const (
	Uncategorized Kind = iota
	UserAbort
	NotNow
	InvalidIdentifier
	Authorisation
	OutOfMemory
	NumericalLimit
	CannotOpenFile
	NetworkConnection
	ParamErr
	CannotHandleRequest
)

func (k Kind) String() string {
	switch k {
	case UserAbort:
		return "UserAbort"
	case NotNow:
		return "NotNow"
	case InvalidIdentifier:
		return "InvalidIdentifier"
	case Authorisation:
		return "Authorisation"
	case OutOfMemory:
		return "OutOfMemory"
	case NumericalLimit:
		return "NumericalLimit"
	case CannotOpenFile:
		return "CannotOpenFile"
	case NetworkConnection:
		return "NetworkConnection"
	case ParamErr:
		return "ParamErr"
	case CannotHandleRequest:
		return "CannotHandleRequest"
	default:
		return "Uncategorized"
	}
}

// Error wraps an underlying cause with a stable Kind and a notified flag
// (spec.md §7: "guarding against duplicate delivery via a notified flag").
type Error struct {
	Kind       Kind
	Text       string
	Cause      error
	notified   atomic.Bool
	notifiedPt *atomic.Bool
}

func New(kind Kind, text string) *Error {
	e := &Error{Kind: kind, Text: text}
	e.notifiedPt = &e.notified
	return e
}

func Wrap(kind Kind, cause error, text string) *Error {
	e := New(kind, text)
	e.Cause = cause
	return e
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Text, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Text)
}

func (e *Error) Unwrap() error { return e.Cause }

// MarkNotified reports whether this is the first caller to mark the error as
// delivered to the front-end; subsequent calls return false so only one
// Error/FatalError message is ever sent for a shared exception object
// (spec.md §7, §8 scenario 6).
func (e *Error) MarkNotified() bool {
	if e.notifiedPt == nil {
		e.notifiedPt = &e.notified
	}
	return e.notifiedPt.CompareAndSwap(false, true)
}

// As reports whether err (or something it wraps) is an *Error, writing it
// into target the way errors.As would.
func As(err error, target **Error) bool {
	return errors.As(err, target)
}

// KindOf classifies an arbitrary error: an *Error keeps its own Kind;
// ErrStopRequested becomes UserAbort; ErrOutOfMemory becomes OutOfMemory;
// anything else is Uncategorized. Used by Task's fatal-error sink (spec.md §4.1).
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, ErrStopRequested) {
		return UserAbort
	}
	if errors.Is(err, ErrOutOfMemory) {
		return OutOfMemory
	}
	return Uncategorized
}

// ErrStopRequested is raised by Task.cooperate() analogues when a stop has
// been requested; it unwinds run() the way spec.md §4.1/§7 describes.
var ErrStopRequested = errors.New("stop requested")

// ErrOutOfMemory is returned by allocation-shaped failures so KindOf/New
// callers can map it to the OutOfMemory kind consistently.
var ErrOutOfMemory = errors.New("allocation failed")
