package archive

import (
	"errors"
	"fmt"
	"runtime"
)

var (
	// ErrCorrupt means the stream is not a readable archive of a supported format.
	ErrCorrupt = errors.New("archive corrupt")
	// ErrIOFailure means writing extracted content to disk failed.
	ErrIOFailure = errors.New("archive io failure")
	// ErrTooLarge means an entry, the total, or the entry count exceeded a limit.
	ErrTooLarge = errors.New("archive exceeds limits")
	// ErrUnsafeEntry means an entry name was rejected under PolicyReject.
	ErrUnsafeEntry = errors.New("archive contains unsafe entry")
)

// Error describes a failed extraction. Kind is one of the package sentinels
// and both Kind and Err are visible to errors.Is / errors.As.
type Error struct {
	Kind  error
	Op    string
	Entry string
	Err   error
	pc    uintptr
}

func (e *Error) Error() string {
	msg := "archive: " + e.Op
	if e.Entry != "" {
		msg += fmt.Sprintf(" %q", e.Entry)
	}
	msg += ": " + e.Kind.Error()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// PC lets the logger resolve where the error was raised.
func (e *Error) PC() uintptr { return e.pc }

func newError(kind error, op, entry string, err error) *Error {
	var pcs [1]uintptr
	runtime.Callers(2, pcs[:])
	return &Error{Kind: kind, Op: op, Entry: entry, Err: err, pc: pcs[0]}
}
