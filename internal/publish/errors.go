package publish

import (
	"errors"
	"net/http"
)

// Sentinel kinds carried by *Error. Match with errors.Is.
var (
	ErrIntake          = errors.New("intake rejected")
	ErrTooLarge        = errors.New("upload too large")
	ErrBadArchive      = errors.New("bad archive")
	ErrNoEntryDocument = errors.New("no entry document")
	ErrStorageFailure  = errors.New("storage failure")
	// ErrCanceled means the request context ended mid-publish, usually a
	// client disconnect.
	ErrCanceled = errors.New("publish canceled")
)

// Error is a publish failure with a message that is safe to show to clients.
// Err holds the internal cause for logging and is never rendered to clients.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.Error() + ": " + e.Message
	}
	return e.Kind.Error() + ": " + e.Message + ": " + e.Err.Error()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Status is the HTTP status for this failure.
func (e *Error) Status() int {
	switch e.Kind {
	case ErrTooLarge:
		return http.StatusRequestEntityTooLarge
	case ErrCanceled:
		return http.StatusRequestTimeout
	case ErrIntake, ErrBadArchive, ErrNoEntryDocument:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Code is a stable machine-readable identifier for the failure kind.
func (e *Error) Code() string {
	switch e.Kind {
	case ErrIntake:
		return "intake_rejected"
	case ErrTooLarge:
		return "too_large"
	case ErrBadArchive:
		return "bad_archive"
	case ErrNoEntryDocument:
		return "no_entry_document"
	case ErrCanceled:
		return "canceled"
	default:
		return "storage_failure"
	}
}

// StatusFor returns the HTTP status and client message for any error returned
// by Publish. Unclassified errors become a generic 500.
func StatusFor(err error) (int, string) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Status(), pe.Message
	}
	return http.StatusInternalServerError, msgStorage
}

const (
	msgMissing    = "no file was uploaded"
	msgEmpty      = "uploaded file is empty"
	msgTooLarge   = "uploaded file exceeds the maximum allowed size"
	msgType       = "uploaded file is not a supported archive type"
	msgCorrupt    = "uploaded file is not a readable archive"
	msgLimits     = "archive expands beyond the allowed limits"
	msgUnsafe     = "archive contains entries with unsafe paths"
	msgNoDocument = "archive does not contain an entry document"
	msgStorage    = "failed to store upload"
	msgCanceled   = "upload was canceled before it finished"
)

func newErr(kind error, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Err: cause}
}
