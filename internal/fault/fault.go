// Package fault defines the error taxonomy shared by the metad components.
//
// Every failure that can reach a client or a log line is classified by a
// Code. Components return *Error values (possibly wrapped); callers branch
// on the code with Is or CodeOf instead of matching message strings.
package fault

import (
	"errors"
	"fmt"
)

// Code categorizes an error.
type Code string

const (
	// NotFound means an operation referenced an unknown path where absence
	// is an error (e.g. removing tags from a file that was never seen).
	NotFound Code = "NOT_FOUND"

	// UnsupportedCommand means a protocol line named no known command.
	UnsupportedCommand Code = "UNSUPPORTED_COMMAND"

	// UnsupportedQuery means a QUERY payload could not be interpreted.
	UnsupportedQuery Code = "UNSUPPORTED_QUERY"

	// UnsupportedAction means a structured command named an unknown action.
	UnsupportedAction Code = "UNSUPPORTED_ACTION"

	// OracleUnavailable is soft: it triggers the local fallback parser and
	// is never surfaced to a client.
	OracleUnavailable Code = "ORACLE_UNAVAILABLE"

	// ParseFailure means oracle or fallback output was not machine-readable.
	ParseFailure Code = "PARSE_FAILURE"

	// UpstreamIO covers network failures talking to the WAL authority or
	// the oracle. Logged, never fatal.
	UpstreamIO Code = "UPSTREAM_IO"

	// InvalidArgument means a known command carried malformed arguments.
	InvalidArgument Code = "INVALID_ARGUMENT"
)

// Error is a classified error.
type Error struct {
	// Code identifies the error category.
	Code Code

	// Message is a human-readable description, suitable for an ERR line.
	Message string

	// Path is the file path involved, if any.
	Path string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Path != "" {
		msg = fmt.Sprintf("%s (path=%s)", msg, e.Path)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an existing error.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// WithPath returns a copy of e carrying path.
func (e *Error) WithPath(path string) *Error {
	cp := *e
	cp.Path = path
	return &cp
}

// CodeOf returns the code of the first *Error in err's chain, or "" if
// err is nil or unclassified.
func CodeOf(err error) Code {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// MessageOf returns the client-facing message for err. Classified errors
// yield their Message; anything else yields err.Error().
func MessageOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Message
	}
	return err.Error()
}
