package tdslock

import (
	"errors"
	"strings"
)

// Error is the tdslock error domain type.
//
// Errors coming from this package's operations can be inspected as
// ([errors.As]) an *Error at some point in the error chain. Intermediate
// layers should not wrap in another Error except to add [ErrorKind]
// information; prefer [fmt.Errorf] with a "%w" verb.
type Error struct {
	Inner    error
	Kind     ErrorKind
	Message  string
	Op       string
	Resource string
}

var (
	_ error                       = (*Error)(nil)
	_ interface{ Is(error) bool } = (*Error)(nil)
	_ interface{ Unwrap() error } = (*Error)(nil)
)

// Error implements error.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(" ")
	}
	b.WriteString("[")
	switch e.Kind {
	case ErrProtocol,
		ErrValidation,
		ErrUnknownStatus,
		ErrAcquisition,
		ErrRelease:
		b.WriteString(string(e.Kind))
	default:
		b.WriteString("???")
	}
	b.WriteString("]")
	if e.Resource != "" {
		b.WriteString(" ")
		b.WriteString(e.Resource)
	}
	b.WriteString(": ")
	if e.Message != "" {
		b.WriteString(e.Message)
	}
	if e.Message != "" && e.Inner != nil {
		b.WriteString(": ")
	}
	if e.Inner != nil {
		b.WriteString(e.Inner.Error())
	}
	return b.String()
}

// Is enables [errors.Is].
//
// It compares the error kind; callers should compare against a declared
// [ErrorKind] over a specific error.
func (e *Error) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

// Unwrap enables [errors.Unwrap].
func (e *Error) Unwrap() error {
	return e.Inner
}

// ErrorKind represents classes of errors to be checked against.
type ErrorKind string

// Defined error kinds.
var (
	ErrProtocol      = ErrorKind("protocol")       // transport or stream-level failure
	ErrValidation    = ErrorKind("validation")     // malformed request, or server status <= -999
	ErrUnknownStatus = ErrorKind("unknown status") // return status absent where one was required
	ErrAcquisition   = ErrorKind("acquisition")    // lock not granted
	ErrRelease       = ErrorKind("release")        // release call failed
)

// Error implements error.
func (e ErrorKind) Error() string {
	return string(e)
}

// ErrNotHeld is reported by release when the server says this session does
// not hold the lock.
var ErrNotHeld = errors.New("lock not held by this session")
