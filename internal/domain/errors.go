package domain

import (
	"errors"
	"maps"
	"slices"
	"strings"
)

// ErrorKind classifies an error into one of a closed set of categories. Every
// error leaving a service maps onto exactly one kind, which the transports
// translate into status codes and clients use to decide how to react.
type ErrorKind string

const (
	// KindValidation marks bad input the caller can correct and resubmit.
	KindValidation ErrorKind = "validation"
	// KindUnauthenticated marks missing, invalid or expired credentials.
	KindUnauthenticated ErrorKind = "unauthenticated"
	// KindForbidden marks an authenticated caller acting on something it does not own.
	KindForbidden ErrorKind = "forbidden"
	// KindNotFound marks a reference to a record that does not exist.
	KindNotFound ErrorKind = "not_found"
	// KindConflict marks a state conflict such as buying an item that is already sold.
	KindConflict ErrorKind = "conflict"
	// KindBackend marks everything else: storage failures, bugs, unreachable peers.
	KindBackend ErrorKind = "backend"
)

// ErrorKinds lists every ErrorKind.
//
//nolint:gochecknoglobals
var ErrorKinds = []ErrorKind{
	KindValidation,
	KindUnauthenticated,
	KindForbidden,
	KindNotFound,
	KindConflict,
	KindBackend,
}

// ParseErrorKind returns the kind with the given name, or KindBackend.
func ParseErrorKind(s string) ErrorKind {
	kind := ErrorKind(strings.ToLower(strings.TrimSpace(s)))
	if slices.Contains(ErrorKinds, kind) {
		return kind
	}

	return KindBackend
}

func (k ErrorKind) String() string {
	return string(k)
}

// kinded is implemented by errors that know their kind.
type kinded interface {
	Kind() ErrorKind
}

// Error is a sentinel error carrying its kind.
type Error struct {
	kind ErrorKind
	msg  string
}

// NewError creates a sentinel error of the given kind.
func NewError(kind ErrorKind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

func (e *Error) Error() string {
	return e.msg
}

// Kind returns the error's kind.
func (e *Error) Kind() ErrorKind {
	return e.kind
}

// KindOf returns the kind of the first error in err's tree that carries one.
// Errors without a kind are backend errors.
func KindOf(err error) ErrorKind {
	var k kinded
	if errors.As(err, &k) {
		return k.Kind()
	}

	return KindBackend
}

// MessageOf returns the message of the first error in err's tree that carries
// a kind, without the context wrapped around it. Errors without a kind keep
// their full message.
func MessageOf(err error) string {
	var k kinded
	if !errors.As(err, &k) {
		return err.Error()
	}

	if authErr, ok := k.(*AuthError); ok && authErr.Message != "" {
		return authErr.Message
	}

	if e, ok := k.(error); ok {
		return e.Error()
	}

	return err.Error()
}

var (
	// ErrValidation is the generic validation failure.
	ErrValidation = NewError(KindValidation, "validation failed")
	// ErrForbidden is returned when the caller does not own the target record.
	ErrForbidden = NewError(KindForbidden, "forbidden")
	// ErrNotFound is the generic lookup failure.
	ErrNotFound = NewError(KindNotFound, "not found")
	// ErrConflict is the generic state conflict.
	ErrConflict = NewError(KindConflict, "conflict")
)

// ValidationErrors maps input field names to human readable problems.
type ValidationErrors map[string]string

func (v ValidationErrors) Error() string {
	var sb strings.Builder

	sb.WriteString(ErrValidation.Error())

	for i, field := range slices.Sorted(maps.Keys(v)) {
		if i == 0 {
			sb.WriteString(": ")
		} else {
			sb.WriteString(", ")
		}

		sb.WriteString(field + " " + v[field])
	}

	return sb.String()
}

// Kind implements the kinded interface.
func (v ValidationErrors) Kind() ErrorKind {
	return KindValidation
}

// Is reports ErrValidation as a match.
func (v ValidationErrors) Is(target error) bool {
	return target == ErrValidation
}
