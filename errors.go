package dsig

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind is the closed set of failure modes a Sign or Verify call can
// raise. Every error this package returns satisfies Is(err, <Kind>) for
// exactly one of these.
type ErrorKind int

const (
	// UnknownTransform: transform URI not in the supported table.
	UnknownTransform ErrorKind = iota + 1
	// UnknownReference: non-fragment, non-empty URI attribute.
	UnknownReference
	// UnresolvedReference: "#id" refers to no element with any known ID attribute.
	UnresolvedReference
	// InconsistentHash: References within one signature specify differing hash algorithms.
	InconsistentHash
	// MissingElement: a required child element is absent.
	MissingElement
	// KeyNotFound: no cert/key resolvable from a keyspec.
	KeyNotFound
	// KeyTooSmall: modulus cannot accommodate the padded DigestInfo.
	KeyTooSmall
	// SignatureMismatch: expected and computed padded blocks differ.
	SignatureMismatch
	// CanonicalizationError: c14n output violates its post-condition.
	CanonicalizationError
)

func (k ErrorKind) String() string {
	switch k {
	case UnknownTransform:
		return "UnknownTransform"
	case UnknownReference:
		return "UnknownReference"
	case UnresolvedReference:
		return "UnresolvedReference"
	case InconsistentHash:
		return "InconsistentHash"
	case MissingElement:
		return "MissingElement"
	case KeyNotFound:
		return "KeyNotFound"
	case KeyTooSmall:
		return "KeyTooSmall"
	case SignatureMismatch:
		return "SignatureMismatch"
	case CanonicalizationError:
		return "CanonicalizationError"
	default:
		return "UnknownError"
	}
}

// sigError is a sentinel carrying one of the closed ErrorKind values plus a
// human-readable message. errors.Is compares by Kind, not by message, so
// a caller can write `errors.Is(err, dsig.SignatureMismatch)` directly
// since ErrorKind itself implements error via Error().
type sigError struct {
	Kind  ErrorKind
	msg   string
	cause error
}

func (e *sigError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.msg)
}

func (e *sigError) Unwrap() error {
	return e.cause
}

func (e *sigError) Is(target error) bool {
	if k, ok := target.(ErrorKind); ok {
		return e.Kind == k
	}
	t, ok := target.(*sigError)
	return ok && t.Kind == e.Kind
}

// Error lets an ErrorKind be used directly as a target for errors.Is.
func (k ErrorKind) Error() string {
	return k.String()
}

// newErr builds a sigError, formatting msg/args with fmt.Sprintf.
func newErr(kind ErrorKind, format string, args ...interface{}) error {
	return errors.WithStack(&sigError{Kind: kind, msg: fmt.Sprintf(format, args...)})
}

// wrapErr attaches a stack trace to a sigError carrying kind, whose cause
// chain still leads to the underlying error for %w-style inspection.
func wrapErr(cause error, kind ErrorKind, format string, args ...interface{}) error {
	return errors.WithStack(&sigError{Kind: kind, msg: fmt.Sprintf(format, args...), cause: cause})
}
