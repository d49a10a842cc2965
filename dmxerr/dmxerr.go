// Package dmxerr defines the typed error taxonomy shared by the dmx core
// and its codec packages. It exists as its own leaf package so that dmx
// and the codec packages can all raise and recognize the same error kinds
// without an import cycle back into the core. (dmxvalue does not import
// it; the codecs wrap dmxvalue.DomainErr into ValueDomain.)
package dmxerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind names one of the error categories a caller of this module needs to
// distinguish. See the doc comment on each constant for the condition it
// signals.
type Kind int

const (
	// AttributeType signals a value kind outside the permitted closed set,
	// or a typed accessor that doesn't match the attribute's stored kind.
	AttributeType Kind = iota
	// ElementOwnership signals an element or element array assigned across
	// datamodel boundaries.
	ElementOwnership
	// ElementIdInUse signals a GUID collision at element creation or import.
	ElementIdInUse
	// Codec signals an error raised by an underlying codec, wrapped with
	// attribute/owner/codec context.
	Codec
	// CodecNotFound signals no codec registered for a requested or
	// encountered (encoding, version) pair.
	CodecNotFound
	// UnsupportedFormat signals a header present but unparseable, or
	// explicitly unsupported.
	UnsupportedFormat
	// ValueDomain signals a value-type constructor arity or parse failure.
	ValueDomain
	// InvalidOperation signals misuse of state: re-parenting an attached
	// array, loading an already-materialized attribute, and similar.
	InvalidOperation
)

func (k Kind) String() string {
	switch k {
	case AttributeType:
		return "AttributeTypeError"
	case ElementOwnership:
		return "ElementOwnershipError"
	case ElementIdInUse:
		return "ElementIdInUseError"
	case Codec:
		return "CodecError"
	case CodecNotFound:
		return "CodecNotFoundError"
	case UnsupportedFormat:
		return "UnsupportedFormatError"
	case ValueDomain:
		return "ValueDomainError"
	case InvalidOperation:
		return "InvalidOperationError"
	default:
		return "UnknownError"
	}
}

// Error is the concrete error type returned for every Kind above. Callers
// that need to branch on the category should use Is, not a type assertion
// on a specific exported type, since the set of kinds may grow.
type Error struct {
	Kind Kind
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.msg, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.msg)
}

func (e *Error) Unwrap() error { return e.err }

// New constructs an Error of the given kind with no wrapped cause.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Wrap constructs an Error of the given kind around an underlying cause,
// using pkg/errors so a stack trace is attached at the wrap site. This is
// the convention used when a codec-supplied error crosses into the core
// (see Kind Codec): the stack makes it possible to print %+v during
// debugging without losing where inside the codec the failure occurred.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{
		Kind: kind,
		msg:  fmt.Sprintf(format, args...),
		err:  errors.Wrap(cause, kind.String()),
	}
}

// Is reports whether err is a *Error of the given kind, unwrapping through
// any wrapping along the way.
func Is(err error, kind Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Kind == kind
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
