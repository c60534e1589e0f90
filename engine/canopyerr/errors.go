// Package canopyerr defines Canopy's closed error taxonomy.
//
// Every fallible RPC verb returns a *Error carrying one of a fixed set of
// Kinds with a stable numeric Code. Kinds are never retried inside the
// core; retry policy belongs to the transport or the application.
package canopyerr

import "fmt"

// Kind is one member of the closed error taxonomy.
type Kind int32

const (
	// OK indicates success. Kept in the enum so a Kind zero value is
	// meaningful rather than an implicit error.
	OK Kind = iota
	// InvalidData indicates malformed bytes or a semantic-level argument
	// violation.
	InvalidData
	// TransportError indicates an I/O failure, timeout, or disconnected
	// transport.
	TransportError
	// ObjectNotFound indicates a strong-handle call reached the destination
	// but the stub is gone. Treated as a bug on the happy path.
	ObjectNotFound
	// ObjectGone indicates an optimistic-handle call reached the
	// destination but the stub is gone. Expected; the caller drops the
	// handle.
	ObjectGone
	// ZoneNotFound indicates the destination zone is unreachable: no
	// transport, no pass-through.
	ZoneNotFound
	// InterfaceNotSupported indicates the stub exists but does not
	// implement the requested interface.
	InterfaceNotSupported
	// MethodNotFound indicates the interface matches but the method
	// ordinal is beyond its table.
	MethodNotFound
	// InvalidVersion indicates the protocol version is outside
	// [LowestSupported, HighestSupported].
	InvalidVersion
	// IncompatibleSerialisation indicates the codec tag is unrecognised or
	// the payload failed to decode.
	IncompatibleSerialisation
	// OutOfMemory indicates an allocation failure. Fatal for the call; the
	// zone survives.
	OutOfMemory
)

var kindNames = map[Kind]string{
	OK:                        "ok",
	InvalidData:               "invalid-data",
	TransportError:            "transport-error",
	ObjectNotFound:            "object-not-found",
	ObjectGone:                "object-gone",
	ZoneNotFound:              "zone-not-found",
	InterfaceNotSupported:     "interface-not-supported",
	MethodNotFound:            "method-not-found",
	InvalidVersion:            "invalid-version",
	IncompatibleSerialisation: "incompatible-serialisation",
	OutOfMemory:               "out-of-memory",
}

// String returns the stable wire name for the kind, e.g. "object-not-found".
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int32(k))
}

// Error is the concrete error type returned by every fallible marshaller
// verb. It carries a closed Kind plus a human-readable message and an
// optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause, if any, for errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New constructs an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an *Error of the given kind, wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the Kind from err if it is (or wraps) a *Error; returns
// InvalidData for any other non-nil error, and OK for nil.
func KindOf(err error) Kind {
	if err == nil {
		return OK
	}
	var ce *Error
	if asCanopyError(err, &ce) {
		return ce.Kind
	}
	return InvalidData
}

// asCanopyError is a small local errors.As equivalent: it walks the Unwrap
// chain looking for a *Error. KindOf and ToGRPCStatus both use it.
func asCanopyError(err error, target **Error) bool {
	for err != nil {
		if ce, ok := err.(*Error); ok {
			*target = ce
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}

// Is reports whether target is a *Error of the same Kind, so
// errors.Is(err, canopyerr.New(kind, "")) matches any error that is, or
// wraps, a *Error of that kind.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}
