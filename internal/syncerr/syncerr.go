// Package syncerr defines the transport-agnostic error taxonomy shared by
// providers, the sync engine and the coordinator.
package syncerr

import "errors"

// Kind classifies an error for the purposes of retry/backoff/UI surfacing.
type Kind int

const (
	KindUnknown Kind = iota
	KindAuthentication
	KindNetwork
	KindProtocol
	KindNotFound
	KindNotSupported
	KindInvalidConfiguration
	KindDatabase
)

func (k Kind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication"
	case KindNetwork:
		return "network"
	case KindProtocol:
		return "protocol"
	case KindNotFound:
		return "not_found"
	case KindNotSupported:
		return "not_supported"
	case KindInvalidConfiguration:
		return "invalid_configuration"
	case KindDatabase:
		return "database"
	default:
		return "unknown"
	}
}

// Error is a typed sync-domain error. Providers, EmailSync and the
// coordinator all propagate this type so callers can branch on Kind
// without string matching.
type Error struct {
	Kind     Kind
	Provider string // optional provider context (gmail, office365, imap, apple)
	Message  string
	Cause    error
}

func (e *Error) Error() string {
	if e.Provider != "" {
		return e.Kind.String() + " (" + e.Provider + "): " + e.Message
	}
	return e.Kind.String() + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func WithProvider(kind Kind, provider, message string, cause error) *Error {
	return &Error{Kind: kind, Provider: provider, Message: message, Cause: cause}
}

// ErrNotSupported is the sentinel every provider returns for a capability it
// does not expose, so callers can use errors.Is(err, ErrNotSupported).
var ErrNotSupported = &Error{Kind: KindNotSupported, Message: "capability not supported by this provider"}

// ErrNotFound is the sentinel for lookups against rows that don't exist.
var ErrNotFound = &Error{Kind: KindNotFound, Message: "record not found"}

// Is implements errors.Is comparisons keyed on Kind, so a wrapped
// NotSupported/NotFound with extra context still matches the sentinel.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

// IsKind reports whether err (or anything it wraps) is a *Error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}
