package ledger

import (
	"errors"
	"fmt"
)

// Kind groups contract errors so transports can pick a status without knowing every code.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindUnauthorized
	KindInvalidState
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not-found"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindInvalidState:
		return "invalid-state"
	default:
		return "unknown"
	}
}

// Error is a coded contract failure, the equivalent of returning (err uNNN).
type Error struct {
	Kind    Kind
	Code    uint32
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (err u%d)", e.Message, e.Code)
}

// Is matches any contract error carrying the same code, so detailed validation
// messages still satisfy errors.Is against the package sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// NewError builds a sentinel; contract packages declare theirs as package variables.
func NewError(kind Kind, code uint32, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Invalid builds a validation error with a detailed message.
func Invalid(code uint32, format string, args ...any) error {
	return &Error{Kind: KindValidation, Code: code, Message: fmt.Sprintf(format, args...)}
}

// KindOf reports the kind of a contract error and KindUnknown for anything else.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// CodeOf returns the contract error code, or 0 when err is not a contract error.
func CodeOf(err error) uint32 {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return 0
}

// IsValidation helps callers distinguish between business and infrastructure failures.
func IsValidation(err error) bool {
	return KindOf(err) == KindValidation
}

var (
	ErrInvalidPrincipal = NewError(KindValidation, 1, "invalid principal")
	ErrMissingSender    = NewError(KindUnauthorized, 2, "transaction sender is required")
)
