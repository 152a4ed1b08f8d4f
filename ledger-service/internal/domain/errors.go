package domain

import (
	"errors"
	"fmt"
)

type Kind int

const (
	// KindValidation is a malformed input, rejected before any event is raised.
	KindValidation Kind = iota + 1
	// KindInvariant is a well-formed request the aggregate's current state refuses.
	KindInvariant
	// KindNotFound means the target stream does not exist.
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindInvariant:
		return "invariant"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Error is a business rule rejection. Sentinels below are compared with
// errors.Is; wrap them to add detail.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

var (
	ErrInvalidAmount     = &Error{KindValidation, "amount must be greater than zero"}
	ErrSameAccount       = &Error{KindValidation, "source and destination accounts must differ"}
	ErrRequiredField     = &Error{KindValidation, "required field missing"}
	ErrInvalidOverdraft  = &Error{KindValidation, "overdraft limit must be zero or positive"}
	ErrAccountClosed     = &Error{KindInvariant, "account is closed"}
	ErrInsufficientFunds = &Error{KindInvariant, "insufficient funds"}
	ErrNonZeroBalance    = &Error{KindInvariant, "account balance must be zero to close"}
	ErrInvalidTransition = &Error{KindInvariant, "invalid transfer state transition"}
	ErrAlreadyApplied    = &Error{KindInvariant, "movement already applied"}
	ErrNotFound          = &Error{KindNotFound, "not found"}
)

// Invalid builds a validation error with a custom message.
func Invalid(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFound wraps ErrNotFound with the missing entity.
func NotFound(entity string, id fmt.Stringer) error {
	return fmt.Errorf("%s %s %w", entity, id, ErrNotFound)
}

func KindOf(err error) (Kind, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind, true
	}
	return 0, false
}

// IsDomain reports whether err is a business rejection rather than an
// infrastructure failure.
func IsDomain(err error) bool {
	_, ok := KindOf(err)
	return ok
}

func IsValidation(err error) bool { k, _ := KindOf(err); return k == KindValidation }
func IsInvariant(err error) bool  { k, _ := KindOf(err); return k == KindInvariant }
func IsNotFound(err error) bool   { k, _ := KindOf(err); return k == KindNotFound }

func required(field, value string) error {
	if value == "" {
		return fmt.Errorf("%w: %s", ErrRequiredField, field)
	}
	return nil
}
