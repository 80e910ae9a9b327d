package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies core failures so transport handlers can translate
// them without string matching.
type ErrorKind string

const (
	ErrorKindInvalidInput      ErrorKind = "invalid_input"
	ErrorKindInvalidBakeSpec   ErrorKind = "invalid_bake_spec"
	ErrorKindNotFound          ErrorKind = "not_found"
	ErrorKindInvalidState      ErrorKind = "invalid_state"
	ErrorKindRackConflict      ErrorKind = "rack_conflict"
	ErrorKindNoSlotBeforeClose ErrorKind = "no_slot_before_close"
	ErrorKindOvenMismatch      ErrorKind = "oven_mismatch"
	ErrorKindCannotFulfil      ErrorKind = "cannot_fulfil"
	ErrorKindStoreIO           ErrorKind = "store_io"
)

// Error is the core's failure value: every operation that can fail returns
// one of these (wrapped or not) rather than panicking.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func NewInvalidInput(format string, args ...any) *Error {
	return NewError(ErrorKindInvalidInput, format, args...)
}

func NewInvalidBakeSpec(format string, args ...any) *Error {
	return NewError(ErrorKindInvalidBakeSpec, format, args...)
}

func NewNotFound(format string, args ...any) *Error {
	return NewError(ErrorKindNotFound, format, args...)
}

func NewInvalidState(format string, args ...any) *Error {
	return NewError(ErrorKindInvalidState, format, args...)
}

func NewRackConflict(format string, args ...any) *Error {
	return NewError(ErrorKindRackConflict, format, args...)
}

func NewNoSlotBeforeClose(format string, args ...any) *Error {
	return NewError(ErrorKindNoSlotBeforeClose, format, args...)
}

func NewOvenMismatch(format string, args ...any) *Error {
	return NewError(ErrorKindOvenMismatch, format, args...)
}

func NewCannotFulfil(format string, args ...any) *Error {
	return NewError(ErrorKindCannotFulfil, format, args...)
}

func NewStoreIO(format string, args ...any) *Error {
	return NewError(ErrorKindStoreIO, format, args...)
}

// KindOf extracts the error kind, or "" when err is not a core Error.
func KindOf(err error) ErrorKind {
	var coreErr *Error
	if errors.As(err, &coreErr) {
		return coreErr.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
