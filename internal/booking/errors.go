package booking

import (
	"fmt"

	"github.com/Iyzyman/facilitybook/internal/protocol"
)

// Error is a domain failure from the booking store, carrying the wire error
// code it should be reported as (§4.1's ERROR payload, §7's domain-error
// taxonomy).
type Error struct {
	Code   protocol.ErrorCode
	Detail string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Detail) }

func newError(code protocol.ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Detail: fmt.Sprintf(format, args...)}
}

func errNotFound(format string, args ...any) *Error {
	return newError(protocol.ErrNotFound, format, args...)
}

func errInvalidTime(format string, args ...any) *Error {
	return newError(protocol.ErrInvalidTime, format, args...)
}

func errConflict(format string, args ...any) *Error {
	return newError(protocol.ErrConflict, format, args...)
}

func errCancelled(format string, args ...any) *Error {
	return newError(protocol.ErrCancelled, format, args...)
}
