package cluster

import (
	"errors"
	"fmt"
)

// Error is a membership error with a stable code.
type Error struct {
	Code    string
	Message string
	Details string
	Cause   error
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches errors with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e.Code == t.Code
}

// WithDetails returns a copy carrying details.
func (e *Error) WithDetails(format string, args ...any) *Error {
	c := *e
	c.Details = fmt.Sprintf(format, args...)
	return &c
}

// WithCause returns a copy wrapping cause.
func (e *Error) WithCause(cause error) *Error {
	c := *e
	c.Cause = cause
	return &c
}

var (
	ErrInvalidTransition = &Error{Code: "NM-NODE-4090", Message: "invalid node state transition"}
	ErrNodeNotFound      = &Error{Code: "NM-NODE-4040", Message: "node not found"}
	ErrNoSnapshot        = &Error{Code: "NM-NODE-4041", Message: "no snapshot received from node"}
	ErrNoListeners       = &Error{Code: "NM-NODE-4001", Message: "node has no listener addresses"}
	ErrAlreadyBound      = &Error{Code: "NM-NODE-4091", Message: "node already bound to a live channel"}
	ErrNodeClosed        = &Error{Code: "NM-NODE-4100", Message: "node closed"}

	ErrServiceNotFound = &Error{Code: "NM-SERV-4040", Message: "service not found"}
	ErrServiceExists   = &Error{Code: "NM-SERV-4090", Message: "service already registered"}

	ErrAuthRejected      = &Error{Code: "NM-AUTH-4010", Message: "authentication rejected"}
	ErrBadAuthPacket     = &Error{Code: "NM-AUTH-4000", Message: "malformed authentication packet"}
	ErrProtocolMismatch  = &Error{Code: "NM-AUTH-4260", Message: "protocol version not supported"}
	ErrClusterIDMismatch = &Error{Code: "NM-AUTH-4030", Message: "cluster id mismatch"}
)

// errNotConfigured is returned by Provider methods that need an option
// that was not given.
var errNotConfigured = errors.New("cluster: not configured")
