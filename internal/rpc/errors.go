package rpc

import (
	"errors"
	"fmt"
)

var (
	// ErrNoHandler is returned when no handler is registered for a class.
	ErrNoHandler = errors.New("rpc: no handler for class")

	// ErrNoMethod is returned when a class has no method with the requested
	// name and argument count.
	ErrNoMethod = errors.New("rpc: no such method")

	// ErrChainMismatch is returned when a chained hop names a class other
	// than the result type of the previous hop.
	ErrChainMismatch = errors.New("rpc: chain class does not match previous result")

	// ErrNilReceiver is returned when a chained hop runs on a nil result.
	ErrNilReceiver = errors.New("rpc: nil receiver in chain")

	// ErrBadRequest is returned for a request body that cannot be decoded.
	ErrBadRequest = errors.New("rpc: malformed request")

	// ErrEmptyCall is returned when a call has no invocation.
	ErrEmptyCall = errors.New("rpc: empty call")
)

// RemoteError is the failure reported by the remote side of a call.
type RemoteError struct {
	Class   string
	Method  string
	Type    string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("rpc: remote %s.%s failed: %s: %s", e.Class, e.Method, e.Type, e.Message)
}

// IsRemote reports whether err carries a RemoteError.
func IsRemote(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}

// invokeError records which hop failed on the receiving side.
type invokeError struct {
	class  string
	method string
	typ    string
	err    error
}

func (e *invokeError) Error() string {
	return fmt.Sprintf("%s.%s: %v", e.class, e.method, e.err)
}

func (e *invokeError) Unwrap() error { return e.err }
