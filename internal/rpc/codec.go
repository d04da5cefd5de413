package rpc

import (
	"fmt"
	"reflect"
	"time"

	"github.com/yndnr/nodemesh-go/pkg/wire"
)

// maxHops bounds the chain length accepted from the wire.
const maxHops = 64

// encodeRequest writes hops in the request layout. Timeouts are only sent
// for calls that expect a result.
func (e *Engine) encodeRequest(b *wire.Buffer, hops []Invocation, expectsResult bool) error {
	chained := len(hops) > 1
	b.WriteBool(chained)
	if chained {
		b.WriteInt32(int32(len(hops)))
	}
	for _, h := range hops {
		b.WriteString(h.Class).
			WriteString(h.Method).
			WriteInt32(int32(len(h.Args)))
		for i, arg := range h.Args {
			if err := e.mapper.WriteObject(b, arg); err != nil {
				return fmt.Errorf("rpc: encode argument %d of %s.%s: %w", i, h.Class, h.Method, err)
			}
		}
		b.WriteBool(h.ExpectsResult)
		if expectsResult {
			b.WriteBool(true).WriteInt64(e.timeoutFor(h).Milliseconds())
		} else {
			b.WriteBool(false)
		}
	}
	return nil
}

type hop struct {
	class         string
	method        *Method
	args          []reflect.Value
	expectsResult bool
	timeout       time.Duration
}

type request struct {
	handler *Handler
	hops    []hop
}

func (r *request) last() hop { return r.hops[len(r.hops)-1] }

// decodeRequest resolves every hop against the registry and the method
// tables while reading. Errors that can be attributed to a hop are
// *invokeError.
func (e *Engine) decodeRequest(b *wire.Buffer, registry *Registry) (*request, error) {
	count := int32(1)
	if b.ReadBool() {
		count = b.ReadInt32()
	}
	if err := b.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	if count < 1 || count > maxHops {
		return nil, fmt.Errorf("%w: %d hops", ErrBadRequest, count)
	}

	req := &request{hops: make([]hop, 0, count)}
	var prev *Method
	for i := 0; i < int(count); i++ {
		class := b.ReadString()
		name := b.ReadString()
		argc := b.ReadInt32()
		if err := b.Err(); err != nil {
			return nil, fmt.Errorf("%w: hop %d: %w", ErrBadRequest, i, err)
		}

		var table *MethodTable
		if i == 0 {
			h, ok := registry.Lookup(class)
			if !ok {
				return nil, &invokeError{class: class, method: name, typ: "NoHandler", err: ErrNoHandler}
			}
			req.handler = h
			table = h.table
		} else {
			if prev.Result == nil || ClassName(prev.Result) != class {
				return nil, &invokeError{class: class, method: name, typ: "ChainMismatch", err: ErrChainMismatch}
			}
			t, err := Introspect(prev.Result)
			if err != nil {
				return nil, &invokeError{class: class, method: name, typ: "ChainMismatch", err: err}
			}
			table = t
		}

		m, ok := table.Lookup(name, int(argc))
		if !ok {
			return nil, &invokeError{
				class:  class,
				method: name,
				typ:    "NoMethod",
				err:    fmt.Errorf("%w: %s/%d", ErrNoMethod, name, argc),
			}
		}

		args := make([]reflect.Value, len(m.Params))
		for j, pt := range m.Params {
			v, err := e.mapper.ReadValue(b, pt)
			if err != nil {
				return nil, &invokeError{
					class:  class,
					method: name,
					typ:    "BadArgument",
					err:    fmt.Errorf("%w: argument %d: %w", ErrBadRequest, j, err),
				}
			}
			args[j] = v
		}

		h := hop{class: class, method: m, args: args, expectsResult: b.ReadBool()}
		if b.ReadBool() {
			h.timeout = time.Duration(b.ReadInt64()) * time.Millisecond
		}
		if err := b.Err(); err != nil {
			return nil, fmt.Errorf("%w: hop %d: %w", ErrBadRequest, i, err)
		}
		req.hops = append(req.hops, h)
		prev = m
	}
	return req, nil
}

func (e *Engine) encodeSuccess(result reflect.Value) (*wire.Buffer, error) {
	b := wire.NewBuffer().WriteBool(true)
	if !result.IsValid() {
		return b.WriteBool(false), nil
	}
	b.WriteBool(true)
	if err := e.mapper.WriteValue(b, result); err != nil {
		return nil, fmt.Errorf("rpc: encode result: %w", err)
	}
	return b, nil
}

func encodeFailure(class, method, typ, message string) *wire.Buffer {
	return wire.NewBuffer().
		WriteBool(false).
		WriteString(class).
		WriteString(method).
		WriteString(typ).
		WriteString(message)
}

// decodeResponse reads a reply. A nil t discards the value.
func (e *Engine) decodeResponse(b *wire.Buffer, inv Invocation, t reflect.Type) (reflect.Value, error) {
	if !b.ReadBool() {
		re := &RemoteError{
			Class:   b.ReadString(),
			Method:  b.ReadString(),
			Type:    b.ReadString(),
			Message: b.ReadString(),
		}
		if err := b.Err(); err != nil {
			return reflect.Value{}, fmt.Errorf("rpc: decode failure of %s.%s: %w", inv.Class, inv.Method, err)
		}
		return reflect.Value{}, re
	}

	present := b.ReadBool()
	if err := b.Err(); err != nil {
		return reflect.Value{}, fmt.Errorf("rpc: decode reply of %s.%s: %w", inv.Class, inv.Method, err)
	}
	if !present || t == nil {
		return reflect.Value{}, nil
	}
	v, err := e.mapper.ReadValue(b, t)
	if err != nil {
		return reflect.Value{}, fmt.Errorf("rpc: decode result of %s.%s: %w", inv.Class, inv.Method, err)
	}
	return v, nil
}
