package rpc

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"time"

	"github.com/yndnr/nodemesh-go/internal/network"
	"github.com/yndnr/nodemesh-go/internal/network/protocol"
	"github.com/yndnr/nodemesh-go/pkg/task"
	"github.com/yndnr/nodemesh-go/pkg/wire"
)

// Invocation is one method call on a remote object.
type Invocation struct {
	Class         string
	Method        string
	Args          []any
	ExpectsResult bool
	// Timeout overrides the class and engine defaults when positive.
	Timeout time.Duration
}

func newInvocation(class, method string, args []any) Invocation {
	return Invocation{
		Class:         class,
		Method:        method,
		Args:          args,
		ExpectsResult: true,
	}
}

// Call is an ordered chain of invocations. Hop k+1 runs on the object hop k
// returned. A Call is immutable; the builder methods return a new one.
type Call struct {
	engine *Engine
	hops   []Invocation
}

// Then appends a hop that runs on the result of the current last hop.
func (c *Call) Then(class, method string, args ...any) *Call {
	return c.with(func(hops []Invocation) []Invocation {
		return append(hops, newInvocation(class, method, args))
	})
}

// WithTimeout sets the timeout of the last hop.
func (c *Call) WithTimeout(d time.Duration) *Call {
	return c.with(func(hops []Invocation) []Invocation {
		hops[len(hops)-1].Timeout = d
		return hops
	})
}

// NoResult marks the last hop as not expecting a result.
func (c *Call) NoResult() *Call {
	return c.with(func(hops []Invocation) []Invocation {
		hops[len(hops)-1].ExpectsResult = false
		return hops
	})
}

// Hops returns a copy of the invocation chain.
func (c *Call) Hops() []Invocation {
	return slices.Clone(c.hops)
}

// Last returns the final hop.
func (c *Call) Last() Invocation {
	return c.hops[len(c.hops)-1]
}

// Timeout is the effective timeout of the call, taken from its last hop.
func (c *Call) Timeout() time.Duration {
	return c.engine.timeoutFor(c.Last())
}

func (c *Call) with(edit func([]Invocation) []Invocation) *Call {
	return &Call{engine: c.engine, hops: edit(slices.Clone(c.hops))}
}

// FireAndForget sends the call without a correlation id. The receiver
// never replies, even when the call fails.
func (c *Call) FireAndForget(ch network.Channel) error {
	p, err := c.packet(false)
	if err != nil {
		return err
	}
	c.sent()
	return ch.Send(p)
}

// FireSync sends the call and waits for the reply. The result is decoded
// into out, a non-nil pointer, or discarded when out is nil. A failure on
// the remote side is returned as *RemoteError.
func (c *Call) FireSync(ctx context.Context, ch network.Channel, out any) error {
	reply, err := c.query(ctx, ch).Get(context.Background())
	if err != nil {
		return err
	}
	return c.decodeInto(reply, out)
}

// Fire sends the call and returns a future for its typed result.
func Fire[T any](ctx context.Context, c *Call, ch network.Channel) *task.Future[T] {
	return task.Map(c.query(ctx, ch), func(reply *protocol.Packet) (T, error) {
		var v T
		err := c.decodeInto(reply, &v)
		return v, err
	})
}

func (c *Call) query(ctx context.Context, ch network.Channel) *task.Future[*protocol.Packet] {
	p, err := c.packet(true)
	if err != nil {
		return task.Failed[*protocol.Packet](err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.Timeout())
	c.sent()
	f := ch.SendQueryAsync(ctx, p)
	f.OnComplete(func(*protocol.Packet, error) { cancel() })
	return f
}

func (c *Call) sent() {
	last := c.Last()
	c.engine.metrics.CallSent(last.Class, last.Method)
}

func (c *Call) packet(expectsResult bool) (*protocol.Packet, error) {
	if len(c.hops) == 0 {
		return nil, ErrEmptyCall
	}
	hops := slices.Clone(c.hops)
	last := &hops[len(hops)-1]
	last.ExpectsResult = last.ExpectsResult && expectsResult

	body := wire.NewBuffer()
	if err := c.engine.encodeRequest(body, hops, expectsResult); err != nil {
		return nil, err
	}
	return protocol.New(protocol.ChannelRPC, body), nil
}

func (c *Call) decodeInto(reply *protocol.Packet, out any) error {
	last := c.Last()
	v, err := c.engine.decodeResponse(reply.Body, last, outType(out))
	if err != nil {
		return err
	}
	if out == nil || !v.IsValid() {
		return nil
	}
	reflect.ValueOf(out).Elem().Set(v)
	return nil
}

func outType(out any) reflect.Type {
	if out == nil {
		return nil
	}
	t := reflect.TypeOf(out)
	if t.Kind() != reflect.Pointer {
		panic(fmt.Sprintf("rpc: result target must be a pointer, got %s", t))
	}
	return t.Elem()
}
