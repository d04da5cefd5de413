package rpc

import (
	"context"
	"fmt"

	"github.com/yndnr/nodemesh-go/internal/network"
	"github.com/yndnr/nodemesh-go/pkg/task"
)

// ChannelSupplier returns the channel a call should travel on. It is asked
// again for every call, so the answer may change after a reconnection.
type ChannelSupplier func() (network.Channel, error)

// StaticChannel supplies ch for every call.
func StaticChannel(ch network.Channel) ChannelSupplier {
	return func() (network.Channel, error) {
		if ch == nil || ch.Closed() {
			return nil, network.ErrChannelClosed
		}
		return ch, nil
	}
}

// Sender is the transport half of a generated client: one class, one
// channel supplier and, for chained clients, the call prefix every call
// extends.
type Sender struct {
	engine   *Engine
	class    string
	supplier ChannelSupplier
	prefix   *Call
}

// NewSender creates a sender for class.
func NewSender(engine *Engine, class string, supplier ChannelSupplier) *Sender {
	return &Sender{engine: engine, class: class, supplier: supplier}
}

// Class returns the wire class name.
func (s *Sender) Class() string { return s.class }

// Engine returns the engine calls are built with.
func (s *Sender) Engine() *Engine { return s.engine }

// Invoke starts a call to method. On a chained sender the call extends the
// prefix, so the whole chain travels as one request.
func (s *Sender) Invoke(method string, args ...any) *Call {
	if s.prefix == nil {
		return s.engine.Invoke(s.class, method, args...)
	}
	return s.prefix.Then(s.class, method, args...)
}

// Chain returns a sender for class whose calls run on the result of call.
func (s *Sender) Chain(call *Call, class string) *Sender {
	return &Sender{engine: s.engine, class: class, supplier: s.supplier, prefix: call}
}

// Channel resolves the current channel.
func (s *Sender) Channel() (network.Channel, error) {
	ch, err := s.supplier()
	if err != nil {
		return nil, fmt.Errorf("rpc: no channel for %s: %w", s.class, err)
	}
	return ch, nil
}

// FireSync runs call on the current channel and decodes into out.
func (s *Sender) FireSync(ctx context.Context, call *Call, out any) error {
	ch, err := s.Channel()
	if err != nil {
		return err
	}
	return call.FireSync(ctx, ch, out)
}

// FireAndForget sends call on the current channel.
func (s *Sender) FireAndForget(call *Call) error {
	ch, err := s.Channel()
	if err != nil {
		return err
	}
	return call.FireAndForget(ch)
}

// SendAsync runs call on the sender's current channel and returns a future
// for its result.
func SendAsync[T any](ctx context.Context, s *Sender, call *Call) *task.Future[T] {
	ch, err := s.Channel()
	if err != nil {
		return task.Failed[T](err)
	}
	return Fire[T](ctx, call, ch)
}
