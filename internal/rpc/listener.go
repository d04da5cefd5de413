package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/yndnr/nodemesh-go/internal/network"
	"github.com/yndnr/nodemesh-go/internal/network/protocol"
	"github.com/yndnr/nodemesh-go/internal/telemetry/logger"
)

// Listener executes inbound calls on channel RPC.
type Listener struct {
	engine   *Engine
	registry *Registry
	logger   *slog.Logger
	base     context.Context
}

// NewListener creates a listener resolving classes in registry.
func NewListener(engine *Engine, registry *Registry) *Listener {
	return &Listener{
		engine:   engine,
		registry: registry,
		logger:   engine.logger,
		base:     context.Background(),
	}
}

// WithContext returns a copy of l whose invocations derive from ctx.
func (l *Listener) WithContext(ctx context.Context) *Listener {
	cp := *l
	cp.base = ctx
	return &cp
}

// HandlePacket decodes the request on the read goroutine and runs it on
// its own goroutine.
func (l *Listener) HandlePacket(ch network.Channel, p *protocol.Packet) error {
	req, err := l.engine.decodeRequest(p.Body, l.registry)
	if err != nil {
		// Without a decoded final hop the correlation id decides.
		if p.HasUniqueID() {
			l.replyFailure(ch, p, err)
		}
		return err
	}
	go l.execute(ch, p, req)
	return nil
}

func (l *Listener) execute(ch network.Channel, p *protocol.Packet, req *request) {
	last := req.last()
	ctx := logger.WithLogger(l.base, l.logger)
	ctx = logger.WithAttrs(ctx,
		"rpc_class", last.class,
		"rpc_method", last.method.Name,
		"channel_id", ch.ID())
	if last.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, last.timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := run(ctx, req)
	l.engine.metrics.CallHandled(last.class, last.method.Name, time.Since(start), err)

	wantsReply := last.expectsResult && p.HasUniqueID()
	if err != nil {
		logger.L(ctx).Warn("rpc invocation failed", "remote", ch.RemoteAddr(), "error", err)
		if wantsReply {
			l.replyFailure(ch, p, err)
		}
		return
	}
	if !wantsReply {
		return
	}

	body, err := l.engine.encodeSuccess(result)
	if err != nil {
		l.replyFailure(ch, p, &invokeError{class: last.class, method: last.method.Name, typ: "BadResult", err: err})
		return
	}
	if err := ch.Send(protocol.NewResponse(p, body)); err != nil {
		logger.L(ctx).Debug("rpc reply not sent", "error", err)
	}
}

func run(ctx context.Context, req *request) (reflect.Value, error) {
	recv := req.handler.recv
	var result reflect.Value
	for i, h := range req.hops {
		if i > 0 {
			if !result.IsValid() || isNil(result) {
				return reflect.Value{}, &invokeError{class: h.class, method: h.method.Name, typ: "NilReceiver", err: ErrNilReceiver}
			}
			recv = result
		}
		var err error
		result, err = h.method.call(ctx, recv, h.args)
		if err != nil {
			return reflect.Value{}, &invokeError{class: h.class, method: h.method.Name, typ: errorTypeName(err), err: err}
		}
	}
	return result, nil
}

func (l *Listener) replyFailure(ch network.Channel, p *protocol.Packet, err error) {
	var ie *invokeError
	body := encodeFailure("", "", "BadRequest", err.Error())
	if errors.As(err, &ie) {
		body = encodeFailure(ie.class, ie.method, ie.typ, ie.err.Error())
	}
	if serr := ch.Send(protocol.NewResponse(p, body)); serr != nil {
		l.logger.Debug("rpc failure reply not sent", "error", serr)
	}
}

func isNil(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}

func errorTypeName(err error) string {
	var pe *panicError
	if errors.As(err, &pe) {
		return "panic"
	}
	return fmt.Sprintf("%T", err)
}

type panicError struct {
	value any
}

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.value) }

var _ network.Listener = (*Listener)(nil)
