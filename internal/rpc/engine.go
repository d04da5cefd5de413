package rpc

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yndnr/nodemesh-go/pkg/wire"
)

// DefaultTimeout applies when neither the invocation nor its class set one.
const DefaultTimeout = 30 * time.Second

// Metrics receives RPC measurements.
type Metrics interface {
	CallSent(class, method string)
	CallHandled(class, method string, d time.Duration, err error)
}

type noopMetrics struct{}

func (noopMetrics) CallSent(string, string)                          {}
func (noopMetrics) CallHandled(string, string, time.Duration, error) {}

// Engine builds calls and owns the codec and timeout policy shared by the
// sending and receiving sides.
type Engine struct {
	mapper         *wire.Mapper
	defaultTimeout atomic.Int64
	classTimeouts  sync.Map // class name -> time.Duration
	logger         *slog.Logger
	metrics        Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithMapper sets the value codec. The default is wire.DefaultMapper().
func WithMapper(m *wire.Mapper) Option {
	return func(e *Engine) {
		e.mapper = m
	}
}

// WithDefaultTimeout sets the engine wide timeout.
func WithDefaultTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.SetDefaultTimeout(d)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// NewEngine creates an engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		mapper:  wire.DefaultMapper(),
		logger:  slog.Default(),
		metrics: noopMetrics{},
	}
	e.defaultTimeout.Store(int64(DefaultTimeout))
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Mapper returns the value codec.
func (e *Engine) Mapper() *wire.Mapper { return e.mapper }

// Logger returns the engine logger.
func (e *Engine) Logger() *slog.Logger { return e.logger }

// SetDefaultTimeout changes the engine wide timeout. Non-positive values
// are ignored.
func (e *Engine) SetDefaultTimeout(d time.Duration) {
	if d > 0 {
		e.defaultTimeout.Store(int64(d))
	}
}

// DefaultTimeout returns the engine wide timeout.
func (e *Engine) DefaultTimeout() time.Duration {
	return time.Duration(e.defaultTimeout.Load())
}

// SetClassTimeout sets the default timeout for every method of class. A
// non-positive d removes it.
func (e *Engine) SetClassTimeout(class string, d time.Duration) {
	if d <= 0 {
		e.classTimeouts.Delete(class)
		return
	}
	e.classTimeouts.Store(class, d)
}

// ClassTimeout returns the default timeout of class, if one is set.
func (e *Engine) ClassTimeout(class string) (time.Duration, bool) {
	v, ok := e.classTimeouts.Load(class)
	if !ok {
		return 0, false
	}
	return v.(time.Duration), true
}

// timeoutFor resolves the effective timeout of inv: its own, then the
// class default, then the engine default.
func (e *Engine) timeoutFor(inv Invocation) time.Duration {
	if inv.Timeout > 0 {
		return inv.Timeout
	}
	if d, ok := e.ClassTimeout(inv.Class); ok {
		return d
	}
	return e.DefaultTimeout()
}

// Invoke starts a call to method of class.
func (e *Engine) Invoke(class, method string, args ...any) *Call {
	return &Call{
		engine: e,
		hops:   []Invocation{newInvocation(class, method, args)},
	}
}
