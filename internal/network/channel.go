package network

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/yndnr/nodemesh-go/internal/network/protocol"
	"github.com/yndnr/nodemesh-go/pkg/task"
)

// Channel is an established, bidirectional packet stream to one peer.
type Channel interface {
	// ID is unique for the lifetime of the process.
	ID() string
	RemoteAddr() net.Addr
	// Send writes p without waiting for a reply.
	Send(p *protocol.Packet) error
	// SendQueryAsync assigns p a fresh correlation id, writes it and returns
	// a future resolved by the first reply.
	SendQueryAsync(ctx context.Context, p *protocol.Packet) *task.Future[*protocol.Packet]
	// SendQuery is SendQueryAsync followed by waiting for the reply.
	SendQuery(ctx context.Context, p *protocol.Packet) (*protocol.Packet, error)
	// Listeners is the channel's own listener registry.
	Listeners() *ListenerRegistry
	Close() error
	Closed() bool
	// OnClose registers fn to run once after the channel closes. If it is
	// already closed fn runs immediately.
	OnClose(fn func(Channel))
}

// ChannelHandler is notified when channels open and close.
type ChannelHandler interface {
	// HandleChannelInitialize runs before the first packet is read. A
	// non-nil error closes the channel.
	HandleChannelInitialize(ch Channel) error
	HandleChannelClose(ch Channel)
}

// ChannelConfig tunes a single channel.
type ChannelConfig struct {
	// ReadTimeout bounds reading the rest of a frame once its first byte
	// arrived. Zero disables it.
	ReadTimeout time.Duration
	// WriteTimeout bounds writing one frame. Zero disables it.
	WriteTimeout time.Duration
	// IdleTimeout closes a channel that receives nothing for this long.
	// Zero disables it.
	IdleTimeout time.Duration
	// QueryTimeout applies to queries without a context deadline.
	QueryTimeout time.Duration

	Logger  *slog.Logger
	Metrics Metrics
}

func (c ChannelConfig) withDefaults() ChannelConfig {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Metrics == nil {
		c.Metrics = noopMetrics{}
	}
	return c
}

type deadliner interface {
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// conn is the Channel implementation over a byte stream.
type conn struct {
	id     string
	rwc    io.ReadWriteCloser
	remote net.Addr
	cfg    ChannelConfig
	logger *slog.Logger

	handler   ChannelHandler
	listeners *ListenerRegistry
	queries   *QueryManager

	writeMu sync.Mutex
	closed  atomic.Bool
	done    chan struct{}

	hooksMu sync.Mutex
	hooks   []func(Channel)
}

func newConn(rwc io.ReadWriteCloser, remote net.Addr, cfg ChannelConfig, handler ChannelHandler) *conn {
	cfg = cfg.withDefaults()
	id := ulid.Make().String()
	logger := cfg.Logger.With("channel_id", id, "remote", addrString(remote))
	return &conn{
		id:        id,
		rwc:       rwc,
		remote:    remote,
		cfg:       cfg,
		logger:    logger,
		handler:   handler,
		listeners: NewListenerRegistry(logger),
		queries:   NewQueryManager(cfg.QueryTimeout, cfg.Metrics),
		done:      make(chan struct{}),
	}
}

// start runs the channel handler and then the read loop on its own
// goroutine. wg, when non-nil, tracks the read loop.
func (c *conn) start(wg *sync.WaitGroup) error {
	c.cfg.Metrics.ChannelOpened()
	if c.handler != nil {
		if err := c.handler.HandleChannelInitialize(c); err != nil {
			_ = c.Close()
			return fmt.Errorf("initialize channel: %w", err)
		}
	}
	if c.Closed() {
		return ErrChannelClosed
	}
	if wg != nil {
		wg.Add(1)
	}
	go func() {
		if wg != nil {
			defer wg.Done()
		}
		c.serve()
	}()
	return nil
}

func (c *conn) ID() string                   { return c.id }
func (c *conn) RemoteAddr() net.Addr         { return c.remote }
func (c *conn) Listeners() *ListenerRegistry { return c.listeners }
func (c *conn) Closed() bool                 { return c.closed.Load() }

func (c *conn) Send(p *protocol.Packet) error {
	if c.closed.Load() {
		return ErrChannelClosed
	}
	frame, err := protocol.Encode(p)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	if d, ok := c.rwc.(deadliner); ok && c.cfg.WriteTimeout > 0 {
		_ = d.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	_, err = c.rwc.Write(frame)
	c.writeMu.Unlock()

	if err != nil {
		c.logger.Debug("channel write failed", "error", err)
		_ = c.Close()
		return fmt.Errorf("%w: %v", ErrChannelClosed, err)
	}
	c.cfg.Metrics.PacketSent(p.Channel, len(frame))
	return nil
}

func (c *conn) SendQueryAsync(ctx context.Context, p *protocol.Packet) *task.Future[*protocol.Packet] {
	id := uuid.New()
	p.UniqueID = id

	f, err := c.queries.Register(ctx, id)
	if err != nil {
		return task.Failed[*protocol.Packet](err)
	}
	if err := c.Send(p); err != nil {
		c.queries.Cancel(id, err)
	}
	return f
}

func (c *conn) SendQuery(ctx context.Context, p *protocol.Packet) (*protocol.Packet, error) {
	// Every registered query ends on its own, so waiting without ctx keeps
	// the timeout error distinguishable from a plain cancellation.
	return c.SendQueryAsync(ctx, p).Get(context.Background())
}

func (c *conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(c.done)
	err := c.rwc.Close()

	c.queries.FailAll(ErrChannelClosed)
	c.cfg.Metrics.ChannelClosed()
	if c.handler != nil {
		c.handler.HandleChannelClose(c)
	}

	c.hooksMu.Lock()
	hooks := c.hooks
	c.hooks = nil
	c.hooksMu.Unlock()
	for _, fn := range hooks {
		fn(c)
	}

	c.logger.Debug("channel closed")
	return err
}

func (c *conn) OnClose(fn func(Channel)) {
	c.hooksMu.Lock()
	if !c.closed.Load() {
		c.hooks = append(c.hooks, fn)
		c.hooksMu.Unlock()
		return
	}
	c.hooksMu.Unlock()
	fn(c)
}

func (c *conn) serve() {
	defer c.Close()

	br := bufio.NewReaderSize(c.rwc, 64*1024)
	d, hasDeadline := c.rwc.(deadliner)

	for {
		if hasDeadline {
			// Idle phase: wait for the first byte of the next frame.
			var dl time.Time
			if c.cfg.IdleTimeout > 0 {
				dl = time.Now().Add(c.cfg.IdleTimeout)
			}
			_ = d.SetReadDeadline(dl)
			if _, err := br.Peek(1); err != nil {
				c.logReadError(err)
				return
			}
			// Frame phase: the rest of the frame must follow promptly.
			dl = time.Time{}
			if c.cfg.ReadTimeout > 0 {
				dl = time.Now().Add(c.cfg.ReadTimeout)
			}
			_ = d.SetReadDeadline(dl)
		}

		p, err := protocol.ReadFrame(br)
		if err != nil {
			if protocol.IsRecoverable(err) {
				c.cfg.Metrics.PacketDropped(0, DropMalformed)
				c.logger.Warn("skipping malformed frame", "error", err)
				continue
			}
			c.logReadError(err)
			return
		}
		c.handlePacket(p)
	}
}

func (c *conn) handlePacket(p *protocol.Packet) {
	c.cfg.Metrics.PacketReceived(p.Channel, p.Header.Len()+p.Body.Len())

	if p.IsResponse() {
		if !c.queries.Complete(p) {
			c.cfg.Metrics.PacketDropped(p.Channel, DropUnmatched)
			c.logger.Debug("dropping reply without pending query", "unique_id", p.UniqueID)
		}
		return
	}
	if !c.listeners.Dispatch(c, p) {
		c.cfg.Metrics.PacketDropped(p.Channel, DropNoListener)
		c.logger.Debug("dropping packet without listener",
			"channel", protocol.ChannelName(p.Channel), "channel_num", p.Channel)
	}
}

func (c *conn) logReadError(err error) {
	switch {
	case c.closed.Load():
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		c.logger.Debug("channel closed by peer")
	case errors.Is(err, os.ErrDeadlineExceeded):
		c.logger.Debug("channel idle timeout")
	default:
		c.logger.Warn("channel read failed", "error", err)
	}
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}
