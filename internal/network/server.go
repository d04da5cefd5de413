package network

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/yndnr/nodemesh-go/pkg/cmap"
)

// ServerConfig configures a channel server.
type ServerConfig struct {
	Transport Transport
	// Addresses to listen on. Port 0 picks a free port; see Server.Addrs.
	Addresses []string
	// TLSConfig enables TLS on TCP and is required for QUIC.
	TLSConfig *tls.Config
	ReusePort bool
	Channel   ChannelConfig
}

// Server accepts channels on one or more addresses.
type Server struct {
	cfg     ServerConfig
	handler ChannelHandler
	logger  *slog.Logger

	mu        sync.Mutex
	acceptors []acceptor

	channels *cmap.Map[string, *conn]
	running  atomic.Bool
	wg       sync.WaitGroup
}

// NewServer creates a server that reports channel lifecycle to handler.
func NewServer(cfg ServerConfig, handler ChannelHandler) *Server {
	cfg.Channel = cfg.Channel.withDefaults()
	return &Server{
		cfg:      cfg,
		handler:  handler,
		logger:   cfg.Channel.Logger,
		channels: cmap.New[string, *conn](),
	}
}

// Start binds every address and starts accepting. Binding errors are
// returned; the server is not running afterwards.
func (s *Server) Start(ctx context.Context) error {
	if len(s.cfg.Addresses) == 0 {
		return ErrNoAddress
	}

	bound := make([]acceptor, 0, len(s.cfg.Addresses))
	for _, addr := range s.cfg.Addresses {
		a, err := listen(ctx, s.cfg.Transport, addr, s.cfg.TLSConfig, s.cfg.ReusePort)
		if err != nil {
			for _, b := range bound {
				_ = b.Close()
			}
			return fmt.Errorf("listen on %s: %w", addr, err)
		}
		bound = append(bound, a)
	}

	s.mu.Lock()
	s.acceptors = bound
	s.mu.Unlock()
	s.running.Store(true)

	for _, a := range bound {
		s.logger.Info("channel server listening",
			"transport", string(s.cfg.Transport),
			"address", a.Addr().String(),
			"tls", s.cfg.TLSConfig != nil)

		s.wg.Add(1)
		go func(a acceptor) {
			defer s.wg.Done()
			if err := s.acceptLoop(ctx, a); err != nil && s.running.Load() {
				s.logger.Error("channel server accept failed", "address", a.Addr().String(), "error", err)
			}
		}(a)
	}
	return nil
}

// Addrs returns the bound listener addresses.
func (s *Server) Addrs() []net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]net.Addr, 0, len(s.acceptors))
	for _, a := range s.acceptors {
		out = append(out, a.Addr())
	}
	return out
}

// Channels returns the open inbound channels.
func (s *Server) Channels() []Channel {
	conns := s.channels.Values()
	out := make([]Channel, 0, len(conns))
	for _, c := range conns {
		out = append(out, c)
	}
	return out
}

// Shutdown stops accepting, closes every channel and waits for the read
// loops to finish or ctx to end.
func (s *Server) Shutdown(ctx context.Context) error {
	s.running.Store(false)

	var firstErr error
	s.mu.Lock()
	for _, a := range s.acceptors {
		if err := a.Close(); err != nil && !errors.Is(err, net.ErrClosed) && firstErr == nil {
			firstErr = err
		}
	}
	s.acceptors = nil
	s.mu.Unlock()

	for _, c := range s.channels.Values() {
		_ = c.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return firstErr
}

func (s *Server) acceptLoop(ctx context.Context, a acceptor) error {
	for {
		rwc, remote, err := a.Accept(ctx)
		if err != nil {
			if !s.running.Load() {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}

		c := newConn(rwc, remote, s.cfg.Channel, s.handler)
		s.channels.Set(c.ID(), c)
		c.OnClose(func(ch Channel) { s.channels.Delete(ch.ID()) })

		if err := c.start(&s.wg); err != nil {
			s.logger.Debug("inbound channel rejected", "remote", addrString(remote), "error", err)
			continue
		}
		s.logger.Debug("inbound channel opened", "channel_id", c.ID(), "remote", addrString(remote))
	}
}
