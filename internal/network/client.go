package network

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/yndnr/nodemesh-go/pkg/cmap"
)

// ClientConfig configures outbound channels.
type ClientConfig struct {
	Transport Transport
	// TLSConfig enables TLS on TCP and is required for QUIC.
	TLSConfig   *tls.Config
	DialTimeout time.Duration
	Channel     ChannelConfig
}

// Client opens outbound channels.
type Client struct {
	cfg     ClientConfig
	handler ChannelHandler
	logger  *slog.Logger

	channels *cmap.Map[string, *conn]
	wg       sync.WaitGroup
}

// NewClient creates a client that reports channel lifecycle to handler.
func NewClient(cfg ClientConfig, handler ChannelHandler) *Client {
	cfg.Channel = cfg.Channel.withDefaults()
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	return &Client{
		cfg:      cfg,
		handler:  handler,
		logger:   cfg.Channel.Logger,
		channels: cmap.New[string, *conn](),
	}
}

// Connect dials addr and returns the initialized channel.
func (c *Client) Connect(ctx context.Context, addr string) (Channel, error) {
	if addr == "" {
		return nil, ErrNoAddress
	}
	dctx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	defer cancel()

	rwc, remote, err := dial(dctx, c.cfg.Transport, addr, c.cfg.TLSConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", addr, err)
	}

	ch := newConn(rwc, remote, c.cfg.Channel, c.handler)
	c.channels.Set(ch.ID(), ch)
	ch.OnClose(func(closed Channel) { c.channels.Delete(closed.ID()) })

	if err := ch.start(&c.wg); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", addr, err)
	}
	c.logger.Debug("outbound channel opened", "channel_id", ch.ID(), "remote", addr)
	return ch, nil
}

// Close closes every outbound channel and waits for their read loops.
func (c *Client) Close() error {
	for _, ch := range c.channels.Values() {
		_ = ch.Close()
	}
	c.wg.Wait()
	return nil
}
