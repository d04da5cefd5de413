package network

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"strings"
)

// Transport names a stream transport.
type Transport string

const (
	TransportTCP  Transport = "tcp"
	TransportQUIC Transport = "quic"
)

// ParseTransport maps a config string to a Transport. Empty means TCP.
func ParseTransport(s string) (Transport, error) {
	switch Transport(strings.ToLower(strings.TrimSpace(s))) {
	case "", TransportTCP:
		return TransportTCP, nil
	case TransportQUIC:
		return TransportQUIC, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTransport, s)
	}
}

// acceptor yields inbound byte streams.
type acceptor interface {
	Accept(ctx context.Context) (io.ReadWriteCloser, net.Addr, error)
	Addr() net.Addr
	Close() error
}

func listen(ctx context.Context, t Transport, addr string, tlsConf *tls.Config, reusePort bool) (acceptor, error) {
	lc := listenConfig(reusePort)
	switch t {
	case TransportTCP, "":
		ln, err := lc.Listen(ctx, "tcp", addr)
		if err != nil {
			return nil, err
		}
		if tlsConf != nil {
			ln = tls.NewListener(ln, tlsConf)
		}
		return tcpAcceptor{ln}, nil
	case TransportQUIC:
		if tlsConf == nil {
			return nil, fmt.Errorf("quic listener on %s: tls is required", addr)
		}
		pc, err := lc.ListenPacket(ctx, "udp", addr)
		if err != nil {
			return nil, err
		}
		return listenQUIC(pc, tlsConf)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTransport, t)
	}
}

func dial(ctx context.Context, t Transport, addr string, tlsConf *tls.Config) (io.ReadWriteCloser, net.Addr, error) {
	switch t {
	case TransportTCP, "":
		var d net.Dialer
		c, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, nil, err
		}
		if tlsConf != nil {
			tc := tls.Client(c, tlsConf)
			if err := tc.HandshakeContext(ctx); err != nil {
				_ = c.Close()
				return nil, nil, fmt.Errorf("tls handshake with %s: %w", addr, err)
			}
			return tc, tc.RemoteAddr(), nil
		}
		return c, c.RemoteAddr(), nil
	case TransportQUIC:
		if tlsConf == nil {
			return nil, nil, fmt.Errorf("quic dial %s: tls is required", addr)
		}
		return dialQUIC(ctx, addr, tlsConf)
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownTransport, t)
	}
}

type tcpAcceptor struct {
	ln net.Listener
}

func (a tcpAcceptor) Accept(context.Context) (io.ReadWriteCloser, net.Addr, error) {
	c, err := a.ln.Accept()
	if err != nil {
		return nil, nil, err
	}
	return c, c.RemoteAddr(), nil
}

func (a tcpAcceptor) Addr() net.Addr { return a.ln.Addr() }
func (a tcpAcceptor) Close() error   { return a.ln.Close() }
