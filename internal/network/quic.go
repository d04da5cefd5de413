package network

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/quic-go/quic-go"
)

func quicConfig() *quic.Config {
	return &quic.Config{
		KeepAlivePeriod: 10 * time.Second,
		MaxIdleTimeout:  60 * time.Second,
	}
}

type acceptedStream struct {
	rwc    io.ReadWriteCloser
	remote net.Addr
}

// quicAcceptor accepts QUIC connections and hands out the first stream each
// peer opens. A connection carries exactly one channel.
type quicAcceptor struct {
	addr    net.Addr
	close   func() error
	streams chan acceptedStream
	done    chan struct{}
	once    sync.Once
}

func listenQUIC(pc net.PacketConn, tlsConf *tls.Config) (*quicAcceptor, error) {
	ln, err := quic.Listen(pc, tlsConf, quicConfig())
	if err != nil {
		_ = pc.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &quicAcceptor{
		addr:    ln.Addr(),
		streams: make(chan acceptedStream),
		done:    make(chan struct{}),
	}
	a.close = func() error {
		cancel()
		err := ln.Close()
		_ = pc.Close()
		return err
	}

	go func() {
		for {
			qc, err := ln.Accept(ctx)
			if err != nil {
				a.shutdown()
				return
			}
			go func() {
				st, err := qc.AcceptStream(ctx)
				if err != nil {
					_ = qc.CloseWithError(0, "no stream")
					return
				}
				s := acceptedStream{
					rwc:    newQUICStream(st, func() error { return qc.CloseWithError(0, "channel closed") }),
					remote: qc.RemoteAddr(),
				}
				select {
				case a.streams <- s:
				case <-a.done:
					_ = s.rwc.Close()
				}
			}()
		}
	}()
	return a, nil
}

func (a *quicAcceptor) Accept(ctx context.Context) (io.ReadWriteCloser, net.Addr, error) {
	select {
	case s := <-a.streams:
		return s.rwc, s.remote, nil
	case <-a.done:
		return nil, nil, net.ErrClosed
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
}

func (a *quicAcceptor) Addr() net.Addr { return a.addr }

func (a *quicAcceptor) Close() error {
	a.shutdown()
	return a.close()
}

func (a *quicAcceptor) shutdown() {
	a.once.Do(func() { close(a.done) })
}

func dialQUIC(ctx context.Context, addr string, tlsConf *tls.Config) (io.ReadWriteCloser, net.Addr, error) {
	qc, err := quic.DialAddr(ctx, addr, tlsConf, quicConfig())
	if err != nil {
		return nil, nil, err
	}
	st, err := qc.OpenStreamSync(ctx)
	if err != nil {
		_ = qc.CloseWithError(0, "open stream failed")
		return nil, nil, err
	}
	rwc := newQUICStream(st, func() error { return qc.CloseWithError(0, "channel closed") })
	return rwc, qc.RemoteAddr(), nil
}

// quicStream closes its connection together with the stream and reports a
// peer side close as io.EOF.
type quicStream struct {
	stream    io.ReadWriteCloser
	closeConn func() error
}

func newQUICStream(st io.ReadWriteCloser, closeConn func() error) *quicStream {
	return &quicStream{stream: st, closeConn: closeConn}
}

func (s *quicStream) Read(p []byte) (int, error) {
	n, err := s.stream.Read(p)
	var appErr *quic.ApplicationError
	if err != nil && errors.As(err, &appErr) {
		err = io.EOF
	}
	return n, err
}

func (s *quicStream) Write(p []byte) (int, error) {
	return s.stream.Write(p)
}

func (s *quicStream) Close() error {
	err := s.stream.Close()
	if cerr := s.closeConn(); err == nil {
		err = cerr
	}
	return err
}

func (s *quicStream) SetReadDeadline(t time.Time) error {
	if d, ok := s.stream.(deadliner); ok {
		return d.SetReadDeadline(t)
	}
	return nil
}

func (s *quicStream) SetWriteDeadline(t time.Time) error {
	if d, ok := s.stream.(deadliner); ok {
		return d.SetWriteDeadline(t)
	}
	return nil
}
