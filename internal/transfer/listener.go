package transfer

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/yndnr/nodemesh-go/internal/network"
	"github.com/yndnr/nodemesh-go/internal/network/protocol"
	"github.com/yndnr/nodemesh-go/pkg/cmap"
	"github.com/yndnr/nodemesh-go/pkg/wire"
)

type session struct {
	receiver  *Receiver
	channelID string
}

// Listener receives chunks on the ChunkedTransfer channel and routes them
// to one Receiver per session.
type Listener struct {
	registry *Registry
	dir      string
	logger   *slog.Logger
	metrics  Metrics

	sessions *cmap.Map[uuid.UUID, *session]
	watched  *cmap.Map[string, struct{}]
}

// ListenerOption configures a Listener.
type ListenerOption func(*Listener)

// WithTempDir sets the directory receivers create their files in.
func WithTempDir(dir string) ListenerOption {
	return func(l *Listener) { l.dir = dir }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ListenerOption {
	return func(l *Listener) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) ListenerOption {
	return func(l *Listener) {
		if m != nil {
			l.metrics = m
		}
	}
}

// NewListener creates a listener resolving completion handlers in registry.
func NewListener(registry *Registry, opts ...ListenerOption) *Listener {
	l := &Listener{
		registry: registry,
		logger:   slog.Default(),
		metrics:  noopMetrics{},
		sessions: cmap.New[uuid.UUID, *session](),
		watched:  cmap.New[string, struct{}](),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// HandlePacket implements network.Listener. When the packet carries a
// correlation id the reply body is the accepted flag.
func (l *Listener) HandlePacket(ch network.Channel, p *protocol.Packet) error {
	chunk, err := DecodeChunk(p.Body)
	if err != nil {
		l.reply(ch, p, false)
		return err
	}

	s, err := l.session(ch, chunk.Session)
	if err != nil {
		l.reply(ch, p, false)
		return err
	}

	accepted := s.receiver.Handle(chunk)
	if s.receiver.Status() == StatusSuccess {
		l.sessions.DeleteIf(chunk.Session.ID, func(cur *session) bool { return cur == s })
	}
	l.reply(ch, p, accepted)
	return nil
}

func (l *Listener) session(ch network.Channel, sess Session) (*session, error) {
	if s, ok := l.sessions.Get(sess.ID); ok {
		return s, nil
	}

	fn, ok := l.registry.Lookup(sess.TransferChannel)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoHandler, sess.TransferChannel)
	}
	r, err := NewReceiver(sess, l.dir, fn)
	if err != nil {
		return nil, err
	}
	r.logger = l.logger.With("session", sess.ID, "transfer_channel", sess.TransferChannel)
	r.metrics = l.metrics

	s := &session{receiver: r, channelID: ch.ID()}
	if actual, loaded := l.sessions.GetOrSet(sess.ID, s); loaded {
		r.Abort(ErrAborted)
		return actual, nil
	}
	l.metrics.SessionStarted()
	l.watch(ch)
	return s, nil
}

// watch aborts the sessions fed by ch once it closes.
func (l *Listener) watch(ch network.Channel) {
	if !l.watched.SetIfAbsent(ch.ID(), struct{}{}) {
		return
	}
	ch.OnClose(func(closed network.Channel) {
		l.watched.Delete(closed.ID())
		n := l.abortWhere(func(s *session) bool { return s.channelID == closed.ID() }, network.ErrChannelClosed)
		if n > 0 {
			l.logger.Info("aborted transfer sessions of closed channel", "channel_id", closed.ID(), "sessions", n)
		}
	})
}

// Sessions returns the number of tracked sessions.
func (l *Listener) Sessions() int { return l.sessions.Count() }

// Close aborts every tracked session.
func (l *Listener) Close() {
	l.abortWhere(func(*session) bool { return true }, ErrAborted)
}

func (l *Listener) abortWhere(pred func(*session) bool, err error) int {
	removed := l.sessions.DeleteFunc(func(_ uuid.UUID, s *session) bool { return pred(s) })
	for _, s := range removed {
		s.receiver.Abort(err)
	}
	return len(removed)
}

func (l *Listener) reply(ch network.Channel, p *protocol.Packet, accepted bool) {
	if !p.HasUniqueID() {
		return
	}
	if err := ch.Send(protocol.NewResponse(p, wire.NewBuffer().WriteBool(accepted))); err != nil {
		l.logger.Debug("failed to acknowledge chunk", "channel_id", ch.ID(), "error", err)
	}
}

var _ network.Listener = (*Listener)(nil)
