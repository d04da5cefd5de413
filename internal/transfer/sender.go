package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/yndnr/nodemesh-go/internal/network"
	"github.com/yndnr/nodemesh-go/pkg/task"
)

// SenderConfig tunes a Sender.
type SenderConfig struct {
	// RateLimit caps the payload bytes per second sent to each target.
	// Zero disables the limit.
	RateLimit int
	// Ack sends every chunk as a query and aborts the transfer on the first
	// chunk a target does not accept.
	Ack bool

	Logger  *slog.Logger
	Metrics Metrics
}

// Sender streams byte sources to channels as chunk sessions.
type Sender struct {
	cfg    SenderConfig
	logger *slog.Logger
}

// NewSender creates a sender.
func NewSender(cfg SenderConfig) *Sender {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = noopMetrics{}
	}
	return &Sender{cfg: cfg, logger: cfg.Logger}
}

// Send reads src until EOF and sends it to every target as session. Each
// full read of ChunkSize bytes is a non-final chunk. The last read, of any
// size including zero, is the final chunk and carries the total.
//
// The future resolves with StatusSuccess once every chunk was sent, or
// with StatusFailure and the cause on a read or send error.
func (s *Sender) Send(ctx context.Context, session Session, src io.Reader, targets ...network.Channel) *task.Future[Status] {
	f := task.New[Status]()
	if len(targets) == 0 {
		_ = f.Resolve(StatusFailure, ErrNoTargets)
		return f
	}
	if session.ChunkSize <= 0 {
		_ = f.Resolve(StatusFailure, fmt.Errorf("%w: chunk size %d", ErrInvalidChunk, session.ChunkSize))
		return f
	}

	s.cfg.Metrics.SessionStarted()
	go func() {
		status, err := s.stream(ctx, session, src, targets)
		s.cfg.Metrics.SessionFinished(status)
		if err != nil {
			s.logger.Warn("chunked transfer failed",
				"session", session.ID,
				"transfer_channel", session.TransferChannel,
				"error", err)
		}
		_ = f.Resolve(status, err)
	}()
	return f
}

func (s *Sender) stream(ctx context.Context, session Session, src io.Reader, targets []network.Channel) (Status, error) {
	limiters := make([]*rate.Limiter, len(targets))
	if s.cfg.RateLimit > 0 {
		burst := max(s.cfg.RateLimit, int(session.ChunkSize))
		for i := range limiters {
			limiters[i] = rate.NewLimiter(rate.Limit(s.cfg.RateLimit), burst)
		}
	}

	buf := make([]byte, session.ChunkSize)
	for index := int32(0); ; index++ {
		if err := ctx.Err(); err != nil {
			return StatusFailure, err
		}

		n, err := io.ReadFull(src, buf)
		final := false
		switch {
		case err == nil:
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			final = true
		default:
			return StatusFailure, fmt.Errorf("transfer: read chunk %d: %w", index, err)
		}

		chunk := Chunk{Session: session, Index: index, Final: final, Payload: buf[:n]}
		if final {
			chunk.TotalChunks = index + 1
		}
		for i, target := range targets {
			if err := s.sendChunk(ctx, target, limiters[i], chunk); err != nil {
				return StatusFailure, err
			}
		}
		if final {
			return StatusSuccess, nil
		}
	}
}

func (s *Sender) sendChunk(ctx context.Context, target network.Channel, limiter *rate.Limiter, chunk Chunk) error {
	if limiter != nil && len(chunk.Payload) > 0 {
		if err := limiter.WaitN(ctx, len(chunk.Payload)); err != nil {
			return err
		}
	}

	p := chunk.Packet()
	if !s.cfg.Ack {
		if err := target.Send(p); err != nil {
			return fmt.Errorf("transfer: send chunk %d to %s: %w", chunk.Index, target.ID(), err)
		}
		s.cfg.Metrics.ChunkSent(len(chunk.Payload))
		return nil
	}

	reply, err := target.SendQuery(ctx, p)
	if err != nil {
		return fmt.Errorf("transfer: send chunk %d to %s: %w", chunk.Index, target.ID(), err)
	}
	s.cfg.Metrics.ChunkSent(len(chunk.Payload))
	accepted := reply.Body.ReadBool()
	if err := reply.Body.Err(); err != nil {
		return fmt.Errorf("transfer: ack of chunk %d: %w", chunk.Index, err)
	}
	if !accepted {
		return fmt.Errorf("%w: chunk %d by %s", ErrRejected, chunk.Index, target.ID())
	}
	return nil
}
