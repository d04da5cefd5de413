package network

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yndnr/nodemesh-go/internal/network/protocol"
	"github.com/yndnr/nodemesh-go/pkg/task"
)

type queuedPacket struct {
	packet *protocol.Packet
	// ctx and reply are set for queries.
	ctx   context.Context
	reply *task.Future[*protocol.Packet]
}

// QueuedChannel stands in for a channel whose connection was lost but whose
// peer is expected back. Outbound packets are kept in FIFO order and
// replayed once by Flush onto the replacement channel. Queries wait for
// the replay and then for the real reply.
type QueuedChannel struct {
	lost    Channel
	timeout time.Duration

	mu      sync.Mutex
	queue   []queuedPacket
	target  Channel
	closed  atomic.Bool
	hooksMu sync.Mutex
	hooks   []func(Channel)
}

// NewQueuedChannel creates a queue standing in for lost. Queued queries
// without a context deadline fail after timeout; a non-positive timeout
// selects DefaultQueryTimeout.
func NewQueuedChannel(lost Channel, timeout time.Duration) *QueuedChannel {
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	return &QueuedChannel{lost: lost, timeout: timeout}
}

func (q *QueuedChannel) ID() string           { return q.lost.ID() }
func (q *QueuedChannel) RemoteAddr() net.Addr { return q.lost.RemoteAddr() }
func (q *QueuedChannel) Closed() bool         { return q.closed.Load() }

// Listeners returns the lost channel's registry. Nothing arrives on it.
func (q *QueuedChannel) Listeners() *ListenerRegistry { return q.lost.Listeners() }

// Len returns the number of queued packets.
func (q *QueuedChannel) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue)
}

// Send queues p, or forwards it once the queue has been flushed.
func (q *QueuedChannel) Send(p *protocol.Packet) error {
	q.mu.Lock()
	if q.closed.Load() {
		q.mu.Unlock()
		return ErrChannelClosed
	}
	if t := q.target; t != nil {
		q.mu.Unlock()
		return t.Send(p)
	}
	q.queue = append(q.queue, queuedPacket{packet: p})
	q.mu.Unlock()
	return nil
}

// SendQueryAsync queues the query. Its future resolves with the reply
// received after Flush, or fails when the queue is closed.
func (q *QueuedChannel) SendQueryAsync(ctx context.Context, p *protocol.Packet) *task.Future[*protocol.Packet] {
	q.mu.Lock()
	if q.closed.Load() {
		q.mu.Unlock()
		return task.Failed[*protocol.Packet](ErrChannelClosed)
	}
	if t := q.target; t != nil {
		q.mu.Unlock()
		return t.SendQueryAsync(ctx, p)
	}
	f := task.New[*protocol.Packet]()
	q.queue = append(q.queue, queuedPacket{packet: p, ctx: ctx, reply: f})
	q.mu.Unlock()

	timeout := q.timeout
	if dl, ok := ctx.Deadline(); ok {
		timeout = time.Until(dl)
	}
	timer := time.AfterFunc(timeout, func() {
		_ = f.Fail(fmt.Errorf("%w after %s", ErrQueryTimeout, timeout))
	})
	stop := context.AfterFunc(ctx, func() {
		_ = f.Fail(ctx.Err())
	})
	f.OnComplete(func(*protocol.Packet, error) {
		timer.Stop()
		stop()
	})
	return f
}

func (q *QueuedChannel) SendQuery(ctx context.Context, p *protocol.Packet) (*protocol.Packet, error) {
	return q.SendQueryAsync(ctx, p).Get(context.Background())
}

// Flush replays the queue onto target in FIFO order and forwards later
// sends to it. Only the first call replays; it returns the number of
// packets written.
func (q *QueuedChannel) Flush(target Channel) (int, error) {
	q.mu.Lock()
	if q.closed.Load() {
		q.mu.Unlock()
		return 0, ErrChannelClosed
	}
	if q.target != nil {
		q.mu.Unlock()
		return 0, nil
	}
	q.target = target
	pending := q.queue
	q.queue = nil

	// Writes happen under the lock so a concurrent Send cannot overtake
	// the replay.
	defer q.mu.Unlock()

	sent := 0
	for i, item := range pending {
		if item.reply == nil {
			if err := target.Send(item.packet); err != nil {
				failRemaining(pending[i:], err)
				return sent, err
			}
			sent++
			continue
		}
		if item.reply.IsDone() {
			continue
		}
		reply := item.reply
		target.SendQueryAsync(item.ctx, item.packet).OnComplete(func(p *protocol.Packet, err error) {
			_ = reply.Resolve(p, err)
		})
		sent++
	}
	return sent, nil
}

// Close discards the queue and fails queued queries.
func (q *QueuedChannel) Close() error {
	q.mu.Lock()
	if !q.closed.CompareAndSwap(false, true) {
		q.mu.Unlock()
		return nil
	}
	pending := q.queue
	q.queue = nil
	q.mu.Unlock()

	failRemaining(pending, ErrChannelClosed)

	q.hooksMu.Lock()
	hooks := q.hooks
	q.hooks = nil
	q.hooksMu.Unlock()
	for _, fn := range hooks {
		fn(q)
	}
	return nil
}

func (q *QueuedChannel) OnClose(fn func(Channel)) {
	q.hooksMu.Lock()
	if !q.closed.Load() {
		q.hooks = append(q.hooks, fn)
		q.hooksMu.Unlock()
		return
	}
	q.hooksMu.Unlock()
	fn(q)
}

func failRemaining(items []queuedPacket, err error) {
	for _, item := range items {
		if item.reply != nil {
			_ = item.reply.Fail(err)
		}
	}
}
