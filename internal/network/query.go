package network

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/yndnr/nodemesh-go/internal/network/protocol"
	"github.com/yndnr/nodemesh-go/pkg/cmap"
	"github.com/yndnr/nodemesh-go/pkg/task"
)

// DefaultQueryTimeout applies to queries whose context has no deadline.
const DefaultQueryTimeout = 30 * time.Second

type pendingQuery struct {
	future *task.Future[*protocol.Packet]

	mu     sync.Mutex
	halted bool
	timer  *time.Timer
	stop   func() bool
}

// QueryManager correlates outbound queries with their replies on one
// channel. Every registered query ends exactly once: with the first reply,
// with a timeout, with context cancellation or when the channel closes.
type QueryManager struct {
	pending *cmap.Map[uuid.UUID, *pendingQuery]
	timeout time.Duration
	closed  atomic.Bool
	metrics Metrics
}

// NewQueryManager creates a manager. A non-positive timeout selects
// DefaultQueryTimeout.
func NewQueryManager(timeout time.Duration, metrics Metrics) *QueryManager {
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &QueryManager{
		pending: cmap.New[uuid.UUID, *pendingQuery](),
		timeout: timeout,
		metrics: metrics,
	}
}

// Register starts waiting for the reply to id. The returned future fails
// with ErrQueryTimeout once the context deadline, or the default timeout
// when there is none, passes.
func (q *QueryManager) Register(ctx context.Context, id uuid.UUID) (*task.Future[*protocol.Packet], error) {
	if q.closed.Load() {
		return nil, ErrChannelClosed
	}

	timeout := q.timeout
	if dl, ok := ctx.Deadline(); ok {
		timeout = time.Until(dl)
	}

	entry := &pendingQuery{future: task.New[*protocol.Packet]()}
	q.pending.Set(id, entry)
	q.metrics.QueriesPending(1)

	if q.closed.Load() {
		if q.remove(id, entry) {
			return nil, ErrChannelClosed
		}
		// FailAll got there first and already failed the future.
		return entry.future, nil
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.halted {
		return entry.future, nil
	}
	entry.timer = time.AfterFunc(timeout, func() {
		if q.remove(id, entry) {
			_ = entry.future.Fail(fmt.Errorf("%w after %s", ErrQueryTimeout, timeout))
		}
	})
	entry.stop = context.AfterFunc(ctx, func() {
		if !q.remove(id, entry) {
			return
		}
		err := ctx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", ErrQueryTimeout, err)
		}
		_ = entry.future.Fail(err)
	})
	return entry.future, nil
}

// Complete resolves the query p replies to. It returns false when no query
// is waiting, which happens for late or duplicate replies.
func (q *QueryManager) Complete(p *protocol.Packet) bool {
	entry, ok := q.pending.Pop(p.UniqueID)
	if !ok {
		return false
	}
	q.metrics.QueriesPending(-1)
	entry.halt()
	_ = entry.future.Complete(p)
	return true
}

// Cancel forgets id and fails its future with err.
func (q *QueryManager) Cancel(id uuid.UUID, err error) {
	entry, ok := q.pending.Pop(id)
	if !ok {
		return
	}
	q.metrics.QueriesPending(-1)
	entry.halt()
	_ = entry.future.Fail(err)
}

// FailAll fails every pending query with err and rejects new ones.
func (q *QueryManager) FailAll(err error) {
	q.closed.Store(true)
	for _, entry := range q.pending.Drain() {
		q.metrics.QueriesPending(-1)
		entry.halt()
		_ = entry.future.Fail(err)
	}
}

// Pending returns the number of queries awaiting a reply.
func (q *QueryManager) Pending() int {
	return q.pending.Count()
}

func (q *QueryManager) remove(id uuid.UUID, entry *pendingQuery) bool {
	removed := q.pending.DeleteIf(id, func(v *pendingQuery) bool { return v == entry })
	if removed {
		q.metrics.QueriesPending(-1)
		entry.halt()
	}
	return removed
}

func (e *pendingQuery) halt() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.halted = true
	if e.timer != nil {
		e.timer.Stop()
	}
	if e.stop != nil {
		e.stop()
	}
}
