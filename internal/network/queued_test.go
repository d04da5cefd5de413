package network

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yndnr/nodemesh-go/internal/network/protocol"
	"github.com/yndnr/nodemesh-go/pkg/wire"
)

// recorder collects every packet on testChannel and answers queries.
type recorder struct {
	mu   sync.Mutex
	seen []string
}

func (r *recorder) HandlePacket(ch Channel, p *protocol.Packet) error {
	msg := p.Body.ReadString()
	r.mu.Lock()
	r.seen = append(r.seen, msg)
	r.mu.Unlock()
	if p.HasUniqueID() {
		return ch.Send(protocol.NewResponse(p, wire.NewBuffer().WriteString("ack:"+msg)))
	}
	return nil
}

func (r *recorder) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.seen...)
}

func TestQueuedChannel_FlushPreservesOrder(t *testing.T) {
	rec := &recorder{}
	lost, _ := pipePair(t, ChannelConfig{}, nil, newTestHandler(nil))
	require.NoError(t, lost.Close())

	q := NewQueuedChannel(lost, time.Second)
	require.NoError(t, q.Send(query("one")))
	reply := q.SendQueryAsync(context.Background(), query("two"))
	require.NoError(t, q.Send(query("three")))
	assert.Equal(t, 3, q.Len())
	assert.False(t, reply.IsDone())

	replacement, _ := pipePair(t, ChannelConfig{}, nil, newTestHandler(func(ch Channel) error {
		ch.Listeners().Add(testChannel, rec)
		return nil
	}))

	n, err := q.Flush(replacement)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 0, q.Len())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	p, err := reply.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ack:two", p.Body.ReadString())

	require.Eventually(t, func() bool { return len(rec.messages()) == 3 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"one", "two", "three"}, rec.messages())

	// flushing again replays nothing
	n, err = q.Flush(replacement)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// later sends go straight through
	require.NoError(t, q.Send(query("four")))
	require.Eventually(t, func() bool { return len(rec.messages()) == 4 }, time.Second, time.Millisecond)
	assert.Equal(t, "four", rec.messages()[3])
}

func TestQueuedChannel_CloseFailsWaiters(t *testing.T) {
	lost, _ := pipePair(t, ChannelConfig{}, nil, newTestHandler(nil))
	q := NewQueuedChannel(lost, time.Second)

	closedHook := make(chan struct{})
	q.OnClose(func(Channel) { close(closedHook) })

	reply := q.SendQueryAsync(context.Background(), query("never"))
	require.NoError(t, q.Close())

	_, err := reply.Get(context.Background())
	assert.ErrorIs(t, err, ErrChannelClosed)
	assert.ErrorIs(t, q.Send(query("x")), ErrChannelClosed)
	assert.True(t, q.Closed())
	<-closedHook

	_, err = q.Flush(lost)
	assert.ErrorIs(t, err, ErrChannelClosed)
}

func TestQueuedChannel_QueuedQueryTimesOut(t *testing.T) {
	lost, _ := pipePair(t, ChannelConfig{}, nil, newTestHandler(nil))
	q := NewQueuedChannel(lost, 20*time.Millisecond)

	_, err := q.SendQuery(context.Background(), query("waiting"))
	assert.ErrorIs(t, err, ErrQueryTimeout)
}

func TestQueuedChannel_DelegatesIdentity(t *testing.T) {
	lost, _ := pipePair(t, ChannelConfig{}, nil, newTestHandler(nil))
	q := NewQueuedChannel(lost, 0)

	assert.Equal(t, lost.ID(), q.ID())
	assert.Equal(t, lost.RemoteAddr(), q.RemoteAddr())
	assert.Same(t, lost.Listeners(), q.Listeners())
}
