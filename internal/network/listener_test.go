package network

import (
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/yndnr/nodemesh-go/internal/network/protocol"
	"github.com/yndnr/nodemesh-go/pkg/wire"
)

type stubChannel struct {
	Channel
}

func (stubChannel) RemoteAddr() net.Addr { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 1} }

func TestListenerRegistry_DispatchResetsBody(t *testing.T) {
	r := NewListenerRegistry(nil)
	var seen []string
	read := ListenerFunc(func(_ Channel, p *protocol.Packet) error {
		seen = append(seen, p.Body.ReadString())
		return nil
	})
	r.Add(testChannel, read, read)

	p := protocol.New(testChannel, wire.NewBuffer().WriteString("payload"))
	assert.True(t, r.Dispatch(stubChannel{}, p))
	assert.Equal(t, []string{"payload", "payload"}, seen)
}

func TestListenerRegistry_NoListener(t *testing.T) {
	r := NewListenerRegistry(nil)
	assert.False(t, r.Dispatch(stubChannel{}, protocol.New(7, nil)))
	assert.False(t, r.Has(7))
}

func TestListenerRegistry_ErrorsAndPanicsAreContained(t *testing.T) {
	r := NewListenerRegistry(nil)
	calls := 0
	r.Add(testChannel,
		ListenerFunc(func(Channel, *protocol.Packet) error { calls++; return errors.New("boom") }),
		ListenerFunc(func(Channel, *protocol.Packet) error { calls++; panic("bad listener") }),
		ListenerFunc(func(Channel, *protocol.Packet) error { calls++; return nil }),
	)

	assert.NotPanics(t, func() {
		assert.True(t, r.Dispatch(stubChannel{}, protocol.New(testChannel, nil)))
	})
	assert.Equal(t, 3, calls)
}

func TestListenerRegistry_Swap(t *testing.T) {
	r := NewListenerRegistry(nil)
	noop := ListenerFunc(func(Channel, *protocol.Packet) error { return nil })
	r.Add(protocol.ChannelAuthorization, noop)

	r.Swap(ListenerSet{
		protocol.ChannelRPC:          {noop},
		protocol.ChannelNodeSnapshot: {noop},
	})

	assert.False(t, r.Has(protocol.ChannelAuthorization))
	assert.Equal(t, []int32{protocol.ChannelRPC, protocol.ChannelNodeSnapshot}, r.Channels())

	r.Remove(protocol.ChannelRPC)
	assert.Equal(t, []int32{protocol.ChannelNodeSnapshot}, r.Channels())

	r.RemoveAll()
	assert.Empty(t, r.Channels())
}
