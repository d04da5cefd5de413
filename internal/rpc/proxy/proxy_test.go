package proxy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yndnr/nodemesh-go/internal/network"
	"github.com/yndnr/nodemesh-go/internal/rpc"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type pingerClient struct {
	sender *rpc.Sender
}

func (c *pingerClient) Ping(ctx context.Context) error {
	return c.sender.FireSync(ctx, c.sender.Invoke("Ping"), nil)
}

type Unregistered interface {
	Nothing()
}

func TestImplement(t *testing.T) {
	Register(func(s *rpc.Sender) Pinger { return &pingerClient{sender: s} })
	assert.True(t, Registered[Pinger]())

	supplier := func() (network.Channel, error) { return nil, network.ErrChannelClosed }
	p, err := Implement[Pinger](rpc.NewEngine(), supplier)
	require.NoError(t, err)

	client, ok := p.(*pingerClient)
	require.True(t, ok)
	assert.Equal(t, "github.com/yndnr/nodemesh-go/internal/rpc/proxy.Pinger", client.sender.Class())

	// the supplier is consulted on every call
	assert.ErrorIs(t, p.Ping(context.Background()), network.ErrChannelClosed)
}

func TestImplement_NotRegistered(t *testing.T) {
	_, err := Implement[Unregistered](rpc.NewEngine(), nil)
	assert.ErrorIs(t, err, ErrNotRegistered)
	assert.False(t, Registered[Unregistered]())
}

func TestRegister_RejectsConcreteTypes(t *testing.T) {
	assert.Panics(t, func() {
		Register(func(*rpc.Sender) *pingerClient { return nil })
	})
}
