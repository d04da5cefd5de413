package cluster

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yndnr/nodemesh-go/internal/network"
)

// fakeClock is shared by the providers of one test.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// pipeDialer connects to providers in the same process. Addresses are the
// configured listener strings.
type pipeDialer struct {
	mu       sync.Mutex
	self     *Provider
	peers    map[string]*Provider
	channels []network.Channel
}

func (d *pipeDialer) Connect(_ context.Context, addr string) (network.Channel, error) {
	d.mu.Lock()
	acceptor, self := d.peers[addr], d.self
	d.mu.Unlock()
	if acceptor == nil {
		return nil, fmt.Errorf("dial %s: connection refused", addr)
	}
	server, client, err := network.Pipe(network.ChannelConfig{QueryTimeout: 2 * time.Second}, acceptor, self.ClientHandler())
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.channels = append(d.channels, server, client)
	d.mu.Unlock()
	return client, nil
}

func (d *pipeDialer) opened() []network.Channel {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]network.Channel(nil), d.channels...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func addr(port int32) network.HostAndPort {
	return network.HostAndPort{Host: "127.0.0.1", Port: port}
}

// meshNode is a provider with its dialer.
type meshNode struct {
	*Provider
	dialer *pipeDialer
}

// newMesh creates one provider per id, each configured with all others as
// peers. Startups follow the order of ids.
func newMesh(t *testing.T, clk *fakeClock, mutate func(*Config), ids ...string) map[string]*meshNode {
	t.Helper()
	ports := make(map[string]int32, len(ids))
	for i, id := range ids {
		ports[id] = int32(7001 + i)
	}

	mesh := make(map[string]*meshNode, len(ids))
	for _, id := range ids {
		cfg := Config{
			ClusterID:      "mesh",
			UniqueID:       id,
			Listeners:      []network.HostAndPort{addr(ports[id])},
			SoftDisconnect: time.Second,
			HardDisconnect: time.Minute,
		}
		for _, peer := range ids {
			if peer != id {
				cfg.Peers = append(cfg.Peers, PeerConfig{UniqueID: peer, Listeners: []network.HostAndPort{addr(ports[peer])}})
			}
		}
		if mutate != nil {
			mutate(&cfg)
		}
		d := &pipeDialer{peers: make(map[string]*Provider)}
		p, err := NewProvider(cfg, WithLogger(testLogger()), WithClock(clk.Now), WithDialer(d))
		require.NoError(t, err)
		d.self = p
		mesh[id] = &meshNode{Provider: p, dialer: d}
		clk.Advance(time.Second)
	}
	for _, n := range mesh {
		for id, other := range mesh {
			n.dialer.peers[addr(ports[id]).String()] = other.Provider
		}
	}
	t.Cleanup(func() {
		for _, n := range mesh {
			n.Close()
			for _, ch := range n.dialer.opened() {
				_ = ch.Close()
			}
		}
	})
	return mesh
}

func ctxT(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func mustNode(t *testing.T, p *Provider, id string) *NodeServer {
	t.Helper()
	n, ok := p.Node(id)
	require.True(t, ok, "node %s not configured", id)
	return n
}
