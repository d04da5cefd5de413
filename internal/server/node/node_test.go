package node

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yndnr/nodemesh-go/internal/api"
	"github.com/yndnr/nodemesh-go/internal/network"
	"github.com/yndnr/nodemesh-go/internal/server/config"
	"github.com/yndnr/nodemesh-go/internal/telemetry/logger"
	"github.com/yndnr/nodemesh-go/internal/transfer"
	"github.com/yndnr/nodemesh-go/internal/worker"
	"github.com/yndnr/nodemesh-go/pkg/secret"
)

func testLogger() *slog.Logger {
	return logger.Discard()
}

func testConfig(t *testing.T, id string, peers ...config.PeerConfig) *config.ServerConfig {
	t.Helper()
	cfg := config.Default()
	cfg.Node.UniqueID = id
	cfg.Node.Listeners = []string{"127.0.0.1:0"}
	cfg.Cluster.ID = "test-mesh"
	cfg.Cluster.Peers = peers
	cfg.Cluster.SnapshotInterval = 50 * time.Millisecond
	cfg.Cluster.DisconnectCheckInterval = 50 * time.Millisecond
	cfg.Cluster.SoftDisconnect = 5 * time.Second
	cfg.Cluster.HardDisconnect = time.Minute
	cfg.Transfer.TempDir = t.TempDir()
	return cfg
}

func startNode(t *testing.T, cfg *config.ServerConfig, opts ...Option) *Node {
	t.Helper()
	n, err := New(cfg, testLogger(), opts...)
	require.NoError(t, err)
	require.NoError(t, n.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = n.Shutdown(ctx)
	})
	return n
}

func boundAddr(t *testing.T, n *Node) string {
	t.Helper()
	addrs := n.Addrs()
	require.NotEmpty(t, addrs)
	return addrs[0].String()
}

func ctxT(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// startPair starts b first, then a with b's bound address, so a dials b.
func startPair(t *testing.T, opts ...Option) (a, b *Node) {
	t.Helper()
	b = startNode(t, testConfig(t, "node-b", config.PeerConfig{
		UniqueID:  "node-a",
		Listeners: []string{"127.0.0.1:1"},
	}), opts...)
	a = startNode(t, testConfig(t, "node-a", config.PeerConfig{
		UniqueID:  "node-b",
		Listeners: []string{boundAddr(t, b)},
	}), opts...)

	require.Eventually(t, func() bool {
		na, ok := a.Provider().Node("node-b")
		if !ok || na.State() != api.NodeReady {
			return false
		}
		nb, ok := b.Provider().Node("node-a")
		return ok && nb.State() == api.NodeReady
	}, 5*time.Second, 20*time.Millisecond, "peers never became READY")
	return a, b
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig(t, "node-a")
	cfg.Cluster.ID = ""

	_, err := New(cfg, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cluster.id")
}

func TestNew_GeneratesUniqueID(t *testing.T) {
	cfg := testConfig(t, "")
	n, err := New(cfg, testLogger())
	require.NoError(t, err)

	assert.NotEmpty(t, n.UniqueID())
	assert.Empty(t, cfg.Node.UniqueID, "caller's config must not be modified")
}

func TestNode_Lifecycle(t *testing.T) {
	n, err := New(testConfig(t, "node-a"), testLogger())
	require.NoError(t, err)

	assert.False(t, n.Ready())
	assert.Nil(t, n.Provider())
	_, err = n.Cluster("node-b")
	assert.ErrorIs(t, err, ErrNotStarted)

	require.NoError(t, n.Start(context.Background()))
	assert.True(t, n.Ready())
	assert.ErrorIs(t, n.Start(context.Background()), ErrAlreadyStarted)
	assert.Equal(t, "node-a", n.Provider().UniqueID())
	assert.Nil(t, n.HTTPAddr())

	ctx := ctxT(t)
	require.NoError(t, n.Shutdown(ctx))
	require.NoError(t, n.Shutdown(ctx))
	assert.False(t, n.Ready())
	assert.ErrorIs(t, n.Start(context.Background()), ErrStopped)
}

func TestNode_StartFailsOnBusyAddress(t *testing.T) {
	first := startNode(t, testConfig(t, "node-a"))

	cfg := testConfig(t, "node-b")
	cfg.Node.Listeners = []string{boundAddr(t, first)}
	n, err := New(cfg, testLogger())
	require.NoError(t, err)

	require.Error(t, n.Start(context.Background()))
	assert.False(t, n.Ready())
	require.NoError(t, n.Shutdown(ctxT(t)))
}

func TestNode_HTTP(t *testing.T) {
	cfg := testConfig(t, "node-a")
	cfg.Metrics.Enabled = true
	cfg.Metrics.Addr = "127.0.0.1:0"
	n := startNode(t, cfg)

	require.NotNil(t, n.HTTPAddr())
	base := "http://" + n.HTTPAddr().String()

	get := func(path string) (int, string) {
		resp, err := http.Get(base + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, string(body)
	}

	code, _ := get("/ready")
	assert.Equal(t, http.StatusOK, code)

	code, body := get("/cluster/nodes")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"unique_id":"node-a"`)

	code, body = get(config.DefaultMetricsPath)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "nodemesh_network_channels_open")
	assert.Contains(t, body, "go_goroutines")
}

func TestNode_PeersConnect(t *testing.T) {
	a, b := startPair(t)

	assert.Equal(t, a.Provider().Head().UniqueID, b.Provider().Head().UniqueID, "both sides elect the same head")

	remote, err := a.Cluster("node-b")
	require.NoError(t, err)
	nodes, err := remote.Nodes(ctxT(t))
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, "node-b", nodes[0].UniqueID)
	assert.Equal(t, "node-a", nodes[1].UniqueID)
	assert.Equal(t, api.NodeReady, nodes[1].State)

	_, err = a.Cluster("node-z")
	assert.Error(t, err)
}

func TestNode_SendCommand(t *testing.T) {
	commands := make(chan string, 1)
	a, _ := startPair(t, WithCommandHandler(func(c string) { commands <- c }))

	remote, err := a.Cluster("node-b")
	require.NoError(t, err)
	require.NoError(t, remote.SendCommand(ctxT(t), "  drain  "))

	select {
	case got := <-commands:
		assert.Equal(t, "drain", got)
	case <-time.After(5 * time.Second):
		t.Fatal("command never reached the peer")
	}
}

func TestNode_SendChunked(t *testing.T) {
	a, b := startPair(t)

	received := make(chan []byte, 1)
	require.NoError(t, b.TransferChannels().Register("files", func(_ transfer.Session, data io.ReadCloser) {
		defer data.Close()
		raw, _ := io.ReadAll(data)
		received <- raw
	}))

	payload := bytes.Repeat([]byte("nodemesh"), 300_000)
	status, err := a.Provider().SendChunked(ctxT(t), "files", nil, bytes.NewReader(payload)).Get(ctxT(t))
	require.NoError(t, err)
	assert.Equal(t, transfer.StatusSuccess, status)

	select {
	case got := <-received:
		assert.Equal(t, payload, got)
	case <-time.After(5 * time.Second):
		t.Fatal("transfer never completed on the receiver")
	}
}

func TestNode_Worker(t *testing.T) {
	plain, err := secret.Generate()
	require.NoError(t, err)
	hash, err := secret.Hash(plain)
	require.NoError(t, err)

	cfg := testConfig(t, "node-a")
	cfg.Cluster.Services = []config.ServiceConfig{{UniqueID: "render", Name: "render", SecretHash: hash}}
	n := startNode(t, cfg)

	w, err := worker.Connect(ctxT(t), worker.Config{
		Address:   boundAddr(t, n),
		ServiceID: "render",
		Secret:    plain,
		Transport: network.TransportTCP,
		Logger:    testLogger(),
	})
	require.NoError(t, err)
	defer w.Close()

	nodes, err := w.Cluster().Nodes(ctxT(t))
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "node-a", nodes[0].UniqueID)

	require.Eventually(t, func() bool {
		info, ok := n.Provider().Service("render")
		return ok && info.Connected
	}, 5*time.Second, 20*time.Millisecond)

	_, err = worker.Connect(ctxT(t), worker.Config{
		Address:   boundAddr(t, n),
		ServiceID: "render",
		Secret:    "nmcs_wrong",
		Transport: network.TransportTCP,
		Logger:    testLogger(),
	})
	assert.ErrorIs(t, err, worker.ErrRejected)
}

func TestNode_ApplyConfig(t *testing.T) {
	prev := logger.Level()
	t.Cleanup(func() { _ = logger.SetLevel(prev) })

	n := startNode(t, testConfig(t, "node-a"))

	next := testConfig(t, "node-a")
	next.Cluster.SoftDisconnect = 10 * time.Second
	next.Cluster.HardDisconnect = 2 * time.Minute
	next.RPC.DefaultTimeout = 7 * time.Second
	next.Log.Level = "debug"
	require.NoError(t, n.ApplyConfig(next))

	got := n.Config()
	assert.Equal(t, 10*time.Second, got.Cluster.SoftDisconnect)
	assert.Equal(t, 2*time.Minute, got.Cluster.HardDisconnect)
	assert.Equal(t, 7*time.Second, n.Engine().DefaultTimeout())
	assert.Equal(t, "debug", logger.Level())

	bad := testConfig(t, "node-a")
	bad.Log.Level = "loud"
	require.Error(t, n.ApplyConfig(bad))
	assert.Equal(t, 7*time.Second, n.Engine().DefaultTimeout())
}
