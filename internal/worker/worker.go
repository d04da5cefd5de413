// Package worker connects a service process to its node.
package worker

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/yndnr/nodemesh-go/internal/api"
	"github.com/yndnr/nodemesh-go/internal/cluster"
	"github.com/yndnr/nodemesh-go/internal/network"
	"github.com/yndnr/nodemesh-go/internal/network/protocol"
	"github.com/yndnr/nodemesh-go/internal/rpc"
	"github.com/yndnr/nodemesh-go/internal/rpc/proxy"
	"github.com/yndnr/nodemesh-go/pkg/wire"
)

// ErrRejected is returned when the node refuses the service credentials.
var ErrRejected = errors.New("worker: node rejected the service")

// Callbacks receive lifecycle events broadcast by the node. Nil fields are
// skipped.
type Callbacks struct {
	ServiceConnected    func(api.LifecycleEvent)
	ServiceDisconnected func(api.LifecycleEvent)
	NodeServicesGone    func(api.LifecycleEvent)
}

// Config configures Connect.
type Config struct {
	// Address is the node listener, host:port.
	Address   string
	ServiceID string
	Secret    string

	Transport   network.Transport
	TLSConfig   *tls.Config
	DialTimeout time.Duration
	// Dialer replaces the network client built from the fields above.
	Dialer cluster.Dialer

	// Registry holds the handlers the node may call on this worker.
	Registry  *rpc.Registry
	Callbacks Callbacks

	Logger *slog.Logger
	Mapper *wire.Mapper
}

// Worker is an authenticated connection to a node.
type Worker struct {
	cfg     Config
	channel network.Channel
	client  *network.Client
	engine  *rpc.Engine
	cluster api.ClusterNodeProvider
	logger  *slog.Logger
	done    chan struct{}
}

// Connect dials the node, authenticates as cfg.ServiceID and returns the
// ready worker.
func Connect(ctx context.Context, cfg Config) (*Worker, error) {
	if cfg.ServiceID == "" || cfg.Secret == "" {
		return nil, fmt.Errorf("worker: service id and secret are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Mapper == nil {
		cfg.Mapper = wire.DefaultMapper()
	}
	if cfg.Registry == nil {
		cfg.Registry = rpc.NewRegistry()
	}

	w := &Worker{
		cfg:    cfg,
		logger: cfg.Logger.With("service_id", cfg.ServiceID),
		done:   make(chan struct{}),
	}
	w.engine = rpc.NewEngine(rpc.WithMapper(cfg.Mapper), rpc.WithLogger(w.logger))

	dialer := cfg.Dialer
	if dialer == nil {
		w.client = network.NewClient(network.ClientConfig{
			Transport:   cfg.Transport,
			TLSConfig:   cfg.TLSConfig,
			DialTimeout: cfg.DialTimeout,
			Channel:     network.ChannelConfig{Logger: w.logger},
		}, nil)
		dialer = w.client
	}

	ch, err := dialer.Connect(ctx, cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("worker: %w", err)
	}
	ch.OnClose(func(network.Channel) { close(w.done) })
	ch.Listeners().Swap(network.ListenerSet{
		protocol.ChannelRPC:              {rpc.NewListener(w.engine, cfg.Registry)},
		protocol.ChannelServiceLifecycle: {network.ListenerFunc(w.handleLifecycle)},
	})

	reply, err := ch.SendQuery(ctx, cluster.EncodeWorkerAuth(cluster.ProtocolVersion, cluster.WorkerAuth{
		Secret:    cfg.Secret,
		ServiceID: cfg.ServiceID,
	}))
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("worker: authorize: %w", err)
	}
	accepted, err := cluster.DecodeAuthReply(reply)
	if err != nil {
		_ = ch.Close()
		return nil, err
	}
	if !accepted {
		_ = ch.Close()
		return nil, ErrRejected
	}

	w.channel = ch
	w.cluster, err = proxy.Implement[api.ClusterNodeProvider](w.engine, rpc.StaticChannel(ch))
	if err != nil {
		_ = ch.Close()
		return nil, err
	}
	w.logger.Info("connected to node", "address", cfg.Address)
	return w, nil
}

func (w *Worker) handleLifecycle(_ network.Channel, p *protocol.Packet) error {
	ev, err := wire.Read[api.LifecycleEvent](w.cfg.Mapper, p.Body)
	if err != nil {
		return fmt.Errorf("worker: decode lifecycle event: %w", err)
	}
	var fn func(api.LifecycleEvent)
	switch ev.Kind {
	case api.ServiceConnected:
		fn = w.cfg.Callbacks.ServiceConnected
	case api.ServiceDisconnected:
		fn = w.cfg.Callbacks.ServiceDisconnected
	case api.NodeServicesGone:
		fn = w.cfg.Callbacks.NodeServicesGone
	}
	if fn != nil {
		fn(ev)
	}
	return nil
}

// Channel returns the channel to the node.
func (w *Worker) Channel() network.Channel { return w.channel }

// Engine returns the RPC engine calls to the node are built with.
func (w *Worker) Engine() *rpc.Engine { return w.engine }

// Cluster returns the node's cluster view.
func (w *Worker) Cluster() api.ClusterNodeProvider { return w.cluster }

// Done is closed once the channel to the node is closed.
func (w *Worker) Done() <-chan struct{} { return w.done }

// Close disconnects from the node.
func (w *Worker) Close() error {
	err := w.channel.Close()
	if w.client != nil {
		_ = w.client.Close()
	}
	return err
}
