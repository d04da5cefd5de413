package node

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/yndnr/nodemesh-go/internal/api"
	"github.com/yndnr/nodemesh-go/internal/cluster"
	"github.com/yndnr/nodemesh-go/internal/infra/buildinfo"
	"github.com/yndnr/nodemesh-go/internal/network"
	"github.com/yndnr/nodemesh-go/internal/network/protocol"
	"github.com/yndnr/nodemesh-go/internal/rpc"
	"github.com/yndnr/nodemesh-go/internal/rpc/proxy"
	"github.com/yndnr/nodemesh-go/internal/server/config"
	"github.com/yndnr/nodemesh-go/internal/server/httpserver"
	"github.com/yndnr/nodemesh-go/internal/telemetry/logger"
	"github.com/yndnr/nodemesh-go/internal/telemetry/metric"
	"github.com/yndnr/nodemesh-go/internal/transfer"
)

var (
	// ErrNotStarted is returned by operations that need a started node.
	ErrNotStarted = errors.New("node: not started")
	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("node: already started")
	// ErrStopped is returned by Start after Shutdown.
	ErrStopped = errors.New("node: stopped")
)

// Option configures a Node.
type Option func(*Node)

// WithCommandHandler receives commands announced through SendCommand.
func WithCommandHandler(fn func(command string)) Option {
	return func(n *Node) { n.onCommand = fn }
}

// WithElection replaces the earliest startup head election.
func WithElection(e cluster.Election) Option {
	return func(n *Node) { n.election = e }
}

// Node is one running cluster member.
type Node struct {
	logger  *slog.Logger
	metrics *metric.Registry

	cfgMu sync.RWMutex
	cfg   config.ServerConfig

	tlsBundle *network.TLSBundle
	server    *network.Server
	client    *network.Client
	engine    *rpc.Engine
	handlers  *rpc.Registry
	channels  *transfer.Registry
	inbound   *transfer.Listener
	sender    *transfer.Sender

	onCommand func(string)
	election  cluster.Election

	provider  atomic.Pointer[cluster.Provider]
	discovery *cluster.Discovery
	http      *httpserver.Server

	started  atomic.Bool
	stopped  atomic.Bool
	ready    chan struct{}
	closing  chan struct{}
	cancel   context.CancelFunc
	runDone  chan struct{}
	stopOnce sync.Once
	stopErr  error
}

// New builds a node for cfg. Nothing listens until Start.
func New(cfg *config.ServerConfig, log *slog.Logger, opts ...Option) (*Node, error) {
	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("node: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	local := *cfg
	config.EnsureNodeID(&local, log)

	n := &Node{
		logger:  log.With("node_id", local.Node.UniqueID),
		metrics: metric.NewRegistry(),
		cfg:     local,
		ready:   make(chan struct{}),
		closing: make(chan struct{}),
		runDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(n)
	}

	netCfg, err := config.ToNetworkConfig(&local)
	if err != nil {
		return nil, fmt.Errorf("node: %w", err)
	}
	netCfg.Channel.Logger = logger.Component(n.logger, "network")
	netCfg.Channel.Metrics = n.metrics

	n.tlsBundle, err = network.BuildTLS(netCfg.TLS, logger.Component(n.logger, "tls"))
	if err != nil {
		return nil, fmt.Errorf("node: %w", err)
	}
	var serverTLS, clientTLS *tls.Config
	if n.tlsBundle != nil {
		serverTLS, clientTLS = n.tlsBundle.Server, n.tlsBundle.Client
	}

	n.engine = rpc.NewEngine(
		rpc.WithDefaultTimeout(local.RPC.DefaultTimeout),
		rpc.WithLogger(logger.Component(n.logger, "rpc")),
		rpc.WithMetrics(n.metrics),
	)
	n.handlers = rpc.NewRegistry()

	transferLog := logger.Component(n.logger, "transfer")
	n.channels = transfer.NewRegistry()
	n.inbound = transfer.NewListener(n.channels,
		transfer.WithTempDir(local.Transfer.TempDir),
		transfer.WithLogger(transferLog),
		transfer.WithMetrics(n.metrics),
	)
	n.sender = transfer.NewSender(transfer.SenderConfig{
		RateLimit: local.Transfer.RateLimit,
		Ack:       local.Transfer.Ack,
		Logger:    transferLog,
		Metrics:   n.metrics,
	})

	n.server = network.NewServer(network.ServerConfig{
		Transport: netCfg.Transport,
		Addresses: netCfg.Listeners,
		TLSConfig: serverTLS,
		ReusePort: netCfg.ReusePort,
		Channel:   netCfg.Channel,
	}, providerHandler{n: n})
	n.client = network.NewClient(network.ClientConfig{
		Transport:   netCfg.Transport,
		TLSConfig:   clientTLS,
		DialTimeout: netCfg.DialTimeout,
		Channel:     netCfg.Channel,
	}, providerHandler{n: n, outbound: true})

	return n, nil
}

// Start binds the listeners, creates the membership state and starts
// dialing peers. The node runs until Shutdown or until ctx ends.
func (n *Node) Start(ctx context.Context) error {
	if n.stopped.Load() {
		return ErrStopped
	}
	if !n.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	runCtx, cancel := context.WithCancel(ctx)
	n.cancel = cancel

	if err := n.start(runCtx); err != nil {
		cancel()
		_ = n.teardown(context.Background())
		return err
	}
	return nil
}

func (n *Node) start(ctx context.Context) error {
	if err := n.server.Start(ctx); err != nil {
		return fmt.Errorf("node: %w", err)
	}
	bound := make([]network.HostAndPort, 0, len(n.server.Addrs()))
	for _, a := range n.server.Addrs() {
		bound = append(bound, network.HostAndPortOf(a))
	}

	cfg := n.Config()
	clusterCfg, err := config.ToClusterConfig(&cfg, bound, n.logger)
	if err != nil {
		return fmt.Errorf("node: %w", err)
	}
	clusterCfg.Version = buildinfo.Version

	provider, err := cluster.NewProvider(clusterCfg,
		cluster.WithLogger(logger.Component(n.logger, "cluster")),
		cluster.WithMetrics(n.metrics),
		cluster.WithElection(n.election),
		cluster.WithMapper(n.engine.Mapper()),
		cluster.WithDialer(n.client),
		cluster.WithTransferSender(n.sender),
		cluster.WithCommandHandler(n.onCommand),
	)
	if err != nil {
		return fmt.Errorf("node: %w", err)
	}

	service := cluster.NewAPIService(provider)
	h, err := rpc.HandlerFor[api.ClusterNodeProvider](service)
	if err != nil {
		return fmt.Errorf("node: %w", err)
	}
	if err := n.handlers.Register(h); err != nil {
		return fmt.Errorf("node: %w", err)
	}

	listener := rpc.NewListener(n.engine, n.handlers).WithContext(ctx)
	set := network.ListenerSet{
		protocol.ChannelRPC:             {listener},
		protocol.ChannelChunkedTransfer: {n.inbound},
	}
	provider.SetListeners(set, set)
	n.provider.Store(provider)
	close(n.ready)

	go func() {
		defer close(n.runDone)
		if err := provider.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			n.logger.Error("cluster loop stopped", "error", err)
		}
	}()

	if cfg.Cluster.Gossip.Enabled {
		d, err := cluster.NewDiscovery(provider)
		if err != nil {
			return fmt.Errorf("node: %w", err)
		}
		if err := d.Start(config.ToDiscoveryConfig(&cfg)); err != nil {
			return fmt.Errorf("node: %w", err)
		}
		n.discovery = d
	}

	if cfg.Metrics.Enabled {
		router := httpserver.NewRouter(httpserver.RouterConfig{
			Metrics:     n.metrics.Handler(),
			MetricsPath: cfg.Metrics.Path,
			Cluster:     service,
			Ready:       n.Ready,
			AllowList:   cfg.Metrics.AllowList,
			Logger:      logger.Component(n.logger, "http"),
		})
		n.http = httpserver.New(cfg.Metrics.Addr, router, logger.Component(n.logger, "http"))
		if err := n.http.Start(); err != nil {
			n.http = nil
			return fmt.Errorf("node: %w", err)
		}
	}

	n.logger.Info("node started",
		"cluster_id", clusterCfg.ClusterID,
		"listeners", clusterCfg.Listeners,
		"peers", len(clusterCfg.Peers),
		"services", len(clusterCfg.Services),
		"gossip", n.discovery != nil,
		"http", n.http != nil)
	return nil
}

// Shutdown stops the node. It is safe to call more than once; later calls
// return the first result.
func (n *Node) Shutdown(ctx context.Context) error {
	n.stopOnce.Do(func() {
		n.stopped.Store(true)
		n.stopErr = n.teardown(ctx)
		n.logger.Info("node stopped")
	})
	return n.stopErr
}

func (n *Node) teardown(ctx context.Context) error {
	select {
	case <-n.closing:
	default:
		close(n.closing)
	}

	var errs []error
	if n.http != nil {
		if err := n.http.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http: %w", err))
		}
	}
	if n.discovery != nil {
		if err := n.discovery.Shutdown(); err != nil {
			errs = append(errs, fmt.Errorf("discovery: %w", err))
		}
	}
	if n.cancel != nil {
		n.cancel()
	}
	if p := n.provider.Load(); p != nil {
		p.Close()
		select {
		case <-n.runDone:
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("cluster loop: %w", ctx.Err()))
		}
	}
	if err := n.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("server: %w", err))
	}
	if err := n.client.Close(); err != nil {
		errs = append(errs, fmt.Errorf("client: %w", err))
	}
	n.inbound.Close()
	n.tlsBundle.Close()
	return errors.Join(errs...)
}

// ApplyConfig applies the settings that can change at runtime: disconnect
// thresholds, the default RPC timeout and the log level. Other changes
// need a restart and are ignored.
func (n *Node) ApplyConfig(cfg *config.ServerConfig) error {
	if err := config.Verify(cfg); err != nil {
		return fmt.Errorf("node: %w", err)
	}
	if err := logger.SetLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("node: %w", err)
	}
	n.engine.SetDefaultTimeout(cfg.RPC.DefaultTimeout)
	if p := n.provider.Load(); p != nil {
		p.SetThresholds(cfg.Cluster.SoftDisconnect, cfg.Cluster.HardDisconnect)
	}

	n.cfgMu.Lock()
	n.cfg.Cluster.SoftDisconnect = cfg.Cluster.SoftDisconnect
	n.cfg.Cluster.HardDisconnect = cfg.Cluster.HardDisconnect
	n.cfg.RPC.DefaultTimeout = cfg.RPC.DefaultTimeout
	n.cfg.Log.Level = cfg.Log.Level
	n.cfgMu.Unlock()

	n.logger.Info("configuration applied",
		"soft_disconnect", cfg.Cluster.SoftDisconnect,
		"hard_disconnect", cfg.Cluster.HardDisconnect,
		"rpc_timeout", cfg.RPC.DefaultTimeout,
		"log_level", cfg.Log.Level)
	return nil
}

// Config returns a copy of the configuration in effect.
func (n *Node) Config() config.ServerConfig {
	n.cfgMu.RLock()
	defer n.cfgMu.RUnlock()
	return n.cfg
}

// UniqueID returns the local node id.
func (n *Node) UniqueID() string {
	return n.Config().Node.UniqueID
}

// Ready reports whether the node is started and not shutting down.
func (n *Node) Ready() bool {
	return n.provider.Load() != nil && !n.stopped.Load()
}

// Provider returns the membership state, or nil before Start.
func (n *Node) Provider() *cluster.Provider { return n.provider.Load() }

// Engine returns the RPC engine.
func (n *Node) Engine() *rpc.Engine { return n.engine }

// Handlers returns the registry peers and services can invoke. Handlers
// may be added at any time.
func (n *Node) Handlers() *rpc.Registry { return n.handlers }

// TransferChannels returns the registry of chunked transfer completion
// callbacks.
func (n *Node) TransferChannels() *transfer.Registry { return n.channels }

// Metrics returns the node metrics.
func (n *Node) Metrics() *metric.Registry { return n.metrics }

// Addrs returns the bound channel listener addresses.
func (n *Node) Addrs() []net.Addr { return n.server.Addrs() }

// HTTPAddr returns the bound HTTP address, or nil when it is disabled.
func (n *Node) HTTPAddr() net.Addr {
	if n.http == nil {
		return nil
	}
	return n.http.Addr()
}

// Cluster returns an RPC client for the ClusterNodeProvider of the peer
// bound to uniqueID.
func (n *Node) Cluster(uniqueID string) (api.ClusterNodeProvider, error) {
	p := n.provider.Load()
	if p == nil {
		return nil, ErrNotStarted
	}
	peer, ok := p.Node(uniqueID)
	if !ok {
		return nil, cluster.ErrNodeNotFound.WithDetails("%s", uniqueID)
	}
	return proxy.Implement[api.ClusterNodeProvider](n.engine, func() (network.Channel, error) {
		if ch := peer.Channel(); ch != nil && !ch.Closed() {
			return ch, nil
		}
		return nil, network.ErrChannelClosed
	})
}
