package cluster

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/yndnr/nodemesh-go/internal/api"
	"github.com/yndnr/nodemesh-go/internal/network"
	"github.com/yndnr/nodemesh-go/internal/network/protocol"
	"github.com/yndnr/nodemesh-go/internal/transfer"
	"github.com/yndnr/nodemesh-go/pkg/cmap"
	"github.com/yndnr/nodemesh-go/pkg/task"
	"github.com/yndnr/nodemesh-go/pkg/wire"
)

// DefaultDialTimeout bounds one reconnect attempt.
const DefaultDialTimeout = 10 * time.Second

// Dialer opens outbound channels. *network.Client implements it.
type Dialer interface {
	Connect(ctx context.Context, addr string) (network.Channel, error)
}

// binding ties an authenticated channel to a peer or a local service.
type binding struct {
	node    *NodeServer
	service string
}

// Option configures a Provider.
type Option func(*Provider)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithMetrics(m Metrics) Option {
	return func(p *Provider) {
		if m != nil {
			p.metrics = m
		}
	}
}

// WithElection replaces EarliestStartup.
func WithElection(e Election) Option {
	return func(p *Provider) {
		if e != nil {
			p.election = e
		}
	}
}

// WithMapper sets the mapper snapshots and auth descriptors are encoded
// with.
func WithMapper(m *wire.Mapper) Option {
	return func(p *Provider) {
		if m != nil {
			p.mapper = m
		}
	}
}

// WithDialer enables outbound connections.
func WithDialer(d Dialer) Option {
	return func(p *Provider) { p.dialer = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) {
		if now != nil {
			p.now = now
		}
	}
}

// WithTransferSender sets the sender used by SendChunked.
func WithTransferSender(s *transfer.Sender) Option {
	return func(p *Provider) {
		if s != nil {
			p.transfer = s
		}
	}
}

// WithCommandHandler receives commands announced through SendCommand.
func WithCommandHandler(fn func(command string)) Option {
	return func(p *Provider) { p.onCommand = fn }
}

// Provider owns the membership state of the local node.
type Provider struct {
	cfg        Config
	logger     *slog.Logger
	metrics    Metrics
	election   Election
	mapper     *wire.Mapper
	dialer     Dialer
	transfer   *transfer.Sender
	constraint *semver.Constraints
	now        func() time.Time
	onCommand  func(string)

	startup int64
	nodes   map[string]*NodeServer
	order   []*NodeServer

	services *cmap.Map[string, *serviceRecord]
	bindings *cmap.Map[string, binding]

	thresholdsMu sync.RWMutex
	softAfter    time.Duration
	hardAfter    time.Duration

	listenersMu      sync.RWMutex
	peerListeners    network.ListenerSet
	serviceListeners network.ListenerSet

	headMu sync.RWMutex
	head   api.NodeInfo

	subsMu  sync.RWMutex
	subs    map[int]func(api.LifecycleEvent)
	nextSub int

	draining bool
	wg       sync.WaitGroup
	closing  chan struct{}
	once     sync.Once
}

// NewProvider creates the membership state for cfg. Every configured peer
// starts CONNECTING.
func NewProvider(cfg Config, opts ...Option) (*Provider, error) {
	cfg = cfg.withDefaults()
	if cfg.UniqueID == "" {
		return nil, fmt.Errorf("cluster: %w: empty unique id", errNotConfigured)
	}
	constraint, err := semver.NewConstraint(cfg.ProtocolConstraint)
	if err != nil {
		return nil, fmt.Errorf("cluster: protocol constraint %q: %w", cfg.ProtocolConstraint, err)
	}

	p := &Provider{
		cfg:        cfg,
		logger:     slog.Default(),
		metrics:    noopMetrics{},
		election:   EarliestStartup{},
		mapper:     wire.DefaultMapper(),
		constraint: constraint,
		now:        time.Now,
		nodes:      make(map[string]*NodeServer, len(cfg.Peers)),
		services:   cmap.New[string, *serviceRecord](),
		bindings:   cmap.New[string, binding](),
		softAfter:  cfg.SoftDisconnect,
		hardAfter:  cfg.HardDisconnect,
		subs:       make(map[int]func(api.LifecycleEvent)),
		draining:   cfg.Draining,
		closing:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.transfer == nil {
		p.transfer = transfer.NewSender(transfer.SenderConfig{Logger: p.logger})
	}
	p.logger = p.logger.With("node_id", cfg.UniqueID)
	p.startup = p.now().UnixMilli()

	now := p.now()
	for _, peer := range cfg.Peers {
		if peer.UniqueID == cfg.UniqueID {
			continue
		}
		if _, dup := p.nodes[peer.UniqueID]; dup {
			return nil, fmt.Errorf("cluster: peer %s configured twice", peer.UniqueID)
		}
		n := NewNodeServer(peer.UniqueID, peer.Listeners, now)
		p.nodes[peer.UniqueID] = n
		p.order = append(p.order, n)
	}
	sort.Slice(p.order, func(i, j int) bool { return p.order[i].UniqueID() < p.order[j].UniqueID() })

	for _, s := range cfg.Services {
		if err := p.AddService(s); err != nil {
			return nil, err
		}
	}
	p.head = p.LocalInfo()
	p.SetListeners(nil, nil)
	return p, nil
}

// UniqueID returns the local node id.
func (p *Provider) UniqueID() string { return p.cfg.UniqueID }

// ClusterID returns the configured cluster id.
func (p *Provider) ClusterID() string { return p.cfg.ClusterID }

// Startup returns the local start time in unix milliseconds.
func (p *Provider) Startup() int64 { return p.startup }

// Mapper returns the mapper membership packets are encoded with.
func (p *Provider) Mapper() *wire.Mapper { return p.mapper }

// LocalInfo describes the local node.
func (p *Provider) LocalInfo() api.NodeInfo {
	return api.NodeInfo{
		UniqueID:  p.cfg.UniqueID,
		Listeners: p.cfg.Listeners,
		Startup:   p.startup,
		Version:   p.cfg.Version,
		State:     api.NodeReady,
	}
}

// Nodes returns the configured peers ordered by unique id.
func (p *Provider) Nodes() []*NodeServer { return p.order }

// Node returns the peer with uniqueID.
func (p *Provider) Node(uniqueID string) (*NodeServer, bool) {
	n, ok := p.nodes[uniqueID]
	return n, ok
}

// ReadyNodes returns the READY peers.
func (p *Provider) ReadyNodes() []*NodeServer {
	var out []*NodeServer
	for _, n := range p.order {
		if n.State() == api.NodeReady {
			out = append(out, n)
		}
	}
	return out
}

// Head returns the elected head node.
func (p *Provider) Head() api.NodeInfo {
	p.headMu.RLock()
	defer p.headMu.RUnlock()
	return p.head
}

// IsHead reports whether the local node is the head.
func (p *Provider) IsHead() bool {
	return p.Head().UniqueID == p.cfg.UniqueID
}

// SetThresholds changes the disconnect thresholds at runtime.
func (p *Provider) SetThresholds(soft, hard time.Duration) {
	p.thresholdsMu.Lock()
	if soft > 0 {
		p.softAfter = soft
	}
	if hard >= 0 {
		p.hardAfter = hard
	}
	p.thresholdsMu.Unlock()
}

func (p *Provider) thresholds() (time.Duration, time.Duration) {
	p.thresholdsMu.RLock()
	defer p.thresholdsMu.RUnlock()
	return p.softAfter, p.hardAfter
}

// SetListeners sets the listener sets installed once a channel has
// authenticated as a peer or as a service. The snapshot listener is always
// part of the peer set.
func (p *Provider) SetListeners(peer, service network.ListenerSet) {
	full := make(network.ListenerSet, len(peer)+1)
	for id, ls := range peer {
		full[id] = append([]network.Listener(nil), ls...)
	}
	full[protocol.ChannelNodeSnapshot] = append(full[protocol.ChannelNodeSnapshot], network.ListenerFunc(p.handleSnapshot))

	svc := make(network.ListenerSet, len(service))
	for id, ls := range service {
		svc[id] = append([]network.Listener(nil), ls...)
	}

	p.listenersMu.Lock()
	p.peerListeners = full
	p.serviceListeners = svc
	p.listenersMu.Unlock()
}

func (p *Provider) peerSet() network.ListenerSet {
	p.listenersMu.RLock()
	defer p.listenersMu.RUnlock()
	return p.peerListeners
}

func (p *Provider) serviceSet() network.ListenerSet {
	p.listenersMu.RLock()
	defer p.listenersMu.RUnlock()
	return p.serviceListeners
}

// HandleChannelInitialize installs the auth-only listener set on accepted
// channels.
func (p *Provider) HandleChannelInitialize(ch network.Channel) error {
	ch.Listeners().Swap(network.ListenerSet{
		protocol.ChannelAuthorization: {network.ListenerFunc(p.handleAuth)},
	})
	return nil
}

// HandleChannelClose handles the loss of an accepted channel.
func (p *Provider) HandleChannelClose(ch network.Channel) { p.channelLost(ch) }

// ClientHandler is the handler for channels the local node dials.
func (p *Provider) ClientHandler() network.ChannelHandler {
	return network.HandlerFuncs{Closed: p.channelLost}
}

func (p *Provider) channelLost(ch network.Channel) {
	b, ok := p.bindings.Pop(ch.ID())
	if !ok {
		return
	}
	if b.node != nil {
		p.nodeLost(b.node, ch)
		return
	}
	p.serviceLost(b.service, ch)
}

// nodeLost soft disconnects a READY peer whose channel closed.
func (p *Provider) nodeLost(n *NodeServer, ch network.Channel) {
	if n.Channel() != ch {
		return
	}
	if _, err := n.disconnect(p.now(), p.cfg.QueueTimeout); err != nil {
		return
	}
	p.logger.Info("peer channel lost, queueing outbound packets", "peer", n.UniqueID())
	p.metrics.NodeState(n.UniqueID(), api.NodeDisconnected)
	p.servicesGone(n)
	p.reelect()
}

// CheckDisconnects runs one health tracking pass. It is idempotent: a late
// or skipped pass only delays detection.
func (p *Provider) CheckDisconnects(now time.Time) {
	soft, hard := p.thresholds()
	for _, n := range p.order {
		switch n.State() {
		case api.NodeReady:
			if now.Sub(n.LastSnapshotTime()) > soft {
				p.softDisconnect(n, now)
			}
		case api.NodeDisconnected:
			if now.Sub(n.StateChanged()) > hard {
				p.hardClose(n, now)
			} else if earlier(p.startup, p.cfg.UniqueID, n.Startup(), n.UniqueID()) {
				p.dialAsync(n)
			}
		case api.NodeConnecting:
			p.dialAsync(n)
		}
	}
}

func (p *Provider) softDisconnect(n *NodeServer, now time.Time) {
	wasHead := p.Head().UniqueID == n.UniqueID()
	lost, err := n.disconnect(now, p.cfg.QueueTimeout)
	if err != nil {
		return
	}
	if lost != nil {
		p.bindings.Delete(lost.ID())
		_ = lost.Close()
	}
	p.logger.Info("peer soft disconnected",
		"peer", n.UniqueID(),
		"last_snapshot", n.LastSnapshotTime())
	p.metrics.NodeState(n.UniqueID(), api.NodeDisconnected)
	if wasHead {
		p.reelect()
	}
}

func (p *Provider) hardClose(n *NodeServer, now time.Time) {
	if err := n.close(now); err != nil {
		return
	}
	p.logger.Warn("peer hard closed", "peer", n.UniqueID(), "disconnected_since", n.StateChanged())
	p.metrics.NodeState(n.UniqueID(), api.NodeClosed)
	p.metrics.HardClosed(n.UniqueID())
	p.servicesGone(n)
	p.reelect()
}

// acceptPeer binds an authenticated peer channel.
func (p *Provider) acceptPeer(ch network.Channel, info api.NodeInfo, startup int64) (func(), error) {
	n, ok := p.nodes[info.UniqueID]
	if !ok {
		return nil, ErrNodeNotFound.WithDetails("%s", info.UniqueID)
	}
	if n.live() {
		return nil, ErrAlreadyBound.WithDetails("%s", info.UniqueID)
	}
	// When both sides dial at once the channel opened by the earlier node
	// wins.
	if n.dialing.Load() && earlier(p.startup, p.cfg.UniqueID, startup, info.UniqueID) {
		return nil, ErrAlreadyBound.WithDetails("%s: outbound connect in progress", info.UniqueID)
	}
	if len(info.Listeners) > 0 {
		n.SetListeners(info.Listeners)
	}
	ch.Listeners().Swap(p.peerSet())
	after, err := p.bindNode(n, ch, startup)
	if err != nil {
		return nil, err
	}
	return after, nil
}

// bindNode binds ch to n and returns the follow-up to run once the peer
// knows it is accepted.
func (p *Provider) bindNode(n *NodeServer, ch network.Channel, startup int64) (func(), error) {
	p.bindings.Set(ch.ID(), binding{node: n})
	flushed, prev, err := n.bind(ch, p.now(), startup)
	if err != nil {
		p.bindings.Delete(ch.ID())
		return nil, err
	}
	p.logger.Info("peer ready", "peer", n.UniqueID(), "previous_state", prev.String(), "flushed", flushed)
	p.metrics.NodeState(n.UniqueID(), api.NodeReady)
	if prev == api.NodeDisconnected {
		p.metrics.Reconnected(n.UniqueID())
	}

	return func() {
		if ch.Closed() {
			p.nodeLost(n, ch)
			return
		}
		p.reelect()
		p.sendSnapshot(n)
	}, nil
}

func (p *Provider) reelect() {
	candidates := []api.NodeInfo{p.LocalInfo()}
	for _, n := range p.ReadyNodes() {
		candidates = append(candidates, n.Info())
	}
	head := p.election.Elect(candidates)

	p.headMu.Lock()
	prev := p.head
	p.head = head
	p.headMu.Unlock()

	if prev.UniqueID != head.UniqueID {
		p.logger.Info("head node elected", "head", head.UniqueID, "previous", prev.UniqueID)
	}
}

// LocalSnapshot builds the snapshot broadcast to peers.
func (p *Provider) LocalSnapshot() api.NodeSnapshot {
	return api.NodeSnapshot{
		UniqueID:  p.cfg.UniqueID,
		Listeners: p.cfg.Listeners,
		Startup:   p.startup,
		Creation:  p.now().UnixMilli(),
		Services:  p.Services(),
		Draining:  p.draining,
		Version:   p.cfg.Version,
	}
}

func (p *Provider) snapshotPacket() (*protocol.Packet, error) {
	b := wire.NewBuffer()
	if err := p.mapper.WriteObject(b, p.LocalSnapshot()); err != nil {
		return nil, err
	}
	return protocol.New(protocol.ChannelNodeSnapshot, b), nil
}

// BroadcastSnapshot sends the local snapshot to every READY peer.
func (p *Provider) BroadcastSnapshot() {
	for _, n := range p.ReadyNodes() {
		p.sendSnapshot(n)
	}
}

func (p *Provider) sendSnapshot(n *NodeServer) {
	pk, err := p.snapshotPacket()
	if err != nil {
		p.logger.Error("failed to encode snapshot", "error", err)
		return
	}
	ch := n.Channel()
	if ch == nil {
		return
	}
	if err := ch.Send(pk); err != nil {
		p.logger.Debug("failed to send snapshot", "peer", n.UniqueID(), "error", err)
	}
}

func (p *Provider) handleSnapshot(ch network.Channel, pk *protocol.Packet) error {
	snap, err := wire.Read[api.NodeSnapshot](p.mapper, pk.Body)
	if err != nil {
		return fmt.Errorf("cluster: decode snapshot: %w", err)
	}
	b, ok := p.bindings.Get(ch.ID())
	if !ok || b.node == nil {
		return nil
	}
	if b.node.UniqueID() != snap.UniqueID {
		return fmt.Errorf("cluster: snapshot of %s on the channel of %s", snap.UniqueID, b.node.UniqueID())
	}
	if b.node.updateSnapshot(snap, p.now()) {
		p.reelect()
	}
	return nil
}

// Subscribe registers fn for lifecycle events. The returned function
// removes it.
func (p *Provider) Subscribe(fn func(api.LifecycleEvent)) func() {
	p.subsMu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn
	p.subsMu.Unlock()
	return func() {
		p.subsMu.Lock()
		delete(p.subs, id)
		p.subsMu.Unlock()
	}
}

// publish delivers ev to local subscribers and connected services.
func (p *Provider) publish(ev api.LifecycleEvent) {
	p.subsMu.RLock()
	subs := make([]func(api.LifecycleEvent), 0, len(p.subs))
	for _, fn := range p.subs {
		subs = append(subs, fn)
	}
	p.subsMu.RUnlock()
	for _, fn := range subs {
		fn(ev)
	}

	b := wire.NewBuffer()
	if err := p.mapper.WriteObject(b, ev); err != nil {
		p.logger.Error("failed to encode lifecycle event", "error", err)
		return
	}
	for _, ch := range p.connectedServiceChannels() {
		if err := ch.Send(protocol.New(protocol.ChannelServiceLifecycle, b)); err != nil {
			p.logger.Debug("failed to send lifecycle event", "channel_id", ch.ID(), "error", err)
		}
	}
}

// servicesGone announces that the services hosted by n are unreachable.
func (p *Provider) servicesGone(n *NodeServer) {
	services := n.services()
	if len(services) == 0 {
		return
	}
	for i := range services {
		services[i].Connected = false
	}
	p.logger.Info("services of peer gone", "peer", n.UniqueID(), "services", len(services))
	p.publish(api.LifecycleEvent{
		Kind:         api.NodeServicesGone,
		NodeUniqueID: n.UniqueID(),
		Services:     services,
		Time:         p.now().UnixMilli(),
	})
}

// SendChunked streams src to every READY peer as one chunk session.
func (p *Provider) SendChunked(ctx context.Context, transferChannel string, extra []byte, src io.Reader) *task.Future[transfer.Status] {
	var targets []network.Channel
	for _, n := range p.ReadyNodes() {
		if ch := n.Channel(); ch != nil {
			targets = append(targets, ch)
		}
	}
	session := transfer.NewSession(transferChannel, p.cfg.ChunkSize, extra)
	return p.transfer.Send(ctx, session, src, targets...)
}

// Run dials the configured peers and runs the snapshot and health tracking
// loops until ctx is done.
func (p *Provider) Run(ctx context.Context) error {
	for _, n := range p.order {
		p.dialAsync(n)
	}

	snapshots := time.NewTicker(p.cfg.SnapshotInterval)
	defer snapshots.Stop()
	checks := time.NewTicker(p.cfg.DisconnectCheckInterval)
	defer checks.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.closing:
			return nil
		case <-snapshots.C:
			p.BroadcastSnapshot()
		case <-checks.C:
			p.CheckDisconnects(p.now())
		}
	}
}

// Close stops Run and waits for running dials.
func (p *Provider) Close() {
	p.once.Do(func() { close(p.closing) })
	p.wg.Wait()
}

func (p *Provider) dialAsync(n *NodeServer) {
	if p.dialer == nil {
		return
	}
	select {
	case <-p.closing:
		return
	default:
	}
	if !n.dialing.CompareAndSwap(false, true) {
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer n.dialing.Store(false)
		ctx, cancel := context.WithTimeout(context.Background(), DefaultDialTimeout)
		defer cancel()
		if err := p.Connect(ctx, n); err != nil {
			p.logger.Debug("peer connect failed", "peer", n.UniqueID(), "error", err)
		}
	}()
}

// UpdateListeners replaces the addresses of a configured peer. It reports
// false for unknown peers and unchanged addresses.
func (p *Provider) UpdateListeners(uniqueID string, listeners []network.HostAndPort) bool {
	n, ok := p.nodes[uniqueID]
	if !ok || len(listeners) == 0 || slices.Equal(n.Listeners(), listeners) {
		return false
	}
	n.SetListeners(listeners)
	return true
}
