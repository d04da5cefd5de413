package cluster

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yndnr/nodemesh-go/internal/api"
	"github.com/yndnr/nodemesh-go/internal/network"
)

// NodeServer is the membership record of one configured peer. It is
// created once from configuration and never removed; a closed peer stays
// as a CLOSED record.
type NodeServer struct {
	uniqueID string

	mu           sync.RWMutex
	listeners    []network.HostAndPort
	state        api.NodeState
	channel      network.Channel
	lastSnapshot time.Time
	stateChanged time.Time
	startup      int64
	version      string
	snapshot     *api.NodeSnapshot

	dialing atomic.Bool
}

// NewNodeServer creates a CONNECTING record.
func NewNodeServer(uniqueID string, listeners []network.HostAndPort, now time.Time) *NodeServer {
	return &NodeServer{
		uniqueID:     uniqueID,
		listeners:    slices.Clone(listeners),
		state:        api.NodeConnecting,
		stateChanged: now,
	}
}

func (n *NodeServer) UniqueID() string { return n.uniqueID }

// Listeners returns the addresses the peer accepts channels on.
func (n *NodeServer) Listeners() []network.HostAndPort {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return slices.Clone(n.listeners)
}

// SetListeners replaces the peer's addresses.
func (n *NodeServer) SetListeners(ls []network.HostAndPort) {
	n.mu.Lock()
	n.listeners = slices.Clone(ls)
	n.mu.Unlock()
}

func (n *NodeServer) State() api.NodeState {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.state
}

// Channel returns the channel packets for the peer go to. While the peer
// is DISCONNECTED it is a *network.QueuedChannel.
func (n *NodeServer) Channel() network.Channel {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.channel
}

// LastSnapshotTime is the receipt time of the latest snapshot, or the time
// the channel was bound when none arrived since.
func (n *NodeServer) LastSnapshotTime() time.Time {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.lastSnapshot
}

// StateChanged is the time of the last state transition.
func (n *NodeServer) StateChanged() time.Time {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.stateChanged
}

// Startup is the peer's start time in unix milliseconds, zero until known.
func (n *NodeServer) Startup() int64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.startup
}

// Snapshot returns the latest snapshot received from the peer.
func (n *NodeServer) Snapshot() (api.NodeSnapshot, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.snapshot == nil {
		return api.NodeSnapshot{}, false
	}
	return *n.snapshot, true
}

// Info describes the peer.
func (n *NodeServer) Info() api.NodeInfo {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return api.NodeInfo{
		UniqueID:  n.uniqueID,
		Listeners: slices.Clone(n.listeners),
		Startup:   n.startup,
		Version:   n.version,
		State:     n.state,
	}
}

// live reports whether the peer is READY on an open channel.
func (n *NodeServer) live() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.state == api.NodeReady && n.channel != nil && !n.channel.Closed()
}

func validTransition(from, to api.NodeState) bool {
	switch from {
	case api.NodeConnecting:
		return to == api.NodeReady
	case api.NodeReady:
		return to == api.NodeDisconnected
	case api.NodeDisconnected:
		return to == api.NodeReady || to == api.NodeClosed
	default:
		return false
	}
}

func (n *NodeServer) transitionLocked(to api.NodeState, now time.Time) error {
	if !validTransition(n.state, to) {
		return ErrInvalidTransition.WithDetails("%s: %s -> %s", n.uniqueID, n.state, to)
	}
	n.state = to
	n.stateChanged = now
	return nil
}

// bind moves the peer to READY on ch. A queued channel left by a soft
// disconnect is replayed into ch in order and exactly once. Until the
// replay is done the queue stays the peer's channel, so concurrent senders
// are held back and then forwarded. It returns the number of replayed
// packets and the state the peer left.
func (n *NodeServer) bind(ch network.Channel, now time.Time, startup int64) (int, api.NodeState, error) {
	n.mu.Lock()
	prev := n.state
	if n.state == api.NodeReady && n.channel != nil && !n.channel.Closed() {
		n.mu.Unlock()
		return 0, prev, ErrAlreadyBound.WithDetails("%s", n.uniqueID)
	}
	if n.state == api.NodeReady {
		// the previous channel closed before its loss was handled
		n.state = api.NodeDisconnected
	}
	if err := n.transitionLocked(api.NodeReady, now); err != nil {
		n.state = prev
		n.mu.Unlock()
		return 0, prev, err
	}
	q, queued := n.channel.(*network.QueuedChannel)
	if !queued {
		n.channel = ch
	}
	n.lastSnapshot = now
	if startup > 0 {
		n.startup = startup
	}
	n.mu.Unlock()

	if !queued {
		return 0, prev, nil
	}
	flushed, err := q.Flush(ch)
	if err != nil {
		// ch is gone; its loss is handled by the caller
		_ = q.Close()
	}
	n.mu.Lock()
	if n.channel == q {
		n.channel = ch
	}
	n.mu.Unlock()
	return flushed, prev, nil
}

// disconnect moves a READY peer to DISCONNECTED and shadows its channel
// with a queue. It returns the channel that was replaced.
func (n *NodeServer) disconnect(now time.Time, queueTimeout time.Duration) (network.Channel, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.transitionLocked(api.NodeDisconnected, now); err != nil {
		return nil, err
	}
	lost := n.channel
	n.channel = network.NewQueuedChannel(lost, queueTimeout)
	return lost, nil
}

// close moves a DISCONNECTED peer to CLOSED and drops its queue.
func (n *NodeServer) close(now time.Time) error {
	n.mu.Lock()
	if err := n.transitionLocked(api.NodeClosed, now); err != nil {
		n.mu.Unlock()
		return err
	}
	ch := n.channel
	n.mu.Unlock()

	if ch != nil {
		_ = ch.Close()
	}
	return nil
}

// updateSnapshot records a snapshot and reports whether it is the first
// one since the peer became READY.
func (n *NodeServer) updateSnapshot(s api.NodeSnapshot, now time.Time) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	first := n.snapshot == nil || n.snapshot.Startup != s.Startup
	n.snapshot = &s
	n.lastSnapshot = now
	n.startup = s.Startup
	n.version = s.Version
	if len(s.Listeners) > 0 {
		n.listeners = slices.Clone(s.Listeners)
	}
	return first
}

// services returns the services of the latest snapshot.
func (n *NodeServer) services() []api.ServiceInfo {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.snapshot == nil {
		return nil
	}
	return slices.Clone(n.snapshot.Services)
}
