package cluster

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/Masterminds/semver/v3"

	"github.com/yndnr/nodemesh-go/internal/api"
	"github.com/yndnr/nodemesh-go/internal/network"
	"github.com/yndnr/nodemesh-go/internal/network/protocol"
	"github.com/yndnr/nodemesh-go/pkg/wire"
)

// AuthKind is the first field of an authorization packet.
type AuthKind int32

const (
	AuthPeer   AuthKind = 0
	AuthWorker AuthKind = 1
)

func (k AuthKind) String() string {
	switch k {
	case AuthPeer:
		return "peer"
	case AuthWorker:
		return "worker"
	default:
		return "unknown"
	}
}

// PeerAuth is the payload a node presents to a peer.
type PeerAuth struct {
	ClusterID string
	Node      api.NodeInfo
	Startup   int64
}

// WorkerAuth is the payload a worker presents to its node.
type WorkerAuth struct {
	Secret    string
	ServiceID string
}

// EncodePeerAuth builds the authorization packet of a peer.
func EncodePeerAuth(m *wire.Mapper, version string, a PeerAuth) (*protocol.Packet, error) {
	b := wire.NewBuffer().
		WriteInt32(int32(AuthPeer)).
		WriteString(version).
		WriteString(a.ClusterID)
	if err := m.WriteObject(b, a.Node); err != nil {
		return nil, fmt.Errorf("cluster: encode node descriptor: %w", err)
	}
	b.WriteInt64(a.Startup)
	return protocol.New(protocol.ChannelAuthorization, b), nil
}

// EncodeWorkerAuth builds the authorization packet of a worker.
func EncodeWorkerAuth(version string, a WorkerAuth) *protocol.Packet {
	b := wire.NewBuffer().
		WriteInt32(int32(AuthWorker)).
		WriteString(version).
		WriteString(a.Secret).
		WriteString(a.ServiceID)
	return protocol.New(protocol.ChannelAuthorization, b)
}

// DecodeAuthReply reads the boolean an acceptor answers with.
func DecodeAuthReply(reply *protocol.Packet) (bool, error) {
	accepted := reply.Body.ReadBool()
	if err := reply.Body.Err(); err != nil {
		return false, ErrBadAuthPacket.WithCause(err)
	}
	return accepted, nil
}

// handleAuth is the only listener of a channel that has not authenticated.
// A rejected channel is told false and closed.
func (p *Provider) handleAuth(ch network.Channel, pk *protocol.Packet) error {
	kind, after, err := p.authenticate(ch, pk.Body)
	p.metrics.AuthAttempt(kind.String(), err == nil)

	if pk.HasUniqueID() {
		reply := protocol.NewResponse(pk, wire.NewBuffer().WriteBool(err == nil))
		if sendErr := ch.Send(reply); sendErr != nil {
			p.logger.Debug("failed to answer authorization", "channel_id", ch.ID(), "error", sendErr)
		}
	}
	if err != nil {
		p.logger.Warn("authorization rejected",
			"kind", kind.String(),
			"remote", ch.RemoteAddr(),
			"error", err)
		_ = ch.Close()
		return nil
	}
	after()
	return nil
}

func (p *Provider) authenticate(ch network.Channel, b *wire.Buffer) (AuthKind, func(), error) {
	kind := AuthKind(b.ReadInt32())
	version := b.ReadString()
	if err := b.Err(); err != nil {
		return kind, nil, ErrBadAuthPacket.WithCause(err)
	}
	if err := p.checkVersion(version); err != nil {
		return kind, nil, err
	}

	switch kind {
	case AuthPeer:
		clusterID := b.ReadString()
		node, err := wire.Read[api.NodeInfo](p.mapper, b)
		if err != nil {
			return kind, nil, ErrBadAuthPacket.WithCause(err)
		}
		startup := b.ReadInt64()
		if err := b.Err(); err != nil {
			return kind, nil, ErrBadAuthPacket.WithCause(err)
		}
		if clusterID != p.cfg.ClusterID {
			return kind, nil, ErrClusterIDMismatch.WithDetails("got %q", clusterID)
		}
		after, err := p.acceptPeer(ch, node, startup)
		return kind, after, err

	case AuthWorker:
		plain := b.ReadString()
		serviceID := b.ReadString()
		if err := b.Err(); err != nil {
			return kind, nil, ErrBadAuthPacket.WithCause(err)
		}
		after, err := p.acceptService(ch, plain, serviceID)
		return kind, after, err

	default:
		return kind, nil, ErrBadAuthPacket.WithDetails("unknown kind %d", int32(kind))
	}
}

func (p *Provider) checkVersion(version string) error {
	v, err := semver.NewVersion(version)
	if err != nil {
		return ErrProtocolMismatch.WithDetails("%q", version).WithCause(err)
	}
	if !p.constraint.Check(v) {
		return ErrProtocolMismatch.WithDetails("%s does not satisfy %s", v, p.constraint)
	}
	return nil
}

// Connect dials a random listener of n and authenticates as a peer. It is
// a no-op when n is already bound to a live channel.
func (p *Provider) Connect(ctx context.Context, n *NodeServer) error {
	if p.dialer == nil {
		return fmt.Errorf("%w: no dialer", errNotConfigured)
	}
	switch {
	case n.State() == api.NodeClosed:
		return ErrNodeClosed.WithDetails("%s", n.UniqueID())
	case n.live():
		return nil
	}
	listeners := n.Listeners()
	if len(listeners) == 0 {
		return ErrNoListeners.WithDetails("%s", n.UniqueID())
	}
	addr := listeners[rand.IntN(len(listeners))]

	ch, err := p.dialer.Connect(ctx, addr.String())
	if err != nil {
		return err
	}
	// Snapshots may arrive right after the reply, before bind returns.
	ch.Listeners().Swap(p.peerSet())

	auth, err := EncodePeerAuth(p.mapper, ProtocolVersion, PeerAuth{
		ClusterID: p.cfg.ClusterID,
		Node:      p.LocalInfo(),
		Startup:   p.startup,
	})
	if err != nil {
		_ = ch.Close()
		return err
	}
	reply, err := ch.SendQuery(ctx, auth)
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("cluster: authorize with %s: %w", n.UniqueID(), err)
	}
	accepted, err := DecodeAuthReply(reply)
	if err != nil {
		_ = ch.Close()
		return err
	}
	if !accepted {
		_ = ch.Close()
		return ErrAuthRejected.WithDetails("by %s at %s", n.UniqueID(), addr)
	}

	after, err := p.bindNode(n, ch, 0)
	if err != nil {
		_ = ch.Close()
		if errors.Is(err, ErrAlreadyBound) {
			return nil
		}
		return err
	}
	after()
	return nil
}
