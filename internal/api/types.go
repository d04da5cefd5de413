package api

import (
	"fmt"

	"github.com/yndnr/nodemesh-go/internal/network"
)

// NodeState is the membership state of a peer node.
type NodeState int32

const (
	NodeConnecting NodeState = iota
	NodeReady
	NodeDisconnected
	NodeClosed
)

// EnumCount implements wire.Enum.
func (NodeState) EnumCount() int32 { return 4 }

func (s NodeState) String() string {
	switch s {
	case NodeConnecting:
		return "CONNECTING"
	case NodeReady:
		return "READY"
	case NodeDisconnected:
		return "DISCONNECTED"
	case NodeClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("NodeState(%d)", int32(s))
	}
}

// NodeInfo describes a cluster node.
type NodeInfo struct {
	UniqueID  string
	Listeners []network.HostAndPort
	// Startup is the process start time in unix milliseconds.
	Startup int64
	Version string
	State   NodeState
}

// ServiceInfo describes a worker service connected to a node.
type ServiceInfo struct {
	UniqueID     string
	Name         string
	NodeUniqueID string
	Address      network.HostAndPort
	Connected    bool
	// Updated is the time of the last change in unix milliseconds.
	Updated int64
}

// NodeSnapshot is the periodic status a node broadcasts to its peers.
type NodeSnapshot struct {
	UniqueID  string
	Listeners []network.HostAndPort
	Startup   int64
	// Creation is the time the snapshot was taken, unix milliseconds.
	Creation int64
	Services []ServiceInfo
	Draining bool
	Version  string
}

// LifecycleKind tells what a LifecycleEvent reports.
type LifecycleKind int32

const (
	// ServiceConnected reports a service that authenticated with its node.
	ServiceConnected LifecycleKind = iota
	// ServiceDisconnected reports a service whose channel closed.
	ServiceDisconnected
	// NodeServicesGone reports that every service of a node is unreachable
	// because the node closed or lost its channel.
	NodeServicesGone
)

// EnumCount implements wire.Enum.
func (LifecycleKind) EnumCount() int32 { return 3 }

func (k LifecycleKind) String() string {
	switch k {
	case ServiceConnected:
		return "SERVICE_CONNECTED"
	case ServiceDisconnected:
		return "SERVICE_DISCONNECTED"
	case NodeServicesGone:
		return "NODE_SERVICES_GONE"
	default:
		return fmt.Sprintf("LifecycleKind(%d)", int32(k))
	}
}

// LifecycleEvent is broadcast on the service lifecycle channel.
type LifecycleEvent struct {
	Kind         LifecycleKind
	NodeUniqueID string
	Services     []ServiceInfo
	// Time is unix milliseconds.
	Time int64
}
