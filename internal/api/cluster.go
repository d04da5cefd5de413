package api

import (
	"context"

	"github.com/yndnr/nodemesh-go/pkg/task"
)

//go:generate go run ../../cmd/rpcgen -t ClusterNodeProvider -t ServiceProvider -o cluster_rpc.go

// ClusterNodeProvider exposes the cluster view of a node.
//
//rpc:timeout 10s
type ClusterNodeProvider interface {
	// Nodes lists the local node and every configured peer.
	Nodes(ctx context.Context) ([]NodeInfo, error)
	Node(ctx context.Context, uniqueID string) (*NodeInfo, error)
	// HeadNode returns the elected head.
	HeadNode(ctx context.Context) (*NodeInfo, error)
	// Snapshot returns the latest snapshot known for a node.
	Snapshot(ctx context.Context, uniqueID string) (*NodeSnapshot, error)
	// SendCommand announces a command line to the node. Nothing is returned.
	//
	//rpc:noresult
	SendCommand(ctx context.Context, command string) error
	//rpc:timeout 2s
	NodesAsync(ctx context.Context) *task.Future[[]NodeInfo]
	// Services scopes service queries to one node.
	Services(nodeUniqueID string) ServiceProvider
	//rpc:local
	IsHead(ctx context.Context, uniqueID string) bool
}

// ServiceProvider lists the services of one node.
type ServiceProvider interface {
	Services(ctx context.Context) ([]ServiceInfo, error)
	Service(ctx context.Context, uniqueID string) (*ServiceInfo, error)
}

// ClusterNodeProviderLocal holds the ClusterNodeProvider methods clients
// compute without their own round trip.
type ClusterNodeProviderLocal struct {
	Remote ClusterNodeProvider
}

// IsHead reports whether uniqueID is the current head node.
func (l ClusterNodeProviderLocal) IsHead(ctx context.Context, uniqueID string) bool {
	head, err := l.Remote.HeadNode(ctx)
	return err == nil && head != nil && head.UniqueID == uniqueID
}
