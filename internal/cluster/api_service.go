package cluster

import (
	"context"
	"strings"

	"github.com/yndnr/nodemesh-go/internal/api"
	"github.com/yndnr/nodemesh-go/internal/telemetry/logger"
	"github.com/yndnr/nodemesh-go/pkg/task"
)

// APIService serves api.ClusterNodeProvider from the local membership
// state.
type APIService struct {
	provider *Provider
}

var _ api.ClusterNodeProvider = (*APIService)(nil)

// NewAPIService creates the RPC handler instance for p.
func NewAPIService(p *Provider) *APIService {
	return &APIService{provider: p}
}

func (s *APIService) Nodes(context.Context) ([]api.NodeInfo, error) {
	return s.nodes(), nil
}

func (s *APIService) nodes() []api.NodeInfo {
	out := []api.NodeInfo{s.provider.LocalInfo()}
	for _, n := range s.provider.Nodes() {
		out = append(out, n.Info())
	}
	return out
}

func (s *APIService) Node(_ context.Context, uniqueID string) (*api.NodeInfo, error) {
	if uniqueID == s.provider.UniqueID() {
		info := s.provider.LocalInfo()
		return &info, nil
	}
	n, ok := s.provider.Node(uniqueID)
	if !ok {
		return nil, ErrNodeNotFound.WithDetails("%s", uniqueID)
	}
	info := n.Info()
	return &info, nil
}

func (s *APIService) HeadNode(context.Context) (*api.NodeInfo, error) {
	head := s.provider.Head()
	return &head, nil
}

func (s *APIService) Snapshot(_ context.Context, uniqueID string) (*api.NodeSnapshot, error) {
	if uniqueID == s.provider.UniqueID() {
		snap := s.provider.LocalSnapshot()
		return &snap, nil
	}
	n, ok := s.provider.Node(uniqueID)
	if !ok {
		return nil, ErrNodeNotFound.WithDetails("%s", uniqueID)
	}
	snap, ok := n.Snapshot()
	if !ok {
		return nil, ErrNoSnapshot.WithDetails("%s", uniqueID)
	}
	return &snap, nil
}

// SendCommand hands command to the configured command handler. Commands
// are announcements; unhandled ones are logged and dropped.
func (s *APIService) SendCommand(ctx context.Context, command string) error {
	command = strings.TrimSpace(command)
	if command == "" {
		return nil
	}
	if s.provider.onCommand == nil {
		logger.L(ctx).Info("command received without handler", "command", command)
		return nil
	}
	s.provider.onCommand(command)
	return nil
}

func (s *APIService) NodesAsync(context.Context) *task.Future[[]api.NodeInfo] {
	return task.Completed(s.nodes())
}

func (s *APIService) Services(nodeUniqueID string) api.ServiceProvider {
	return nodeServices{provider: s.provider, nodeID: nodeUniqueID}
}

func (s *APIService) IsHead(_ context.Context, uniqueID string) bool {
	return s.provider.Head().UniqueID == uniqueID
}

// nodeServices answers service queries for one node: the local registry
// for the local node, the latest snapshot for a peer.
type nodeServices struct {
	provider *Provider
	nodeID   string
}

func (n nodeServices) Services(context.Context) ([]api.ServiceInfo, error) {
	if n.nodeID == n.provider.UniqueID() {
		return n.provider.Services(), nil
	}
	peer, ok := n.provider.Node(n.nodeID)
	if !ok {
		return nil, ErrNodeNotFound.WithDetails("%s", n.nodeID)
	}
	snap, ok := peer.Snapshot()
	if !ok {
		return nil, ErrNoSnapshot.WithDetails("%s", n.nodeID)
	}
	return snap.Services, nil
}

func (n nodeServices) Service(ctx context.Context, uniqueID string) (*api.ServiceInfo, error) {
	services, err := n.Services(ctx)
	if err != nil {
		return nil, err
	}
	for i := range services {
		if services[i].UniqueID == uniqueID {
			return &services[i], nil
		}
	}
	return nil, ErrServiceNotFound.WithDetails("%s on %s", uniqueID, n.nodeID)
}
