package cluster

import "github.com/yndnr/nodemesh-go/internal/api"

// Metrics receives membership events.
type Metrics interface {
	NodeState(uniqueID string, state api.NodeState)
	Reconnected(uniqueID string)
	HardClosed(uniqueID string)
	AuthAttempt(kind string, accepted bool)
}

type noopMetrics struct{}

func (noopMetrics) NodeState(string, api.NodeState) {}
func (noopMetrics) Reconnected(string)              {}
func (noopMetrics) HardClosed(string)               {}
func (noopMetrics) AuthAttempt(string, bool)        {}
