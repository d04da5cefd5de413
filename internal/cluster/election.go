package cluster

import "github.com/yndnr/nodemesh-go/internal/api"

// Election picks the head node among the local node and its READY peers.
// candidates always contains the local node first.
type Election interface {
	Elect(candidates []api.NodeInfo) api.NodeInfo
}

// ElectionFunc adapts a function to Election.
type ElectionFunc func(candidates []api.NodeInfo) api.NodeInfo

func (f ElectionFunc) Elect(candidates []api.NodeInfo) api.NodeInfo { return f(candidates) }

// EarliestStartup elects the node that started first, breaking ties on
// the unique id. Peers whose startup is still unknown are skipped.
type EarliestStartup struct{}

func (EarliestStartup) Elect(candidates []api.NodeInfo) api.NodeInfo {
	var head api.NodeInfo
	found := false
	for _, c := range candidates {
		if c.Startup <= 0 {
			continue
		}
		if !found || c.Startup < head.Startup || (c.Startup == head.Startup && c.UniqueID < head.UniqueID) {
			head = c
			found = true
		}
	}
	if !found && len(candidates) > 0 {
		return candidates[0]
	}
	return head
}

// earlier reports whether a should dial b when both want to reconnect.
func earlier(aStartup int64, aID string, bStartup int64, bID string) bool {
	if bStartup <= 0 {
		return true
	}
	if aStartup != bStartup {
		return aStartup < bStartup
	}
	return aID < bID
}
