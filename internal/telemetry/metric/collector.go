package metric

import (
	"time"

	"github.com/yndnr/nodemesh-go/internal/api"
	"github.com/yndnr/nodemesh-go/internal/cluster"
	"github.com/yndnr/nodemesh-go/internal/network"
	"github.com/yndnr/nodemesh-go/internal/network/protocol"
	"github.com/yndnr/nodemesh-go/internal/rpc"
	"github.com/yndnr/nodemesh-go/internal/transfer"
)

var (
	_ network.Metrics  = (*Registry)(nil)
	_ rpc.Metrics      = (*Registry)(nil)
	_ transfer.Metrics = (*Registry)(nil)
	_ cluster.Metrics  = (*Registry)(nil)
)

var nodeStates = []api.NodeState{
	api.NodeConnecting,
	api.NodeReady,
	api.NodeDisconnected,
	api.NodeClosed,
}

func channelLabel(ch int32) string {
	return protocol.ChannelName(ch)
}

func (r *Registry) PacketReceived(ch int32, size int) {
	label := channelLabel(ch)
	r.packetsReceived.WithLabelValues(label).Inc()
	r.bytesReceived.WithLabelValues(label).Add(float64(size))
}

func (r *Registry) PacketSent(ch int32, size int) {
	label := channelLabel(ch)
	r.packetsSent.WithLabelValues(label).Inc()
	r.bytesSent.WithLabelValues(label).Add(float64(size))
}

func (r *Registry) PacketDropped(ch int32, reason string) {
	r.packetsDropped.WithLabelValues(channelLabel(ch), reason).Inc()
}

func (r *Registry) ChannelOpened() {
	r.channelsOpen.Inc()
	r.channelsTotal.Inc()
}

func (r *Registry) ChannelClosed() {
	r.channelsOpen.Dec()
}

func (r *Registry) QueriesPending(delta int) {
	r.queriesPending.Add(float64(delta))
}

func (r *Registry) CallSent(class, method string) {
	r.callsSent.WithLabelValues(class, method).Inc()
}

func (r *Registry) CallHandled(class, method string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.callsHandled.WithLabelValues(class, method, result).Inc()
	r.callDuration.WithLabelValues(class, method).Observe(d.Seconds())
}

func (r *Registry) ChunkSent(size int) {
	r.chunksSent.Inc()
	r.chunkBytesSent.Add(float64(size))
}

func (r *Registry) ChunkReceived(size int) {
	r.chunksReceived.Inc()
	r.chunkBytesRecv.Add(float64(size))
}

func (r *Registry) SessionStarted() {
	r.transfersActive.Inc()
}

func (r *Registry) SessionFinished(status transfer.Status) {
	r.transfersActive.Dec()
	r.transfersFinished.WithLabelValues(status.String()).Inc()
}

// NodeState sets the peer's current state to 1 and the others to 0. A
// closed peer's series are removed.
func (r *Registry) NodeState(uniqueID string, state api.NodeState) {
	if state == api.NodeClosed {
		r.nodeState.DeletePartialMatch(map[string]string{"node": uniqueID})
		return
	}
	for _, s := range nodeStates {
		v := 0.0
		if s == state {
			v = 1
		}
		r.nodeState.WithLabelValues(uniqueID, s.String()).Set(v)
	}
}

func (r *Registry) Reconnected(uniqueID string) {
	r.reconnects.WithLabelValues(uniqueID).Inc()
}

func (r *Registry) HardClosed(uniqueID string) {
	r.hardCloses.WithLabelValues(uniqueID).Inc()
}

func (r *Registry) AuthAttempt(kind string, accepted bool) {
	result := "rejected"
	if accepted {
		result = "accepted"
	}
	r.authAttempts.WithLabelValues(kind, result).Inc()
}
