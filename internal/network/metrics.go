package network

// Metrics receives channel level measurements. The telemetry package
// provides the Prometheus implementation.
type Metrics interface {
	PacketReceived(channel int32, size int)
	PacketSent(channel int32, size int)
	PacketDropped(channel int32, reason string)
	ChannelOpened()
	ChannelClosed()
	QueriesPending(delta int)
}

// Drop reasons reported to Metrics.
const (
	DropNoListener = "no_listener"
	DropMalformed  = "malformed"
	DropUnmatched  = "unmatched_reply"
)

type noopMetrics struct{}

func (noopMetrics) PacketReceived(int32, int)   {}
func (noopMetrics) PacketSent(int32, int)       {}
func (noopMetrics) PacketDropped(int32, string) {}
func (noopMetrics) ChannelOpened()              {}
func (noopMetrics) ChannelClosed()              {}
func (noopMetrics) QueriesPending(int)          {}
