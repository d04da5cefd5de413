// Package cluster implements NodeMesh cluster membership.
//
// Every configured peer is tracked as a NodeServer moving through
// CONNECTING, READY, DISCONNECTED and CLOSED. Channels are authenticated
// on the Authorization channel, either as a peer node or as a worker
// service, before the full listener set is installed.
//
// A READY peer that stops sending snapshots, or whose channel is lost, is
// soft disconnected: its channel is replaced by a network.QueuedChannel so
// outbound traffic is buffered until the peer reconnects and the queue is
// flushed into the new channel. A peer that stays disconnected past the
// hard threshold is closed for good. Only the side with the earlier
// startup dials a reconnect.
package cluster
