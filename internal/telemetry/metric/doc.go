// Package metric exposes NodeMesh measurements in Prometheus format.
//
// A Registry owns its own prometheus.Registry with the Go runtime and
// process collectors, and implements the Metrics interfaces of the
// network, rpc, transfer and cluster packages so a single value can be
// handed to every component of a node.
package metric
