// Package api declares the remote API surface of a NodeMesh node and the
// value types that travel over it.
//
// Interfaces in this package are served by the cluster package and called
// through clients generated by cmd/rpcgen (see cluster_rpc.go). Value types
// are encoded with the wire mapper: exported fields in declaration order,
// enums as ordinals.
package api
