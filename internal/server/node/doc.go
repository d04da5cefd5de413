// Package node assembles a NodeMesh node from its configuration.
//
// A Node owns every runtime component: the channel server and client, the
// RPC engine with its handler registry, the chunked transfer listener, the
// cluster provider, optional gossip discovery and the operational HTTP
// endpoint. There is no process global state; callers hold the Node.
package node
