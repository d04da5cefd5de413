// Package httpserver serves the operational HTTP endpoint of a node.
//
// Routes:
//
//   - GET /health: liveness
//   - GET /ready: 200 once the node serves traffic, 503 otherwise
//   - GET <metrics path>: Prometheus exposition
//   - GET /cluster/nodes, /cluster/nodes/{id}, /cluster/head: membership view
//
// Every route passes through RequestID, Recover and AccessLog, and an
// optional IP allow list.
package httpserver
