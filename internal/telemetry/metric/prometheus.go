package metric

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "nodemesh"

// Registry holds all node metrics.
type Registry struct {
	reg *prometheus.Registry

	// Channels
	packetsReceived *prometheus.CounterVec
	bytesReceived   *prometheus.CounterVec
	packetsSent     *prometheus.CounterVec
	bytesSent       *prometheus.CounterVec
	packetsDropped  *prometheus.CounterVec
	channelsOpen    prometheus.Gauge
	channelsTotal   prometheus.Counter
	queriesPending  prometheus.Gauge

	// RPC
	callsSent    *prometheus.CounterVec
	callsHandled *prometheus.CounterVec
	callDuration *prometheus.HistogramVec

	// Transfer
	chunksSent        prometheus.Counter
	chunkBytesSent    prometheus.Counter
	chunksReceived    prometheus.Counter
	chunkBytesRecv    prometheus.Counter
	transfersActive   prometheus.Gauge
	transfersFinished *prometheus.CounterVec

	// Cluster
	nodeState    *prometheus.GaugeVec
	reconnects   *prometheus.CounterVec
	hardCloses   *prometheus.CounterVec
	authAttempts *prometheus.CounterVec
}

// NewRegistry creates the metrics and registers them together with the Go
// and process collectors.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		packetsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "network",
			Name:      "packets_received_total",
			Help:      "Packets read from channels, by logical channel.",
		}, []string{"channel"}),
		bytesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "network",
			Name:      "received_bytes_total",
			Help:      "Header and body bytes read from channels, by logical channel.",
		}, []string{"channel"}),
		packetsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "network",
			Name:      "packets_sent_total",
			Help:      "Packets written to channels, by logical channel.",
		}, []string{"channel"}),
		bytesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "network",
			Name:      "sent_bytes_total",
			Help:      "Frame bytes written to channels, by logical channel.",
		}, []string{"channel"}),
		packetsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "network",
			Name:      "packets_dropped_total",
			Help:      "Inbound packets discarded, by logical channel and reason.",
		}, []string{"channel", "reason"}),
		channelsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "network",
			Name:      "channels_open",
			Help:      "Currently open channels.",
		}),
		channelsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "network",
			Name:      "channels_opened_total",
			Help:      "Channels opened since start.",
		}),
		queriesPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "network",
			Name:      "queries_pending",
			Help:      "Queries waiting for a reply.",
		}),

		callsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "rpc",
			Name:      "calls_sent_total",
			Help:      "Outbound invocations, by class and method.",
		}, []string{"class", "method"}),
		callsHandled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "rpc",
			Name:      "calls_handled_total",
			Help:      "Inbound invocations, by class, method and result.",
		}, []string{"class", "method", "result"}),
		callDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "rpc",
			Name:      "call_duration_seconds",
			Help:      "Execution time of inbound invocations.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}, []string{"class", "method"}),

		chunksSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "transfer",
			Name:      "chunks_sent_total",
			Help:      "Chunks sent.",
		}),
		chunkBytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "transfer",
			Name:      "sent_bytes_total",
			Help:      "Payload bytes sent in chunks.",
		}),
		chunksReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "transfer",
			Name:      "chunks_received_total",
			Help:      "Chunks received.",
		}),
		chunkBytesRecv: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "transfer",
			Name:      "received_bytes_total",
			Help:      "Payload bytes received in chunks.",
		}),
		transfersActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "transfer",
			Name:      "sessions_active",
			Help:      "Transfer sessions still running.",
		}),
		transfersFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "transfer",
			Name:      "sessions_finished_total",
			Help:      "Transfer sessions that reached a terminal status.",
		}, []string{"status"}),

		nodeState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "cluster",
			Name:      "node_state",
			Help:      "1 for the current membership state of each peer, 0 otherwise.",
		}, []string{"node", "state"}),
		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "cluster",
			Name:      "reconnects_total",
			Help:      "Peers that came back within the soft disconnect window.",
		}, []string{"node"}),
		hardCloses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "cluster",
			Name:      "hard_closes_total",
			Help:      "Peers closed after the hard disconnect timeout.",
		}, []string{"node"}),
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "cluster",
			Name:      "auth_attempts_total",
			Help:      "Channel authentication attempts, by kind and result.",
		}, []string{"kind", "result"}),
	}

	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),

		r.packetsReceived, r.bytesReceived, r.packetsSent, r.bytesSent,
		r.packetsDropped, r.channelsOpen, r.channelsTotal, r.queriesPending,

		r.callsSent, r.callsHandled, r.callDuration,

		r.chunksSent, r.chunkBytesSent, r.chunksReceived, r.chunkBytesRecv,
		r.transfersActive, r.transfersFinished,

		r.nodeState, r.reconnects, r.hardCloses, r.authAttempts,
	)
	return r
}

// Prometheus returns the underlying registry, for components that register
// their own collectors.
func (r *Registry) Prometheus() *prometheus.Registry {
	return r.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{
		Registry:          r.reg,
		EnableOpenMetrics: true,
	})
}
