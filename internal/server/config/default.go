package config

import "time"

// Default configuration values.
const (
	DefaultListener  = "0.0.0.0:7400"
	DefaultClusterID = "nodemesh"
	DefaultTransport = "tcp"

	DefaultProtocolConstraint      = "^1.0.0"
	DefaultSoftDisconnect          = 30 * time.Second
	DefaultHardDisconnect          = time.Duration(0)
	DefaultSnapshotInterval        = time.Second
	DefaultDisconnectCheckInterval = 5 * time.Second
	DefaultQueueTimeout            = 30 * time.Second

	DefaultGossipPort = 7946

	DefaultDialTimeout  = 10 * time.Second
	DefaultWriteTimeout = 10 * time.Second
	DefaultQueryTimeout = 30 * time.Second
	DefaultRPCTimeout   = 30 * time.Second

	DefaultChunkSize = 1 << 20

	DefaultMetricsAddr = "127.0.0.1:9400"
	DefaultMetricsPath = "/metrics"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Node: NodeSection{
			Listeners: []string{DefaultListener},
		},
		Cluster: ClusterSection{
			ID:                      DefaultClusterID,
			ProtocolConstraint:      DefaultProtocolConstraint,
			SoftDisconnect:          DefaultSoftDisconnect,
			HardDisconnect:          DefaultHardDisconnect,
			SnapshotInterval:        DefaultSnapshotInterval,
			DisconnectCheckInterval: DefaultDisconnectCheckInterval,
			QueueTimeout:            DefaultQueueTimeout,
			Gossip: GossipConfig{
				BindPort: DefaultGossipPort,
			},
		},
		Network: NetworkSection{
			Transport:    DefaultTransport,
			DialTimeout:  DefaultDialTimeout,
			WriteTimeout: DefaultWriteTimeout,
			QueryTimeout: DefaultQueryTimeout,
		},
		RPC: RPCSection{
			DefaultTimeout: DefaultRPCTimeout,
		},
		Transfer: TransferSection{
			ChunkSize: DefaultChunkSize,
		},
		Metrics: MetricsSection{
			Addr: DefaultMetricsAddr,
			Path: DefaultMetricsPath,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
