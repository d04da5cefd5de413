package config

import "time"

// ServerConfig is the root configuration for nodemesh-server.
type ServerConfig struct {
	Node     NodeSection     `koanf:"node"`
	Cluster  ClusterSection  `koanf:"cluster"`
	Network  NetworkSection  `koanf:"network"`
	RPC      RPCSection      `koanf:"rpc"`
	Transfer TransferSection `koanf:"transfer"`
	Metrics  MetricsSection  `koanf:"metrics"`
	Log      LogSection      `koanf:"log"`
}

// NodeSection describes the local node.
type NodeSection struct {
	// UniqueID identifies this node in the cluster. A ULID is generated
	// when empty.
	UniqueID string `koanf:"unique_id"`

	// Listeners are the addresses channels are accepted on.
	Listeners []string `koanf:"listeners"`

	// Advertise are the addresses announced to peers. Listeners are
	// announced when empty.
	Advertise []string `koanf:"advertise"`

	// Draining is published in the node snapshot.
	Draining bool `koanf:"draining"`
}

// ClusterSection configures membership.
type ClusterSection struct {
	// ID must match on both sides of a peer connection.
	ID string `koanf:"id"`

	Peers    []PeerConfig    `koanf:"peers"`
	Services []ServiceConfig `koanf:"services"`

	// ProtocolConstraint is a semver constraint, e.g. "^1.0.0".
	ProtocolConstraint string `koanf:"protocol_constraint"`

	SoftDisconnect          time.Duration `koanf:"soft_disconnect"`
	HardDisconnect          time.Duration `koanf:"hard_disconnect"`
	SnapshotInterval        time.Duration `koanf:"snapshot_interval"`
	DisconnectCheckInterval time.Duration `koanf:"disconnect_check_interval"`
	QueueTimeout            time.Duration `koanf:"queue_timeout"`

	Gossip GossipConfig `koanf:"gossip"`
}

// PeerConfig is one configured peer.
type PeerConfig struct {
	UniqueID  string   `koanf:"unique_id"`
	Listeners []string `koanf:"listeners"`
}

// ServiceConfig provisions a worker service hosted by this node.
type ServiceConfig struct {
	UniqueID string `koanf:"unique_id"`
	Name     string `koanf:"name"`
	// SecretHash is the argon2id hash of the connection secret.
	SecretHash string `koanf:"secret_hash"`
}

// GossipConfig enables memberlist based address discovery.
type GossipConfig struct {
	Enabled  bool     `koanf:"enabled"`
	BindAddr string   `koanf:"bind_addr"`
	BindPort int      `koanf:"bind_port"`
	Seeds    []string `koanf:"seeds"`
}

// NetworkSection configures channels.
type NetworkSection struct {
	// Transport is "tcp" or "quic".
	Transport string `koanf:"transport"`
	ReusePort bool   `koanf:"reuse_port"`

	DialTimeout  time.Duration `koanf:"dial_timeout"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
	IdleTimeout  time.Duration `koanf:"idle_timeout"`
	QueryTimeout time.Duration `koanf:"query_timeout"`

	TLS TLSConfig `koanf:"tls"`
}

// TLSConfig configures channel encryption.
type TLSConfig struct {
	Enabled            bool   `koanf:"enabled"`
	CertFile           string `koanf:"cert_file"`
	KeyFile            string `koanf:"key_file"`
	CAFile             string `koanf:"ca_file"`
	ServerName         string `koanf:"server_name"`
	InsecureSkipVerify bool   `koanf:"insecure_skip_verify"`
	SelfSigned         bool   `koanf:"self_signed"`
}

// RPCSection configures the RPC engine.
type RPCSection struct {
	DefaultTimeout time.Duration `koanf:"default_timeout"`
}

// TransferSection configures chunked transfers.
type TransferSection struct {
	ChunkSize int `koanf:"chunk_size"`
	// RateLimit caps bytes per second per target. Zero disables it.
	RateLimit int  `koanf:"rate_limit"`
	Ack       bool `koanf:"ack"`
	// TempDir holds partially received sessions. The system temp
	// directory is used when empty.
	TempDir string `koanf:"temp_dir"`
}

// MetricsSection configures the HTTP endpoint serving metrics, health and
// cluster status.
type MetricsSection struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
	Path    string `koanf:"path"`
	// AllowList restricts clients to these IPs or CIDR blocks. Empty allows
	// everyone.
	AllowList []string `koanf:"allow_list"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}
