package cluster

import (
	"time"

	"github.com/yndnr/nodemesh-go/internal/network"
)

// ProtocolVersion is the membership protocol version this build speaks.
const ProtocolVersion = "1.0.0"

// Defaults.
const (
	DefaultSoftDisconnect          = 30 * time.Second
	DefaultHardDisconnect          = time.Duration(0)
	DefaultSnapshotInterval        = time.Second
	DefaultDisconnectCheckInterval = 5 * time.Second
	DefaultQueueTimeout            = 30 * time.Second
	DefaultProtocolConstraint      = "^1.0.0"
)

// PeerConfig is one configured peer.
type PeerConfig struct {
	UniqueID  string
	Listeners []network.HostAndPort
}

// ServiceConfig provisions a local worker service. SecretHash is the
// argon2id hash produced by secret.Hash.
type ServiceConfig struct {
	UniqueID   string
	Name       string
	SecretHash string
}

// Config is the membership configuration.
type Config struct {
	ClusterID string
	// UniqueID identifies the local node.
	UniqueID  string
	Listeners []network.HostAndPort
	Version   string
	Peers     []PeerConfig
	Services  []ServiceConfig

	// ProtocolConstraint is the semver constraint remote protocol versions
	// must satisfy.
	ProtocolConstraint string

	SoftDisconnect          time.Duration
	HardDisconnect          time.Duration
	SnapshotInterval        time.Duration
	DisconnectCheckInterval time.Duration
	// QueueTimeout bounds how long a query waits in a queued channel.
	QueueTimeout time.Duration
	// ChunkSize is used by SendChunked.
	ChunkSize int32
	Draining  bool
}

func (c Config) withDefaults() Config {
	if c.ProtocolConstraint == "" {
		c.ProtocolConstraint = DefaultProtocolConstraint
	}
	if c.SoftDisconnect <= 0 {
		c.SoftDisconnect = DefaultSoftDisconnect
	}
	if c.HardDisconnect < 0 {
		c.HardDisconnect = DefaultHardDisconnect
	}
	if c.SnapshotInterval <= 0 {
		c.SnapshotInterval = DefaultSnapshotInterval
	}
	if c.DisconnectCheckInterval <= 0 {
		c.DisconnectCheckInterval = DefaultDisconnectCheckInterval
	}
	if c.QueueTimeout <= 0 {
		c.QueueTimeout = DefaultQueueTimeout
	}
	if c.Version == "" {
		c.Version = ProtocolVersion
	}
	return c
}
