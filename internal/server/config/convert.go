package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/nodemesh-go/internal/cluster"
	"github.com/yndnr/nodemesh-go/internal/network"
)

// EnsureNodeID fills node.unique_id with a fresh ULID when it is empty and
// returns the id in effect.
func EnsureNodeID(cfg *ServerConfig, logger *slog.Logger) string {
	if cfg.Node.UniqueID == "" {
		cfg.Node.UniqueID = ulid.Make().String()
		if logger != nil {
			logger.Info("generated node unique id", "node_id", cfg.Node.UniqueID)
		}
	}
	return cfg.Node.UniqueID
}

// ToClusterConfig converts the membership settings. The local node
// announces node.advertise, or bound when that is empty, or node.listeners
// when both are empty.
func ToClusterConfig(cfg *ServerConfig, bound []network.HostAndPort, logger *slog.Logger) (cluster.Config, error) {
	if cfg == nil {
		return cluster.Config{}, fmt.Errorf("server config is nil")
	}
	nodeID := EnsureNodeID(cfg, logger)

	var listeners []network.HostAndPort
	switch {
	case len(cfg.Node.Advertise) > 0:
		parsed, err := parseAddresses(cfg.Node.Advertise)
		if err != nil {
			return cluster.Config{}, fmt.Errorf("node.advertise: %w", err)
		}
		listeners = parsed
	case len(bound) > 0:
		listeners = bound
	default:
		parsed, err := parseAddresses(cfg.Node.Listeners)
		if err != nil {
			return cluster.Config{}, fmt.Errorf("node.listeners: %w", err)
		}
		listeners = parsed
	}

	peers := make([]cluster.PeerConfig, 0, len(cfg.Cluster.Peers))
	for _, p := range cfg.Cluster.Peers {
		addrs, err := parseAddresses(p.Listeners)
		if err != nil {
			return cluster.Config{}, fmt.Errorf("peer %s: %w", p.UniqueID, err)
		}
		peers = append(peers, cluster.PeerConfig{UniqueID: p.UniqueID, Listeners: addrs})
	}

	services := make([]cluster.ServiceConfig, 0, len(cfg.Cluster.Services))
	for _, s := range cfg.Cluster.Services {
		services = append(services, cluster.ServiceConfig{
			UniqueID:   s.UniqueID,
			Name:       s.Name,
			SecretHash: s.SecretHash,
		})
	}

	return cluster.Config{
		ClusterID:               cfg.Cluster.ID,
		UniqueID:                nodeID,
		Listeners:               listeners,
		Peers:                   peers,
		Services:                services,
		ProtocolConstraint:      cfg.Cluster.ProtocolConstraint,
		SoftDisconnect:          cfg.Cluster.SoftDisconnect,
		HardDisconnect:          cfg.Cluster.HardDisconnect,
		SnapshotInterval:        cfg.Cluster.SnapshotInterval,
		DisconnectCheckInterval: cfg.Cluster.DisconnectCheckInterval,
		QueueTimeout:            cfg.Cluster.QueueTimeout,
		ChunkSize:               int32(cfg.Transfer.ChunkSize),
		Draining:                cfg.Node.Draining,
	}, nil
}

// ToDiscoveryConfig converts the gossip settings.
func ToDiscoveryConfig(cfg *ServerConfig) cluster.DiscoveryConfig {
	return cluster.DiscoveryConfig{
		BindAddr: cfg.Cluster.Gossip.BindAddr,
		BindPort: cfg.Cluster.Gossip.BindPort,
		Seeds:    cfg.Cluster.Gossip.Seeds,
	}
}

// NetworkConfig is the transport level view of NetworkSection.
type NetworkConfig struct {
	Transport   network.Transport
	Listeners   []string
	ReusePort   bool
	DialTimeout time.Duration
	Channel     network.ChannelConfig
	TLS         network.TLSOptions
}

// ToNetworkConfig converts the channel settings. Logger and metrics of the
// channel configuration are left to the caller.
func ToNetworkConfig(cfg *ServerConfig) (NetworkConfig, error) {
	transport, err := network.ParseTransport(cfg.Network.Transport)
	if err != nil {
		return NetworkConfig{}, err
	}
	t := cfg.Network.TLS
	return NetworkConfig{
		Transport:   transport,
		Listeners:   cfg.Node.Listeners,
		ReusePort:   cfg.Network.ReusePort,
		DialTimeout: cfg.Network.DialTimeout,
		Channel: network.ChannelConfig{
			ReadTimeout:  cfg.Network.ReadTimeout,
			WriteTimeout: cfg.Network.WriteTimeout,
			IdleTimeout:  cfg.Network.IdleTimeout,
			QueryTimeout: cfg.Network.QueryTimeout,
		},
		TLS: network.TLSOptions{
			Enabled:            t.Enabled,
			CertFile:           t.CertFile,
			KeyFile:            t.KeyFile,
			CAFile:             t.CAFile,
			ServerName:         t.ServerName,
			InsecureSkipVerify: t.InsecureSkipVerify,
			SelfSigned:         t.SelfSigned,
			Hosts:              hostsOf(cfg.Node.Listeners, cfg.Node.Advertise),
		},
	}, nil
}

func parseAddresses(addrs []string) ([]network.HostAndPort, error) {
	out := make([]network.HostAndPort, 0, len(addrs))
	for _, a := range addrs {
		hp, err := network.ParseHostAndPort(a)
		if err != nil {
			return nil, err
		}
		out = append(out, hp)
	}
	return out, nil
}

func hostsOf(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var hosts []string
	for _, list := range lists {
		for _, a := range list {
			hp, err := network.ParseHostAndPort(a)
			if err != nil || hp.Host == "" {
				continue
			}
			if _, ok := seen[hp.Host]; ok {
				continue
			}
			seen[hp.Host] = struct{}{}
			hosts = append(hosts, hp.Host)
		}
	}
	return hosts
}
