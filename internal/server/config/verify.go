package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/yndnr/nodemesh-go/internal/network"
	"github.com/yndnr/nodemesh-go/internal/network/protocol"
	"github.com/yndnr/nodemesh-go/pkg/secret"
)

// Verify validates the configuration.
func Verify(cfg *ServerConfig) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if err := verifyNode(&cfg.Node); err != nil {
		return err
	}
	if err := verifyCluster(&cfg.Cluster, cfg.Node.UniqueID); err != nil {
		return err
	}
	if err := verifyNetwork(&cfg.Network); err != nil {
		return err
	}
	if cfg.RPC.DefaultTimeout <= 0 {
		return errors.New("rpc.default_timeout must be positive")
	}
	if err := verifyTransfer(&cfg.Transfer); err != nil {
		return err
	}
	if err := verifyMetrics(&cfg.Metrics); err != nil {
		return err
	}
	return verifyLog(&cfg.Log)
}

func verifyMetrics(cfg *MetricsSection) error {
	if !cfg.Enabled {
		return nil
	}
	if cfg.Addr == "" {
		return errors.New("metrics.addr is required when metrics are enabled")
	}
	if !strings.HasPrefix(cfg.Path, "/") {
		return fmt.Errorf("metrics.path %q must start with /", cfg.Path)
	}
	for _, entry := range cfg.AllowList {
		if strings.Contains(entry, "/") {
			if _, _, err := net.ParseCIDR(entry); err != nil {
				return fmt.Errorf("metrics.allow_list: %w", err)
			}
		} else if net.ParseIP(entry) == nil {
			return fmt.Errorf("metrics.allow_list: invalid IP %q", entry)
		}
	}
	return nil
}

func verifyNode(cfg *NodeSection) error {
	if len(cfg.Listeners) == 0 {
		return errors.New("node.listeners is required")
	}
	if err := verifyAddresses("node.listeners", cfg.Listeners); err != nil {
		return err
	}
	return verifyAddresses("node.advertise", cfg.Advertise)
}

func verifyCluster(cfg *ClusterSection, localID string) error {
	if cfg.ID == "" {
		return errors.New("cluster.id is required")
	}
	if _, err := semver.NewConstraint(cfg.ProtocolConstraint); err != nil {
		return fmt.Errorf("cluster.protocol_constraint: %w", err)
	}
	if cfg.SoftDisconnect <= 0 {
		return errors.New("cluster.soft_disconnect must be positive")
	}
	if cfg.HardDisconnect < 0 {
		return errors.New("cluster.hard_disconnect must not be negative")
	}
	if cfg.SnapshotInterval <= 0 {
		return errors.New("cluster.snapshot_interval must be positive")
	}
	if cfg.DisconnectCheckInterval <= 0 {
		return errors.New("cluster.disconnect_check_interval must be positive")
	}

	seen := make(map[string]struct{}, len(cfg.Peers))
	for i, p := range cfg.Peers {
		if p.UniqueID == "" {
			return fmt.Errorf("cluster.peers[%d].unique_id is required", i)
		}
		if p.UniqueID == localID {
			return fmt.Errorf("cluster.peers[%d]: %q is the local node", i, p.UniqueID)
		}
		if _, dup := seen[p.UniqueID]; dup {
			return fmt.Errorf("cluster.peers[%d]: duplicate peer %q", i, p.UniqueID)
		}
		seen[p.UniqueID] = struct{}{}
		if err := verifyAddresses(fmt.Sprintf("cluster.peers[%d].listeners", i), p.Listeners); err != nil {
			return err
		}
	}

	services := make(map[string]struct{}, len(cfg.Services))
	for i, s := range cfg.Services {
		if s.UniqueID == "" {
			return fmt.Errorf("cluster.services[%d].unique_id is required", i)
		}
		if _, dup := services[s.UniqueID]; dup {
			return fmt.Errorf("cluster.services[%d]: duplicate service %q", i, s.UniqueID)
		}
		services[s.UniqueID] = struct{}{}
		if err := secret.CheckHash(s.SecretHash); err != nil {
			return fmt.Errorf("cluster.services[%d].secret_hash: %w", i, err)
		}
	}

	if cfg.Gossip.Enabled && (cfg.Gossip.BindPort < 0 || cfg.Gossip.BindPort > 65535) {
		return fmt.Errorf("cluster.gossip.bind_port %d out of range", cfg.Gossip.BindPort)
	}
	return nil
}

func verifyNetwork(cfg *NetworkSection) error {
	transport, err := network.ParseTransport(cfg.Transport)
	if err != nil {
		return fmt.Errorf("network.transport: %w", err)
	}
	if cfg.DialTimeout < 0 || cfg.ReadTimeout < 0 || cfg.WriteTimeout < 0 ||
		cfg.IdleTimeout < 0 || cfg.QueryTimeout < 0 {
		return errors.New("network timeouts must not be negative")
	}

	tls := &cfg.TLS
	if transport == network.TransportQUIC && !tls.Enabled {
		return errors.New("network.tls.enabled is required for the quic transport")
	}
	if !tls.Enabled {
		return nil
	}
	if (tls.CertFile == "") != (tls.KeyFile == "") {
		return errors.New("network.tls.cert_file and network.tls.key_file must be set together")
	}
	if tls.CertFile == "" && !tls.SelfSigned {
		return errors.New("network.tls requires cert_file and key_file, or self_signed")
	}
	for _, f := range []string{tls.CertFile, tls.KeyFile, tls.CAFile} {
		if f == "" {
			continue
		}
		if _, err := os.Stat(f); err != nil {
			return fmt.Errorf("network.tls: %w", err)
		}
	}
	return nil
}

func verifyTransfer(cfg *TransferSection) error {
	// Room for the chunk header inside one frame.
	const maxChunk = protocol.MaxFrameSize - 64*1024
	if cfg.ChunkSize <= 0 || cfg.ChunkSize > maxChunk {
		return fmt.Errorf("transfer.chunk_size must be in (0, %d]", maxChunk)
	}
	if cfg.RateLimit < 0 {
		return errors.New("transfer.rate_limit must not be negative")
	}
	if cfg.TempDir != "" {
		if err := os.MkdirAll(cfg.TempDir, 0o750); err != nil {
			return errors.New("cannot create transfer.temp_dir: " + err.Error())
		}
	}
	return nil
}

func verifyLog(cfg *LogSection) error {
	switch strings.ToLower(cfg.Level) {
	case "debug", "info", "warn", "warning", "error", "":
	default:
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", cfg.Level)
	}
	switch strings.ToLower(cfg.Format) {
	case "json", "text", "":
	default:
		return fmt.Errorf("log.format %q is not json or text", cfg.Format)
	}
	return nil
}

func verifyAddresses(field string, addrs []string) error {
	for _, a := range addrs {
		if _, err := network.ParseHostAndPort(a); err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
	}
	return nil
}
