package cluster

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/hashicorp/memberlist"

	"github.com/yndnr/nodemesh-go/internal/network"
)

// DiscoveryConfig configures gossip discovery.
type DiscoveryConfig struct {
	// BindAddr and BindPort are the gossip endpoint. Port zero picks a free
	// port.
	BindAddr string
	BindPort int
	// Seeds are gossip addresses of nodes to join.
	Seeds []string
}

// nodeMetadata is published as memberlist node metadata.
type nodeMetadata struct {
	UniqueID  string   `json:"unique_id"`
	Listeners []string `json:"listeners"`
}

// Discovery refreshes the listener addresses of configured peers from
// gossip. Members that are not configured peers are ignored.
type Discovery struct {
	provider *Provider
	logger   *slog.Logger
	meta     []byte

	memberList *memberlist.Memberlist
	once       sync.Once
}

// NewDiscovery creates a discovery for p without starting gossip.
func NewDiscovery(p *Provider) (*Discovery, error) {
	meta := nodeMetadata{UniqueID: p.UniqueID()}
	for _, l := range p.LocalInfo().Listeners {
		meta.Listeners = append(meta.Listeners, l.String())
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("cluster: encode node metadata: %w", err)
	}
	if len(raw) > memberlist.MetaMaxSize {
		return nil, fmt.Errorf("cluster: node metadata of %d bytes exceeds %d", len(raw), memberlist.MetaMaxSize)
	}
	return &Discovery{
		provider: p,
		logger:   p.logger.With("component", "discovery"),
		meta:     raw,
	}, nil
}

// Start creates the memberlist and joins the seeds.
func (d *Discovery) Start(cfg DiscoveryConfig) error {
	mlConfig := memberlist.DefaultLANConfig()
	mlConfig.Name = d.provider.UniqueID()
	mlConfig.BindAddr = cfg.BindAddr
	mlConfig.BindPort = cfg.BindPort
	if cfg.BindPort != 0 {
		mlConfig.AdvertisePort = cfg.BindPort
	}
	mlConfig.Delegate = d
	mlConfig.Events = d
	mlConfig.LogOutput = &slogWriter{logger: d.logger}

	ml, err := memberlist.Create(mlConfig)
	if err != nil {
		return fmt.Errorf("cluster: create memberlist: %w", err)
	}
	d.memberList = ml

	if len(cfg.Seeds) > 0 {
		n, err := ml.Join(cfg.Seeds)
		if err != nil {
			_ = ml.Shutdown()
			return fmt.Errorf("cluster: join seeds: %w", err)
		}
		d.logger.Info("joined gossip", "seeds", cfg.Seeds, "joined_count", n)
	} else {
		d.logger.Info("gossip started without seeds")
	}
	return nil
}

// Members returns the current gossip members.
func (d *Discovery) Members() []*memberlist.Node {
	if d.memberList == nil {
		return nil
	}
	return d.memberList.Members()
}

// Shutdown leaves the gossip pool.
func (d *Discovery) Shutdown() error {
	var err error
	d.once.Do(func() {
		if d.memberList == nil {
			return
		}
		if leaveErr := d.memberList.Leave(0); leaveErr != nil {
			d.logger.Warn("failed to leave gossip", "error", leaveErr)
		}
		err = d.memberList.Shutdown()
	})
	return err
}

func (d *Discovery) refresh(node *memberlist.Node) {
	if node.Name == d.provider.UniqueID() || len(node.Meta) == 0 {
		return
	}
	var meta nodeMetadata
	if err := json.Unmarshal(node.Meta, &meta); err != nil {
		d.logger.Debug("ignoring member with bad metadata", "member", node.Name, "error", err)
		return
	}
	listeners := make([]network.HostAndPort, 0, len(meta.Listeners))
	for _, s := range meta.Listeners {
		hp, err := network.ParseHostAndPort(s)
		if err != nil {
			d.logger.Debug("ignoring bad listener", "member", node.Name, "listener", s, "error", err)
			continue
		}
		listeners = append(listeners, hp)
	}
	if d.provider.UpdateListeners(meta.UniqueID, listeners) {
		d.logger.Info("peer listeners refreshed", "peer", meta.UniqueID, "listeners", strings.Join(meta.Listeners, ","))
	}
}

// NotifyJoin implements memberlist.EventDelegate.
func (d *Discovery) NotifyJoin(node *memberlist.Node) { d.refresh(node) }

// NotifyUpdate implements memberlist.EventDelegate.
func (d *Discovery) NotifyUpdate(node *memberlist.Node) { d.refresh(node) }

// NotifyLeave implements memberlist.EventDelegate. Leaving members keep
// their addresses; health tracking decides their state.
func (d *Discovery) NotifyLeave(node *memberlist.Node) {
	d.logger.Debug("member left gossip", "member", node.Name)
}

// NodeMeta implements memberlist.Delegate.
func (d *Discovery) NodeMeta(limit int) []byte {
	if len(d.meta) > limit {
		return nil
	}
	return d.meta
}

func (d *Discovery) NotifyMsg([]byte)                {}
func (d *Discovery) GetBroadcasts(int, int) [][]byte { return nil }
func (d *Discovery) LocalState(bool) []byte          { return nil }
func (d *Discovery) MergeRemoteState([]byte, bool)   {}

// slogWriter routes memberlist's logger to slog.
type slogWriter struct {
	logger *slog.Logger
}

func (w *slogWriter) Write(p []byte) (int, error) {
	w.logger.Debug(strings.TrimSpace(string(p)))
	return len(p), nil
}
