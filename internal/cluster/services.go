package cluster

import (
	"slices"
	"sort"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/nodemesh-go/internal/api"
	"github.com/yndnr/nodemesh-go/internal/network"
	"github.com/yndnr/nodemesh-go/pkg/secret"
)

// serviceRecord is a local worker service.
type serviceRecord struct {
	secretHash string

	mu      sync.RWMutex
	info    api.ServiceInfo
	channel network.Channel
}

func (r *serviceRecord) snapshot() api.ServiceInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.info
}

func (r *serviceRecord) liveChannel() (network.Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.channel == nil || r.channel.Closed() {
		return nil, false
	}
	return r.channel, true
}

// AddService provisions a local service from configuration.
func (p *Provider) AddService(cfg ServiceConfig) error {
	rec := &serviceRecord{
		secretHash: cfg.SecretHash,
		info: api.ServiceInfo{
			UniqueID:     cfg.UniqueID,
			Name:         cfg.Name,
			NodeUniqueID: p.cfg.UniqueID,
		},
	}
	if !p.services.SetIfAbsent(cfg.UniqueID, rec) {
		return ErrServiceExists.WithDetails("%s", cfg.UniqueID)
	}
	return nil
}

// CreateService provisions a local service with a fresh id and connection
// secret. The secret is returned once; only its hash is kept.
func (p *Provider) CreateService(name string) (api.ServiceInfo, string, error) {
	plain, err := secret.Generate()
	if err != nil {
		return api.ServiceInfo{}, "", err
	}
	hash, err := secret.Hash(plain)
	if err != nil {
		return api.ServiceInfo{}, "", err
	}
	id := ulid.Make().String()
	if err := p.AddService(ServiceConfig{UniqueID: id, Name: name, SecretHash: hash}); err != nil {
		return api.ServiceInfo{}, "", err
	}
	info, _ := p.Service(id)
	return info, plain, nil
}

// RemoveService drops a local service and closes its channel.
func (p *Provider) RemoveService(id string) bool {
	rec, ok := p.services.Pop(id)
	if !ok {
		return false
	}
	if ch, live := rec.liveChannel(); live {
		_ = ch.Close()
	}
	return true
}

// Service returns a local service.
func (p *Provider) Service(id string) (api.ServiceInfo, bool) {
	rec, ok := p.services.Get(id)
	if !ok {
		return api.ServiceInfo{}, false
	}
	return rec.snapshot(), true
}

// Services lists the local services ordered by id.
func (p *Provider) Services() []api.ServiceInfo {
	recs := p.services.Values()
	out := make([]api.ServiceInfo, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UniqueID < out[j].UniqueID })
	return out
}

// ServiceChannel returns the channel of a connected local service.
func (p *Provider) ServiceChannel(id string) (network.Channel, bool) {
	rec, ok := p.services.Get(id)
	if !ok {
		return nil, false
	}
	return rec.liveChannel()
}

// acceptService binds ch to the service id when secret matches.
func (p *Provider) acceptService(ch network.Channel, plain, id string) (func(), error) {
	rec, ok := p.services.Get(id)
	if !ok {
		return nil, ErrServiceNotFound.WithDetails("%s", id)
	}
	match, err := secret.Verify(plain, rec.secretHash)
	if err != nil || !match {
		return nil, ErrAuthRejected.WithDetails("service %s: secret mismatch", id).WithCause(err)
	}

	rec.mu.Lock()
	if rec.channel != nil && !rec.channel.Closed() {
		rec.mu.Unlock()
		return nil, ErrAlreadyBound.WithDetails("service %s", id)
	}
	rec.channel = ch
	rec.info.Connected = true
	rec.info.Address = network.HostAndPortOf(ch.RemoteAddr())
	rec.info.Updated = p.now().UnixMilli()
	info := rec.info
	rec.mu.Unlock()

	p.bindings.Set(ch.ID(), binding{service: id})
	ch.Listeners().Swap(p.serviceSet())
	p.logger.Info("service connected", "service_id", id, "name", info.Name, "remote", info.Address.String())

	return func() {
		p.publish(api.LifecycleEvent{
			Kind:         api.ServiceConnected,
			NodeUniqueID: p.cfg.UniqueID,
			Services:     []api.ServiceInfo{info},
			Time:         p.now().UnixMilli(),
		})
		p.BroadcastSnapshot()
	}, nil
}

func (p *Provider) serviceLost(id string, ch network.Channel) {
	rec, ok := p.services.Get(id)
	if !ok {
		return
	}
	rec.mu.Lock()
	if rec.channel != ch {
		rec.mu.Unlock()
		return
	}
	rec.channel = nil
	rec.info.Connected = false
	rec.info.Updated = p.now().UnixMilli()
	info := rec.info
	rec.mu.Unlock()

	p.logger.Info("service disconnected", "service_id", id, "name", info.Name)
	p.publish(api.LifecycleEvent{
		Kind:         api.ServiceDisconnected,
		NodeUniqueID: p.cfg.UniqueID,
		Services:     []api.ServiceInfo{info},
		Time:         p.now().UnixMilli(),
	})
}

// connectedServiceChannels returns the channels of every connected local
// service.
func (p *Provider) connectedServiceChannels() []network.Channel {
	var out []network.Channel
	p.services.Range(func(_ string, r *serviceRecord) bool {
		if ch, ok := r.liveChannel(); ok {
			out = append(out, ch)
		}
		return true
	})
	return slices.Clip(out)
}
