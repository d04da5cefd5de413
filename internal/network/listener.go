package network

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/yndnr/nodemesh-go/internal/network/protocol"
)

// Listener handles inbound packets for one channel id.
type Listener interface {
	HandlePacket(ch Channel, p *protocol.Packet) error
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ch Channel, p *protocol.Packet) error

// HandlePacket calls f(ch, p).
func (f ListenerFunc) HandlePacket(ch Channel, p *protocol.Packet) error {
	return f(ch, p)
}

// ListenerSet maps channel ids to the listeners installed for them.
type ListenerSet map[int32][]Listener

// ListenerRegistry holds the listeners of one channel, keyed by channel id.
type ListenerRegistry struct {
	mu        sync.RWMutex
	listeners ListenerSet
	logger    *slog.Logger
}

// NewListenerRegistry creates an empty registry.
func NewListenerRegistry(logger *slog.Logger) *ListenerRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &ListenerRegistry{
		listeners: make(ListenerSet),
		logger:    logger,
	}
}

// Add appends listeners for a channel id.
func (r *ListenerRegistry) Add(channel int32, ls ...Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners[channel] = append(r.listeners[channel], ls...)
}

// Remove drops every listener for a channel id.
func (r *ListenerRegistry) Remove(channel int32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.listeners, channel)
}

// RemoveAll drops every listener.
func (r *ListenerRegistry) RemoveAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = make(ListenerSet)
}

// Swap atomically replaces the whole listener set.
func (r *ListenerRegistry) Swap(set ListenerSet) {
	next := make(ListenerSet, len(set))
	for ch, ls := range set {
		next[ch] = append([]Listener(nil), ls...)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = next
}

// Has reports whether at least one listener exists for channel.
func (r *ListenerRegistry) Has(channel int32) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listeners[channel]) > 0
}

// Channels returns the channel ids with listeners, sorted.
func (r *ListenerRegistry) Channels() []int32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]int32, 0, len(r.listeners))
	for ch, ls := range r.listeners {
		if len(ls) > 0 {
			out = append(out, ch)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Dispatch hands p to every listener of its channel id and reports whether
// any listener was found. The header and body read cursors are reset before
// each listener. Listener errors and panics are logged, never propagated.
func (r *ListenerRegistry) Dispatch(ch Channel, p *protocol.Packet) bool {
	r.mu.RLock()
	ls := r.listeners[p.Channel]
	r.mu.RUnlock()

	if len(ls) == 0 {
		return false
	}
	for _, l := range ls {
		if p.Header != nil {
			p.Header.Reset()
		}
		if p.Body != nil {
			p.Body.Reset()
		}
		if err := r.invoke(l, ch, p); err != nil {
			r.logger.Warn("packet listener failed",
				"channel", protocol.ChannelName(p.Channel),
				"remote", ch.RemoteAddr(),
				"error", err)
		}
	}
	return true
}

func (r *ListenerRegistry) invoke(l Listener, ch Channel, p *protocol.Packet) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("listener panic: %v", rec)
		}
	}()
	return l.HandlePacket(ch, p)
}
