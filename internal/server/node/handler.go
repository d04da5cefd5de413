package node

import "github.com/yndnr/nodemesh-go/internal/network"

// providerHandler forwards channel lifecycle to the provider. Channels
// accepted before the provider exists wait for it; channels opened while
// the node shuts down are refused.
type providerHandler struct {
	n        *Node
	outbound bool
}

func (h providerHandler) HandleChannelInitialize(ch network.Channel) error {
	select {
	case <-h.n.ready:
	case <-h.n.closing:
		return ErrStopped
	}
	p := h.n.provider.Load()
	if h.outbound {
		return p.ClientHandler().HandleChannelInitialize(ch)
	}
	return p.HandleChannelInitialize(ch)
}

func (h providerHandler) HandleChannelClose(ch network.Channel) {
	p := h.n.provider.Load()
	if p == nil {
		return
	}
	if h.outbound {
		p.ClientHandler().HandleChannelClose(ch)
		return
	}
	p.HandleChannelClose(ch)
}
