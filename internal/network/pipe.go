package network

import "net"

// Pipe connects two in-memory channels. left and right are notified like
// handlers of a server and a client. Both read loops are running when Pipe
// returns.
func Pipe(cfg ChannelConfig, left, right ChannelHandler) (Channel, Channel, error) {
	a, b := net.Pipe()
	ca := newConn(a, a.LocalAddr(), cfg, left)
	cb := newConn(b, b.LocalAddr(), cfg, right)
	if err := ca.start(nil); err != nil {
		_ = b.Close()
		return nil, nil, err
	}
	if err := cb.start(nil); err != nil {
		_ = ca.Close()
		return nil, nil, err
	}
	return ca, cb, nil
}

// HandlerFuncs adapts two functions to ChannelHandler. Nil functions are
// skipped.
type HandlerFuncs struct {
	Initialize func(ch Channel) error
	Closed     func(ch Channel)
}

func (h HandlerFuncs) HandleChannelInitialize(ch Channel) error {
	if h.Initialize == nil {
		return nil
	}
	return h.Initialize(ch)
}

func (h HandlerFuncs) HandleChannelClose(ch Channel) {
	if h.Closed != nil {
		h.Closed(ch)
	}
}
