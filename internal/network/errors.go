package network

import "errors"

var (
	// ErrChannelClosed is returned for sends on a closed channel and fails
	// every query still pending when a channel closes.
	ErrChannelClosed = errors.New("network: channel closed")

	// ErrQueryTimeout is returned when no reply arrives in time.
	ErrQueryTimeout = errors.New("network: query timed out")

	// ErrNoAddress is returned when a dial target has no listener address.
	ErrNoAddress = errors.New("network: no address to connect to")

	// ErrUnknownTransport is returned for a transport other than tcp or quic.
	ErrUnknownTransport = errors.New("network: unknown transport")
)
