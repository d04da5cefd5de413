package network

import (
	"fmt"
	"net"
	"strconv"
)

// HostAndPort is a listener address as advertised to peers.
type HostAndPort struct {
	Host string
	Port int32
}

// ParseHostAndPort parses "host:port".
func ParseHostAndPort(s string) (HostAndPort, error) {
	host, port, err := net.SplitHostPort(s)
	if err != nil {
		return HostAndPort{}, fmt.Errorf("parse address %q: %w", s, err)
	}
	n, err := strconv.ParseUint(port, 10, 16)
	if err != nil {
		return HostAndPort{}, fmt.Errorf("parse port in %q: %w", s, err)
	}
	return HostAndPort{Host: host, Port: int32(n)}, nil
}

// HostAndPortOf converts a TCP or UDP address.
func HostAndPortOf(a net.Addr) HostAndPort {
	switch v := a.(type) {
	case *net.TCPAddr:
		return HostAndPort{Host: v.IP.String(), Port: int32(v.Port)}
	case *net.UDPAddr:
		return HostAndPort{Host: v.IP.String(), Port: int32(v.Port)}
	}
	hp, _ := ParseHostAndPort(a.String())
	return hp
}

// String returns "host:port".
func (h HostAndPort) String() string {
	return net.JoinHostPort(h.Host, strconv.Itoa(int(h.Port)))
}

// IsZero reports whether h is unset.
func (h HostAndPort) IsZero() bool {
	return h.Host == "" && h.Port == 0
}
