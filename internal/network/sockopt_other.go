//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package network

import "net"

func listenConfig(bool) net.ListenConfig {
	return net.ListenConfig{}
}
