//go:build !linux

package netif

import (
	"fmt"
	"net"
)

func enumerate() (Snapshot, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to list interfaces: %w", err)
	}
	return FromNet(ifaces, func(i net.Interface) ([]net.Addr, error) {
		return i.Addrs()
	})
}
