//go:build linux

package netif

import (
	"fmt"
	"net"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

// enumerate lists links and addresses over netlink. Address order within a
// link follows the kernel's dump order.
func enumerate() (Snapshot, error) {
	links, err := netlink.LinkList()
	if err != nil {
		return nil, fmt.Errorf("failed to list interfaces: %w", err)
	}

	snap := make(Snapshot, 0, len(links))
	for _, link := range links {
		attrs := link.Attrs()

		flags := flagNames(attrs.Flags)
		if attrs.RawFlags&unix.IFF_RUNNING != 0 && attrs.Flags&net.FlagRunning == 0 {
			flags = append(flags, "running")
		}
		iface := NewInterface(attrs.Name, flags)

		addrs, err := netlink.AddrList(link, netlink.FAMILY_ALL)
		if err != nil {
			return nil, fmt.Errorf("failed to get addresses for interface %s: %w", attrs.Name, err)
		}
		for _, a := range addrs {
			if a.IPNet == nil {
				continue
			}
			addr, ok := toAddr(a.IP, attrs.Name)
			if !ok {
				continue
			}
			bits, _ := a.Mask.Size()
			iface.Addrs = append(iface.Addrs, Address{Addr: addr, Bits: bits, Interface: iface})
		}
		snap = append(snap, iface)
	}
	return snap, nil
}
