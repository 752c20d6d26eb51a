package netif

import (
	"fmt"
	"net"
	"net/netip"
	"slices"
	"strings"
)

// Family is the address family of an Address
type Family int

const (
	IPv4 Family = iota + 1
	IPv6
)

func (f Family) String() string {
	switch f {
	case IPv4:
		return "IPv4"
	case IPv6:
		return "IPv6"
	default:
		return fmt.Sprintf("Family(%d)", int(f))
	}
}

// Interface is a network interface as captured in a Snapshot
type Interface struct {
	// Name is unique within a snapshot
	Name string

	// Flags such as "up", "loopback", "multicast", "pointtopoint"
	Flags []string

	// Addrs bound to the interface, in enumeration order
	Addrs []Address
}

// Address is one address bound to an interface
type Address struct {
	Addr netip.Addr

	// Bits is the prefix length, -1 when unknown
	Bits int

	// Interface owning the address
	Interface *Interface
}

// Snapshot is a point-in-time capture of the host's interfaces. It must not
// be modified once built.
type Snapshot []*Interface

// NewInterface creates an interface whose addresses point back to it.
func NewInterface(name string, flags []string, prefixes ...netip.Prefix) *Interface {
	iface := &Interface{
		Name:  name,
		Flags: slices.Clone(flags),
	}
	for _, p := range prefixes {
		iface.Addrs = append(iface.Addrs, Address{
			Addr:      p.Addr(),
			Bits:      p.Bits(),
			Interface: iface,
		})
	}
	return iface
}

// AddAddr appends a bare address with no prefix length.
func (i *Interface) AddAddr(addr netip.Addr) {
	i.Addrs = append(i.Addrs, Address{Addr: addr, Bits: -1, Interface: i})
}

// HasFlag reports whether the interface carries flag. Matching is exact.
func (i *Interface) HasFlag(flag string) bool {
	return slices.Contains(i.Flags, flag)
}

func (a Address) Family() Family {
	if a.Addr.Is4() {
		return IPv4
	}
	return IPv6
}

// Prefix returns the address with its prefix length, or a host prefix when
// the length is unknown.
func (a Address) Prefix() netip.Prefix {
	bits := a.Bits
	if bits < 0 {
		bits = a.Addr.BitLen()
	}
	return netip.PrefixFrom(a.Addr, bits)
}

func (a Address) String() string {
	return a.Addr.String()
}

// Lookup returns the interface called name.
func (s Snapshot) Lookup(name string) (*Interface, bool) {
	for _, iface := range s {
		if iface.Name == name {
			return iface, true
		}
	}
	return nil, false
}

// Enumerator supplies interface snapshots
type Enumerator interface {
	Enumerate() (Snapshot, error)
}

// EnumeratorFunc adapts a function to Enumerator
type EnumeratorFunc func() (Snapshot, error)

func (f EnumeratorFunc) Enumerate() (Snapshot, error) {
	return f()
}

// Host enumerates the interfaces of the running host.
var Host Enumerator = EnumeratorFunc(Enumerate)

// Enumerate captures the host's interfaces.
func Enumerate() (Snapshot, error) {
	return enumerate()
}

// FromNet converts stdlib interfaces into a snapshot. addrs is usually
// (net.Interface).Addrs.
func FromNet(ifaces []net.Interface, addrs func(net.Interface) ([]net.Addr, error)) (Snapshot, error) {
	snap := make(Snapshot, 0, len(ifaces))
	for _, ni := range ifaces {
		iface := NewInterface(ni.Name, flagNames(ni.Flags))
		list, err := addrs(ni)
		if err != nil {
			return nil, fmt.Errorf("failed to get addresses for interface %s: %w", ni.Name, err)
		}
		for _, a := range list {
			switch v := a.(type) {
			case *net.IPNet:
				addr, ok := toAddr(v.IP, ni.Name)
				if !ok {
					continue
				}
				bits, _ := v.Mask.Size()
				iface.Addrs = append(iface.Addrs, Address{Addr: addr, Bits: bits, Interface: iface})
			case *net.IPAddr:
				addr, ok := toAddr(v.IP, ni.Name)
				if !ok {
					continue
				}
				iface.AddAddr(addr)
			}
		}
		snap = append(snap, iface)
	}
	return snap, nil
}

// toAddr unmaps IPv4 and zones link-local IPv6 addresses with the interface name.
func toAddr(ip net.IP, zone string) (netip.Addr, bool) {
	addr, ok := netip.AddrFromSlice(ip)
	if !ok {
		return netip.Addr{}, false
	}
	addr = addr.Unmap()
	if addr.Is6() && (addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast()) {
		addr = addr.WithZone(zone)
	}
	return addr, true
}

// flagNames splits net.Flags into names. Interfaces that are not up also
// get "down".
func flagNames(f net.Flags) []string {
	var names []string
	if f != 0 {
		names = strings.Split(f.String(), "|")
	}
	if f&net.FlagUp == 0 {
		names = append(names, "down")
	}
	return names
}
