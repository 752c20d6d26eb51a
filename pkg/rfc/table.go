package rfc

import (
	"fmt"
	"net/netip"
	"slices"
	"sync"

	"go4.org/netipx"
)

// Entry is one row of a special-purpose address registry.
type Entry struct {
	// Prefix is the reserved address block
	Prefix netip.Prefix

	// Name from the registry
	Name string

	// RFC that requested the block
	RFC string

	AllocationDate  string
	TerminationDate string

	// Source is true when the block is valid as a source address
	Source bool

	// Destination is true when the block is valid as a destination address
	Destination bool

	// Forwardable is true when a router may forward a datagram addressed
	// to the block between external interfaces
	Forwardable bool

	// Global is true when a datagram addressed to the block may be
	// forwarded beyond its administrative domain
	Global bool

	// ReservedByProtocol is true when IP itself reserves the block
	ReservedByProtocol bool
}

// LastAddr returns the last address covered by the entry's prefix.
func (e Entry) LastAddr() netip.Addr {
	return netipx.PrefixLastIP(e.Prefix)
}

func (e Entry) String() string {
	return fmt.Sprintf("%s (%s) forwardable=%t global=%t", e.Prefix, e.Name, e.Forwardable, e.Global)
}

// Unicast is returned by Classify for addresses no registry entry covers.
var Unicast = Entry{
	Name:        "General Unicast",
	Source:      true,
	Destination: true,
	Forwardable: true,
	Global:      true,
}

// Table classifies addresses against an ordered list of reserved ranges.
// A Table is immutable and safe for concurrent use.
type Table struct {
	entries []Entry
	// byPrefix holds indexes into entries, most specific prefix first,
	// declaration order within equal prefix lengths
	byPrefix []int
}

// NewTable builds a table from entries. Entries may overlap; Classify
// always picks the longest matching prefix.
func NewTable(entries []Entry) *Table {
	t := &Table{
		entries:  slices.Clone(entries),
		byPrefix: make([]int, len(entries)),
	}
	for i := range t.byPrefix {
		t.byPrefix[i] = i
	}
	slices.SortStableFunc(t.byPrefix, func(a, b int) int {
		return t.entries[b].Prefix.Bits() - t.entries[a].Prefix.Bits()
	})
	return t
}

var defaultTable = sync.OnceValue(func() *Table {
	return NewTable(rfc6890Entries)
})

// Default returns the process-wide RFC 6890 table.
func Default() *Table {
	return defaultTable()
}

// Entries returns the table's entries in declaration order.
func (t *Table) Entries() []Entry {
	return slices.Clone(t.entries)
}

// Classify returns the most specific entry containing addr, or Unicast
// when no entry does.
func (t *Table) Classify(addr netip.Addr) Entry {
	// Prefix.Contains never matches zoned addresses
	addr = addr.WithZone("")
	for _, i := range t.byPrefix {
		if t.entries[i].Prefix.Contains(addr) {
			return t.entries[i]
		}
	}
	return Unicast
}

func (t *Table) IsForwardable(addr netip.Addr) bool {
	return t.Classify(addr).Forwardable
}

func (t *Table) IsGlobal(addr netip.Addr) bool {
	return t.Classify(addr).Global
}

// Set returns the addresses whose classification matches pred. Space not
// covered by any entry is never included.
func (t *Table) Set(pred func(Entry) bool) (*netipx.IPSet, error) {
	var b netipx.IPSetBuilder
	// broad to narrow, so a carve-out overrides its enclosing block
	for _, i := range slices.Backward(t.byPrefix) {
		e := t.entries[i]
		if pred(e) {
			b.AddPrefix(e.Prefix)
		} else {
			b.RemovePrefix(e.Prefix)
		}
	}
	set, err := b.IPSet()
	if err != nil {
		return nil, fmt.Errorf("failed to build address set: %w", err)
	}
	return set, nil
}
