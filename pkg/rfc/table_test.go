package rfc_test

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ishanjain/ift/pkg/rfc"
)

func TestDefaultClassify(t *testing.T) {
	testCases := map[string]struct {
		addr        string
		forwardable bool
		global      bool
		name        string
	}{
		"intranet":             {addr: "192.168.1.100", forwardable: true, global: false, name: "Private-Use"},
		"ten net":              {addr: "10.0.0.5", forwardable: true, global: false, name: "Private-Use"},
		"aws metadata":         {addr: "169.254.169.254", forwardable: false, global: false, name: "Link Local"},
		"public v4":            {addr: "172.217.9.142", forwardable: true, global: true, name: rfc.Unicast.Name},
		"public v6":            {addr: "2001:4860:4860::8844", forwardable: true, global: true, name: rfc.Unicast.Name},
		"6to4 relay":           {addr: "192.88.99.20", forwardable: true, global: true, name: "6to4 Relay Anycast"},
		"nat64":                {addr: "64:ff9b::255.255.255.255", forwardable: true, global: true, name: "IPv4-IPv6 Translat."},
		"loopback":             {addr: "127.0.0.1", forwardable: false, global: false, name: "Loopback"},
		"loopback v6":          {addr: "::1", forwardable: false, global: false, name: "Loopback Address"},
		"link local zoned":     {addr: "fe80::1%eth0", forwardable: false, global: false, name: "Linked-Scoped Unicast"},
		"unique local":         {addr: "fd00::1", forwardable: true, global: false, name: "Unique-Local"},
		"ipv4 mapped":          {addr: "::ffff:8.8.8.8", forwardable: false, global: false, name: "IPv4-mapped Address"},
		"teredo inside ietf":   {addr: "2001:0:4136:e378::1", forwardable: true, global: false, name: "TEREDO"},
		"documentation v6":     {addr: "2001:db8::1", forwardable: false, global: false, name: "Documentation"},
		"broadcast":            {addr: "255.255.255.255", forwardable: false, global: false, name: "Limited Broadcast"},
		"reserved class e":     {addr: "250.1.2.3", forwardable: false, global: false, name: "Reserved"},
		"shared address space": {addr: "100.64.1.1", forwardable: true, global: false, name: "Shared Address Space"},
		"ds-lite inside ietf":  {addr: "192.0.0.1", forwardable: true, global: false, name: "DS-Lite"},
		"ietf outside ds-lite": {addr: "192.0.0.9", forwardable: false, global: false, name: "IETF Protocol Assignments"},
		"unspecified v6":       {addr: "::", forwardable: false, global: false, name: "Unspecified Address"},
		"this network":         {addr: "0.0.0.0", forwardable: false, global: false, name: "This host on this network"},
	}
	table := rfc.Default()
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			addr := netip.MustParseAddr(tc.addr)
			e := table.Classify(addr)
			assert.Equal(t, tc.name, e.Name)
			assert.Equal(t, tc.forwardable, table.IsForwardable(addr))
			assert.Equal(t, tc.global, table.IsGlobal(addr))
		})
	}
}

// 192.0.0.0/24 is declared before the narrower 192.0.0.0/29, so a first-match
// scan would get every address in the /29 wrong.
func TestDefaultMostSpecific(t *testing.T) {
	all := netip.MustParsePrefix("192.0.0.0/24")
	specific := netip.MustParsePrefix("192.0.0.0/29")
	table := rfc.Default()
	for addr := all.Addr(); all.Contains(addr); addr = addr.Next() {
		assert.Equal(t, specific.Contains(addr), table.IsForwardable(addr), "address %s", addr)
	}
}

func TestDefaultGlobalRelay(t *testing.T) {
	relay := netip.MustParsePrefix("192.88.99.0/24")
	table := rfc.Default()
	for addr := relay.Addr(); relay.Contains(addr); addr = addr.Next() {
		require.True(t, table.IsGlobal(addr), "address %s", addr)
	}
}

func TestClassifyFallback(t *testing.T) {
	table := rfc.NewTable([]rfc.Entry{
		{Prefix: netip.MustParsePrefix("10.0.0.0/8"), Name: "private", Forwardable: true},
	})
	e := table.Classify(netip.MustParseAddr("11.0.0.1"))
	assert.Equal(t, rfc.Unicast, e)
	assert.True(t, e.Forwardable)
	assert.True(t, e.Global)

	assert.Equal(t, rfc.Unicast, rfc.NewTable(nil).Classify(netip.MustParseAddr("::1")))
}

func TestClassifyLongestMatch(t *testing.T) {
	broad := rfc.Entry{Prefix: netip.MustParsePrefix("10.0.0.0/8"), Name: "broad"}
	narrow := rfc.Entry{Prefix: netip.MustParsePrefix("10.1.0.0/16"), Name: "narrow", Forwardable: true, Global: true}
	tie := rfc.Entry{Prefix: netip.MustParsePrefix("10.1.0.0/16"), Name: "tie"}

	testCases := map[string]struct {
		entries []rfc.Entry
		addr    string
		want    string
	}{
		"broad listed first": {
			entries: []rfc.Entry{broad, narrow},
			addr:    "10.1.2.3",
			want:    "narrow",
		},
		"narrow listed first": {
			entries: []rfc.Entry{narrow, broad},
			addr:    "10.1.2.3",
			want:    "narrow",
		},
		"outside carve-out": {
			entries: []rfc.Entry{broad, narrow},
			addr:    "10.2.0.1",
			want:    "broad",
		},
		"tie keeps declaration order": {
			entries: []rfc.Entry{broad, narrow, tie},
			addr:    "10.1.0.1",
			want:    "narrow",
		},
		"tie reversed": {
			entries: []rfc.Entry{tie, narrow, broad},
			addr:    "10.1.0.1",
			want:    "tie",
		},
		"family mismatch": {
			entries: []rfc.Entry{broad, narrow},
			addr:    "::ffff:10.1.2.3",
			want:    rfc.Unicast.Name,
		},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			table := rfc.NewTable(tc.entries)
			assert.Equal(t, tc.want, table.Classify(netip.MustParseAddr(tc.addr)).Name)
		})
	}
}

func TestEntries(t *testing.T) {
	entries := rfc.Default().Entries()
	require.NotEmpty(t, entries)
	assert.Equal(t, "0.0.0.0/8", entries[0].Prefix.String())

	// callers cannot mutate the table
	entries[0].Forwardable = true
	assert.False(t, rfc.Default().IsForwardable(netip.MustParseAddr("0.1.2.3")))
	assert.False(t, rfc.Default().Entries()[0].Forwardable)

	for _, e := range rfc.Default().Entries() {
		if e.Destination {
			continue
		}
		assert.False(t, e.Forwardable, "%s: non-destination block marked forwardable", e.Prefix)
		assert.False(t, e.Global, "%s: non-destination block marked global", e.Prefix)
	}
}

func TestEntryLastAddr(t *testing.T) {
	e := rfc.Entry{Prefix: netip.MustParsePrefix("192.168.0.0/16")}
	assert.Equal(t, netip.MustParseAddr("192.168.255.255"), e.LastAddr())
}

func TestSet(t *testing.T) {
	set, err := rfc.Default().Set(func(e rfc.Entry) bool { return !e.Forwardable })
	require.NoError(t, err)

	assert.True(t, set.Contains(netip.MustParseAddr("127.0.0.1")))
	assert.True(t, set.Contains(netip.MustParseAddr("192.0.0.9")))
	assert.False(t, set.Contains(netip.MustParseAddr("192.0.0.1")), "DS-Lite carve-out is forwardable")
	assert.False(t, set.Contains(netip.MustParseAddr("10.0.0.1")))
	assert.False(t, set.Contains(netip.MustParseAddr("8.8.8.8")), "unlisted space is never included")
}
