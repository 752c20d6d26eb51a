//go:build !windows

package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ishanjain/ift/pkg/netif"
	"github.com/ishanjain/ift/pkg/rfc"
	"github.com/ishanjain/ift/pkg/socket"
)

// fakeHost is an Enumerator whose snapshot tests can swap
type fakeHost struct {
	mu   sync.Mutex
	snap netif.Snapshot
	err  error
}

func (f *fakeHost) Enumerate() (netif.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap, f.err
}

func (f *fakeHost) set(snap netif.Snapshot, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap, f.err = snap, err
}

func hostSnapshot() netif.Snapshot {
	return netif.Snapshot{
		netif.NewInterface("lo", []string{"up", "loopback", "running"},
			netip.MustParsePrefix("127.0.0.1/8"),
			netip.MustParsePrefix("::1/128"),
		),
		netif.NewInterface("eth0", []string{"up", "broadcast", "multicast", "running"},
			netip.MustParsePrefix("192.168.1.10/24"),
			netip.MustParsePrefix("203.0.114.5/24"),
		),
	}
}

const baseConfig = `
server:
  socket_path: %s
  output_file: %s
resolve:
  poll_interval: 1
bindings:
  - name: private
    template: GetPrivateInterfaces | FilterIPv4
    port: 8080
    required: true
  - name: public
    template: GetAllInterfaces | FilterGlobal | FilterFirst
  - name: missing
    template: GetInterface "wlan0"
  - name: off
    template: GetAllInterfaces
    enabled: false
`

type fixture struct {
	dir        string
	configPath string
	socketPath string
	outputPath string
	host       *fakeHost
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	// Keep the socket path short; sun_path is limited to ~104 bytes.
	dir, err := os.MkdirTemp("", "iftd")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	f := &fixture{
		dir:        dir,
		configPath: filepath.Join(dir, "config.yml"),
		socketPath: filepath.Join(dir, "s.sock"),
		outputPath: filepath.Join(dir, "out", "bindings.json"),
		host:       &fakeHost{snap: hostSnapshot()},
	}
	f.writeConfig(t, baseConfig)
	return f
}

func (f *fixture) writeConfig(t *testing.T, body string) {
	t.Helper()
	data := []byte(fmt.Sprintf(body, f.socketPath, f.outputPath))
	require.NoError(t, os.WriteFile(f.configPath, data, 0o644))
}

func (f *fixture) daemon(t *testing.T) *Daemon {
	t.Helper()
	d, err := New(f.configPath, logr.Discard(), WithEnumerator(f.host))
	require.NoError(t, err)
	return d
}

func TestNewInvalidConfig(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.WriteFile(f.configPath, []byte("bindings:\n  - name: x\n    template: Nope\n"), 0o644))
	_, err := New(f.configPath, logr.Discard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")
	assert.Contains(t, err.Error(), `unknown keyword "Nope"`)
}

func TestResolveAll(t *testing.T) {
	f := newFixture(t)
	d := f.daemon(t)
	require.NoError(t, d.ResolveAll())

	list := d.ListBindings()
	require.Len(t, list, 3, "disabled bindings are not resolved")

	assert.Equal(t, "private", list[0].Name)
	assert.Equal(t, []string{"203.0.114.5", "192.168.1.10"}, list[0].Addresses, "global first")
	assert.Equal(t, 8080, list[0].Port)
	assert.Empty(t, list[0].Error)

	assert.Equal(t, "public", list[1].Name)
	assert.Equal(t, []string{"203.0.114.5"}, list[1].Addresses)

	assert.Equal(t, "missing", list[2].Name)
	assert.Empty(t, list[2].Addresses)
	assert.Contains(t, list[2].Error, "wlan0")

	status := d.GetStatus()
	assert.Equal(t, 3, status.BindingCount)
	assert.Equal(t, 1, status.FailingCount)
	assert.Equal(t, 2, status.InterfaceCount)
	assert.Equal(t, 1, status.PollInterval)
	assert.False(t, status.LastResolved.IsZero())
	assert.False(t, status.Ready, "ready is set by Run")

	assert.True(t, d.healthServer.Healthy())
}

func TestResolveAllEnumerationError(t *testing.T) {
	f := newFixture(t)
	d := f.daemon(t)
	boom := errors.New("netlink: permission denied")
	f.host.set(nil, boom)

	err := d.ResolveAll()
	require.ErrorIs(t, err, boom)
	assert.Empty(t, d.ListBindings())
}

func TestRequiredBindingMakesDaemonUnhealthy(t *testing.T) {
	f := newFixture(t)
	d := f.daemon(t)
	f.host.set(netif.Snapshot{
		netif.NewInterface("lo", []string{"up", "loopback"}, netip.MustParsePrefix("127.0.0.1/8")),
	}, nil)

	require.NoError(t, d.ResolveAll())
	assert.False(t, d.healthServer.Healthy())
	assert.Equal(t, 2, d.GetStatus().FailingCount, "the empty required binding and the missing interface")
}

func TestWithTable(t *testing.T) {
	f := newFixture(t)
	// An empty table classifies everything as general unicast.
	d, err := New(f.configPath, logr.Discard(), WithEnumerator(f.host), WithTable(rfc.NewTable(nil)))
	require.NoError(t, err)

	info, err := d.Resolve("public")
	require.NoError(t, err)
	assert.Equal(t, []string{"127.0.0.1"}, info.Addresses)
}

func TestFlagOverridesSurviveReload(t *testing.T) {
	f := newFixture(t)
	override := filepath.Join(f.dir, "override.json")
	d, err := New(f.configPath, logr.Discard(),
		WithEnumerator(f.host),
		WithFlagOverrides(map[string]interface{}{"output": override}),
	)
	require.NoError(t, err)

	d.reloadConfig()
	require.NoError(t, d.ResolveAll())
	_, err = os.Stat(override)
	assert.NoError(t, err)
	_, err = os.Stat(f.outputPath)
	assert.True(t, os.IsNotExist(err))
}

func TestOutputFile(t *testing.T) {
	f := newFixture(t)
	d := f.daemon(t)
	require.NoError(t, d.ResolveAll())

	data, err := os.ReadFile(f.outputPath)
	require.NoError(t, err)

	var out outputFile
	require.NoError(t, json.Unmarshal(data, &out))
	require.Len(t, out.Bindings, 3)
	assert.Equal(t, "private", out.Bindings[0].Name)
	assert.Equal(t, []string{"203.0.114.5", "192.168.1.10"}, out.Bindings[0].Addresses)
	assert.False(t, out.ResolvedAt.IsZero())

	_, err = os.Stat(f.outputPath + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file is renamed away")
}

func TestResolve(t *testing.T) {
	f := newFixture(t)
	d := f.daemon(t)

	info, err := d.Resolve("private")
	require.NoError(t, err)
	assert.Equal(t, []string{"203.0.114.5", "192.168.1.10"}, info.Addresses)
	assert.Len(t, d.ListBindings(), 1)

	_, err = d.Resolve("nope")
	assert.ErrorIs(t, err, ErrUnknownBinding)

	_, err = d.Resolve("off")
	assert.ErrorIs(t, err, ErrBindingDisabled)
}

func TestResolvePicksUpInterfaceChanges(t *testing.T) {
	f := newFixture(t)
	d := f.daemon(t)
	require.NoError(t, d.ResolveAll())

	snap := hostSnapshot()
	snap = append(snap, netif.NewInterface("wlan0", []string{"up"}, netip.MustParsePrefix("10.9.8.7/16")))
	f.host.set(snap, nil)

	info, err := d.Resolve("missing")
	require.NoError(t, err)
	assert.Empty(t, info.Error)
	assert.Equal(t, []string{"10.9.8.7"}, info.Addresses)
}

func TestEvalTemplate(t *testing.T) {
	f := newFixture(t)
	d := f.daemon(t)

	addrs, err := d.EvalTemplate(`GetInterface "lo" | FilterIPv6`)
	require.NoError(t, err)
	assert.Equal(t, []string{"::1"}, addrs)

	addrs, err = d.EvalTemplate("GetAllInterfaces | FilterIPv4 | FilterIPv6")
	require.NoError(t, err)
	assert.Empty(t, addrs)

	_, err = d.EvalTemplate("GetAllInterfaces |")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse error at position 18")
}

func TestReloadConfig(t *testing.T) {
	f := newFixture(t)
	d := f.daemon(t)
	require.NoError(t, d.ResolveAll())

	f.writeConfig(t, `
server:
  socket_path: %s
  output_file: %s
resolve:
  poll_interval: 7
  strict_selection: true
bindings:
  - name: private
    template: GetPrivateInterfaces | FilterIPv6 | FilterFirst
  - name: loop
    template: GetInterface "lo"
`)
	d.reloadConfig()

	list := d.ListBindings()
	require.Len(t, list, 2)
	assert.Equal(t, "private", list[0].Name)
	assert.Contains(t, list[0].Error, "empty selection", "strict selection now applies")
	assert.Equal(t, "loop", list[1].Name)
	assert.Equal(t, []string{"127.0.0.1", "::1"}, list[1].Addresses)
	assert.Equal(t, 7, d.GetStatus().PollInterval)
}

func TestReloadDropsHealthOfDisabledBinding(t *testing.T) {
	f := newFixture(t)
	d := f.daemon(t)
	f.host.set(nil, errors.New("netlink: permission denied"))
	require.Error(t, d.ResolveAll())
	require.Empty(t, d.ListBindings())
	require.False(t, d.healthServer.Healthy(), "required binding never resolved")

	f.writeConfig(t, `
server:
  socket_path: %s
  output_file: %s
resolve:
  poll_interval: 1
bindings:
  - name: private
    template: GetPrivateInterfaces | FilterIPv4
    required: true
    enabled: false
  - name: public
    template: GetAllInterfaces | FilterGlobal | FilterFirst
`)
	f.host.set(hostSnapshot(), nil)
	d.reloadConfig()

	list := d.ListBindings()
	require.Len(t, list, 1)
	assert.Equal(t, "public", list[0].Name)
	assert.True(t, d.healthServer.Healthy())
}

func TestReloadInvalidConfigKeepsCurrent(t *testing.T) {
	f := newFixture(t)
	d := f.daemon(t)
	require.NoError(t, d.ResolveAll())

	require.NoError(t, os.WriteFile(f.configPath, []byte("resolve:\n  poll_interval: -3\n"), 0o644))
	d.reloadConfig()

	assert.Len(t, d.ListBindings(), 3)
	assert.Equal(t, 1, d.GetStatus().PollInterval)
}

func TestRun(t *testing.T) {
	f := newFixture(t)
	d := f.daemon(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := socket.Send(f.socketPath, socket.Command{Command: "status"})
		if err != nil {
			return false
		}
		var status socket.StatusResponse
		return resp.Decode(&status) == nil && status.Ready
	}, 5*time.Second, 20*time.Millisecond)

	resp, err := socket.Send(f.socketPath, socket.Command{Command: "list"})
	require.NoError(t, err)
	var list []socket.BindingInfo
	require.NoError(t, resp.Decode(&list))
	assert.Len(t, list, 3)

	// Editing the config file is picked up by the watcher. The watcher may
	// start after the daemon reports ready, so keep rewriting until it sees one.
	require.Eventually(t, func() bool {
		list := d.ListBindings()
		if len(list) == 1 && list[0].Name == "only" {
			return true
		}
		f.writeConfig(t, `
server:
  socket_path: %s
  output_file: %s
bindings:
  - name: only
    template: GetAllInterfaces | FilterFlags "loopback" | FilterIPv4
`)
		return false
	}, 5*time.Second, 200*time.Millisecond)
	assert.Equal(t, []string{"127.0.0.1"}, d.ListBindings()[0].Addresses)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	_, err = os.Stat(f.socketPath)
	assert.True(t, os.IsNotExist(err), "socket is removed on shutdown")
}

func TestAvailableInterfaces(t *testing.T) {
	snap := hostSnapshot()
	snap = append(snap, netif.NewInterface("tun0", []string{"down"}))
	assert.Equal(t, []string{
		"lo: 127.0.0.1/8",
		"lo: ::1/128",
		"eth0: 192.168.1.10/24",
		"eth0: 203.0.114.5/24",
		"tun0: -",
	}, availableInterfaces(snap))
}
