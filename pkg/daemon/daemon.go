package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"

	"github.com/ishanjain/ift/pkg/config"
	"github.com/ishanjain/ift/pkg/health"
	"github.com/ishanjain/ift/pkg/netif"
	"github.com/ishanjain/ift/pkg/rfc"
	"github.com/ishanjain/ift/pkg/socket"
	"github.com/ishanjain/ift/pkg/template"
)

var (
	// ErrUnknownBinding is returned by Resolve for a name not in the config.
	ErrUnknownBinding = errors.New("unknown binding")

	// ErrBindingDisabled is returned by Resolve for a binding with enabled: false.
	ErrBindingDisabled = errors.New("binding is disabled")
)

// Daemon resolves the configured bindings against the host's interfaces and
// serves the results over the control socket.
type Daemon struct {
	configPath string
	logger     logr.Logger
	enumerator netif.Enumerator
	table      *rfc.Table
	flags      map[string]interface{}

	socketServer *socket.Server
	healthServer *health.Server

	mu             sync.RWMutex
	config         *config.Config
	cache          *template.Cache
	evaluator      *template.Evaluator
	bindings       map[string]socket.BindingInfo
	interfaceCount int
	lastResolved   time.Time
	ready          bool
}

// Option customizes a Daemon
type Option func(*Daemon)

// WithEnumerator replaces host interface enumeration
func WithEnumerator(e netif.Enumerator) Option {
	return func(d *Daemon) { d.enumerator = e }
}

// WithTable replaces the classification table used by every evaluation
func WithTable(t *rfc.Table) Option {
	return func(d *Daemon) { d.table = t }
}

// WithConfig uses an already loaded config instead of reading configPath.
// Reloads still read configPath.
func WithConfig(cfg *config.Config) Option {
	return func(d *Daemon) { d.config = cfg }
}

// WithFlagOverrides applies CLI flags on top of every config load
func WithFlagOverrides(flags map[string]interface{}) Option {
	return func(d *Daemon) { d.flags = flags }
}

// New creates a new daemon instance
func New(configPath string, logger logr.Logger, opts ...Option) (*Daemon, error) {
	d := &Daemon{
		configPath: configPath,
		logger:     logger,
		enumerator: netif.Host,
		table:      rfc.Default(),
		bindings:   make(map[string]socket.BindingInfo),
	}
	for _, opt := range opts {
		opt(d)
	}

	if d.config == nil {
		cfg, err := d.loadConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		d.config = cfg
	}

	cache, err := template.NewCache(d.config.Resolve.CacheSize)
	if err != nil {
		return nil, err
	}
	d.cache = cache
	d.evaluator = d.newEvaluator(d.config)

	d.healthServer = health.NewServer(health.Config{
		Address: d.config.Health.Address,
		Port:    d.config.Health.Port,
		Logger:  d.logger,
	})
	for _, b := range d.config.GetEnabledBindings() {
		d.healthServer.RegisterBinding(b.Name, b.Template, b.Required)
	}

	return d, nil
}

func (d *Daemon) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFromFile(d.configPath)
	if err != nil {
		return nil, err
	}
	if d.flags != nil {
		cfg.MergeWithFlags(d.flags)
	}
	return cfg, nil
}

func (d *Daemon) newEvaluator(cfg *config.Config) *template.Evaluator {
	return template.NewEvaluator(template.Options{
		Table:           d.table,
		Logger:          d.logger.WithName("eval"),
		StrictSelection: cfg.Resolve.StrictSelection,
	})
}

// Run starts the control socket and health servers, resolves every binding
// once, then keeps them current until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	d.logger.Info("Starting iftd daemon", "config", d.configPath)

	d.mu.RLock()
	cfg := d.config
	d.mu.RUnlock()

	d.socketServer = socket.NewServer(cfg.Server.SocketPath, d, d.logger)
	if err := d.socketServer.Start(); err != nil {
		return fmt.Errorf("failed to start socket server: %w", err)
	}
	defer d.socketServer.Stop()

	if cfg.Health.Enabled {
		if err := d.healthServer.Start(); err != nil {
			d.logger.Error(err, "Failed to start health server")
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				d.healthServer.Stop(shutdownCtx)
			}()
		}
	}

	if err := d.ResolveAll(); err != nil {
		d.logger.Error(err, "Initial resolve failed - will retry on next poll")
	}
	d.mu.Lock()
	d.ready = true
	d.mu.Unlock()
	d.healthServer.SetReady(true)

	d.logger.Info("Daemon started successfully", "bindings", len(cfg.GetEnabledBindings()))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.pollingLoop(ctx) })
	g.Go(func() error { return d.watchConfig(ctx) })

	err := g.Wait()
	d.logger.Info("Daemon stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (d *Daemon) pollInterval() time.Duration {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return time.Duration(d.config.Resolve.PollInterval) * time.Second
}

func (d *Daemon) pollingLoop(ctx context.Context) error {
	interval := d.pollInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	d.logger.Info("Starting polling loop", "interval", interval.String())

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := d.ResolveAll(); err != nil {
				d.logger.Error(err, "Failed to resolve bindings")
			}
			if next := d.pollInterval(); next != interval {
				interval = next
				ticker.Reset(interval)
			}
		}
	}
}

// ResolveAll takes one interface snapshot and evaluates every enabled binding
// against it.
func (d *Daemon) ResolveAll() error {
	snap, err := d.enumerator.Enumerate()
	if err != nil {
		return fmt.Errorf("failed to enumerate interfaces: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	for _, b := range d.config.GetEnabledBindings() {
		d.recordLocked(d.resolveLocked(b, snap, now), snap)
	}
	d.interfaceCount = len(snap)
	d.lastResolved = now

	d.logger.V(1).Info("Resolved bindings", "interfaces", len(snap), "bindings", len(d.bindings))

	if path := d.config.Server.OutputFile; path != "" {
		if err := d.saveBindingsLocked(path); err != nil {
			d.logger.Error(err, "Failed to write output file", "path", path)
		}
	}
	return nil
}

// Resolve re-evaluates one binding against a fresh snapshot
func (d *Daemon) Resolve(name string) (socket.BindingInfo, error) {
	d.mu.RLock()
	b, ok := d.config.Binding(name)
	d.mu.RUnlock()
	if !ok {
		return socket.BindingInfo{}, fmt.Errorf("%w %q", ErrUnknownBinding, name)
	}
	if b.Enabled != nil && !*b.Enabled {
		return socket.BindingInfo{}, fmt.Errorf("%w: %q", ErrBindingDisabled, name)
	}

	snap, err := d.enumerator.Enumerate()
	if err != nil {
		return socket.BindingInfo{}, fmt.Errorf("failed to enumerate interfaces: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	info := d.resolveLocked(b, snap, time.Now())
	d.recordLocked(info, snap)
	return info, nil
}

// EvalTemplate evaluates an ad-hoc template against a fresh snapshot
func (d *Daemon) EvalTemplate(tmpl string) ([]string, error) {
	snap, err := d.enumerator.Enumerate()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate interfaces: %w", err)
	}

	d.mu.RLock()
	cache, evaluator := d.cache, d.evaluator
	d.mu.RUnlock()

	return evaluate(cache, evaluator, tmpl, snap)
}

func evaluate(cache *template.Cache, e *template.Evaluator, tmpl string, snap netif.Snapshot) ([]string, error) {
	p, err := cache.Parse(tmpl)
	if err != nil {
		return nil, err
	}
	addrs, err := e.Evaluate(p, snap)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.String())
	}
	return out, nil
}

func (d *Daemon) resolveLocked(b config.BindingConfig, snap netif.Snapshot, now time.Time) socket.BindingInfo {
	info := socket.BindingInfo{
		Name:       b.Name,
		Template:   b.Template,
		Port:       b.Port,
		Required:   b.Required,
		Addresses:  []string{},
		ResolvedAt: now,
	}
	addrs, err := evaluate(d.cache, d.evaluator, b.Template, snap)
	if err != nil {
		info.Error = err.Error()
		return info
	}
	info.Addresses = addrs
	return info
}

// recordLocked stores info and logs whatever changed since the last resolve
func (d *Daemon) recordLocked(info socket.BindingInfo, snap netif.Snapshot) {
	prev, existed := d.bindings[info.Name]
	d.bindings[info.Name] = info

	var resolveErr error
	if info.Error != "" {
		resolveErr = errors.New(info.Error)
	}
	d.healthServer.UpdateBinding(info.Name, info.Addresses, resolveErr)

	if info.Error != "" {
		if !existed || prev.Error != info.Error {
			d.logger.Error(resolveErr, "Failed to resolve binding",
				"binding", info.Name,
				"template", info.Template,
				"available_interfaces", availableInterfaces(snap))
		}
		return
	}

	if !existed || prev.Error != "" || !slices.Equal(prev.Addresses, info.Addresses) {
		d.logger.Info("Binding resolved",
			"binding", info.Name,
			"addresses", info.Addresses,
			"previous", prev.Addresses)
		if info.Required && len(info.Addresses) == 0 {
			d.logger.Info("⚠️  Required binding selected no addresses", "binding", info.Name)
		}
	}
}

type outputFile struct {
	ResolvedAt time.Time            `json:"resolved_at"`
	Bindings   []socket.BindingInfo `json:"bindings"`
}

func (d *Daemon) saveBindingsLocked(path string) error {
	data, err := json.MarshalIndent(outputFile{
		ResolvedAt: d.lastResolved,
		Bindings:   d.listLocked(),
	}, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	// Atomic write
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return err
	}
	return nil
}

func (d *Daemon) watchConfig(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		d.logger.Error(err, "Failed to create config watcher")
		return nil
	}
	defer watcher.Close()

	// Watch the directory (handles vim's rename-based saves)
	configDir := filepath.Dir(d.configPath)
	if err := watcher.Add(configDir); err != nil {
		d.logger.Error(err, "Failed to watch config directory", "path", configDir)
		return nil
	}

	d.logger.Info("Watching config file for changes", "path", d.configPath)

	target := filepath.Clean(d.configPath)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				d.logger.Info("Config file changed, reloading...", "path", event.Name)
				// Small delay to ensure file is fully written
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(100 * time.Millisecond):
				}
				d.reloadConfig()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			d.logger.Error(err, "Config watcher error")
		}
	}
}

func (d *Daemon) reloadConfig() {
	newCfg, err := d.loadConfig()
	if err != nil {
		d.logger.Error(err, "❌ Invalid config - reload failed", "path", d.configPath)
		d.logger.Info("⚠️  Keeping current configuration")
		return
	}

	d.mu.Lock()
	old := d.config

	if old.Resolve.CacheSize != newCfg.Resolve.CacheSize {
		cache, err := template.NewCache(newCfg.Resolve.CacheSize)
		if err != nil {
			d.mu.Unlock()
			d.logger.Error(err, "❌ Config reload aborted")
			return
		}
		d.cache = cache
	}
	d.evaluator = d.newEvaluator(newCfg)
	d.config = newCfg

	if old.Resolve.PollInterval != newCfg.Resolve.PollInterval {
		d.logger.Info("✓ Poll interval updated",
			"old", old.Resolve.PollInterval,
			"new", newCfg.Resolve.PollInterval)
	}
	if old.Server.SocketPath != newCfg.Server.SocketPath || old.Health != newCfg.Health {
		d.logger.Info("⚠️  Socket and health settings take effect after restart")
	}

	enabled := make(map[string]bool)
	for _, b := range newCfg.GetEnabledBindings() {
		enabled[b.Name] = true
		d.healthServer.RegisterBinding(b.Name, b.Template, b.Required)
	}
	// Bindings that never resolved are registered but absent from d.bindings.
	for _, b := range old.GetEnabledBindings() {
		if !enabled[b.Name] {
			d.healthServer.UnregisterBinding(b.Name)
		}
	}
	for name := range d.bindings {
		if !enabled[name] {
			delete(d.bindings, name)
			d.healthServer.UnregisterBinding(name)
			d.logger.Info("Removed binding", "binding", name)
		}
	}
	// Templates may have changed under an unchanged name.
	for name, info := range d.bindings {
		if b, _ := newCfg.Binding(name); b.Template != info.Template {
			delete(d.bindings, name)
		}
	}
	d.mu.Unlock()

	if err := d.ResolveAll(); err != nil {
		d.logger.Error(err, "Failed to resolve bindings after reload")
	}

	d.logger.Info("✅ Config reloaded successfully")
}

// Socket command implementations

func (d *Daemon) GetStatus() socket.StatusResponse {
	d.mu.RLock()
	defer d.mu.RUnlock()

	failing := 0
	for _, b := range d.bindings {
		if b.Error != "" || (b.Required && len(b.Addresses) == 0) {
			failing++
		}
	}

	return socket.StatusResponse{
		Ready:          d.ready,
		ConfigPath:     d.configPath,
		BindingCount:   len(d.bindings),
		FailingCount:   failing,
		InterfaceCount: d.interfaceCount,
		PollInterval:   d.config.Resolve.PollInterval,
		LastResolved:   d.lastResolved,
	}
}

func (d *Daemon) ListBindings() []socket.BindingInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.listLocked()
}

// listLocked returns resolved bindings in config order
func (d *Daemon) listLocked() []socket.BindingInfo {
	result := make([]socket.BindingInfo, 0, len(d.bindings))
	for _, b := range d.config.Bindings {
		if info, ok := d.bindings[b.Name]; ok {
			result = append(result, info)
		}
	}
	return result
}
