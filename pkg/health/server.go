package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-logr/logr"
)

// Status represents the daemon's operational status
type Status struct {
	Healthy   bool                     `json:"healthy"`
	Ready     bool                     `json:"ready"`
	Uptime    string                   `json:"uptime"`
	Bindings  map[string]BindingStatus `json:"bindings"`
	StartTime time.Time                `json:"start_time"`
}

// BindingStatus represents the status of a single binding
type BindingStatus struct {
	Name         string    `json:"name"`
	Template     string    `json:"template"`
	Required     bool      `json:"required"`
	Active       bool      `json:"active"`
	Addresses    []string  `json:"addresses"`
	Resolutions  int64     `json:"resolutions"`
	Errors       int64     `json:"errors"`
	LastError    string    `json:"last_error,omitempty"`
	LastResolved time.Time `json:"last_resolved,omitempty"`
}

// Server provides health check and status endpoints
type Server struct {
	addr      string
	server    *http.Server
	logger    logr.Logger
	startTime time.Time

	mu       sync.RWMutex
	bindings map[string]*BindingStatus
	ready    bool
}

// Config holds the health server configuration
type Config struct {
	Address string
	Port    int
	Logger  logr.Logger
}

// NewServer creates a new health check server
func NewServer(config Config) *Server {
	if config.Port == 0 {
		config.Port = 8081
	}

	addr := net.JoinHostPort(config.Address, fmt.Sprint(config.Port))

	s := &Server{
		addr:      addr,
		logger:    config.Logger,
		startTime: time.Now(),
		bindings:  make(map[string]*BindingStatus),
	}

	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	return s
}

// Handler returns the mux serving every health route
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/status", s.handleStatus)
	return mux
}

// Start starts the health check server
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	s.logger.Info("Starting health check server", "address", s.addr)

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error(err, "Health server error")
		}
	}()

	return nil
}

// Stop stops the health check server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping health check server")
	return s.server.Shutdown(ctx)
}

// SetReady marks the daemon as ready
func (s *Server) SetReady(ready bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = ready
}

// RegisterBinding registers a binding for status tracking. Re-registering
// keeps counters but takes the new template and required flag.
func (s *Server) RegisterBinding(name, template string, required bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b, exists := s.bindings[name]; exists {
		b.Template = template
		b.Required = required
		b.Active = isActive(b.Addresses, required)
		return
	}
	s.bindings[name] = &BindingStatus{
		Name:     name,
		Template: template,
		Required: required,
		Active:   !required,
	}
}

// UnregisterBinding removes a binding from tracking
func (s *Server) UnregisterBinding(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.bindings, name)
}

// UpdateBinding records the outcome of one resolution
func (s *Server) UpdateBinding(name string, addrs []string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, exists := s.bindings[name]
	if !exists {
		return
	}
	b.Resolutions++
	b.LastResolved = time.Now()
	b.Addresses = addrs
	if err != nil {
		b.Errors++
		b.LastError = err.Error()
	} else {
		b.LastError = ""
	}
	b.Active = isActive(addrs, b.Required)
}

// Healthy reports whether every binding is active
func (s *Server) Healthy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.healthyLocked()
}

func (s *Server) healthyLocked() bool {
	for _, b := range s.bindings {
		if !b.Active {
			return false
		}
	}
	return true
}

func isActive(addrs []string, required bool) bool {
	return len(addrs) > 0 || !required
}

// handleHealth handles /health and /healthz requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.Healthy() {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "healthy\n")
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintf(w, "unhealthy\n")
	}
}

// handleReady handles /ready and /readyz requests
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	ready := s.ready
	s.mu.RUnlock()

	if ready {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ready\n")
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintf(w, "not ready\n")
	}
}

// handleStatus handles /status requests
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := Status{
		Healthy:   s.healthyLocked(),
		Ready:     s.ready,
		Uptime:    time.Since(s.startTime).String(),
		StartTime: s.startTime,
		Bindings:  make(map[string]BindingStatus),
	}

	for name, b := range s.bindings {
		status.Bindings[name] = *b
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}
