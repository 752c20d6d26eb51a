package socket

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/go-logr/logr"
)

// DaemonController interface for daemon operations
type DaemonController interface {
	GetStatus() StatusResponse
	ListBindings() []BindingInfo
	Resolve(name string) (BindingInfo, error)
	EvalTemplate(tmpl string) ([]string, error)
}

// Command represents a command from the ift client
type Command struct {
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
}

// Response represents a response to the client
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// StatusResponse contains daemon status information
type StatusResponse struct {
	Ready          bool      `json:"ready"`
	ConfigPath     string    `json:"config_path"`
	BindingCount   int       `json:"binding_count"`
	FailingCount   int       `json:"failing_count"`
	InterfaceCount int       `json:"interface_count"`
	PollInterval   int       `json:"poll_interval"`
	LastResolved   time.Time `json:"last_resolved,omitempty"`
}

// BindingInfo is the last resolution of one configured binding
type BindingInfo struct {
	Name       string    `json:"name"`
	Template   string    `json:"template"`
	Port       int       `json:"port,omitempty"`
	Required   bool      `json:"required,omitempty"`
	Addresses  []string  `json:"addresses"`
	Error      string    `json:"error,omitempty"`
	ResolvedAt time.Time `json:"resolved_at"`
}

// commandTimeout bounds how long a client may take to send its command and
// read the reply.
const commandTimeout = 10 * time.Second

// Server handles control socket communication
type Server struct {
	socketPath string
	daemon     DaemonController
	listener   net.Listener
	logger     logr.Logger

	mu      sync.Mutex
	conns   map[net.Conn]struct{}
	stopped bool

	wg sync.WaitGroup
}

// NewServer creates a new control socket server
func NewServer(socketPath string, daemon DaemonController, logger logr.Logger) *Server {
	return &Server{
		socketPath: socketPath,
		daemon:     daemon,
		logger:     logger,
		conns:      make(map[net.Conn]struct{}),
	}
}

// Start starts the control socket server
func (s *Server) Start() error {
	listener, err := s.createListener()
	if err != nil {
		return err
	}
	s.listener = listener

	s.logger.Info("Control socket server started", "path", s.socketPath)

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Stop closes the listener and any open client connections, then waits for
// their handlers to return
func (s *Server) Stop() error {
	if s.listener != nil {
		s.listener.Close()
	}

	s.mu.Lock()
	s.stopped = true
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.removeSocket()
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			// Server stopped
			return
		}
		if !s.track(conn) {
			conn.Close()
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.handleConnection(conn)
		}()
	}
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}

func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(commandTimeout)); err != nil {
		s.logger.V(1).Info("Failed to set connection deadline", "error", err.Error())
	}

	reader := bufio.NewReader(conn)
	var cmd Command
	if err := json.NewDecoder(reader).Decode(&cmd); err != nil {
		s.sendError(conn, fmt.Sprintf("failed to decode command: %v", err))
		return
	}

	s.logger.V(1).Info("Received command", "command", cmd.Command, "args", cmd.Args)

	resp := s.executeCommand(cmd)

	if err := json.NewEncoder(conn).Encode(resp); err != nil {
		s.logger.Error(err, "Failed to send response")
	}
}

func (s *Server) executeCommand(cmd Command) Response {
	switch cmd.Command {
	case "status":
		return Response{Success: true, Data: s.daemon.GetStatus()}

	case "list":
		return Response{Success: true, Data: s.daemon.ListBindings()}

	case "resolve":
		if len(cmd.Args) == 0 {
			return Response{Success: false, Error: "binding name required"}
		}
		info, err := s.daemon.Resolve(cmd.Args[0])
		if err != nil {
			return Response{Success: false, Error: err.Error()}
		}
		return Response{Success: true, Data: info}

	case "eval":
		if len(cmd.Args) == 0 {
			return Response{Success: false, Error: "template required"}
		}
		addrs, err := s.daemon.EvalTemplate(cmd.Args[0])
		if err != nil {
			return Response{Success: false, Error: err.Error()}
		}
		return Response{Success: true, Data: addrs}

	default:
		return Response{Success: false, Error: fmt.Sprintf("unknown command: %s", cmd.Command)}
	}
}

func (s *Server) sendError(conn net.Conn, msg string) {
	json.NewEncoder(conn).Encode(Response{Success: false, Error: msg})
}

// Send dials the daemon at socketPath, issues cmd and decodes the reply into
// resp. Data is left as raw JSON so callers can pick their own type.
func Send(socketPath string, cmd Command) (*RawResponse, error) {
	conn, err := Dial(socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon: %w", err)
	}
	defer conn.Close()

	if err := json.NewEncoder(conn).Encode(cmd); err != nil {
		return nil, fmt.Errorf("failed to send command: %w", err)
	}

	var resp RawResponse
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return &resp, nil
}

// RawResponse is Response as seen by a client
type RawResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Decode unmarshals Data into v, turning an unsuccessful response into an error
func (r *RawResponse) Decode(v interface{}) error {
	if !r.Success {
		return fmt.Errorf("daemon error: %s", r.Error)
	}
	if v == nil {
		return nil
	}
	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
