package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/steveyegge/tuneup/internal/status"
)

// Handler answers a single command
type Handler interface {
	Handle(ctx context.Context, cmd Command) (any, error)
}

// Subscriber is the notification source for watch
type Subscriber interface {
	Subscribe(buffer int) (<-chan status.Notification, func())
}

// watchBuffer is the per-connection notification backlog
const watchBuffer = 64

// Server manages the control socket
type Server struct {
	socketPath string
	handler    Handler
	subscriber Subscriber
	logger     *slog.Logger

	listener net.Listener
	mu       sync.RWMutex
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	conns    sync.WaitGroup
}

// NewServer creates a new control server. subscriber may be nil, in which
// case watch is rejected.
func NewServer(socketPath string, handler Handler, subscriber Subscriber, logger *slog.Logger) (*Server, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(socketPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create socket directory: %w", err)
	}

	// Remove a socket left behind by a crashed previous instance
	if err := os.RemoveAll(socketPath); err != nil {
		return nil, fmt.Errorf("failed to remove existing socket: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		socketPath: socketPath,
		handler:    handler,
		subscriber: subscriber,
		logger:     logger,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}, nil
}

// Start begins listening for control commands
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("control server already running")
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to create control socket: %w", err)
	}

	s.listener = listener
	s.running = true
	s.mu.Unlock()

	s.logger.Info("control server listening", "socket", s.socketPath)

	go s.acceptLoop(ctx)
	return nil
}

func (s *Server) acceptLoop(ctx context.Context) {
	defer close(s.doneCh)
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		default:
		}

		// Accept timeout lets the loop notice the stop channel
		if err := s.listener.(*net.UnixListener).SetDeadline(time.Now().Add(time.Second)); err != nil {
			s.logger.Warn("failed to set accept deadline", "error", err)
			continue
		}

		conn, err := s.listener.Accept()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			select {
			case <-s.stopCh:
				return
			default:
			}
			s.logger.Warn("control accept error", "error", err)
			continue
		}

		s.conns.Add(1)
		go func() {
			defer s.conns.Done()
			s.handleConnection(ctx, conn)
		}()
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer func() { _ = conn.Close() }()

	// Bound the wait for a command from a bad client
	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		s.logger.Warn("failed to set read deadline", "error", err)
		return
	}

	var cmd Command
	if err := json.NewDecoder(conn).Decode(&cmd); err != nil {
		s.sendError(conn, fmt.Sprintf("failed to decode command: %v", err))
		return
	}
	if cmd.Timestamp.IsZero() {
		cmd.Timestamp = time.Now()
	}

	if cmd.Type == CmdWatch {
		s.streamNotifications(ctx, conn)
		return
	}

	var resp Response
	if s.handler == nil {
		resp = Response{
			Success: false,
			Message: "No command handler registered",
			Error:   "server misconfiguration",
		}
	} else if data, err := s.handler.Handle(ctx, cmd); err != nil {
		resp = Response{
			Success: false,
			Message: fmt.Sprintf("Command failed: %v", err),
			Error:   err.Error(),
		}
	} else {
		resp = Response{
			Success: true,
			Message: fmt.Sprintf("Command '%s' completed successfully", cmd.Type),
		}
		if resp.Data, err = json.Marshal(data); err != nil {
			resp = Response{Success: false, Message: "failed to encode result", Error: err.Error()}
		}
	}

	if err := s.sendResponse(conn, resp); err != nil {
		s.logger.Warn("failed to send control response", "command", cmd.Type, "error", err)
	}
}

// streamNotifications forwards notifications until the client goes away or
// the server stops.
func (s *Server) streamNotifications(ctx context.Context, conn net.Conn) {
	if s.subscriber == nil {
		s.sendError(conn, "watch is not available")
		return
	}
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		s.logger.Warn("failed to clear read deadline", "error", err)
		return
	}

	ch, cancel := s.subscriber.Subscribe(watchBuffer)
	defer cancel()

	if err := s.sendResponse(conn, Response{Success: true, Message: "watching"}); err != nil {
		return
	}

	// A read returning means the client hung up
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		buf := make([]byte, 1)
		for {
			if _, err := conn.Read(buf); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-gone:
			return
		case n, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(n)
			if err != nil {
				s.logger.Warn("failed to encode notification", "kind", n.Kind, "error", err)
				continue
			}
			if err := s.sendResponse(conn, Response{Success: true, Message: string(n.Kind), Data: data}); err != nil {
				return
			}
		}
	}
}

func (s *Server) sendError(conn net.Conn, message string) {
	resp := Response{
		Success: false,
		Message: message,
		Error:   message,
	}
	_ = s.sendResponse(conn, resp) // Ignore errors on error path
}

func (s *Server) sendResponse(conn net.Conn, resp Response) error {
	if err := conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
		return err
	}
	return json.NewEncoder(conn).Encode(resp)
}

// Stop stops the control server and waits for open connections to finish
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	close(s.stopCh)

	// Close listener to unblock Accept
	if s.listener != nil {
		if err := s.listener.Close(); err != nil {
			s.logger.Warn("error closing control listener", "error", err)
		}
	}

	select {
	case <-s.doneCh:
	case <-time.After(5 * time.Second):
		s.logger.Warn("timeout waiting for control server shutdown")
	}
	s.conns.Wait()

	if err := os.RemoveAll(s.socketPath); err != nil {
		s.logger.Warn("failed to remove socket file", "error", err)
	}

	s.logger.Info("control server stopped")
	return nil
}

// IsRunning returns whether the server is currently running
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// SocketPath returns the path to the control socket
func (s *Server) SocketPath() string {
	return s.socketPath
}
