package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// connTimeout bounds one admin exchange. The protocol is one small JSON
// object each way; anything slower is a stuck peer.
const connTimeout = 30 * time.Second

// Server accepts connections on a Unix domain socket and answers one
// command per connection. The socket is created mode 0600, so filesystem
// permissions are the channel's entire access control.
type Server struct {
	service    *Service
	socketPath string
	logger     zerolog.Logger

	mu       sync.Mutex
	listener net.Listener
	closed   bool
	wg       sync.WaitGroup
}

// NewServer creates a Server for the given socket path.
func NewServer(service *Service, socketPath string, logger zerolog.Logger) *Server {
	return &Server{
		service:    service,
		socketPath: socketPath,
		logger:     logger.With().Str("component", "admin_server").Logger(),
	}
}

// Start binds the socket and begins accepting connections in the
// background. It returns once the listener is ready.
func (s *Server) Start() error {
	// Remove a stale socket left by an unclean shutdown. A live instance
	// is excluded by the PID file before this point is reached.
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("admin: remove stale socket %s: %w", s.socketPath, err)
	}

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("admin: listen on %s: %w", s.socketPath, err)
	}

	// Only the owning user may issue admin commands.
	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		ln.Close()
		return fmt.Errorf("admin: chmod socket %s: %w", s.socketPath, err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info().Str("socket", s.socketPath).Msg("admin channel listening")

	s.wg.Add(1)
	go s.acceptLoop(ln)

	return nil
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosed() || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn().Err(err).Msg("admin accept failed")
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

// handleConn runs one exchange: decode a request, execute it, encode the
// response. A malformed payload gets an error envelope rather than a
// dropped connection, so operators always see why a command failed.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(connTimeout))

	var req Request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		resp := fail(CodeBadRequest, "invalid command payload: %v", err)
		if encErr := json.NewEncoder(conn).Encode(resp); encErr != nil {
			s.logger.Warn().Err(encErr).Msg("writing admin error response")
		}
		return
	}

	resp := s.service.Execute(context.Background(), &req)

	if err := json.NewEncoder(conn).Encode(resp); err != nil {
		s.logger.Warn().Err(err).Str("command", string(req.Command)).Msg("writing admin response")
	}
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Shutdown stops accepting connections, removes the socket file, and waits
// for in-flight exchanges to finish or the context to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	ln := s.listener
	s.mu.Unlock()

	if ln != nil {
		ln.Close()
	}
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		s.logger.Warn().Err(err).Msg("removing admin socket")
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("admin: shutdown: %w", ctx.Err())
	}
}
