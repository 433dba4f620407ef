// Package server accepts local client connections and answers the line
// protocol.
//
// Each connection is served by its own goroutine: read a line, dispatch
// it, write exactly one response line. A bad command never closes the
// connection; only an oversize line does, after answering
// "ERR: Line too long".
package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/metad/internal/metrics"
	"github.com/roach88/metad/internal/protocol"
)

// Handler answers one protocol line.
type Handler interface {
	Handle(ctx context.Context, line string) string
}

// Server serves the line protocol on a listener.
type Server struct {
	handler Handler
	logger  *slog.Logger
	metrics *metrics.Metrics
	newID   func() string

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closed   bool
	wg       sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics tracks open connections on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithIDGenerator replaces the random connection id generator.
func WithIDGenerator(next func() string) Option {
	return func(s *Server) {
		s.newID = next
	}
}

// New creates a Server answering with h.
func New(h Handler, opts ...Option) *Server {
	s := &Server{
		handler: h,
		logger:  slog.Default(),
		newID:   func() string { return uuid.NewString() },
		conns:   make(map[net.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Listen opens a listener. For unix sockets a stale socket file left by a
// previous run is removed first.
func Listen(network, address string) (net.Listener, error) {
	if network == "unix" {
		if err := removeStaleSocket(address); err != nil {
			return nil, err
		}
	}
	ln, err := net.Listen(network, address)
	if err != nil {
		return nil, fmt.Errorf("listen %s %s: %w", network, address, err)
	}
	return ln, nil
}

func removeStaleSocket(path string) error {
	info, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat socket: %w", err)
	}
	if info.Mode()&os.ModeSocket == 0 {
		return fmt.Errorf("%s exists and is not a socket", path)
	}
	// A live daemon answers the dial; refuse to steal its socket.
	if conn, err := net.Dial("unix", path); err == nil {
		conn.Close()
		return fmt.Errorf("socket %s is in use", path)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("remove stale socket: %w", err)
	}
	return nil
}

// Serve accepts connections on ln until ctx is cancelled or Close is
// called, then closes every open connection and waits for their
// goroutines. It returns nil after a clean shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ln.Close()
		return nil
	}
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("server listening", "network", ln.Addr().Network(), "address", ln.Addr().String())

	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosed() {
				s.wg.Wait()
				s.logger.Info("server stopped")
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				s.logger.Warn("accept timeout", "error", err)
				continue
			}
			s.Close()
			s.wg.Wait()
			return fmt.Errorf("accept: %w", err)
		}

		if !s.track(conn) {
			conn.Close()
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(ctx, conn)
		}()
	}
}

// Close stops accepting and closes every open connection. It is safe to
// call more than once.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	for conn := range s.conns {
		conn.Close()
	}
	return err
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
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

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	id := s.newID()
	log := s.logger.With("conn", id)
	log.Debug("connection opened", "remote", conn.RemoteAddr().String())
	s.metrics.ConnOpened()

	defer func() {
		s.untrack(conn)
		conn.Close()
		s.metrics.ConnClosed()
		log.Debug("connection closed")
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), protocol.MaxLineBytes)
	w := bufio.NewWriter(conn)

	for scanner.Scan() {
		resp := s.handle(ctx, log, scanner.Text())
		if _, err := w.WriteString(resp + "\n"); err != nil {
			log.Debug("write failed", "error", err)
			return
		}
		if err := w.Flush(); err != nil {
			log.Debug("write failed", "error", err)
			return
		}
	}

	if errors.Is(scanner.Err(), bufio.ErrTooLong) {
		log.Warn("line too long, closing connection", "limit", protocol.MaxLineBytes)
		w.WriteString("ERR: Line too long\n")
		w.Flush()
		drain(conn)
	}
}

// drain half-closes conn and discards unread input so that closing it does
// not reset the connection before the client reads the last response.
func drain(conn net.Conn) {
	if cw, ok := conn.(interface{ CloseWrite() error }); ok {
		cw.CloseWrite()
	}
	conn.SetReadDeadline(time.Now().Add(time.Second))
	io.Copy(io.Discard, io.LimitReader(conn, protocol.MaxLineBytes))
}

func (s *Server) handle(ctx context.Context, log *slog.Logger, line string) (resp string) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("handler panicked", "panic", r)
			resp = protocol.InternalErrorLine
		}
	}()
	return s.handler.Handle(ctx, line)
}
