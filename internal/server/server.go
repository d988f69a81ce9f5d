// Package server relays decoded sensor records to TCP clients.
//
// After a hello exchange (see Hello) the server streams records as device
// frames, so clients parse the relay exactly like the serial link.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kstaniek/go-cave-crawler/internal/hub"
	"github.com/kstaniek/go-cave-crawler/internal/logging"
	"github.com/kstaniek/go-cave-crawler/internal/metrics"
)

// Stats counts client connections over the server's lifetime.
type Stats struct {
	Accepted        uint64
	HandshakeFailed uint64
	Rejected        uint64 // over the client limit
	Connected       uint64
	Disconnected    uint64
	IgnoredBytes    uint64 // sent by clients after the hello
}

type counters struct {
	accepted, handshakeFailed, rejected atomic.Uint64
	connected, disconnected, ignoredIn  atomic.Uint64
}

// Server accepts relay clients and attaches each one to the hub.
type Server struct {
	Hub *hub.Hub

	cfg    settings
	logger *slog.Logger

	mu        sync.RWMutex
	addr      string
	listener  net.Listener
	ready     chan struct{}
	readyOnce sync.Once

	connsMu sync.Mutex
	conns   map[*hub.Client]net.Conn
	wg      sync.WaitGroup

	lastID atomic.Uint64
	stats  counters
}

func NewServer(opts ...ServerOption) *Server {
	s := &Server{
		cfg:    defaultSettings(),
		addr:   ":0",
		ready:  make(chan struct{}),
		conns:  make(map[*hub.Client]net.Conn),
		logger: logging.L(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.addr == "" {
		s.addr = ":0"
	}
	return s
}

// Addr is the configured address until Serve binds, then the bound one.
func (s *Server) Addr() string { s.mu.RLock(); defer s.mu.RUnlock(); return s.addr }

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} { return s.ready }

func (s *Server) Stats() Stats {
	c := &s.stats
	return Stats{
		Accepted:        c.accepted.Load(),
		HandshakeFailed: c.handshakeFailed.Load(),
		Rejected:        c.rejected.Load(),
		Connected:       c.connected.Load(),
		Disconnected:    c.disconnected.Load(),
		IgnoredBytes:    c.ignoredIn.Load(),
	}
}

// Serve listens and admits clients until ctx is done, then returns nil.
// Listener failures are returned wrapped in ErrListen or ErrAccept.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return s.fail(fmt.Errorf("%w: %v", ErrListen, err))
	}
	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.listener = ln
	s.mu.Unlock()
	s.readyOnce.Do(func() { close(s.ready) })
	s.logger.Info("tcp_listen", "addr", s.Addr())
	go func() { <-ctx.Done(); _ = ln.Close() }()

	for {
		conn, err := ln.Accept()
		switch {
		case err == nil:
			s.admit(ctx, conn)
		case ctx.Err() != nil, errors.Is(err, net.ErrClosed):
			return nil
		default:
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				time.Sleep(200 * time.Millisecond)
				continue
			}
			return s.fail(fmt.Errorf("%w: %v", ErrAccept, err))
		}
	}
}

func (s *Server) fail(err error) error {
	metrics.IncError(mapErrToMetric(err))
	s.logger.Error("tcp_server_error", "error", err)
	return err
}

// admit runs the hello exchange and the client limit, then starts the
// client's writer and reader. Rejected connections are closed here.
func (s *Server) admit(ctx context.Context, conn net.Conn) {
	s.stats.accepted.Add(1)
	l := s.logger.With("conn_id", s.lastID.Add(1), "remote", conn.RemoteAddr().String())
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
		_ = tcp.SetKeepAlive(true)
		_ = tcp.SetKeepAlivePeriod(30 * time.Second)
	}
	if err := Handshake(ctx, conn, s.cfg.handshakeTimeout); err != nil {
		err = fmt.Errorf("%w: %v", ErrHandshake, err)
		metrics.IncError(mapErrToMetric(err))
		s.stats.handshakeFailed.Add(1)
		l.Warn("handshake_failed", "error", err)
		_ = conn.Close()
		return
	}
	if s.full() {
		metrics.IncHubReject()
		s.stats.rejected.Add(1)
		l.Warn("client_reject_max", "max_clients", s.cfg.maxClients)
		_ = conn.Close()
		return
	}
	cl := s.attach(conn)
	s.stats.connected.Add(1)
	l.Info("client_connected")
	s.startWriter(ctx.Done(), conn, cl, l)
	s.startReader(ctx.Done(), conn, l)
}

func (s *Server) full() bool {
	return s.cfg.maxClients > 0 && s.Hub != nil && s.Hub.Count() >= s.cfg.maxClients
}

// attach registers conn with the hub using the hub's client buffer size.
func (s *Server) attach(conn net.Conn) *hub.Client {
	size := defaultClientBuffer
	if s.Hub != nil && s.Hub.OutBufSize > 0 {
		size = s.Hub.OutBufSize
	}
	cl := hub.NewClient(size)
	if s.Hub != nil {
		s.Hub.Add(cl)
	}
	s.connsMu.Lock()
	s.conns[cl] = conn
	s.connsMu.Unlock()
	return cl
}

// detach is called by the writer when the client goes away.
func (s *Server) detach(cl *hub.Client) {
	if s.Hub != nil {
		s.Hub.Remove(cl)
	}
	s.connsMu.Lock()
	delete(s.conns, cl)
	s.connsMu.Unlock()
	s.stats.disconnected.Add(1)
}

// Shutdown closes the listener and every client, then waits for the client
// goroutines or ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.listener = nil
	s.mu.Unlock()
	if ln != nil {
		_ = ln.Close()
	}
	s.connsMu.Lock()
	for cl, conn := range s.conns {
		_ = conn.Close()
		if s.Hub != nil {
			s.Hub.Remove(cl)
		}
	}
	s.connsMu.Unlock()

	done := make(chan struct{})
	go func() { s.wg.Wait(); close(done) }()
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: shutdown timeout: %v", ErrContext, ctx.Err())
	case <-done:
	}
	st := s.Stats()
	s.logger.Info("shutdown_summary",
		"accepted", st.Accepted,
		"handshake_fail", st.HandshakeFailed,
		"rejected", st.Rejected,
		"connected", st.Connected,
		"disconnected", st.Disconnected,
		"ignored_bytes", st.IgnoredBytes)
	return nil
}
