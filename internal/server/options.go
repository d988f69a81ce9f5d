package server

import (
	"log/slog"
	"time"

	"github.com/kstaniek/go-cave-crawler/internal/hub"
)

const (
	defaultFlushInterval    = 5 * time.Millisecond
	defaultBatchSize        = 64
	defaultReadDeadline     = 60 * time.Second
	defaultWriteDeadline    = 5 * time.Second
	defaultHandshakeTimeout = 3 * time.Second
	defaultClientBuffer     = 512
)

// settings are fixed once Serve starts.
type settings struct {
	flushInterval    time.Duration // writer flushes a partial batch after this
	batchSize        int           // records per write
	readDeadline     time.Duration
	writeDeadline    time.Duration
	handshakeTimeout time.Duration
	maxClients       int // 0 = unlimited
}

func defaultSettings() settings {
	return settings{
		flushInterval:    defaultFlushInterval,
		batchSize:        defaultBatchSize,
		readDeadline:     defaultReadDeadline,
		writeDeadline:    defaultWriteDeadline,
		handshakeTimeout: defaultHandshakeTimeout,
	}
}

type ServerOption func(*Server)

func WithListenAddr(a string) ServerOption { return func(s *Server) { s.addr = a } }
func WithHub(hb *hub.Hub) ServerOption     { return func(s *Server) { s.Hub = hb } }

// positive applies v only when it is set.
func positive[T int | time.Duration](dst *T, v T) {
	if v > 0 {
		*dst = v
	}
}

func WithFlushInterval(d time.Duration) ServerOption {
	return func(s *Server) { positive(&s.cfg.flushInterval, d) }
}

func WithBatchSize(n int) ServerOption {
	return func(s *Server) { positive(&s.cfg.batchSize, n) }
}

// WithReadDeadline bounds each idle read on a client; reads only detect
// disconnects.
func WithReadDeadline(d time.Duration) ServerOption {
	return func(s *Server) { positive(&s.cfg.readDeadline, d) }
}

func WithWriteDeadline(d time.Duration) ServerOption {
	return func(s *Server) { positive(&s.cfg.writeDeadline, d) }
}

func WithHandshakeTimeout(d time.Duration) ServerOption {
	return func(s *Server) { positive(&s.cfg.handshakeTimeout, d) }
}

func WithMaxClients(n int) ServerOption {
	return func(s *Server) { positive(&s.cfg.maxClients, n) }
}

func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}
