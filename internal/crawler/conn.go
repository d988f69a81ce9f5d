// Package crawler turns the byte stream of a cave-crawler microcontroller
// into typed sensor records.
//
// A Conn owns a fixed-size stream buffer and a pending flag. Each ReadAll call
// fetches bytes (unless a decodable frame is already pending), scans the
// buffer for frames, decodes them into the caller's sinks, and compacts what
// was consumed. Corrupted bytes are skipped one at a time until a frame
// boundary is found again; they never surface as errors.
//
// A Conn must be used from a single goroutine.
package crawler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/kstaniek/go-cave-crawler/internal/logging"
	"github.com/kstaniek/go-cave-crawler/internal/metrics"
	"github.com/kstaniek/go-cave-crawler/internal/wire"
)

const (
	DefaultBufferSize       = 2048
	DefaultReadTimeout      = 100 * time.Millisecond
	DefaultHandshakeTimeout = 5 * time.Second
)

// Stats are per-connection counters.
type Stats struct {
	Fetches uint64 // fetch attempts that reached the source
	BytesIn uint64
	Resyncs uint64 // bytes skipped while looking for a frame start
	Frames  uint64 // frames decoded into sinks
	Skipped uint64 // valid frames consumed without decoding
	Pending uint64 // reads that ended with StatusPending
}

// Conn is the connection handle to one device.
type Conn struct {
	src              Source
	buf              buffer
	bufSize          int
	pending          bool
	disconnected     bool
	closed           bool
	readTimeout      time.Duration
	handshakeTimeout time.Duration
	logger           *slog.Logger
	stats            Stats
}

type Option func(*Conn)

// WithReadTimeout bounds the wait of every non-pending read.
func WithReadTimeout(d time.Duration) Option {
	return func(c *Conn) {
		if d > 0 {
			c.readTimeout = d
		}
	}
}

// WithHandshakeTimeout bounds the wait for the first bytes in New.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Conn) {
		if d > 0 {
			c.handshakeTimeout = d
		}
	}
}

func WithBufferSize(n int) Option {
	return func(c *Conn) {
		if n > 0 {
			c.bufSize = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Conn) {
		if l != nil {
			c.logger = l
		}
	}
}

// New wraps src and waits for the device to start talking. If no byte arrives
// within the handshake timeout, src is closed and the returned error wraps
// both ErrHandshake and the fetch error.
//
// Bytes received during the handshake are kept. When they hold a complete
// frame the Conn starts pending, so the first ReadAll decodes it without
// fetching.
func New(src Source, opts ...Option) (*Conn, error) {
	if src == nil {
		return nil, errors.New("crawler: nil source")
	}
	c := &Conn{
		src:              src,
		bufSize:          DefaultBufferSize,
		readTimeout:      DefaultReadTimeout,
		handshakeTimeout: DefaultHandshakeTimeout,
		logger:           logging.L(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.bufSize < wire.MaxFrameSize {
		_ = src.Close()
		return nil, fmt.Errorf("crawler: buffer size %d below max frame size %d", c.bufSize, wire.MaxFrameSize)
	}
	c.buf = newBuffer(c.bufSize)
	n, err := c.fetch(c.handshakeTimeout)
	if err != nil {
		_ = src.Close()
		metrics.IncError(metrics.ErrHandshake)
		return nil, fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	c.pending = holdsFrame(c.buf.bytes())
	c.logger.Debug("device_handshake", "bytes", n, "timeout", c.handshakeTimeout, "pending", c.pending)
	return c, nil
}

// holdsFrame reports whether p contains a complete frame at any offset.
func holdsFrame(p []byte) bool {
	for off := 0; ; off++ {
		switch v, _ := wire.Scan(p[off:]); v {
		case wire.Valid:
			return true
		case wire.NeedMoreData:
			return false
		}
	}
}

// Close releases the source. It is safe to call on a nil Conn and more than once.
func (c *Conn) Close() error {
	if c == nil || c.closed {
		return nil
	}
	c.closed = true
	return c.src.Close()
}

// Pending reports whether the buffer holds a frame that the next read will
// decode without fetching.
func (c *Conn) Pending() bool { return c.pending }

// Buffered returns the number of unconsumed bytes.
func (c *Conn) Buffered() int { return c.buf.len() }

func (c *Conn) Stats() Stats { return c.stats }

// fetch appends whatever the source delivers within timeout to the buffer.
// The buffer is unchanged on error.
func (c *Conn) fetch(timeout time.Duration) (int, error) {
	switch {
	case c.closed:
		return 0, ErrClosed
	case c.disconnected:
		return 0, ErrDisconnected
	}
	tail := c.buf.tail()
	if len(tail) == 0 {
		return 0, ErrBufferFull
	}
	c.stats.Fetches++
	n, err := c.src.Fetch(tail, timeout)
	switch {
	case errors.Is(err, io.EOF):
		c.disconnected = true
		return 0, ErrDisconnected
	case err != nil:
		return 0, fmt.Errorf("%w: %v", ErrIO, err)
	case n == 0:
		return 0, ErrTimeout
	}
	c.buf.commit(n)
	c.stats.BytesIn += uint64(n)
	metrics.AddSerialRxBytes(n)
	return n, nil
}

// receive fetches more bytes unless a decodable frame is already pending.
func (c *Conn) receive() error {
	if c.closed {
		return ErrClosed
	}
	if c.pending {
		return nil
	}
	_, err := c.fetch(c.readTimeout)
	return err
}
