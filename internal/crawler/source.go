package crawler

import (
	"errors"
	"time"
)

// Source supplies raw device bytes. Implementations live in internal/serial.
type Source interface {
	// Fetch waits up to timeout for at least one byte and copies what is
	// available into p. It returns (0, nil) when the window elapsed without
	// data, io.EOF when the device is gone, and any other error on I/O failure.
	Fetch(p []byte, timeout time.Duration) (int, error)
	Close() error
}

// Sentinel errors used for wrapping so callers can classify via errors.Is.
var (
	ErrTimeout      = errors.New("timeout")
	ErrDisconnected = errors.New("disconnected")
	ErrIO           = errors.New("io")
	ErrBufferFull   = errors.New("buffer_full")
	ErrHandshake    = errors.New("handshake")
	ErrClosed       = errors.New("closed")
)
