package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// ConnSource reads a relayed frame stream from a bridge. It has the same
// Fetch contract as a serial port so the stream can be parsed like a device.
type ConnSource struct {
	conn net.Conn
}

// Dial connects to a bridge at addr and runs the hello exchange.
func Dial(ctx context.Context, addr string, timeout time.Duration) (*ConnSource, error) {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	if err := Handshake(ctx, conn, timeout); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	return &ConnSource{conn: conn}, nil
}

func (c *ConnSource) Fetch(p []byte, timeout time.Duration) (int, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, err
	}
	n, err := c.conn.Read(p)
	if n > 0 {
		return n, nil
	}
	if err == nil {
		return 0, nil
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return 0, nil
	}
	if errors.Is(err, net.ErrClosed) {
		return 0, io.EOF
	}
	return 0, err
}

func (c *ConnSource) Close() error { return c.conn.Close() }
