package serial

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/tarm/serial"
)

// tarm reports an expired read timeout as (0, io.EOF) and a vanished device
// as a *os.PathError.
type tarmReader interface {
	Read(p []byte) (int, error)
	Close() error
}

// TarmPort adapts github.com/tarm/serial. Its read timeout is fixed at open,
// so Fetch keeps reading until its own deadline passes.
//
// tarm cannot tell an expired timeout from a hung-up tty: both come back as
// an empty read. The termios timer only expires after at least half of
// readTimeout, so an empty read returning sooner is a hangup.
type TarmPort struct {
	port        tarmReader
	readTimeout time.Duration // as passed to tarm at open; 0 blocks
	now         func() time.Time
}

var tarmOpen = func(cfg *serial.Config) (tarmReader, error) { return serial.OpenPort(cfg) }

func openTarm(name string, baud int, readTimeout time.Duration) (Port, error) {
	cfg := &serial.Config{Name: name, Baud: baud, ReadTimeout: readTimeout}
	p, err := tarmOpen(cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return &TarmPort{port: p, readTimeout: readTimeout, now: time.Now}, nil
}

func (p *TarmPort) Fetch(b []byte, timeout time.Duration) (int, error) {
	deadline := p.now().Add(timeout)
	for {
		start := p.now()
		n, err := p.port.Read(b)
		if n > 0 {
			return n, nil
		}
		var perr *os.PathError
		switch {
		case err == nil, errors.Is(err, io.EOF):
			if p.readTimeout <= 0 || p.now().Sub(start) < p.readTimeout/2 {
				return 0, io.EOF
			}
			if !p.now().Before(deadline) {
				return 0, nil
			}
		case errors.As(err, &perr):
			return 0, io.EOF
		default:
			return 0, err
		}
	}
}

func (p *TarmPort) Close() error { return p.port.Close() }
