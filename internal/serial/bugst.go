package serial

import (
	"errors"
	"fmt"
	"io"
	"time"

	bugst "go.bug.st/serial"
)

// timedReader is the subset of go.bug.st/serial.Port used here.
type timedReader interface {
	Read(p []byte) (int, error)
	SetReadTimeout(t time.Duration) error
	Close() error
}

// BugstPort adapts a go.bug.st/serial port.
type BugstPort struct {
	port    timedReader
	timeout time.Duration // last timeout applied to port
}

var bugstOpen = func(name string, mode *bugst.Mode) (timedReader, error) {
	return bugst.Open(name, mode)
}

func openBugst(name string, baud int) (Port, error) {
	mode := &bugst.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   bugst.NoParity,
		StopBits: bugst.OneStopBit,
	}
	p, err := bugstOpen(name, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return &BugstPort{port: p}, nil
}

func (p *BugstPort) Fetch(b []byte, timeout time.Duration) (int, error) {
	if timeout != p.timeout {
		if err := p.port.SetReadTimeout(timeout); err != nil {
			return 0, bugstErr(err)
		}
		p.timeout = timeout
	}
	n, err := p.port.Read(b)
	if err != nil {
		return n, bugstErr(err)
	}
	return n, nil
}

func (p *BugstPort) Close() error { return p.port.Close() }

// bugstErr folds "port is gone" errors into io.EOF.
func bugstErr(err error) error {
	var pe *bugst.PortError
	if errors.As(err, &pe) && pe.Code() == bugst.PortClosed {
		return io.EOF
	}
	return err
}
