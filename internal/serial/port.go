// Package serial opens the crawler's USB CDC serial device and exposes it as a
// timed byte source.
//
// Three drivers are available. "termios" talks to the tty directly through
// poll(2) and is the default on Linux. "bugst" uses go.bug.st/serial and
// "tarm" uses github.com/tarm/serial; both work on any OS those libraries
// support.
package serial

import (
	"errors"
	"fmt"
	"time"
)

// Port is a device byte source. Fetch waits up to timeout for at least one
// byte. It returns (0, nil) when nothing arrived, io.EOF once the device is
// gone and any other error on I/O failure.
type Port interface {
	Fetch(p []byte, timeout time.Duration) (int, error)
	Close() error
}

const (
	DriverTermios = "termios"
	DriverBugst   = "bugst"
	DriverTarm    = "tarm"
)

// Drivers lists the accepted driver names.
var Drivers = []string{DriverTermios, DriverBugst, DriverTarm}

var ErrUnknownDriver = errors.New("unknown serial driver")

// Open opens name with the given driver. readTimeout is only used by drivers
// that fix their read timeout at open time (tarm).
func Open(driver, name string, baud int, readTimeout time.Duration) (Port, error) {
	if name == "" {
		return nil, errors.New("serial: empty device name")
	}
	switch driver {
	case DriverTermios, "":
		return openTermios(name, baud)
	case DriverBugst:
		return openBugst(name, baud)
	case DriverTarm:
		return openTarm(name, baud, readTimeout)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
}
