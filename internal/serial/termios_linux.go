//go:build linux

package serial

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

var baudRates = map[int]uint32{
	9600:    unix.B9600,
	19200:   unix.B19200,
	38400:   unix.B38400,
	57600:   unix.B57600,
	115200:  unix.B115200,
	230400:  unix.B230400,
	460800:  unix.B460800,
	500000:  unix.B500000,
	576000:  unix.B576000,
	921600:  unix.B921600,
	1000000: unix.B1000000,
	2000000: unix.B2000000,
}

// TermiosPort reads a raw-mode tty with poll(2) so every fetch can have its
// own timeout.
type TermiosPort struct {
	fd        int
	closeOnce sync.Once
	closeErr  error
}

func openTermios(name string, baud int) (Port, error) {
	speed, ok := baudRates[baud]
	if !ok {
		return nil, fmt.Errorf("serial: unsupported baud %d", baud)
	}
	fd, err := unix.Open(name, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	if err := makeRaw(fd, speed); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("configure %s: %w", name, err)
	}
	return &TermiosPort{fd: fd}, nil
}

// makeRaw mirrors cfmakeraw(3) at 8N1 and flushes pending input.
func makeRaw(fd int, speed uint32) error {
	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return err
	}
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB | unix.CSTOPB | unix.CBAUD
	t.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL | speed
	t.Ispeed = speed
	t.Ospeed = speed
	t.Cc[unix.VMIN] = 1
	t.Cc[unix.VTIME] = 0
	return unix.IoctlSetTermios(fd, unix.TCSETSF, t)
}

func (p *TermiosPort) Fetch(b []byte, timeout time.Duration) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	deadline := time.Now().Add(timeout)
	for {
		wait := time.Until(deadline)
		if wait < 0 {
			wait = 0
		}
		fds := []unix.PollFd{{Fd: int32(p.fd), Events: unix.POLLIN}}
		n, err := unix.Poll(fds, int((wait+time.Millisecond-1)/time.Millisecond))
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("poll: %w", err)
		}
		if n == 0 {
			return 0, nil
		}
		if fds[0].Revents&unix.POLLNVAL != 0 {
			return 0, io.EOF
		}
		r, err := unix.Read(p.fd, b)
		switch {
		case errors.Is(err, unix.EINTR), errors.Is(err, unix.EAGAIN):
			if time.Now().After(deadline) {
				return 0, nil
			}
			continue
		case errors.Is(err, unix.EIO), errors.Is(err, unix.ENXIO), errors.Is(err, unix.ENODEV), errors.Is(err, unix.EBADF):
			return 0, io.EOF
		case err != nil:
			return 0, fmt.Errorf("read: %w", err)
		case r == 0:
			// readable with no data: hangup
			return 0, io.EOF
		}
		return r, nil
	}
}

func (p *TermiosPort) Close() error {
	p.closeOnce.Do(func() { p.closeErr = unix.Close(p.fd) })
	return p.closeErr
}
