//go:build !linux

package serial

import (
	"fmt"
	"runtime"
)

func openTermios(name string, baud int) (Port, error) {
	return nil, fmt.Errorf("serial: termios driver not supported on %s, use bugst or tarm", runtime.GOOS)
}
