package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/kstaniek/go-cave-crawler/internal/metrics"
)

// startReader drains the client side of the connection. Clients have nothing
// to say after the hello; reading only detects disconnects early.
func (s *Server) startReader(ctxDone <-chan struct{}, conn net.Conn, logger *slog.Logger) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() { _ = conn.Close() }()
		buf := make([]byte, 256)
		for {
			_ = conn.SetReadDeadline(time.Now().Add(s.cfg.readDeadline))
			n, err := conn.Read(buf)
			if n > 0 {
				s.stats.ignoredIn.Add(uint64(n))
			}
			if err != nil {
				if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
					return
				}
				if ne, ok := err.(net.Error); ok && ne.Timeout() {
					select {
					case <-ctxDone:
						return
					default:
						continue
					}
				}
				wrap := fmt.Errorf("%w: %v", ErrConnRead, err)
				metrics.IncError(mapErrToMetric(wrap))
				logger.Debug("client_read_error", "error", wrap)
				return
			}
			select {
			case <-ctxDone:
				return
			default:
			}
		}
	}()
}
