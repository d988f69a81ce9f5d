package server

import (
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/kstaniek/go-cave-crawler/internal/hub"
	"github.com/kstaniek/go-cave-crawler/internal/metrics"
	"github.com/kstaniek/go-cave-crawler/internal/wire"
)

// startWriter pushes hub records to one client, re-encoded as device frames.
func (s *Server) startWriter(ctxDone <-chan struct{}, conn net.Conn, cl *hub.Client, logger *slog.Logger) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			_ = conn.Close()
			s.detach(cl)
			logger.Info("client_disconnected")
		}()
		t := time.NewTicker(s.cfg.flushInterval)
		defer t.Stop()
		buf := make([]byte, 0, s.cfg.batchSize*wire.MaxFrameSize)
		pending := 0
		flush := func() error {
			if pending == 0 {
				return nil
			}
			n := pending
			_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.writeDeadline))
			_, err := conn.Write(buf)
			buf = buf[:0]
			pending = 0
			if err != nil {
				wrap := fmt.Errorf("%w: %v", ErrConnWrite, err)
				metrics.IncError(mapErrToMetric(wrap))
				return wrap
			}
			metrics.AddTCPTx(n)
			return nil
		}
		for {
			select {
			case r := <-cl.Out:
				buf = wire.AppendFrame(buf, r)
				pending++
				if pending >= s.cfg.batchSize {
					if err := flush(); err != nil {
						return
					}
				}
			case <-t.C:
				if err := flush(); err != nil {
					return
				}
			case <-cl.Closed:
				_ = flush()
				return
			case <-ctxDone:
				_ = flush()
				return
			}
		}
	}()
}
