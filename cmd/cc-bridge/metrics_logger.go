package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/kstaniek/go-cave-crawler/internal/metrics"
)

// logMetrics periodically logs the local metric mirrors until ctx is done.
func logMetrics(ctx context.Context, interval time.Duration, l *slog.Logger) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			snap := metrics.Snap()
			l.Info("metrics_snapshot",
				"serial_rx_bytes", snap.RxBytes,
				"frames", snap.Frames,
				"skipped", snap.Skipped,
				"resyncs", snap.Resyncs,
				"pending", snap.Pending,
				"tcp_tx", snap.TCPTx,
				"nats_published", snap.Published,
				"nats_drops", snap.PublishDrops,
				"hub_clients", snap.HubClients,
				"hub_drops", snap.HubDrops,
				"errors", snap.Errors,
			)
		case <-ctx.Done():
			return
		}
	}
}
