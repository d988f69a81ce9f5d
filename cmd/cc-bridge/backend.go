package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kstaniek/go-cave-crawler/internal/crawler"
	"github.com/kstaniek/go-cave-crawler/internal/sensor"
	"github.com/kstaniek/go-cave-crawler/internal/serial"
)

// sleepFn allows tests to intercept backoff sleeps.
var sleepFn = time.Sleep

// openSerialPort is a hook for tests (overridden in unit tests).
var openSerialPort = func(driver, name string, baud int, readTimeout time.Duration) (crawler.Source, error) {
	return serial.Open(driver, name, baud, readTimeout)
}

// openDevice opens the serial port and waits for the device handshake.
func openDevice(cfg *appConfig, l *slog.Logger) (*crawler.Conn, error) {
	src, err := openSerialPort(cfg.driver, cfg.serialDev, cfg.baud, cfg.readTO)
	if err != nil {
		return nil, fmt.Errorf("open serial: %w", err)
	}
	l.Info("serial_open", "device", cfg.serialDev, "driver", cfg.driver, "baud", cfg.baud)
	c, err := crawler.New(src,
		crawler.WithReadTimeout(cfg.readTO),
		crawler.WithHandshakeTimeout(cfg.handshakeTO),
		crawler.WithBufferSize(cfg.bufferSize),
		crawler.WithLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("device %s: %w", cfg.serialDev, err)
	}
	l.Info("device_ready", "device", cfg.serialDev, "buffered", c.Buffered())
	return c, nil
}

// newSinks allocates the per-kind sinks reused by every read.
func newSinks(cfg *appConfig) *crawler.Data {
	return &crawler.Data{
		Odometry:  crawler.NewSink[sensor.Odometry](cfg.odometryBatch),
		RPLidar:   crawler.NewSink[sensor.RPLidar](cfg.rplidarBatch),
		XV11Lidar: crawler.NewSink[sensor.XV11Lidar](cfg.xv11Batch),
	}
}

// runReader reads the device until ctx is done or the device disconnects and
// hands every decoded record to emit. Timeouts are routine; buffer-full and
// I/O errors back off exponentially. It returns nil on cancellation and an
// error wrapping crawler.ErrDisconnected when the device is gone.
func runReader(ctx context.Context, c *crawler.Conn, d *crawler.Data, emit func(sensor.Record), l *slog.Logger) error {
	defer l.Info("serial_rx_end")
	backoff := rxBackoffMin
	for {
		if ctx.Err() != nil {
			return nil
		}
		st, err := c.ReadAll(d)
		switch {
		case err == nil:
			d.Each(emit)
			backoff = rxBackoffMin
			if st == crawler.StatusPending {
				l.Debug("read_pending", "counts", d.Counts())
			}
		case errors.Is(err, crawler.ErrTimeout):
			// idle device
		case errors.Is(err, crawler.ErrDisconnected):
			l.Error("device_disconnected", "error", err)
			return fmt.Errorf("read: %w", err)
		case errors.Is(err, crawler.ErrClosed):
			return nil
		default:
			l.Warn("read_error", "error", err, "backoff", backoff)
			sleepFn(backoff)
			backoff *= 2
			if backoff > rxBackoffMax {
				backoff = rxBackoffMax
			}
		}
	}
}
