// Command cc-bridge reads a cave-crawler over USB serial and relays the
// decoded sensor records to TCP clients and, optionally, NATS.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"syscall"
	"time"

	"github.com/oklog/run"

	"github.com/kstaniek/go-cave-crawler/internal/metrics"
	"github.com/kstaniek/go-cave-crawler/internal/publish"
	"github.com/kstaniek/go-cave-crawler/internal/sensor"
	"github.com/kstaniek/go-cave-crawler/internal/server"
)

func main() {
	cfg, showVersion, err := parseArgs(os.Args[1:], os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if showVersion {
		fmt.Printf("cc-bridge %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	l := setupLogger(cfg.logFormat, cfg.logLevel)
	l.Info("build_info", "version", version, "commit", commit, "date", date)
	if err := runBridge(cfg, l); err != nil {
		l.Error("exit", "error", err)
		os.Exit(1)
	}
}

// runBridge wires the actors and blocks until one of them stops. A signal is
// a clean exit; a disconnected device is an error.
func runBridge(cfg *appConfig, l *slog.Logger) error {
	dev, err := openDevice(cfg, l)
	if err != nil {
		return err
	}
	h := initHub(cfg, l)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	emit := h.Broadcast
	if cfg.natsURL != "" {
		nc, err := publish.Connect(cfg.natsURL, "cc-bridge")
		if err != nil {
			_ = dev.Close()
			return err
		}
		defer nc.Close()
		pub := publish.New(ctx, nc, cfg.natsSubject, cfg.natsBuffer)
		defer pub.Close()
		l.Info("nats_publish", "url", cfg.natsURL, "subject", cfg.natsSubject+".>")
		emit = func(r sensor.Record) {
			h.Broadcast(r)
			_ = pub.Publish(r) // overflow is counted by the publisher
		}
	}

	var g run.Group

	// device reader
	readerCtx, stopReader := context.WithCancel(ctx)
	g.Add(func() error {
		defer func() { _ = dev.Close() }()
		return runReader(readerCtx, dev, newSinks(cfg), emit, l)
	}, func(error) { stopReader() })

	// TCP relay
	var srv *server.Server
	if cfg.listenAddr != "" {
		srv = server.NewServer(
			server.WithHub(h),
			server.WithLogger(l),
			server.WithListenAddr(cfg.listenAddr),
			server.WithMaxClients(cfg.maxClients),
			server.WithHandshakeTimeout(cfg.clientHsTO),
			server.WithReadDeadline(cfg.clientReadTO),
		)
		srvCtx, stopSrv := context.WithCancel(ctx)
		g.Add(func() error {
			return srv.Serve(srvCtx)
		}, func(error) {
			stopSrv()
			sctx, done := context.WithTimeout(context.Background(), 2*time.Second)
			defer done()
			if err := srv.Shutdown(sctx); err != nil {
				l.Warn("tcp_shutdown", "error", err)
			}
		})
		go advertise(ctx, cfg, srv, l)
	}

	if cfg.metricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		metrics.SetReadinessFunc(func() bool {
			if srv != nil {
				select {
				case <-srv.Ready():
				default:
					return false
				}
			}
			return ctx.Err() == nil
		})
		httpSrv := metrics.StartHTTP(cfg.metricsAddr)
		metricsCtx, stopMetrics := context.WithCancel(ctx)
		g.Add(func() error {
			<-metricsCtx.Done()
			return nil
		}, func(error) {
			stopMetrics()
			_ = httpSrv.Shutdown(context.Background())
		})
	}

	if cfg.logMetricsEvery > 0 {
		logCtx, stopLog := context.WithCancel(ctx)
		g.Add(func() error {
			logMetrics(logCtx, cfg.logMetricsEvery, l)
			return nil
		}, func(error) { stopLog() })
	}

	g.Add(run.SignalHandler(ctx, syscall.SIGINT, syscall.SIGTERM))

	err = g.Run()
	var sig run.SignalError
	if errors.As(err, &sig) {
		l.Info("shutdown_signal", "signal", sig.Signal.String())
		return nil
	}
	return err
}

// advertise starts mDNS once the relay listener is bound.
func advertise(ctx context.Context, cfg *appConfig, srv *server.Server, l *slog.Logger) {
	if !cfg.mdnsEnable {
		return
	}
	select {
	case <-srv.Ready():
	case <-ctx.Done():
		return
	}
	port := listenPort(srv.Addr())
	cleanup, err := startMDNS(ctx, cfg, port)
	if err != nil {
		l.Warn("mdns_start_failed", "error", err)
		return
	}
	l.Info("mdns_started", "service", mdnsServiceType, "name", mdnsInstance(cfg), "port", port)
	<-ctx.Done()
	cleanup()
}

// listenPort extracts the port from a bound host:port address.
func listenPort(addr string) int {
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return 0
	}
	n, _ := strconv.Atoi(p)
	return n
}
