package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"

	"github.com/kstaniek/go-cave-crawler/internal/server"
)

const mdnsServiceType = "_cave-crawler._tcp"

// startMDNS registers the relay via mDNS and returns a cleanup function.
// It is a no-op when disabled.
func startMDNS(ctx context.Context, cfg *appConfig, port int) (func(), error) {
	if !cfg.mdnsEnable {
		return func() {}, nil
	}
	svc, err := zeroconf.Register(mdnsInstance(cfg), mdnsServiceType, "local.", port, mdnsMeta(cfg), nil)
	if err != nil {
		return nil, fmt.Errorf("mdns register: %w", err)
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		svc.Shutdown()
	}()
	return func() { close(done); time.Sleep(50 * time.Millisecond) }, nil
}

func mdnsInstance(cfg *appConfig) string {
	if cfg.mdnsName != "" {
		return cfg.mdnsName
	}
	host, _ := os.Hostname()
	return "cc-bridge-" + host
}

// mdnsMeta lists TXT records: build info plus which kinds the relay carries.
func mdnsMeta(cfg *appConfig) []string {
	return []string{
		"version=" + version,
		"commit=" + commit,
		"proto=" + strings.TrimSpace(server.Hello),
		"odometry=" + strconv.FormatBool(cfg.odometryBatch > 0),
		"rplidar=" + strconv.FormatBool(cfg.rplidarBatch > 0),
		"xv11lidar=" + strconv.FormatBool(cfg.xv11Batch > 0),
	}
}
