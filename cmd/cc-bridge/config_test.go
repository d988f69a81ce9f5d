package main

import (
	"io"
	"strings"
	"testing"
	"time"
)

func validConfig() *appConfig {
	return &appConfig{
		serialDev: "/dev/ttyACM0", driver: "termios", baud: 115200,
		readTO: 100 * time.Millisecond, handshakeTO: 5 * time.Second, bufferSize: 2048,
		odometryBatch: 64, rplidarBatch: 16, xv11Batch: 128,
		listenAddr: ":20100", clientHsTO: time.Second, clientReadTO: time.Second,
		hubBuffer: 8, hubPolicy: "drop", logFormat: "text", logLevel: "info",
		natsSubject: "cavecrawler", natsBuffer: 16,
	}
}

func TestConfigValidate_OK(t *testing.T) {
	if err := validConfig().validate(); err != nil {
		t.Fatalf("expected ok got %v", err)
	}
}

func TestConfigValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*appConfig)
	}{
		{"badFormat", func(c *appConfig) { c.logFormat = "xx" }},
		{"badLevel", func(c *appConfig) { c.logLevel = "nope" }},
		{"badDriver", func(c *appConfig) { c.driver = "usb" }},
		{"badPolicy", func(c *appConfig) { c.hubPolicy = "x" }},
		{"emptySerial", func(c *appConfig) { c.serialDev = "" }},
		{"badHubBuf", func(c *appConfig) { c.hubBuffer = 0 }},
		{"badBaud", func(c *appConfig) { c.baud = 0 }},
		{"badReadTO", func(c *appConfig) { c.readTO = 0 }},
		{"badHandshakeTO", func(c *appConfig) { c.handshakeTO = 0 }},
		{"smallBuffer", func(c *appConfig) { c.bufferSize = 140 }},
		{"negativeBatch", func(c *appConfig) { c.rplidarBatch = -1 }},
		{"noBatches", func(c *appConfig) { c.odometryBatch, c.rplidarBatch, c.xv11Batch = 0, 0, 0 }},
		{"badClientHsTO", func(c *appConfig) { c.clientHsTO = 0 }},
		{"badClientReadTO", func(c *appConfig) { c.clientReadTO = 0 }},
		{"badMaxClients", func(c *appConfig) { c.maxClients = -1 }},
		{"badNatsSubject", func(c *appConfig) { c.natsURL = "nats://localhost:4222"; c.natsSubject = "cave.*" }},
		{"badNatsBuffer", func(c *appConfig) { c.natsURL = "nats://localhost:4222"; c.natsBuffer = 0 }},
	}
	for _, tc := range tests {
		c := validConfig()
		tc.mod(c)
		if err := c.validate(); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestParseArgs_Defaults(t *testing.T) {
	cfg, showVersion, err := parseArgs(nil, io.Discard)
	if err != nil || showVersion {
		t.Fatalf("parseArgs = %v,%v", showVersion, err)
	}
	if cfg.bufferSize != 2048 || cfg.readTO != 100*time.Millisecond || cfg.handshakeTO != 5*time.Second {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.driver != "termios" || cfg.natsURL != "" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestParseArgs_FlagsAndVersion(t *testing.T) {
	cfg, _, err := parseArgs([]string{"-driver", "bugst", "-xv11-batch", "0", "-listen", ""}, io.Discard)
	if err != nil {
		t.Fatalf("parseArgs: %v", err)
	}
	if cfg.driver != "bugst" || cfg.xv11Batch != 0 || cfg.listenAddr != "" {
		t.Fatalf("flags not applied: %+v", cfg)
	}
	if _, v, err := parseArgs([]string{"-version"}, io.Discard); err != nil || !v {
		t.Fatalf("version = %v,%v", v, err)
	}
	_, _, err = parseArgs([]string{"-hub-policy", "block"}, io.Discard)
	if err == nil || !strings.Contains(err.Error(), "hub-policy") {
		t.Fatalf("err=%v want hub-policy error", err)
	}
}
