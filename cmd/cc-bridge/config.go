package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kstaniek/go-cave-crawler/internal/crawler"
	"github.com/kstaniek/go-cave-crawler/internal/serial"
	"github.com/kstaniek/go-cave-crawler/internal/wire"
)

type appConfig struct {
	serialDev       string
	driver          string
	baud            int
	readTO          time.Duration
	handshakeTO     time.Duration
	bufferSize      int
	odometryBatch   int
	rplidarBatch    int
	xv11Batch       int
	listenAddr      string
	clientHsTO      time.Duration
	clientReadTO    time.Duration
	maxClients      int
	hubBuffer       int
	hubPolicy       string
	metricsAddr     string
	logFormat       string
	logLevel        string
	logMetricsEvery time.Duration
	mdnsEnable      bool
	mdnsName        string
	natsURL         string
	natsSubject     string
	natsBuffer      int
}

const envPrefix = "CC_BRIDGE_"

// parseArgs parses command line flags, applies CC_BRIDGE_* environment
// overrides for flags not given explicitly, and validates the result.
func parseArgs(args []string, stderr io.Writer) (*appConfig, bool, error) {
	cfg := &appConfig{}
	fs := flag.NewFlagSet("cc-bridge", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cfg.serialDev, "serial", "/dev/ttyACM0", "Serial device path")
	fs.StringVar(&cfg.driver, "driver", serial.DriverTermios, "Serial driver: "+strings.Join(serial.Drivers, "|"))
	fs.IntVar(&cfg.baud, "baud", 115200, "Serial baud rate (ignored by USB CDC devices)")
	fs.DurationVar(&cfg.readTO, "read-timeout", crawler.DefaultReadTimeout, "Device read timeout")
	fs.DurationVar(&cfg.handshakeTO, "handshake-timeout", crawler.DefaultHandshakeTimeout, "Wait for the first device bytes")
	fs.IntVar(&cfg.bufferSize, "buffer-size", crawler.DefaultBufferSize, "Device stream buffer (bytes)")
	fs.IntVar(&cfg.odometryBatch, "odometry-batch", 64, "Odometry records decoded per read (0 = ignore kind)")
	fs.IntVar(&cfg.rplidarBatch, "rplidar-batch", 16, "RPLidar records decoded per read (0 = ignore kind)")
	fs.IntVar(&cfg.xv11Batch, "xv11-batch", 128, "XV11 lidar records decoded per read (0 = ignore kind)")
	fs.StringVar(&cfg.listenAddr, "listen", ":20100", "TCP relay listen address (empty disables)")
	fs.DurationVar(&cfg.clientHsTO, "client-handshake-timeout", 3*time.Second, "Client hello timeout")
	fs.DurationVar(&cfg.clientReadTO, "client-read-timeout", 60*time.Second, "Per-connection read deadline")
	fs.IntVar(&cfg.maxClients, "max-clients", 0, "Maximum simultaneous TCP clients (0 = unlimited)")
	fs.IntVar(&cfg.hubBuffer, "hub-buffer", 512, "Per-client hub buffer (records)")
	fs.StringVar(&cfg.hubPolicy, "hub-policy", "drop", "Backpressure policy: drop|kick")
	fs.StringVar(&cfg.metricsAddr, "metrics-addr", "", "Metrics HTTP listen address (e.g., :9100); empty disables")
	fs.StringVar(&cfg.logFormat, "log-format", "text", "Log format: text|json")
	fs.StringVar(&cfg.logLevel, "log-level", "info", "Log level: debug|info|warn|error")
	fs.DurationVar(&cfg.logMetricsEvery, "log-metrics-interval", 0, "If >0, periodically log metrics counters")
	fs.BoolVar(&cfg.mdnsEnable, "mdns-enable", false, "Advertise the relay via mDNS")
	fs.StringVar(&cfg.mdnsName, "mdns-name", "", "mDNS instance name (default cc-bridge-<hostname>)")
	fs.StringVar(&cfg.natsURL, "nats-url", "", "NATS server URL; empty disables publishing")
	fs.StringVar(&cfg.natsSubject, "nats-subject", "cavecrawler", "NATS subject prefix (<prefix>.<kind>)")
	fs.IntVar(&cfg.natsBuffer, "nats-buffer", 1024, "NATS publish queue (records)")
	showVersion := fs.Bool("version", false, "Print version and exit")
	if err := fs.Parse(args); err != nil {
		return nil, false, err
	}
	if *showVersion {
		return cfg, true, nil
	}

	// flags given explicitly win over env
	setFlags := map[string]struct{}{}
	fs.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })
	if err := applyEnvOverrides(cfg, setFlags); err != nil {
		return nil, false, fmt.Errorf("environment override: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, false, fmt.Errorf("configuration: %w", err)
	}
	return cfg, false, nil
}

// validate checks values and ranges; it does not open devices or listeners.
func (c *appConfig) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	switch c.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	switch c.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	switch c.driver {
	case serial.DriverTermios, serial.DriverBugst, serial.DriverTarm:
	default:
		return fmt.Errorf("invalid driver: %s", c.driver)
	}
	switch c.hubPolicy {
	case "drop", "kick":
	default:
		return fmt.Errorf("invalid hub-policy: %s", c.hubPolicy)
	}
	if c.serialDev == "" {
		return errors.New("serial must not be empty")
	}
	if c.baud <= 0 {
		return fmt.Errorf("baud must be > 0 (got %d)", c.baud)
	}
	if c.readTO <= 0 {
		return errors.New("read-timeout must be > 0")
	}
	if c.handshakeTO <= 0 {
		return errors.New("handshake-timeout must be > 0")
	}
	if c.bufferSize < wire.MaxFrameSize {
		return fmt.Errorf("buffer-size must be >= %d (got %d)", wire.MaxFrameSize, c.bufferSize)
	}
	if c.odometryBatch < 0 || c.rplidarBatch < 0 || c.xv11Batch < 0 {
		return errors.New("batch sizes must be >= 0")
	}
	if c.odometryBatch+c.rplidarBatch+c.xv11Batch == 0 {
		return errors.New("at least one batch size must be > 0")
	}
	if c.hubBuffer <= 0 {
		return fmt.Errorf("hub-buffer must be > 0 (got %d)", c.hubBuffer)
	}
	if c.clientHsTO <= 0 {
		return errors.New("client-handshake-timeout must be > 0")
	}
	if c.clientReadTO <= 0 {
		return errors.New("client-read-timeout must be > 0")
	}
	if c.maxClients < 0 {
		return errors.New("max-clients must be >= 0")
	}
	if c.natsURL != "" {
		if c.natsSubject == "" || strings.ContainsAny(c.natsSubject, " *>") {
			return fmt.Errorf("invalid nats-subject: %q", c.natsSubject)
		}
		if c.natsBuffer <= 0 {
			return fmt.Errorf("nats-buffer must be > 0 (got %d)", c.natsBuffer)
		}
	}
	if c.logMetricsEvery < 0 {
		return errors.New("log-metrics-interval must be >= 0")
	}
	return nil
}

// envKey maps a flag name to its environment variable (read-timeout ->
// CC_BRIDGE_READ_TIMEOUT).
func envKey(flagName string) string {
	return envPrefix + strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
}

// applyEnvOverrides maps CC_BRIDGE_* environment variables onto config fields
// unless the corresponding flag was set. Empty values are ignored; the first
// parse error is returned after all variables were applied.
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	var firstErr error
	fail := func(name string, err error) {
		if firstErr == nil {
			firstErr = fmt.Errorf("invalid %s: %w", envKey(name), err)
		}
	}
	lookup := func(name string) (string, bool) {
		if _, ok := set[name]; ok {
			return "", false
		}
		v, ok := os.LookupEnv(envKey(name))
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if v, ok := lookup(name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				fail(name, err)
				return
			}
			*dst = n
		}
	}
	dur := func(name string, dst *time.Duration) {
		if v, ok := lookup(name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				fail(name, err)
				return
			}
			*dst = d
		}
	}
	boolean := func(name string, dst *bool) {
		if v, ok := lookup(name); ok {
			switch strings.ToLower(v) {
			case "1", "true", "yes", "on":
				*dst = true
			case "0", "false", "no", "off":
				*dst = false
			default:
				fail(name, fmt.Errorf("not a boolean: %q", v))
			}
		}
	}

	str("serial", &c.serialDev)
	str("driver", &c.driver)
	num("baud", &c.baud)
	dur("read-timeout", &c.readTO)
	dur("handshake-timeout", &c.handshakeTO)
	num("buffer-size", &c.bufferSize)
	num("odometry-batch", &c.odometryBatch)
	num("rplidar-batch", &c.rplidarBatch)
	num("xv11-batch", &c.xv11Batch)
	str("listen", &c.listenAddr)
	dur("client-handshake-timeout", &c.clientHsTO)
	dur("client-read-timeout", &c.clientReadTO)
	num("max-clients", &c.maxClients)
	num("hub-buffer", &c.hubBuffer)
	str("hub-policy", &c.hubPolicy)
	str("metrics-addr", &c.metricsAddr)
	str("log-format", &c.logFormat)
	str("log-level", &c.logLevel)
	dur("log-metrics-interval", &c.logMetricsEvery)
	boolean("mdns-enable", &c.mdnsEnable)
	str("mdns-name", &c.mdnsName)
	str("nats-url", &c.natsURL)
	str("nats-subject", &c.natsSubject)
	num("nats-buffer", &c.natsBuffer)
	return firstErr
}
