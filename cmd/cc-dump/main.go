// Command cc-dump prints the records a cave-crawler sends, read either from
// the serial device or from a cc-bridge relay.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kstaniek/go-cave-crawler/internal/crawler"
	"github.com/kstaniek/go-cave-crawler/internal/logging"
	"github.com/kstaniek/go-cave-crawler/internal/serial"
	"github.com/kstaniek/go-cave-crawler/internal/server"
)

type options struct {
	serialDev   string
	driver      string
	baud        int
	connect     string
	kind        string
	count       int
	batch       int
	format      string
	readTO      time.Duration
	handshakeTO time.Duration
	logLevel    string
}

func parseArgs(args []string, stderr io.Writer) (*options, error) {
	o := &options{}
	fs := flag.NewFlagSet("cc-dump", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.serialDev, "serial", "/dev/ttyACM0", "Serial device path")
	fs.StringVar(&o.driver, "driver", serial.DriverTermios, "Serial driver: termios|bugst|tarm")
	fs.IntVar(&o.baud, "baud", 115200, "Serial baud rate")
	fs.StringVar(&o.connect, "connect", "", "Read from a cc-bridge relay at host:port instead of the device")
	fs.StringVar(&o.kind, "kind", "all", "Record kind: all|odometry|rplidar|xv11lidar")
	fs.IntVar(&o.count, "count", 0, "Stop after this many records (0 = run until interrupted)")
	fs.IntVar(&o.batch, "batch", 32, "Records decoded per read and kind")
	fs.StringVar(&o.format, "format", "text", "Output format: text|json")
	fs.DurationVar(&o.readTO, "read-timeout", crawler.DefaultReadTimeout, "Read timeout")
	fs.DurationVar(&o.handshakeTO, "handshake-timeout", crawler.DefaultHandshakeTimeout, "Wait for the first bytes")
	fs.StringVar(&o.logLevel, "log-level", "warn", "Log level: debug|info|warn|error")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	switch o.kind {
	case "all", "odometry", "rplidar", "xv11lidar":
	default:
		return nil, fmt.Errorf("invalid kind: %s", o.kind)
	}
	switch o.format {
	case "text", "json":
	default:
		return nil, fmt.Errorf("invalid format: %s", o.format)
	}
	if o.batch <= 0 {
		return nil, fmt.Errorf("batch must be > 0 (got %d)", o.batch)
	}
	if o.count < 0 {
		return nil, fmt.Errorf("count must be >= 0 (got %d)", o.count)
	}
	return o, nil
}

func main() {
	o, err := parseArgs(os.Args[1:], os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	lvl, err := logging.ParseLevel(o.logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	l := logging.New("text", lvl, os.Stderr).With("app", "cc-dump")
	logging.Set(l)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	src, err := openSource(ctx, o)
	if err != nil {
		l.Error("open_failed", "error", err)
		os.Exit(1)
	}
	c, err := crawler.New(src,
		crawler.WithReadTimeout(o.readTO),
		crawler.WithHandshakeTimeout(o.handshakeTO),
		crawler.WithLogger(l),
	)
	if err != nil {
		l.Error("handshake_failed", "error", err)
		os.Exit(1)
	}
	defer c.Close()

	n, err := dump(ctx, c, o, os.Stdout)
	l.Info("dump_done", "records", n, "stats", fmt.Sprintf("%+v", c.Stats()))
	if err != nil && !errors.Is(err, context.Canceled) {
		l.Error("read_failed", "error", err)
		os.Exit(1)
	}
}

func openSource(ctx context.Context, o *options) (crawler.Source, error) {
	if o.connect != "" {
		c, err := server.Dial(ctx, o.connect, o.handshakeTO)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	return serial.Open(o.driver, o.serialDev, o.baud, o.readTO)
}
