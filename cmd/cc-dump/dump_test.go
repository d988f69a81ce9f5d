package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/kstaniek/go-cave-crawler/internal/crawler"
	"github.com/kstaniek/go-cave-crawler/internal/logging"
	"github.com/kstaniek/go-cave-crawler/internal/sensor"
	"github.com/kstaniek/go-cave-crawler/internal/wire"
)

// chunkSource hands out one chunk per Fetch and then reports a disconnect.
type chunkSource struct{ chunks [][]byte }

func (s *chunkSource) Fetch(p []byte, _ time.Duration) (int, error) {
	if len(s.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, s.chunks[0])
	s.chunks[0] = s.chunks[0][n:]
	if len(s.chunks[0]) == 0 {
		s.chunks = s.chunks[1:]
	}
	return n, nil
}

func (s *chunkSource) Close() error { return nil }

func newTestConn(t *testing.T, recs ...sensor.Record) *crawler.Conn {
	t.Helper()
	var stream []byte
	for _, r := range recs {
		stream = wire.AppendFrame(stream, r)
	}
	c, err := crawler.New(&chunkSource{chunks: [][]byte{stream}},
		crawler.WithReadTimeout(time.Millisecond),
		crawler.WithLogger(logging.Discard()),
	)
	if err != nil {
		t.Fatalf("crawler.New: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func testOptions(t *testing.T, args ...string) *options {
	t.Helper()
	o, err := parseArgs(args, io.Discard)
	if err != nil {
		t.Fatalf("parseArgs: %v", err)
	}
	return o
}

func TestDump_CountLimit(t *testing.T) {
	c := newTestConn(t,
		sensor.Odometry{TimestampUS: 1, Left: 3, Right: -3, QW: 1},
		sensor.Odometry{TimestampUS: 2},
		sensor.Odometry{TimestampUS: 3},
		sensor.XV11Lidar{TimestampUS: 4},
	)
	var out bytes.Buffer
	n, err := dump(context.Background(), c, testOptions(t, "-count", "2"), &out)
	if err != nil || n != 2 {
		t.Fatalf("dump = %d,%v", n, err)
	}
	want := []string{
		"odometry ts=1 left=3 right=-3 q=(1,0,0,0)",
		"odometry ts=2 left=0 right=0 q=(0,0,0,0)",
	}
	if diff := cmp.Diff(want, strings.Split(strings.TrimSpace(out.String()), "\n")); diff != "" {
		t.Fatalf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestDump_SingleKindUntilDisconnect(t *testing.T) {
	c := newTestConn(t,
		sensor.Odometry{TimestampUS: 1},
		sensor.XV11Lidar{TimestampUS: 2, AngleQuad: 1, Speed64: 60 * 64, Distances: [4]uint16{100, 0x8000 | 2, 0x4000 | 300, 0}},
		sensor.RPLidar{TimestampUS: 3, Sequence: 7},
	)
	var out bytes.Buffer
	n, err := dump(context.Background(), c, testOptions(t, "-kind", "xv11lidar"), &out)
	if !errors.Is(err, crawler.ErrDisconnected) {
		t.Fatalf("err=%v want disconnected", err)
	}
	if n != 1 {
		t.Fatalf("records=%d want 1", n)
	}
	want := "xv11lidar ts=2 rpm=60.00 4:100 5:err2 6:300? 7:0\n"
	if out.String() != want {
		t.Fatalf("got %q want %q", out.String(), want)
	}
}

func TestDump_JSON(t *testing.T) {
	c := newTestConn(t, sensor.RPLidar{TimestampUS: 9, Sequence: 200})
	var out bytes.Buffer
	if _, err := dump(context.Background(), c, testOptions(t, "-format", "json", "-count", "1"), &out); err != nil {
		t.Fatalf("dump: %v", err)
	}
	var m struct {
		Kind string `json:"kind"`
		TS   uint32 `json:"ts_us"`
		Seq  uint8  `json:"seq"`
	}
	if err := json.Unmarshal(out.Bytes(), &m); err != nil {
		t.Fatalf("unmarshal %q: %v", out.String(), err)
	}
	if m.Kind != "rplidar" || m.TS != 9 || m.Seq != 200 {
		t.Fatalf("got %+v", m)
	}
}

func TestDump_CanceledContext(t *testing.T) {
	c := newTestConn(t, sensor.Odometry{TimestampUS: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n, err := dump(ctx, c, testOptions(t), io.Discard)
	if n != 0 || !errors.Is(err, context.Canceled) {
		t.Fatalf("dump = %d,%v", n, err)
	}
}

func TestParseArgs_Invalid(t *testing.T) {
	for _, args := range [][]string{
		{"-kind", "sonar"},
		{"-format", "xml"},
		{"-batch", "0"},
		{"-count", "-1"},
	} {
		if _, err := parseArgs(args, io.Discard); err == nil {
			t.Fatalf("%v: expected error", args)
		}
	}
}
