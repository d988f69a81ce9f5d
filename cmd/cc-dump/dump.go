package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/kstaniek/go-cave-crawler/internal/crawler"
	"github.com/kstaniek/go-cave-crawler/internal/publish"
	"github.com/kstaniek/go-cave-crawler/internal/sensor"
)

// reader performs one read of the selected kinds and reports each record.
type reader func(emit func(sensor.Record)) error

func newReader(c *crawler.Conn, kind string, batch int) reader {
	switch kind {
	case "odometry":
		dst := make([]sensor.Odometry, batch)
		return func(emit func(sensor.Record)) error {
			n, _, err := c.ReadOdometry(dst)
			for _, r := range dst[:n] {
				emit(r)
			}
			return err
		}
	case "rplidar":
		dst := make([]sensor.RPLidar, batch)
		return func(emit func(sensor.Record)) error {
			n, _, err := c.ReadRPLidar(dst)
			for _, r := range dst[:n] {
				emit(r)
			}
			return err
		}
	case "xv11lidar":
		dst := make([]sensor.XV11Lidar, batch)
		return func(emit func(sensor.Record)) error {
			n, _, err := c.ReadXV11Lidar(dst)
			for _, r := range dst[:n] {
				emit(r)
			}
			return err
		}
	}
	d := &crawler.Data{
		Odometry:  crawler.NewSink[sensor.Odometry](batch),
		RPLidar:   crawler.NewSink[sensor.RPLidar](batch),
		XV11Lidar: crawler.NewSink[sensor.XV11Lidar](batch),
	}
	return func(emit func(sensor.Record)) error {
		_, err := c.ReadAll(d)
		if err == nil {
			d.Each(emit)
		}
		return err
	}
}

// dump writes records to w until ctx is done, o.count records were written
// or the stream fails. It returns the number of records written.
func dump(ctx context.Context, c *crawler.Conn, o *options, w io.Writer) (int, error) {
	read := newReader(c, o.kind, o.batch)
	var (
		n       int
		werr    error
		limited = o.count > 0
	)
	emit := func(r sensor.Record) {
		if werr != nil || (limited && n >= o.count) {
			return
		}
		var line string
		if o.format == "json" {
			b, err := publish.Marshal(r)
			if err != nil {
				werr = err
				return
			}
			line = string(b)
		} else {
			line = formatRecord(r)
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			werr = err
			return
		}
		n++
	}
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		err := read(emit)
		if werr != nil {
			return n, werr
		}
		if limited && n >= o.count {
			return n, nil
		}
		if err != nil && !errors.Is(err, crawler.ErrTimeout) {
			return n, err
		}
	}
}

func formatRecord(r sensor.Record) string {
	switch v := r.(type) {
	case sensor.Odometry:
		return fmt.Sprintf("odometry ts=%d left=%d right=%d q=(%g,%g,%g,%g)",
			v.TimestampUS, v.Left, v.Right, v.QW, v.QX, v.QY, v.QZ)
	case sensor.XV11Lidar:
		var b strings.Builder
		fmt.Fprintf(&b, "xv11lidar ts=%d rpm=%.2f", v.TimestampUS, v.RPM())
		for _, rd := range v.Readings() {
			fmt.Fprintf(&b, " %d:", rd.Angle)
			switch {
			case rd.Invalid:
				fmt.Fprintf(&b, "err%d", rd.Value)
			case rd.StrengthWarning:
				fmt.Fprintf(&b, "%d?", rd.Value)
			default:
				fmt.Fprintf(&b, "%d", rd.Value)
			}
		}
		return b.String()
	case sensor.RPLidar:
		return fmt.Sprintf("rplidar ts=%d seq=%d capsule=% x", v.TimestampUS, v.Sequence, v.Capsule[:8])
	}
	return fmt.Sprintf("%v", r)
}
