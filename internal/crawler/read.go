package crawler

import (
	"errors"

	"github.com/kstaniek/go-cave-crawler/internal/metrics"
	"github.com/kstaniek/go-cave-crawler/internal/sensor"
	"github.com/kstaniek/go-cave-crawler/internal/wire"
)

// Status is the outcome of a successful read.
type Status int

const (
	StatusError   Status = -1
	StatusOK      Status = 0 // no more decodable data right now
	StatusPending Status = 1 // a sink filled up; call again without waiting
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusPending:
		return "pending"
	default:
		return "error"
	}
}

// ReadAll fills the sinks in d with decoded records.
//
// It blocks for up to the read timeout waiting for bytes, unless the previous
// call returned StatusPending. Sink fill counts are reset first. Kinds with a
// nil or zero-capacity sink are consumed without decoding. When a sink is full
// and another frame of its kind is found, scanning stops in front of that
// frame and StatusPending is returned.
//
// Fetch errors (ErrTimeout, ErrDisconnected, ErrIO, ErrBufferFull) abort the
// call with StatusError and leave the buffer untouched; the call may be
// retried except after ErrDisconnected.
func (c *Conn) ReadAll(d *Data) (Status, error) {
	if d == nil {
		d = &Data{}
	}
	d.reset()
	if err := c.receive(); err != nil {
		metrics.IncError(errorLabel(err))
		return StatusError, err
	}
	off, saturated := c.scan(d)
	c.buf.discard(off)
	metrics.SetBufferFill(c.buf.len())
	if saturated {
		c.pending = true
		c.stats.Pending++
		metrics.IncPending()
		return StatusPending, nil
	}
	c.pending = false
	return StatusOK, nil
}

// scan walks the buffer from offset 0 and returns the first unconsumed offset.
func (c *Conn) scan(d *Data) (off int, saturated bool) {
	data := c.buf.bytes()
	var resync int
	defer func() {
		if resync > 0 {
			c.stats.Resyncs += uint64(resync)
			metrics.AddResync(resync)
		}
	}()
	for {
		v, size := wire.Scan(data[off:])
		switch v {
		case wire.NeedMoreData:
			return off, false
		case wire.Invalid:
			off++
			resync++
			continue
		}
		frame := data[off : off+size]
		kind := wire.Kind(frame)
		switch d.deliver(frame) {
		case deliverySaturated:
			return off, true
		case deliveryStored:
			c.stats.Frames++
			metrics.IncFrame(kind.String())
		case deliverySkipped:
			c.stats.Skipped++
			metrics.IncFrameSkipped(kind.String())
		}
		off += size
	}
}

// ReadOdometry reads only odometry records into dst; other kinds are
// discarded without decoding. pending reports that dst was filled and more
// records are buffered.
func (c *Conn) ReadOdometry(dst []sensor.Odometry) (n int, pending bool, err error) {
	d := Data{Odometry: SinkOver(dst)}
	st, err := c.ReadAll(&d)
	return d.Odometry.Len(), st == StatusPending, err
}

// ReadRPLidar reads only RPLidar records into dst.
func (c *Conn) ReadRPLidar(dst []sensor.RPLidar) (n int, pending bool, err error) {
	d := Data{RPLidar: SinkOver(dst)}
	st, err := c.ReadAll(&d)
	return d.RPLidar.Len(), st == StatusPending, err
}

// ReadXV11Lidar reads only XV11 lidar records into dst.
func (c *Conn) ReadXV11Lidar(dst []sensor.XV11Lidar) (n int, pending bool, err error) {
	d := Data{XV11Lidar: SinkOver(dst)}
	st, err := c.ReadAll(&d)
	return d.XV11Lidar.Len(), st == StatusPending, err
}

// errorLabel maps read errors to metrics labels.
func errorLabel(err error) string {
	switch {
	case errors.Is(err, ErrTimeout):
		return metrics.ErrReadTimeout
	case errors.Is(err, ErrDisconnected):
		return metrics.ErrDisconnected
	case errors.Is(err, ErrBufferFull):
		return metrics.ErrBufferFull
	case errors.Is(err, ErrClosed):
		return metrics.ErrClosed
	default:
		return metrics.ErrSerialRead
	}
}
