package crawler

import (
	"github.com/kstaniek/go-cave-crawler/internal/sensor"
	"github.com/kstaniek/go-cave-crawler/internal/wire"
)

// Sink is a caller-owned, fixed-capacity destination for one record kind.
// A nil sink or a sink of capacity 0 means the caller is not interested in
// that kind: its frames are consumed without being decoded.
type Sink[T any] struct {
	buf []T
	n   int
}

// NewSink allocates a sink holding up to capacity records.
func NewSink[T any](capacity int) *Sink[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &Sink[T]{buf: make([]T, capacity)}
}

// SinkOver wraps dst; its capacity is len(dst).
func SinkOver[T any](dst []T) *Sink[T] { return &Sink[T]{buf: dst} }

func (s *Sink[T]) Cap() int {
	if s == nil {
		return 0
	}
	return len(s.buf)
}

// Len returns the number of records stored by the last read.
func (s *Sink[T]) Len() int {
	if s == nil {
		return 0
	}
	return s.n
}

// Records returns the records stored by the last read. The slice aliases the
// sink and is overwritten by the next read.
func (s *Sink[T]) Records() []T {
	if s == nil {
		return nil
	}
	return s.buf[:s.n]
}

// Full reports whether the sink reached its capacity.
func (s *Sink[T]) Full() bool { return s.Cap() > 0 && s.n >= len(s.buf) }

func (s *Sink[T]) Reset() {
	if s != nil {
		s.n = 0
	}
}

type delivery int

const (
	deliverySkipped delivery = iota
	deliveryStored
	deliverySaturated
)

func deliver[T any](s *Sink[T], frame []byte, decode func([]byte) T) delivery {
	if s.Cap() == 0 {
		return deliverySkipped
	}
	if s.n >= len(s.buf) {
		return deliverySaturated
	}
	s.buf[s.n] = decode(wire.Payload(frame))
	s.n++
	return deliveryStored
}

// Data groups the per-kind sinks for one ReadAll call.
type Data struct {
	Odometry  *Sink[sensor.Odometry]
	RPLidar   *Sink[sensor.RPLidar]
	XV11Lidar *Sink[sensor.XV11Lidar]
}

// Counts holds per-kind record counts.
type Counts struct {
	Odometry  int
	RPLidar   int
	XV11Lidar int
}

// Total returns the sum over all kinds.
func (c Counts) Total() int { return c.Odometry + c.RPLidar + c.XV11Lidar }

// Counts returns how many records each sink received in the last read.
func (d *Data) Counts() Counts {
	return Counts{Odometry: d.Odometry.Len(), RPLidar: d.RPLidar.Len(), XV11Lidar: d.XV11Lidar.Len()}
}

// Each calls fn for every stored record, grouped by kind.
func (d *Data) Each(fn func(sensor.Record)) {
	for _, r := range d.Odometry.Records() {
		fn(r)
	}
	for _, r := range d.RPLidar.Records() {
		fn(r)
	}
	for _, r := range d.XV11Lidar.Records() {
		fn(r)
	}
}

func (d *Data) reset() {
	d.Odometry.Reset()
	d.RPLidar.Reset()
	d.XV11Lidar.Reset()
}

func (d *Data) deliver(frame []byte) delivery {
	switch wire.Kind(frame) {
	case sensor.KindOdometry:
		return deliver(d.Odometry, frame, wire.DecodeOdometry)
	case sensor.KindRPLidar:
		return deliver(d.RPLidar, frame, wire.DecodeRPLidar)
	case sensor.KindXV11Lidar:
		return deliver(d.XV11Lidar, frame, wire.DecodeXV11Lidar)
	}
	return deliverySkipped
}
