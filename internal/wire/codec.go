package wire

import (
	"encoding/binary"
	"math"

	"github.com/kstaniek/go-cave-crawler/internal/sensor"
)

// Payload offsets. Every payload starts with a u32 timestamp in microseconds.
const (
	offTimestamp = 0

	offOdoLeft  = 4
	offOdoRight = 8
	offOdoQW    = 12
	offOdoQX    = 16
	offOdoQY    = 20
	offOdoQZ    = 24

	offRPSequence = 4
	offRPCapsule  = 5

	offXVAngleQuad = 4
	offXVSpeed64   = 5
	offXVDistances = 7
)

var le = binary.LittleEndian

func f32(b []byte) float32 { return math.Float32frombits(le.Uint32(b)) }

// DecodeOdometry decodes an odometry payload (28 bytes).
//
//	u32 ts | i32 left | i32 right | f32 qw | f32 qx | f32 qy | f32 qz
func DecodeOdometry(payload []byte) sensor.Odometry {
	_ = payload[OdometrySize-Overhead-1]
	return sensor.Odometry{
		TimestampUS: le.Uint32(payload[offTimestamp:]),
		Left:        int32(le.Uint32(payload[offOdoLeft:])),
		Right:       int32(le.Uint32(payload[offOdoRight:])),
		QW:          f32(payload[offOdoQW:]),
		QX:          f32(payload[offOdoQX:]),
		QY:          f32(payload[offOdoQY:]),
		QZ:          f32(payload[offOdoQZ:]),
	}
}

// DecodeRPLidar decodes an RPLidar payload (137 bytes).
//
//	u32 ts | u8 sequence | 132 capsule bytes
func DecodeRPLidar(payload []byte) sensor.RPLidar {
	_ = payload[RPLidarSize-Overhead-1]
	r := sensor.RPLidar{
		TimestampUS: le.Uint32(payload[offTimestamp:]),
		Sequence:    payload[offRPSequence],
	}
	copy(r.Capsule[:], payload[offRPCapsule:])
	return r
}

// DecodeXV11Lidar decodes an XV11 payload (15 bytes).
//
//	u32 ts | u8 angle_quad | u16 speed64 | 4 x u16 raw distance words
func DecodeXV11Lidar(payload []byte) sensor.XV11Lidar {
	_ = payload[XV11LidarSize-Overhead-1]
	x := sensor.XV11Lidar{
		TimestampUS: le.Uint32(payload[offTimestamp:]),
		AngleQuad:   payload[offXVAngleQuad],
		Speed64:     le.Uint16(payload[offXVSpeed64:]),
	}
	for i := range x.Distances {
		x.Distances[i] = le.Uint16(payload[offXVDistances+2*i:])
	}
	return x
}

// Decode decodes a frame validated by Scan into its record.
func Decode(frame []byte) sensor.Record {
	p := Payload(frame)
	switch k := Kind(frame); k {
	case sensor.KindOdometry:
		return DecodeOdometry(p)
	case sensor.KindRPLidar:
		return DecodeRPLidar(p)
	case sensor.KindXV11Lidar:
		return DecodeXV11Lidar(p)
	default:
		// Scan never validates an unknown kind.
		panic("wire: decode of unvalidated frame kind " + k.String())
	}
}

// AppendFrame appends the wire encoding of r to dst.
func AppendFrame(dst []byte, r sensor.Record) []byte {
	size, _ := FrameSize(r.Kind())
	start := len(dst)
	dst = append(dst, make([]byte, size)...)
	f := dst[start:]
	f[0] = StartMarker
	f[sizeOffset] = byte(size)
	f[typeOffset] = byte(r.Kind())
	f[size-1] = EndMarker
	p := f[payloadOffset : size-1]
	le.PutUint32(p[offTimestamp:], r.Timestamp())
	switch v := r.(type) {
	case sensor.Odometry:
		le.PutUint32(p[offOdoLeft:], uint32(v.Left))
		le.PutUint32(p[offOdoRight:], uint32(v.Right))
		le.PutUint32(p[offOdoQW:], math.Float32bits(v.QW))
		le.PutUint32(p[offOdoQX:], math.Float32bits(v.QX))
		le.PutUint32(p[offOdoQY:], math.Float32bits(v.QY))
		le.PutUint32(p[offOdoQZ:], math.Float32bits(v.QZ))
	case sensor.RPLidar:
		p[offRPSequence] = v.Sequence
		copy(p[offRPCapsule:], v.Capsule[:])
	case sensor.XV11Lidar:
		p[offXVAngleQuad] = v.AngleQuad
		le.PutUint16(p[offXVSpeed64:], v.Speed64)
		for i, d := range v.Distances {
			le.PutUint16(p[offXVDistances+2*i:], d)
		}
	}
	return dst
}

// Encode returns the wire encoding of r.
func Encode(r sensor.Record) []byte {
	size, _ := FrameSize(r.Kind())
	return AppendFrame(make([]byte, 0, size), r)
}
