package wire

import "github.com/kstaniek/go-cave-crawler/internal/sensor"

// Frame layout:
//
//	FB  - start marker
//	20  - size = total frame length (payload + 4)
//	01  - type
//	..  - payload (size-4 bytes, little-endian fields)
//	FC  - end marker
//
// size must match the fixed size of type; there is no checksum (USB CDC
// already carries one).
const (
	StartMarker = 0xFB
	EndMarker   = 0xFC

	sizeOffset    = 1
	typeOffset    = 2
	payloadOffset = 3

	// Overhead is the number of non-payload bytes in a frame.
	Overhead = 4
)

// Total frame sizes per kind.
const (
	OdometrySize  = 28 + Overhead
	XV11LidarSize = 15 + Overhead
	RPLidarSize   = 137 + Overhead

	// MaxFrameSize is the largest frame the device can send.
	MaxFrameSize = RPLidarSize
)

// FrameSize returns the fixed total frame size for k, or false when k is not
// a known kind.
func FrameSize(k sensor.Kind) (int, bool) {
	switch k {
	case sensor.KindOdometry:
		return OdometrySize, true
	case sensor.KindXV11Lidar:
		return XV11LidarSize, true
	case sensor.KindRPLidar:
		return RPLidarSize, true
	}
	return 0, false
}

// Verdict classifies the bytes at a scan position.
type Verdict int

const (
	NeedMoreData Verdict = iota
	Invalid
	Valid
)

func (v Verdict) String() string {
	switch v {
	case NeedMoreData:
		return "need_more_data"
	case Invalid:
		return "invalid"
	case Valid:
		return "valid"
	}
	return "unknown"
}

// Scan classifies the frame that would start at p[0]. Checks escalate as more
// bytes are available so garbage is rejected without waiting for a whole
// frame. On Valid, size is the total frame length and p[:size] is the frame.
func Scan(p []byte) (v Verdict, size int) {
	n := len(p)
	if n == 0 {
		return NeedMoreData, 0
	}
	if p[0] != StartMarker {
		return Invalid, 0
	}
	if n < payloadOffset {
		return NeedMoreData, 0
	}
	size, ok := FrameSize(sensor.Kind(p[typeOffset]))
	if !ok || int(p[sizeOffset]) != size {
		return Invalid, 0
	}
	if n < size {
		return NeedMoreData, 0
	}
	if p[size-1] != EndMarker {
		return Invalid, 0
	}
	return Valid, size
}

// Kind returns the type byte of a frame validated by Scan.
func Kind(frame []byte) sensor.Kind { return sensor.Kind(frame[typeOffset]) }

// Payload returns the payload of a frame validated by Scan.
func Payload(frame []byte) []byte { return frame[payloadOffset : len(frame)-1] }
