package sensor

import "fmt"

// Kind is the message type byte carried in every device frame.
type Kind uint8

const (
	KindOdometry  Kind = 0x01
	KindXV11Lidar Kind = 0x02
	KindRPLidar   Kind = 0x03
)

// Kinds lists every kind the device can emit, in type byte order.
var Kinds = [...]Kind{KindOdometry, KindXV11Lidar, KindRPLidar}

func (k Kind) String() string {
	switch k {
	case KindOdometry:
		return "odometry"
	case KindXV11Lidar:
		return "xv11lidar"
	case KindRPLidar:
		return "rplidar"
	default:
		return fmt.Sprintf("kind(0x%02X)", uint8(k))
	}
}

// Record is one decoded device message. The set of implementations is closed:
// Odometry, RPLidar and XV11Lidar.
type Record interface {
	Kind() Kind
	Timestamp() uint32
	sealed()
}

// Odometry carries wheel encoder deltas and the IMU orientation.
type Odometry struct {
	TimestampUS uint32 // microseconds since device start
	Left        int32  // encoder counts
	Right       int32
	QW, QX      float32 // orientation quaternion
	QY, QZ      float32
}

// RPLidarCapsuleSize is the size of the opaque ultra capsule block.
const RPLidarCapsuleSize = 132

// RPLidar carries one raw RPLidar A3 measurement packet. Capsule is copied
// verbatim from the wire and is not interpreted here.
type RPLidar struct {
	TimestampUS uint32
	Sequence    uint8 // wraps 0..255; gaps mean lost packets
	Capsule     [RPLidarCapsuleSize]byte
}

// XV11Lidar carries one XV11 packet (four consecutive 1° readings) without
// signal strength and checksum.
//
// Distances are the raw little-endian words as sent by the device; use
// Reading to unpack flags and distance.
type XV11Lidar struct {
	TimestampUS uint32
	AngleQuad   uint8  // 0..89, readings AngleQuad*4 .. AngleQuad*4+3 degrees
	Speed64     uint16 // rpm * 64
	Distances   [4]uint16
}

func (Odometry) Kind() Kind  { return KindOdometry }
func (RPLidar) Kind() Kind   { return KindRPLidar }
func (XV11Lidar) Kind() Kind { return KindXV11Lidar }

func (o Odometry) Timestamp() uint32  { return o.TimestampUS }
func (r RPLidar) Timestamp() uint32   { return r.TimestampUS }
func (x XV11Lidar) Timestamp() uint32 { return x.TimestampUS }

func (Odometry) sealed()  {}
func (RPLidar) sealed()   {}
func (XV11Lidar) sealed() {}
