package wire

import (
	"bytes"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/kstaniek/go-cave-crawler/internal/sensor"
)

// odometryScenario is the frame FB 20 01 <ts=1000 left=5 right=-5 q=(1,0,0,0)> FC.
func odometryScenario() []byte {
	b := []byte{0xFB, 0x20, 0x01,
		0xE8, 0x03, 0x00, 0x00, // 1000
		0x05, 0x00, 0x00, 0x00, // 5
		0xFB, 0xFF, 0xFF, 0xFF, // -5
		0x00, 0x00, 0x80, 0x3F, // 1.0
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0xFC}
	return b
}

func TestDecodeOdometryScenario(t *testing.T) {
	frame := odometryScenario()
	v, size := Scan(frame)
	if v != Valid || size != OdometrySize {
		t.Fatalf("Scan = %v,%d want valid,%d", v, size, OdometrySize)
	}
	got := Decode(frame[:size])
	want := sensor.Odometry{TimestampUS: 1000, Left: 5, Right: -5, QW: 1}
	if diff := cmp.Diff(sensor.Record(want), got); diff != "" {
		t.Fatalf("decode mismatch (-want +got):\n%s", diff)
	}
	if enc := Encode(want); !bytes.Equal(enc, frame) {
		t.Fatalf("encode mismatch\n got % X\nwant % X", enc, frame)
	}
}

func TestCodec_RoundTrip(t *testing.T) {
	var capsule [sensor.RPLidarCapsuleSize]byte
	for i := range capsule {
		capsule[i] = byte(i * 7)
	}
	recs := []sensor.Record{
		sensor.Odometry{TimestampUS: math.MaxUint32, Left: math.MinInt32, Right: math.MaxInt32,
			QW: float32(math.Inf(-1)), QX: -0.0, QY: math.SmallestNonzeroFloat32, QZ: 0.70710677},
		sensor.RPLidar{TimestampUS: 42, Sequence: 255, Capsule: capsule},
		sensor.XV11Lidar{TimestampUS: 7, AngleQuad: 89, Speed64: 0xBEEF, Distances: [4]uint16{1, 0x8000, 0xFFFF, 0x4ABC}},
	}
	for _, r := range recs {
		frame := Encode(r)
		want, _ := FrameSize(r.Kind())
		if len(frame) != want {
			t.Fatalf("%v: frame len %d want %d", r.Kind(), len(frame), want)
		}
		v, size := Scan(frame)
		if v != Valid || size != len(frame) {
			t.Fatalf("%v: Scan = %v,%d", r.Kind(), v, size)
		}
		if diff := cmp.Diff(r, Decode(frame)); diff != "" {
			t.Fatalf("%v round trip (-want +got):\n%s", r.Kind(), diff)
		}
	}
}

func TestCodec_FloatBitExact(t *testing.T) {
	nan := math.Float32frombits(0x7FC00123)
	frame := Encode(sensor.Odometry{QW: nan, QX: float32(math.Copysign(0, -1))})
	got := DecodeOdometry(Payload(frame))
	if math.Float32bits(got.QW) != 0x7FC00123 {
		t.Fatalf("nan payload lost: %#x", math.Float32bits(got.QW))
	}
	if math.Float32bits(got.QX) != 0x80000000 {
		t.Fatalf("negative zero lost: %#x", math.Float32bits(got.QX))
	}
}

func TestAppendFrame_Concatenates(t *testing.T) {
	a := sensor.XV11Lidar{TimestampUS: 1}
	b := sensor.Odometry{TimestampUS: 2}
	buf := AppendFrame(nil, a)
	buf = AppendFrame(buf, b)
	if len(buf) != XV11LidarSize+OdometrySize {
		t.Fatalf("len=%d", len(buf))
	}
	if !bytes.Equal(buf[XV11LidarSize:], Encode(b)) {
		t.Fatalf("second frame corrupted")
	}
}

func BenchmarkDecodeRPLidar(b *testing.B) {
	frame := Encode(sensor.RPLidar{TimestampUS: 1, Sequence: 2})
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = DecodeRPLidar(Payload(frame))
	}
}
