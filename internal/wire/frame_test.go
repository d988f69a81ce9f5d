package wire

import (
	"testing"

	"github.com/kstaniek/go-cave-crawler/internal/sensor"
)

func TestScanStages(t *testing.T) {
	odo := Encode(sensor.Odometry{TimestampUS: 9})

	wrongSize := append([]byte(nil), odo...)
	wrongSize[1] = XV11LidarSize

	unknownType := append([]byte(nil), odo...)
	unknownType[2] = 0x04

	badEnd := append([]byte(nil), odo...)
	badEnd[len(badEnd)-1] = 0x00

	tests := []struct {
		name string
		in   []byte
		want Verdict
	}{
		{"empty", nil, NeedMoreData},
		{"garbage", []byte{0x00}, Invalid},
		{"endMarkerFirst", []byte{EndMarker, 0x20, 0x01}, Invalid},
		{"startOnly", odo[:1], NeedMoreData},
		{"startAndSize", odo[:2], NeedMoreData},
		{"header", odo[:3], NeedMoreData},
		{"partial", odo[:OdometrySize-1], NeedMoreData},
		{"wrongSizeForType", wrongSize, Invalid},
		{"wrongSizeHeaderOnly", wrongSize[:3], Invalid},
		{"unknownType", unknownType, Invalid},
		{"badEnd", badEnd, Invalid},
		{"valid", odo, Valid},
		{"validWithTrailer", append(append([]byte(nil), odo...), 0xFB, 0x13), Valid},
	}
	for _, tc := range tests {
		got, size := Scan(tc.in)
		if got != tc.want {
			t.Fatalf("%s: got %v want %v", tc.name, got, tc.want)
		}
		if got == Valid && size != OdometrySize {
			t.Fatalf("%s: size %d want %d", tc.name, size, OdometrySize)
		}
	}
}

func TestScanSizeTypePairing(t *testing.T) {
	sizes := map[sensor.Kind]int{sensor.KindOdometry: 32, sensor.KindXV11Lidar: 19, sensor.KindRPLidar: 141}
	for k, size := range sizes {
		for s := 0; s < 256; s++ {
			hdr := []byte{StartMarker, byte(s), byte(k)}
			v, _ := Scan(hdr)
			if s == size && v != NeedMoreData {
				t.Fatalf("%v size %d: got %v want need_more_data", k, s, v)
			}
			if s != size && v != Invalid {
				t.Fatalf("%v size %d: got %v want invalid", k, s, v)
			}
		}
	}
}

// FuzzScan ensures the scanner never panics and a Valid verdict always
// describes a frame that decodes.
func FuzzScan(f *testing.F) {
	f.Add(Encode(sensor.Odometry{TimestampUS: 1}))
	f.Add(Encode(sensor.XV11Lidar{AngleQuad: 3}))
	f.Add([]byte{0xFB, 0x8D, 0x03, 0xFC})
	f.Fuzz(func(t *testing.T, data []byte) {
		v, size := Scan(data)
		if v != Valid {
			return
		}
		if size > len(data) || data[size-1] != EndMarker {
			t.Fatalf("valid verdict with bad size %d (len %d)", size, len(data))
		}
		_ = Decode(data[:size])
	})
}
