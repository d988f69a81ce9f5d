package publish

import (
	"encoding/json"
	"fmt"

	"github.com/kstaniek/go-cave-crawler/internal/sensor"
)

type odometryMsg struct {
	Kind        string     `json:"kind"`
	TimestampUS uint32     `json:"ts_us"`
	Left        int32      `json:"left"`
	Right       int32      `json:"right"`
	Quaternion  [4]float32 `json:"q"` // w, x, y, z
}

type xv11Reading struct {
	Angle           int    `json:"angle"`
	Value           uint16 `json:"value"`
	Invalid         bool   `json:"invalid,omitempty"`
	StrengthWarning bool   `json:"strength_warning,omitempty"`
}

type xv11Msg struct {
	Kind        string         `json:"kind"`
	TimestampUS uint32         `json:"ts_us"`
	RPM         float64        `json:"rpm"`
	Readings    [4]xv11Reading `json:"readings"`
}

type rplidarMsg struct {
	Kind        string `json:"kind"`
	TimestampUS uint32 `json:"ts_us"`
	Sequence    uint8  `json:"seq"`
	Capsule     []byte `json:"capsule"` // base64
}

// Marshal renders r as the JSON document published for its kind.
func Marshal(r sensor.Record) ([]byte, error) {
	switch v := r.(type) {
	case sensor.Odometry:
		return json.Marshal(odometryMsg{
			Kind: v.Kind().String(), TimestampUS: v.TimestampUS,
			Left: v.Left, Right: v.Right,
			Quaternion: [4]float32{v.QW, v.QX, v.QY, v.QZ},
		})
	case sensor.XV11Lidar:
		m := xv11Msg{Kind: v.Kind().String(), TimestampUS: v.TimestampUS, RPM: v.RPM()}
		for i, rd := range v.Readings() {
			m.Readings[i] = xv11Reading{Angle: rd.Angle, Value: rd.Value, Invalid: rd.Invalid, StrengthWarning: rd.StrengthWarning}
		}
		return json.Marshal(m)
	case sensor.RPLidar:
		return json.Marshal(rplidarMsg{
			Kind: v.Kind().String(), TimestampUS: v.TimestampUS,
			Sequence: v.Sequence, Capsule: v.Capsule[:],
		})
	}
	return nil, fmt.Errorf("publish: unsupported record %T", r)
}
