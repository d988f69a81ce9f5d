package sensor

const (
	xv11InvalidBit  = 1 << 15
	xv11StrengthBit = 1 << 14
	xv11ValueMask   = 0x3FFF
)

// XV11Reading is one unpacked XV11 distance word.
//
// When Invalid is set, Value carries the sensor error code instead of a
// distance in millimetres.
type XV11Reading struct {
	Angle           int // degrees, 0..359
	Value           uint16
	Invalid         bool
	StrengthWarning bool // received power lower than expected for the distance
}

// RPM returns the rotation speed in revolutions per minute.
func (x XV11Lidar) RPM() float64 { return float64(x.Speed64) / 64 }

// FirstAngle is the angle in degrees of Distances[0].
func (x XV11Lidar) FirstAngle() int { return int(x.AngleQuad) * 4 }

// Reading unpacks Distances[i] (i in 0..3).
func (x XV11Lidar) Reading(i int) XV11Reading {
	w := x.Distances[i]
	return XV11Reading{
		Angle:           (x.FirstAngle() + i) % 360,
		Value:           w & xv11ValueMask,
		Invalid:         w&xv11InvalidBit != 0,
		StrengthWarning: w&xv11StrengthBit != 0,
	}
}

// Readings unpacks all four distance words.
func (x XV11Lidar) Readings() [4]XV11Reading {
	var out [4]XV11Reading
	for i := range out {
		out[i] = x.Reading(i)
	}
	return out
}
