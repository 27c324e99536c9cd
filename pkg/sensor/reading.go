package sensor

import "math"

// Vec3 is a single 3-axis sample.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Magnitude returns the Euclidean norm of the vector.
func (v Vec3) Magnitude() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Reading is one decoded sensor value. Kind selects which payload fields
// are meaningful:
//
//	Temperature:  Celsius
//	HeartRate:    BPM
//	ECG:          ECGSamples
//	Accelerometer, Gyroscope, Magnetometer: Samples (and Magnitude for
//	accelerometer, always sqrt(x²+y²+z²) of the first sample)
//
// CapturedAt is a session-relative monotonic timestamp in milliseconds.
type Reading struct {
	Kind       Kind    `json:"kind"`
	Origin     Origin  `json:"origin"`
	CapturedAt int64   `json:"captured_at_ms"`
	Celsius    float64 `json:"celsius,omitempty"`
	BPM        int     `json:"bpm,omitempty"`
	Magnitude  float64 `json:"magnitude,omitempty"`
	Samples    []Vec3  `json:"samples,omitempty"`
	ECGSamples []int16 `json:"ecg_samples,omitempty"`
}

func newTemperature(at int64, origin Origin, celsius float64) Reading {
	return Reading{Kind: Temperature, Origin: origin, CapturedAt: at, Celsius: celsius}
}

func newHeartRate(at int64, origin Origin, bpm int) Reading {
	return Reading{Kind: HeartRate, Origin: origin, CapturedAt: at, BPM: bpm}
}

func newECG(at int64, origin Origin, samples []int16) Reading {
	return Reading{Kind: ECG, Origin: origin, CapturedAt: at, ECGSamples: samples}
}

func newAccelerometer(at int64, origin Origin, s Vec3) Reading {
	return Reading{
		Kind:       Accelerometer,
		Origin:     origin,
		CapturedAt: at,
		Magnitude:  s.Magnitude(),
		Samples:    []Vec3{s},
	}
}

func newGyroscope(at int64, origin Origin, s Vec3) Reading {
	return Reading{Kind: Gyroscope, Origin: origin, CapturedAt: at, Samples: []Vec3{s}}
}

func newMagnetometer(at int64, origin Origin, s Vec3) Reading {
	return Reading{Kind: Magnetometer, Origin: origin, CapturedAt: at, Samples: []Vec3{s}}
}
