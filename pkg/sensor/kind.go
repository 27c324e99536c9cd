package sensor

import "fmt"

// Kind identifies one of the six sensor streams exposed by the device.
type Kind uint8

const (
	Temperature Kind = iota
	Accelerometer
	HeartRate
	ECG
	Gyroscope
	Magnetometer

	kindCount
)

// Kinds returns all sensor kinds in their canonical display order.
func Kinds() []Kind {
	return []Kind{Temperature, Accelerometer, HeartRate, ECG, Gyroscope, Magnetometer}
}

func (k Kind) String() string {
	switch k {
	case Temperature:
		return "temperature"
	case Accelerometer:
		return "accelerometer"
	case HeartRate:
		return "heart_rate"
	case ECG:
		return "ecg"
	case Gyroscope:
		return "gyroscope"
	case Magnetometer:
		return "magnetometer"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Resource ids used on the wire to address sensor streams. These are
// firmware-specific, reverse-engineered values; do not generalize them.
const (
	ResourceTempAccel    byte = 0x62
	ResourceHeartRateECG byte = 0x63
	ResourceGyro         byte = 0x64
	ResourceMagnetometer byte = 0x65
)

// Status is the per-kind decode health of a sensor stream.
//
// A status never reverts to StatusInactive except through a session reset.
type Status uint8

const (
	StatusInactive Status = iota
	StatusActive
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusInactive:
		return "inactive"
	case StatusActive:
		return "active"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Origin distinguishes measured sensor data from synthetic placeholders
// the decoder emits for status and handshake frames.
type Origin uint8

const (
	// Measured marks a reading decoded from real payload bytes.
	Measured Origin = iota
	// Synthetic marks a placeholder reading that communicates "sensor
	// alive but no payload yet". Downstream consumers may exclude these.
	Synthetic
)

func (o Origin) String() string {
	if o == Synthetic {
		return "synthetic"
	}
	return "measured"
}
