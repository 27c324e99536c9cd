package sensor

import (
	"encoding/binary"
	"fmt"
	"math"
)

// DecodeError reports a frame that was attributable to a sensor stream but
// could not be parsed. Only the named kind's status should be affected.
type DecodeError struct {
	Kind Kind
	Msg  string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %s", e.Kind, e.Msg)
}

// Wire constants observed on the device. The status code and the "He"
// handshake prefix are firmware quirks of one physical unit, not part of
// any published protocol.
const (
	frameStatus    byte = 0x01 // single-value / status frame marker
	frameMultiByte byte = 0x02 // multi-byte payload frame marker
	statusIdle     byte = 0xFB // "sensor idle, no data yet"
)

// Scale factors converting raw integer payloads to physical units.
const (
	accelScale = 1.0 / 1000.0 // raw LSB -> g
	gyroScale  = 1.0 / 16.0   // raw LSB -> deg/s
	magScale   = 1.0 / 10.0   // raw LSB -> µT
)

// Placeholder values emitted for status and handshake frames. These are
// synthetic: plausible resting values that communicate "sensor alive but
// no payload yet", never measured data.
const (
	placeholderCelsius = 36.6
	placeholderBPM     = 72
)

// Temperature payloads carry a signed offset from a fixed bias.
const temperatureBias = 20.0

// Heart-rate magnitudes outside this band are treated as ECG samples when
// a frame is ambiguous between the two (they share resource id 0x63).
const (
	minPlausibleBPM = 40
	maxPlausibleBPM = 200
)

// Magnitude bands separating physically plausible raw vectors: g-force
// readings are small, angular rates are mid-range, field strengths large.
// Empirically chosen against one unit's firmware.
const (
	accelMagnitudeMax = 20.0
	gyroMagnitudeMax  = 2000.0
)

// Decoder classifies raw notification frames into typed readings.
//
// The device firmware does not self-describe payload semantics reliably,
// so classification runs through an ordered cascade: exact status and
// handshake matches first, then known frame layouts, then magnitude-based
// fallback heuristics. The cascade order is load-bearing: a later rule
// must never shadow an earlier, more specific one.
//
// The only state is a millisecond clock used to stamp readings (and to
// drive the magnetometer placeholder oscillator) and a latch recording
// whether a temperature reading has been produced yet, which gates
// fallback rule acceptance of unattributed 4-byte frames.
type Decoder struct {
	nowMillis func() int64
	seenTemp  bool
}

// NewDecoder returns a Decoder stamping readings with nowMillis, a
// session-relative monotonic millisecond clock.
func NewDecoder(nowMillis func() int64) *Decoder {
	return &Decoder{nowMillis: nowMillis}
}

// Reset clears decoder state for a fresh session.
func (d *Decoder) Reset() {
	d.seenTemp = false
}

// Decode classifies one frame. It returns zero, one, or (for ambiguous
// 3-axis frames) two readings. Unrecognized frames return (nil, nil);
// frames attributable to a stream but malformed return a *DecodeError.
// Decode never panics and reads no byte without a prior length check.
func (d *Decoder) Decode(frame []byte) ([]Reading, error) {
	if len(frame) == 0 {
		return nil, nil
	}
	at := d.nowMillis()

	// Rule 1: exact 4-byte "sensor idle" status frame.
	if len(frame) == 4 && frame[0] == frameStatus && frame[2] == frameStatus && frame[3] == statusIdle {
		return d.placeholderFor(frame[1], at)
	}

	// Rule 2: 7-byte post-stop handshake ("He..." ACK). Re-arms the
	// stream named by the resource id with a placeholder.
	if len(frame) == 7 && frame[2] == 'H' && frame[3] == 'e' {
		return d.placeholderFor(frame[1], at)
	}

	// Rule 3: known single-axis accelerometer frame.
	if len(frame) >= 8 && len(frame) < 10 && frame[0] == frameMultiByte && frame[1] == ResourceTempAccel {
		raw := int16(binary.LittleEndian.Uint16(frame[4:6]))
		s := Vec3{X: float64(raw) * accelScale}
		return []Reading{newAccelerometer(at, Measured, s)}, nil
	}

	// Rule 4: simple 4-byte value frame, routed by resource id.
	if len(frame) == 4 && frame[0] == frameStatus && frame[2] == frameStatus {
		return d.decodeSimpleValue(frame, at)
	}

	// Rule 5: multi-byte 3-axis frame on the accel resource. Firmware
	// aliases gyro traffic onto this id, so the decoded vector is
	// classified by magnitude; small vectors plausibly describe both.
	if len(frame) >= 10 && frame[0] == frameMultiByte && frame[1] == ResourceTempAccel {
		raw := rawVec3(frame, 2)
		mag := raw.Magnitude()
		out := []Reading{newGyroscope(at, Measured, scaleVec3(raw, gyroScale))}
		if mag < accelMagnitudeMax {
			out = append(out, newAccelerometer(at, Measured, scaleVec3(raw, accelScale)))
		}
		return out, nil
	}

	// Multi-byte frames on the accel resource shorter than any known
	// layout are attributable but unparseable.
	if len(frame) >= 2 && len(frame) < 8 && frame[0] == frameMultiByte && frame[1] == ResourceTempAccel {
		return nil, &DecodeError{Kind: Accelerometer, Msg: fmt.Sprintf("multi-byte frame too short: %d bytes", len(frame))}
	}

	// Rule 6: extended ECG frame, consecutive int16 samples.
	if len(frame) > 4 && frame[0] == frameStatus && frame[1] == ResourceHeartRateECG {
		n := (len(frame) - 2) / 2
		samples := make([]int16, n)
		for i := 0; i < n; i++ {
			samples[i] = int16(binary.LittleEndian.Uint16(frame[2+2*i : 4+2*i]))
		}
		return []Reading{newECG(at, Measured, samples)}, nil
	}

	return d.decodeFallback(frame, at)
}

// placeholderFor emits the synthetic reading re-arming the stream named
// by a resource id. Unknown ids are ignored rather than failed: status
// frames for unsupported resources are routine.
func (d *Decoder) placeholderFor(resource byte, at int64) ([]Reading, error) {
	switch resource {
	case ResourceTempAccel:
		return []Reading{newTemperature(at, Synthetic, placeholderCelsius)}, nil
	case ResourceHeartRateECG:
		return []Reading{newHeartRate(at, Synthetic, placeholderBPM)}, nil
	case ResourceGyro:
		return []Reading{newGyroscope(at, Synthetic, Vec3{})}, nil
	case ResourceMagnetometer:
		return []Reading{newMagnetometer(at, Synthetic, Vec3{})}, nil
	}
	return nil, nil
}

func (d *Decoder) decodeSimpleValue(frame []byte, at int64) ([]Reading, error) {
	v := int(int8(frame[3]))
	switch frame[1] {
	case ResourceTempAccel:
		d.seenTemp = true
		return []Reading{newTemperature(at, Measured, float64(v)+temperatureBias)}, nil
	case ResourceHeartRateECG:
		// Routed by magnitude; the magnitude is also the published rate,
		// so a heart-rate reading is never negative.
		if abs := absInt(v); abs >= minPlausibleBPM && abs <= maxPlausibleBPM {
			return []Reading{newHeartRate(at, Measured, abs)}, nil
		}
		return []Reading{newECG(at, Measured, []int16{int16(v)})}, nil
	case ResourceGyro:
		return []Reading{newGyroscope(at, Synthetic, Vec3{})}, nil
	case ResourceMagnetometer:
		if byte(frame[3]) == statusIdle {
			return []Reading{newMagnetometer(at, Synthetic, Vec3{})}, nil
		}
		return []Reading{newMagnetometer(at, Synthetic, d.oscillatorSample())}, nil
	}
	return nil, nil
}

// oscillatorSample synthesizes a slowly rotating field vector from the
// session clock. Placeholder only: the unit never reports a real 3-axis
// magnetometer payload in its simple-value frames.
func (d *Decoder) oscillatorSample() Vec3 {
	t := float64(d.nowMillis()) / 1000.0
	return Vec3{
		X: 50 * math.Sin(t),
		Y: 50 * math.Cos(t),
		Z: 30 * math.Sin(t/2),
	}
}

// decodeFallback applies the last-resort heuristics to frames no exact
// rule claimed.
func (d *Decoder) decodeFallback(frame []byte, at int64) ([]Reading, error) {
	// 4-byte frames with the value marker are accepted as temperature
	// once, before any real temperature has been seen, if the decoded
	// value lands in a plausible band.
	if len(frame) == 4 && frame[2] == frameStatus && !d.seenTemp {
		c := float64(int8(frame[3])) + temperatureBias
		if c >= 0 && c <= 50 {
			d.seenTemp = true
			return []Reading{newTemperature(at, Measured, c)}, nil
		}
		return nil, nil
	}

	// Longer frames: decode three consecutive int16 values and classify
	// the raw vector by magnitude band.
	if len(frame) >= 6 {
		raw := rawVec3(frame, 0)
		switch mag := raw.Magnitude(); {
		case mag < accelMagnitudeMax:
			return []Reading{newAccelerometer(at, Measured, scaleVec3(raw, accelScale))}, nil
		case mag < gyroMagnitudeMax:
			return []Reading{newGyroscope(at, Measured, scaleVec3(raw, gyroScale))}, nil
		default:
			return []Reading{newMagnetometer(at, Measured, scaleVec3(raw, magScale))}, nil
		}
	}

	return nil, nil
}

// rawVec3 reads three consecutive little-endian int16 values. Callers
// guarantee len(frame) >= offset+6.
func rawVec3(frame []byte, offset int) Vec3 {
	return Vec3{
		X: float64(int16(binary.LittleEndian.Uint16(frame[offset : offset+2]))),
		Y: float64(int16(binary.LittleEndian.Uint16(frame[offset+2 : offset+4]))),
		Z: float64(int16(binary.LittleEndian.Uint16(frame[offset+4 : offset+6]))),
	}
}

func scaleVec3(v Vec3, scale float64) Vec3 {
	return Vec3{X: v.X * scale, Y: v.Y * scale, Z: v.Z * scale}
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
