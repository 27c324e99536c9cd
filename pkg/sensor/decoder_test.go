package sensor_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/biolink/pkg/sensor"
)

func newTestDecoder() *sensor.Decoder {
	return sensor.NewDecoder(func() int64 { return 1234 })
}

func TestDecoder_StatusFrames(t *testing.T) {
	tests := []struct {
		name  string
		frame []byte
		kind  sensor.Kind
	}{
		{
			name:  "temperature idle status",
			frame: []byte{0x01, 0x62, 0x01, 0xFB},
			kind:  sensor.Temperature,
		},
		{
			name:  "heart rate idle status",
			frame: []byte{0x01, 0x63, 0x01, 0xFB},
			kind:  sensor.HeartRate,
		},
		{
			name:  "gyroscope idle status",
			frame: []byte{0x01, 0x64, 0x01, 0xFB},
			kind:  sensor.Gyroscope,
		},
		{
			name:  "magnetometer idle status",
			frame: []byte{0x01, 0x65, 0x01, 0xFB},
			kind:  sensor.Magnetometer,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDecoder()
			readings, err := d.Decode(tt.frame)

			require.NoError(t, err)
			require.Len(t, readings, 1)
			assert.Equal(t, tt.kind, readings[0].Kind)
			assert.Equal(t, sensor.Synthetic, readings[0].Origin)
			assert.Equal(t, int64(1234), readings[0].CapturedAt)
		})
	}
}

// The idle status frame for the temperature resource must be claimed by
// the status rule, not fall through to the simple-value rule (which
// would misread the status code 0xFB as -5 °C offset).
func TestDecoder_StatusRuleShadowsSimpleValue(t *testing.T) {
	d := newTestDecoder()
	readings, err := d.Decode([]byte{0x01, 0x62, 0x01, 0xFB})

	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Equal(t, sensor.Synthetic, readings[0].Origin)
	assert.InDelta(t, 36.6, readings[0].Celsius, 1e-9)
}

func TestDecoder_HandshakeFrame(t *testing.T) {
	d := newTestDecoder()
	frame := []byte{0x01, 0x63, 'H', 'e', 'l', 'l', 'o'}

	readings, err := d.Decode(frame)

	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Equal(t, sensor.HeartRate, readings[0].Kind)
	assert.Equal(t, sensor.Synthetic, readings[0].Origin)
	assert.Equal(t, 72, readings[0].BPM)
}

func TestDecoder_SimpleValueFrames(t *testing.T) {
	t.Run("temperature with negative offset", func(t *testing.T) {
		d := newTestDecoder()
		readings, err := d.Decode([]byte{0x01, 0x62, 0x01, 0xF6}) // 0xF6 = -10 signed

		require.NoError(t, err)
		require.Len(t, readings, 1)
		assert.Equal(t, sensor.Temperature, readings[0].Kind)
		assert.Equal(t, sensor.Measured, readings[0].Origin)
		assert.InDelta(t, 10.0, readings[0].Celsius, 1e-9)
	})

	t.Run("heart rate in plausible band", func(t *testing.T) {
		d := newTestDecoder()
		readings, err := d.Decode([]byte{0x01, 0x63, 0x01, 72})

		require.NoError(t, err)
		require.Len(t, readings, 1)
		assert.Equal(t, sensor.HeartRate, readings[0].Kind)
		assert.Equal(t, sensor.Measured, readings[0].Origin)
		assert.Equal(t, 72, readings[0].BPM)
	})

	t.Run("negative heart rate publishes its magnitude", func(t *testing.T) {
		d := newTestDecoder()
		readings, err := d.Decode([]byte{0x01, 0x63, 0x01, 0xB8}) // 0xB8 = -72 signed

		require.NoError(t, err)
		require.Len(t, readings, 1)
		assert.Equal(t, sensor.HeartRate, readings[0].Kind)
		assert.Equal(t, sensor.Measured, readings[0].Origin)
		assert.Equal(t, 72, readings[0].BPM)
	})

	t.Run("out-of-band value on hr resource becomes single ECG sample", func(t *testing.T) {
		d := newTestDecoder()
		readings, err := d.Decode([]byte{0x01, 0x63, 0x01, 25})

		require.NoError(t, err)
		require.Len(t, readings, 1)
		assert.Equal(t, sensor.ECG, readings[0].Kind)
		assert.Equal(t, []int16{25}, readings[0].ECGSamples)
	})

	t.Run("magnetometer value yields synthetic oscillator sample", func(t *testing.T) {
		d := newTestDecoder()
		readings, err := d.Decode([]byte{0x01, 0x65, 0x01, 0x10})

		require.NoError(t, err)
		require.Len(t, readings, 1)
		assert.Equal(t, sensor.Magnetometer, readings[0].Kind)
		assert.Equal(t, sensor.Synthetic, readings[0].Origin)
		require.Len(t, readings[0].Samples, 1)
	})
}

func TestDecoder_KnownAccelFrame(t *testing.T) {
	d := newTestDecoder()
	// int16 LE 1000 at offset 4 -> 1.0 g
	frame := []byte{0x02, 0x62, 0x00, 0x00, 0xE8, 0x03, 0x00, 0x00}

	readings, err := d.Decode(frame)

	require.NoError(t, err)
	require.Len(t, readings, 1)
	r := readings[0]
	assert.Equal(t, sensor.Accelerometer, r.Kind)
	assert.Equal(t, sensor.Measured, r.Origin)
	require.Len(t, r.Samples, 1)
	assert.InDelta(t, 1.0, r.Samples[0].X, 1e-9)
	assert.InDelta(t, 1.0, r.Magnitude, 1e-9)
}

func TestDecoder_ThreeAxisFrame(t *testing.T) {
	t.Run("small vector emits gyroscope and accelerometer", func(t *testing.T) {
		d := newTestDecoder()
		// raw vector (10, -10, 5), magnitude ~15 -> below the accel band cap
		frame := []byte{0x02, 0x62, 0x0A, 0x00, 0xF6, 0xFF, 0x05, 0x00, 0x00, 0x00}

		readings, err := d.Decode(frame)

		require.NoError(t, err)
		require.Len(t, readings, 2)
		assert.Equal(t, sensor.Gyroscope, readings[0].Kind)
		assert.Equal(t, sensor.Accelerometer, readings[1].Kind)
		assert.InDelta(t, 0.010, readings[1].Samples[0].X, 1e-9)
	})

	t.Run("large vector emits gyroscope only", func(t *testing.T) {
		d := newTestDecoder()
		// raw vector (1000, 0, 0)
		frame := []byte{0x02, 0x62, 0xE8, 0x03, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}

		readings, err := d.Decode(frame)

		require.NoError(t, err)
		require.Len(t, readings, 1)
		assert.Equal(t, sensor.Gyroscope, readings[0].Kind)
		assert.InDelta(t, 62.5, readings[0].Samples[0].X, 1e-9)
	})
}

func TestDecoder_ExtendedECGFrame(t *testing.T) {
	d := newTestDecoder()
	// samples: 100, -200
	frame := []byte{0x01, 0x63, 0x64, 0x00, 0x38, 0xFF}

	readings, err := d.Decode(frame)

	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Equal(t, sensor.ECG, readings[0].Kind)
	assert.Equal(t, []int16{100, -200}, readings[0].ECGSamples)
}

func TestDecoder_FallbackTemperature(t *testing.T) {
	d := newTestDecoder()
	frame := []byte{0x00, 0x00, 0x01, 0x05} // 5 + bias = 25 °C

	readings, err := d.Decode(frame)
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Equal(t, sensor.Temperature, readings[0].Kind)
	assert.InDelta(t, 25.0, readings[0].Celsius, 1e-9)

	// Accepted once only: after a temperature has been seen the same
	// frame no longer matches.
	readings, err = d.Decode(frame)
	require.NoError(t, err)
	assert.Empty(t, readings)

	// Reset re-arms the latch.
	d.Reset()
	readings, err = d.Decode(frame)
	require.NoError(t, err)
	assert.Len(t, readings, 1)
}

func TestDecoder_FallbackMagnitudeClassification(t *testing.T) {
	tests := []struct {
		name  string
		x     int16
		kind  sensor.Kind
		scale float64
	}{
		{name: "small magnitude classifies accelerometer", x: 5, kind: sensor.Accelerometer, scale: 1.0 / 1000},
		{name: "mid magnitude classifies gyroscope", x: 500, kind: sensor.Gyroscope, scale: 1.0 / 16},
		{name: "large magnitude classifies magnetometer", x: 5000, kind: sensor.Magnetometer, scale: 1.0 / 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDecoder()
			frame := []byte{byte(tt.x), byte(uint16(tt.x) >> 8), 0x00, 0x00, 0x00, 0x00}

			readings, err := d.Decode(frame)

			require.NoError(t, err)
			require.Len(t, readings, 1)
			assert.Equal(t, tt.kind, readings[0].Kind)
			assert.InDelta(t, float64(tt.x)*tt.scale, readings[0].Samples[0].X, 1e-9)
		})
	}
}

func TestDecoder_MalformedFrames(t *testing.T) {
	t.Run("empty frame is ignored", func(t *testing.T) {
		d := newTestDecoder()
		readings, err := d.Decode(nil)
		require.NoError(t, err)
		assert.Empty(t, readings)
	})

	t.Run("short multi-byte accel frame is a decode failure", func(t *testing.T) {
		d := newTestDecoder()
		readings, err := d.Decode([]byte{0x02, 0x62, 0x01})

		require.Error(t, err)
		assert.Empty(t, readings)
		var decErr *sensor.DecodeError
		require.ErrorAs(t, err, &decErr)
		assert.Equal(t, sensor.Accelerometer, decErr.Kind)
	})

	t.Run("unrecognized frame yields nothing", func(t *testing.T) {
		d := newTestDecoder()
		readings, err := d.Decode([]byte{0xAA, 0xBB})
		require.NoError(t, err)
		assert.Empty(t, readings)
	})
}

func TestReading_AccelerometerMagnitudeInvariant(t *testing.T) {
	d := newTestDecoder()
	frames := [][]byte{
		{0x02, 0x62, 0x00, 0x00, 0xE8, 0x03, 0x00, 0x00},
		{0x02, 0x62, 0x0A, 0x00, 0xF6, 0xFF, 0x05, 0x00, 0x00, 0x00},
		{0x05, 0x00, 0x07, 0x00, 0x03, 0x00},
	}

	for _, frame := range frames {
		readings, err := d.Decode(frame)
		require.NoError(t, err)
		for _, r := range readings {
			if r.Kind != sensor.Accelerometer {
				continue
			}
			require.NotEmpty(t, r.Samples)
			s := r.Samples[0]
			want := math.Sqrt(s.X*s.X + s.Y*s.Y + s.Z*s.Z)
			assert.InDelta(t, want, r.Magnitude, 1e-9)
		}
	}
}
