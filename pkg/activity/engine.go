// Package activity derives higher-level activity metrics from raw
// accelerometer and heart-rate streams: step and dribble counting,
// posture classification, fall detection, and a calorie estimate.
package activity

import (
	"math"
	"sync"
	"time"
)

// Posture is the coarse body orientation derived from the gravity vector.
type Posture uint8

const (
	PostureUnknown Posture = iota
	PostureStanding
	PostureStooped
	PostureLying
)

func (p Posture) String() string {
	switch p {
	case PostureStanding:
		return "standing"
	case PostureStooped:
		return "stooped"
	case PostureLying:
		return "lying"
	default:
		return "unknown"
	}
}

// Detection thresholds. Empirically tuned against on-body captures.
const (
	gravityAlpha = 0.1 // EMA smoothing factor for the gravity estimate

	stepThresholdG  = 0.5
	stepCooldown    = 350 * time.Millisecond
	strideMeters    = 0.7
	dribbleThreshG  = 1.8
	dribbleCooldown = 150 * time.Millisecond
	fallThresholdG  = 2.5

	standingMaxDeg = 30.0
	stoopedMaxDeg  = 75.0
)

// Fixed wearer parameters for the Keytel calorie formula.
const (
	assumedWeightKg = 70.0
	assumedAgeYears = 30.0
	minValidBPM     = 40
	maxValidBPM     = 240
)

// DefaultFallClearWindow is how long the fall flag stays set before it
// auto-clears, absent a newer fall.
const DefaultFallClearWindow = time.Second

// State is a point-in-time snapshot of the derived metrics. Steps and
// CaloriesBurned are monotonically non-decreasing within a session.
type State struct {
	Steps          int       `json:"steps"`
	DistanceMeters float64   `json:"distance_meters"`
	Posture        Posture   `json:"posture"`
	DribbleCount   int       `json:"dribble_count"`
	CaloriesBurned float64   `json:"calories_burned"`
	FallDetected   bool      `json:"fall_detected"`
	LastFallAt     time.Time `json:"last_fall_at,omitempty"`
}

// Engine consumes accelerometer and heart-rate samples and maintains the
// rolling state behind a State snapshot. All methods are safe for
// concurrent use, though the session layer serializes calls in practice.
type Engine struct {
	mu sync.Mutex

	now             func() time.Time
	fallClearWindow time.Duration

	gravity    vec3
	hasGravity bool

	steps     int
	distance  float64
	posture   Posture
	dribbles  int
	lastStep  time.Time
	lastDrib  time.Time
	fallSet   bool
	lastFall  time.Time
	fallTimer *time.Timer

	calories      float64
	activityStart time.Time
}

type vec3 struct{ x, y, z float64 }

func (v vec3) magnitude() float64 {
	return math.Sqrt(v.x*v.x + v.y*v.y + v.z*v.z)
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the wall clock, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithFallClearWindow overrides the fall auto-clear delay.
func WithFallClearWindow(d time.Duration) Option {
	return func(e *Engine) { e.fallClearWindow = d }
}

// NewEngine returns an Engine with zeroed counters.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		now:             time.Now,
		fallClearWindow: DefaultFallClearWindow,
		posture:         PostureUnknown,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ProcessAccelSample feeds one accelerometer sample, in g per axis, and
// updates steps, distance, dribbles, posture and the fall flag.
func (e *Engine) ProcessAccelSample(x, y, z float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	sample := vec3{x, y, z}

	// Gravity estimate: seeded by the first sample, then exponentially
	// smoothed so slow orientation changes track while impacts do not.
	if !e.hasGravity {
		e.gravity = sample
		e.hasGravity = true
	} else {
		e.gravity.x += gravityAlpha * (sample.x - e.gravity.x)
		e.gravity.y += gravityAlpha * (sample.y - e.gravity.y)
		e.gravity.z += gravityAlpha * (sample.z - e.gravity.z)
	}

	linear := vec3{sample.x - e.gravity.x, sample.y - e.gravity.y, sample.z - e.gravity.z}
	mag := linear.magnitude()

	// Step and dribble detectors run concurrently on the same stream
	// with independent cooldowns.
	if mag > stepThresholdG && (e.lastStep.IsZero() || now.Sub(e.lastStep) >= stepCooldown) {
		e.steps++
		e.distance += strideMeters
		e.lastStep = now
	}
	if mag > dribbleThreshG && (e.lastDrib.IsZero() || now.Sub(e.lastDrib) >= dribbleCooldown) {
		e.dribbles++
		e.lastDrib = now
	}

	e.posture = classifyPosture(e.gravity)

	if mag > fallThresholdG {
		e.recordFallLocked(now)
	}
}

// classifyPosture maps the gravity vector's angle off the device z axis
// to a posture band. No hysteresis: every sample overwrites.
func classifyPosture(g vec3) Posture {
	angle := math.Atan2(math.Sqrt(g.x*g.x+g.y*g.y), g.z) * 180 / math.Pi
	switch {
	case angle < standingMaxDeg:
		return PostureStanding
	case angle < stoopedMaxDeg:
		return PostureStooped
	default:
		return PostureLying
	}
}

// recordFallLocked sets the fall flag and schedules its clear. The clear
// compares the stored timestamp at fire time so a clear scheduled for an
// older fall never undoes a newer one.
func (e *Engine) recordFallLocked(at time.Time) {
	e.fallSet = true
	e.lastFall = at
	if e.fallTimer != nil {
		e.fallTimer.Stop()
	}
	e.fallTimer = time.AfterFunc(e.fallClearWindow, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.lastFall.Equal(at) {
			e.fallSet = false
		}
	})
}

// UpdateCalories recomputes the session calorie total from the latest
// heart rate. The total is a pure function of elapsed time since the
// first valid sample and the heart rate at call time (Keytel et al.),
// not an integral over history, so repeated calls with the same inputs
// are idempotent.
func (e *Engine) UpdateCalories(heartRate int) {
	if heartRate < minValidBPM || heartRate > maxValidBPM {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	if e.activityStart.IsZero() {
		e.activityStart = now
	}

	kcalPerMin := (-55.0969 + 0.6309*float64(heartRate) + 0.1988*assumedWeightKg + 0.2017*assumedAgeYears) / 4.184
	minutes := now.Sub(e.activityStart).Minutes()
	if total := kcalPerMin * minutes; total > e.calories {
		e.calories = total
	}
}

// Snapshot returns the current derived metrics.
func (e *Engine) Snapshot() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return State{
		Steps:          e.steps,
		DistanceMeters: e.distance,
		Posture:        e.posture,
		DribbleCount:   e.dribbles,
		CaloriesBurned: e.calories,
		FallDetected:   e.fallSet,
		LastFallAt:     e.lastFall,
	}
}

// Reset zeroes all counters, reseeds the gravity estimate and invalidates
// any pending fall-clear timer.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.fallTimer != nil {
		e.fallTimer.Stop()
		e.fallTimer = nil
	}
	e.gravity = vec3{}
	e.hasGravity = false
	e.steps = 0
	e.distance = 0
	e.posture = PostureUnknown
	e.dribbles = 0
	e.lastStep = time.Time{}
	e.lastDrib = time.Time{}
	e.fallSet = false
	e.lastFall = time.Time{}
	e.calories = 0
	e.activityStart = time.Time{}
}
