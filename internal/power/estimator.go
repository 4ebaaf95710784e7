// Package power turns per-tick physics evaluations into a smoothed power
// signal: rolling window averages, ride average, and normalized power over a
// bounded sample history.
package power

import (
	"math"
	"sync"
	"time"

	"github.com/crankcase-data/power.report/internal/physics"
	"github.com/crankcase-data/power.report/internal/rider"
)

const (
	// RingCapacity bounds the retained sample history to roughly one hour
	// at the 1 Hz sensor cadence.
	RingCapacity = 3600

	// npWindow is the rolling window normalized power is built from.
	npWindow = 30 * time.Second
)

// Estimator wraps the physics model with temporal smoothing. One Estimator
// serves one ride; Reset discards all rolling state for the next.
type Estimator struct {
	mu     sync.Mutex
	rider  *rider.Holder
	ring   *sampleRing
	rideSum   float64
	rideCount int
	rideStart time.Time

	// Normalized power accumulators: mean of (30 s rolling average)^4
	// across the ride, taken once the window is full.
	npSum4  float64
	npCount int
}

// NewEstimator creates an estimator reading rider parameters from h.
func NewEstimator(h *rider.Holder) *Estimator {
	return &Estimator{rider: h, ring: newSampleRing(RingCapacity)}
}

// Tick evaluates the forward model for one sensor sample and folds the result
// into the rolling state. It is the only mutating call on the tick path.
func (e *Estimator) Tick(c physics.Conditions, now time.Time) Sample {
	p := e.rider.Snapshot()
	bike := physics.Bike{
		MassKg:         p.MassKg,
		CdA:            p.CdA,
		Crr:            p.Crr,
		DrivetrainLoss: p.DrivetrainLoss,
	}
	bd := physics.Forward(c, bike)

	s := Sample{
		Total:      bd.Total,
		Aero:       bd.Aero,
		Rolling:    bd.Rolling,
		Gravity:    bd.Gravity,
		Confidence: estimateConfidence(c),
		At:         now,
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.ring.push(s)
	if e.rideCount == 0 {
		e.rideStart = now
	}
	e.rideSum += s.Total
	e.rideCount++

	// NP accumulation starts once a full rolling window exists.
	if avg, ok := e.windowAverageLocked(npWindow, now); ok && now.Sub(e.rideStart) >= npWindow {
		e.npSum4 += avg * avg * avg * avg
		e.npCount++
	}

	return s
}

// estimateConfidence scores how trustworthy a physics-derived power number is
// for the given conditions. Low speeds make the model ill-conditioned (track
// stands and walking pace read as zero power) and extreme grades usually mean
// smoothing artifacts in the elevation source.
func estimateConfidence(c physics.Conditions) float64 {
	conf := 1.0
	if c.SpeedMps < 2 {
		conf *= 0.5
	}
	if c.SpeedMps+c.HeadwindMps <= physics.MinAirspeed {
		conf *= 0.7
	}
	if math.Abs(c.Grade) > 0.15 {
		conf *= 0.8
	}
	return conf
}

// WindowAverage returns the mean total power over the trailing window ending
// at now. ok is false when no samples fall inside the window.
func (e *Estimator) WindowAverage(window time.Duration, now time.Time) (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.windowAverageLocked(window, now)
}

func (e *Estimator) windowAverageLocked(window time.Duration, now time.Time) (float64, bool) {
	var sum float64
	var n int
	e.ring.window(now.Add(-window), func(s Sample) {
		sum += s.Total
		n++
	})
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// RideAverage returns the mean total power since the last Reset.
func (e *Estimator) RideAverage() (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rideCount == 0 {
		return 0, false
	}
	return e.rideSum / float64(e.rideCount), true
}

// NormalizedPower returns the ride's normalized power: the fourth root of the
// mean fourth power of the rolling 30 s average. ok is false until at least
// one full 30 s window has elapsed.
func (e *Estimator) NormalizedPower() (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.npCount == 0 {
		return 0, false
	}
	return math.Pow(e.npSum4/float64(e.npCount), 0.25), true
}

// SampleCount returns the number of samples currently buffered.
func (e *Estimator) SampleCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ring.len()
}

// Reset discards all rolling state. Called at ride stop.
func (e *Estimator) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ring.reset()
	e.rideSum = 0
	e.rideCount = 0
	e.npSum4 = 0
	e.npCount = 0
}
