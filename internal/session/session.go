// Package session orchestrates one ride timeline: it consumes the parsed
// sensor ticks, drives the power estimator, the intelligence engine, the
// learner's segment builder, and any active calibration session, and turns
// ride stop into a persisted ride plus a background retrain.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/crankcase-data/power.report/internal/calibration"
	"github.com/crankcase-data/power.report/internal/feed"
	"github.com/crankcase-data/power.report/internal/intel"
	"github.com/crankcase-data/power.report/internal/learner"
	"github.com/crankcase-data/power.report/internal/physics"
	"github.com/crankcase-data/power.report/internal/power"
	"github.com/crankcase-data/power.report/internal/rider"
	"github.com/crankcase-data/power.report/internal/ridestore"
	"github.com/crankcase-data/power.report/internal/route"
	"github.com/crankcase-data/power.report/internal/timeutil"
)

// RideSink persists completed rides. Satisfied by *ridestore.Store.
type RideSink interface {
	SaveRide(ctx context.Context, r *learner.Ride) error
}

var _ RideSink = (*ridestore.Store)(nil)

// StateSink receives per-tick snapshots for delivery to UI clients.
// Implementations must not block.
type StateSink interface {
	BroadcastState(state interface{})
}

// Manager owns the single ride timeline. HandleTick runs on the sensor
// goroutine; the control methods (StartRide, StopRide, SetRoute) and State
// may be called from the API goroutines.
type Manager struct {
	riderH    *rider.Holder
	estimator *power.Estimator
	engine    *intel.Engine
	builder   *learner.SegmentBuilder
	calib     *calibration.Session
	store     RideSink
	retrainer *learner.Retrainer
	sink      StateSink
	clock     timeutil.Clock
	log       *zap.SugaredLogger

	retrainOnStop bool

	mu        sync.RWMutex
	active    bool
	// engineReset defers intel.Engine.Reset to the sensor goroutine,
	// which is the only goroutine allowed to touch the engine.
	engineReset bool
	startAt   time.Time
	lastAt    time.Time
	distanceM float64
	maxPower  float64
	powerSum  float64
	tickCount int
	tempSum   float64
	tempCount int
	matcher   *route.Matcher
	lastState intel.State
}

// Deps bundles the collaborators a Manager needs.
type Deps struct {
	Rider         *rider.Holder
	Estimator     *power.Estimator
	Engine        *intel.Engine
	Calibration   *calibration.Session
	Store         RideSink
	Retrainer     *learner.Retrainer
	Sink          StateSink
	Clock         timeutil.Clock
	Log           *zap.SugaredLogger
	RetrainOnStop bool
}

// NewManager wires a ride manager. The segment builder is owned internally;
// everything else is injected.
func NewManager(d Deps) *Manager {
	return &Manager{
		riderH:        d.Rider,
		estimator:     d.Estimator,
		engine:        d.Engine,
		builder:       learner.NewSegmentBuilder(),
		calib:         d.Calibration,
		store:         d.Store,
		retrainer:     d.Retrainer,
		sink:          d.Sink,
		clock:         d.Clock,
		log:           d.Log,
		retrainOnStop: d.RetrainOnStop,
	}
}

// SetRoute installs the active route for matching and lookahead. Pass nil to
// clear.
func (m *Manager) SetRoute(r *route.Route) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r == nil {
		m.matcher = nil
		m.engine.SetRoute(nil)
		return
	}
	m.matcher = route.NewMatcher(r)
	m.engine.SetRoute(m.matcher)
}

// Active reports whether a ride is in progress.
func (m *Manager) Active() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

// State returns the latest intelligence snapshot.
func (m *Manager) State() intel.State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastState
}

// StartRide begins a new ride timeline.
func (m *Manager) StartRide() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active {
		return fmt.Errorf("ride already active")
	}
	m.active = true
	m.startAt = m.clock.Now()
	m.lastAt = m.startAt
	m.distanceM = 0
	m.maxPower = 0
	m.powerSum = 0
	m.tickCount = 0
	m.tempSum = 0
	m.tempCount = 0
	m.log.Infow("ride started", "at", m.startAt)
	return nil
}

// StopRide ends the ride: the pending learner segment is flushed, the ride is
// persisted, rolling tick state is discarded, and a background retrain is
// submitted. Rider parameters keep their last committed values.
func (m *Manager) StopRide(ctx context.Context) (learner.Ride, error) {
	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return learner.Ride{}, fmt.Errorf("no active ride")
	}
	m.active = false

	now := m.clock.Now()
	segments := m.builder.Flush()

	ride := learner.Ride{
		StartTime: m.startAt,
		EndTime:   now,
		DistanceM: m.distanceM,
		MaxPower:  m.maxPower,
		Segments:  segments,
	}
	if m.tickCount > 0 {
		ride.AvgPower = m.powerSum / float64(m.tickCount)
	}
	if m.tempCount > 0 {
		ride.AvgTempC = m.tempSum / float64(m.tempCount)
	}
	if np, ok := m.estimator.NormalizedPower(); ok {
		ride.NormalizedPower = np
	}
	// The engine has no lock of its own, so its reset runs on the next
	// sensor tick instead of here.
	m.engineReset = true
	m.mu.Unlock()

	m.estimator.Reset()

	if err := m.store.SaveRide(ctx, &ride); err != nil {
		return ride, fmt.Errorf("persist ride: %w", err)
	}
	m.recordPerformance(ride)
	m.log.Infow("ride stopped",
		"duration", ride.EndTime.Sub(ride.StartTime),
		"distance_m", ride.DistanceM,
		"segments", len(ride.Segments),
	)

	if m.retrainOnStop && m.retrainer != nil {
		m.retrainer.Submit(ctx, now, nil)
	}
	return ride, nil
}

// recordPerformance appends the ride summary to the rider's bounded history.
func (m *Manager) recordPerformance(ride learner.Ride) {
	perf := rider.Performance{
		Date:            ride.StartTime,
		DurationSec:     ride.EndTime.Sub(ride.StartTime).Seconds(),
		DistanceM:       ride.DistanceM,
		AvgPower:        ride.AvgPower,
		NormalizedPower: ride.NormalizedPower,
		AvgTempC:        ride.AvgTempC,
	}
	p := m.riderH.Snapshot()
	if ftp, ok := p.EffectiveFTP(); ok && ftp > 0 && ride.NormalizedPower > 0 {
		intensity := ride.NormalizedPower / ftp
		perf.TSS = ride.EndTime.Sub(ride.StartTime).Hours() * intensity * intensity * 100
	}
	if err := m.riderH.RecordPerformance(perf); err != nil {
		m.log.Warnw("failed to record ride performance", "error", err)
	}
}

// HandleTick processes one parsed sensor sample. No-op outside an active
// ride; calibration sessions still receive their ticks so a rider can
// calibrate without recording.
func (m *Manager) HandleTick(t feed.Tick) {
	now := m.clock.Now()

	m.mu.Lock()
	matcher := m.matcher
	active := m.active
	startAt := m.startAt
	doReset := m.engineReset
	m.engineReset = false
	m.mu.Unlock()

	if doReset {
		m.engine.Reset()
	}

	grade, hasGrade := t.Grade, t.HasGrade
	if !hasGrade && matcher != nil && t.HasPosition {
		if res := matcher.Match(t.Lat, t.Lon); res.OnRoute {
			grade, hasGrade = res.GradeShort, true
		}
	}

	wind := 0.0
	if t.HasWind {
		wind = t.WindMps
	}

	cond := physics.Conditions{
		SpeedMps:    t.SpeedMps,
		Grade:       grade,
		HeadwindMps: wind,
		AltitudeM:   t.AltitudeM,
	}

	if m.calib != nil {
		m.calib.Tick(t.SpeedMps, grade, wind, t.PowerW)
	}

	if !active {
		return
	}

	sample := m.estimator.Tick(cond, now)

	// A direct power meter outranks the model.
	powerW := sample.Total
	if t.HasPower {
		powerW = t.PowerW
	}

	st := m.engine.Tick(intel.TickInput{
		PowerW:         powerW,
		SpeedMps:       t.SpeedMps,
		Grade:          grade,
		WindMps:        wind,
		TemperatureC:   t.TemperatureC,
		HasTemperature: t.HasTemperature,
		HumidityPct:    t.HumidityPct,
		HasHumidity:    t.HasHumidity,
		Lat:            t.Lat,
		Lon:            t.Lon,
		HasPosition:    t.HasPosition,
		AltitudeM:      t.AltitudeM,
		RideDuration:   now.Sub(startAt),
	}, now)

	m.mu.Lock()
	if !m.active {
		// Ride stopped while this tick was in flight; drop it.
		m.mu.Unlock()
		return
	}
	m.builder.Add(learner.TickSample{
		At:        now,
		Power:     powerW,
		SpeedMps:  t.SpeedMps,
		Grade:     grade,
		WindMps:   wind,
		TempC:     t.TemperatureC,
		Humidity:  t.HumidityPct,
		HeartRate: t.HeartRate,
	})
	dt := now.Sub(m.lastAt)
	if dt < 0 || dt > 5*time.Second {
		dt = time.Second
	}
	m.lastAt = now
	m.distanceM += t.SpeedMps * dt.Seconds()
	if powerW > m.maxPower {
		m.maxPower = powerW
	}
	m.powerSum += powerW
	m.tickCount++
	if t.HasTemperature {
		m.tempSum += t.TemperatureC
		m.tempCount++
	}
	m.lastState = st
	m.mu.Unlock()

	if m.sink != nil {
		m.sink.BroadcastState(st)
	}
}

// Run consumes head-unit lines until the context is cancelled. Non-tick lines
// are skipped; malformed ticks are logged and dropped.
func (m *Manager) Run(ctx context.Context, lines <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			t, err := feed.ParseTick(line)
			if err != nil {
				if err != feed.ErrNotTick {
					m.log.Debugw("dropped malformed tick", "error", err, "line", line)
				}
				continue
			}
			m.HandleTick(t)
		}
	}
}
