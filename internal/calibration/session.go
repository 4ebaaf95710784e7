// Package calibration orchestrates bounded data-collection sessions that
// refine the rider's drag (steady-state protocol) or rolling resistance
// (coast-down protocol). A session shares the live sensor tick stream but
// accumulates into its own buffer; rider parameters are only written on an
// explicit, conclusive stop.
package calibration

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/looplab/fsm"
	"go.uber.org/zap"

	"github.com/crankcase-data/power.report/internal/physics"
	"github.com/crankcase-data/power.report/internal/rider"
	"github.com/crankcase-data/power.report/internal/timeutil"
)

// Mode selects the calibration protocol.
type Mode string

const (
	ModeSteadyState Mode = "steady_state"
	ModeCoastDown   Mode = "coast_down"
)

// Session states.
const (
	StateIdle       = "idle"
	StateCollecting = "collecting"
	StateComputing  = "computing"
)

// State machine events.
const (
	eventStart  = "start"
	eventStop   = "stop"
	eventFinish = "finish"
	eventCancel = "cancel"
)

// Collection targets per protocol. Progress saturates at 1 but collection
// continues until an explicit stop.
const (
	steadyStateTarget = 10 * time.Minute
	coastDownTarget   = 30 * time.Second

	// minSamples guards against stopping a session before it has any
	// statistical weight.
	minSamples = 10
)

type sample struct {
	speedMps float64
	grade    float64
	windMps  float64
	power    float64
}

// Result reports a completed session to the caller. Inconclusive sessions
// leave rider parameters untouched.
type Result struct {
	Mode       Mode
	Position   string
	Conclusive bool
	CdA        float64 // set for conclusive steady-state sessions
	Crr        float64 // set for conclusive coast-down sessions
	Samples    int
	Reason     string // why the session was inconclusive
}

// Session is the calibration state machine. One Session instance serves the
// whole process; Start/Stop bracket each run.
type Session struct {
	mu       sync.Mutex
	machine  *fsm.FSM
	riderH   *rider.Holder
	clock    timeutil.Clock
	log      *zap.SugaredLogger

	mode      Mode
	position  string
	startedAt time.Time
	samples   []sample
}

// NewSession creates an idle session writing conclusive results to h.
func NewSession(h *rider.Holder, clock timeutil.Clock, log *zap.SugaredLogger) *Session {
	s := &Session{riderH: h, clock: clock, log: log}
	s.machine = fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: eventStart, Src: []string{StateIdle}, Dst: StateCollecting},
			{Name: eventStop, Src: []string{StateCollecting}, Dst: StateComputing},
			{Name: eventFinish, Src: []string{StateComputing}, Dst: StateIdle},
			{Name: eventCancel, Src: []string{StateCollecting}, Dst: StateIdle},
		},
		fsm.Callbacks{},
	)
	return s
}

// State returns the current machine state.
func (s *Session) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Current()
}

// Start begins a collection run. position tags the riding position being
// calibrated (hoods, drops, aero bars) for the caller's records.
func (s *Session) Start(mode Mode, position string) error {
	if mode != ModeSteadyState && mode != ModeCoastDown {
		return fmt.Errorf("unknown calibration mode %q", mode)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.machine.Event(context.Background(), eventStart); err != nil {
		return fmt.Errorf("cannot start calibration: %w", err)
	}
	s.mode = mode
	s.position = position
	s.startedAt = s.clock.Now()
	s.samples = s.samples[:0]
	s.log.Infow("calibration started", "mode", mode, "position", position)
	return nil
}

// Tick appends one sensor sample to the session buffer. No-op while idle, so
// the caller can feed every tick unconditionally.
func (s *Session) Tick(speedMps, grade, windMps, power float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.machine.Current() != StateCollecting {
		return
	}
	s.samples = append(s.samples, sample{speedMps: speedMps, grade: grade, windMps: windMps, power: power})
}

// Progress reports collection progress in [0,1] against the mode's target
// duration.
func (s *Session) Progress() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.machine.Current() != StateCollecting {
		return 0
	}
	target := steadyStateTarget
	if s.mode == ModeCoastDown {
		target = coastDownTarget
	}
	p := s.clock.Since(s.startedAt).Seconds() / target.Seconds()
	if p > 1 {
		p = 1
	}
	return p
}

// Cancel abandons a collecting session without computing anything.
func (s *Session) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Event(context.Background(), eventCancel)
}

// Stop ends collection and computes the session result. Conclusive results
// are committed to the rider record before returning.
func (s *Session) Stop() (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.machine.Event(context.Background(), eventStop); err != nil {
		return Result{}, fmt.Errorf("cannot stop calibration: %w", err)
	}
	// All paths below return to idle.
	defer func() {
		if err := s.machine.Event(context.Background(), eventFinish); err != nil {
			s.log.Errorw("calibration state machine stuck", "error", err)
		}
	}()

	res := Result{Mode: s.mode, Position: s.position, Samples: len(s.samples)}
	if len(s.samples) < minSamples {
		res.Reason = fmt.Sprintf("only %d samples collected, need %d", len(s.samples), minSamples)
		s.log.Warnw("calibration inconclusive", "reason", res.Reason)
		return res, nil
	}

	switch s.mode {
	case ModeSteadyState:
		s.computeSteadyState(&res)
	case ModeCoastDown:
		s.computeCoastDown(&res)
	}

	if !res.Conclusive {
		s.log.Warnw("calibration inconclusive", "mode", res.Mode, "reason", res.Reason)
	}
	return res, nil
}

// computeSteadyState inverts the physics model over the column-wise sample
// means.
func (s *Session) computeSteadyState(res *Result) {
	var speed, grade, wind, power float64
	for _, smp := range s.samples {
		speed += smp.speedMps
		grade += smp.grade
		wind += smp.windMps
		power += smp.power
	}
	n := float64(len(s.samples))

	p := s.riderH.Snapshot()
	cda, ok := physics.InverseCdA(power/n, physics.Conditions{
		SpeedMps:    speed / n,
		Grade:       grade / n,
		HeadwindMps: wind / n,
	}, physics.Bike{MassKg: p.MassKg, CdA: p.CdA, Crr: p.Crr, DrivetrainLoss: p.DrivetrainLoss})
	if !ok {
		res.Reason = "inverse solve rejected: airspeed too low or implied drag out of range"
		return
	}

	if err := s.riderH.SetCdA(cda); err != nil {
		res.Reason = fmt.Sprintf("commit failed: %v", err)
		return
	}
	res.Conclusive = true
	res.CdA = cda
	s.log.Infow("calibration committed", "cda", cda, "position", s.position)
}

// computeCoastDown solves Crr by energy conservation across the run, using
// the 1 Hz cadence to integrate distance and elevation from speed and grade.
func (s *Session) computeCoastDown(res *Result) {
	first := s.samples[0]
	last := s.samples[len(s.samples)-1]

	var distance, elevDelta float64
	for _, smp := range s.samples {
		distance += smp.speedMps // 1 s per sample
		elevDelta += smp.grade * smp.speedMps
	}

	p := s.riderH.Snapshot()
	crr, ok := physics.CoastDownCrr(first.speedMps, last.speedMps, elevDelta, distance, p.MassKg)
	if !ok {
		res.Reason = "coast-down solve rejected: implied rolling resistance out of range"
		return
	}

	if err := s.riderH.SetCrr(crr); err != nil {
		res.Reason = fmt.Sprintf("commit failed: %v", err)
		return
	}
	res.Conclusive = true
	res.Crr = crr
	s.log.Infow("calibration committed", "crr", crr, "position", s.position)
}
