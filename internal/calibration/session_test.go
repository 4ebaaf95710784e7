package calibration

import (
	"math"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/crankcase-data/power.report/internal/physics"
	"github.com/crankcase-data/power.report/internal/rider"
	"github.com/crankcase-data/power.report/internal/timeutil"
)

func newTestSession(t *testing.T) (*Session, *rider.Holder, *timeutil.MockClock) {
	t.Helper()
	h, err := rider.NewHolder(rider.DefaultParameters(), nil)
	if err != nil {
		t.Fatalf("NewHolder: %v", err)
	}
	clock := timeutil.NewMockClock(time.Date(2026, 5, 10, 10, 0, 0, 0, time.UTC))
	return NewSession(h, clock, zap.NewNop().Sugar()), h, clock
}

func TestStateTransitions(t *testing.T) {
	s, _, _ := newTestSession(t)

	if s.State() != StateIdle {
		t.Fatalf("initial state = %v, want idle", s.State())
	}
	if err := s.Start(ModeSteadyState, "hoods"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if s.State() != StateCollecting {
		t.Fatalf("state after start = %v, want collecting", s.State())
	}
	// Double start is rejected.
	if err := s.Start(ModeSteadyState, "hoods"); err == nil {
		t.Error("second Start should fail while collecting")
	}
	if err := s.Cancel(); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if s.State() != StateIdle {
		t.Fatalf("state after cancel = %v, want idle", s.State())
	}
	// Stop without a session is rejected.
	if _, err := s.Stop(); err == nil {
		t.Error("Stop should fail while idle")
	}
	if err := s.Start("downhill-tuck", "drops"); err == nil {
		t.Error("unknown mode should be rejected")
	}
}

func TestProgress(t *testing.T) {
	s, _, clock := newTestSession(t)
	if err := s.Start(ModeSteadyState, "drops"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	clock.Advance(5 * time.Minute)
	if got := s.Progress(); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("progress at 5min = %v, want 0.5", got)
	}
	clock.Advance(10 * time.Minute)
	if got := s.Progress(); got != 1 {
		t.Errorf("progress past target = %v, want saturated 1", got)
	}
}

func TestSteadyStateConclusive(t *testing.T) {
	s, h, _ := newTestSession(t)
	p := h.Snapshot()

	// Rider actually holds CdA 0.28; feed the matching physics power.
	trueBike := physics.Bike{MassKg: p.MassKg, CdA: 0.28, Crr: p.Crr, DrivetrainLoss: p.DrivetrainLoss}
	power := physics.Forward(physics.Conditions{SpeedMps: 10}, trueBike).Total

	if err := s.Start(ModeSteadyState, "drops"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	for i := 0; i < 600; i++ {
		s.Tick(10, 0, 0, power)
	}
	res, err := s.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !res.Conclusive {
		t.Fatalf("result inconclusive: %s", res.Reason)
	}
	if math.Abs(res.CdA-0.28) > 1e-9 {
		t.Errorf("CdA = %v, want 0.28", res.CdA)
	}
	if got := h.Snapshot().CdA; math.Abs(got-0.28) > 1e-9 {
		t.Errorf("committed CdA = %v, want 0.28", got)
	}
	if s.State() != StateIdle {
		t.Errorf("state after stop = %v, want idle", s.State())
	}
}

func TestSteadyStateInconclusiveKeepsPrior(t *testing.T) {
	s, h, _ := newTestSession(t)
	prior := h.Snapshot().CdA

	if err := s.Start(ModeSteadyState, "hoods"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// Crawling pace: airspeed guard rejects the inverse.
	for i := 0; i < 60; i++ {
		s.Tick(2, 0, 0, 150)
	}
	res, err := s.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if res.Conclusive {
		t.Fatal("expected inconclusive result")
	}
	if res.Reason == "" {
		t.Error("inconclusive result should carry a reason")
	}
	if got := h.Snapshot().CdA; got != prior {
		t.Errorf("CdA changed to %v on inconclusive session, want %v", got, prior)
	}
}

func TestTooFewSamplesIsInconclusive(t *testing.T) {
	s, _, _ := newTestSession(t)
	if err := s.Start(ModeSteadyState, "hoods"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.Tick(10, 0, 0, 200)
	res, err := s.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if res.Conclusive {
		t.Error("one sample should be inconclusive")
	}
}

func TestCoastDownConclusive(t *testing.T) {
	s, h, _ := newTestSession(t)

	if err := s.Start(ModeCoastDown, "tucked"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// Linear decay 8 -> 4 m/s over 67 samples on flat ground:
	// distance ≈ 402 m, Crr ≈ 0.5·(64-16)/(9.81·402) ≈ 0.0061.
	for i := 0; i <= 66; i++ {
		s.Tick(8-4*float64(i)/66, 0, 0, 0)
	}
	res, err := s.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !res.Conclusive {
		t.Fatalf("result inconclusive: %s", res.Reason)
	}
	if res.Crr < 0.005 || res.Crr > 0.008 {
		t.Errorf("Crr = %v, want ~0.006", res.Crr)
	}
	if got := h.Snapshot().Crr; got != res.Crr {
		t.Errorf("committed Crr = %v, want %v", got, res.Crr)
	}
}

func TestCoastDownOutOfRangeRejected(t *testing.T) {
	s, h, _ := newTestSession(t)
	prior := h.Snapshot().Crr

	if err := s.Start(ModeCoastDown, "tucked"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// Braking-fast decay over a short distance implies absurd Crr.
	for i := 0; i <= 20; i++ {
		s.Tick(8-7*float64(i)/20, 0, 0, 0)
	}
	res, err := s.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if res.Conclusive {
		t.Error("expected rejection of implausible Crr")
	}
	if got := h.Snapshot().Crr; got != prior {
		t.Errorf("Crr changed to %v, want prior %v retained", got, prior)
	}
}

func TestTickIgnoredWhileIdle(t *testing.T) {
	s, _, _ := newTestSession(t)
	s.Tick(10, 0, 0, 200)
	if err := s.Start(ModeSteadyState, "hoods"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	for i := 0; i < 20; i++ {
		s.Tick(10, 0, 0, 200)
	}
	res, err := s.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if res.Samples != 20 {
		t.Errorf("samples = %d, want 20 (idle tick dropped)", res.Samples)
	}
}
