package intel

import (
	"math"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/crankcase-data/power.report/internal/rider"
	"github.com/crankcase-data/power.report/internal/route"
)

// stepDeg spaces synthetic route points roughly 11.1 m apart along the
// equator.
const stepDeg = 0.0001

func syntheticRoute(t *testing.T, n int, grade float64) *route.Matcher {
	t.Helper()
	stepM := route.Haversine(0, 0, 0, stepDeg)
	src := make([]route.SourcePoint, n)
	for i := range src {
		src[i] = route.SourcePoint{Lat: 0, Lon: float64(i) * stepDeg, ElevationM: float64(i) * stepM * grade}
	}
	r, err := route.New(src, nil)
	if err != nil {
		t.Fatalf("route.New: %v", err)
	}
	return route.NewMatcher(r)
}

func newRouteEngine(t *testing.T, m *route.Matcher) *Engine {
	t.Helper()
	params := rider.DefaultParameters()
	params.FTPWatts = 250
	h, err := rider.NewHolder(params, nil)
	if err != nil {
		t.Fatalf("NewHolder: %v", err)
	}
	e := NewEngine(h, stubProvider{}, zap.NewNop().Sugar())
	e.SetRoute(m)
	return e
}

func TestRouteAheadFlat(t *testing.T) {
	e := newRouteEngine(t, syntheticRoute(t, 100, 0))
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

	st := e.Tick(TickInput{PowerW: 160, SpeedMps: 8, Lat: 0, Lon: 0, HasPosition: true}, now)
	ra := st.RouteAhead
	if ra == nil {
		t.Fatal("no lookahead on route")
	}
	if ra.DistanceM <= 0 {
		t.Fatal("lookahead covered no distance")
	}
	if math.Abs(ra.AvgGrade) > 0.001 || ra.MaxGrade > 0.001 {
		t.Errorf("flat route grades = avg %v max %v, want ~0", ra.AvgGrade, ra.MaxGrade)
	}
	// Flat terrain maps to 65% of FTP with a ±10% band.
	if math.Abs(ra.RequiredPowerMinW-250*0.65*0.9) > 1e-6 {
		t.Errorf("required min = %v, want %v", ra.RequiredPowerMinW, 250*0.65*0.9)
	}
	if math.Abs(ra.RequiredPowerMaxW-250*0.65*1.1) > 1e-6 {
		t.Errorf("required max = %v, want %v", ra.RequiredPowerMaxW, 250*0.65*1.1)
	}
	if ra.Difficulty != 1 {
		t.Errorf("flat difficulty = %d, want 1", ra.Difficulty)
	}
	if ra.EstimatedTime <= 0 {
		t.Error("estimated time not computed")
	}
	if ra.PacingDelta == "" {
		t.Error("pacing delta not computed")
	}
}

func TestRouteAheadClimb(t *testing.T) {
	flat := newRouteEngine(t, syntheticRoute(t, 100, 0))
	climb := newRouteEngine(t, syntheticRoute(t, 100, 0.10))
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	in := TickInput{PowerW: 200, SpeedMps: 5, Lat: 0, Lon: 0, HasPosition: true}

	fa := flat.Tick(in, now).RouteAhead
	ca := climb.Tick(in, now).RouteAhead
	if ca == nil || fa == nil {
		t.Fatal("lookahead missing")
	}
	if ca.AvgGrade < 0.08 {
		t.Errorf("climb avg grade = %v, want near 0.10", ca.AvgGrade)
	}
	if ca.ElevationGainM < 90 {
		t.Errorf("climb gain = %v, want near 110", ca.ElevationGainM)
	}
	if ca.RequiredPowerMinW <= fa.RequiredPowerMinW {
		t.Error("climb should demand more power than flat")
	}
	if ca.Difficulty <= fa.Difficulty {
		t.Errorf("climb difficulty %d should exceed flat %d", ca.Difficulty, fa.Difficulty)
	}
	if ca.EstimatedTime <= fa.EstimatedTime {
		t.Error("climb should take longer than flat")
	}
}

func TestRouteAheadOffRoute(t *testing.T) {
	e := newRouteEngine(t, syntheticRoute(t, 100, 0))
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

	// ~111 m north of the route, well past the 40 m threshold.
	st := e.Tick(TickInput{PowerW: 160, SpeedMps: 8, Lat: 0.001, Lon: 0, HasPosition: true}, now)
	if st.RouteAhead != nil {
		t.Errorf("lookahead off route: %+v", st.RouteAhead)
	}
	if st.Audio != nil {
		t.Errorf("audio alert off route: %+v", st.Audio)
	}
}

func TestRouteAheadWithoutRoute(t *testing.T) {
	params := rider.DefaultParameters()
	params.FTPWatts = 250
	h, err := rider.NewHolder(params, nil)
	if err != nil {
		t.Fatalf("NewHolder: %v", err)
	}
	e := NewEngine(h, stubProvider{}, zap.NewNop().Sugar())

	st := e.Tick(TickInput{PowerW: 160, SpeedMps: 8, Lat: 0, Lon: 0, HasPosition: true}, time.Now())
	if st.RouteAhead != nil {
		t.Error("lookahead with no route loaded")
	}
}

func TestAudioSteepGradeAlert(t *testing.T) {
	e := newRouteEngine(t, syntheticRoute(t, 100, 0.10))
	start := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	in := TickInput{PowerW: 250, SpeedMps: 4, Lat: 0, Lon: 0, HasPosition: true}

	st := e.Tick(in, start)
	if st.Audio == nil {
		t.Fatal("no audio alert approaching a 10% grade")
	}
	if st.Audio.Priority != SeverityHigh {
		t.Errorf("priority = %v, want high", st.Audio.Priority)
	}

	// Rate limited for the next two minutes.
	if st = e.Tick(in, start.Add(time.Second)); st.Audio != nil {
		t.Errorf("audio alert inside rate-limit window: %+v", st.Audio)
	}
	if st = e.Tick(in, start.Add(121*time.Second)); st.Audio == nil {
		t.Error("audio alert did not resume after rate-limit window")
	}
}

func TestAudioPowerGapAlert(t *testing.T) {
	e := newRouteEngine(t, syntheticRoute(t, 100, 0))
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

	// Flat target band centers on 162.5 W; 300 W is a 137 W overshoot.
	st := e.Tick(TickInput{PowerW: 300, SpeedMps: 10, Lat: 0, Lon: 0, HasPosition: true}, now)
	if st.Audio == nil {
		t.Fatal("no audio alert for a >50 W power gap")
	}
	if st.Audio.Priority != SeverityMedium {
		t.Errorf("priority = %v, want medium", st.Audio.Priority)
	}
}

func TestAudioQuietWhenOnTarget(t *testing.T) {
	e := newRouteEngine(t, syntheticRoute(t, 100, 0))
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

	st := e.Tick(TickInput{PowerW: 160, SpeedMps: 8, Lat: 0, Lon: 0, HasPosition: true}, now)
	if st.Audio != nil {
		t.Errorf("audio alert at on-target power: %+v", st.Audio)
	}
}
