package intel

import (
	"math"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/crankcase-data/power.report/internal/learner"
	"github.com/crankcase-data/power.report/internal/physics"
	"github.com/crankcase-data/power.report/internal/rider"
)

type stubProvider struct{ p learner.Parameters }

func (s stubProvider) Learned() learner.Parameters { return s.p }

func newTestEngine(t *testing.T, lp learner.Parameters) (*Engine, *rider.Holder) {
	t.Helper()
	params := rider.DefaultParameters()
	params.FTPWatts = 250
	params.FTPUpdatedAt = time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	h, err := rider.NewHolder(params, nil)
	if err != nil {
		t.Fatalf("NewHolder: %v", err)
	}
	return NewEngine(h, stubProvider{p: lp}, zap.NewNop().Sugar()), h
}

// runTicks feeds n one-second ticks starting at start and returns the final
// state.
func runTicks(e *Engine, in TickInput, start time.Time, n int) State {
	var st State
	for i := 0; i < n; i++ {
		in.RideDuration = time.Duration(i) * time.Second
		st = e.Tick(in, start.Add(time.Duration(i)*time.Second))
	}
	return st
}

func TestClassifyZone(t *testing.T) {
	tests := []struct {
		power float64
		want  Zone
	}{
		{0, ZoneRecovery},
		{137, ZoneRecovery},   // 55%
		{150, ZoneEndurance},  // 60%
		{200, ZoneTempo},      // 80%
		{250, ZoneThreshold},  // 100%
		{290, ZoneVO2Max},     // 116%
		{310, ZoneAnaerobic},  // 124%
	}
	for _, tt := range tests {
		if got := classifyZone(tt.power, 250, true); got != tt.want {
			t.Errorf("classifyZone(%v) = %v, want %v", tt.power, got, tt.want)
		}
	}
	if got := classifyZone(200, 0, false); got != ZoneUnknown {
		t.Errorf("no FTP: zone = %v, want unknown", got)
	}
}

func TestOvercookingThresholdScenario(t *testing.T) {
	e, _ := newTestEngine(t, learner.Parameters{})
	start := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	in := TickInput{PowerW: 250, SpeedMps: 9}

	// IF = 1.0 is above the medium tier only. Three minutes in, the
	// ten-minute requirement is not yet met.
	st := runTicks(e, in, start, 3*60)
	if st.Overcooking != nil {
		t.Fatalf("alert at 3 min: %+v, want none", st.Overcooking)
	}

	// Continue to minute 11.
	for i := 3 * 60; i < 11*60; i++ {
		st = e.Tick(in, start.Add(time.Duration(i)*time.Second))
	}
	if st.Overcooking == nil {
		t.Fatal("no alert at 11 min, want medium")
	}
	if st.Overcooking.Severity != SeverityMedium {
		t.Errorf("severity = %v, want medium", st.Overcooking.Severity)
	}
}

func TestOvercookingTiers(t *testing.T) {
	tests := []struct {
		name    string
		powerW  float64
		ticks   int
		want    Severity
		wantNil bool
	}{
		{"critical after 2min at IF 1.25", 312.5, 2*60 + 5, SeverityCritical, false},
		{"high after 5min at IF 1.1", 275, 5*60 + 5, SeverityHigh, false},
		{"IF 1.1 below 5min stays quiet", 275, 4 * 60, "", true},
		{"below all thresholds", 200, 20 * 60, "", true},
	}
	start := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newTestEngine(t, learner.Parameters{})
			st := runTicks(e, TickInput{PowerW: tt.powerW, SpeedMps: 9}, start, tt.ticks)
			if tt.wantNil {
				if st.Overcooking != nil {
					t.Fatalf("alert = %+v, want none", st.Overcooking)
				}
				return
			}
			if st.Overcooking == nil {
				t.Fatal("no alert fired")
			}
			if st.Overcooking.Severity != tt.want {
				t.Errorf("severity = %v, want %v", st.Overcooking.Severity, tt.want)
			}
		})
	}
}

func TestOvercookingClearsOnRecovery(t *testing.T) {
	e, _ := newTestEngine(t, learner.Parameters{})
	start := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

	st := runTicks(e, TickInput{PowerW: 320, SpeedMps: 9}, start, 3*60)
	if st.Overcooking == nil || st.Overcooking.Severity != SeverityCritical {
		t.Fatalf("alert = %+v, want critical", st.Overcooking)
	}

	// One easy tick clears every tier; the alert does not linger.
	st = e.Tick(TickInput{PowerW: 100, SpeedMps: 8}, start.Add(3*60*time.Second))
	if st.Overcooking != nil {
		t.Errorf("alert after recovery tick = %+v, want cleared", st.Overcooking)
	}
}

func TestEffortBudgetFallbackMonotonic(t *testing.T) {
	e, _ := newTestEngine(t, learner.Parameters{})
	start := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	in := TickInput{PowerW: 250, SpeedMps: 9}

	prev := 100.0
	for i := 0; i < 30*60; i++ {
		st := e.Tick(in, start.Add(time.Duration(i)*time.Second))
		if st.EffortBudgetPct > prev {
			t.Fatalf("budget rose from %v to %v at tick %d", prev, st.EffortBudgetPct, i)
		}
		prev = st.EffortBudgetPct
	}
	// 30 min at IF 1.0 is 50 TSS: a quarter of the fixed full-ride budget.
	if math.Abs(prev-75) > 1 {
		t.Errorf("budget after 30 min at threshold = %v, want ~75", prev)
	}
}

func TestEffortBudgetLearnedDecay(t *testing.T) {
	lp := learner.Parameters{
		FatigueRate: learner.Coefficient{Value: 1.0, SampleCount: 20, Confidence: 90, Status: learner.StatusHigh},
	}
	e, _ := newTestEngine(t, lp)
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

	st := e.Tick(TickInput{PowerW: 225, SpeedMps: 9, RideDuration: 2 * time.Hour}, now)
	want := 100 * math.Exp(-1.0*0.9*2)
	if math.Abs(st.EffortBudgetPct-want) > 0.5 {
		t.Errorf("learned budget = %v, want %v", st.EffortBudgetPct, want)
	}
	if st.PacingAdvice == "" {
		t.Error("expected pacing advice with depleted budget at IF 0.9")
	}
}

func TestPacingWithheldWithBudgetRemaining(t *testing.T) {
	e, _ := newTestEngine(t, learner.Parameters{})
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	st := e.Tick(TickInput{PowerW: 240, SpeedMps: 9}, now)
	if st.PacingAdvice != "" {
		t.Errorf("pacing advice %q on a fresh ride, want none", st.PacingAdvice)
	}
}

func TestFatigueDrift(t *testing.T) {
	e, _ := newTestEngine(t, learner.Parameters{})
	start := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

	// One minute of efficient riding, then the same speed at much higher
	// power: efficiency drops 20%.
	var st State
	for i := 0; i < 60; i++ {
		st = e.Tick(TickInput{PowerW: 200, SpeedMps: 8}, start.Add(time.Duration(i)*time.Second))
	}
	if st.Fatigue != nil {
		t.Fatalf("drift alert during steady riding: %+v", st.Fatigue)
	}
	for i := 60; i < 90; i++ {
		st = e.Tick(TickInput{PowerW: 250, SpeedMps: 8}, start.Add(time.Duration(i)*time.Second))
	}
	if st.Fatigue == nil {
		t.Fatal("no drift alert after 20% efficiency drop")
	}
	if st.Fatigue.DropPct < 15 || st.Fatigue.DropPct > 25 {
		t.Errorf("drop = %v%%, want ~20%%", st.Fatigue.DropPct)
	}
}

func TestFatigueDriftNeedsHistory(t *testing.T) {
	e, _ := newTestEngine(t, learner.Parameters{})
	start := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	st := runTicks(e, TickInput{PowerW: 200, SpeedMps: 8}, start, 20)
	if st.Fatigue != nil {
		t.Errorf("drift alert with 20 s of history: %+v", st.Fatigue)
	}
}

func TestEnvironmentalLoad(t *testing.T) {
	e, _ := newTestEngine(t, learner.Parameters{})
	now := time.Date(2026, 7, 1, 13, 0, 0, 0, time.UTC)

	// 30 °C = 86 °F: 11 °F over threshold at the default coefficient gives
	// 5.5; humidity 80% adds 20×0.15 = 3; a 10 mph headwind adds 3.
	st := e.Tick(TickInput{
		PowerW: 200, SpeedMps: 8,
		TemperatureC: 30, HasTemperature: true,
		HumidityPct: 80, HasHumidity: true,
		WindMps: 4.4704,
	}, now)
	if math.Abs(st.EnvironmentalLoadPct-11.5) > 0.05 {
		t.Errorf("load = %v, want 11.5", st.EnvironmentalLoadPct)
	}
}

func TestEnvironmentalLoadCap(t *testing.T) {
	e, _ := newTestEngine(t, learner.Parameters{})
	now := time.Date(2026, 7, 1, 13, 0, 0, 0, time.UTC)
	st := e.Tick(TickInput{
		PowerW: 200, SpeedMps: 6,
		TemperatureC: 55, HasTemperature: true,
		HumidityPct: 100, HasHumidity: true,
		WindMps: 30,
	}, now)
	if st.EnvironmentalLoadPct != envLoadCapPct {
		t.Errorf("load = %v, want capped at %v", st.EnvironmentalLoadPct, envLoadCapPct)
	}
}

func TestEnvironmentalLoadMissingSensors(t *testing.T) {
	e, _ := newTestEngine(t, learner.Parameters{})
	now := time.Date(2026, 7, 1, 13, 0, 0, 0, time.UTC)
	st := e.Tick(TickInput{PowerW: 200, SpeedMps: 8}, now)
	if st.EnvironmentalLoadPct != 0 {
		t.Errorf("load without temp/humidity/wind = %v, want 0", st.EnvironmentalLoadPct)
	}
}

func TestPredictSpeedFlat(t *testing.T) {
	e, h := newTestEngine(t, learner.Parameters{})
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	p := h.Snapshot()

	in := TickInput{PowerW: 200, SpeedMps: 8}
	st := e.Tick(in, now)

	ref := physics.Forward(physics.Conditions{SpeedMps: 5}, physics.Bike{
		MassKg: p.MassKg, CdA: p.CdA, Crr: p.Crr, DrivetrainLoss: p.DrivetrainLoss,
	})
	aero := in.PowerW*(1-p.DrivetrainLoss) - ref.Rolling - ref.Gravity
	want := math.Cbrt(2 * aero / (physics.AirDensity(0) * p.CdA))
	if math.Abs(st.PredictedSpeedMps-want) > 1e-9 {
		t.Errorf("predicted speed = %v, want %v", st.PredictedSpeedMps, want)
	}
	if want < 8 || want > 12 {
		t.Errorf("sanity: 200 W flat prediction = %v m/s, expected 8-12", want)
	}
}

func TestPredictSpeedDegenerate(t *testing.T) {
	e, _ := newTestEngine(t, learner.Parameters{})
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	// Coasting on a steep climb leaves no aero power to solve for.
	st := e.Tick(TickInput{PowerW: 0, SpeedMps: 2, Grade: 0.08}, now)
	if st.PredictedSpeedMps != 0 {
		t.Errorf("predicted speed = %v, want 0 for degenerate solve", st.PredictedSpeedMps)
	}
}

func TestPredictSpeedUsesTrustedDragArea(t *testing.T) {
	lp := learner.Parameters{
		DragArea: learner.Coefficient{Value: 0.25, SampleCount: 50, Confidence: 85, Status: learner.StatusHigh},
	}
	eLearned, _ := newTestEngine(t, lp)
	eDefault, _ := newTestEngine(t, learner.Parameters{})
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	in := TickInput{PowerW: 200, SpeedMps: 8}

	learned := eLearned.Tick(in, now).PredictedSpeedMps
	base := eDefault.Tick(in, now).PredictedSpeedMps
	if learned <= base {
		t.Errorf("lower drag area should predict faster: learned %v vs default %v", learned, base)
	}
}

func TestNutritionTimeAlert(t *testing.T) {
	e, _ := newTestEngine(t, learner.Parameters{})
	start := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

	st := e.Tick(TickInput{PowerW: 150, SpeedMps: 7}, start)
	if st.Nutrition.Alert {
		t.Fatal("alert on first tick")
	}
	st = e.Tick(TickInput{PowerW: 150, SpeedMps: 7}, start.Add(46*time.Minute))
	if !st.Nutrition.Alert {
		t.Fatal("no alert 46 min after ride start")
	}

	e.LogIntake(start.Add(46 * time.Minute))
	st = e.Tick(TickInput{PowerW: 150, SpeedMps: 7}, start.Add(47*time.Minute))
	if st.Nutrition.Alert {
		t.Errorf("alert after intake: %+v", st.Nutrition)
	}
	if st.Nutrition.KcalSinceIntake > 1 {
		t.Errorf("kcal after intake = %v, want reset near 0", st.Nutrition.KcalSinceIntake)
	}
}

func TestNutritionCalorieAlert(t *testing.T) {
	e, _ := newTestEngine(t, learner.Parameters{})
	start := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

	// 300 W burns 0.3 kcal per second here; 400 kcal falls around 22
	// minutes, well before the 45-minute timer.
	var st State
	for i := 0; i < 23*60; i++ {
		st = e.Tick(TickInput{PowerW: 300, SpeedMps: 9}, start.Add(time.Duration(i)*time.Second))
		if st.Nutrition.Alert {
			break
		}
	}
	if !st.Nutrition.Alert {
		t.Fatal("no calorie alert after 23 min at 300 W")
	}
	if st.Nutrition.SinceIntake > 45*time.Minute {
		t.Error("calorie alert should fire before the time threshold")
	}
}

func TestResetDiscardsRollingState(t *testing.T) {
	e, _ := newTestEngine(t, learner.Parameters{})
	start := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

	runTicks(e, TickInput{PowerW: 320, SpeedMps: 9}, start, 3*60)
	e.Reset()

	st := e.Tick(TickInput{PowerW: 320, SpeedMps: 9}, start.Add(4*time.Hour))
	if st.Overcooking != nil {
		t.Errorf("overcooking survived reset: %+v", st.Overcooking)
	}
	if st.Fatigue != nil {
		t.Errorf("fatigue drift survived reset: %+v", st.Fatigue)
	}
	if st.EffortBudgetPct < 99 {
		t.Errorf("budget after reset = %v, want fresh", st.EffortBudgetPct)
	}
}
