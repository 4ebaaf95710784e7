package intel

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/crankcase-data/power.report/internal/learner"
	"github.com/crankcase-data/power.report/internal/physics"
	"github.com/crankcase-data/power.report/internal/rider"
	"github.com/crankcase-data/power.report/internal/route"
	"github.com/crankcase-data/power.report/internal/units"
)

const (
	// historyWindow bounds the rolling power/speed buffers; historyCap is
	// its size at the 1 Hz tick cadence.
	historyWindow = 5 * time.Minute
	historyCap    = 300

	lookaheadWindowM = 2 * units.MetersPerMile

	// Environmental load heuristics, all in percent.
	envLoadCapPct          = 50.0
	tempThresholdF         = 75.0
	defaultHeatCoefficient = 0.5 // pct per °F above threshold
	humidityThresholdPct   = 60.0
	humidityPenaltyPerPt   = 0.15
	windPenaltyPerMph      = 0.3

	// Overcooking tiers: sustained intensity factor above a threshold for
	// longer than the tier duration raises that tier's alert.
	overcookMediumIF      = 0.95
	overcookMediumAfter   = 10 * time.Minute
	overcookHighIF        = 1.05
	overcookHighAfter     = 5 * time.Minute
	overcookCriticalIF    = 1.20
	overcookCriticalAfter = 2 * time.Minute

	fatigueWindow        = 30 * time.Second
	fatigueDropThreshold = 0.10

	// fullRideTSS is the training stress treated as a fully spent effort
	// budget by the linear fallback formula.
	fullRideTSS = 200.0

	pacingBudgetPct = 30.0
	pacingMinIF     = 0.85

	nutritionAlertAfter = 45 * time.Minute
	nutritionAlertKcal  = 400.0
	kcalPerWattHour     = 3.6

	audioInterval       = 120 * time.Second
	audioGradeThreshold = 0.08
	audioPowerGapW      = 50.0

	// maxTickGap caps the per-tick integration step so a stalled feed
	// does not dump a burst of stress or calories on resume.
	maxTickGap = 5 * time.Second
)

// TickInput is one fused sensor sample. Has* flags mark optional readings;
// stages that depend on a missing reading withhold their output.
type TickInput struct {
	PowerW   float64
	SpeedMps float64
	Grade    float64
	WindMps  float64 // positive = headwind

	TemperatureC   float64
	HasTemperature bool
	HumidityPct    float64
	HasHumidity    bool

	Lat, Lon    float64
	HasPosition bool
	AltitudeM   float64

	RideDuration time.Duration
}

// Engine runs the per-tick intelligence pipeline. It is single-goroutine by
// contract: Tick is called from the sensor loop only.
type Engine struct {
	riderH  *rider.Holder
	learned learner.Provider
	log     *zap.SugaredLogger

	matcher *route.Matcher

	power *timedRing
	speed *timedRing

	// Continuous-above timestamps for the overcooking tiers; zero when the
	// intensity last dipped below the tier threshold.
	aboveMediumSince   time.Time
	aboveHighSince     time.Time
	aboveCriticalSince time.Time

	cumulativeTSS float64
	lastTickAt    time.Time

	kcalSinceIntake float64
	lastIntakeAt    time.Time

	lastAudioAt time.Time
}

// NewEngine wires the engine to its read-only collaborators. learned supplies
// the trust-gated coefficients from the segment learner.
func NewEngine(h *rider.Holder, learned learner.Provider, log *zap.SugaredLogger) *Engine {
	return &Engine{
		riderH:  h,
		learned: learned,
		log:     log,
		power:   newTimedRing(historyCap),
		speed:   newTimedRing(historyCap),
	}
}

// SetRoute installs (or clears, with nil) the active route matcher. Lookahead
// and the route-triggered audio alerts only run while a route is loaded.
func (e *Engine) SetRoute(m *route.Matcher) { e.matcher = m }

// LogIntake records a nutrition intake event, resetting the calorie and
// elapsed-time counters.
func (e *Engine) LogIntake(now time.Time) {
	e.lastIntakeAt = now
	e.kcalSinceIntake = 0
}

// Reset discards all rolling state at ride end. Learned and rider parameters
// are untouched.
func (e *Engine) Reset() {
	e.power.reset()
	e.speed.reset()
	e.aboveMediumSince = time.Time{}
	e.aboveHighSince = time.Time{}
	e.aboveCriticalSince = time.Time{}
	e.cumulativeTSS = 0
	e.lastTickAt = time.Time{}
	e.kcalSinceIntake = 0
	e.lastIntakeAt = time.Time{}
	e.lastAudioAt = time.Time{}
}

// Tick runs the full pipeline for one sensor sample and returns the derived
// snapshot. Must complete before the next sample arrives; no stage blocks.
func (e *Engine) Tick(in TickInput, now time.Time) State {
	e.power.push(in.PowerW, now)
	e.speed.push(in.SpeedMps, now)

	dt := e.tickStep(now)
	p := e.riderH.Snapshot()
	lp := e.learned.Learned()
	ftp, ftpOK := p.EffectiveFTP()

	st := State{At: now, PowerW: in.PowerW, SpeedMps: in.SpeedMps}

	st.Zone = classifyZone(in.PowerW, ftp, ftpOK)
	st.RouteAhead = e.analyzeAhead(in, p, ftp, ftpOK)
	st.EnvironmentalLoadPct = e.environmentalLoad(in, p, lp)
	st.Overcooking = e.checkOvercooking(in.PowerW, ftp, ftpOK, now)
	st.Fatigue = e.checkFatigueDrift(p, now)
	st.EffortBudgetPct = e.effortBudget(in, p, lp, ftp, ftpOK, dt)
	st.PredictedSpeedMps = e.predictSpeed(in, p, lp)
	st.Nutrition = e.trackNutrition(in.PowerW, dt, now)
	st.PacingAdvice = pacingAdvice(st.EffortBudgetPct, in.PowerW, ftp, ftpOK)
	st.Audio = e.dispatchAudio(st.RouteAhead, in.PowerW, now)

	return st
}

// tickStep returns the integration step since the previous tick, capped at
// maxTickGap, and advances the tick clock.
func (e *Engine) tickStep(now time.Time) time.Duration {
	dt := time.Second
	if !e.lastTickAt.IsZero() {
		dt = now.Sub(e.lastTickAt)
		if dt < 0 {
			dt = 0
		}
		if dt > maxTickGap {
			dt = maxTickGap
		}
	}
	e.lastTickAt = now
	return dt
}

func classifyZone(powerW, ftp float64, ftpOK bool) Zone {
	if !ftpOK || ftp <= 0 {
		return ZoneUnknown
	}
	pct := powerW / ftp * 100
	switch {
	case pct <= 55:
		return ZoneRecovery
	case pct <= 75:
		return ZoneEndurance
	case pct <= 90:
		return ZoneTempo
	case pct <= 105:
		return ZoneThreshold
	case pct <= 120:
		return ZoneVO2Max
	default:
		return ZoneAnaerobic
	}
}

// environmentalLoad sums the temperature, humidity, and headwind penalties,
// capped at envLoadCapPct. Rider tolerance multipliers divide their penalty:
// a tolerance above 1.0 shrinks the corresponding load.
func (e *Engine) environmentalLoad(in TickInput, p rider.Parameters, lp learner.Parameters) float64 {
	var load float64

	if in.HasTemperature {
		tempF := units.CToF(in.TemperatureC)
		if tempF > tempThresholdF {
			coeff := defaultHeatCoefficient
			if lp.HeatCoefficient.Trusted() {
				coeff = lp.HeatCoefficient.Value
			}
			load += (tempF - tempThresholdF) * coeff / tolerance(p.HeatTolerance)
		}
	}

	if in.HasHumidity && in.HumidityPct > humidityThresholdPct {
		load += (in.HumidityPct - humidityThresholdPct) * humidityPenaltyPerPt
	}

	if in.WindMps > 0 {
		load += units.MpsToMph(in.WindMps) * windPenaltyPerMph / tolerance(p.WindTolerance)
	}

	if load > envLoadCapPct {
		load = envLoadCapPct
	}
	return load
}

func tolerance(t float64) float64 {
	if t <= 0 {
		return 1
	}
	return t
}

// checkOvercooking maintains the continuous-above timers for the three
// intensity tiers and reports the highest tier whose duration requirement is
// met. The alert clears the moment intensity drops below a tier threshold.
func (e *Engine) checkOvercooking(powerW, ftp float64, ftpOK bool, now time.Time) *OvercookingAlert {
	if !ftpOK || ftp <= 0 {
		e.aboveMediumSince = time.Time{}
		e.aboveHighSince = time.Time{}
		e.aboveCriticalSince = time.Time{}
		return nil
	}
	intensity := powerW / ftp

	updateTimer(&e.aboveCriticalSince, intensity > overcookCriticalIF, now)
	updateTimer(&e.aboveHighSince, intensity > overcookHighIF, now)
	updateTimer(&e.aboveMediumSince, intensity > overcookMediumIF, now)

	type tier struct {
		since    time.Time
		after    time.Duration
		severity Severity
		advice   string
	}
	for _, t := range []tier{
		{e.aboveCriticalSince, overcookCriticalAfter, SeverityCritical, "well above threshold, back off now"},
		{e.aboveHighSince, overcookHighAfter, SeverityHigh, "riding above threshold, ease up soon"},
		{e.aboveMediumSince, overcookMediumAfter, SeverityMedium, "sustained near-threshold effort, check pacing"},
	} {
		if t.since.IsZero() {
			continue
		}
		if sustained := now.Sub(t.since); sustained >= t.after {
			return &OvercookingAlert{
				Severity:  t.severity,
				IF:        intensity,
				Sustained: sustained,
				Message:   t.advice,
			}
		}
	}
	return nil
}

func updateTimer(since *time.Time, above bool, now time.Time) {
	switch {
	case !above:
		*since = time.Time{}
	case since.IsZero():
		*since = now
	}
}

// checkFatigueDrift compares mean efficiency (speed per watt) of the most
// recent 30 s window against the window before it. Needs both windows
// populated; triggers on a drop past 10% scaled by the rider's fatigue
// tolerance.
func (e *Engine) checkFatigueDrift(p rider.Parameters, now time.Time) *FatigueAlert {
	recentPower, ok1 := e.power.meanBetween(now.Add(-fatigueWindow), now)
	priorPower, ok2 := e.power.meanBetween(now.Add(-2*fatigueWindow), now.Add(-fatigueWindow))
	recentSpeed, ok3 := e.speed.meanBetween(now.Add(-fatigueWindow), now)
	priorSpeed, ok4 := e.speed.meanBetween(now.Add(-2*fatigueWindow), now.Add(-fatigueWindow))
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return nil
	}
	if recentPower <= 0 || priorPower <= 0 {
		return nil
	}

	recentEff := recentSpeed / recentPower
	priorEff := priorSpeed / priorPower
	if priorEff <= 0 {
		return nil
	}

	drop := (priorEff - recentEff) / priorEff
	if drop <= fatigueDropThreshold*tolerance(p.FatigueTolerance) {
		return nil
	}
	return &FatigueAlert{
		DropPct: drop * 100,
		Message: fmt.Sprintf("efficiency down %.0f%% over the last %d seconds", drop*100, int(fatigueWindow.Seconds())),
	}
}

// effortBudget estimates remaining ride capacity in percent. With a trusted
// learned fatigue rate it decays exponentially; otherwise it falls back to a
// linear burn-down against a fixed full-ride training stress.
func (e *Engine) effortBudget(in TickInput, p rider.Parameters, lp learner.Parameters, ftp float64, ftpOK bool, dt time.Duration) float64 {
	if !ftpOK || ftp <= 0 {
		return 100
	}
	intensity := in.PowerW / ftp

	e.cumulativeTSS += dt.Hours() * intensity * intensity * 100

	var budget float64
	if lp.FatigueRate.Trusted() && lp.FatigueRate.Value > 0 {
		hours := in.RideDuration.Hours()
		rate := lp.FatigueRate.Value / tolerance(p.FatigueTolerance)
		budget = 100 * math.Exp(-rate*intensity*hours)
	} else {
		budget = 100 - e.cumulativeTSS/fullRideTSS*100
	}

	if budget < 0 {
		return 0
	}
	if budget > 100 {
		return 100
	}
	return budget
}

// predictSpeed solves the aero term for speed at the current power, holding
// the gravity and rolling terms at a fixed 5 m/s reference speed. Upstream
// behavior keeps that reference fixed rather than iterating on the actual
// speed, so this is a coarse real-time estimate, not a calibration-grade
// inverse.
func (e *Engine) predictSpeed(in TickInput, p rider.Parameters, lp learner.Parameters) float64 {
	const referenceSpeed = 5.0

	cda := p.CdA
	if lp.DragArea.Trusted() && lp.DragArea.Value > 0 {
		cda = lp.DragArea.Value
	}
	bike := physics.Bike{MassKg: p.MassKg, CdA: cda, Crr: p.Crr, DrivetrainLoss: p.DrivetrainLoss}

	ref := physics.Forward(physics.Conditions{
		SpeedMps:  referenceSpeed,
		Grade:     in.Grade,
		AltitudeM: in.AltitudeM,
	}, bike)

	aeroAvail := in.PowerW*(1-p.DrivetrainLoss) - ref.Rolling - ref.Gravity
	if aeroAvail <= 0 || cda <= 0 {
		return 0
	}

	rho := physics.AirDensity(in.AltitudeM)
	airspeed := math.Cbrt(2 * aeroAvail / (rho * cda))
	ground := airspeed - in.WindMps
	if ground < 0 {
		return 0
	}
	return ground
}

// trackNutrition integrates calorie burn at roughly 3.6 kcal per watt-hour
// and alerts once too long or too much has passed since the last logged
// intake. The ride start seeds the intake clock.
func (e *Engine) trackNutrition(powerW float64, dt time.Duration, now time.Time) NutritionStatus {
	if e.lastIntakeAt.IsZero() {
		e.lastIntakeAt = now
	}
	e.kcalSinceIntake += powerW * dt.Hours() * kcalPerWattHour

	st := NutritionStatus{
		KcalSinceIntake: e.kcalSinceIntake,
		SinceIntake:     now.Sub(e.lastIntakeAt),
	}
	switch {
	case st.SinceIntake > nutritionAlertAfter:
		st.Alert = true
		st.Message = fmt.Sprintf("%.0f minutes since last intake, eat something", st.SinceIntake.Minutes())
	case st.KcalSinceIntake > nutritionAlertKcal:
		st.Alert = true
		st.Message = fmt.Sprintf("%.0f kcal burned since last intake, eat something", st.KcalSinceIntake)
	}
	return st
}

// pacingAdvice emits the conservative ease-off signal only when the budget is
// nearly spent and the rider is still pushing.
func pacingAdvice(budgetPct, powerW, ftp float64, ftpOK bool) string {
	if !ftpOK || ftp <= 0 {
		return ""
	}
	if budgetPct < pacingBudgetPct && powerW/ftp > pacingMinIF {
		return "effort budget nearly spent, ease off to finish strong"
	}
	return ""
}

// dispatchAudio emits at most one voice alert per audioInterval. Steep grade
// in the lookahead window outranks a power-target mismatch.
func (e *Engine) dispatchAudio(ra *RouteAhead, powerW float64, now time.Time) *AudioAlert {
	if ra == nil {
		return nil
	}
	if !e.lastAudioAt.IsZero() && now.Sub(e.lastAudioAt) < audioInterval {
		return nil
	}

	var alert *AudioAlert
	switch {
	case ra.MaxGrade > audioGradeThreshold:
		alert = &AudioAlert{
			Priority: SeverityHigh,
			Message:  fmt.Sprintf("steep grade ahead, up to %.0f percent", ra.MaxGrade*100),
		}
	case ra.RequiredPowerMaxW > 0:
		target := (ra.RequiredPowerMinW + ra.RequiredPowerMaxW) / 2
		if gap := powerW - target; math.Abs(gap) > audioPowerGapW {
			verb := "lift"
			if gap > 0 {
				verb = "reduce"
			}
			alert = &AudioAlert{
				Priority: SeverityMedium,
				Message:  fmt.Sprintf("%s effort, target around %.0f watts", verb, target),
			}
		}
	}
	if alert != nil {
		e.lastAudioAt = now
		e.log.Debugw("audio alert", "priority", alert.Priority, "message", alert.Message)
	}
	return alert
}
