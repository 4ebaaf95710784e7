// Package intel derives per-tick riding intelligence from the fused sensor
// stream: zone classification, lookahead analysis, alerting, and effort
// budgeting. Every State field is recomputed or cleared on every tick; the
// only state carried across ticks is the rolling sample buffers, the
// sustained-intensity timers, the nutrition ledger, and the audio rate
// limiter.
package intel

import "time"

// Severity orders alert urgency. Higher severities never downgrade while the
// triggering condition holds.
type Severity string

const (
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Zone is an FTP-relative power band, 1 (recovery) through 6 (anaerobic).
// Zero means no FTP is configured.
type Zone int

const (
	ZoneUnknown Zone = iota
	ZoneRecovery
	ZoneEndurance
	ZoneTempo
	ZoneThreshold
	ZoneVO2Max
	ZoneAnaerobic
)

func (z Zone) String() string {
	switch z {
	case ZoneRecovery:
		return "recovery"
	case ZoneEndurance:
		return "endurance"
	case ZoneTempo:
		return "tempo"
	case ZoneThreshold:
		return "threshold"
	case ZoneVO2Max:
		return "vo2max"
	case ZoneAnaerobic:
		return "anaerobic"
	default:
		return "unknown"
	}
}

// RouteAhead summarizes the next stretch of a loaded route.
type RouteAhead struct {
	DistanceM      float64
	ElevationGainM float64
	AvgGrade       float64
	MaxGrade       float64

	// Required power to ride the stretch at an appropriate intensity,
	// expressed as a band around the grade-derived target.
	RequiredPowerMinW float64
	RequiredPowerMaxW float64

	EstimatedTime time.Duration
	Difficulty    int // 1 (easy) .. 5 (extreme)
	PacingDelta   string
}

// OvercookingAlert reports sustained riding above threshold.
type OvercookingAlert struct {
	Severity  Severity
	IF        float64
	Sustained time.Duration
	Message   string
}

// FatigueAlert reports an efficiency drop between consecutive 30 s windows.
type FatigueAlert struct {
	DropPct float64
	Message string
}

// NutritionStatus tracks calorie burn since the last logged intake.
type NutritionStatus struct {
	KcalSinceIntake float64
	SinceIntake     time.Duration
	Alert           bool
	Message         string
}

// AudioAlert is a rate-limited voice-delivery payload; rendering is a
// collaborator concern.
type AudioAlert struct {
	Priority Severity
	Message  string
}

// State is the immutable per-tick snapshot handed to the caller. Pointer
// fields are nil when the corresponding alert did not fire this tick.
type State struct {
	At time.Time

	PowerW   float64
	SpeedMps float64
	Zone     Zone

	RouteAhead *RouteAhead

	EnvironmentalLoadPct float64

	Overcooking *OvercookingAlert
	Fatigue     *FatigueAlert

	EffortBudgetPct float64

	// PredictedSpeedMps is the wind-aware speed estimate at current power,
	// zero when the solve is degenerate.
	PredictedSpeedMps float64

	Nutrition NutritionStatus

	PacingAdvice string

	Audio *AudioAlert
}
