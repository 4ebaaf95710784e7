// Package physics implements the steady-state cycling power model and its
// algebraic inverses. Everything here is a pure function of its inputs; state
// (rider parameters, smoothing buffers) lives in the power package.
package physics

import "math"

// Physical constants for the road cycling model.
const (
	Gravity            = 9.81   // m/s²
	SeaLevelAirDensity = 1.225  // kg/m³
	DensityScaleHeight = 8500.0 // meters, exponential atmosphere approximation

	// MinAirspeed is the minimum effective airspeed (rider speed plus
	// headwind) below which the inverse model is numerically unusable.
	MinAirspeed = 3.0 // m/s

	// Implied-CdA acceptance window. Solutions outside this range are
	// sensor noise, not a rideable position, and are discarded rather
	// than clamped.
	MinCdA = 0.15
	MaxCdA = 0.6

	// Coast-down Crr acceptance window.
	MinCrr = 0.002
	MaxCrr = 0.010
)

// Conditions describes the observable state feeding one model evaluation.
// Grade is rise over run (0.05 = 5%); HeadwindMps is positive when blowing
// into the rider.
type Conditions struct {
	SpeedMps    float64
	Grade       float64
	HeadwindMps float64
	AltitudeM   float64
}

// Bike describes the rider-plus-bike parameters the model depends on.
type Bike struct {
	MassKg         float64
	CdA            float64
	Crr            float64
	DrivetrainLoss float64 // fraction in [0,1)
}

// Breakdown is a power decomposition at the pedals. Components are measured
// at the wheel; Total includes the drivetrain loss and is floored at zero.
type Breakdown struct {
	Total   float64
	Aero    float64
	Rolling float64
	Gravity float64
}

// AirDensity returns air density at the given altitude using an exponential
// atmosphere fit to the international standard atmosphere.
func AirDensity(altitudeM float64) float64 {
	return SeaLevelAirDensity * math.Exp(-altitudeM/DensityScaleHeight)
}

// Forward computes the power a rider must produce to hold the given speed
// under the given conditions.
func Forward(c Conditions, b Bike) Breakdown {
	rho := AirDensity(c.AltitudeM)
	airspeed := c.SpeedMps + c.HeadwindMps

	aero := 0.5 * rho * b.CdA * airspeed * airspeed * airspeed
	rolling := b.Crr * b.MassKg * Gravity * c.SpeedMps * math.Cos(math.Atan(c.Grade))
	gravity := b.MassKg * Gravity * c.Grade * c.SpeedMps

	total := (aero + rolling + gravity) / (1 - b.DrivetrainLoss)
	if total < 0 {
		total = 0
	}

	return Breakdown{Total: total, Aero: aero, Rolling: rolling, Gravity: gravity}
}

// InverseCdA solves the forward model for CdA given a measured pedal power.
// It reports ok=false when the conditions cannot support a solve (airspeed at
// or below MinAirspeed, non-positive implied aero power) or when the solution
// falls outside the physically plausible CdA window.
func InverseCdA(measuredPower float64, c Conditions, b Bike) (cda float64, ok bool) {
	airspeed := c.SpeedMps + c.HeadwindMps
	if airspeed <= MinAirspeed {
		return 0, false
	}

	rho := AirDensity(c.AltitudeM)
	rolling := b.Crr * b.MassKg * Gravity * c.SpeedMps * math.Cos(math.Atan(c.Grade))
	gravity := b.MassKg * Gravity * c.Grade * c.SpeedMps

	aero := measuredPower*(1-b.DrivetrainLoss) - rolling - gravity
	if aero <= 0 {
		return 0, false
	}

	cda = 2 * aero / (rho * airspeed * airspeed * airspeed)
	if cda < MinCdA || cda > MaxCdA {
		return 0, false
	}
	return cda, true
}

// CoastDownCrr estimates rolling resistance from a coast-down run via energy
// conservation: the kinetic energy lost, less the potential energy gained,
// was dissipated by rolling resistance over the run distance. elevationDelta
// is end elevation minus start elevation (negative on a descent). Aerodynamic
// losses are assumed negligible at coast-down speeds; runs where that
// assumption fails produce out-of-window values and are rejected.
func CoastDownCrr(startSpeed, endSpeed, elevationDelta, distanceM, massKg float64) (crr float64, ok bool) {
	if distanceM <= 0 || massKg <= 0 {
		return 0, false
	}

	deltaKE := 0.5 * massKg * (startSpeed*startSpeed - endSpeed*endSpeed)
	crr = (deltaKE - massKg*Gravity*elevationDelta) / (massKg * Gravity * distanceM)
	if crr < MinCrr || crr > MaxCrr {
		return 0, false
	}
	return crr, true
}
