// Package units provides shared conversions between the metric quantities the
// sensor feed delivers and the imperial quantities the rider-facing heuristics
// are expressed in.
package units

// Conversion factors. Speeds are stored internally in m/s, distances in
// meters, temperatures arrive in Celsius.
const (
	MetersPerMile  = 1609.344
	MpsToMphFactor = 2.2369362920544
	MpsToKphFactor = 3.6
	FeetPerMeter   = 3.280839895
	SecondsPerHour = 3600.0
)

// MpsToMph converts meters per second to miles per hour.
func MpsToMph(mps float64) float64 { return mps * MpsToMphFactor }

// MphToMps converts miles per hour to meters per second.
func MphToMps(mph float64) float64 { return mph / MpsToMphFactor }

// MpsToKph converts meters per second to kilometers per hour.
func MpsToKph(mps float64) float64 { return mps * MpsToKphFactor }

// CToF converts degrees Celsius to degrees Fahrenheit.
func CToF(c float64) float64 { return c*9.0/5.0 + 32.0 }

// FToC converts degrees Fahrenheit to degrees Celsius.
func FToC(f float64) float64 { return (f - 32.0) * 5.0 / 9.0 }

// MetersToMiles converts meters to miles.
func MetersToMiles(m float64) float64 { return m / MetersPerMile }

// MilesToMeters converts miles to meters.
func MilesToMeters(mi float64) float64 { return mi * MetersPerMile }

// MetersToFeet converts meters to feet.
func MetersToFeet(m float64) float64 { return m * FeetPerMeter }
