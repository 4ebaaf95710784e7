// Package learner fits rider-specific model coefficients from historical
// ride data. It aggregates 1 Hz samples into 60 s segments during a ride and,
// between rides, retrains four independent statistical models over a bounded
// window of stored rides: aerodynamic drag area, fatigue decay rate, heat
// sensitivity, and an FTP estimate.
package learner

import "time"

// SegmentDuration is the atomic observation unit of the learner.
const SegmentDuration = 60 * time.Second

// Segment is a sealed fixed-duration aggregate of ride samples. Immutable
// once sealed.
type Segment struct {
	At           time.Time `json:"at"`
	DurationSec  float64   `json:"duration_sec"`
	MeanPower    float64   `json:"mean_power"`
	MeanSpeedMps float64   `json:"mean_speed_mps"`
	MeanGrade    float64   `json:"mean_grade"`
	MeanWindMps  float64   `json:"mean_wind_mps"`
	MeanTempC    float64   `json:"mean_temp_c"`
	MeanHumidity float64   `json:"mean_humidity"`
	MeanHeartRate float64  `json:"mean_heart_rate,omitempty"` // 0 when no HR sensor
}

// Ride is one completed ride as the historical store returns it.
type Ride struct {
	ID              string    `json:"id"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	DistanceM       float64   `json:"distance_m"`
	AvgPower        float64   `json:"avg_power"`
	NormalizedPower float64   `json:"normalized_power"`
	MaxPower        float64   `json:"max_power"`
	AvgTempC        float64   `json:"avg_temp_c"`
	Segments        []Segment `json:"segments"`
}

// DurationHours returns the ride duration in hours.
func (r Ride) DurationHours() float64 {
	return r.EndTime.Sub(r.StartTime).Hours()
}

// IsLong reports whether the ride qualifies for fatigue analysis.
func (r Ride) IsLong() bool {
	return r.EndTime.Sub(r.StartTime) >= 90*time.Minute
}

// HasFlatSegments reports whether any segment is flat enough for drag
// analysis.
func (r Ride) HasFlatSegments() bool {
	for _, s := range r.Segments {
		if s.MeanGrade > -flatGradeLimit && s.MeanGrade < flatGradeLimit {
			return true
		}
	}
	return false
}

// Status describes how much trust a coefficient has earned. Only StatusHigh
// values are consumed downstream; everything else falls back to defaults.
type Status string

const (
	StatusCollecting Status = "collecting"
	StatusLow        Status = "low"
	StatusMedium     Status = "medium"
	StatusHigh       Status = "high"
)

// Confidence thresholds for the status ladder, applied after each
// coefficient's ride-count gate.
const (
	confidenceLow  = 50.0
	confidenceHigh = 80.0
)

// Coefficient is one fitted value with its supporting evidence. Value is zero
// until SampleCount reaches the fit's minimum.
type Coefficient struct {
	Value       float64 `json:"value"`
	SampleCount int     `json:"sample_count"`
	Confidence  float64 `json:"confidence"` // 0–100
	Status      Status  `json:"status"`
}

// Trusted reports whether downstream consumers may use the value.
func (c Coefficient) Trusted() bool { return c.Status == StatusHigh }

// Parameters is the learner's full output. A retrain replaces the whole
// record atomically; readers never observe a partial update.
type Parameters struct {
	DragArea        Coefficient `json:"drag_area"`
	FatigueRate     Coefficient `json:"fatigue_rate"`     // per hour
	HeatCoefficient Coefficient `json:"heat_coefficient"` // % efficiency loss per °F
	EstimatedFTP    Coefficient `json:"estimated_ftp"`

	RideCount int       `json:"ride_count"`
	TrainedAt time.Time `json:"trained_at"`
}

// status applies the shared ride-count-then-confidence ladder.
func status(rideCount, minRides int, confidence float64) Status {
	if rideCount < minRides {
		return StatusCollecting
	}
	switch {
	case confidence < confidenceLow:
		return StatusLow
	case confidence < confidenceHigh:
		return StatusMedium
	default:
		return StatusHigh
	}
}
