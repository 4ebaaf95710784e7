package learner

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/crankcase-data/power.report/internal/physics"
	"github.com/crankcase-data/power.report/internal/rider"
	"github.com/crankcase-data/power.report/internal/units"
)

// Fit gates. Each fit withholds its value below the sample minimum and its
// status stays "collecting" below the ride minimum.
const (
	// MaxTrainingRides bounds the historical window a retrain reads.
	MaxTrainingRides = 100

	flatGradeLimit  = 0.01 // |grade| below this counts as flat
	dragMinAirspeed = 5.0  // m/s effective airspeed for a drag sample
	dragKeepMin     = 0.2  // implied-CdA acceptance window for learning,
	dragKeepMax     = 0.5  // tighter than the physics validity window
	dragMinSamples  = 20
	dragMinRides    = 10

	fatigueMinSamples  = 5
	fatigueMinRides    = 10
	fatigueMinSegments = 10
	maxRetention       = 1.5

	heatMinRides      = 8
	heatMinSpreadC    = 8.0
	ftpMinSamples     = 3
	ftpMinRides       = 3
	ftpMinDuration    = 20 * time.Minute
	ftpMinNP          = 150.0
	ftpScale          = 0.95
)

// Train runs all four fits over the given ride window and returns a complete
// Parameters record. rides may be in any order; bike supplies the rider
// parameters the drag inversion depends on.
func Train(rides []Ride, bike rider.Parameters, now time.Time) Parameters {
	if len(rides) > MaxTrainingRides {
		rides = rides[:MaxTrainingRides]
	}
	return Parameters{
		DragArea:        fitDragArea(rides, bike),
		FatigueRate:     fitFatigueRate(rides),
		HeatCoefficient: fitHeatCoefficient(rides),
		EstimatedFTP:    fitFTP(rides),
		RideCount:       len(rides),
		TrainedAt:       now,
	}
}

// fitDragArea inverts the physics model over flat, fast segments and keeps
// the plausible solutions. Confidence rewards both sample volume and
// tightness of the sample distribution.
func fitDragArea(rides []Ride, p rider.Parameters) Coefficient {
	bike := physics.Bike{MassKg: p.MassKg, CdA: p.CdA, Crr: p.Crr, DrivetrainLoss: p.DrivetrainLoss}

	var samples []float64
	for _, r := range rides {
		for _, s := range r.Segments {
			if math.Abs(s.MeanGrade) >= flatGradeLimit {
				continue
			}
			if s.MeanSpeedMps+s.MeanWindMps <= dragMinAirspeed {
				continue
			}
			c := physics.Conditions{
				SpeedMps:    s.MeanSpeedMps,
				Grade:       s.MeanGrade,
				HeadwindMps: s.MeanWindMps,
			}
			cda, ok := physics.InverseCdA(s.MeanPower, c, bike)
			if !ok || cda < dragKeepMin || cda > dragKeepMax {
				continue
			}
			samples = append(samples, cda)
		}
	}

	co := Coefficient{SampleCount: len(samples), Status: StatusCollecting}
	if len(samples) < dragMinSamples {
		return co
	}

	mean := stat.Mean(samples, nil)
	sd := stat.StdDev(samples, nil)
	spread := 0.0
	if mean > 0 {
		spread = 1 - sd/mean
		if spread < 0 {
			spread = 0
		}
	}
	co.Value = mean
	co.Confidence = (0.5*math.Min(float64(len(samples))/100, 1) + 0.5*spread) * 100
	co.Status = status(len(rides), dragMinRides, co.Confidence)
	return co
}

// fitFatigueRate compares early vs late power on long rides and fits an
// exponential decay constant per hour.
func fitFatigueRate(rides []Ride) Coefficient {
	var lambdas []float64
	for _, r := range rides {
		if !r.IsLong() || len(r.Segments) <= fatigueMinSegments {
			continue
		}
		q := len(r.Segments) / 4
		if q == 0 {
			continue
		}
		initial := meanSegmentPower(r.Segments[:q])
		final := meanSegmentPower(r.Segments[len(r.Segments)-q:])
		if initial <= 0 {
			continue
		}
		retention := final / initial
		if retention <= 0 || retention >= maxRetention {
			continue
		}
		hours := r.DurationHours()
		if hours <= 0 {
			continue
		}
		lambdas = append(lambdas, -math.Log(retention)/hours)
	}

	co := Coefficient{SampleCount: len(lambdas), Status: StatusCollecting}
	if len(lambdas) < fatigueMinSamples {
		return co
	}
	co.Value = stat.Mean(lambdas, nil)
	co.Confidence = math.Min(float64(len(lambdas))/15, 1) * 100
	co.Status = status(len(rides), fatigueMinRides, co.Confidence)
	return co
}

func meanSegmentPower(segs []Segment) float64 {
	if len(segs) == 0 {
		return 0
	}
	var sum float64
	for _, s := range segs {
		sum += s.MeanPower
	}
	return sum / float64(len(segs))
}

// fitHeatCoefficient regresses per-ride efficiency (speed per watt) against
// temperature. Efficiency falls as temperature rises, so a negative slope
// maps to a positive heat coefficient.
func fitHeatCoefficient(rides []Ride) Coefficient {
	var tempsF, efficiencies []float64
	minC, maxC := math.Inf(1), math.Inf(-1)
	for _, r := range rides {
		hours := r.DurationHours()
		if hours <= 0 || r.AvgPower <= 0 || r.DistanceM <= 0 {
			continue
		}
		speed := r.DistanceM / (hours * units.SecondsPerHour)
		tempsF = append(tempsF, units.CToF(r.AvgTempC))
		efficiencies = append(efficiencies, speed/r.AvgPower)
		if r.AvgTempC < minC {
			minC = r.AvgTempC
		}
		if r.AvgTempC > maxC {
			maxC = r.AvgTempC
		}
	}

	co := Coefficient{SampleCount: len(tempsF), Status: StatusCollecting}
	if len(tempsF) < heatMinRides || maxC-minC < heatMinSpreadC {
		return co
	}

	_, slope := stat.LinearRegression(tempsF, efficiencies, nil, false)
	co.Value = -slope * 100
	co.Confidence = math.Min(float64(len(tempsF))/20, 1) * 100
	co.Status = status(len(tempsF), heatMinRides, co.Confidence)
	return co
}

// fitFTP estimates threshold power as 95% of normalized power over rides of
// at least 20 minutes with meaningful intensity.
func fitFTP(rides []Ride) Coefficient {
	var samples []float64
	for _, r := range rides {
		if r.EndTime.Sub(r.StartTime) < ftpMinDuration {
			continue
		}
		if r.NormalizedPower <= ftpMinNP {
			continue
		}
		samples = append(samples, ftpScale*r.NormalizedPower)
	}

	co := Coefficient{SampleCount: len(samples), Status: StatusCollecting}
	if len(samples) < ftpMinSamples {
		return co
	}
	co.Value = stat.Mean(samples, nil)
	// FTP confidence mirrors the fatigue shape: volume is the only signal.
	co.Confidence = math.Min(float64(len(samples))/10, 1) * 100
	co.Status = status(len(samples), ftpMinRides, co.Confidence)
	return co
}
