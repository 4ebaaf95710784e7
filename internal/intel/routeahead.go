package intel

import (
	"time"

	"github.com/crankcase-data/power.report/internal/rider"
)

// Grade-to-intensity lookup for the required-power band, as fractions of FTP.
func gradeIntensity(grade float64) float64 {
	pct := grade * 100
	switch {
	case pct < 2:
		return 0.65
	case pct < 4:
		return 0.80
	case pct < 6:
		return 0.90
	case pct < 8:
		return 1.00
	default:
		return 1.10
	}
}

// Grade-banded cruise speed heuristic, m/s, before the power-to-weight
// adjustment.
func gradeSpeed(grade float64) float64 {
	pct := grade * 100
	switch {
	case pct < 0:
		return 11.0
	case pct < 2:
		return 8.5
	case pct < 4:
		return 6.5
	case pct < 6:
		return 5.0
	case pct < 8:
		return 4.0
	default:
		return 3.0
	}
}

// Power-to-weight reference and adjustment clamp for the time estimate.
const (
	referenceWattsPerKg = 3.0
	minSpeedFactor      = 0.7
	maxSpeedFactor      = 1.3
)

const (
	difficultyModerate = 30
	difficultyHard     = 60
	difficultyVeryHard = 90
	difficultyExtreme  = 120
)

// difficultyLevel buckets the raw score |grade%|·10 + elevationGain/10 into
// five levels.
func difficultyLevel(avgGrade, elevationGainM float64) int {
	score := absFloat(avgGrade*100)*10 + elevationGainM/10
	switch {
	case score < difficultyModerate:
		return 1
	case score < difficultyHard:
		return 2
	case score < difficultyVeryHard:
		return 3
	case score < difficultyExtreme:
		return 4
	default:
		return 5
	}
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// analyzeAhead summarizes the next two miles of the loaded route from the
// rider's matched position. Returns nil when no route is loaded, the rider is
// off route, or the route ends at the matched point.
func (e *Engine) analyzeAhead(in TickInput, p rider.Parameters, ftp float64, ftpOK bool) *RouteAhead {
	if e.matcher == nil || !in.HasPosition {
		return nil
	}
	m := e.matcher.Match(in.Lat, in.Lon)
	if !m.OnRoute {
		return nil
	}
	stats, ok := e.matcher.Route().Ahead(m.Index, lookaheadWindowM)
	if !ok {
		return nil
	}

	ra := &RouteAhead{
		DistanceM:      stats.DistanceM,
		ElevationGainM: stats.ElevationGainM,
		AvgGrade:       stats.AvgGrade,
		MaxGrade:       stats.MaxGrade,
		Difficulty:     difficultyLevel(stats.AvgGrade, stats.ElevationGainM),
	}

	// Climbing load inflates both the target intensity and the band.
	intensity := gradeIntensity(stats.AvgGrade)
	intensity *= 1 + stats.ElevationGainM/1000*0.05

	speed := gradeSpeed(stats.AvgGrade)
	if ftpOK {
		ra.RequiredPowerMinW = ftp * intensity * 0.9
		ra.RequiredPowerMaxW = ftp * intensity * 1.1

		factor := ftp / p.MassKg / referenceWattsPerKg
		if factor < minSpeedFactor {
			factor = minSpeedFactor
		}
		if factor > maxSpeedFactor {
			factor = maxSpeedFactor
		}
		speed *= factor

		switch {
		case in.PowerW < ra.RequiredPowerMinW:
			ra.PacingDelta = "below target for the terrain ahead, lift effort"
		case in.PowerW > ra.RequiredPowerMaxW:
			ra.PacingDelta = "above target for the terrain ahead, back off"
		default:
			ra.PacingDelta = "on target for the terrain ahead"
		}
	}
	if speed > 0 {
		ra.EstimatedTime = time.Duration(stats.DistanceM / speed * float64(time.Second))
	}
	return ra
}
