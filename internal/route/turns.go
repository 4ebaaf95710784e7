package route

import "math"

// Turn classification. Severity is derived from the absolute bearing change:
// below turnThresholdDeg nothing is flagged, then slight/normal/sharp.
type TurnSeverity string

const (
	TurnSlight TurnSeverity = "slight"
	TurnNormal TurnSeverity = "normal"
	TurnSharp  TurnSeverity = "sharp"
)

type TurnDirection string

const (
	TurnLeft  TurnDirection = "left"
	TurnRight TurnDirection = "right"
)

const (
	// turnWindow is the number of points the before/after bearings span.
	turnWindow = 5
	// turnStride is the candidate-index step; bearing comparison is noisy
	// enough point-to-point that every third index is plenty.
	turnStride = 3

	turnThresholdDeg = 20.0
	slightMaxDeg     = 45.0
	normalMaxDeg     = 135.0
)

// Turn is a detected change of direction on the route.
type Turn struct {
	Index            int
	DistanceM        float64
	BearingChangeDeg float64 // signed, positive = right
	Direction        TurnDirection
	Severity         TurnSeverity
}

// detectTurns scans candidate indices at a fixed stride, comparing the
// bearing over turnWindow points before the candidate against the bearing
// over turnWindow points after it. Contiguous flagged candidates around one
// corner are merged into a single turn at the candidate with the largest
// bearing change.
func detectTurns(points []Point) []Turn {
	var turns []Turn

	var clusterBest *Turn
	flush := func() {
		if clusterBest != nil {
			turns = append(turns, *clusterBest)
			clusterBest = nil
		}
	}

	for i := turnWindow; i+turnWindow < len(points); i += turnStride {
		before := Bearing(points[i-turnWindow].Lat, points[i-turnWindow].Lon, points[i].Lat, points[i].Lon)
		after := Bearing(points[i].Lat, points[i].Lon, points[i+turnWindow].Lat, points[i+turnWindow].Lon)
		delta := normalizeDelta(after - before)

		if math.Abs(delta) <= turnThresholdDeg {
			flush()
			continue
		}

		t := Turn{
			Index:            i,
			DistanceM:        points[i].CumDistanceM,
			BearingChangeDeg: delta,
			Direction:        direction(delta),
			Severity:         severity(math.Abs(delta)),
		}
		if clusterBest == nil || math.Abs(delta) > math.Abs(clusterBest.BearingChangeDeg) {
			clusterBest = &t
		}
	}
	flush()
	return turns
}

// normalizeDelta maps a bearing difference into (-180, 180].
func normalizeDelta(deg float64) float64 {
	for deg > 180 {
		deg -= 360
	}
	for deg <= -180 {
		deg += 360
	}
	return deg
}

func direction(delta float64) TurnDirection {
	if delta > 0 {
		return TurnRight
	}
	return TurnLeft
}

func severity(absDeg float64) TurnSeverity {
	switch {
	case absDeg < slightMaxDeg:
		return TurnSlight
	case absDeg < normalMaxDeg:
		return TurnNormal
	default:
		return TurnSharp
	}
}
