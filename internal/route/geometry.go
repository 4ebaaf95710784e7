// Package route holds the geometric side of the pipeline: route
// preprocessing (cumulative distance, elevation smoothing, turn and climb
// detection) and per-tick position matching against the processed points.
//
// All geometry is derived internally from the ordered lat/lon/elevation
// point list; distance fields supplied by external route sources are not
// trusted beyond the initial load.
package route

import (
	"fmt"
	"math"
)

const (
	earthRadiusM = 6371000.0

	// elevationSmoothingWindow is the centered moving-average width applied
	// to raw elevations once at load. Consumer-grade GPS elevation is noisy
	// enough to produce ±15% instantaneous grades without it.
	elevationSmoothingWindow = 5
)

// Point is one processed route point. Elevation is smoothed; CumDistanceM is
// the great-circle cumulative distance from the route start.
type Point struct {
	Lat          float64 `json:"lat"`
	Lon          float64 `json:"lon"`
	ElevationM   float64 `json:"elevation_m"`
	CumDistanceM float64 `json:"cum_distance_m"`
}

// Waypoint is a rider-annotated point of interest supplied with the route.
type Waypoint struct {
	Lat            float64 `json:"lat"`
	Lon            float64 `json:"lon"`
	Type           string  `json:"type"`
	Label          string  `json:"label"`
	Notes          string  `json:"notes,omitempty"`
	AlertDistanceM float64 `json:"alert_distance_m,omitempty"`
}

// Route is an immutable processed route: ordered points with cumulative
// distance and smoothed elevation, plus the precomputed turn list.
type Route struct {
	Points    []Point
	Waypoints []Waypoint
	Turns     []Turn
}

// SourcePoint is the raw shape a route provider delivers.
type SourcePoint struct {
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	ElevationM float64 `json:"elevation_m"`
}

// New preprocesses a raw point list into a Route. It requires at least two
// points.
func New(src []SourcePoint, waypoints []Waypoint) (*Route, error) {
	if len(src) < 2 {
		return nil, fmt.Errorf("route needs at least 2 points, got %d", len(src))
	}

	points := make([]Point, len(src))
	for i, s := range src {
		points[i] = Point{Lat: s.Lat, Lon: s.Lon, ElevationM: s.ElevationM}
	}

	smoothElevations(points)

	for i := 1; i < len(points); i++ {
		d := Haversine(points[i-1].Lat, points[i-1].Lon, points[i].Lat, points[i].Lon)
		points[i].CumDistanceM = points[i-1].CumDistanceM + d
	}

	r := &Route{Points: points, Waypoints: waypoints}
	r.Turns = detectTurns(points)
	return r, nil
}

// TotalDistanceM returns the route length.
func (r *Route) TotalDistanceM() float64 {
	return r.Points[len(r.Points)-1].CumDistanceM
}

// smoothElevations applies a centered moving average in place. The window
// shrinks symmetrically at the ends.
func smoothElevations(points []Point) {
	raw := make([]float64, len(points))
	for i, p := range points {
		raw[i] = p.ElevationM
	}
	half := elevationSmoothingWindow / 2
	for i := range points {
		lo := i - half
		if lo < 0 {
			lo = 0
		}
		hi := i + half
		if hi > len(points)-1 {
			hi = len(points) - 1
		}
		var sum float64
		for j := lo; j <= hi; j++ {
			sum += raw[j]
		}
		points[i].ElevationM = sum / float64(hi-lo+1)
	}
}

// Haversine returns the great-circle distance in meters between two
// lat/lon pairs in degrees.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return earthRadiusM * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// Bearing returns the initial great-circle bearing in degrees [0,360) from
// the first point to the second.
func Bearing(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	y := math.Sin(dLambda) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLambda)
	deg := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}

// GradeBehind computes the average grade over the trailing windowM meters
// ending at point index idx, by walking backward until the window is covered.
// It returns 0 when the route behind idx cannot fill the window.
func (r *Route) GradeBehind(idx int, windowM float64) float64 {
	if idx <= 0 || idx >= len(r.Points) {
		return 0
	}
	end := r.Points[idx]
	j := idx
	for j > 0 && end.CumDistanceM-r.Points[j].CumDistanceM < windowM {
		j--
	}
	dist := end.CumDistanceM - r.Points[j].CumDistanceM
	if dist < windowM || dist == 0 {
		return 0
	}
	return (end.ElevationM - r.Points[j].ElevationM) / dist
}

// gradeAhead computes the forward-looking grade over the next windowM meters
// from point index idx, returning ok=false when the remaining route cannot
// fill the window.
func (r *Route) gradeAhead(idx int, windowM float64) (float64, bool) {
	if idx < 0 || idx >= len(r.Points)-1 {
		return 0, false
	}
	start := r.Points[idx]
	j := idx
	for j < len(r.Points)-1 && r.Points[j].CumDistanceM-start.CumDistanceM < windowM {
		j++
	}
	dist := r.Points[j].CumDistanceM - start.CumDistanceM
	if dist < windowM || dist == 0 {
		return 0, false
	}
	return (r.Points[j].ElevationM - start.ElevationM) / dist, true
}

// AheadStats summarizes the route segment from index idx forward over
// windowM meters for the lookahead pipeline.
type AheadStats struct {
	DistanceM      float64
	ElevationGainM float64
	AvgGrade       float64
	MaxGrade       float64
}

// Ahead walks the route forward from idx over windowM meters and aggregates
// elevation gain and point-to-point grades. ok is false when idx is at the
// route end.
func (r *Route) Ahead(idx int, windowM float64) (AheadStats, bool) {
	if idx < 0 || idx >= len(r.Points)-1 {
		return AheadStats{}, false
	}
	start := r.Points[idx]
	var s AheadStats
	for j := idx + 1; j < len(r.Points); j++ {
		prev := r.Points[j-1]
		p := r.Points[j]
		if p.CumDistanceM-start.CumDistanceM > windowM {
			break
		}
		rise := p.ElevationM - prev.ElevationM
		run := p.CumDistanceM - prev.CumDistanceM
		if rise > 0 {
			s.ElevationGainM += rise
		}
		if run > 0 {
			if g := rise / run; g > s.MaxGrade {
				s.MaxGrade = g
			}
		}
		s.DistanceM = p.CumDistanceM - start.CumDistanceM
	}
	if s.DistanceM > 0 {
		endIdx := idx
		for endIdx < len(r.Points)-1 && r.Points[endIdx+1].CumDistanceM-start.CumDistanceM <= windowM {
			endIdx++
		}
		s.AvgGrade = (r.Points[endIdx].ElevationM - start.ElevationM) / s.DistanceM
	}
	return s, s.DistanceM > 0
}
