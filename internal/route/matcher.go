package route

// Matching and grade-window parameters.
const (
	// OnRouteThresholdM is the maximum distance from the nearest route
	// point at which the rider still counts as on route. The boundary is
	// inclusive.
	OnRouteThresholdM = 40.0

	ShortGradeWindowM = 30.0
	LongGradeWindowM  = 150.0
)

// MatchResult is the per-tick outcome of matching a position to the route.
// It is recomputed every tick and never retained.
type MatchResult struct {
	OnRoute        bool
	Index          int     // nearest route point
	DistanceOffM   float64 // meters to the nearest point
	AlongRouteM    float64 // cumulative distance of the nearest point
	GradeShort     float64 // trailing 30 m grade
	GradeLong      float64 // trailing 150 m grade
	RemainingM     float64
}

// Matcher matches live positions against one processed route.
//
// The nearest-point search is a linear scan over all points; at a 1 Hz tick
// this holds up to routes of a few tens of thousands of points. A spatial
// index would be the next step for longer routes, not a behavior change.
type Matcher struct {
	route *Route
}

// NewMatcher wraps a processed route.
func NewMatcher(r *Route) *Matcher {
	return &Matcher{route: r}
}

// Route returns the underlying processed route.
func (m *Matcher) Route() *Route { return m.route }

// Match finds the nearest route point to the given position and derives the
// on-route status and the trailing grade windows.
func (m *Matcher) Match(lat, lon float64) MatchResult {
	points := m.route.Points
	best := 0
	bestDist := Haversine(lat, lon, points[0].Lat, points[0].Lon)
	for i := 1; i < len(points); i++ {
		d := Haversine(lat, lon, points[i].Lat, points[i].Lon)
		if d < bestDist {
			bestDist = d
			best = i
		}
	}

	res := MatchResult{
		OnRoute:      bestDist <= OnRouteThresholdM,
		Index:        best,
		DistanceOffM: bestDist,
		AlongRouteM:  points[best].CumDistanceM,
		RemainingM:   m.route.TotalDistanceM() - points[best].CumDistanceM,
	}
	if res.OnRoute {
		res.GradeShort = m.route.GradeBehind(best, ShortGradeWindowM)
		res.GradeLong = m.route.GradeBehind(best, LongGradeWindowM)
	}
	return res
}
