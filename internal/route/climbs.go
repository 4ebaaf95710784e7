package route

// Climb detection parameters. A climb opens when the forward-looking grade
// over climbGradeWindowM exceeds climbOpenGrade and closes once it drops to
// climbCloseGrade or below; short or shallow runs are discarded.
const (
	climbGradeWindowM = 100.0
	climbOpenGrade    = 0.03
	climbCloseGrade   = 0.02
	climbMinLengthM   = 100.0
	climbMinAvgGrade  = 0.03
)

// Climb is a contiguous climbing segment of the route.
type Climb struct {
	StartIndex     int
	EndIndex       int
	StartDistanceM float64
	LengthM        float64
	ElevationGainM float64
	AvgGrade       float64
	MaxGrade       float64
}

// ClimbsAhead scans forward from fromIdx and returns the climbs the rider has
// yet to reach, in route order.
func (r *Route) ClimbsAhead(fromIdx int) []Climb {
	var climbs []Climb
	if fromIdx < 0 {
		fromIdx = 0
	}

	i := fromIdx
	for i < len(r.Points)-1 {
		g, ok := r.gradeAhead(i, climbGradeWindowM)
		if !ok {
			break
		}
		if g <= climbOpenGrade {
			i++
			continue
		}

		// Climb opened; advance until the windowed grade falls away.
		start := i
		maxGrade := g
		j := i + 1
		for j < len(r.Points)-1 {
			gj, ok := r.gradeAhead(j, climbGradeWindowM)
			if !ok || gj <= climbCloseGrade {
				break
			}
			if gj > maxGrade {
				maxGrade = gj
			}
			j++
		}

		length := r.Points[j].CumDistanceM - r.Points[start].CumDistanceM
		gain := r.Points[j].ElevationM - r.Points[start].ElevationM
		if length > climbMinLengthM && length > 0 && gain/length > climbMinAvgGrade {
			climbs = append(climbs, Climb{
				StartIndex:     start,
				EndIndex:       j,
				StartDistanceM: r.Points[start].CumDistanceM,
				LengthM:        length,
				ElevationGainM: gain,
				AvgGrade:       gain / length,
				MaxGrade:       maxGrade,
			})
		}
		i = j + 1
	}
	return climbs
}
