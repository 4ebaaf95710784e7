package learner

import "time"

// TickSample is the per-second input the builder aggregates. Power is the
// estimator's output for the tick; the environmental fields come straight
// from the sensor feed.
type TickSample struct {
	At        time.Time
	Power     float64
	SpeedMps  float64
	Grade     float64
	WindMps   float64
	TempC     float64
	Humidity  float64
	HeartRate float64 // 0 when absent
}

// minFlushDuration is the shortest pending segment worth sealing at ride
// stop; anything shorter carries too little signal.
const minFlushDuration = 10 * time.Second

// SegmentBuilder accumulates tick samples into fixed-duration segments. Not
// safe for concurrent use; it lives on the single ride timeline.
type SegmentBuilder struct {
	sealed []Segment

	open      bool
	start     time.Time
	last      time.Time
	count     int
	hrCount   int
	sumPower  float64
	sumSpeed  float64
	sumGrade  float64
	sumWind   float64
	sumTemp   float64
	sumHum    float64
	sumHR     float64
}

// NewSegmentBuilder returns an empty builder.
func NewSegmentBuilder() *SegmentBuilder {
	return &SegmentBuilder{}
}

// Add folds one tick into the open segment, sealing it once SegmentDuration
// has elapsed.
func (b *SegmentBuilder) Add(s TickSample) {
	if !b.open {
		b.open = true
		b.start = s.At
	}
	b.last = s.At
	b.count++
	b.sumPower += s.Power
	b.sumSpeed += s.SpeedMps
	b.sumGrade += s.Grade
	b.sumWind += s.WindMps
	b.sumTemp += s.TempC
	b.sumHum += s.Humidity
	if s.HeartRate > 0 {
		b.sumHR += s.HeartRate
		b.hrCount++
	}

	if s.At.Sub(b.start) >= SegmentDuration-time.Second {
		b.seal()
	}
}

func (b *SegmentBuilder) seal() {
	if b.count == 0 {
		return
	}
	n := float64(b.count)
	seg := Segment{
		At:           b.start,
		DurationSec:  b.last.Sub(b.start).Seconds() + 1, // samples are 1 Hz inclusive
		MeanPower:    b.sumPower / n,
		MeanSpeedMps: b.sumSpeed / n,
		MeanGrade:    b.sumGrade / n,
		MeanWindMps:  b.sumWind / n,
		MeanTempC:    b.sumTemp / n,
		MeanHumidity: b.sumHum / n,
	}
	if b.hrCount > 0 {
		seg.MeanHeartRate = b.sumHR / float64(b.hrCount)
	}
	b.sealed = append(b.sealed, seg)

	*b = SegmentBuilder{sealed: b.sealed}
}

// Flush seals any pending segment that has accumulated enough signal, then
// returns all sealed segments and resets the builder. Called at ride stop.
func (b *SegmentBuilder) Flush() []Segment {
	if b.open && b.last.Sub(b.start) >= minFlushDuration {
		b.seal()
	}
	out := b.sealed
	*b = SegmentBuilder{}
	return out
}

// Segments returns the segments sealed so far without resetting.
func (b *SegmentBuilder) Segments() []Segment { return b.sealed }
