package intel

import "time"

// timedValue is one reading in a rolling history buffer.
type timedValue struct {
	v  float64
	at time.Time
}

// timedRing is a fixed-capacity ring of timestamped readings, newest
// overwriting oldest. It backs the 5-minute power and speed histories.
type timedRing struct {
	buf   []timedValue
	head  int
	count int
}

func newTimedRing(capacity int) *timedRing {
	return &timedRing{buf: make([]timedValue, capacity)}
}

func (r *timedRing) push(v float64, at time.Time) {
	r.buf[r.head] = timedValue{v: v, at: at}
	r.head = (r.head + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

func (r *timedRing) len() int { return r.count }

func (r *timedRing) reset() {
	r.head = 0
	r.count = 0
}

// at returns the i-th newest reading, i=0 being the most recent.
func (r *timedRing) at(i int) timedValue {
	idx := (r.head - 1 - i + 2*len(r.buf)) % len(r.buf)
	return r.buf[idx]
}

// meanBetween averages readings with timestamps in (from, to]. ok is false
// when the interval holds no readings.
func (r *timedRing) meanBetween(from, to time.Time) (mean float64, ok bool) {
	var sum float64
	var n int
	for i := 0; i < r.count; i++ {
		tv := r.at(i)
		if !tv.at.After(from) {
			break
		}
		if tv.at.After(to) {
			continue
		}
		sum += tv.v
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}
