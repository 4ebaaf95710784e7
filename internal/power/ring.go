package power

import "time"

// Sample is one tick's power decomposition. Confidence is in [0,1].
type Sample struct {
	Total      float64
	Aero       float64
	Rolling    float64
	Gravity    float64
	Confidence float64
	At         time.Time
}

// sampleRing is a fixed-capacity ring of samples ordered by insertion time.
// Old samples are overwritten once capacity is reached, which bounds the
// retained window without reallocating on the tick path.
type sampleRing struct {
	buf  []Sample
	head int // next write position
	size int
}

func newSampleRing(capacity int) *sampleRing {
	if capacity <= 0 {
		capacity = 1
	}
	return &sampleRing{buf: make([]Sample, capacity)}
}

func (r *sampleRing) push(s Sample) {
	r.buf[r.head] = s
	r.head = (r.head + 1) % len(r.buf)
	if r.size < len(r.buf) {
		r.size++
	}
}

func (r *sampleRing) len() int { return r.size }

func (r *sampleRing) reset() {
	r.head = 0
	r.size = 0
}

// at returns the i-th most recent sample; at(0) is the newest.
func (r *sampleRing) at(i int) Sample {
	idx := (r.head - 1 - i + 2*len(r.buf)) % len(r.buf)
	return r.buf[idx]
}

// window calls fn for each sample no older than cutoff, newest first,
// stopping at the first sample older than cutoff.
func (r *sampleRing) window(cutoff time.Time, fn func(Sample)) {
	for i := 0; i < r.size; i++ {
		s := r.at(i)
		if s.At.Before(cutoff) {
			return
		}
		fn(s)
	}
}
