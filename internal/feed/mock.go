package feed

import (
	"fmt"
	"io"
	"math"
	"time"
)

var _ Source = (*Mux[*MockPort])(nil)

// MockPort implements Porter over an in-process pipe. Writes are discarded
// after counting so command sends still succeed.
type MockPort struct {
	io.Reader
	closer io.Closer
}

func (m *MockPort) Write(p []byte) (int, error) { return len(p), nil }

func (m *MockPort) Close() error { return m.closer.Close() }

// NewMockMux returns a Mux fed by a synthetic ride: rolling terrain, mild
// wind, and power tracking the grade. interval controls the emit cadence
// (1 s matches the real head unit; tests use shorter).
func NewMockMux(interval time.Duration) *Mux[*MockPort] {
	r, w := io.Pipe()
	port := &MockPort{Reader: r, closer: r}

	go func() {
		defer w.Close()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		var i int
		for range ticker.C {
			if _, err := w.Write([]byte(mockTickLine(i))); err != nil {
				return
			}
			i++
		}
	}()

	return NewMux(port)
}

// mockTickLine synthesizes tick i of the canned ride.
func mockTickLine(i int) string {
	t := float64(i)
	grade := 0.03 * math.Sin(t/120)
	power := 180 + 120*grade/0.03
	if power < 80 {
		power = 80
	}
	speed := 8.5 - 40*grade
	if speed < 2.5 {
		speed = 2.5
	}
	wind := 1.5 + 0.5*math.Sin(t/300)
	lat := 47.60 + t*0.00002
	lon := -122.33

	return fmt.Sprintf("TICK,%.0f,%.2f,%.0f,%.0f,%.4f,%.2f,%.1f,%.0f,%.6f,%.6f,%.1f\n",
		power, speed, 88+10*grade/0.03, 135+20*grade/0.03, grade, wind, 19.5, 62.0, lat, lon, 30+2*t*0.01)
}
