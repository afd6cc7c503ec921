package geo

import "sync"

// Course estimates the direction of travel over a rolling window of fixes.
type Course struct {
	mu      sync.RWMutex
	samples []Point
	window  int
	minMove float64
}

// NewCourse keeps the last window fixes. A bearing is only reported once the
// oldest and newest samples are at least minMove meters apart, so GPS jitter
// while parked does not spin the arrow.
func NewCourse(window int, minMove float64) *Course {
	if window < 2 {
		window = 2
	}
	return &Course{window: window, minMove: minMove}
}

// Push records p and returns the current course in degrees.
func (c *Course) Push(p Point) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n := len(c.samples); n > 0 && c.samples[n-1] == p {
		return c.bearing()
	}
	c.samples = append(c.samples, p)
	if len(c.samples) > c.window {
		c.samples = c.samples[1:]
	}
	return c.bearing()
}

// Bearing returns the current course without recording anything.
func (c *Course) Bearing() (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bearing()
}

func (c *Course) bearing() (float64, bool) {
	if len(c.samples) < 2 {
		return 0, false
	}
	first, last := c.samples[0], c.samples[len(c.samples)-1]
	if Distance(first, last) < c.minMove {
		return 0, false
	}
	return Bearing(first, last), true
}

// Reset forgets all samples.
func (c *Course) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.samples = nil
}
