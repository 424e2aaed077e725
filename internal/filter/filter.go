// Package filter smooths noisy integer sensor readings.
package filter

import (
	"math"
	"sync"
)

// MovingAverage is the mean of the last N samples. It is safe for
// concurrent use.
type MovingAverage struct {
	mu     sync.Mutex
	window []int
	next   int
	filled int
	sum    int
}

// NewMovingAverage returns a filter over the last n samples (n >= 1).
func NewMovingAverage(n int) *MovingAverage {
	if n < 1 {
		n = 1
	}
	return &MovingAverage{window: make([]int, n)}
}

// Add records a sample and returns the average including it, rounded to
// the nearest integer.
func (m *MovingAverage) Add(v int) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sum -= m.window[m.next]
	m.window[m.next] = v
	m.sum += v
	m.next = (m.next + 1) % len(m.window)
	if m.filled < len(m.window) {
		m.filled++
	}
	return m.value()
}

// Value returns the current average without adding a sample.
func (m *MovingAverage) Value() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.value()
}

func (m *MovingAverage) value() int {
	if m.filled == 0 {
		return 0
	}
	return int(math.Round(float64(m.sum) / float64(m.filled)))
}

func (m *MovingAverage) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.window {
		m.window[i] = 0
	}
	m.next, m.filled, m.sum = 0, 0, 0
}

// Calibrated reads a raw sensor, subtracts a zero point and smooths the
// result. Sample pushes one reading into the average; Read only looks at it,
// so any number of readers see the same value between samples. Zero captures
// the current raw reading as the new zero point, e.g. when a bottom limit
// switch closes.
type Calibrated struct {
	raw    func() int
	avg    *MovingAverage
	mu     sync.Mutex
	offset int
	scale  int
	primed bool
}

// NewCalibrated wraps raw with a window-sample moving average. A negative
// scale flips the sensor direction.
func NewCalibrated(raw func() int, window, zero, scale int) *Calibrated {
	if scale == 0 {
		scale = 1
	}
	return &Calibrated{raw: raw, avg: NewMovingAverage(window), offset: zero, scale: scale}
}

// Sample adds one calibrated reading and returns the new average.
func (c *Calibrated) Sample() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sample()
}

func (c *Calibrated) sample() int {
	c.primed = true
	return c.avg.Add((c.raw() - c.offset) * c.scale)
}

// Read returns the current average. Before the first sample it takes one.
func (c *Calibrated) Read() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.primed {
		return c.sample()
	}
	return c.avg.Value()
}

func (c *Calibrated) Zero() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset = c.raw()
	c.primed = false
	c.avg.Reset()
}
