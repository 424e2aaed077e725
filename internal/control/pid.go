package control

import (
	"context"
	"fmt"
	"math"
	"time"
)

// DefaultInterval is the polling period used by ExecuteCompletion.
const DefaultInterval = 20 * time.Millisecond

// PID is a proportional-integral-derivative loop over integer sensor units.
//
// The integral is clamped to [MinIntegral, MaxIntegral]. Once the error is
// inside Tolerance both the integral and the output are forced to zero, so
// a loop that reaches its goal stops pushing and does not wind up.
type PID struct {
	Kp float64
	Ki float64
	Kd float64

	MaxIntegral int
	MinIntegral int
	Tolerance   int

	Input  Input
	Output Output

	goal     int
	integral int
	prevErr  int
	prevT    time.Time
	now      func() time.Time
}

type Option func(*PID)

// WithClock replaces time.Now as the source of derivative timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *PID) { p.now = now }
}

func NewPID(output Output, input Input, kp, ki, kd float64, maxIntegral, minIntegral, tolerance int, opts ...Option) *PID {
	p := &PID{
		Kp:          kp,
		Ki:          ki,
		Kd:          kd,
		MaxIntegral: maxIntegral,
		MinIntegral: minIntegral,
		Tolerance:   abs(tolerance),
		Input:       input,
		Output:      output,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Compute samples the input and returns one pass of the loop.
func (p *PID) Compute() int {
	return p.ComputeFrom(p.Sample())
}

// ComputeFrom runs one pass against an already sampled measurement.
func (p *PID) ComputeFrom(measured int) int {
	return p.ComputeWithError(p.goal - measured)
}

// ComputeWithError runs one pass with a caller supplied error. Integral,
// previous error and timestamp carry over exactly as with Compute.
func (p *PID) ComputeWithError(err int) int {
	p.integral += err
	if p.integral < p.MinIntegral {
		p.integral = p.MinIntegral
	} else if p.integral > p.MaxIntegral {
		p.integral = p.MaxIntegral
	}

	onTarget := abs(err) < p.Tolerance
	if onTarget {
		p.integral = 0
	}

	now := p.now()
	derivative := 0.0
	if !p.prevT.IsZero() {
		if dt := now.Sub(p.prevT).Seconds(); dt > 0 {
			derivative = float64(err-p.prevErr) / dt
		}
	}

	out := 0
	if !onTarget {
		out = int(math.Round(p.Kp*float64(err) + p.Ki*float64(p.integral) + p.Kd*derivative))
	}

	p.prevErr = err
	p.prevT = now
	return out
}

// ExecuteContinuous computes one pass, writes it to the output and reports
// whether the input is within tolerance of the goal. The input is sampled
// once per call.
func (p *PID) ExecuteContinuous() bool {
	measured := p.Sample()
	out := p.ComputeFrom(measured)
	if p.Output != nil {
		p.Output.Write(out, false)
	}
	return abs(p.goal-measured) < p.Tolerance
}

// ExecuteCompletion runs the loop every interval until it reaches its goal
// or ctx is done. A non-positive interval uses DefaultInterval.
func (p *PID) ExecuteCompletion(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for !p.ExecuteContinuous() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// SetGoal changes the goal. An unchanged goal keeps the accumulated state;
// a new one resets the loop first so an old integral cannot kick the output.
func (p *PID) SetGoal(goal int) {
	if p.goal == goal {
		return
	}
	p.Reset()
	p.goal = goal
}

// ShiftGoal moves the goal by delta and keeps the integral, so a loop
// holding a load does not sag while its goal is nudged.
func (p *PID) ShiftGoal(delta int) {
	p.goal += delta
}

// Reset clears the goal, integral and derivative history. Gains are kept.
func (p *PID) Reset() {
	p.goal = 0
	p.integral = 0
	p.prevErr = 0
	p.prevT = time.Time{}
}

// OnTarget reads the input without sampling it and reports whether it is within tolerance.
func (p *PID) OnTarget() bool {
	return p.OnTargetAt(p.read())
}

// OnTargetAt reports whether measured is within tolerance of the goal.
func (p *PID) OnTargetAt(measured int) bool {
	return abs(p.goal-measured) < p.Tolerance
}

func (p *PID) Goal() int     { return p.goal }
func (p *PID) Integral() int { return p.integral }

// Read returns the loop input without advancing a filtered input; a loop
// without one reads zero.
func (p *PID) Read() int { return p.read() }

// Sample advances a filtered input by one reading and returns it. Plain
// inputs are just read.
func (p *PID) Sample() int {
	if s, ok := p.Input.(Sampler); ok {
		return s.Sample()
	}
	return p.read()
}

func (p *PID) read() int {
	if p.Input == nil {
		return 0
	}
	return p.Input.Read()
}

// GetParams returns the tunable parameters for live adjustment.
func (p *PID) GetParams() map[string]float64 {
	return map[string]float64{
		"kp":   p.Kp,
		"ki":   p.Ki,
		"kd":   p.Kd,
		"goal": float64(p.goal),
	}
}

// SetParam adjusts a parameter by name.
func (p *PID) SetParam(name string, value float64) error {
	switch name {
	case "kp":
		p.Kp = value
	case "ki":
		p.Ki = value
	case "kd":
		p.Kd = value
	case "goal":
		p.SetGoal(int(math.Round(value)))
	default:
		return fmt.Errorf("control: unknown pid parameter %q", name)
	}
	return nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
