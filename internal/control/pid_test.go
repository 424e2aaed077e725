package control

import (
	"context"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock { return &fakeClock{t: time.Unix(1000, 0)} }

type sensor struct{ value int }

func (s *sensor) Read() int { return s.value }

type recorder struct {
	values    []int
	immediate []bool
}

func (r *recorder) Write(v int, immediate bool) {
	r.values = append(r.values, v)
	r.immediate = append(r.immediate, immediate)
}

func TestProportionalOnly(t *testing.T) {
	tests := []struct {
		kp    float64
		goal  int
		input int
		want  int
	}{
		{1.0, 100, 0, 100},
		{0.65, 100, 0, 65},
		{2.0, 10, 40, -60},
		{0.5, 7, 0, 4},
	}

	for _, tt := range tests {
		s := &sensor{value: tt.input}
		clk := newClock()
		p := NewPID(nil, s, tt.kp, 0, 0, 1000, -1000, 0, WithClock(clk.now))
		p.SetGoal(tt.goal)

		for i := 0; i < 3; i++ {
			if got := p.Compute(); got != tt.want {
				t.Errorf("kp=%.2f err=%d pass %d: expected %d, got %d", tt.kp, tt.goal-tt.input, i, tt.want, got)
			}
			clk.advance(20 * time.Millisecond)
		}
	}
}

func TestIntegralClamped(t *testing.T) {
	clk := newClock()
	p := NewPID(nil, &sensor{}, 0, 1, 0, 50, -20, 0, WithClock(clk.now))

	for i := 0; i < 10; i++ {
		p.ComputeWithError(10)
	}
	if p.Integral() != 50 {
		t.Errorf("expected integral clamped to 50, got %d", p.Integral())
	}

	for i := 0; i < 20; i++ {
		p.ComputeWithError(-10)
	}
	if p.Integral() != -20 {
		t.Errorf("expected integral clamped to -20, got %d", p.Integral())
	}
}

func TestAntiWindupInsideTolerance(t *testing.T) {
	clk := newClock()
	s := &sensor{value: 0}
	p := NewPID(nil, s, 1, 0.5, 0.1, 1000, -1000, 5, WithClock(clk.now))
	p.SetGoal(100)

	for i := 0; i < 5; i++ {
		p.Compute()
		clk.advance(20 * time.Millisecond)
	}
	if p.Integral() == 0 {
		t.Fatal("integral should have accumulated while off target")
	}

	s.value = 97
	for i := 0; i < 5; i++ {
		if out := p.Compute(); out != 0 {
			t.Errorf("pass %d: expected zero output on target, got %d", i, out)
		}
		if p.Integral() != 0 {
			t.Errorf("pass %d: expected zero integral on target, got %d", i, p.Integral())
		}
		clk.advance(20 * time.Millisecond)
	}
}

func TestToleranceIsMagnitude(t *testing.T) {
	p := NewPID(nil, &sensor{value: 3}, 1, 0, 0, 10, -10, -5)
	if p.Tolerance != 5 {
		t.Fatalf("expected tolerance 5, got %d", p.Tolerance)
	}
	if !p.OnTarget() {
		t.Error("error of -3 should be on target")
	}
}

func TestSetGoalResetsState(t *testing.T) {
	clk := newClock()
	s := &sensor{value: 0}
	p := NewPID(nil, s, 2, 0, 0.5, 1000, -1000, 1, WithClock(clk.now))
	p.SetGoal(50)
	for i := 0; i < 4; i++ {
		p.Compute()
		clk.advance(20 * time.Millisecond)
	}

	p.SetGoal(80)
	if p.Integral() != 0 {
		t.Errorf("expected integral reset, got %d", p.Integral())
	}
	if out := p.Compute(); out != 160 {
		t.Errorf("expected pure proportional 160 after goal change, got %d", out)
	}
}

func TestSetGoalUnchangedKeepsIntegral(t *testing.T) {
	p := NewPID(nil, &sensor{}, 0, 1, 0, 1000, -1000, 0)
	p.SetGoal(10)
	p.Compute()
	p.Compute()
	p.SetGoal(10)
	if p.Integral() != 20 {
		t.Errorf("expected integral 20 to survive same goal, got %d", p.Integral())
	}
}

func TestResetKeepsGains(t *testing.T) {
	p := NewPID(nil, &sensor{}, 1.5, 0.2, 0.3, 10, -10, 1)
	p.SetGoal(9)
	p.Compute()
	p.Reset()

	if p.Goal() != 0 || p.Integral() != 0 {
		t.Errorf("expected cleared goal and integral, got %d/%d", p.Goal(), p.Integral())
	}
	if p.Kp != 1.5 || p.Ki != 0.2 || p.Kd != 0.3 {
		t.Error("reset must not touch gains")
	}
}

func TestDerivativeSkippedWithoutElapsedTime(t *testing.T) {
	clk := newClock()
	p := NewPID(nil, &sensor{}, 0, 0, 1, 0, 0, 0, WithClock(clk.now))

	if out := p.ComputeWithError(10); out != 0 {
		t.Errorf("first pass has no history, expected 0, got %d", out)
	}
	if out := p.ComputeWithError(20); out != 0 {
		t.Errorf("zero elapsed time must skip derivative, got %d", out)
	}

	clk.advance(100 * time.Millisecond)
	if out := p.ComputeWithError(30); out != 100 {
		t.Errorf("expected derivative 10/0.1s = 100, got %d", out)
	}
}

func TestExecuteContinuous(t *testing.T) {
	s := &sensor{value: 0}
	out := &recorder{}
	p := NewPID(out, s, 1, 0, 0, 100, -100, 4)
	p.SetGoal(20)

	if p.ExecuteContinuous() {
		t.Error("expected not on target")
	}
	if len(out.values) != 1 || out.values[0] != 20 || out.immediate[0] {
		t.Errorf("expected ramped write of 20, got %v %v", out.values, out.immediate)
	}

	s.value = 18
	if !p.ExecuteContinuous() {
		t.Error("expected on target at 18")
	}
	if out.values[1] != 0 {
		t.Errorf("expected zero output on target, got %d", out.values[1])
	}
}

func TestExecuteCompletion(t *testing.T) {
	s := &sensor{value: 0}
	var p *PID
	p = NewPID(OutputFunc(func(v int, _ bool) { s.value += v / 2 }), s, 1, 0, 0, 100, -100, 2)
	p.SetGoal(40)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.ExecuteCompletion(ctx, time.Millisecond); err != nil {
		t.Fatalf("expected completion, got %v", err)
	}
	if !p.OnTarget() {
		t.Errorf("expected on target, input %d", s.value)
	}
}

func TestExecuteCompletionCanceled(t *testing.T) {
	p := NewPID(nil, &sensor{}, 1, 0, 0, 100, -100, 1)
	p.SetGoal(100)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := p.ExecuteCompletion(ctx, time.Millisecond); err == nil {
		t.Error("expected context error for a loop that never settles")
	}
}

func TestSetParam(t *testing.T) {
	p := NewPID(nil, nil, 1, 0, 0, 10, -10, 1)
	if err := p.SetParam("kp", 3); err != nil {
		t.Fatal(err)
	}
	if err := p.SetParam("goal", 12); err != nil {
		t.Fatal(err)
	}
	if err := p.SetParam("bogus", 99); err == nil {
		t.Error("expected error for unknown parameter")
	}

	params := p.GetParams()
	if params["kp"] != 3 || params["goal"] != 12 {
		t.Errorf("unexpected params %v", params)
	}
	if p.Read() != 0 {
		t.Error("nil input should read zero")
	}
}

func TestShiftGoalKeepsIntegral(t *testing.T) {
	p := NewPID(nil, nil, 0, 1, 0, 100, -100, 1)
	p.SetGoal(50)
	p.ComputeFrom(40)
	p.ComputeFrom(40)
	if p.Integral() != 20 {
		t.Fatalf("expected integral 20, got %d", p.Integral())
	}

	p.ShiftGoal(5)
	if p.Goal() != 55 || p.Integral() != 20 {
		t.Errorf("expected goal 55 with integral 20, got %d and %d", p.Goal(), p.Integral())
	}

	p.SetGoal(70)
	if p.Integral() != 0 {
		t.Errorf("SetGoal should reset the integral, got %d", p.Integral())
	}
}

type countingSampler struct {
	value   int
	samples int
}

func (s *countingSampler) Read() int   { return s.value }
func (s *countingSampler) Sample() int { s.samples++; return s.value }

func TestOnlyComputeSamplesFilteredInput(t *testing.T) {
	in := &countingSampler{value: 10}
	p := NewPID(nil, in, 1, 0, 0, 0, 0, 1)
	p.SetGoal(20)

	p.Read()
	p.OnTarget()
	if in.samples != 0 {
		t.Fatalf("Read and OnTarget must not sample, got %d samples", in.samples)
	}
	if out := p.Compute(); out != 10 {
		t.Errorf("expected output 10, got %d", out)
	}
	p.ExecuteContinuous()
	if in.samples != 2 {
		t.Errorf("expected one sample per pass, got %d", in.samples)
	}
}
