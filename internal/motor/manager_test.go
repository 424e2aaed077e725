package motor

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	. "github.com/onsi/gomega"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestManager(opts ...Option) (*Manager, *MemoryBus, *fakeClock) {
	clk := &fakeClock{t: time.Unix(5000, 0)}
	bus := NewMemoryBus()
	opts = append([]Option{WithClock(clk.now)}, opts...)
	return NewManager(bus, opts...), bus, clk
}

// tick advances the clock by one ramp period and runs the ramp task once.
func tick(m *Manager, clk *fakeClock, d time.Duration) {
	clk.advance(d)
	m.Tick()
}

func TestRampScenario(t *testing.T) {
	g := NewWithT(t)
	m, bus, clk := newTestManager()

	// 10 units per 20 ms tick.
	g.Expect(m.Configure(3, false, 0.5)).To(BeTrue())
	g.Expect(m.Set(3, 100, false)).To(BeTrue())

	for i := 0; i < 3; i++ {
		tick(m, clk, 20*time.Millisecond)
	}
	g.Expect(m.Applied(3)).To(Equal(30))
	g.Expect(bus.Value(3)).To(Equal(30))
	g.Expect(m.Get(3)).To(Equal(100))

	g.Expect(m.Set(3, 100, true)).To(BeTrue())
	g.Expect(m.Applied(3)).To(Equal(100))
	g.Expect(bus.Value(3)).To(Equal(100))
}

func TestRampReachesTargetExactly(t *testing.T) {
	tests := []struct {
		name   string
		rate   float64
		tick   time.Duration
		target int
	}{
		{"even", 0.5, 20 * time.Millisecond, 100},
		{"uneven", 0.25, 15 * time.Millisecond, 127},
		{"reverse", 1.0, 15 * time.Millisecond, -90},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewWithT(t)
			m, _, clk := newTestManager()
			g.Expect(m.Configure(1, false, tt.rate)).To(BeTrue())
			g.Expect(m.Set(1, tt.target, false)).To(BeTrue())

			perTick := tt.rate * float64(tt.tick/time.Millisecond)
			dist := float64(abs(tt.target))
			ticks := int(dist / perTick)
			if float64(ticks)*perTick < dist {
				ticks++
			}

			prev := 0
			for i := 0; i < ticks; i++ {
				tick(m, clk, tt.tick)
				moved := float64(abs(m.Applied(1) - prev))
				// Whole units only; a carried fraction can add one unit.
				g.Expect(moved).To(BeNumerically("<=", math.Ceil(perTick)))
				prev = m.Applied(1)
			}
			g.Expect(m.Applied(1)).To(Equal(tt.target))
		})
	}
}

func TestRampFractionalRateAccumulates(t *testing.T) {
	g := NewWithT(t)
	m, _, clk := newTestManager()
	g.Expect(m.Configure(1, false, 0.03)).To(BeTrue())
	m.Set(1, 10, false)

	for i := 0; i < 5; i++ {
		tick(m, clk, 10*time.Millisecond)
	}
	// 0.3 units per tick: 1.5 units after five ticks.
	g.Expect(m.Applied(1)).To(Equal(1))
}

func TestInversionAppliedAtWrite(t *testing.T) {
	g := NewWithT(t)
	m, bus, _ := newTestManager()
	g.Expect(m.Configure(2, true, DefaultRamp)).To(BeTrue())

	g.Expect(m.Set(2, 80, true)).To(BeTrue())
	g.Expect(bus.Value(2)).To(Equal(-80))
	g.Expect(m.Get(2)).To(Equal(80))
	g.Expect(m.Applied(2)).To(Equal(80))
}

func TestSetClampsValue(t *testing.T) {
	g := NewWithT(t)
	m, bus, _ := newTestManager()

	g.Expect(m.Set(1, 500, true)).To(BeTrue())
	g.Expect(m.Get(1)).To(Equal(MaxOutput))
	g.Expect(bus.Value(1)).To(Equal(MaxOutput))

	g.Expect(m.Set(1, -500, false)).To(BeTrue())
	g.Expect(m.Get(1)).To(Equal(-MaxOutput))
}

func TestInvalidPortHasNoSideEffects(t *testing.T) {
	g := NewWithT(t)
	m, bus, _ := newTestManager(WithChannels(4))

	for _, port := range []int{0, -1, 5, 11} {
		g.Expect(m.Set(port, 50, true)).To(BeFalse())
		g.Expect(m.Get(port)).To(Equal(0))
		g.Expect(m.Configure(port, true, 1)).To(BeFalse())
		g.Expect(m.SetRecalculate(port, nil)).To(BeFalse())
	}
	g.Expect(bus.Writes()).To(Equal(0))
	g.Expect(m.Channels()).To(Equal(4))
}

func TestConfigureRejectsBadRamp(t *testing.T) {
	g := NewWithT(t)
	m, _, _ := newTestManager()

	g.Expect(m.Configure(1, true, 0)).To(BeFalse())
	g.Expect(m.Configure(1, true, -2)).To(BeFalse())
	g.Expect(m.Snapshot()[0].Inverted).To(BeFalse())
	g.Expect(m.Snapshot()[0].RampRate).To(Equal(DefaultRamp))
}

func TestConfigureIsIdempotent(t *testing.T) {
	g := NewWithT(t)
	m, _, clk := newTestManager()
	g.Expect(m.Configure(1, false, 0.5)).To(BeTrue())
	m.Set(1, 100, false)

	clk.advance(200 * time.Millisecond)
	g.Expect(m.Configure(1, false, 0.5)).To(BeTrue())
	g.Expect(m.Configure(1, false, 0.5)).To(BeTrue())

	// Ramp timing restarted at the last Configure, so only 20 ms count.
	tick(m, clk, 20*time.Millisecond)
	g.Expect(m.Applied(1)).To(Equal(10))
}

func TestRecalculateHook(t *testing.T) {
	g := NewWithT(t)
	m, _, clk := newTestManager()
	m.Configure(1, false, 100)
	g.Expect(m.SetRecalculate(1, func(v int) int { return v * 3 })).To(BeTrue())

	m.Set(1, 60, false)
	tick(m, clk, 20*time.Millisecond)
	g.Expect(m.Applied(1)).To(Equal(MaxOutput))
	g.Expect(m.Get(1)).To(Equal(60))

	g.Expect(m.SetRecalculate(1, nil)).To(BeTrue())
	tick(m, clk, 20*time.Millisecond)
	g.Expect(m.Applied(1)).To(Equal(60))
}

func TestRampSkipsBusyPort(t *testing.T) {
	g := NewWithT(t)
	m, _, clk := newTestManager(WithRampTimeout(time.Millisecond))
	m.Configure(1, false, 0.5)
	m.Configure(2, false, 0.5)
	m.Set(1, 100, false)
	m.Set(2, 100, false)

	m.channels[0].mu.Lock()
	tick(m, clk, 20*time.Millisecond)
	m.channels[0].mu.Unlock()

	g.Expect(m.Applied(1)).To(Equal(0))
	g.Expect(m.Applied(2)).To(Equal(10))
	g.Expect(m.Skipped()).To(Equal(uint64(1)))

	// The skipped port catches up on the elapsed time it missed.
	tick(m, clk, 20*time.Millisecond)
	g.Expect(m.Applied(1)).To(Equal(20))
	g.Expect(m.Applied(2)).To(Equal(20))
}

func TestSetFailsWhenPortBusy(t *testing.T) {
	g := NewWithT(t)
	m, _, _ := newTestManager(WithSetTimeout(time.Millisecond))

	m.channels[0].mu.Lock()
	g.Expect(m.Set(1, 40, false)).To(BeFalse())
	m.channels[0].mu.Unlock()
	g.Expect(m.Get(1)).To(Equal(0))
}

type failingBus struct{}

func (failingBus) Write(int, int) error { return errors.New("bus down") }

func TestImmediateWriteFailure(t *testing.T) {
	g := NewWithT(t)
	m := NewManager(failingBus{})

	g.Expect(m.Set(1, 40, true)).To(BeFalse())
	g.Expect(m.Get(1)).To(Equal(0))
	g.Expect(m.Set(1, 40, false)).To(BeTrue())
	m.Tick()
	g.Expect(m.Applied(1)).To(Equal(0))
}

func TestManagerTaskRamps(t *testing.T) {
	g := NewWithT(t)
	bus := NewMemoryBus()
	m := NewManager(bus, WithPeriod(2*time.Millisecond))
	m.Configure(1, false, 10)

	g.Expect(m.Start(context.Background())).To(BeTrue())
	defer m.Stop()

	m.Set(1, 120, false)
	g.Eventually(func() int { return m.Applied(1) }, time.Second, time.Millisecond).Should(Equal(120))
}

func TestMemoryBusRejectsBadPort(t *testing.T) {
	g := NewWithT(t)
	g.Expect(errors.Is(NewMemoryBus().Write(0, 1), ErrInvalidPort)).To(BeTrue())
}
