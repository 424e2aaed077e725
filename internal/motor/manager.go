package motor

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"github.com/san-kum/motorsync/internal/lock"
	"github.com/san-kum/motorsync/internal/task"
)

const (
	// MaxOutput bounds every commanded and applied value to [-MaxOutput, MaxOutput].
	MaxOutput = 127

	DefaultChannels    = 10
	DefaultRamp        = 0.5 // output units per millisecond
	DefaultPeriod      = 15 * time.Millisecond
	DefaultRampTimeout = 5 * time.Millisecond
	DefaultSetTimeout  = 2 * time.Second
)

// settings is replaced as a whole by Configure and SetRecalculate so readers
// never observe a half-written configuration.
type settings struct {
	inverted bool
	rate     float64
	recalc   func(int) int
}

type channel struct {
	port int
	mu   *lock.Timed
	cfg  atomic.Pointer[settings]

	commanded atomic.Int64 // un-inverted
	applied   atomic.Int64 // un-inverted

	// guarded by mu
	lastUpdate time.Time
	remainder  float64
}

// ChannelState is a point-in-time view of one port.
type ChannelState struct {
	Port      int
	Inverted  bool
	RampRate  float64
	Commanded int
	Applied   int
}

// Manager holds the commanded output of every port and ramps the bus toward it.
type Manager struct {
	bus         Bus
	channels    []*channel
	period      time.Duration
	rampTimeout time.Duration
	setTimeout  time.Duration
	now         func() time.Time
	log         logr.Logger

	task    *task.Periodic
	skipped atomic.Uint64
}

type Option func(*Manager)

func WithChannels(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.channels = make([]*channel, n)
		}
	}
}

func WithPeriod(d time.Duration) Option {
	return func(m *Manager) { m.period = d }
}

// WithRampTimeout bounds how long the ramp task waits for a busy port.
func WithRampTimeout(d time.Duration) Option {
	return func(m *Manager) { m.rampTimeout = d }
}

// WithSetTimeout bounds how long Set and Configure wait for a busy port.
func WithSetTimeout(d time.Duration) Option {
	return func(m *Manager) { m.setTimeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithLogger(log logr.Logger) Option {
	return func(m *Manager) { m.log = log }
}

func NewManager(bus Bus, opts ...Option) *Manager {
	m := &Manager{
		bus:         bus,
		channels:    make([]*channel, DefaultChannels),
		period:      DefaultPeriod,
		rampTimeout: DefaultRampTimeout,
		setTimeout:  DefaultSetTimeout,
		now:         time.Now,
		log:         logr.Discard(),
	}
	for _, opt := range opts {
		opt(m)
	}

	start := m.now()
	for i := range m.channels {
		ch := &channel{port: i + 1, mu: lock.New(), lastUpdate: start}
		ch.cfg.Store(&settings{rate: DefaultRamp})
		m.channels[i] = ch
	}
	m.task = task.New("motor-manager", m.period, m.Tick, m.log)
	return m
}

// Channels returns the number of ports; valid ports are 1..Channels().
func (m *Manager) Channels() int { return len(m.channels) }

func (m *Manager) channel(port int) (*channel, bool) {
	if port < 1 || port > len(m.channels) {
		return nil, false
	}
	return m.channels[port-1], true
}

// Configure sets inversion and ramp rate (output units per millisecond) for
// a port and restarts its ramp timing. It returns false without side effects
// for an invalid port or a rate that is not a positive number.
func (m *Manager) Configure(port int, inverted bool, rampRate float64) bool {
	ch, ok := m.channel(port)
	if !ok || !(rampRate > 0) || math.IsInf(rampRate, 0) {
		return false
	}
	if !ch.mu.TryLock(m.setTimeout) {
		return false
	}
	defer ch.mu.Unlock()

	prev := ch.cfg.Load()
	ch.cfg.Store(&settings{inverted: inverted, rate: rampRate, recalc: prev.recalc})
	ch.lastUpdate = m.now()
	ch.remainder = 0
	return true
}

// SetRecalculate installs a hook that rewrites the commanded value on every
// ramp tick before ramping toward it, e.g. to scale a raw command to a
// measured speed. nil restores the identity.
func (m *Manager) SetRecalculate(port int, fn func(int) int) bool {
	ch, ok := m.channel(port)
	if !ok {
		return false
	}
	if !ch.mu.TryLock(m.setTimeout) {
		return false
	}
	defer ch.mu.Unlock()

	prev := ch.cfg.Load()
	ch.cfg.Store(&settings{inverted: prev.inverted, rate: prev.rate, recalc: fn})
	return true
}

// Set commands a port. The value is clamped to [-MaxOutput, MaxOutput] and
// expressed without inversion. With immediate the bus is written within the
// call and ramping continues from that value.
func (m *Manager) Set(port, value int, immediate bool) bool {
	ch, ok := m.channel(port)
	if !ok {
		return false
	}
	value = Clamp(value)

	if !ch.mu.TryLock(m.setTimeout) {
		m.log.V(1).Info("set timed out", "port", port)
		return false
	}
	defer ch.mu.Unlock()

	if immediate {
		if err := m.write(ch, value); err != nil {
			m.log.V(1).Info("immediate write failed", "port", port, "error", err.Error())
			return false
		}
		ch.lastUpdate = m.now()
		ch.remainder = 0
	}
	ch.commanded.Store(int64(value))
	return true
}

// Get returns the commanded value of a port, or 0 for an invalid port.
func (m *Manager) Get(port int) int {
	ch, ok := m.channel(port)
	if !ok {
		return 0
	}
	return int(ch.commanded.Load())
}

// Applied returns the value last written to the bus for a port, without
// inversion.
func (m *Manager) Applied(port int) int {
	ch, ok := m.channel(port)
	if !ok {
		return 0
	}
	return int(ch.applied.Load())
}

// Tick runs one ramp pass over every port.
func (m *Manager) Tick() {
	now := m.now()
	for _, ch := range m.channels {
		if !ch.mu.TryLock(m.rampTimeout) {
			m.skipped.Add(1)
			m.log.V(1).Info("ramp skipped busy port", "port", ch.port)
			continue
		}
		m.ramp(ch, now)
		ch.mu.Unlock()
	}
}

func (m *Manager) ramp(ch *channel, now time.Time) {
	cfg := ch.cfg.Load()
	elapsed := float64(now.Sub(ch.lastUpdate)) / float64(time.Millisecond)
	ch.lastUpdate = now

	target := int(ch.commanded.Load())
	if cfg.recalc != nil {
		target = Clamp(cfg.recalc(target))
	}
	applied := int(ch.applied.Load())
	if applied == target {
		ch.remainder = 0
		return
	}

	if elapsed < 0 {
		elapsed = 0
	}
	step := cfg.rate*elapsed + ch.remainder
	delta := target - applied

	out := target
	if float64(abs(delta)) > step {
		whole := math.Floor(step)
		ch.remainder = step - whole
		if delta > 0 {
			out = applied + int(whole)
		} else {
			out = applied - int(whole)
		}
	} else {
		ch.remainder = 0
	}
	if out == applied {
		return
	}

	if err := m.write(ch, out); err != nil {
		m.log.V(1).Info("ramp write failed", "port", ch.port, "error", err.Error())
	}
}

// write must be called with ch.mu held.
func (m *Manager) write(ch *channel, value int) error {
	raw := value
	if ch.cfg.Load().inverted {
		raw = -value
	}
	if err := m.bus.Write(ch.port, raw); err != nil {
		return err
	}
	ch.applied.Store(int64(value))
	return nil
}

// Snapshot returns the state of every port in port order.
func (m *Manager) Snapshot() []ChannelState {
	out := make([]ChannelState, len(m.channels))
	for i, ch := range m.channels {
		cfg := ch.cfg.Load()
		out[i] = ChannelState{
			Port:      ch.port,
			Inverted:  cfg.inverted,
			RampRate:  cfg.rate,
			Commanded: int(ch.commanded.Load()),
			Applied:   int(ch.applied.Load()),
		}
	}
	return out
}

// Skipped counts port updates the ramp task dropped because a lock was busy.
func (m *Manager) Skipped() uint64 { return m.skipped.Load() }

// Start launches the ramp task. It returns false if it is already running.
func (m *Manager) Start(ctx context.Context) bool {
	return m.task.Start(ctx)
}

// Stop halts the ramp task and waits for the current tick to finish.
func (m *Manager) Stop() {
	m.task.Stop()
}

// Clamp bounds v to the actuation range.
func Clamp(v int) int {
	if v > MaxOutput {
		return MaxOutput
	}
	if v < -MaxOutput {
		return -MaxOutput
	}
	return v
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
