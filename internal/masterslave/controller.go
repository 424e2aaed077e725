package masterslave

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"github.com/san-kum/motorsync/internal/control"
	"github.com/san-kum/motorsync/internal/lock"
	"github.com/san-kum/motorsync/internal/task"
)

const (
	DefaultBound       = 127
	DefaultPeriod      = 40 * time.Millisecond
	DefaultLockTimeout = 2 * time.Second
)

type Mode int

const (
	ClosedLoop Mode = iota
	ManualOverride
)

func (m Mode) String() string {
	switch m {
	case ClosedLoop:
		return "closed-loop"
	case ManualOverride:
		return "manual"
	default:
		return "unknown"
	}
}

// Cycle is the outcome of one control period.
type Cycle struct {
	At         time.Time
	Mode       Mode
	MasterGoal int
	SlaveGoal  int
	MasterPos  int
	SlavePos   int
	Correction int
	MasterOut  int
	SlaveOut   int
}

// Observer is notified after every completed cycle while the pair lock is
// still held. Implementations must return quickly.
type Observer interface {
	OnCycle(c Cycle)
}

type ObserverFunc func(c Cycle)

func (f ObserverFunc) OnCycle(c Cycle) { f(c) }

// Controller synchronizes a master and a slave PID loop.
type Controller struct {
	master    *control.PID
	slave     *control.PID
	equalizer *control.PID

	mu          *lock.Timed
	closedLoop  bool
	manual      int
	bound       int
	period      time.Duration
	lockTimeout time.Duration
	now         func() time.Time
	log         logr.Logger
	observers   []Observer

	task    *task.Periodic
	last    atomic.Pointer[Cycle]
	skipped atomic.Uint64
}

type Option func(*Controller)

// WithBound sets the actuation bound used for joint scaling.
func WithBound(bound int) Option {
	return func(c *Controller) { c.bound = abs(bound) }
}

func WithPeriod(d time.Duration) Option {
	return func(c *Controller) { c.period = d }
}

func WithLockTimeout(d time.Duration) Option {
	return func(c *Controller) { c.lockTimeout = d }
}

// WithMode selects the mode the controller starts in.
func WithMode(m Mode) Option {
	return func(c *Controller) { c.closedLoop = m == ClosedLoop }
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

func WithLogger(log logr.Logger) Option {
	return func(c *Controller) { c.log = log }
}

func WithObserver(o Observer) Option {
	return func(c *Controller) { c.observers = append(c.observers, o) }
}

// New builds a controller from three loops. The equalizer's own input is
// ignored: each cycle feeds it the sensed slave position minus the sensed
// master position.
func New(master, slave, equalizer *control.PID, opts ...Option) *Controller {
	c := &Controller{
		master:      master,
		slave:       slave,
		equalizer:   equalizer,
		mu:          lock.New(),
		closedLoop:  true,
		bound:       DefaultBound,
		period:      DefaultPeriod,
		lockTimeout: DefaultLockTimeout,
		now:         time.Now,
		log:         logr.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.task = task.New("masterslave", c.period, func() { c.Cycle() }, c.log)
	return c
}

// InitializeTask sets both goals, clears the manual output and starts the
// periodic control task.
func (c *Controller) InitializeTask(ctx context.Context, goal int) error {
	if c.task.Running() {
		return ErrRunning
	}
	if !c.mu.TryLock(c.lockTimeout) {
		return ErrLockTimeout
	}
	c.master.SetGoal(goal)
	c.slave.SetGoal(goal)
	c.manual = 0
	c.mu.Unlock()

	if !c.task.Start(ctx) {
		return ErrRunning
	}
	return nil
}

// Stop halts the control task. Outputs keep their last commanded value.
func (c *Controller) Stop() {
	c.task.Stop()
}

// SetGoal moves both sides to goal in closed loop.
func (c *Controller) SetGoal(goal int) bool {
	if !c.mu.TryLock(c.lockTimeout) {
		return false
	}
	defer c.mu.Unlock()

	c.enterClosedLoop()
	c.master.SetGoal(goal)
	c.slave.SetGoal(goal)
	return true
}

// IncreaseGoal shifts both goals by delta in closed loop without clearing
// the integral terms. Coming out of manual override, the delta applies to
// the current master position.
func (c *Controller) IncreaseGoal(delta int) bool {
	if !c.mu.TryLock(c.lockTimeout) {
		return false
	}
	defer c.mu.Unlock()

	c.enterClosedLoop()
	c.master.ShiftGoal(delta)
	c.slave.ShiftGoal(delta)
	return true
}

// SetOutput drives both sides with output directly. The equalizer stays
// active.
func (c *Controller) SetOutput(output int) bool {
	if !c.mu.TryLock(c.lockTimeout) {
		return false
	}
	defer c.mu.Unlock()

	if c.closedLoop {
		c.log.V(1).Info("entering manual override", "output", output)
	}
	c.closedLoop = false
	c.manual = output
	return true
}

// enterClosedLoop must be called with the lock held. Leaving manual override
// restarts both loops from the last filtered master position so the goal
// does not jump to wherever it was before the operator took over.
func (c *Controller) enterClosedLoop() {
	if c.closedLoop {
		return
	}
	base := c.master.Read()
	c.master.Reset()
	c.slave.Reset()
	c.master.SetGoal(base)
	c.slave.SetGoal(base)
	c.closedLoop = true
	c.log.V(1).Info("entering closed loop", "baseline", base)
}

// OnTarget reports whether both sides are within their tolerance. Filtered
// inputs are read, not sampled, so polling does not disturb the next cycle.
// It is false if the lock cannot be taken.
func (c *Controller) OnTarget() bool {
	if !c.mu.TryLock(c.lockTimeout) {
		return false
	}
	defer c.mu.Unlock()

	return c.master.OnTargetAt(c.master.Read()) && c.slave.OnTargetAt(c.slave.Read())
}

// WaitOnTarget polls OnTarget every interval until it holds or ctx ends.
func (c *Controller) WaitOnTarget(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = control.DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for !c.OnTarget() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// Cycle runs one control period. It returns false when the pair lock was
// busy and the period was skipped.
func (c *Controller) Cycle() bool {
	if !c.mu.TryLock(c.lockTimeout) {
		c.skipped.Add(1)
		c.log.V(1).Info("cycle skipped, lock busy")
		return false
	}
	defer c.mu.Unlock()

	masterPos := c.master.Sample()
	slavePos := c.slave.Sample()

	var masterOut, slaveOut int
	mode := ManualOverride
	if c.closedLoop {
		mode = ClosedLoop
		masterOut = c.master.ComputeFrom(masterPos)
		slaveOut = c.slave.ComputeFrom(slavePos)
	} else {
		masterOut, slaveOut = c.manual, c.manual
	}

	correction := c.equalizer.ComputeFrom(slavePos - masterPos)
	slaveOut += correction
	masterOut -= correction

	masterOut, slaveOut = ScaleJoint(masterOut, slaveOut, c.bound)

	if c.master.Output != nil {
		c.master.Output.Write(masterOut, false)
	}
	if c.slave.Output != nil {
		c.slave.Output.Write(slaveOut, false)
	}

	cyc := Cycle{
		At:         c.now(),
		Mode:       mode,
		MasterGoal: c.master.Goal(),
		SlaveGoal:  c.slave.Goal(),
		MasterPos:  masterPos,
		SlavePos:   slavePos,
		Correction: correction,
		MasterOut:  masterOut,
		SlaveOut:   slaveOut,
	}
	c.last.Store(&cyc)
	for _, o := range c.observers {
		o.OnCycle(cyc)
	}

	c.log.V(2).Info("cycle", "master", masterOut, "slave", slaveOut, "correction", correction)
	return true
}

// Loop names accepted by Params and SetParam.
const (
	LoopMaster    = "master"
	LoopSlave     = "slave"
	LoopEqualizer = "equalizer"
)

func (c *Controller) loop(name string) (*control.PID, error) {
	switch name {
	case LoopMaster:
		return c.master, nil
	case LoopSlave:
		return c.slave, nil
	case LoopEqualizer:
		return c.equalizer, nil
	}
	return nil, fmt.Errorf("masterslave: unknown loop %q", name)
}

// Params returns the tunable parameters of one loop.
func (c *Controller) Params(loop string) (map[string]float64, error) {
	pid, err := c.loop(loop)
	if err != nil {
		return nil, err
	}
	if !c.mu.TryLock(c.lockTimeout) {
		return nil, ErrLockTimeout
	}
	defer c.mu.Unlock()
	return pid.GetParams(), nil
}

// SetParam changes one parameter of a loop between cycles.
func (c *Controller) SetParam(loop, name string, value float64) error {
	pid, err := c.loop(loop)
	if err != nil {
		return err
	}
	if !c.mu.TryLock(c.lockTimeout) {
		return ErrLockTimeout
	}
	defer c.mu.Unlock()
	if err := pid.SetParam(name, value); err != nil {
		return err
	}
	c.log.V(1).Info("parameter changed", "loop", loop, "name", name, "value", value)
	return nil
}

// Mode reports the current mode, or the last observed one if the lock is busy.
func (c *Controller) Mode() Mode {
	if !c.mu.TryLock(c.lockTimeout) {
		return c.Last().Mode
	}
	defer c.mu.Unlock()
	if c.closedLoop {
		return ClosedLoop
	}
	return ManualOverride
}

// Last returns the most recent completed cycle.
func (c *Controller) Last() Cycle {
	if cyc := c.last.Load(); cyc != nil {
		return *cyc
	}
	return Cycle{}
}

// Skipped counts cycles dropped on lock timeout.
func (c *Controller) Skipped() uint64 { return c.skipped.Load() }

// ScaleJoint scales a and b by the same factor so that neither magnitude
// exceeds bound. Values already within bound are returned unchanged.
func ScaleJoint(a, b, bound int) (int, int) {
	bound = abs(bound)
	peak := max(bound, abs(a), abs(b))
	if peak == bound {
		return a, b
	}
	scale := float64(bound) / float64(peak)
	return int(math.Round(float64(a) * scale)), int(math.Round(float64(b) * scale))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
