package sim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/san-kum/motorsync/internal/config"
	"github.com/san-kum/motorsync/internal/dynamo"
	"github.com/san-kum/motorsync/internal/filter"
	"github.com/san-kum/motorsync/internal/integrators"
	"github.com/san-kum/motorsync/internal/lift"
	"github.com/san-kum/motorsync/internal/metrics"
	"github.com/san-kum/motorsync/internal/motor"
	"github.com/san-kum/motorsync/internal/physics"
	"github.com/san-kum/motorsync/internal/recorder"
	"github.com/san-kum/motorsync/internal/task"
)

var ErrRealtime = errors.New("sim: rig runs on the wall clock")

// plantPeriod is how often the real-time rig integrates the plant.
const plantPeriod = 5 * time.Millisecond

type Rig struct {
	cfg   *config.Config
	plant *physics.Lift
	integ dynamo.Integrator
	bus   *motor.MemoryBus
	lift  *lift.Lift
	rec   *recorder.Recorder
	clock *Clock
	start time.Time
	log   logr.Logger

	sign map[int]float64

	mu    sync.Mutex
	x     dynamo.State
	t     float64
	steps int
	rng   *rand.Rand
	last  time.Time

	task *task.Periodic
}

type options struct {
	realtime  bool
	log       logr.Logger
	metrics   []dynamo.Metric
	observers []dynamo.Observer
	limit     int
}

type Option func(*options)

// WithRealtime builds the rig on the wall clock for Start/Stop.
func WithRealtime() Option {
	return func(o *options) { o.realtime = true }
}

func WithLogger(log logr.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithMetrics replaces the standard metrics.
func WithMetrics(ms ...dynamo.Metric) Option {
	return func(o *options) { o.metrics = ms }
}

func WithObserver(obs dynamo.Observer) Option {
	return func(o *options) { o.observers = append(o.observers, obs) }
}

// WithSampleLimit keeps only the newest n samples in memory.
func WithSampleLimit(n int) Option {
	return func(o *options) { o.limit = n }
}

// New builds a rig for cfg. The plant starts at rest with both sides at
// cfg.Sim.Start, the slave side shifted by cfg.Sim.Offset.
func New(cfg *config.Config, opts ...Option) (*Rig, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{log: logr.Discard()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.metrics == nil {
		o.metrics = metrics.Standard(cfg.Pair.Master.Gains.Tolerance)
	}

	integ, err := integrators.New(cfg.Sim.Integrator)
	if err != nil {
		return nil, err
	}

	r := &Rig{
		cfg:   cfg,
		plant: cfg.Sim.Plant.Lift(),
		integ: integ,
		bus:   motor.NewMemoryBus(),
		log:   o.log,
		sign:  make(map[int]float64),
		rng:   rand.New(rand.NewSource(cfg.Sim.Seed)),
	}
	if o.realtime {
		r.clock = NewWallClock()
	} else {
		r.clock = NewVirtualClock(time.Unix(0, 0))
	}
	r.start = r.clock.Now()
	r.last = r.start

	h := cfg.Sim.Start
	r.x = dynamo.State{h, 0, h + cfg.Sim.Offset, 0}
	r.plant.Constrain(r.x)

	for _, p := range cfg.Motor.Ports {
		r.sign[p.Port] = 1
		if p.Inverted {
			r.sign[p.Port] = -1
		}
	}

	recOpts := []recorder.Option{recorder.WithMetrics(o.metrics...), recorder.WithLimit(o.limit)}
	for _, obs := range o.observers {
		recOpts = append(recOpts, recorder.WithObserver(obs))
	}

	sensors := lift.Sensors{
		Master:         r.sensor(physics.Master, cfg.Pair.Master),
		Slave:          r.sensor(physics.Slave, cfg.Pair.Slave),
		MasterSwitches: r.switches(physics.Master),
		SlaveSwitches:  r.switches(physics.Slave),
	}
	r.rec = recorder.New(recorder.Source{Start: r.start, Applied: r.Applied, Heights: r.Heights}, recOpts...)

	l, err := lift.New(r.bus, sensors, cfg,
		lift.WithClock(r.clock.Now),
		lift.WithLogger(o.log),
		lift.WithObserver(r.rec),
	)
	if err != nil {
		return nil, err
	}
	r.lift = l

	r.task = task.New("plant", plantPeriod, r.advanceWall, o.log.WithName("plant"))
	return r, nil
}

// sensor models a side sensor: the true height plus gaussian noise, mapped
// to the configured raw scale and read back through the calibrated filter.
func (r *Rig) sensor(side physics.Side, sc config.SideConfig) *filter.Calibrated {
	scale := sc.Scale
	if scale == 0 {
		scale = 1
	}
	raw := func() int {
		r.mu.Lock()
		h := r.plant.Height(r.x, side)
		if r.cfg.Sim.Noise > 0 {
			h += r.rng.NormFloat64() * r.cfg.Sim.Noise
		}
		r.mu.Unlock()
		return sc.Zero + int(math.Round(h))/scale
	}
	return filter.NewCalibrated(raw, max(sc.Filter, 1), sc.Zero, scale)
}

func (r *Rig) switches(side physics.Side) lift.Switches {
	return lift.Switches{
		Bottom: func() bool {
			r.mu.Lock()
			defer r.mu.Unlock()
			return r.plant.AtBottom(r.x, side)
		},
		Top: func() bool {
			r.mu.Lock()
			defer r.mu.Unlock()
			return r.plant.AtTop(r.x, side)
		},
	}
}

// control reads each side's mean output back from the bus, undoing the
// port inversion the way the motor wiring does.
func (r *Rig) control() dynamo.Control {
	side := func(ports []int) float64 {
		sum := 0.0
		for _, p := range ports {
			sum += r.sign[p] * float64(r.bus.Value(p))
		}
		return sum / float64(len(ports))
	}
	return dynamo.Control{side(r.cfg.Pair.Master.Ports), side(r.cfg.Pair.Slave.Ports)}
}

// integrate advances the plant by d in steps of at most cfg.Sim.Dt.
func (r *Rig) integrate(d float64) error {
	u := r.control()

	r.mu.Lock()
	defer r.mu.Unlock()
	for d > 1e-12 {
		h := math.Min(d, r.cfg.Sim.Dt)
		next := r.integ.Step(r.plant, r.x, u, r.t, h)
		if !next.IsValid() {
			return &dynamo.SimulationError{Step: r.steps, Time: r.t, State: r.x.Clone(), Wrapped: dynamo.ErrInvalidState}
		}
		r.plant.Constrain(next)
		r.x = next
		r.t += h
		r.steps++
		d -= h
	}
	return nil
}

// Run simulates cfg.Sim.Duration seconds in virtual time: the plant is
// integrated every dt, the ramp task ticks every motor period and the
// controller cycles every pair period. Setpoints are applied as their time
// comes up.
func (r *Rig) Run(ctx context.Context) (*dynamo.Result, error) {
	if !r.clock.Virtual() {
		return nil, ErrRealtime
	}

	dt := time.Duration(r.cfg.Sim.Dt * float64(time.Second))
	steps := int(math.Round(r.cfg.Sim.Duration / r.cfg.Sim.Dt))
	rampEvery := r.cfg.Motor.Period.Std()
	cycleEvery := r.cfg.Pair.Period.Std()
	setpoints := r.cfg.Sim.Setpoints

	r.lift.Arm(r.cfg.Pair.Goal)
	r.log.Info("simulation started", "preset", r.cfg.Name, "steps", steps, "seed", r.cfg.Sim.Seed)

	var nextRamp, nextCycle time.Duration
	next := 0
	for i := 0; i < steps; i++ {
		select {
		case <-ctx.Done():
			return r.result(), ctx.Err()
		default:
		}

		elapsed := r.clock.Now().Sub(r.start)
		for next < len(setpoints) && setpoints[next].At <= elapsed.Seconds()+1e-9 {
			r.lift.SetHeight(setpoints[next].Goal)
			r.log.V(1).Info("setpoint", "t", elapsed.Seconds(), "goal", setpoints[next].Goal)
			next++
		}
		if elapsed >= nextCycle {
			r.lift.Pair.Cycle()
			nextCycle += cycleEvery
		}
		if elapsed >= nextRamp {
			r.lift.Manager.Tick()
			nextRamp += rampEvery
		}

		if err := r.integrate(r.cfg.Sim.Dt); err != nil {
			res := r.result()
			res.Errors = append(res.Errors, err)
			return res, fmt.Errorf("simulation diverged: %w", err)
		}
		r.clock.Advance(dt)
	}

	res := r.result()
	r.log.Info("simulation finished", "cycles", res.Cycles, "sync_rms", res.Metrics["sync_rms"])
	return res, nil
}

func (r *Rig) result() *dynamo.Result {
	r.mu.Lock()
	steps := r.steps
	r.mu.Unlock()
	return &dynamo.Result{
		Samples: r.rec.Samples(),
		Metrics: r.rec.Metrics(),
		Steps:   steps,
		Cycles:  r.rec.Count(),
		Skipped: r.lift.Pair.Skipped() + r.lift.Manager.Skipped(),
	}
}

// Start runs the rig in real time: the lift's own tasks plus a plant task.
func (r *Rig) Start(ctx context.Context) error {
	if r.clock.Virtual() {
		return fmt.Errorf("sim: Start needs a real-time rig")
	}
	r.mu.Lock()
	r.last = time.Now()
	r.mu.Unlock()
	if !r.task.Start(ctx) {
		return fmt.Errorf("sim: plant already running")
	}
	if err := r.lift.Start(ctx); err != nil {
		r.task.Stop()
		return err
	}
	return nil
}

func (r *Rig) Stop() {
	r.lift.Stop()
	r.task.Stop()
}

func (r *Rig) advanceWall() {
	now := time.Now()
	r.mu.Lock()
	d := now.Sub(r.last).Seconds()
	r.last = now
	r.mu.Unlock()
	if err := r.integrate(d); err != nil {
		r.log.Error(err, "plant integration failed")
	}
}

// Heights returns the true plant height of both sides.
func (r *Rig) Heights() (float64, float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.plant.Height(r.x, physics.Master), r.plant.Height(r.x, physics.Slave)
}

// Applied returns the applied output of every port, indexed by port-1.
func (r *Rig) Applied() []int {
	if r.lift == nil {
		return nil
	}
	states := r.lift.Manager.Snapshot()
	out := make([]int, len(states))
	for i, s := range states {
		out[i] = s.Applied
	}
	return out
}

// State returns a copy of the plant state.
func (r *Rig) State() dynamo.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.x.Clone()
}

// Plant exposes the plant model for parameter changes before Run.
func (r *Rig) Plant() dynamo.Configurable { return r.plant }

func (r *Rig) Lift() *lift.Lift { return r.lift }

func (r *Rig) Recorder() *recorder.Recorder { return r.rec }

func (r *Rig) Config() *config.Config { return r.cfg }
