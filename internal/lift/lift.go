package lift

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/san-kum/motorsync/internal/config"
	"github.com/san-kum/motorsync/internal/control"
	"github.com/san-kum/motorsync/internal/masterslave"
	"github.com/san-kum/motorsync/internal/motor"
)

// Sensors are the position inputs and limit switches of both sides.
type Sensors struct {
	Master         control.Input
	Slave          control.Input
	MasterSwitches Switches
	SlaveSwitches  Switches
}

type options struct {
	now       func() time.Time
	log       logr.Logger
	observers []masterslave.Observer
}

type Option func(*options)

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func WithLogger(log logr.Logger) Option {
	return func(o *options) { o.log = log }
}

func WithObserver(obs masterslave.Observer) Option {
	return func(o *options) { o.observers = append(o.observers, obs) }
}

// Lift is a configured pair of lift sides.
type Lift struct {
	Manager *motor.Manager
	Pair    *masterslave.Controller

	Master    *control.PID
	Slave     *control.PID
	Equalizer *control.PID

	masterOut *SideOutput
	slaveOut  *SideOutput
	goal      int
	log       logr.Logger
}

// New validates cfg and wires the Manager, the three PID loops and the
// pair controller onto bus.
func New(bus motor.Bus, sensors Sensors, cfg *config.Config, opts ...Option) (*Lift, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{now: time.Now, log: logr.Discard()}
	for _, opt := range opts {
		opt(&o)
	}

	mgr := motor.NewManager(bus,
		motor.WithChannels(cfg.Motor.Channels),
		motor.WithPeriod(cfg.Motor.Period.Std()),
		motor.WithRampTimeout(cfg.Motor.RampTimeout.Std()),
		motor.WithSetTimeout(cfg.Motor.SetTimeout.Std()),
		motor.WithClock(o.now),
		motor.WithLogger(o.log.WithName("motor")),
	)
	for _, p := range cfg.Motor.Ports {
		if !mgr.Configure(p.Port, p.Inverted, p.Ramp) {
			return nil, fmt.Errorf("configure port %d: %w", p.Port, motor.ErrInvalidPort)
		}
	}

	limit := cfg.Pair.Limit()
	l := &Lift{
		Manager:   mgr,
		masterOut: NewSideOutput(mgr, cfg.Pair.Master.Ports, limit, sensors.MasterSwitches),
		slaveOut:  NewSideOutput(mgr, cfg.Pair.Slave.Ports, limit, sensors.SlaveSwitches),
		goal:      cfg.Pair.Goal,
		log:       o.log,
	}
	l.Master = newPID(l.masterOut, sensors.Master, cfg.Pair.Master.Gains, o.now)
	l.Slave = newPID(l.slaveOut, sensors.Slave, cfg.Pair.Slave.Gains, o.now)
	l.Equalizer = newPID(nil, nil, cfg.Pair.Equalizer, o.now)

	pairOpts := []masterslave.Option{
		masterslave.WithBound(cfg.Pair.Bound),
		masterslave.WithPeriod(cfg.Pair.Period.Std()),
		masterslave.WithLockTimeout(cfg.Pair.LockTimeout.Std()),
		masterslave.WithClock(o.now),
		masterslave.WithLogger(o.log.WithName("pair")),
	}
	for _, obs := range o.observers {
		pairOpts = append(pairOpts, masterslave.WithObserver(obs))
	}
	l.Pair = masterslave.New(l.Master, l.Slave, l.Equalizer, pairOpts...)
	return l, nil
}

func newPID(out control.Output, in control.Input, g config.GainConfig, now func() time.Time) *control.PID {
	return control.NewPID(out, in, g.Kp, g.Ki, g.Kd, g.MaxIntegral, g.MinIntegral, g.Tolerance, control.WithClock(now))
}

// Start launches the ramp task and the pair task at the configured goal.
func (l *Lift) Start(ctx context.Context) error {
	if !l.Manager.Start(ctx) {
		return fmt.Errorf("motor manager already running")
	}
	if err := l.Pair.InitializeTask(ctx, l.goal); err != nil {
		l.Manager.Stop()
		return err
	}
	l.log.Info("lift started", "goal", l.goal)
	return nil
}

// Stop halts the pair task, zeroes every lift port and stops the ramp task.
func (l *Lift) Stop() {
	l.Pair.Stop()
	l.masterOut.Halt()
	l.slaveOut.Halt()
	l.Manager.Stop()
	l.log.Info("lift stopped")
}

// Arm sets both goals without starting any task, for callers that drive
// Pair.Cycle themselves.
func (l *Lift) Arm(goal int) {
	l.Master.SetGoal(goal)
	l.Slave.SetGoal(goal)
}

func (l *Lift) SetHeight(goal int) bool { return l.Pair.SetGoal(goal) }

func (l *Lift) Nudge(delta int) bool { return l.Pair.IncreaseGoal(delta) }

// Jog drives both sides open loop; the equalizer keeps them level.
func (l *Lift) Jog(output int) bool { return l.Pair.SetOutput(output) }

func (l *Lift) OnTarget() bool { return l.Pair.OnTarget() }

// EqualizerParams and SetEqualizerParam tune the equalizer while running.
func (l *Lift) EqualizerParams() (map[string]float64, error) {
	return l.Pair.Params(masterslave.LoopEqualizer)
}

func (l *Lift) SetEqualizerParam(name string, value float64) error {
	return l.Pair.SetParam(masterslave.LoopEqualizer, name, value)
}

// MasterPorts and SlavePorts list the ports of each side.
func (l *Lift) MasterPorts() []int { return l.masterOut.Ports() }
func (l *Lift) SlavePorts() []int  { return l.slaveOut.Ports() }
