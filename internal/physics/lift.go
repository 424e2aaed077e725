package physics

import (
	"fmt"
	"math"

	"github.com/san-kum/motorsync/internal/dynamo"
)

const (
	DefaultGain       = 40.0
	DefaultDamping    = 8.0
	DefaultFriction   = 20.0
	DefaultCoupling   = 4.0
	DefaultMasterLoad = 300.0
	DefaultSlaveLoad  = 420.0
	DefaultMaxHeight  = 1000.0

	// frictionBand is the velocity below which Coulomb friction fades out.
	frictionBand = 5.0
)

// Side indexes a lift side in states and controls.
type Side int

const (
	Master Side = iota
	Slave
)

func (s Side) String() string {
	if s == Master {
		return "master"
	}
	return "slave"
}

// Lift state is [masterPos, masterVel, slavePos, slaveVel]; control is the
// mean motor output of each side in [-127, 127].
type Lift struct {
	Gain       float64 // units/s^2 per output unit
	Damping    float64 // 1/s, back-EMF and viscous losses
	Friction   float64 // units/s^2, Coulomb
	Coupling   float64 // 1/s^2, crossbar stiffness between sides
	MasterLoad float64 // units/s^2 pulling the master side down
	SlaveLoad  float64 // units/s^2 pulling the slave side down
	MaxHeight  float64
}

func NewLift() *Lift {
	return &Lift{
		Gain:       DefaultGain,
		Damping:    DefaultDamping,
		Friction:   DefaultFriction,
		Coupling:   DefaultCoupling,
		MasterLoad: DefaultMasterLoad,
		SlaveLoad:  DefaultSlaveLoad,
		MaxHeight:  DefaultMaxHeight,
	}
}

func (l *Lift) StateDim() int   { return 4 }
func (l *Lift) ControlDim() int { return 2 }

func (l *Lift) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	var um, us float64
	if len(u) > 1 {
		um, us = u[0], u[1]
	}
	gap := x[2] - x[0]
	return dynamo.State{
		x[1],
		l.accel(um, x[1], l.MasterLoad, gap),
		x[3],
		l.accel(us, x[3], l.SlaveLoad, -gap),
	}
}

func (l *Lift) accel(u, v, load, pull float64) float64 {
	return l.Gain*u - l.Damping*v - load - l.Friction*math.Tanh(v/frictionBand) + l.Coupling*pull
}

// Constrain applies the hard stops at 0 and MaxHeight in place: a side
// pinned against a stop loses any velocity pointing into it.
func (l *Lift) Constrain(x dynamo.State) {
	for _, i := range []int{0, 2} {
		switch {
		case x[i] <= 0:
			x[i] = 0
			if x[i+1] < 0 {
				x[i+1] = 0
			}
		case x[i] >= l.MaxHeight:
			x[i] = l.MaxHeight
			if x[i+1] > 0 {
				x[i+1] = 0
			}
		}
	}
}

// Height returns the position of one side.
func (l *Lift) Height(x dynamo.State, s Side) float64 {
	return x[2*int(s)]
}

func (l *Lift) AtBottom(x dynamo.State, s Side) bool {
	return l.Height(x, s) <= 0
}

func (l *Lift) AtTop(x dynamo.State, s Side) bool {
	return l.Height(x, s) >= l.MaxHeight
}

// HoldOutput is the steady output that balances a side's load at rest,
// ignoring friction.
func (l *Lift) HoldOutput(s Side) float64 {
	load := l.MasterLoad
	if s == Slave {
		load = l.SlaveLoad
	}
	return load / l.Gain
}

// Validate reports parameters the model cannot integrate.
func (l *Lift) Validate() error {
	switch {
	case l.Gain <= 0:
		return fmt.Errorf("gain %v: %w", l.Gain, dynamo.ErrParameterBounds)
	case l.Damping < 0, l.Friction < 0, l.Coupling < 0:
		return fmt.Errorf("damping, friction and coupling must be non-negative: %w", dynamo.ErrParameterBounds)
	case l.MaxHeight <= 0:
		return fmt.Errorf("max height %v: %w", l.MaxHeight, dynamo.ErrParameterBounds)
	}
	return nil
}

// GetParams implements dynamo.Configurable
func (l *Lift) GetParams() map[string]float64 {
	return map[string]float64{
		"gain":        l.Gain,
		"damping":     l.Damping,
		"friction":    l.Friction,
		"coupling":    l.Coupling,
		"master_load": l.MasterLoad,
		"slave_load":  l.SlaveLoad,
		"max_height":  l.MaxHeight,
	}
}

// SetParam implements dynamo.Configurable
func (l *Lift) SetParam(name string, value float64) error {
	switch name {
	case "gain":
		l.Gain = value
	case "damping":
		l.Damping = value
	case "friction":
		l.Friction = value
	case "coupling":
		l.Coupling = value
	case "master_load":
		l.MasterLoad = value
	case "slave_load":
		l.SlaveLoad = value
	case "max_height":
		l.MaxHeight = value
	default:
		return fmt.Errorf("unknown lift parameter %q", name)
	}
	return nil
}
