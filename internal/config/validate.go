package config

import (
	"errors"
	"fmt"
	"sort"

	"go.uber.org/multierr"

	"github.com/san-kum/motorsync/internal/integrators"
	"github.com/san-kum/motorsync/internal/motor"
)

var (
	ErrNoDevice = errors.New("config: serial device not set")
	ErrNoPorts  = errors.New("config: side has no ports")
)

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	return multierr.Combine(
		c.Motor.validate(),
		c.Pair.validate(c.Motor),
		c.Sim.validate(),
	)
}

// ValidateSerial checks the settings needed to drive real hardware.
func (c *Config) ValidateSerial() error {
	var err error
	if c.Serial.Device == "" {
		err = multierr.Append(err, ErrNoDevice)
	}
	if c.Serial.Baud <= 0 {
		err = multierr.Append(err, fmt.Errorf("serial: baud %d must be positive", c.Serial.Baud))
	}
	if c.Serial.ReadTimeout <= 0 {
		err = multierr.Append(err, fmt.Errorf("serial: read_timeout %v must be positive", c.Serial.ReadTimeout.Std()))
	}
	for _, side := range []struct {
		name string
		cfg  SideConfig
	}{{"master", c.Pair.Master}, {"slave", c.Pair.Slave}} {
		if side.cfg.Sensor < 1 {
			err = multierr.Append(err, fmt.Errorf("pair.%s: sensor channel %d must be >= 1", side.name, side.cfg.Sensor))
		}
	}
	return err
}

func (m MotorConfig) validate() error {
	var err error
	if m.Channels < 1 {
		err = multierr.Append(err, fmt.Errorf("motor: channels %d must be >= 1", m.Channels))
	}
	if m.Period <= 0 {
		err = multierr.Append(err, fmt.Errorf("motor: period %v must be positive", m.Period.Std()))
	}
	if m.RampTimeout < 0 {
		err = multierr.Append(err, fmt.Errorf("motor: ramp timeout %v must not be negative", m.RampTimeout.Std()))
	}
	if m.SetTimeout <= 0 {
		err = multierr.Append(err, fmt.Errorf("motor: set timeout %v must be positive", m.SetTimeout.Std()))
	}

	seen := make(map[int]bool)
	for _, p := range m.Ports {
		if p.Port < 1 || p.Port > m.Channels {
			err = multierr.Append(err, fmt.Errorf("motor.ports: %w: %d", motor.ErrInvalidPort, p.Port))
		}
		if !(p.Ramp > 0) {
			err = multierr.Append(err, fmt.Errorf("motor.ports[%d]: %w: %v", p.Port, motor.ErrInvalidRamp, p.Ramp))
		}
		if seen[p.Port] {
			err = multierr.Append(err, fmt.Errorf("motor.ports: port %d configured twice", p.Port))
		}
		seen[p.Port] = true
	}
	return err
}

func (p PairConfig) validate(m MotorConfig) error {
	var err error
	if p.Period <= 0 {
		err = multierr.Append(err, fmt.Errorf("pair: period %v must be positive", p.Period.Std()))
	}
	if p.LockTimeout < 0 {
		err = multierr.Append(err, fmt.Errorf("pair: lock timeout %v must not be negative", p.LockTimeout.Std()))
	}
	if p.Bound < 1 || p.Bound > motor.MaxOutput {
		err = multierr.Append(err, fmt.Errorf("pair: bound %d outside [1, %d]", p.Bound, motor.MaxOutput))
	}
	if p.SideLimit < 0 || p.SideLimit > motor.MaxOutput {
		err = multierr.Append(err, fmt.Errorf("pair: side limit %d outside [0, %d]", p.SideLimit, motor.MaxOutput))
	}

	owner := make(map[int]string)
	for _, side := range []struct {
		name string
		cfg  SideConfig
	}{{"master", p.Master}, {"slave", p.Slave}} {
		if len(side.cfg.Ports) == 0 {
			err = multierr.Append(err, fmt.Errorf("pair.%s: %w", side.name, ErrNoPorts))
		}
		for _, port := range side.cfg.Ports {
			if _, ok := m.Port(port); !ok {
				err = multierr.Append(err, fmt.Errorf("pair.%s: port %d is not configured under motor.ports", side.name, port))
			}
			if prev, ok := owner[port]; ok {
				err = multierr.Append(err, fmt.Errorf("pair.%s: port %d already drives %s", side.name, port, prev))
			}
			owner[port] = side.name
		}
		if side.cfg.Filter < 0 {
			err = multierr.Append(err, fmt.Errorf("pair.%s: filter window %d must not be negative", side.name, side.cfg.Filter))
		}
		err = multierr.Append(err, side.cfg.Gains.validate("pair."+side.name))
	}
	return multierr.Append(err, p.Equalizer.validate("pair.equalizer"))
}

func (g GainConfig) validate(name string) error {
	var err error
	if g.MinIntegral > g.MaxIntegral {
		err = multierr.Append(err, fmt.Errorf("%s: min integral %d above max integral %d", name, g.MinIntegral, g.MaxIntegral))
	}
	if g.Tolerance < 0 {
		err = multierr.Append(err, fmt.Errorf("%s: tolerance %d must not be negative", name, g.Tolerance))
	}
	return err
}

func (s SimConfig) validate() error {
	var err error
	if s.Dt <= 0 {
		err = multierr.Append(err, fmt.Errorf("sim: dt must be positive, got %f", s.Dt))
	}
	if s.Duration <= 0 {
		err = multierr.Append(err, fmt.Errorf("sim: duration must be positive, got %f", s.Duration))
	}
	if s.Noise < 0 {
		err = multierr.Append(err, fmt.Errorf("sim: noise %v must not be negative", s.Noise))
	}
	if _, ierr := integrators.New(s.Integrator); ierr != nil {
		err = multierr.Append(err, fmt.Errorf("sim: %w", ierr))
	}
	if perr := s.Plant.Lift().Validate(); perr != nil {
		err = multierr.Append(err, fmt.Errorf("sim.plant: %w", perr))
	}
	if !sort.SliceIsSorted(s.Setpoints, func(i, j int) bool { return s.Setpoints[i].At < s.Setpoints[j].At }) {
		err = multierr.Append(err, errors.New("sim.setpoints: must be ordered by time"))
	}
	return err
}
