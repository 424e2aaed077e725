package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/motorsync/internal/motor"
	"github.com/san-kum/motorsync/internal/physics"
)

const (
	DefaultDt       = 0.001
	DefaultDuration = 6.0
	DefaultBaud     = 115200
	DefaultSeed     = 1
)

// Duration is a time.Duration that reads and writes as "15ms" in YAML.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(v)
	return nil
}

type Config struct {
	Name   string       `yaml:"name,omitempty"`
	Motor  MotorConfig  `yaml:"motor"`
	Pair   PairConfig   `yaml:"pair"`
	Sim    SimConfig    `yaml:"sim"`
	Serial SerialConfig `yaml:"serial"`
}

type MotorConfig struct {
	Channels    int          `yaml:"channels"`
	Period      Duration     `yaml:"period"`
	RampTimeout Duration     `yaml:"ramp_timeout"`
	SetTimeout  Duration     `yaml:"set_timeout"`
	Ports       []PortConfig `yaml:"ports"`
}

type PortConfig struct {
	Port     int     `yaml:"port"`
	Inverted bool    `yaml:"inverted"`
	Ramp     float64 `yaml:"ramp"`
}

type PairConfig struct {
	Period      Duration   `yaml:"period"`
	LockTimeout Duration   `yaml:"lock_timeout"`
	Bound       int        `yaml:"bound"`
	SideLimit   int        `yaml:"side_limit"`
	Goal        int        `yaml:"goal"`
	Master      SideConfig `yaml:"master"`
	Slave       SideConfig `yaml:"slave"`
	Equalizer   GainConfig `yaml:"equalizer"`
}

// SideConfig describes one side of the pair. Sensor is the analog channel
// on the serial bridge; a raw reading r maps to (r - Zero) * Scale before
// the Filter-sample moving average.
type SideConfig struct {
	Ports  []int      `yaml:"ports"`
	Sensor int        `yaml:"sensor"`
	Zero   int        `yaml:"zero"`
	Scale  int        `yaml:"scale"`
	Filter int        `yaml:"filter"`
	Gains  GainConfig `yaml:"gains"`
}

type GainConfig struct {
	Kp          float64 `yaml:"kp"`
	Ki          float64 `yaml:"ki"`
	Kd          float64 `yaml:"kd"`
	MaxIntegral int     `yaml:"max_integral"`
	MinIntegral int     `yaml:"min_integral"`
	Tolerance   int     `yaml:"tolerance"`
}

type SimConfig struct {
	Dt         float64     `yaml:"dt"`
	Duration   float64     `yaml:"duration"`
	Seed       int64       `yaml:"seed"`
	Integrator string      `yaml:"integrator"`
	Noise      float64     `yaml:"noise"`
	Start      float64     `yaml:"start"`
	Offset     float64     `yaml:"offset"`
	Plant      PlantConfig `yaml:"plant"`
	Setpoints  []Setpoint  `yaml:"setpoints"`
}

type PlantConfig struct {
	Gain       float64 `yaml:"gain"`
	Damping    float64 `yaml:"damping"`
	Friction   float64 `yaml:"friction"`
	Coupling   float64 `yaml:"coupling"`
	MasterLoad float64 `yaml:"master_load"`
	SlaveLoad  float64 `yaml:"slave_load"`
	MaxHeight  float64 `yaml:"max_height"`
}

// Setpoint moves the pair goal at a point in simulated time (seconds).
type Setpoint struct {
	At   float64 `yaml:"at"`
	Goal int     `yaml:"goal"`
}

type SerialConfig struct {
	Device      string   `yaml:"device"`
	Baud        int      `yaml:"baud"`
	ReadTimeout Duration `yaml:"read_timeout"`
}

func DefaultConfig() *Config {
	return &Config{
		Name: "demo",
		Motor: MotorConfig{
			Channels:    motor.DefaultChannels,
			Period:      Duration(motor.DefaultPeriod),
			RampTimeout: Duration(motor.DefaultRampTimeout),
			SetTimeout:  Duration(motor.DefaultSetTimeout),
			Ports: []PortConfig{
				{Port: 2, Inverted: true, Ramp: motor.DefaultRamp},
				{Port: 3, Ramp: motor.DefaultRamp},
				{Port: 8, Ramp: motor.DefaultRamp},
				{Port: 9, Inverted: true, Ramp: motor.DefaultRamp},
			},
		},
		Pair: PairConfig{
			Period:      Duration(40 * time.Millisecond),
			LockTimeout: Duration(2 * time.Second),
			Bound:       100,
			SideLimit:   100,
			Master: SideConfig{
				Ports: []int{2, 3}, Sensor: 1, Scale: 1, Filter: 4,
				Gains: GainConfig{Kp: 0.5, Ki: 0.02, MaxIntegral: 1000, MinIntegral: -1000, Tolerance: 5},
			},
			Slave: SideConfig{
				Ports: []int{8, 9}, Sensor: 2, Scale: 1, Filter: 4,
				Gains: GainConfig{Kp: 0.5, Ki: 0.02, MaxIntegral: 1000, MinIntegral: -1000, Tolerance: 5},
			},
			Equalizer: GainConfig{Kp: 0.4, Ki: 0.02, MaxIntegral: 500, MinIntegral: -500, Tolerance: 2},
		},
		Sim: SimConfig{
			Dt:         DefaultDt,
			Duration:   DefaultDuration,
			Seed:       DefaultSeed,
			Integrator: "rk4",
			Noise:      2,
			Start:      50,
			Plant:      DefaultPlant(),
			Setpoints:  []Setpoint{{At: 0, Goal: 600}, {At: 3, Goal: 200}},
		},
		Serial: SerialConfig{
			Baud:        DefaultBaud,
			ReadTimeout: Duration(100 * time.Millisecond),
		},
	}
}

func DefaultPlant() PlantConfig {
	return PlantConfig{
		Gain:       physics.DefaultGain,
		Damping:    physics.DefaultDamping,
		Friction:   physics.DefaultFriction,
		Coupling:   physics.DefaultCoupling,
		MasterLoad: physics.DefaultMasterLoad,
		SlaveLoad:  physics.DefaultSlaveLoad,
		MaxHeight:  physics.DefaultMaxHeight,
	}
}

// Lift builds the plant model described by p.
func (p PlantConfig) Lift() *physics.Lift {
	return &physics.Lift{
		Gain:       p.Gain,
		Damping:    p.Damping,
		Friction:   p.Friction,
		Coupling:   p.Coupling,
		MasterLoad: p.MasterLoad,
		SlaveLoad:  p.SlaveLoad,
		MaxHeight:  p.MaxHeight,
	}
}

// Set overrides one plant parameter by its physics name.
func (p *PlantConfig) Set(name string, v float64) error {
	l := p.Lift()
	if err := l.SetParam(name, v); err != nil {
		return err
	}
	*p = PlantConfig{
		Gain:       l.Gain,
		Damping:    l.Damping,
		Friction:   l.Friction,
		Coupling:   l.Coupling,
		MasterLoad: l.MasterLoad,
		SlaveLoad:  l.SlaveLoad,
		MaxHeight:  l.MaxHeight,
	}
	return nil
}

// Port returns the configuration of port, if any.
func (m MotorConfig) Port(port int) (PortConfig, bool) {
	for _, p := range m.Ports {
		if p.Port == port {
			return p, true
		}
	}
	return PortConfig{}, false
}

// Limit is the largest output a side may be sent; zero means Bound.
func (p PairConfig) Limit() int {
	if p.SideLimit > 0 {
		return p.SideLimit
	}
	return p.Bound
}

// Clone returns a deep copy, so presets can be modified safely.
func (c *Config) Clone() *Config {
	out := *c
	out.Motor.Ports = append([]PortConfig(nil), c.Motor.Ports...)
	out.Pair.Master.Ports = append([]int(nil), c.Pair.Master.Ports...)
	out.Pair.Slave.Ports = append([]int(nil), c.Pair.Slave.Ports...)
	out.Sim.Setpoints = append([]Setpoint(nil), c.Sim.Setpoints...)
	return &out
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
