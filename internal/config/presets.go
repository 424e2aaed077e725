package config

import (
	"sort"
	"time"
)

// Presets are complete configurations for known lifts.
var Presets = map[string]*Config{
	"demo":   DefaultConfig(),
	"vulcan": vulcan(),
	"dios":   dios(),
}

// vulcan is a six-motor potentiometer lift. The pots read 0-4095 and the
// right pot is mounted reversed. No integral term, so it sags under load.
func vulcan() *Config {
	cfg := DefaultConfig()
	cfg.Name = "vulcan"
	cfg.Motor.Ports = []PortConfig{
		{Port: 1, Inverted: true, Ramp: 0.25},
		{Port: 4, Inverted: true, Ramp: 0.25},
		{Port: 7, Ramp: 0.25},
		{Port: 6, Ramp: 0.25},
		{Port: 5, Inverted: true, Ramp: 0.25},
		{Port: 8, Ramp: 0.25},
	}
	gains := GainConfig{Kp: 0.65, MaxIntegral: 300, MinIntegral: -200, Tolerance: 5}
	cfg.Pair = PairConfig{
		Period:      Duration(40 * time.Millisecond),
		LockTimeout: Duration(2 * time.Second),
		Bound:       127,
		SideLimit:   100,
		Master:      SideConfig{Ports: []int{1, 4, 7}, Sensor: 1, Scale: 1, Filter: 5, Gains: gains},
		Slave:       SideConfig{Ports: []int{6, 5, 8}, Sensor: 2, Zero: 4095, Scale: -1, Filter: 5, Gains: gains},
		Equalizer:   GainConfig{Kp: 0.65, MaxIntegral: 50, MinIntegral: -50, Tolerance: 5},
	}
	cfg.Sim.Plant.Gain = 30
	cfg.Sim.Plant.MaxHeight = 1800
	cfg.Sim.Setpoints = []Setpoint{{At: 0, Goal: 1200}, {At: 4, Goal: 400}}
	cfg.Sim.Duration = 8
	return cfg
}

// dios is an encoder lift with a full PID on each side.
func dios() *Config {
	cfg := DefaultConfig()
	cfg.Name = "dios"
	cfg.Motor.Ports = []PortConfig{
		{Port: 8, Inverted: true, Ramp: 0.5},
		{Port: 6, Inverted: true, Ramp: 0.5},
		{Port: 10, Inverted: true, Ramp: 0.5},
		{Port: 9, Inverted: true, Ramp: 0.5},
		{Port: 7, Inverted: true, Ramp: 0.5},
		{Port: 1, Ramp: 0.5},
	}
	gains := GainConfig{Kp: 1.0, Ki: 0.1, Kd: 0.001, MaxIntegral: 100, MinIntegral: -100, Tolerance: 10}
	cfg.Pair = PairConfig{
		Period:      Duration(40 * time.Millisecond),
		LockTimeout: Duration(2 * time.Second),
		Bound:       127,
		Master:      SideConfig{Ports: []int{9, 7, 1}, Sensor: 4, Scale: 1, Filter: 1, Gains: gains},
		Slave:       SideConfig{Ports: []int{8, 6, 10}, Sensor: 3, Scale: 1, Filter: 1, Gains: gains},
		Equalizer:   GainConfig{Kp: 0.5, Ki: 0.02, MaxIntegral: 100, MinIntegral: -100, Tolerance: 4},
	}
	cfg.Sim.Noise = 0.5
	cfg.Sim.Setpoints = []Setpoint{{At: 0, Goal: 800}}
	return cfg
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(name string) *Config {
	cfg, ok := Presets[name]
	if !ok {
		return nil
	}
	return cfg.Clone()
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
