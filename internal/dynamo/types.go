package dynamo

import (
	"fmt"
	"math"
)

type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

type Control []float64

type System interface {
	Derive(x State, u Control, t float64) State
	StateDim() int
	ControlDim() int
}

type Integrator interface {
	Step(dyn System, x State, u Control, t float64, dt float64) State
}

// Sample is one row of a lift run. Heights are the plant's true positions
// and stay zero on hardware; Applied is indexed by port-1.
type Sample struct {
	T            float64
	Mode         string
	MasterGoal   int
	SlaveGoal    int
	MasterPos    int
	SlavePos     int
	MasterHeight float64
	SlaveHeight  float64
	Correction   int
	MasterOut    int
	SlaveOut     int
	Applied      []int
}

// Gap is the sensed distance between the two sides.
func (s Sample) Gap() int {
	return s.MasterPos - s.SlavePos
}

type Metric interface {
	Name() string
	Observe(s Sample)
	Value() float64
	Reset()
}

type Observer interface {
	OnSample(s Sample)
}

type ObserverFunc func(s Sample)

func (f ObserverFunc) OnSample(s Sample) { f(s) }

type Configurable interface {
	GetParams() map[string]float64
	SetParam(name string, value float64) error
}

type Result struct {
	Samples []Sample
	Metrics map[string]float64
	Steps   int
	Cycles  int
	Skipped uint64
	Errors  []error
}

// Final returns the last sample, or the zero Sample for an empty run.
func (r *Result) Final() Sample {
	if r == nil || len(r.Samples) == 0 {
		return Sample{}
	}
	return r.Samples[len(r.Samples)-1]
}

type SimError struct {
	Time    float64
	Step    int
	Message string
}

func (e SimError) Error() string {
	return fmt.Sprintf("step %d (t=%.4f): %s", e.Step, e.Time, e.Message)
}
