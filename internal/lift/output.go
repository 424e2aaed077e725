package lift

import (
	"github.com/san-kum/motorsync/internal/control"
	"github.com/san-kum/motorsync/internal/motor"
)

// Switches reports limit switch state. A nil func reads as open.
type Switches struct {
	Bottom func() bool
	Top    func() bool
}

func (s Switches) atBottom() bool { return s.Bottom != nil && s.Bottom() }
func (s Switches) atTop() bool    { return s.Top != nil && s.Top() }

// SideOutput drives every port of one side with the same value, clamped to
// the side limit. A closed limit switch blocks motion into it.
type SideOutput struct {
	mgr      *motor.Manager
	ports    []int
	limit    int
	switches Switches
}

var _ control.Output = (*SideOutput)(nil)

func NewSideOutput(mgr *motor.Manager, ports []int, limit int, switches Switches) *SideOutput {
	if limit <= 0 || limit > motor.MaxOutput {
		limit = motor.MaxOutput
	}
	return &SideOutput{mgr: mgr, ports: append([]int(nil), ports...), limit: limit, switches: switches}
}

func (s *SideOutput) Write(value int, immediate bool) {
	value = s.clamp(value)
	for _, port := range s.ports {
		s.mgr.Set(port, value, immediate)
	}
}

func (s *SideOutput) clamp(value int) int {
	switch {
	case value > s.limit:
		value = s.limit
	case value < -s.limit:
		value = -s.limit
	}
	if (value < 0 && s.switches.atBottom()) || (value > 0 && s.switches.atTop()) {
		return 0
	}
	return value
}

// Halt writes zero to every port immediately, bypassing the ramp.
func (s *SideOutput) Halt() {
	for _, port := range s.ports {
		s.mgr.Set(port, 0, true)
	}
}

// Ports returns the ports this side drives.
func (s *SideOutput) Ports() []int {
	return append([]int(nil), s.ports...)
}
