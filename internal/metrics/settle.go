package metrics

import "github.com/san-kum/motorsync/internal/dynamo"

// SettleTime measures, for the most recent goal, the seconds until both
// sides entered the band around it and stayed there. It is -1 while the
// sides have not settled.
type SettleTime struct {
	band      int
	goal      int
	changedAt float64
	settledAt float64
	seen      bool
}

func NewSettleTime(band int) *SettleTime {
	s := &SettleTime{band: band}
	s.Reset()
	return s
}

func (s *SettleTime) Name() string { return "settle_time" }

func (s *SettleTime) Observe(sample dynamo.Sample) {
	if !s.seen || sample.MasterGoal != s.goal {
		s.seen = true
		s.goal = sample.MasterGoal
		s.changedAt = sample.T
		s.settledAt = -1
	}
	inside := abs(sample.MasterPos-s.goal) <= s.band && abs(sample.SlavePos-s.goal) <= s.band
	switch {
	case inside && s.settledAt < 0:
		s.settledAt = sample.T
	case !inside:
		s.settledAt = -1
	}
}

func (s *SettleTime) Value() float64 {
	if s.settledAt < 0 {
		return -1
	}
	return s.settledAt - s.changedAt
}

func (s *SettleTime) Reset() {
	s.seen = false
	s.goal = 0
	s.changedAt = 0
	s.settledAt = -1
}
