package metrics

import (
	"math"

	"github.com/san-kum/motorsync/internal/dynamo"
)

// SyncError is the RMS of the sensed gap between the two sides.
type SyncError struct {
	sumSq   float64
	samples int
}

func NewSyncError() *SyncError { return &SyncError{} }

func (s *SyncError) Name() string { return "sync_rms" }

func (s *SyncError) Observe(sample dynamo.Sample) {
	g := float64(sample.Gap())
	s.sumSq += g * g
	s.samples++
}

func (s *SyncError) Value() float64 {
	if s.samples == 0 {
		return 0
	}
	return math.Sqrt(s.sumSq / float64(s.samples))
}

func (s *SyncError) Reset() {
	s.sumSq = 0
	s.samples = 0
}

// MaxGap is the largest sensed gap seen.
type MaxGap struct {
	max int
}

func NewMaxGap() *MaxGap { return &MaxGap{} }

func (m *MaxGap) Name() string { return "max_gap" }

func (m *MaxGap) Observe(s dynamo.Sample) {
	m.max = max(m.max, abs(s.Gap()))
}

func (m *MaxGap) Value() float64 { return float64(m.max) }

func (m *MaxGap) Reset() { m.max = 0 }

// TrackingError is the mean distance of the master side from its goal.
type TrackingError struct {
	sum     float64
	samples int
}

func NewTrackingError() *TrackingError { return &TrackingError{} }

func (t *TrackingError) Name() string { return "tracking_error" }

func (t *TrackingError) Observe(s dynamo.Sample) {
	t.sum += float64(abs(s.MasterGoal - s.MasterPos))
	t.samples++
}

func (t *TrackingError) Value() float64 {
	if t.samples == 0 {
		return 0
	}
	return t.sum / float64(t.samples)
}

func (t *TrackingError) Reset() {
	t.sum = 0
	t.samples = 0
}
