// Package recorder turns controller cycles into samples, scores them with
// metrics and keeps them for storage and live display.
package recorder

import (
	"context"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/san-kum/motorsync/internal/dynamo"
	"github.com/san-kum/motorsync/internal/masterslave"
	"github.com/san-kum/motorsync/internal/task"
)

// Source supplies what a cycle does not carry. Applied and Heights are
// optional.
type Source struct {
	Start   time.Time
	Applied func() []int
	Heights func() (master, slave float64)
}

type Recorder struct {
	src Source

	mu        sync.Mutex
	samples   []dynamo.Sample
	limit     int
	metrics   []dynamo.Metric
	observers []dynamo.Observer
	latest    dynamo.Sample
	count     int
}

type Option func(*Recorder)

func WithMetrics(ms ...dynamo.Metric) Option {
	return func(r *Recorder) { r.metrics = append(r.metrics, ms...) }
}

func WithObserver(o dynamo.Observer) Option {
	return func(r *Recorder) { r.observers = append(r.observers, o) }
}

// WithLimit keeps only the last n samples. Metrics still see every sample.
func WithLimit(n int) Option {
	return func(r *Recorder) { r.limit = n }
}

func New(src Source, opts ...Option) *Recorder {
	r := &Recorder{src: src}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var _ masterslave.Observer = (*Recorder)(nil)

// OnCycle records a completed controller cycle.
func (r *Recorder) OnCycle(c masterslave.Cycle) {
	r.Record(r.sample(c, c.At))
}

func (r *Recorder) sample(c masterslave.Cycle, at time.Time) dynamo.Sample {
	s := dynamo.Sample{
		T:          at.Sub(r.src.Start).Seconds(),
		Mode:       c.Mode.String(),
		MasterGoal: c.MasterGoal,
		SlaveGoal:  c.SlaveGoal,
		MasterPos:  c.MasterPos,
		SlavePos:   c.SlavePos,
		Correction: c.Correction,
		MasterOut:  c.MasterOut,
		SlaveOut:   c.SlaveOut,
	}
	if r.src.Applied != nil {
		s.Applied = r.src.Applied()
	}
	if r.src.Heights != nil {
		s.MasterHeight, s.SlaveHeight = r.src.Heights()
	}
	return s
}

// Record appends s and feeds it to every metric and observer.
func (r *Recorder) Record(s dynamo.Sample) {
	r.mu.Lock()
	r.samples = append(r.samples, s)
	if r.limit > 0 && len(r.samples) > r.limit {
		r.samples = append(r.samples[:0], r.samples[len(r.samples)-r.limit:]...)
	}
	for _, m := range r.metrics {
		m.Observe(s)
	}
	r.latest = s
	r.count++
	observers := r.observers
	r.mu.Unlock()

	for _, o := range observers {
		o.OnSample(s)
	}
}

// Samples returns a copy of the retained samples.
func (r *Recorder) Samples() []dynamo.Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]dynamo.Sample(nil), r.samples...)
}

// Latest returns the most recent sample and whether there is one.
func (r *Recorder) Latest() (dynamo.Sample, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.latest, r.count > 0
}

// Count is the number of samples recorded, including dropped ones.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

func (r *Recorder) Metrics() map[string]float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]float64, len(r.metrics))
	for _, m := range r.metrics {
		out[m.Name()] = m.Value()
	}
	return out
}

// Reset drops all samples and resets the metrics.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = nil
	r.latest = dynamo.Sample{}
	r.count = 0
	for _, m := range r.metrics {
		m.Reset()
	}
}

// Poller samples a controller at a fixed interval instead of on every
// cycle, repeating the last cycle with the current port outputs.
type Poller struct {
	task *task.Periodic
}

// Last is satisfied by *masterslave.Controller.
type Last interface {
	Last() masterslave.Cycle
}

func (r *Recorder) Poll(src Last, interval time.Duration, now func() time.Time, log logr.Logger) *Poller {
	if now == nil {
		now = time.Now
	}
	fn := func() { r.Record(r.sample(src.Last(), now())) }
	return &Poller{task: task.New("recorder", interval, fn, log)}
}

func (p *Poller) Start(ctx context.Context) bool { return p.task.Start(ctx) }

func (p *Poller) Stop() { p.task.Stop() }
