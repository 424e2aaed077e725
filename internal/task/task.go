// Package task runs work on a fixed period in its own goroutine.
package task

import (
	"context"
	"sync"
	"time"

	"github.com/go-logr/logr"
)

// Periodic calls a function once per period until stopped.
type Periodic struct {
	name   string
	period time.Duration
	fn     func()
	log    logr.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	cycles  uint64
	running bool
}

func New(name string, period time.Duration, fn func(), log logr.Logger) *Periodic {
	return &Periodic{
		name:   name,
		period: period,
		fn:     fn,
		log:    log.WithValues("task", name),
	}
}

// Start launches the task. It returns false if the task is already running
// or the period is not positive.
func (p *Periodic) Start(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running || p.period <= 0 {
		return false
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true

	go p.loop(ctx, p.done)
	p.log.Info("started", "period", p.period)
	return true
}

func (p *Periodic) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.fn()
			p.mu.Lock()
			p.cycles++
			p.mu.Unlock()
		}
	}
}

// Stop cancels the task and waits for the in-flight cycle to finish.
// Stopping a task that is not running is a no-op.
func (p *Periodic) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	cancel, done := p.cancel, p.done
	p.running = false
	p.mu.Unlock()

	cancel()
	<-done
	p.log.Info("stopped")
}

func (p *Periodic) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Cycles reports how many times the function has run.
func (p *Periodic) Cycles() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cycles
}
