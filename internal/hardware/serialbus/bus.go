// Package serialbus drives a lift controller board over a serial line.
//
// The board speaks a line protocol:
//
//	M <port> <value>        set a motor output, no reply
//	S                       request status
//	S <a1> ... <aN> L <sw>  status reply: analog channels 1..N and a
//	                        limit switch bitmask
//
// Replies arrive asynchronously and are matched to no request: the latest
// complete line wins.
//
// Switch bits are master bottom, master top, slave bottom, slave top.
package serialbus

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"
	"go.bug.st/serial"
	"go.uber.org/multierr"

	"github.com/san-kum/motorsync/internal/config"
	"github.com/san-kum/motorsync/internal/filter"
	"github.com/san-kum/motorsync/internal/lift"
	"github.com/san-kum/motorsync/internal/motor"
	"github.com/san-kum/motorsync/internal/task"
)

const (
	MasterBottom = iota
	MasterTop
	SlaveBottom
	SlaveTop
)

var (
	ErrBadStatus = errors.New("serialbus: malformed status line")
	ErrStarted   = errors.New("serialbus: reader already started")
)

// maxLine bounds a status line; longer input is dropped as noise.
const maxLine = 512

// Bus is a motor.Bus backed by the board. Status replies are read by a
// dedicated goroutine started with Start, so Write never waits on a read.
type Bus struct {
	log logr.Logger

	io     sync.Mutex
	port   io.ReadWriteCloser
	active map[int]bool

	started atomic.Bool
	closing atomic.Bool
	done    chan struct{}

	state    sync.RWMutex
	analog   []int
	switches uint64
	replies  uint64
	bad      uint64
}

var _ motor.Bus = (*Bus)(nil)

// Open connects to cfg.Device. A positive read timeout is required so the
// reader can notice Close and context cancellation.
func Open(cfg config.SerialConfig, log logr.Logger) (*Bus, error) {
	if cfg.ReadTimeout.Std() <= 0 {
		return nil, errors.Errorf("serial read timeout %v must be positive", cfg.ReadTimeout.Std())
	}
	p, err := serial.Open(cfg.Device, &serial.Mode{BaudRate: cfg.Baud})
	if err != nil {
		return nil, errors.Wrapf(err, "opening serial device %s", cfg.Device)
	}
	if err := p.SetReadTimeout(cfg.ReadTimeout.Std()); err != nil {
		return nil, multierr.Combine(errors.Wrap(err, "setting read timeout"), p.Close())
	}
	return New(p, log), nil
}

// New wraps an already open port.
func New(port io.ReadWriteCloser, log logr.Logger) *Bus {
	return &Bus{
		log:    log.WithName("serialbus"),
		port:   port,
		active: make(map[int]bool),
		done:   make(chan struct{}),
	}
}

func (b *Bus) Write(port, value int) error {
	b.io.Lock()
	defer b.io.Unlock()
	if _, err := fmt.Fprintf(b.port, "M %d %d\n", port, value); err != nil {
		return errors.Wrapf(err, "writing port %d", port)
	}
	b.active[port] = value != 0
	return nil
}

// Poll requests a status line. The reply is applied by the reader.
func (b *Bus) Poll() error {
	b.io.Lock()
	defer b.io.Unlock()
	if _, err := io.WriteString(b.port, "S\n"); err != nil {
		return errors.Wrap(err, "requesting status")
	}
	return nil
}

// Start launches the status reader. It runs until ctx is done, the port
// fails or Close is called.
func (b *Bus) Start(ctx context.Context) error {
	if !b.started.CompareAndSwap(false, true) {
		return ErrStarted
	}
	go b.readLoop(ctx)
	return nil
}

func (b *Bus) readLoop(ctx context.Context) {
	defer close(b.done)
	buf := make([]byte, 128)
	var pending []byte
	for ctx.Err() == nil {
		n, err := b.port.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			for {
				i := bytes.IndexByte(pending, '\n')
				if i < 0 {
					break
				}
				b.handle(string(pending[:i]))
				pending = pending[i+1:]
			}
			if len(pending) > maxLine {
				b.log.V(1).Info("dropping overlong status line", "bytes", len(pending))
				pending = pending[:0]
			}
		}
		if err != nil {
			if !b.closing.Load() {
				b.log.Error(err, "status reader stopped")
			}
			return
		}
	}
}

func (b *Bus) handle(line string) {
	analog, sw, err := parseStatus(line)
	b.state.Lock()
	defer b.state.Unlock()
	if err != nil {
		b.bad++
		b.log.V(1).Info("bad status line", "err", err.Error())
		return
	}
	b.analog, b.switches = analog, sw
	b.replies++
}

func parseStatus(line string) ([]int, uint64, error) {
	fields := strings.Fields(line)
	if len(fields) < 3 || fields[0] != "S" || fields[len(fields)-2] != "L" {
		return nil, 0, errors.Wrapf(ErrBadStatus, "%q", strings.TrimSpace(line))
	}
	analog := make([]int, 0, len(fields)-3)
	for _, f := range fields[1 : len(fields)-2] {
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, 0, errors.Wrapf(ErrBadStatus, "analog value %q", f)
		}
		analog = append(analog, v)
	}
	sw, err := strconv.ParseUint(fields[len(fields)-1], 10, 64)
	if err != nil {
		return nil, 0, errors.Wrapf(ErrBadStatus, "switch mask %q", fields[len(fields)-1])
	}
	return analog, sw, nil
}

// Analog returns the last reading of 1-based channel ch, or 0 if the board
// has not reported it.
func (b *Bus) Analog(ch int) int {
	b.state.RLock()
	defer b.state.RUnlock()
	if ch < 1 || ch > len(b.analog) {
		return 0
	}
	return b.analog[ch-1]
}

func (b *Bus) Switch(bit int) bool {
	b.state.RLock()
	defer b.state.RUnlock()
	return b.switches&(1<<uint(bit)) != 0
}

// Replies counts status lines applied; Rejected counts malformed ones.
func (b *Bus) Replies() uint64 {
	b.state.RLock()
	defer b.state.RUnlock()
	return b.replies
}

func (b *Bus) Rejected() uint64 {
	b.state.RLock()
	defer b.state.RUnlock()
	return b.bad
}

// Poller requests status every period until stopped.
func (b *Bus) Poller(period time.Duration) *task.Periodic {
	return task.New("serial-poll", period, func() {
		if err := b.Poll(); err != nil {
			b.log.V(1).Info("poll failed", "err", err.Error())
		}
	}, b.log)
}

// Sensors builds calibrated lift sensors and limit switches from the
// channels named in cfg.
func (b *Bus) Sensors(cfg config.PairConfig) lift.Sensors {
	side := func(sc config.SideConfig) *filter.Calibrated {
		ch := sc.Sensor
		return filter.NewCalibrated(func() int { return b.Analog(ch) }, max(sc.Filter, 1), sc.Zero, sc.Scale)
	}
	sw := func(bit int) func() bool { return func() bool { return b.Switch(bit) } }
	return lift.Sensors{
		Master:         side(cfg.Master),
		Slave:          side(cfg.Slave),
		MasterSwitches: lift.Switches{Bottom: sw(MasterBottom), Top: sw(MasterTop)},
		SlaveSwitches:  lift.Switches{Bottom: sw(SlaveBottom), Top: sw(SlaveTop)},
	}
}

// Close zeroes every port left running, closes the line and waits for the
// reader to exit.
func (b *Bus) Close() error {
	b.io.Lock()
	var ports []int
	for p, on := range b.active {
		if on {
			ports = append(ports, p)
		}
	}
	b.io.Unlock()
	sort.Ints(ports)

	var err error
	for _, p := range ports {
		err = multierr.Append(err, b.Write(p, 0))
	}
	b.closing.Store(true)
	b.io.Lock()
	err = multierr.Append(err, errors.Wrap(b.port.Close(), "closing serial port"))
	b.io.Unlock()
	if b.started.Load() {
		<-b.done
	}
	return err
}
