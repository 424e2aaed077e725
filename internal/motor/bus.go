package motor

import (
	"fmt"
	"sync"
)

// Bus writes raw, already inverted output values to motor ports.
type Bus interface {
	Write(port, value int) error
}

// MemoryBus is an in-process Bus that remembers the last value per port.
type MemoryBus struct {
	mu     sync.RWMutex
	values map[int]int
	writes int
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{values: make(map[int]int)}
}

func (b *MemoryBus) Write(port, value int) error {
	if port < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, port)
	}
	b.mu.Lock()
	b.values[port] = value
	b.writes++
	b.mu.Unlock()
	return nil
}

// Value returns the raw value last written to port.
func (b *MemoryBus) Value(port int) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.values[port]
}

// Writes returns the number of writes accepted so far.
func (b *MemoryBus) Writes() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.writes
}
