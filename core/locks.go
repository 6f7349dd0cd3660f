package core

import (
	"context"
	"sync"

	"github.com/Comcast/axon/neuron"
)

// LockManager holds neuron locks for ExpressionsBlocks.  Locks are
// reentrant for the processor that holds them, and a set of locks is
// taken all at once or not at all.
type LockManager struct {
	mu      sync.Mutex
	held    map[neuron.Neuron]*heldLock
	changed chan struct{}
}

type heldLock struct {
	owner *Processor
	count int
}

func NewLockManager() *LockManager {
	return &LockManager{
		held:    make(map[neuron.Neuron]*heldLock, 8),
		changed: make(chan struct{}),
	}
}

func (lm *LockManager) available(p *Processor, ns []neuron.Neuron) bool {
	for _, n := range ns {
		if h, have := lm.held[n]; have && h.owner != p {
			return false
		}
	}
	return true
}

// Lock waits until p can hold every one of the given neurons.
func (lm *LockManager) Lock(ctx context.Context, p *Processor, ns []neuron.Neuron) error {
	for {
		if err := p.checkStop(ctx); err != nil {
			return err
		}
		lm.mu.Lock()
		if lm.available(p, ns) {
			for _, n := range ns {
				h, have := lm.held[n]
				if !have {
					h = &heldLock{owner: p}
					lm.held[n] = h
				}
				h.count++
			}
			lm.mu.Unlock()
			return nil
		}
		changed := lm.changed
		lm.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return ErrProcessorStopped
		}
	}
}

// Unlock releases one hold on each of the given neurons.  Neurons p
// doesn't hold are ignored.
func (lm *LockManager) Unlock(p *Processor, ns []neuron.Neuron) {
	lm.mu.Lock()
	for _, n := range ns {
		if h, have := lm.held[n]; have && h.owner == p {
			if h.count--; h.count <= 0 {
				delete(lm.held, n)
			}
		}
	}
	lm.broadcast()
	lm.mu.Unlock()
}

// Holder returns the processor that holds n (or nil).
func (lm *LockManager) Holder(n neuron.Neuron) *Processor {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if h, have := lm.held[n]; have {
		return h.owner
	}
	return nil
}

// ReleaseAll drops every lock.
func (lm *LockManager) ReleaseAll() {
	lm.mu.Lock()
	clear(lm.held)
	lm.broadcast()
	lm.mu.Unlock()
}

// Wake makes waiters check again (for example, after a stop request).
func (lm *LockManager) Wake() {
	lm.mu.Lock()
	lm.broadcast()
	lm.mu.Unlock()
}

// broadcast wakes every waiter.  Caller holds lm.mu.
func (lm *LockManager) broadcast() {
	close(lm.changed)
	lm.changed = make(chan struct{})
}
