/* Copyright 2019 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package core

import (
	"context"
	"log"
	"sync"
	"sync/atomic"

	"github.com/Comcast/axon/neuron"
)

// DefaultMaxConcurrent is the default limit on running processors.
var DefaultMaxConcurrent = 8

// runTree tracks a root processor and everything split from it.  It
// is done once the root has finished and every processor in it has
// been retired.
type runTree struct {
	mu      sync.Mutex
	live    int
	ended   bool
	done    chan struct{}
	results *SplitResultsDict

	// stopped is set when any processor in the tree was stopped.
	stopped atomic.Bool
}

func newRunTree() *runTree {
	return &runTree{
		done: make(chan struct{}),
	}
}

func (t *runTree) enter() {
	t.mu.Lock()
	t.live++
	t.mu.Unlock()
}

// leave retires one processor.  The root brings the results.
func (t *runTree) leave(results *SplitResultsDict, root bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.live--
	if root {
		t.results = results
		t.ended = true
	}
	if t.ended && t.live == 0 {
		close(t.done)
	}
}

type suspension struct {
	ch chan struct{}
}

// ThreadManager schedules processors onto goroutines.  At most
// MaxConcurrent run at once.  Blocked and suspended processors don't
// count.
type ThreadManager struct {
	MaxConcurrent int

	// Verbose turns on Logf output.
	Verbose bool

	Values  ValueMapper
	Locks   *LockManager
	Factory *ProcessorFactory

	// OnSplit, if not nil, is called before a split's clones are
	// queued.
	OnSplit func(*SplitEvent)

	// OnFinished, if not nil, is called when a root processor and
	// all of its descendants are done.
	OnFinished func(p *Processor, results *SplitResultsDict)

	mu        sync.Mutex
	running   map[*Processor]struct{}
	blocked   map[*Processor]struct{}
	suspended map[*Processor]*suspension
	waits     map[neuron.Neuron]*suspension
	queue     []*Processor
	heads     map[*HeadData]struct{}

	// alive counts processors that are queued, running, blocked,
	// or suspended.
	alive int
	idle  chan struct{}

	// unblock is closed (and replaced) by EndDeadLock.
	unblock chan struct{}

	stopRequested  atomic.Bool
	killBlockCount int
}

func NewThreadManager(maxConcurrent int) *ThreadManager {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	return &ThreadManager{
		MaxConcurrent: maxConcurrent,
		Locks:         NewLockManager(),
		Factory:       NewProcessorFactory(DefaultPoolSize),
		running:       make(map[*Processor]struct{}, maxConcurrent),
		blocked:       make(map[*Processor]struct{}),
		suspended:     make(map[*Processor]*suspension),
		waits:         make(map[neuron.Neuron]*suspension),
		heads:         make(map[*HeadData]struct{}),
		unblock:       make(chan struct{}),
	}
}

func (tm *ThreadManager) Logf(format string, args ...interface{}) {
	if tm.Verbose {
		log.Printf(format, args...)
	}
}

func (tm *ThreadManager) Errorf(format string, args ...interface{}) {
	log.Printf("ERROR "+format, args...)
}

// NewProcessor returns a fresh root processor.
func (tm *ThreadManager) NewProcessor() *Processor {
	p := tm.Factory.Get()
	p.tm = tm
	return p
}

func (tm *ThreadManager) newClone(src *Processor) *Processor {
	p := tm.NewProcessor()
	p.clone = true
	p.ctx = src.ctx
	p.tree = src.tree
	if src.PreventKill {
		p.PreventKill = true
		tm.mu.Lock()
		tm.killBlockCount++
		tm.mu.Unlock()
	}
	return p
}

// Counts returns the number of running, blocked, suspended, and
// queued processors.
func (tm *ThreadManager) Counts() (running, blocked, suspended, queued int) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return len(tm.running), len(tm.blocked), len(tm.suspended), len(tm.queue)
}

// ActiveHeads returns the number of splits that haven't joined.
func (tm *ThreadManager) ActiveHeads() int {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return len(tm.heads)
}

func (tm *ThreadManager) addHead(h *HeadData) {
	tm.mu.Lock()
	tm.heads[h] = struct{}{}
	tm.mu.Unlock()
}

func (tm *ThreadManager) removeHead(h *HeadData) {
	tm.mu.Lock()
	delete(tm.heads, h)
	tm.mu.Unlock()
}

// Start queues a root processor.
func (tm *ThreadManager) Start(ctx context.Context, p *Processor) {
	p.tm = tm
	p.ctx = ctx
	if p.tree == nil {
		p.tree = newRunTree()
	}
	tm.enqueue(p)
}

func (tm *ThreadManager) enqueue(p *Processor) {
	if p.tree != nil {
		p.tree.enter()
	}
	tm.mu.Lock()
	tm.alive++
	tm.queue = append(tm.queue, p)
	tm.dispatch()
	tm.mu.Unlock()
}

// dispatch starts queued processors while there's room.  Caller
// holds tm.mu.
func (tm *ThreadManager) dispatch() {
	for len(tm.running) < tm.MaxConcurrent && 0 < len(tm.queue) {
		p := tm.queue[0]
		tm.queue[0] = nil
		tm.queue = tm.queue[1:]
		tm.running[p] = struct{}{}
		go tm.run(p)
	}
}

// run drives p (and whatever joins give it) to the end.
func (tm *ThreadManager) run(p *Processor) {
	if p.ctx == nil {
		p.ctx = context.Background()
	}
	for {
		ctx := p.ctx
		stopping := false
		if err := p.safeDrive(ctx); err != nil {
			if isStructural(err) && p.checkStop(ctx) != nil {
				stopping = tm.halted(ctx, p)
			} else {
				tm.Errorf("processor %d halted: %v", p.serial, err)
			}
			p.abandon()
			p.State = StateTerminated
		}
		if !tm.finish(p, stopping) {
			return
		}
	}
}

// done retires p.  When root is true, p's tree is finished.
func (tm *ThreadManager) done(p *Processor, root bool) {
	p.unfreezeAll()
	var results *SplitResultsDict
	if root {
		results = p.SplitResults
		p.SplitResults = NewSplitResultsDict()
		if tm.OnFinished != nil {
			tm.OnFinished(p, results)
		}
	}

	tm.mu.Lock()
	delete(tm.running, p)
	if p.PreventKill {
		tm.killBlockCount--
	}
	tm.alive--
	if tm.stopRequested.Load() && tm.alive-tm.killBlockCount <= 0 {
		tm.stopRequested.Store(false)
	}
	if tm.alive == 0 && tm.idle != nil {
		close(tm.idle)
		tm.idle = nil
	}
	tm.dispatch()
	tm.mu.Unlock()

	// Once p has left its tree, only clones are ours to touch.
	tree, clone := p.tree, p.clone
	if tree != nil {
		tree.leave(results, root)
	}
	if clone {
		tm.Factory.Recycle(p)
	}
}

// Wait blocks until no processors are alive.
func (tm *ThreadManager) Wait(ctx context.Context) error {
	tm.mu.Lock()
	if tm.alive == 0 {
		tm.mu.Unlock()
		return nil
	}
	if tm.idle == nil {
		tm.idle = make(chan struct{})
	}
	idle := tm.idle
	tm.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SolveBlocked starts p and waits for it and all of its descendants.
// A stopped tree returns what results it had along with
// ErrProcessorStopped.
func (tm *ThreadManager) SolveBlocked(ctx context.Context, p *Processor) (*SplitResultsDict, error) {
	t := newRunTree()
	p.tree = t
	tm.Start(ctx, p)
	return tm.await(ctx, t)
}

func (tm *ThreadManager) await(ctx context.Context, t *runTree) (*SplitResultsDict, error) {
	tm.mu.Lock()
	unblock := tm.unblock
	tm.mu.Unlock()

	select {
	case <-t.done:
		if t.stopped.Load() {
			return t.results, ErrProcessorStopped
		}
		return t.results, nil
	case <-unblock:
		return nil, ErrDeadLockEnded
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// CallBlocked runs callee in the caller's goroutine while the caller
// waits.  The caller gives its running slot to the callee, and it
// takes a slot back when the callee's tree is done, even if that
// goes over MaxConcurrent.
func (tm *ThreadManager) CallBlocked(ctx context.Context, caller, callee *Processor) (*SplitResultsDict, error) {
	t := newRunTree()
	callee.tm = tm
	callee.ctx = ctx
	callee.tree = t
	if caller.PreventKill {
		callee.PreventKill = true
	}

	tm.mu.Lock()
	delete(tm.running, caller)
	tm.blocked[caller] = struct{}{}
	tm.running[callee] = struct{}{}
	t.enter()
	tm.alive++
	if callee.PreventKill {
		tm.killBlockCount++
	}
	tm.mu.Unlock()

	tm.run(callee)

	results, err := tm.await(ctx, t)

	tm.mu.Lock()
	delete(tm.blocked, caller)
	tm.running[caller] = struct{}{}
	tm.mu.Unlock()

	if err == nil {
		err = caller.checkStop(ctx)
	}
	return results, err
}

// Suspend parks p until Awake is called with the same key.  A
// suspended processor doesn't count against MaxConcurrent.
func (tm *ThreadManager) Suspend(ctx context.Context, p *Processor, key neuron.Neuron) error {
	tm.mu.Lock()
	s, have := tm.waits[key]
	if !have {
		s = &suspension{ch: make(chan struct{})}
		tm.waits[key] = s
	}
	delete(tm.running, p)
	tm.suspended[p] = s
	unblock := tm.unblock
	tm.dispatch()
	tm.mu.Unlock()

	var err error
	select {
	case <-s.ch:
	case <-unblock:
		err = ErrDeadLockEnded
	case <-ctx.Done():
		err = ErrProcessorStopped
	}

	tm.mu.Lock()
	delete(tm.suspended, p)
	tm.running[p] = struct{}{}
	tm.mu.Unlock()

	if err == nil {
		err = p.checkStop(ctx)
	}
	return err
}

// Awake wakes every processor suspended on key and returns how many
// there were.
func (tm *ThreadManager) Awake(key neuron.Neuron) int {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	s, have := tm.waits[key]
	if !have {
		return 0
	}
	delete(tm.waits, key)
	n := 0
	for _, x := range tm.suspended {
		if x == s {
			n++
		}
	}
	close(s.ch)
	return n
}

// EndDeadLock releases every wait and every lock.
func (tm *ThreadManager) EndDeadLock() {
	tm.mu.Lock()
	close(tm.unblock)
	tm.unblock = make(chan struct{})
	tm.waits = make(map[neuron.Neuron]*suspension)
	tm.mu.Unlock()
	tm.Locks.ReleaseAll()
	tm.Errorf("ended a deadlock")
}

// StopAll asks every processor to stop.  The request clears itself
// once nothing that can be stopped is left.
func (tm *ThreadManager) StopAll() {
	tm.mu.Lock()
	if tm.alive-tm.killBlockCount > 0 {
		tm.stopRequested.Store(true)
	}
	tm.mu.Unlock()
	tm.Locks.Wake()
	tm.wakeSuspended()
}

// StopAllBut is StopAll that spares the given processors.
func (tm *ThreadManager) StopAllBut(spare ...*Processor) {
	tm.mu.Lock()
	for _, p := range spare {
		if !p.PreventKill {
			p.PreventKill = true
			tm.killBlockCount++
		}
	}
	tm.mu.Unlock()
	tm.StopAll()
}

// wakeSuspended releases suspended processors so that they can see a
// stop request.
func (tm *ThreadManager) wakeSuspended() {
	tm.mu.Lock()
	for key, s := range tm.waits {
		delete(tm.waits, key)
		close(s.ch)
	}
	tm.mu.Unlock()
}

func (tm *ThreadManager) stopping(p *Processor) bool {
	return tm.stopRequested.Load() && !p.PreventKill
}

// halted says whether p is caught by a global stop or by the end of
// its context.  A Kill of p alone doesn't count.
func (tm *ThreadManager) halted(ctx context.Context, p *Processor) bool {
	return tm.stopping(p) || (ctx != nil && ctx.Err() != nil)
}
