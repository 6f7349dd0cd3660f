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
	"sync"
	"sync/atomic"

	"github.com/Comcast/axon/neuron"
)

// DefaultPoolSize is the most items a free list keeps.
var DefaultPoolSize = 256

// Pool is a free list.  A Pool isn't safe for concurrent use: each
// processor has its own.
type Pool[T any] struct {
	New   func() T
	Clean func(T) T
	Max   int

	free []T

	// Allocated counts calls to New.
	Allocated int

	// Reused counts Gets that were served from the free list.
	Reused int
}

func (p *Pool[T]) Get() T {
	if n := len(p.free); 0 < n {
		x := p.free[n-1]
		var zero T
		p.free[n-1] = zero
		p.free = p.free[:n-1]
		p.Reused++
		return x
	}
	p.Allocated++
	return p.New()
}

func (p *Pool[T]) Put(x T) {
	if p.Clean != nil {
		x = p.Clean(x)
	}
	if 0 < p.Max && p.Max <= len(p.free) {
		return
	}
	p.free = append(p.free, x)
}

// Free returns the number of pooled items.
func (p *Pool[T]) Free() int {
	return len(p.free)
}

func neuronSlices() Pool[[]neuron.Neuron] {
	return Pool[[]neuron.Neuron]{
		New: func() []neuron.Neuron {
			return make([]neuron.Neuron, 0, 8)
		},
		Clean: func(xs []neuron.Neuron) []neuron.Neuron {
			clear(xs)
			return xs[:0]
		},
		Max: DefaultPoolSize,
	}
}

// MemoryFactory holds a processor's free lists.  Everything here is
// owned by a single processor, so there's no locking.
type MemoryFactory struct {
	Lists      Pool[[]neuron.Neuron]
	LockLists  Pool[[]neuron.Neuron]
	ValueLists Pool[*VarValuesList]
	Dicts      Pool[*VarDict]
	Frames     Pool[*CallFrame]
	Code       Pool[[]Expression]
}

func NewMemoryFactory() *MemoryFactory {
	return &MemoryFactory{
		Lists:     neuronSlices(),
		LockLists: neuronSlices(),
		ValueLists: Pool[*VarValuesList]{
			New: func() *VarValuesList {
				return &VarValuesList{}
			},
			Max: DefaultPoolSize,
		},
		Dicts: Pool[*VarDict]{
			New: func() *VarDict {
				return NewVarDict()
			},
			Max: DefaultPoolSize,
		},
		Frames: Pool[*CallFrame]{
			New: func() *CallFrame {
				return &CallFrame{}
			},
			Max: DefaultPoolSize,
		},
		Code: Pool[[]Expression]{
			New: func() []Expression {
				return make([]Expression, 0, 8)
			},
			Clean: func(xs []Expression) []Expression {
				clear(xs)
				return xs[:0]
			},
			Max: DefaultPoolSize,
		},
	}
}

// NewValueList makes a list owned by the given dictionary that holds
// a copy of the given items.
func (m *MemoryFactory) NewValueList(owner *VarDict, items []neuron.Neuron) *VarValuesList {
	l := m.ValueLists.Get()
	l.Items = append(m.Lists.Get(), items...)
	l.Owner = owner
	return l
}

// ReleaseValueList recycles the list if, and only if, the given
// dictionary owns it.  Shared lists (no owner) are left alone.
func (m *MemoryFactory) ReleaseValueList(owner *VarDict, l *VarValuesList) {
	if l == nil || l.Owner == nil || l.Owner != owner {
		return
	}
	m.Lists.Put(l.Items)
	l.Items = nil
	l.Owner = nil
	m.ValueLists.Put(l)
}

func (m *MemoryFactory) NewDict() *VarDict {
	return m.Dicts.Get()
}

// ClearDict empties the dictionary and recycles the lists it owns.
func (m *MemoryFactory) ClearDict(d *VarDict) {
	if d == nil {
		return
	}
	for k, l := range d.m {
		m.ReleaseValueList(d, l)
		delete(d.m, k)
	}
}

// ReleaseDict recycles the dictionary along with the lists it owns.
func (m *MemoryFactory) ReleaseDict(d *VarDict) {
	if d == nil {
		return
	}
	m.ClearDict(d)
	m.Dicts.Put(d)
}

// CodeFor copies the cluster's children into a pooled code buffer.
// Every child must be an Expression.
func (m *MemoryFactory) CodeFor(c neuron.Cluster) ([]Expression, error) {
	code := m.Code.Get()
	for i, x := range c.Children() {
		e, is := x.(Expression)
		if !is {
			m.Code.Put(code)
			return nil, &BadCode{Cluster: c, Index: i}
		}
		code = append(code, e)
	}
	return code, nil
}

func (m *MemoryFactory) ReleaseCode(code []Expression) {
	if code != nil {
		m.Code.Put(code)
	}
}

func (m *MemoryFactory) NewFrame(kind FrameKind) *CallFrame {
	f := m.Frames.Get()
	f.Kind = kind
	return f
}

func (m *MemoryFactory) ReleaseFrame(f *CallFrame) {
	*f = CallFrame{}
	m.Frames.Put(f)
}

// ProcessorFactory recycles processors.  Safe for concurrent use.
type ProcessorFactory struct {
	sync.Mutex

	// Max is the most processors that are kept for reuse.
	Max int

	free []*Processor

	Created uint64
	Reused  uint64
}

func NewProcessorFactory(max int) *ProcessorFactory {
	return &ProcessorFactory{
		Max: max,
	}
}

var processorSerial uint64

// Get returns a clean processor.
func (f *ProcessorFactory) Get() *Processor {
	f.Lock()
	if n := len(f.free); 0 < n {
		p := f.free[n-1]
		f.free[n-1] = nil
		f.free = f.free[:n-1]
		f.Reused++
		f.Unlock()
		return p
	}
	f.Created++
	f.Unlock()

	return &Processor{
		serial:        atomic.AddUint64(&processorSerial, 1),
		Mem:           NewMemoryFactory(),
		Globals:       NewVarDict(),
		SplitResults:  NewSplitResultsDict(),
		StackReaction: SplitDefault,
	}
}

// Recycle resets the processor and keeps it for reuse.
func (f *ProcessorFactory) Recycle(p *Processor) {
	p.Reset()
	f.Lock()
	if f.Max <= 0 || len(f.free) < f.Max {
		f.free = append(f.free, p)
	}
	f.Unlock()
}
