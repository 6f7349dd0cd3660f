package core

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/Comcast/axon/neuron"
)

// SplitReaction says what happens to a variable's value when a
// processor splits.
type SplitReaction int

const (
	// SplitDefault gives each clone its own list whose items are
	// remapped to their per-clone duplicates when such duplicates
	// exist.
	SplitDefault SplitReaction = iota

	// SplitShared gives every clone the very same list.  A store in
	// any of them is seen by all.
	SplitShared

	// SplitCopy gives each clone a new list with the same items.
	SplitCopy

	// SplitDuplicate duplicates every item once per clone.
	SplitDuplicate
)

var splitReactionNames = []string{"default", "shared", "copy", "duplicate"}

func (r SplitReaction) String() string {
	if r < 0 || int(r) >= len(splitReactionNames) {
		return fmt.Sprintf("SplitReaction(%d)", int(r))
	}
	return splitReactionNames[r]
}

// ParseSplitReaction parses the String() form.  The empty string is
// SplitDefault.
func ParseSplitReaction(s string) (SplitReaction, error) {
	if s == "" {
		return SplitDefault, nil
	}
	for i, name := range splitReactionNames {
		if strings.EqualFold(s, name) {
			return SplitReaction(i), nil
		}
	}
	return SplitDefault, fmt.Errorf("unknown split reaction %q", s)
}

// Reactor is a variable-like neuron with a split policy.
type Reactor interface {
	neuron.Neuron
	SplitReaction() SplitReaction
}

// Assignable is a neuron that can hold a value.
type Assignable interface {
	Reactor
	StoreValue(p *Processor, values []neuron.Neuron) error
}

// Variable is a processor-local, scope-local slot.  Only the
// innermost dictionary is visible.
type Variable struct {
	Code
	Name     string
	Reaction SplitReaction
}

func (v *Variable) SplitReaction() SplitReaction {
	return v.Reaction
}

// Solve returns a copy of the variable's current value.
func (v *Variable) Solve(ctx context.Context, p *Processor) ([]neuron.Neuron, error) {
	return p.Vars.Get(v), nil
}

func (v *Variable) StoreValue(p *Processor, values []neuron.Neuron) error {
	d := p.Vars.Top()
	if d == nil {
		return &InvalidOperation{
			Op:  "assign",
			Msg: "no variable scope for " + v.Name,
		}
	}
	d.Store(p.Mem, v, values)
	return nil
}

func (v *Variable) String() string {
	return v.Name
}

// Global is a processor-wide slot.
type Global struct {
	Code
	Name     string
	Reaction SplitReaction
}

func (g *Global) SplitReaction() SplitReaction {
	return g.Reaction
}

func (g *Global) Solve(ctx context.Context, p *Processor) ([]neuron.Neuron, error) {
	if l := p.Globals.Lookup(g); l != nil {
		return l.Values(), nil
	}
	return nil, nil
}

func (g *Global) StoreValue(p *Processor, values []neuron.Neuron) error {
	p.Globals.Store(p.Mem, g, values)
	return nil
}

func (g *Global) String() string {
	return g.Name
}

// VarValuesList is the value of a variable.  A list with no Owner is
// shared between processors and is never recycled.
type VarValuesList struct {
	mu    sync.RWMutex
	Items []neuron.Neuron
	Owner *VarDict
}

// Values returns a copy of the items.
func (l *VarValuesList) Values() []neuron.Neuron {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return copyList(l.Items)
}

// replace overwrites the items in place so that every holder of the
// list sees them.
func (l *VarValuesList) replace(items []neuron.Neuron) {
	l.mu.Lock()
	l.Items = append(l.Items[:0], items...)
	l.mu.Unlock()
}

// unown marks the list as shared.
func (l *VarValuesList) unown() {
	l.mu.Lock()
	l.Owner = nil
	l.mu.Unlock()
}

func (l *VarValuesList) shared() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.Owner == nil
}

// VarDict maps variables (or globals) to their values.
type VarDict struct {
	m map[Reactor]*VarValuesList
}

func NewVarDict() *VarDict {
	return &VarDict{
		m: make(map[Reactor]*VarValuesList, 8),
	}
}

func (d *VarDict) Lookup(v Reactor) *VarValuesList {
	return d.m[v]
}

// Store replaces the value of v with a copy of the given items.  A
// shared list is updated in place.
func (d *VarDict) Store(mem *MemoryFactory, v Reactor, items []neuron.Neuron) {
	old := d.m[v]
	if old != nil && v.SplitReaction() == SplitShared && old.shared() {
		old.replace(items)
		return
	}
	d.m[v] = mem.NewValueList(d, items)
	mem.ReleaseValueList(d, old)
}

// Set installs the given list as is.
func (d *VarDict) Set(v Reactor, l *VarValuesList) {
	if l == nil {
		delete(d.m, v)
		return
	}
	d.m[v] = l
}

// Detach removes the value of v without recycling it.
func (d *VarDict) Detach(v Reactor) *VarValuesList {
	l := d.m[v]
	delete(d.m, v)
	return l
}

func (d *VarDict) Len() int {
	return len(d.m)
}

// Each calls f for every entry.
func (d *VarDict) Each(f func(v Reactor, l *VarValuesList)) {
	for v, l := range d.m {
		f(v, l)
	}
}

// VarDictsStack is the stack of variable scopes.
type VarDictsStack struct {
	dicts []*VarDict
}

func (s *VarDictsStack) Push(d *VarDict) {
	s.dicts = append(s.dicts, d)
}

func (s *VarDictsStack) Pop() *VarDict {
	n := len(s.dicts)
	if n == 0 {
		return nil
	}
	d := s.dicts[n-1]
	s.dicts[n-1] = nil
	s.dicts = s.dicts[:n-1]
	return d
}

func (s *VarDictsStack) Top() *VarDict {
	if n := len(s.dicts); 0 < n {
		return s.dicts[n-1]
	}
	return nil
}

func (s *VarDictsStack) Len() int {
	return len(s.dicts)
}

// Get returns a copy of the value of v in the innermost scope.
func (s *VarDictsStack) Get(v Reactor) []neuron.Neuron {
	if d := s.Top(); d != nil {
		if l := d.Lookup(v); l != nil {
			return l.Values()
		}
	}
	return nil
}

func copyList(xs []neuron.Neuron) []neuron.Neuron {
	if len(xs) == 0 {
		return nil
	}
	acc := make([]neuron.Neuron, len(xs))
	copy(acc, xs)
	return acc
}

// localValue remembers what a variable held before a frame declared
// it local.
type localValue struct {
	Var   *Variable
	Saved *VarValuesList
}
