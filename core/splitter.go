package core

import (
	"errors"

	"github.com/Comcast/axon/neuron"
)

// ProcessorSplitter copies a processor's state into clones.
//
// Slot i (0 <= i < len(targets)) is targets[i].  The source is the
// last slot, and it keeps the original neurons.
type ProcessorSplitter struct {
	source  *Processor
	targets []*Processor

	// Clones maps an original neuron to its duplicates, one per
	// target.
	Clones map[neuron.Neuron][]neuron.Neuron

	cursors map[*CallFrame][]RowCursor
}

func NewProcessorSplitter(source *Processor, targets []*Processor) *ProcessorSplitter {
	return &ProcessorSplitter{
		source:  source,
		targets: targets,
		Clones:  make(map[neuron.Neuron][]neuron.Neuron, 8),
		cursors: make(map[*CallFrame][]RowCursor, 2),
	}
}

// Slots returns the number of processors after the split.
func (s *ProcessorSplitter) Slots() int {
	return len(s.targets) + 1
}

// Clone duplicates what needs duplicating and then fills in every
// target.
func (s *ProcessorSplitter) Clone() error {
	if err := s.duplicateAll(); err != nil {
		return err
	}
	for i, t := range s.targets {
		if err := s.replay(i, t); err != nil {
			return err
		}
	}
	return nil
}

// Recycle drops the splitter's bookkeeping.
func (s *ProcessorSplitter) Recycle() {
	clear(s.Clones)
	clear(s.cursors)
	s.targets = nil
	s.source = nil
}

func (s *ProcessorSplitter) duplicateAll() error {
	src := s.source
	if src.StackReaction == SplitDuplicate {
		for _, n := range src.NeuronStack {
			if err := s.duplicate(n); err != nil {
				return err
			}
		}
		if src.CurrentFrom != nil {
			if err := s.duplicate(src.CurrentFrom); err != nil {
				return err
			}
		}
	}

	if err := s.duplicateDict(src.Globals); err != nil {
		return err
	}
	for _, d := range src.Vars.dicts {
		if err := s.duplicateDict(d); err != nil {
			return err
		}
	}
	for _, f := range src.frames {
		for _, lv := range f.LocalsBuffer {
			if lv.Saved == nil || lv.Var.Reaction != SplitDuplicate {
				continue
			}
			for _, n := range lv.Saved.Items {
				if err := s.duplicate(n); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (s *ProcessorSplitter) duplicateDict(d *VarDict) error {
	var err error
	d.Each(func(v Reactor, l *VarValuesList) {
		if err != nil || v.SplitReaction() != SplitDuplicate {
			return
		}
		for _, n := range l.Items {
			if err = s.duplicate(n); err != nil {
				return
			}
		}
	})
	return err
}

// duplicate makes one duplicate of n per target.  Neurons that can't
// be duplicated are shared.
func (s *ProcessorSplitter) duplicate(n neuron.Neuron) error {
	if n == nil {
		return nil
	}
	if _, have := s.Clones[n]; have {
		return nil
	}
	k := len(s.targets)
	var (
		ds  []neuron.Neuron
		err error
	)
	if md, is := n.(neuron.MultiDuplicator); is && 1 <= k {
		ds, err = md.DuplicateN(k)
	} else {
		ds = make([]neuron.Neuron, 0, k)
		for i := 0; i < k; i++ {
			var d neuron.Neuron
			if d, err = n.Duplicate(); err != nil {
				break
			}
			ds = append(ds, d)
		}
	}
	if errors.Is(err, neuron.ErrNotDuplicable) {
		ds = make([]neuron.Neuron, k)
		for i := range ds {
			ds[i] = n
		}
		err = nil
	}
	if err != nil {
		return err
	}
	s.Clones[n] = ds
	return nil
}

// remap returns the duplicate of n for slot i, or n itself.
func (s *ProcessorSplitter) remap(n neuron.Neuron, i int) neuron.Neuron {
	if ds, have := s.Clones[n]; have && i < len(ds) {
		return ds[i]
	}
	return n
}

func (s *ProcessorSplitter) remapList(xs []neuron.Neuron, i int) []neuron.Neuron {
	if xs == nil {
		return nil
	}
	acc := make([]neuron.Neuron, len(xs))
	for j, x := range xs {
		acc[j] = s.remap(x, i)
	}
	return acc
}

func (s *ProcessorSplitter) mapItem(n neuron.Neuron, i int, r SplitReaction) neuron.Neuron {
	switch r {
	case SplitShared, SplitCopy:
		return n
	}
	return s.remap(n, i)
}

func (s *ProcessorSplitter) replay(i int, t *Processor) error {
	src := s.source

	for _, n := range src.NeuronStack {
		t.NeuronStack = append(t.NeuronStack, s.mapItem(n, i, src.StackReaction))
	}

	if src.CurrentFrom != nil {
		t.CurrentFrom = s.mapItem(src.CurrentFrom, i, src.StackReaction)
	}
	if src.links != nil {
		t.links = append([]*neuron.Link(nil), src.links...)
	}
	t.linkIndex = src.linkIndex
	t.pendingActions = src.pendingActions
	t.solving = src.solving
	t.understood = src.understood
	t.CurrentLink = src.CurrentLink
	t.CurrentMeaning = src.CurrentMeaning
	t.CurrentTo = src.CurrentTo
	t.CurrentInfo = src.CurrentInfo
	t.State = src.State
	t.signalFrame = src.signalFrame
	t.StackReaction = src.StackReaction
	t.weight = src.weight

	s.copyDict(src.Globals, t.Globals, i, t)
	for _, d := range src.Vars.dicts {
		nd := t.Mem.NewDict()
		s.copyDict(d, nd, i, t)
		t.Vars.Push(nd)
	}

	for _, f := range src.frames {
		d, err := f.duplicate(i, s, t)
		if err != nil {
			return err
		}
		t.frames = append(t.frames, d)
	}

	src.copyFrozenTo(t)
	for n, ds := range s.Clones {
		if ds[i] != n {
			t.Freeze(ds[i])
		}
	}

	return nil
}

// copyDict fills dst (for slot i) according to each entry's policy.
func (s *ProcessorSplitter) copyDict(src, dst *VarDict, i int, t *Processor) {
	src.Each(func(v Reactor, l *VarValuesList) {
		dst.Set(v, s.copyValues(v.SplitReaction(), l, i, dst, t))
	})
}

func (s *ProcessorSplitter) copyValues(r SplitReaction, l *VarValuesList, i int, owner *VarDict, t *Processor) *VarValuesList {
	if l == nil {
		return nil
	}
	switch r {
	case SplitShared:
		// Nobody owns a shared list, so nobody recycles it.
		l.unown()
		return l
	case SplitCopy:
		return t.Mem.NewValueList(owner, l.Values())
	}
	nl := t.Mem.NewValueList(owner, nil)
	for _, n := range l.Values() {
		nl.Items = append(nl.Items, s.remap(n, i))
	}
	return nl
}

func (s *ProcessorSplitter) dupLocals(buf []localValue, i int, t *Processor) []localValue {
	if buf == nil {
		return nil
	}
	acc := make([]localValue, len(buf))
	for j, lv := range buf {
		acc[j] = localValue{
			Var:   lv.Var,
			Saved: s.copyValues(lv.Var.Reaction, lv.Saved, i, nil, t),
		}
	}
	return acc
}

// cursorFor returns the forked cursor for slot i.  The source keeps
// its own cursor.
func (s *ProcessorSplitter) cursorFor(f *CallFrame, i int) (RowCursor, error) {
	cs, have := s.cursors[f]
	if !have {
		var err error
		if cs, err = f.Enum.Fork(len(s.targets)); err != nil {
			return nil, err
		}
		s.cursors[f] = cs
	}
	return cs[i], nil
}
