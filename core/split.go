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
	"errors"
	"sync"

	"github.com/Comcast/axon/neuron"
)

// HeadData is shared by all the siblings of one split.  The last
// sibling to finish joins the results and runs the callback.
type HeadData struct {
	sync.Mutex

	// Callback runs in the last sibling after the join.  Can be
	// nil.
	Callback neuron.Cluster

	// StillActive counts the siblings that haven't finished.
	StillActive int

	// Siblings holds the per-processor data of every sibling
	// (including those that already finished).
	Siblings []*SplitData

	// Requestor is the membership the splitting processor had
	// before the split.  The survivor of the join takes it over.
	Requestor *SplitData

	// Previous is the enclosing split's head, if any.
	Previous *HeadData

	// IsAccum says that results are summed rather than maxed.
	IsAccum bool

	// Prior holds results the splitting processor had before the
	// split.
	Prior *SplitResultsDict
}

// Active returns the number of siblings that haven't finished.
func (h *HeadData) Active() int {
	h.Lock()
	defer h.Unlock()
	return h.StillActive
}

// SplitData is one processor's membership in a split.
type SplitData struct {
	Head      *HeadData
	Processor *Processor

	// Weight is added to this processor's result weights at the
	// join.
	Weight float64

	// Results are this processor's results, moved here when it
	// finished.
	Results *SplitResultsDict
}

// SplitArgs are the parameters of a split.
type SplitArgs struct {
	// Callback runs after the join.  Can be nil.
	Callback neuron.Cluster

	// Count is the number of processors after the split,
	// including the original.  Ignored when Values is given.
	Count int

	// Values, when given, has one entry per processor.  Each
	// processor gets its entry stored in Var.
	Values []neuron.Neuron
	Var    Assignable

	// Weight is the base weight.  Processor i gets Weight*(i+1).
	Weight float64

	Accum bool
}

func (a *SplitArgs) count() int {
	if a.Values != nil {
		return len(a.Values)
	}
	return a.Count
}

// SplitEvent is what OnSplit hooks see.
type SplitEvent struct {
	Source     *Processor
	Processors []*Processor
	Head       *HeadData
	Reused     bool
}

// Split clones p so that count processors continue from the current
// point.  The clones are queued, and p keeps running.
//
// A count of zero does nothing.  A count of one makes no clones but
// still sets up a join, so the callback runs when p finishes.
func (tm *ThreadManager) Split(ctx context.Context, p *Processor, args *SplitArgs) error {
	n := args.count()
	if n < 1 {
		p.Logf("split into nothing")
		return nil
	}

	clones := make([]*Processor, n-1)
	for i := range clones {
		clones[i] = tm.newClone(p)
	}

	if 0 < len(clones) {
		s := NewProcessorSplitter(p, clones)
		err := s.Clone()
		s.Recycle()
		if err != nil {
			for _, c := range clones {
				tm.Factory.Recycle(c)
			}
			return err
		}
	}

	var (
		head   *HeadData
		reused bool
		all    = append(clones, p)
		sds    = make([]*SplitData, n)
	)

	if sd := p.SplitData; sd != nil && sd.Head.Callback == args.Callback && sd.Head.IsAccum == args.Accum {
		head = sd.Head
		reused = true
		base := sd.Weight
		for i, q := range all {
			if q == p {
				sds[i] = sd
				sd.Weight = base + args.Weight*float64(i+1)
				continue
			}
			sds[i] = &SplitData{
				Head:      head,
				Processor: q,
				Weight:    base + args.Weight*float64(i+1),
			}
		}
		head.Lock()
		head.StillActive += n - 1
		head.Siblings = append(head.Siblings, sds[:n-1]...)
		head.Unlock()
		if head.Prior == nil {
			head.Prior = NewSplitResultsDict()
		}
		head.Prior.MergeFrom(p.SplitResults, base, head.IsAccum)
		p.SplitResults.Clear()
	} else {
		head = &HeadData{
			Callback:    args.Callback,
			StillActive: n,
			Requestor:   p.SplitData,
			IsAccum:     args.Accum,
			Prior:       p.SplitResults,
		}
		if p.SplitData != nil {
			head.Previous = p.SplitData.Head
		}
		p.SplitResults = NewSplitResultsDict()
		for i, q := range all {
			sds[i] = &SplitData{
				Head:      head,
				Processor: q,
				Weight:    args.Weight * float64(i+1),
			}
		}
		head.Siblings = sds
		tm.addHead(head)
	}

	for i, q := range all {
		q.SplitData = sds[i]
	}

	if tm.OnSplit != nil {
		tm.OnSplit(&SplitEvent{
			Source:     p,
			Processors: all,
			Head:       head,
			Reused:     reused,
		})
	}

	if args.Var != nil && args.Values != nil {
		for i, q := range all {
			if err := args.Var.StoreValue(q, []neuron.Neuron{args.Values[i]}); err != nil {
				p.Errorf("split: storing value %d: %v", i, err)
			}
		}
	}

	tm.Logf("processor %d split into %d (head reused: %v)", p.serial, n, reused)

	for _, c := range clones {
		tm.enqueue(c)
	}

	return nil
}

// FinishSplit records that sd's processor is done with its branch
// and reports whether it was the last one.
func (tm *ThreadManager) FinishSplit(sd *SplitData) bool {
	p := sd.Processor
	sd.Results = p.SplitResults
	p.SplitResults = NewSplitResultsDict()

	h := sd.Head
	h.Lock()
	h.StillActive--
	last := h.StillActive == 0
	if h.StillActive < 0 {
		tm.Errorf("split head finished %d times too often", -h.StillActive)
	}
	h.Unlock()
	return last
}

// join merges the results of every sibling into p, which finished
// last.
func (tm *ThreadManager) join(p *Processor, h *HeadData) {
	merged := NewSplitResultsDict()
	merged.MergeFrom(h.Prior, 0, h.IsAccum)
	h.Lock()
	sibs := h.Siblings
	h.Unlock()
	for _, sd := range sibs {
		merged.MergeFrom(sd.Results, sd.Weight, h.IsAccum)
	}
	p.SplitResults = merged
	p.SplitData = h.Requestor
	if p.SplitData != nil {
		// The requestor's membership now belongs to p.
		p.SplitData.Processor = p
	}
	tm.removeHead(h)
}

// finish handles the end of p's work.  When p was the last sibling
// of a split, it joins and runs the callback, which can give it more
// work.  Returns true when p has more work.
func (tm *ThreadManager) finish(p *Processor, stopping bool) bool {
	for {
		if stopping && p.tree != nil {
			p.tree.stopped.Store(true)
		}
		sd := p.SplitData
		if sd == nil {
			tm.done(p, true)
			return false
		}
		if !tm.FinishSplit(sd) {
			tm.done(p, false)
			return false
		}
		h := sd.Head
		tm.join(p, h)

		// A kill ends the work p was doing, not the join it
		// finished.
		p.killed.Store(false)
		stopping = stopping || tm.halted(p.ctx, p)
		if h.Callback != nil && !stopping {
			tm.Logf("processor %d joining %d siblings", p.serial, len(h.Siblings))
			if err := p.Call(p.ctx, h.Callback); err != nil {
				if !errors.Is(err, ErrProcessorStopped) {
					tm.Errorf("processor %d callback: %v", p.serial, err)
				}
				stopping = tm.halted(p.ctx, p)
				p.abandon()
			}
		}
		if !stopping && p.hasWork() {
			return true
		}
	}
}
