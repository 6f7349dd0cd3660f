package core

import (
	"sort"
	"sync"

	"github.com/Comcast/axon/neuron"
)

// Result is a neuron with its weight.
type Result struct {
	Neuron neuron.Neuron
	Weight float64
}

// SplitResultsDict maps result neurons to weights.
type SplitResultsDict struct {
	sync.Mutex
	m     map[neuron.Neuron]float64
	order []neuron.Neuron
}

func NewSplitResultsDict() *SplitResultsDict {
	return &SplitResultsDict{
		m: make(map[neuron.Neuron]float64, 8),
	}
}

// Add records a result.  A neuron that is already present keeps the
// larger weight, or the sum when accum is true.
func (d *SplitResultsDict) Add(n neuron.Neuron, w float64, accum bool) {
	d.Lock()
	d.add(n, w, accum)
	d.Unlock()
}

func (d *SplitResultsDict) add(n neuron.Neuron, w float64, accum bool) {
	have, exists := d.m[n]
	switch {
	case !exists:
		d.m[n] = w
		d.order = append(d.order, n)
	case accum:
		d.m[n] = have + w
	case have < w:
		d.m[n] = w
	}
}

// MergeFrom adds every result in src with the given offset added to
// its weight.
func (d *SplitResultsDict) MergeFrom(src *SplitResultsDict, offset float64, accum bool) {
	if src == nil || src == d {
		return
	}
	src.Lock()
	rs := make([]Result, 0, len(src.order))
	for _, n := range src.order {
		rs = append(rs, Result{n, src.m[n]})
	}
	src.Unlock()

	d.Lock()
	for _, r := range rs {
		d.add(r.Neuron, r.Weight+offset, accum)
	}
	d.Unlock()
}

func (d *SplitResultsDict) Weight(n neuron.Neuron) (float64, bool) {
	d.Lock()
	defer d.Unlock()
	w, have := d.m[n]
	return w, have
}

func (d *SplitResultsDict) Len() int {
	d.Lock()
	defer d.Unlock()
	return len(d.m)
}

// Results returns the results ordered by decreasing weight.  Ties
// keep insertion order.
func (d *SplitResultsDict) Results() []Result {
	d.Lock()
	acc := make([]Result, 0, len(d.order))
	for _, n := range d.order {
		acc = append(acc, Result{n, d.m[n]})
	}
	d.Unlock()
	sort.SliceStable(acc, func(i, j int) bool {
		return acc[i].Weight > acc[j].Weight
	})
	return acc
}

// Neurons returns the result neurons ordered by decreasing weight.
func (d *SplitResultsDict) Neurons() []neuron.Neuron {
	rs := d.Results()
	acc := make([]neuron.Neuron, len(rs))
	for i, r := range rs {
		acc[i] = r.Neuron
	}
	return acc
}

func (d *SplitResultsDict) Clear() {
	d.Lock()
	clear(d.m)
	clear(d.order)
	d.order = d.order[:0]
	d.Unlock()
}
