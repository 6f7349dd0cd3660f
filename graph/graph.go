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

// Package graph is a simple in-memory network of neurons.
//
// A Graph hands out identities, remembers names, and refuses to
// delete neurons that a processor has frozen.  Load builds a graph
// (including code) from a YAML document.
package graph

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/Comcast/axon/neuron"
)

var (
	// ErrNotFound is returned when a name or an ID isn't known.
	ErrNotFound = errors.New("not found")

	// ErrNotBased is returned for neurons that don't embed a
	// neuron.Node.
	ErrNotBased = errors.New("neuron has no base node")
)

// DuplicateName occurs when a name is already taken.
type DuplicateName struct {
	Name string
}

func (e *DuplicateName) Error() string {
	return fmt.Sprintf("name %q already in use", e.Name)
}

// Graph is a neuron.Network that keeps its neurons in memory.
type Graph struct {
	sync.RWMutex

	next    neuron.ID
	neurons map[neuron.ID]neuron.Neuron
	names   map[string]neuron.Neuron
	namesOf map[neuron.ID]string
}

// New makes an empty graph.  The sentinels are there already, named
// by their Name.
func New() *Graph {
	g := &Graph{
		next:    neuron.FirstFreeID,
		neurons: make(map[neuron.ID]neuron.Neuron, 64),
		names:   make(map[string]neuron.Neuron, 64),
		namesOf: make(map[neuron.ID]string, 64),
	}
	for _, s := range neuron.Sentinels {
		g.neurons[s.ID()] = s
		g.names[s.Name] = s
		g.namesOf[s.ID()] = s.Name
	}
	return g
}

// Add implements neuron.Network.  The neuron must embed a
// neuron.Node; otherwise Add panics.
func (g *Graph) Add(n neuron.Neuron) neuron.ID {
	b, is := n.(neuron.Based)
	if !is {
		panic(ErrNotBased)
	}
	g.Lock()
	id := g.next
	g.next++
	g.neurons[id] = n
	g.Unlock()
	b.Base().Init(id, g)
	return id
}

// Register adds the neuron under the given name.
func (g *Graph) Register(name string, n neuron.Neuron) (neuron.ID, error) {
	if _, is := n.(neuron.Based); !is {
		return neuron.TempID, ErrNotBased
	}
	g.RLock()
	_, taken := g.names[name]
	g.RUnlock()
	if taken {
		return neuron.TempID, &DuplicateName{Name: name}
	}
	id := g.Add(n)
	return id, g.SetName(name, n)
}

// SetName gives a neuron that is already in the graph a name.
func (g *Graph) SetName(name string, n neuron.Neuron) error {
	g.Lock()
	defer g.Unlock()
	if x, taken := g.names[name]; taken && x != n {
		return &DuplicateName{Name: name}
	}
	if old, have := g.namesOf[n.ID()]; have {
		delete(g.names, old)
	}
	g.names[name] = n
	g.namesOf[n.ID()] = name
	return nil
}

// Find returns the neuron with the given name.
func (g *Graph) Find(name string) (neuron.Neuron, error) {
	g.RLock()
	defer g.RUnlock()
	n, have := g.names[name]
	if !have {
		return nil, fmt.Errorf("%q: %w", name, ErrNotFound)
	}
	return n, nil
}

// Get returns the neuron with the given ID.
func (g *Graph) Get(id neuron.ID) (neuron.Neuron, error) {
	g.RLock()
	defer g.RUnlock()
	n, have := g.neurons[id]
	if !have {
		return nil, fmt.Errorf("neuron %s: %w", id, ErrNotFound)
	}
	return n, nil
}

// NameOf returns the neuron's name or its ID.
func (g *Graph) NameOf(n neuron.Neuron) string {
	if n == nil {
		return "nil"
	}
	g.RLock()
	name, have := g.namesOf[n.ID()]
	g.RUnlock()
	if have {
		return name
	}
	return "#" + n.ID().String()
}

// Label is NameOf except that unnamed values show their value.
func (g *Graph) Label(n neuron.Neuron) string {
	if n == nil {
		return "nil"
	}
	g.RLock()
	name, have := g.namesOf[n.ID()]
	g.RUnlock()
	if have {
		return name
	}
	if s, is := n.(fmt.Stringer); is {
		return s.String()
	}
	return "#" + n.ID().String()
}

// Names returns all names in order.
func (g *Graph) Names() []string {
	g.RLock()
	acc := make([]string, 0, len(g.names))
	for name := range g.names {
		acc = append(acc, name)
	}
	g.RUnlock()
	sort.Strings(acc)
	return acc
}

// Len returns the number of neurons (sentinels included).
func (g *Graph) Len() int {
	g.RLock()
	defer g.RUnlock()
	return len(g.neurons)
}

// Link adds a link from from to to with the given meaning.
func (g *Graph) Link(from, meaning, to neuron.Neuron, info ...neuron.Neuron) (*neuron.Link, error) {
	b, is := from.(neuron.Based)
	if !is {
		return nil, ErrNotBased
	}
	if from.IsDeleted() {
		return nil, neuron.ErrDeleted
	}
	l := &neuron.Link{
		From:    from,
		To:      to,
		Meaning: meaning,
		Info:    info,
	}
	b.Base().AddLink(l)
	return l, nil
}

// Delete removes the neuron.  Frozen neurons can't be deleted.
func (g *Graph) Delete(n neuron.Neuron) error {
	b, is := n.(neuron.Based)
	if !is {
		return ErrNotBased
	}
	for _, s := range neuron.Sentinels {
		if n == s {
			return fmt.Errorf("can't delete %s", s.Name)
		}
	}
	if err := b.Base().MarkDeleted(); err != nil {
		return err
	}
	g.Lock()
	id := n.ID()
	delete(g.neurons, id)
	if name, have := g.namesOf[id]; have {
		delete(g.names, name)
		delete(g.namesOf, id)
	}
	g.Unlock()
	return nil
}
