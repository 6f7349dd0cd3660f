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

package neuron

import (
	"errors"
	"sync"
)

// Network hands out identities.  A Node that was added to a network
// remembers it so that Duplicate can register the copy.
type Network interface {
	// Add registers the neuron and returns its new ID.
	Add(n Neuron) ID
}

// Based is implemented by every neuron that embeds a Node.
type Based interface {
	Base() *Node
}

// Node is a basic Neuron.  Richer neuron types embed a Node and
// override Duplicate.
type Node struct {
	sync.RWMutex

	id      ID
	net     Network
	deleted bool
	links   []*Link
	frozen  map[uint64]int

	// Doc is optional documentation (Markdown).
	Doc string `json:"doc,omitempty" yaml:",omitempty"`
}

// Base implements Based.
func (n *Node) Base() *Node {
	return n
}

// Init gives the node its identity.  Called by a Network's Add.
func (n *Node) Init(id ID, net Network) {
	n.Lock()
	n.id = id
	n.net = net
	n.Unlock()
}

// Network returns the network that gave this node its ID (if any).
func (n *Node) Network() Network {
	n.RLock()
	defer n.RUnlock()
	return n.net
}

func (n *Node) ID() ID {
	if n == nil {
		return EmptyID
	}
	n.RLock()
	id := n.id
	n.RUnlock()
	if id == EmptyID {
		return TempID
	}
	return id
}

func (n *Node) IsDeleted() bool {
	n.RLock()
	defer n.RUnlock()
	return n.deleted
}

// MarkDeleted flags the node as deleted.  Returns ErrFrozen if some
// processor still holds the node.
func (n *Node) MarkDeleted() error {
	n.Lock()
	defer n.Unlock()
	if 0 < len(n.frozen) {
		return ErrFrozen
	}
	n.deleted = true
	n.links = nil
	return nil
}

func (n *Node) LinksOut() []*Link {
	n.RLock()
	acc := make([]*Link, len(n.links))
	copy(acc, n.links)
	n.RUnlock()
	return acc
}

// AddLink appends an outgoing link.  The link's From should be the
// outer neuron that embeds this node.
func (n *Node) AddLink(l *Link) {
	n.Lock()
	n.links = append(n.links, l)
	n.Unlock()
}

// RemoveLinks drops every outgoing link with the given meaning and
// returns how many were dropped.
func (n *Node) RemoveLinks(meaning ID) int {
	n.Lock()
	defer n.Unlock()
	kept := n.links[:0]
	dropped := 0
	for _, l := range n.links {
		if l.IsMeaning(meaning) {
			dropped++
			continue
		}
		kept = append(kept, l)
	}
	n.links = kept
	return dropped
}

func (n *Node) Freeze(owner uint64) {
	n.Lock()
	if n.frozen == nil {
		n.frozen = make(map[uint64]int, 2)
	}
	n.frozen[owner]++
	n.Unlock()
}

func (n *Node) Unfreeze(owner uint64) {
	n.Lock()
	if c, have := n.frozen[owner]; have {
		if c <= 1 {
			delete(n.frozen, owner)
		} else {
			n.frozen[owner] = c - 1
		}
	}
	n.Unlock()
}

func (n *Node) IsFrozen() bool {
	n.RLock()
	defer n.RUnlock()
	return 0 < len(n.frozen)
}

// Thaw removes every freeze.  Only for recovery.
func (n *Node) Thaw() {
	n.Lock()
	n.frozen = nil
	n.Unlock()
}

// Duplicate makes a plain Node copy.  Types that embed a Node should
// provide their own Duplicate.
func (n *Node) Duplicate() (Neuron, error) {
	d := &Node{Doc: n.Doc}
	if net := n.Network(); net != nil {
		net.Add(d)
	}
	if err := n.CopyTo(d); err != nil {
		return nil, err
	}
	return d, nil
}

// CopyTo copies the outgoing links to the target, rewriting From.
func (n *Node) CopyTo(target Neuron) error {
	if n.IsDeleted() {
		return ErrDeleted
	}
	b, is := target.(Based)
	if !is {
		return errors.New("copy target has no base node")
	}
	for _, l := range n.LinksOut() {
		c := l.Copy()
		c.From = target
		b.Base().AddLink(c)
	}
	return nil
}

// DuplicateWith is a helper for types embedding a Node: it registers
// the given fresh copy with this node's network and copies the links.
func (n *Node) DuplicateWith(d Neuron) (Neuron, error) {
	if net := n.Network(); net != nil {
		net.Add(d)
	}
	b, is := d.(Based)
	if !is {
		return nil, errors.New("duplicate has no base node")
	}
	b.Base().Doc = n.Doc
	if err := n.CopyTo(d); err != nil {
		return nil, err
	}
	return d, nil
}
