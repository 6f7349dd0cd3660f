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

// Package neuron defines the small capability surface that the
// execution engine needs from a graph node: identity, links,
// freezing, and duplication.
//
// Storage of neurons is somebody else's problem.  Package graph
// provides a simple in-memory implementation, but the engine in
// package core only ever talks to the interfaces here.
package neuron

import (
	"errors"
	"strconv"
)

// ID is the stable identity of a neuron.
type ID uint64

const (
	// EmptyID is the identity of the canonical "nothing" neuron.
	EmptyID ID = iota

	// TempID is the identity of a neuron that hasn't been
	// registered with a network yet.
	TempID

	TrueID
	FalseID

	// ActionsID is the reserved meaning that marks the link to a
	// neuron's action list.
	ActionsID

	// RulesID is the reserved meaning that marks the link from a
	// meaning neuron to the rules that the meaning stands for.
	RulesID

	// FirstFreeID is the first ID a network may hand out.
	FirstFreeID ID = 64
)

func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

var (
	// ErrFrozen is returned when somebody tries to delete a
	// neuron that an in-flight processor still references.
	ErrFrozen = errors.New("neuron is frozen")

	// ErrNotDuplicable is returned by Duplicate for neurons that
	// can't be copied (sentinels, for example).
	ErrNotDuplicable = errors.New("neuron can't be duplicated")

	// ErrDeleted is returned when operating on a deleted neuron.
	ErrDeleted = errors.New("neuron is deleted")
)

// Neuron is a node in the semantic network.
type Neuron interface {
	ID() ID

	IsDeleted() bool

	// LinksOut returns a snapshot of the outgoing links.  The
	// returned slice is owned by the caller.
	LinksOut() []*Link

	// Freeze pins this neuron on behalf of the given owner
	// (usually a processor serial number).  Freezes nest.
	Freeze(owner uint64)

	// Unfreeze releases one Freeze by the given owner.
	Unfreeze(owner uint64)

	IsFrozen() bool

	// Duplicate makes a new neuron with the same content and
	// outgoing links.
	Duplicate() (Neuron, error)

	// CopyTo copies this neuron's outgoing links to the target.
	CopyTo(target Neuron) error
}

// MultiDuplicator can make several duplicates at once, which can be
// cheaper than calling Duplicate repeatedly.
type MultiDuplicator interface {
	DuplicateN(n int) ([]Neuron, error)
}

// Cluster is a neuron that represents an ordered collection of other
// neurons.
type Cluster interface {
	Neuron

	// Children returns a snapshot of the cluster's members.
	Children() []Neuron
}

// Link is a directed edge tagged with a meaning.
type Link struct {
	From    Neuron   `json:"-"`
	To      Neuron   `json:"-"`
	Meaning Neuron   `json:"-"`
	Info    []Neuron `json:"-"`
}

// Copy makes a shallow copy (the Info slice is copied).
func (l *Link) Copy() *Link {
	if l == nil {
		return nil
	}
	var info []Neuron
	if 0 < len(l.Info) {
		info = make([]Neuron, len(l.Info))
		copy(info, l.Info)
	}
	return &Link{
		From:    l.From,
		To:      l.To,
		Meaning: l.Meaning,
		Info:    info,
	}
}

// IsMeaning reports whether the link has the given meaning.
func (l *Link) IsMeaning(id ID) bool {
	return l.Meaning != nil && l.Meaning.ID() == id
}

// Same reports whether two neurons have the same identity.  Two nils
// are the same.
func Same(a, b Neuron) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a == b {
		return true
	}
	ida, idb := a.ID(), b.ID()
	if ida == TempID || idb == TempID {
		return false
	}
	return ida == idb
}

// SequenceEqual reports whether the two lists hold the same neurons
// in the same order.
func SequenceEqual(xs, ys []Neuron) bool {
	if len(xs) != len(ys) {
		return false
	}
	for i, x := range xs {
		if !Same(x, ys[i]) {
			return false
		}
	}
	return true
}

// Contains reports whether the list holds a neuron with the given
// identity.
func Contains(xs []Neuron, n Neuron) bool {
	for _, x := range xs {
		if Same(x, n) {
			return true
		}
	}
	return false
}
