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

	"github.com/Comcast/axon/neuron"
)

// FrameKind says how a CallFrame continues once its code is
// exhausted.
type FrameKind uint8

const (
	PlainFrame FrameKind = iota
	IfFrame
	CaseFrame
	LoopedFrame
	CaseLoopedFrame
	ForEachFrame
	ForQueryFrame
	UntilFrame
	BlockFrame
	CallInstFrame
)

var frameKindNames = []string{"plain", "if", "case", "looped", "caselooped", "foreach", "forquery", "until", "block", "call"}

func (k FrameKind) String() string {
	if int(k) < len(frameKindNames) {
		return frameKindNames[k]
	}
	return "unknown"
}

// CodeListType says where a frame's code came from.
type CodeListType uint8

const (
	NoCode CodeListType = iota
	RulesList
	ActionsList
	ChildrenList
	ConditionalList
)

// Special values of CallFrame.NextExp.
const (
	// frameEvaluated means that the conditions have been
	// evaluated and a body (if any) has been pushed.
	frameEvaluated = -1

	// frameAwaitPre means that the pre-code has been pushed and
	// the conditions haven't been evaluated yet.
	frameAwaitPre = -2
)

// CallFrame is an entry on a processor's frame stack.  Every kind of
// frame uses the same struct, and only the fields of its Kind are
// meaningful.
type CallFrame struct {
	Kind FrameKind

	// Code is the pooled list of expressions being executed.
	Code []Expression

	// NextExp is the index of the next expression in Code.  For
	// conditional frames it's also a state marker (see
	// frameEvaluated and frameAwaitPre).
	NextExp int

	// ExecSource is the neuron the code came from.
	ExecSource neuron.Neuron

	CodeListType CodeListType

	// CausedNewVarDict is true when pushing this frame pushed a
	// variable scope that popping it should pop.
	CausedNewVarDict bool

	// Locks are held until the frame is popped.
	Locks []neuron.Neuron

	// LocalsBuffer holds the values that declaring locals hid.
	LocalsBuffer []localValue

	Statement *ConditionalStatement

	// CaseItem is the solved case value (or the foreach list
	// before it was copied into Items).
	CaseItem []neuron.Neuron

	Items []neuron.Neuron
	Index int

	DidBreak bool

	Enum        RowCursor
	RecordFound bool

	// DidExtraBit records that the pre-code for the current pass
	// already ran.  ForEach uses it to remember that Items was
	// solved.
	DidExtraBit bool

	skipTest bool
}

// exhausted reports whether the frame has no more code to execute.
func (f *CallFrame) exhausted() bool {
	return f.NextExp < 0 || len(f.Code) <= f.NextExp
}

// isBoundary reports whether the frame starts a function scope.
func (f *CallFrame) isBoundary() bool {
	switch f.Kind {
	case CallInstFrame:
		return true
	case PlainFrame:
		return f.CodeListType != ConditionalList
	}
	return false
}

func (f *CallFrame) isLoop() bool {
	switch f.Kind {
	case LoopedFrame, CaseLoopedFrame, ForEachFrame, ForQueryFrame, UntilFrame:
		return true
	}
	return false
}

// LoopItem returns the variable that receives ForEach items.
func (f *CallFrame) LoopItem() Assignable {
	if f.Statement == nil {
		return nil
	}
	return f.Statement.LoopItem
}

// advance is called when the frame's code is exhausted.  It either
// pushes more work (and returns false) or reports that the frame is
// done.  Returned errors are structural.
func (f *CallFrame) advance(ctx context.Context, p *Processor) (bool, error) {
	switch f.Kind {
	case IfFrame, CaseFrame:
		return f.advanceIf(ctx, p)
	case LoopedFrame, CaseLoopedFrame:
		return f.advanceLooped(ctx, p)
	case ForEachFrame:
		return f.advanceForEach(ctx, p)
	case ForQueryFrame:
		return f.advanceForQuery(ctx, p)
	case UntilFrame:
		return f.advanceUntil(ctx, p)
	}
	return true, nil
}

func (f *CallFrame) advanceIf(ctx context.Context, p *Processor) (bool, error) {
	switch f.NextExp {
	case frameEvaluated:
		return true, nil
	case frameAwaitPre:
	default:
		if !f.DidExtraBit && f.Statement.Pre != nil {
			f.DidExtraBit = true
			if p.pushPre(f) {
				f.NextExp = frameAwaitPre
				return false, nil
			}
		}
	}

	var compareTo []neuron.Neuron
	if f.Kind == CaseFrame {
		ok, err := f.solveCase(ctx, p)
		if !ok {
			return true, err
		}
		compareTo = f.CaseItem
	}

	f.NextExp = frameEvaluated
	found, err := p.pickBody(ctx, f, compareTo)
	return !found, err
}

func (f *CallFrame) advanceLooped(ctx context.Context, p *Processor) (bool, error) {
	if f.DidBreak {
		return true, nil
	}
	if f.NextExp == frameEvaluated {
		f.NextExp = 0
		f.DidExtraBit = false
	}
	if f.NextExp == 0 && !f.DidExtraBit && f.Statement.Pre != nil {
		f.DidExtraBit = true
		if p.pushPre(f) {
			f.NextExp = frameAwaitPre
			return false, nil
		}
	}

	var compareTo []neuron.Neuron
	if f.Kind == CaseLoopedFrame {
		ok, err := f.solveCase(ctx, p)
		if !ok {
			return true, err
		}
		compareTo = f.CaseItem
	}

	f.NextExp = frameEvaluated
	found, err := p.pickBody(ctx, f, compareTo)
	return !found, err
}

func (f *CallFrame) advanceForEach(ctx context.Context, p *Processor) (bool, error) {
	if f.DidBreak {
		return true, nil
	}
	if !f.DidExtraBit {
		f.DidExtraBit = true
		items, err := p.SolveArg(ctx, f.Statement.CaseItem)
		if err != nil {
			return true, p.dataError(err)
		}
		f.Items = copyList(items)
		f.Index = 0
	}
	for f.Index < len(f.Items) {
		item := f.Items[f.Index]
		f.Index++
		if v := f.Statement.LoopItem; v != nil {
			if err := v.StoreValue(p, []neuron.Neuron{item}); err != nil {
				return true, p.dataError(err)
			}
		}
		found, err := p.pickBody(ctx, f, nil)
		if err != nil {
			return true, err
		}
		if found {
			f.NextExp = frameEvaluated
			return false, nil
		}
	}
	return true, nil
}

func (f *CallFrame) advanceForQuery(ctx context.Context, p *Processor) (bool, error) {
	if f.DidBreak {
		f.closeCursor(p)
		return true, nil
	}
	if f.Enum == nil {
		if f.DidExtraBit {
			return true, nil
		}
		f.DidExtraBit = true
		src, is := f.Statement.Source.(ForEachSource)
		if !is {
			p.Errorf("forquery %s: source isn't a row source", f.Statement.ID())
			return true, nil
		}
		cur, err := src.Open(ctx, p)
		if err != nil {
			return true, p.dataError(err)
		}
		f.Enum = cur
	}
	for {
		row, ok, err := f.Enum.Next(ctx)
		if err != nil {
			f.closeCursor(p)
			return true, p.dataError(err)
		}
		if !ok {
			f.RecordFound = false
			f.closeCursor(p)
			return true, nil
		}
		f.RecordFound = true
		if err := bindRow(p, f.Statement.LoopVars, row); err != nil {
			f.closeCursor(p)
			return true, p.dataError(err)
		}
		found, err := p.pickBody(ctx, f, nil)
		if err != nil {
			f.closeCursor(p)
			return true, err
		}
		if found {
			f.NextExp = frameEvaluated
			return false, nil
		}
	}
}

func (f *CallFrame) advanceUntil(ctx context.Context, p *Processor) (bool, error) {
	if f.DidBreak || len(f.Statement.Conditions) == 0 {
		return true, nil
	}
	body := f.Statement.Conditions[0]

	if f.skipTest {
		f.skipTest = false
		return !p.pushBody(f, body), nil
	}

	if f.NextExp == frameEvaluated && !f.DidExtraBit && f.Statement.Pre != nil {
		f.DidExtraBit = true
		if p.pushPre(f) {
			f.NextExp = frameAwaitPre
			return false, nil
		}
	}
	f.DidExtraBit = false

	ok, err := p.EvaluateCondition(ctx, nil, body.Condition, 0)
	if err != nil {
		return true, p.dataError(err)
	}
	if !ok {
		return true, nil
	}
	return !p.pushBody(f, body), nil
}

// solveCase solves the statement's case item into f.CaseItem.
func (f *CallFrame) solveCase(ctx context.Context, p *Processor) (bool, error) {
	vs, err := p.SolveArg(ctx, f.Statement.CaseItem)
	if err != nil {
		return false, p.dataError(err)
	}
	if len(vs) == 0 {
		p.Errorf("%v", &NoCaseValue{Statement: f.Statement})
		return false, nil
	}
	f.CaseItem = copyList(vs)
	return true, nil
}

func (f *CallFrame) closeCursor(p *Processor) {
	if f.Enum == nil {
		return
	}
	if err := f.Enum.GotoEnd(); err != nil {
		p.Errorf("closing cursor: %v", err)
	}
	f.Enum = nil
}

// bindRow binds the row's values to the loop variables.  All but the
// last variable get one value each, and the last gets the rest.
func bindRow(p *Processor, vars []Assignable, row []neuron.Neuron) error {
	n := len(vars)
	for i, v := range vars {
		var vs []neuron.Neuron
		switch {
		case i == n-1 && i < len(row):
			vs = row[i:]
		case i < len(row):
			vs = row[i : i+1]
		}
		if err := v.StoreValue(p, vs); err != nil {
			return err
		}
	}
	return nil
}

// duplicate makes the frame for the clone in the given slot.
func (f *CallFrame) duplicate(index int, s *ProcessorSplitter, target *Processor) (*CallFrame, error) {
	d := target.Mem.NewFrame(f.Kind)
	*d = *f
	if f.Code != nil {
		d.Code = append(target.Mem.Code.Get(), f.Code...)
	}
	d.Locks = nil
	d.LocalsBuffer = s.dupLocals(f.LocalsBuffer, index, target)
	d.CaseItem = s.remapList(f.CaseItem, index)
	d.Items = s.remapList(f.Items, index)
	d.Enum = nil
	if f.Enum != nil {
		c, err := s.cursorFor(f, index)
		if err != nil {
			return nil, err
		}
		d.Enum = c
	}
	return d, nil
}

// dataError passes structural errors through and logs the rest.
func (p *Processor) dataError(err error) error {
	if err == nil || isStructural(err) {
		return err
	}
	p.Errorf("%v", err)
	return nil
}
