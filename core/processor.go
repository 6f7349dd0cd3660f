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

// ProcessorState is the processor's control-flow state.  Break,
// Continue, Exit, and ExitNeuron are pending signals that the frame
// loop acts on after the current expression.
type ProcessorState int

const (
	StateNormal ProcessorState = iota
	StateBreak
	StateContinue
	StateExit
	StateExitNeuron
	StateTerminated
	StateNotUnderstood
)

var processorStateNames = []string{"normal", "break", "continue", "exit", "exitNeuron", "terminated", "notUnderstood"}

func (s ProcessorState) String() string {
	if s < 0 || int(s) >= len(processorStateNames) {
		return "unknown"
	}
	return processorStateNames[s]
}

func (s ProcessorState) isSignal() bool {
	switch s {
	case StateBreak, StateContinue, StateExit, StateExitNeuron:
		return true
	}
	return false
}

// RulesProvider is a meaning neuron that knows its rules directly.
// Other meanings provide rules through a link whose meaning is
// neuron.Rules.
type RulesProvider interface {
	Rules() neuron.Cluster
}

// Processor executes expressions on behalf of one line of reasoning.
//
// A Processor's stack, frames, and variables are only touched by the
// goroutine that runs it.  The exceptions are Kill and the frozen
// set.
type Processor struct {
	serial uint64
	tm     *ThreadManager
	ctx    context.Context
	tree   *runTree
	clone  bool

	// NeuronStack is the data stack.  Neurons left on it when all
	// frames are done get solved.
	NeuronStack []neuron.Neuron

	frames []*CallFrame

	Vars    VarDictsStack
	Globals *VarDict

	// CurrentFrom is the neuron being solved.
	CurrentFrom neuron.Neuron

	CurrentLink    *neuron.Link
	CurrentMeaning neuron.Neuron
	CurrentTo      neuron.Neuron
	CurrentInfo    []neuron.Neuron

	links          []*neuron.Link
	linkIndex      int
	pendingActions *neuron.Link
	solving        bool
	understood     bool

	State       ProcessorState
	signalFrame int

	SplitData    *SplitData
	SplitResults *SplitResultsDict

	// StackReaction is the split policy for the data stack and the
	// neuron being solved.
	StackReaction SplitReaction

	weight float64

	frozenMu sync.Mutex
	frozen   map[neuron.Neuron]struct{}

	killed atomic.Bool

	// PreventKill spares the processor from StopAll.  Kill still
	// stops it.
	PreventKill bool

	Mem *MemoryFactory
}

// Serial returns the processor's number, which is also its freeze
// owner.
func (p *Processor) Serial() uint64 {
	return p.serial
}

func (p *Processor) ThreadManager() *ThreadManager {
	return p.tm
}

// Values returns the manager's ValueMapper.
func (p *Processor) Values() ValueMapper {
	if p.tm == nil {
		return nil
	}
	return p.tm.Values
}

func (p *Processor) Push(n neuron.Neuron) {
	p.NeuronStack = append(p.NeuronStack, n)
}

// Pop returns nil when the stack is empty.
func (p *Processor) Pop() neuron.Neuron {
	n := len(p.NeuronStack)
	if n == 0 {
		return nil
	}
	x := p.NeuronStack[n-1]
	p.NeuronStack[n-1] = nil
	p.NeuronStack = p.NeuronStack[:n-1]
	return x
}

// Peek returns neuron.Empty when the stack is empty.
func (p *Processor) Peek() neuron.Neuron {
	if n := len(p.NeuronStack); 0 < n {
		return p.NeuronStack[n-1]
	}
	return neuron.Empty
}

// Depth returns the number of frames.
func (p *Processor) Depth() int {
	return len(p.frames)
}

// TopFrame returns nil when there are no frames.
func (p *Processor) TopFrame() *CallFrame {
	if n := len(p.frames); 0 < n {
		return p.frames[n-1]
	}
	return nil
}

func (p *Processor) hasWork() bool {
	return 0 < len(p.frames) || p.solving || 0 < len(p.NeuronStack)
}

// Reset makes the processor as good as new.
func (p *Processor) Reset() {
	p.clearFrames()
	clear(p.NeuronStack)
	p.NeuronStack = p.NeuronStack[:0]
	for p.Vars.Len() > 0 {
		p.Mem.ReleaseDict(p.Vars.Pop())
	}
	p.Mem.ClearDict(p.Globals)
	p.endSolve()
	p.State = StateNormal
	p.signalFrame = 0
	p.SplitData = nil
	p.SplitResults.Clear()
	p.StackReaction = SplitDefault
	p.weight = 0
	p.unfreezeAll()
	p.killed.Store(false)
	p.PreventKill = false
	p.ctx = nil
	p.tree = nil
	p.clone = false
}

// abandon drops all work.  Locks are released and locals restored.
func (p *Processor) abandon() {
	p.clearFrames()
	clear(p.NeuronStack)
	p.NeuronStack = p.NeuronStack[:0]
	p.endSolve()
}

func (p *Processor) clearFrames() {
	for 0 < len(p.frames) {
		p.popFrame()
	}
}

func (p *Processor) Logf(format string, args ...interface{}) {
	if p.tm != nil {
		p.tm.Logf("processor %d "+format, append([]interface{}{p.serial}, args...)...)
	}
}

func (p *Processor) Errorf(format string, args ...interface{}) {
	if p.tm != nil {
		p.tm.Errorf("processor %d "+format, append([]interface{}{p.serial}, args...)...)
		return
	}
	log.Printf("ERROR processor %d "+format, append([]interface{}{p.serial}, args...)...)
}

// Kill asks the processor to stop at the next expression.
func (p *Processor) Kill() {
	p.killed.Store(true)
	if p.tm != nil {
		p.tm.Locks.Wake()
	}
}

func (p *Processor) IsKilled() bool {
	return p.killed.Load()
}

func (p *Processor) checkStop(ctx context.Context) error {
	if p.killed.Load() {
		return ErrProcessorStopped
	}
	if p.tm != nil && p.tm.stopping(p) {
		return ErrProcessorStopped
	}
	if ctx != nil && ctx.Err() != nil {
		return ErrProcessorStopped
	}
	return nil
}

// Freeze pins the neuron until the processor is done.
func (p *Processor) Freeze(n neuron.Neuron) {
	if n == nil {
		return
	}
	p.frozenMu.Lock()
	if _, have := p.frozen[n]; !have {
		if p.frozen == nil {
			p.frozen = make(map[neuron.Neuron]struct{}, 8)
		}
		p.frozen[n] = struct{}{}
		n.Freeze(p.serial)
	}
	p.frozenMu.Unlock()
}

// Frozen returns the neurons this processor has frozen.
func (p *Processor) Frozen() []neuron.Neuron {
	p.frozenMu.Lock()
	acc := make([]neuron.Neuron, 0, len(p.frozen))
	for n := range p.frozen {
		acc = append(acc, n)
	}
	p.frozenMu.Unlock()
	return acc
}

func (p *Processor) unfreezeAll() {
	p.frozenMu.Lock()
	for n := range p.frozen {
		n.Unfreeze(p.serial)
		delete(p.frozen, n)
	}
	p.frozenMu.Unlock()
}

// copyFrozenTo freezes everything we have frozen on behalf of dst.
// Our set is locked before dst's, and both before any neuron.
func (p *Processor) copyFrozenTo(dst *Processor) {
	p.frozenMu.Lock()
	defer p.frozenMu.Unlock()
	dst.frozenMu.Lock()
	defer dst.frozenMu.Unlock()
	if dst.frozen == nil {
		dst.frozen = make(map[neuron.Neuron]struct{}, len(p.frozen))
	}
	for n := range p.frozen {
		if _, have := dst.frozen[n]; !have {
			dst.frozen[n] = struct{}{}
			n.Freeze(dst.serial)
		}
	}
}

// AddResult records a result for the enclosing split.
func (p *Processor) AddResult(n neuron.Neuron, w float64) {
	accum := p.SplitData != nil && p.SplitData.Head.IsAccum
	p.SplitResults.Add(n, w, accum)
}

// Results are this processor's results so far, heaviest first.
func (p *Processor) Results() []Result {
	return p.SplitResults.Results()
}

// IncreaseWeight adds to the weight that will be applied to this
// processor's results at the next join.
func (p *Processor) IncreaseWeight(w float64) {
	if p.SplitData != nil {
		p.SplitData.Weight += w
		return
	}
	p.weight += w
}

func (p *Processor) Weight() float64 {
	if p.SplitData != nil {
		return p.SplitData.Weight
	}
	return p.weight
}

// SolveArg solves a ResultExpression.  Any other neuron stands for
// itself.
func (p *Processor) SolveArg(ctx context.Context, n neuron.Neuron) ([]neuron.Neuron, error) {
	switch x := n.(type) {
	case nil:
		return nil, nil
	case ResultExpression:
		return x.Solve(ctx, p)
	}
	return []neuron.Neuron{n}, nil
}

// SolveArgs solves each argument and concatenates the results.
func (p *Processor) SolveArgs(ctx context.Context, args []neuron.Neuron) ([]neuron.Neuron, error) {
	var acc []neuron.Neuron
	for _, a := range args {
		vs, err := p.SolveArg(ctx, a)
		if err != nil {
			return nil, err
		}
		acc = append(acc, vs...)
	}
	return acc, nil
}

// EvaluateCondition decides whether a condition holds.
//
// Without compareTo, a BoolExpression is evaluated and a
// ResultExpression holds unless one of its values is neuron.False.
// With compareTo, the condition's solved values must equal compareTo
// element-wise.  A nil (or Empty) condition always holds.
func (p *Processor) EvaluateCondition(ctx context.Context, compareTo []neuron.Neuron, cond neuron.Neuron, index int) (bool, error) {
	if cond == nil || cond == neuron.Empty {
		return true, nil
	}

	if compareTo == nil {
		switch x := cond.(type) {
		case BoolExpression:
			return x.Evaluate(ctx, p)
		case ResultExpression:
			vs, err := x.Solve(ctx, p)
			if err != nil {
				return false, err
			}
			for _, v := range vs {
				if v == neuron.False {
					return false, nil
				}
			}
			return true, nil
		}
		switch cond {
		case neuron.True:
			return true, nil
		case neuron.False:
			return false, nil
		}
		return false, &NotEvaluable{Condition: cond, Index: index}
	}

	vs, err := p.SolveArg(ctx, cond)
	if err != nil {
		return false, err
	}
	return neuron.SequenceEqual(compareTo, vs), nil
}

// DeclareLocal hides the current value of v until the current frame
// is popped.
func (p *Processor) DeclareLocal(v *Variable) error {
	f := p.TopFrame()
	d := p.Vars.Top()
	if f == nil || d == nil {
		return &InvalidOperation{
			Op:  "local",
			Msg: "no scope for " + v.Name,
		}
	}
	f.LocalsBuffer = append(f.LocalsBuffer, localValue{
		Var:   v,
		Saved: d.Detach(v),
	})
	return nil
}

func (p *Processor) restoreLocals(f *CallFrame) {
	d := p.Vars.Top()
	if d == nil {
		return
	}
	for i := len(f.LocalsBuffer) - 1; 0 <= i; i-- {
		lv := f.LocalsBuffer[i]
		p.Mem.ReleaseValueList(d, d.Detach(lv.Var))
		d.Set(lv.Var, lv.Saved)
	}
	f.LocalsBuffer = nil
}

// Call executes the cluster's children in a fresh variable scope and
// returns when they are done.
func (p *Processor) Call(ctx context.Context, c neuron.Cluster) error {
	base := len(p.frames)
	if _, err := p.pushCode(c, ChildrenList, c, PlainFrame, true); err != nil {
		return err
	}
	return p.processFrames(ctx, base)
}

// PushCluster schedules the cluster to run in a fresh variable scope
// the next time the processor runs.
func (p *Processor) PushCluster(c neuron.Cluster) error {
	_, err := p.pushCode(c, ChildrenList, c, PlainFrame, true)
	return err
}

func (p *Processor) pushCode(c neuron.Cluster, lt CodeListType, source neuron.Neuron, kind FrameKind, newDict bool) (*CallFrame, error) {
	var code []Expression
	if c != nil {
		var err error
		if code, err = p.Mem.CodeFor(c); err != nil {
			return nil, err
		}
	}
	f := p.Mem.NewFrame(kind)
	f.Code = code
	f.CodeListType = lt
	f.ExecSource = source
	if newDict {
		p.Vars.Push(p.Mem.NewDict())
		f.CausedNewVarDict = true
	}
	p.frames = append(p.frames, f)
	return f, nil
}

func (p *Processor) pushConditional(s *ConditionalStatement) {
	f := p.Mem.NewFrame(s.Kind.frameKind())
	f.Statement = s
	f.ExecSource = s
	f.skipTest = s.Kind == Until
	p.frames = append(p.frames, f)
}

func (p *Processor) pushBlock(b *ExpressionsBlock, locks []neuron.Neuron) error {
	f, err := p.pushCode(b.Statements, ConditionalList, b, BlockFrame, false)
	if err != nil {
		return err
	}
	f.Locks = locks
	return nil
}

func (p *Processor) pushCall(c neuron.Cluster) error {
	_, err := p.pushCode(c, ChildrenList, c, CallInstFrame, true)
	return err
}

func (p *Processor) pushPre(f *CallFrame) bool {
	if _, err := p.pushCode(f.Statement.Pre, ConditionalList, f.Statement, PlainFrame, false); err != nil {
		p.Errorf("pre-code of %s: %v", f.Statement.ID(), err)
		return false
	}
	return true
}

// pushBody pushes the body of a condition that holds.  A condition
// without statements has an empty body.
func (p *Processor) pushBody(f *CallFrame, c *ConditionalExpression) bool {
	f.NextExp = frameEvaluated
	if c.Statements == nil {
		return true
	}
	if _, err := p.pushCode(c.Statements, ConditionalList, c, PlainFrame, false); err != nil {
		p.Errorf("body of %s: %v", c.ID(), err)
		return false
	}
	return true
}

// pickBody pushes the body of the first condition that holds.
func (p *Processor) pickBody(ctx context.Context, f *CallFrame, compareTo []neuron.Neuron) (bool, error) {
	for i, c := range f.Statement.Conditions {
		ok, err := p.EvaluateCondition(ctx, compareTo, c.Condition, i)
		if err != nil {
			return false, p.dataError(err)
		}
		if ok {
			return p.pushBody(f, c), nil
		}
	}
	return false, nil
}

func (p *Processor) popFrame() error {
	n := len(p.frames)
	if n == 0 {
		return ErrNoFrames
	}
	f := p.frames[n-1]
	p.frames[n-1] = nil
	p.frames = p.frames[:n-1]
	p.releaseFrame(f)
	return nil
}

func (p *Processor) releaseFrame(f *CallFrame) {
	p.restoreLocals(f)
	if f.CausedNewVarDict {
		p.Mem.ReleaseDict(p.Vars.Pop())
	}
	if f.Locks != nil {
		p.unlock(f.Locks)
		p.Mem.LockLists.Put(f.Locks)
	}
	f.closeCursor(p)
	p.Mem.ReleaseCode(f.Code)
	p.Mem.ReleaseFrame(f)
}

func (p *Processor) lock(ctx context.Context, ns []neuron.Neuron) error {
	if p.tm == nil {
		return ErrNoThreadManager
	}
	return p.tm.Locks.Lock(ctx, p, ns)
}

func (p *Processor) unlock(ns []neuron.Neuron) {
	if p.tm != nil {
		p.tm.Locks.Unlock(p, ns)
	}
}

// processFrames runs frames until no more than base remain.
func (p *Processor) processFrames(ctx context.Context, base int) error {
	for base < len(p.frames) {
		if err := p.checkStop(ctx); err != nil {
			return err
		}
		if p.State.isSignal() {
			p.unwind(base)
			continue
		}
		f := p.frames[len(p.frames)-1]
		if !f.exhausted() {
			exp := f.Code[f.NextExp]
			f.NextExp++
			if err := p.execute(ctx, exp); err != nil {
				return err
			}
			continue
		}
		done, err := f.advance(ctx, p)
		if err != nil {
			return err
		}
		if done && !p.State.isSignal() {
			p.popFrame()
		}
	}
	return nil
}

func (p *Processor) execute(ctx context.Context, exp Expression) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.Errorf("expression %s panicked: %v", exp.ID(), r)
			err = nil
		}
	}()
	return p.dataError(exp.Execute(ctx, p))
}

// unwind acts on a pending control signal.
func (p *Processor) unwind(base int) {
	switch p.State {
	case StateExit:
		for p.signalFrame < len(p.frames) && base < len(p.frames) {
			p.popFrame()
		}
		p.State = StateNormal
	case StateBreak, StateContinue:
		for p.signalFrame+1 < len(p.frames) {
			p.popFrame()
		}
		if p.State == StateBreak {
			f := p.frames[p.signalFrame]
			f.DidBreak = true
			f.closeCursor(p)
		}
		p.State = StateNormal
	case StateExitNeuron:
		for base < len(p.frames) {
			p.popFrame()
		}
		if !p.solving {
			p.State = StateNormal
		}
	}
}

// Exit leaves the current function.
func (p *Processor) Exit() {
	p.signalFrame = 0
	for i := len(p.frames) - 1; 0 <= i; i-- {
		if p.frames[i].isBoundary() {
			p.signalFrame = i
			break
		}
	}
	p.State = StateExit
}

// ExitNeuron abandons the neuron being solved, including its
// remaining links and actions.
func (p *Processor) ExitNeuron() {
	p.State = StateExitNeuron
}

// ExitConditional breaks out of the innermost loop.
func (p *Processor) ExitConditional() error {
	i, err := p.loopFrame("break")
	if err != nil {
		return err
	}
	p.signalFrame = i
	p.State = StateBreak
	return nil
}

// ContinueConditional starts the next iteration of the innermost
// loop.
func (p *Processor) ContinueConditional() error {
	i, err := p.loopFrame("continue")
	if err != nil {
		return err
	}
	p.signalFrame = i
	p.State = StateContinue
	return nil
}

func (p *Processor) loopFrame(op string) (int, error) {
	for i := len(p.frames) - 1; 0 <= i; i-- {
		f := p.frames[i]
		if f.isLoop() {
			return i, nil
		}
		if f.isBoundary() {
			break
		}
	}
	return 0, &InvalidOperation{
		Op:  op,
		Msg: "not inside a loop",
	}
}

func (p *Processor) beginSolve(n neuron.Neuron) {
	p.CurrentFrom = n
	p.links = n.LinksOut()
	p.linkIndex = 0
	p.pendingActions = nil
	p.solving = true
	p.understood = false
	p.State = StateNormal
	p.Freeze(n)
}

func (p *Processor) endSolve() {
	p.solving = false
	p.links = nil
	p.linkIndex = 0
	p.pendingActions = nil
	p.CurrentFrom = nil
	p.CurrentLink = nil
	p.CurrentMeaning = nil
	p.CurrentTo = nil
	p.CurrentInfo = nil
}

func (p *Processor) setCurrentLink(l *neuron.Link) {
	p.CurrentLink = l
	p.CurrentMeaning = l.Meaning
	p.CurrentTo = l.To
	p.CurrentInfo = l.Info
}

// rulesOf finds the rules that the meaning stands for.  A meaning
// without rules returns nil.
func rulesOf(l *neuron.Link) (neuron.Cluster, error) {
	if l.Meaning == nil {
		return nil, &UnresolvedMeaning{Link: l}
	}
	if rp, is := l.Meaning.(RulesProvider); is {
		return rp.Rules(), nil
	}
	for _, r := range l.Meaning.LinksOut() {
		if r.IsMeaning(neuron.RulesID) {
			c, is := r.To.(neuron.Cluster)
			if !is {
				return nil, &UnresolvedMeaning{Link: l}
			}
			return c, nil
		}
	}
	return nil, nil
}

// nextLink starts the rules for the next link of the neuron being
// solved.  The Actions link runs after all the others.
func (p *Processor) nextLink() {
	if p.State == StateExitNeuron {
		p.State = StateNormal
		p.endSolve()
		return
	}
	for p.linkIndex < len(p.links) {
		l := p.links[p.linkIndex]
		p.linkIndex++
		if l.IsMeaning(neuron.ActionsID) {
			if p.pendingActions == nil {
				p.pendingActions = l
			} else {
				p.Errorf("%s has more than one Actions link", p.CurrentFrom.ID())
			}
			continue
		}
		rules, err := rulesOf(l)
		if err != nil {
			p.Errorf("%v", err)
			continue
		}
		if rules == nil {
			continue
		}
		p.setCurrentLink(l)
		if _, err := p.pushCode(rules, RulesList, l.Meaning, PlainFrame, true); err != nil {
			p.Errorf("rules of %s: %v", l.Meaning.ID(), err)
			continue
		}
		p.understood = true
		return
	}

	if a := p.pendingActions; a != nil {
		p.pendingActions = nil
		c, is := a.To.(neuron.Cluster)
		if !is {
			p.Errorf("actions of %s aren't a cluster", p.CurrentFrom.ID())
		} else {
			p.setCurrentLink(a)
			if _, err := p.pushCode(c, ActionsList, c, PlainFrame, true); err != nil {
				p.Errorf("actions of %s: %v", p.CurrentFrom.ID(), err)
			} else {
				p.understood = true
				return
			}
		}
	}

	if !p.understood {
		p.Logf("didn't understand %s", p.CurrentFrom.ID())
		p.State = StateNotUnderstood
	}
	p.endSolve()
}

// drive runs until there's nothing left to do.
func (p *Processor) drive(ctx context.Context) error {
	for {
		if err := p.checkStop(ctx); err != nil {
			return err
		}
		switch {
		case 0 < len(p.frames):
			if err := p.processFrames(ctx, 0); err != nil {
				return err
			}
		case p.solving:
			p.nextLink()
		case 0 < len(p.NeuronStack):
			p.beginSolve(p.Pop())
		default:
			if p.State.isSignal() {
				p.State = StateNormal
			}
			return nil
		}
	}
}

// safeDrive is drive that turns a panic into an error.
func (p *Processor) safeDrive(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &InvalidOperation{
				Op:  "run",
				Msg: panicMessage(r),
			}
		}
	}()
	return p.drive(ctx)
}

// Split makes count-1 clones (or one per value) that continue from
// here.  See ThreadManager.Split.
func (p *Processor) Split(ctx context.Context, args *SplitArgs) error {
	if p.tm == nil {
		return ErrNoThreadManager
	}
	return p.tm.Split(ctx, p, args)
}

// Solve starts the processor on the manager.  Neurons on the stack
// get solved and pushed clusters run.
func (p *Processor) Solve(ctx context.Context) error {
	if p.tm == nil {
		return ErrNoThreadManager
	}
	p.tm.Start(ctx, p)
	return nil
}

// SolveBlocked is Solve that waits for the processor and all of its
// split descendants to finish.  Returns the joined results.
func (p *Processor) SolveBlocked(ctx context.Context) (*SplitResultsDict, error) {
	if p.tm == nil {
		return nil, ErrNoThreadManager
	}
	return p.tm.SolveBlocked(ctx, p)
}
