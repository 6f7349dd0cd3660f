package core

import (
	"context"

	"github.com/Comcast/axon/neuron"
)

// Statement runs an instruction with (unsolved) arguments.
type Statement struct {
	Code
	Name        string
	Instruction Instruction
	Args        []neuron.Neuron
}

func (s *Statement) Execute(ctx context.Context, p *Processor) error {
	_, err := s.exec(ctx, p)
	return err
}

func (s *Statement) exec(ctx context.Context, p *Processor) ([]neuron.Neuron, error) {
	if s.Instruction == nil {
		return nil, &InvalidOperation{
			Op:  "execute",
			Msg: "statement " + s.Name + " has no instruction",
		}
	}
	return s.Instruction.Exec(ctx, p, s.Args)
}

// ResultStatement is a Statement whose results can be used as a
// value.
type ResultStatement struct {
	Statement
}

func (s *ResultStatement) Solve(ctx context.Context, p *Processor) ([]neuron.Neuron, error) {
	return s.exec(ctx, p)
}

// Assignment stores the solved value of Right in Left.
type Assignment struct {
	Code
	Left  Assignable
	Right neuron.Neuron
}

func (a *Assignment) Execute(ctx context.Context, p *Processor) error {
	vs, err := p.SolveArg(ctx, a.Right)
	if err != nil {
		return err
	}
	return a.Left.StoreValue(p, vs)
}

// ConditionalKind says which flavor of conditional a
// ConditionalStatement is.
type ConditionalKind int

const (
	If ConditionalKind = iota

	// Case compares the solved CaseItem to each condition.
	Case

	// Looped repeats until no condition holds.
	Looped

	// CaseLooped is Looped with a CaseItem that is solved again for
	// every iteration.
	CaseLooped

	// ForEach iterates over the solved CaseItem.  Each item is
	// stored in LoopItem, and the first condition that holds picks
	// the body.
	ForEach

	// ForQuery iterates over the rows of Source, which must be a
	// ForEachSource.  Row values are bound to LoopVars.
	ForQuery

	// Until runs the first condition's body, then repeats it while
	// that condition holds.  Pre runs before each test.
	Until
)

var conditionalKindNames = []string{"if", "case", "looped", "caselooped", "foreach", "forquery", "until"}

func (k ConditionalKind) String() string {
	if k < 0 || int(k) >= len(conditionalKindNames) {
		return "unknown"
	}
	return conditionalKindNames[k]
}

// ParseConditionalKind parses the String() form.
func ParseConditionalKind(s string) (ConditionalKind, bool) {
	for i, name := range conditionalKindNames {
		if name == s {
			return ConditionalKind(i), true
		}
	}
	return If, false
}

func (k ConditionalKind) frameKind() FrameKind {
	switch k {
	case Case:
		return CaseFrame
	case Looped:
		return LoopedFrame
	case CaseLooped:
		return CaseLoopedFrame
	case ForEach:
		return ForEachFrame
	case ForQuery:
		return ForQueryFrame
	case Until:
		return UntilFrame
	}
	return IfFrame
}

// ConditionalExpression is one branch of a ConditionalStatement.
// A nil (or Empty) Condition always holds.
type ConditionalExpression struct {
	Code
	Condition  neuron.Neuron
	Statements neuron.Cluster
}

// ConditionalStatement is if/case/loop/foreach/until.
type ConditionalStatement struct {
	Code
	Kind       ConditionalKind
	CaseItem   neuron.Neuron
	LoopItem   Assignable
	LoopVars   []Assignable
	Source     neuron.Neuron
	Pre        neuron.Cluster
	Conditions []*ConditionalExpression
}

func (s *ConditionalStatement) Execute(ctx context.Context, p *Processor) error {
	p.pushConditional(s)
	return nil
}

// ExpressionsBlock runs its statements while holding locks on the
// solved Locks.
type ExpressionsBlock struct {
	Code
	Statements neuron.Cluster
	Locks      neuron.Neuron
}

func (b *ExpressionsBlock) Execute(ctx context.Context, p *Processor) error {
	var locks []neuron.Neuron
	if b.Locks != nil {
		vs, err := p.SolveArg(ctx, b.Locks)
		if err != nil {
			return err
		}
		if 0 < len(vs) {
			locks = append(p.Mem.LockLists.Get(), vs...)
			if err := p.lock(ctx, locks); err != nil {
				p.Mem.LockLists.Put(locks)
				return err
			}
		}
	}
	if err := p.pushBlock(b, locks); err != nil {
		if locks != nil {
			p.unlock(locks)
			p.Mem.LockLists.Put(locks)
		}
		return err
	}
	return nil
}

// Equals holds when the two sides solve to the same neurons.
type Equals struct {
	Code
	Left, Right neuron.Neuron
}

func (e *Equals) Evaluate(ctx context.Context, p *Processor) (bool, error) {
	l, err := p.SolveArg(ctx, e.Left)
	if err != nil {
		return false, err
	}
	r, err := p.SolveArg(ctx, e.Right)
	if err != nil {
		return false, err
	}
	return neuron.SequenceEqual(l, r), nil
}

// Not holds when its operand doesn't.
type Not struct {
	Code
	X neuron.Neuron
}

func (n *Not) Evaluate(ctx context.Context, p *Processor) (bool, error) {
	ok, err := p.EvaluateCondition(ctx, nil, n.X, 0)
	return !ok, err
}
