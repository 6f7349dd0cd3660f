package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Comcast/axon/neuron"
)

type testNet struct {
	sync.Mutex
	next neuron.ID
}

func (n *testNet) Add(x neuron.Neuron) neuron.ID {
	n.Lock()
	n.next++
	id := neuron.FirstFreeID + n.next
	n.Unlock()
	x.(neuron.Based).Base().Init(id, n)
	return id
}

var network = &testNet{}

// atom is a plain data neuron with a name.
type atom struct {
	neuron.Node
	name string
}

func newAtom(name string) *atom {
	a := &atom{name: name}
	network.Add(a)
	return a
}

func (a *atom) Duplicate() (neuron.Neuron, error) {
	return a.Base().DuplicateWith(&atom{name: a.name})
}

func (a *atom) String() string {
	return a.name
}

// num is a number for FloatArg.
type num struct {
	neuron.Node
	v float64
}

type testValues struct{}

func (testValues) ToNeuron(x interface{}) (neuron.Neuron, error) {
	return &num{v: x.(float64)}, nil
}

func (testValues) FromNeuron(n neuron.Neuron) interface{} {
	if x, is := n.(*num); is {
		return x.v
	}
	return nil
}

type boolFunc struct {
	Code
	f func(p *Processor) bool
}

func (b *boolFunc) Evaluate(ctx context.Context, p *Processor) (bool, error) {
	return b.f(p), nil
}

type fixed struct {
	Code
	vs []neuron.Neuron
}

func (f *fixed) Solve(ctx context.Context, p *Processor) ([]neuron.Neuron, error) {
	return f.vs, nil
}

// recorder collects labels from instructions.
type recorder struct {
	sync.Mutex
	xs []string
}

func (r *recorder) add(s string) {
	r.Lock()
	r.xs = append(r.xs, s)
	r.Unlock()
}

func (r *recorder) got() []string {
	r.Lock()
	defer r.Unlock()
	return append([]string(nil), r.xs...)
}

func (r *recorder) mark(s string) *Statement {
	return do(func(p *Processor) {
		r.add(s)
	})
}

// names records the names of the neurons the argument solves to.
func (r *recorder) names(arg neuron.Neuron) *Statement {
	return &Statement{
		Instruction: InstructionFunc(func(ctx context.Context, p *Processor, args []neuron.Neuron) ([]neuron.Neuron, error) {
			vs, err := p.SolveArg(ctx, args[0])
			if err != nil {
				return nil, err
			}
			for _, v := range vs {
				r.add(v.(*atom).name)
			}
			return nil, nil
		}),
		Args: []neuron.Neuron{arg},
	}
}

func sameStrings(xs, ys []string) bool {
	if len(xs) != len(ys) {
		return false
	}
	for i, x := range xs {
		if x != ys[i] {
			return false
		}
	}
	return true
}

func do(f func(p *Processor)) *Statement {
	return &Statement{
		Instruction: InstructionFunc(func(ctx context.Context, p *Processor, args []neuron.Neuron) ([]neuron.Neuron, error) {
			f(p)
			return nil, nil
		}),
	}
}

func inst(name string, args ...neuron.Neuron) *Statement {
	return &Statement{
		Name:        name,
		Instruction: Instructions[name],
		Args:        args,
	}
}

func code(es ...Expression) *List {
	ns := make([]neuron.Neuron, len(es))
	for i, e := range es {
		ns[i] = e
	}
	l := NewList(ns...)
	network.Add(l)
	return l
}

func cond(c neuron.Neuron, body ...Expression) *ConditionalExpression {
	return &ConditionalExpression{
		Condition:  c,
		Statements: code(body...),
	}
}

func variable(name string, r SplitReaction) *Variable {
	v := &Variable{Name: name, Reaction: r}
	network.Add(v)
	return v
}

func newTM(t *testing.T, max int) *ThreadManager {
	tm := NewThreadManager(max)
	tm.Values = testValues{}
	return tm
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func eventually(t *testing.T, what string, f func() bool) {
	deadline := time.Now().Add(3 * time.Second)
	for !f() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
