package core

import (
	"context"
	"fmt"

	"github.com/Comcast/axon/neuron"
)

// Instructions are the built-in instructions by name.
var Instructions = map[string]Instruction{
	"split":       &SplitInstruction{Weight: 1},
	"splitAccum":  &SplitInstruction{Weight: 1, Accum: true},
	"exit":        control(func(p *Processor) error { p.Exit(); return nil }),
	"exitNeuron":  control(func(p *Processor) error { p.ExitNeuron(); return nil }),
	"break":       control((*Processor).ExitConditional),
	"continue":    control((*Processor).ContinueConditional),
	"call":        InstructionFunc(callInstruction),
	"callBlocked": InstructionFunc(callBlockedInstruction),
	"suspend":     InstructionFunc(suspendInstruction),
	"awake":       InstructionFunc(awakeInstruction),
	"local":       InstructionFunc(localInstruction),
	"push":        InstructionFunc(pushInstruction),
	"pop":         InstructionFunc(popInstruction),
	"peek":        InstructionFunc(peekInstruction),
	"addResult":   InstructionFunc(addResultInstruction),
	"weight":      InstructionFunc(weightInstruction),
	"freeze":      InstructionFunc(freezeInstruction),
	"results":     InstructionFunc(resultsInstruction),
	"items":       InstructionFunc(itemsInstruction),
	"from": InstructionFunc(func(ctx context.Context, p *Processor, args []neuron.Neuron) ([]neuron.Neuron, error) {
		return current(p.CurrentFrom), nil
	}),
	"to": InstructionFunc(func(ctx context.Context, p *Processor, args []neuron.Neuron) ([]neuron.Neuron, error) {
		return current(p.CurrentTo), nil
	}),
	"meaning": InstructionFunc(func(ctx context.Context, p *Processor, args []neuron.Neuron) ([]neuron.Neuron, error) {
		return current(p.CurrentMeaning), nil
	}),
}

func current(n neuron.Neuron) []neuron.Neuron {
	if n == nil {
		return nil
	}
	return []neuron.Neuron{n}
}

func control(f func(p *Processor) error) Instruction {
	return InstructionFunc(func(ctx context.Context, p *Processor, args []neuron.Neuron) ([]neuron.Neuron, error) {
		return nil, f(p)
	})
}

func argError(name string, want string, args []neuron.Neuron) error {
	return &InvalidOperation{
		Op:  name,
		Msg: fmt.Sprintf("wanted %s but got %d arguments", want, len(args)),
	}
}

// clusterArg solves the argument (if needed) to a cluster.
func clusterArg(ctx context.Context, p *Processor, n neuron.Neuron) (neuron.Cluster, error) {
	if c, is := n.(neuron.Cluster); is {
		return c, nil
	}
	vs, err := p.SolveArg(ctx, n)
	if err != nil {
		return nil, err
	}
	if len(vs) == 1 {
		if c, is := vs[0].(neuron.Cluster); is {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%s isn't a cluster", n.ID())
}

// FloatArg converts a neuron to a number using the processor's
// ValueMapper.
func FloatArg(p *Processor, n neuron.Neuron) (float64, error) {
	vm := p.Values()
	if vm == nil {
		return 0, fmt.Errorf("no value mapper for %s", n.ID())
	}
	switch x := vm.FromNeuron(n).(type) {
	case float64:
		return x, nil
	case int64:
		return float64(x), nil
	case int:
		return float64(x), nil
	}
	return 0, fmt.Errorf("%s isn't a number", n.ID())
}

// numberArg solves the argument to exactly one number.
func numberArg(ctx context.Context, p *Processor, name string, n neuron.Neuron) (float64, error) {
	vs, err := p.SolveArg(ctx, n)
	if err != nil {
		return 0, err
	}
	if len(vs) != 1 {
		return 0, fmt.Errorf("%s: wanted one number but got %d values", name, len(vs))
	}
	return FloatArg(p, vs[0])
}

// SplitInstruction is split(callback, var, values...).  The callback
// and the variable can be Empty.  Without a variable, the values only
// determine the count.
type SplitInstruction struct {
	Weight float64
	Accum  bool
}

func (s *SplitInstruction) Exec(ctx context.Context, p *Processor, args []neuron.Neuron) ([]neuron.Neuron, error) {
	if len(args) < 2 {
		return nil, argError("split", "a callback, a variable, and values", args)
	}
	sa := &SplitArgs{
		Weight: s.Weight,
		Accum:  s.Accum,
	}
	if args[0] != nil && args[0] != neuron.Empty {
		c, err := clusterArg(ctx, p, args[0])
		if err != nil {
			return nil, err
		}
		sa.Callback = c
	}
	vs, err := p.SolveArgs(ctx, args[2:])
	if err != nil {
		return nil, err
	}
	if v, is := args[1].(Assignable); is {
		sa.Var = v
		sa.Values = vs
	} else {
		sa.Count = len(vs)
	}
	return nil, p.Split(ctx, sa)
}

func callInstruction(ctx context.Context, p *Processor, args []neuron.Neuron) ([]neuron.Neuron, error) {
	if len(args) != 1 {
		return nil, argError("call", "a cluster", args)
	}
	c, err := clusterArg(ctx, p, args[0])
	if err != nil {
		return nil, err
	}
	return nil, p.pushCall(c)
}

// callBlockedInstruction runs a cluster in a new processor and waits
// for all of it.  The results go to the variable given as the second
// argument, or they are returned.
func callBlockedInstruction(ctx context.Context, p *Processor, args []neuron.Neuron) ([]neuron.Neuron, error) {
	if len(args) < 1 || 2 < len(args) {
		return nil, argError("callBlocked", "a cluster and an optional variable", args)
	}
	if p.tm == nil {
		return nil, ErrNoThreadManager
	}
	c, err := clusterArg(ctx, p, args[0])
	if err != nil {
		return nil, err
	}
	callee := p.tm.NewProcessor()
	defer p.tm.Factory.Recycle(callee)
	if err := callee.PushCluster(c); err != nil {
		return nil, err
	}
	rs, err := p.tm.CallBlocked(ctx, p, callee)
	if err != nil {
		return nil, err
	}
	ns := rs.Neurons()
	if len(args) == 2 {
		v, is := args[1].(Assignable)
		if !is {
			return nil, fmt.Errorf("callBlocked: %s isn't assignable", args[1].ID())
		}
		return nil, v.StoreValue(p, ns)
	}
	return ns, nil
}

func keyArg(ctx context.Context, p *Processor, name string, args []neuron.Neuron) (neuron.Neuron, error) {
	if len(args) != 1 {
		return nil, argError(name, "a key", args)
	}
	vs, err := p.SolveArg(ctx, args[0])
	if err != nil {
		return nil, err
	}
	if len(vs) != 1 {
		return nil, fmt.Errorf("%s: key solved to %d neurons", name, len(vs))
	}
	return vs[0], nil
}

func suspendInstruction(ctx context.Context, p *Processor, args []neuron.Neuron) ([]neuron.Neuron, error) {
	key, err := keyArg(ctx, p, "suspend", args)
	if err != nil {
		return nil, err
	}
	if p.tm == nil {
		return nil, ErrNoThreadManager
	}
	return nil, p.tm.Suspend(ctx, p, key)
}

func awakeInstruction(ctx context.Context, p *Processor, args []neuron.Neuron) ([]neuron.Neuron, error) {
	key, err := keyArg(ctx, p, "awake", args)
	if err != nil {
		return nil, err
	}
	if p.tm == nil {
		return nil, ErrNoThreadManager
	}
	p.tm.Awake(key)
	return nil, nil
}

func localInstruction(ctx context.Context, p *Processor, args []neuron.Neuron) ([]neuron.Neuron, error) {
	for _, a := range args {
		v, is := a.(*Variable)
		if !is {
			return nil, fmt.Errorf("local: %s isn't a variable", a.ID())
		}
		if err := p.DeclareLocal(v); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func pushInstruction(ctx context.Context, p *Processor, args []neuron.Neuron) ([]neuron.Neuron, error) {
	vs, err := p.SolveArgs(ctx, args)
	if err != nil {
		return nil, err
	}
	for _, v := range vs {
		p.Push(v)
	}
	return nil, nil
}

func popInstruction(ctx context.Context, p *Processor, args []neuron.Neuron) ([]neuron.Neuron, error) {
	if n := p.Pop(); n != nil {
		return []neuron.Neuron{n}, nil
	}
	return nil, nil
}

func peekInstruction(ctx context.Context, p *Processor, args []neuron.Neuron) ([]neuron.Neuron, error) {
	return []neuron.Neuron{p.Peek()}, nil
}

// addResultInstruction is addResult(weight, values...).  The weight
// can be Empty for zero.
func addResultInstruction(ctx context.Context, p *Processor, args []neuron.Neuron) ([]neuron.Neuron, error) {
	if len(args) < 1 {
		return nil, argError("addResult", "a weight and values", args)
	}
	var w float64
	if args[0] != nil && args[0] != neuron.Empty {
		var err error
		if w, err = numberArg(ctx, p, "addResult", args[0]); err != nil {
			return nil, err
		}
	}
	vs, err := p.SolveArgs(ctx, args[1:])
	if err != nil {
		return nil, err
	}
	for _, v := range vs {
		p.AddResult(v, w)
	}
	return nil, nil
}

func weightInstruction(ctx context.Context, p *Processor, args []neuron.Neuron) ([]neuron.Neuron, error) {
	if len(args) != 1 {
		return nil, argError("weight", "a number", args)
	}
	w, err := numberArg(ctx, p, "weight", args[0])
	if err != nil {
		return nil, err
	}
	p.IncreaseWeight(w)
	return nil, nil
}

func freezeInstruction(ctx context.Context, p *Processor, args []neuron.Neuron) ([]neuron.Neuron, error) {
	vs, err := p.SolveArgs(ctx, args)
	if err != nil {
		return nil, err
	}
	for _, v := range vs {
		p.Freeze(v)
	}
	return nil, nil
}

// resultsInstruction returns the results so far, heaviest first.
// After a join, those are the merged results.
func resultsInstruction(ctx context.Context, p *Processor, args []neuron.Neuron) ([]neuron.Neuron, error) {
	return p.SplitResults.Neurons(), nil
}

// itemsInstruction returns the children of its (solved) clusters.
func itemsInstruction(ctx context.Context, p *Processor, args []neuron.Neuron) ([]neuron.Neuron, error) {
	vs, err := p.SolveArgs(ctx, args)
	if err != nil {
		return nil, err
	}
	var acc []neuron.Neuron
	for _, v := range vs {
		c, is := v.(neuron.Cluster)
		if !is {
			return nil, fmt.Errorf("items: %s isn't a cluster", v.ID())
		}
		acc = append(acc, c.Children()...)
	}
	return acc, nil
}
