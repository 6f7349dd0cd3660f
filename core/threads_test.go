package core

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Comcast/axon/neuron"
)

// meaningWithRules makes a meaning neuron whose rules are the given
// code.
func meaningWithRules(name string, rules *List) *atom {
	m := newAtom(name)
	m.AddLink(&neuron.Link{From: m, To: rules, Meaning: neuron.Rules})
	return m
}

func TestSolveRunsRulesThenActions(t *testing.T) {
	ctx := testContext(t)
	tm := newTM(t, 2)
	r := &recorder{}
	n, to := newAtom("n"), newAtom("to")

	var sawMeaning, sawTo neuron.Neuron
	m := meaningWithRules("m", code(r.mark("rule"), do(func(p *Processor) {
		sawMeaning, sawTo = p.CurrentMeaning, p.CurrentTo
	})))
	n.AddLink(&neuron.Link{From: n, To: code(r.mark("action")), Meaning: neuron.Actions})
	n.AddLink(&neuron.Link{From: n, To: to, Meaning: m})

	p := tm.NewProcessor()
	p.Push(n)
	if _, err := p.SolveBlocked(ctx); err != nil {
		t.Fatal(err)
	}
	if got := r.got(); !sameStrings(got, []string{"rule", "action"}) {
		t.Fatalf("got %v", got)
	}
	if sawMeaning != m || sawTo != to {
		t.Fatal("link context not set")
	}
	if n.IsFrozen() {
		t.Fatal("solved neuron still frozen")
	}
}

func TestExitNeuronSkipsRemainingLinks(t *testing.T) {
	ctx := testContext(t)
	tm := newTM(t, 2)
	r := &recorder{}
	n := newAtom("n")
	m1 := meaningWithRules("m1", code(r.mark("r1"), inst("exitNeuron"), r.mark("never")))
	m2 := meaningWithRules("m2", code(r.mark("r2")))
	n.AddLink(&neuron.Link{From: n, To: code(r.mark("action")), Meaning: neuron.Actions})
	n.AddLink(&neuron.Link{From: n, To: n, Meaning: m1})
	n.AddLink(&neuron.Link{From: n, To: n, Meaning: m2})

	p := tm.NewProcessor()
	p.Push(n)
	if _, err := p.SolveBlocked(ctx); err != nil {
		t.Fatal(err)
	}
	if got := r.got(); !sameStrings(got, []string{"r1"}) {
		t.Fatalf("got %v", got)
	}
}

func TestNotUnderstood(t *testing.T) {
	ctx := testContext(t)
	tm := newTM(t, 1)
	p := tm.NewProcessor()
	p.Push(newAtom("lonely"))
	if _, err := p.SolveBlocked(ctx); err != nil {
		t.Fatal(err)
	}
	if p.State != StateNotUnderstood {
		t.Fatalf("state %v", p.State)
	}
}

func TestMaxConcurrent(t *testing.T) {
	ctx := testContext(t)
	tm := newTM(t, 2)
	var (
		now, max, total atomic.Int32
	)
	gauge := do(func(p *Processor) {
		n := now.Add(1)
		for {
			m := max.Load()
			if n <= m || max.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		now.Add(-1)
		total.Add(1)
	})
	vs := make([]neuron.Neuron, 6)
	for i := range vs {
		vs[i] = newAtom("v")
	}
	p := tm.NewProcessor()
	if err := p.PushCluster(code(inst("split", append([]neuron.Neuron{neuron.Empty, neuron.Empty}, vs...)...), gauge)); err != nil {
		t.Fatal(err)
	}
	if _, err := p.SolveBlocked(ctx); err != nil {
		t.Fatal(err)
	}
	if total.Load() != 6 {
		t.Fatalf("%d ran", total.Load())
	}
	if 2 < max.Load() {
		t.Fatalf("%d ran at once", max.Load())
	}
}

func forever() *ConditionalStatement {
	return &ConditionalStatement{
		Kind: Looped,
		Conditions: []*ConditionalExpression{
			cond(neuron.True),
		},
	}
}

func TestStopAll(t *testing.T) {
	ctx := testContext(t)
	tm := newTM(t, 2)
	var spins atomic.Int32
	spin := &ConditionalStatement{
		Kind: Looped,
		Conditions: []*ConditionalExpression{
			cond(neuron.True, do(func(p *Processor) { spins.Add(1) })),
		},
	}
	for i := 0; i < 3; i++ {
		p := tm.NewProcessor()
		if err := p.PushCluster(code(spin)); err != nil {
			t.Fatal(err)
		}
		if err := p.Solve(ctx); err != nil {
			t.Fatal(err)
		}
	}
	eventually(t, "spinning", func() bool { return 0 < spins.Load() })
	tm.StopAll()
	if err := tm.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	if tm.stopRequested.Load() {
		t.Fatal("stop request not cleared")
	}
}

func TestSolveBlockedReportsStop(t *testing.T) {
	ctx := testContext(t)
	tm := newTM(t, 2)
	var spins atomic.Int32
	spin := &ConditionalStatement{
		Kind: Looped,
		Conditions: []*ConditionalExpression{
			cond(neuron.True, do(func(p *Processor) { spins.Add(1) })),
		},
	}
	p := tm.NewProcessor()
	if err := p.PushCluster(code(inst("addResult", neuron.Empty, neuron.True), spin)); err != nil {
		t.Fatal(err)
	}
	var rs *SplitResultsDict
	errs := make(chan error, 1)
	go func() {
		var err error
		rs, err = p.SolveBlocked(ctx)
		errs <- err
	}()
	eventually(t, "spinning", func() bool { return 0 < spins.Load() })
	tm.StopAll()
	if err := <-errs; !errors.Is(err, ErrProcessorStopped) {
		t.Fatalf("got %v", err)
	}
	if rs == nil || rs.Len() != 1 {
		t.Fatal("lost the partial result")
	}
}

func TestStopAllBut(t *testing.T) {
	ctx := testContext(t)
	tm := newTM(t, 2)
	r := &recorder{}
	var released atomic.Bool

	victim := tm.NewProcessor()
	if err := victim.PushCluster(code(forever())); err != nil {
		t.Fatal(err)
	}
	spared := tm.NewProcessor()
	wait := &ConditionalStatement{
		Kind: Looped,
		Conditions: []*ConditionalExpression{
			cond(&boolFunc{f: func(*Processor) bool { return !released.Load() }}),
		},
	}
	if err := spared.PushCluster(code(wait, r.mark("spared"))); err != nil {
		t.Fatal(err)
	}
	victim.Solve(ctx)
	spared.Solve(ctx)

	eventually(t, "both running", func() bool {
		running, _, _, _ := tm.Counts()
		return running == 2
	})
	tm.StopAllBut(spared)
	eventually(t, "victim stopped", func() bool {
		running, _, _, _ := tm.Counts()
		return running == 1
	})
	released.Store(true)
	if err := tm.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	if got := r.got(); !sameStrings(got, []string{"spared"}) {
		t.Fatalf("got %v", got)
	}
}

func TestKill(t *testing.T) {
	ctx := testContext(t)
	tm := newTM(t, 1)
	p := tm.NewProcessor()
	if err := p.PushCluster(code(forever())); err != nil {
		t.Fatal(err)
	}
	p.Solve(ctx)
	eventually(t, "running", func() bool {
		running, _, _, _ := tm.Counts()
		return running == 1
	})
	p.Kill()
	if err := tm.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	if p.State != StateTerminated {
		t.Fatalf("state %v", p.State)
	}
}

func TestKillIgnoresPreventKill(t *testing.T) {
	ctx := testContext(t)
	tm := newTM(t, 1)
	p := tm.NewProcessor()
	if err := p.PushCluster(code(forever())); err != nil {
		t.Fatal(err)
	}
	p.Solve(ctx)
	eventually(t, "running", func() bool {
		running, _, _, _ := tm.Counts()
		return running == 1
	})
	tm.StopAllBut(p)
	p.Kill()
	if err := tm.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	if p.State != StateTerminated {
		t.Fatalf("state %v", p.State)
	}
}

func TestSuspendFreesSlot(t *testing.T) {
	ctx := testContext(t)
	tm := newTM(t, 1)
	r := &recorder{}
	key := newAtom("key")

	sleeper := tm.NewProcessor()
	if err := sleeper.PushCluster(code(inst("suspend", key), r.mark("awake"))); err != nil {
		t.Fatal(err)
	}
	sleeper.Solve(ctx)
	eventually(t, "suspended", func() bool {
		_, _, suspended, _ := tm.Counts()
		return suspended == 1
	})

	other := tm.NewProcessor()
	if err := other.PushCluster(code(r.mark("other"))); err != nil {
		t.Fatal(err)
	}
	if _, err := other.SolveBlocked(ctx); err != nil {
		t.Fatal(err)
	}

	if n := tm.Awake(key); n != 1 {
		t.Fatalf("woke %d", n)
	}
	if err := tm.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	if got := r.got(); !sameStrings(got, []string{"other", "awake"}) {
		t.Fatalf("got %v", got)
	}
}

func TestEndDeadLock(t *testing.T) {
	ctx := testContext(t)
	tm := newTM(t, 1)
	r := &recorder{}
	sleeper := tm.NewProcessor()
	if err := sleeper.PushCluster(code(inst("suspend", newAtom("nobody")), r.mark("after"))); err != nil {
		t.Fatal(err)
	}
	sleeper.Solve(ctx)
	eventually(t, "suspended", func() bool {
		_, _, suspended, _ := tm.Counts()
		return suspended == 1
	})
	tm.EndDeadLock()
	if err := tm.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	// The failed suspend is logged and the processor carries on.
	if got := r.got(); !sameStrings(got, []string{"after"}) {
		t.Fatalf("got %v", got)
	}
}

func TestCallBlocked(t *testing.T) {
	ctx := testContext(t)
	tm := newTM(t, 1)
	a, b := newAtom("a"), newAtom("b")
	v, res := variable("V", SplitDefault), variable("R", SplitDefault)
	r := &recorder{}

	inner := code(
		inst("split", neuron.Empty, v, a, b),
		inst("addResult", neuron.Empty, v),
	)
	p := tm.NewProcessor()
	if err := p.PushCluster(code(inst("callBlocked", inner, res), r.names(res))); err != nil {
		t.Fatal(err)
	}
	if _, err := p.SolveBlocked(ctx); err != nil {
		t.Fatal(err)
	}
	// b has weight 2 and a has weight 1.
	if got := r.got(); !sameStrings(got, []string{"b", "a"}) {
		t.Fatalf("got %v", got)
	}
	running, blocked, _, _ := tm.Counts()
	if running != 0 || blocked != 0 {
		t.Fatalf("running %d, blocked %d", running, blocked)
	}
}

func TestLockManager(t *testing.T) {
	ctx := testContext(t)
	tm := newTM(t, 2)
	lm := tm.Locks
	p1, p2 := tm.NewProcessor(), tm.NewProcessor()
	a := []neuron.Neuron{newAtom("a")}

	if err := lm.Lock(ctx, p1, a); err != nil {
		t.Fatal(err)
	}
	if err := lm.Lock(ctx, p1, a); err != nil {
		t.Fatal(err)
	}

	got := make(chan error, 1)
	go func() {
		got <- lm.Lock(ctx, p2, a)
	}()

	lm.Unlock(p1, a)
	select {
	case <-got:
		t.Fatal("lock taken while still held")
	case <-time.After(20 * time.Millisecond):
	}

	lm.Unlock(p1, a)
	select {
	case err := <-got:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(time.Second):
		t.Fatal("lock never granted")
	}
	if lm.Holder(a[0]) != p2 {
		t.Fatal("wrong holder")
	}
}

func TestLockWaitCanBeCancelled(t *testing.T) {
	tm := newTM(t, 2)
	p1, p2 := tm.NewProcessor(), tm.NewProcessor()
	a := []neuron.Neuron{newAtom("a")}
	if err := tm.Locks.Lock(context.Background(), p1, a); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := tm.Locks.Lock(ctx, p2, a); !errors.Is(err, ErrProcessorStopped) {
		t.Fatalf("got %v", err)
	}
}

func TestBlockHoldsLocks(t *testing.T) {
	ctx := testContext(t)
	tm := newTM(t, 1)
	x := newAtom("x")
	var holder *Processor
	b := &ExpressionsBlock{
		Statements: code(do(func(p *Processor) { holder = tm.Locks.Holder(x) })),
		Locks:      x,
	}
	p := tm.NewProcessor()
	if err := p.Call(ctx, code(b)); err != nil {
		t.Fatal(err)
	}
	if holder != p {
		t.Fatal("lock not held inside the block")
	}
	if tm.Locks.Holder(x) != nil {
		t.Fatal("lock not released")
	}
}
