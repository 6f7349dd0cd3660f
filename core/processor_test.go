package core

import (
	"bytes"
	"errors"
	"log"
	"os"
	"strings"
	"testing"

	"github.com/Comcast/axon/neuron"
)

func TestCallRunsInOrder(t *testing.T) {
	ctx := testContext(t)
	p := newTM(t, 1).NewProcessor()
	a, b := newAtom("a"), newAtom("b")

	if err := p.Call(ctx, code(inst("push", a), inst("push", b))); err != nil {
		t.Fatal(err)
	}
	if !neuron.SequenceEqual(p.NeuronStack, []neuron.Neuron{a, b}) {
		t.Fatalf("stack %v", p.NeuronStack)
	}
	if p.Depth() != 0 || p.Vars.Len() != 0 {
		t.Fatalf("left %d frames and %d scopes", p.Depth(), p.Vars.Len())
	}
}

func TestStackEdges(t *testing.T) {
	p := newTM(t, 1).NewProcessor()
	if p.Pop() != nil {
		t.Fatal("pop of empty stack")
	}
	if p.Peek() != neuron.Empty {
		t.Fatal("peek of empty stack")
	}
	if err := p.popFrame(); err != ErrNoFrames {
		t.Fatalf("popFrame: %v", err)
	}
}

func TestConditionals(t *testing.T) {
	x, y := newAtom("x"), newAtom("y")

	tests := []struct {
		name string
		stmt func(r *recorder) *ConditionalStatement
		want []string
	}{
		{
			name: "if first true",
			stmt: func(r *recorder) *ConditionalStatement {
				return &ConditionalStatement{
					Kind: If,
					Conditions: []*ConditionalExpression{
						cond(neuron.False, r.mark("a")),
						cond(neuron.True, r.mark("b")),
						cond(neuron.True, r.mark("c")),
					},
				}
			},
			want: []string{"b"},
		},
		{
			name: "if none",
			stmt: func(r *recorder) *ConditionalStatement {
				return &ConditionalStatement{
					Kind: If,
					Conditions: []*ConditionalExpression{
						cond(neuron.False, r.mark("a")),
					},
				}
			},
			want: nil,
		},
		{
			name: "if with pre",
			stmt: func(r *recorder) *ConditionalStatement {
				return &ConditionalStatement{
					Kind: If,
					Pre:  code(r.mark("pre")),
					Conditions: []*ConditionalExpression{
						cond(nil, r.mark("body")),
					},
				}
			},
			want: []string{"pre", "body"},
		},
		{
			name: "case",
			stmt: func(r *recorder) *ConditionalStatement {
				return &ConditionalStatement{
					Kind:     Case,
					CaseItem: &fixed{vs: []neuron.Neuron{x}},
					Conditions: []*ConditionalExpression{
						cond(y, r.mark("y")),
						cond(x, r.mark("x")),
					},
				}
			},
			want: []string{"x"},
		},
		{
			name: "case sequence",
			stmt: func(r *recorder) *ConditionalStatement {
				return &ConditionalStatement{
					Kind:     Case,
					CaseItem: &fixed{vs: []neuron.Neuron{x, y}},
					Conditions: []*ConditionalExpression{
						cond(&fixed{vs: []neuron.Neuron{x, y, x}}, r.mark("longer")),
						cond(&fixed{vs: []neuron.Neuron{x}}, r.mark("shorter")),
						cond(&fixed{vs: []neuron.Neuron{x, y}}, r.mark("same")),
					},
				}
			},
			want: []string{"same"},
		},
		{
			name: "case without value",
			stmt: func(r *recorder) *ConditionalStatement {
				return &ConditionalStatement{
					Kind:     Case,
					CaseItem: &fixed{},
					Conditions: []*ConditionalExpression{
						cond(nil, r.mark("any")),
					},
				}
			},
			want: nil,
		},
		{
			name: "until runs once",
			stmt: func(r *recorder) *ConditionalStatement {
				return &ConditionalStatement{
					Kind: Until,
					Conditions: []*ConditionalExpression{
						cond(neuron.False, r.mark("body")),
					},
				}
			},
			want: []string{"body"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &recorder{}
			p := newTM(t, 1).NewProcessor()
			if err := p.Call(testContext(t), code(tt.stmt(r))); err != nil {
				t.Fatal(err)
			}
			if got := r.got(); !sameStrings(got, tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func countdown(n int) *boolFunc {
	return &boolFunc{
		f: func(p *Processor) bool {
			n--
			return 0 <= n
		},
	}
}

func TestLooped(t *testing.T) {
	r := &recorder{}
	p := newTM(t, 1).NewProcessor()
	s := &ConditionalStatement{
		Kind: Looped,
		Pre:  code(r.mark("pre")),
		Conditions: []*ConditionalExpression{
			cond(countdown(2), r.mark("body")),
		},
	}
	if err := p.Call(testContext(t), code(s)); err != nil {
		t.Fatal(err)
	}
	want := []string{"pre", "body", "pre", "body", "pre"}
	if got := r.got(); !sameStrings(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestUntilWithPre(t *testing.T) {
	r := &recorder{}
	p := newTM(t, 1).NewProcessor()
	s := &ConditionalStatement{
		Kind: Until,
		Pre:  code(r.mark("pre")),
		Conditions: []*ConditionalExpression{
			cond(countdown(1), r.mark("body")),
		},
	}
	if err := p.Call(testContext(t), code(s)); err != nil {
		t.Fatal(err)
	}
	want := []string{"body", "pre", "body", "pre"}
	if got := r.got(); !sameStrings(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestForEach(t *testing.T) {
	a, b, c := newAtom("a"), newAtom("b"), newAtom("c")
	v := variable("V", SplitDefault)
	items := &fixed{vs: []neuron.Neuron{a, b, c}}

	t.Run("all", func(t *testing.T) {
		r := &recorder{}
		s := &ConditionalStatement{
			Kind:     ForEach,
			CaseItem: items,
			LoopItem: v,
			Conditions: []*ConditionalExpression{
				cond(nil, r.names(v)),
			},
		}
		if err := newTM(t, 1).NewProcessor().Call(testContext(t), code(s)); err != nil {
			t.Fatal(err)
		}
		if got := r.got(); !sameStrings(got, []string{"a", "b", "c"}) {
			t.Fatalf("got %v", got)
		}
	})

	t.Run("break", func(t *testing.T) {
		r := &recorder{}
		isB := &ConditionalStatement{
			Kind: If,
			Conditions: []*ConditionalExpression{
				cond(&Equals{Left: v, Right: b}, inst("break")),
			},
		}
		s := &ConditionalStatement{
			Kind:     ForEach,
			CaseItem: items,
			LoopItem: v,
			Conditions: []*ConditionalExpression{
				cond(nil, r.names(v), isB),
			},
		}
		if err := newTM(t, 1).NewProcessor().Call(testContext(t), code(s)); err != nil {
			t.Fatal(err)
		}
		if got := r.got(); !sameStrings(got, []string{"a", "b"}) {
			t.Fatalf("got %v", got)
		}
	})

	t.Run("continue", func(t *testing.T) {
		r := &recorder{}
		isB := &ConditionalStatement{
			Kind: If,
			Conditions: []*ConditionalExpression{
				cond(&Equals{Left: v, Right: b}, inst("continue")),
			},
		}
		s := &ConditionalStatement{
			Kind:     ForEach,
			CaseItem: items,
			LoopItem: v,
			Conditions: []*ConditionalExpression{
				cond(nil, isB, r.names(v)),
			},
		}
		if err := newTM(t, 1).NewProcessor().Call(testContext(t), code(s)); err != nil {
			t.Fatal(err)
		}
		if got := r.got(); !sameStrings(got, []string{"a", "c"}) {
			t.Fatalf("got %v", got)
		}
	})

	t.Run("skip items without a body", func(t *testing.T) {
		r := &recorder{}
		s := &ConditionalStatement{
			Kind:     ForEach,
			CaseItem: items,
			LoopItem: v,
			Conditions: []*ConditionalExpression{
				cond(&Not{X: &Equals{Left: v, Right: a}}, r.names(v)),
			},
		}
		if err := newTM(t, 1).NewProcessor().Call(testContext(t), code(s)); err != nil {
			t.Fatal(err)
		}
		if got := r.got(); !sameStrings(got, []string{"b", "c"}) {
			t.Fatalf("got %v", got)
		}
	})
}

func TestForQueryBindsRows(t *testing.T) {
	a, b, c, d := newAtom("a"), newAtom("b"), newAtom("c"), newAtom("d")
	x, y := variable("X", SplitDefault), variable("Y", SplitDefault)
	r := &recorder{}
	s := &ConditionalStatement{
		Kind: ForQuery,
		Source: &RowsSource{
			Rows: &fixed{vs: []neuron.Neuron{NewList(a, b, c), d}},
		},
		LoopVars: []Assignable{x, y},
		Conditions: []*ConditionalExpression{
			cond(nil, r.mark("row"), r.names(x), r.names(y)),
		},
	}
	if err := newTM(t, 1).NewProcessor().Call(testContext(t), code(s)); err != nil {
		t.Fatal(err)
	}
	want := []string{"row", "a", "b", "c", "row", "d"}
	if got := r.got(); !sameStrings(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestBreakOutsideLoop(t *testing.T) {
	p := newTM(t, 1).NewProcessor()
	err := p.Call(testContext(t), code(inst("break")))
	var inv *InvalidOperation
	if !errors.As(err, &inv) {
		t.Fatalf("got %v", err)
	}
}

func TestBreakDoesNotCrossCalls(t *testing.T) {
	r := &recorder{}
	inner := code(inst("break"), r.mark("after break"))
	s := &ConditionalStatement{
		Kind: Looped,
		Conditions: []*ConditionalExpression{
			cond(countdown(1), inst("call", inner)),
		},
	}
	p := newTM(t, 1).NewProcessor()
	err := p.Call(testContext(t), code(s))
	var inv *InvalidOperation
	if !errors.As(err, &inv) {
		t.Fatalf("got %v", err)
	}
	if got := r.got(); len(got) != 0 {
		t.Fatalf("got %v", got)
	}
}

func TestExitLeavesFunction(t *testing.T) {
	r := &recorder{}
	inner := code(r.mark("a"), inst("exit"), r.mark("z"))
	p := newTM(t, 1).NewProcessor()
	if err := p.Call(testContext(t), code(inst("call", inner), r.mark("b"))); err != nil {
		t.Fatal(err)
	}
	if got := r.got(); !sameStrings(got, []string{"a", "b"}) {
		t.Fatalf("got %v", got)
	}
}

func TestExitFromLoop(t *testing.T) {
	r := &recorder{}
	s := &ConditionalStatement{
		Kind: Looped,
		Conditions: []*ConditionalExpression{
			cond(neuron.True, r.mark("once"), inst("exit")),
		},
	}
	p := newTM(t, 1).NewProcessor()
	if err := p.Call(testContext(t), code(s, r.mark("never"))); err != nil {
		t.Fatal(err)
	}
	if got := r.got(); !sameStrings(got, []string{"once"}) {
		t.Fatalf("got %v", got)
	}
}

func TestLocalsRestored(t *testing.T) {
	a, b := newAtom("a"), newAtom("b")
	v := variable("V", SplitDefault)
	r := &recorder{}
	s := &ConditionalStatement{
		Kind: If,
		Conditions: []*ConditionalExpression{
			cond(nil, inst("local", v), &Assignment{Left: v, Right: b}, r.names(v)),
		},
	}
	p := newTM(t, 1).NewProcessor()
	prog := code(&Assignment{Left: v, Right: a}, s, r.names(v))
	if err := p.Call(testContext(t), prog); err != nil {
		t.Fatal(err)
	}
	if got := r.got(); !sameStrings(got, []string{"b", "a"}) {
		t.Fatalf("got %v", got)
	}
}

func TestVariablesAreScoped(t *testing.T) {
	a := newAtom("a")
	v := variable("V", SplitDefault)
	r := &recorder{}
	inner := code(r.names(v))
	p := newTM(t, 1).NewProcessor()
	if err := p.Call(testContext(t), code(&Assignment{Left: v, Right: a}, inst("call", inner), r.names(v))); err != nil {
		t.Fatal(err)
	}
	if got := r.got(); !sameStrings(got, []string{"a"}) {
		t.Fatalf("got %v", got)
	}
}

func TestGlobalsAreProcessorWide(t *testing.T) {
	a := newAtom("a")
	g := &Global{Name: "G"}
	network.Add(g)
	r := &recorder{}
	inner := code(r.names(g))
	p := newTM(t, 1).NewProcessor()
	if err := p.Call(testContext(t), code(&Assignment{Left: g, Right: a}, inst("call", inner))); err != nil {
		t.Fatal(err)
	}
	if got := r.got(); !sameStrings(got, []string{"a"}) {
		t.Fatalf("got %v", got)
	}
}

func TestEvaluateCondition(t *testing.T) {
	a, b, c := newAtom("a"), newAtom("b"), newAtom("c")
	p := newTM(t, 1).NewProcessor()

	tests := []struct {
		name      string
		compareTo []neuron.Neuron
		cond      neuron.Neuron
		want      bool
		err       bool
	}{
		{"nil", nil, nil, true, false},
		{"empty", nil, neuron.Empty, true, false},
		{"true", nil, neuron.True, true, false},
		{"false", nil, neuron.False, false, false},
		{"bool", nil, &boolFunc{f: func(*Processor) bool { return false }}, false, false},
		{"results", nil, &fixed{vs: []neuron.Neuron{a}}, true, false},
		{"no results", nil, &fixed{}, true, false},
		{"results with false", nil, &fixed{vs: []neuron.Neuron{a, neuron.False}}, false, false},
		{"plain neuron", nil, a, false, true},
		{"compare same", []neuron.Neuron{a}, a, true, false},
		{"compare different", []neuron.Neuron{a}, b, false, false},
		{"compare sequence", []neuron.Neuron{a, b}, &fixed{vs: []neuron.Neuron{a, b}}, true, false},
		{"compare order", []neuron.Neuron{a, b}, &fixed{vs: []neuron.Neuron{b, a}}, false, false},
		{"compare longer", []neuron.Neuron{a, b}, &fixed{vs: []neuron.Neuron{a, b, c}}, false, false},
		{"compare shorter", []neuron.Neuron{a, b}, &fixed{vs: []neuron.Neuron{a}}, false, false},
		{"compare empty", []neuron.Neuron{a, b}, &fixed{}, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.EvaluateCondition(testContext(t), tt.compareTo, tt.cond, 0)
			if (err != nil) != tt.err {
				t.Fatalf("error %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %v", got)
			}
		})
	}
}

func TestBadCodeAbandonsConstruct(t *testing.T) {
	r := &recorder{}
	bad := NewList(newAtom("not code"))
	s := &ConditionalStatement{
		Kind: If,
		Conditions: []*ConditionalExpression{
			{Condition: neuron.True, Statements: bad},
		},
	}
	p := newTM(t, 1).NewProcessor()
	if err := p.Call(testContext(t), code(s, r.mark("after"))); err != nil {
		t.Fatal(err)
	}
	if got := r.got(); !sameStrings(got, []string{"after"}) {
		t.Fatalf("got %v", got)
	}
}

func TestPanicsAreLogged(t *testing.T) {
	r := &recorder{}
	boom := do(func(p *Processor) { panic("boom") })
	p := newTM(t, 1).NewProcessor()
	if err := p.Call(testContext(t), code(boom, r.mark("after"))); err != nil {
		t.Fatal(err)
	}
	if got := r.got(); !sameStrings(got, []string{"after"}) {
		t.Fatalf("got %v", got)
	}
}

func TestFramesAreRecycled(t *testing.T) {
	ctx := testContext(t)
	p := newTM(t, 1).NewProcessor()
	prog := code(inst("push", newAtom("a")))
	if err := p.Call(ctx, prog); err != nil {
		t.Fatal(err)
	}
	before := p.Mem.Frames.Allocated
	if err := p.Call(ctx, prog); err != nil {
		t.Fatal(err)
	}
	if p.Mem.Frames.Allocated != before {
		t.Fatalf("allocated %d frames", p.Mem.Frames.Allocated-before)
	}
	if p.Mem.Frames.Reused == 0 {
		t.Fatal("no frames reused")
	}
}

func TestCodeFromNonExpression(t *testing.T) {
	m := NewMemoryFactory()
	_, err := m.CodeFor(NewList(newAtom("x")))
	var bad *BadCode
	if !errors.As(err, &bad) {
		t.Fatalf("got %v", err)
	}
}

func TestSecondActionsLinkIgnored(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	ctx := testContext(t)
	tm := newTM(t, 1)
	r := &recorder{}
	n := newAtom("n")
	n.AddLink(&neuron.Link{From: n, To: code(r.mark("first")), Meaning: neuron.Actions})
	n.AddLink(&neuron.Link{From: n, To: code(r.mark("second")), Meaning: neuron.Actions})

	p := tm.NewProcessor()
	p.Push(n)
	if _, err := p.SolveBlocked(ctx); err != nil {
		t.Fatal(err)
	}
	if got := r.got(); !sameStrings(got, []string{"first"}) {
		t.Fatalf("got %v", got)
	}
	if !strings.Contains(buf.String(), "more than one Actions link") {
		t.Fatalf("not logged: %q", buf.String())
	}
}
