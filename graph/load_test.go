package graph

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Comcast/axon/core"
	"github.com/Comcast/axon/neuron"
)

func load(t *testing.T, src string) *Graph {
	t.Helper()
	doc, err := ParseDocument([]byte(src))
	if err != nil {
		t.Fatal(err)
	}
	g := New()
	l := &Loader{G: g}
	if err := l.Load(context.Background(), doc); err != nil {
		t.Fatal(err)
	}
	return g
}

func solve(t *testing.T, g *Graph, name string) []core.Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	n, err := g.Find(name)
	if err != nil {
		t.Fatal(err)
	}
	tm := core.NewThreadManager(4)
	tm.Values = &Values{G: g}
	p := tm.NewProcessor()
	if c, is := n.(neuron.Cluster); is {
		if err := p.PushCluster(c); err != nil {
			t.Fatal(err)
		}
	} else {
		p.Push(n)
	}
	rs, err := p.SolveBlocked(ctx)
	if err != nil {
		t.Fatal(err)
	}
	return rs.Results()
}

func texts(t *testing.T, rs []core.Result) []string {
	t.Helper()
	acc := make([]string, len(rs))
	for i, r := range rs {
		x, is := r.Neuron.(*Text)
		if !is {
			t.Fatalf("result %d is a %T", i, r.Neuron)
		}
		acc[i] = x.Value
	}
	return acc
}

func TestLoadRulesAndLinks(t *testing.T) {
	g := load(t, `
neurons:
  homer: {}
  beer: {text: beer}
  likes: {rules: likesRules, doc: "Somebody *likes* something."}
code:
  likesRules:
    - do: addResult
      args: [null, {do: to}]
links:
  - {from: homer, meaning: likes, to: beer}
`)
	rs := solve(t, g, "homer")
	if len(rs) != 1 {
		t.Fatalf("got %d results", len(rs))
	}
	beer, _ := g.Find("beer")
	if rs[0].Neuron != beer {
		t.Fatalf("got %v", rs[0].Neuron)
	}
	likes, _ := g.Find("likes")
	if likes.(neuron.Based).Base().Doc == "" {
		t.Fatal("lost the doc")
	}
}

func TestLoadForEach(t *testing.T) {
	g := load(t, `
neurons:
  X: {var: ""}
  one: {int: 1}
  two: {int: 2}
  three: {int: 3}
  nums: {list: [one, two, three]}
code:
  main:
    - cond:
        kind: foreach
        value: {do: items, args: [nums]}
        item: X
        branches:
          - when: {eq: [X, two]}
            do:
              - do: addResult
                args: [10, X]
          - do:
              - do: addResult
                args: [X, X]
`)
	rs := solve(t, g, "main")
	if len(rs) != 3 {
		t.Fatalf("got %d results", len(rs))
	}
	want := []float64{10, 3, 1}
	for i, r := range rs {
		if r.Weight != want[i] {
			t.Fatalf("result %d weight %v, want %v", i, r.Weight, want[i])
		}
	}
}

func TestLoadCaseAndAssignment(t *testing.T) {
	g := load(t, `
neurons:
  X: {var: ""}
  red: {text: red}
  green: {text: green}
code:
  main:
    - set: X
      to: green
    - cond:
        kind: case
        value: X
        branches:
          - when: red
            do:
              - {do: addResult, args: [null, {text: stop}]}
          - when: green
            do:
              - {do: addResult, args: [null, {text: go}]}
`)
	got := texts(t, solve(t, g, "main"))
	if len(got) != 1 || got[0] != "go" {
		t.Fatalf("got %v", got)
	}
}

func TestLoadInto(t *testing.T) {
	g := load(t, `
neurons:
  X: {var: ""}
  a: {text: a}
code:
  main:
    - do: push
      args: [a]
    - do: pop
      into: X
    - do: addResult
      args: [null, X]
`)
	got := texts(t, solve(t, g, "main"))
	if len(got) != 1 || got[0] != "a" {
		t.Fatalf("got %v", got)
	}
}

func TestLoadRows(t *testing.T) {
	g := load(t, `
neurons:
  K: {var: ""}
  V: {var: ""}
  table: {list: [[{text: a}, 1], [{text: b}, 2]]}
code:
  main:
    - cond:
        kind: forquery
        source: {rows: {do: items, args: [table]}}
        vars: [K, V]
        branches:
          - do:
              - {do: addResult, args: [V, K]}
`)
	got := texts(t, solve(t, g, "main"))
	if len(got) != 2 || got[0] != "b" || got[1] != "a" {
		t.Fatalf("got %v", got)
	}
}

func TestLoadErrors(t *testing.T) {
	for name, src := range map[string]string{
		"unknown instruction": "code: {main: [{do: nope}]}",
		"unknown name":        "code: {main: [{do: push, args: [nobody]}]}",
		"bad kind":            "code: {main: [{cond: {kind: sometimes, branches: []}}]}",
		"not a variable":      "neurons: {a: {}}\ncode: {main: [{set: a, to: a}]}",
		"bad reaction":        "neurons: {X: {var: sideways}}",
		"case without value":  "code: {main: [{cond: {kind: case, branches: []}}]}",
		"no interpreter":      "code: {main: [{script: {interpreter: cobol, source: x}}]}",
	} {
		t.Run(name, func(t *testing.T) {
			doc, err := ParseDocument([]byte(src))
			if err != nil {
				t.Fatal(err)
			}
			l := &Loader{G: New()}
			if err := l.Load(context.Background(), doc); err == nil {
				t.Fatal("loaded")
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "g.yaml")
	if err := os.WriteFile(filename, []byte("neurons: {a: {text: a}}\n"), 0644); err != nil {
		t.Fatal(err)
	}
	g := New()
	l := &Loader{G: g}
	if err := l.LoadFile(context.Background(), filename); err != nil {
		t.Fatal(err)
	}
	if _, err := g.Find("a"); err != nil {
		t.Fatal(err)
	}
}
