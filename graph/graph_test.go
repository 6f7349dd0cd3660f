package graph

import (
	"errors"
	"testing"

	"github.com/Comcast/axon/core"
	"github.com/Comcast/axon/neuron"
)

func TestRegisterAndFind(t *testing.T) {
	g := New()
	x := &Text{Value: "chips"}
	id, err := g.Register("snack", x)
	if err != nil {
		t.Fatal(err)
	}
	if id < neuron.FirstFreeID {
		t.Fatalf("id %d", id)
	}
	n, err := g.Find("snack")
	if err != nil {
		t.Fatal(err)
	}
	if n != x {
		t.Fatal("found something else")
	}
	if got, _ := g.Get(id); got != x {
		t.Fatal("Get")
	}
	if g.NameOf(x) != "snack" {
		t.Fatalf("name %q", g.NameOf(x))
	}

	if _, err := g.Register("snack", &Text{}); err == nil {
		t.Fatal("duplicate name accepted")
	}
	if _, err := g.Find("dinner"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v", err)
	}
}

func TestSentinelsAreNamed(t *testing.T) {
	g := New()
	for _, s := range neuron.Sentinels {
		n, err := g.Find(s.Name)
		if err != nil {
			t.Fatal(err)
		}
		if n != s {
			t.Fatalf("%s isn't the sentinel", s.Name)
		}
	}
	if err := g.Delete(neuron.True); err == nil {
		t.Fatal("deleted True")
	}
}

func TestDeleteRefusesFrozen(t *testing.T) {
	g := New()
	x := g.NewText("x")
	g.SetName("x", x)
	x.Freeze(1)
	if err := g.Delete(x); !errors.Is(err, neuron.ErrFrozen) {
		t.Fatalf("got %v", err)
	}
	x.Unfreeze(1)
	if err := g.Delete(x); err != nil {
		t.Fatal(err)
	}
	if !x.IsDeleted() {
		t.Fatal("not deleted")
	}
	if _, err := g.Find("x"); err == nil {
		t.Fatal("still named")
	}
}

func TestDuplicateKeepsLinks(t *testing.T) {
	g := New()
	a, b, m := g.NewText("a"), g.NewText("b"), g.NewText("m")
	if _, err := g.Link(a, m, b); err != nil {
		t.Fatal(err)
	}
	ds, err := a.DuplicateN(2)
	if err != nil {
		t.Fatal(err)
	}
	for _, d := range ds {
		x := d.(*Text)
		if x == a || x.Value != "a" || x.ID() == a.ID() {
			t.Fatal("bad duplicate")
		}
		ls := x.LinksOut()
		if len(ls) != 1 || ls[0].From != x || ls[0].To != b {
			t.Fatalf("links %v", ls)
		}
	}
}

func TestValues(t *testing.T) {
	g := New()
	v := &Values{G: g}
	for _, x := range []interface{}{"hi", int64(3), 2.5, true, false, nil} {
		n, err := v.ToNeuron(x)
		if err != nil {
			t.Fatal(err)
		}
		if y := v.FromNeuron(n); y != x {
			t.Fatalf("%#v came back as %#v", x, y)
		}
	}

	n, err := v.ToNeuron([]interface{}{"a", int64(1)})
	if err != nil {
		t.Fatal(err)
	}
	if _, is := n.(*core.List); !is {
		t.Fatalf("list is a %T", n)
	}
	xs, is := v.FromNeuron(n).([]interface{})
	if !is || len(xs) != 2 || xs[0] != "a" || xs[1] != int64(1) {
		t.Fatalf("got %#v", v.FromNeuron(n))
	}

	if _, err := v.ToNeuron(struct{}{}); err == nil {
		t.Fatal("made a neuron from a struct")
	}
}

func TestLabel(t *testing.T) {
	g := New()
	beer := g.NewText("beer")
	if got := g.Label(beer); got != `"beer"` {
		t.Fatalf("got %s", got)
	}
	if err := g.SetName("duff", beer); err != nil {
		t.Fatal(err)
	}
	if got := g.Label(beer); got != "duff" {
		t.Fatalf("got %s", got)
	}
	n := &neuron.Node{}
	g.Add(n)
	if got := g.Label(n); got != g.NameOf(n) || got[0] != '#' {
		t.Fatalf("got %s", got)
	}
}
