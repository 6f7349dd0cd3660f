package graph

import (
	"fmt"
	"strconv"

	"github.com/Comcast/axon/core"
	"github.com/Comcast/axon/neuron"
)

// Text is a string value.
type Text struct {
	neuron.Node
	Value string
}

func (t *Text) String() string {
	return strconv.Quote(t.Value)
}

func (t *Text) Duplicate() (neuron.Neuron, error) {
	return t.Base().DuplicateWith(&Text{Value: t.Value})
}

// DuplicateN makes n copies at once.
func (t *Text) DuplicateN(n int) ([]neuron.Neuron, error) {
	acc := make([]neuron.Neuron, n)
	for i := range acc {
		d, err := t.Duplicate()
		if err != nil {
			return nil, err
		}
		acc[i] = d
	}
	return acc, nil
}

// Int is an integer value.
type Int struct {
	neuron.Node
	Value int64
}

func (x *Int) String() string {
	return strconv.FormatInt(x.Value, 10)
}

func (x *Int) Duplicate() (neuron.Neuron, error) {
	return x.Base().DuplicateWith(&Int{Value: x.Value})
}

// Double is a floating-point value.
type Double struct {
	neuron.Node
	Value float64
}

func (x *Double) String() string {
	return strconv.FormatFloat(x.Value, 'g', -1, 64)
}

func (x *Double) Duplicate() (neuron.Neuron, error) {
	return x.Base().DuplicateWith(&Double{Value: x.Value})
}

func (g *Graph) NewText(s string) *Text {
	t := &Text{Value: s}
	g.Add(t)
	return t
}

func (g *Graph) NewInt(n int64) *Int {
	x := &Int{Value: n}
	g.Add(x)
	return x
}

func (g *Graph) NewDouble(f float64) *Double {
	x := &Double{Value: f}
	g.Add(x)
	return x
}

// NewList makes a cluster registered with the graph.
func (g *Graph) NewList(items ...neuron.Neuron) *core.List {
	l := core.NewList(items...)
	g.Add(l)
	return l
}

// Values is a core.ValueMapper that makes its neurons in a Graph.
type Values struct {
	G *Graph
}

// ToNeuron turns a Go value into a neuron.  Neurons map to
// themselves.
func (v *Values) ToNeuron(x interface{}) (neuron.Neuron, error) {
	switch vv := x.(type) {
	case nil:
		return neuron.Empty, nil
	case neuron.Neuron:
		return vv, nil
	case bool:
		return neuron.Bool(vv), nil
	case string:
		return v.G.NewText(vv), nil
	case int:
		return v.G.NewInt(int64(vv)), nil
	case int64:
		return v.G.NewInt(vv), nil
	case float64:
		return v.G.NewDouble(vv), nil
	case []byte:
		return v.G.NewText(string(vv)), nil
	case []interface{}:
		items := make([]neuron.Neuron, len(vv))
		for i, y := range vv {
			n, err := v.ToNeuron(y)
			if err != nil {
				return nil, err
			}
			items[i] = n
		}
		return v.G.NewList(items...), nil
	}
	return nil, fmt.Errorf("can't make a neuron from a %T", x)
}

// FromNeuron is the inverse of ToNeuron.  Neurons without a Go value
// are returned as is.
func (v *Values) FromNeuron(n neuron.Neuron) interface{} {
	switch x := n.(type) {
	case nil:
		return nil
	case *Text:
		return x.Value
	case *Int:
		return x.Value
	case *Double:
		return x.Value
	case neuron.Cluster:
		cs := x.Children()
		acc := make([]interface{}, len(cs))
		for i, c := range cs {
			acc[i] = v.FromNeuron(c)
		}
		return acc
	}
	switch n {
	case neuron.Empty:
		return nil
	case neuron.True:
		return true
	case neuron.False:
		return false
	}
	return n
}
