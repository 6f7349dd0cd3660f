// Package tools renders graphs for people: Graphviz dot, Mermaid,
// and HTML pages with the neurons' Markdown docs.
package tools

import (
	"fmt"
	"strings"

	"github.com/Comcast/axon/core"
	"github.com/Comcast/axon/graph"
	"github.com/Comcast/axon/neuron"
)

// Entry describes one named neuron.
type Entry struct {
	Name string `json:"name"`
	Kind string `json:"kind"`

	// Value is the Go value of a value neuron.
	Value interface{} `json:"value,omitempty"`

	Doc string `json:"doc,omitempty"`

	// Code has a line per statement of a code list.
	Code []string `json:"code,omitempty"`

	Links []*LinkEntry `json:"links,omitempty"`

	n neuron.Neuron
}

type LinkEntry struct {
	Meaning string `json:"meaning"`
	To      string `json:"to"`
}

// Describe returns entries for the named neurons in name order.
// Sentinels are left out.
func Describe(g *graph.Graph) []*Entry {
	vm := &graph.Values{G: g}
	var acc []*Entry
	for _, name := range g.Names() {
		n, err := g.Find(name)
		if err != nil {
			continue
		}
		if _, is := n.(*neuron.Sentinel); is {
			continue
		}
		e := &Entry{
			Name: name,
			Kind: kindOf(n),
			n:    n,
		}
		if b, is := n.(neuron.Based); is {
			e.Doc = b.Base().Doc
		}
		switch n.(type) {
		case *graph.Text, *graph.Int, *graph.Double:
			e.Value = vm.FromNeuron(n)
		case *core.List:
			if e.Kind == "list" {
				cs := n.(*core.List).Children()
				labels := make([]string, len(cs))
				for i, c := range cs {
					labels[i] = g.Label(c)
				}
				e.Value = labels
			}
		}
		if c, is := n.(*core.List); is && e.Kind == "code" {
			for _, s := range c.Children() {
				e.Code = append(e.Code, Statement(g, s))
			}
		}
		for _, l := range n.LinksOut() {
			e.Links = append(e.Links, &LinkEntry{
				Meaning: g.Label(l.Meaning),
				To:      g.Label(l.To),
			})
		}
		acc = append(acc, e)
	}
	return acc
}

func kindOf(n neuron.Neuron) string {
	switch vv := n.(type) {
	case *graph.Text:
		return "text"
	case *graph.Int:
		return "int"
	case *graph.Double:
		return "double"
	case *core.Variable:
		return "var"
	case *core.Global:
		return "global"
	case *core.List:
		for _, c := range vv.Children() {
			if _, is := c.(core.Expression); !is {
				return "list"
			}
		}
		return "code"
	case core.Expression:
		return "statement"
	}
	return "neuron"
}

// Statement renders a statement on one line.
func Statement(g *graph.Graph, n neuron.Neuron) string {
	switch vv := n.(type) {
	case *core.ResultStatement:
		return Statement(g, &vv.Statement)
	case *core.Statement:
		args := make([]string, len(vv.Args))
		for i, a := range vv.Args {
			args[i] = argString(g, a)
		}
		return vv.Name + "(" + strings.Join(args, ", ") + ")"
	case *core.Assignment:
		return g.Label(vv.Left) + " = " + argString(g, vv.Right)
	case *core.ConditionalStatement:
		return fmt.Sprintf("%s (%d branches)", vv.Kind, len(vv.Conditions))
	case *core.ExpressionsBlock:
		if vv.Locks != nil {
			return "block locking " + argString(g, vv.Locks)
		}
		return "block"
	}
	return g.Label(n)
}

func argString(g *graph.Graph, n neuron.Neuron) string {
	if n == nil {
		return "nil"
	}
	switch n.(type) {
	case *core.Statement, *core.ResultStatement:
		return Statement(g, n)
	}
	return g.Label(n)
}
