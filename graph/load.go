package graph

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/Comcast/axon/core"
	"github.com/Comcast/axon/neuron"

	"github.com/jsccast/yaml"
)

// Document is the YAML form of a graph.
//
//	neurons:
//	  greeting: {text: hello}
//	  X: {var: shared}
//	  likes: {rules: likesRules}
//	code:
//	  likesRules:
//	    - do: push
//	      args: [greeting]
//	links:
//	  - {from: homer, meaning: likes, to: beer}
//
// Neuron and code names share one namespace.
type Document struct {
	Neurons map[string]*NeuronDoc      `yaml:"neurons,omitempty"`
	Code    map[string][]*StatementDoc `yaml:"code,omitempty"`
	Links   []*LinkDoc                 `yaml:"links,omitempty"`
}

// NeuronDoc describes one neuron.  At most one of the value fields
// should be given.  Without one, the neuron is a plain node.
type NeuronDoc struct {
	Doc string `yaml:"doc,omitempty"`

	Text   *string       `yaml:"text,omitempty"`
	Int    *int64        `yaml:"int,omitempty"`
	Double *float64      `yaml:"double,omitempty"`
	List   []interface{} `yaml:"list,omitempty"`

	// Var and Global make variables.  The value is the split
	// reaction ("" for the default).
	Var    *string `yaml:"var,omitempty"`
	Global *string `yaml:"global,omitempty"`

	// Rules names the code that this neuron means when it is
	// used as a link's meaning.
	Rules string `yaml:"rules,omitempty"`

	// Actions names the code to run after this neuron's links.
	Actions string `yaml:"actions,omitempty"`
}

// LinkDoc is a link between named neurons.
type LinkDoc struct {
	From    string   `yaml:"from"`
	Meaning string   `yaml:"meaning"`
	To      string   `yaml:"to"`
	Info    []string `yaml:"info,omitempty"`
}

// StatementDoc is one statement.  Exactly one of Do, Script, Set,
// Cond, or Block should be given.
type StatementDoc struct {
	// Name optionally registers the statement under that name.
	Name string `yaml:"name,omitempty"`

	// Do names an instruction.
	Do     string             `yaml:"do,omitempty"`
	Script *core.ScriptSource `yaml:"script,omitempty"`
	Args   []interface{}      `yaml:"args,omitempty"`

	// Into stores the results of Do or Script in a variable.
	Into string `yaml:"into,omitempty"`

	// Set and To make an assignment.
	Set string      `yaml:"set,omitempty"`
	To  interface{} `yaml:"to,omitempty"`

	Cond *ConditionalDoc `yaml:"cond,omitempty"`

	Block []*StatementDoc `yaml:"block,omitempty"`
	Locks interface{}     `yaml:"locks,omitempty"`
}

// ConditionalDoc is an if, case, loop, foreach, forquery, or until.
type ConditionalDoc struct {
	Kind string `yaml:"kind"`

	// Value is the case item or the foreach items.
	Value interface{} `yaml:"value,omitempty"`

	// Item is the foreach variable.
	Item string `yaml:"item,omitempty"`

	// Source and Vars are for forquery.
	Source interface{} `yaml:"source,omitempty"`
	Vars   []string    `yaml:"vars,omitempty"`

	Pre      []*StatementDoc `yaml:"pre,omitempty"`
	Branches []*BranchDoc    `yaml:"branches"`
}

// BranchDoc is a condition with its body.  A missing When always
// holds.
type BranchDoc struct {
	When interface{}     `yaml:"when,omitempty"`
	Do   []*StatementDoc `yaml:"do,omitempty"`
}

// QueryMaker makes row sources for "query" arguments.
type QueryMaker interface {
	NewQuery(db, sql string, args []neuron.Neuron) (core.ForEachSource, error)
}

// Loader builds neurons from Documents.
type Loader struct {
	G *Graph

	// Interpreters compile script statements.  Nil means
	// core.DefaultInterpreters.
	Interpreters core.InterpretersMap

	// Instructions are looked up before core.Instructions.
	Instructions map[string]core.Instruction

	// Queries, if not nil, handles query arguments.
	Queries QueryMaker
}

// ParseDocument parses YAML.
func ParseDocument(bs []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(bs, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// LoadFile reads and loads a YAML file.
func (l *Loader) LoadFile(ctx context.Context, filename string) error {
	bs, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	doc, err := ParseDocument(bs)
	if err != nil {
		return fmt.Errorf("%s: %w", filename, err)
	}
	if err = l.Load(ctx, doc); err != nil {
		return fmt.Errorf("%s: %w", filename, err)
	}
	return nil
}

func sortedKeys[T any](m map[string]T) []string {
	acc := make([]string, 0, len(m))
	for k := range m {
		acc = append(acc, k)
	}
	sort.Strings(acc)
	return acc
}

// Load adds the document's neurons, code, and links to the graph.
func (l *Loader) Load(ctx context.Context, doc *Document) error {
	g := l.G

	lists := make(map[string]*core.List)
	for _, name := range sortedKeys(doc.Neurons) {
		n, err := l.makeNeuron(name, doc.Neurons[name])
		if err != nil {
			return fmt.Errorf("neuron %s: %w", name, err)
		}
		if x, is := n.(*core.List); is {
			lists[name] = x
		}
		if _, err := g.Register(name, n); err != nil {
			return err
		}
	}

	// Code lists are registered before they are filled so that
	// code can refer to code.
	code := make(map[string]*core.List, len(doc.Code))
	for _, name := range sortedKeys(doc.Code) {
		c := core.NewList()
		if _, err := g.Register(name, c); err != nil {
			return err
		}
		code[name] = c
	}

	for name, x := range lists {
		items, err := l.args(ctx, doc.Neurons[name].List)
		if err != nil {
			return fmt.Errorf("list %s: %w", name, err)
		}
		x.Items = items
	}

	for _, name := range sortedKeys(doc.Code) {
		items, err := l.statements(ctx, doc.Code[name])
		if err != nil {
			return fmt.Errorf("code %s: %w", name, err)
		}
		code[name].Items = items
	}

	for _, name := range sortedKeys(doc.Neurons) {
		nd := doc.Neurons[name]
		if nd.Rules == "" && nd.Actions == "" {
			continue
		}
		n, _ := g.Find(name)
		if nd.Rules != "" {
			if err := l.link(n, neuron.Rules, nd.Rules); err != nil {
				return fmt.Errorf("rules of %s: %w", name, err)
			}
		}
		if nd.Actions != "" {
			if err := l.link(n, neuron.Actions, nd.Actions); err != nil {
				return fmt.Errorf("actions of %s: %w", name, err)
			}
		}
	}

	for i, ld := range doc.Links {
		if err := l.addLink(ld); err != nil {
			return fmt.Errorf("link %d: %w", i, err)
		}
	}

	return nil
}

func (l *Loader) link(from, meaning neuron.Neuron, codeName string) error {
	to, err := l.G.Find(codeName)
	if err != nil {
		return err
	}
	if _, is := to.(neuron.Cluster); !is {
		return fmt.Errorf("%s isn't code", codeName)
	}
	_, err = l.G.Link(from, meaning, to)
	return err
}

func (l *Loader) addLink(ld *LinkDoc) error {
	g := l.G
	from, err := g.Find(ld.From)
	if err != nil {
		return err
	}
	meaning, err := g.Find(ld.Meaning)
	if err != nil {
		return err
	}
	to, err := g.Find(ld.To)
	if err != nil {
		return err
	}
	var info []neuron.Neuron
	for _, name := range ld.Info {
		n, err := g.Find(name)
		if err != nil {
			return err
		}
		info = append(info, n)
	}
	_, err = g.Link(from, meaning, to, info...)
	return err
}

func (l *Loader) makeNeuron(name string, nd *NeuronDoc) (neuron.Neuron, error) {
	if nd == nil {
		nd = &NeuronDoc{}
	}
	var n neuron.Neuron
	switch {
	case nd.Text != nil:
		n = &Text{Value: *nd.Text}
	case nd.Int != nil:
		n = &Int{Value: *nd.Int}
	case nd.Double != nil:
		n = &Double{Value: *nd.Double}
	case nd.List != nil:
		n = core.NewList()
	case nd.Var != nil:
		r, err := core.ParseSplitReaction(*nd.Var)
		if err != nil {
			return nil, err
		}
		n = &core.Variable{Name: name, Reaction: r}
	case nd.Global != nil:
		r, err := core.ParseSplitReaction(*nd.Global)
		if err != nil {
			return nil, err
		}
		n = &core.Global{Name: name, Reaction: r}
	default:
		n = &neuron.Node{}
	}
	n.(neuron.Based).Base().Doc = nd.Doc
	return n, nil
}

func (l *Loader) statements(ctx context.Context, sds []*StatementDoc) ([]neuron.Neuron, error) {
	acc := make([]neuron.Neuron, 0, len(sds))
	for i, sd := range sds {
		e, err := l.statement(ctx, sd)
		if err != nil {
			return nil, fmt.Errorf("statement %d: %w", i, err)
		}
		acc = append(acc, e)
	}
	return acc, nil
}

func (l *Loader) cluster(ctx context.Context, sds []*StatementDoc) (*core.List, error) {
	items, err := l.statements(ctx, sds)
	if err != nil {
		return nil, err
	}
	return l.G.NewList(items...), nil
}

func (l *Loader) instruction(ctx context.Context, sd *StatementDoc) (core.Instruction, string, error) {
	if sd.Script != nil {
		inst, err := sd.Script.Compile(ctx, l.Interpreters)
		if err != nil {
			return nil, "", fmt.Errorf("script (%s): %w", sd.Script.Interpreter, err)
		}
		return inst, sd.Script.Interpreter, nil
	}
	if inst, have := l.Instructions[sd.Do]; have {
		return inst, sd.Do, nil
	}
	if inst, have := core.Instructions[sd.Do]; have {
		return inst, sd.Do, nil
	}
	return nil, "", fmt.Errorf("unknown instruction %q", sd.Do)
}

func (l *Loader) variable(name string) (core.Assignable, error) {
	n, err := l.G.Find(name)
	if err != nil {
		return nil, err
	}
	v, is := n.(core.Assignable)
	if !is {
		return nil, fmt.Errorf("%s isn't a variable", name)
	}
	return v, nil
}

// statement makes an Expression.
func (l *Loader) statement(ctx context.Context, sd *StatementDoc) (core.Expression, error) {
	var (
		e   core.Expression
		err error
	)
	switch {
	case sd.Do != "" || sd.Script != nil:
		e, err = l.call(ctx, sd)
	case sd.Set != "":
		e, err = l.assignment(ctx, sd)
	case sd.Cond != nil:
		e, err = l.conditional(ctx, sd.Cond)
	case sd.Block != nil:
		e, err = l.block(ctx, sd)
	default:
		err = fmt.Errorf("empty statement")
	}
	if err != nil {
		return nil, err
	}
	if sd.Name != "" {
		_, err = l.G.Register(sd.Name, e)
	} else {
		l.G.Add(e)
	}
	return e, err
}

func (l *Loader) resultStatement(ctx context.Context, sd *StatementDoc) (*core.ResultStatement, error) {
	inst, name, err := l.instruction(ctx, sd)
	if err != nil {
		return nil, err
	}
	args, err := l.args(ctx, sd.Args)
	if err != nil {
		return nil, err
	}
	s := &core.ResultStatement{
		Statement: core.Statement{
			Name:        name,
			Instruction: inst,
			Args:        args,
		},
	}
	return s, nil
}

func (l *Loader) call(ctx context.Context, sd *StatementDoc) (core.Expression, error) {
	s, err := l.resultStatement(ctx, sd)
	if err != nil {
		return nil, err
	}
	if sd.Into == "" {
		return &s.Statement, nil
	}
	v, err := l.variable(sd.Into)
	if err != nil {
		return nil, err
	}
	l.G.Add(s)
	return &core.Assignment{Left: v, Right: s}, nil
}

func (l *Loader) assignment(ctx context.Context, sd *StatementDoc) (core.Expression, error) {
	v, err := l.variable(sd.Set)
	if err != nil {
		return nil, err
	}
	right, err := l.arg(ctx, sd.To)
	if err != nil {
		return nil, err
	}
	return &core.Assignment{Left: v, Right: right}, nil
}

func (l *Loader) block(ctx context.Context, sd *StatementDoc) (core.Expression, error) {
	body, err := l.cluster(ctx, sd.Block)
	if err != nil {
		return nil, err
	}
	b := &core.ExpressionsBlock{Statements: body}
	if sd.Locks != nil {
		if b.Locks, err = l.arg(ctx, sd.Locks); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (l *Loader) conditional(ctx context.Context, cd *ConditionalDoc) (core.Expression, error) {
	kind, ok := core.ParseConditionalKind(cd.Kind)
	if !ok {
		return nil, fmt.Errorf("unknown conditional kind %q", cd.Kind)
	}
	s := &core.ConditionalStatement{Kind: kind}
	var err error

	switch kind {
	case core.Case, core.CaseLooped, core.ForEach:
		if cd.Value == nil {
			return nil, fmt.Errorf("%s needs a value", kind)
		}
		if s.CaseItem, err = l.arg(ctx, cd.Value); err != nil {
			return nil, err
		}
	}

	if cd.Item != "" {
		if s.LoopItem, err = l.variable(cd.Item); err != nil {
			return nil, err
		}
	}

	if kind == core.ForQuery {
		if s.Source, err = l.arg(ctx, cd.Source); err != nil {
			return nil, err
		}
		if _, is := s.Source.(core.ForEachSource); !is {
			return nil, fmt.Errorf("forquery source isn't a row source")
		}
		for _, name := range cd.Vars {
			v, err := l.variable(name)
			if err != nil {
				return nil, err
			}
			s.LoopVars = append(s.LoopVars, v)
		}
	}

	if cd.Pre != nil {
		if s.Pre, err = l.cluster(ctx, cd.Pre); err != nil {
			return nil, fmt.Errorf("pre: %w", err)
		}
	}

	for i, bd := range cd.Branches {
		ce := &core.ConditionalExpression{}
		if bd.When != nil {
			if ce.Condition, err = l.arg(ctx, bd.When); err != nil {
				return nil, fmt.Errorf("branch %d: %w", i, err)
			}
		}
		if ce.Statements, err = l.cluster(ctx, bd.Do); err != nil {
			return nil, fmt.Errorf("branch %d: %w", i, err)
		}
		l.G.Add(ce)
		s.Conditions = append(s.Conditions, ce)
	}

	return s, nil
}

func (l *Loader) args(ctx context.Context, xs []interface{}) ([]neuron.Neuron, error) {
	acc := make([]neuron.Neuron, len(xs))
	for i, x := range xs {
		n, err := l.arg(ctx, x)
		if err != nil {
			return nil, fmt.Errorf("arg %d: %w", i, err)
		}
		acc[i] = n
	}
	return acc, nil
}

// arg turns a YAML value into a neuron.  Strings are names.  Numbers
// and booleans are literals.  Maps are literals (text, int, double),
// expressions (eq, not, rows, query), or statements whose results
// are the value.
func (l *Loader) arg(ctx context.Context, x interface{}) (neuron.Neuron, error) {
	g := l.G
	switch vv := x.(type) {
	case nil:
		return neuron.Empty, nil
	case string:
		return g.Find(vv)
	case bool:
		return neuron.Bool(vv), nil
	case int:
		return g.NewInt(int64(vv)), nil
	case int64:
		return g.NewInt(vv), nil
	case float64:
		return g.NewDouble(vv), nil
	case []interface{}:
		items, err := l.args(ctx, vv)
		if err != nil {
			return nil, err
		}
		return g.NewList(items...), nil
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(vv))
		for k, v := range vv {
			s, is := k.(string)
			if !is {
				return nil, fmt.Errorf("bad key (%T)", k)
			}
			m[s] = v
		}
		return l.mapArg(ctx, m)
	case map[string]interface{}:
		return l.mapArg(ctx, vv)
	}
	return nil, fmt.Errorf("can't use a %T as an argument", x)
}

func (l *Loader) mapArg(ctx context.Context, m map[string]interface{}) (neuron.Neuron, error) {
	g := l.G
	if x, have := m["text"]; have {
		return g.NewText(fmt.Sprintf("%v", x)), nil
	}
	if x, have := m["eq"]; have {
		xs, is := x.([]interface{})
		if !is || len(xs) != 2 {
			return nil, fmt.Errorf("eq wants two operands")
		}
		ns, err := l.args(ctx, xs)
		if err != nil {
			return nil, err
		}
		e := &core.Equals{Left: ns[0], Right: ns[1]}
		g.Add(e)
		return e, nil
	}
	if x, have := m["not"]; have {
		n, err := l.arg(ctx, x)
		if err != nil {
			return nil, err
		}
		e := &core.Not{X: n}
		g.Add(e)
		return e, nil
	}
	if x, have := m["rows"]; have {
		n, err := l.arg(ctx, x)
		if err != nil {
			return nil, err
		}
		s := &core.RowsSource{Rows: n}
		g.Add(s)
		return s, nil
	}
	if x, have := m["query"]; have {
		return l.query(ctx, x, m)
	}

	var sd StatementDoc
	if err := remarshal(m, &sd); err != nil {
		return nil, err
	}
	if sd.Do == "" && sd.Script == nil {
		return nil, fmt.Errorf("unknown argument %v", m)
	}
	s, err := l.resultStatement(ctx, &sd)
	if err != nil {
		return nil, err
	}
	g.Add(s)
	return s, nil
}

func (l *Loader) query(ctx context.Context, sql interface{}, m map[string]interface{}) (neuron.Neuron, error) {
	if l.Queries == nil {
		return nil, fmt.Errorf("no databases for query")
	}
	s, is := sql.(string)
	if !is {
		return nil, fmt.Errorf("query isn't a string")
	}
	db, _ := m["db"].(string)
	var args []neuron.Neuron
	if xs, have := m["args"].([]interface{}); have {
		var err error
		if args, err = l.args(ctx, xs); err != nil {
			return nil, err
		}
	}
	src, err := l.Queries.NewQuery(db, s, args)
	if err != nil {
		return nil, err
	}
	l.G.Add(src)
	return src, nil
}

// remarshal converts a generic map to a struct by way of YAML.
func remarshal(src interface{}, dst interface{}) error {
	bs, err := yaml.Marshal(src)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(bs, dst)
}
