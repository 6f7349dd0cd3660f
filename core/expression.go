package core

import (
	"context"
	"errors"

	"github.com/Comcast/axon/neuron"
)

var (
	// InterpreterNotFound occurs when you try to Compile a
	// ScriptSource, and the required interpreter isn't in the
	// given map of interpreters.
	InterpreterNotFound = errors.New("interpreter not found")

	// DefaultInterpreters will be used in ScriptSource.Compile if
	// given nil interpreters.
	DefaultInterpreters = NewInterpretersMap()
)

// Expression is a neuron that can be executed as a statement.
type Expression interface {
	neuron.Neuron
	Execute(ctx context.Context, p *Processor) error
}

// ResultExpression is a neuron that produces a list of neurons.
type ResultExpression interface {
	neuron.Neuron
	Solve(ctx context.Context, p *Processor) ([]neuron.Neuron, error)
}

// BoolExpression is a neuron that evaluates to true or false.
type BoolExpression interface {
	neuron.Neuron
	Evaluate(ctx context.Context, p *Processor) (bool, error)
}

// Instruction is the operation behind a Statement.  Instructions
// that don't produce anything return nil results.
type Instruction interface {
	Exec(ctx context.Context, p *Processor, args []neuron.Neuron) ([]neuron.Neuron, error)
}

// InstructionFunc adapts a function to an Instruction.
type InstructionFunc func(ctx context.Context, p *Processor, args []neuron.Neuron) ([]neuron.Neuron, error)

func (f InstructionFunc) Exec(ctx context.Context, p *Processor, args []neuron.Neuron) ([]neuron.Neuron, error) {
	return f(ctx, p, args)
}

// ValueMapper converts between Go values and neurons.  Script
// interpreters use it to hand neurons to scripts and to turn what
// scripts return into neurons.
type ValueMapper interface {
	ToNeuron(x interface{}) (neuron.Neuron, error)
	FromNeuron(n neuron.Neuron) interface{}
}

// Interpreter can optionally compile and execute code for script
// instructions.
type Interpreter interface {
	// Compile can make something that helps when Exec()ing the
	// code later.
	Compile(ctx context.Context, code interface{}) (interface{}, error)

	// Exec executes the code.  The result of previous Compile()
	// might be provided.
	Exec(ctx context.Context, p *Processor, args []neuron.Neuron, code interface{}, compiled interface{}) ([]neuron.Neuron, error)
}

// InterpretersMap maps interpreter names to interpreters.
type InterpretersMap map[string]Interpreter

func NewInterpretersMap() InterpretersMap {
	return make(InterpretersMap, 8)
}

// ScriptSource can be compiled to an Instruction.
type ScriptSource struct {
	Interpreter string      `json:"interpreter,omitempty" yaml:",omitempty"`
	Source      interface{} `json:"source"`
}

// Compile attempts to compile the ScriptSource into an Instruction
// using the given interpreters, which defaults to
// DefaultInterpreters.
func (s *ScriptSource) Compile(ctx context.Context, interpreters InterpretersMap) (Instruction, error) {
	if interpreters == nil {
		interpreters = DefaultInterpreters
	}

	interpreter, have := interpreters[s.Interpreter]
	if !have {
		return nil, InterpreterNotFound
	}

	x, err := interpreter.Compile(ctx, s.Source)
	if err != nil {
		return nil, err
	}

	return InstructionFunc(func(ctx context.Context, p *Processor, args []neuron.Neuron) ([]neuron.Neuron, error) {
		return interpreter.Exec(ctx, p, args, s.Source, x)
	}), nil
}

// Code is the base for neurons that are part of the program rather
// than its data.  Code isn't copied when processors split.
type Code struct {
	neuron.Node
}

func (c *Code) Duplicate() (neuron.Neuron, error) {
	return nil, neuron.ErrNotDuplicable
}

// List is a plain cluster.  Used for code lists and results.
type List struct {
	neuron.Node
	Items []neuron.Neuron
}

// NewList makes a temporary (unregistered) cluster.
func NewList(items ...neuron.Neuron) *List {
	return &List{Items: items}
}

func (l *List) Children() []neuron.Neuron {
	l.RLock()
	acc := make([]neuron.Neuron, len(l.Items))
	copy(acc, l.Items)
	l.RUnlock()
	return acc
}

func (l *List) Duplicate() (neuron.Neuron, error) {
	return l.Base().DuplicateWith(&List{Items: l.Children()})
}
