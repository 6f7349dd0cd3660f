package noop

import (
	"context"
	"log"

	"github.com/Comcast/axon/core"
	"github.com/Comcast/axon/neuron"
)

// Interpreter is a core.Interpreter whose scripts return their
// solved arguments.
type Interpreter struct {
	// Silent, if true, will suppress warning log messages.
	Silent bool
}

func NewInterpreter() *Interpreter {
	return &Interpreter{}
}

func (i *Interpreter) Compile(ctx context.Context, code interface{}) (interface{}, error) {
	if !i.Silent {
		log.Printf("warning: Using noop Interpreter for compilation")
	}
	return nil, nil
}

func (i *Interpreter) Exec(ctx context.Context, p *core.Processor, args []neuron.Neuron, code interface{}, compiled interface{}) ([]neuron.Neuron, error) {
	if !i.Silent {
		log.Printf("warning: Using noop Interpreter for execution")
	}
	return p.SolveArgs(ctx, args)
}
