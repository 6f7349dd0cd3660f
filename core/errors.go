package core

// Structural errors (InvalidOperation) halt a processor.  Data
// errors (UnresolvedMeaning, BadCode, NoCaseValue, NotEvaluable) are
// logged and abandon only the construct at hand.

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/Comcast/axon/neuron"
)

var (
	// ErrProcessorStopped is the cooperative cancellation signal.
	// It travels up through frames and function calls until it
	// reaches the goroutine that runs the processor.  Nothing else
	// may swallow it.
	ErrProcessorStopped = errors.New("processor stopped")

	// ErrNoFrames occurs when a frame is popped from an empty
	// frame stack.
	ErrNoFrames = errors.New("no frames to pop")

	// ErrDeadLockEnded is returned to waiters that EndDeadLock
	// released.
	ErrDeadLockEnded = errors.New("wait ended by EndDeadLock")

	// ErrNoThreadManager occurs when a processor that wasn't made
	// by a ThreadManager is asked to do something that needs one.
	ErrNoThreadManager = errors.New("processor has no thread manager")
)

// InvalidOperation is an authoring error in the expression graph
// (for example, "break" outside of any loop).
type InvalidOperation struct {
	Op  string
	Msg string
}

func (e *InvalidOperation) Error() string {
	return "invalid operation " + e.Op + ": " + e.Msg
}

// UnresolvedMeaning occurs when a link's meaning can't provide rules.
type UnresolvedMeaning struct {
	Link *neuron.Link
}

func (e *UnresolvedMeaning) Error() string {
	id := "nil"
	if e.Link != nil && e.Link.Meaning != nil {
		id = e.Link.Meaning.ID().String()
	}
	return "unresolved meaning " + id
}

// BadCode occurs when a cluster's children can't be used as code.
type BadCode struct {
	Cluster neuron.Neuron
	Index   int
}

func (e *BadCode) Error() string {
	id := "nil"
	if e.Cluster != nil {
		id = e.Cluster.ID().String()
	}
	return "child " + strconv.Itoa(e.Index) + " of cluster " + id + " isn't an expression"
}

// NoCaseValue occurs when a case or foreach item solves to nothing.
type NoCaseValue struct {
	Statement neuron.Neuron
}

func (e *NoCaseValue) Error() string {
	return "no case value for statement " + e.Statement.ID().String()
}

// NotEvaluable occurs when a condition is neither a BoolExpression
// nor a ResultExpression.
type NotEvaluable struct {
	Condition neuron.Neuron
	Index     int
}

func (e *NotEvaluable) Error() string {
	return "condition " + strconv.Itoa(e.Index) + " (" + e.Condition.ID().String() + ") can't be evaluated"
}

// isStructural reports whether the error should halt the processor.
func isStructural(err error) bool {
	if errors.Is(err, ErrProcessorStopped) || errors.Is(err, ErrNoFrames) {
		return true
	}
	var inv *InvalidOperation
	return errors.As(err, &inv)
}

func panicMessage(r interface{}) string {
	if err, is := r.(error); is {
		return "panic: " + err.Error()
	}
	return fmt.Sprintf("panic: %v", r)
}
