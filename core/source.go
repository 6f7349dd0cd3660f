package core

import (
	"context"

	"github.com/Comcast/axon/neuron"
)

// ForEachSource is a neuron that can enumerate rows for a ForQuery
// conditional.
type ForEachSource interface {
	neuron.Neuron
	Open(ctx context.Context, p *Processor) (RowCursor, error)
}

// RowCursor is an open enumeration of rows.
type RowCursor interface {
	// Next returns the next row.  The boolean is false at the end.
	Next(ctx context.Context) ([]neuron.Neuron, bool, error)

	// GotoEnd abandons the enumeration and releases resources.
	GotoEnd() error

	// Fork returns n independent cursors that continue from the
	// current position.  Used when a processor splits in the
	// middle of a query.
	Fork(n int) ([]RowCursor, error)
}

// SliceCursor enumerates rows held in memory.
type SliceCursor struct {
	Rows [][]neuron.Neuron
	pos  int
}

func NewSliceCursor(rows [][]neuron.Neuron) *SliceCursor {
	return &SliceCursor{Rows: rows}
}

func (c *SliceCursor) Next(ctx context.Context) ([]neuron.Neuron, bool, error) {
	if len(c.Rows) <= c.pos {
		return nil, false, nil
	}
	row := c.Rows[c.pos]
	c.pos++
	return row, true, nil
}

func (c *SliceCursor) GotoEnd() error {
	c.pos = len(c.Rows)
	return nil
}

func (c *SliceCursor) Fork(n int) ([]RowCursor, error) {
	acc := make([]RowCursor, n)
	for i := range acc {
		acc[i] = &SliceCursor{Rows: c.Rows, pos: c.pos}
	}
	return acc, nil
}

// RowsSource is a ForEachSource over the children of a cluster:
// each child that is itself a cluster is a row, and any other child
// is a row with one value.
type RowsSource struct {
	Code
	Rows neuron.Neuron
}

func (s *RowsSource) Open(ctx context.Context, p *Processor) (RowCursor, error) {
	vs, err := p.SolveArg(ctx, s.Rows)
	if err != nil {
		return nil, err
	}
	var rows [][]neuron.Neuron
	for _, v := range vs {
		if c, is := v.(neuron.Cluster); is {
			rows = append(rows, c.Children())
			continue
		}
		rows = append(rows, []neuron.Neuron{v})
	}
	return NewSliceCursor(rows), nil
}
