// Package storage persists the records of finished runs.
package storage

import (
	"context"
	"errors"
	"time"
)

// NotFound is returned for unknown runs.
var NotFound = errors.New("run not found")

// Result is one entry of a run's results.
type Result struct {
	Name   string  `json:"name" cbor:"name"`
	Weight float64 `json:"weight" cbor:"weight"`
}

// Run is the record of a solve: which neuron, when, and what came
// out.
type Run struct {
	// Id is unique per run.
	Id string `json:"id" cbor:"id"`

	// Neuron is the name of what was solved.
	Neuron string `json:"neuron" cbor:"neuron"`

	Started  time.Time `json:"started" cbor:"started"`
	Finished time.Time `json:"finished,omitempty" cbor:"finished,omitempty"`

	// State is the processor's final state.
	State string `json:"state,omitempty" cbor:"state,omitempty"`

	Results []Result `json:"results,omitempty" cbor:"results,omitempty"`

	// Error is what stopped the run, if anything.
	Error string `json:"error,omitempty" cbor:"error,omitempty"`
}

// Storage is a persistence interface for runs.  Runs are grouped
// by neuron.
type Storage interface {
	Open(ctx context.Context) error

	Close(ctx context.Context) error

	WriteRun(ctx context.Context, r *Run) error

	GetRun(ctx context.Context, neuron, id string) (*Run, error)

	// ListRuns returns the runs for the neuron, oldest first.
	ListRuns(ctx context.Context, neuron string) ([]*Run, error)

	RemRun(ctx context.Context, neuron, id string) error
}
