// Package simulation defines the engines that produce snapshot sequences for the pipeline, together with the
// task and snapshot types they exchange with it.
//
// An engine is a pure function of its task: given the task parameters and the task's own random stream it
// calls the supplied Emitter once per sampled step. Engines check their context before every loop iteration
// and stop as soon as either the context is done or the Emitter returns an error.
package simulation

import (
	"context"

	"github.com/technocodist/aitcsm/internal/common/random"
)

// Series is one named numeric array of a snapshot payload, e.g. the agents' money or the velocity trace.
type Series struct {
	Name   string
	Values []float64
}

// Snapshot is a result record emitted by a task at a given step. Snapshots are immutable once emitted: engines
// copy their working buffers into a fresh Snapshot on every emit.
type Snapshot struct {
	TaskID int64
	Engine string
	Step   int64
	Series []Series
}

// Values returns the values of the series with the given name, or nil if there is no such series.
func (s Snapshot) Values(name string) []float64 {
	for _, series := range s.Series {
		if series.Name == name {
			return series.Values
		}
	}
	return nil
}

// Params is implemented by the parameter record of every engine.
type Params interface {
	Validate() error
}

// Task identifies one simulation run. ID must be unique within a submission; Seed fully determines the output.
type Task[P Params] struct {
	ID     int64
	Seed   int64
	Params P
}

// Emitter hands a snapshot to the pipeline. It may block while the pipeline applies backpressure and returns a
// non-nil error when the task must stop emitting.
type Emitter func(Snapshot) error

// Engine produces the snapshot sequence of a task.
type Engine[P Params] interface {
	// Name is the engine identifier stored with every snapshot.
	Name() string
	// Simulate runs task to completion, emitting snapshots as it goes. rng is owned by this call.
	Simulate(ctx context.Context, task Task[P], rng *random.Stream, emit Emitter) error
}

// EngineFunc adapts a function to the Engine interface.
type EngineFunc[P Params] struct {
	EngineName string
	Fn         func(ctx context.Context, task Task[P], rng *random.Stream, emit Emitter) error
}

func (f EngineFunc[P]) Name() string {
	return f.EngineName
}

func (f EngineFunc[P]) Simulate(ctx context.Context, task Task[P], rng *random.Stream, emit Emitter) error {
	return f.Fn(ctx, task, rng, emit)
}

func clone(values []float64) []float64 {
	out := make([]float64, len(values))
	copy(out, values)
	return out
}
