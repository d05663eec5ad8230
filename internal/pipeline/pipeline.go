package pipeline

import (
	"context"

	"github.com/technocodist/aitcsm/internal/common/simcontext"
	"github.com/technocodist/aitcsm/internal/simulation"
	"github.com/technocodist/aitcsm/internal/sink"
)

// Summary describes a finished submission that was drained into a sink.
type Summary struct {
	RunID           string
	Tasks           int
	Snapshots       int
	Batches         int
	FailedBatches   int
	FailedSnapshots int
	States          map[int64]TaskState
}

// Completed returns the number of tasks that ran to completion.
func (s Summary) Completed() int {
	n := 0
	for _, state := range s.States {
		if state == TaskCompleted {
			n++
		}
	}
	return n
}

// Run starts the submission, drains its stream into batches and stores every batch in sink. It returns once the
// stream is exhausted and every batch has been stored or has failed to be stored.
//
// The returned error is the first task failure, or a *SubmissionError if the submission was rejected.
// Cancelling ctx stops the tasks but not the storing of snapshots that were already produced. Batches that fail
// to store are counted in the Summary and passed to onFlushError if it is not nil.
func (r *Runner[P]) Run(ctx *simcontext.Context, tasks []simulation.Task[P], s sink.Sink, onFlushError func(*SinkError)) (Summary, error) {
	stream, err := r.Start(ctx, tasks)
	if err != nil {
		return Summary{}, err
	}
	log := ctx.Log.WithField("run", stream.RunID)

	acc, err := NewAccumulator[simulation.Snapshot](r.config, s.Store, r.metrics)
	if err != nil {
		stream.Cancel()
		return Summary{}, err
	}
	acc.WithLogger(log)
	acc.OnFlushError(onFlushError)

	flushCtx := context.WithoutCancel(ctx)
	acc.Run(flushCtx, stream.Items())
	stats, err := acc.Close(flushCtx)
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{
		RunID:           stream.RunID,
		Tasks:           len(tasks),
		Snapshots:       stats.Added,
		Batches:         stats.Batches,
		FailedBatches:   stats.FailedBatches,
		FailedSnapshots: stats.FailedItems,
		States:          stream.States(),
	}
	log.WithField("snapshots", summary.Snapshots).
		WithField("batches", summary.Batches).
		WithField("failedBatches", summary.FailedBatches).
		Infof("Run finished, %d of %d tasks completed", summary.Completed(), summary.Tasks)
	return summary, stream.Err()
}

// Run is a convenience wrapper around NewRunner(engine, config, nil).Run.
func Run[P simulation.Params](ctx *simcontext.Context, engine simulation.Engine[P], tasks []simulation.Task[P], config Config, s sink.Sink) (Summary, error) {
	return NewRunner[P](engine, config, nil).Run(ctx, tasks, s, nil)
}
