package pipeline

import (
	"context"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/technocodist/aitcsm/internal/common/logging"
	"github.com/technocodist/aitcsm/internal/common/random"
	"github.com/technocodist/aitcsm/internal/common/simcontext"
	"github.com/technocodist/aitcsm/internal/common/util"
	"github.com/technocodist/aitcsm/internal/pipeline/metrics"
	"github.com/technocodist/aitcsm/internal/simulation"
)

// TaskState is the lifecycle state of one task in a submission:
// Pending -> AwaitingSlot -> Running -> {Completed | Cancelled | Failed}.
// A task cancelled while waiting for a slot goes straight from AwaitingSlot to Cancelled.
type TaskState int32

const (
	TaskPending TaskState = iota
	TaskAwaitingSlot
	TaskRunning
	TaskCompleted
	TaskCancelled
	TaskFailed
)

func (s TaskState) String() string {
	switch s {
	case TaskPending:
		return "pending"
	case TaskAwaitingSlot:
		return "awaiting_slot"
	case TaskRunning:
		return "running"
	case TaskCompleted:
		return "completed"
	case TaskCancelled:
		return "cancelled"
	case TaskFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the task has finished.
func (s TaskState) Terminal() bool {
	return s == TaskCompleted || s == TaskCancelled || s == TaskFailed
}

// State is a point-in-time view of a submission.
type State struct {
	// Tasks currently holding a throttle slot
	Running int
	// Tasks that have not yet finished
	Unfinished int
	// Whether the multiplexer has been closed to writers
	Terminal bool
	// The first task failure, if any
	Err error
}

// Stream is the merged snapshot output of one submission. It must be drained by a single reader until Next
// returns false (or the submission cancelled), otherwise writers stay suspended.
type Stream struct {
	RunID    string
	mux      *Multiplexer[simulation.Snapshot]
	throttle *Throttle
	cancel   context.CancelFunc
	ids      []int64
	states   []atomic.Int32
	running  atomic.Int64
}

// Items returns the channel of snapshots. It is closed once every task has finished.
func (s *Stream) Items() <-chan simulation.Snapshot {
	return s.mux.Items()
}

// Next returns the next snapshot, blocking until one is available. It returns false once the stream is
// exhausted, after which Err reports the pipeline error.
func (s *Stream) Next() (simulation.Snapshot, bool) {
	return s.mux.Receive()
}

// Err returns the first task failure. Cancellation is not a failure.
func (s *Stream) Err() error {
	return s.mux.Err()
}

// Cancel stops the submission: waiting tasks never start and running tasks stop at their next checkpoint.
// Snapshots already buffered remain readable.
func (s *Stream) Cancel() {
	s.cancel()
}

// Done is closed once every task has finished.
func (s *Stream) Done() <-chan struct{} {
	return s.mux.Done()
}

// States returns the current state of every task by task id.
func (s *Stream) States() map[int64]TaskState {
	states := make(map[int64]TaskState, len(s.ids))
	for i, id := range s.ids {
		states[id] = TaskState(s.states[i].Load())
	}
	return states
}

// Stats returns a snapshot of the submission state.
func (s *Stream) Stats() State {
	unfinished := 0
	for i := range s.states {
		if !TaskState(s.states[i].Load()).Terminal() {
			unfinished++
		}
	}
	return State{
		Running:    int(s.running.Load()),
		Unfinished: unfinished,
		Terminal:   s.mux.Terminal(),
		Err:        s.mux.Err(),
	}
}

func (s *Stream) setState(i int, state TaskState) {
	s.states[i].Store(int32(state))
}

// Runner fans a submission of tasks out to an engine, at most DegreeOfParallelism at a time, and fans their
// snapshots back in to a single Stream.
type Runner[P simulation.Params] struct {
	engine  simulation.Engine[P]
	config  Config
	metrics *metrics.Metrics
	runID   string
}

// NewRunner returns a Runner. metrics may be nil.
func NewRunner[P simulation.Params](engine simulation.Engine[P], config Config, m *metrics.Metrics) *Runner[P] {
	return &Runner[P]{
		engine:  engine,
		config:  config,
		metrics: m,
	}
}

// WithRunID makes the next submission use id instead of a freshly generated run id. Sinks that tag rows with
// the run id need to know it before the run starts. The id is used once; later submissions get fresh ids.
func (r *Runner[P]) WithRunID(id string) *Runner[P] {
	r.runID = id
	return r
}

// RunConcurrent starts every task of the submission and returns the merged stream of their snapshots.
func RunConcurrent[P simulation.Params](ctx *simcontext.Context, engine simulation.Engine[P], tasks []simulation.Task[P], config Config) (*Stream, error) {
	return NewRunner[P](engine, config, nil).Start(ctx, tasks)
}

// Start validates the submission and, if it is valid, starts every task. It returns a *SubmissionError listing
// all violations otherwise, in which case no task is started.
func (r *Runner[P]) Start(ctx *simcontext.Context, tasks []simulation.Task[P]) (*Stream, error) {
	if err := r.validate(tasks); err != nil {
		return nil, err
	}

	throttle, err := NewThrottle(r.config.DegreeOfParallelism)
	if err != nil {
		return nil, err
	}
	mux, err := NewMultiplexer[simulation.Snapshot](r.config.QueueCapacity)
	if err != nil {
		return nil, err
	}

	runID := r.runID
	r.runID = ""
	if runID == "" {
		runID = util.NewULID()
	}
	runCtx, cancel := simcontext.WithCancel(simcontext.WithLogFields(ctx, logrus.Fields{
		"run":    runID,
		"engine": r.engine.Name(),
	}))

	stream := &Stream{
		RunID:    runID,
		mux:      mux,
		throttle: throttle,
		cancel:   cancel,
		ids:      make([]int64, len(tasks)),
		states:   make([]atomic.Int32, len(tasks)),
	}
	for i, task := range tasks {
		stream.ids[i] = task.ID
	}

	runCtx.Log.Infof("Starting %d tasks with degree of parallelism %d", len(tasks), r.config.DegreeOfParallelism)

	if len(tasks) == 0 {
		mux.complete()
	}
	mux.AddWriters(len(tasks))
	for i, task := range tasks {
		i, task := i, task
		go r.runTask(runCtx, stream, i, task)
	}

	// Release the derived context once every writer has exited.
	go func() {
		<-mux.Done()
		cancel()
	}()
	return stream, nil
}

func (r *Runner[P]) validate(tasks []simulation.Task[P]) error {
	var result *multierror.Error
	if err := r.config.Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	seen := make(map[int64]bool, len(tasks))
	for _, task := range tasks {
		if seen[task.ID] {
			result = multierror.Append(result, errors.Errorf("task id %d is used more than once", task.ID))
		}
		seen[task.ID] = true
		if err := task.Params.Validate(); err != nil {
			result = multierror.Append(result, errors.WithMessagef(err, "task %d has invalid parameters", task.ID))
		}
	}
	if result.ErrorOrNil() != nil {
		return &SubmissionError{Violations: result}
	}
	return nil
}

func (r *Runner[P]) runTask(ctx *simcontext.Context, stream *Stream, i int, task simulation.Task[P]) {
	defer stream.mux.WriterDone()
	ctx = simcontext.WithLogField(ctx, "task", task.ID)

	stream.setState(i, TaskAwaitingSlot)
	if err := stream.throttle.Acquire(ctx); err != nil {
		ctx.Log.Debug("Cancelled before a slot became free")
		r.finish(ctx, stream, i, task, TaskCancelled, nil)
		return
	}
	stream.running.Add(1)
	r.metrics.SetThrottleSlotsInUse(stream.throttle.InUse())
	defer func() {
		stream.running.Add(-1)
		stream.throttle.Release()
		r.metrics.SetThrottleSlotsInUse(stream.throttle.InUse())
	}()

	stream.setState(i, TaskRunning)
	ctx.Log.Debug("Task started")

	rng := random.New(task.Seed)
	err := r.simulate(ctx, stream, task, rng)
	ctx = simcontext.WithLogFields(ctx, logrus.Fields{"seed": rng.Seed(), "draws": rng.Draws()})
	switch {
	case err == nil:
		r.finish(ctx, stream, i, task, TaskCompleted, nil)
	case isCancellation(ctx, err):
		r.finish(ctx, stream, i, task, TaskCancelled, nil)
	default:
		r.finish(ctx, stream, i, task, TaskFailed, err)
	}
}

// simulate runs the engine for one task with rng, which is built from the task's own seed. Emitted snapshots
// are stamped with the task identity and checked for increasing steps before being queued.
func (r *Runner[P]) simulate(ctx *simcontext.Context, stream *Stream, task simulation.Task[P], rng *random.Stream) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.Errorf("engine panicked: %v", p)
		}
	}()

	engineName := r.engine.Name()
	lastStep := int64(0)
	emitted := false
	emit := func(snapshot simulation.Snapshot) error {
		if emitted && snapshot.Step <= lastStep {
			return errors.Wrapf(ErrStepOrder, "step %d emitted after step %d", snapshot.Step, lastStep)
		}
		snapshot.TaskID = task.ID
		if snapshot.Engine == "" {
			snapshot.Engine = engineName
		}
		if err := stream.mux.Send(ctx, snapshot); err != nil {
			return err
		}
		emitted = true
		lastStep = snapshot.Step
		r.metrics.RecordSnapshotSent()
		return nil
	}
	return r.engine.Simulate(ctx, task, rng, emit)
}

func (r *Runner[P]) finish(ctx *simcontext.Context, stream *Stream, i int, task simulation.Task[P], state TaskState, err error) {
	stream.setState(i, state)
	switch state {
	case TaskCompleted:
		r.metrics.RecordTaskOutcome(metrics.TaskOutcomeCompleted)
		ctx.Log.Debug("Task completed")
	case TaskCancelled:
		r.metrics.RecordTaskOutcome(metrics.TaskOutcomeCancelled)
		ctx.Log.Debug("Task cancelled")
	case TaskFailed:
		r.metrics.RecordTaskOutcome(metrics.TaskOutcomeFailed)
		taskErr := &TaskError{TaskID: task.ID, Engine: r.engine.Name(), Err: err}
		if stream.mux.Fail(taskErr) {
			logging.WithStacktrace(ctx.Log, err).Error("Task failed")
		} else {
			logging.WithStacktrace(ctx.Log, err).Warn("Task failed after the pipeline error was already recorded")
		}
		if r.config.FailFast {
			stream.Cancel()
		}
	}
}
