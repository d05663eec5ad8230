package pipeline

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// ErrInvalidSubmission is matched (via errors.Is) by every error rejecting a submission before it starts.
var ErrInvalidSubmission = errors.New("invalid submission")

// ErrStepOrder is returned when an engine emits a step number that does not increase.
var ErrStepOrder = errors.New("snapshot steps must be strictly increasing")

// SubmissionError lists every precondition a submission violated. Nothing is started when it is returned.
type SubmissionError struct {
	Violations *multierror.Error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidSubmission, e.Violations)
}

func (e *SubmissionError) Unwrap() error {
	return e.Violations
}

func (e *SubmissionError) Is(target error) bool {
	return target == ErrInvalidSubmission
}

// TaskError is the failure of a single simulation task.
type TaskError struct {
	TaskID int64
	Engine string
	Err    error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %d (%s) failed: %s", e.TaskID, e.Engine, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// SinkError is the failure of the sink to store one batch. It is reported out of band and never ends a
// submission.
type SinkError struct {
	BatchSize int
	Err       error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("failed to store batch of %d snapshots: %s", e.BatchSize, e.Err)
}

func (e *SinkError) Unwrap() error {
	return e.Err
}

// isCancellation reports whether err is the result of ctx being cancelled rather than a genuine failure.
func isCancellation(ctx context.Context, err error) bool {
	if ctx.Err() == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
