package pipeline

import (
	"runtime"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// FlushMode selects whether the drain loop waits for the sink.
type FlushMode string

const (
	// FlushAsync hands full batches to the sink on a separate goroutine; draining continues immediately.
	FlushAsync FlushMode = "async"
	// FlushSync stores each full batch before draining continues.
	FlushSync FlushMode = "sync"
)

const (
	DefaultQueueCapacity = 5_000
	DefaultBatchSize     = 10_000
)

type Config struct {
	// Maximum number of tasks running at once
	DegreeOfParallelism int `mapstructure:"degreeOfParallelism"`
	// Number of snapshots the multiplexer buffers before writers are suspended
	QueueCapacity int `mapstructure:"queueCapacity"`
	// Number of snapshots handed to the sink at once
	BatchSize int `mapstructure:"batchSize"`
	// Whether the drain loop waits for each batch to be stored
	FlushMode FlushMode `mapstructure:"flushMode"`
	// Maximum number of batches being stored concurrently in async mode. Zero means unbounded
	MaxConcurrentFlushes int `mapstructure:"maxConcurrentFlushes"`
	// If non-zero, a partial batch is flushed once it has waited this long. Zero flushes on size and end of stream only
	MaxBatchWait time.Duration `mapstructure:"maxBatchWait"`
	// Cancel the remaining tasks as soon as one task fails
	FailFast bool `mapstructure:"failFast"`
}

// DefaultConfig returns a Config with one task per CPU, the default queue capacity and batch size, and
// asynchronous flushing.
func DefaultConfig() Config {
	return Config{
		DegreeOfParallelism: runtime.NumCPU(),
		QueueCapacity:       DefaultQueueCapacity,
		BatchSize:           DefaultBatchSize,
		FlushMode:           FlushAsync,
	}
}

func (c Config) Validate() error {
	var result *multierror.Error
	if c.DegreeOfParallelism < 1 {
		result = multierror.Append(result, errors.Errorf("degreeOfParallelism must be at least 1, got %d", c.DegreeOfParallelism))
	}
	if c.QueueCapacity < 1 {
		result = multierror.Append(result, errors.Errorf("queueCapacity must be at least 1, got %d", c.QueueCapacity))
	}
	if c.BatchSize < 1 {
		result = multierror.Append(result, errors.Errorf("batchSize must be at least 1, got %d", c.BatchSize))
	}
	if c.FlushMode != FlushAsync && c.FlushMode != FlushSync {
		result = multierror.Append(result, errors.Errorf("flushMode must be %q or %q, got %q", FlushAsync, FlushSync, c.FlushMode))
	}
	if c.MaxConcurrentFlushes < 0 {
		result = multierror.Append(result, errors.Errorf("maxConcurrentFlushes must not be negative, got %d", c.MaxConcurrentFlushes))
	}
	if c.MaxBatchWait < 0 {
		result = multierror.Append(result, errors.Errorf("maxBatchWait must not be negative, got %s", c.MaxBatchWait))
	}
	return result.ErrorOrNil()
}
