package sink

import (
	"context"
	"time"

	"github.com/avast/retry-go"
	log "github.com/sirupsen/logrus"

	"github.com/technocodist/aitcsm/internal/simulation"
)

// RetryingSink retries failed stores of the wrapped sink with a fixed delay between attempts.
type RetryingSink struct {
	inner    Sink
	attempts uint
	delay    time.Duration
}

func NewRetryingSink(inner Sink, attempts uint, delay time.Duration) *RetryingSink {
	if attempts == 0 {
		attempts = 1
	}
	return &RetryingSink{inner: inner, attempts: attempts, delay: delay}
}

func (s *RetryingSink) Store(ctx context.Context, batch []simulation.Snapshot) error {
	return retry.Do(
		func() error {
			return s.inner.Store(ctx, batch)
		},
		retry.Context(ctx),
		retry.Attempts(s.attempts),
		retry.Delay(s.delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.WithError(err).Warnf("Storing batch of %d snapshots failed on attempt %d, retrying", len(batch), n+1)
		}),
	)
}
