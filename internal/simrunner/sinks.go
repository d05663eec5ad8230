package simrunner

import (
	"context"

	"github.com/go-redis/redis"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/technocodist/aitcsm/internal/common/simcontext"
	"github.com/technocodist/aitcsm/internal/simrunner/configuration"
	"github.com/technocodist/aitcsm/internal/sink"
)

// closers releases the resources held by the sinks of one run. Nil entries are skipped.
type closers []func() error

func (c closers) Close() error {
	var result *multierror.Error
	for i := len(c) - 1; i >= 0; i-- {
		if c[i] == nil {
			continue
		}
		if err := c[i](); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// NewSink builds the sink described by config. The configured types are opened concurrently, bounded by
// config.OpenTimeout when it is set, and if any of them fails the ones already opened are closed again.
//
// Each type is wrapped in a retrying sink when retries are configured, and several types are combined into one
// sink storing to all of them, so a retry only repeats the write that failed. The returned closer must be
// called once the run has finished.
func NewSink(ctx context.Context, config configuration.SinkConfig, runID string) (sink.Sink, func() error, error) {
	openCtx := simcontext.FromContext(ctx)
	if config.OpenTimeout > 0 {
		var cancel context.CancelFunc
		openCtx, cancel = simcontext.WithTimeout(openCtx, config.OpenTimeout)
		defer cancel()
	}

	sinks := make([]sink.Sink, len(config.Types))
	toClose := make(closers, len(config.Types))
	g, groupCtx := simcontext.ErrGroup(openCtx)
	for i, t := range config.Types {
		i, t := i, t
		g.Go(func() error {
			s, closer, err := newSink(groupCtx, t, config, runID)
			if err != nil {
				return errors.WithMessagef(err, "failed to create %s sink", t)
			}
			sinks[i] = s
			toClose[i] = closer
			groupCtx.Log.Infof("Storing snapshots in %s sink", t)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		_ = toClose.Close()
		return nil, nil, err
	}
	return combineSinks(sinks, config.Retry), toClose.Close, nil
}

func combineSinks(sinks []sink.Sink, retry configuration.RetryConfig) sink.Sink {
	if retry.Attempts > 1 {
		for i, s := range sinks {
			sinks[i] = sink.NewRetryingSink(s, retry.Attempts, retry.Delay)
		}
	}
	if len(sinks) == 1 {
		return sinks[0]
	}
	return sink.MultiSink(sinks)
}

func newSink(ctx context.Context, t configuration.SinkType, config configuration.SinkConfig, runID string) (sink.Sink, func() error, error) {
	switch t {
	case configuration.SinkSQLite:
		s, err := sink.OpenSQLite(ctx, config.SQLite.Path, runID)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case configuration.SinkPostgres:
		s, err := sink.OpenPostgres(ctx, config.Postgres.ConnString(), runID)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case configuration.SinkRedis:
		client := redis.NewUniversalClient(config.Redis.AsUniversalOptions())
		if err := client.Ping().Err(); err != nil {
			_ = client.Close()
			return nil, nil, errors.WithStack(err)
		}
		return sink.NewRedisSink(client, runID, config.Redis.Retention), client.Close, nil
	case configuration.SinkNATS:
		s, conn, err := sink.ConnectNATS(config.NATS.Url, config.NATS.Subject, runID)
		if err != nil {
			return nil, nil, err
		}
		return s, func() error {
			conn.Close()
			return nil
		}, nil
	case configuration.SinkFile:
		s, err := sink.OpenFile(config.File.Dir, runID)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case configuration.SinkMemory:
		return sink.NewMemorySink(), nil, nil
	default:
		return nil, nil, errors.Errorf("unknown sink type %q", t)
	}
}
