package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis"
	"github.com/pkg/errors"

	"github.com/technocodist/aitcsm/internal/simulation"
)

const snapshotKeyPrefix = "snapshots:"

// RedisSink appends rows, encoded as json, to one redis list per task and run.
type RedisSink struct {
	runID     string
	db        redis.UniversalClient
	retention time.Duration
}

// NewRedisSink returns a RedisSink. Lists expire retention after their last write; zero keeps them forever.
func NewRedisSink(db redis.UniversalClient, runID string, retention time.Duration) *RedisSink {
	return &RedisSink{runID: runID, db: db, retention: retention}
}

func (s *RedisSink) Store(ctx context.Context, batch []simulation.Snapshot) error {
	if len(batch) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	rows := ToRows(s.runID, batch)
	keys := make(map[string]bool)

	pipe := s.db.Pipeline()
	for _, row := range rows {
		data, err := json.Marshal(row)
		if err != nil {
			return errors.WithStack(err)
		}
		key := snapshotsKey(row.RunID, row.TaskID)
		pipe.RPush(key, data)
		keys[key] = true
	}
	if s.retention > 0 {
		for key := range keys {
			pipe.Expire(key, s.retention)
		}
	}
	_, err := pipe.Exec()
	return errors.WithStack(err)
}

// Load returns the rows stored for one task of a run.
func (s *RedisSink) Load(runID string, taskID int64) ([]Row, error) {
	values, err := s.db.LRange(snapshotsKey(runID, taskID), 0, -1).Result()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	rows := make([]Row, len(values))
	for i, v := range values {
		if err := json.Unmarshal([]byte(v), &rows[i]); err != nil {
			return nil, errors.WithStack(err)
		}
	}
	return rows, nil
}

func snapshotsKey(runID string, taskID int64) string {
	return fmt.Sprintf("%s%s:%d", snapshotKeyPrefix, runID, taskID)
}
