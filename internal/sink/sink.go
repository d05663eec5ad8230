package sink

import (
	"context"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/technocodist/aitcsm/internal/common/codec"
	"github.com/technocodist/aitcsm/internal/simulation"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Sink durably stores batches of snapshots. Implementations must be safe for concurrent use since batches may
// be flushed concurrently.
type Sink interface {
	Store(ctx context.Context, batch []simulation.Snapshot) error
}

// Func adapts a function to a Sink.
type Func func(ctx context.Context, batch []simulation.Snapshot) error

func (f Func) Store(ctx context.Context, batch []simulation.Snapshot) error {
	return f(ctx, batch)
}

// Row is the storage form of one series of one snapshot. The payload holds the series values in the
// length-prefixed little-endian codec format.
type Row struct {
	RunID   string `db:"run_id" json:"runId"`
	TaskID  int64  `db:"task_id" json:"taskId"`
	Engine  string `db:"engine" json:"engine"`
	Step    int64  `db:"step" json:"step"`
	Series  string `db:"series" json:"series"`
	Payload []byte `db:"payload" json:"payload"`
}

// ToRows flattens a batch into rows, one per series, keeping the batch order.
func ToRows(runID string, batch []simulation.Snapshot) []Row {
	n := 0
	for _, s := range batch {
		n += len(s.Series)
	}
	rows := make([]Row, 0, n)
	for _, s := range batch {
		for _, series := range s.Series {
			rows = append(rows, Row{
				RunID:   runID,
				TaskID:  s.TaskID,
				Engine:  s.Engine,
				Step:    s.Step,
				Series:  series.Name,
				Payload: codec.EncodeFloat64s(series.Values),
			})
		}
	}
	return rows
}

// FromRows rebuilds snapshots from rows produced by ToRows. Consecutive rows with the same task and step are
// merged into one snapshot.
func FromRows(rows []Row) ([]simulation.Snapshot, error) {
	var snapshots []simulation.Snapshot
	for _, row := range rows {
		values, err := codec.DecodeFloat64s(row.Payload)
		if err != nil {
			return nil, errors.WithMessagef(err, "series %s of task %d step %d", row.Series, row.TaskID, row.Step)
		}
		series := simulation.Series{Name: row.Series, Values: values}
		if n := len(snapshots); n > 0 && snapshots[n-1].TaskID == row.TaskID && snapshots[n-1].Step == row.Step {
			snapshots[n-1].Series = append(snapshots[n-1].Series, series)
			continue
		}
		snapshots = append(snapshots, simulation.Snapshot{
			TaskID: row.TaskID,
			Engine: row.Engine,
			Step:   row.Step,
			Series: []simulation.Series{series},
		})
	}
	return snapshots, nil
}
