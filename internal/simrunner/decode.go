package simrunner

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/technocodist/aitcsm/internal/sink"
)

// DecodeSource names where stored rows are read back from: either a sqlite database and run, or a file written
// by the file sink.
type DecodeSource struct {
	SQLitePath string
	// Run to read from the sqlite database. Empty picks the most recent run.
	RunID string
	File  string
}

type decodedSeries struct {
	Name   string    `yaml:"name"`
	Values []float64 `yaml:"values,flow"`
}

type decodedSnapshot struct {
	Run    string          `yaml:"run,omitempty"`
	TaskID int64           `yaml:"task"`
	Engine string          `yaml:"engine"`
	Step   int64           `yaml:"step"`
	Series []decodedSeries `yaml:"series"`
}

// Decode reads stored rows, decodes their payloads and writes one yaml document per snapshot to w.
func Decode(ctx context.Context, source DecodeSource, w io.Writer) (int, error) {
	rows, runID, err := loadRows(ctx, source)
	if err != nil {
		return 0, err
	}
	snapshots, err := sink.FromRows(rows)
	if err != nil {
		return 0, err
	}

	encoder := yaml.NewEncoder(w)
	for _, s := range snapshots {
		out := decodedSnapshot{Run: runID, TaskID: s.TaskID, Engine: s.Engine, Step: s.Step}
		for _, series := range s.Series {
			out.Series = append(out.Series, decodedSeries{Name: series.Name, Values: series.Values})
		}
		if err := encoder.Encode(out); err != nil {
			return 0, errors.WithStack(err)
		}
	}
	return len(snapshots), errors.WithStack(encoder.Close())
}

func loadRows(ctx context.Context, source DecodeSource) ([]sink.Row, string, error) {
	switch {
	case source.File != "" && source.SQLitePath != "":
		return nil, "", errors.New("set either a sqlite database or a file, not both")
	case source.File != "":
		rows, err := sink.ReadFile(source.File)
		if err != nil {
			return nil, "", err
		}
		runID := ""
		if len(rows) > 0 {
			runID = rows[0].RunID
		}
		return rows, runID, nil
	case source.SQLitePath != "":
		db, err := sink.OpenSQLite(ctx, source.SQLitePath, "")
		if err != nil {
			return nil, "", err
		}
		defer db.Close()
		runID := source.RunID
		if runID == "" {
			runs, err := db.Runs(ctx)
			if err != nil {
				return nil, "", err
			}
			if len(runs) == 0 {
				return nil, "", errors.Errorf("%s holds no runs", source.SQLitePath)
			}
			// Run ids are ulids, so the last in sort order is the most recent.
			runID = runs[len(runs)-1]
		}
		rows, err := db.Load(ctx, runID)
		return rows, runID, err
	default:
		return nil, "", errors.New("nothing to decode, set a sqlite database or a file")
	}
}
