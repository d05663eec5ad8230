package sink

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/technocodist/aitcsm/internal/simulation"
)

const (
	snapshotsTable = "snapshots"
	sqliteInMemory = ":memory:"
	// Keeps every insert well below the sqlite bound on host parameters.
	sqliteRowsPerInsert = 1000
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS snapshots (
    run_id  TEXT    NOT NULL,
    task_id INTEGER NOT NULL,
    engine  TEXT    NOT NULL,
    step    INTEGER NOT NULL,
    series  TEXT    NOT NULL,
    payload BLOB    NOT NULL,
    PRIMARY KEY (run_id, task_id, step, series)
);`

// SQLiteSink stores rows in a sqlite database. sqlite allows a single writer, so writes are serialised.
type SQLiteSink struct {
	runID string
	raw   *sql.DB
	db    *goqu.Database
	mu    sync.Mutex
}

// OpenSQLite opens (creating if needed) the database at path and makes sure the schema exists. Use ":memory:"
// for a private in-memory database.
func OpenSQLite(ctx context.Context, path string, runID string) (*SQLiteSink, error) {
	if path != sqliteInMemory && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.WithStack(err)
		}
	}
	raw, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	// A second connection to ":memory:" would see a different database.
	raw.SetMaxOpenConns(1)
	if _, err := raw.ExecContext(ctx, sqliteSchema); err != nil {
		_ = raw.Close()
		return nil, errors.Wrapf(err, "creating schema in %s", path)
	}
	return &SQLiteSink{
		runID: runID,
		raw:   raw,
		db:    goqu.New("sqlite3", raw),
	}, nil
}

func (s *SQLiteSink) Store(ctx context.Context, batch []simulation.Snapshot) error {
	rows := ToRows(s.runID, batch)
	if len(rows) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.WithTx(func(tx *goqu.TxDatabase) error {
		for start := 0; start < len(rows); start += sqliteRowsPerInsert {
			end := start + sqliteRowsPerInsert
			if end > len(rows) {
				end = len(rows)
			}
			insert := tx.Insert(snapshotsTable).
				Rows(rows[start:end]).
				OnConflict(goqu.DoNothing()).
				Prepared(true)
			if _, err := insert.Executor().ExecContext(ctx); err != nil {
				return errors.WithStack(err)
			}
		}
		return nil
	})
}

// Load returns every row of a run ordered by task, step and insertion order.
func (s *SQLiteSink) Load(ctx context.Context, runID string) ([]Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rows []Row
	err := s.db.From(snapshotsTable).
		Where(goqu.C("run_id").Eq(runID)).
		Order(goqu.C("task_id").Asc(), goqu.C("step").Asc(), goqu.C("rowid").Asc()).
		ScanStructsContext(ctx, &rows)
	return rows, errors.WithStack(err)
}

// Runs returns the ids of all runs in the database.
func (s *SQLiteSink) Runs(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var runs []string
	err := s.db.From(snapshotsTable).
		Select(goqu.C("run_id")).
		Distinct().
		Order(goqu.C("run_id").Asc()).
		ScanValsContext(ctx, &runs)
	return runs, errors.WithStack(err)
}

func (s *SQLiteSink) Close() error {
	return s.raw.Close()
}
