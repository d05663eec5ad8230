package sink

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/technocodist/aitcsm/internal/common/util"
	"github.com/technocodist/aitcsm/internal/simulation"
)

type migration struct {
	id   int
	name string
	sql  string
}

var postgresMigrations = []migration{
	{
		id:   1,
		name: "001_create_snapshots",
		sql: `CREATE TABLE IF NOT EXISTS snapshots (
    run_id  text   NOT NULL,
    task_id bigint NOT NULL,
    engine  text   NOT NULL,
    step    bigint NOT NULL,
    series  text   NOT NULL,
    payload bytea  NOT NULL,
    PRIMARY KEY (run_id, task_id, step, series)
);`,
	},
	{
		id:   2,
		name: "002_create_runs_index",
		sql:  `CREATE INDEX IF NOT EXISTS idx_snapshots_engine_run ON snapshots (engine, run_id);`,
	},
	{
		id:   3,
		name: "003_add_series_ordinal",
		sql:  `ALTER TABLE snapshots ADD COLUMN IF NOT EXISTS ordinal integer NOT NULL DEFAULT 0;`,
	},
}

// PostgresSink stores rows in postgres. Each batch is copied into a temporary table and then merged, so a
// retried batch does not fail on rows that were already stored.
type PostgresSink struct {
	runID string
	db    *pgxpool.Pool
}

// OpenPostgres connects to postgres and brings the schema up to date.
func OpenPostgres(ctx context.Context, connString string, runID string) (*PostgresSink, error) {
	db, err := pgxpool.Connect(ctx, connString)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if err := UpdateDatabase(ctx, db, postgresMigrations); err != nil {
		db.Close()
		return nil, err
	}
	return NewPostgresSink(db, runID), nil
}

func NewPostgresSink(db *pgxpool.Pool, runID string) *PostgresSink {
	return &PostgresSink{runID: runID, db: db}
}

func (s *PostgresSink) Store(ctx context.Context, batch []simulation.Snapshot) error {
	rows := ToRows(s.runID, batch)
	if len(rows) == 0 {
		return nil
	}
	ordinals := seriesOrdinals(rows)
	tmpTable := uniqueTableName(snapshotsTable)

	createTmp := func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, fmt.Sprintf(`
				CREATE TEMPORARY TABLE %s (LIKE snapshots INCLUDING DEFAULTS) ON COMMIT DROP;`, tmpTable))
		return err
	}

	insertTmp := func(tx pgx.Tx) error {
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{tmpTable},
			[]string{"run_id", "task_id", "engine", "step", "series", "payload", "ordinal"},
			pgx.CopyFromSlice(len(rows), func(i int) ([]interface{}, error) {
				return []interface{}{
					rows[i].RunID,
					rows[i].TaskID,
					rows[i].Engine,
					rows[i].Step,
					rows[i].Series,
					rows[i].Payload,
					ordinals[i],
				}, nil
			}),
		)
		return err
	}

	copyToDest := func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, fmt.Sprintf(`
				INSERT INTO snapshots (run_id, task_id, engine, step, series, payload, ordinal)
				SELECT run_id, task_id, engine, step, series, payload, ordinal FROM %s
				ON CONFLICT DO NOTHING`, tmpTable))
		return err
	}

	return batchInsert(ctx, s.db, createTmp, insertTmp, copyToDest)
}

// Load returns every row of a run ordered by task and step. The rows of one snapshot keep the order its series
// had when stored.
func (s *PostgresSink) Load(ctx context.Context, runID string) ([]Row, error) {
	result, err := s.db.Query(ctx, `
		SELECT run_id, task_id, engine, step, series, payload
		FROM snapshots WHERE run_id = $1 ORDER BY task_id, step, ordinal`, runID)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer result.Close()
	var rows []Row
	for result.Next() {
		var row Row
		if err := result.Scan(&row.RunID, &row.TaskID, &row.Engine, &row.Step, &row.Series, &row.Payload); err != nil {
			return nil, errors.WithStack(err)
		}
		rows = append(rows, row)
	}
	return rows, errors.WithStack(result.Err())
}

// seriesOrdinals numbers the rows of each snapshot from zero in the order ToRows produced them.
func seriesOrdinals(rows []Row) []int32 {
	ordinals := make([]int32, len(rows))
	for i := 1; i < len(rows); i++ {
		if rows[i].TaskID == rows[i-1].TaskID && rows[i].Step == rows[i-1].Step {
			ordinals[i] = ordinals[i-1] + 1
		}
	}
	return ordinals
}

func (s *PostgresSink) Close() error {
	s.db.Close()
	return nil
}

func batchInsert(ctx context.Context, db *pgxpool.Pool, createTmp func(pgx.Tx) error,
	insertTmp func(pgx.Tx) error, copyToDest func(pgx.Tx) error,
) error {
	return db.BeginTxFunc(ctx, pgx.TxOptions{
		IsoLevel:       pgx.ReadCommitted,
		AccessMode:     pgx.ReadWrite,
		DeferrableMode: pgx.Deferrable,
	}, func(tx pgx.Tx) error {
		// Create a temporary table to hold the staging data
		if err := createTmp(tx); err != nil {
			return errors.WithStack(err)
		}
		if err := insertTmp(tx); err != nil {
			return errors.WithStack(err)
		}
		return errors.WithStack(copyToDest(tx))
	})
}

func uniqueTableName(table string) string {
	return fmt.Sprintf("%s_tmp_%s", table, util.NewULID())
}

// UpdateDatabase applies every migration newer than the version recorded in the database, in order.
func UpdateDatabase(ctx context.Context, db *pgxpool.Pool, migrations []migration) error {
	log.Info("Updating postgres...")
	version, err := readVersion(ctx, db)
	if err != nil {
		return err
	}
	log.Infof("Current version %v", version)

	for _, m := range migrations {
		if m.id <= version {
			continue
		}
		if _, err := db.Exec(ctx, m.sql); err != nil {
			return errors.Wrapf(err, "applying migration %s", m.name)
		}
		version = m.id
		if err := setVersion(ctx, db, version); err != nil {
			return err
		}
	}
	log.Info("Database updated.")
	return nil
}

func readVersion(ctx context.Context, db *pgxpool.Pool) (int, error) {
	_, err := db.Exec(ctx,
		`CREATE SEQUENCE IF NOT EXISTS database_version START WITH 0 MINVALUE 0;`)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	var version int
	err = db.QueryRow(ctx, `SELECT last_value FROM database_version`).Scan(&version)
	return version, errors.WithStack(err)
}

func setVersion(ctx context.Context, db *pgxpool.Pool, version int) error {
	_, err := db.Exec(ctx, `SELECT setval('database_version', $1)`, version)
	return errors.WithStack(err)
}
