// Package checkpoint implements the Checkpoint Store (spec.md §4.6): the
// two-table (run_info, run_details) state machine every partition
// executor and the coordinator read and write through. Grounded on
// platform/internal/database/db.go for the pgx + golang-migrate
// bootstrap, adapted from a long-lived pgxpool.Pool of API-request
// connections to a small pool of short checkpoint-write connections
// (spec.md §9 "Design Notes": a short-lived pool is fine for checkpoint
// writes even though sink connections must never be pooled).
package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	postgresmigrate "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/sakthi87/cstar2yb/internal/checkpoint/migrations"
	"github.com/sakthi87/cstar2yb/internal/errs"
	"github.com/sakthi87/cstar2yb/internal/logger"
	"github.com/sakthi87/cstar2yb/internal/model"
)

// stdlibDB opens a database/sql handle backed by pgx's stdlib driver,
// the shape golang-migrate's postgres driver needs; the checkpoint
// store itself uses pgxpool throughout for everything else.
func stdlibDB(dsn string) *sql.DB {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		// sql.Open only fails on a malformed driver name, which cannot
		// happen here since "pgx" is registered by this package's import.
		panic(err)
	}
	return db
}

// Store is the checkpoint store. Every operation runs in its own short
// transaction and tolerates concurrent callers from parallel partition
// executors (spec.md §4.6).
type Store struct {
	pool   *pgxpool.Pool
	schema string
	dsn    string
	log    *logger.Logger
}

// New opens the checkpoint store's connection pool. dsn must point at
// the target cluster; schema is the configured checkpoint schema
// (default "public").
func New(ctx context.Context, dsn, schema string, log *logger.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errs.New(errs.KindConnect, fmt.Errorf("opening checkpoint pool: %w", err))
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errs.New(errs.KindConnect, fmt.Errorf("pinging checkpoint store: %w", err))
	}
	return &Store{pool: pool, schema: schema, dsn: dsn, log: log}, nil
}

// Close releases the checkpoint pool.
func (s *Store) Close() { s.pool.Close() }

// runInfoTable and runDetailsTable qualify the two checkpoint tables with
// the configured schema (default "public"). Every query in this file
// goes through these rather than the bare table name: an unqualified
// reference would rely on the pool connections' unset search_path, which
// silently misses both tables whenever checkpoint.keyspace names
// anything other than the connection's default schema.
func (s *Store) runInfoTable() string    { return fmt.Sprintf(`"%s".run_info`, s.schema) }
func (s *Store) runDetailsTable() string { return fmt.Sprintf(`"%s".run_details`, s.schema) }

// InitTables creates run_info/run_details if absent, via the embedded
// golang-migrate source (spec.md §4.6 "create-if-absent; indexes
// best-effort").
func (s *Store) InitTables(ctx context.Context) error {
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return errs.New(errs.KindCheckpoint, fmt.Errorf("loading embedded migrations: %w", err))
	}

	driver, err := postgresmigrate.WithInstance(stdlibDB(s.dsn), &postgresmigrate.Config{
		SchemaName: s.schema,
	})
	if err != nil {
		return errs.New(errs.KindCheckpoint, fmt.Errorf("opening migration driver: %w", err))
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return errs.New(errs.KindCheckpoint, fmt.Errorf("building migrator: %w", err))
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errs.New(errs.KindCheckpoint, fmt.Errorf("applying checkpoint migrations: %w", err))
	}
	return nil
}

// GetPendingPartitions returns every run_details row of prevRunID whose
// status is NOT_STARTED, STARTED, or FAIL — the work list a resume
// attempt dispatches (spec.md §4.6). Returns a nil slice (and logs a
// warning, never an error) if prevRunID is 0, the prior run does not
// exist, or its status is NOT_STARTED. A prior run that exists but has no
// pending rows yields an empty, non-nil slice.
func (s *Store) GetPendingPartitions(ctx context.Context, table string, prevRunID int64) ([]model.PartitionDescriptor, error) {
	if prevRunID == 0 {
		s.log.Warn("checkpoint: no prior run to resume from", "table", table, "prev_run_id", prevRunID)
		return nil, nil
	}

	var priorStatus model.RunStatus
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT status FROM %s WHERE table_name = $1 AND run_id = $2`, s.runInfoTable()),
		table, prevRunID,
	).Scan(&priorStatus)
	if errors.Is(err, pgx.ErrNoRows) {
		s.log.Warn("checkpoint: prior run does not exist", "table", table, "prev_run_id", prevRunID)
		return nil, nil
	}
	if err != nil {
		return nil, errs.New(errs.KindCheckpoint, fmt.Errorf("looking up prior run: %w", err))
	}
	if priorStatus == model.RunNotStarted {
		s.log.Warn("checkpoint: prior run never started", "table", table, "prev_run_id", prevRunID)
		return nil, nil
	}

	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT token_min, token_max, partition_id
		   FROM %s
		  WHERE table_name = $1 AND run_id = $2 AND status = ANY($3)`, s.runDetailsTable()),
		table, prevRunID, []string{
			string(model.PartitionNotStarted), string(model.PartitionStarted), string(model.PartitionFail),
		},
	)
	if err != nil {
		return nil, errs.New(errs.KindCheckpoint, fmt.Errorf("querying pending partitions: %w", err))
	}
	defer rows.Close()

	out := []model.PartitionDescriptor{}
	for rows.Next() {
		var pd model.PartitionDescriptor
		if err := rows.Scan(&pd.TokenMin, &pd.TokenMax, &pd.PartitionID); err != nil {
			return nil, errs.New(errs.KindCheckpoint, fmt.Errorf("scanning pending partition: %w", err))
		}
		out = append(out, pd)
	}
	return out, rows.Err()
}

// InitRun is the one atomic unit that must succeed before any executor
// touches a partition (spec.md §4.6): it refuses a reused (table, run_id)
// with DuplicateRun, otherwise inserts the run_info row, batch-inserts
// every run_details row as NOT_STARTED, then flips run_info to STARTED —
// all in one transaction.
func (s *Store) InitRun(ctx context.Context, table string, runID, prevRunID int64, partitions []model.PartitionDescriptor, runType string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errs.New(errs.KindCheckpoint, fmt.Errorf("beginning init_run transaction: %w", err))
	}
	defer tx.Rollback(ctx)

	var exists bool
	if err := tx.QueryRow(ctx,
		fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE table_name = $1 AND run_id = $2)`, s.runInfoTable()),
		table, runID,
	).Scan(&exists); err != nil {
		return errs.New(errs.KindCheckpoint, fmt.Errorf("checking for duplicate run: %w", err))
	}
	if exists {
		return errs.New(errs.KindDuplicateRun, fmt.Errorf("run (%s, %d) already exists", table, runID))
	}

	if _, err := tx.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (table_name, run_id, run_type, prev_run_id, start_time, status)
		 VALUES ($1, $2, $3, $4, now(), $5)`, s.runInfoTable()),
		table, runID, runType, prevRunID, model.RunNotStarted,
	); err != nil {
		return errs.New(errs.KindCheckpoint, fmt.Errorf("inserting run_info: %w", err))
	}

	insertDetail := fmt.Sprintf(`INSERT INTO %s (table_name, run_id, start_time, token_min, token_max, partition_id, status)
			 VALUES ($1, $2, now(), $3, $4, $5, $6)`, s.runDetailsTable())
	batch := &pgx.Batch{}
	for _, p := range partitions {
		batch.Queue(
			insertDetail,
			table, runID, p.TokenMin, p.TokenMax, p.PartitionID, model.PartitionNotStarted,
		)
	}
	if len(partitions) > 0 {
		results := tx.SendBatch(ctx, batch)
		for range partitions {
			if _, err := results.Exec(); err != nil {
				_ = results.Close()
				return errs.New(errs.KindCheckpoint, fmt.Errorf("inserting run_details: %w", err))
			}
		}
		if err := results.Close(); err != nil {
			return errs.New(errs.KindCheckpoint, fmt.Errorf("closing run_details batch: %w", err))
		}
	}

	if _, err := tx.Exec(ctx,
		fmt.Sprintf(`UPDATE %s SET status = $1 WHERE table_name = $2 AND run_id = $3`, s.runInfoTable()),
		model.RunStarted, table, runID,
	); err != nil {
		return errs.New(errs.KindCheckpoint, fmt.Errorf("marking run STARTED: %w", err))
	}

	if err := tx.Commit(ctx); err != nil {
		return errs.New(errs.KindCheckpoint, fmt.Errorf("committing init_run: %w", err))
	}
	return nil
}

// UpdateRun updates one run_details row. Never returns an error the
// caller must act on: checkpoint staleness must not mask the real
// migration outcome (spec.md §4.6), so failures are logged only.
func (s *Store) UpdateRun(ctx context.Context, table string, runID, tokenMin int64, partitionID int, status model.PartitionStatus, runInfoText string) {
	var err error
	if status == model.PartitionStarted {
		_, err = s.pool.Exec(ctx,
			fmt.Sprintf(`UPDATE %s SET status = $1, start_time = now(), run_info = $2
			  WHERE table_name = $3 AND run_id = $4 AND token_min = $5 AND partition_id = $6`, s.runDetailsTable()),
			status, runInfoText, table, runID, tokenMin, partitionID,
		)
	} else {
		_, err = s.pool.Exec(ctx,
			fmt.Sprintf(`UPDATE %s SET status = $1, run_info = $2
			  WHERE table_name = $3 AND run_id = $4 AND token_min = $5 AND partition_id = $6`, s.runDetailsTable()),
			status, runInfoText, table, runID, tokenMin, partitionID,
		)
	}
	if err != nil {
		s.log.Error("checkpoint: update_run failed", "table", table, "run_id", runID,
			"partition_id", partitionID, "status", status, "err", err)
	}
}

// EndRun sets end_time, run_info, and status=ENDED on the run_info row.
func (s *Store) EndRun(ctx context.Context, table string, runID int64, summary string) error {
	_, err := s.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE %s SET end_time = $1, run_info = $2, status = $3
		  WHERE table_name = $4 AND run_id = $5`, s.runInfoTable()),
		time.Now().UTC(), summary, model.RunEnded, table, runID,
	)
	if err != nil {
		return errs.New(errs.KindCheckpoint, fmt.Errorf("end_run: %w", err))
	}
	return nil
}
