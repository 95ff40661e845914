// Package executor implements the Partition Executor (spec.md §4.5): the
// unit of concurrent work the coordinator's worker pool runs, one call
// per partition, start to PASS/FAIL.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sakthi87/cstar2yb/internal/config"
	"github.com/sakthi87/cstar2yb/internal/encode"
	"github.com/sakthi87/cstar2yb/internal/errs"
	"github.com/sakthi87/cstar2yb/internal/logger"
	"github.com/sakthi87/cstar2yb/internal/metrics"
	"github.com/sakthi87/cstar2yb/internal/model"
	"github.com/sakthi87/cstar2yb/internal/router"
	"github.com/sakthi87/cstar2yb/internal/sink"
	"github.com/sakthi87/cstar2yb/internal/source"
)

// CheckpointStore is the one checkpoint operation the executor needs,
// narrowed to an interface so partition-level tests can run against a
// fake without a real target cluster.
type CheckpointStore interface {
	UpdateRun(ctx context.Context, table string, runID, tokenMin int64, partitionID int, status model.PartitionStatus, runInfoText string)
}

// Executor runs one partition at a time, end to end: connect, write,
// checkpoint. It holds no per-partition state across calls — every field
// is a shared, read-only collaborator handed to it once by the
// coordinator, before fan-out, and never mutated afterwards (spec.md
// §4.5; §5 "no cross-partition shared mutable state except the
// checkpoint store and the counters").
type Executor struct {
	Router  *router.Router
	Store   CheckpointStore
	Reader  source.Reader
	Encoder *encode.Encoder
	Cfg     *config.Config
	Log     *logger.Logger

	// PrimaryKey is the BatchInsert-mode conflict target, resolved once
	// by the coordinator via ResolvePrimaryKey before any worker is
	// submitted, and frozen for the life of the run. Unused in COPY mode.
	PrimaryKey []string
}

// Result is what one partition attempt reports to the coordinator.
type Result struct {
	PartitionID int
	RowsRead    int64
	RowsWritten int64
	RowsSkipped int64
	SkippedDups int64
	Err         error
}

// Run executes one partition: mark STARTED, stream rows source-to-sink
// inside one transaction, commit and mark PASS, or roll back and mark
// FAIL on any read/write error (spec.md §4.5). Row-encoding failures are
// swallowed and counted, never fail the partition (spec.md §7,
// RowEncodingError's propagation policy).
func (e *Executor) Run(ctx context.Context, runID int64, d model.PartitionDescriptor) Result {
	start := time.Now()
	res := Result{PartitionID: d.PartitionID}

	e.Store.UpdateRun(ctx, e.Cfg.Table.TargetTable, runID, d.TokenMin, d.PartitionID, model.PartitionStarted, "")

	if err := e.runPartition(ctx, runID, d, &res); err != nil {
		res.Err = err
		metrics.PartitionsFailed.Inc()
		e.Store.UpdateRun(ctx, e.Cfg.Table.TargetTable, runID, d.TokenMin, d.PartitionID, model.PartitionFail, err.Error())
		e.Log.Error("executor: partition failed", "partition_id", d.PartitionID, "err", err)
	} else {
		metrics.PartitionsCompleted.Inc()
		summary := fmt.Sprintf("rows_written=%d rows_skipped=%d", res.RowsWritten, res.RowsSkipped)
		e.Store.UpdateRun(ctx, e.Cfg.Table.TargetTable, runID, d.TokenMin, d.PartitionID, model.PartitionPass, summary)
	}

	metrics.PartitionDuration.Observe(time.Since(start).Seconds())
	return res
}

func (e *Executor) runPartition(ctx context.Context, runID int64, d model.PartitionDescriptor, res *Result) error {
	conn, err := e.Router.Open(ctx, d.PartitionID)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	tx, err := conn.Begin(ctx)
	if err != nil {
		return errs.NewForPartition(errs.KindConnect, d.PartitionID, fmt.Errorf("beginning partition transaction: %w", err))
	}
	// tx.Conn() is the same physical connection the sink writes through:
	// every statement the sink issues runs inside this transaction at the
	// wire level, even though the sink's API is Conn-shaped rather than
	// Tx-shaped (spec.md §4.5 "one transaction per partition attempt").
	txConn := tx.Conn()

	s, err := e.newSink(txConn)
	if err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := s.Start(ctx); err != nil {
		s.Cancel(ctx)
		_ = tx.Rollback(ctx)
		return err
	}

	iter, err := e.Reader.Read(ctx, d)
	if err != nil {
		s.Cancel(ctx)
		_ = tx.Rollback(ctx)
		return errs.NewForPartition(errs.KindRead, d.PartitionID, err)
	}
	defer iter.Close()

	if err := e.drain(ctx, iter, s, runID, d, res); err != nil {
		s.Cancel(ctx)
		_ = tx.Rollback(ctx)
		return err
	}

	result, err := s.End(ctx)
	if err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	res.RowsWritten = result.RowsWritten
	res.SkippedDups = result.RowsSkippedDuplicates

	if err := tx.Commit(ctx); err != nil {
		return errs.NewForPartition(errs.KindWrite, d.PartitionID, fmt.Errorf("committing partition: %w", err))
	}

	metrics.RowsWritten.Add(float64(result.RowsWritten))
	metrics.RowsSkippedDuplicates.Add(float64(result.RowsSkippedDuplicates))
	return nil
}

// drain pulls every row from iter, encodes it, and feeds the sink,
// writing a partial checkpoint every checkpoint.interval rows (spec.md
// §4.6 "partial progress, best-effort, never blocks the write path").
func (e *Executor) drain(ctx context.Context, iter source.RowIterator, s sink.Sink, runID int64, d model.PartitionDescriptor, res *Result) error {
	interval := e.Cfg.Checkpoint.Interval
	if interval <= 0 {
		interval = 10000
	}

	for {
		row, ok, err := iter.Next(ctx)
		if err != nil {
			return errs.NewForPartition(errs.KindRead, d.PartitionID, err)
		}
		if !ok {
			return nil
		}
		res.RowsRead++
		metrics.RowsRead.Inc()

		encoded, err := e.encodeRow(row)
		if err != nil {
			res.RowsSkipped++
			metrics.RowsSkipped.Inc()
			e.Log.Warn("executor: row encoding failed, skipping", "partition_id", d.PartitionID, "err", err)
			continue
		}

		if err := s.AddRow(ctx, encoded); err != nil {
			return err
		}

		if e.Cfg.Checkpoint.Enabled && res.RowsRead%int64(interval) == 0 {
			e.Store.UpdateRun(ctx, e.Cfg.Table.TargetTable, runID, d.TokenMin, d.PartitionID, model.PartitionStarted,
				fmt.Sprintf("rows_read=%d", res.RowsRead))
		}
	}
}

// encodeRow renders one Row through whichever encoding the configured
// sink mode needs.
func (e *Executor) encodeRow(row model.Row) (sink.EncodedRow, error) {
	if e.Cfg.Insert.Mode == string(model.InsertModeInsert) {
		vals, err := e.Encoder.EncodePositional(row)
		if err != nil {
			return sink.EncodedRow{}, err
		}
		return sink.EncodedRow{Positional: vals}, nil
	}
	line, err := e.Encoder.EncodeCSV(row)
	if err != nil {
		return sink.EncodedRow{}, err
	}
	return sink.EncodedRow{CSVLine: line}, nil
}

// newSink builds the configured sink over conn (spec.md §4.4.3, a single
// run-level choice between COPY and INSERT).
func (e *Executor) newSink(conn *pgx.Conn) (sink.Sink, error) {
	cols := e.Encoder.Columns.Names()

	switch e.Cfg.Insert.Mode {
	case string(model.InsertModeInsert):
		return sink.NewBatchInsertSink(conn, sink.BatchInsertOptions{
			Schema:     e.Cfg.Target.Schema,
			Table:      e.Cfg.Target.Table,
			Columns:    cols,
			PrimaryKey: e.PrimaryKey,
			BatchSize:  e.Cfg.Insert.BatchSize,
		}, e.Log), nil
	default:
		return sink.NewStreamCopySink(conn, sink.StreamCopyOptions{
			Schema:      e.Cfg.Target.Schema,
			Table:       e.Cfg.Target.Table,
			Columns:     cols,
			Delimiter:   ',',
			Quote:       '"',
			Replace:     e.Cfg.Insert.CopyReplace,
			FlushEvery:  e.Cfg.Insert.CopyFlushEvery,
			BufferBytes: e.Cfg.Insert.CopyBufferBytes,
		}, e.Log), nil
	}
}

// ResolvePrimaryKey returns the configured primary key if set, otherwise
// discovers it from the target's catalog (spec.md §4.8: BatchInsert mode
// needs a conflict target even when the job configuration omits
// table.primaryKey). The discovery query mirrors the information_schema
// join PostgreSQL's own documentation recommends for listing a table's
// primary-key columns in ordinal position.
//
// Called exactly once by the coordinator, before any worker is submitted
// to the pool, and the result is frozen into every Executor's PrimaryKey
// field — resolving this per-partition-attempt would mean every worker
// racing on the same mutable state (spec.md §5).
//
// If discovery fails or finds nothing, spec.md §4.8 mandates falling
// back to the first target column and emitting a warning, rather than
// failing the run outright.
func ResolvePrimaryKey(ctx context.Context, conn *pgx.Conn, schema, table string, configured, targetColumns []string, log *logger.Logger) ([]string, error) {
	if len(configured) > 0 {
		return configured, nil
	}

	pk, err := discoverPrimaryKey(ctx, conn, schema, table)
	if err != nil {
		log.Warn("executor: primary key discovery failed, falling back to first target column",
			"schema", schema, "table", table, "err", err)
	} else if len(pk) == 0 {
		log.Warn("executor: no primary key discoverable, falling back to first target column",
			"schema", schema, "table", table)
	} else {
		return pk, nil
	}

	if len(targetColumns) == 0 {
		return nil, errs.New(errs.KindConfig, fmt.Errorf(
			"insert mode requires a primary key: none configured, none discoverable on %s.%s, "+
				"and no target column to fall back to", schema, table))
	}
	return targetColumns[:1], nil
}

// discoverPrimaryKey queries the target's catalog for table's primary-key
// column names in ordinal position. A nil, nil return means the table has
// no primary key constraint (not itself an error).
func discoverPrimaryKey(ctx context.Context, conn *pgx.Conn, schema, table string) ([]string, error) {
	rows, err := conn.Query(ctx, `
		SELECT kcu.column_name
		  FROM information_schema.table_constraints tc
		  JOIN information_schema.key_column_usage kcu
		    ON tc.constraint_name = kcu.constraint_name
		   AND tc.table_schema = kcu.table_schema
		 WHERE tc.constraint_type = 'PRIMARY KEY'
		   AND tc.table_schema = $1
		   AND tc.table_name = $2
		 ORDER BY kcu.ordinal_position`,
		schema, table,
	)
	if err != nil {
		return nil, fmt.Errorf("discovering primary key: %w", err)
	}
	defer rows.Close()

	var pk []string
	for rows.Next() {
		var col string
		if err := rows.Scan(&col); err != nil {
			return nil, fmt.Errorf("scanning primary key column: %w", err)
		}
		pk = append(pk, col)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return pk, nil
}
