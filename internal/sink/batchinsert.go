// BatchInsertSink is the idempotent path (spec.md §4.4.2): prepared
// INSERT ... ON CONFLICT DO NOTHING, executed as a pgx.Batch every
// batch_size rows. Per-row success is read from the driver's update
// counts.
package sink

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/sakthi87/cstar2yb/internal/errs"
	"github.com/sakthi87/cstar2yb/internal/logger"
)

// BatchInsertOptions configures one run's INSERT sink.
type BatchInsertOptions struct {
	Schema        string
	Table         string
	Columns       []string
	PrimaryKey    []string
	BatchSize     int
}

// BatchInsertSink implements Sink by batching prepared INSERT statements.
type BatchInsertSink struct {
	conn *pgx.Conn
	opts BatchInsertOptions
	log  *logger.Logger

	insertSQL string
	batch     *pgx.Batch
	buffered  int

	rowsWritten int64
	rowsSkipped int64
	ended       bool
	cancelled   bool
}

// NewBatchInsertSink constructs the sink. Start must be called before
// AddRow.
func NewBatchInsertSink(conn *pgx.Conn, opts BatchInsertOptions, log *logger.Logger) *BatchInsertSink {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1000
	}
	return &BatchInsertSink{conn: conn, opts: opts, log: log}
}

func (s *BatchInsertSink) Start(ctx context.Context) error {
	s.insertSQL = s.buildInsertSQL()
	s.batch = &pgx.Batch{}
	return nil
}

func (s *BatchInsertSink) buildInsertSQL() string {
	cols := joinQuoted(s.opts.Columns)
	placeholders := ""
	for i := range s.opts.Columns {
		if i > 0 {
			placeholders += ", "
		}
		placeholders += fmt.Sprintf("$%d", i+1)
	}
	pk := joinQuoted(s.opts.PrimaryKey)
	return fmt.Sprintf(
		"INSERT INTO %s.%s (%s) VALUES (%s) ON CONFLICT (%s) DO NOTHING",
		s.opts.Schema, s.opts.Table, cols, placeholders, pk,
	)
}

// AddRow queues one positionally-encoded row into the current batch;
// executes the batch once BatchSize rows have queued.
func (s *BatchInsertSink) AddRow(ctx context.Context, row EncodedRow) error {
	s.batch.Queue(s.insertSQL, row.Positional...)
	s.buffered++

	if s.buffered >= s.opts.BatchSize {
		return s.Flush(ctx)
	}
	return nil
}

// Flush executes the currently queued batch and tallies inserted vs.
// skipped-duplicate rows from each statement's reported update count.
func (s *BatchInsertSink) Flush(ctx context.Context) error {
	if s.buffered == 0 {
		return nil
	}

	n := s.buffered
	results := s.conn.SendBatch(ctx, s.batch)
	for i := 0; i < n; i++ {
		tag, err := results.Exec()
		if err != nil {
			_ = results.Close()
			return errs.New(errs.KindWrite, fmt.Errorf("batch insert row %d: %w", i, err))
		}
		if tag.RowsAffected() > 0 {
			s.rowsWritten++
		} else {
			s.rowsSkipped++
		}
	}
	if err := results.Close(); err != nil {
		return errs.New(errs.KindWrite, fmt.Errorf("closing batch results: %w", err))
	}

	s.batch = &pgx.Batch{}
	s.buffered = 0
	return nil
}

// End flushes any remainder and reports rows inserted / skipped as
// duplicates.
func (s *BatchInsertSink) End(ctx context.Context) (Result, error) {
	if s.ended {
		return Result{RowsWritten: s.rowsWritten, RowsSkippedDuplicates: s.rowsSkipped}, nil
	}
	if err := s.Flush(ctx); err != nil {
		return Result{}, err
	}
	s.ended = true
	return Result{RowsWritten: s.rowsWritten, RowsSkippedDuplicates: s.rowsSkipped}, nil
}

// Cancel is idempotent (P7): the queued-but-unexecuted batch is simply
// discarded.
func (s *BatchInsertSink) Cancel(ctx context.Context) {
	if s.cancelled {
		return
	}
	s.cancelled = true
	s.batch = &pgx.Batch{}
	s.buffered = 0
}
