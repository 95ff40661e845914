// Package coordinator implements the Migration Coordinator (spec.md
// §4.9): the single entry point that takes the loaded configuration,
// plans, fans out Partition Executors over a bounded worker pool, and decides the
// run's final exit status.
//
// Worker-pool fan-out is grounded on docdb's executor-pool usage of
// panjf2000/ants: a fixed-size pool submitted one closure per unit of
// work, drained with a WaitGroup, rather than one goroutine per
// partition.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/sakthi87/cstar2yb/internal/config"
	"github.com/sakthi87/cstar2yb/internal/encode"
	"github.com/sakthi87/cstar2yb/internal/errs"
	"github.com/sakthi87/cstar2yb/internal/executor"
	"github.com/sakthi87/cstar2yb/internal/logger"
	"github.com/sakthi87/cstar2yb/internal/metrics"
	"github.com/sakthi87/cstar2yb/internal/model"
	"github.com/sakthi87/cstar2yb/internal/planner"
	"github.com/sakthi87/cstar2yb/internal/router"
	"github.com/sakthi87/cstar2yb/internal/source"
)

// Summary is the coordinator's final report (spec.md §4.9 step 11's
// end_run summary, plus the process exit-code decision of step 12).
type Summary struct {
	RunID               int64
	RowsRead            int64
	RowsWritten         int64
	RowsSkipped         int64
	PartitionsCompleted int64
	PartitionsFailed    int64
	ValidationOK        bool
	FailedPartitionIDs  []int
}

// Success reports whether the run should exit 0: no failed partitions,
// and (if validation is enabled) the counters reconcile (spec.md §4.9
// "Failure policy").
func (s Summary) Success() bool {
	return s.PartitionsFailed == 0 && s.ValidationOK
}

// String renders the end_run summary text persisted to run_info.
func (s Summary) String() string {
	return fmt.Sprintf(
		"rows_read=%d rows_written=%d rows_skipped=%d partitions_completed=%d partitions_failed=%d validation_ok=%v",
		s.RowsRead, s.RowsWritten, s.RowsSkipped, s.PartitionsCompleted, s.PartitionsFailed, s.ValidationOK,
	)
}

// CheckpointStore is the subset of *checkpoint.Store the coordinator
// needs, narrowed to an interface so resume/init-run logic can be tested
// against a fake without a real target cluster.
type CheckpointStore interface {
	InitTables(ctx context.Context) error
	GetPendingPartitions(ctx context.Context, table string, prevRunID int64) ([]model.PartitionDescriptor, error)
	InitRun(ctx context.Context, table string, runID, prevRunID int64, partitions []model.PartitionDescriptor, runType string) error
	UpdateRun(ctx context.Context, table string, runID, tokenMin int64, partitionID int, status model.PartitionStatus, runInfoText string)
	EndRun(ctx context.Context, table string, runID int64, summary string) error
}

// Coordinator owns one run end to end.
type Coordinator struct {
	Cfg    *config.Config
	Store  CheckpointStore
	Router *router.Router
	Reader source.Reader
	Log    *logger.Logger
}

// Run executes the full sequence of spec.md §4.9: init tables, plan,
// enumerate, resume-intersect, init_run, fan out, aggregate, validate,
// end_run.
func (c *Coordinator) Run(ctx context.Context, runStart time.Time) (Summary, error) {
	table := c.Cfg.Table.TargetTable
	runID := c.Cfg.Migration.RunID
	if runID == 0 {
		runID = runStart.Unix()
	}

	if err := c.Store.InitTables(ctx); err != nil {
		return Summary{}, err
	}

	splitSizeMB := c.planSplitSize()
	hint := source.PlanHint{
		SplitSizeMB:   splitSizeMB,
		MinPartitions: c.Cfg.Parallelism,
	}

	canonical, err := c.Reader.EnumeratePartitions(ctx, hint)
	if err != nil {
		return Summary{}, err
	}

	workList, err := c.resumeIntersect(ctx, table, canonical)
	if err != nil {
		return Summary{}, err
	}

	if err := c.Store.InitRun(ctx, table, runID, c.Cfg.Migration.PrevRunID, workList, c.Cfg.Migration.RunType); err != nil {
		return Summary{}, err
	}

	enc := encode.New(c.targetColumns(runStart), encode.DefaultDialect, runStart)

	// Primary-key discovery (spec.md §4.8) happens exactly once here,
	// before any worker is submitted, and is frozen into every
	// partition's Executor — never re-resolved per partition, which
	// would race every BatchInsert-mode worker on the same mutable
	// state (spec.md §5).
	var primaryKey []string
	if c.Cfg.Insert.Mode == string(model.InsertModeInsert) {
		primaryKey, err = c.resolvePrimaryKey(ctx, enc.Columns.Names())
		if err != nil {
			return Summary{}, err
		}
	}

	exec := &executor.Executor{
		Router:     c.Router,
		Store:      c.Store,
		Reader:     c.Reader,
		Encoder:    enc,
		Cfg:        c.Cfg,
		Log:        c.Log,
		PrimaryKey: primaryKey,
	}

	agg := c.fanOut(ctx, exec, runID, workList)

	agg.ValidationOK = true
	if c.Cfg.Validation.Enabled {
		agg.ValidationOK = agg.RowsWritten == agg.RowsRead-agg.RowsSkipped
		if !agg.ValidationOK {
			c.Log.Error("coordinator: validation mismatch",
				"rows_read", agg.RowsRead, "rows_skipped", agg.RowsSkipped, "rows_written", agg.RowsWritten)
		}
	}
	agg.RunID = runID

	if err := c.Store.EndRun(ctx, table, runID, agg.String()); err != nil {
		return agg, err
	}
	return agg, nil
}

// planSplitSize runs the Split-Size Planner (spec.md §4.7) ahead of
// partition enumeration; table size / skew metadata is best-effort and,
// when unavailable, the planner's documented fallback applies.
func (c *Coordinator) planSplitSize() int {
	return planner.SplitSizeMB(planner.Inputs{
		Override: c.Cfg.SplitSize.Override,
		Fallback: c.Cfg.SplitSize.Fallback,
	})
}

// resolvePrimaryKey opens one connection via the router (partition-id
// binding doesn't matter here, any target node's catalog reflects the
// same schema) and runs the §4.8 discovery-with-fallback sequence once
// for the whole run.
func (c *Coordinator) resolvePrimaryKey(ctx context.Context, targetColumns []string) ([]string, error) {
	conn, err := c.Router.Open(ctx, 0)
	if err != nil {
		return nil, err
	}
	defer conn.Close(ctx)

	return executor.ResolvePrimaryKey(ctx, conn, c.Cfg.Target.Schema, c.Cfg.Target.Table,
		c.Cfg.Table.PrimaryKey, targetColumns, c.Log)
}

// resumeIntersect implements spec.md §4.9 step 6: on a fresh run the
// canonical partition list is the work list; on resume, the pending
// descriptors from the prior run are intersected with the canonical list
// by partition_id, so a changed planner output between runs never
// resurrects a partition the canonical enumeration no longer produces.
// A nil pending list (no usable prior run) leaves the canonical list as
// the work list; an empty, non-nil one (every prior partition PASS)
// yields an empty work list.
func (c *Coordinator) resumeIntersect(ctx context.Context, table string, canonical []model.PartitionDescriptor) ([]model.PartitionDescriptor, error) {
	if c.Cfg.Migration.PrevRunID == 0 {
		return canonical, nil
	}

	pending, err := c.Store.GetPendingPartitions(ctx, table, c.Cfg.Migration.PrevRunID)
	if err != nil {
		return nil, err
	}
	if pending == nil {
		return canonical, nil
	}

	pendingIDs := make(map[int]bool, len(pending))
	for _, p := range pending {
		pendingIDs[p.PartitionID] = true
	}

	work := make([]model.PartitionDescriptor, 0, len(pending))
	for _, p := range canonical {
		if pendingIDs[p.PartitionID] {
			work = append(work, p)
		}
	}
	return work, nil
}

// fanOut submits one executor.Run call per descriptor to a bounded
// ants.Pool (spec.md §4.9 steps 8-9; §5 "parallel workers across
// partitions, single-threaded within a partition").
//
// Aggregation reads the package-level metrics counters (spec.md §9
// "Global mutable metrics": atomic counters shared by reference across
// the in-process worker pool, a final read after the pool drains) rather
// than keeping a second, parallel set of local atomics — a before/after
// snapshot diff keeps this run's totals correct even though the counters
// themselves are process-global and would otherwise accumulate across
// repeated runs in the same process (e.g. tests).
func (c *Coordinator) fanOut(ctx context.Context, exec *executor.Executor, runID int64, work []model.PartitionDescriptor) Summary {
	parallelism := c.Cfg.Parallelism
	if parallelism <= 0 {
		parallelism = 8
	}

	pool, err := ants.NewPool(parallelism)
	if err != nil {
		// ants.NewPool only fails on a non-positive size, which cannot
		// happen here.
		panic(err)
	}
	defer pool.Release()

	before := metrics.Read()

	var (
		wg        sync.WaitGroup
		failedMu  sync.Mutex
		failedIDs []int
	)

	for _, d := range work {
		d := d
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			res := exec.Run(ctx, runID, d)
			if res.Err != nil {
				failedMu.Lock()
				failedIDs = append(failedIDs, d.PartitionID)
				failedMu.Unlock()
			}
		})
		if submitErr != nil {
			wg.Done()
			c.Log.Error("coordinator: failed to submit partition", "partition_id", d.PartitionID, "err", submitErr)
			metrics.PartitionsFailed.Inc()
			failedMu.Lock()
			failedIDs = append(failedIDs, d.PartitionID)
			failedMu.Unlock()
		}
	}

	wg.Wait()

	after := metrics.Read()
	return Summary{
		RowsRead:            after.RowsRead - before.RowsRead,
		RowsWritten:         after.RowsWritten - before.RowsWritten,
		RowsSkipped:         after.RowsSkipped - before.RowsSkipped,
		PartitionsCompleted: after.PartitionsCompleted - before.PartitionsCompleted,
		PartitionsFailed:    after.PartitionsFailed - before.PartitionsFailed,
		FailedPartitionIDs:  failedIDs,
	}
}

// targetColumns freezes the run-wide column list (spec.md §4.3) from
// configuration: mapped source columns in declared order, followed by
// constant columns parsed once here.
func (c *Coordinator) targetColumns(runStart time.Time) model.TargetColumns {
	mapped := make([]string, 0, len(c.Cfg.Table.SourceColumns))
	for _, src := range c.Cfg.Table.SourceColumns {
		if target, ok := c.Cfg.Table.ColumnMapping[src]; ok {
			mapped = append(mapped, target)
		} else {
			mapped = append(mapped, src)
		}
	}

	constants := encode.ParseConstantColumns(c.Cfg.Table.ConstantNames, c.Cfg.Table.ConstantValues, runStart)
	return model.TargetColumns{SourceMapped: mapped, Constants: constants}
}

// ValidationError builds the error a caller can surface when a run ends
// with a mismatched counter assertion (spec.md §4.9 step 10).
func ValidationError(s Summary) error {
	return errs.New(errs.KindValidationMismatch, fmt.Errorf(
		"rows_written (%d) != rows_read (%d) - rows_skipped (%d)", s.RowsWritten, s.RowsRead, s.RowsSkipped))
}
