// Package source implements the Source Reader contract (spec.md §4.2):
// enumerate source partitions, then lazily yield rows for each,
// back-pressured at the rate the sink drains.
package source

import (
	"context"

	"github.com/sakthi87/cstar2yb/internal/model"
)

// PlanHint carries the Split-Size Planner's output (spec.md §4.7) into
// partition enumeration: the one knob that must be set before
// partitioning.
type PlanHint struct {
	SplitSizeMB int
	// EstimatedTableSizeMB is the planner's best estimate of total table
	// size, used together with SplitSizeMB to derive a partition count
	// for sources that partition by even token-range division. Zero
	// means unknown; the reader falls back to MinPartitions.
	EstimatedTableSizeMB float64
	// MinPartitions bounds the partition count from below when size is
	// unknown or would otherwise yield too few partitions to
	// parallelize usefully.
	MinPartitions int
}

// PartitionCount derives how many partitions to enumerate from the
// planner's split size and estimated table size, falling back to
// MinPartitions (or 1) when size is unknown.
func (h PlanHint) PartitionCount() int {
	min := h.MinPartitions
	if min <= 0 {
		min = 1
	}
	if h.EstimatedTableSizeMB <= 0 || h.SplitSizeMB <= 0 {
		return min
	}
	n := int(h.EstimatedTableSizeMB / float64(h.SplitSizeMB))
	if n < min {
		return min
	}
	return n
}

// Reader enumerates source partitions and reads rows from one at a time.
type Reader interface {
	// EnumeratePartitions returns the canonical, finite list of source
	// partitions. Order is irrelevant.
	EnumeratePartitions(ctx context.Context, hint PlanHint) ([]model.PartitionDescriptor, error)

	// Read opens a lazy row sequence for one partition. The returned
	// RowIterator is not restartable mid-iteration: the caller must
	// consume or abandon and retry the whole partition.
	Read(ctx context.Context, d model.PartitionDescriptor) (RowIterator, error)
}

// RowIterator is a finite, forward-only sequence of rows pulled at the
// rate the caller drains it (spec.md §4.2 back-pressure).
type RowIterator interface {
	// Next advances and returns the next row. ok is false at end of
	// sequence; err is set on a mid-partition source failure
	// (errs.KindRead), which the caller must treat as a failed
	// partition — there is no mid-partition resume.
	Next(ctx context.Context) (row model.Row, ok bool, err error)

	// Close releases any resources (driver-side cursor/session) held by
	// the iterator. Idempotent.
	Close()
}

// DefaultPrefetch is the reader's bounded-prefetch page size (spec.md
// §4.2 default 10,000 rows).
const DefaultPrefetch = 10000
