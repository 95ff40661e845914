// Package model holds the engine's shared data types (spec.md §3): the
// unit of work (PartitionDescriptor), the two checkpoint rows (RunInfo,
// RunDetail), the row contract, and the frozen target column list.
package model

import "time"

// RunStatus is the lifecycle state of a RunInfo row.
type RunStatus string

const (
	RunNotStarted RunStatus = "NOT_STARTED"
	RunStarted    RunStatus = "STARTED"
	RunEnded      RunStatus = "ENDED"
)

// PartitionStatus is the lifecycle state of a RunDetail row. Status
// monotonicity: NOT_STARTED -> STARTED -> (PASS | FAIL); FAIL may re-enter
// STARTED on resume.
type PartitionStatus string

const (
	PartitionNotStarted PartitionStatus = "NOT_STARTED"
	PartitionStarted    PartitionStatus = "STARTED"
	PartitionPass       PartitionStatus = "PASS"
	PartitionFail       PartitionStatus = "FAIL"
)

// InsertMode selects which sink the run uses (spec.md §4.4.3). It is a
// single run-level flag, never chosen per-partition.
type InsertMode string

const (
	InsertModeCopy   InsertMode = "COPY"
	InsertModeInsert InsertMode = "INSERT"
)

// PartitionDescriptor is a unit of work: a source key range (or, for
// sources that cannot expose ranges, just a dense id). Created during
// planning, persisted by init_run, terminal when its checkpoint reaches
// PASS or is explicitly abandoned.
type PartitionDescriptor struct {
	PartitionID int
	TokenMin    int64
	TokenMax    int64

	// ResidualState carries planner- or reader-specific state across
	// resume attempts (e.g. a document source's sampled key-range
	// bounds, kept in their native BSON type rather than stringified so
	// a typed comparison against _id stays correct). Opaque to the
	// checkpoint store and the executor.
	ResidualState map[string]interface{}
}

// RangeOnly reports whether this descriptor carries real source token
// bounds, or whether (token_min, token_max) is the degenerate
// (partition_id, partition_id) pair used by sources that cannot expose
// ranges (spec.md §9 "Open questions", second bullet).
func (p PartitionDescriptor) RangeOnly() bool {
	return p.TokenMin == int64(p.PartitionID) && p.TokenMax == int64(p.PartitionID)
}

// RunInfo is the metadata row for one migration attempt of one logical
// table. Identity is (TableName, RunID); RunID is never reused for the
// same table.
type RunInfo struct {
	TableName string
	RunID     int64
	RunType   string
	PrevRunID int64
	StartTime time.Time
	EndTime   *time.Time
	RunInfo   string
	Status    RunStatus
}

// RunDetail is the per-partition checkpoint row. Composite key:
// (TableName, RunID, TokenMin, PartitionID).
type RunDetail struct {
	TableName   string
	RunID       int64
	StartTime   time.Time
	TokenMin    int64
	TokenMax    int64
	PartitionID int
	Status      PartitionStatus
	RunInfo     string
}

// Value is a single cell of a Row. Null is represented by Valid=false,
// distinct from a present-but-empty string (spec.md §3, §4.3).
type Value struct {
	Valid bool
	Kind  ValueKind
	Str   string      // used when Kind is not Raw
	Raw   interface{} // typed value, used by the positional-array encoder
}

// ValueKind tags how a Value should be normalized/serialized.
type ValueKind int

const (
	KindString ValueKind = iota
	KindBool
	KindInt
	KindFloat
	KindTimestamp
	KindDate
	KindUUID
	KindBinary   // base64 on the wire
	KindJSON     // list/map/set source types, JSON-serialized
)

// Null constructs a NULL Value of the given kind.
func Null(kind ValueKind) Value { return Value{Valid: false, Kind: kind} }

// Row is an ordered tuple of values, one per source-declared column, typed
// according to the source schema.
type Row struct {
	Values []Value
}

// ConstantColumn is one audit-field column injected by configuration
// (spec.md §4.3): name plus its pre-parsed, run-frozen value.
type ConstantColumn struct {
	Name  string
	Value Value
}

// TargetColumns is the frozen, run-wide ordered list of target column
// names: mapped source columns in source-declared order, followed by
// constant-column names in config-declared order.
type TargetColumns struct {
	SourceMapped []string
	Constants    []ConstantColumn
}

// Names returns the full ordered column-name list as it will be sent to
// the target (mapped columns, then constant columns).
func (tc TargetColumns) Names() []string {
	names := make([]string, 0, len(tc.SourceMapped)+len(tc.Constants))
	names = append(names, tc.SourceMapped...)
	for _, c := range tc.Constants {
		names = append(names, c.Name)
	}
	return names
}

// ConnectionBinding is an ephemeral single target-node selection, owned by
// one partition executor for the lifetime of its attempt.
type ConnectionBinding struct {
	PartitionID int
	Host        string
}
