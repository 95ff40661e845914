// Package errs defines the engine's error taxonomy (spec.md §7): a closed
// set of kinds, each with a distinct propagation policy, wrapped around the
// underlying cause so callers can still unwrap to the original error.
package errs

import "fmt"

// Kind is one of the error categories the migration engine distinguishes.
// The categories are about propagation policy, not Go type: ConfigError is
// terminal, ReadError/WriteError fail one partition, RowEncodingError is
// swallowed-and-counted, CheckpointError from a partition status update
// is logged and never reaches the caller.
type Kind string

const (
	KindConfig              Kind = "ConfigError"
	KindConnect             Kind = "ConnectError"
	KindRead                Kind = "ReadError"
	KindWrite               Kind = "WriteError"
	KindConstraintViolation Kind = "ConstraintViolation"
	KindRowEncoding         Kind = "RowEncodingError"
	KindCheckpoint          Kind = "CheckpointError"
	KindDuplicateRun        Kind = "DuplicateRun"
	KindValidationMismatch  Kind = "ValidationMismatch"
)

// MigrationError wraps an underlying error with a Kind and, where
// applicable, the partition it pertains to.
type MigrationError struct {
	Kind      Kind
	Partition *int
	Err       error
}

func (e *MigrationError) Error() string {
	if e.Partition != nil {
		return fmt.Sprintf("%s (partition %d): %v", e.Kind, *e.Partition, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *MigrationError) Unwrap() error { return e.Err }

// New wraps err as a MigrationError of the given kind with no partition
// context.
func New(kind Kind, err error) *MigrationError {
	return &MigrationError{Kind: kind, Err: err}
}

// NewForPartition wraps err as a MigrationError scoped to a partition id.
func NewForPartition(kind Kind, partitionID int, err error) *MigrationError {
	return &MigrationError{Kind: kind, Partition: &partitionID, Err: err}
}

// Is reports whether err is a MigrationError of the given kind, so callers
// can branch on propagation policy (e.g. "never surface CheckpointError").
func Is(err error, kind Kind) bool {
	me, ok := err.(*MigrationError)
	return ok && me.Kind == kind
}
