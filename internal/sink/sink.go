// Package sink implements the Sink Writer contract (spec.md §4.4): two
// implementations — StreamCopySink and BatchInsertSink — sharing one
// lifecycle (start/add_row/flush/end/cancel).
package sink

import "context"

// Sink is the contract both sink implementations satisfy. add_row is
// buffered and may flush internally; cancel is idempotent at any point in
// the lifecycle (spec.md §4.4, P7).
type Sink interface {
	// Start prepares the sink to receive rows (opens the COPY stream or
	// prepares the INSERT statement).
	Start(ctx context.Context) error

	// AddRow buffers one already-encoded row.
	AddRow(ctx context.Context, row EncodedRow) error

	// Flush forces any currently buffered rows to the wire.
	Flush(ctx context.Context) error

	// End flushes any remainder, finalizes the protocol, and returns the
	// number of rows the server reports as written.
	End(ctx context.Context) (Result, error)

	// Cancel releases resources. Idempotent: safe before Start, after
	// End, after a partial Flush, or mid-AddRow (P7).
	Cancel(ctx context.Context)
}

// EncodedRow is a row already converted by the Row Encoder: CSV text for
// StreamCopySink, or a positional parameter slice for BatchInsertSink.
// Exactly one of the two fields is populated, matching which sink
// produced/consumes it.
type EncodedRow struct {
	CSVLine    string
	Positional []interface{}
}

// Result is what End() reports: how many rows were durably written, and
// (BatchInsertSink only) how many were recognized as duplicates.
type Result struct {
	RowsWritten           int64
	RowsSkippedDuplicates int64
}
