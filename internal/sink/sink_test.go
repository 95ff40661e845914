package sink

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestStreamCopyCancelIdempotent verifies P7: Cancel is safe to call
// repeatedly, before Start and mid-AddRow, without touching the network
// connection.
func TestStreamCopyCancelIdempotent(t *testing.T) {
	s := NewStreamCopySink(nil, StreamCopyOptions{Schema: "public", Table: "t", Columns: []string{"a"}}, nil)

	// Before Start.
	s.Cancel(context.Background())
	s.Cancel(context.Background())

	require := assert.New(t)
	require.Equal(0, s.bufferedRows)

	// Mid add_row (buffer something, then cancel without flushing).
	s2 := NewStreamCopySink(nil, StreamCopyOptions{Schema: "public", Table: "t", Columns: []string{"a"}}, nil)
	_ = s2.Start(context.Background())
	_ = s2.AddRow(context.Background(), EncodedRow{CSVLine: "x"})
	s2.Cancel(context.Background())
	s2.Cancel(context.Background())
	require.Equal(0, s2.bufferedRows)
}

func TestBatchInsertCancelIdempotent(t *testing.T) {
	s := NewBatchInsertSink(nil, BatchInsertOptions{Schema: "public", Table: "t", Columns: []string{"a"}, PrimaryKey: []string{"a"}}, nil)
	_ = s.Start(context.Background())
	s.batch.Queue(s.insertSQL, 1)
	s.buffered = 1

	s.Cancel(context.Background())
	s.Cancel(context.Background())
	assert.Equal(t, 0, s.buffered)
}

func TestBatchInsertSQLShape(t *testing.T) {
	s := NewBatchInsertSink(nil, BatchInsertOptions{
		Schema: "public", Table: "accounts", Columns: []string{"id", "name"}, PrimaryKey: []string{"id"},
	}, nil)
	_ = s.Start(context.Background())
	assert.Equal(t,
		`INSERT INTO public.accounts ("id", "name") VALUES ($1, $2) ON CONFLICT ("id") DO NOTHING`,
		s.insertSQL)
}

func TestStreamCopySQLShape(t *testing.T) {
	s := NewStreamCopySink(nil, StreamCopyOptions{
		Schema: "public", Table: "accounts", Columns: []string{"id", "name"},
		Delimiter: ',', Quote: '"', Replace: true,
	}, nil)
	sql := s.copySQL()
	assert.Contains(t, sql, `COPY public.accounts ("id", "name") FROM STDIN WITH`)
	assert.Contains(t, sql, "REPLACE")
}
