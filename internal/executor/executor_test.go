package executor

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/sakthi87/cstar2yb/internal/config"
	"github.com/sakthi87/cstar2yb/internal/encode"
	"github.com/sakthi87/cstar2yb/internal/logger"
	"github.com/sakthi87/cstar2yb/internal/model"
)

func newTestExecutor(mode string) *Executor {
	cols := model.TargetColumns{SourceMapped: []string{"a", "b"}}
	return &Executor{
		Encoder: encode.New(cols, encode.DefaultDialect, time.Now()),
		Cfg: &config.Config{
			Insert: config.InsertConfig{Mode: mode},
			Table:  config.TableConfig{PrimaryKey: []string{"a"}},
		},
	}
}

func TestEncodeRowUsesPositionalForInsertMode(t *testing.T) {
	e := newTestExecutor(string(model.InsertModeInsert))
	row := model.Row{Values: []model.Value{
		{Valid: true, Kind: model.KindString, Str: "x"},
		{Valid: true, Kind: model.KindString, Str: "y"},
	}}

	encoded, err := e.encodeRow(row)
	if err != nil {
		t.Fatalf("encodeRow: %v", err)
	}
	if encoded.Positional == nil {
		t.Fatal("expected positional encoding for INSERT mode")
	}
	if encoded.CSVLine != "" {
		t.Fatal("expected no CSV line for INSERT mode")
	}
}

func TestEncodeRowUsesCSVForCopyMode(t *testing.T) {
	e := newTestExecutor(string(model.InsertModeCopy))
	row := model.Row{Values: []model.Value{
		{Valid: true, Kind: model.KindString, Str: "x"},
		{Valid: true, Kind: model.KindString, Str: "y"},
	}}

	encoded, err := e.encodeRow(row)
	if err != nil {
		t.Fatalf("encodeRow: %v", err)
	}
	if encoded.CSVLine == "" {
		t.Fatal("expected a CSV line for COPY mode")
	}
	if encoded.Positional != nil {
		t.Fatal("expected no positional slice for COPY mode")
	}
}

func TestResolvePrimaryKeyPrefersConfigured(t *testing.T) {
	log := logger.New(logger.Config{Level: "ERROR"}, os.Stderr)

	// A configured primary key short-circuits before ever touching conn,
	// so a nil *pgx.Conn is safe here.
	pk, err := ResolvePrimaryKey(context.Background(), nil, "public", "t", []string{"a"}, []string{"a", "b"}, log)
	if err != nil {
		t.Fatalf("ResolvePrimaryKey: %v", err)
	}
	if len(pk) != 1 || pk[0] != "a" {
		t.Fatalf("expected configured primary key [a], got %v", pk)
	}
}
