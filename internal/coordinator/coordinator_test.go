package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/sakthi87/cstar2yb/internal/config"
	"github.com/sakthi87/cstar2yb/internal/model"
)

type fakeStore struct {
	pending []model.PartitionDescriptor
}

func (f *fakeStore) InitTables(ctx context.Context) error { return nil }
func (f *fakeStore) GetPendingPartitions(ctx context.Context, table string, prevRunID int64) ([]model.PartitionDescriptor, error) {
	return f.pending, nil
}
func (f *fakeStore) InitRun(ctx context.Context, table string, runID, prevRunID int64, partitions []model.PartitionDescriptor, runType string) error {
	return nil
}
func (f *fakeStore) UpdateRun(ctx context.Context, table string, runID, tokenMin int64, partitionID int, status model.PartitionStatus, runInfoText string) {
}
func (f *fakeStore) EndRun(ctx context.Context, table string, runID int64, summary string) error {
	return nil
}

func descriptors(ids ...int) []model.PartitionDescriptor {
	out := make([]model.PartitionDescriptor, len(ids))
	for i, id := range ids {
		out[i] = model.PartitionDescriptor{PartitionID: id}
	}
	return out
}

func TestResumeIntersectFreshRunReturnsCanonical(t *testing.T) {
	c := &Coordinator{Cfg: &config.Config{}, Store: &fakeStore{}}
	canonical := descriptors(0, 1, 2)

	got, err := c.resumeIntersect(context.Background(), "t", canonical)
	if err != nil {
		t.Fatalf("resumeIntersect: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected canonical list unchanged, got %d entries", len(got))
	}
}

func TestResumeIntersectFiltersToPending(t *testing.T) {
	c := &Coordinator{
		Cfg:   &config.Config{Migration: config.MigrationConfig{PrevRunID: 7}},
		Store: &fakeStore{pending: descriptors(1, 3)},
	}
	canonical := descriptors(0, 1, 2, 3, 4)

	got, err := c.resumeIntersect(context.Background(), "t", canonical)
	if err != nil {
		t.Fatalf("resumeIntersect: %v", err)
	}
	if len(got) != 2 || got[0].PartitionID != 1 || got[1].PartitionID != 3 {
		t.Fatalf("expected partitions [1, 3], got %+v", got)
	}
}

func TestResumeIntersectNoPendingReturnsCanonical(t *testing.T) {
	c := &Coordinator{
		Cfg:   &config.Config{Migration: config.MigrationConfig{PrevRunID: 7}},
		Store: &fakeStore{pending: nil},
	}
	canonical := descriptors(0, 1, 2)

	got, err := c.resumeIntersect(context.Background(), "t", canonical)
	if err != nil {
		t.Fatalf("resumeIntersect: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected canonical fallback when no prior run found, got %d entries", len(got))
	}
}

func TestTargetColumnsPreservesSourceOrderAndAppliesMapping(t *testing.T) {
	c := &Coordinator{Cfg: &config.Config{
		Table: config.TableConfig{
			SourceColumns: []string{"id", "legacy_name", "created_at"},
			ColumnMapping: map[string]string{"legacy_name": "full_name"},
			ConstantNames: []string{"source_system"},
			ConstantValues: []string{"'cassandra'"},
		},
	}}

	cols := c.targetColumns(time.Now())
	want := []string{"id", "full_name", "created_at"}
	for i, w := range want {
		if cols.SourceMapped[i] != w {
			t.Fatalf("column %d: got %q, want %q", i, cols.SourceMapped[i], w)
		}
	}
	if len(cols.Constants) != 1 || cols.Constants[0].Name != "source_system" {
		t.Fatalf("expected one constant column, got %+v", cols.Constants)
	}
}

func TestSummarySuccessRequiresNoFailuresAndValidValidation(t *testing.T) {
	ok := Summary{PartitionsFailed: 0, ValidationOK: true}
	if !ok.Success() {
		t.Fatal("expected success")
	}

	failed := Summary{PartitionsFailed: 1, ValidationOK: true}
	if failed.Success() {
		t.Fatal("expected failure when a partition failed")
	}

	mismatched := Summary{PartitionsFailed: 0, ValidationOK: false}
	if mismatched.Success() {
		t.Fatal("expected failure when validation mismatched")
	}
}
