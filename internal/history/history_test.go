package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.db")
	db, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRecordAndRunsForSubtask(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, db.Record(ctx, Entry{
		SubtaskID: "P1.M1.T1.S1", Status: "failed", Attempt: 1,
		Gate: "unit", GateResult: "fail", CostUSD: 0.10, RecordedAt: now,
	}))
	require.NoError(t, db.Record(ctx, Entry{
		SubtaskID: "P1.M1.T1.S1", Status: "complete", Attempt: 2,
		Gate: "unit", GateResult: "pass", CostUSD: 0.12, RecordedAt: now.Add(time.Minute),
	}))

	entries, err := db.RunsForSubtask(ctx, "P1.M1.T1.S1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "failed", entries[0].Status)
	assert.Equal(t, "complete", entries[1].Status)
}

func TestReportAggregatesAcrossSubtasks(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, db.Record(ctx, Entry{SubtaskID: "P1.M1.T1.S1", Status: "complete", Attempt: 1, CostUSD: 0.5, RecordedAt: now}))
	require.NoError(t, db.Record(ctx, Entry{SubtaskID: "P1.M1.T1.S2", Status: "failed", Attempt: 1, CostUSD: 0.3, RecordedAt: now}))
	require.NoError(t, db.Record(ctx, Entry{SubtaskID: "P1.M1.T1.S3", Status: "complete", Attempt: 1, CostUSD: 0.2, RecordedAt: now}))

	summary, err := db.Report(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.TotalRuns)
	assert.Equal(t, 2, summary.CompleteRuns)
	assert.Equal(t, 1, summary.FailedRuns)
	assert.InDelta(t, 1.0, summary.TotalCostUSD, 0.0001)
}

func TestRunsForSubtaskReturnsEmptyForUnknown(t *testing.T) {
	db := openTestDB(t)
	entries, err := db.RunsForSubtask(context.Background(), "P9.M9.T9.S9")
	require.NoError(t, err)
	assert.Empty(t, entries)
}
