package state

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/leapstack-labs/lookpipe/internal/testutil"
	"github.com/leapstack-labs/lookpipe/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store := NewSQLiteStore(testutil.NewTestLogger(t))
	require.NoError(t, store.Open(":memory:"))
	require.NoError(t, store.InitSchema())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_InitSchema(t *testing.T) {
	store := setupTestStore(t)

	for _, table := range []string{"runs", "task_runs"} {
		rows, err := store.DB().Query("SELECT 1 FROM " + table + " LIMIT 1")
		require.NoError(t, err, "table %s should exist", table)
		_ = rows.Close()
	}

	version, err := store.GetMigrationVersion()
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	// running migrations again is a no-op
	require.NoError(t, store.InitSchema())
}

func TestSQLiteStore_NotOpened(t *testing.T) {
	store := NewSQLiteStore(nil)

	_, err := store.CreateRun("all")
	assert.ErrorContains(t, err, "database not opened")
	assert.Error(t, store.InitSchema())
	assert.Error(t, store.RecordTaskRun(&core.TaskRun{}))
	assert.NoError(t, store.Close())
}

func TestSQLiteStore_RunLifecycle(t *testing.T) {
	store := setupTestStore(t)

	run, err := store.CreateRun("ingestion")
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, core.RunStatusRunning, run.Status)

	got, err := store.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, "ingestion", got.Pipeline)
	assert.Nil(t, got.CompletedAt)
	assert.WithinDuration(t, run.StartedAt, got.StartedAt, time.Millisecond)

	require.NoError(t, store.CompleteRun(run.ID, core.RunStatusFailed, "process_orders: schema error"))

	got, err = store.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusFailed, got.Status)
	assert.Equal(t, "process_orders: schema error", got.Error)
	require.NotNil(t, got.CompletedAt)

	assert.Error(t, store.CompleteRun("missing", core.RunStatusCompleted, ""))
	_, err = store.GetRun("missing")
	assert.ErrorContains(t, err, "run not found")
}

func TestSQLiteStore_LatestAndList(t *testing.T) {
	store := setupTestStore(t)

	latest, err := store.GetLatestRun("all")
	require.NoError(t, err)
	assert.Nil(t, latest)

	var ids []string
	for i := 0; i < 3; i++ {
		run, err := store.CreateRun("all")
		require.NoError(t, err)
		ids = append(ids, run.ID)
		time.Sleep(2 * time.Millisecond)
	}
	_, err = store.CreateRun("processing")
	require.NoError(t, err)

	latest, err = store.GetLatestRun("all")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, ids[2], latest.ID)

	runs, err := store.ListRuns(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "processing", runs[0].Pipeline)
	assert.Equal(t, ids[2], runs[1].ID)
}

func TestSQLiteStore_TaskRuns(t *testing.T) {
	store := setupTestStore(t)

	run, err := store.CreateRun("all")
	require.NoError(t, err)

	extract := &core.TaskRun{RunID: run.ID, TaskName: "extract_orders"}
	require.NoError(t, store.RecordTaskRun(extract))
	assert.NotEmpty(t, extract.ID)
	assert.Equal(t, core.TaskRunStatusPending, extract.Status)

	process := &core.TaskRun{RunID: run.ID, TaskName: "process_orders", StartedAt: extract.StartedAt.Add(time.Second)}
	require.NoError(t, store.RecordTaskRun(process))

	done := time.Now().UTC()
	extract.Status = core.TaskRunStatusSuccess
	extract.Rows = 1200
	extract.DurationMS = 350
	extract.MemoryDelta = 64 << 20
	extract.CompletedAt = &done
	require.NoError(t, store.UpdateTaskRun(extract))

	process.Status = core.TaskRunStatusSkipped
	process.Error = "upstream extract_orders failed"
	require.NoError(t, store.UpdateTaskRun(process))

	taskRuns, err := store.GetTaskRunsForRun(run.ID)
	require.NoError(t, err)
	require.Len(t, taskRuns, 2)

	assert.Equal(t, "extract_orders", taskRuns[0].TaskName)
	assert.Equal(t, core.TaskRunStatusSuccess, taskRuns[0].Status)
	assert.Equal(t, int64(1200), taskRuns[0].Rows)
	assert.Equal(t, int64(64<<20), taskRuns[0].MemoryDelta)
	require.NotNil(t, taskRuns[0].CompletedAt)

	assert.Equal(t, core.TaskRunStatusSkipped, taskRuns[1].Status)
	assert.Equal(t, "upstream extract_orders failed", taskRuns[1].Error)

	assert.Error(t, store.UpdateTaskRun(&core.TaskRun{ID: "missing"}))
}

func TestSQLiteStore_TaskRunRequiresRun(t *testing.T) {
	store := setupTestStore(t)
	err := store.RecordTaskRun(&core.TaskRun{RunID: "no-such-run", TaskName: "extract_orders"})
	assert.Error(t, err, "foreign key should reject orphan task runs")
}

func TestSQLiteStore_FileDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	store := NewSQLiteStore(nil)
	require.NoError(t, store.Open(path))
	require.NoError(t, store.InitSchema())
	run, err := store.CreateRun("all")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened := NewSQLiteStore(nil)
	require.NoError(t, reopened.Open(path))
	defer func() { _ = reopened.Close() }()

	got, err := reopened.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
}
