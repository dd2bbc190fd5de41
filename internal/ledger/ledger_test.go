package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firstpull/internal/fetch"
	"firstpull/internal/pipeline"
)

var (
	_ pipeline.Recorder = (*Store)(nil)
	_ fetch.Recorder    = (*Store)(nil)
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_RunRoundTrip(t *testing.T) {
	store := openTestStore(t)
	started := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

	require.NoError(t, store.RunStarted("run-1", started))
	require.NoError(t, store.StepFinished("run-1", 0, pipeline.StepReport{
		Name:     "recreate workspace",
		Status:   pipeline.StatusOK,
		Duration: 120 * time.Millisecond,
	}))
	require.NoError(t, store.StepFinished("run-1", 1, pipeline.StepReport{
		Name:   "fetch reports",
		Status: pipeline.StatusFailed,
		Code:   2,
		Err:    "firstpull exited with code 2",
	}))
	require.NoError(t, store.RunFinished("run-1", started.Add(time.Minute), 2))

	run, err := store.LatestRun()
	require.NoError(t, err)
	require.NotNil(t, run)

	assert.Equal(t, "run-1", run.ID)
	assert.True(t, run.Finished)
	assert.Equal(t, 2, run.ExitCode)

	require.Len(t, run.Steps, 2)
	assert.Equal(t, "recreate workspace", run.Steps[0].Name)
	assert.Equal(t, pipeline.StatusOK, run.Steps[0].Status)
	assert.Equal(t, 120*time.Millisecond, run.Steps[0].Duration)
	assert.Equal(t, "fetch reports", run.Steps[1].Name)
	assert.Equal(t, 2, run.Steps[1].Code)
	assert.Equal(t, "firstpull exited with code 2", run.Steps[1].Err)
}

func TestStore_LatestRun_PicksNewest(t *testing.T) {
	store := openTestStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.RunStarted("old", base))
	require.NoError(t, store.RunStarted("new", base.Add(time.Hour)))

	run, err := store.LatestRun()
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, "new", run.ID)
	assert.False(t, run.Finished)
}

func TestStore_LatestRun_Empty(t *testing.T) {
	store := openTestStore(t)

	run, err := store.LatestRun()
	require.NoError(t, err)
	assert.Nil(t, run)
}

func TestStore_StepFinished_Upsert(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.RunStarted("run-1", time.Now()))

	require.NoError(t, store.StepFinished("run-1", 0, pipeline.StepReport{
		Name: "install engine", Status: pipeline.StatusFailed, Code: 1,
	}))
	require.NoError(t, store.StepFinished("run-1", 0, pipeline.StepReport{
		Name: "install engine", Status: pipeline.StatusTolerated, Code: 1,
	}))

	run, err := store.LatestRun()
	require.NoError(t, err)
	require.Len(t, run.Steps, 1)
	assert.Equal(t, pipeline.StatusTolerated, run.Steps[0].Status)
}

func TestStore_Fetches(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.RecordFetch(ctx, fetch.Record{
		StateID: 1, StateName: "Alabama",
		File: "Alabama-dui-data.xlsx", Bytes: 2048,
		Duration: 3 * time.Second, FetchedAt: base,
	}))
	require.NoError(t, store.RecordFetch(ctx, fetch.Record{
		StateID: 6, StateName: "California",
		Error: "download link did not appear within 3m0s",
		FetchedAt: base.Add(time.Minute),
	}))

	records, err := store.RecentFetches(10)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "California", records[0].StateName)
	assert.Equal(t, "download link did not appear within 3m0s", records[0].Error)
	assert.Equal(t, "Alabama", records[1].StateName)
	assert.Equal(t, int64(2048), records[1].Bytes)
	assert.Equal(t, 3*time.Second, records[1].Duration)

	one, err := store.RecentFetches(1)
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "California", one[0].StateName)
}

func TestOpen_CreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "ledger.db")
	store, err := Open(path)
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, path, store.Path())
}
