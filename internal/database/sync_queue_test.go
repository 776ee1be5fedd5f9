package database

import (
	"context"
	"testing"
	"time"

	"torch/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncQueueCRUD(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()

	task := &models.SyncTask{
		TaskType: models.SyncTaskAppendSession,
		RefID:    "S100",
		Payload:  `{"test": true}`,
	}

	require.NoError(t, db.CreateSyncTask(ctx, task))
	assert.NotZero(t, task.ID)
	assert.Equal(t, "pending", task.Status)

	tasks, err := db.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "S100", tasks[0].RefID)
	assert.Equal(t, models.SyncTaskAppendSession, tasks[0].TaskType)

	require.NoError(t, db.UpdateSyncTaskStatus(ctx, tasks[0].ID, "completed", "", nil))

	tasks, err = db.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, tasks, 0)

	errMsg := "some error"
	require.NoError(t, db.CreateSyncTask(ctx, &models.SyncTask{TaskType: models.SyncTaskAppendInquiry, RefID: "a@b.c", Status: "failed", LastError: &errMsg}))
	failed, err := db.GetFailedSyncTasks(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "some error", *failed[0].LastError)

	t.Run("RetryIsDeferred", func(t *testing.T) {
		task2 := &models.SyncTask{TaskType: models.SyncTaskAppendSession, RefID: "S101"}
		require.NoError(t, db.CreateSyncTask(ctx, task2))

		nextRetry := time.Now().Add(time.Hour)
		require.NoError(t, db.UpdateSyncTaskStatus(ctx, task2.ID, "retry", "temporary error", &nextRetry))

		pending, err := db.GetPendingSyncTasks(ctx, 10)
		require.NoError(t, err)
		assert.Len(t, pending, 0)

		past := time.Now().Add(-time.Minute)
		require.NoError(t, db.UpdateSyncTaskStatus(ctx, task2.ID, "retry", "temporary error", &past))
		pending, err = db.GetPendingSyncTasks(ctx, 10)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, 2, pending[0].RetryCount)
	})
}
