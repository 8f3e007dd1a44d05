package stor

import (
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/materials-commons/dsstage/pkg/mcdb"
	"github.com/materials-commons/dsstage/pkg/mcdb/mcmodel"
)

func newSqliteTaskStatusStor(t *testing.T) TaskStatusStor {
	db, err := mcdb.ConnectToSqlite(filepath.Join(t.TempDir(), "status.db"))
	require.NoErrorf(t, err, "ConnectToSqlite failed: %s", err)
	require.NoError(t, mcdb.RunMigrations(db))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	return NewGormTaskStatusStor(db)
}

func TestTaskStatusStor(t *testing.T) {
	stors := []struct {
		name    string
		newStor func(t *testing.T) TaskStatusStor
	}{
		{name: "gorm", newStor: newSqliteTaskStatusStor},
		{name: "in memory", newStor: func(*testing.T) TaskStatusStor { return NewInMemoryTaskStatusStor() }},
	}

	for _, s := range stors {
		t.Run(s.name, func(t *testing.T) {
			stor := s.newStor(t)

			first, err := stor.UpsertTaskStatus(&mcmodel.TaskStatus{
				ManagerName: "Pub-12-1",
				Job:         2105,
				Step:        1,
				Tool:        "MASIC_Finnigan",
				Dataset:     "ds1",
				State:       mcmodel.TaskStateRunning,
			})
			require.NoError(t, err)
			require.NotEmpty(t, first.UUID)
			require.NotZero(t, first.ID)

			second, err := stor.UpsertTaskStatus(&mcmodel.TaskStatus{
				ManagerName:          "Pub-12-1",
				Job:                  2105,
				Step:                 1,
				State:                mcmodel.TaskStateClosing,
				Progress:             100,
				MostRecentLogMessage: "Step complete",
			})
			require.NoError(t, err)
			require.Equal(t, first.ID, second.ID)
			require.Equal(t, first.UUID, second.UUID)

			_, err = stor.UpsertTaskStatus(&mcmodel.TaskStatus{ManagerName: "Pub-10-2", State: mcmodel.TaskStateIdle})
			require.NoError(t, err)

			got, err := stor.GetTaskStatusByManager("Pub-12-1")
			require.NoError(t, err)
			require.Equal(t, mcmodel.TaskStateClosing, got.State)
			require.Equal(t, float32(100), got.Progress)
			require.Equal(t, "Step complete", got.MostRecentLogMessage)
			require.True(t, got.IsBusy())

			all, err := stor.ListTaskStatuses()
			require.NoError(t, err)
			require.Len(t, all, 2)
			require.Equal(t, "Pub-10-2", all[0].ManagerName)
			require.False(t, all[0].IsBusy())

			_, err = stor.GetTaskStatusByManager("Pub-99-1")
			require.True(t, errors.Is(err, gorm.ErrRecordNotFound))
		})
	}
}
