package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/phrazzld/pagescan/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresTaskStore_SaveAndUpdate(t *testing.T) {
	t.Parallel()

	db, mock := newMock(t)
	s := NewPostgresTaskStore(db, quietLogger())

	rec := &task.Record{
		TaskID:   uuid.New(),
		TaskType: task.TaskTypeContentRouting,
		Data:     []byte(`{"job_id":"x"}`),
		State:    task.TaskStatusPending,
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO tasks")).
		WithArgs(rec.TaskID, task.TaskTypeContentRouting, rec.Data, "pending", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.SaveTask(context.Background(), rec))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE tasks")).
		WithArgs("failed", "boom", sqlmock.AnyArg(), rec.TaskID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.UpdateTaskStatus(context.Background(), rec.TaskID, task.TaskStatusFailed, "boom"))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE tasks")).
		WithArgs("completed", nil, sqlmock.AnyArg(), rec.TaskID).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.NoError(t, s.UpdateTaskStatus(context.Background(), rec.TaskID, task.TaskStatusCompleted, ""),
		"unknown task is a no-op")
}

func TestPostgresTaskStore_LoadsRecords(t *testing.T) {
	t.Parallel()

	db, mock := newMock(t)
	s := NewPostgresTaskStore(db, quietLogger())
	id := uuid.New()
	now := time.Now().UTC()
	cols := []string{"id", "type", "payload", "status", "error_message", "created_at", "updated_at"}

	mock.ExpectQuery(regexp.QuoteMeta("FROM tasks WHERE status = $1 ORDER BY")).
		WithArgs("pending").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(id.String(), task.TaskTypeRecognitionDispatch, []byte(`{"job_id":"j"}`), "pending", nil, now, now))

	pending, err := s.GetPendingTasks(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	rec, ok := pending[0].(*task.Record)
	require.True(t, ok)
	assert.Equal(t, id, rec.ID())
	assert.Equal(t, task.TaskTypeRecognitionDispatch, rec.Type())
	assert.ErrorIs(t, rec.Execute(context.Background()), task.ErrNotRehydrated)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE status = $1 AND updated_at < $2")).
		WithArgs("processing", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(id.String(), task.TaskTypeContentRouting, []byte(`{}`), "processing", "stuck", now, now))

	stuck, err := s.GetProcessingTasks(context.Background(), time.Minute)
	require.NoError(t, err)
	require.Len(t, stuck, 1)
	assert.Equal(t, "stuck", stuck[0].(*task.Record).ErrorMessage)
}
