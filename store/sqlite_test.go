package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLStoreSaveTask(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := newSQLStore(db)

	rec := &TaskRecord{
		DeviceSerial: "emulator-5554",
		Task:         "open settings",
		Status:       "finished",
		Message:      "Task completed",
		Steps:        4,
		StartedAt:    time.Now().Add(-time.Minute),
		FinishedAt:   time.Now(),
	}

	mock.ExpectExec("INSERT INTO task_runs").
		WithArgs(sqlmock.AnyArg(), rec.DeviceSerial, rec.Task, rec.Status,
			rec.Message, rec.Steps, rec.StartedAt, rec.FinishedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, s.SaveTask(context.Background(), rec))
	// An ID is assigned when the caller did not set one.
	assert.NotEmpty(t, rec.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreSaveTaskKeepsExplicitID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := newSQLStore(db)
	rec := &TaskRecord{ID: "fixed-id", DeviceSerial: "d", Task: "t", Status: "error"}

	mock.ExpectExec("INSERT INTO task_runs").
		WithArgs("fixed-id", "d", "t", "error", "", 0, rec.StartedAt, rec.FinishedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, s.SaveTask(context.Background(), rec))
	assert.Equal(t, "fixed-id", rec.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreListTasks(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := newSQLStore(db)
	now := time.Now()

	rows := sqlmock.NewRows([]string{
		"id", "device_serial", "task", "status", "message", "steps", "started_at", "finished_at",
	}).
		AddRow("b", "emulator-5554", "second task", "finished", "ok", 2, now, now).
		AddRow("a", "emulator-5554", "first task", "aborted", "", 7, now.Add(-time.Hour), now.Add(-time.Hour))

	mock.ExpectQuery("SELECT (.+) FROM task_runs WHERE device_serial").
		WithArgs("emulator-5554", 50).
		WillReturnRows(rows)

	// limit <= 0 falls back to the default of 50.
	records, err := s.ListTasks(context.Background(), "emulator-5554", 0)
	require.NoError(t, err)

	require.Len(t, records, 2)
	assert.Equal(t, "b", records[0].ID)
	assert.Equal(t, "second task", records[0].Task)
	assert.Equal(t, "aborted", records[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreListTasksQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := newSQLStore(db)
	mock.ExpectQuery("SELECT (.+) FROM task_runs").
		WillReturnError(assert.AnError)

	_, err = s.ListTasks(context.Background(), "x", 10)
	assert.Error(t, err)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "oracle", "dsn")
	assert.Error(t, err)
}

func TestNewTaskIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewTaskID()
		assert.Len(t, id, 16)
		assert.False(t, seen[id])
		seen[id] = true
	}
}
